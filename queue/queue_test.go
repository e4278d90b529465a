package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestEnqueueCoalescesSamePathWithinDebounce(t *testing.T) {
	var calls int32
	q := New(30*time.Millisecond, 10, func(ctx context.Context, path string) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Enqueue("/a")
	time.Sleep(10 * time.Millisecond)
	q.Enqueue("/a") // pushes deadline out, should coalesce into one process call
	time.Sleep(80 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestEnqueueDistinctPathsBothProcess(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	q := New(20*time.Millisecond, 10, func(ctx context.Context, path string) error {
		mu.Lock()
		seen[path] = true
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Enqueue("/a")
	q.Enqueue("/b")
	time.Sleep(80 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if !seen["/a"] || !seen["/b"] {
		t.Fatalf("expected both distinct paths processed, got %v", seen)
	}
}

func TestProcessingErrorDoesNotStopQueue(t *testing.T) {
	var calls int32
	q := New(10*time.Millisecond, 10, func(ctx context.Context, path string) error {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return errTest
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Enqueue("/fails")
	time.Sleep(40 * time.Millisecond)
	q.Enqueue("/succeeds")
	time.Sleep(40 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("calls = %d, want 2 (failure must not stall the queue)", got)
	}
}

var errTest = &testError{}

type testError struct{}

func (e *testError) Error() string { return "boom" }

func TestStopDrainsInFlightAndRefusesNew(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	q := New(5*time.Millisecond, 10, func(ctx context.Context, path string) error {
		close(started)
		<-release
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Enqueue("/slow")
	<-started
	close(release)

	q.Stop(time.Second)
	q.Enqueue("/after-stop")

	if q.Pending() != 0 {
		t.Fatalf("Pending() = %d after Stop, want 0", q.Pending())
	}
}

func TestPendingReflectsTrackedPaths(t *testing.T) {
	q := New(time.Hour, 10, func(ctx context.Context, path string) error { return nil })
	q.Enqueue("/a")
	q.Enqueue("/b")
	if got := q.Pending(); got != 2 {
		t.Fatalf("Pending() = %d, want 2", got)
	}
}
