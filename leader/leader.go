// Package leader implements per-group leader election via a non-blocking
// advisory exclusive file lock. Exactly one process per group becomes the
// leader and runs the indexing queue and watchers; the rest serve
// read-only queries and retry promotion in the background.
//
// The kernel releases the lock automatically when a process dies, so
// there are no heartbeats, PID files, or stale-lock recovery to manage.
package leader

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// LockPathForGroup derives the lock file path from a group's index
// database path: "<index_db>.lock", adjacent to the database.
func LockPathForGroup(indexDBPath string) string {
	return indexDBPath + ".lock"
}

// Lock is an exclusive per-group advisory lock backed by a zero-byte file
// at 0644. The zero value is not ready to use; construct with New.
type Lock struct {
	path string

	mu       sync.Mutex
	file     *os.File
	isLeader bool

	stopOnce sync.Once
	stopCh   chan struct{}
	retryWG  sync.WaitGroup
}

// New returns a Lock for the given lock file path. The file is not opened
// until TryAcquire is first called.
func New(path string) *Lock {
	return &Lock{path: path, stopCh: make(chan struct{})}
}

// IsLeader reports whether this instance currently holds the lock.
func (l *Lock) IsLeader() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isLeader
}

// TryAcquire attempts to acquire the exclusive lock without blocking.
// Returns true if this process is now the leader, false if another
// process already holds it. Leaderless failure is non-fatal — callers
// run in follower (read-only) mode.
func (l *Lock) TryAcquire() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, err
	}

	if l.file == nil {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			return false, err
		}
		l.file = f
	}

	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		l.isLeader = false
		slog.Info("leader lock held by another process", "path", l.path)
		return false, nil
	}

	l.isLeader = true
	slog.Info("acquired leader lock", "path", l.path)
	return true, nil
}

// StartRetry spawns a background goroutine that retries TryAcquire every
// interval until it succeeds or Close is called. On success it invokes
// onPromote once (if non-nil) and exits.
func (l *Lock) StartRetry(interval time.Duration, onPromote func()) {
	l.retryWG.Add(1)
	go func() {
		defer l.retryWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-l.stopCh:
				return
			case <-ticker.C:
				ok, err := l.TryAcquire()
				if err != nil {
					slog.Warn("leader retry failed", "path", l.path, "error", err)
					continue
				}
				if ok {
					slog.Info("promoted to leader via retry", "path", l.path)
					if onPromote != nil {
						onPromote()
					}
					return
				}
			}
		}
	}()
}

// Close stops any retry goroutine, releases the lock, and closes the
// file descriptor. Idempotent.
func (l *Lock) Close() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.retryWG.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	l.isLeader = false
	return err
}
