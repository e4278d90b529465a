// Package progress tracks the number of files remaining to index so the
// search endpoint can annotate responses during indexing bursts.
package progress

import "sync"

// Snapshot is the progress state at a point in time.
type Snapshot struct {
	Active    bool
	Remaining int
}

// Tracker is a thread-safe remaining-files counter. The zero value is a
// ready-to-use idle tracker.
type Tracker struct {
	mu        sync.Mutex
	remaining int
}

// SetRemaining sets the number of files remaining to index.
func (t *Tracker) SetRemaining(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n < 0 {
		n = 0
	}
	t.remaining = n
}

// Decrement reduces the remaining count by one, saturating at zero.
func (t *Tracker) Decrement() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.remaining > 0 {
		t.remaining--
	}
}

// Finish marks indexing as complete, zeroing the remaining count.
func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remaining = 0
}

// Snapshot returns the current state. ok is false when idle (remaining
// == 0), in which case callers should omit progress from a response.
func (t *Tracker) Snapshot() (snap Snapshot, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.remaining == 0 {
		return Snapshot{}, false
	}
	return Snapshot{Active: true, Remaining: t.remaining}, true
}
