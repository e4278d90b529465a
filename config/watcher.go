package config

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultDebounce is the debounce window applied between a change
// notification and the actual reload.
const DefaultDebounce = 2 * time.Second

// Watcher holds the current Config snapshot and reloads it from disk on
// a debounced schedule. Readers call Get and must treat the returned
// snapshot as immutable; readers needing a consistent view across
// multiple operations should capture the snapshot once at the start.
type Watcher struct {
	path     string
	debounce time.Duration
	onReload func(Config)

	mu     sync.Mutex
	config Config
	timer  *time.Timer
}

// NewWatcher returns a Watcher seeded with initial, watching path for
// changes. onReload, if non-nil, is invoked with the new snapshot after
// every successful reload; its failure (panic aside) never rolls back
// the swap.
func NewWatcher(initial Config, path string, debounce time.Duration, onReload func(Config)) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		path:     path,
		debounce: debounce,
		onReload: onReload,
		config:   initial,
	}
}

// Get returns the current configuration snapshot.
func (w *Watcher) Get() Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.config
}

// NotifyChange resets the debounce timer. Once it elapses without a
// further call, Reload runs.
func (w *Watcher) NotifyChange() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.debouncedReload)
}

func (w *Watcher) debouncedReload() {
	w.mu.Lock()
	w.timer = nil
	w.mu.Unlock()
	w.Reload()
}

// Reload loads the config file immediately, swapping the stored snapshot
// on success. Parse failure leaves the previous snapshot in place and is
// logged, not returned — callers drive reload asynchronously via
// NotifyChange and have no result to observe.
func (w *Watcher) Reload() {
	next, err := Load(w.path)
	if err != nil {
		slog.Error("config reload failed, keeping previous snapshot", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	w.config = next
	w.mu.Unlock()

	slog.Info("config reloaded", "path", w.path)

	if w.onReload != nil {
		w.onReload(next)
	}
}

// Stop cancels any pending debounced reload.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
