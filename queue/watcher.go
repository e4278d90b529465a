package queue

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// watchSkipDirs lists directory names never worth watching: version
// control internals, Obsidian's config directory, dependency folders and
// build output.
var watchSkipDirs = map[string]bool{
	".git": true, ".obsidian": true, "node_modules": true,
	"vendor": true, "dist": true, "build": true,
}

// AddTree adds root and its subdirectories (skipping watchSkipDirs and
// other dot-prefixed directories) to watcher. It only registers
// directories and returns once the walk is done; forwarding events to a
// Queue is the job of WatchEvents, with q.Run draining the queue.
func AddTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if watchSkipDirs[base] || (strings.HasPrefix(base, ".") && base != filepath.Base(root)) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil && !os.IsPermission(err) {
			slog.Warn("indexing queue: failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// WatchEvents forwards the path of every create/write/rename event from
// watcher to q.Enqueue and logs watcher errors, until the watcher is
// closed. Run it in its own goroutine.
func WatchEvents(watcher *fsnotify.Watcher, q *Queue) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				q.Enqueue(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("indexing queue: watcher error", "error", err)
		}
	}
}
