package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ragling/ragling"
	"github.com/ragling/ragling/dispatch"
	"github.com/ragling/ragling/queue"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML)")
	addr := flag.String("addr", ":8080", "Listen address")
	queryLogPath := flag.String("query-log", "", "Path to append-only query telemetry log (empty disables)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if v := os.Getenv("RAGLING_CONFIG"); v != "" {
		*configPath = v
	}
	if v := os.Getenv("RAGLING_ADDR"); v != "" {
		*addr = v
	}
	if v := os.Getenv("RAGLING_QUERY_LOG"); v != "" {
		*queryLogPath = v
	}

	if *configPath == "" {
		slog.Error("missing -config (or RAGLING_CONFIG)")
		os.Exit(1)
	}

	engine, err := ragling.New(*configPath, *queryLogPath)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	slog.Info("engine started", "leader", engine.IsLeader(), "config", *configPath)

	if engine.IsLeader() {
		if err := startIndexing(engine); err != nil {
			slog.Error("starting indexing queue", "error", err)
		}
	}

	if err := watchConfigFile(*configPath, engine.ConfigWatcher()); err != nil {
		slog.Warn("config file watch not started", "error", err)
	}

	h := newHandler(engine)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /search", h.handleSearch)
	mux.HandleFunc("GET /health", h.handleHealth)

	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = corsMiddleware(os.Getenv("RAGLING_CORS_ORIGINS"), handler)
	handler = recoveryMiddleware(handler)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}

// startIndexing brings up the fsnotify watcher and debounce queue for every
// indexable user directory under the group root, only ever called on the
// leader.
func startIndexing(e *ragling.Engine) error {
	cfg := e.Config()

	userIDs := make([]string, 0, len(cfg.Users))
	for id := range cfg.Users {
		userIDs = append(userIDs, id)
	}
	dirs := dispatch.CollectIndexableDirectories(cfg.GroupRoot, userIDs)
	for _, dir := range dirs {
		slog.Info("collection detected", "directory", dir, "type", dispatch.DetectDirectoryType(dir))
	}

	q := queue.New(queue.DefaultDebounce, queue.DefaultMaxPending, e.ProcessPath)
	e.AttachQueue(q)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if err := queue.AddTree(watcher, dir); err != nil {
			slog.Warn("failed to watch directory tree", "path", dir, "error", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go q.Run(ctx)
	go queue.WatchEvents(watcher, q)
	go func() {
		<-ctx.Done()
		watcher.Close()
	}()

	slog.Info("indexing queue started", "directories", len(dirs))
	return nil
}

// watchConfigFile wires an fsnotify watcher on the config file's parent
// directory to the config watcher's debounced reload.
func watchConfigFile(path string, notify func()) error {
	if notify == nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}
	go func() {
		for event := range watcher.Events {
			if filepath.Clean(event.Name) == filepath.Clean(path) {
				notify()
			}
		}
	}()
	return nil
}
