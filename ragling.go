// Package ragling wires the leader lock, config watcher, indexing queue,
// and search engine into a single local multi-tenant retrieval service.
package ragling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ragling/ragling/auth"
	"github.com/ragling/ragling/bridge"
	"github.com/ragling/ragling/chunker"
	"github.com/ragling/ragling/config"
	"github.com/ragling/ragling/dispatch"
	"github.com/ragling/ragling/docstore"
	"github.com/ragling/ragling/embedclient"
	"github.com/ragling/ragling/leader"
	"github.com/ragling/ragling/pathmap"
	"github.com/ragling/ragling/progress"
	"github.com/ragling/ragling/queue"
	"github.com/ragling/ragling/search"
)

// LeaderRetryInterval is how often a follower retries acquiring the
// group lock.
const LeaderRetryInterval = 5 * time.Second

// Embedding batching and retry tuning for Engine.ProcessPath. A batch
// caps how many chunk texts go into one request to the embedding
// service; a persistent connection failure after embedMaxRetries is
// treated as a skip, not a fatal error, so one unreachable host doesn't
// wedge the indexing queue.
const (
	embedBatchSize    = 16
	embedMaxRetries   = 3
	embedRetryBackoff = 500 * time.Millisecond
)

// Engine is the top-level entry point: it owns the leader lock, the
// config watcher, the persistence layer, the search engine, and — on
// the leader — the indexing queue.
type Engine struct {
	lock     *leader.Lock
	watcher  *config.Watcher
	store    *docstore.Store
	embed    *embedclient.Client
	search   *search.Engine
	progress *progress.Tracker
	queue    *queue.Queue

	queryLogPath string
}

// Result is the response shape for one search hit.
type Result = search.Result

// New opens the group's database, starts the config watcher, and
// attempts leader election. On the leader, callers are expected to
// additionally build an indexing queue around ProcessPath and wire it
// with AttachQueue (cmd/raglingd does this in startIndexing); followers
// only ever serve search.
func New(configPath, queryLogPath string) (*Engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	store, err := docstore.Open(cfg.IndexDBPath, cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	embed := embedclient.New(cfg.EmbeddingServiceHost, cfg.EmbeddingModel)
	searchEngine := search.New(store, embed, queryLogPath)

	e := &Engine{
		lock:         leader.New(cfg.LockPath()),
		store:        store,
		embed:        embed,
		search:       searchEngine,
		progress:     &progress.Tracker{},
		queryLogPath: queryLogPath,
	}

	e.watcher = config.NewWatcher(cfg, configPath, config.DefaultDebounce, nil)

	isLeader, err := e.lock.TryAcquire()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("acquiring leader lock: %w", err)
	}
	if !isLeader {
		e.lock.StartRetry(LeaderRetryInterval, func() {})
	}

	return e, nil
}

// IsLeader reports whether this process currently holds the group lock.
func (e *Engine) IsLeader() bool {
	return e.lock.IsLeader()
}

// Config returns the current configuration snapshot.
func (e *Engine) Config() config.Config {
	return e.watcher.Get()
}

// Progress returns the current indexing-status snapshot.
func (e *Engine) Progress() progress.Snapshot {
	snap, _ := e.progress.Snapshot()
	return snap
}

// AttachQueue wires an indexing queue onto the engine. Only meaningful
// on the leader; callers should check IsLeader first.
func (e *Engine) AttachQueue(q *queue.Queue) {
	e.queue = q
}

// Search authenticates apiKey, resolves the caller's visible collection
// set, and runs a hybrid search restricted to it.
func (e *Engine) Search(ctx context.Context, apiKey, query string, k int) ([]Result, error) {
	cfg := e.watcher.Get()

	users := make(map[string]auth.UserRecord, len(cfg.Users))
	for id, u := range cfg.Users {
		users[id] = auth.UserRecord{
			APIKey:            u.APIKey,
			SystemCollections: u.SystemCollections,
			PathMappings:      u.PathMappings,
		}
	}

	userCtx := auth.Resolve(apiKey, users)
	if userCtx == nil {
		return nil, ErrUnauthorized
	}

	collections := userCtx.VisibleCollections(cfg.GlobalCollection)
	mappings := pathmap.Mappings(userCtx.PathMappings)

	results, err := e.search.Search(ctx, search.Request{
		Query:        query,
		Collections:  collections,
		K:            k,
		PathMappings: mappings,
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Store exposes the persistence layer for the indexing queue's process
// callback and for diagnostic access.
func (e *Engine) Store() *docstore.Store { return e.store }

// Embed exposes the embedding client for the indexing queue's process
// callback.
func (e *Engine) Embed() *embedclient.Client { return e.embed }

// ProgressTracker exposes the progress tracker for the indexing queue's
// process callback.
func (e *Engine) ProgressTracker() *progress.Tracker { return e.progress }

// ConfigWatcher returns a callback that triggers a debounced config reload,
// suitable for wiring to an fsnotify watcher on the config file. Returns nil
// if the engine has no watcher (never the case for an Engine built via New).
func (e *Engine) ConfigWatcher() func() {
	if e.watcher == nil {
		return nil
	}
	return e.watcher.NotifyChange
}

// collectionForPath returns the first path component of path relative to
// root: the per-user collection a discovered file belongs to. It returns
// "" when path is not below root.
func collectionForPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return ""
	}
	parts := strings.SplitN(filepath.ToSlash(rel), "/", 2)
	if parts[0] == ".." || parts[0] == "." {
		return ""
	}
	return parts[0]
}

// ProcessPath runs the indexer dispatch -> bridge -> chunker -> embed ->
// upsert sequence for a single file path, decrementing the progress tracker
// whether it succeeds, fails, or is skipped as unrecognised. It is the
// queue.ProcessFunc driving the leader's indexing queue; on a follower it
// returns ErrNotLeader without touching the store.
func (e *Engine) ProcessPath(ctx context.Context, path string) error {
	defer e.progress.Decrement()

	if !e.IsLeader() {
		return ErrNotLeader
	}

	cfg := e.watcher.Get()
	collection := collectionForPath(cfg.GroupRoot, path)
	if collection == "" {
		return fmt.Errorf("resolving collection for %s: outside group root", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return e.store.DeleteDocument(ctx, collection, path)
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil
	}

	sourceType := dispatch.DetectFileType(path)
	docs, err := dispatch.ForType(sourceType).Index(ctx, path, collection)
	if err != nil {
		return fmt.Errorf("indexing %s: %w", path, err)
	}

	for _, d := range docs {
		if err := e.indexDocument(ctx, cfg, collection, info, d); err != nil {
			return err
		}
	}
	return nil
}

// indexDocument bridges, chunks, embeds, and persists a single indexer
// output. A persistent embedding-service outage logs and skips the
// document instead of failing the whole ingest pass.
func (e *Engine) indexDocument(ctx context.Context, cfg config.Config, collection string, info os.FileInfo, d dispatch.Document) error {
	ext := strings.ToLower(filepath.Ext(d.SourcePath))
	var doc *bridge.Document
	if ext == ".md" || ext == ".markdown" {
		doc = bridge.FromMarkdown(d.Content, d.Title)
	} else {
		doc = bridge.FromPlaintext(d.Content, d.Title)
	}

	docID, unchanged, err := e.store.UpsertDocument(ctx, docstore.Document{
		Collection: collection,
		SourcePath: d.SourcePath,
		Title:      d.Title,
		SourceType: string(d.SourceType),
		Digest:     d.Digest,
		MTime:      info.ModTime(),
		ConfigHash: cfg.Hash(),
	})
	if err != nil {
		return fmt.Errorf("upserting document %s: %w", d.SourcePath, err)
	}
	if unchanged {
		return nil
	}

	extraMeta := map[string]string{"source_type": string(d.SourceType)}
	for k, v := range d.ExtraMetadata {
		extraMeta[k] = v
	}

	chunks := chunker.New(chunker.Config{
		MaxTokens: cfg.Defaults.ChunkSizeTokens,
		Overlap:   cfg.Defaults.ChunkOverlapTokens,
	}).Chunk(doc, extraMeta)
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := e.embedBatched(ctx, texts)
	if err != nil {
		var connErr *embedclient.ConnectionError
		if errors.As(err, &connErr) {
			slog.Error("embedding service persistently unreachable, skipping document",
				"path", d.SourcePath, "host", connErr.Host, "error", err)
			return nil
		}
		return fmt.Errorf("embedding %s: %w", d.SourcePath, err)
	}

	storeChunks := make([]docstore.Chunk, len(chunks))
	for i, c := range chunks {
		metaJSON := ""
		if len(c.Metadata) > 0 {
			b, err := json.Marshal(c.Metadata)
			if err == nil {
				metaJSON = string(b)
			}
		}
		storeChunks[i] = docstore.Chunk{
			ChunkIndex: i,
			Content:    c.Text,
			TokenCount: c.TokenCount,
			Metadata:   metaJSON,
		}
	}

	if err := e.store.InsertChunks(ctx, docID, storeChunks, vectors); err != nil {
		return fmt.Errorf("inserting chunks for %s: %w", d.SourcePath, err)
	}
	return nil
}

// embedBatched splits texts into fixed-size batches and embeds each in
// turn, so one oversized document never lands in a single request to the
// embedding service.
func (e *Engine) embedBatched(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.embedWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// embedWithRetry retries a single batch on a connection failure with
// bounded exponential backoff. Non-connection errors (bad model, a
// malformed response) are not retried.
func (e *Engine) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= embedMaxRetries; attempt++ {
		vectors, err := e.embed.Embed(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		var connErr *embedclient.ConnectionError
		if !errors.As(err, &connErr) {
			return nil, err
		}
		if attempt == embedMaxRetries {
			break
		}

		backoff := embedRetryBackoff * time.Duration(1<<attempt)
		slog.Warn("embedding service unreachable, retrying",
			"host", connErr.Host, "attempt", attempt+1, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, lastErr
}

// Close stops the config watcher and the indexing queue (if attached),
// releases the leader lock, and closes the store.
func (e *Engine) Close() error {
	e.watcher.Stop()
	if e.queue != nil {
		e.queue.Stop(30 * time.Second)
	}
	if err := e.lock.Close(); err != nil {
		e.store.Close()
		return err
	}
	return e.store.Close()
}
