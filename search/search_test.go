package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ragling/ragling/docstore"
	"github.com/ragling/ragling/embedclient"
	"github.com/ragling/ragling/pathmap"
)

func newTestEngine(t *testing.T, queryLogPath string) (*Engine, *docstore.Store) {
	t.Helper()
	store, err := docstore.Open(filepath.Join(t.TempDir(), "ragling.db"), 4)
	if err != nil {
		t.Fatalf("docstore.Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		vectors := make([][]float32, len(req.Input))
		for i := range vectors {
			vectors[i] = []float32{1, 0, 0, 0}
		}
		json.NewEncoder(w).Encode(struct {
			Embeddings [][]float32 `json:"embeddings"`
		}{Embeddings: vectors})
	}))
	t.Cleanup(srv.Close)

	embed := embedclient.New(srv.URL, "test-model")
	return New(store, embed, queryLogPath), store
}

func TestSearchReturnsHydratedResults(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, "")

	docID, _, err := store.UpsertDocument(ctx, docstore.Document{
		Collection: "notes", SourcePath: "/vault/a.md", Title: "A",
		SourceType: "obsidian", Digest: "d1", MTime: time.Now(), ConfigHash: "c1",
	})
	if err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}
	if err := store.InsertChunks(ctx, docID, []docstore.Chunk{
		{ChunkIndex: 0, Content: "the quick brown fox jumps", TokenCount: 5},
	}, [][]float32{{1, 0, 0, 0}}); err != nil {
		t.Fatalf("InsertChunks() error = %v", err)
	}

	results, err := e.Search(ctx, Request{Query: "quick brown fox", Collections: []string{"notes"}, K: 10})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d: %+v", len(results), results)
	}
	if results[0].SourcePath != "/vault/a.md" {
		t.Fatalf("SourcePath = %q", results[0].SourcePath)
	}
}

func TestSearchTranslatesPathsAndURIs(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, "")

	docID, _, _ := store.UpsertDocument(ctx, docstore.Document{
		Collection: "notes", SourcePath: "/host/vault/a.md", Title: "A",
		SourceType: "obsidian", Digest: "d1", MTime: time.Now(), ConfigHash: "c1",
	})
	store.InsertChunks(ctx, docID, []docstore.Chunk{
		{ChunkIndex: 0, Content: "hello searchable content", TokenCount: 3},
	}, [][]float32{{1, 0, 0, 0}})

	mappings := pathmap.Mappings{"/host/": "/container/"}
	results, err := e.Search(ctx, Request{Query: "hello searchable", Collections: []string{"notes"}, K: 10, PathMappings: mappings})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].SourcePath != "/container/vault/a.md" {
		t.Fatalf("SourcePath = %q", results[0].SourcePath)
	}
	if results[0].SourceURI == nil || *results[0].SourceURI != "file:///container/vault/a.md" {
		t.Fatalf("SourceURI = %v", results[0].SourceURI)
	}
}

func TestSearchRestrictsToRequestedCollections(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, "")

	docID, _, _ := store.UpsertDocument(ctx, docstore.Document{
		Collection: "other", SourcePath: "/a.md", Title: "A",
		SourceType: "obsidian", Digest: "d1", MTime: time.Now(), ConfigHash: "c1",
	})
	store.InsertChunks(ctx, docID, []docstore.Chunk{
		{ChunkIndex: 0, Content: "secret content here", TokenCount: 3},
	}, [][]float32{{1, 0, 0, 0}})

	results, err := e.Search(ctx, Request{Query: "secret content", Collections: []string{"notes"}, K: 10})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected 0 results outside visible collections, got %d", len(results))
	}
}

func TestSearchWritesQueryLog(t *testing.T) {
	ctx := context.Background()
	logPath := filepath.Join(t.TempDir(), "queries.jsonl")
	e, store := newTestEngine(t, logPath)

	docID, _, _ := store.UpsertDocument(ctx, docstore.Document{
		Collection: "notes", SourcePath: "/a.md", Title: "A",
		SourceType: "obsidian", Digest: "d1", MTime: time.Now(), ConfigHash: "c1",
	})
	store.InsertChunks(ctx, docID, []docstore.Chunk{
		{ChunkIndex: 0, Content: "logged query content", TokenCount: 3},
	}, [][]float32{{1, 0, 0, 0}})

	if _, err := e.Search(ctx, Request{Query: "logged query", Collections: []string{"notes"}, K: 5}); err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading query log: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected query log to contain at least one line")
	}
}
