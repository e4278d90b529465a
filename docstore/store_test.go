package docstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ragling.db")
	s, err := Open(path, 4)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func vec(values ...float32) []float32 { return values }

func TestUpsertDocumentInsertsNewRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, unchanged, err := s.UpsertDocument(ctx, Document{
		Collection: "notes", SourcePath: "/a.md", Title: "A",
		SourceType: "obsidian", Digest: "d1", MTime: time.Now(), ConfigHash: "c1",
	})
	if err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}
	if unchanged {
		t.Fatal("expected unchanged = false for a new document")
	}
	if id == 0 {
		t.Fatal("expected non-zero id")
	}
}

func TestUpsertDocumentNoOpWhenDigestAndConfigHashUnchanged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := Document{Collection: "notes", SourcePath: "/a.md", Title: "A", SourceType: "obsidian", Digest: "d1", MTime: time.Now(), ConfigHash: "c1"}
	id1, _, err := s.UpsertDocument(ctx, doc)
	if err != nil {
		t.Fatalf("first UpsertDocument() error = %v", err)
	}

	id2, unchanged, err := s.UpsertDocument(ctx, doc)
	if err != nil {
		t.Fatalf("second UpsertDocument() error = %v", err)
	}
	if !unchanged {
		t.Fatal("expected unchanged = true when digest and config_hash match")
	}
	if id1 != id2 {
		t.Fatalf("ids differ: %d vs %d", id1, id2)
	}
}

func TestUpsertDocumentReplacesAndCascadesOnDigestChange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := Document{Collection: "notes", SourcePath: "/a.md", Title: "A", SourceType: "obsidian", Digest: "d1", MTime: time.Now(), ConfigHash: "c1"}
	id, _, err := s.UpsertDocument(ctx, doc)
	if err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}

	if err := s.InsertChunks(ctx, id, []Chunk{{ChunkIndex: 0, Content: "hello world", TokenCount: 2}}, [][]float32{vec(0.1, 0.2, 0.3, 0.4)}); err != nil {
		t.Fatalf("InsertChunks() error = %v", err)
	}

	doc.Digest = "d2"
	id2, unchanged, err := s.UpsertDocument(ctx, doc)
	if err != nil {
		t.Fatalf("re-UpsertDocument() error = %v", err)
	}
	if unchanged {
		t.Fatal("expected unchanged = false after digest change")
	}
	if id2 != id {
		t.Fatalf("expected same document id across replace, got %d vs %d", id2, id)
	}

	hits, err := s.SearchLexical(ctx, []string{"notes"}, `"hello world"`, 10)
	if err != nil {
		t.Fatalf("SearchLexical() error = %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected prior chunks cascade-deleted, got %d hits", len(hits))
	}
}

func TestInsertChunksRejectsMismatchedLengths(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _, err := s.UpsertDocument(ctx, Document{Collection: "notes", SourcePath: "/a.md", Title: "A", SourceType: "obsidian", Digest: "d1", MTime: time.Now(), ConfigHash: "c1"})
	if err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}

	err = s.InsertChunks(ctx, id, []Chunk{{ChunkIndex: 0, Content: "x", TokenCount: 1}}, [][]float32{})
	if err == nil {
		t.Fatal("expected error for mismatched chunk/vector lengths")
	}
}

func TestSearchLexicalMatchesWithinCollection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _, _ := s.UpsertDocument(ctx, Document{Collection: "notes", SourcePath: "/a.md", Title: "A", SourceType: "obsidian", Digest: "d1", MTime: time.Now(), ConfigHash: "c1"})
	if err := s.InsertChunks(ctx, id, []Chunk{
		{ChunkIndex: 0, Content: "the quick brown fox", TokenCount: 4},
		{ChunkIndex: 1, Content: "jumps over the lazy dog", TokenCount: 5},
	}, [][]float32{vec(1, 0, 0, 0), vec(0, 1, 0, 0)}); err != nil {
		t.Fatalf("InsertChunks() error = %v", err)
	}

	hits, err := s.SearchLexical(ctx, []string{"notes"}, `"quick brown"`, 10)
	if err != nil {
		t.Fatalf("SearchLexical() error = %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}

	hits, err = s.SearchLexical(ctx, []string{"other"}, `"quick brown"`, 10)
	if err != nil {
		t.Fatalf("SearchLexical() error = %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected 0 hits outside collection, got %d", len(hits))
	}
}

func TestSearchVectorReturnsNearestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _, _ := s.UpsertDocument(ctx, Document{Collection: "notes", SourcePath: "/a.md", Title: "A", SourceType: "obsidian", Digest: "d1", MTime: time.Now(), ConfigHash: "c1"})
	if err := s.InsertChunks(ctx, id, []Chunk{
		{ChunkIndex: 0, Content: "near", TokenCount: 1},
		{ChunkIndex: 1, Content: "far", TokenCount: 1},
	}, [][]float32{vec(1, 0, 0, 0), vec(0, 0, 0, 1)}); err != nil {
		t.Fatalf("InsertChunks() error = %v", err)
	}

	hits, err := s.SearchVector(ctx, []string{"notes"}, vec(1, 0, 0, 0), 2)
	if err != nil {
		t.Fatalf("SearchVector() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Distance > hits[1].Distance {
		t.Fatalf("expected ascending distance order, got %+v", hits)
	}
}

func TestFetchChunksHydratesDocumentFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _, _ := s.UpsertDocument(ctx, Document{Collection: "notes", SourcePath: "/a.md", Title: "A title", SourceType: "obsidian", Digest: "d1", MTime: time.Now(), ConfigHash: "c1"})
	if err := s.InsertChunks(ctx, id, []Chunk{{ChunkIndex: 0, Content: "hello", TokenCount: 1}}, [][]float32{vec(1, 0, 0, 0)}); err != nil {
		t.Fatalf("InsertChunks() error = %v", err)
	}

	hits, err := s.SearchVector(ctx, []string{"notes"}, vec(1, 0, 0, 0), 1)
	if err != nil || len(hits) != 1 {
		t.Fatalf("SearchVector() = %+v, err = %v", hits, err)
	}

	rows, err := s.FetchChunks(ctx, []int64{hits[0].ChunkID})
	if err != nil {
		t.Fatalf("FetchChunks() error = %v", err)
	}
	if len(rows) != 1 || rows[0].Title != "A title" || rows[0].Collection != "notes" {
		t.Fatalf("FetchChunks() = %+v", rows)
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _, _ := s.UpsertDocument(ctx, Document{Collection: "notes", SourcePath: "/a.md", Title: "A", SourceType: "obsidian", Digest: "d1", MTime: time.Now(), ConfigHash: "c1"})
	if err := s.InsertChunks(ctx, id, []Chunk{{ChunkIndex: 0, Content: "hello world", TokenCount: 2}}, [][]float32{vec(1, 0, 0, 0)}); err != nil {
		t.Fatalf("InsertChunks() error = %v", err)
	}

	if err := s.DeleteDocument(ctx, "notes", "/a.md"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}

	hits, err := s.SearchLexical(ctx, []string{"notes"}, `"hello world"`, 10)
	if err != nil {
		t.Fatalf("SearchLexical() error = %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits after delete, got %d", len(hits))
	}
}

func TestDeleteDocumentMissingIsNoOp(t *testing.T) {
	s := newTestStore(t)
	if err := s.DeleteDocument(context.Background(), "notes", "/missing.md"); err != nil {
		t.Fatalf("DeleteDocument() on missing doc error = %v", err)
	}
}

func TestPruneRemovesOnlyTargetCollection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	idA, _, _ := s.UpsertDocument(ctx, Document{Collection: "a", SourcePath: "/a.md", Title: "A", SourceType: "obsidian", Digest: "d1", MTime: time.Now(), ConfigHash: "c1"})
	idB, _, _ := s.UpsertDocument(ctx, Document{Collection: "b", SourcePath: "/b.md", Title: "B", SourceType: "obsidian", Digest: "d1", MTime: time.Now(), ConfigHash: "c1"})
	s.InsertChunks(ctx, idA, []Chunk{{ChunkIndex: 0, Content: "alpha content", TokenCount: 1}}, [][]float32{vec(1, 0, 0, 0)})
	s.InsertChunks(ctx, idB, []Chunk{{ChunkIndex: 0, Content: "beta content", TokenCount: 1}}, [][]float32{vec(0, 1, 0, 0)})

	if err := s.Prune(ctx, "a"); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}

	hitsA, _ := s.SearchLexical(ctx, []string{"a"}, `"alpha content"`, 10)
	hitsB, _ := s.SearchLexical(ctx, []string{"b"}, `"beta content"`, 10)
	if len(hitsA) != 0 {
		t.Fatalf("expected collection a pruned, got %d hits", len(hitsA))
	}
	if len(hitsB) != 1 {
		t.Fatalf("expected collection b untouched, got %d hits", len(hitsB))
	}
}
