// Package docstore is the persistence layer: a single embedded SQLite
// database combining a relational schema, an FTS5 lexical index, and a
// sqlite-vec vector index, behind a narrow upsert/search/fetch surface.
package docstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// Document is a row in the documents table.
type Document struct {
	ID         int64
	Collection string
	SourcePath string
	Title      string
	SourceType string
	Digest     string
	MTime      time.Time
	ConfigHash string
}

// Chunk is a chunk ready for insertion: its text is already
// contextualised (ancestral headings prefixed) by the chunker.
type Chunk struct {
	ChunkIndex int
	Content    string
	TokenCount int
	Metadata   string // JSON object, or "" for none
}

// LexicalHit is one row from a lexical search.
type LexicalHit struct {
	ChunkID int64
	Score   float64
}

// VectorHit is one row from a vector search.
type VectorHit struct {
	ChunkID  int64
	Distance float64
}

// ChunkWithDocument is a hydrated search result: a chunk plus its
// owning document's identity fields.
type ChunkWithDocument struct {
	ChunkID    int64
	Content    string
	Metadata   string
	Collection string
	SourcePath string
	Title      string
	SourceType string
}

// Store wraps the embedded SQLite database for all ragling persistence.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// Open opens (or creates) a SQLite database at path and initialises the
// schema, including the sqlite-vec and FTS5 virtual tables. embeddingDim
// is fixed for the lifetime of the database file.
func Open(path string, embeddingDim int) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Store{db: db, embeddingDim: embeddingDim}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// EmbeddingDim returns the fixed vector dimensionality for this instance.
func (s *Store) EmbeddingDim() int { return s.embeddingDim }

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// UpsertDocument inserts or replaces the document row identified by
// (collection, sourcePath). If a row with the same key and matching
// digest and configHash already exists, its id is returned and nothing
// is written (unchanged == true). Otherwise the row is replaced and all
// prior chunks/vectors for it are cascade-deleted, ready for InsertChunks.
func (s *Store) UpsertDocument(ctx context.Context, doc Document) (id int64, unchanged bool, err error) {
	var existingID int64
	var existingDigest, existingConfigHash string
	scanErr := s.db.QueryRowContext(ctx,
		`SELECT id, digest, config_hash FROM documents WHERE collection = ? AND source_path = ?`,
		doc.Collection, doc.SourcePath,
	).Scan(&existingID, &existingDigest, &existingConfigHash)

	switch scanErr {
	case nil:
		if existingDigest == doc.Digest && existingConfigHash == doc.ConfigHash {
			return existingID, true, nil
		}
		err = s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `
				UPDATE documents SET title = ?, source_type = ?, digest = ?, mtime = ?,
					config_hash = ?, updated_at = CURRENT_TIMESTAMP
				WHERE id = ?
			`, doc.Title, doc.SourceType, doc.Digest, doc.MTime, doc.ConfigHash, existingID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM vec_chunks WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)`, existingID); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, existingID)
			return err
		})
		return existingID, false, err
	case sql.ErrNoRows:
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO documents (collection, source_path, title, source_type, digest, mtime, config_hash)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, doc.Collection, doc.SourcePath, doc.Title, doc.SourceType, doc.Digest, doc.MTime, doc.ConfigHash)
		if err != nil {
			return 0, false, err
		}
		newID, err := res.LastInsertId()
		return newID, false, err
	default:
		return 0, false, scanErr
	}
}

// InsertChunks atomically writes chunks and their aligned vectors for a
// document: either all rows are written, or none. len(chunks) must equal
// len(vectors).
func (s *Store) InsertChunks(ctx context.Context, documentID int64, chunks []Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("docstore: len(chunks)=%d != len(vectors)=%d", len(chunks), len(vectors))
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		chunkStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (document_id, chunk_index, content, token_count, metadata)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer chunkStmt.Close()

		vecStmt, err := tx.PrepareContext(ctx, `INSERT INTO vec_chunks (chunk_id, embedding) VALUES (?, ?)`)
		if err != nil {
			return err
		}
		defer vecStmt.Close()

		for i, c := range chunks {
			res, err := chunkStmt.ExecContext(ctx, documentID, c.ChunkIndex, c.Content, c.TokenCount, nullIfEmpty(c.Metadata))
			if err != nil {
				return err
			}
			chunkID, err := res.LastInsertId()
			if err != nil {
				return err
			}
			if _, err := vecStmt.ExecContext(ctx, chunkID, serializeFloat32(vectors[i])); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteDocument removes a document and cascades to its chunks and
// vectors in one transaction.
func (s *Store) DeleteDocument(ctx context.Context, collection, sourcePath string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var docID int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM documents WHERE collection = ? AND source_path = ?`, collection, sourcePath).Scan(&docID)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM vec_chunks WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)`, docID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, docID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, docID)
		return err
	})
}

// Prune deletes all rows for a collection.
func (s *Store) Prune(ctx context.Context, collection string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM vec_chunks WHERE chunk_id IN (
				SELECT c.id FROM chunks c JOIN documents d ON d.id = c.document_id WHERE d.collection = ?
			)`, collection); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM chunks WHERE document_id IN (SELECT id FROM documents WHERE collection = ?)
		`, collection); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ?`, collection)
		return err
	})
}

// SearchLexical performs an FTS5 MATCH query restricted to the given
// collections, returning up to k hits ordered by BM25 rank (best first).
func (s *Store) SearchLexical(ctx context.Context, collections []string, queryPhrase string, k int) ([]LexicalHit, error) {
	if queryPhrase == "" || len(collections) == 0 {
		return nil, nil
	}

	placeholders, args := inClause(collections)
	args = append([]any{queryPhrase}, args...)
	args = append(args, k)

	query := fmt.Sprintf(`
		SELECT f.rowid, f.rank
		FROM chunks_fts f
		JOIN chunks c ON c.id = f.rowid
		JOIN documents d ON d.id = c.document_id
		WHERE chunks_fts MATCH ? AND d.collection IN (%s)
		ORDER BY f.rank
		LIMIT ?
	`, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []LexicalHit
	for rows.Next() {
		var h LexicalHit
		var rank float64
		if err := rows.Scan(&h.ChunkID, &rank); err != nil {
			return nil, err
		}
		h.Score = -rank // FTS5 rank is negative; lower (more negative) is better.
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// SearchVector performs a KNN search over vec_chunks restricted to the
// given collections, returning up to k hits ordered by ascending
// distance (best first).
func (s *Store) SearchVector(ctx context.Context, collections []string, queryVector []float32, k int) ([]VectorHit, error) {
	if len(collections) == 0 {
		return nil, nil
	}

	placeholders, collArgs := inClause(collections)
	args := append([]any{serializeFloat32(queryVector), k}, collArgs...)

	query := fmt.Sprintf(`
		SELECT v.chunk_id, v.distance
		FROM vec_chunks v
		JOIN chunks c ON c.id = v.chunk_id
		JOIN documents d ON d.id = c.document_id
		WHERE v.embedding MATCH ? AND k = ? AND d.collection IN (%s)
		ORDER BY v.distance
	`, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []VectorHit
	for rows.Next() {
		var h VectorHit
		if err := rows.Scan(&h.ChunkID, &h.Distance); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// FetchChunks hydrates a set of chunk ids with their owning document's
// identity fields. Order is not guaranteed to match ids.
func (s *Store) FetchChunks(ctx context.Context, ids []int64) ([]ChunkWithDocument, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, len(ids))
	placeholders := ""
	for i, id := range ids {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT c.id, c.content, COALESCE(c.metadata, ''), d.collection, d.source_path, d.title, d.source_type
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.id IN (%s)
	`, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ChunkWithDocument
	for rows.Next() {
		var r ChunkWithDocument
		if err := rows.Scan(&r.ChunkID, &r.Content, &r.Metadata, &r.Collection, &r.SourcePath, &r.Title, &r.SourceType); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func inClause(values []string) (string, []any) {
	placeholders := ""
	args := make([]any, len(values))
	for i, v := range values {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = v
	}
	return placeholders, args
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// serializeFloat32 packs a float32 vector into its little-endian wire
// form, matching the layout sqlite-vec expects for a vec0 float column.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
