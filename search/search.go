// Package search implements the hybrid lexical+vector search engine:
// fixed-order visible-collection filtering, FTS5 escaping, Reciprocal
// Rank Fusion, chunk hydration, path/URI translation, and append-only
// query telemetry.
package search

import (
	"context"
	"sync"
	"time"

	"github.com/ragling/ragling/docstore"
	"github.com/ragling/ragling/embedclient"
	"github.com/ragling/ragling/pathmap"
)

// minFanout is the floor on how many lexical/vector hits to request
// before fusing, regardless of the caller's requested k.
const minFanout = 60

// Result is one hydrated, translated search hit.
type Result struct {
	Title      string
	SourcePath string
	SourceURI  *string
	SourceType string
	Collection string
	RRFScore   float64
	Text       string
	Metadata   string
}

// Request describes a single search call.
type Request struct {
	Query        string
	Collections  []string
	K            int
	PathMappings pathmap.Mappings
}

// Engine ties the persistence layer, the embedding client, and query
// telemetry together behind a single Search call.
type Engine struct {
	store        *docstore.Store
	embed        *embedclient.Client
	queryLogPath string
}

// New returns an Engine. queryLogPath may be empty to disable telemetry.
func New(store *docstore.Store, embed *embedclient.Client, queryLogPath string) *Engine {
	return &Engine{store: store, embed: embed, queryLogPath: queryLogPath}
}

// Search runs a hybrid lexical+vector search restricted to req.Collections,
// fuses the two rankings with RRF, hydrates the top K, translates paths
// through mappings, and appends a query log entry.
func (e *Engine) Search(ctx context.Context, req Request) ([]Result, error) {
	start := time.Now()

	k := req.K
	if k <= 0 {
		k = minFanout
	}
	fanout := k
	if fanout < minFanout {
		fanout = minFanout
	}

	phrase := EscapeFTSQuery(req.Query)

	var (
		lexicalHits []docstore.LexicalHit
		vectorHits  []docstore.VectorHit
		lexErr      error
		vecErr      error
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if phrase == "" {
			return
		}
		lexicalHits, lexErr = e.store.SearchLexical(ctx, req.Collections, phrase, fanout)
	}()
	go func() {
		defer wg.Done()
		vectors, err := e.embed.Embed(ctx, []string{req.Query})
		if err != nil {
			vecErr = err
			return
		}
		if len(vectors) == 0 {
			return
		}
		vectorHits, vecErr = e.store.SearchVector(ctx, req.Collections, vectors[0], fanout)
	}()
	wg.Wait()

	if lexErr != nil {
		return nil, lexErr
	}
	if vecErr != nil {
		return nil, vecErr
	}

	lexRanked := make([]rankedID, len(lexicalHits))
	for i, h := range lexicalHits {
		lexRanked[i] = rankedID{ChunkID: h.ChunkID}
	}
	vecRanked := make([]rankedID, len(vectorHits))
	for i, h := range vectorHits {
		vecRanked[i] = rankedID{ChunkID: h.ChunkID}
	}

	fusedIDs, scores := fuseRRF(lexRanked, vecRanked)
	if len(fusedIDs) > k {
		fusedIDs = fusedIDs[:k]
	}

	rows, err := e.store.FetchChunks(ctx, fusedIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]docstore.ChunkWithDocument, len(rows))
	for _, r := range rows {
		byID[r.ChunkID] = r
	}

	results := make([]Result, 0, len(fusedIDs))
	logged := make([]LoggedResult, 0, len(fusedIDs))
	for rank, id := range fusedIDs {
		row, ok := byID[id]
		if !ok {
			continue
		}
		sourcePath := pathmap.Forward(row.SourcePath, req.PathMappings)
		uri := "file://" + row.SourcePath
		sourceURI := pathmap.ForwardURI(&uri, req.PathMappings)

		results = append(results, Result{
			Title:      row.Title,
			SourcePath: sourcePath,
			SourceURI:  sourceURI,
			SourceType: row.SourceType,
			Collection: row.Collection,
			RRFScore:   scores[id],
			Text:       row.Content,
			Metadata:   row.Metadata,
		})
		logged = append(logged, LoggedResult{
			Rank:       rank,
			Title:      row.Title,
			SourcePath: sourcePath,
			SourceType: row.SourceType,
			Collection: row.Collection,
			RRFScore:   scores[id],
		})
	}

	logQuery(e.queryLogPath, req.Query, map[string]any{"collections": req.Collections}, k, logged, time.Since(start))

	return results, nil
}
