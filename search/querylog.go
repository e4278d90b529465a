package search

import (
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

// LoggedResult is one search result as recorded in the query log.
type LoggedResult struct {
	Rank       int     `json:"rank"`
	Title      string  `json:"title"`
	SourcePath string  `json:"source_path"`
	SourceType string  `json:"source_type"`
	Collection string  `json:"collection"`
	RRFScore   float64 `json:"rrf_score"`
}

type queryLogEntry struct {
	QueryID    string          `json:"query_id"`
	Timestamp  string          `json:"timestamp"`
	Query      string          `json:"query"`
	Filters    map[string]any  `json:"filters"`
	TopK       int             `json:"top_k"`
	Results    []LoggedResult  `json:"results"`
	DurationMS float64         `json:"duration_ms"`
}

// logQuery appends one JSONL entry to path, opening with append+create
// flags and fsyncing after the write so concurrent writers and `tail -f`
// readers are both safe without a user-space mutex. Failures are logged
// and otherwise ignored — telemetry never fails a search.
func logQuery(path, query string, filters map[string]any, topK int, results []LoggedResult, duration time.Duration) {
	if path == "" {
		return
	}

	cleanFilters := make(map[string]any, len(filters))
	for k, v := range filters {
		if v != nil {
			cleanFilters[k] = v
		}
	}

	entry := queryLogEntry{
		QueryID:    uuid.NewString(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Query:      query,
		Filters:    cleanFilters,
		TopK:       topK,
		Results:    results,
		DurationMS: roundMS(duration),
	}

	line, err := json.Marshal(entry)
	if err != nil {
		slog.Warn("query log marshal failed", "error", err)
		return
	}
	line = append(line, '\n')

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		slog.Warn("query log open failed", "path", path, "error", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		slog.Warn("query log write failed", "path", path, "error", err)
		return
	}
	if err := f.Sync(); err != nil {
		slog.Warn("query log fsync failed", "path", path, "error", err)
	}
}

func roundMS(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
