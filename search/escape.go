package search

import "strings"

// EscapeFTSQuery treats the entire input as one literal search phrase:
// internal double-quotes are doubled and the result is wrapped in
// double quotes per SQLite FTS5's string literal syntax (section 3.1).
// An empty (or whitespace-only) query escapes to "".
func EscapeFTSQuery(query string) string {
	stripped := strings.TrimSpace(query)
	if stripped == "" {
		return ""
	}
	escaped := strings.ReplaceAll(stripped, `"`, `""`)
	return `"` + escaped + `"`
}
