package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ragling/ragling"
)

type handler struct {
	engine *ragling.Engine
}

func newHandler(e *ragling.Engine) *handler {
	return &handler{engine: e}
}

type searchResultPayload struct {
	Title      string          `json:"title"`
	SourcePath string          `json:"source_path"`
	SourceURI  *string         `json:"source_uri,omitempty"`
	SourceType string          `json:"source_type"`
	Collection string          `json:"collection"`
	RRFScore   float64         `json:"rrf_score"`
	Text       string          `json:"text"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

type searchResponse struct {
	Results  []searchResultPayload `json:"results"`
	Progress *progressPayload      `json:"progress,omitempty"`
}

type progressPayload struct {
	Remaining int `json:"remaining"`
}

// POST /search
func (h *handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	apiKey := bearerToken(r.Header.Get("Authorization"))

	var req struct {
		Query string `json:"query"`
		K     int    `json:"k,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	results, err := h.engine.Search(ctx, apiKey, req.Query, req.K)
	if errors.Is(err, ragling.ErrUnauthorized) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		slog.Error("search error", "error", err)
		return
	}

	payload := searchResponse{Results: make([]searchResultPayload, len(results))}
	for i, res := range results {
		var metadata json.RawMessage
		if res.Metadata != "" {
			metadata = json.RawMessage(res.Metadata)
		}
		payload.Results[i] = searchResultPayload{
			Title:      res.Title,
			SourcePath: res.SourcePath,
			SourceURI:  res.SourceURI,
			SourceType: res.SourceType,
			Collection: res.Collection,
			RRFScore:   res.RRFScore,
			Text:       res.Text,
			Metadata:   metadata,
		}
	}
	if snap := h.engine.Progress(); snap.Active {
		payload.Progress = &progressPayload{Remaining: snap.Remaining}
	}

	writeJSON(w, http.StatusOK, payload)
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"leader": h.engine.IsLeader(),
	})
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
