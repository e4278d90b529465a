// Package embedclient talks to the embedding service's HTTP API:
// batched embedding and a lightweight status probe.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout tolerates cold model loads on the embedding service.
const DefaultTimeout = 5 * time.Minute

// ConnectionError means the embedding service could not be reached at
// all (as opposed to responding with an error status). It carries the
// host so callers can format a useful message and so the indexing queue
// can recognise it as retryable.
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("embedding service unreachable at %s: %v", e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ModelStatus is one entry in a status response.
type ModelStatus struct {
	Name     string `json:"name"`
	SizeVRAM int64  `json:"size_vram"`
}

// Client is an HTTP client for the embedding service's native API.
type Client struct {
	host       string
	model      string
	httpClient *http.Client
}

// New returns a Client targeting host (e.g. "http://localhost:11434")
// using model for embed requests.
func New(host, model string) *Client {
	return &Client{
		host:       strings.TrimRight(host, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns one embedding vector per input text, in order. Connection
// failures are returned as *ConnectionError so callers can distinguish
// them from a well-formed error response.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshalling embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.wrapConnErr(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decoding embed response: %w", err)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed response returned %d vectors for %d inputs", len(parsed.Embeddings), len(texts))
	}
	return parsed.Embeddings, nil
}

type statusResponse struct {
	Models []ModelStatus `json:"models"`
}

// Status probes the embedding service's loaded-model list.
func (c *Client) Status(ctx context.Context) ([]ModelStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/ps", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.wrapConnErr(err)
	}
	defer resp.Body.Close()

	var parsed statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding status response: %w", err)
	}
	return parsed.Models, nil
}

func (c *Client) wrapConnErr(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || isConnRefused(err) {
		return &ConnectionError{Host: c.host, Err: err}
	}
	return err
}

func isConnRefused(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "no such host") ||
		strings.Contains(err.Error(), "context deadline exceeded")
}
