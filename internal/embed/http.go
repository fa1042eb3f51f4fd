package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// HTTP embedder defaults (Ollama-compatible API).
const (
	DefaultHTTPHost  = "http://localhost:11434"
	DefaultHTTPModel = "nomic-embed-text"
)

// HTTPConfig configures the HTTP embedder.
type HTTPConfig struct {
	// Host is the base URL of the embedding server.
	Host string

	// Model is the embedding model name.
	Model string

	// Dimensions is the expected vector dimension. Zero means detect
	// from the first response.
	Dimensions int

	// BatchSize is the maximum texts per request.
	BatchSize int

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// MaxRetries is the retry budget for transient failures.
	MaxRetries int

	// SkipHealthCheck skips the availability probe during construction.
	SkipHealthCheck bool
}

// HTTPEmbedder generates embeddings through an Ollama-compatible
// /api/embed endpoint.
type HTTPEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    HTTPConfig

	mu     sync.RWMutex
	dims   int
	closed bool
}

var _ Embedder = (*HTTPEmbedder)(nil)

// NewHTTPEmbedder creates an HTTP embedder and probes the backend unless
// the health check is skipped.
func NewHTTPEmbedder(ctx context.Context, cfg HTTPConfig) (*HTTPEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultHTTPHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultHTTPModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	transport := &http.Transport{
		MaxIdleConns:        8,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     10 * time.Second,
	}

	// Per-request context timeouts are used instead of http.Client.Timeout
	// so caller deadlines always win.
	e := &HTTPEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		probeCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		if !e.Available(probeCtx) {
			transport.CloseIdleConnections()
			return nil, fmt.Errorf("embedding server unreachable at %s", cfg.Host)
		}
	}

	return e, nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed generates an embedding for a single text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vecs))
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts, splitting into
// request-sized batches and retrying transient failures with backoff.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		var batch [][]float32
		retryCfg := DefaultRetryConfig()
		retryCfg.MaxRetries = e.config.MaxRetries
		err := WithBackoff(ctx, retryCfg, func() error {
			var reqErr error
			batch, reqErr = e.request(ctx, texts[start:end])
			return reqErr
		})
		if err != nil {
			return nil, err
		}
		results = append(results, batch...)
	}

	e.rememberDimensions(results)
	return results, nil
}

func (e *HTTPEmbedder) request(ctx context.Context, input []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.config.Model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embed request returned %d: %s", resp.StatusCode, string(data))
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(parsed.Embeddings) != len(input) {
		return nil, fmt.Errorf("embed response count mismatch: want %d, got %d",
			len(input), len(parsed.Embeddings))
	}

	return parsed.Embeddings, nil
}

func (e *HTTPEmbedder) rememberDimensions(vecs [][]float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dims == 0 && len(vecs) > 0 {
		e.dims = len(vecs[0])
	}
}

// Dimensions returns the embedding dimension (0 until first response when
// not configured explicitly).
func (e *HTTPEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the model identifier.
func (e *HTTPEmbedder) ModelName() string { return e.config.Model }

// Available probes the backend's tags endpoint.
func (e *HTTPEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close releases HTTP connections.
func (e *HTTPEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
