package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

// DefaultRerankTimeout bounds one rerank request.
const DefaultRerankTimeout = 30 * time.Second

// HTTPRerankerConfig configures the cross-encoder client.
type HTTPRerankerConfig struct {
	// Endpoint is the rerank server base URL.
	Endpoint string

	// Model is the cross-encoder model name.
	Model string

	// Timeout bounds each request.
	Timeout time.Duration
}

// HTTPReranker scores query/passage pairs through a cross-encoder
// service (Cohere-style /rerank API). The engine falls back to fused
// ordering when the backend is down, so this client reports errors
// rather than degrading silently.
type HTTPReranker struct {
	client *http.Client
	config HTTPRerankerConfig
}

var _ Reranker = (*HTTPReranker)(nil)

// NewHTTPReranker creates a cross-encoder client.
func NewHTTPReranker(cfg HTTPRerankerConfig) *HTTPReranker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRerankTimeout
	}
	return &HTTPReranker{
		client: &http.Client{},
		config: cfg,
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank sends the shortlist to the cross-encoder and returns hits
// reordered by relevance score.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, hits []*Hit) ([]*Hit, error) {
	if len(hits) == 0 {
		return hits, nil
	}

	documents := make([]string, len(hits))
	for i, hit := range hits {
		documents[i] = hit.Content
	}

	body, err := json.Marshal(rerankRequest{
		Model:     r.config.Model,
		Query:     query,
		Documents: documents,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		r.config.Endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("rerank request returned %d: %s", resp.StatusCode, string(data))
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	if len(parsed.Results) != len(hits) {
		return nil, fmt.Errorf("rerank response count mismatch: want %d, got %d",
			len(hits), len(parsed.Results))
	}

	reordered := make([]*Hit, 0, len(hits))
	for _, res := range parsed.Results {
		if res.Index < 0 || res.Index >= len(hits) {
			return nil, fmt.Errorf("rerank response index %d out of range", res.Index)
		}
		hit := *hits[res.Index]
		hit.Score = res.RelevanceScore
		reordered = append(reordered, &hit)
	}
	sort.SliceStable(reordered, func(i, j int) bool {
		return reordered[i].Score > reordered[j].Score
	})

	return reordered, nil
}

// Name identifies the reranker.
func (r *HTTPReranker) Name() string { return "cross-encoder" }

// Available probes the rerank endpoint.
func (r *HTTPReranker) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.config.Endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
