package search

import (
	"context"
)

// Reranker reorders a shortlist of hits by query relevance. It is a
// precision pass over already-retrieved candidates, never a recall
// mechanism.
type Reranker interface {
	// Rerank returns the hits reordered best-first with Score replaced
	// by the reranker's relevance score.
	Rerank(ctx context.Context, query string, hits []*Hit) ([]*Hit, error)

	// Name identifies the reranker in logs and notes.
	Name() string

	// Available checks if the reranker backend is ready.
	Available(ctx context.Context) bool
}

// NoopReranker keeps the fused ordering. Used when reranking is
// disabled by configuration.
type NoopReranker struct{}

var _ Reranker = (*NoopReranker)(nil)

func (NoopReranker) Rerank(_ context.Context, _ string, hits []*Hit) ([]*Hit, error) {
	return hits, nil
}

func (NoopReranker) Name() string { return "noop" }

func (NoopReranker) Available(_ context.Context) bool { return true }
