package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quarrydocs/quarry/internal/embed"
	qerrors "github.com/quarrydocs/quarry/internal/errors"
	"github.com/quarrydocs/quarry/internal/store"
)

// Config configures the search engine.
type Config struct {
	// TopK is the default result count when options leave it unset.
	TopK int

	// RRFConstant is the smoothing constant for rank fusion.
	RRFConstant int

	// MinSourceScore drops per-source hits below it before fusion.
	MinSourceScore float64

	// RerankDepth bounds the rerank shortlist.
	RerankDepth int

	// Timeout bounds one search call end to end. Zero means no limit
	// beyond the caller's context.
	Timeout time.Duration
}

// Deps are the capabilities the engine queries.
type Deps struct {
	Embedder embed.Embedder
	Vectors  store.VectorStore
	Keywords store.KeywordIndex
	Metadata store.MetadataStore
	Reranker Reranker
	Logger   *slog.Logger
}

// Engine orchestrates hybrid retrieval. The two sources fail
// independently: one down source contributes an empty list and a note;
// the query only fails when every active source fails, or on
// cancellation.
type Engine struct {
	cfg  Config
	deps Deps
}

// NewEngine creates a search engine.
func NewEngine(cfg Config, deps Deps) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.RRFConstant <= 0 {
		cfg.RRFConstant = DefaultRRFConstant
	}
	if cfg.RerankDepth <= 0 {
		cfg.RerankDepth = DefaultRerankDepth
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Engine{cfg: cfg, deps: deps}
}

// Search runs one retrieval call. An empty or whitespace query returns
// an empty result without touching the embedder or either index.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if opts.TopK <= 0 {
		opts.TopK = e.cfg.TopK
	}

	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return &Result{Hits: []*Hit{}}, nil
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	// Fetch deep enough for fusion and the rerank shortlist.
	depth := opts.TopK
	if opts.Rerank && e.cfg.RerankDepth > depth {
		depth = e.cfg.RerankDepth
	}

	runVec := opts.Mode != ModeKeyword
	runKw := opts.Mode != ModeSemantic

	var (
		vecResults []*store.VectorResult
		kwResults  []*store.KeywordResult
		vecErr     error
		kwErr      error
	)

	// Both sources always run to completion; degradation is decided
	// after the barrier, so errors are captured rather than returned.
	g, gctx := errgroup.WithContext(ctx)
	if runVec {
		g.Go(func() error {
			vecResults, vecErr = e.vectorSearch(gctx, trimmed, depth, opts.Filters)
			return nil
		})
	}
	if runKw {
		g.Go(func() error {
			kwResults, kwErr = e.deps.Keywords.Search(gctx, trimmed, depth, opts.Filters)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return nil, qerrors.Cancelled("search cancelled", ctx.Err())
	}

	result := &Result{Hits: []*Hit{}}
	failed := 0
	active := 0
	if runVec {
		active++
		if vecErr != nil {
			failed++
			result.Notes = append(result.Notes, fmt.Sprintf("vector source unavailable: %v", vecErr))
			e.deps.Logger.Warn("search_source_failed",
				slog.String("source", "vector"),
				slog.String("error", vecErr.Error()))
		}
	}
	if runKw {
		active++
		if kwErr != nil {
			failed++
			result.Notes = append(result.Notes, fmt.Sprintf("keyword source unavailable: %v", kwErr))
			e.deps.Logger.Warn("search_source_failed",
				slog.String("source", "keyword"),
				slog.String("error", kwErr.Error()))
		}
	}
	if failed == active {
		cause := vecErr
		if cause == nil {
			cause = kwErr
		}
		return nil, qerrors.Source("all", cause)
	}

	hits := e.assemble(ctx, opts.Mode, vecResults, kwResults, result)

	if opts.Rerank && e.deps.Reranker != nil {
		hits = e.rerank(ctx, trimmed, hits, result)
	}

	// Final score threshold and truncation.
	final := make([]*Hit, 0, opts.TopK)
	for _, hit := range hits {
		if hit.Score < opts.MinScore {
			continue
		}
		final = append(final, hit)
		if len(final) == opts.TopK {
			break
		}
	}
	result.Hits = final
	return result, nil
}

// vectorSearch embeds the query and runs nearest-neighbor search,
// dropping hits below the per-source floor.
func (e *Engine) vectorSearch(ctx context.Context, query string, k int, filters map[string]string) ([]*store.VectorResult, error) {
	vec, err := e.deps.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	results, err := e.deps.Vectors.Search(ctx, vec, k, filters)
	if err != nil {
		return nil, err
	}
	if e.cfg.MinSourceScore <= 0 {
		return results, nil
	}
	kept := results[:0]
	for _, r := range results {
		if r.Score >= e.cfg.MinSourceScore {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

// Source names used in fusion rank maps.
const (
	sourceVector  = "vector"
	sourceKeyword = "keyword"
)

// assemble orders candidates (fused for hybrid, source order otherwise)
// and enriches them from the metadata store.
func (e *Engine) assemble(ctx context.Context, mode Mode, vecResults []*store.VectorResult, kwResults []*store.KeywordResult, result *Result) []*Hit {
	vecScores := make(map[string]float64, len(vecResults))
	vecRanks := make(map[string]int, len(vecResults))
	vecIDs := make([]string, len(vecResults))
	for i, r := range vecResults {
		vecIDs[i] = r.ID
		vecScores[r.ID] = r.Score
		vecRanks[r.ID] = i + 1
	}
	kwScores := make(map[string]float64, len(kwResults))
	kwRanks := make(map[string]int, len(kwResults))
	kwIDs := make([]string, len(kwResults))
	for i, r := range kwResults {
		kwIDs[i] = r.ID
		kwScores[r.ID] = r.Score
		kwRanks[r.ID] = i + 1
	}

	type candidate struct {
		id    string
		score float64
	}
	var ordered []candidate
	switch mode {
	case ModeSemantic:
		for _, id := range vecIDs {
			ordered = append(ordered, candidate{id, vecScores[id]})
		}
	case ModeKeyword:
		for _, id := range kwIDs {
			ordered = append(ordered, candidate{id, kwScores[id]})
		}
	default:
		fused := Fuse(e.cfg.RRFConstant,
			RankedList{Source: sourceVector, IDs: vecIDs},
			RankedList{Source: sourceKeyword, IDs: kwIDs})
		for _, fr := range fused {
			ordered = append(ordered, candidate{fr.ID, fr.Score})
		}
	}

	if len(ordered) == 0 {
		return nil
	}

	ids := make([]string, len(ordered))
	for i, c := range ordered {
		ids[i] = c.id
	}
	chunks, err := e.deps.Metadata.GetChunks(ctx, ids)
	if err != nil {
		result.Notes = append(result.Notes, fmt.Sprintf("metadata enrichment failed: %v", err))
		chunks = map[string]*store.Chunk{}
	}

	hits := make([]*Hit, 0, len(ordered))
	for _, c := range ordered {
		hit := &Hit{
			ChunkID:      c.id,
			Score:        c.score,
			VecScore:     vecScores[c.id],
			VecRank:      vecRanks[c.id],
			KeywordScore: kwScores[c.id],
			KeywordRank:  kwRanks[c.id],
		}
		if chunk, ok := chunks[c.id]; ok {
			hit.DocumentID = chunk.DocumentID
			hit.Content = chunk.Content
			hit.Metadata = chunk.Metadata
		}
		hits = append(hits, hit)
	}
	return hits
}

// rerank runs the cross-encoder over the shortlist, falling back to
// fused ordering when the backend is unavailable.
func (e *Engine) rerank(ctx context.Context, query string, hits []*Hit, result *Result) []*Hit {
	if len(hits) == 0 {
		return hits
	}

	depth := e.cfg.RerankDepth
	if depth > len(hits) {
		depth = len(hits)
	}
	shortlist := hits[:depth]

	reranked, err := e.deps.Reranker.Rerank(ctx, query, shortlist)
	if err != nil {
		result.Notes = append(result.Notes,
			fmt.Sprintf("rerank unavailable, using fused order: %v", err))
		e.deps.Logger.Warn("rerank_failed",
			slog.String("reranker", e.deps.Reranker.Name()),
			slog.String("error", err.Error()))
		return hits
	}

	return append(reranked, hits[depth:]...)
}
