// Package search implements hybrid retrieval: concurrent fan-out over
// the vector store and keyword index, Reciprocal Rank Fusion of the
// ranked lists, and an optional cross-encoder rerank pass.
package search

// Mode selects which retrieval sources run.
type Mode string

// Search modes.
const (
	// ModeHybrid runs vector and keyword search concurrently and fuses.
	ModeHybrid Mode = "hybrid"
	// ModeSemantic runs vector search only.
	ModeSemantic Mode = "semantic"
	// ModeKeyword runs keyword search only.
	ModeKeyword Mode = "keyword"
)

// DefaultTopK is the default result count.
const DefaultTopK = 10

// DefaultRerankDepth bounds the rerank shortlist.
const DefaultRerankDepth = 20

// Options controls one search call.
type Options struct {
	// TopK is the maximum number of hits returned.
	TopK int

	// MinScore drops hits whose final score is below it.
	MinScore float64

	// Filters are exact-match metadata constraints applied in both
	// sources.
	Filters map[string]string

	// Mode selects the retrieval sources.
	Mode Mode

	// Rerank enables the cross-encoder pass over the fused shortlist.
	Rerank bool
}

// withDefaults fills unset fields.
func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.Mode == "" {
		o.Mode = ModeHybrid
	}
	return o
}

// Hit is one retrieval result. Raw per-source scores live on different
// scales (cosine similarity vs lexical relevance) and are never compared
// directly; rank is the fusion currency.
type Hit struct {
	ChunkID    string
	DocumentID string
	Content    string
	Metadata   map[string]string

	// Score is the final score: fused, or the rerank score when the
	// rerank pass ran.
	Score float64

	// Per-source scores and 1-based ranks. Zero rank means the source
	// did not return this chunk.
	VecScore     float64
	VecRank      int
	KeywordScore float64
	KeywordRank  int
}

// Result is the outcome of one search call. Notes record degraded
// sources (a failed backend, a skipped rerank) without failing the
// query.
type Result struct {
	Hits  []*Hit
	Notes []string
}
