// Package chunk splits parsed document text into bounded passages for
// embedding and retrieval. Three strategies are provided: fixed-size
// windowing, recursive separator splitting, and semantic sentence grouping.
package chunk

import (
	"fmt"
)

// Strategy selects a splitting algorithm.
type Strategy string

// Available strategies.
const (
	StrategyFixed     Strategy = "fixed"
	StrategyRecursive Strategy = "recursive"
	StrategySemantic  Strategy = "semantic"
)

// Default chunking parameters.
const (
	DefaultChunkSize = 1200
	DefaultOverlap   = 150

	// DefaultSimilarityThreshold is the cosine-similarity boundary for
	// semantic grouping.
	DefaultSimilarityThreshold = 0.72
)

// DefaultSeparators are tried in order by the recursive splitter, coarsest
// first.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " "}

// Options configures a splitter. Zero values fall back to defaults.
type Options struct {
	// Strategy selects the splitting algorithm.
	Strategy Strategy

	// ChunkSize is the target maximum passage length in runes.
	ChunkSize int

	// Overlap is the number of runes shared between consecutive fixed
	// windows.
	Overlap int

	// Separators is the priority-ordered separator list for the recursive
	// strategy.
	Separators []string

	// SimilarityThreshold is the cosine boundary below which the semantic
	// strategy starts a new passage.
	SimilarityThreshold float64
}

// withDefaults fills unset fields.
func (o Options) withDefaults() Options {
	if o.Strategy == "" {
		o.Strategy = StrategyRecursive
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	if len(o.Separators) == 0 {
		o.Separators = DefaultSeparators
	}
	if o.SimilarityThreshold <= 0 {
		o.SimilarityThreshold = DefaultSimilarityThreshold
	}
	return o
}

// Validate checks option consistency.
func (o Options) Validate() error {
	o = o.withDefaults()
	switch o.Strategy {
	case StrategyFixed, StrategyRecursive, StrategySemantic:
	default:
		return fmt.Errorf("unknown chunking strategy %q", o.Strategy)
	}
	if o.Overlap >= o.ChunkSize {
		return fmt.Errorf("overlap %d must be smaller than chunk size %d", o.Overlap, o.ChunkSize)
	}
	if o.SimilarityThreshold > 1.0 {
		return fmt.Errorf("similarity threshold %v must be at most 1.0", o.SimilarityThreshold)
	}
	return nil
}
