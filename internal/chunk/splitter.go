package chunk

import (
	"context"
	"fmt"

	"github.com/quarrydocs/quarry/internal/embed"
)

// Passage is one bounded slice of source text. Start and End are byte
// offsets into the original text, so concatenating passage ranges in
// order covers the source.
type Passage struct {
	Text  string
	Start int
	End   int
}

// Splitter divides text into ordered passages. Implementations are
// deterministic for the same input and options. The string slice carries
// non-fatal warnings (oversized unsplittable segments, strategy
// fallbacks).
type Splitter interface {
	Split(ctx context.Context, text string) ([]Passage, []string, error)
	Name() string
}

// NewSplitter constructs the splitter selected by opts. The embedder is
// only required for the semantic strategy and may be nil otherwise.
func NewSplitter(opts Options, embedder embed.Embedder) (Splitter, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	switch opts.Strategy {
	case StrategyFixed:
		return newFixedSplitter(opts), nil
	case StrategyRecursive:
		return newRecursiveSplitter(opts), nil
	case StrategySemantic:
		if embedder == nil {
			return nil, fmt.Errorf("semantic chunking requires an embedder")
		}
		return newSemanticSplitter(opts, embedder), nil
	default:
		return nil, fmt.Errorf("unknown chunking strategy %q", opts.Strategy)
	}
}
