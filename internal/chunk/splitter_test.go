package chunk

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedEmbedder returns a fixed vector per text prefix, so tests can
// place topic boundaries exactly. A non-nil err fails every call.
type scriptedEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (s *scriptedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (s *scriptedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := []float32{1, 0}
		for prefix, v := range s.vectors {
			if strings.HasPrefix(strings.TrimSpace(text), prefix) {
				vec = v
				break
			}
		}
		out[i] = vec
	}
	return out, nil
}

func (s *scriptedEmbedder) Dimensions() int                { return 2 }
func (s *scriptedEmbedder) ModelName() string              { return "scripted" }
func (s *scriptedEmbedder) Available(context.Context) bool { return s.err == nil }
func (s *scriptedEmbedder) Close() error                   { return nil }

// assertTiles checks that passages cover the source contiguously and
// that each passage's offsets point at its own text.
func assertTiles(t *testing.T, text string, passages []Passage) {
	t.Helper()
	require.NotEmpty(t, passages)
	for i, p := range passages {
		assert.Equal(t, p.Text, text[p.Start:p.End], "passage %d offsets disagree with its text", i)
		assert.NotEmpty(t, p.Text, "passage %d is empty", i)
	}
}

// --- NewSplitter ---

func TestNewSplitter_Dispatch(t *testing.T) {
	fixed, err := NewSplitter(Options{Strategy: StrategyFixed}, nil)
	require.NoError(t, err)
	assert.Equal(t, "fixed", fixed.Name())

	recursive, err := NewSplitter(Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "recursive", recursive.Name(), "recursive is the default strategy")

	semantic, err := NewSplitter(Options{Strategy: StrategySemantic}, &scriptedEmbedder{})
	require.NoError(t, err)
	assert.Equal(t, "semantic", semantic.Name())
}

func TestNewSplitter_Rejects(t *testing.T) {
	_, err := NewSplitter(Options{Strategy: "markov"}, nil)
	assert.ErrorContains(t, err, "unknown chunking strategy")

	_, err = NewSplitter(Options{Strategy: StrategyFixed, ChunkSize: 100, Overlap: 100}, nil)
	assert.ErrorContains(t, err, "overlap")

	_, err = NewSplitter(Options{Strategy: StrategySemantic}, nil)
	assert.ErrorContains(t, err, "requires an embedder")
}

// --- Fixed ---

func TestFixed_WindowAndOverlap(t *testing.T) {
	s := &fixedSplitter{size: 10, overlap: 3}

	text := strings.Repeat("abcdefghij", 3) // 30 runes
	passages, warnings, err := s.Split(context.Background(), text)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assertTiles(t, text, passages)

	// Step is size-overlap = 7; windows start at 0, 7, 14, 21 and the
	// loop stops once a window reaches end-of-text, so the count is
	// ceil((runes-overlap)/step) with no redundant trailing window.
	step := s.size - s.overlap
	want := (len(text) - s.overlap + step - 1) / step
	require.Len(t, passages, want)
	require.Len(t, passages, 4)

	for i, p := range passages {
		assert.Equal(t, 7*i, p.Start)
	}
	for i := 0; i < len(passages)-1; i++ {
		assert.Len(t, passages[i].Text, 10)

		// Consecutive windows share the overlap region.
		tail := passages[i].Text[len(passages[i].Text)-3:]
		assert.True(t, strings.HasPrefix(passages[i+1].Text, tail),
			"window %d does not overlap window %d", i+1, i)
	}
	last := passages[len(passages)-1]
	assert.Len(t, last.Text, 9)
	assert.Equal(t, len(text), last.End)
}

func TestFixed_ShortInputSinglePassage(t *testing.T) {
	s := &fixedSplitter{size: 100, overlap: 10}

	passages, _, err := s.Split(context.Background(), "short text")
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, "short text", passages[0].Text)
	assert.Equal(t, 0, passages[0].Start)
	assert.Equal(t, 10, passages[0].End)
}

func TestFixed_MultibyteOffsets(t *testing.T) {
	s := &fixedSplitter{size: 4, overlap: 0}

	// Rune windows over multibyte text must produce valid byte offsets.
	text := "héllo wörld ünïcode"
	passages, _, err := s.Split(context.Background(), text)
	require.NoError(t, err)
	assertTiles(t, text, passages)

	total := 0
	for _, p := range passages {
		total += utf8.RuneCountInString(p.Text)
	}
	assert.Equal(t, utf8.RuneCountInString(text), total)
}

func TestFixed_EmptyInput(t *testing.T) {
	s := &fixedSplitter{size: 10, overlap: 0}

	for _, text := range []string{"", "   ", "\n\t"} {
		passages, warnings, err := s.Split(context.Background(), text)
		require.NoError(t, err)
		assert.Empty(t, passages)
		assert.Empty(t, warnings)
	}
}

func TestFixed_CancelledContext(t *testing.T) {
	s := &fixedSplitter{size: 10, overlap: 0}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := s.Split(ctx, "some text")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFixed_Deterministic(t *testing.T) {
	s := &fixedSplitter{size: 12, overlap: 4}
	text := strings.Repeat("lorem ipsum dolor sit amet ", 5)

	first, _, err := s.Split(context.Background(), text)
	require.NoError(t, err)
	second, _, err := s.Split(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// --- Recursive ---

func TestRecursive_ParagraphBoundaries(t *testing.T) {
	s := newRecursiveSplitter(Options{
		ChunkSize:  40,
		Separators: DefaultSeparators,
	}.withDefaults())

	text := "First paragraph with a bit of text.\n\n" +
		"Second paragraph, also fairly short.\n\n" +
		"Third paragraph closes the document."
	passages, warnings, err := s.Split(context.Background(), text)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assertTiles(t, text, passages)

	// Each paragraph fits the target on its own but no two fit together,
	// so the paragraph separator decides the boundaries.
	require.Len(t, passages, 3)
	assert.Contains(t, passages[0].Text, "First paragraph")
	assert.Contains(t, passages[1].Text, "Second paragraph")
	assert.Contains(t, passages[2].Text, "Third paragraph")
}

func TestRecursive_PassagesTileSource(t *testing.T) {
	s := newRecursiveSplitter(Options{
		ChunkSize:  30,
		Separators: DefaultSeparators,
	}.withDefaults())

	text := "Alpha beta gamma. Delta epsilon zeta eta.\n" +
		"Theta iota kappa lambda mu nu xi omicron pi rho.\n\n" +
		"Sigma tau upsilon phi chi psi omega."
	passages, _, err := s.Split(context.Background(), text)
	require.NoError(t, err)
	assertTiles(t, text, passages)

	assert.Equal(t, 0, passages[0].Start)
	for i := 1; i < len(passages); i++ {
		assert.Equal(t, passages[i-1].End, passages[i].Start,
			"passages must be contiguous")
	}
	assert.Equal(t, len(text), passages[len(passages)-1].End)
}

func TestRecursive_MergesSmallSegments(t *testing.T) {
	s := newRecursiveSplitter(Options{
		ChunkSize:  60,
		Separators: DefaultSeparators,
	}.withDefaults())

	// Fourteen short lines of 6 runes each merge back toward the target
	// instead of producing fourteen tiny passages.
	text := strings.TrimSuffix(strings.Repeat("line.\n", 14), "\n")
	passages, warnings, err := s.Split(context.Background(), text)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assertTiles(t, text, passages)
	require.Len(t, passages, 2, "small segments merge up to the target size")
	assert.Equal(t, 60, utf8.RuneCountInString(passages[0].Text))
}

func TestRecursive_RespectsTargetSize(t *testing.T) {
	s := newRecursiveSplitter(Options{
		ChunkSize:  25,
		Separators: DefaultSeparators,
	}.withDefaults())

	text := strings.TrimSpace(strings.Repeat("word another thing here. ", 8))
	passages, warnings, err := s.Split(context.Background(), text)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	for i, p := range passages {
		assert.LessOrEqual(t, utf8.RuneCountInString(p.Text), 25,
			"passage %d exceeds the target size", i)
	}
}

func TestRecursive_OversizedUnsplittableWarns(t *testing.T) {
	s := newRecursiveSplitter(Options{
		ChunkSize:  10,
		Separators: DefaultSeparators,
	}.withDefaults())

	// No separator of any level appears in this run, so it cannot be
	// reduced below the target. It is emitted whole with a warning.
	text := strings.Repeat("x", 50)
	passages, warnings, err := s.Split(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, text, passages[0].Text)

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "cannot be split further")
}

func TestRecursive_EmptyInput(t *testing.T) {
	s := newRecursiveSplitter(Options{}.withDefaults())

	passages, warnings, err := s.Split(context.Background(), "  \n ")
	require.NoError(t, err)
	assert.Empty(t, passages)
	assert.Empty(t, warnings)
}

// --- Semantic ---

func TestSemantic_GroupsByTopic(t *testing.T) {
	embedder := &scriptedEmbedder{vectors: map[string][]float32{
		"Cats": {1, 0},
		"Dogs": {0, 1},
	}}
	s := newSemanticSplitter(Options{
		ChunkSize:           1000,
		SimilarityThreshold: 0.5,
		Separators:          DefaultSeparators,
	}.withDefaults(), embedder)

	text := "Cats sleep all day. Cats chase mice at night. " +
		"Dogs bark at strangers. Dogs fetch sticks."
	passages, warnings, err := s.Split(context.Background(), text)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assertTiles(t, text, passages)

	// Orthogonal topic vectors force exactly one boundary.
	require.Len(t, passages, 2)
	assert.Contains(t, passages[0].Text, "Cats sleep")
	assert.Contains(t, passages[0].Text, "chase mice")
	assert.Contains(t, passages[1].Text, "Dogs bark")
}

func TestSemantic_SizeBoundSplitsSameTopic(t *testing.T) {
	// All sentences share one topic vector; only the size bound can
	// introduce boundaries.
	embedder := &scriptedEmbedder{}
	s := newSemanticSplitter(Options{
		ChunkSize:           60,
		SimilarityThreshold: 0.5,
		Separators:          DefaultSeparators,
	}.withDefaults(), embedder)

	text := strings.TrimSpace(strings.Repeat("The same topic continues here. ", 6))
	passages, _, err := s.Split(context.Background(), text)
	require.NoError(t, err)
	assertTiles(t, text, passages)
	assert.Greater(t, len(passages), 1)
	for i, p := range passages {
		assert.LessOrEqual(t, utf8.RuneCountInString(p.Text), 62,
			"passage %d far exceeds the target size", i)
	}
}

func TestSemantic_SingleSentenceSkipsEmbedder(t *testing.T) {
	embedder := &scriptedEmbedder{}
	s := newSemanticSplitter(Options{}.withDefaults(), embedder)

	passages, warnings, err := s.Split(context.Background(), "just one sentence without terminators")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, passages, 1)
	assert.Zero(t, embedder.calls, "a single sentence needs no embeddings")
}

func TestSemantic_EmbedFailureFallsBackToRecursive(t *testing.T) {
	embedder := &scriptedEmbedder{err: errors.New("backend offline")}
	opts := Options{
		ChunkSize:  40,
		Separators: DefaultSeparators,
	}.withDefaults()
	s := newSemanticSplitter(opts, embedder)

	text := "First paragraph with a bit of text.\n\n" +
		"Second paragraph, also fairly short."
	passages, warnings, err := s.Split(context.Background(), text)
	require.NoError(t, err, "degraded embedding backend must not fail the split")
	assertTiles(t, text, passages)

	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[len(warnings)-1], "semantic chunking unavailable")

	// The output matches what the recursive splitter would produce.
	expected, _, err := newRecursiveSplitter(opts).Split(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, expected, passages)
}

func TestSemantic_CancelledContextIsNotFallback(t *testing.T) {
	embedder := &scriptedEmbedder{}
	s := newSemanticSplitter(Options{}.withDefaults(), embedder)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := s.Split(ctx, "one sentence. another sentence.")
	assert.ErrorIs(t, err, context.Canceled,
		"cancellation must propagate, not trigger the recursive fallback")
}

// --- Sentence splitting ---

func TestSplitSentences(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "terminators with trailing space",
			text: "One. Two! Three? Four",
			want: []string{"One. ", "Two! ", "Three? ", "Four"},
		},
		{
			name: "newline terminates",
			text: "line one\nline two",
			want: []string{"line one\n", "line two"},
		},
		{
			name: "no terminator",
			text: "just words",
			want: []string{"just words"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			segments := splitSentences(tc.text)
			got := make([]string, len(segments))
			offset := 0
			for i, seg := range segments {
				got[i] = seg.text
				assert.Equal(t, offset, seg.start)
				offset += len(seg.text)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}
