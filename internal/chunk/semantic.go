package chunk

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/quarrydocs/quarry/internal/embed"
)

// semanticSplitter groups adjacent sentences into passages, starting a
// new passage where the embedding cosine similarity between consecutive
// sentences drops below the threshold or the passage would exceed the
// target size. When the embedding call fails it falls back to the
// recursive splitter's output and records a warning, so ingestion never
// fails on a degraded embedding backend.
type semanticSplitter struct {
	size      int
	threshold float64
	embedder  embed.Embedder
	fallback  *recursiveSplitter
}

func newSemanticSplitter(opts Options, embedder embed.Embedder) *semanticSplitter {
	return &semanticSplitter{
		size:      opts.ChunkSize,
		threshold: opts.SimilarityThreshold,
		embedder:  embedder,
		fallback:  newRecursiveSplitter(opts),
	}
}

func (s *semanticSplitter) Name() string { return string(StrategySemantic) }

func (s *semanticSplitter) Split(ctx context.Context, text string) ([]Passage, []string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil, nil
	}

	sentences := splitSentences(text)
	if len(sentences) <= 1 {
		return []Passage{{Text: text, Start: 0, End: len(text)}}, nil, nil
	}

	texts := make([]string, len(sentences))
	for i, sent := range sentences {
		texts[i] = sent.text
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		passages, warnings, ferr := s.fallback.Split(ctx, text)
		if ferr != nil {
			return nil, nil, ferr
		}
		warnings = append(warnings,
			fmt.Sprintf("semantic chunking unavailable (%v), used recursive splitting", err))
		return passages, warnings, nil
	}

	var passages []Passage
	start := sentences[0].start
	end := start + len(sentences[0].text)
	size := utf8.RuneCountInString(sentences[0].text)

	for i := 1; i < len(sentences); i++ {
		next := utf8.RuneCountInString(sentences[i].text)
		similar := embed.CosineSimilarity(vectors[i-1], vectors[i]) >= s.threshold
		if similar && size+next <= s.size {
			size += next
			end = sentences[i].start + len(sentences[i].text)
			continue
		}
		passages = append(passages, Passage{Text: text[start:end], Start: start, End: end})
		start = sentences[i].start
		end = start + len(sentences[i].text)
		size = next
	}
	passages = append(passages, Passage{Text: text[start:end], Start: start, End: end})

	return passages, nil, nil
}

// splitSentences breaks text on sentence-ending punctuation followed by
// whitespace, keeping the terminator with the sentence. Offsets are byte
// positions in the source.
func splitSentences(text string) []segment {
	var out []segment
	start := 0
	i := 0
	for i < len(text) {
		r, width := utf8.DecodeRuneInString(text[i:])
		i += width
		if r != '.' && r != '!' && r != '?' && r != '\n' {
			continue
		}
		// Consume trailing whitespace into the sentence.
		for i < len(text) {
			nr, nw := utf8.DecodeRuneInString(text[i:])
			if !unicode.IsSpace(nr) {
				break
			}
			i += nw
		}
		if i > start {
			out = append(out, segment{text: text[start:i], start: start})
			start = i
		}
	}
	if start < len(text) {
		out = append(out, segment{text: text[start:], start: start})
	}
	return out
}
