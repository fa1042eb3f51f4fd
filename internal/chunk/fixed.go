package chunk

import (
	"context"
	"strings"
)

// fixedSplitter slides a fixed-width rune window over the text. The step
// is size minus overlap, clamped to at least one rune so the window
// always advances and splitting terminates.
type fixedSplitter struct {
	size    int
	overlap int
}

func newFixedSplitter(opts Options) *fixedSplitter {
	return &fixedSplitter{size: opts.ChunkSize, overlap: opts.Overlap}
}

func (s *fixedSplitter) Name() string { return string(StrategyFixed) }

func (s *fixedSplitter) Split(ctx context.Context, text string) ([]Passage, []string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil, nil
	}

	runes := []rune(text)
	// Byte offset of each rune boundary, including the end of text.
	offsets := make([]int, len(runes)+1)
	pos := 0
	for i, r := range runes {
		offsets[i] = pos
		pos += len(string(r))
	}
	offsets[len(runes)] = pos

	step := s.size - s.overlap
	if step < 1 {
		step = 1
	}

	var passages []Passage
	for start := 0; start < len(runes); start += step {
		end := start + s.size
		if end > len(runes) {
			end = len(runes)
		}
		passages = append(passages, Passage{
			Text:  string(runes[start:end]),
			Start: offsets[start],
			End:   offsets[end],
		})
		if end == len(runes) {
			break
		}
	}

	return passages, nil, nil
}
