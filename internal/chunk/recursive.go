package chunk

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// recursiveSplitter splits on a prioritized separator list, descending to
// a finer separator only when a segment still exceeds the target size.
// Contiguous small segments are merged back up to the target. A segment
// the finest separator cannot reduce is emitted oversized with a warning
// rather than failing the document.
type recursiveSplitter struct {
	size       int
	separators []string
}

func newRecursiveSplitter(opts Options) *recursiveSplitter {
	return &recursiveSplitter{size: opts.ChunkSize, separators: opts.Separators}
}

func (s *recursiveSplitter) Name() string { return string(StrategyRecursive) }

// segment is an intermediate contiguous slice of the source text.
type segment struct {
	text  string
	start int // byte offset in the original text
}

func (s *recursiveSplitter) Split(ctx context.Context, text string) ([]Passage, []string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil, nil
	}

	var warnings []string
	segments := s.splitLevel(text, 0, 0, &warnings)
	return s.merge(text, segments), warnings, nil
}

// splitLevel breaks text on separators[level], recursing into finer
// separators for pieces still over the target size.
func (s *recursiveSplitter) splitLevel(text string, base, level int, warnings *[]string) []segment {
	if utf8.RuneCountInString(text) <= s.size {
		return []segment{{text: text, start: base}}
	}
	if level >= len(s.separators) {
		*warnings = append(*warnings, fmt.Sprintf(
			"segment of %d runes at offset %d exceeds target size %d and cannot be split further",
			utf8.RuneCountInString(text), base, s.size))
		return []segment{{text: text, start: base}}
	}

	sep := s.separators[level]
	if !strings.Contains(text, sep) {
		return s.splitLevel(text, base, level+1, warnings)
	}

	var out []segment
	offset := base
	// SplitAfter keeps the separator attached to the preceding piece, so
	// segment offsets tile the source text exactly.
	for _, piece := range strings.SplitAfter(text, sep) {
		if piece == "" {
			continue
		}
		if utf8.RuneCountInString(piece) <= s.size {
			out = append(out, segment{text: piece, start: offset})
		} else {
			out = append(out, s.splitLevel(piece, offset, level+1, warnings)...)
		}
		offset += len(piece)
	}
	return out
}

// merge greedily joins contiguous segments while the combination stays
// within the target size.
func (s *recursiveSplitter) merge(text string, segments []segment) []Passage {
	var passages []Passage
	i := 0
	for i < len(segments) {
		start := segments[i].start
		end := start + len(segments[i].text)
		size := utf8.RuneCountInString(segments[i].text)
		i++
		for i < len(segments) {
			next := utf8.RuneCountInString(segments[i].text)
			if size+next > s.size {
				break
			}
			size += next
			end = segments[i].start + len(segments[i].text)
			i++
		}
		passages = append(passages, Passage{Text: text[start:end], Start: start, End: end})
	}
	return passages
}
