package search

import (
	"sort"
)

// DefaultRRFConstant is the standard smoothing constant for Reciprocal
// Rank Fusion. Larger values flatten the advantage of exact top-rank
// placement.
const DefaultRRFConstant = 60

// RankedList is one source's results, ordered best-first.
type RankedList struct {
	Source string
	IDs    []string
}

// FusedResult is one candidate after fusion.
type FusedResult struct {
	ID string

	// Score is the RRF score: the sum over sources containing the
	// candidate of 1/(k+rank), rank 1-based. A source that did not
	// return the candidate contributes zero.
	Score float64

	// BestRank is the candidate's best (lowest) rank in any single
	// source, used for tie-breaking.
	BestRank int

	// Ranks holds the candidate's 1-based rank per source name.
	Ranks map[string]int
}

// Fuse merges ranked lists with Reciprocal Rank Fusion. Ordering is
// fused score descending, ties broken by best single-source rank, then
// by ID, so the result is fully deterministic and independent of the
// order the lists are given in.
func Fuse(k int, lists ...RankedList) []*FusedResult {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	byID := make(map[string]*FusedResult)
	for _, list := range lists {
		for i, id := range list.IDs {
			rank := i + 1
			fr, ok := byID[id]
			if !ok {
				fr = &FusedResult{ID: id, BestRank: rank, Ranks: make(map[string]int)}
				byID[id] = fr
			}
			fr.Score += 1.0 / float64(k+rank)
			fr.Ranks[list.Source] = rank
			if rank < fr.BestRank {
				fr.BestRank = rank
			}
		}
	}

	results := make([]*FusedResult, 0, len(byID))
	for _, fr := range byID {
		results = append(results, fr)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].BestRank != results[j].BestRank {
			return results[i].BestRank < results[j].BestRank
		}
		return results[i].ID < results[j].ID
	})

	return results
}
