package search

import "sort"

// rrfK is the standard Reciprocal Rank Fusion constant.
const rrfK = 60

// rankedID is one entry in a single ranked result list, best first.
type rankedID struct {
	ChunkID int64
}

// fuseRRF combines a lexical and a vector ranking into one fused
// ranking via score = sum(1 / (rrfK + rank)), rank 1-based and
// per-list. Chunk ids absent from a list simply don't contribute that
// term. Ties are broken by ascending chunk id for determinism. Returns
// ids in fused order plus their scores.
func fuseRRF(lexical, vector []rankedID) ([]int64, map[int64]float64) {
	scores := make(map[int64]float64)

	for rank, r := range lexical {
		scores[r.ChunkID] += 1.0 / float64(rrfK+rank+1)
	}
	for rank, r := range vector {
		scores[r.ChunkID] += 1.0 / float64(rrfK+rank+1)
	}

	ids := make([]int64, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})

	return ids, scores
}
