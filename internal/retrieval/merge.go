package retrieval

import (
	"sort"

	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

// mergeResults joins the organization-scoped and private-scoped result lists
// into one deterministic ranking:
//
//  1. de-duplicate by chunk id, keeping the higher score
//  2. sort by descending score; on equal score organization-scoped chunks
//     rank before private ones, then chunk id breaks the remaining ties
//  3. drop results below the score threshold
//  4. truncate to topK
//
// The merge never errors; empty inputs yield fewer (possibly zero) results.
func mergeResults(org, private []vectorstore.Result, topK int, threshold float64) []vectorstore.Result {
	byChunk := make(map[string]vectorstore.Result, len(org)+len(private))
	for _, lists := range [][]vectorstore.Result{org, private} {
		for _, r := range lists {
			if existing, ok := byChunk[r.ChunkID]; ok && existing.Score >= r.Score {
				continue
			}
			byChunk[r.ChunkID] = r
		}
	}

	merged := make([]vectorstore.Result, 0, len(byChunk))
	for _, r := range byChunk {
		if r.Score >= threshold {
			merged = append(merged, r)
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Scope != b.Scope {
			return a.Scope == vectorstore.VisibilityOrganization
		}
		return a.ChunkID < b.ChunkID
	})

	if topK > 0 && len(merged) > topK {
		merged = merged[:topK]
	}
	return merged
}
