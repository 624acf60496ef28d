package embedding

import (
	"fmt"
	"math"
	"sort"

	"sumbench/internal/logging"
)

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dot, aMag, bMag float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i]) * float64(b[i])
		aMag += float64(a[i]) * float64(a[i])
		bMag += float64(b[i]) * float64(b[i])
	}
	if aMag == 0 || bMag == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag)), nil
}

// SimilarityResult is one scored candidate from FindTopK.
type SimilarityResult struct {
	Index      int
	Similarity float64
}

// FindTopK scores every candidate against query by cosine similarity
// and returns the top k in descending order, ties keeping candidate
// order. k <= 0 returns all candidates ranked. Candidates with
// mismatched dimensions are skipped.
func FindTopK(query []float32, candidates [][]float32, k int) []SimilarityResult {
	results := make([]SimilarityResult, 0, len(candidates))
	skipped := 0
	for i, vec := range candidates {
		sim, err := CosineSimilarity(query, vec)
		if err != nil {
			skipped++
			continue
		}
		results = append(results, SimilarityResult{Index: i, Similarity: sim})
	}
	if skipped > 0 {
		logging.EmbeddingDebug("FindTopK: skipped %d candidates with mismatched dimensions", skipped)
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Similarity > results[b].Similarity
	})
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results
}
