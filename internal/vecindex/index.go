// Package vecindex holds the combined cross-model vector index used by
// the retrieval evaluator. Every model's summary of every code unit
// goes into one index; a query then ranks all of them together and each
// model is scored by where its summary of the target landed.
//
// The index is build-once read-only: fill it with Add before sharing it
// across goroutines and do not Add afterwards.
package vecindex

import (
	"fmt"
	"sort"

	"sumbench/internal/embedding"
)

// Entry is one summary vector in the index.
type Entry struct {
	CodeUnitID string
	ModelID    string
	Vector     []float32
}

// Index ranks summary embeddings from all models against a query.
type Index struct {
	entries []Entry
	models  map[string]bool
	dims    int
}

// New returns an empty index.
func New() *Index {
	return &Index{models: make(map[string]bool)}
}

// Add appends one summary vector. Insertion order is the tie-break for
// equal similarities, so callers add summaries in a deterministic order
// (sorted by code unit then model).
func (ix *Index) Add(codeUnitID, modelID string, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty vector for %s/%s", codeUnitID, modelID)
	}
	if ix.dims == 0 {
		ix.dims = len(vec)
	} else if len(vec) != ix.dims {
		return fmt.Errorf("vector for %s/%s has %d dimensions, index has %d",
			codeUnitID, modelID, len(vec), ix.dims)
	}
	ix.entries = append(ix.entries, Entry{
		CodeUnitID: codeUnitID,
		ModelID:    modelID,
		Vector:     vec,
	})
	ix.models[modelID] = true
	return nil
}

// Len returns the number of entries, the retrieval pool size.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// ModelCount returns the number of distinct models in the index.
func (ix *Index) ModelCount() int {
	return len(ix.models)
}

// Ranked is one entry with its similarity and 1-based rank.
type Ranked struct {
	Entry
	Similarity float64
	Rank       int
}

// Search ranks every entry against query by cosine similarity
// descending. Ties keep insertion order. k <= 0 returns the full
// ranking.
func (ix *Index) Search(query []float32, k int) ([]Ranked, error) {
	if ix.dims != 0 && len(query) != ix.dims {
		return nil, fmt.Errorf("query has %d dimensions, index has %d", len(query), ix.dims)
	}

	ranked := make([]Ranked, 0, len(ix.entries))
	for _, e := range ix.entries {
		sim, err := embedding.CosineSimilarity(query, e.Vector)
		if err != nil {
			return nil, err
		}
		ranked = append(ranked, Ranked{Entry: e, Similarity: sim})
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Similarity > ranked[b].Similarity
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked, nil
}

// ModelRank is how one model's summary of the target unit placed.
type ModelRank struct {
	ModelID        string
	Rank           int // 1-based position of the summary in the full ranking
	Similarity     float64
	ReciprocalRank float64
	ModelRank      int // 1-based position among models, best rank first
	IsWinner       bool
}

// RankModels searches with query and returns, for each model holding a
// summary of targetUnit, the rank of that summary's first occurrence.
// Results come back ordered best rank first.
func (ix *Index) RankModels(query []float32, targetUnit string) ([]ModelRank, error) {
	full, err := ix.Search(query, 0)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var ranks []ModelRank
	for _, r := range full {
		if r.CodeUnitID != targetUnit || seen[r.ModelID] {
			continue
		}
		seen[r.ModelID] = true
		ranks = append(ranks, ModelRank{
			ModelID:        r.ModelID,
			Rank:           r.Rank,
			Similarity:     r.Similarity,
			ReciprocalRank: 1 / float64(r.Rank),
		})
	}

	// The full ranking is rank-ascending, so ranks already is too.
	for i := range ranks {
		ranks[i].ModelRank = i + 1
		ranks[i].IsWinner = i == 0
	}
	return ranks, nil
}
