package contrastive

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"strings"

	"github.com/google/uuid"

	"sumbench/internal/embedding"
	"sumbench/internal/errs"
	"sumbench/internal/logging"
	"sumbench/internal/pipeline"
	"sumbench/internal/types"
)

// Tier caps: up to three same-file picks and three signature-similar
// picks before semantic and random fill take over.
const (
	sameFileCap  = 3
	signatureCap = 3
	nearDupSim   = 0.95
	minCohort    = 5
)

// cohortSizes counts units per language. Distractors never cross a
// language boundary, so each language forms its own candidate cohort.
func cohortSizes(units []*types.CodeUnit) map[string]int {
	sizes := make(map[string]int)
	for _, u := range units {
		sizes[u.Language]++
	}
	return sizes
}

func largestCohort(sizes map[string]int) int {
	largest := 0
	for _, n := range sizes {
		if n > largest {
			largest = n
		}
	}
	return largest
}

func describeCohorts(sizes map[string]int) string {
	langs := make([]string, 0, len(sizes))
	for lang := range sizes {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	parts := make([]string, 0, len(langs))
	for _, lang := range langs {
		parts = append(parts, fmt.Sprintf("%s=%d", lang, sizes[lang]))
	}
	return strings.Join(parts, ", ")
}

// buildSets loads the run's stored distractor sets and builds whatever
// is missing, persisting the new batch. Targets whose candidate pool is
// empty are logged and left without a set; evaluation surfaces them as
// per-item failures.
func buildSets(ctx context.Context, pctx *pipeline.Context, units []*types.CodeUnit, n int) (map[string]*types.DistractorSet, error) {
	stored, err := pctx.Store.GetDistractorSets(pctx.RunID)
	if err != nil {
		return nil, err
	}
	sets := make(map[string]*types.DistractorSet, len(units))
	for _, s := range stored {
		sets[s.TargetCodeUnitID] = s
	}

	var missing []*types.CodeUnit
	for _, u := range units {
		if _, ok := sets[u.ID]; !ok {
			missing = append(missing, u)
		}
	}
	if len(missing) == 0 {
		return sets, nil
	}

	vectors, err := contentVectors(ctx, pctx, units)
	if err != nil {
		return nil, err
	}

	fresh := make([]*types.DistractorSet, 0, len(missing))
	unbuildable := 0
	for _, target := range missing {
		set, err := buildSet(pctx.RunID, target, units, vectors, n)
		if err != nil {
			logging.ContrastiveWarn("No distractor set for %s: %v", target.ID, err)
			unbuildable++
			continue
		}
		fresh = append(fresh, set)
		sets[target.ID] = set
	}
	if len(fresh) > 0 {
		if err := pctx.Store.InsertDistractorSets(fresh); err != nil {
			return nil, err
		}
	}

	logging.Contrastive("Distractor sets: %d built, %d reused, %d unbuildable",
		len(fresh), len(stored), unbuildable)
	return sets, nil
}

// buildSet assembles one target's candidate pool, consuming tiers in
// order until n distractors are taken or the pool runs dry.
func buildSet(runID string, target *types.CodeUnit, units []*types.CodeUnit, vectors map[string][]float32, n int) (*types.DistractorSet, error) {
	pool := candidatePool(target, units, n)
	if len(pool) == 0 {
		return nil, errs.New(errs.KindInsufficientDistractors, "contrastive.buildSet",
			"no %s candidates for %s", target.Language, target.Name)
	}

	taken := make([]string, 0, n)
	used := make(map[string]bool, n)
	add := func(u *types.CodeUnit) {
		if len(taken) < n && !used[u.ID] {
			used[u.ID] = true
			taken = append(taken, u.ID)
		}
	}

	// Tier 1: same file, in unit id order.
	sameFile := 0
	for _, c := range pool {
		if c.Path == target.Path && sameFile < sameFileCap && len(taken) < n {
			add(c)
			sameFile++
		}
	}

	// Tier 2: signature-similar.
	for _, c := range signatureDistractors(target, pool, used) {
		add(c)
	}

	// Tier 3: semantic fill, skipping near-duplicates of the target.
	semantic, nearDups := semanticDistractors(target, pool, used, vectors)
	for _, c := range semantic {
		if len(taken) == n {
			break
		}
		add(c)
	}

	// Tier 4: random fill from whatever is left.
	if len(taken) < n {
		rest := make([]*types.CodeUnit, 0, len(pool))
		for _, c := range pool {
			if !used[c.ID] && !nearDups[c.ID] {
				rest = append(rest, c)
			}
		}
		rng := rand.New(rand.NewSource(seedFor(runID, target.ID)))
		rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
		for _, c := range rest {
			if len(taken) == n {
				break
			}
			add(c)
		}
	}

	return &types.DistractorSet{
		ID:               uuid.NewString(),
		RunID:            runID,
		TargetCodeUnitID: target.ID,
		DistractorIDs:    taken,
		Difficulty:       difficultyFor(sameFile),
	}, nil
}

// candidatePool returns the target's same-language competitors sorted
// by unit id, restricted to its unit type when enough of those exist.
func candidatePool(target *types.CodeUnit, units []*types.CodeUnit, n int) []*types.CodeUnit {
	var sameLang, sameType []*types.CodeUnit
	for _, u := range units {
		if u.ID == target.ID || u.Language != target.Language {
			continue
		}
		sameLang = append(sameLang, u)
		if u.Type == target.Type {
			sameType = append(sameType, u)
		}
	}
	pool := sameLang
	if len(sameType) >= n {
		pool = sameType
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].ID < pool[j].ID })
	return pool
}

// signatureDistractors ranks candidates that carry a parameter list by
// how closely their signature matches the target's: the mean of
// parameter-count similarity and parameter-name overlap.
func signatureDistractors(target *types.CodeUnit, pool []*types.CodeUnit, used map[string]bool) []*types.CodeUnit {
	type scored struct {
		unit *types.CodeUnit
		sim  float64
	}
	var ranked []scored
	for _, c := range pool {
		if used[c.ID] || len(c.Metadata.Parameters) == 0 {
			continue
		}
		sim := (countSimilarity(len(target.Metadata.Parameters), len(c.Metadata.Parameters)) +
			jaccard(target.Metadata.Parameters, c.Metadata.Parameters)) / 2
		ranked = append(ranked, scored{c, sim})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].sim > ranked[j].sim })

	out := make([]*types.CodeUnit, 0, signatureCap)
	for _, r := range ranked {
		if len(out) == signatureCap {
			break
		}
		out = append(out, r.unit)
	}
	return out
}

func countSimilarity(a, b int) float64 {
	if a == 0 && b == 0 {
		return 1
	}
	max := a
	if b > max {
		max = b
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return 1 - float64(diff)/float64(max)
}

func jaccard(a, b []string) float64 {
	union := make(map[string]bool, len(a)+len(b))
	inA := make(map[string]bool, len(a))
	for _, s := range a {
		inA[s] = true
		union[s] = true
	}
	inter := 0
	counted := make(map[string]bool, len(b))
	for _, s := range b {
		union[s] = true
		if inA[s] && !counted[s] {
			inter++
			counted[s] = true
		}
	}
	if len(union) == 0 {
		return 1
	}
	return float64(inter) / float64(len(union))
}

// semanticDistractors orders the remaining pool by content similarity
// to the target. Candidates at or above nearDupSim are near-copies that
// a correct summary would legitimately match, so they are excluded from
// the set entirely. Candidates without an embedding carry no signal and
// are left for the random tier.
func semanticDistractors(target *types.CodeUnit, pool []*types.CodeUnit, used map[string]bool, vectors map[string][]float32) ([]*types.CodeUnit, map[string]bool) {
	nearDups := make(map[string]bool)
	type scored struct {
		unit *types.CodeUnit
		sim  float64
	}
	tvec := vectors[target.ID]
	var ranked []scored
	for _, c := range pool {
		if used[c.ID] {
			continue
		}
		cvec, ok := vectors[c.ID]
		if !ok || len(tvec) == 0 {
			continue
		}
		sim, err := embedding.CosineSimilarity(tvec, cvec)
		if err != nil {
			continue
		}
		if sim >= nearDupSim {
			nearDups[c.ID] = true
			continue
		}
		ranked = append(ranked, scored{c, sim})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].sim > ranked[j].sim })

	picks := make([]*types.CodeUnit, 0, len(ranked))
	for _, r := range ranked {
		picks = append(picks, r.unit)
	}
	return picks, nearDups
}

// contentVectors embeds every unit's content once through the cache.
func contentVectors(ctx context.Context, pctx *pipeline.Context, units []*types.CodeUnit) (map[string][]float32, error) {
	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = u.Content
	}
	vecs, err := pctx.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	vectors := make(map[string][]float32, len(units))
	for i, u := range units {
		vectors[u.ID] = vecs[i]
	}
	return vectors, nil
}

func difficultyFor(sameFile int) types.Difficulty {
	switch {
	case sameFile >= 3:
		return types.DifficultyHard
	case sameFile >= 1:
		return types.DifficultyMedium
	default:
		return types.DifficultyEasy
	}
}

// seedFor derives a stable RNG seed from identity strings, keeping
// shuffles reproducible across resumes.
func seedFor(parts ...string) int64 {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return int64(h.Sum64())
}
