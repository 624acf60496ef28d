// Package iterative gives each generator a budget of refinement rounds
// to pull its summary's retrieval rank among competitors under a
// target. A model that passes the first test spends no refinement call;
// the score decays with the rounds it needed.
package iterative

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"sumbench/internal/config"
	"sumbench/internal/embedding"
	"sumbench/internal/errs"
	"sumbench/internal/llm"
	"sumbench/internal/logging"
	"sumbench/internal/pipeline"
	"sumbench/internal/types"
)

// Executor implements the iterative refinement phase.
type Executor struct{}

func NewExecutor() *Executor { return &Executor{} }

func (e *Executor) Phase() types.Phase { return types.PhaseIterative }

// workItem is one sampled summary heading into the round loop, with its
// competition resolved up front.
type workItem struct {
	summary     *types.GeneratedSummary
	unit        *types.CodeUnit
	competitors []*types.GeneratedSummary
}

func (e *Executor) Execute(ctx context.Context, pctx *pipeline.Context) (*pipeline.Outcome, error) {
	const op = "iterative.Execute"
	cfg := pctx.Config.Evaluation.Iterative

	skip := func(reason string) (*pipeline.Outcome, error) {
		if err := pctx.State.StartPhase(pctx.RunID, types.PhaseIterative, 0); err != nil {
			return nil, err
		}
		return &pipeline.Outcome{SkipReason: reason}, nil
	}
	if !cfg.Enabled {
		return skip("iterative evaluator disabled")
	}

	summaries, err := pctx.Store.GetSummaries(pctx.RunID, "")
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return skip("no summaries to refine")
	}
	units, err := pctx.Store.GetCodeUnits(pctx.RunID)
	if err != nil {
		return nil, err
	}
	byUnit := make(map[string]*types.CodeUnit, len(units))
	for _, u := range units {
		byUnit[u.ID] = u
	}
	unitSums := make(map[string][]*types.GeneratedSummary, len(units))
	for _, s := range summaries {
		unitSums[s.CodeUnitID] = append(unitSums[s.CodeUnitID], s)
	}

	// One sampled item per (generator, unit); competitors are every
	// other model's summary of the same unit, whoever produced it.
	perModel := make(map[string][]workItem)
	var specs []config.ModelSpec
	total := 0
	for _, spec := range pctx.Config.Models.Generators {
		var mine []*types.GeneratedSummary
		for _, s := range summaries {
			if s.ModelID == spec.ID {
				mine = append(mine, s)
			}
		}
		if len(mine) == 0 {
			continue
		}
		var items []workItem
		for _, s := range sampleSummaries(pctx.RunID, spec.ID, mine, cfg.SampleSize) {
			u, ok := byUnit[s.CodeUnitID]
			if !ok {
				return nil, errs.New(errs.KindCorruptedData, op,
					"summary %s references missing unit %s", s.ID, s.CodeUnitID)
			}
			var comps []*types.GeneratedSummary
			for _, c := range unitSums[s.CodeUnitID] {
				if c.ModelID != spec.ID {
					comps = append(comps, c)
				}
			}
			items = append(items, workItem{summary: s, unit: u, competitors: comps})
		}
		perModel[spec.ID] = items
		specs = append(specs, spec)
		total += len(items)
	}
	if total == 0 {
		return skip("no summaries from configured generators")
	}

	if err := pctx.State.StartPhase(pctx.RunID, types.PhaseIterative, total); err != nil {
		return nil, err
	}

	done, err := refinedSummaries(pctx)
	if err != nil {
		return nil, err
	}

	var (
		mu        sync.Mutex
		completed int
		failures  []pipeline.Failure
	)
	pendingCount := 0
	for _, items := range perModel {
		for _, it := range items {
			if done[it.summary.ID] {
				completed++
			} else {
				pendingCount++
			}
		}
	}
	logging.Iterative("Iterative: %d items across %d models (%d already refined)",
		total, len(specs), completed)

	// Everything the round loops will rank against is embedded in two
	// upfront batches. Competitor vectors stay frozen for the whole
	// phase; only refined text is re-embedded, one call per round.
	var vecs, qvecs map[string][]float32
	if pendingCount > 0 {
		vecs, err = summaryVectors(ctx, pctx, summaries)
		if err != nil {
			return nil, err
		}
		qvecs, err = queryVectors(ctx, pctx, itemUnits(perModel))
		if err != nil {
			return nil, err
		}
	}

	finish := func(item, lastID string, err error) error {
		mu.Lock()
		defer mu.Unlock()
		completed++
		if err != nil {
			failures = append(failures, pipeline.Failure{Item: item, Err: err})
			logging.IterativeWarn("Refinement failed for %s: %v", item, err)
		}
		if perr := pctx.State.UpdateProgress(pctx.RunID, types.PhaseIterative, completed, lastID); perr != nil {
			return perr
		}
		pctx.Report(types.PhaseIterative, completed, total, item)
		return nil
	}

	modelParallelism := cfg.ModelParallelism
	if modelParallelism <= 0 {
		modelParallelism = 4
	}
	localParallelism := cfg.LocalParallelism
	if localParallelism <= 0 {
		localParallelism = 2
	}
	largeParams := cfg.LargeParamsB
	if largeParams <= 0 {
		largeParams = 30
	}

	pending := func(spec config.ModelSpec) []workItem {
		var out []workItem
		for _, it := range perModel[spec.ID] {
			if !done[it.summary.ID] {
				out = append(out, it)
			}
		}
		return out
	}

	l := splitLanes(specs, largeParams)
	group, gctx := errgroup.WithContext(ctx)

	// Cloud lane: every model concurrently behind its own pool.
	for _, spec := range l.cloud {
		items := pending(spec)
		if len(items) == 0 {
			continue
		}
		client, err := pctx.Registry.Client(spec.ID)
		if err != nil {
			return nil, err
		}
		group.Go(func() error {
			pool, poolCtx := errgroup.WithContext(gctx)
			pool.SetLimit(modelParallelism)
			for _, it := range items {
				pool.Go(func() error {
					return e.runItem(poolCtx, pctx, cfg, client, spec, it, vecs, qvecs, finish)
				})
			}
			return pool.Wait()
		})
	}

	// Local lane: the big models get the machine to themselves, one
	// task at a time, then the small ones share a narrow pool.
	if len(l.largeLocal)+len(l.smallLocal) > 0 {
		group.Go(func() error {
			for _, spec := range l.largeLocal {
				items := pending(spec)
				if len(items) == 0 {
					continue
				}
				client, err := pctx.Registry.Client(spec.ID)
				if err != nil {
					return err
				}
				for _, it := range items {
					if err := e.runItem(gctx, pctx, cfg, client, spec, it, vecs, qvecs, finish); err != nil {
						return err
					}
				}
			}
			pool, poolCtx := errgroup.WithContext(gctx)
			pool.SetLimit(localParallelism)
			for _, spec := range l.smallLocal {
				items := pending(spec)
				if len(items) == 0 {
					continue
				}
				client, err := pctx.Registry.Client(spec.ID)
				if err != nil {
					return err
				}
				for _, it := range items {
					pool.Go(func() error {
						return e.runItem(poolCtx, pctx, cfg, client, spec, it, vecs, qvecs, finish)
					})
				}
			}
			return pool.Wait()
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return &pipeline.Outcome{Total: total, Completed: completed, Failures: failures}, nil
}

// runItem runs one round loop, persisting the verdict and absorbing
// per-item failures.
func (e *Executor) runItem(ctx context.Context, pctx *pipeline.Context, cfg config.IterativeConfig, client llm.Client, spec config.ModelSpec, it workItem, vecs, qvecs map[string][]float32, finish func(item, lastID string, err error) error) error {
	payload, err := e.refineLoop(ctx, pctx, cfg, client, spec, it, vecs, qvecs)
	if err != nil {
		if errors.Is(err, context.Canceled) || errs.PhaseFatal(errs.KindOf(err)) {
			return err
		}
		return finish(it.summary.ID+"/"+spec.ID, it.summary.ID, err)
	}
	result := &types.EvaluationResult{
		RunID:     pctx.RunID,
		SummaryID: it.summary.ID,
		Kind:      types.KindIterative,
		Iterative: payload,
	}
	if err := pctx.Store.InsertEvaluationResult(result); err != nil {
		return err
	}
	return finish(it.summary.ID+"/"+spec.ID, it.summary.ID, nil)
}

// refineLoop tests, refines, and re-tests one summary until it reaches
// the target rank or the round budget runs out. The summary row is
// updated in place after every accepted refinement, so a later phase
// judges the text that actually competed.
func (e *Executor) refineLoop(ctx context.Context, pctx *pipeline.Context, cfg config.IterativeConfig, client llm.Client, spec config.ModelSpec, it workItem, vecs, qvecs map[string][]float32) (*types.IterativePayload, error) {
	const op = "iterative.refineLoop"

	qv, ok := qvecs[it.unit.ID]
	if !ok {
		return nil, errs.New(errs.KindCorruptedData, op, "no query embedding for unit %s", it.unit.ID)
	}
	curVec, ok := vecs[it.summary.ID]
	if !ok {
		return nil, errs.New(errs.KindCorruptedData, op, "no embedding for summary %s", it.summary.ID)
	}

	compVecs := make([][]float32, len(it.competitors))
	compTexts := make([]string, len(it.competitors))
	for i, c := range it.competitors {
		v, ok := vecs[c.ID]
		if !ok {
			return nil, errs.New(errs.KindCorruptedData, op, "no embedding for competitor %s", c.ID)
		}
		compVecs[i] = v
		compTexts[i] = c.Text
	}

	target := effectiveTargetRank(cfg.TargetRank, len(it.competitors))
	maxRounds := cfg.MaxRounds
	if maxRounds < 0 {
		maxRounds = 0
	}

	start := time.Now()
	curText := it.summary.Text
	var history []types.RoundRecord
	initialRank, finalRank := 0, 0
	rounds, success := 0, false

	for i := 0; ; i++ {
		rank, score, err := rankAgainst(qv, curVec, compVecs)
		if err != nil {
			return nil, errs.E(errs.KindCorruptedData, op, err)
		}
		history = append(history, types.RoundRecord{Round: i, Rank: rank, Score: score})
		if i == 0 {
			initialRank = rank
		}
		finalRank = rank
		rounds = i
		if rank <= target {
			success = true
			break
		}
		if i == maxRounds {
			break
		}

		newText, err := refine(ctx, client, spec, it.unit, curText, compTexts, rank, len(compVecs)+1)
		if err != nil {
			return nil, err
		}
		newVec, err := pctx.Embedder.Embed(ctx, newText)
		if err != nil {
			return nil, err
		}
		meta := it.summary.Metadata
		meta.RefinementRound = i + 1
		if err := pctx.Store.UpdateSummary(it.summary.ID, &newText, &meta); err != nil {
			return nil, err
		}
		curText, curVec = newText, newVec
	}

	return &types.IterativePayload{
		ModelID:         spec.ID,
		Rounds:          rounds,
		Success:         success,
		InitialRank:     initialRank,
		FinalRank:       finalRank,
		TargetRank:      target,
		History:         history,
		RefinementScore: refinementScore(rounds),
		DurationMS:      time.Since(start).Milliseconds(),
	}, nil
}

// refine asks the generator for a sharper summary given its standing.
func refine(ctx context.Context, client llm.Client, spec config.ModelSpec, u *types.CodeUnit, current string, competitors []string, rank, candidates int) (string, error) {
	req := llm.UserRequest(refineSystem, refinePrompt(u, current, competitors, rank, candidates))
	req.Temperature = spec.Temperature
	req.MaxTokens = spec.MaxTokens

	comp, err := llm.CompleteWithRetry(ctx, client, req)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(comp.Content)
	if text == "" {
		return "", errs.New(errs.KindInvalidResponse, "iterative.refine", "empty refined summary").WithModel(spec.ID)
	}
	return text, nil
}

// rankAgainst places the candidate among its competitors by cosine to
// the query. Ties resolve in the candidate's favor.
func rankAgainst(query, candidate []float32, competitors [][]float32) (int, float64, error) {
	own, err := embedding.CosineSimilarity(query, candidate)
	if err != nil {
		return 0, 0, err
	}
	rank := 1
	for _, c := range competitors {
		sim, err := embedding.CosineSimilarity(query, c)
		if err != nil {
			return 0, 0, err
		}
		if sim > own {
			rank++
		}
	}
	return rank, own, nil
}

// effectiveTargetRank tightens the configured target when the field is
// small: with one competitor the only meaningful pass is first place.
func effectiveTargetRank(configured, competitors int) int {
	if configured <= 0 {
		configured = 3
	}
	half := int(math.Ceil(float64(competitors+1) * 0.5))
	if half < 1 {
		half = 1
	}
	if configured < half {
		return configured
	}
	return half
}

// refinementScore rewards fast convergence: 1.0 at zero rounds,
// decaying as 1/log2(rounds+2).
func refinementScore(rounds int) float64 {
	return 1 / math.Log2(float64(rounds+2))
}

// sampleSummaries trims a model's summaries to size uniformly without
// replacement. The seed is stable per (run, model) so a resumed phase
// redraws the same sample.
func sampleSummaries(runID, modelID string, sums []*types.GeneratedSummary, size int) []*types.GeneratedSummary {
	sort.Slice(sums, func(i, j int) bool { return sums[i].CodeUnitID < sums[j].CodeUnitID })
	if size <= 0 || len(sums) <= size {
		return sums
	}
	rng := rand.New(rand.NewSource(seedFor(runID, modelID, "sample")))
	idx := rng.Perm(len(sums))[:size]
	sort.Ints(idx)
	out := make([]*types.GeneratedSummary, size)
	for i, j := range idx {
		out[i] = sums[j]
	}
	return out
}

// refinedSummaries returns the summary ids already carrying an
// iterative verdict.
func refinedSummaries(pctx *pipeline.Context) (map[string]bool, error) {
	prior, err := pctx.Store.GetEvaluationResults(pctx.RunID, types.KindIterative)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(prior))
	for _, r := range prior {
		done[r.SummaryID] = true
	}
	return done, nil
}

// itemUnits collects the distinct units under test, sorted for a
// deterministic embedding batch.
func itemUnits(perModel map[string][]workItem) []*types.CodeUnit {
	seen := make(map[string]*types.CodeUnit)
	for _, items := range perModel {
		for _, it := range items {
			seen[it.unit.ID] = it.unit
		}
	}
	units := make([]*types.CodeUnit, 0, len(seen))
	for _, u := range seen {
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
	return units
}

// summaryVectors embeds every summary text in one batch.
func summaryVectors(ctx context.Context, pctx *pipeline.Context, summaries []*types.GeneratedSummary) (map[string][]float32, error) {
	texts := make([]string, len(summaries))
	for i, s := range summaries {
		texts[i] = s.Text
	}
	batch, err := pctx.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	vectors := make(map[string][]float32, len(summaries))
	for i, s := range summaries {
		vectors[s.ID] = batch[i]
	}
	return vectors, nil
}

// queryVectors embeds one probe per unit: the first stored query, or
// the simple fallback when none was generated.
func queryVectors(ctx context.Context, pctx *pipeline.Context, units []*types.CodeUnit) (map[string][]float32, error) {
	stored, err := pctx.Store.GetQueries(pctx.RunID)
	if err != nil {
		return nil, err
	}
	firstQuery := make(map[string]string, len(stored))
	for _, q := range stored {
		if _, ok := firstQuery[q.CodeUnitID]; !ok {
			firstQuery[q.CodeUnitID] = q.Text
		}
	}

	texts := make([]string, len(units))
	for i, u := range units {
		if text, ok := firstQuery[u.ID]; ok {
			texts[i] = text
			continue
		}
		name := u.Name
		if u.Type == types.UnitFile || u.Type == types.UnitModule {
			name = path.Base(u.Path)
		}
		texts[i] = fmt.Sprintf("%s %s %s", u.Type, name, u.Language)
	}
	batch, err := pctx.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	vectors := make(map[string][]float32, len(units))
	for i, u := range units {
		vectors[u.ID] = batch[i]
	}
	return vectors, nil
}

// seedFor derives a stable RNG seed from identity strings.
func seedFor(parts ...string) int64 {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return int64(h.Sum64())
}
