// Package contrastive tests whether a summary pins down the code it
// describes. Each summary faces its own unit hidden among distractors
// drawn from the same language; a summary that cannot be matched back
// to its unit carries too little identity to be useful.
package contrastive

import (
	"context"
	"errors"
	"math/rand"
	"sync"

	"golang.org/x/sync/errgroup"

	"sumbench/internal/embedding"
	"sumbench/internal/errs"
	"sumbench/internal/judges"
	"sumbench/internal/llm"
	"sumbench/internal/logging"
	"sumbench/internal/pipeline"
	"sumbench/internal/types"
)

// Executor implements the contrastive evaluation phase.
type Executor struct{}

func NewExecutor() *Executor { return &Executor{} }

func (e *Executor) Phase() types.Phase { return types.PhaseContrastive }

// task is one (summary, method) evaluation.
type task struct {
	summary *types.GeneratedSummary
	method  string
}

func (t task) key() string  { return t.summary.ID + "\x00" + t.method }
func (t task) item() string { return t.summary.ID + "/" + t.method }

func (e *Executor) Execute(ctx context.Context, pctx *pipeline.Context) (*pipeline.Outcome, error) {
	cfg := pctx.Config.Evaluation.Contrastive

	skip := func(reason string) (*pipeline.Outcome, error) {
		if err := pctx.State.StartPhase(pctx.RunID, types.PhaseContrastive, 0); err != nil {
			return nil, err
		}
		return &pipeline.Outcome{SkipReason: reason}, nil
	}
	if !cfg.Enabled {
		return skip("contrastive evaluator disabled")
	}

	summaries, err := pctx.Store.GetSummaries(pctx.RunID, "")
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return skip("no summaries to evaluate")
	}
	units, err := pctx.Store.GetCodeUnits(pctx.RunID)
	if err != nil {
		return nil, err
	}

	sizes := cohortSizes(units)
	if largestCohort(sizes) < minCohort {
		return skip("largest language cohort is too small for distractors: " + describeCohorts(sizes))
	}

	n := cfg.DistractorCount
	if n <= 0 {
		n = 9
	}
	sets, err := buildSets(ctx, pctx, units, n)
	if err != nil {
		return nil, err
	}

	methods := methodsFor(cfg.Method)
	total := len(summaries) * len(methods)
	if err := pctx.State.StartPhase(pctx.RunID, types.PhaseContrastive, total); err != nil {
		return nil, err
	}

	done, err := evaluatedTasks(pctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*types.CodeUnit, len(units))
	for _, u := range units {
		byID[u.ID] = u
	}

	// Everything the embedding method scores is embedded in two upfront
	// batches; workers then only read maps.
	var unitVecs, sumVecs map[string][]float32
	if hasMethod(methods, types.MethodEmbedding) {
		unitVecs, err = contentVectors(ctx, pctx, units)
		if err != nil {
			return nil, err
		}
		sumVecs, err = summaryVectors(ctx, pctx, summaries)
		if err != nil {
			return nil, err
		}
	}

	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = 30
	}

	var (
		mu        sync.Mutex
		completed int
		failures  []pipeline.Failure
	)
	for _, t := range tasks(summaries, methods) {
		if done[t.key()] {
			completed++
		}
	}
	logging.Contrastive("Contrastive: %d tasks over %d summaries with %v (%d already scored)",
		total, len(summaries), methods, completed)

	finish := func(t task, err error) error {
		mu.Lock()
		defer mu.Unlock()
		completed++
		if err != nil {
			failures = append(failures, pipeline.Failure{Item: t.item(), Err: err})
			logging.ContrastiveWarn("Task %s failed: %v", t.item(), err)
		}
		if perr := pctx.State.UpdateProgress(pctx.RunID, types.PhaseContrastive, completed, t.summary.ID); perr != nil {
			return perr
		}
		pctx.Report(types.PhaseContrastive, completed, total, t.method)
		return nil
	}

	group, gctx := errgroup.WithContext(ctx)
	for _, method := range methods {
		group.Go(func() error {
			pool, poolCtx := errgroup.WithContext(gctx)
			pool.SetLimit(parallelism)
			for _, s := range summaries {
				t := task{summary: s, method: method}
				if done[t.key()] {
					continue
				}
				pool.Go(func() error {
					payload, err := e.evalOne(poolCtx, pctx, t, sets, byID, unitVecs, sumVecs)
					if err != nil {
						if errors.Is(err, context.Canceled) || errs.PhaseFatal(errs.KindOf(err)) {
							return err
						}
						return finish(t, err)
					}
					result := &types.EvaluationResult{
						RunID:       pctx.RunID,
						SummaryID:   t.summary.ID,
						Kind:        types.KindContrastive,
						Contrastive: payload,
					}
					if err := pctx.Store.InsertEvaluationResult(result); err != nil {
						return err
					}
					return finish(t, nil)
				})
			}
			return pool.Wait()
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	return &pipeline.Outcome{Total: total, Completed: completed, Failures: failures}, nil
}

func (e *Executor) evalOne(ctx context.Context, pctx *pipeline.Context, t task, sets map[string]*types.DistractorSet, byID map[string]*types.CodeUnit, unitVecs, sumVecs map[string][]float32) (*types.ContrastivePayload, error) {
	const op = "contrastive.evalOne"

	set, ok := sets[t.summary.CodeUnitID]
	if !ok {
		return nil, errs.New(errs.KindInsufficientDistractors, op,
			"no distractor set for unit %s", t.summary.CodeUnitID)
	}
	candidates, err := candidateUnits(t.summary.CodeUnitID, set, byID)
	if err != nil {
		return nil, err
	}

	switch t.method {
	case types.MethodEmbedding:
		return evalEmbedding(t.summary, set, candidates, unitVecs, sumVecs)
	case types.MethodLLM:
		return evalLLM(ctx, pctx, t.summary, set, candidates)
	default:
		return nil, errs.New(errs.KindConfig, op, "unknown method %q", t.method)
	}
}

// candidateUnits resolves a set into units, target first then
// distractors in stored order.
func candidateUnits(targetID string, set *types.DistractorSet, byID map[string]*types.CodeUnit) ([]*types.CodeUnit, error) {
	const op = "contrastive.candidateUnits"

	target, ok := byID[targetID]
	if !ok {
		return nil, errs.New(errs.KindCorruptedData, op, "target unit %s not found", targetID)
	}
	candidates := make([]*types.CodeUnit, 0, len(set.DistractorIDs)+1)
	candidates = append(candidates, target)
	for _, id := range set.DistractorIDs {
		u, ok := byID[id]
		if !ok {
			return nil, errs.New(errs.KindCorruptedData, op, "distractor unit %s not found", id)
		}
		candidates = append(candidates, u)
	}
	return candidates, nil
}

// evalEmbedding ranks the candidates by similarity to the summary. The
// target sits at index 0, so equal similarities resolve in its favor.
func evalEmbedding(s *types.GeneratedSummary, set *types.DistractorSet, candidates []*types.CodeUnit, unitVecs, sumVecs map[string][]float32) (*types.ContrastivePayload, error) {
	sumVec, ok := sumVecs[s.ID]
	if !ok {
		return nil, errs.New(errs.KindCorruptedData, "contrastive.evalEmbedding",
			"no embedding for summary %s", s.ID)
	}

	sims := make([]float64, len(candidates))
	for i, c := range candidates {
		sim, err := embedding.CosineSimilarity(sumVec, unitVecs[c.ID])
		if err != nil {
			return nil, errs.E(errs.KindCorruptedData, "contrastive.evalEmbedding", err)
		}
		sims[i] = sim
	}

	rank := 1
	for _, sim := range sims[1:] {
		if sim > sims[0] {
			rank++
		}
	}
	top1, top2 := topTwo(sims)

	return &types.ContrastivePayload{
		Method:          types.MethodEmbedding,
		Correct:         rank == 1,
		PredictedRank:   rank,
		ConfidenceGap:   top1 - top2,
		DistractorSetID: set.ID,
		Difficulty:      set.Difficulty,
		CandidateCount:  len(candidates),
	}, nil
}

// evalLLM shows a judge the shuffled lineup and asks which option the
// summary describes. The shuffle is seeded by summary id so a resumed
// run presents identical lineups.
func evalLLM(ctx context.Context, pctx *pipeline.Context, s *types.GeneratedSummary, set *types.DistractorSet, candidates []*types.CodeUnit) (*types.ContrastivePayload, error) {
	const op = "contrastive.evalLLM"

	shuffled := make([]*types.CodeUnit, len(candidates))
	copy(shuffled, candidates)
	rng := rand.New(rand.NewSource(seedFor(s.ID)))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	targetPos := 0
	for i, c := range shuffled {
		if c.ID == s.CodeUnitID {
			targetPos = i + 1
			break
		}
	}

	eligible, err := judges.SelectJudges(s.ModelID, pctx.Config.JudgeIDs(), 1)
	if err != nil {
		return nil, err
	}
	judge := eligible[0]
	client, err := pctx.Registry.Client(judge)
	if err != nil {
		return nil, err
	}

	comp, err := llm.CompleteWithRetry(ctx, client, llm.UserRequest(matchSystem, matchPrompt(s.Text, shuffled)))
	if err != nil {
		return nil, err
	}
	var verdict struct {
		Choice int `json:"choice"`
	}
	if err := llm.ParseJSON(op, judge, comp.Content, &verdict); err != nil {
		return nil, err
	}
	if verdict.Choice < 1 || verdict.Choice > len(shuffled) {
		return nil, errs.New(errs.KindInvalidResponse, op,
			"choice %d outside 1..%d", verdict.Choice, len(shuffled)).WithModel(judge)
	}

	return &types.ContrastivePayload{
		Method:          types.MethodLLM,
		Correct:         verdict.Choice == targetPos,
		ChosenOption:    verdict.Choice,
		TargetPosition:  targetPos,
		JudgeModel:      judge,
		DistractorSetID: set.ID,
		Difficulty:      set.Difficulty,
		CandidateCount:  len(shuffled),
	}, nil
}

// summaryVectors embeds every summary text in one cached batch.
func summaryVectors(ctx context.Context, pctx *pipeline.Context, summaries []*types.GeneratedSummary) (map[string][]float32, error) {
	texts := make([]string, len(summaries))
	for i, s := range summaries {
		texts[i] = s.Text
	}
	vecs, err := pctx.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	vectors := make(map[string][]float32, len(summaries))
	for i, s := range summaries {
		vectors[s.ID] = vecs[i]
	}
	return vectors, nil
}

func evaluatedTasks(pctx *pipeline.Context) (map[string]bool, error) {
	prior, err := pctx.Store.GetEvaluationResults(pctx.RunID, types.KindContrastive)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(prior))
	for _, r := range prior {
		done[r.SummaryID+"\x00"+r.Contrastive.Method] = true
	}
	return done, nil
}

func tasks(summaries []*types.GeneratedSummary, methods []string) []task {
	out := make([]task, 0, len(summaries)*len(methods))
	for _, method := range methods {
		for _, s := range summaries {
			out = append(out, task{summary: s, method: method})
		}
	}
	return out
}

func methodsFor(m string) []string {
	switch m {
	case types.MethodEmbedding:
		return []string{types.MethodEmbedding}
	case types.MethodLLM:
		return []string{types.MethodLLM}
	default:
		return []string{types.MethodEmbedding, types.MethodLLM}
	}
}

func hasMethod(methods []string, m string) bool {
	for _, method := range methods {
		if method == m {
			return true
		}
	}
	return false
}

func topTwo(sims []float64) (float64, float64) {
	top1, top2 := -1.0, -1.0
	for _, s := range sims {
		switch {
		case s > top1:
			top2 = top1
			top1 = s
		case s > top2:
			top2 = s
		}
	}
	return top1, top2
}
