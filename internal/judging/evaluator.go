// Package judging scores summaries with LLM judges: pointwise against a
// five-criterion rubric and pairwise in a budgeted head-to-head
// tournament. No judge ever grades its own family's output, and every
// comparison runs in both presentation orders so position bias cancels
// in aggregate.
package judging

import (
	"context"
	"sync"

	"sumbench/internal/logging"
	"sumbench/internal/pipeline"
	"sumbench/internal/types"
)

// Executor implements the judge evaluation phase.
type Executor struct{}

func NewExecutor() *Executor { return &Executor{} }

func (e *Executor) Phase() types.Phase { return types.PhaseJudge }

func (e *Executor) Execute(ctx context.Context, pctx *pipeline.Context) (*pipeline.Outcome, error) {
	cfg := pctx.Config.Evaluation.Judge

	skip := func(reason string) (*pipeline.Outcome, error) {
		if err := pctx.State.StartPhase(pctx.RunID, types.PhaseJudge, 0); err != nil {
			return nil, err
		}
		return &pipeline.Outcome{SkipReason: reason}, nil
	}
	if !cfg.Enabled {
		return skip("judge evaluator disabled")
	}
	if !cfg.Pointwise && !cfg.Pairwise {
		return skip("both judge protocols disabled")
	}

	summaries, err := pctx.Store.GetSummaries(pctx.RunID, "")
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return skip("no summaries to judge")
	}
	units, err := pctx.Store.GetCodeUnits(pctx.RunID)
	if err != nil {
		return nil, err
	}

	available := pctx.Config.JudgeIDs()
	minJudges := cfg.MinJudges
	if minJudges <= 0 {
		minJudges = 1
	}

	var failures []pipeline.Failure

	var pointTasks []pointwiseTask
	if cfg.Pointwise {
		var planFailures []pipeline.Failure
		pointTasks, planFailures = planPointwise(summaries, available, minJudges)
		failures = append(failures, planFailures...)
	}
	var comparisons []comparison
	if cfg.Pairwise {
		var planFailures []pipeline.Failure
		comparisons, planFailures = planPairwise(cfg, summaries, available)
		failures = append(failures, planFailures...)
	}

	total := len(pointTasks) + len(comparisons)
	if total == 0 {
		return skip("no generator has an eligible judge")
	}
	if err := pctx.State.StartPhase(pctx.RunID, types.PhaseJudge, total); err != nil {
		return nil, err
	}

	donePoint, err := scoredPointwise(pctx)
	if err != nil {
		return nil, err
	}
	donePair, err := judgedComparisons(pctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*types.CodeUnit, len(units))
	for _, u := range units {
		byID[u.ID] = u
	}
	texts := make(map[string]string, len(summaries))
	for _, s := range summaries {
		texts[s.CodeUnitID+"\x00"+s.ModelID] = s.Text
	}

	var (
		mu        sync.Mutex
		completed int
	)
	for _, t := range pointTasks {
		if donePoint[t.key()] {
			completed++
		}
	}
	for _, c := range comparisons {
		if donePair[c.key()] {
			completed++
		}
	}
	logging.Judge("Judging: %d pointwise + %d pairwise tasks (%d already done)",
		len(pointTasks), len(comparisons), completed)

	finish := func(item, lastID string, err error) error {
		mu.Lock()
		defer mu.Unlock()
		completed++
		if err != nil {
			failures = append(failures, pipeline.Failure{Item: item, Err: err})
			logging.JudgeWarn("Task %s failed: %v", item, err)
		}
		if perr := pctx.State.UpdateProgress(pctx.RunID, types.PhaseJudge, completed, lastID); perr != nil {
			return perr
		}
		pctx.Report(types.PhaseJudge, completed, total, item)
		return nil
	}

	if len(pointTasks) > 0 {
		if err := runPointwise(ctx, pctx, pointTasks, donePoint, byID, finish); err != nil {
			return nil, err
		}
	}
	if len(comparisons) > 0 {
		if err := runPairwise(ctx, pctx, comparisons, donePair, byID, texts, finish); err != nil {
			return nil, err
		}
	}

	return &pipeline.Outcome{Total: total, Completed: completed, Failures: failures}, nil
}
