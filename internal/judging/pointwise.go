package judging

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"sumbench/internal/errs"
	"sumbench/internal/judges"
	"sumbench/internal/llm"
	"sumbench/internal/pipeline"
	"sumbench/internal/types"
)

// pointwiseTask is one (summary, judge) rubric scoring.
type pointwiseTask struct {
	summary *types.GeneratedSummary
	judge   string
}

func (t pointwiseTask) key() string  { return t.summary.ID + "\x00" + t.judge }
func (t pointwiseTask) item() string { return t.summary.ID + "/" + t.judge }

// planPointwise enumerates every (summary, judge) pairing the selector
// allows. Generator models with no eligible judge contribute zero tasks
// and one absorbed failure; their summaries simply go unscored.
func planPointwise(summaries []*types.GeneratedSummary, available []string, minJudges int) ([]pointwiseTask, []pipeline.Failure) {
	judgesByModel := make(map[string][]string)
	var failures []pipeline.Failure

	var tasks []pointwiseTask
	for _, s := range summaries {
		eligible, ok := judgesByModel[s.ModelID]
		if !ok {
			var err error
			eligible, err = judges.SelectJudges(s.ModelID, available, minJudges)
			if err != nil {
				eligible = nil
				failures = append(failures, pipeline.Failure{Item: s.ModelID, Err: err})
			}
			judgesByModel[s.ModelID] = eligible
		}
		for _, j := range eligible {
			tasks = append(tasks, pointwiseTask{summary: s, judge: j})
		}
	}
	return tasks, failures
}

// scoredPointwise returns the (summary, judge) keys already persisted.
func scoredPointwise(pctx *pipeline.Context) (map[string]bool, error) {
	prior, err := pctx.Store.GetEvaluationResults(pctx.RunID, types.KindJudge)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(prior))
	for _, r := range prior {
		done[r.SummaryID+"\x00"+r.Judge.JudgeModel] = true
	}
	return done, nil
}

// runPointwise scores the pending tasks, one pool per judge with all
// judges in parallel.
func runPointwise(ctx context.Context, pctx *pipeline.Context, tasks []pointwiseTask, done map[string]bool, byID map[string]*types.CodeUnit, finish func(item, lastID string, err error) error) error {
	cfg := pctx.Config.Evaluation.Judge
	parallelism := cfg.PointwiseParallelism
	if parallelism <= 0 {
		parallelism = 30
	}

	byJudge := make(map[string][]pointwiseTask)
	for _, t := range tasks {
		if done[t.key()] {
			continue
		}
		byJudge[t.judge] = append(byJudge[t.judge], t)
	}

	group, gctx := errgroup.WithContext(ctx)
	for judge, judgeTasks := range byJudge {
		client, err := pctx.Registry.Client(judge)
		if err != nil {
			return err
		}
		group.Go(func() error {
			pool, poolCtx := errgroup.WithContext(gctx)
			pool.SetLimit(parallelism)
			for _, t := range judgeTasks {
				pool.Go(func() error {
					err := scoreOne(poolCtx, pctx, client, t, byID)
					if err != nil && (errors.Is(err, context.Canceled) || errs.PhaseFatal(errs.KindOf(err))) {
						return err
					}
					return finish(t.item(), t.summary.ID, err)
				})
			}
			return pool.Wait()
		})
	}
	return group.Wait()
}

// scoreOne asks one judge for a rubric verdict on one summary and
// persists it.
func scoreOne(ctx context.Context, pctx *pipeline.Context, client llm.Client, t pointwiseTask, byID map[string]*types.CodeUnit) error {
	const op = "judging.scoreOne"

	unit, ok := byID[t.summary.CodeUnitID]
	if !ok {
		return errs.New(errs.KindCorruptedData, op, "unit %s not found for summary %s",
			t.summary.CodeUnitID, t.summary.ID)
	}

	comp, err := llm.CompleteWithRetry(ctx, client, llm.UserRequest(rubricSystem, rubricPrompt(unit, t.summary.Text)))
	if err != nil {
		return err
	}
	payload, err := parseRubric(op, t.judge, comp.Content)
	if err != nil {
		return err
	}

	return pctx.Store.InsertEvaluationResult(&types.EvaluationResult{
		RunID:     pctx.RunID,
		SummaryID: t.summary.ID,
		Kind:      types.KindJudge,
		Judge:     payload,
	})
}
