package extract

import (
	"context"

	"sumbench/internal/pipeline"
	"sumbench/internal/types"
)

// Executor implements the extraction phase. Units insert in one
// transaction, so a resumed run either has all of them or none.
type Executor struct{}

func NewExecutor() *Executor { return &Executor{} }

func (e *Executor) Phase() types.Phase { return types.PhaseExtraction }

func (e *Executor) Execute(ctx context.Context, pctx *pipeline.Context) (*pipeline.Outcome, error) {
	count, err := pctx.Store.CountCodeUnits(pctx.RunID)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		if err := pctx.State.StartPhase(pctx.RunID, types.PhaseExtraction, count); err != nil {
			return nil, err
		}
		if err := pctx.State.UpdateProgress(pctx.RunID, types.PhaseExtraction, count, ""); err != nil {
			return nil, err
		}
		pctx.Report(types.PhaseExtraction, count, count, "units already extracted")
		return &pipeline.Outcome{Total: count, Completed: count}, nil
	}

	res, err := New(pctx.Config).Extract(ctx, pctx.RunID)
	if err != nil {
		return nil, err
	}

	failures := make([]pipeline.Failure, 0, len(res.Failures))
	for _, f := range res.Failures {
		failures = append(failures, pipeline.Failure{Item: f.Path, Err: f.Err})
	}

	if len(res.Units) == 0 {
		if err := pctx.State.StartPhase(pctx.RunID, types.PhaseExtraction, 0); err != nil {
			return nil, err
		}
		return &pipeline.Outcome{
			SkipReason: "no code units found under " + pctx.Config.Project.Root,
			Failures:   failures,
		}, nil
	}

	if err := pctx.State.StartPhase(pctx.RunID, types.PhaseExtraction, len(res.Units)); err != nil {
		return nil, err
	}
	if err := pctx.Store.InsertCodeUnits(res.Units); err != nil {
		return nil, err
	}
	if err := pctx.Store.SetRunCodebaseInfo(pctx.RunID, res.Info); err != nil {
		return nil, err
	}
	last := res.Units[len(res.Units)-1].ID
	if err := pctx.State.UpdateProgress(pctx.RunID, types.PhaseExtraction, len(res.Units), last); err != nil {
		return nil, err
	}
	pctx.Report(types.PhaseExtraction, len(res.Units), len(res.Units), res.Info.Name)

	return &pipeline.Outcome{Total: len(res.Units), Completed: len(res.Units), Failures: failures}, nil
}
