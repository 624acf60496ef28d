package pipeline

import (
	"context"
	"errors"

	"sumbench/internal/errs"
	"sumbench/internal/logging"
	"sumbench/internal/types"
	"sumbench/internal/usage"
)

// Orchestrator drives registered executors through the phase order.
// Phases with no executor complete vacuously, so downstream and self
// evaluation stay skippable slots until someone registers them.
type Orchestrator struct {
	executors map[types.Phase]Executor
	tally     *FailureTally
}

func NewOrchestrator() *Orchestrator {
	return &Orchestrator{
		executors: make(map[types.Phase]Executor),
		tally:     NewFailureTally(),
	}
}

// Register adds an executor for its phase, replacing any previous one.
func (o *Orchestrator) Register(e Executor) {
	o.executors[e.Phase()] = e
}

// Failures exposes the per-phase failures absorbed so far, for the
// report's failure appendix.
func (o *Orchestrator) Failures() *FailureTally { return o.tally }

// Run executes the pipeline from the first incomplete phase. Cancel
// marks the run paused and returns the context error; any other
// executor failure marks the run failed with the error recorded on the
// run row. The run is completed when the last phase finishes.
func (o *Orchestrator) Run(ctx context.Context, pctx *Context) error {
	const op = "pipeline.Run"

	run, err := pctx.Store.GetRun(pctx.RunID)
	if err != nil {
		return err
	}
	switch run.Status {
	case types.StatusPending, types.StatusPaused, types.StatusRunning:
	default:
		return errs.New(errs.KindInvalidTransition, op,
			"run %s is %s and cannot execute", run.ID, run.Status)
	}

	start, ok, err := pctx.State.FirstIncomplete(pctx.RunID)
	if err != nil {
		return err
	}
	if !ok {
		logging.Pipeline("Run %s has no incomplete phases", pctx.RunID)
		return pctx.State.SetStatus(pctx.RunID, types.StatusCompleted, types.PhaseReporting, "")
	}
	if run.Status == types.StatusPaused {
		logging.Pipeline("Resuming run %s at %s", pctx.RunID, start)
	}

	reached := false
	for _, phase := range types.PhaseOrder() {
		if !reached {
			if phase != start {
				continue
			}
			reached = true
		}
		if err := ctx.Err(); err != nil {
			return o.pause(pctx, phase, err)
		}

		exec, registered := o.executors[phase]
		if !registered {
			if err := pctx.State.StartPhase(pctx.RunID, phase, 0); err != nil {
				return o.fail(pctx, phase, err)
			}
			if err := pctx.State.CompletePhase(pctx.RunID, phase, "no executor registered"); err != nil {
				return o.fail(pctx, phase, err)
			}
			continue
		}

		timer := logging.StartTimer(logging.CategoryPipeline, string(phase))
		out, err := exec.Execute(usage.WithPhase(ctx, string(phase)), pctx)
		if err != nil {
			timer.Stop()
			if errors.Is(err, context.Canceled) {
				return o.pause(pctx, phase, err)
			}
			return o.fail(pctx, phase, err)
		}
		o.tally.Add(phase, out.Failures)
		if err := pctx.State.CompletePhase(pctx.RunID, phase, out.SkipReason); err != nil {
			timer.Stop()
			return o.fail(pctx, phase, err)
		}
		timer.Stop()

		if out.SkipReason != "" {
			logging.Pipeline("Phase %s skipped: %s", phase, out.SkipReason)
		} else {
			logging.Pipeline("Phase %s done: %d/%d items, %d failures",
				phase, out.Completed, out.Total, len(out.Failures))
		}
	}

	return pctx.State.SetStatus(pctx.RunID, types.StatusCompleted, types.PhaseReporting, "")
}

// pause records a cancellation. A run canceled before its first phase
// started is still pending; it stays pending rather than forcing an
// invalid pending -> paused edge.
func (o *Orchestrator) pause(pctx *Context, phase types.Phase, cause error) error {
	logging.Pipeline("Run %s paused during %s", pctx.RunID, phase)
	if err := pctx.State.SetStatus(pctx.RunID, types.StatusPaused, phase, ""); err != nil {
		logging.PipelineWarn("Could not mark run %s paused: %v", pctx.RunID, err)
	}
	return cause
}

func (o *Orchestrator) fail(pctx *Context, phase types.Phase, cause error) error {
	logging.PipelineWarn("Run %s failed during %s: %v", pctx.RunID, phase, cause)
	if err := pctx.State.SetStatus(pctx.RunID, types.StatusFailed, phase, cause.Error()); err != nil {
		logging.PipelineWarn("Could not mark run %s failed: %v", pctx.RunID, err)
	}
	return cause
}
