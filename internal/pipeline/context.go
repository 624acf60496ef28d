// Package pipeline sequences the benchmark phases over a run. The
// orchestrator owns phase ordering, resumption, and failure policy;
// executors own the work inside one phase.
package pipeline

import (
	"context"

	"sumbench/internal/config"
	"sumbench/internal/embedding"
	"sumbench/internal/llm"
	"sumbench/internal/state"
	"sumbench/internal/store"
	"sumbench/internal/types"
)

// Context carries the shared collaborators executors need. One Context
// serves a whole run; executors must treat it as read-only.
//
// Division of labor with the orchestrator: an executor calls
// State.StartPhase once it knows its item total and advances the cursor
// as it works; the orchestrator completes the phase and moves run
// status. Absorbed per-item failures count as attempted items so a
// phase with failures can still reach its total; resumption re-derives
// outstanding work from stored rows, never from the cursor.
type Context struct {
	RunID    string
	Config   *config.Config
	Store    *store.Store
	State    *state.Machine
	Registry *llm.Registry
	Embedder embedding.Engine

	progress func(ProgressEvent)
}

// NewContext builds the executor context for one run.
func NewContext(runID string, cfg *config.Config, st *store.Store, reg *llm.Registry, eng embedding.Engine) *Context {
	return &Context{
		RunID:    runID,
		Config:   cfg,
		Store:    st,
		State:    state.New(st),
		Registry: reg,
		Embedder: eng,
	}
}

// OnProgress registers the callback Report publishes to. Register
// before the run starts; swapping it mid-run races with executors.
func (c *Context) OnProgress(fn func(ProgressEvent)) {
	c.progress = fn
}

// Report publishes a progress tick. Safe to call from any goroutine;
// delivery never blocks the executor.
func (c *Context) Report(phase types.Phase, completed, total int, message string) {
	if c.progress != nil {
		c.progress(ProgressEvent{
			RunID:     c.RunID,
			Phase:     phase,
			Completed: completed,
			Total:     total,
			Message:   message,
		})
	}
}

// Executor runs one phase of a run until done or the context is
// canceled. A nil error with a partial Outcome is not possible: either
// the phase completed (or skipped) or Execute returns the error that
// stopped it.
type Executor interface {
	Phase() types.Phase
	Execute(ctx context.Context, pctx *Context) (*Outcome, error)
}

// Outcome reports what one executor pass accomplished. SkipReason set
// means the phase did not apply (disabled evaluator, no inputs) and
// completed vacuously.
type Outcome struct {
	Total      int
	Completed  int
	SkipReason string
	Failures   []Failure
}

// Failure is one per-item failure that the phase absorbed rather than
// aborting on.
type Failure struct {
	Item string
	Err  error
}
