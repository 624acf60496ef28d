// Package state enforces the run lifecycle on top of the store: runs
// move through a closed status graph, and phases start only when
// everything before them in the dependency order has finished. All
// rule violations surface as invalid-transition errors; the store
// itself stays policy-free.
package state

import (
	"sumbench/internal/errs"
	"sumbench/internal/logging"
	"sumbench/internal/store"
	"sumbench/internal/types"
)

// Machine applies transition rules before touching the store.
type Machine struct {
	store *store.Store
}

// New returns a Machine over st.
func New(st *store.Store) *Machine {
	return &Machine{store: st}
}

// statusTransitions is the closed run-status graph. running -> running
// covers phase advances inside an active run.
var statusTransitions = map[types.RunStatus]map[types.RunStatus]bool{
	types.StatusPending: {
		types.StatusRunning: true,
		types.StatusFailed:  true,
	},
	types.StatusRunning: {
		types.StatusRunning:   true,
		types.StatusPaused:    true,
		types.StatusCompleted: true,
		types.StatusFailed:    true,
	},
	types.StatusPaused: {
		types.StatusRunning: true,
		types.StatusFailed:  true,
	},
}

// CanTransition reports whether a run may move from one status to
// another. Terminal statuses allow nothing.
func CanTransition(from, to types.RunStatus) bool {
	return statusTransitions[from][to]
}

// SetStatus moves the run to a new status, validating the edge.
func (m *Machine) SetStatus(runID string, to types.RunStatus, phase types.Phase, errMsg string) error {
	const op = "state.SetStatus"

	run, err := m.store.GetRun(runID)
	if err != nil {
		return err
	}
	if !CanTransition(run.Status, to) {
		return errs.New(errs.KindInvalidTransition, op,
			"run %s: %s -> %s not allowed", runID, run.Status, to)
	}
	return m.store.UpdateRunStatus(runID, to, phase, errMsg)
}

// StartPhase begins a phase for a run. The phase must be known, the run
// non-terminal, and every earlier phase complete (or skipped). Writes
// the progress row and points the run at the phase.
func (m *Machine) StartPhase(runID string, phase types.Phase, total int) error {
	const op = "state.StartPhase"

	if !phase.Valid() {
		return errs.New(errs.KindInvalidTransition, op, "unknown phase: %s", phase)
	}
	run, err := m.store.GetRun(runID)
	if err != nil {
		return err
	}
	if !CanTransition(run.Status, types.StatusRunning) {
		return errs.New(errs.KindInvalidTransition, op,
			"run %s is %s, cannot start %s", runID, run.Status, phase)
	}

	done, err := m.doneSet(runID)
	if err != nil {
		return err
	}
	for _, earlier := range types.PhaseOrder() {
		if earlier == phase {
			break
		}
		if !done[earlier] {
			return errs.New(errs.KindInvalidTransition, op,
				"cannot start %s: %s has not completed", phase, earlier)
		}
	}

	if err := m.store.UpdateRunStatus(runID, types.StatusRunning, phase, ""); err != nil {
		return err
	}
	if err := m.store.StartPhase(runID, phase, total); err != nil {
		return err
	}

	logging.Pipeline("Run %s entered phase %s (total=%d)", runID, phase, total)
	return nil
}

// UpdateProgress advances the durable cursor for an in-flight phase.
func (m *Machine) UpdateProgress(runID string, phase types.Phase, completed int, lastProcessedID string) error {
	return m.store.UpdatePhaseProgress(runID, phase, completed, lastProcessedID)
}

// CompletePhase finishes a phase. Finishing demands every item done or
// an explicit skip reason; anything else is a rule violation, as is
// completing a phase twice.
func (m *Machine) CompletePhase(runID string, phase types.Phase, skipReason string) error {
	const op = "state.CompletePhase"

	p, err := m.store.GetPhaseProgress(runID, phase)
	if err != nil {
		return err
	}
	if p == nil {
		return errs.New(errs.KindInvalidTransition, op,
			"phase %s never started for run %s", phase, runID)
	}
	if p.Done() {
		return errs.New(errs.KindInvalidTransition, op,
			"phase %s already completed for run %s", phase, runID)
	}
	if skipReason == "" && p.Completed != p.Total {
		return errs.New(errs.KindInvalidTransition, op,
			"phase %s finished %d of %d items", phase, p.Completed, p.Total)
	}
	return m.store.CompletePhase(runID, phase, skipReason)
}

// FirstIncomplete returns the earliest phase that has not completed,
// which is where a paused or crashed run resumes. ok is false when the
// whole pipeline is done.
func (m *Machine) FirstIncomplete(runID string) (phase types.Phase, ok bool, err error) {
	done, err := m.doneSet(runID)
	if err != nil {
		return "", false, err
	}
	for _, p := range types.PhaseOrder() {
		if !done[p] {
			return p, true, nil
		}
	}
	return "", false, nil
}

// Progress returns the progress row for one phase (nil if unstarted).
func (m *Machine) Progress(runID string, phase types.Phase) (*types.PhaseProgress, error) {
	return m.store.GetPhaseProgress(runID, phase)
}

func (m *Machine) doneSet(runID string) (map[types.Phase]bool, error) {
	rows, err := m.store.GetAllPhaseProgress(runID)
	if err != nil {
		return nil, err
	}
	done := make(map[types.Phase]bool, len(rows))
	for _, p := range rows {
		done[p.Phase] = p.Done()
	}
	return done, nil
}
