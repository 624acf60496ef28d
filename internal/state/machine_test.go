package state

import (
	"testing"

	"sumbench/internal/errs"
	"sumbench/internal/store"
	"sumbench/internal/types"
)

func newMachine(t *testing.T) (*Machine, *store.Store, *types.Run) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	run := &types.Run{Name: "machine-test"}
	if err := st.CreateRun(run); err != nil {
		t.Fatalf("Failed to create run: %v", err)
	}
	return New(st), st, run
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from types.RunStatus
		to   types.RunStatus
		want bool
	}{
		{"PendingToRunning", types.StatusPending, types.StatusRunning, true},
		{"PendingToPaused", types.StatusPending, types.StatusPaused, false},
		{"RunningToPaused", types.StatusRunning, types.StatusPaused, true},
		{"RunningToCompleted", types.StatusRunning, types.StatusCompleted, true},
		{"RunningToRunning", types.StatusRunning, types.StatusRunning, true},
		{"PausedToRunning", types.StatusPaused, types.StatusRunning, true},
		{"PausedToCompleted", types.StatusPaused, types.StatusCompleted, false},
		{"CompletedToRunning", types.StatusCompleted, types.StatusRunning, false},
		{"FailedToRunning", types.StatusFailed, types.StatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStartPhaseEnforcesOrder(t *testing.T) {
	m, _, run := newMachine(t)

	// Jumping straight to generation must fail: extraction never ran.
	err := m.StartPhase(run.ID, types.PhaseGeneration, 10)
	if err == nil {
		t.Fatal("StartPhase should reject an out-of-order phase")
	}
	if errs.KindOf(err) != errs.KindInvalidTransition {
		t.Errorf("KindOf = %s, want invalid_transition", errs.KindOf(err))
	}

	if err := m.StartPhase(run.ID, types.PhaseExtraction, 4); err != nil {
		t.Fatalf("Failed to start extraction: %v", err)
	}
	if err := m.UpdateProgress(run.ID, types.PhaseExtraction, 4, "unit-004"); err != nil {
		t.Fatalf("Failed to update progress: %v", err)
	}
	if err := m.CompletePhase(run.ID, types.PhaseExtraction, ""); err != nil {
		t.Fatalf("Failed to complete extraction: %v", err)
	}

	// Now generation may start.
	if err := m.StartPhase(run.ID, types.PhaseGeneration, 10); err != nil {
		t.Fatalf("Failed to start generation after extraction: %v", err)
	}

	if err := m.StartPhase(run.ID, "evaluation:bogus", 1); err == nil {
		t.Error("Unknown phase should be rejected")
	}
}

func TestCompletePhaseRequiresAllItems(t *testing.T) {
	m, _, run := newMachine(t)

	if err := m.StartPhase(run.ID, types.PhaseExtraction, 5); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	if err := m.UpdateProgress(run.ID, types.PhaseExtraction, 3, ""); err != nil {
		t.Fatalf("Failed to update: %v", err)
	}

	err := m.CompletePhase(run.ID, types.PhaseExtraction, "")
	if err == nil {
		t.Fatal("CompletePhase should reject 3 of 5 items")
	}
	if errs.KindOf(err) != errs.KindInvalidTransition {
		t.Errorf("KindOf = %s, want invalid_transition", errs.KindOf(err))
	}

	// A skip reason overrides the item count.
	if err := m.CompletePhase(run.ID, types.PhaseExtraction, "nothing to extract"); err != nil {
		t.Fatalf("Skip should complete the phase: %v", err)
	}

	// Completing twice is a rule violation.
	if err := m.CompletePhase(run.ID, types.PhaseExtraction, ""); err == nil {
		t.Error("Double complete should fail")
	}

	// Completing a phase that never started is too.
	if err := m.CompletePhase(run.ID, types.PhaseJudge, ""); err == nil {
		t.Error("Completing an unstarted phase should fail")
	}
}

func TestFirstIncompleteWalksOrder(t *testing.T) {
	m, _, run := newMachine(t)

	phase, ok, err := m.FirstIncomplete(run.ID)
	if err != nil {
		t.Fatalf("FirstIncomplete failed: %v", err)
	}
	if !ok || phase != types.PhaseExtraction {
		t.Errorf("Fresh run should resume at extraction, got %s (ok=%v)", phase, ok)
	}

	// Complete the first two phases, start the third.
	for _, p := range []types.Phase{types.PhaseExtraction, types.PhaseGeneration} {
		if err := m.StartPhase(run.ID, p, 0); err != nil {
			t.Fatalf("Failed to start %s: %v", p, err)
		}
		if err := m.CompletePhase(run.ID, p, ""); err != nil {
			t.Fatalf("Failed to complete %s: %v", p, err)
		}
	}
	if err := m.StartPhase(run.ID, types.PhaseIterative, 20); err != nil {
		t.Fatalf("Failed to start iterative: %v", err)
	}
	if err := m.UpdateProgress(run.ID, types.PhaseIterative, 7, "sum-007"); err != nil {
		t.Fatalf("Failed to update: %v", err)
	}

	// Pause mid-phase; the incomplete phase is where we resume.
	if err := m.SetStatus(run.ID, types.StatusPaused, types.PhaseIterative, ""); err != nil {
		t.Fatalf("Failed to pause: %v", err)
	}
	phase, ok, err = m.FirstIncomplete(run.ID)
	if err != nil {
		t.Fatalf("FirstIncomplete failed: %v", err)
	}
	if !ok || phase != types.PhaseIterative {
		t.Errorf("Should resume at iterative, got %s (ok=%v)", phase, ok)
	}

	p, err := m.Progress(run.ID, types.PhaseIterative)
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if p.Completed != 7 || p.LastProcessedID != "sum-007" {
		t.Errorf("Cursor lost across pause: %+v", p)
	}
}

func TestSetStatusRejectsBadEdges(t *testing.T) {
	m, st, run := newMachine(t)

	// pending -> paused is not an edge.
	if err := m.SetStatus(run.ID, types.StatusPaused, "", ""); err == nil {
		t.Error("pending -> paused should fail")
	}

	if err := m.SetStatus(run.ID, types.StatusRunning, types.PhaseExtraction, ""); err != nil {
		t.Fatalf("pending -> running failed: %v", err)
	}
	if err := m.SetStatus(run.ID, types.StatusCompleted, types.PhaseReporting, ""); err != nil {
		t.Fatalf("running -> completed failed: %v", err)
	}

	// Terminal runs accept nothing, including new phases.
	if err := m.SetStatus(run.ID, types.StatusRunning, "", ""); err == nil {
		t.Error("completed -> running should fail")
	}
	err := m.StartPhase(run.ID, types.PhaseExtraction, 1)
	if err == nil {
		t.Error("StartPhase on a terminal run should fail")
	}

	got, _ := st.GetRun(run.ID)
	if got.Status != types.StatusCompleted {
		t.Errorf("Run status mutated by rejected transitions: %s", got.Status)
	}
}
