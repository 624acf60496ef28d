package extract

import (
	"context"
	"testing"

	"sumbench/internal/config"
	"sumbench/internal/pipeline"
	"sumbench/internal/store"
	"sumbench/internal/types"
)

func executorContext(t *testing.T, cfg *config.Config) *pipeline.Context {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	run := &types.Run{Name: "extract-test"}
	if err := st.CreateRun(run); err != nil {
		t.Fatalf("Failed to create run: %v", err)
	}
	return pipeline.NewContext(run.ID, cfg, st, nil, nil)
}

func TestExecuteStoresUnitsAndInfo(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"counter.go": goSource,
		"broken.go":  "package x\nfunc {{{",
	})
	pctx := executorContext(t, extractConfig(root))

	out, err := NewExecutor().Execute(context.Background(), pctx)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out.Total != 3 || out.Completed != 3 {
		t.Errorf("outcome = %d/%d, want 3/3", out.Completed, out.Total)
	}
	if len(out.Failures) != 1 || out.Failures[0].Item != "broken.go" {
		t.Errorf("failures = %+v, want the broken file", out.Failures)
	}

	units, err := pctx.Store.GetCodeUnits(pctx.RunID)
	if err != nil {
		t.Fatalf("GetCodeUnits failed: %v", err)
	}
	if len(units) != 3 {
		t.Errorf("stored %d units, want 3", len(units))
	}

	run, err := pctx.Store.GetRun(pctx.RunID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.CodebaseInfo == nil || run.CodebaseInfo.Languages["go"] != 1 {
		t.Errorf("codebase info = %+v, want go counted", run.CodebaseInfo)
	}

	progress, err := pctx.State.Progress(pctx.RunID, types.PhaseExtraction)
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if progress.Total != 3 || progress.Completed != 3 || progress.LastProcessedID == "" {
		t.Errorf("progress = %+v, want full cursor", progress)
	}
}

func TestExecuteResumeKeepsStoredUnits(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"counter.go": goSource})
	pctx := executorContext(t, extractConfig(root))

	if _, err := NewExecutor().Execute(context.Background(), pctx); err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}
	first, err := pctx.Store.GetCodeUnits(pctx.RunID)
	if err != nil {
		t.Fatalf("GetCodeUnits failed: %v", err)
	}

	out, err := NewExecutor().Execute(context.Background(), pctx)
	if err != nil {
		t.Fatalf("second Execute failed: %v", err)
	}
	if out.Total != len(first) || out.Completed != len(first) {
		t.Errorf("resumed outcome = %d/%d, want %d/%d", out.Completed, out.Total, len(first), len(first))
	}

	second, err := pctx.Store.GetCodeUnits(pctx.RunID)
	if err != nil {
		t.Fatalf("GetCodeUnits failed: %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("rerun changed unit count: %d -> %d", len(first), len(second))
	}
	// Same ids: the rerun must not re-extract.
	ids := make(map[string]bool, len(first))
	for _, u := range first {
		ids[u.ID] = true
	}
	for _, u := range second {
		if !ids[u.ID] {
			t.Errorf("unit %s appeared only on rerun", u.ID)
		}
	}
}

func TestExecuteSkipsEmptyTree(t *testing.T) {
	pctx := executorContext(t, extractConfig(t.TempDir()))

	out, err := NewExecutor().Execute(context.Background(), pctx)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out.SkipReason == "" {
		t.Error("skip reason empty for an empty tree")
	}
	if err := pctx.State.CompletePhase(pctx.RunID, types.PhaseExtraction, out.SkipReason); err != nil {
		t.Errorf("CompletePhase failed: %v", err)
	}
}
