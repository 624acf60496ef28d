package store

import (
	"testing"

	"sumbench/internal/types"
)

func TestInsertSummariesReplacesOnConflict(t *testing.T) {
	s := newTestStore(t)
	run := seedRun(t, s)
	units := seedUnits(t, s, run.ID, 1)

	first := &types.GeneratedSummary{
		ID: "sum-1", RunID: run.ID, CodeUnitID: units[0].ID, ModelID: "m1",
		Text: "first attempt",
	}
	if err := s.InsertSummaries([]*types.GeneratedSummary{first}); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	// Same (run, unit, model) with a new id replaces the old row.
	second := &types.GeneratedSummary{
		ID: "sum-2", RunID: run.ID, CodeUnitID: units[0].ID, ModelID: "m1",
		Text: "second attempt",
	}
	if err := s.InsertSummaries([]*types.GeneratedSummary{second}); err != nil {
		t.Fatalf("Failed to replace: %v", err)
	}

	got, err := s.GetSummaries(run.ID, "m1")
	if err != nil {
		t.Fatalf("Failed to get summaries: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Have %d summaries, want 1", len(got))
	}
	if got[0].ID != "sum-2" || got[0].Text != "second attempt" {
		t.Errorf("Replace kept the wrong row: %+v", got[0])
	}

	// A different model on the same unit coexists.
	other := &types.GeneratedSummary{
		ID: "sum-3", RunID: run.ID, CodeUnitID: units[0].ID, ModelID: "m2",
		Text: "other model",
	}
	if err := s.InsertSummaries([]*types.GeneratedSummary{other}); err != nil {
		t.Fatalf("Failed to insert other model: %v", err)
	}
	all, _ := s.GetSummaries(run.ID, "")
	if len(all) != 2 {
		t.Errorf("Have %d summaries across models, want 2", len(all))
	}
}

func TestUpdateSummaryInPlace(t *testing.T) {
	s := newTestStore(t)
	run := seedRun(t, s)
	units := seedUnits(t, s, run.ID, 1)
	sum := seedSummary(t, s, run.ID, units[0].ID, "m1")

	refined := "refined text"
	meta := sum.Metadata
	meta.RefinementRound = 2
	if err := s.UpdateSummary(sum.ID, &refined, &meta); err != nil {
		t.Fatalf("Failed to update summary: %v", err)
	}

	got, err := s.GetSummary(sum.ID)
	if err != nil {
		t.Fatalf("Failed to get summary: %v", err)
	}
	if got.Text != "refined text" {
		t.Errorf("Text = %q, want refined text", got.Text)
	}
	if got.Metadata.RefinementRound != 2 {
		t.Errorf("RefinementRound = %d, want 2", got.Metadata.RefinementRound)
	}
	if got.Metadata.LatencyMS != 120 {
		t.Errorf("Unrelated metadata lost: %+v", got.Metadata)
	}

	// Text-only update leaves metadata alone.
	again := "third text"
	if err := s.UpdateSummary(sum.ID, &again, nil); err != nil {
		t.Fatalf("Failed text-only update: %v", err)
	}
	got, _ = s.GetSummary(sum.ID)
	if got.Metadata.RefinementRound != 2 {
		t.Error("Text-only update should not touch metadata")
	}

	if err := s.UpdateSummary("missing", &again, nil); err == nil {
		t.Error("Updating a missing summary should fail")
	}
}

func TestGetSummariesOrdering(t *testing.T) {
	s := newTestStore(t)
	run := seedRun(t, s)
	units := seedUnits(t, s, run.ID, 3)

	// Insert out of order; reads must come back sorted by (unit, model).
	for _, pair := range [][2]string{
		{units[2].ID, "m2"}, {units[0].ID, "m1"}, {units[1].ID, "m2"},
		{units[0].ID, "m2"}, {units[2].ID, "m1"}, {units[1].ID, "m1"},
	} {
		seedSummary(t, s, run.ID, pair[0], pair[1])
	}

	got, err := s.GetSummaries(run.ID, "")
	if err != nil {
		t.Fatalf("Failed to get summaries: %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("Have %d summaries, want 6", len(got))
	}
	for i := 1; i < len(got); i++ {
		prev, cur := got[i-1], got[i]
		if prev.CodeUnitID > cur.CodeUnitID ||
			(prev.CodeUnitID == cur.CodeUnitID && prev.ModelID > cur.ModelID) {
			t.Fatalf("Summaries out of order at %d: %s/%s after %s/%s",
				i, cur.CodeUnitID, cur.ModelID, prev.CodeUnitID, prev.ModelID)
		}
	}
}
