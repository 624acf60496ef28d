package store

import (
	"errors"
	"testing"
	"time"

	"sumbench/internal/errs"
	"sumbench/internal/types"
)

func TestEvaluationResultPayloadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	run := seedRun(t, s)
	units := seedUnits(t, s, run.ID, 1)
	sum := seedSummary(t, s, run.ID, units[0].ID, "m1")

	results := []*types.EvaluationResult{
		{
			RunID: run.ID, SummaryID: sum.ID, Kind: types.KindJudge,
			Judge: &types.JudgePayload{
				JudgeModel:      "judge-1",
				Scores:          types.CriteriaScores{Accuracy: 5, Completeness: 4, SemanticRichness: 3, Abstraction: 4, Conciseness: 5},
				WeightedAverage: 4.25,
				Rationale:       "solid",
			},
		},
		{
			RunID: run.ID, SummaryID: sum.ID, Kind: types.KindContrastive,
			Contrastive: &types.ContrastivePayload{
				Method: types.MethodEmbedding, Correct: true, PredictedRank: 1,
				ConfidenceGap: 0.12, DistractorSetID: "ds-1",
				Difficulty: types.DifficultyHard, CandidateCount: 10,
			},
		},
		{
			RunID: run.ID, SummaryID: sum.ID, Kind: types.KindRetrieval,
			Retrieval: &types.RetrievalPayload{
				QueryID: "q-1", QueryType: "simple", ModelID: "m1",
				Rank: 3, ModelRank: 1, IsWinner: true, ReciprocalRank: 1.0 / 3.0,
				HitAtK: map[int]bool{1: false, 5: true, 10: true},
				PoolSize: 40, TotalModels: 2,
			},
		},
		{
			RunID: run.ID, SummaryID: sum.ID, Kind: types.KindIterative,
			Iterative: &types.IterativePayload{
				ModelID: "m1", Rounds: 2, Success: true,
				InitialRank: 7, FinalRank: 1, TargetRank: 3,
				History:         []types.RoundRecord{{Round: 0, Rank: 7, Score: 0.4}, {Round: 2, Rank: 1, Score: 0.9}},
				RefinementScore: 0.5, DurationMS: 1800,
			},
		},
	}
	for _, r := range results {
		if err := s.InsertEvaluationResult(r); err != nil {
			t.Fatalf("Failed to insert %s result: %v", r.Kind, err)
		}
	}

	all, err := s.GetEvaluationResults(run.ID, "")
	if err != nil {
		t.Fatalf("Failed to get results: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("Have %d results, want 4", len(all))
	}

	judges, err := s.GetEvaluationResults(run.ID, types.KindJudge)
	if err != nil {
		t.Fatalf("Failed to filter by kind: %v", err)
	}
	if len(judges) != 1 {
		t.Fatalf("Have %d judge results, want 1", len(judges))
	}
	if judges[0].Judge == nil || judges[0].Judge.Scores.Accuracy != 5 {
		t.Errorf("Judge payload lost: %+v", judges[0].Judge)
	}
	if judges[0].Contrastive != nil || judges[0].Retrieval != nil {
		t.Error("Inactive payload slots should stay nil")
	}

	retrievals, _ := s.GetEvaluationResults(run.ID, types.KindRetrieval)
	if len(retrievals) != 1 || retrievals[0].Retrieval == nil {
		t.Fatal("Retrieval result missing")
	}
	if !retrievals[0].Retrieval.HitAtK[5] || retrievals[0].Retrieval.HitAtK[1] {
		t.Errorf("HitAtK lost: %+v", retrievals[0].Retrieval.HitAtK)
	}

	n, err := s.CountEvaluationResults(run.ID, types.KindIterative)
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestCorruptedPayloadSurfacesRowID(t *testing.T) {
	s := newTestStore(t)
	run := seedRun(t, s)
	units := seedUnits(t, s, run.ID, 1)
	sum := seedSummary(t, s, run.ID, units[0].ID, "m1")

	_, err := s.db.Exec(`
		INSERT INTO evaluation_results (id, run_id, summary_id, kind, payload, evaluated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		"bad-row", run.ID, sum.ID, "judge", "{not json", fmtTime(time.Now()))
	if err != nil {
		t.Fatalf("Failed to plant corrupted row: %v", err)
	}

	_, err = s.GetEvaluationResults(run.ID, "")
	if err == nil {
		t.Fatal("Corrupted payload should not be skipped silently")
	}
	if errs.KindOf(err) != errs.KindCorruptedData {
		t.Errorf("KindOf = %s, want corrupted_data", errs.KindOf(err))
	}
	var tagged *errs.Error
	if !errors.As(err, &tagged) {
		t.Fatal("Error should be a tagged *errs.Error")
	}
	if tagged.RowID != "bad-row" {
		t.Errorf("RowID = %q, want bad-row", tagged.RowID)
	}
}

func TestInsertResultRejectsUnknownKind(t *testing.T) {
	s := newTestStore(t)
	run := seedRun(t, s)
	units := seedUnits(t, s, run.ID, 1)
	sum := seedSummary(t, s, run.ID, units[0].ID, "m1")

	err := s.InsertEvaluationResult(&types.EvaluationResult{
		RunID: run.ID, SummaryID: sum.ID, Kind: "mystery",
	})
	if err == nil {
		t.Fatal("Unknown kind should be rejected")
	}
}
