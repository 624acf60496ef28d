package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sumbench/internal/config"
	"sumbench/internal/errs"
	"sumbench/internal/pipeline"
	"sumbench/internal/store"
	"sumbench/internal/types"
)

func testContext(t *testing.T, cfg *config.Config) *pipeline.Context {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	run := &types.Run{Name: "report-test"}
	if err := st.CreateRun(run); err != nil {
		t.Fatalf("Failed to create run: %v", err)
	}
	return pipeline.NewContext(run.ID, cfg, st, nil, nil)
}

func completeEarlierPhases(t *testing.T, pctx *pipeline.Context) {
	t.Helper()
	for _, phase := range types.PhaseOrder() {
		if phase == types.PhaseReporting {
			return
		}
		if err := pctx.State.StartPhase(pctx.RunID, phase, 0); err != nil {
			t.Fatalf("Failed to start %s: %v", phase, err)
		}
		if err := pctx.State.CompletePhase(pctx.RunID, phase, ""); err != nil {
			t.Fatalf("Failed to complete %s: %v", phase, err)
		}
	}
}

func f(v float64) *float64 { return &v }

func sampleScores() []*types.NormalizedScores {
	return []*types.NormalizedScores{
		{
			ModelID: "beta",
			Judge:   &types.JudgeScores{Pointwise: 0.5, Pairwise: 0.4, Combined: 0.44, Wins: 2, Losses: 3, Ties: 0},
			Overall: 0.44,
		},
		{
			ModelID: "alpha",
			Judge:   &types.JudgeScores{Pointwise: 0.8, Pairwise: 0.75, Combined: 0.77, Wins: 3, Losses: 2, Ties: 0},
			Retrieval: &types.RetrievalScores{
				PrecisionAt1: 0.5, PrecisionAt5: 0.75, MRR: 0.625, WinRate: 0.5, Combined: 0.6375,
				ByQueryType: map[string]types.RetrievalTypeScores{
					"natural": {Queries: 2, PrecisionAt1: 0.5, PrecisionAt5: 1, MRR: 0.75, WinRate: 0.5},
					"keyword": {Queries: 2, PrecisionAt1: 0.5, PrecisionAt5: 0.5, MRR: 0.5, WinRate: 0.5},
				},
			},
			Overall: 0.71,
		},
	}
}

func TestExecuteWritesArtifacts(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Run.WorkDir = t.TempDir()
	pctx := testContext(t, cfg)

	if err := pctx.Store.SaveAggregatedScores(pctx.RunID, sampleScores()); err != nil {
		t.Fatalf("Failed to save scores: %v", err)
	}
	completeEarlierPhases(t, pctx)

	out, err := NewExecutor(nil).Execute(context.Background(), pctx)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out.Total != 2 || out.Completed != 2 {
		t.Fatalf("Outcome = %d/%d, want 2/2", out.Completed, out.Total)
	}

	dir := Dir(cfg.Run.WorkDir, pctx.RunID)
	data, err := os.ReadFile(filepath.Join(dir, "report.json"))
	if err != nil {
		t.Fatalf("Failed to read report.json: %v", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("Failed to decode report.json: %v", err)
	}
	if r.Run.ID != pctx.RunID {
		t.Errorf("Run.ID = %q, want %q", r.Run.ID, pctx.RunID)
	}
	if len(r.Leaderboard) != 2 {
		t.Fatalf("Leaderboard has %d rows, want 2", len(r.Leaderboard))
	}
	if r.Leaderboard[0].ModelID != "alpha" || r.Leaderboard[0].Rank != 1 {
		t.Errorf("First standing = %+v, want alpha at rank 1", r.Leaderboard[0])
	}
	if r.Leaderboard[1].ModelID != "beta" || r.Leaderboard[1].Rank != 2 {
		t.Errorf("Second standing = %+v, want beta at rank 2", r.Leaderboard[1])
	}
	if len(r.Scores) != 2 || r.Scores[0].ModelID != "alpha" {
		t.Errorf("Scores not ranked: %+v", r.Scores)
	}

	md, err := os.ReadFile(filepath.Join(dir, "report.md"))
	if err != nil {
		t.Fatalf("Failed to read report.md: %v", err)
	}
	text := string(md)
	for _, want := range []string{"## Leaderboard", "| 1 | alpha |", "| 2 | beta |", "## Judge", "## Retrieval"} {
		if !strings.Contains(text, want) {
			t.Errorf("report.md missing %q", want)
		}
	}

	progress, err := pctx.Store.GetPhaseProgress(pctx.RunID, types.PhaseReporting)
	if err != nil {
		t.Fatalf("Failed to load progress: %v", err)
	}
	if progress.Completed != 2 || progress.Total != 2 {
		t.Errorf("Progress = %d/%d, want 2/2", progress.Completed, progress.Total)
	}
}

func TestExecuteSkipsWithoutScores(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Run.WorkDir = t.TempDir()
	pctx := testContext(t, cfg)
	completeEarlierPhases(t, pctx)

	out, err := NewExecutor(nil).Execute(context.Background(), pctx)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out.SkipReason != "no aggregated scores to report" {
		t.Errorf("SkipReason = %q", out.SkipReason)
	}
	if _, err := os.Stat(Dir(cfg.Run.WorkDir, pctx.RunID)); !os.IsNotExist(err) {
		t.Errorf("Report dir should not exist, stat err = %v", err)
	}
}

func TestRankedOrdersByOverallThenModel(t *testing.T) {
	scores := []*types.NormalizedScores{
		{ModelID: "zeta", Overall: 0.5},
		{ModelID: "alpha", Overall: 0.5},
		{ModelID: "mid", Overall: 0.9},
	}
	ranked := Ranked(scores)
	got := []string{ranked[0].ModelID, ranked[1].ModelID, ranked[2].ModelID}
	want := []string{"mid", "alpha", "zeta"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Ranked order = %v, want %v", got, want)
		}
	}
	if scores[0].ModelID != "zeta" {
		t.Error("Ranked modified its input")
	}
}

func TestMarkdownOmitsEmptySections(t *testing.T) {
	r := &Report{
		Run: RunInfo{ID: "run-1", Name: "only-judge", Status: types.StatusCompleted},
		Scores: []*types.NormalizedScores{
			{ModelID: "alpha", Judge: &types.JudgeScores{Pointwise: 0.8, Combined: 0.8}, Overall: 0.8},
		},
		Leaderboard: []Standing{{Rank: 1, ModelID: "alpha", Overall: 0.8}},
		GeneratedAt: time.Now(),
	}
	text := Markdown(r)
	if !strings.Contains(text, "## Judge") {
		t.Error("Missing judge section")
	}
	for _, absent := range []string{"## Retrieval", "## Contrastive", "## Iterative", "## Failures"} {
		if strings.Contains(text, absent) {
			t.Errorf("Unexpected section %q", absent)
		}
	}
	if !strings.Contains(text, "| 1 | alpha | 0.800 | 0.800 | - | - | - |") {
		t.Errorf("Leaderboard row wrong:\n%s", text)
	}
}

func TestMarkdownQueryTypeBreakdown(t *testing.T) {
	r := &Report{
		Run:         RunInfo{ID: "run-1", Name: "retrieval", Status: types.StatusCompleted},
		Scores:      Ranked(sampleScores()),
		GeneratedAt: time.Now(),
	}
	text := Markdown(r)
	if !strings.Contains(text, "### alpha by query type") {
		t.Fatalf("Missing query type section:\n%s", text)
	}
	keyword := strings.Index(text, "| keyword |")
	natural := strings.Index(text, "| natural |")
	if keyword < 0 || natural < 0 || keyword > natural {
		t.Errorf("Query types missing or unsorted (keyword=%d natural=%d)", keyword, natural)
	}
}

func TestBucketFailuresGroupsByKind(t *testing.T) {
	tally := pipeline.NewFailureTally()
	var gen []pipeline.Failure
	for i := 0; i < 10; i++ {
		gen = append(gen, pipeline.Failure{
			Item: fmt.Sprintf("unit-%d", i),
			Err:  errs.New(errs.KindRateLimit, "test", "model refused"),
		})
	}
	tally.Add(types.PhaseGeneration, gen)
	tally.Add(types.PhaseExtraction, []pipeline.Failure{
		{Item: "broken.go", Err: errs.New(errs.KindExtraction, "test", "bad syntax")},
	})

	buckets := bucketFailures(tally)
	if len(buckets) != 2 {
		t.Fatalf("Got %d buckets, want 2", len(buckets))
	}
	if buckets[0].Phase != types.PhaseExtraction || buckets[0].Count != 1 {
		t.Errorf("First bucket = %+v, want extraction count 1", buckets[0])
	}
	if buckets[1].Phase != types.PhaseGeneration || buckets[1].Count != 10 {
		t.Errorf("Second bucket = %+v, want generation count 10", buckets[1])
	}
	if len(buckets[1].Items) != maxBucketItems {
		t.Errorf("Sample has %d items, want cap %d", len(buckets[1].Items), maxBucketItems)
	}
	if bucketFailures(nil) != nil {
		t.Error("Nil tally should produce no buckets")
	}
}

func TestLeaderboardRendersRankedRows(t *testing.T) {
	out := Leaderboard(sampleScores())
	for _, want := range []string{"Rank", "Model", "alpha", "beta", "0.710", "0.440"} {
		if !strings.Contains(out, want) {
			t.Errorf("Leaderboard missing %q:\n%s", want, out)
		}
	}
	alpha := strings.Index(out, "alpha")
	beta := strings.Index(out, "beta")
	if alpha > beta {
		t.Error("Leaderboard rows not ranked")
	}

	if out := Leaderboard(nil); !strings.Contains(out, "no scores to show") {
		t.Errorf("Empty leaderboard = %q", out)
	}
}

func TestMarkdownContrastivePresence(t *testing.T) {
	r := &Report{
		Run: RunInfo{ID: "run-1", Name: "contrastive", Status: types.StatusCompleted},
		Scores: []*types.NormalizedScores{
			{
				ModelID:     "alpha",
				Contrastive: &types.ContrastiveScores{Embedding: f(0.5), LLM: f(1), Combined: 0.75},
				Overall:     0.75,
			},
			{
				ModelID:     "beta",
				Contrastive: &types.ContrastiveScores{Embedding: f(1), Combined: 1},
				Overall:     1,
			},
		},
		GeneratedAt: time.Now(),
	}
	text := Markdown(r)
	if !strings.Contains(text, "| alpha | 0.500 | 1.000 | 0.750 |") {
		t.Errorf("Alpha contrastive row wrong:\n%s", text)
	}
	if !strings.Contains(text, "| beta | 1.000 | - | 1.000 |") {
		t.Errorf("Beta contrastive row should dash the missing method:\n%s", text)
	}
}
