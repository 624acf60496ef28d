package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"sumbench/internal/config"
	"sumbench/internal/llm"
	"sumbench/internal/pipeline"
	"sumbench/internal/store"
	"sumbench/internal/types"
)

// fakeChat serves /chat/completions, answering each request with a
// summary naming the requesting model. Requests whose prompt contains
// failMarker get a 500 instead.
func fakeChat(t *testing.T, requests *atomic.Int64, failMarker string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		prompt := req.Messages[len(req.Messages)-1].Content
		if failMarker != "" && strings.Contains(prompt, failMarker) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error": {"message": "boom"}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]string{"role": "assistant", "content": "Summary by " + req.Model},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 50, "completion_tokens": 12},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// testContext wires a pipeline context around an in-memory store and a
// registry whose generator clients all point at baseURL.
func testContext(t *testing.T, baseURL string, models ...string) *pipeline.Context {
	t.Helper()

	cfg := config.DefaultConfig()
	for _, id := range models {
		cfg.Models.Generators = append(cfg.Models.Generators, config.ModelSpec{
			ID:        id,
			Provider:  "openai",
			APIKey:    "test-key",
			BaseURL:   baseURL,
			MaxTokens: 256,
		})
	}
	reg, err := llm.NewRegistry(cfg)
	if err != nil {
		t.Fatalf("Failed to build registry: %v", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	run := &types.Run{Name: "generation-test"}
	if err := st.CreateRun(run); err != nil {
		t.Fatalf("Failed to create run: %v", err)
	}
	return pipeline.NewContext(run.ID, cfg, st, reg, nil)
}

func seedUnits(t *testing.T, pctx *pipeline.Context, contents ...string) []*types.CodeUnit {
	t.Helper()
	units := make([]*types.CodeUnit, len(contents))
	for i, content := range contents {
		units[i] = &types.CodeUnit{
			ID:       fmt.Sprintf("unit-%03d", i),
			RunID:    pctx.RunID,
			Path:     fmt.Sprintf("pkg/file%d.go", i),
			Name:     fmt.Sprintf("Func%d", i),
			Type:     types.UnitFunction,
			Language: "go",
			Content:  content,
		}
	}
	if err := pctx.Store.InsertCodeUnits(units); err != nil {
		t.Fatalf("Failed to insert units: %v", err)
	}
	// Generation may only start once extraction has finished.
	if err := pctx.State.StartPhase(pctx.RunID, types.PhaseExtraction, len(units)); err != nil {
		t.Fatalf("Failed to start extraction: %v", err)
	}
	if err := pctx.State.UpdateProgress(pctx.RunID, types.PhaseExtraction, len(units), units[len(units)-1].ID); err != nil {
		t.Fatalf("Failed to record extraction progress: %v", err)
	}
	if err := pctx.State.CompletePhase(pctx.RunID, types.PhaseExtraction, ""); err != nil {
		t.Fatalf("Failed to complete extraction: %v", err)
	}
	return units
}

func TestExecuteGeneratesEverySummary(t *testing.T) {
	var requests atomic.Int64
	srv := fakeChat(t, &requests, "")
	pctx := testContext(t, srv.URL, "gpt-a", "gpt-b")
	seedUnits(t, pctx, "func A() {}", "func B() {}", "func C() {}")

	out, err := NewExecutor().Execute(context.Background(), pctx)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out.Total != 6 || out.Completed != 6 {
		t.Errorf("outcome = %d/%d, want 6/6", out.Completed, out.Total)
	}
	if len(out.Failures) != 0 {
		t.Errorf("unexpected failures: %v", out.Failures)
	}
	if got := requests.Load(); got != 6 {
		t.Errorf("server saw %d requests, want 6", got)
	}

	for _, model := range []string{"gpt-a", "gpt-b"} {
		sums, err := pctx.Store.GetSummaries(pctx.RunID, model)
		if err != nil {
			t.Fatalf("GetSummaries(%s) failed: %v", model, err)
		}
		if len(sums) != 3 {
			t.Fatalf("%s stored %d summaries, want 3", model, len(sums))
		}
		for _, s := range sums {
			if s.Text != "Summary by "+model {
				t.Errorf("summary text = %q", s.Text)
			}
			if s.Metadata.InputTokens != 50 || s.Metadata.OutputTokens != 12 {
				t.Errorf("summary usage = %+v", s.Metadata)
			}
		}
	}

	p, err := pctx.Store.GetPhaseProgress(pctx.RunID, types.PhaseGeneration)
	if err != nil {
		t.Fatalf("GetPhaseProgress failed: %v", err)
	}
	if p == nil || p.Completed != 6 || p.Total != 6 {
		t.Fatalf("progress = %+v, want 6/6", p)
	}
	if p.Done() {
		t.Error("executor must leave phase completion to the orchestrator")
	}
	if err := pctx.State.CompletePhase(pctx.RunID, types.PhaseGeneration, ""); err != nil {
		t.Errorf("CompletePhase after full generation failed: %v", err)
	}
}

func TestExecuteSkipsStoredPairs(t *testing.T) {
	var requests atomic.Int64
	srv := fakeChat(t, &requests, "")
	pctx := testContext(t, srv.URL, "gpt-a", "gpt-b")
	units := seedUnits(t, pctx, "func A() {}", "func B() {}")

	prior := &types.GeneratedSummary{
		ID:         "sum-prior",
		RunID:      pctx.RunID,
		CodeUnitID: units[0].ID,
		ModelID:    "gpt-a",
		Text:       "Written before the interruption.",
	}
	if err := pctx.Store.InsertSummaries([]*types.GeneratedSummary{prior}); err != nil {
		t.Fatalf("Failed to seed prior summary: %v", err)
	}

	out, err := NewExecutor().Execute(context.Background(), pctx)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out.Total != 4 || out.Completed != 4 {
		t.Errorf("outcome = %d/%d, want 4/4", out.Completed, out.Total)
	}
	if got := requests.Load(); got != 3 {
		t.Errorf("server saw %d requests, want 3 (one pair already stored)", got)
	}

	kept, err := pctx.Store.GetSummary("sum-prior")
	if err != nil {
		t.Fatalf("GetSummary failed: %v", err)
	}
	if kept.Text != prior.Text {
		t.Errorf("stored summary was regenerated: %q", kept.Text)
	}

	all, err := pctx.Store.GetSummaries(pctx.RunID, "")
	if err != nil {
		t.Fatalf("GetSummaries failed: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("stored %d summaries, want 4", len(all))
	}
}

func TestExecuteAbsorbsPerItemFailures(t *testing.T) {
	var requests atomic.Int64
	srv := fakeChat(t, &requests, "func Broken()")
	pctx := testContext(t, srv.URL, "gpt-a")
	seedUnits(t, pctx, "func A() {}", "func Broken() {}", "func C() {}")

	out, err := NewExecutor().Execute(context.Background(), pctx)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out.Total != 3 || out.Completed != 3 {
		t.Errorf("outcome = %d/%d, want 3/3", out.Completed, out.Total)
	}
	if len(out.Failures) != 1 {
		t.Fatalf("failures = %v, want exactly one", out.Failures)
	}
	if !strings.Contains(out.Failures[0].Item, "unit-001") {
		t.Errorf("failure item = %q, want the broken unit", out.Failures[0].Item)
	}

	sums, err := pctx.Store.GetSummaries(pctx.RunID, "gpt-a")
	if err != nil {
		t.Fatalf("GetSummaries failed: %v", err)
	}
	if len(sums) != 2 {
		t.Errorf("stored %d summaries, want 2", len(sums))
	}

	// Failed items still count as attempted, so the phase can close.
	if err := pctx.State.CompletePhase(pctx.RunID, types.PhaseGeneration, ""); err != nil {
		t.Errorf("CompletePhase with absorbed failures failed: %v", err)
	}
}

func TestExecuteStopsOnCancel(t *testing.T) {
	var requests atomic.Int64
	srv := fakeChat(t, &requests, "")
	pctx := testContext(t, srv.URL, "gpt-a")
	seedUnits(t, pctx, "func A() {}", "func B() {}")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewExecutor().Execute(ctx, pctx); err == nil {
		t.Fatal("Execute with canceled context should fail")
	}
}
