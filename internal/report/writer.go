// Package report turns a run's aggregated scores into persisted
// artifacts: a JSON report, a Markdown report, and a styled terminal
// leaderboard. Everything here is formatting; the numbers come from the
// aggregation phase unchanged.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"sumbench/internal/errs"
	"sumbench/internal/logging"
	"sumbench/internal/pipeline"
	"sumbench/internal/store"
	"sumbench/internal/types"
)

// Report is the portable artifact of one run.
type Report struct {
	Run         RunInfo                   `json:"run"`
	Config      json.RawMessage           `json:"config,omitempty"`
	Leaderboard []Standing                `json:"leaderboard"`
	Scores      []*types.NormalizedScores `json:"scores"`
	Failures    []FailureBucket           `json:"failures,omitempty"`
	GeneratedAt time.Time                 `json:"generated_at"`
}

// RunInfo echoes the run row the report describes.
type RunInfo struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Status      types.RunStatus     `json:"status"`
	Codebase    *types.CodebaseInfo `json:"codebase,omitempty"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

// Standing is one leaderboard row.
type Standing struct {
	Rank    int     `json:"rank"`
	ModelID string  `json:"model_id"`
	Overall float64 `json:"overall"`
}

// FailureBucket groups the failures one phase absorbed by error kind.
// Items holds a capped sample of the failed item names.
type FailureBucket struct {
	Phase types.Phase `json:"phase"`
	Kind  errs.Kind   `json:"kind"`
	Count int         `json:"count"`
	Items []string    `json:"items,omitempty"`
}

const maxBucketItems = 8

// Build assembles the report for a run. tally may be nil: regenerating
// a report after the fact loses the in-process failure appendix but
// keeps every persisted number.
func Build(st *store.Store, runID string, tally *pipeline.FailureTally) (*Report, error) {
	run, err := st.GetRun(runID)
	if err != nil {
		return nil, err
	}
	scores, err := st.GetAggregatedScores(runID)
	if err != nil {
		return nil, err
	}
	ranked := Ranked(scores)

	standings := make([]Standing, 0, len(ranked))
	for i, s := range ranked {
		standings = append(standings, Standing{Rank: i + 1, ModelID: s.ModelID, Overall: s.Overall})
	}

	return &Report{
		Run: RunInfo{
			ID:          run.ID,
			Name:        run.Name,
			Description: run.Description,
			Status:      run.Status,
			Codebase:    run.CodebaseInfo,
			StartedAt:   run.StartedAt,
			CompletedAt: run.CompletedAt,
		},
		Config:      run.Config,
		Leaderboard: standings,
		Scores:      ranked,
		Failures:    bucketFailures(tally),
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// Ranked returns the scores sorted for presentation: overall descending,
// model id breaking ties. The input is not modified.
func Ranked(scores []*types.NormalizedScores) []*types.NormalizedScores {
	ranked := make([]*types.NormalizedScores, len(scores))
	copy(ranked, scores)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Overall != ranked[j].Overall {
			return ranked[i].Overall > ranked[j].Overall
		}
		return ranked[i].ModelID < ranked[j].ModelID
	})
	return ranked
}

func bucketFailures(tally *pipeline.FailureTally) []FailureBucket {
	if tally == nil {
		return nil
	}
	var buckets []FailureBucket
	for _, phase := range types.PhaseOrder() {
		byKind := make(map[errs.Kind]*FailureBucket)
		for _, f := range tally.Phase(phase) {
			kind := errs.KindOf(f.Err)
			b := byKind[kind]
			if b == nil {
				b = &FailureBucket{Phase: phase, Kind: kind}
				byKind[kind] = b
			}
			b.Count++
			if len(b.Items) < maxBucketItems {
				b.Items = append(b.Items, f.Item)
			}
		}
		kinds := make([]errs.Kind, 0, len(byKind))
		for k := range byKind {
			kinds = append(kinds, k)
		}
		sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
		for _, k := range kinds {
			buckets = append(buckets, *byKind[k])
		}
	}
	return buckets
}

// Write persists report.json and report.md under dir, creating it as
// needed. Returns the two file paths.
func (r *Report) Write(dir string) (jsonPath, mdPath string, err error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create report dir: %w", err)
	}

	jsonPath = filepath.Join(dir, "report.json")
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		return "", "", fmt.Errorf("failed to write %s: %w", jsonPath, err)
	}

	mdPath = filepath.Join(dir, "report.md")
	if err := os.WriteFile(mdPath, []byte(Markdown(r)), 0644); err != nil {
		return "", "", fmt.Errorf("failed to write %s: %w", mdPath, err)
	}
	return jsonPath, mdPath, nil
}

// Dir returns where a run's report artifacts live.
func Dir(workDir, runID string) string {
	return filepath.Join(workDir, "reports", runID)
}

// Executor implements the reporting phase: one item per model.
type Executor struct {
	tally *pipeline.FailureTally
}

// NewExecutor returns the reporting executor. tally supplies the
// failure appendix; nil omits it.
func NewExecutor(tally *pipeline.FailureTally) *Executor {
	return &Executor{tally: tally}
}

func (e *Executor) Phase() types.Phase { return types.PhaseReporting }

func (e *Executor) Execute(ctx context.Context, pctx *pipeline.Context) (*pipeline.Outcome, error) {
	scores, err := pctx.Store.GetAggregatedScores(pctx.RunID)
	if err != nil {
		return nil, err
	}
	if len(scores) == 0 {
		if err := pctx.State.StartPhase(pctx.RunID, types.PhaseReporting, 0); err != nil {
			return nil, err
		}
		return &pipeline.Outcome{SkipReason: "no aggregated scores to report"}, nil
	}

	if err := pctx.State.StartPhase(pctx.RunID, types.PhaseReporting, len(scores)); err != nil {
		return nil, err
	}

	r, err := Build(pctx.Store, pctx.RunID, e.tally)
	if err != nil {
		return nil, err
	}
	jsonPath, mdPath, err := r.Write(Dir(pctx.Config.Run.WorkDir, pctx.RunID))
	if err != nil {
		return nil, err
	}

	for i, s := range r.Scores {
		if err := pctx.State.UpdateProgress(pctx.RunID, types.PhaseReporting, i+1, s.ModelID); err != nil {
			return nil, err
		}
		pctx.Report(types.PhaseReporting, i+1, len(r.Scores), s.ModelID)
	}
	logging.Report("Wrote %s and %s", jsonPath, mdPath)

	return &pipeline.Outcome{Total: len(r.Scores), Completed: len(r.Scores)}, nil
}
