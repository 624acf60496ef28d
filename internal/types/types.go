// Package types holds the shared data model of the benchmark pipeline:
// runs, code units, summaries, evaluation results, and the progress
// records that make runs resumable. Everything here is plain data; the
// store owns persistence and the pipeline owns mutation rules.
package types

import (
	"encoding/json"
	"time"
)

// Run is one benchmark execution over a project with a fixed model set.
type Run struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Config       json.RawMessage `json:"config,omitempty"`
	CodebaseInfo *CodebaseInfo   `json:"codebase_info,omitempty"`
	Status       RunStatus       `json:"status"`
	CurrentPhase Phase           `json:"current_phase,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	PausedAt     *time.Time      `json:"paused_at,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// CodebaseInfo is a snapshot of the project a run was extracted from.
type CodebaseInfo struct {
	Name      string         `json:"name"`
	Root      string         `json:"root"`
	Files     int            `json:"files"`
	Languages map[string]int `json:"languages,omitempty"`
}

// UnitType classifies a code unit.
type UnitType string

const (
	UnitFunction UnitType = "function"
	UnitClass    UnitType = "class"
	UnitMethod   UnitType = "method"
	UnitFile     UnitType = "file"
	UnitModule   UnitType = "module"
)

// CodeUnit is a semantically meaningful sliver of the source tree.
// Immutable after extraction; logically unique by (run, path, name).
type CodeUnit struct {
	ID            string        `json:"id"`
	RunID         string        `json:"run_id"`
	Path          string        `json:"path"`
	Name          string        `json:"name"`
	Type          UnitType      `json:"type"`
	Language      string        `json:"language"`
	Content       string        `json:"content"`
	Metadata      UnitMetadata  `json:"metadata"`
	Relationships Relationships `json:"relationships"`
}

// UnitMetadata carries the structural facts extraction discovered.
type UnitMetadata struct {
	StartLine  int      `json:"start_line,omitempty"`
	EndLine    int      `json:"end_line,omitempty"`
	Signature  string   `json:"signature,omitempty"`
	Parameters []string `json:"parameters,omitempty"`
	Parent     string   `json:"parent,omitempty"`
	Exported   bool     `json:"exported,omitempty"`
	HasDoc     bool     `json:"has_doc,omitempty"`
}

// Relationships links a unit to its structural neighborhood.
type Relationships struct {
	ParentID     string `json:"parent_id,omitempty"`
	SiblingCount int    `json:"sibling_count,omitempty"`
}

// GeneratedSummary is one model's summary of one code unit. At most one
// row exists per (run, code_unit_id, model_id); iterative refinement
// rewrites the row in place.
type GeneratedSummary struct {
	ID         string          `json:"id"`
	RunID      string          `json:"run_id"`
	CodeUnitID string          `json:"code_unit_id"`
	ModelID    string          `json:"model_id"`
	Text       string          `json:"text"`
	Metadata   SummaryMetadata `json:"metadata"`
}

// SummaryMetadata records how a summary was produced.
type SummaryMetadata struct {
	LatencyMS       int64   `json:"latency_ms,omitempty"`
	Cost            float64 `json:"cost,omitempty"`
	InputTokens     int     `json:"input_tokens,omitempty"`
	OutputTokens    int     `json:"output_tokens,omitempty"`
	RefinementRound int     `json:"refinement_round,omitempty"`
}

// PairwiseWinner is the verdict of one head-to-head comparison.
type PairwiseWinner string

const (
	WinnerA   PairwiseWinner = "A"
	WinnerB   PairwiseWinner = "B"
	WinnerTie PairwiseWinner = "tie"
)

// Confidence grades how sure a judge was.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// PairwiseResult is one judged comparison between two models' summaries
// of the same code unit. Winner is expressed against the canonical
// (ModelA, ModelB) order even when the presentation was swapped.
type PairwiseResult struct {
	ID              string             `json:"id"`
	RunID           string             `json:"run_id"`
	ModelA          string             `json:"model_a"`
	ModelB          string             `json:"model_b"`
	CodeUnitID      string             `json:"code_unit_id"`
	JudgeModel      string             `json:"judge_model"`
	Winner          PairwiseWinner     `json:"winner"`
	Confidence      Confidence         `json:"confidence"`
	PositionSwapped bool               `json:"position_swapped"`
	Reasoning       string             `json:"reasoning,omitempty"`
	Criteria        map[string]float64 `json:"criteria,omitempty"`
	Cost            float64            `json:"cost,omitempty"`
}

// Difficulty grades a distractor set by how much shared context it has
// with the target.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// DistractorSet is the fixed candidate pool used by the contrastive
// evaluator for one target unit. Ordered, duplicate-free, never
// containing the target; every member shares the target's language.
type DistractorSet struct {
	ID               string     `json:"id"`
	RunID            string     `json:"run_id"`
	TargetCodeUnitID string     `json:"target_code_unit_id"`
	DistractorIDs    []string   `json:"distractor_ids"`
	Difficulty       Difficulty `json:"difficulty"`
}

// GeneratedQuery is a natural-language probe used by the retrieval
// evaluator. ShouldFind marks probes whose target is expected in the
// result set.
type GeneratedQuery struct {
	ID         string `json:"id"`
	RunID      string `json:"run_id"`
	CodeUnitID string `json:"code_unit_id"`
	Type       string `json:"type"`
	Text       string `json:"text"`
	ShouldFind bool   `json:"should_find"`
}

// PhaseProgress is the durable cursor that makes a phase resumable.
type PhaseProgress struct {
	RunID           string     `json:"run_id"`
	Phase           Phase      `json:"phase"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Total           int        `json:"items_total"`
	Completed       int        `json:"items_completed"`
	LastProcessedID string     `json:"last_processed_id,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// Done reports whether the phase finished (successfully or skipped).
func (p *PhaseProgress) Done() bool {
	return p != nil && p.CompletedAt != nil
}
