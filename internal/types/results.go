package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// ResultKind discriminates the evaluation-result payload union.
type ResultKind string

const (
	KindJudge       ResultKind = "judge"
	KindContrastive ResultKind = "contrastive"
	KindRetrieval   ResultKind = "retrieval"
	KindDownstream  ResultKind = "downstream"
	KindIterative   ResultKind = "iterative"
	KindSelf        ResultKind = "self"
)

// Valid reports whether k is a known result kind.
func (k ResultKind) Valid() bool {
	switch k {
	case KindJudge, KindContrastive, KindRetrieval, KindDownstream, KindIterative, KindSelf:
		return true
	}
	return false
}

// EvaluationResult is one evaluator verdict about one summary. The row is
// a tagged union: Kind selects which payload pointer is populated.
// Downstream and self payloads are carried opaquely in Raw.
type EvaluationResult struct {
	ID          string     `json:"id"`
	RunID       string     `json:"run_id"`
	SummaryID   string     `json:"summary_id"`
	Kind        ResultKind `json:"kind"`
	EvaluatedAt time.Time  `json:"evaluated_at"`

	Judge       *JudgePayload       `json:"judge,omitempty"`
	Contrastive *ContrastivePayload `json:"contrastive,omitempty"`
	Retrieval   *RetrievalPayload   `json:"retrieval,omitempty"`
	Iterative   *IterativePayload   `json:"iterative,omitempty"`
	Raw         json.RawMessage     `json:"raw,omitempty"`
}

// MarshalPayload serializes the active payload for storage.
func (r *EvaluationResult) MarshalPayload() ([]byte, error) {
	switch r.Kind {
	case KindJudge:
		return json.Marshal(r.Judge)
	case KindContrastive:
		return json.Marshal(r.Contrastive)
	case KindRetrieval:
		return json.Marshal(r.Retrieval)
	case KindIterative:
		return json.Marshal(r.Iterative)
	case KindDownstream, KindSelf:
		if len(r.Raw) == 0 {
			return []byte("{}"), nil
		}
		return r.Raw, nil
	default:
		return nil, fmt.Errorf("unknown result kind %q", r.Kind)
	}
}

// UnmarshalPayload decodes data into the payload slot selected by Kind.
func (r *EvaluationResult) UnmarshalPayload(data []byte) error {
	switch r.Kind {
	case KindJudge:
		r.Judge = &JudgePayload{}
		return json.Unmarshal(data, r.Judge)
	case KindContrastive:
		r.Contrastive = &ContrastivePayload{}
		return json.Unmarshal(data, r.Contrastive)
	case KindRetrieval:
		r.Retrieval = &RetrievalPayload{}
		return json.Unmarshal(data, r.Retrieval)
	case KindIterative:
		r.Iterative = &IterativePayload{}
		return json.Unmarshal(data, r.Iterative)
	case KindDownstream, KindSelf:
		r.Raw = append(json.RawMessage(nil), data...)
		return nil
	default:
		return fmt.Errorf("unknown result kind %q", r.Kind)
	}
}

// CriteriaScores are the five pointwise rubric criteria, each an integer
// in [1,5].
type CriteriaScores struct {
	Accuracy         int `json:"accuracy"`
	Completeness     int `json:"completeness"`
	SemanticRichness int `json:"semantic_richness"`
	Abstraction      int `json:"abstraction"`
	Conciseness      int `json:"conciseness"`
}

// JudgePayload is the pointwise rubric verdict of one judge.
type JudgePayload struct {
	JudgeModel      string         `json:"judge_model"`
	Scores          CriteriaScores `json:"scores"`
	WeightedAverage float64        `json:"weighted_average"`
	Rationale       string         `json:"rationale,omitempty"`
}

// Contrastive method names.
const (
	MethodEmbedding = "embedding"
	MethodLLM       = "llm"
)

// ContrastivePayload is one contrastive-matching verdict. Embedding runs
// populate PredictedRank/ConfidenceGap; llm runs populate
// ChosenOption/TargetPosition/JudgeModel.
type ContrastivePayload struct {
	Method          string     `json:"method"`
	Correct         bool       `json:"correct"`
	PredictedRank   int        `json:"predicted_rank,omitempty"`
	ConfidenceGap   float64    `json:"confidence_gap,omitempty"`
	ChosenOption    int        `json:"chosen_option,omitempty"`
	TargetPosition  int        `json:"target_position,omitempty"`
	JudgeModel      string     `json:"judge_model,omitempty"`
	DistractorSetID string     `json:"distractor_set_id"`
	Difficulty      Difficulty `json:"difficulty"`
	CandidateCount  int        `json:"candidate_count"`
}

// RetrievalPayload records how one model fared on one query against the
// combined cross-model index.
type RetrievalPayload struct {
	QueryID        string       `json:"query_id"`
	QueryType      string       `json:"query_type"`
	ModelID        string       `json:"model_id"`
	Rank           int          `json:"rank"`
	ModelRank      int          `json:"model_rank"`
	IsWinner       bool         `json:"is_winner"`
	ReciprocalRank float64      `json:"reciprocal_rank"`
	HitAtK         map[int]bool `json:"hit_at_k"`
	PoolSize       int          `json:"pool_size"`
	TotalModels    int          `json:"total_models"`
}

// RoundRecord is one observation in an iterative refinement history.
type RoundRecord struct {
	Round int     `json:"round"`
	Rank  int     `json:"rank"`
	Score float64 `json:"score"`
}

// IterativePayload is the outcome of the refinement loop for one summary.
type IterativePayload struct {
	ModelID         string        `json:"model_id"`
	Rounds          int           `json:"rounds"`
	Success         bool          `json:"success"`
	InitialRank     int           `json:"initial_rank"`
	FinalRank       int           `json:"final_rank"`
	TargetRank      int           `json:"target_rank"`
	History         []RoundRecord `json:"history"`
	RefinementScore float64       `json:"refinement_score"`
	DurationMS      int64         `json:"duration_ms"`
}

// Failure is one per-item failure bucket surfaced by a phase, aggregated
// by (model, error text).
type Failure struct {
	Model string `json:"model"`
	Count int    `json:"count"`
	Error string `json:"error"`
}

// PhaseResult is what an executor hands back to the orchestrator.
type PhaseResult struct {
	Success        bool      `json:"success"`
	ItemsProcessed int       `json:"items_processed"`
	SkipReason     string    `json:"skip_reason,omitempty"`
	Failures       []Failure `json:"failures,omitempty"`
}

// ProgressEvent is a live progress callback forwarded verbatim from an
// executor to subscribers.
type ProgressEvent struct {
	RunID     string    `json:"run_id"`
	Phase     Phase     `json:"phase"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// JudgeScores are a model's normalized judge-category scores.
type JudgeScores struct {
	Pointwise float64 `json:"pointwise"`
	Pairwise  float64 `json:"pairwise"`
	Combined  float64 `json:"combined"`
	Wins      int     `json:"wins"`
	Losses    int     `json:"losses"`
	Ties      int     `json:"ties"`
}

// ContrastiveScores hold per-method accuracy; a nil method was not run
// and contributes no weight to Combined.
type ContrastiveScores struct {
	Embedding *float64 `json:"embedding,omitempty"`
	LLM       *float64 `json:"llm,omitempty"`
	Combined  float64  `json:"combined"`
}

// RetrievalTypeScores break retrieval metrics down by query type.
type RetrievalTypeScores struct {
	Queries      int     `json:"queries"`
	PrecisionAt1 float64 `json:"precision_at_1"`
	PrecisionAt5 float64 `json:"precision_at_5"`
	MRR          float64 `json:"mrr"`
	WinRate      float64 `json:"win_rate"`
}

// RetrievalScores are a model's normalized retrieval-category scores.
type RetrievalScores struct {
	PrecisionAt1 float64                        `json:"precision_at_1"`
	PrecisionAt5 float64                        `json:"precision_at_5"`
	MRR          float64                        `json:"mrr"`
	WinRate      float64                        `json:"win_rate"`
	Combined     float64                        `json:"combined"`
	ByQueryType  map[string]RetrievalTypeScores `json:"by_query_type,omitempty"`
}

// IterativeScores are a model's normalized iterative-category scores.
type IterativeScores struct {
	AvgRounds          float64 `json:"avg_rounds"`
	SuccessRate        float64 `json:"success_rate"`
	AvgRefinementScore float64 `json:"avg_refinement_score"`
	Combined           float64 `json:"combined"`
}

// NormalizedScores collapse every evaluation row for one model into the
// per-category [0,1] scores the leaderboard ranks by.
type NormalizedScores struct {
	ModelID     string             `json:"model_id"`
	Judge       *JudgeScores       `json:"judge,omitempty"`
	Contrastive *ContrastiveScores `json:"contrastive,omitempty"`
	Retrieval   *RetrievalScores   `json:"retrieval,omitempty"`
	Iterative   *IterativeScores   `json:"iterative,omitempty"`
	Overall     float64            `json:"overall"`
}
