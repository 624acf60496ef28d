package judging

import (
	"math"
	"strings"

	"sumbench/internal/errs"
	"sumbench/internal/llm"
	"sumbench/internal/types"
)

// Criteria weights for the pointwise weighted average. They sum to 1.
const (
	weightAccuracy         = 0.30
	weightCompleteness     = 0.25
	weightSemanticRichness = 0.20
	weightAbstraction      = 0.15
	weightConciseness      = 0.10
)

// rubricVerdict is the wire shape of a pointwise response. Scores come
// in as floats because judges hedge with values like 4.5.
type rubricVerdict struct {
	Accuracy         float64 `json:"accuracy"`
	Completeness     float64 `json:"completeness"`
	SemanticRichness float64 `json:"semantic_richness"`
	Abstraction      float64 `json:"abstraction"`
	Conciseness      float64 `json:"conciseness"`
	Rationale        string  `json:"rationale"`
}

// parseRubric decodes a judge's rubric response into a payload with
// integer scores clamped to [1,5] and the fixed weighted average.
func parseRubric(op, judge, content string) (*types.JudgePayload, error) {
	var v rubricVerdict
	if err := llm.ParseJSON(op, judge, content, &v); err != nil {
		return nil, err
	}

	scores := types.CriteriaScores{
		Accuracy:         clampScore(v.Accuracy),
		Completeness:     clampScore(v.Completeness),
		SemanticRichness: clampScore(v.SemanticRichness),
		Abstraction:      clampScore(v.Abstraction),
		Conciseness:      clampScore(v.Conciseness),
	}
	return &types.JudgePayload{
		JudgeModel:      judge,
		Scores:          scores,
		WeightedAverage: weightedAverage(scores),
		Rationale:       strings.TrimSpace(v.Rationale),
	}, nil
}

// clampScore rounds to the nearest integer and clamps into [1,5].
func clampScore(f float64) int {
	n := int(math.Round(f))
	if n < 1 {
		return 1
	}
	if n > 5 {
		return 5
	}
	return n
}

func weightedAverage(s types.CriteriaScores) float64 {
	return float64(s.Accuracy)*weightAccuracy +
		float64(s.Completeness)*weightCompleteness +
		float64(s.SemanticRichness)*weightSemanticRichness +
		float64(s.Abstraction)*weightAbstraction +
		float64(s.Conciseness)*weightConciseness
}

// compareVerdict is the wire shape of a pairwise response. Winner names
// the presented position, not the canonical model order.
type compareVerdict struct {
	Winner     string             `json:"winner"`
	Confidence string             `json:"confidence"`
	Reasoning  string             `json:"reasoning"`
	Criteria   map[string]float64 `json:"criteria"`
}

// parseComparison decodes a judge's head-to-head verdict. The winner is
// still in presentation order; the caller un-swaps it.
func parseComparison(op, judge, content string) (*compareVerdict, error) {
	var v compareVerdict
	if err := llm.ParseJSON(op, judge, content, &v); err != nil {
		return nil, err
	}
	switch strings.ToUpper(strings.TrimSpace(v.Winner)) {
	case "A":
		v.Winner = "A"
	case "B":
		v.Winner = "B"
	case "TIE", "DRAW", "EQUAL":
		v.Winner = "tie"
	default:
		return nil, errs.New(errs.KindInvalidResponse, op,
			"winner %q is not A, B, or tie", v.Winner).WithModel(judge)
	}
	v.Confidence = normalizeConfidence(v.Confidence)
	v.Reasoning = strings.TrimSpace(v.Reasoning)
	return &v, nil
}

// normalizeConfidence folds free-form confidence into the closed set,
// defaulting to medium when the judge omitted or invented one.
func normalizeConfidence(c string) string {
	switch strings.ToLower(strings.TrimSpace(c)) {
	case "high":
		return string(types.ConfidenceHigh)
	case "low":
		return string(types.ConfidenceLow)
	default:
		return string(types.ConfidenceMedium)
	}
}

// unswap maps a presented winner back to the canonical (A, B) model
// order. With the positions swapped, the judge's "A" was model B.
func unswap(winner string, swapped bool) types.PairwiseWinner {
	if !swapped {
		switch winner {
		case "A":
			return types.WinnerA
		case "B":
			return types.WinnerB
		}
		return types.WinnerTie
	}
	switch winner {
	case "A":
		return types.WinnerB
	case "B":
		return types.WinnerA
	}
	return types.WinnerTie
}
