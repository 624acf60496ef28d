package judging

import (
	"math"
	"testing"

	"sumbench/internal/errs"
	"sumbench/internal/types"
)

func TestParseRubricClampsAndRounds(t *testing.T) {
	content := `{"accuracy": 4.6, "completeness": 0, "semantic_richness": 7,
		"abstraction": 3.4, "conciseness": 5, "rationale": "  solid  "}`

	p, err := parseRubric("test", "judge-x", content)
	if err != nil {
		t.Fatalf("parseRubric failed: %v", err)
	}
	want := types.CriteriaScores{
		Accuracy:         5, // 4.6 rounds up
		Completeness:     1, // clamped from 0
		SemanticRichness: 5, // clamped from 7
		Abstraction:      3, // 3.4 rounds down
		Conciseness:      5,
	}
	if p.Scores != want {
		t.Errorf("scores = %+v, want %+v", p.Scores, want)
	}
	if p.JudgeModel != "judge-x" {
		t.Errorf("judge = %q", p.JudgeModel)
	}
	if p.Rationale != "solid" {
		t.Errorf("rationale = %q, want trimmed", p.Rationale)
	}
}

func TestParseRubricInMarkdownFence(t *testing.T) {
	content := "Here you go:\n```json\n{\"accuracy\": 4, \"completeness\": 4, " +
		"\"semantic_richness\": 4, \"abstraction\": 4, \"conciseness\": 4, \"rationale\": \"ok\"}\n```"
	p, err := parseRubric("test", "judge-x", content)
	if err != nil {
		t.Fatalf("parseRubric failed on fenced JSON: %v", err)
	}
	if p.Scores.Accuracy != 4 {
		t.Errorf("accuracy = %d, want 4", p.Scores.Accuracy)
	}
}

func TestParseRubricRejectsGarbage(t *testing.T) {
	if _, err := parseRubric("test", "judge-x", "I refuse to answer."); err == nil {
		t.Fatal("parseRubric accepted prose")
	} else if errs.KindOf(err) != errs.KindInvalidResponse {
		t.Errorf("kind = %v, want invalid_response", errs.KindOf(err))
	}
}

func TestWeightedAverage(t *testing.T) {
	tests := []struct {
		name   string
		scores types.CriteriaScores
		want   float64
	}{
		{"all fives", types.CriteriaScores{Accuracy: 5, Completeness: 5, SemanticRichness: 5, Abstraction: 5, Conciseness: 5}, 5.0},
		{"all ones", types.CriteriaScores{Accuracy: 1, Completeness: 1, SemanticRichness: 1, Abstraction: 1, Conciseness: 1}, 1.0},
		{"descending", types.CriteriaScores{Accuracy: 5, Completeness: 4, SemanticRichness: 3, Abstraction: 2, Conciseness: 1}, 3.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := weightedAverage(tt.scores); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("weightedAverage = %g, want %g", got, tt.want)
			}
		})
	}
}

func TestParseComparisonNormalizesWinner(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"A", "A"},
		{" b ", "B"},
		{"TIE", "tie"},
		{"draw", "tie"},
		{"Equal", "tie"},
	}
	for _, tt := range tests {
		v, err := parseComparison("test", "judge-x", `{"winner": "`+tt.raw+`", "confidence": "high", "reasoning": "r"}`)
		if err != nil {
			t.Fatalf("parseComparison(%q) failed: %v", tt.raw, err)
		}
		if v.Winner != tt.want {
			t.Errorf("winner(%q) = %q, want %q", tt.raw, v.Winner, tt.want)
		}
	}
}

func TestParseComparisonRejectsUnknownWinner(t *testing.T) {
	_, err := parseComparison("test", "judge-x", `{"winner": "C", "confidence": "high"}`)
	if err == nil {
		t.Fatal("parseComparison accepted winner C")
	}
	if errs.KindOf(err) != errs.KindInvalidResponse {
		t.Errorf("kind = %v, want invalid_response", errs.KindOf(err))
	}
}

func TestNormalizeConfidence(t *testing.T) {
	tests := []struct{ in, want string }{
		{"high", "high"},
		{"LOW", "low"},
		{"medium", "medium"},
		{"", "medium"},
		{"pretty sure", "medium"},
	}
	for _, tt := range tests {
		if got := normalizeConfidence(tt.in); got != tt.want {
			t.Errorf("normalizeConfidence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUnswap(t *testing.T) {
	tests := []struct {
		winner  string
		swapped bool
		want    types.PairwiseWinner
	}{
		{"A", false, types.WinnerA},
		{"B", false, types.WinnerB},
		{"tie", false, types.WinnerTie},
		{"A", true, types.WinnerB},
		{"B", true, types.WinnerA},
		{"tie", true, types.WinnerTie},
	}
	for _, tt := range tests {
		if got := unswap(tt.winner, tt.swapped); got != tt.want {
			t.Errorf("unswap(%q, %v) = %q, want %q", tt.winner, tt.swapped, got, tt.want)
		}
	}
}
