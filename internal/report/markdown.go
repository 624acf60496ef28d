package report

import (
	"fmt"
	"sort"
	"strings"

	"sumbench/internal/types"
)

// Markdown renders the report as a standalone document. Section order is
// fixed; sections with no data are omitted rather than emitted empty.
func Markdown(r *Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Benchmark report: %s\n\n", r.Run.Name)
	fmt.Fprintf(&b, "Run `%s` (%s)", r.Run.ID, r.Run.Status)
	if r.Run.Codebase != nil {
		fmt.Fprintf(&b, " over %s, %d files", r.Run.Codebase.Name, r.Run.Codebase.Files)
	}
	b.WriteString(".\n")
	if r.Run.StartedAt != nil {
		fmt.Fprintf(&b, "Started %s.", r.Run.StartedAt.Format("2006-01-02 15:04 MST"))
		if r.Run.CompletedAt != nil {
			fmt.Fprintf(&b, " Finished %s.", r.Run.CompletedAt.Format("2006-01-02 15:04 MST"))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	writeLeaderboard(&b, r)
	writeJudge(&b, r.Scores)
	writeContrastive(&b, r.Scores)
	writeRetrieval(&b, r.Scores)
	writeIterative(&b, r.Scores)
	writeFailures(&b, r.Failures)

	fmt.Fprintf(&b, "Generated %s.\n", r.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	return b.String()
}

func writeLeaderboard(b *strings.Builder, r *Report) {
	if len(r.Leaderboard) == 0 {
		return
	}
	b.WriteString("## Leaderboard\n\n")
	b.WriteString("| Rank | Model | Overall | Judge | Contrastive | Retrieval | Iterative |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for i, s := range r.Scores {
		fmt.Fprintf(b, "| %d | %s | %s | %s | %s | %s | %s |\n",
			i+1, s.ModelID, num(s.Overall),
			combined(s.Judge != nil, func() float64 { return s.Judge.Combined }),
			combined(s.Contrastive != nil, func() float64 { return s.Contrastive.Combined }),
			combined(s.Retrieval != nil, func() float64 { return s.Retrieval.Combined }),
			combined(s.Iterative != nil, func() float64 { return s.Iterative.Combined }))
	}
	b.WriteString("\n")
}

func writeJudge(b *strings.Builder, scores []*types.NormalizedScores) {
	if !anyScore(scores, func(s *types.NormalizedScores) bool { return s.Judge != nil }) {
		return
	}
	b.WriteString("## Judge\n\n")
	b.WriteString("| Model | Pointwise | Pairwise | W-L-T | Combined |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, s := range scores {
		j := s.Judge
		if j == nil {
			continue
		}
		fmt.Fprintf(b, "| %s | %s | %s | %d-%d-%d | %s |\n",
			s.ModelID, num(j.Pointwise), num(j.Pairwise), j.Wins, j.Losses, j.Ties, num(j.Combined))
	}
	b.WriteString("\n")
}

func writeContrastive(b *strings.Builder, scores []*types.NormalizedScores) {
	if !anyScore(scores, func(s *types.NormalizedScores) bool { return s.Contrastive != nil }) {
		return
	}
	b.WriteString("## Contrastive matching\n\n")
	b.WriteString("| Model | Embedding | LLM | Combined |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, s := range scores {
		c := s.Contrastive
		if c == nil {
			continue
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n",
			s.ModelID, optNum(c.Embedding), optNum(c.LLM), num(c.Combined))
	}
	b.WriteString("\n")
}

func writeRetrieval(b *strings.Builder, scores []*types.NormalizedScores) {
	if !anyScore(scores, func(s *types.NormalizedScores) bool { return s.Retrieval != nil }) {
		return
	}
	b.WriteString("## Retrieval\n\n")
	b.WriteString("| Model | P@1 | P@5 | MRR | Win rate | Combined |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, s := range scores {
		r := s.Retrieval
		if r == nil {
			continue
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s | %s |\n",
			s.ModelID, num(r.PrecisionAt1), num(r.PrecisionAt5), num(r.MRR), num(r.WinRate), num(r.Combined))
	}
	b.WriteString("\n")

	for _, s := range scores {
		r := s.Retrieval
		if r == nil || len(r.ByQueryType) == 0 {
			continue
		}
		fmt.Fprintf(b, "### %s by query type\n\n", s.ModelID)
		b.WriteString("| Query type | Queries | P@1 | P@5 | MRR | Win rate |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		qts := make([]string, 0, len(r.ByQueryType))
		for qt := range r.ByQueryType {
			qts = append(qts, qt)
		}
		sort.Strings(qts)
		for _, qt := range qts {
			t := r.ByQueryType[qt]
			fmt.Fprintf(b, "| %s | %d | %s | %s | %s | %s |\n",
				qt, t.Queries, num(t.PrecisionAt1), num(t.PrecisionAt5), num(t.MRR), num(t.WinRate))
		}
		b.WriteString("\n")
	}
}

func writeIterative(b *strings.Builder, scores []*types.NormalizedScores) {
	if !anyScore(scores, func(s *types.NormalizedScores) bool { return s.Iterative != nil }) {
		return
	}
	b.WriteString("## Iterative refinement\n\n")
	b.WriteString("| Model | Avg rounds | Success rate | Refinement score | Combined |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, s := range scores {
		it := s.Iterative
		if it == nil {
			continue
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s |\n",
			s.ModelID, num(it.AvgRounds), num(it.SuccessRate), num(it.AvgRefinementScore), num(it.Combined))
	}
	b.WriteString("\n")
}

func writeFailures(b *strings.Builder, buckets []FailureBucket) {
	if len(buckets) == 0 {
		return
	}
	b.WriteString("## Failures\n\n")
	b.WriteString("| Phase | Kind | Count | Sample |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, bucket := range buckets {
		fmt.Fprintf(b, "| %s | %s | %d | %s |\n",
			bucket.Phase, bucket.Kind, bucket.Count, strings.Join(bucket.Items, ", "))
	}
	b.WriteString("\n")
}

func anyScore(scores []*types.NormalizedScores, has func(*types.NormalizedScores) bool) bool {
	for _, s := range scores {
		if has(s) {
			return true
		}
	}
	return false
}

func num(v float64) string { return fmt.Sprintf("%.3f", v) }

func optNum(v *float64) string {
	if v == nil {
		return "-"
	}
	return num(*v)
}

func combined(present bool, get func() float64) string {
	if !present {
		return "-"
	}
	return num(get())
}
