// Package aggregate collapses raw evaluation rows into the per-model
// normalized scores the leaderboard ranks by. Aggregation is pure
// arithmetic over stored rows and idempotent: rerunning it rewrites the
// same scores.
package aggregate

import (
	"context"
	"sort"

	"sumbench/internal/config"
	"sumbench/internal/logging"
	"sumbench/internal/pipeline"
	"sumbench/internal/types"
)

// Executor implements the aggregation phase.
type Executor struct{}

func NewExecutor() *Executor { return &Executor{} }

func (e *Executor) Phase() types.Phase { return types.PhaseAggregation }

func (e *Executor) Execute(ctx context.Context, pctx *pipeline.Context) (*pipeline.Outcome, error) {
	summaries, err := pctx.Store.GetSummaries(pctx.RunID, "")
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		if err := pctx.State.StartPhase(pctx.RunID, types.PhaseAggregation, 0); err != nil {
			return nil, err
		}
		return &pipeline.Outcome{SkipReason: "no summaries to aggregate"}, nil
	}

	summaryModel := make(map[string]string, len(summaries))
	seen := make(map[string]bool)
	var models []string
	for _, s := range summaries {
		summaryModel[s.ID] = s.ModelID
		if !seen[s.ModelID] {
			seen[s.ModelID] = true
			models = append(models, s.ModelID)
		}
	}
	sort.Strings(models)

	if err := pctx.State.StartPhase(pctx.RunID, types.PhaseAggregation, len(models)); err != nil {
		return nil, err
	}

	judgeRows, err := pctx.Store.GetEvaluationResults(pctx.RunID, types.KindJudge)
	if err != nil {
		return nil, err
	}
	contrastiveRows, err := pctx.Store.GetEvaluationResults(pctx.RunID, types.KindContrastive)
	if err != nil {
		return nil, err
	}
	retrievalRows, err := pctx.Store.GetEvaluationResults(pctx.RunID, types.KindRetrieval)
	if err != nil {
		return nil, err
	}
	iterativeRows, err := pctx.Store.GetEvaluationResults(pctx.RunID, types.KindIterative)
	if err != nil {
		return nil, err
	}
	pairwiseRows, err := pctx.Store.GetPairwiseResults(pctx.RunID)
	if err != nil {
		return nil, err
	}

	scores := make([]*types.NormalizedScores, 0, len(models))
	for _, m := range models {
		s := &types.NormalizedScores{
			ModelID:     m,
			Judge:       judgeScores(m, judgeRows, pairwiseRows, summaryModel),
			Contrastive: contrastiveScores(m, contrastiveRows, summaryModel),
			Retrieval:   retrievalScores(m, retrievalRows),
			Iterative:   iterativeScores(m, iterativeRows),
		}
		s.Overall = overallScore(pctx.Config, s)
		scores = append(scores, s)
	}
	if err := pctx.Store.SaveAggregatedScores(pctx.RunID, scores); err != nil {
		return nil, err
	}

	for i, s := range scores {
		if err := pctx.State.UpdateProgress(pctx.RunID, types.PhaseAggregation, i+1, s.ModelID); err != nil {
			return nil, err
		}
		pctx.Report(types.PhaseAggregation, i+1, len(models), s.ModelID)
	}
	logging.Aggregate("Aggregated scores for %d models", len(models))

	return &pipeline.Outcome{Total: len(models), Completed: len(models)}, nil
}

// judgeScores folds a model's rubric verdicts and tournament rows into
// the judge category. Pointwise normalizes the 1-5 weighted average to
// [0,1]; pairwise is the raw win rate. Combined renormalizes the
// 0.4/0.6 split to whichever protocols actually ran.
func judgeScores(modelID string, rows []*types.EvaluationResult, pairwise []*types.PairwiseResult, summaryModel map[string]string) *types.JudgeScores {
	var sum float64
	n := 0
	for _, r := range rows {
		if summaryModel[r.SummaryID] != modelID || r.Judge == nil {
			continue
		}
		sum += r.Judge.WeightedAverage
		n++
	}

	wins, losses, ties := 0, 0, 0
	for _, p := range pairwise {
		switch modelID {
		case p.ModelA:
			switch p.Winner {
			case types.WinnerA:
				wins++
			case types.WinnerB:
				losses++
			default:
				ties++
			}
		case p.ModelB:
			switch p.Winner {
			case types.WinnerB:
				wins++
			case types.WinnerA:
				losses++
			default:
				ties++
			}
		}
	}
	games := wins + losses + ties

	if n == 0 && games == 0 {
		return nil
	}
	s := &types.JudgeScores{Wins: wins, Losses: losses, Ties: ties}
	if n > 0 {
		s.Pointwise = sum / float64(n) / 5
	}
	if games > 0 {
		s.Pairwise = float64(wins) / float64(games)
	}
	wPoint, wPair := 0.0, 0.0
	if n > 0 {
		wPoint = 0.4
	}
	if games > 0 {
		wPair = 0.6
	}
	s.Combined = (wPoint*s.Pointwise + wPair*s.Pairwise) / (wPoint + wPair)
	return s
}

// contrastiveScores averages per-method accuracy; a method that never
// ran contributes no weight to the combined score.
func contrastiveScores(modelID string, rows []*types.EvaluationResult, summaryModel map[string]string) *types.ContrastiveScores {
	type tally struct{ correct, total int }
	perMethod := make(map[string]*tally)
	for _, r := range rows {
		if summaryModel[r.SummaryID] != modelID || r.Contrastive == nil {
			continue
		}
		t := perMethod[r.Contrastive.Method]
		if t == nil {
			t = &tally{}
			perMethod[r.Contrastive.Method] = t
		}
		t.total++
		if r.Contrastive.Correct {
			t.correct++
		}
	}
	if len(perMethod) == 0 {
		return nil
	}

	s := &types.ContrastiveScores{}
	var sum float64
	present := 0
	if t := perMethod[types.MethodEmbedding]; t != nil {
		acc := float64(t.correct) / float64(t.total)
		s.Embedding = &acc
		sum += acc
		present++
	}
	if t := perMethod[types.MethodLLM]; t != nil {
		acc := float64(t.correct) / float64(t.total)
		s.LLM = &acc
		sum += acc
		present++
	}
	s.Combined = sum / float64(present)
	return s
}

// retrievalScores averages the per-query retrieval metrics, overall and
// by query type.
func retrievalScores(modelID string, rows []*types.EvaluationResult) *types.RetrievalScores {
	type tally struct {
		n                 int
		p1, p5, mrr, wins float64
	}
	var all tally
	byType := make(map[string]*tally)

	for _, r := range rows {
		p := r.Retrieval
		if p == nil || p.ModelID != modelID {
			continue
		}
		t := byType[p.QueryType]
		if t == nil {
			t = &tally{}
			byType[p.QueryType] = t
		}
		for _, acc := range []*tally{&all, t} {
			acc.n++
			if p.HitAtK[1] {
				acc.p1++
			}
			if p.HitAtK[5] {
				acc.p5++
			}
			acc.mrr += p.ReciprocalRank
			if p.IsWinner {
				acc.wins++
			}
		}
	}
	if all.n == 0 {
		return nil
	}

	s := &types.RetrievalScores{
		PrecisionAt1: all.p1 / float64(all.n),
		PrecisionAt5: all.p5 / float64(all.n),
		MRR:          all.mrr / float64(all.n),
		WinRate:      all.wins / float64(all.n),
		ByQueryType:  make(map[string]types.RetrievalTypeScores, len(byType)),
	}
	s.Combined = 0.3*s.PrecisionAt1 + 0.4*s.PrecisionAt5 + 0.3*s.MRR
	for qt, t := range byType {
		s.ByQueryType[qt] = types.RetrievalTypeScores{
			Queries:      t.n,
			PrecisionAt1: t.p1 / float64(t.n),
			PrecisionAt5: t.p5 / float64(t.n),
			MRR:          t.mrr / float64(t.n),
			WinRate:      t.wins / float64(t.n),
		}
	}
	return s
}

// iterativeScores averages the refinement outcomes. A failed loop
// contributes zero to the average refinement score but still counts in
// the denominator.
func iterativeScores(modelID string, rows []*types.EvaluationResult) *types.IterativeScores {
	var rounds, score float64
	succeeded, n := 0, 0
	for _, r := range rows {
		p := r.Iterative
		if p == nil || p.ModelID != modelID {
			continue
		}
		n++
		rounds += float64(p.Rounds)
		if p.Success {
			succeeded++
			score += p.RefinementScore
		}
	}
	if n == 0 {
		return nil
	}
	s := &types.IterativeScores{
		AvgRounds:          rounds / float64(n),
		SuccessRate:        float64(succeeded) / float64(n),
		AvgRefinementScore: score / float64(n),
	}
	s.Combined = s.AvgRefinementScore
	return s
}

// overallScore weights the present categories, renormalizing so a
// missing category shifts weight to the rest instead of dragging the
// model down.
func overallScore(cfg *config.Config, s *types.NormalizedScores) float64 {
	weightSum, acc := 0.0, 0.0
	add := func(category string, combined float64) {
		w := cfg.Weight(category)
		weightSum += w
		acc += w * combined
	}
	if s.Judge != nil {
		add("judge", s.Judge.Combined)
	}
	if s.Contrastive != nil {
		add("contrastive", s.Contrastive.Combined)
	}
	if s.Retrieval != nil {
		add("retrieval", s.Retrieval.Combined)
	}
	if s.Iterative != nil {
		add("iterative", s.Iterative.Combined)
	}
	if weightSum == 0 {
		return 0
	}
	return acc / weightSum
}
