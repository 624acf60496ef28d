package judging

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"sumbench/internal/config"
	"sumbench/internal/errs"
	"sumbench/internal/judges"
	"sumbench/internal/llm"
	"sumbench/internal/logging"
	"sumbench/internal/pipeline"
	"sumbench/internal/types"
)

// comparison is one pairwise LLM call: a (unit, pair, judge) task in
// one of its two presentation orders. ModelA always sorts before
// ModelB; Swapped controls which text the judge sees first.
type comparison struct {
	unitID  string
	modelA  string
	modelB  string
	judge   string
	swapped bool
}

func (c comparison) key() string {
	return fmt.Sprintf("%s\x00%s\x00%s\x00%s\x00%v", c.unitID, c.modelA, c.modelB, c.judge, c.swapped)
}

func (c comparison) item() string {
	return fmt.Sprintf("%s/%s-vs-%s/%s", c.unitID, c.modelA, c.modelB, c.judge)
}

// planPairwise builds the tournament schedule: every (unit, pair)
// task for every eligible judge, stratified down to the per-judge
// comparison budget, then doubled into both presentation orders.
//
// Stratification keeps coverage when the budget binds: each pair the
// judge may score gets an equal quota of tasks, sampled at evenly
// spaced indices of that pair's unit list so the sample spans the
// codebase instead of its prefix.
func planPairwise(cfg config.JudgeConfig, summaries []*types.GeneratedSummary, available []string) ([]comparison, []pipeline.Failure) {
	models := distinctModels(summaries)
	if len(models) < 2 {
		return nil, nil
	}

	// Units where both pair members produced a summary, per pair.
	hasSummary := make(map[string]bool, len(summaries))
	for _, s := range summaries {
		hasSummary[s.CodeUnitID+"\x00"+s.ModelID] = true
	}
	unitIDs := distinctUnits(summaries)

	type pairKey struct{ a, b string }
	pairUnits := make(map[pairKey][]string)
	var pairs []pairKey
	for i := 0; i < len(models); i++ {
		for j := i + 1; j < len(models); j++ {
			pk := pairKey{models[i], models[j]}
			for _, u := range unitIDs {
				if hasSummary[u+"\x00"+pk.a] && hasSummary[u+"\x00"+pk.b] {
					pairUnits[pk] = append(pairUnits[pk], u)
				}
			}
			if len(pairUnits[pk]) > 0 {
				pairs = append(pairs, pk)
			}
		}
	}

	// Judge eligibility is per pair: a judge may not share a family
	// with either member.
	var failures []pipeline.Failure
	judgePairs := make(map[string][]pairKey)
	for _, pk := range pairs {
		eligible := pairJudges(pk.a, pk.b, available)
		if len(eligible) == 0 {
			failures = append(failures, pipeline.Failure{
				Item: pk.a + "-vs-" + pk.b,
				Err: errs.New(errs.KindInsufficientJudges, "judging.planPairwise",
					"no judge outside the families of %s and %s", pk.a, pk.b),
			})
			continue
		}
		for _, j := range eligible {
			judgePairs[j] = append(judgePairs[j], pk)
		}
	}

	taskCap := cfg.MaxComparisonsPerJudge / 2
	if taskCap <= 0 {
		taskCap = 300
	}

	judgeList := make([]string, 0, len(judgePairs))
	for j := range judgePairs {
		judgeList = append(judgeList, j)
	}
	sort.Strings(judgeList)

	var comparisons []comparison
	for _, judge := range judgeList {
		myPairs := judgePairs[judge]
		totalTasks := 0
		for _, pk := range myPairs {
			totalTasks += len(pairUnits[pk])
		}

		quota := -1 // unlimited
		if totalTasks > taskCap {
			quota = (taskCap + len(myPairs) - 1) / len(myPairs)
			logging.Judge("Pairwise budget: judge %s has %d tasks over cap %d, quota %d per pair",
				judge, totalTasks, taskCap, quota)
		}

		for _, pk := range myPairs {
			for _, unitID := range sampleEvenly(pairUnits[pk], quota) {
				comparisons = append(comparisons,
					comparison{unitID: unitID, modelA: pk.a, modelB: pk.b, judge: judge, swapped: false},
					comparison{unitID: unitID, modelA: pk.a, modelB: pk.b, judge: judge, swapped: true},
				)
			}
		}
	}
	return comparisons, failures
}

// pairJudges returns the judges eligible for a pair: never a member of
// the pair, never a model sharing a known family with either member.
func pairJudges(a, b string, available []string) []string {
	famA, famB := judges.Family(a), judges.Family(b)
	var eligible []string
	for _, j := range available {
		if j == a || j == b {
			continue
		}
		if f := judges.Family(j); f != "" && (f == famA || f == famB) {
			continue
		}
		eligible = append(eligible, j)
	}
	return eligible
}

// sampleEvenly picks n items at evenly spaced indices. n < 0 or
// n >= len keeps everything.
func sampleEvenly(items []string, n int) []string {
	if n < 0 || n >= len(items) {
		return items
	}
	if n == 0 {
		return nil
	}
	sampled := make([]string, 0, n)
	for j := 0; j < n; j++ {
		sampled = append(sampled, items[j*len(items)/n])
	}
	return sampled
}

func distinctModels(summaries []*types.GeneratedSummary) []string {
	seen := make(map[string]bool)
	var models []string
	for _, s := range summaries {
		if !seen[s.ModelID] {
			seen[s.ModelID] = true
			models = append(models, s.ModelID)
		}
	}
	sort.Strings(models)
	return models
}

func distinctUnits(summaries []*types.GeneratedSummary) []string {
	seen := make(map[string]bool)
	var units []string
	for _, s := range summaries {
		if !seen[s.CodeUnitID] {
			seen[s.CodeUnitID] = true
			units = append(units, s.CodeUnitID)
		}
	}
	sort.Strings(units)
	return units
}

// judgedComparisons returns the comparison keys already persisted.
func judgedComparisons(pctx *pipeline.Context) (map[string]bool, error) {
	prior, err := pctx.Store.GetPairwiseResults(pctx.RunID)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(prior))
	for _, r := range prior {
		done[fmt.Sprintf("%s\x00%s\x00%s\x00%s\x00%v",
			r.CodeUnitID, r.ModelA, r.ModelB, r.JudgeModel, r.PositionSwapped)] = true
	}
	return done, nil
}

// runPairwise issues the pending comparisons, one pool per judge with
// all judges in parallel. Both orderings of a task are independent
// work items; aggregation is oblivious to their arrival order.
func runPairwise(ctx context.Context, pctx *pipeline.Context, comparisons []comparison, done map[string]bool, byID map[string]*types.CodeUnit, texts map[string]string, finish func(item, lastID string, err error) error) error {
	cfg := pctx.Config.Evaluation.Judge
	parallelism := cfg.PairwiseParallelism
	if parallelism <= 0 {
		parallelism = 20
	}

	byJudge := make(map[string][]comparison)
	for _, c := range comparisons {
		if done[c.key()] {
			continue
		}
		byJudge[c.judge] = append(byJudge[c.judge], c)
	}

	group, gctx := errgroup.WithContext(ctx)
	for judge, judgeComparisons := range byJudge {
		client, err := pctx.Registry.Client(judge)
		if err != nil {
			return err
		}
		group.Go(func() error {
			pool, poolCtx := errgroup.WithContext(gctx)
			pool.SetLimit(parallelism)
			for _, c := range judgeComparisons {
				pool.Go(func() error {
					err := compareOne(poolCtx, pctx, client, c, byID, texts)
					if err != nil && (errors.Is(err, context.Canceled) || errs.PhaseFatal(errs.KindOf(err))) {
						return err
					}
					return finish(c.item(), c.unitID, err)
				})
			}
			return pool.Wait()
		})
	}
	return group.Wait()
}

// compareOne runs one comparison and stores the verdict expressed
// against the canonical model order.
func compareOne(ctx context.Context, pctx *pipeline.Context, client llm.Client, c comparison, byID map[string]*types.CodeUnit, texts map[string]string) error {
	const op = "judging.compareOne"

	unit, ok := byID[c.unitID]
	if !ok {
		return errs.New(errs.KindCorruptedData, op, "unit %s not found", c.unitID)
	}
	textA, okA := texts[c.unitID+"\x00"+c.modelA]
	textB, okB := texts[c.unitID+"\x00"+c.modelB]
	if !okA || !okB {
		return errs.New(errs.KindCorruptedData, op,
			"missing summary text for %s on unit %s", c.modelA+"/"+c.modelB, c.unitID)
	}

	first, second := textA, textB
	if c.swapped {
		first, second = textB, textA
	}

	comp, err := llm.CompleteWithRetry(ctx, client, llm.UserRequest(compareSystem, comparePrompt(unit, first, second)))
	if err != nil {
		return err
	}
	verdict, err := parseComparison(op, c.judge, comp.Content)
	if err != nil {
		return err
	}

	return pctx.Store.InsertPairwiseResults([]*types.PairwiseResult{{
		RunID:           pctx.RunID,
		ModelA:          c.modelA,
		ModelB:          c.modelB,
		CodeUnitID:      c.unitID,
		JudgeModel:      c.judge,
		Winner:          unswap(verdict.Winner, c.swapped),
		Confidence:      types.Confidence(verdict.Confidence),
		PositionSwapped: c.swapped,
		Reasoning:       verdict.Reasoning,
		Criteria:        verdict.Criteria,
		Cost:            comp.Usage.Cost,
	}})
}
