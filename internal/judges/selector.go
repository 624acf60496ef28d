// Package judges decides which judge models may score a generator's
// output. A judge never scores a model from its own provider family,
// so a model cannot be flattered by its siblings.
package judges

import (
	"strings"

	"sumbench/internal/errs"
)

// families is the closed substring table mapping model ids to provider
// families. Order matters: the first matching family wins.
var families = []struct {
	name       string
	substrings []string
}{
	{"anthropic", []string{"claude", "anthropic"}},
	{"openai", []string{"gpt", "openai", "o1", "o3", "o4"}},
	{"google", []string{"gemini", "gemma", "google", "bard"}},
	{"meta", []string{"llama", "meta"}},
	{"mistral", []string{"mistral", "mixtral", "ministral", "codestral"}},
}

// Family returns the provider family for a model id, or "" when the id
// matches no known family. Unknown models are excluded from nothing.
func Family(modelID string) string {
	id := strings.ToLower(modelID)
	for _, f := range families {
		for _, sub := range f.substrings {
			if strings.Contains(id, sub) {
				return f.name
			}
		}
	}
	return ""
}

// SelectJudges returns the judges from available eligible to score
// generator: never the generator itself, never a judge sharing a known
// family with it. The result is diversity-ordered: one judge per
// distinct family in first-seen order, then the remainder in input
// order. Fewer than minJudges eligible is an error.
func SelectJudges(generator string, available []string, minJudges int) ([]string, error) {
	const op = "judges.SelectJudges"

	genFamily := Family(generator)
	var eligible []string
	for _, j := range available {
		if j == generator {
			continue
		}
		if genFamily != "" && Family(j) == genFamily {
			continue
		}
		eligible = append(eligible, j)
	}

	picked := make([]string, 0, len(eligible))
	seenFamily := make(map[string]bool)
	taken := make(map[string]bool)
	for _, j := range eligible {
		f := Family(j)
		if f == "" || seenFamily[f] {
			continue
		}
		seenFamily[f] = true
		taken[j] = true
		picked = append(picked, j)
	}
	for _, j := range eligible {
		if !taken[j] {
			picked = append(picked, j)
		}
	}

	if len(picked) < minJudges {
		return nil, errs.New(errs.KindInsufficientJudges, op,
			"%d eligible judges for %s, need at least %d", len(picked), generator, minJudges)
	}
	return picked, nil
}
