package config

import (
	"fmt"
	"math"
	"strings"
)

var validMethods = map[string]bool{"embedding": true, "llm": true, "both": true}

var validProviders = map[string]bool{
	"anthropic":  true,
	"openai":     true,
	"gemini":     true,
	"openrouter": true,
	"ollama":     true,
}

// Validate checks the configuration for contradictions that would only
// surface mid-run. It does not verify API keys; transports report those
// at call time.
func (c *Config) Validate() error {
	if len(c.Models.Generators) == 0 {
		return fmt.Errorf("config: at least one generator model is required")
	}
	seen := make(map[string]bool)
	for _, m := range c.Models.Generators {
		if m.ID == "" {
			return fmt.Errorf("config: generator with empty id")
		}
		if seen[m.ID] {
			return fmt.Errorf("config: duplicate generator %q", m.ID)
		}
		seen[m.ID] = true
		if m.Provider != "" && !validProviders[strings.ToLower(m.Provider)] {
			return fmt.Errorf("config: generator %q has unknown provider %q", m.ID, m.Provider)
		}
	}
	for _, m := range c.Models.Judges {
		if m.ID == "" {
			return fmt.Errorf("config: judge with empty id")
		}
		if m.Provider != "" && !validProviders[strings.ToLower(m.Provider)] {
			return fmt.Errorf("config: judge %q has unknown provider %q", m.ID, m.Provider)
		}
	}

	needsJudges := c.Evaluation.Judge.Enabled ||
		(c.Evaluation.Contrastive.Enabled && c.Evaluation.Contrastive.Method != "embedding")
	if needsJudges && len(c.Models.Judges) == 0 {
		return fmt.Errorf("config: judge models required when judge or contrastive llm evaluation is enabled")
	}

	if m := c.Evaluation.Contrastive.Method; m != "" && !validMethods[m] {
		return fmt.Errorf("config: contrastive method %q (want embedding, llm, or both)", m)
	}
	if c.Evaluation.Contrastive.DistractorCount < 1 {
		return fmt.Errorf("config: distractor_count must be >= 1")
	}
	if c.Evaluation.Judge.MaxComparisonsPerJudge < 2 {
		return fmt.Errorf("config: max_comparisons_per_judge must be >= 2 (one task is two orderings)")
	}
	if c.Evaluation.Iterative.MaxRounds < 0 {
		return fmt.Errorf("config: max_rounds must be >= 0")
	}
	if c.Evaluation.Iterative.TargetRank < 1 {
		return fmt.Errorf("config: target_rank must be >= 1")
	}
	for _, k := range c.Evaluation.Retrieval.KValues {
		if k < 1 {
			return fmt.Errorf("config: retrieval k value %d must be >= 1", k)
		}
	}
	if qs := c.Evaluation.Retrieval.QuerySource; qs != "" && qs != "simple" && qs != "llm" {
		return fmt.Errorf("config: retrieval query_source %q (want simple or llm)", qs)
	}
	if c.Evaluation.Retrieval.QuerySource == "llm" && c.Models.QueryModel == "" {
		return fmt.Errorf("config: query_model required when retrieval query_source is llm")
	}

	if len(c.Evaluation.Weights) > 0 {
		var sum float64
		for cat, w := range c.Evaluation.Weights {
			if w < 0 {
				return fmt.Errorf("config: weight for %q is negative", cat)
			}
			sum += w
		}
		if math.Abs(sum-1.0) > 0.01 {
			return fmt.Errorf("config: evaluation weights sum to %.3f, want 1.0", sum)
		}
	}

	if ep := c.Models.Embedding.Provider; ep != "" && ep != "genai" && ep != "ollama" {
		return fmt.Errorf("config: embedding provider %q (want genai or ollama)", ep)
	}

	return nil
}
