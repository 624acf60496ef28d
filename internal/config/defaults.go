package config

// DefaultConfig returns the baseline configuration every load merges
// into. Values follow the benchmark's standing defaults: a 600-comparison
// pairwise budget per judge, 9 distractors, 3 refinement rounds, and the
// category weights used for the overall score.
func DefaultConfig() *Config {
	return &Config{
		Run: RunConfig{
			Name:    "benchmark",
			WorkDir: ".sumbench",
		},
		Project: ProjectConfig{
			Root:      ".",
			Exclude:   []string{"vendor/**", "node_modules/**", ".git/**", "testdata/**"},
			MaxFileKB: 512,
		},
		Store: StoreConfig{
			Path: ".sumbench/bench.db",
		},
		Logging: LoggingConfig{
			Dir:   ".sumbench/logs",
			Debug: false,
		},
		Models: ModelsConfig{
			Embedding: EmbeddingConfig{
				Provider: "ollama",
				Model:    "embeddinggemma",
				Endpoint: "http://localhost:11434",
				TaskType: "RETRIEVAL_DOCUMENT",
			},
		},
		Extraction: ExtractionConfig{
			MaxUnits:  200,
			UnitTypes: []string{"function", "method", "class"},
			Languages: []string{"go", "python", "javascript", "typescript"},
		},
		Generation: GenerationConfig{
			Parallelism: 4,
		},
		Evaluation: EvaluationConfig{
			Weights: map[string]float64{
				"judge":       0.30,
				"contrastive": 0.20,
				"retrieval":   0.20,
				"iterative":   0.20,
				"downstream":  0.05,
				"self":        0.05,
			},
			Judge: JudgeConfig{
				Enabled:                true,
				Pointwise:              true,
				Pairwise:               true,
				MaxComparisonsPerJudge: 600,
				PointwiseParallelism:   30,
				PairwiseParallelism:    20,
				MinJudges:              1,
			},
			Contrastive: ContrastiveConfig{
				Enabled:         true,
				Method:          "both",
				DistractorCount: 9,
				Parallelism:     30,
			},
			Retrieval: RetrievalConfig{
				Enabled:        true,
				KValues:        []int{1, 5, 10},
				QuerySource:    "simple",
				QueriesPerUnit: 2,
			},
			Iterative: IterativeConfig{
				Enabled:          true,
				MaxRounds:        3,
				TargetRank:       3,
				SampleSize:       20,
				ModelParallelism: 4,
				LocalParallelism: 2,
				LargeParamsB:     30,
			},
		},
		LLM: LLMConfig{
			DefaultTimeout:  "2m",
			ThinkingTimeout: "10m",
			ThinkingPrefixes: []string{
				"o1", "o3", "deepseek-r1", "qwq", "gemini-2.5-pro", "claude-opus",
			},
		},
	}
}
