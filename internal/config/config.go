// Package config defines the YAML configuration for a benchmark run and
// the loading pipeline: file -> defaults -> environment overrides ->
// validation. Missing files are not an error; DefaultConfig() is the
// baseline everything merges into.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration tree.
type Config struct {
	Run        RunConfig        `yaml:"run"`
	Project    ProjectConfig    `yaml:"project"`
	Store      StoreConfig      `yaml:"store"`
	Logging    LoggingConfig    `yaml:"logging"`
	Models     ModelsConfig     `yaml:"models"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Generation GenerationConfig `yaml:"generation"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	LLM        LLMConfig        `yaml:"llm"`
}

// RunConfig names the run being created.
type RunConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	WorkDir     string `yaml:"work_dir"`
}

// ProjectConfig points at the source tree to benchmark.
type ProjectConfig struct {
	Name      string   `yaml:"name"`
	Root      string   `yaml:"root"`
	Include   []string `yaml:"include"`
	Exclude   []string `yaml:"exclude"`
	MaxFileKB int      `yaml:"max_file_kb"`
}

// StoreConfig locates the sqlite database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls the category file logger.
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Debug bool   `yaml:"debug"`
}

// ModelSpec describes one model endpoint. APIKey is resolved from the
// environment at load time and never serialized.
type ModelSpec struct {
	ID             string  `yaml:"id"`
	Provider       string  `yaml:"provider"`
	BaseURL        string  `yaml:"base_url"`
	APIKeyEnv      string  `yaml:"api_key_env"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	Local          bool    `yaml:"local"`
	ParamsB        float64 `yaml:"params_b"`
	CostInPerMTok  float64 `yaml:"cost_in_per_mtok"`
	CostOutPerMTok float64 `yaml:"cost_out_per_mtok"`

	APIKey string `yaml:"-" json:"-"`
}

// EmbeddingConfig selects the embedding backend.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // "genai" or "ollama"
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	Endpoint  string `yaml:"endpoint"`
	TaskType  string `yaml:"task_type"`

	APIKey string `yaml:"-" json:"-"`
}

// ModelsConfig lists the models participating in a run.
type ModelsConfig struct {
	Generators []ModelSpec     `yaml:"generators"`
	Judges     []ModelSpec     `yaml:"judges"`
	QueryModel string          `yaml:"query_model"`
	Embedding  EmbeddingConfig `yaml:"embedding"`
}

// ExtractionConfig bounds the extraction phase.
type ExtractionConfig struct {
	MaxUnits  int      `yaml:"max_units"`
	UnitTypes []string `yaml:"unit_types"`
	Languages []string `yaml:"languages"`
}

// GenerationConfig bounds the generation phase.
type GenerationConfig struct {
	Parallelism int `yaml:"parallelism"`
}

// EvaluationConfig gathers per-evaluator options and category weights.
type EvaluationConfig struct {
	Weights     map[string]float64 `yaml:"weights"`
	Judge       JudgeConfig        `yaml:"judge"`
	Contrastive ContrastiveConfig  `yaml:"contrastive"`
	Retrieval   RetrievalConfig    `yaml:"retrieval"`
	Iterative   IterativeConfig    `yaml:"iterative"`
}

// JudgeConfig controls the pointwise rubric and the pairwise tournament.
type JudgeConfig struct {
	Enabled                bool `yaml:"enabled"`
	Pointwise              bool `yaml:"pointwise"`
	Pairwise               bool `yaml:"pairwise"`
	MaxComparisonsPerJudge int  `yaml:"max_comparisons_per_judge"`
	PointwiseParallelism   int  `yaml:"pointwise_parallelism"`
	PairwiseParallelism    int  `yaml:"pairwise_parallelism"`
	MinJudges              int  `yaml:"min_judges"`
}

// ContrastiveConfig controls distractor selection and scoring methods.
type ContrastiveConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Method          string `yaml:"method"` // "embedding", "llm", "both"
	DistractorCount int    `yaml:"distractor_count"`
	Parallelism     int    `yaml:"parallelism"`
}

// RetrievalConfig controls the cross-model retrieval evaluator.
type RetrievalConfig struct {
	Enabled        bool   `yaml:"enabled"`
	KValues        []int  `yaml:"k_values"`
	QuerySource    string `yaml:"query_source"` // "simple" or "llm"
	QueriesPerUnit int    `yaml:"queries_per_unit"`
}

// IterativeConfig controls the refinement loop.
type IterativeConfig struct {
	Enabled          bool    `yaml:"enabled"`
	MaxRounds        int     `yaml:"max_rounds"`
	TargetRank       int     `yaml:"target_rank"`
	SampleSize       int     `yaml:"sample_size"`
	ModelParallelism int     `yaml:"model_parallelism"`
	LocalParallelism int     `yaml:"local_parallelism"`
	LargeParamsB     float64 `yaml:"large_params_b"`
}

// LLMConfig holds transport-wide settings.
type LLMConfig struct {
	DefaultTimeout   string   `yaml:"default_timeout"`
	ThinkingTimeout  string   `yaml:"thinking_timeout"`
	ThinkingPrefixes []string `yaml:"thinking_prefixes"`
}

// Load reads the config at path, merging over defaults. A missing file
// returns defaults unchanged. Environment overrides and validation apply
// in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// providerKeyEnvs maps a provider to the conventional key variable, used
// when a model spec does not name one explicitly.
var providerKeyEnvs = map[string]string{
	"anthropic":  "ANTHROPIC_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
	"genai":      "GEMINI_API_KEY",
}

// applyEnvOverrides resolves API keys and honors the SUMBENCH_* variables.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SUMBENCH_DB"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("SUMBENCH_LOG_DIR"); v != "" {
		c.Logging.Dir = v
	}
	if v := os.Getenv("SUMBENCH_DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		c.Logging.Debug = true
	}

	resolve := func(spec *ModelSpec) {
		envName := spec.APIKeyEnv
		if envName == "" {
			envName = providerKeyEnvs[strings.ToLower(spec.Provider)]
		}
		if envName != "" {
			spec.APIKey = os.Getenv(envName)
		}
	}
	for i := range c.Models.Generators {
		resolve(&c.Models.Generators[i])
	}
	for i := range c.Models.Judges {
		resolve(&c.Models.Judges[i])
	}

	envName := c.Models.Embedding.APIKeyEnv
	if envName == "" {
		envName = providerKeyEnvs[strings.ToLower(c.Models.Embedding.Provider)]
	}
	if envName != "" {
		c.Models.Embedding.APIKey = os.Getenv(envName)
	}
}

// GetDefaultTimeout parses the default per-call deadline, falling back to
// 2 minutes on bad input.
func (c *Config) GetDefaultTimeout() time.Duration {
	if d, err := time.ParseDuration(c.LLM.DefaultTimeout); err == nil && d > 0 {
		return d
	}
	return 2 * time.Minute
}

// GetThinkingTimeout parses the thinking-class deadline, falling back to
// 10 minutes on bad input.
func (c *Config) GetThinkingTimeout() time.Duration {
	if d, err := time.ParseDuration(c.LLM.ThinkingTimeout); err == nil && d > 0 {
		return d
	}
	return 10 * time.Minute
}

// IsThinkingModel reports whether the model id matches the configured
// thinking-class prefix list. Matching is heuristic by name prefix until
// provider metadata exposes reasoning support directly.
func (c *Config) IsThinkingModel(modelID string) bool {
	id := strings.ToLower(modelID)
	for _, prefix := range c.LLM.ThinkingPrefixes {
		if strings.HasPrefix(id, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}

// TimeoutFor returns the per-call deadline for a model.
func (c *Config) TimeoutFor(modelID string) time.Duration {
	if c.IsThinkingModel(modelID) {
		return c.GetThinkingTimeout()
	}
	return c.GetDefaultTimeout()
}

// GeneratorIDs returns the generator model ids in config order.
func (c *Config) GeneratorIDs() []string {
	ids := make([]string, 0, len(c.Models.Generators))
	for _, m := range c.Models.Generators {
		ids = append(ids, m.ID)
	}
	return ids
}

// JudgeIDs returns the judge model ids in config order.
func (c *Config) JudgeIDs() []string {
	ids := make([]string, 0, len(c.Models.Judges))
	for _, m := range c.Models.Judges {
		ids = append(ids, m.ID)
	}
	return ids
}

// Generator returns the spec for a generator model id.
func (c *Config) Generator(id string) (ModelSpec, bool) {
	for _, m := range c.Models.Generators {
		if m.ID == id {
			return m, true
		}
	}
	return ModelSpec{}, false
}

// Weight returns the aggregation weight for a category, zero when unset.
func (c *Config) Weight(category string) float64 {
	return c.Evaluation.Weights[category]
}

// Snapshot serializes the config for storage on the run row. API keys are
// excluded by their json:"-" tags.
func (c *Config) Snapshot() (json.RawMessage, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot config: %w", err)
	}
	return data, nil
}

// FromSnapshot rebuilds a Config from the snapshot stored on a run row,
// so a resumed run keeps the model set and weights it started with. API
// keys are never stored; they resolve from the environment again.
func FromSnapshot(data json.RawMessage) (*Config, error) {
	cfg := DefaultConfig()
	// Unmarshal merges into a non-nil map. The snapshot is a complete
	// document and must replace the default weights, not merge over them.
	cfg.Evaluation.Weights = nil
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config snapshot: %w", err)
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
