package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testGenerators() []ModelSpec {
	return []ModelSpec{
		{ID: "claude-sonnet-4-5", Provider: "anthropic"},
		{ID: "qwen2.5-coder:7b", Provider: "ollama", Local: true, ParamsB: 7},
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	var sum float64
	for _, w := range cfg.Evaluation.Weights {
		sum += w
	}
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("default weights sum to %.3f, want 1.0", sum)
	}
	if cfg.Evaluation.Judge.MaxComparisonsPerJudge != 600 {
		t.Errorf("max comparisons = %d, want 600", cfg.Evaluation.Judge.MaxComparisonsPerJudge)
	}
	if cfg.Evaluation.Contrastive.DistractorCount != 9 {
		t.Errorf("distractor count = %d, want 9", cfg.Evaluation.Contrastive.DistractorCount)
	}
	if got := cfg.Evaluation.Retrieval.KValues; len(got) != 3 || got[0] != 1 || got[1] != 5 || got[2] != 10 {
		t.Errorf("k values = %v, want [1 5 10]", got)
	}
	if cfg.Extraction.MaxUnits != 200 {
		t.Errorf("max units = %d, want 200", cfg.Extraction.MaxUnits)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("JUDGE_KEY", "sk-judge-test")

	yaml := `
run:
  name: pilot
project:
  root: ./src
models:
  generators:
    - id: claude-sonnet-4-5
      provider: anthropic
      temperature: 0.2
      max_tokens: 1024
    - id: qwen2.5-coder:7b
      provider: ollama
      local: true
      params_b: 7
  judges:
    - id: gpt-5-mini
      provider: openai
      api_key_env: JUDGE_KEY
evaluation:
  iterative:
    max_rounds: 5
`
	path := filepath.Join(t.TempDir(), "sumbench.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Run.Name != "pilot" {
		t.Errorf("run name = %q, want pilot", cfg.Run.Name)
	}
	if cfg.Project.Root != "./src" {
		t.Errorf("project root = %q, want ./src", cfg.Project.Root)
	}
	if cfg.Evaluation.Iterative.MaxRounds != 5 {
		t.Errorf("max rounds = %d, want 5", cfg.Evaluation.Iterative.MaxRounds)
	}
	// Untouched sections keep their defaults.
	if cfg.Evaluation.Judge.MaxComparisonsPerJudge != 600 {
		t.Errorf("max comparisons = %d, want default 600", cfg.Evaluation.Judge.MaxComparisonsPerJudge)
	}
	if cfg.Store.Path != ".sumbench/bench.db" {
		t.Errorf("store path = %q, want default", cfg.Store.Path)
	}

	gen, ok := cfg.Generator("claude-sonnet-4-5")
	if !ok {
		t.Fatal("generator claude-sonnet-4-5 missing")
	}
	if gen.APIKey != "sk-ant-test" {
		t.Errorf("generator key = %q, want provider-conventional env value", gen.APIKey)
	}
	if len(cfg.Models.Judges) != 1 || cfg.Models.Judges[0].APIKey != "sk-judge-test" {
		t.Error("judge key not resolved from api_key_env")
	}
	if got := cfg.GeneratorIDs(); len(got) != 2 || got[0] != "claude-sonnet-4-5" {
		t.Errorf("generator ids = %v", got)
	}
}

func TestLoadMissingFileFailsValidation(t *testing.T) {
	// Defaults alone carry no models, so a missing file cannot produce a
	// runnable config.
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected validation error for config without generators")
	}
	if !strings.Contains(err.Error(), "generator") {
		t.Errorf("error = %v, want mention of missing generators", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SUMBENCH_DB", "/tmp/override.db")
	t.Setenv("SUMBENCH_DEBUG", "true")

	cfg := DefaultConfig()
	cfg.Models.Generators = testGenerators()
	cfg.Models.Judges = []ModelSpec{{ID: "gpt-5-mini", Provider: "openai"}}
	cfg.applyEnvOverrides()

	if cfg.Store.Path != "/tmp/override.db" {
		t.Errorf("store path = %q, want /tmp/override.db", cfg.Store.Path)
	}
	if !cfg.Logging.Debug {
		t.Error("SUMBENCH_DEBUG=true did not enable debug logging")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := DefaultConfig()
		cfg.Models.Generators = testGenerators()
		cfg.Models.Judges = []ModelSpec{{ID: "gpt-5-mini", Provider: "openai"}}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no generators", func(c *Config) { c.Models.Generators = nil }, "generator"},
		{"duplicate generator", func(c *Config) {
			c.Models.Generators = append(c.Models.Generators, c.Models.Generators[0])
		}, "duplicate"},
		{"unknown provider", func(c *Config) { c.Models.Generators[0].Provider = "skynet" }, "provider"},
		{"judges required", func(c *Config) { c.Models.Judges = nil }, "judge models required"},
		{"embedding-only needs no judges", func(c *Config) {
			c.Models.Judges = nil
			c.Evaluation.Judge.Enabled = false
			c.Evaluation.Contrastive.Method = "embedding"
		}, ""},
		{"bad contrastive method", func(c *Config) { c.Evaluation.Contrastive.Method = "vibes" }, "contrastive method"},
		{"comparisons below a pair", func(c *Config) { c.Evaluation.Judge.MaxComparisonsPerJudge = 1 }, "max_comparisons"},
		{"zero target rank", func(c *Config) { c.Evaluation.Iterative.TargetRank = 0 }, "target_rank"},
		{"bad k value", func(c *Config) { c.Evaluation.Retrieval.KValues = []int{0} }, "k value"},
		{"llm queries need a model", func(c *Config) { c.Evaluation.Retrieval.QuerySource = "llm" }, "query_model"},
		{"weights off unity", func(c *Config) { c.Evaluation.Weights = map[string]float64{"judge": 0.5} }, "weights sum"},
		{"negative weight", func(c *Config) {
			c.Evaluation.Weights = map[string]float64{"judge": 1.5, "retrieval": -0.5}
		}, "negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate failed: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestTimeoutFor(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		modelID string
		want    time.Duration
	}{
		{"o3-mini", 10 * time.Minute},
		{"deepseek-r1:32b", 10 * time.Minute},
		{"Claude-Opus-4", 10 * time.Minute},
		{"gpt-5-mini", 2 * time.Minute},
		{"qwen2.5-coder:7b", 2 * time.Minute},
	}
	for _, tt := range tests {
		if got := cfg.TimeoutFor(tt.modelID); got != tt.want {
			t.Errorf("TimeoutFor(%s) = %v, want %v", tt.modelID, got, tt.want)
		}
	}
}

func TestSnapshotExcludesAPIKeys(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models.Generators = testGenerators()
	cfg.Models.Generators[0].APIKey = "sk-ant-secret"
	cfg.Models.Embedding.APIKey = "sk-embed-secret"

	data, err := cfg.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	s := string(data)
	if strings.Contains(s, "sk-ant-secret") || strings.Contains(s, "sk-embed-secret") {
		t.Error("snapshot leaked an API key")
	}
	if !strings.Contains(s, "claude-sonnet-4-5") {
		t.Error("snapshot missing model id")
	}
}
