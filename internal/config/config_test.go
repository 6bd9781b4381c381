package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Chain.MinSemanticCoverage != 0.8 {
		t.Errorf("MinSemanticCoverage = %v, want 0.8", cfg.Chain.MinSemanticCoverage)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
chain:
  min_semantic_coverage: 0.9
  max_execution_timeout: 1m
pipeline:
  max_concurrent_claims: 2
agents:
  - type: compilation
    capabilities: [compilation, diagnostics]
    max_complexity: 8
    max_concurrent_tasks: 2
    available: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Chain.MinSemanticCoverage != 0.9 {
		t.Errorf("MinSemanticCoverage = %v, want 0.9", cfg.Chain.MinSemanticCoverage)
	}
	if cfg.Chain.MaxExecutionTimeout != time.Minute {
		t.Errorf("MaxExecutionTimeout = %v, want 1m", cfg.Chain.MaxExecutionTimeout)
	}
	if len(cfg.Agents) != 1 || cfg.Agents[0].Type != "compilation" {
		t.Errorf("Agents = %+v, want one compilation agent", cfg.Agents)
	}
	// Unset fields keep defaults.
	if cfg.Sandbox.MaxMemoryMB != 512 {
		t.Errorf("Sandbox.MaxMemoryMB = %d, want default 512", cfg.Sandbox.MaxMemoryMB)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold above one", func(c *Config) { c.Chain.MinSemanticCoverage = 1.5 }},
		{"zero concurrency", func(c *Config) { c.Pipeline.MaxConcurrentClaims = 0 }},
		{"agent without type", func(c *Config) {
			c.Agents = []AgentConfig{{MaxComplexity: 5, MaxConcurrentTasks: 1}}
		}},
		{"agent zero ceiling", func(c *Config) {
			c.Agents = []AgentConfig{{Type: "x", MaxComplexity: 5}}
		}},
		{"agent complexity out of band", func(c *Config) {
			c.Agents = []AgentConfig{{Type: "x", MaxComplexity: 11, MaxConcurrentTasks: 1}}
		}},
		{"human availability out of range", func(c *Config) {
			c.Humans = []HumanConfig{{Name: "a", Availability: 2}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.APIKey != "test-key" {
		t.Errorf("APIKey = %q, want env value", cfg.LLM.APIKey)
	}
}
