// Package config loads claimchain configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all claimchain configuration.
type Config struct {
	Name string `yaml:"name"`

	Chain      ChainConfig      `yaml:"chain"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Sandbox    SandboxConfig    `yaml:"sandbox"`
	LLM        LLMConfig        `yaml:"llm"`
	Agents     []AgentConfig    `yaml:"agents"`
	Humans     []HumanConfig    `yaml:"humans"`
	Assignment AssignmentConfig `yaml:"assignment"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ChainConfig gates the verification chain stages.
type ChainConfig struct {
	MinImplementationConfidence float64       `yaml:"min_implementation_confidence"`
	MinTestCoverage             float64       `yaml:"min_test_coverage"`
	MinSemanticCoverage         float64       `yaml:"min_semantic_coverage"`
	MaxExecutionTimeout         time.Duration `yaml:"max_execution_timeout"`
}

// PipelineConfig controls claim pipeline fan-out and retries.
type PipelineConfig struct {
	MaxConcurrentClaims int    `yaml:"max_concurrent_claims"`
	MaxRetries          int    `yaml:"max_retries"` // per generation call
	RunDir              string `yaml:"run_dir"`     // where run snapshots are written
}

// SandboxConfig declares resource ceilings for sandboxed execution.
// These are enforced by the launcher, not merely recorded.
type SandboxConfig struct {
	MaxMemoryMB      int64         `yaml:"max_memory_mb"`
	MaxCPUTime       time.Duration `yaml:"max_cpu_time"`
	MaxProcesses     int           `yaml:"max_processes"`
	MaxOutputBytes   int64         `yaml:"max_output_bytes"`
	AllowNetwork     bool          `yaml:"allow_network"`
	AllowedPaths     []string      `yaml:"allowed_paths"`
	DefaultTimeout   time.Duration `yaml:"default_timeout"`
	EnvAllowlist     []string      `yaml:"env_allowlist"`
}

// LLMConfig configures the generation collaborators.
type LLMConfig struct {
	Provider string        `yaml:"provider"` // gemini
	APIKey   string        `yaml:"api_key"`  // falls back to $GEMINI_API_KEY
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// AgentConfig declares a registered automated agent.
type AgentConfig struct {
	Type               string   `yaml:"type"`
	Capabilities       []string `yaml:"capabilities"`
	MaxComplexity      int      `yaml:"max_complexity"`
	MaxConcurrentTasks int64    `yaml:"max_concurrent_tasks"`
	Available          bool     `yaml:"available"`
}

// HumanConfig declares a human fallback assignee.
type HumanConfig struct {
	Name         string   `yaml:"name"`
	Contact      string   `yaml:"contact"`
	Skills       []string `yaml:"skills"`
	Availability float64  `yaml:"availability"` // 0.0-1.0
}

// AssignmentConfig tunes the assignment strategy.
type AssignmentConfig struct {
	MinHumanAvailability float64 `yaml:"min_human_availability"`
	AIEffortCutoff       int     `yaml:"ai_effort_cutoff"`
}

// LoggingConfig controls CLI logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the baseline configuration. Threshold and sandbox defaults
// match the verification engine's historical values.
func Default() *Config {
	return &Config{
		Name: "claimchain",
		Chain: ChainConfig{
			MinImplementationConfidence: 0.7,
			MinTestCoverage:             0.8,
			MinSemanticCoverage:         0.8,
			MaxExecutionTimeout:         5 * time.Minute,
		},
		Pipeline: PipelineConfig{
			MaxConcurrentClaims: 4,
			MaxRetries:          3,
			RunDir:              ".claimchain/runs",
		},
		Sandbox: SandboxConfig{
			MaxMemoryMB:    512,
			MaxCPUTime:     30 * time.Second,
			MaxProcesses:   64,
			MaxOutputBytes: 10 << 20,
			AllowNetwork:   false,
			AllowedPaths:   []string{os.TempDir()},
			DefaultTimeout: 2 * time.Minute,
			EnvAllowlist:   []string{"PATH", "HOME", "GOCACHE", "GOPATH"},
		},
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash",
			Timeout:  2 * time.Minute,
		},
		Assignment: AssignmentConfig{
			MinHumanAvailability: 0.5,
			AIEffortCutoff:       7,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads YAML from path, layered over defaults. A missing file returns
// defaults without error so the binary runs unconfigured.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv fills secrets from the environment. Keys in the file win so tests
// can pin values.
func (c *Config) applyEnv() {
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
	}
}

// Validate rejects configurations the pipeline cannot honor.
func (c *Config) Validate() error {
	for _, v := range []struct {
		name  string
		value float64
	}{
		{"chain.min_implementation_confidence", c.Chain.MinImplementationConfidence},
		{"chain.min_test_coverage", c.Chain.MinTestCoverage},
		{"chain.min_semantic_coverage", c.Chain.MinSemanticCoverage},
		{"assignment.min_human_availability", c.Assignment.MinHumanAvailability},
	} {
		if v.value < 0 || v.value > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", v.name, v.value)
		}
	}
	if c.Pipeline.MaxConcurrentClaims < 1 {
		return fmt.Errorf("pipeline.max_concurrent_claims must be >= 1, got %d", c.Pipeline.MaxConcurrentClaims)
	}
	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("pipeline.max_retries must be >= 0, got %d", c.Pipeline.MaxRetries)
	}
	for i, a := range c.Agents {
		if a.Type == "" {
			return fmt.Errorf("agents[%d]: type is required", i)
		}
		if a.MaxConcurrentTasks < 1 {
			return fmt.Errorf("agents[%d]: max_concurrent_tasks must be >= 1, got %d", i, a.MaxConcurrentTasks)
		}
		if a.MaxComplexity < 1 || a.MaxComplexity > 10 {
			return fmt.Errorf("agents[%d]: max_complexity must be in 1..10, got %d", i, a.MaxComplexity)
		}
	}
	for i, h := range c.Humans {
		if h.Availability < 0 || h.Availability > 1 {
			return fmt.Errorf("humans[%d]: availability must be in [0,1], got %v", i, h.Availability)
		}
	}
	return nil
}
