package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SweepConfig is the immutable sweep declaration. Loaded once from YAML,
// overridden by CLI flags, validated, then passed by value into the
// scheduler; nothing in the concurrency core reads ambient state.
type SweepConfig struct {
	Objective string `yaml:"objective"`
	Direction string `yaml:"direction"` // maximize (default) or minimize

	Workers            int `yaml:"workers"`
	CheckpointInterval int `yaml:"checkpoint_interval"`
	RunTimeoutSec      int `yaml:"run_timeout_sec"`

	Parameters  map[string][]any `yaml:"parameters"`
	Fixed       map[string]any   `yaml:"fixed"`
	Constraints []string         `yaml:"constraints"`

	// Pareto entries are "name" or "name:min"; two or more enable
	// multi-objective post-processing
	Pareto []string `yaml:"pareto"`

	TopK           int     `yaml:"top_k"`
	SelectCount    int     `yaml:"select_count"`
	MinSuccessRate float64 `yaml:"min_success_rate"`
	RankBy         string  `yaml:"rank_by"` // correlation (default) or variance

	// Command is the external evaluator invocation (argv form)
	Command []string `yaml:"command"`

	OutputDir      string `yaml:"output_dir"`
	CheckpointPath string `yaml:"checkpoint"`
}

// LoadSweepConfig reads and validates a sweep config file
func LoadSweepConfig(path string) (*SweepConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseSweepConfigYAML(b)
}

// ParseSweepConfigYAML parses a SweepConfig from YAML bytes and validates it
func ParseSweepConfigYAML(data []byte) (*SweepConfig, error) {
	var cfg SweepConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *SweepConfig) applyDefaults() {
	if c.Direction == "" {
		c.Direction = "maximize"
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.CheckpointInterval == 0 {
		c.CheckpointInterval = 10
	}
	if c.RunTimeoutSec == 0 {
		c.RunTimeoutSec = 300
	}
	if c.TopK == 0 {
		c.TopK = 10
	}
	if c.SelectCount == 0 {
		c.SelectCount = 5
	}
	if c.MinSuccessRate == 0 {
		c.MinSuccessRate = 0.5
	}
	if c.RankBy == "" {
		c.RankBy = RankByCorrelation
	}
	if c.OutputDir == "" {
		c.OutputDir = "sweep_results"
	}
	if c.CheckpointPath == "" {
		c.CheckpointPath = "sweep_checkpoint.jsonl"
	}
}

// Validate fails fast on anything that would waste a sweep: bad counts,
// missing objective, unparseable constraints. Space-level validation
// (empty value lists, name collisions) happens in NewSpace.
func (c *SweepConfig) Validate() error {
	if c.Objective == "" {
		return fmt.Errorf("objective is required")
	}
	if _, err := ParseDirection(c.Direction); err != nil {
		return err
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	if c.CheckpointInterval < 1 {
		return fmt.Errorf("checkpoint_interval must be >= 1, got %d", c.CheckpointInterval)
	}
	if c.RunTimeoutSec < 1 {
		return fmt.Errorf("run_timeout_sec must be >= 1, got %d", c.RunTimeoutSec)
	}
	if len(c.Parameters) == 0 {
		return fmt.Errorf("parameters mapping is empty")
	}
	if c.RankBy != RankByCorrelation && c.RankBy != RankByVariance {
		return fmt.Errorf("rank_by must be %q or %q, got %q", RankByCorrelation, RankByVariance, c.RankBy)
	}
	if c.MinSuccessRate < 0 || c.MinSuccessRate > 1 {
		return fmt.Errorf("min_success_rate must be in [0,1], got %v", c.MinSuccessRate)
	}
	if len(c.Pareto) == 1 {
		return fmt.Errorf("pareto needs at least 2 objectives, got 1")
	}
	for _, s := range c.Constraints {
		if _, err := ParseConstraint(s); err != nil {
			return err
		}
	}
	for _, s := range c.Pareto {
		if _, err := ParseObjectiveSpec(s); err != nil {
			return err
		}
	}
	return nil
}

// PrimaryObjective resolves the single ranking objective
func (c *SweepConfig) PrimaryObjective() ObjectiveSpec {
	dir, _ := ParseDirection(c.Direction) // validated already
	return ObjectiveSpec{Name: c.Objective, Direction: dir}
}

// ParetoObjectives resolves the multi-objective list (nil when disabled)
func (c *SweepConfig) ParetoObjectives() []ObjectiveSpec {
	if len(c.Pareto) < 2 {
		return nil
	}
	out := make([]ObjectiveSpec, len(c.Pareto))
	for i, s := range c.Pareto {
		out[i], _ = ParseObjectiveSpec(s) // validated already
	}
	return out
}

// RunTimeout returns the per-run timeout as a duration
func (c *SweepConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSec) * time.Second
}

// BuildSpace constructs the parameter space from the config declarations
func (c *SweepConfig) BuildSpace() (*Space, error) {
	constraints := make([]Constraint, len(c.Constraints))
	for i, s := range c.Constraints {
		constraints[i], _ = ParseConstraint(s) // validated already
	}
	return NewSpace(c.Parameters, c.Fixed, constraints)
}
