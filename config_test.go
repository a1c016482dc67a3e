package main

import (
	"strings"
	"testing"
	"time"
)

const validConfigYAML = `
objective: sharpe
direction: maximize
workers: 8
parameters:
  fast_period: [5, 10, 15]
  slow_period: [20, 30]
fixed:
  symbol: BTCUSDT
constraints:
  - fast_period < slow_period
pareto:
  - sharpe
  - "max_drawdown:min"
command: ["./backtest", "--quiet"]
`

func TestParseSweepConfigYAML(t *testing.T) {
	cfg, err := ParseSweepConfigYAML([]byte(validConfigYAML))
	if err != nil {
		t.Fatalf("ParseSweepConfigYAML: %v", err)
	}
	if cfg.Objective != "sharpe" || cfg.Workers != 8 {
		t.Fatalf("parsed %+v", cfg)
	}
	if len(cfg.Parameters["fast_period"]) != 3 {
		t.Fatalf("fast_period values: %v", cfg.Parameters["fast_period"])
	}
	if cfg.Fixed["symbol"] != "BTCUSDT" {
		t.Fatalf("fixed: %v", cfg.Fixed)
	}

	// Defaults fill the unset knobs
	if cfg.CheckpointInterval != 10 || cfg.TopK != 10 || cfg.SelectCount != 5 {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.MinSuccessRate != 0.5 || cfg.RankBy != RankByCorrelation {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.RunTimeout() != 300*time.Second {
		t.Fatalf("run timeout = %v", cfg.RunTimeout())
	}

	primary := cfg.PrimaryObjective()
	if primary.Name != "sharpe" || primary.Direction != Maximize {
		t.Fatalf("primary = %+v", primary)
	}
	objectives := cfg.ParetoObjectives()
	if len(objectives) != 2 || objectives[1].Direction != Minimize {
		t.Fatalf("pareto = %+v", objectives)
	}
}

func TestConfigBuildSpace(t *testing.T) {
	cfg, err := ParseSweepConfigYAML([]byte(validConfigYAML))
	if err != nil {
		t.Fatal(err)
	}
	space, err := cfg.BuildSpace()
	if err != nil {
		t.Fatalf("BuildSpace: %v", err)
	}
	// 3x2 grid, all pairs satisfy fast < slow
	if sets := space.Sets(); len(sets) != 6 {
		t.Fatalf("expanded %d sets, want 6", len(sets))
	}
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"missing objective", "parameters:\n  x: [1]\n", "objective is required"},
		{"bad direction", "objective: s\ndirection: sideways\nparameters:\n  x: [1]\n", "unknown direction"},
		{"no parameters", "objective: s\n", "parameters mapping is empty"},
		{"single pareto objective", "objective: s\nparameters:\n  x: [1]\npareto: [s]\n", "at least 2 objectives"},
		{"bad constraint", "objective: s\nparameters:\n  x: [1]\nconstraints: [\"x > y\"]\n", "malformed constraint"},
		{"bad rank_by", "objective: s\nparameters:\n  x: [1]\nrank_by: magic\n", "rank_by"},
		{"bad success rate", "objective: s\nparameters:\n  x: [1]\nmin_success_rate: 1.5\n", "min_success_rate"},
		{"negative workers", "objective: s\nworkers: -2\nparameters:\n  x: [1]\n", "workers"},
		{"not yaml", "objective: [\n", "parse config yaml"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSweepConfigYAML([]byte(tc.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg, err := ParseSweepConfigYAML([]byte(validConfigYAML))
	if err != nil {
		t.Fatal(err)
	}
	err = applyOverrides(cfg, "max_drawdown", "min", 16, "sharpe, max_drawdown:min", "out", "ck.jsonl", 20, 7, 60)
	if err != nil {
		t.Fatalf("applyOverrides: %v", err)
	}
	if cfg.Objective != "max_drawdown" || cfg.Direction != "min" || cfg.Workers != 16 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.OutputDir != "out" || cfg.CheckpointPath != "ck.jsonl" {
		t.Fatalf("paths not overridden: %+v", cfg)
	}
	if cfg.TopK != 20 || cfg.SelectCount != 7 || cfg.RunTimeoutSec != 60 {
		t.Fatalf("counts not overridden: %+v", cfg)
	}
	objectives := cfg.ParetoObjectives()
	if len(objectives) != 2 || objectives[0].Name != "sharpe" {
		t.Fatalf("pareto override: %+v", objectives)
	}

	// Overrides re-validate: a bad direction must be rejected
	if err := applyOverrides(cfg, "", "sideways", 0, "", "", "", 0, 0, 0); err == nil {
		t.Fatal("expected error for bad direction override")
	}
}
