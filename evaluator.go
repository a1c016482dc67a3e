package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// Evaluator turns one parameter set into a metrics mapping. Implementations
// are expected to be slow (seconds to minutes) and failure-prone; the
// scheduler owns timeouts and never lets a single failure abort the sweep.
type Evaluator interface {
	Evaluate(ctx context.Context, ps ParameterSet) (map[string]float64, error)
}

// SubprocessEvaluator runs an external backtest command per parameter set.
// The parameter set is written as a JSON object on stdin; the command must
// print a JSON object of metric name -> float64 on stdout. OutputDir is
// passed as a trailing argument so the backtest can drop its own artifacts
// (equity curves, trade logs) somewhere without this engine caring.
type SubprocessEvaluator struct {
	Command   []string
	OutputDir string
}

// NewSubprocessEvaluator validates the command line once up front
func NewSubprocessEvaluator(command []string, outputDir string) (*SubprocessEvaluator, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("evaluator command is empty")
	}
	return &SubprocessEvaluator{Command: command, OutputDir: outputDir}, nil
}

// Evaluate runs one backtest. Context cancellation (per-run timeout or sweep
// shutdown) kills the subprocess; the scheduler maps that to TimedOut.
func (e *SubprocessEvaluator) Evaluate(ctx context.Context, ps ParameterSet) (map[string]float64, error) {
	input, err := json.Marshal(ps)
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}

	args := make([]string, 0, len(e.Command))
	args = append(args, e.Command[1:]...)
	if e.OutputDir != "" {
		args = append(args, e.OutputDir)
	}

	cmd := exec.CommandContext(ctx, e.Command[0], args...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// Prefer the context error so timeouts are classified correctly
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("evaluator: %v: %s", err, firstLine(msg))
		}
		return nil, fmt.Errorf("evaluator: %w", err)
	}

	var metrics map[string]float64
	if err := json.Unmarshal(stdout.Bytes(), &metrics); err != nil {
		return nil, fmt.Errorf("evaluator output is not a metrics object: %w", err)
	}
	if len(metrics) == 0 {
		return nil, fmt.Errorf("evaluator returned no metrics")
	}
	return metrics, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
