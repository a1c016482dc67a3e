package main

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// RunStatus is the lifecycle state of a single evaluation
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusTimedOut  RunStatus = "timed_out"
)

// Terminal reports whether the status is final (record must not change after this)
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTimedOut
}

// ParameterSet maps parameter name to a scalar value (numeric, bool or string enum).
// Treated as immutable once built by the space expansion.
type ParameterSet map[string]any

// Fingerprint returns a stable identity string for checkpoint de-duplication.
// Keys are sorted and all numeric values are canonicalized through float64 so
// a set loaded back from JSON (where ints become float64) hashes the same.
func (ps ParameterSet) Fingerprint() string {
	keys := make([]string, 0, len(ps))
	for k := range ps {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fp := make([]byte, 0, 64)
	for _, k := range keys {
		fp = append(fp, k...)
		fp = append(fp, '=')
		fp = append(fp, canonicalValue(ps[k])...)
		fp = append(fp, '|')
	}
	return string(fp)
}

// canonicalValue renders a scalar in a representation-independent form
func canonicalValue(v any) string {
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	switch x := v.(type) {
	case bool:
		if x {
			return "true"
		}
		return "false"
	case string:
		return x
	default:
		return fmt.Sprintf("%v", x)
	}
}

// toFloat converts any numeric scalar (as produced by yaml or json decoding)
// to float64. Returns false for bool/string values.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}

// RunRecord is the result (or failure) of evaluating one parameter set.
// Created by the worker that owns the run; immutable once Status is terminal.
type RunRecord struct {
	RunID      int64              `json:"run_id"`
	Params     ParameterSet       `json:"parameters"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	Status     RunStatus          `json:"status"`
	Error      string             `json:"error,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

// Metric returns the named metric if the run completed and carries it
func (r *RunRecord) Metric(name string) (float64, bool) {
	if r.Status != StatusCompleted || r.Metrics == nil {
		return 0, false
	}
	v, ok := r.Metrics[name]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Direction says whether an objective is better when larger or smaller
type Direction int

const (
	Maximize Direction = iota
	Minimize
)

func (d Direction) String() string {
	if d == Minimize {
		return "minimize"
	}
	return "maximize"
}

// ParseDirection accepts the spellings used in configs and flags
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "", "max", "maximize":
		return Maximize, nil
	case "min", "minimize":
		return Minimize, nil
	}
	return Maximize, fmt.Errorf("unknown direction %q (want max or min)", s)
}

// ObjectiveSpec names a metric and the direction that counts as better
type ObjectiveSpec struct {
	Name      string    `json:"name"`
	Direction Direction `json:"-"`
}

// MarshalJSON emits {"name":..., "direction":"maximize"} for artifacts
func (o ObjectiveSpec) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("{%q:%q,%q:%q}", "name", o.Name, "direction", o.Direction.String())), nil
}

// Normalize maps a raw metric value onto a higher-is-better scale
func (o ObjectiveSpec) Normalize(v float64) float64 {
	if o.Direction == Minimize {
		return -v
	}
	return v
}

// ParseObjectiveSpec parses "name" or "name:min" / "name:max"
func ParseObjectiveSpec(s string) (ObjectiveSpec, error) {
	name := s
	dirStr := ""
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			name, dirStr = s[:i], s[i+1:]
			break
		}
	}
	if name == "" {
		return ObjectiveSpec{}, fmt.Errorf("empty objective name in %q", s)
	}
	dir, err := ParseDirection(dirStr)
	if err != nil {
		return ObjectiveSpec{}, fmt.Errorf("objective %q: %w", name, err)
	}
	return ObjectiveSpec{Name: name, Direction: dir}, nil
}
