package main

import (
	"strings"
	"testing"
)

func TestSpaceExpansionCount(t *testing.T) {
	params := map[string][]any{
		"fast_period": {5, 10, 15, 20, 25},
		"slow_period": {20, 30, 40, 50, 60},
		"threshold":   {0.1, 0.2, 0.3, 0.4, 0.5},
	}
	space, err := NewSpace(params, nil, nil)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	if got := space.GridSize(); got != 125 {
		t.Fatalf("GridSize = %d, want 125", got)
	}
	sets := space.Sets()
	if len(sets) != 125 {
		t.Fatalf("expanded %d sets, want 125", len(sets))
	}

	// No duplicates under the canonical fingerprint
	seen := make(map[string]bool, len(sets))
	for _, ps := range sets {
		fp := ps.Fingerprint()
		if seen[fp] {
			t.Fatalf("duplicate parameter set %s", fp)
		}
		seen[fp] = true
	}
}

func TestSpaceConstraintFiltering(t *testing.T) {
	params := map[string][]any{
		"fast_period": {5, 10, 20},
		"slow_period": {10, 20},
	}
	c, err := ParseConstraint("fast_period < slow_period")
	if err != nil {
		t.Fatalf("ParseConstraint: %v", err)
	}
	space, err := NewSpace(params, nil, []Constraint{c})
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}

	// (5,10) (5,20) (10,20) survive; (10,10) (20,10) (20,20) do not
	sets := space.Sets()
	if len(sets) != 3 {
		t.Fatalf("expanded %d sets, want 3", len(sets))
	}
	for _, ps := range sets {
		fast, _ := toFloat(ps["fast_period"])
		slow, _ := toFloat(ps["slow_period"])
		if fast >= slow {
			t.Errorf("constraint violated: fast=%v slow=%v", fast, slow)
		}
	}
}

func TestSpaceFixedParametersMerged(t *testing.T) {
	params := map[string][]any{"x": {1, 2}}
	fixed := map[string]any{"mode": "fast", "budget": 100}
	space, err := NewSpace(params, fixed, nil)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	for _, ps := range space.Sets() {
		if ps["mode"] != "fast" {
			t.Errorf("fixed param mode missing: %v", ps)
		}
		if ps["budget"] != 100 {
			t.Errorf("fixed param budget missing: %v", ps)
		}
	}
}

func TestSpaceValidationFailsFast(t *testing.T) {
	lt := func(a, b string) Constraint { return Constraint{Left: a, Op: "<", Right: b} }
	cases := []struct {
		name        string
		params      map[string][]any
		fixed       map[string]any
		constraints []Constraint
		wantErr     string
	}{
		{
			name:    "empty value list",
			params:  map[string][]any{"x": {}},
			wantErr: "empty value list",
		},
		{
			name:    "no varying parameters",
			params:  map[string][]any{},
			wantErr: "no varying parameters",
		},
		{
			name:    "fixed and varying collision",
			params:  map[string][]any{"x": {1, 2}},
			fixed:   map[string]any{"x": 3},
			wantErr: "both varying and fixed",
		},
		{
			name:        "constraint over unknown parameter",
			params:      map[string][]any{"x": {1, 2}},
			constraints: []Constraint{lt("x", "y")},
			wantErr:     "unknown parameter",
		},
		{
			name:        "constraint over non-numeric parameter",
			params:      map[string][]any{"x": {1, 2}, "mode": {"a", "b"}},
			constraints: []Constraint{lt("x", "mode")},
			wantErr:     "non-numeric",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSpace(tc.params, tc.fixed, tc.constraints)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestSpaceEmptyAfterConstraints(t *testing.T) {
	params := map[string][]any{
		"a": {10, 20},
		"b": {1, 2},
	}
	c, _ := ParseConstraint("a < b")
	space, err := NewSpace(params, nil, []Constraint{c})
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	if sets := space.Sets(); len(sets) != 0 {
		t.Fatalf("expected empty expansion, got %d sets", len(sets))
	}
}

func TestParseConstraint(t *testing.T) {
	c, err := ParseConstraint("fast <= slow")
	if err != nil {
		t.Fatalf("ParseConstraint: %v", err)
	}
	if c.Left != "fast" || c.Op != "<=" || c.Right != "slow" {
		t.Fatalf("parsed %+v", c)
	}
	if !c.Eval(ParameterSet{"fast": 5, "slow": 5}) {
		t.Error("5 <= 5 should hold")
	}

	if _, err := ParseConstraint("fast > slow"); err == nil {
		t.Error("expected error for unsupported operator")
	}
	if _, err := ParseConstraint("< slow"); err == nil {
		t.Error("expected error for missing left side")
	}
}

func TestFingerprintNumericCanonicalization(t *testing.T) {
	// YAML decodes 10 as int, a checkpoint round-trip gives float64(10):
	// both must hash identically or resume re-runs everything
	a := ParameterSet{"x": 10, "y": "fast"}
	b := ParameterSet{"x": float64(10), "y": "fast"}
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("fingerprints differ: %q vs %q", a.Fingerprint(), b.Fingerprint())
	}
}
