package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrEmptySpace is returned when expansion yields no parameter sets
// (all combinations filtered out, or no varying parameters declared)
var ErrEmptySpace = errors.New("parameter space is empty")

// Constraint is a validity predicate over two numeric parameters,
// e.g. fast_period < slow_period. Parsed from config strings.
type Constraint struct {
	Left  string
	Op    string // "<" or "<="
	Right string
}

// ParseConstraint parses "a < b" or "a <= b"
func ParseConstraint(s string) (Constraint, error) {
	for _, op := range []string{"<=", "<"} {
		if i := strings.Index(s, op); i > 0 {
			left := strings.TrimSpace(s[:i])
			right := strings.TrimSpace(s[i+len(op):])
			if left == "" || right == "" {
				return Constraint{}, fmt.Errorf("malformed constraint %q", s)
			}
			return Constraint{Left: left, Op: op, Right: right}, nil
		}
	}
	return Constraint{}, fmt.Errorf("malformed constraint %q (want \"a < b\" or \"a <= b\")", s)
}

// Eval applies the predicate to a parameter set. Both sides must be numeric;
// that is checked once at space construction, not per combination.
func (c Constraint) Eval(ps ParameterSet) bool {
	a, _ := toFloat(ps[c.Left])
	b, _ := toFloat(ps[c.Right])
	if c.Op == "<=" {
		return a <= b
	}
	return a < b
}

func (c Constraint) String() string {
	return c.Left + " " + c.Op + " " + c.Right
}

type varyingParam struct {
	name   string
	values []any
}

// Space holds the declared parameter grid before expansion
type Space struct {
	varying     []varyingParam // sorted by name for deterministic enumeration
	fixed       ParameterSet
	constraints []Constraint
}

// NewSpace validates the declared grid and builds a Space.
// Fails fast (before any evaluation) on empty value lists, fixed/varying
// name collisions, and constraints over unknown or non-numeric parameters.
func NewSpace(params map[string][]any, fixed map[string]any, constraints []Constraint) (*Space, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("no varying parameters declared")
	}

	s := &Space{fixed: ParameterSet{}, constraints: constraints}
	for name, values := range params {
		if len(values) == 0 {
			return nil, fmt.Errorf("parameter %q has an empty value list", name)
		}
		s.varying = append(s.varying, varyingParam{name: name, values: values})
	}
	sort.Slice(s.varying, func(i, j int) bool { return s.varying[i].name < s.varying[j].name })

	for name, v := range fixed {
		if _, ok := params[name]; ok {
			return nil, fmt.Errorf("parameter %q declared both varying and fixed", name)
		}
		s.fixed[name] = v
	}

	for _, c := range constraints {
		for _, side := range []string{c.Left, c.Right} {
			values, varying := params[side]
			if !varying {
				fv, fixedOK := fixed[side]
				if !fixedOK {
					return nil, fmt.Errorf("constraint %q references unknown parameter %q", c, side)
				}
				if _, ok := toFloat(fv); !ok {
					return nil, fmt.Errorf("constraint %q: parameter %q is not numeric", c, side)
				}
				continue
			}
			for _, v := range values {
				if _, ok := toFloat(v); !ok {
					return nil, fmt.Errorf("constraint %q: parameter %q has non-numeric value %v", c, side, v)
				}
			}
		}
	}

	return s, nil
}

// VaryingNames returns the varying parameter names in enumeration order
func (s *Space) VaryingNames() []string {
	names := make([]string, len(s.varying))
	for i, p := range s.varying {
		names[i] = p.name
	}
	return names
}

// GridSize is the unfiltered Cartesian product size
func (s *Space) GridSize() int {
	n := 1
	for _, p := range s.varying {
		n *= len(p.values)
	}
	return n
}

// Sets expands the full Cartesian product, merges fixed parameters into
// every set, and drops combinations rejected by a constraint. Enumeration
// order is deterministic: odometer over name-sorted varying parameters,
// values in declared order.
func (s *Space) Sets() []ParameterSet {
	out := make([]ParameterSet, 0, s.GridSize())
	idx := make([]int, len(s.varying))

	for {
		ps := make(ParameterSet, len(s.varying)+len(s.fixed))
		for k, v := range s.fixed {
			ps[k] = v
		}
		for i, p := range s.varying {
			ps[p.name] = p.values[idx[i]]
		}

		ok := true
		for _, c := range s.constraints {
			if !c.Eval(ps) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, ps)
		}

		// odometer increment, least-significant position last
		pos := len(idx) - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < len(s.varying[pos].values) {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			return out
		}
	}
}
