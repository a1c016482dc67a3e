package main

import (
	"fmt"
	"sort"
)

// ParetoPoint is a completed run projected onto the objective axes.
// Vector holds direction-normalized values (higher is better on every axis);
// Raw holds the original metric values in objective order for reporting.
type ParetoPoint struct {
	Run    RunRecord
	Vector []float64
	Raw    []float64
}

// dominates reports whether a dominates b: a is >= b on every component and
// strictly greater on at least one. Both vectors are already normalized.
func dominates(a, b []float64) bool {
	strictly := false
	for i := range a {
		if a[i] < b[i] {
			return false
		}
		if a[i] > b[i] {
			strictly = true
		}
	}
	return strictly
}

// projectPoints builds objective vectors for every completed run carrying
// all requested metrics. Runs sharing a parameter fingerprint collapse to
// the earliest run_id (duplicates happen when a crash loses a checkpoint
// interval and the set is re-evaluated on resume).
func projectPoints(records []RunRecord, objectives []ObjectiveSpec) []ParetoPoint {
	byFP := make(map[string]int)
	points := make([]ParetoPoint, 0, len(records))

	sorted := make([]RunRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RunID < sorted[j].RunID })

	for _, r := range sorted {
		vec := make([]float64, len(objectives))
		raw := make([]float64, len(objectives))
		ok := true
		for i, obj := range objectives {
			v, has := r.Metric(obj.Name)
			if !has {
				ok = false
				break
			}
			raw[i] = v
			vec[i] = obj.Normalize(v)
		}
		if !ok {
			continue
		}
		fp := r.Params.Fingerprint()
		if _, dup := byFP[fp]; dup {
			continue
		}
		byFP[fp] = len(points)
		points = append(points, ParetoPoint{Run: r, Vector: vec, Raw: raw})
	}
	return points
}

// ComputeFrontier returns the non-dominated subset of completed runs across
// the given objectives. O(n²·m) pairwise dominance; n is the sweep size and
// this runs once per sweep, so quadratic is fine. Points with identical
// vectors are co-dominant and both kept (dedup is by parameter fingerprint
// only, inside projectPoints).
func ComputeFrontier(records []RunRecord, objectives []ObjectiveSpec) ([]ParetoPoint, error) {
	if len(objectives) < 2 {
		return nil, fmt.Errorf("pareto analysis needs at least 2 objectives, got %d", len(objectives))
	}
	points := projectPoints(records, objectives)
	if len(points) == 0 {
		return nil, fmt.Errorf("no completed runs carry all objectives %v", objectiveNames(objectives))
	}

	frontier := make([]ParetoPoint, 0, len(points))
	for i, p := range points {
		dominated := false
		for j, q := range points {
			if i == j {
				continue
			}
			if dominates(q.Vector, p.Vector) {
				dominated = true
				break
			}
		}
		if !dominated {
			frontier = append(frontier, p)
		}
	}
	return frontier, nil
}

func objectiveNames(objectives []ObjectiveSpec) []string {
	names := make([]string, len(objectives))
	for i, o := range objectives {
		names[i] = o.Name
	}
	return names
}

// frontierPointJSON is one frontier entry in the artifact
type frontierPointJSON struct {
	RunID           int64        `json:"run_id"`
	Parameters      ParameterSet `json:"parameters"`
	ObjectiveVector []float64    `json:"objective_vector"` // raw values, objective order
}

// FrontierArtifact is the Pareto frontier output file layout
type FrontierArtifact struct {
	Objectives []ObjectiveSpec     `json:"objectives"`
	Frontier   []frontierPointJSON `json:"frontier"`
}

// BuildFrontierArtifact shapes the frontier for serialization, ordered by
// run_id for determinism
func BuildFrontierArtifact(frontier []ParetoPoint, objectives []ObjectiveSpec) FrontierArtifact {
	sorted := make([]ParetoPoint, len(frontier))
	copy(sorted, frontier)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Run.RunID < sorted[j].Run.RunID })

	out := FrontierArtifact{Objectives: objectives, Frontier: make([]frontierPointJSON, len(sorted))}
	for i, p := range sorted {
		out.Frontier[i] = frontierPointJSON{
			RunID:           p.Run.RunID,
			Parameters:      p.Run.Params,
			ObjectiveVector: p.Raw,
		}
	}
	return out
}
