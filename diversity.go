package main

import (
	"fmt"
	"math"
	"sort"
)

// Selection is one diverse pick from the Pareto frontier
type Selection struct {
	SelectionReason string             `json:"selection_reason"`
	RunID           int64              `json:"run_id"`
	Parameters      ParameterSet       `json:"parameters"`
	Metrics         map[string]float64 `json:"metrics"`
	Strengths       []string           `json:"strengths"`
	Weaknesses      []string           `json:"weaknesses"`
}

// SelectDiverse picks up to n representative frontier points: first the best
// point per objective (deduplicated when one point wins several axes), then
// furthest-point filling in min-max normalized objective space. If the
// frontier is smaller than n, every frontier point is returned.
// completed is the full completed-run set, used only to place each pick's
// metrics in the sweep-wide distribution (strength/weakness quartiles).
func SelectDiverse(frontier []ParetoPoint, objectives []ObjectiveSpec, n int, completed []RunRecord) []Selection {
	if len(frontier) == 0 || n <= 0 {
		return nil
	}

	points := make([]ParetoPoint, len(frontier))
	copy(points, frontier)
	sort.Slice(points, func(i, j int) bool { return points[i].Run.RunID < points[j].Run.RunID })

	norm := normalizeVectors(points)

	selected := make([]int, 0, n)
	reasons := make([]string, 0, n)
	isSelected := make([]bool, len(points))

	// One pick per objective at its best value
	for axis, obj := range objectives {
		if len(selected) >= n {
			break
		}
		bestIdx := -1
		for i, p := range points {
			if bestIdx < 0 || p.Vector[axis] > points[bestIdx].Vector[axis] {
				bestIdx = i
			}
		}
		if bestIdx < 0 || isSelected[bestIdx] {
			continue // same point already won another objective
		}
		isSelected[bestIdx] = true
		selected = append(selected, bestIdx)
		reasons = append(reasons, fmt.Sprintf("best %s", obj.Name))
	}

	// Fill remaining slots with the point furthest from everything chosen
	for len(selected) < n && len(selected) < len(points) {
		bestIdx, bestDist := -1, -1.0
		for i := range points {
			if isSelected[i] {
				continue
			}
			minDist := math.Inf(1)
			for _, s := range selected {
				if d := euclidean(norm[i], norm[s]); d < minDist {
					minDist = d
				}
			}
			if minDist > bestDist {
				bestDist = minDist
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			break
		}
		isSelected[bestIdx] = true
		selected = append(selected, bestIdx)
		reasons = append(reasons, "max diversity")
	}

	quartiles := objectiveQuartiles(completed, objectives)

	out := make([]Selection, len(selected))
	for i, idx := range selected {
		p := points[idx]
		sel := Selection{
			SelectionReason: reasons[i],
			RunID:           p.Run.RunID,
			Parameters:      p.Run.Params,
			Metrics:         p.Run.Metrics,
		}
		for axis, obj := range objectives {
			q := quartiles[axis]
			if q.valid {
				nv := p.Vector[axis]
				if nv >= q.hi {
					sel.Strengths = append(sel.Strengths, obj.Name)
				} else if nv <= q.lo {
					sel.Weaknesses = append(sel.Weaknesses, obj.Name)
				}
			}
		}
		out[i] = sel
	}
	return out
}

// normalizeVectors min-max scales each axis over the frontier so distances
// are comparable across objectives with different magnitudes
func normalizeVectors(points []ParetoPoint) [][]float64 {
	if len(points) == 0 {
		return nil
	}
	dims := len(points[0].Vector)
	mins := make([]float64, dims)
	maxs := make([]float64, dims)
	for d := 0; d < dims; d++ {
		mins[d], maxs[d] = points[0].Vector[d], points[0].Vector[d]
		for _, p := range points {
			if p.Vector[d] < mins[d] {
				mins[d] = p.Vector[d]
			}
			if p.Vector[d] > maxs[d] {
				maxs[d] = p.Vector[d]
			}
		}
	}

	norm := make([][]float64, len(points))
	for i, p := range points {
		v := make([]float64, dims)
		for d := 0; d < dims; d++ {
			span := maxs[d] - mins[d]
			if span > 0 {
				v[d] = (p.Vector[d] - mins[d]) / span
			}
		}
		norm[i] = v
	}
	return norm
}

func euclidean(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

type quartile struct {
	lo, hi float64 // 25th and 75th percentile of normalized values
	valid  bool
}

// objectiveQuartiles computes per-objective quartiles over the full
// completed-run distribution (direction-normalized, so "top quartile"
// always means good)
func objectiveQuartiles(completed []RunRecord, objectives []ObjectiveSpec) []quartile {
	out := make([]quartile, len(objectives))
	for axis, obj := range objectives {
		var values []float64
		for _, r := range completed {
			if v, ok := r.Metric(obj.Name); ok {
				values = append(values, obj.Normalize(v))
			}
		}
		if len(values) < 4 {
			continue
		}
		sort.Float64s(values)
		out[axis] = quartile{
			lo:    values[len(values)/4],
			hi:    values[(3*len(values))/4],
			valid: true,
		}
	}
	return out
}
