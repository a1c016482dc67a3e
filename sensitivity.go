package main

import (
	"fmt"
	"math"
	"sort"
)

const (
	RankByCorrelation = "correlation"
	RankByVariance    = "variance"
)

// ParamSensitivity scores one parameter against one objective
type ParamSensitivity struct {
	Parameter            string  `json:"parameter"`
	PearsonR             float64 `json:"pearson_r"`
	SpearmanR            float64 `json:"spearman_r"`
	VarianceContribution float64 `json:"variance_contribution"`
	Rank                 int     `json:"rank"`
}

// SensitivityReport holds the full analysis: per-objective parameter
// rankings plus per-parameter stability over the top-K runs
type SensitivityReport struct {
	RankBy       string                        `json:"rank_by"`
	Objectives   []ObjectiveSpec               `json:"objectives"`
	PerObjective map[string][]ParamSensitivity `json:"per_objective"`
	TopK         int                           `json:"top_k"`
	// Stability: coefficient of variation of each numeric parameter's value
	// within the top-K by the primary objective. Low CV = consensus on that
	// parameter's optimal value. Descriptive only, never filters data.
	Stability map[string]float64 `json:"stability"`
}

// AnalyzeSensitivity computes Pearson/Spearman correlation and variance
// contribution for every varying parameter against every objective, ranked
// per objective by |correlation| or variance contribution. The result is
// invariant under reordering of the input records.
func AnalyzeSensitivity(records []RunRecord, varyingNames []string, objectives []ObjectiveSpec, primary ObjectiveSpec, topK int, rankBy string) (*SensitivityReport, error) {
	if rankBy != RankByCorrelation && rankBy != RankByVariance {
		return nil, fmt.Errorf("unknown rank_by %q (want %s or %s)", rankBy, RankByCorrelation, RankByVariance)
	}

	completed := make([]RunRecord, 0, len(records))
	for _, r := range records {
		if r.Status == StatusCompleted {
			completed = append(completed, r)
		}
	}
	if len(completed) < 3 {
		return nil, fmt.Errorf("too few completed runs for correlation analysis (%d, need 3)", len(completed))
	}
	// Deterministic base order regardless of completion order
	sort.Slice(completed, func(i, j int) bool { return completed[i].RunID < completed[j].RunID })

	report := &SensitivityReport{
		RankBy:       rankBy,
		Objectives:   objectives,
		PerObjective: make(map[string][]ParamSensitivity, len(objectives)),
		TopK:         topK,
	}

	for _, obj := range objectives {
		var rows []ParamSensitivity
		for _, param := range varyingNames {
			row := ParamSensitivity{Parameter: param}

			// Paired numeric samples for correlation; grouped samples for
			// variance decomposition (works for enum parameters too)
			var xs, ys []float64
			groups := map[string][]float64{}
			for _, r := range completed {
				y, ok := r.Metric(obj.Name)
				if !ok {
					continue
				}
				groups[canonicalValue(r.Params[param])] = append(groups[canonicalValue(r.Params[param])], y)
				if x, numeric := toFloat(r.Params[param]); numeric {
					xs = append(xs, x)
					ys = append(ys, y)
				}
			}

			if len(xs) >= 3 {
				row.PearsonR = pearson(xs, ys)
				row.SpearmanR = pearson(ranks(xs), ranks(ys))
			}
			row.VarianceContribution = varianceContribution(groups)
			rows = append(rows, row)
		}

		sort.Slice(rows, func(i, j int) bool {
			si, sj := rankScore(rows[i], rankBy), rankScore(rows[j], rankBy)
			if si != sj {
				return si > sj
			}
			return rows[i].Parameter < rows[j].Parameter
		})
		for i := range rows {
			rows[i].Rank = i + 1
		}
		report.PerObjective[obj.Name] = rows
	}

	report.Stability = stability(completed, varyingNames, primary, topK)
	return report, nil
}

func rankScore(r ParamSensitivity, rankBy string) float64 {
	if rankBy == RankByVariance {
		return r.VarianceContribution
	}
	return math.Abs(r.PearsonR)
}

// pearson computes the Pearson correlation coefficient; 0 when either side
// has no variance (constant parameter or objective)
func pearson(xs, ys []float64) float64 {
	n := float64(len(xs))
	if n < 2 {
		return 0
	}
	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var cov, varX, varY float64
	for i := range xs {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}

// ranks converts values to fractional ranks (average rank for ties), the
// standard Spearman construction
func ranks(values []float64) []float64 {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	out := make([]float64, len(values))
	i := 0
	for i < len(idx) {
		j := i
		for j+1 < len(idx) && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		// ranks are 1-based; ties share the average of their positions
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}

// varianceContribution is the ratio of between-group variance (grouping
// runs by the parameter's distinct values) to total objective variance
func varianceContribution(groups map[string][]float64) float64 {
	var all []float64
	for _, g := range groups {
		all = append(all, g...)
	}
	n := float64(len(all))
	if n < 2 || len(groups) < 2 {
		return 0
	}
	var sum float64
	for _, v := range all {
		sum += v
	}
	grandMean := sum / n

	var totalSS float64
	for _, v := range all {
		totalSS += (v - grandMean) * (v - grandMean)
	}
	if totalSS == 0 {
		return 0
	}

	var betweenSS float64
	for _, g := range groups {
		var gSum float64
		for _, v := range g {
			gSum += v
		}
		gMean := gSum / float64(len(g))
		betweenSS += float64(len(g)) * (gMean - grandMean) * (gMean - grandMean)
	}
	return betweenSS / totalSS
}

// stability computes the coefficient of variation of each numeric parameter
// over the top-K completed runs by the primary objective
func stability(completed []RunRecord, varyingNames []string, primary ObjectiveSpec, topK int) map[string]float64 {
	top := sortByObjective(completed, primary)
	if topK < len(top) {
		top = top[:topK]
	}

	out := make(map[string]float64, len(varyingNames))
	for _, param := range varyingNames {
		var values []float64
		for _, r := range top {
			if x, ok := toFloat(r.Params[param]); ok {
				values = append(values, x)
			}
		}
		if len(values) < 2 {
			continue
		}
		var sum float64
		for _, v := range values {
			sum += v
		}
		mean := sum / float64(len(values))
		var variance float64
		for _, v := range values {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(len(values))
		if mean == 0 {
			continue // CV undefined around a zero mean
		}
		out[param] = math.Sqrt(variance) / math.Abs(mean)
	}
	return out
}
