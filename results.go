package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TopEntry is one row of the top-K artifact
type TopEntry struct {
	Rank           int          `json:"rank"`
	RunID          int64        `json:"run_id"`
	Parameters     ParameterSet `json:"parameters"`
	ObjectiveValue float64      `json:"objective_value"`
}

// ParamHint is the naive per-parameter sensitivity preview in the summary:
// mean objective grouped by each distinct value of the parameter
type ParamHint map[string]float64

// Summary aggregates sweep-level statistics for the summary artifact
type Summary struct {
	SweepID     string        `json:"sweep_id"`
	Objective   ObjectiveSpec `json:"objective"`
	GeneratedAt time.Time     `json:"generated_at"`

	TotalRuns   int     `json:"total_runs"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	TimedOut    int     `json:"timed_out"`
	SuccessRate float64 `json:"success_rate"`
	Degraded    bool    `json:"degraded"`

	Best   float64 `json:"best"`
	Worst  float64 `json:"worst"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`

	ParamHints map[string]ParamHint `json:"param_hints,omitempty"`
}

// sortByObjective orders completed runs best-first under direction
// normalization, ties broken by lower run_id so ordering is deterministic
// regardless of completion order.
func sortByObjective(records []RunRecord, obj ObjectiveSpec) []RunRecord {
	ranked := make([]RunRecord, 0, len(records))
	for _, r := range records {
		if _, ok := r.Metric(obj.Name); ok {
			ranked = append(ranked, r)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		vi, _ := ranked[i].Metric(obj.Name)
		vj, _ := ranked[j].Metric(obj.Name)
		ni, nj := obj.Normalize(vi), obj.Normalize(vj)
		if ni != nj {
			return ni > nj
		}
		return ranked[i].RunID < ranked[j].RunID
	})
	return ranked
}

// TopK returns the best K completed runs as artifact rows
func TopK(records []RunRecord, obj ObjectiveSpec, k int) []TopEntry {
	ranked := sortByObjective(records, obj)
	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]TopEntry, k)
	for i := 0; i < k; i++ {
		v, _ := ranked[i].Metric(obj.Name)
		out[i] = TopEntry{Rank: i + 1, RunID: ranked[i].RunID, Parameters: ranked[i].Params, ObjectiveValue: v}
	}
	return out
}

// Summarize computes counts, success rate and objective distribution stats.
// varyingNames drives the naive per-parameter hint; a sweep whose success
// rate falls below threshold is flagged degraded, never failed.
func Summarize(sweepID string, records []RunRecord, obj ObjectiveSpec, varyingNames []string, threshold float64) Summary {
	s := Summary{
		SweepID:     sweepID,
		Objective:   obj,
		GeneratedAt: time.Now().UTC(),
		TotalRuns:   len(records),
	}

	var values []float64
	for _, r := range records {
		switch r.Status {
		case StatusCompleted:
			s.Completed++
			if v, ok := r.Metric(obj.Name); ok {
				values = append(values, v)
			}
		case StatusTimedOut:
			s.TimedOut++
		case StatusFailed:
			s.Failed++
		}
	}
	if s.TotalRuns > 0 {
		s.SuccessRate = float64(s.Completed) / float64(s.TotalRuns)
	}
	s.Degraded = s.SuccessRate < threshold

	if len(values) > 0 {
		best, worst := values[0], values[0]
		sum := 0.0
		for _, v := range values {
			if obj.Normalize(v) > obj.Normalize(best) {
				best = v
			}
			if obj.Normalize(v) < obj.Normalize(worst) {
				worst = v
			}
			sum += v
		}
		mean := sum / float64(len(values))
		variance := 0.0
		for _, v := range values {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(len(values))
		s.Best, s.Worst, s.Mean, s.StdDev = best, worst, mean, math.Sqrt(variance)
	}

	s.ParamHints = paramHints(records, obj, varyingNames)
	return s
}

// paramHints groups completed runs by each varying parameter's distinct
// values and reports the mean objective per group. Quick inspection only;
// the SensitivityAnalyzer does the real work.
func paramHints(records []RunRecord, obj ObjectiveSpec, varyingNames []string) map[string]ParamHint {
	hints := make(map[string]ParamHint, len(varyingNames))
	for _, name := range varyingNames {
		sums := map[string]float64{}
		counts := map[string]int{}
		for _, r := range records {
			v, ok := r.Metric(obj.Name)
			if !ok {
				continue
			}
			key := canonicalValue(r.Params[name])
			sums[key] += v
			counts[key]++
		}
		if len(sums) == 0 {
			continue
		}
		hint := make(ParamHint, len(sums))
		for key, sum := range sums {
			hint[key] = sum / float64(counts[key])
		}
		hints[name] = hint
	}
	return hints
}

// collectMetricNames returns the union of metric names over completed runs,
// sorted, with the objective names first for readable CSV columns
func collectMetricNames(records []RunRecord, primary []string) []string {
	seen := make(map[string]bool)
	for _, name := range primary {
		seen[name] = true
	}
	var rest []string
	for _, r := range records {
		for name := range r.Metrics {
			if !seen[name] {
				seen[name] = true
				rest = append(rest, name)
			}
		}
	}
	sort.Strings(rest)
	out := make([]string, 0, len(primary)+len(rest))
	out = append(out, primary...)
	out = append(out, rest...)
	return out
}

// WriteJSONFile writes v as indented JSON, temp-then-rename so readers
// never observe a partial artifact
func WriteJSONFile(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path) // atomic replace
}

// WriteResultsCSV writes the full result table: one row per run including
// failed and timed-out runs (their metric cells stay empty)
func WriteResultsCSV(path string, records []RunRecord, paramNames, metricNames []string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	header := make([]string, 0, 2+len(paramNames)+len(metricNames))
	header = append(header, "run_id")
	header = append(header, paramNames...)
	header = append(header, metricNames...)
	header = append(header, "status", "error")
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}

	sorted := make([]RunRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RunID < sorted[j].RunID })

	row := make([]string, 0, len(header))
	for _, r := range sorted {
		row = row[:0]
		row = append(row, strconv.FormatInt(r.RunID, 10))
		for _, name := range paramNames {
			row = append(row, canonicalValue(r.Params[name]))
		}
		for _, name := range metricNames {
			if v, ok := r.Metric(name); ok {
				row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
			} else {
				row = append(row, "")
			}
		}
		row = append(row, string(r.Status), r.Error)
		if err := w.Write(row); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// resultsTableJSON mirrors the CSV table for programmatic consumers
type resultsTableJSON struct {
	SweepID string      `json:"sweep_id"`
	Runs    []RunRecord `json:"runs"`
}

// WriteResultsJSON writes the same table as JSON, run_id ascending
func WriteResultsJSON(path, sweepID string, records []RunRecord) error {
	sorted := make([]RunRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RunID < sorted[j].RunID })
	return WriteJSONFile(path, resultsTableJSON{SweepID: sweepID, Runs: sorted})
}

// allParamNames returns varying names followed by the remaining (fixed)
// parameter names found in the records, for stable CSV columns
func allParamNames(records []RunRecord, varyingNames []string) []string {
	seen := make(map[string]bool, len(varyingNames))
	for _, n := range varyingNames {
		seen[n] = true
	}
	var fixed []string
	for _, r := range records {
		for name := range r.Params {
			if !seen[name] {
				seen[name] = true
				fixed = append(fixed, name)
			}
		}
	}
	sort.Strings(fixed)
	out := make([]string, 0, len(varyingNames)+len(fixed))
	out = append(out, varyingNames...)
	out = append(out, fixed...)
	return out
}

// FormatTopKTable renders the top-K for console display
func FormatTopKTable(entries []TopEntry, obj ObjectiveSpec, paramNames []string) string {
	if len(entries) == 0 {
		return "no completed runs to rank\n"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "rank\trun_id\t%s", obj.Name)
	for _, p := range paramNames {
		sb.WriteByte('\t')
		sb.WriteString(p)
	}
	sb.WriteByte('\n')
	for _, e := range entries {
		fmt.Fprintf(&sb, "%d\t%d\t%.4f", e.Rank, e.RunID, e.ObjectiveValue)
		for _, p := range paramNames {
			sb.WriteByte('\t')
			sb.WriteString(canonicalValue(e.Parameters[p]))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
