package main

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func completedRun(id int64, params ParameterSet, metrics map[string]float64) RunRecord {
	return RunRecord{RunID: id, Params: params, Status: StatusCompleted, Metrics: metrics}
}

func TestTopKOrdering(t *testing.T) {
	obj := ObjectiveSpec{Name: "sharpe", Direction: Maximize}
	records := []RunRecord{
		completedRun(1, ParameterSet{"x": 1}, map[string]float64{"sharpe": 0.5}),
		completedRun(2, ParameterSet{"x": 2}, map[string]float64{"sharpe": 2.0}),
		completedRun(3, ParameterSet{"x": 3}, map[string]float64{"sharpe": 1.0}),
		{RunID: 4, Params: ParameterSet{"x": 4}, Status: StatusFailed, Error: "boom"},
	}

	top := TopK(records, obj, 2)
	if len(top) != 2 {
		t.Fatalf("got %d entries, want 2", len(top))
	}
	if top[0].RunID != 2 || top[1].RunID != 3 {
		t.Fatalf("order = [%d %d], want [2 3]", top[0].RunID, top[1].RunID)
	}
	if top[0].Rank != 1 || top[1].Rank != 2 {
		t.Fatalf("ranks = [%d %d]", top[0].Rank, top[1].Rank)
	}

	// K larger than the completed set clamps
	if got := TopK(records, obj, 10); len(got) != 3 {
		t.Fatalf("clamped top = %d entries, want 3", len(got))
	}
}

func TestTopKMinimizeAndTieBreak(t *testing.T) {
	obj := ObjectiveSpec{Name: "drawdown", Direction: Minimize}
	records := []RunRecord{
		completedRun(5, ParameterSet{"x": 1}, map[string]float64{"drawdown": 300}),
		completedRun(2, ParameterSet{"x": 2}, map[string]float64{"drawdown": 300}),
		completedRun(3, ParameterSet{"x": 3}, map[string]float64{"drawdown": 100}),
	}
	top := TopK(records, obj, 3)
	// Minimize: 100 first; tie at 300 broken by lower run_id
	if top[0].RunID != 3 || top[1].RunID != 2 || top[2].RunID != 5 {
		t.Fatalf("order = [%d %d %d], want [3 2 5]", top[0].RunID, top[1].RunID, top[2].RunID)
	}
}

func TestTopKIgnoresNaN(t *testing.T) {
	obj := ObjectiveSpec{Name: "sharpe", Direction: Maximize}
	records := []RunRecord{
		completedRun(1, ParameterSet{"x": 1}, map[string]float64{"sharpe": math.NaN()}),
		completedRun(2, ParameterSet{"x": 2}, map[string]float64{"sharpe": 1.0}),
		completedRun(3, ParameterSet{"x": 3}, map[string]float64{"sharpe": math.Inf(1)}),
	}
	top := TopK(records, obj, 10)
	if len(top) != 1 || top[0].RunID != 2 {
		t.Fatalf("NaN/Inf runs not excluded: %+v", top)
	}
}

func TestSummarize(t *testing.T) {
	obj := ObjectiveSpec{Name: "sharpe", Direction: Maximize}
	records := []RunRecord{
		completedRun(1, ParameterSet{"x": 1}, map[string]float64{"sharpe": 1.0}),
		completedRun(2, ParameterSet{"x": 2}, map[string]float64{"sharpe": 3.0}),
		{RunID: 3, Params: ParameterSet{"x": 3}, Status: StatusFailed, Error: "boom"},
		{RunID: 4, Params: ParameterSet{"x": 4}, Status: StatusTimedOut},
	}

	s := Summarize("abc12345", records, obj, []string{"x"}, 0.5)
	if s.TotalRuns != 4 || s.Completed != 2 || s.Failed != 1 || s.TimedOut != 1 {
		t.Fatalf("counts: %+v", s)
	}
	if s.SuccessRate != 0.5 {
		t.Fatalf("success rate = %v, want 0.5", s.SuccessRate)
	}
	if s.Degraded {
		t.Fatal("0.5 success rate at 0.5 threshold must not be degraded")
	}
	if s.Best != 3.0 || s.Worst != 1.0 || s.Mean != 2.0 {
		t.Fatalf("stats: best=%v worst=%v mean=%v", s.Best, s.Worst, s.Mean)
	}
	if s.StdDev != 1.0 {
		t.Fatalf("stddev = %v, want 1.0", s.StdDev)
	}

	hint, ok := s.ParamHints["x"]
	if !ok {
		t.Fatal("no hint for x")
	}
	if hint["1"] != 1.0 || hint["2"] != 3.0 {
		t.Fatalf("hint = %v", hint)
	}
}

func TestSummarizeDegraded(t *testing.T) {
	obj := ObjectiveSpec{Name: "sharpe", Direction: Maximize}
	records := []RunRecord{
		completedRun(1, ParameterSet{"x": 1}, map[string]float64{"sharpe": 1.0}),
		{RunID: 2, Params: ParameterSet{"x": 2}, Status: StatusFailed},
		{RunID: 3, Params: ParameterSet{"x": 3}, Status: StatusFailed},
	}
	s := Summarize("abc12345", records, obj, nil, 0.5)
	if !s.Degraded {
		t.Fatal("1/3 success rate must be degraded at 0.5 threshold")
	}
	// Degraded sweeps still report stats from what completed
	if s.Best != 1.0 {
		t.Fatalf("best = %v", s.Best)
	}
}

func TestWriteResultsCSVIncludesFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	records := []RunRecord{
		completedRun(2, ParameterSet{"x": 2}, map[string]float64{"sharpe": 1.5}),
		{RunID: 1, Params: ParameterSet{"x": 1}, Status: StatusFailed, Error: "boom"},
	}
	if err := WriteResultsCSV(path, records, []string{"x"}, []string{"sharpe"}); err != nil {
		t.Fatalf("WriteResultsCSV: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("%d rows, want header + 2", len(rows))
	}
	// run_id ascending regardless of input order
	if rows[1][0] != "1" || rows[2][0] != "2" {
		t.Fatalf("row order: %v", rows)
	}
	// failed run has an empty metric cell and its error message
	if rows[1][2] != "" {
		t.Fatalf("failed run metric cell = %q, want empty", rows[1][2])
	}
	if rows[1][4] != "boom" {
		t.Fatalf("failed run error cell = %q", rows[1][4])
	}
	if rows[2][2] != "1.5" {
		t.Fatalf("completed run metric cell = %q", rows[2][2])
	}
}

func TestWriteJSONFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	if err := WriteJSONFile(path, map[string]int{"a": 1}); err != nil {
		t.Fatalf("WriteJSONFile: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("temp file left behind")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) == 0 || b[len(b)-1] != '\n' {
		t.Fatal("artifact missing trailing newline")
	}
}
