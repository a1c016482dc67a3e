package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// fakeEvaluator computes metrics deterministically from the parameters so
// ranking results are predictable. outcome (when set) can inject failures.
type fakeEvaluator struct {
	calls   atomic.Int64
	outcome func(ps ParameterSet) error
	block   bool // wait for ctx cancellation instead of returning
}

func (e *fakeEvaluator) Evaluate(ctx context.Context, ps ParameterSet) (map[string]float64, error) {
	e.calls.Add(1)
	if e.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if e.outcome != nil {
		if err := e.outcome(ps); err != nil {
			return nil, err
		}
	}
	fast, _ := toFloat(ps["fast_period"])
	slow, _ := toFloat(ps["slow_period"])
	threshold, _ := toFloat(ps["threshold"])
	return map[string]float64{
		"sharpe":       fast + threshold,
		"max_drawdown": slow * 10,
	}, nil
}

func gridSpace(t *testing.T) *Space {
	t.Helper()
	space, err := NewSpace(map[string][]any{
		"fast_period": {5, 10, 15, 20, 25},
		"slow_period": {20, 30, 40, 50, 60},
		"threshold":   {0.1, 0.2, 0.3, 0.4, 0.5},
	}, nil, nil)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	return space
}

func newTestScheduler(t *testing.T, eval Evaluator, workers int) (*Scheduler, *CheckpointStore) {
	t.Helper()
	store := NewCheckpointStore(filepath.Join(t.TempDir(), "ckpt.jsonl"))
	sched := NewScheduler(SchedulerConfig{
		Workers:            workers,
		CheckpointInterval: 10,
		RunTimeout:         time.Minute,
		Objective:          ObjectiveSpec{Name: "sharpe", Direction: Maximize},
	}, eval, store)
	return sched, store
}

func TestSchedulerFullSweep(t *testing.T) {
	eval := &fakeEvaluator{}
	sched, store := newTestScheduler(t, eval, 8)
	defer store.Close()

	records := sched.Run(context.Background(), gridSpace(t), nil)
	if len(records) != 125 {
		t.Fatalf("got %d records, want 125", len(records))
	}
	for _, r := range records {
		if r.Status != StatusCompleted {
			t.Fatalf("run %d status %s, want completed", r.RunID, r.Status)
		}
	}
	if n := eval.calls.Load(); n != 125 {
		t.Fatalf("evaluator called %d times, want 125", n)
	}

	// Best run under sharpe=fast+threshold must hold the maxima
	top := TopK(records, ObjectiveSpec{Name: "sharpe", Direction: Maximize}, 1)
	if len(top) != 1 {
		t.Fatal("no top entry")
	}
	fast, _ := toFloat(top[0].Parameters["fast_period"])
	threshold, _ := toFloat(top[0].Parameters["threshold"])
	if fast != 25 || threshold != 0.5 {
		t.Fatalf("top run has fast=%v threshold=%v, want 25/0.5", fast, threshold)
	}

	// Every record must be in the checkpoint
	if loaded := store.Load(); len(loaded) != 125 {
		t.Fatalf("checkpoint holds %d records, want 125", len(loaded))
	}
}

func TestSchedulerResumeSkipsCheckpointed(t *testing.T) {
	space := gridSpace(t)

	eval := &fakeEvaluator{}
	sched, store := newTestScheduler(t, eval, 4)
	first := sched.Run(context.Background(), space, nil)
	store.Close()
	if len(first) != 125 {
		t.Fatalf("first sweep: %d records", len(first))
	}

	// Resume over the complete checkpoint: nothing left to evaluate
	eval2 := &fakeEvaluator{}
	sched2, store2 := newTestScheduler(t, eval2, 4)
	defer store2.Close()
	resumed := store.Load()
	second := sched2.Run(context.Background(), space, resumed)
	if n := eval2.calls.Load(); n != 0 {
		t.Fatalf("resume re-evaluated %d sets, want 0", n)
	}
	if len(second) != 125 {
		t.Fatalf("resume returned %d records, want 125", len(second))
	}

	// run_ids stay unique after resume
	ids := make(map[int64]bool, len(second))
	for _, r := range second {
		if ids[r.RunID] {
			t.Fatalf("duplicate run_id %d after resume", r.RunID)
		}
		ids[r.RunID] = true
	}
}

func TestSchedulerPartialResume(t *testing.T) {
	space := gridSpace(t)
	sets := space.Sets()

	// Pretend a previous process evaluated the first 40 sets
	prior := make([]RunRecord, 0, 40)
	for i, ps := range sets[:40] {
		prior = append(prior, RunRecord{
			RunID:   int64(i + 1),
			Params:  ps,
			Status:  StatusCompleted,
			Metrics: map[string]float64{"sharpe": 1.0},
		})
	}

	eval := &fakeEvaluator{}
	sched, store := newTestScheduler(t, eval, 4)
	defer store.Close()
	records := sched.Run(context.Background(), space, prior)

	if n := eval.calls.Load(); n != 85 {
		t.Fatalf("evaluated %d sets, want 85", n)
	}
	if len(records) != 125 {
		t.Fatalf("got %d records, want 125", len(records))
	}
	// Fresh run_ids continue past the resumed ones
	for _, r := range records[40:] {
		if r.RunID <= 40 {
			t.Fatalf("fresh run reused id %d", r.RunID)
		}
	}
}

func TestSchedulerFailureAccounting(t *testing.T) {
	eval := &fakeEvaluator{
		outcome: func(ps ParameterSet) error {
			fast, _ := toFloat(ps["fast_period"])
			if fast == 5 {
				return fmt.Errorf("synthetic crash")
			}
			return nil
		},
	}
	sched, store := newTestScheduler(t, eval, 4)
	defer store.Close()

	records := sched.Run(context.Background(), gridSpace(t), nil)
	if len(records) != 125 {
		t.Fatalf("got %d records, want 125 (failures still produce records)", len(records))
	}

	var completed, failed int
	for _, r := range records {
		switch r.Status {
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
			if r.Error == "" {
				t.Error("failed record carries no error message")
			}
		default:
			t.Errorf("unexpected status %s", r.Status)
		}
	}
	// fast_period=5 covers 25 of the 125 combinations
	if failed != 25 || completed != 100 {
		t.Fatalf("completed=%d failed=%d, want 100/25", completed, failed)
	}
}

func TestSchedulerRunTimeout(t *testing.T) {
	eval := &fakeEvaluator{block: true}
	store := NewCheckpointStore(filepath.Join(t.TempDir(), "ckpt.jsonl"))
	defer store.Close()
	sched := NewScheduler(SchedulerConfig{
		Workers:            2,
		CheckpointInterval: 1,
		RunTimeout:         10 * time.Millisecond,
		Objective:          ObjectiveSpec{Name: "sharpe", Direction: Maximize},
	}, eval, store)

	space, err := NewSpace(map[string][]any{"x": {1, 2, 3}}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	records := sched.Run(context.Background(), space, nil)
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	for _, r := range records {
		if r.Status != StatusTimedOut {
			t.Fatalf("run %d status %s, want timed_out", r.RunID, r.Status)
		}
	}
}

func TestSchedulerCancellationFlushesAndResumes(t *testing.T) {
	space := gridSpace(t)
	ctx, cancel := context.WithCancel(context.Background())

	// Cancel the sweep once 30 evaluations have been handed out
	eval := &fakeEvaluator{}
	eval.outcome = func(ParameterSet) error {
		if eval.calls.Load() >= 30 {
			cancel()
		}
		return nil
	}
	sched, store := newTestScheduler(t, eval, 4)
	records := sched.Run(ctx, space, nil)
	store.Close()

	if len(records) == 0 || len(records) >= 125 {
		t.Fatalf("cancelled sweep returned %d records, want partial", len(records))
	}
	for _, r := range records {
		if !r.Status.Terminal() {
			t.Fatalf("non-terminal record after cancel: %+v", r)
		}
	}

	// Everything flushed before cancel resumes cleanly; the union covers
	// the whole space with no re-evaluation of checkpointed sets
	resumed := store.Load()
	if len(resumed) != len(records) {
		t.Fatalf("checkpoint holds %d records, returned %d", len(resumed), len(records))
	}
	eval2 := &fakeEvaluator{}
	sched2, store2 := newTestScheduler(t, eval2, 4)
	defer store2.Close()
	final := sched2.Run(context.Background(), space, resumed)
	if len(final) != 125 {
		t.Fatalf("resumed sweep ended with %d records, want 125", len(final))
	}
	if want := int64(125 - len(resumed)); eval2.calls.Load() != want {
		t.Fatalf("resume evaluated %d sets, want %d", eval2.calls.Load(), want)
	}
}
