package main

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"hb_sweep_engine/logx"
)

// Progress is a snapshot of sweep counters for display hooks (ticker, TUI,
// websocket monitor). Resumed runs are excluded from both done and total.
type Progress struct {
	Completed int64
	Failed    int64
	TimedOut  int64
	Total     int64
	Percent   float64
	Rate      float64
	ETA       time.Duration
	BestValue float64
	BestRunID int64
	HasBest   bool
}

// SchedulerConfig are the knobs the sweep config and CLI resolve to
type SchedulerConfig struct {
	Workers            int
	CheckpointInterval int
	RunTimeout         time.Duration
	Objective          ObjectiveSpec // tracked for progress display only
	Verbose            bool
}

type runJob struct {
	id int64
	ps ParameterSet
}

// Scheduler drives a sweep to completion: seeds the pending queue from the
// space minus the checkpoint, runs N workers against the evaluator with a
// per-run timeout, and flushes terminal records to the checkpoint store in
// interval batches. The jobs channel and the aggregator goroutine are the
// only points of serialization; workers never touch shared state directly.
type Scheduler struct {
	cfg   SchedulerConfig
	eval  Evaluator
	store *CheckpointStore
	seen  *ShardedSeenMap

	completed atomic.Int64
	failed    atomic.Int64
	timedOut  atomic.Int64
	total     int64

	bestMu    sync.Mutex
	bestValue float64
	bestRunID int64
	hasBest   bool

	onProgress func(Progress)
}

// NewScheduler wires a scheduler. The store may have been loaded or reset by
// the caller already; pass the loaded records to Run.
func NewScheduler(cfg SchedulerConfig, eval Evaluator, store *CheckpointStore) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.CheckpointInterval < 1 {
		cfg.CheckpointInterval = 1
	}
	return &Scheduler{
		cfg:   cfg,
		eval:  eval,
		store: store,
		seen:  NewShardedSeenMap(),
	}
}

// SetProgressHook registers a display callback invoked from the progress
// ticker goroutine (roughly every 2s) and once after the sweep drains.
func (s *Scheduler) SetProgressHook(fn func(Progress)) {
	s.onProgress = fn
}

// Run evaluates every pending parameter set and returns all terminal records
// for the sweep: freshly evaluated plus the resumed ones passed in. On
// context cancellation it stops dispatching immediately, abandons in-flight
// evaluations, and flushes whatever terminal records exist before returning.
func (s *Scheduler) Run(ctx context.Context, space *Space, resumed []RunRecord) []RunRecord {
	sets := space.Sets()

	var nextID int64 = 1
	fingerprints := make([]string, 0, len(resumed))
	for _, rec := range resumed {
		fingerprints = append(fingerprints, rec.Params.Fingerprint())
		if rec.RunID >= nextID {
			nextID = rec.RunID + 1
		}
	}
	s.seen.Restore(fingerprints)

	// Seed the pending queue up front so total (and therefore ETA) is exact.
	// CheckAndSet also dedups identical sets within the space itself.
	pending := make([]runJob, 0, len(sets))
	for _, ps := range sets {
		if !s.seen.CheckAndSet(ps.Fingerprint()) {
			continue
		}
		pending = append(pending, runJob{id: nextID, ps: ps})
		nextID++
	}
	if skipped := len(sets) - len(pending); skipped > 0 {
		logx.LogResumeSkip(skipped, len(sets))
	}
	s.total = int64(len(pending))

	jobs := make(chan runJob, s.cfg.Workers*2)
	results := make(chan RunRecord, s.cfg.Workers*2)
	start := time.Now()

	go func() {
		defer close(jobs)
		for _, job := range pending {
			select {
			case <-ctx.Done():
				return
			case jobs <- job:
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(s.cfg.Workers)
	for i := 0; i < s.cfg.Workers; i++ {
		go func() {
			defer wg.Done()
			for job := range jobs {
				if ctx.Err() != nil {
					return
				}
				rec, ok := s.evaluateOne(ctx, job)
				if !ok {
					// sweep cancelled mid-run: no record, re-runs on resume
					return
				}
				results <- rec
			}
		}()
	}

	// Aggregator: the single checkpoint writer
	fresh := make([]RunRecord, 0, len(pending))
	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		batch := make([]RunRecord, 0, s.cfg.CheckpointInterval)
		flush := func() {
			if len(batch) == 0 {
				return
			}
			if err := s.store.Append(batch); err != nil {
				logx.LogPostStepError("checkpoint flush", err)
			} else {
				logx.LogCheckpointSaved(len(batch), s.store.Path(), time.Since(start))
				logx.LogCheckpointFlush(len(batch))
			}
			batch = batch[:0]
		}
		for rec := range results {
			s.account(rec)
			fresh = append(fresh, rec)
			batch = append(batch, rec)
			if len(batch) >= s.cfg.CheckpointInterval {
				flush()
			}
		}
		flush()
	}()

	// Progress ticker: never blocks worker progress, reads atomics only
	tickerDone := make(chan struct{})
	go func() {
		defer close(tickerDone)
		t := time.NewTicker(2 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-aggDone:
				return
			case <-t.C:
				p := s.progress(start)
				logx.LogSweepProgress(p.Completed, p.Failed, p.TimedOut, p.Total, p.Rate, p.ETA, p.BestValue, p.HasBest)
				if s.onProgress != nil {
					s.onProgress(p)
				}
			}
		}
	}()

	wg.Wait()
	close(results)
	<-aggDone
	<-tickerDone

	p := s.progress(start)
	if s.onProgress != nil {
		s.onProgress(p)
	}
	logx.LogSweepProgress(p.Completed, p.Failed, p.TimedOut, p.Total, p.Rate, p.ETA, p.BestValue, p.HasBest)

	out := make([]RunRecord, 0, len(resumed)+len(fresh))
	out = append(out, resumed...)
	out = append(out, fresh...)
	return out
}

// evaluateOne runs a single evaluation under the per-run timeout and maps
// the outcome onto a terminal record. Returns ok=false only when the sweep
// itself was cancelled, in which case the run is abandoned without a record.
func (s *Scheduler) evaluateOne(ctx context.Context, job runJob) (RunRecord, bool) {
	rec := RunRecord{
		RunID:     job.id,
		Params:    job.ps,
		Status:    StatusPending,
		StartedAt: time.Now(),
	}

	runCtx := ctx
	cancel := func() {}
	if s.cfg.RunTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
	}
	metrics, err := s.eval.Evaluate(runCtx, job.ps)
	cancel()
	rec.FinishedAt = time.Now()

	switch {
	case err == nil:
		rec.Status = StatusCompleted
		rec.Metrics = metrics
	case ctx.Err() != nil:
		return RunRecord{}, false
	case errors.Is(err, context.DeadlineExceeded):
		rec.Status = StatusTimedOut
		rec.Error = "evaluation exceeded run timeout"
	default:
		rec.Status = StatusFailed
		rec.Error = err.Error()
	}
	return rec, true
}

// account updates counters and best tracking; called only by the aggregator
func (s *Scheduler) account(rec RunRecord) {
	elapsed := rec.FinishedAt.Sub(rec.StartedAt)
	switch rec.Status {
	case StatusCompleted:
		s.completed.Add(1)
		if v, ok := rec.Metric(s.cfg.Objective.Name); ok {
			s.trackBest(rec.RunID, v)
			if s.cfg.Verbose {
				logx.LogRunOutcome(rec.RunID, string(rec.Status), s.cfg.Objective.Name, v, true, elapsed, "")
			}
		} else if s.cfg.Verbose {
			logx.LogRunOutcome(rec.RunID, string(rec.Status), "", 0, false, elapsed, "")
		}
	case StatusTimedOut:
		s.timedOut.Add(1)
		logx.LogRunFailure(rec.RunID, string(rec.Status), rec.Error)
		if s.cfg.Verbose {
			logx.LogRunOutcome(rec.RunID, string(rec.Status), "", 0, false, elapsed, rec.Error)
		}
	default:
		s.failed.Add(1)
		logx.LogRunFailure(rec.RunID, string(rec.Status), rec.Error)
		if s.cfg.Verbose {
			logx.LogRunOutcome(rec.RunID, string(rec.Status), "", 0, false, elapsed, rec.Error)
		}
	}
}

func (s *Scheduler) trackBest(runID int64, raw float64) {
	norm := s.cfg.Objective.Normalize(raw)
	s.bestMu.Lock()
	defer s.bestMu.Unlock()
	if !s.hasBest || norm > s.cfg.Objective.Normalize(s.bestValue) {
		s.bestValue = raw
		s.bestRunID = runID
		s.hasBest = true
		logx.LogNewBest(runID, s.cfg.Objective.Name, raw)
	}
}

func (s *Scheduler) progress(start time.Time) Progress {
	completed := s.completed.Load()
	failed := s.failed.Load()
	timedOut := s.timedOut.Load()
	done := completed + failed + timedOut

	elapsed := time.Since(start).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(done) / elapsed
	}
	eta := time.Duration(0)
	if rate > 0 && done < s.total {
		eta = time.Duration(float64(s.total-done)/rate) * time.Second
	}
	pct := 0.0
	if s.total > 0 {
		pct = 100.0 * float64(done) / float64(s.total)
	}

	s.bestMu.Lock()
	best, bestID, hasBest := s.bestValue, s.bestRunID, s.hasBest
	s.bestMu.Unlock()

	return Progress{
		Completed: completed,
		Failed:    failed,
		TimedOut:  timedOut,
		Total:     s.total,
		Percent:   pct,
		Rate:      rate,
		ETA:       eta,
		BestValue: best,
		BestRunID: bestID,
		HasBest:   hasBest,
	}
}
