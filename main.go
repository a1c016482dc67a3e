package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"hb_sweep_engine/logx"
	"hb_sweep_engine/tui"

	"github.com/google/uuid"
)

// Exit codes: 0 success, 2 config error, 3 space validation error (nothing to
// evaluate), 4 execution error (sweep ran but produced zero completed runs).
const (
	exitOK         = 0
	exitConfig     = 2
	exitValidation = 3
	exitExecution  = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "sweep.yaml", "Path to sweep config YAML")
		objective  = flag.String("objective", "", "Override objective metric name")
		direction  = flag.String("direction", "", "Override objective direction (max or min)")
		workers    = flag.Int("workers", 0, "Override worker count")
		pareto     = flag.String("pareto", "", "Override pareto objectives (comma-separated name[:min|:max])")
		outputDir  = flag.String("output", "", "Override output directory")
		resume     = flag.Bool("resume", true, "Resume from checkpoint if present")
		noResume   = flag.Bool("no-resume", false, "Discard checkpoint and start fresh")
		checkpoint = flag.String("checkpoint", "", "Override checkpoint file path")
		topK       = flag.Int("top", 0, "Override top-K size")
		selectN    = flag.Int("select", 0, "Override diverse selection count")
		timeoutSec = flag.Int("timeout", 0, "Override per-run timeout in seconds")
		webMonitor = flag.Bool("web", false, "Serve a live WebSocket monitor")
		webPort    = flag.Int("web-port", 8181, "Monitor port (next free port is probed)")
		useTUI     = flag.Bool("tui", false, "Interactive terminal dashboard")
		verbose    = flag.Bool("verbose", false, "Log every run outcome")
	)
	flag.Parse()

	cfg, err := LoadSweepConfig(*configPath)
	if err != nil {
		fmt.Printf("%s\n", logx.Errorf("config: %v", err))
		return exitConfig
	}
	if err := applyOverrides(cfg, *objective, *direction, *workers, *pareto, *outputDir, *checkpoint, *topK, *selectN, *timeoutSec); err != nil {
		fmt.Printf("%s\n", logx.Errorf("config: %v", err))
		return exitConfig
	}

	space, err := cfg.BuildSpace()
	if err != nil {
		fmt.Printf("%s\n", logx.Errorf("config: %v", err))
		return exitConfig
	}
	sets := space.Sets()
	if len(sets) == 0 {
		fmt.Printf("%s\n", logx.Errorf("%v: all %d grid combinations rejected by constraints", ErrEmptySpace, space.GridSize()))
		return exitValidation
	}

	evaluator, err := NewSubprocessEvaluator(cfg.Command, cfg.OutputDir)
	if err != nil {
		fmt.Printf("%s\n", logx.Errorf("config: %v", err))
		return exitConfig
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		fmt.Printf("%s\n", logx.Errorf("output dir: %v", err))
		return exitConfig
	}

	sweepID := uuid.New().String()[:8]
	primary := cfg.PrimaryObjective()

	fmt.Printf("%s  sweep %s | objective %s (%s) | %s of %s grid combination(s) pass constraints | %d worker(s)\n",
		logx.Channel("PROG"), logx.Highlight(sweepID), logx.Highlight(primary.Name), primary.Direction,
		logx.FormatNumber(len(sets)), logx.FormatNumber(space.GridSize()), cfg.Workers)

	// Checkpoint: load for resume, or wipe for a fresh start
	store := NewCheckpointStore(cfg.CheckpointPath)
	var resumed []RunRecord
	if *noResume || !*resume {
		if err := store.Reset(); err != nil {
			fmt.Printf("%s\n", logx.Errorf("checkpoint: %v", err))
			return exitConfig
		}
	} else {
		resumed = store.Load()
		if len(resumed) > 0 {
			logx.LogCheckpointLoaded(len(resumed), store.Path())
		}
	}

	// Ctrl-C cancels the sweep; terminal records already produced are flushed
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Printf("\n%s  %s\n", logx.Channel("PROG"), logx.Warn("interrupt: stopping dispatch, flushing completed runs"))
		cancel()
	}()

	if *webMonitor {
		StartWebMonitor(FindAvailablePort(*webPort))
		SendStatus("starting", fmt.Sprintf("sweep %s: %d pending run(s)", sweepID, len(sets)))
	}

	tuiActive := false
	if *useTUI {
		tcfg := tui.TUIConfig{SweepID: sweepID, ConfigPath: *configPath, Objective: primary.Name, Workers: cfg.Workers, OnQuit: cancel}
		if err := tui.Start(ctx, tcfg); err != nil {
			fmt.Printf("%s  %s\n", logx.Channel("PROG"), logx.Warnf("%v", err))
		} else {
			tuiActive = true
		}
	}

	sched := NewScheduler(SchedulerConfig{
		Workers:            cfg.Workers,
		CheckpointInterval: cfg.CheckpointInterval,
		RunTimeout:         cfg.RunTimeout(),
		Objective:          primary,
		Verbose:            *verbose,
	}, evaluator, store)

	startTime := time.Now()
	sched.SetProgressHook(func(p Progress) {
		if tuiActive {
			tui.PushState(tui.SweepSnapshot{
				SweepID:    sweepID,
				ConfigPath: *configPath,
				Objective:  primary.Name,
				Workers:    cfg.Workers,
				StartTime:  startTime,
				Completed:  p.Completed,
				Failed:     p.Failed,
				TimedOut:   p.TimedOut,
				Total:      p.Total,
				RatePerSec: p.Rate,
				ETA:        p.ETA,
				BestValue:  p.BestValue,
				BestRunID:  p.BestRunID,
				HasBest:    p.HasBest,
			})
		}
		SendSweepProgress(sweepID, p)
	})

	records := sched.Run(ctx, space, resumed)
	if err := store.Close(); err != nil {
		fmt.Printf("%s  %s\n", logx.Channel("CKPT"), logx.Warnf("close checkpoint: %v", err))
	}
	if tuiActive {
		tui.Stop()
	}

	completed := 0
	for _, r := range records {
		if r.Status == StatusCompleted {
			completed++
		}
	}
	if completed == 0 {
		SendStatus("failed", "no completed runs")
		fmt.Printf("%s\n", logx.Errorf("sweep produced no completed runs (%d record(s), all failed or timed out)", len(records)))
		return exitExecution
	}

	postProcess(cfg, sweepID, space, records)
	SendStatus("done", fmt.Sprintf("sweep %s finished: %d completed", sweepID, completed))
	return exitOK
}

// applyOverrides folds CLI flags over the loaded config and re-validates
func applyOverrides(cfg *SweepConfig, objective, direction string, workers int, pareto, outputDir, checkpoint string, topK, selectN, timeoutSec int) error {
	if objective != "" {
		cfg.Objective = objective
	}
	if direction != "" {
		cfg.Direction = direction
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	if pareto != "" {
		cfg.Pareto = strings.Split(pareto, ",")
		for i := range cfg.Pareto {
			cfg.Pareto[i] = strings.TrimSpace(cfg.Pareto[i])
		}
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if checkpoint != "" {
		cfg.CheckpointPath = checkpoint
	}
	if topK > 0 {
		cfg.TopK = topK
	}
	if selectN > 0 {
		cfg.SelectCount = selectN
	}
	if timeoutSec > 0 {
		cfg.RunTimeoutSec = timeoutSec
	}
	return cfg.Validate()
}

// postProcess runs the analysis chain over the terminal records. Every step
// is best-effort: a step that cannot run (too few completed runs, missing
// metrics) is logged and skipped, the remaining artifacts still get written.
func postProcess(cfg *SweepConfig, sweepID string, space *Space, records []RunRecord) {
	primary := cfg.PrimaryObjective()
	varying := space.VaryingNames()
	out := func(name string) string { return filepath.Join(cfg.OutputDir, name) }

	logx.LogPostStep("ranking and summary")
	summary := Summarize(sweepID, records, primary, varying, cfg.MinSuccessRate)
	if summary.Degraded {
		logx.LogDegraded(summary.SuccessRate, cfg.MinSuccessRate)
		logx.LogDegradedEvent(summary.SuccessRate)
	}
	if err := WriteJSONFile(out("summary.json"), summary); err != nil {
		logx.LogPostStepError("summary", err)
	} else {
		logx.LogArtifact("summary", out("summary.json"))
	}
	SendSweepSummary(summary)

	top := TopK(records, primary, cfg.TopK)
	if err := WriteJSONFile(out("top_k.json"), top); err != nil {
		logx.LogPostStepError("top-k", err)
	} else {
		logx.LogArtifact("top-k", out("top_k.json"))
	}

	metricNames := collectMetricNames(records, []string{primary.Name})
	paramNames := allParamNames(records, varying)
	if err := WriteResultsCSV(out("results.csv"), records, paramNames, metricNames); err != nil {
		logx.LogPostStepError("results csv", err)
	} else {
		logx.LogArtifact("results", out("results.csv"))
	}
	if err := WriteResultsJSON(out("results.json"), sweepID, records); err != nil {
		logx.LogPostStepError("results json", err)
	} else {
		logx.LogArtifact("results", out("results.json"))
	}

	objectives := cfg.ParetoObjectives()
	if len(objectives) >= 2 {
		logx.LogPostStep("pareto frontier")
		frontier, err := ComputeFrontier(records, objectives)
		if err != nil {
			logx.LogPostStepError("pareto frontier", err)
		} else {
			artifact := BuildFrontierArtifact(frontier, objectives)
			if err := WriteJSONFile(out("pareto_frontier.json"), artifact); err != nil {
				logx.LogPostStepError("pareto frontier", err)
			} else {
				fmt.Printf("%s  frontier holds %d of %d completed run(s)\n",
					logx.Channel("RANK"), len(frontier), summary.Completed)
				logx.LogArtifact("pareto frontier", out("pareto_frontier.json"))
			}

			logx.LogPostStep("diverse selection")
			var completedRuns []RunRecord
			for _, r := range records {
				if r.Status == StatusCompleted {
					completedRuns = append(completedRuns, r)
				}
			}
			selections := SelectDiverse(frontier, objectives, cfg.SelectCount, completedRuns)
			if err := WriteJSONFile(out("selections.json"), selections); err != nil {
				logx.LogPostStepError("diverse selection", err)
			} else {
				logx.LogArtifact("selections", out("selections.json"))
			}
		}
	}

	logx.LogPostStep("sensitivity analysis")
	sensObjectives := objectives
	if len(sensObjectives) == 0 {
		sensObjectives = []ObjectiveSpec{primary}
	}
	report, err := AnalyzeSensitivity(records, varying, sensObjectives, primary, cfg.TopK, cfg.RankBy)
	if err != nil {
		logx.LogPostStepError("sensitivity analysis", err)
	} else {
		if err := WriteJSONFile(out("sensitivity.json"), report); err != nil {
			logx.LogPostStepError("sensitivity analysis", err)
		} else {
			logx.LogArtifact("sensitivity", out("sensitivity.json"))
		}
	}

	// Console recap: distribution stats then the top-K table
	fmt.Printf("%s  %s completed=%d failed=%d timed_out=%d | %s best=%.4f worst=%.4f mean=%.4f stddev=%.4f\n",
		logx.Channel("RANK"), logx.Checkmark(!summary.Degraded),
		summary.Completed, summary.Failed, summary.TimedOut,
		primary.Name, summary.Best, summary.Worst, summary.Mean, summary.StdDev)

	tw := logx.NewTableWriter(os.Stdout)
	fmt.Fprint(tw, FormatTopKTable(top, primary, varying))
	tw.Flush()
}
