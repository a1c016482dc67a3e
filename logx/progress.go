package logx

import (
	"fmt"
	"time"
)

// LogSweepProgress - single line scheduler progress log.
// done counts all terminal runs this process produced; total is the pending
// queue size at sweep start (resumed runs excluded from both).
func LogSweepProgress(completed, failed, timedOut, total int64, rate float64, eta time.Duration, best float64, hasBest bool) {
	done := completed + failed + timedOut
	pct := 0.0
	if total > 0 {
		pct = 100.0 * float64(done) / float64(total)
	}
	bestStr := Dim("n/a")
	if hasBest {
		bestStr = Successf("%.4f", best)
	}
	fmt.Printf("%s  %s/%s (%.1f%%) | ok=%s fail=%s timeout=%s | rate=%.2f/s | eta=%s | best=%s\n",
		Channel("PROG"),
		FormatNumber(int(done)), FormatNumber(int(total)), pct,
		FormatNumber(int(completed)), FormatNumber(int(failed)), FormatNumber(int(timedOut)),
		rate, FormatDuration(eta), bestStr,
	)
}

// LogRunOutcome - per-run line, verbose mode only
func LogRunOutcome(runID int64, status string, objective string, value float64, hasValue bool, elapsed time.Duration, errMsg string) {
	if hasValue {
		fmt.Printf("%s  run %d %s in %s | %s=%.4f\n",
			Channel("EVAL"), runID, StatusColor(status), FormatDuration(elapsed), objective, value)
		return
	}
	if errMsg != "" {
		fmt.Printf("%s  run %d %s in %s | %s\n",
			Channel("EVAL"), runID, StatusColor(status), FormatDuration(elapsed), Dim(errMsg))
		return
	}
	fmt.Printf("%s  run %d %s in %s\n",
		Channel("EVAL"), runID, StatusColor(status), FormatDuration(elapsed))
}

// LogCheckpointSaved - checkpoint flush message
func LogCheckpointSaved(n int, path string, elapsed time.Duration) {
	fmt.Printf("%s  flushed %d record(s) to %s (runtime %s)\n",
		Channel("CKPT"), n, path, FormatDuration(elapsed))
}

// LogCheckpointLoaded - resume message
func LogCheckpointLoaded(n int, path string) {
	fmt.Printf("%s  loaded %d completed record(s) from %s\n",
		Channel("CKPT"), n, path)
}

// LogResumeSkip - how much of the space the checkpoint already covers
func LogResumeSkip(skipped, total int) {
	fmt.Printf("%s  resume: skipping %s of %s parameter set(s) already evaluated\n",
		Channel("CKPT"), FormatNumber(skipped), FormatNumber(total))
}

// LogPostStep - start of a post-processing step on the RANK channel
func LogPostStep(step string) {
	fmt.Printf("%s  %s\n", Channel("RANK"), step)
}

// LogPostStepError - a post-processing step failed; the others still run
func LogPostStepError(step string, err error) {
	fmt.Printf("%s  %s\n", Channel("RANK"), Warnf("%s skipped: %v", step, err))
}

// LogArtifact - an output artifact was written
func LogArtifact(kind, path string) {
	fmt.Printf("%s  %s -> %s\n", Channel("RANK"), kind, Highlight(path))
}

// LogDegraded - success rate fell below the configured threshold
func LogDegraded(successRate, threshold float64) {
	fmt.Printf("%s  %s\n", Channel("PROG"),
		Warnf("success rate %.1f%% below threshold %.1f%% - results degraded but usable",
			successRate*100, threshold*100))
}
