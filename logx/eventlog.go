package logx

import (
	"fmt"
	"time"

	"hb_sweep_engine/tui"
)

// Convenience functions that forward to the TUI event viewport

func LogNewBest(runID int64, objective string, value float64) {
	tui.PushEvent(tui.Event{
		Timestamp: time.Now(),
		Type:      "BEST",
		Severity:  "info",
		Message:   fmt.Sprintf("run %d new best %s=%.4f", runID, objective, value),
	})
}

func LogRunFailure(runID int64, status, errMsg string) {
	severity := "warning"
	if status == "failed" {
		severity = "error"
	}
	tui.PushEvent(tui.Event{
		Timestamp: time.Now(),
		Type:      "RUN",
		Severity:  severity,
		Message:   fmt.Sprintf("run %d %s: %s", runID, status, errMsg),
	})
}

func LogCheckpointFlush(n int) {
	tui.PushEvent(tui.Event{
		Timestamp: time.Now(),
		Type:      "CKPT",
		Severity:  "info",
		Message:   fmt.Sprintf("checkpoint flushed (%d record(s))", n),
	})
}

func LogDegradedEvent(successRate float64) {
	tui.PushEvent(tui.Event{
		Timestamp: time.Now(),
		Type:      "DEGRADED",
		Severity:  "warning",
		Message:   fmt.Sprintf("success rate %.1f%% below threshold", successRate*100),
	})
}
