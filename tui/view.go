package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Styles (defined at package init for reuse)
var (
	styleGreen = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleRed   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleGray  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleDim   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	stylePanel = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)

	styleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Padding(0, 1)

	styleEventInfo  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	styleEventWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	styleEventError = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// View renders the UI
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	body := lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderProgress(),
		m.renderStats(),
		m.renderEvents(),
		m.renderFooter(),
	)
	return body
}

func (m Model) renderHeader() string {
	runtime := time.Since(m.snapshot.StartTime)
	return styleHeader.Render(fmt.Sprintf(
		"sweep %s │ config=%s │ objective=%s │ workers=%d │ runtime=%s",
		shortID(m.snapshot.SweepID),
		m.snapshot.ConfigPath,
		m.snapshot.Objective,
		m.snapshot.Workers,
		FormatDuration(runtime),
	))
}

func (m Model) renderProgress() string {
	s := m.snapshot
	done := s.Completed + s.Failed + s.TimedOut
	ratio := 0.0
	if s.Total > 0 {
		ratio = float64(done) / float64(s.Total)
	}
	bar := m.progress.ViewAs(ratio)
	return stylePanel.Render(fmt.Sprintf(
		"%s  %d/%d │ rate=%.2f/s │ eta=%s",
		bar, done, s.Total, s.RatePerSec, FormatDuration(s.ETA),
	))
}

func (m Model) renderStats() string {
	s := m.snapshot
	failStr := styleDim.Render("0")
	if s.Failed+s.TimedOut > 0 {
		failStr = styleRed.Render(fmt.Sprintf("%d (+%d timeout)", s.Failed, s.TimedOut))
	}
	bestStr := styleDim.Render("n/a")
	if s.HasBest {
		bestStr = m.bestColor(s.BestValue)
		bestStr += styleDim.Render(fmt.Sprintf(" (run %d)", s.BestRunID))
	}
	return stylePanel.Render(fmt.Sprintf(
		"Stats: completed=%s │ failed=%s │ best %s=%s",
		styleGreen.Render(fmt.Sprintf("%d", s.Completed)),
		failStr,
		s.Objective,
		bestStr,
	))
}

func (m Model) renderEvents() string {
	if !m.ready || m.width == 0 {
		return stylePanel.Render("Events: initializing...")
	}
	return stylePanel.Render("Events (scroll):") + "\n" + m.viewport.View()
}

func (m Model) renderFooter() string {
	hints := []string{"q: stop sweep (checkpoint is flushed first)"}
	hintStrings := make([]string, len(hints))
	for i, h := range hints {
		hintStrings[i] = styleDim.Render(h)
	}
	return styleGray.Render("│ " + strings.Join(hintStrings, " │ ") + " │")
}

func (m Model) bestColor(best float64) string {
	// Compare with previous best to show movement
	if best > m.prevBest {
		return styleGreen.Render(fmt.Sprintf("%.4f ↑", best))
	}
	return styleDim.Render(fmt.Sprintf("%.4f =", best))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "--------"
	}
	return id
}

func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if minutes > 0 {
		return fmt.Sprintf("%dh%dm", hours, minutes)
	}
	return fmt.Sprintf("%dh", hours)
}
