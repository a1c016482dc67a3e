package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// SweepSnapshot represents the complete sweep state at a point in time
type SweepSnapshot struct {
	SweepID    string
	ConfigPath string
	Objective  string
	Workers    int
	StartTime  time.Time

	Completed int64
	Failed    int64
	TimedOut  int64
	Total     int64

	RatePerSec float64
	ETA        time.Duration

	BestValue float64
	BestRunID int64
	HasBest   bool
}

// Event represents a significant event shown in the scrolling viewport
type Event struct {
	Timestamp time.Time
	Type      string // "BEST", "RUN", "CKPT", "DEGRADED"
	Severity  string // "info", "warning", "error"
	Message   string
}

type (
	MsgSweepSnapshot SweepSnapshot
	MsgEvent         Event
	MsgShutdown      struct{}
	MsgTick          time.Time
)

type Model struct {
	snapshot SweepSnapshot
	events   []Event // Ring buffer, max 1000

	width  int
	height int
	ready  bool

	progress progress.Model // NOT a pointer
	viewport viewport.Model // NOT a pointer

	// Track previous best to show ↑
	prevBest float64
}

func NewModel() Model {
	return Model{
		snapshot: SweepSnapshot{StartTime: time.Now()},
		events:   make([]Event, 0, 1000),
		progress: progress.New(progress.WithWidth(40)),
		viewport: viewport.New(0, 10),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return MsgTick(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		var cmd tea.Cmd
		m2, keyCmd := m.handleKey(msg)
		m = m2.(Model)

		// Then pass to viewport for scrolling
		m.viewport, cmd = m.viewport.Update(msg)
		return m, tea.Batch(cmd, keyCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.viewport.Width = m.width - 4
		m.viewport.Height = 10
		return m, nil

	case MsgSweepSnapshot:
		// Explicit cast needed (MsgSweepSnapshot is a distinct type)
		s := SweepSnapshot(msg)
		m.prevBest = m.snapshot.BestValue
		m.snapshot = s
		return m, nil

	case MsgEvent:
		e := Event(msg)
		m.addEvent(e)
		// Update viewport content and auto-scroll to bottom
		m.updateViewportContent()
		m.viewport.GotoBottom()
		return m, nil

	case MsgTick:
		return m, tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
			return MsgTick(t)
		})

	case MsgShutdown:
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) addEvent(e Event) {
	m.events = append(m.events, e)
	if len(m.events) > 1000 {
		m.events = m.events[1:]
	}
}

// updateViewportContent rebuilds events content for the viewport.
// Call this only when events change (on MsgEvent), not every render.
func (m *Model) updateViewportContent() {
	var eventStrings []string
	for _, e := range m.events {
		style := styleEventInfo
		if e.Severity == "warning" {
			style = styleEventWarn
		} else if e.Severity == "error" {
			style = styleEventError
		}

		icon := "•"
		if e.Type == "BEST" {
			icon = "↗"
		} else if e.Severity == "warning" {
			icon = "⚠"
		} else if e.Severity == "error" {
			icon = "✗"
		}

		eventStrings = append(eventStrings, style.Render(
			fmt.Sprintf("[%s] %s %s", e.Timestamp.Format("15:04:05"), icon, e.Message),
		))
	}
	m.viewport.SetContent(strings.Join(eventStrings, "\n"))
}
