package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// PhaseState is where a phase is in its lifecycle
type PhaseState int

const (
	PhasePending PhaseState = iota
	PhaseActive
	PhaseDone
	PhaseFailed
)

// Phase tracks one pipeline phase
type Phase struct {
	Name    string
	Total   int
	Done    int
	Skipped int
	Current string
	State   PhaseState
	Err     error
	Started time.Time
	Elapsed time.Duration
}

// Fraction is the share of Total already handled, capped at 1.
func (p *Phase) Fraction() float64 {
	if p.Total <= 0 {
		if p.State == PhaseDone {
			return 1
		}
		return 0
	}
	f := float64(p.Done+p.Skipped) / float64(p.Total)
	if f > 1 {
		f = 1
	}
	return f
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// Model is the dashboard state. It is only mutated from Update, so it
// needs no locking.
type Model struct {
	spinner spinner.Model
	bar     progress.Model

	phases []*Phase
	byName map[string]*Phase

	sessionStartTime time.Time
	finished         bool
	runErr           error

	width    int
	height   int
	showHelp bool

	logMessages    []LogMessage
	maxLogMessages int

	onQuit func()
}

// NewModel creates a dashboard for the named phases, shown in order.
// onQuit runs when the user quits and may be nil.
func NewModel(phaseNames []string, onQuit func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(accentCyan)

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40

	m := Model{
		spinner:          s,
		bar:              bar,
		byName:           make(map[string]*Phase, len(phaseNames)),
		sessionStartTime: time.Now(),
		maxLogMessages:   50,
		onQuit:           onQuit,
	}
	for _, name := range phaseNames {
		p := &Phase{Name: name}
		m.phases = append(m.phases, p)
		m.byName[name] = p
	}
	return m
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

// phase returns the named phase, adding it when unknown.
func (m *Model) phase(name string) *Phase {
	if p, ok := m.byName[name]; ok {
		return p
	}
	p := &Phase{Name: name}
	m.phases = append(m.phases, p)
	m.byName[name] = p
	return p
}

// StartPhase marks a phase active
func (m *Model) StartPhase(name string, total int) {
	p := m.phase(name)
	p.State = PhaseActive
	p.Total = total
	p.Started = time.Now()
	m.AddLogMessage("INFO", fmt.Sprintf("Phase %s started (%d)", name, total))
}

// FinishItem records one handled post
func (m *Model) FinishItem(name, postID string, err error) {
	p := m.phase(name)
	p.Current = postID
	if err != nil {
		p.Skipped++
		m.AddLogMessage("WARN", fmt.Sprintf("%s: skipped %s: %v", name, postID, err))
		return
	}
	p.Done++
}

// FinishPhase marks a phase done or failed
func (m *Model) FinishPhase(name string, err error) {
	p := m.phase(name)
	p.Current = ""
	if !p.Started.IsZero() {
		p.Elapsed = time.Since(p.Started)
	}
	if err != nil {
		p.State = PhaseFailed
		p.Err = err
		m.AddLogMessage("ERROR", fmt.Sprintf("Phase %s failed: %v", name, err))
		return
	}
	p.State = PhaseDone
	m.AddLogMessage("SUCCESS", fmt.Sprintf("Phase %s complete: %d done, %d skipped", name, p.Done, p.Skipped))
}

// AddLogMessage adds a log message
func (m *Model) AddLogMessage(level, message string) {
	color := dimWhite
	switch level {
	case "ERROR":
		color = alertRed
	case "WARN":
		color = accentOrange
	case "SUCCESS":
		color = accentGreen
	case "INFO":
		color = accentCyan
	}

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   color,
	})

	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// Phases returns the tracked phases in display order
func (m *Model) Phases() []*Phase {
	return m.phases
}

// Totals sums handled and skipped items across phases
func (m *Model) Totals() (done, skipped int) {
	for _, p := range m.phases {
		done += p.Done
		skipped += p.Skipped
	}
	return done, skipped
}
