package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Messages sent by TUI as the pipeline reports progress.
type (
	PhaseStartMsg struct {
		Phase string
		Total int
	}
	ItemMsg struct {
		Phase  string
		PostID string
		Err    error
	}
	PhaseDoneMsg struct {
		Phase string
		Err   error
	}
	RunDoneMsg struct{ Err error }
	LogMsg     struct{ Level, Message string }

	// TickMsg refreshes elapsed times while the run is live.
	TickMsg time.Time
)

var keys = struct {
	Quit, Help, ClearLog key.Binding
}{
	Quit:     key.NewBinding(key.WithKeys("q", "Q", "ctrl+c"), key.WithHelp("q", "Stop the run (press again to leave)")),
	Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "Toggle this help")),
	ClearLog: key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "Clear the log")),
}

const tickEvery = 500 * time.Millisecond

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.onKey(msg)
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case TickMsg:
		if !m.finished {
			return m, tick()
		}
	case PhaseStartMsg:
		m.StartPhase(msg.Phase, msg.Total)
	case ItemMsg:
		m.FinishItem(msg.Phase, msg.PostID, msg.Err)
	case PhaseDoneMsg:
		m.FinishPhase(msg.Phase, msg.Err)
	case LogMsg:
		m.AddLogMessage(msg.Level, msg.Message)
	case RunDoneMsg:
		m.finished, m.runErr = true, msg.Err
		return m, tea.Quit
	}
	return m, nil
}

// onKey handles a key press. The first quit during a live run cancels it
// and keeps the UI up until the pipeline returns; a second one exits.
func (m *Model) onKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, keys.Quit):
		if m.finished || m.onQuit == nil {
			return tea.Quit
		}
		m.AddLogMessage("WARN", "Stopping run, flushing collected posts")
		m.onQuit()
		m.onQuit = nil
	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
	case key.Matches(msg, keys.ClearLog):
		m.logMessages = nil
	}
	return nil
}

func tick() tea.Cmd {
	return tea.Tick(tickEvery, func(t time.Time) tea.Msg { return TickMsg(t) })
}
