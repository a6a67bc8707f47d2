package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// TUI runs the dashboard and receives pipeline progress events.
type TUI struct {
	program *tea.Program
	model   *Model
}

// NewTUI creates a dashboard for the given phases. onQuit is called when
// the user asks to stop; it should cancel the run.
func NewTUI(phases []string, onQuit func(), opts ...tea.ProgramOption) *TUI {
	model := NewModel(phases, onQuit)
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)

	return &TUI{
		program: tea.NewProgram(&model, opts...),
		model:   &model,
	}
}

// Start runs the dashboard until Finish is called or the user leaves.
func (t *TUI) Start() error {
	_, err := t.program.Run()
	return err
}

// Finish reports the run outcome and closes the dashboard.
func (t *TUI) Finish(err error) {
	t.program.Send(RunDoneMsg{Err: err})
}

// PhaseStarted implements the pipeline observer
func (t *TUI) PhaseStarted(phase string, total int) {
	t.program.Send(PhaseStartMsg{Phase: phase, Total: total})
}

// ItemFinished implements the pipeline observer
func (t *TUI) ItemFinished(phase, postID string, err error) {
	t.program.Send(ItemMsg{Phase: phase, PostID: postID, Err: err})
}

// PhaseFinished implements the pipeline observer
func (t *TUI) PhaseFinished(phase string, err error) {
	t.program.Send(PhaseDoneMsg{Phase: phase, Err: err})
}

// LogInfo adds a line to the dashboard's log panel.
func (t *TUI) LogInfo(format string, args ...interface{}) {
	t.program.Send(logf("INFO", format, args...))
}

// LogError adds a red line to the log panel. The run keeps going.
func (t *TUI) LogError(format string, args ...interface{}) {
	t.program.Send(logf("ERROR", format, args...))
}

func logf(level, format string, args ...interface{}) LogMsg {
	return LogMsg{Level: level, Message: fmt.Sprintf(format, args...)}
}
