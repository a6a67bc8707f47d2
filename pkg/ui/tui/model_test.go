package tui

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func TestModelTracksPhases(t *testing.T) {
	model := NewModel([]string{"discover", "images", "comments"}, nil)

	model.Update(PhaseStartMsg{Phase: "images", Total: 4})
	model.Update(ItemMsg{Phase: "images", PostID: "a"})
	model.Update(ItemMsg{Phase: "images", PostID: "b", Err: errors.New("gone")})

	images := model.byName["images"]
	if images.State != PhaseActive {
		t.Errorf("Expected images to be active, got %v", images.State)
	}
	if images.Done != 1 || images.Skipped != 1 {
		t.Errorf("Expected 1 done and 1 skipped, got %d/%d", images.Done, images.Skipped)
	}
	if images.Fraction() != 0.5 {
		t.Errorf("Expected fraction 0.5, got %f", images.Fraction())
	}

	model.Update(PhaseDoneMsg{Phase: "images"})
	if images.State != PhaseDone {
		t.Errorf("Expected images to be done, got %v", images.State)
	}

	if model.byName["discover"].State != PhasePending {
		t.Error("Discover should still be pending")
	}

	done, skipped := model.Totals()
	if done != 1 || skipped != 1 {
		t.Errorf("Unexpected totals %d/%d", done, skipped)
	}
}

func TestModelFailedPhase(t *testing.T) {
	model := NewModel([]string{"images"}, nil)

	model.Update(PhaseStartMsg{Phase: "images", Total: 2})
	model.Update(PhaseDoneMsg{Phase: "images", Err: errors.New("driver disconnected")})

	if model.byName["images"].State != PhaseFailed {
		t.Error("Expected images to be failed")
	}
	last := model.logMessages[len(model.logMessages)-1]
	if last.Level != "ERROR" || !strings.Contains(last.Message, "driver disconnected") {
		t.Errorf("Unexpected last log: %+v", last)
	}
}

func TestModelUnknownPhaseIsAdded(t *testing.T) {
	model := NewModel(nil, nil)
	model.Update(PhaseStartMsg{Phase: "extra", Total: 1})

	if len(model.Phases()) != 1 || model.Phases()[0].Name != "extra" {
		t.Errorf("Expected extra phase to be tracked, got %+v", model.Phases())
	}
}

func TestQuitCancelsRunFirst(t *testing.T) {
	cancelled := 0
	model := NewModel([]string{"images"}, func() { cancelled++ })

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cancelled != 1 {
		t.Errorf("Expected onQuit to run once, got %d", cancelled)
	}
	if cmd != nil {
		t.Error("First quit should wait for the run to stop")
	}

	_, cmd = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Error("Second quit should leave the dashboard")
	}
	if cancelled != 1 {
		t.Error("onQuit must not run twice")
	}
}

func TestRunDoneQuits(t *testing.T) {
	model := NewModel([]string{"discover"}, nil)

	_, cmd := model.Update(RunDoneMsg{})
	if cmd == nil {
		t.Fatal("Expected a quit command")
	}
	if !model.finished {
		t.Error("Model should be marked finished")
	}
}

func TestLogMessagesAreBounded(t *testing.T) {
	model := NewModel(nil, nil)
	for i := 0; i < model.maxLogMessages+10; i++ {
		model.AddLogMessage("INFO", "message")
	}
	if len(model.logMessages) != model.maxLogMessages {
		t.Errorf("Expected %d log messages, got %d", model.maxLogMessages, len(model.logMessages))
	}
}

func TestView(t *testing.T) {
	model := NewModel([]string{"discover", "images"}, nil)

	if model.View() != "Initializing..." {
		t.Error("View should wait for a window size")
	}

	model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	model.Update(PhaseStartMsg{Phase: "discover", Total: 10})
	model.Update(ItemMsg{Phase: "discover", PostID: "CxYz123"})

	view := model.View()
	for _, want := range []string{"PHASES", "discover", "images", "waiting", "CxYz123"} {
		if !strings.Contains(view, want) {
			t.Errorf("View should contain %q", want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	if got := formatDuration(-1); got != "00:00" {
		t.Errorf("Expected 00:00, got %s", got)
	}
	if got := formatDuration(3723e9); got != "01:02:03" {
		t.Errorf("Expected 01:02:03, got %s", got)
	}
}

func TestTUILogLinesReachModel(t *testing.T) {
	terminal := NewTUI([]string{"discover"}, nil,
		tea.WithInput(bytes.NewReader(nil)),
		tea.WithOutput(io.Discard),
		tea.WithoutSignalHandler(),
	)

	done := make(chan error, 1)
	go func() { done <- terminal.Start() }()

	terminal.LogInfo("Collecting %d companies", 2)
	terminal.LogError("Run failed: %v", errors.New("browser gone"))
	terminal.Finish(nil)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Dashboard did not exit after Finish")
	}

	var got []string
	for _, m := range terminal.model.logMessages {
		got = append(got, m.Level+" "+m.Message)
	}
	joined := strings.Join(got, "\n")
	for _, want := range []string{"INFO Collecting 2 companies", "ERROR Run failed: browser gone"} {
		if !strings.Contains(joined, want) {
			t.Errorf("Expected %q in log panel, got %q", want, joined)
		}
	}
}
