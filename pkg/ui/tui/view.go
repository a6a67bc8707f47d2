package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
)

const header = `
 ╦╔═╗╔╦╗╔═╗╔═╗╔═╗
 ║║ ╦ ║ ╠═╣║ ╦╚═╗
 ╩╚═╝ ╩ ╩ ╩╚═╝╚═╝
 tagged post ingestion`

// View renders the dashboard
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	sections := []string{
		headerStyle.Width(m.width).Render(header),
		m.renderPhasesPanel(m.width - 4),
		m.renderStatsPanel(m.width - 4),
		m.renderLogsPanel(m.width - 4),
	}

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help"))
	}

	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

// renderPhasesPanel draws one line and bar per phase
func (m *Model) renderPhasesPanel(width int) string {
	title := titleStyle.Render(" PHASES ")

	barWidth := width - 30
	if barWidth < 10 {
		barWidth = 10
	}
	m.bar.Width = barWidth

	var rows []string
	for _, p := range m.phases {
		rows = append(rows, m.renderPhase(p))
		if p.State != PhasePending {
			rows = append(rows, "  "+m.bar.ViewAs(p.Fraction()))
		}
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, append([]string{title}, rows...)...),
	)
}

func (m *Model) renderPhase(p *Phase) string {
	var icon string
	switch p.State {
	case PhaseActive:
		icon = m.spinner.View()
	case PhaseDone:
		icon = "✓"
	case PhaseFailed:
		icon = "✗"
	default:
		icon = "·"
	}

	line := fmt.Sprintf("%s %-9s", icon, p.Name)
	switch p.State {
	case PhasePending:
		return phaseStyle(p.State).Render(line + " waiting")
	case PhaseActive:
		line += fmt.Sprintf(" %d/%d", p.Done+p.Skipped, p.Total)
		if p.Current != "" {
			line += " • " + p.Current
		}
	default:
		line += fmt.Sprintf(" %d done • %s", p.Done, formatDuration(p.Elapsed))
	}
	if p.Skipped > 0 {
		line += " • " + warningStyle.Render(fmt.Sprintf("%d skipped", p.Skipped))
	}
	if p.Err != nil {
		line += " • " + errorStyle.Render(p.Err.Error())
	}
	return phaseStyle(p.State).Render(line)
}

// renderStatsPanel renders session totals
func (m *Model) renderStatsPanel(width int) string {
	title := titleStyle.Render(" SESSION ")

	done, skipped := m.Totals()
	stats := []string{
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Elapsed:"), statsValueStyle.Render(formatDuration(time.Since(m.sessionStartTime)))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Handled:"), statsValueStyle.Render(fmt.Sprintf("%d posts", done))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Skipped:"), statsValueStyle.Render(fmt.Sprintf("%d posts", skipped))),
	}

	if m.finished {
		if m.runErr != nil {
			stats = append(stats, errorStyle.Render("Run failed: "+m.runErr.Error()))
		} else {
			stats = append(stats, successStyle.Render("Run complete"))
		}
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(stats, "\n")),
	)
}

// renderLogsPanel renders the most recent log lines
func (m *Model) renderLogsPanel(width int) string {
	title := titleStyle.Render(" LOG ")

	start := len(m.logMessages) - 8
	if start < 0 {
		start = 0
	}

	maxMsgLen := width - 25
	var logs []string
	for _, log := range m.logMessages[start:] {
		timestamp := logTimestampStyle.Render(log.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(log.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", log.Level))

		msg := log.Message
		if maxMsgLen > 3 && len(msg) > maxMsgLen {
			msg = msg[:maxMsgLen-3] + "..."
		}

		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, level, logMessageStyle.Render(msg)))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = pendingStyle.Render("No logs yet...")
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

func (m *Model) renderHelp() string {
	var b strings.Builder
	b.WriteString("\n  Keys:\n")
	for _, k := range []key.Binding{keys.Quit, keys.ClearLog, keys.Help} {
		h := k.Help()
		fmt.Fprintf(&b, "    %-8s - %s\n", h.Key, h.Desc)
	}

	b.WriteString("\n  Phases:\n")
	for _, row := range [][2]string{
		{pendingStyle.Render("·"), "Waiting"},
		{warningStyle.Render("●"), "Running"},
		{successStyle.Render("✓"), "Complete"},
		{errorStyle.Render("✗"), "Failed, collected posts were flushed"},
	} {
		fmt.Fprintf(&b, "    %s        - %s\n", row[0], row[1])
	}
	return panelStyle.Width(m.width).Render(b.String())
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
