package ui

import (
	"fmt"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
)

const logo = `
    ╔══════════════════════════════════════════╗
    ║   ██╗ ██████╗ ████████╗ █████╗  ██████╗  ║
    ║   ██║██╔════╝ ╚══██╔══╝██╔══██╗██╔════╝  ║
    ║   ██║██║  ███╗   ██║   ███████║██║  ███╗ ║
    ║   ██║██║   ██║   ██║   ██╔══██║██║   ██║ ║
    ║   ██║╚██████╔╝   ██║   ██║  ██║╚██████╔╝ ║
    ║   ╚═╝ ╚═════╝    ╚═╝   ╚═╝  ╚═╝ ╚═════╝  ║
    ║        TAGGED POST INGESTION             ║
    ╚══════════════════════════════════════════╝
`

// Text colors for plain terminal output. Styles degrade to plain text when
// stdout is not a terminal.
var (
	Cyan    = paint("6")
	Yellow  = paint("3")
	Red     = paint("1")
	Green   = paint("2")
	Magenta = paint("5")
)

func paint(ansi string) func(string) string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(ansi))
	return func(s string) string { return style.Render(s) }
}

var quiet atomic.Bool

// SetQuietMode suppresses the logo and informational output.
func SetQuietMode(q bool) { quiet.Store(q) }

func IsQuietMode() bool { return quiet.Load() }

func PrintLogo() {
	if !IsQuietMode() {
		fmt.Print(Cyan(logo))
	}
}

// PrintError prints msg in red, followed by the first arg if given.
func PrintError(msg string, args ...interface{}) {
	fmt.Println(Red(withDetail(msg, args)))
}

func PrintWarning(msg string, args ...interface{}) {
	fmt.Println(Yellow(withDetail(msg, args)))
}

func PrintSuccess(msg string) {
	fmt.Println(Green(msg))
}

// PrintInfo prints a label: value pair. Quiet mode hides it.
func PrintInfo(label, value string) {
	if !IsQuietMode() {
		fmt.Printf("%s: %s\n", Cyan(label), Yellow(value))
	}
}

// PrintHighlight prints a section heading. Quiet mode hides it.
func PrintHighlight(msg string) {
	if !IsQuietMode() {
		fmt.Println(Magenta(msg))
	}
}

func withDetail(msg string, args []interface{}) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, args[0])
}
