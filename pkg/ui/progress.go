package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	ProgressBar   = "━"
	ProgressEmpty = "─"
	barWidth      = 20
)

// ProgressPrinter draws a single updating status line per phase. It
// satisfies the pipeline observer interface.
type ProgressPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool

	phase     string
	total     int
	done      int
	skipped   int
	current   string
	startTime time.Time
}

// NewProgressPrinter writes to stdout. In verbose mode every skipped post
// is printed on its own line.
func NewProgressPrinter(verbose bool) *ProgressPrinter {
	return &ProgressPrinter{out: os.Stdout, verbose: verbose}
}

// SetOutput redirects the printer.
func (p *ProgressPrinter) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = w
}

// PhaseStarted resets the counters for a new phase
func (p *ProgressPrinter) PhaseStarted(phase string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.phase = phase
	p.total = total
	p.done = 0
	p.skipped = 0
	p.current = ""
	p.startTime = time.Now()

	fmt.Fprintf(p.out, "%s %s\n", Cyan("►"), Cyan("Phase "+phase))
}

// ItemFinished counts one post
func (p *ProgressPrinter) ItemFinished(phase, postID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = postID
	if err != nil {
		p.skipped++
		if p.verbose {
			fmt.Fprintf(p.out, "\n%s Skipped %s: %v\n", Red("✗"), postID, err)
		}
	} else {
		p.done++
	}
	p.printLine()
}

// PhaseFinished ends the status line with a summary
func (p *ProgressPrinter) PhaseFinished(phase string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = ""
	p.printLine()
	fmt.Fprintln(p.out)

	elapsed := time.Since(p.startTime).Round(time.Second)
	if err != nil {
		fmt.Fprintf(p.out, "%s %s failed after %s: %v\n", Red("✗"), phase, elapsed, err)
		return
	}
	fmt.Fprintf(p.out, "%s %s: %d done, %d skipped in %s\n", Green("✓"), phase, p.done, p.skipped, elapsed)
}

// printLine redraws the status line in place
func (p *ProgressPrinter) printLine() {
	handled := p.done + p.skipped
	elapsed := time.Since(p.startTime)

	rate := 0.0
	if elapsed > 0 {
		rate = float64(handled) / elapsed.Minutes()
	}

	line := fmt.Sprintf("%s [%s] %d/%d • %.1f/min",
		Cyan(p.phase),
		renderBar(handled, p.total),
		handled,
		p.total,
		rate,
	)
	if p.current != "" {
		line += " • " + p.current
	}
	if p.skipped > 0 {
		line += " • " + Yellow(fmt.Sprintf("%d skipped", p.skipped))
	}

	fmt.Fprintf(p.out, "\r%s\r%s", strings.Repeat(" ", 100), line)
}

// renderBar draws a fixed-width bar for n of total. An unknown total
// draws an empty bar.
func renderBar(n, total int) string {
	filled := 0
	if total > 0 {
		filled = n * barWidth / total
	}
	if filled > barWidth {
		filled = barWidth
	}
	return strings.Repeat(ProgressBar, filled) + strings.Repeat(ProgressEmpty, barWidth-filled)
}
