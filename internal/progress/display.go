// Package progress renders plain-terminal run progress. It consumes the
// orchestrator's lifecycle hooks plus raw worker output; the richer live
// view lives in internal/tui.
package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/debussylabs/debussy/internal/events"
	"github.com/debussylabs/debussy/internal/stream"
)

// Compile-time interface check.
var _ events.Hook = (*Display)(nil)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

// Display shows run progress to the user.
type Display struct {
	events.BaseHook

	out        io.Writer
	quiet      bool
	color      bool
	width      int
	phaseStart time.Time
	runStart   time.Time
	mu         sync.Mutex
}

// Option configures the Display.
type Option func(*Display)

// WithQuiet suppresses everything except failures.
func WithQuiet(quiet bool) Option {
	return func(d *Display) { d.quiet = quiet }
}

// WithColor forces color on or off (default: TTY detection).
func WithColor(color bool) Option {
	return func(d *Display) { d.color = color }
}

// New creates a display writing to out. Color and width come from the
// terminal when out is one.
func New(out io.Writer, opts ...Option) *Display {
	d := &Display{
		out:   out,
		width: 80,
	}

	if f, ok := out.(*os.File); ok {
		d.color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			d.width = w
		}
	}

	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Display) render(style lipgloss.Style, s string) string {
	if !d.color {
		return s
	}
	return style.Render(s)
}

func (d *Display) printf(format string, args ...any) {
	fmt.Fprintf(d.out, format, args...)
}

// PlanStart announces the run.
func (d *Display) PlanStart(_ context.Context, info events.PlanInfo) error {
	d.mu.Lock()
	d.runStart = time.Now()
	d.mu.Unlock()

	if d.quiet {
		return nil
	}
	d.printf("%s\n", d.render(headerStyle,
		fmt.Sprintf("Debussy: %s (%d phases, run %s)", info.Name, info.TotalPhases, info.RunID)))
	return nil
}

// PhaseStart announces a phase attempt.
func (d *Display) PhaseStart(_ context.Context, _ events.PlanInfo, phase events.PhaseInfo) error {
	d.mu.Lock()
	d.phaseStart = time.Now()
	d.mu.Unlock()

	if d.quiet {
		return nil
	}

	label := fmt.Sprintf("[%d/%d] Phase %s: %s", phase.Index, phase.Total, phase.ID, phase.Title)
	if phase.Attempt > 1 {
		label += fmt.Sprintf(" (attempt %d)", phase.Attempt)
	}
	d.printf("\n%s\n", d.render(headerStyle, label))
	return nil
}

// PhaseComplete announces phase success with elapsed time.
func (d *Display) PhaseComplete(_ context.Context, _ events.PlanInfo, phase events.PhaseInfo) error {
	if d.quiet {
		return nil
	}

	d.mu.Lock()
	elapsed := time.Since(d.phaseStart)
	d.mu.Unlock()

	d.printf("%s\n", d.render(okStyle,
		fmt.Sprintf("Phase %s complete (%s)", phase.ID, formatDuration(elapsed))))
	return nil
}

// PhaseFailed is always shown, quiet mode included.
func (d *Display) PhaseFailed(_ context.Context, _ events.PlanInfo, phase events.PhaseInfo, failure string) error {
	msg := fmt.Sprintf("Phase %s failed after %d attempt(s)", phase.ID, phase.Attempt)
	if failure != "" {
		msg += ": " + failure
	}
	d.printf("%s\n", d.render(failStyle, msg))
	return nil
}

// PlanComplete announces the finished run.
func (d *Display) PlanComplete(_ context.Context, info events.PlanInfo, success bool) error {
	if d.quiet && success {
		return nil
	}

	d.mu.Lock()
	elapsed := time.Since(d.runStart)
	d.mu.Unlock()

	if !success {
		d.printf("\n%s\n", d.render(failStyle,
			fmt.Sprintf("Run stopped after %s", formatDuration(elapsed))))
		return nil
	}
	d.printf("\n%s\n", d.render(okStyle,
		fmt.Sprintf("All %d phases complete (%s)", info.TotalPhases, formatDuration(elapsed))))
	return nil
}

// MilestoneProgress shows the done/total counter.
func (d *Display) MilestoneProgress(_ context.Context, _ events.PlanInfo, m events.Milestone) error {
	if d.quiet {
		return nil
	}
	d.printf("%s\n", d.render(dimStyle, fmt.Sprintf("progress: %d/%d phases", m.Done, m.Total)))
	return nil
}

// Output forwards a worker display line, truncated to the terminal width.
func (d *Display) Output(line string) {
	if d.quiet {
		return
	}
	if d.width > 4 && len(line) > d.width {
		line = line[:d.width-4] + "..."
	}
	d.printf("%s\n", line)
}

// Tokens shows a one-line token snapshot.
func (d *Display) Tokens(stats stream.TokenStats) {
	if d.quiet {
		return
	}

	var pct string
	if stats.ContextWindow > 0 {
		pct = fmt.Sprintf(" (%d%% of context)", stats.ContextTokens()*100/stats.ContextWindow)
	}
	d.printf("%s\n", d.render(dimStyle,
		fmt.Sprintf("tokens: in=%d out=%d%s cost=$%.4f", stats.InputTokens, stats.OutputTokens, pct, stats.CostUSD)))
}

// Warning prints a warning.
func (d *Display) Warning(msg string) {
	if d.quiet {
		return
	}
	d.printf("%s\n", d.render(warnStyle, "warning: "+msg))
}

// Error prints an error. Always shown.
func (d *Display) Error(msg string) {
	d.printf("%s\n", d.render(failStyle, "error: "+msg))
}

// Interrupted tells the user how to pick the run back up. Always shown.
func (d *Display) Interrupted() {
	d.printf("\n%s\n", "Run paused. Resume with: debussy resume")
}

// Separator prints a dim horizontal rule.
func (d *Display) Separator() {
	if d.quiet {
		return
	}
	n := d.width
	if n > 60 {
		n = 60
	}
	d.printf("%s\n", d.render(dimStyle, strings.Repeat("-", n)))
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)

	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
