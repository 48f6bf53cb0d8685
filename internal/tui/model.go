// Package tui renders a live run dashboard. It is a pure consumer of the
// event stream; quitting the dashboard pauses the run via the supplied
// callback, it never kills the orchestrator directly.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/debussylabs/debussy/internal/events"
)

// maxOutputLines bounds the scrollback kept in the dashboard.
const maxOutputLines = 12

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	doneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	activeStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
	helpStyle   = lipgloss.NewStyle().Faint(true).Italic(true)
)

type phaseState int

const (
	phasePending phaseState = iota
	phaseRunning
	phaseDone
	phaseFailed
)

type phaseRow struct {
	id      string
	title   string
	attempt int
	state   phaseState
}

// eventMsg wraps a published event for the bubbletea loop.
type eventMsg events.Event

// streamClosed signals the publisher shut down.
type streamClosed struct{}

// Model is the dashboard bubbletea model.
type Model struct {
	info    events.PlanInfo
	phases  []phaseRow
	output  []string
	done    int
	total   int
	ch      <-chan events.Event
	onQuit  func()
	spin    spinner.Model
	bar     progress.Model
	width   int
	paused  bool
	started bool
}

// NewModel creates a dashboard reading from ch. onQuit runs once when the
// user quits; pass the orchestrator's pause trigger.
func NewModel(ch <-chan events.Event, onQuit func()) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ch:     ch,
		onQuit: onQuit,
		spin:   sp,
		bar:    progress.New(progress.WithDefaultGradient()),
		width:  80,
	}
}

// Run starts the dashboard and blocks until it exits.
func Run(ch <-chan events.Event, onQuit func()) error {
	p := tea.NewProgram(NewModel(ch, onQuit))
	_, err := p.Run()
	return err
}

func waitForEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return streamClosed{}
		}
		return eventMsg(e)
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, waitForEvent(m.ch))
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.paused {
				m.paused = true
				if m.onQuit != nil {
					m.onQuit()
				}
			}
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = msg.Width - 8
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case streamClosed:
		return m, tea.Quit

	case eventMsg:
		m = m.apply(events.Event(msg))
		return m, waitForEvent(m.ch)
	}

	return m, nil
}

// apply folds one published event into the dashboard state.
func (m Model) apply(e events.Event) Model {
	switch e.Type {
	case events.TypePlanStart:
		if info, ok := e.Data.(events.PlanInfo); ok {
			m.info = info
			m.total = info.TotalPhases
			m.started = true
		}

	case events.TypePhaseStart:
		if phase, ok := e.Data.(events.PhaseInfo); ok {
			m = m.upsertPhase(phase, phaseRunning)
		}

	case events.TypePhaseComplete:
		if phase, ok := e.Data.(events.PhaseInfo); ok {
			m = m.upsertPhase(phase, phaseDone)
		}

	case events.TypePhaseFailed:
		if phase, ok := e.Data.(events.PhaseInfo); ok {
			m = m.upsertPhase(phase, phaseFailed)
		}

	case events.TypeMilestone:
		if ms, ok := e.Data.(events.Milestone); ok {
			m.done, m.total = ms.Done, ms.Total
		}

	case events.TypeOutput:
		if line, ok := e.Data.(string); ok {
			m.output = append(m.output, line)
			if len(m.output) > maxOutputLines {
				m.output = m.output[len(m.output)-maxOutputLines:]
			}
		}
	}
	return m
}

func (m Model) upsertPhase(phase events.PhaseInfo, state phaseState) Model {
	for i := range m.phases {
		if m.phases[i].id == phase.ID {
			m.phases[i].state = state
			if phase.Attempt > 0 {
				m.phases[i].attempt = phase.Attempt
			}
			return m
		}
	}
	m.phases = append(m.phases, phaseRow{
		id:      phase.ID,
		title:   phase.Title,
		attempt: phase.Attempt,
		state:   state,
	})
	return m
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	if m.paused {
		return "Pausing run...\n"
	}

	if !m.started {
		b.WriteString(m.spin.View() + " waiting for run...\n")
		return b.String()
	}

	b.WriteString(titleStyle.Render(fmt.Sprintf("Debussy — %s", m.info.Name)))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  run %s", m.info.RunID)))
	b.WriteString("\n\n")

	for _, p := range m.phases {
		var marker, label string
		switch p.state {
		case phaseDone:
			marker = doneStyle.Render("[done]")
			label = fmt.Sprintf("Phase %s: %s", p.id, p.title)
		case phaseFailed:
			marker = failStyle.Render("[fail]")
			label = fmt.Sprintf("Phase %s: %s", p.id, p.title)
		case phaseRunning:
			marker = m.spin.View()
			label = activeStyle.Render(fmt.Sprintf("Phase %s: %s", p.id, p.title))
			if p.attempt > 1 {
				label += dimStyle.Render(fmt.Sprintf(" (attempt %d)", p.attempt))
			}
		default:
			marker = dimStyle.Render("[    ]")
			label = dimStyle.Render(fmt.Sprintf("Phase %s: %s", p.id, p.title))
		}
		b.WriteString(fmt.Sprintf("  %s %s\n", marker, label))
	}

	if m.total > 0 {
		b.WriteString("\n")
		b.WriteString(m.bar.ViewAs(float64(m.done) / float64(m.total)))
		b.WriteString(dimStyle.Render(fmt.Sprintf(" %d/%d", m.done, m.total)))
		b.WriteString("\n")
	}

	if len(m.output) > 0 {
		b.WriteString("\n")
		for _, line := range m.output {
			if m.width > 4 && len(line) > m.width-2 {
				line = line[:m.width-5] + "..."
			}
			b.WriteString(dimStyle.Render("  " + line))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("q: pause and quit"))
	b.WriteString("\n")
	return b.String()
}
