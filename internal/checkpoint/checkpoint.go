// Package checkpoint accumulates the progress milestones a worker records
// during a phase and turns them into a resumption preamble when the phase
// has to restart on a fresh context window.
package checkpoint

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/debussylabs/debussy/internal/state"
)

// progressCmdRe recognizes `debussy progress --phase X --step <step>` inside
// a Bash tool invocation. The step argument may be quoted either way.
var progressCmdRe = regexp.MustCompile(
	`debussy\s+progress\s+.*--step[= ]\s*(?:"([^"]+)"|'([^']+)'|(\S+))`)

// ProgressReader is the slice of the state store the manager reads on
// restart. The worker's `debussy progress` invocations land there through
// their own short-lived connection.
type ProgressReader interface {
	GetProgress(ctx context.Context, runID, phaseID string) ([]*state.ProgressEvent, error)
}

// Manager collects milestones for the phase currently executing.
type Manager struct {
	mu     sync.Mutex
	notes  []string
	seen   map[string]bool
	store  ProgressReader
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// New creates a Manager. store may be nil when no persisted progress is
// available (tests, dry runs).
func New(store ProgressReader, opts ...Option) *Manager {
	m := &Manager{
		seen:   make(map[string]bool),
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Record adds one milestone, preserving first-seen order and dropping
// duplicates.
func (m *Manager) Record(step string) {
	step = strings.TrimSpace(step)
	if step == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[step] {
		return
	}
	m.seen[step] = true
	m.notes = append(m.notes, step)
}

// ObserveBashCommand inspects a worker Bash invocation for a progress
// signal and records the step when present. Wire this to the stream
// parser's Bash-command callback.
func (m *Manager) ObserveBashCommand(command string) {
	match := progressCmdRe.FindStringSubmatch(command)
	if match == nil {
		return
	}
	for _, step := range match[1:] {
		if step != "" {
			m.logger.Debug("progress signal observed", "step", step)
			m.Record(step)
			return
		}
	}
}

// Steps returns the recorded milestones in order.
func (m *Manager) Steps() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.notes...)
}

// PrepareRestart merges the store's persisted progress events for
// (run, phase) into the in-memory set and renders the resumption preamble
// for the next attempt's prompt. With no milestones at all it returns a
// minimal restart notice.
func (m *Manager) PrepareRestart(ctx context.Context, runID, phaseID string) string {
	if m.store != nil {
		events, err := m.store.GetProgress(ctx, runID, phaseID)
		if err != nil {
			m.logger.Warn("reading persisted progress failed", "error", err)
		}
		for _, e := range events {
			m.Record(e.Step)
		}
	}

	var sb strings.Builder
	sb.WriteString("You are resuming this phase after a context-window restart. ")
	sb.WriteString("A previous session already completed part of the work.\n")

	steps := m.Steps()
	if len(steps) == 0 {
		sb.WriteString("\nNo milestones were recorded before the restart. ")
		sb.WriteString("Check the working tree and the notes file for work already done before redoing anything.")
		return sb.String()
	}

	sb.WriteString("\nMilestones already completed:\n")
	for _, step := range steps {
		sb.WriteString("- ")
		sb.WriteString(step)
		sb.WriteString("\n")
	}
	sb.WriteString("\nDo not redo the milestones above. Continue from the first unfinished item.")
	return sb.String()
}

// Clear drops all state. Call on phase completion.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes = nil
	m.seen = make(map[string]bool)
}
