package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debussylabs/debussy/internal/events"
)

func applyEvent(m Model, e events.Event) Model {
	updated, _ := m.Update(eventMsg(e))
	return updated.(Model)
}

func TestPlanStartPopulatesHeader(t *testing.T) {
	m := NewModel(nil, nil)

	m = applyEvent(m, events.New(events.TypePlanStart, "r1", "",
		events.PlanInfo{RunID: "r1", Name: "Feature X", TotalPhases: 3}))

	assert.True(t, m.started)
	assert.Equal(t, 3, m.total)
	assert.Contains(t, m.View(), "Feature X")
}

func TestPhaseLifecycleUpdatesRows(t *testing.T) {
	m := NewModel(nil, nil)
	m = applyEvent(m, events.New(events.TypePlanStart, "r1", "",
		events.PlanInfo{RunID: "r1", Name: "X", TotalPhases: 2}))

	m = applyEvent(m, events.New(events.TypePhaseStart, "r1", "1",
		events.PhaseInfo{ID: "1", Title: "Schema", Attempt: 1}))
	require.Len(t, m.phases, 1)
	assert.Equal(t, phaseRunning, m.phases[0].state)

	m = applyEvent(m, events.New(events.TypePhaseComplete, "r1", "1",
		events.PhaseInfo{ID: "1", Title: "Schema"}))
	assert.Equal(t, phaseDone, m.phases[0].state)

	m = applyEvent(m, events.New(events.TypePhaseStart, "r1", "2",
		events.PhaseInfo{ID: "2", Title: "API", Attempt: 2}))
	require.Len(t, m.phases, 2)
	assert.Equal(t, 2, m.phases[1].attempt)

	m = applyEvent(m, events.New(events.TypePhaseFailed, "r1", "2",
		events.PhaseInfo{ID: "2", Title: "API", Attempt: 3}))
	assert.Equal(t, phaseFailed, m.phases[1].state)
	assert.Contains(t, m.View(), "[fail]")
}

func TestMilestoneDrivesProgressBar(t *testing.T) {
	m := NewModel(nil, nil)
	m = applyEvent(m, events.New(events.TypePlanStart, "r1", "",
		events.PlanInfo{RunID: "r1", Name: "X", TotalPhases: 4}))

	m = applyEvent(m, events.New(events.TypeMilestone, "r1", "", events.Milestone{Done: 2, Total: 4}))

	assert.Equal(t, 2, m.done)
	assert.Contains(t, m.View(), "2/4")
}

func TestOutputScrollbackIsBounded(t *testing.T) {
	m := NewModel(nil, nil)
	for i := 0; i < maxOutputLines+5; i++ {
		m = applyEvent(m, events.New(events.TypeOutput, "r1", "", "line"))
	}
	assert.Len(t, m.output, maxOutputLines)
}

func TestQuitTriggersPauseOnce(t *testing.T) {
	var pauses int
	m := NewModel(nil, func() { pauses++ })

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	m = updated.(Model)

	assert.Equal(t, 1, pauses)
	assert.True(t, m.paused)
	require.NotNil(t, cmd)

	// A second quit keypress must not pause again.
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	m = updated.(Model)
	assert.Equal(t, 1, pauses)
}

func TestStreamClosedQuits(t *testing.T) {
	m := NewModel(nil, nil)
	_, cmd := m.Update(streamClosed{})
	require.NotNil(t, cmd)
}
