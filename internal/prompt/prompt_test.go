package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debussylabs/debussy/internal/compliance"
	"github.com/debussylabs/debussy/internal/plan"
)

func testPhase() *plan.Phase {
	return &plan.Phase{
		ID:             "2",
		Title:          "API",
		DocPath:        "plans/phases/phase-2.md",
		NotesInput:     "notes/phase-1-notes.md",
		NotesOutput:    "notes/phase-2-notes.md",
		RequiredAgents: []string{"api-designer", "task-validator"},
	}
}

func TestPhasePrompt(t *testing.T) {
	b := NewBuilder(t.TempDir())

	out, err := b.Phase(testPhase())
	require.NoError(t, err)

	assert.Contains(t, out, "phase 2 (API)")
	assert.Contains(t, out, "`plans/phases/phase-2.md`")
	assert.Contains(t, out, "`notes/phase-1-notes.md`")
	assert.Contains(t, out, "`notes/phase-2-notes.md`")
	assert.Contains(t, out, "- api-designer")
	assert.Contains(t, out, "- task-validator")
	assert.Contains(t, out, "Task tool")
	assert.Contains(t, out, "debussy done --phase 2 --status completed")
	assert.Contains(t, out, "debussy done --phase 2 --status blocked")
	assert.Contains(t, out, "debussy progress --phase 2")
}

func TestPhasePromptOmitsEmptySections(t *testing.T) {
	b := NewBuilder(t.TempDir())
	phase := &plan.Phase{ID: "1", Title: "Solo", DocPath: "p.md"}

	out, err := b.Phase(phase)
	require.NoError(t, err)

	assert.NotContains(t, out, "previous phase's notes")
	assert.NotContains(t, out, "Task tool. Do not perform")
	assert.NotContains(t, out, "completion notes to")
}

func TestRemediationPrompt(t *testing.T) {
	b := NewBuilder(t.TempDir())

	issues := []compliance.Issue{
		{Kind: compliance.AgentSkipped, Severity: compliance.SeverityCritical,
			Subject: "task-validator", Details: `required agent "task-validator" was never invoked`},
		{Kind: compliance.NotesMissing, Severity: compliance.SeverityHigh,
			Subject: "notes/phase-2-notes.md", Details: "notes file notes/phase-2-notes.md was not written"},
		{Kind: compliance.GatesFailed, Severity: compliance.SeverityCritical,
			Subject: "test", Details: `gate "test" failed (make test)`, Evidence: "FAIL: TestX"},
	}

	out, err := b.Remediation(testPhase(), issues)
	require.NoError(t, err)

	assert.Contains(t, out, "REMEDIATION run for phase 2")
	assert.Contains(t, out, "Invoke the task-validator agent via Task tool")
	assert.Contains(t, out, "Write notes to: notes/phase-2-notes.md")
	assert.Contains(t, out, "Fix failing gate")
	assert.Contains(t, out, "FAIL: TestX")
	assert.Contains(t, out, "[critical]")
}

func TestProjectOverrideWins(t *testing.T) {
	stateDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(stateDir, "prompts"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(stateDir, "prompts", "phase.md"),
		[]byte("custom prompt for {{.Phase.ID}}"), 0o644))

	b := NewBuilder(stateDir)
	out, err := b.Phase(testPhase())
	require.NoError(t, err)

	assert.Equal(t, "custom prompt for 2", out)
}
