package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePlanFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const masterDoc = `# Billing Rework Master Plan

**GitHub Issues:** #12, #34
**GitHub Repo:** acme/billing
**Jira Issues:** BILL-7

## Phases

| Phase | Document | Focus | Risk | Status |
|-------|----------|-------|------|--------|
| 1 | [Schema](phases/phase-1.md) | data | low | Completed |
| 2 | [API](phases/phase-2.md) | service | medium | pending |
| 2.1 | [API cleanup](phases/phase-2.1.md) | service | low | |
`

const phaseOneDoc = `# Phase 1: Schema

**Status:** completed

## Tasks

- Add invoices table
- Backfill rows

## Gates

- test: run the unit suite

Write notes to ` + "`notes/phase-1-notes.md`" + ` when done.
`

const phaseTwoDoc = `# Phase 2: API

**Depends On:** Phase 1

## Agents to Use

| Agent | Purpose | Required |
|-------|---------|----------|
| api-designer | endpoints | REQUIRED |
| doc-writer | docs | optional |

## Process Wrapper

1. Read previous notes
2. Implementation
3. Write notes

## Gates

- lint: style check
- deploy-dry-run: terraform plan -detailed-exitcode

## Tasks

- Build the endpoints

Read previous notes from ` + "`notes/phase-1-notes.md`" + `.
Write notes to ` + "`notes/phase-2-notes.md`" + `.
`

const phaseTwoOneDoc = `# Phase 2.1: API cleanup

## Dependencies

- Phase 2

Also useful context: this work is used by Phase 9.

Invoke AGENT:refactorer for the cleanup itself.

## Gates

- test
`

func writeTestPlan(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	master := writePlanFile(t, dir, "master.md", masterDoc)
	writePlanFile(t, dir, "phases/phase-1.md", phaseOneDoc)
	writePlanFile(t, dir, "phases/phase-2.md", phaseTwoDoc)
	writePlanFile(t, dir, "phases/phase-2.1.md", phaseTwoOneDoc)
	return master
}

func TestLoadMasterMetadata(t *testing.T) {
	p, err := Load(writeTestPlan(t))
	require.NoError(t, err)

	assert.Equal(t, "Billing Rework", p.Name)
	assert.Equal(t, []string{"#12", "#34"}, p.Meta.GitHubIssues)
	assert.Equal(t, "acme/billing", p.Meta.GitHubRepo)
	assert.Equal(t, []string{"BILL-7"}, p.Meta.JiraIssues)
	assert.Equal(t, []string{"#12", "#34", "BILL-7"}, p.Meta.IssueRefs())
}

func TestLoadPhasesInDocumentOrder(t *testing.T) {
	p, err := Load(writeTestPlan(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2", "2.1"}, p.PhaseIDs())
	assert.Equal(t, "Schema", p.Phases[0].Title)
	assert.Equal(t, StatusCompleted, p.Phases[0].Status)
	assert.Equal(t, StatusPending, p.Phases[1].Status)
	// Empty status cell defaults to PENDING.
	assert.Equal(t, StatusPending, p.Phases[2].Status)
}

func TestLoadPhaseDetails(t *testing.T) {
	p, err := Load(writeTestPlan(t))
	require.NoError(t, err)

	p1 := p.GetPhase("1")
	require.NotNil(t, p1)
	assert.Equal(t, []string{"Add invoices table", "Backfill rows"}, p1.Tasks)
	require.Len(t, p1.Gates, 1)
	assert.Equal(t, "test", p1.Gates[0].Name)
	assert.Equal(t, "make test", p1.Gates[0].Command)
	assert.Equal(t, "notes/phase-1-notes.md", p1.NotesOutput)

	p2 := p.GetPhase("2")
	require.NotNil(t, p2)
	assert.Equal(t, []string{"1"}, p2.DependsOn)
	assert.Equal(t, []string{"api-designer"}, p2.RequiredAgents)
	assert.Equal(t, []string{StepReadPreviousNotes, StepImplementation, StepWriteNotes}, p2.RequiredSteps)
	assert.Equal(t, "notes/phase-1-notes.md", p2.NotesInput)
	assert.Equal(t, "notes/phase-2-notes.md", p2.NotesOutput)

	require.Len(t, p2.Gates, 2)
	assert.Equal(t, "lint", p2.Gates[0].Name)
	assert.Equal(t, "make lint", p2.Gates[0].Command)
	// Unknown gate names run their description verbatim.
	assert.Equal(t, "deploy-dry-run", p2.Gates[1].Name)
	assert.Equal(t, "terraform plan -detailed-exitcode", p2.Gates[1].Command)
}

func TestLoadDependenciesSectionAndAgentMarker(t *testing.T) {
	p, err := Load(writeTestPlan(t))
	require.NoError(t, err)

	p21 := p.GetPhase("2.1")
	require.NotNil(t, p21)
	// Casual "used by Phase 9" prose must not count as a dependency.
	assert.Equal(t, []string{"2"}, p21.DependsOn)
	assert.Equal(t, []string{"refactorer"}, p21.RequiredAgents)
}

func TestLoadMissingPhaseDoc(t *testing.T) {
	dir := t.TempDir()
	master := writePlanFile(t, dir, "master.md", masterDoc)
	writePlanFile(t, dir, "phases/phase-1.md", phaseOneDoc)
	writePlanFile(t, dir, "phases/phase-2.md", phaseTwoDoc)
	// phase-2.1.md deliberately missing.

	_, err := Load(master)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phase 2.1")
}

func TestLoadNoPhasesTable(t *testing.T) {
	dir := t.TempDir()
	master := writePlanFile(t, dir, "master.md", "# Empty Plan\n\nNothing here.\n")

	_, err := Load(master)
	require.ErrorIs(t, err, ErrNoPhases)
}

func TestLoadMasterUnreadable(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.md"))
	require.Error(t, err)
}

func TestWithGateCommands(t *testing.T) {
	master := writeTestPlan(t)

	p, err := Load(master, WithGateCommands(map[string]string{"test": "go test ./..."}))
	require.NoError(t, err)

	p1 := p.GetPhase("1")
	require.Len(t, p1.Gates, 1)
	assert.Equal(t, "go test ./...", p1.Gates[0].Command)
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"completed", StatusCompleted},
		{"COMPLETED", StatusCompleted},
		{" Running ", StatusRunning},
		{"awaiting_human", StatusAwaitingHuman},
		{"banana", StatusPending},
		{"", StatusPending},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseStatus(tt.in), "ParseStatus(%q)", tt.in)
	}
}

func TestParseMasterLeavesStubs(t *testing.T) {
	p, err := ParseMaster(writeTestPlan(t))
	require.NoError(t, err)

	require.Len(t, p.Phases, 3)
	// Stubs carry table data only; the per-phase parse fills the rest.
	assert.Empty(t, p.Phases[1].Gates)
	assert.Empty(t, p.Phases[1].DependsOn)
}
