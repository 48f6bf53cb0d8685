package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func masterWith(rows string) string {
	return "# Demo Master Plan\n\n| Phase | Document | Focus | Risk | Status |\n|---|---|---|---|---|\n" + rows
}

func phaseDoc(deps string) string {
	doc := "# Phase\n\n"
	if deps != "" {
		doc += "**Depends On:** " + deps + "\n\n"
	}
	doc += "## Gates\n\n- test\n\nWrite notes to `notes/out.md`.\n"
	return doc
}

func codes(issues []Issue) []string {
	out := make([]string, len(issues))
	for i, issue := range issues {
		out[i] = issue.Code
	}
	return out
}

func TestAuditCleanPlan(t *testing.T) {
	dir := t.TempDir()
	master := write(t, dir, "master.md", masterWith(
		"| 1 | [One](phases/p1.md) | a | low | pending |\n"+
			"| 2 | [Two](phases/p2.md) | b | low | pending |\n"))
	write(t, dir, "phases/p1.md", phaseDoc(""))
	write(t, dir, "phases/p2.md", phaseDoc("Phase 1"))

	result := Run(master)

	assert.True(t, result.Passed)
	assert.Empty(t, result.Issues)
	assert.Equal(t, "0 error(s), 0 warning(s)", result.Summary)
	require.NotNil(t, result.Plan)
}

func TestAuditMasterNotFound(t *testing.T) {
	result := Run(filepath.Join(t.TempDir(), "missing.md"))

	assert.False(t, result.Passed)
	assert.Equal(t, []string{CodeMasterNotFound}, codes(result.Issues))
}

func TestAuditNoPhases(t *testing.T) {
	dir := t.TempDir()
	master := write(t, dir, "master.md", "# Empty Plan\n\nno table\n")

	result := Run(master)

	assert.False(t, result.Passed)
	assert.Equal(t, []string{CodeNoPhases}, codes(result.Issues))
}

func TestAuditPhaseNotFound(t *testing.T) {
	dir := t.TempDir()
	master := write(t, dir, "master.md", masterWith("| 1 | [One](phases/p1.md) | a | low | pending |\n"))

	result := Run(master)

	assert.False(t, result.Passed)
	assert.Contains(t, codes(result.Issues), CodePhaseNotFound)
}

func TestAuditMissingGatesAndNotes(t *testing.T) {
	dir := t.TempDir()
	master := write(t, dir, "master.md", masterWith("| 1 | [One](phases/p1.md) | a | low | pending |\n"))
	write(t, dir, "phases/p1.md", "# Phase\n\nno gates here\n")

	result := Run(master)

	assert.False(t, result.Passed)
	assert.Contains(t, codes(result.Issues), CodeMissingGates)
	assert.Contains(t, codes(result.Issues), CodeNoNotesOutput)
}

func TestAuditWarningsDoNotFail(t *testing.T) {
	dir := t.TempDir()
	master := write(t, dir, "master.md", masterWith("| 1 | [One](phases/p1.md) | a | low | pending |\n"))
	// Gates present, notes output absent: warning only.
	write(t, dir, "phases/p1.md", "# Phase\n\n## Gates\n\n- test\n")

	result := Run(master)

	assert.True(t, result.Passed)
	assert.Equal(t, []string{CodeNoNotesOutput}, codes(result.Issues))
}

func TestAuditMissingDependency(t *testing.T) {
	dir := t.TempDir()
	master := write(t, dir, "master.md", masterWith("| 1 | [One](phases/p1.md) | a | low | pending |\n"))
	write(t, dir, "phases/p1.md", phaseDoc("Phase 7"))

	result := Run(master)

	assert.True(t, result.Passed) // warning only
	assert.Contains(t, codes(result.Issues), CodeMissingDependency)
}

func TestAuditSelfDependency(t *testing.T) {
	dir := t.TempDir()
	master := write(t, dir, "master.md", masterWith("| 1 | [One](phases/p1.md) | a | low | pending |\n"))
	write(t, dir, "phases/p1.md", phaseDoc("Phase 1"))

	result := Run(master)

	assert.False(t, result.Passed)
	found := false
	for _, issue := range result.Issues {
		if issue.Code == CodeCircularDependency {
			found = true
			assert.Contains(t, issue.Message, "1 -> 1")
		}
	}
	assert.True(t, found)
}

func TestAuditThreeNodeCycle(t *testing.T) {
	dir := t.TempDir()
	rows := ""
	for i := 1; i <= 3; i++ {
		rows += fmt.Sprintf("| %d | [P%d](phases/p%d.md) | a | low | pending |\n", i, i, i)
	}
	master := write(t, dir, "master.md", masterWith(rows))
	write(t, dir, "phases/p1.md", phaseDoc("Phase 3"))
	write(t, dir, "phases/p2.md", phaseDoc("Phase 1"))
	write(t, dir, "phases/p3.md", phaseDoc("Phase 2"))

	result := Run(master)

	assert.False(t, result.Passed)
	var msg string
	for _, issue := range result.Issues {
		if issue.Code == CodeCircularDependency {
			msg = issue.Message
		}
	}
	assert.Contains(t, msg, "1 -> 3 -> 2 -> 1")
}

func TestAuditOrphanPhaseDoc(t *testing.T) {
	dir := t.TempDir()
	master := write(t, dir, "master.md", masterWith("| 1 | [One](phases/p1.md) | a | low | pending |\n"))
	write(t, dir, "phases/p1.md", phaseDoc(""))
	write(t, dir, "phases/orphan.md", "# Orphan\n")

	result := Run(master)

	assert.True(t, result.Passed)
	assert.Contains(t, codes(result.Issues), CodeOrphanPhaseDoc)
}
