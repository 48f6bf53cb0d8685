package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debussylabs/debussy/internal/state"
)

func TestRecordDedupesPreservingOrder(t *testing.T) {
	m := New(nil)

	m.Record("schema migrated")
	m.Record("endpoints built")
	m.Record("schema migrated")
	m.Record("  ")

	assert.Equal(t, []string{"schema migrated", "endpoints built"}, m.Steps())
}

func TestObserveBashCommand(t *testing.T) {
	tests := []struct {
		command string
		want    []string
	}{
		{`debussy progress --phase 2 --step "schema migrated"`, []string{"schema migrated"}},
		{`debussy progress --phase 2 --step 'half done'`, []string{"half done"}},
		{`debussy progress --phase 2 --step backfill`, []string{"backfill"}},
		{`cd /tmp && debussy progress --phase 1 --step "late in a pipeline"`, []string{"late in a pipeline"}},
		{`debussy done --phase 2 --status completed`, nil},
		{`echo hello`, nil},
	}

	for _, tt := range tests {
		m := New(nil)
		m.ObserveBashCommand(tt.command)
		assert.Equal(t, tt.want, m.Steps(), "command %q", tt.command)
	}
}

func TestPrepareRestartMergesStoreEvents(t *testing.T) {
	s := state.NewTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "plans/master.md", "Rework")
	require.NoError(t, err)
	require.NoError(t, s.LogProgress(ctx, run.ID, "2", "schema migrated"))
	require.NoError(t, s.LogProgress(ctx, run.ID, "2", "tests added"))

	m := New(s)
	m.Record("schema migrated") // also seen live; must not duplicate
	m.Record("endpoints built")

	preamble := m.PrepareRestart(ctx, run.ID, "2")

	assert.Contains(t, preamble, "context-window restart")
	assert.Contains(t, preamble, "- schema migrated\n")
	assert.Contains(t, preamble, "- endpoints built\n")
	assert.Contains(t, preamble, "- tests added\n")
	assert.Equal(t, []string{"schema migrated", "endpoints built", "tests added"}, m.Steps())
}

func TestPrepareRestartNoMilestones(t *testing.T) {
	m := New(nil)

	preamble := m.PrepareRestart(context.Background(), "run-1", "1")

	assert.Contains(t, preamble, "No milestones were recorded")
}

func TestClear(t *testing.T) {
	m := New(nil)
	m.Record("something")

	m.Clear()

	assert.Empty(t, m.Steps())
	m.Record("something")
	assert.Equal(t, []string{"something"}, m.Steps())
}
