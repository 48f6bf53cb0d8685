package progress

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/debussylabs/debussy/internal/events"
	"github.com/debussylabs/debussy/internal/stream"
)

func newTestDisplay() (*Display, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(&buf, WithColor(false)), &buf
}

func TestLifecycleOutput(t *testing.T) {
	d, buf := newTestDisplay()
	ctx := context.Background()
	info := events.PlanInfo{RunID: "r1", Name: "Feature X", TotalPhases: 2}

	d.PlanStart(ctx, info)
	d.PhaseStart(ctx, info, events.PhaseInfo{ID: "1", Title: "Schema", Attempt: 1, Index: 1, Total: 2})
	d.PhaseComplete(ctx, info, events.PhaseInfo{ID: "1"})
	d.MilestoneProgress(ctx, info, events.Milestone{Done: 1, Total: 2})
	d.PlanComplete(ctx, info, true)

	out := buf.String()
	assert.Contains(t, out, "Debussy: Feature X (2 phases, run r1)")
	assert.Contains(t, out, "[1/2] Phase 1: Schema")
	assert.NotContains(t, out, "attempt")
	assert.Contains(t, out, "Phase 1 complete")
	assert.Contains(t, out, "progress: 1/2 phases")
	assert.Contains(t, out, "All 2 phases complete")
}

func TestRetryAttemptIsLabelled(t *testing.T) {
	d, buf := newTestDisplay()

	d.PhaseStart(context.Background(), events.PlanInfo{}, events.PhaseInfo{
		ID: "2", Title: "API", Attempt: 3, Index: 2, Total: 4,
	})

	assert.Contains(t, buf.String(), "(attempt 3)")
}

func TestQuietSuppressesAllButFailures(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf, WithColor(false), WithQuiet(true))
	ctx := context.Background()

	d.PlanStart(ctx, events.PlanInfo{Name: "X"})
	d.PhaseStart(ctx, events.PlanInfo{}, events.PhaseInfo{ID: "1"})
	d.Output("worker says hi")
	d.Warning("something odd")
	assert.Empty(t, buf.String())

	d.PhaseFailed(ctx, events.PlanInfo{}, events.PhaseInfo{ID: "1", Attempt: 3}, "gates failed")
	d.Error("broken")
	out := buf.String()
	assert.Contains(t, out, "Phase 1 failed after 3 attempt(s): gates failed")
	assert.Contains(t, out, "error: broken")
}

func TestOutputTruncatesToWidth(t *testing.T) {
	d, buf := newTestDisplay()
	d.width = 20

	d.Output("this line is much longer than twenty characters")

	line := buf.String()
	assert.Contains(t, line, "...")
	assert.LessOrEqual(t, len(line), 21) // width + newline
}

func TestTokens(t *testing.T) {
	d, buf := newTestDisplay()

	d.Tokens(stream.TokenStats{
		InputTokens:     1000,
		OutputTokens:    200,
		CacheReadTokens: 99_000,
		CostUSD:         0.1234,
		ContextWindow:   200_000,
	})

	out := buf.String()
	assert.Contains(t, out, "in=1000")
	assert.Contains(t, out, "out=200")
	assert.Contains(t, out, "(50% of context)")
	assert.Contains(t, out, "$0.1234")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "5s", formatDuration(5*time.Second))
	assert.Equal(t, "2m3s", formatDuration(2*time.Minute+3*time.Second))
	assert.Equal(t, "1h0m5s", formatDuration(time.Hour+5*time.Second))
}
