package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debussylabs/debussy/internal/events"
)

func TestDeliversLifecyclePayloads(t *testing.T) {
	var bodies [][]byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, b)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL)
	ctx := context.Background()
	info := events.PlanInfo{RunID: "r1", Name: "Demo", TotalPhases: 2}

	require.NoError(t, w.PlanStart(ctx, info))
	require.NoError(t, w.PhaseComplete(ctx, info, events.PhaseInfo{ID: "1", Index: 1, Total: 2}))
	require.NoError(t, w.MilestoneProgress(ctx, info, events.Milestone{Done: 1, Total: 2}))

	require.Len(t, bodies, 3)

	var p payload
	require.NoError(t, json.Unmarshal(bodies[0], &p))
	assert.Equal(t, "plan_start", p.Event)
	assert.Equal(t, "r1", p.Plan.RunID)
	assert.False(t, p.Time.IsZero())

	require.NoError(t, json.Unmarshal(bodies[1], &p))
	assert.Equal(t, "phase_complete", p.Event)
	require.NotNil(t, p.Phase)
	assert.Equal(t, "1", p.Phase.ID)

	require.NoError(t, json.Unmarshal(bodies[2], &p))
	assert.Equal(t, "milestone_progress", p.Event)
	assert.Equal(t, 1, p.Done)
	assert.Equal(t, 2, p.Total)
}

func TestRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL)
	err := w.PlanStart(context.Background(), events.PlanInfo{RunID: "r1"})

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestReportsClientErrorWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL)
	err := w.PlanStart(context.Background(), events.PlanInfo{RunID: "r1"})

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
