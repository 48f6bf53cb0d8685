package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingHook struct {
	BaseHook
	calls []string
}

func (h *recordingHook) PhaseStart(_ context.Context, _ PlanInfo, phase PhaseInfo) error {
	h.calls = append(h.calls, "start:"+phase.ID)
	return nil
}

func (h *recordingHook) PhaseComplete(_ context.Context, _ PlanInfo, phase PhaseInfo) error {
	h.calls = append(h.calls, "complete:"+phase.ID)
	return nil
}

type failingHook struct {
	BaseHook
}

func (failingHook) PhaseStart(context.Context, PlanInfo, PhaseInfo) error {
	return errors.New("tracker is down")
}

type panickingHook struct {
	BaseHook
}

func (panickingHook) PhaseStart(context.Context, PlanInfo, PhaseInfo) error {
	panic("boom")
}

func TestDispatcherCallsHooksInOrder(t *testing.T) {
	h := &recordingHook{}
	d := NewDispatcher(nil, nil, h)
	ctx := context.Background()
	info := PlanInfo{RunID: "r1"}

	d.PhaseStart(ctx, info, PhaseInfo{ID: "1"})
	d.PhaseComplete(ctx, info, PhaseInfo{ID: "1"})
	d.PhaseStart(ctx, info, PhaseInfo{ID: "2"})

	assert.Equal(t, []string{"start:1", "complete:1", "start:2"}, h.calls)
}

func TestDispatcherSurvivesFailingAndPanickingHooks(t *testing.T) {
	h := &recordingHook{}
	d := NewDispatcher(nil, nil, failingHook{}, panickingHook{}, h)

	d.PhaseStart(context.Background(), PlanInfo{RunID: "r1"}, PhaseInfo{ID: "1"})

	// The healthy hook still ran after the broken ones.
	assert.Equal(t, []string{"start:1"}, h.calls)
}

func TestDispatcherPublishesToChannels(t *testing.T) {
	p := NewMemoryPublisher()
	defer p.Close()
	d := NewDispatcher(p, nil)

	ch := p.Subscribe("r1")
	d.PlanStart(context.Background(), PlanInfo{RunID: "r1", Name: "Demo"})

	e := <-ch
	assert.Equal(t, TypePlanStart, e.Type)
}
