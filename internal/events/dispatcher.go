package events

import (
	"context"
	"log/slog"
)

// Hook is the typed collaborator interface. Implementations (issue-tracker
// sync, notifier, progress display) receive lifecycle callbacks in run
// order. Returned errors are logged and dropped.
type Hook interface {
	PlanStart(ctx context.Context, info PlanInfo) error
	PhaseStart(ctx context.Context, info PlanInfo, phase PhaseInfo) error
	PhaseComplete(ctx context.Context, info PlanInfo, phase PhaseInfo) error
	PhaseFailed(ctx context.Context, info PlanInfo, phase PhaseInfo, failure string) error
	PlanComplete(ctx context.Context, info PlanInfo, success bool) error
	MilestoneProgress(ctx context.Context, info PlanInfo, m Milestone) error
}

// BaseHook is a no-op Hook for collaborators that only care about a subset
// of the callbacks.
type BaseHook struct{}

func (BaseHook) PlanStart(context.Context, PlanInfo) error                   { return nil }
func (BaseHook) PhaseStart(context.Context, PlanInfo, PhaseInfo) error       { return nil }
func (BaseHook) PhaseComplete(context.Context, PlanInfo, PhaseInfo) error    { return nil }
func (BaseHook) PhaseFailed(context.Context, PlanInfo, PhaseInfo, string) error {
	return nil
}
func (BaseHook) PlanComplete(context.Context, PlanInfo, bool) error          { return nil }
func (BaseHook) MilestoneProgress(context.Context, PlanInfo, Milestone) error {
	return nil
}

// Dispatcher fans lifecycle events out to hooks and the channel publisher.
// A hook panicking or erroring never disturbs the run or the other hooks.
type Dispatcher struct {
	hooks     []Hook
	publisher Publisher
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher. publisher may be nil.
func NewDispatcher(publisher Publisher, logger *slog.Logger, hooks ...Hook) *Dispatcher {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{hooks: hooks, publisher: publisher, logger: logger}
}

// Publisher returns the channel publisher for streaming consumers.
func (d *Dispatcher) Publisher() Publisher { return d.publisher }

// Publish forwards a non-lifecycle event (output, tokens, alert) to
// channel subscribers only.
func (d *Dispatcher) Publish(event Event) {
	d.publisher.Publish(event)
}

// PlanStart notifies all collaborators that a run began.
func (d *Dispatcher) PlanStart(ctx context.Context, info PlanInfo) {
	d.publisher.Publish(New(TypePlanStart, info.RunID, "", info))
	for _, h := range d.hooks {
		d.call("PlanStart", func() error { return h.PlanStart(ctx, info) })
	}
}

// PhaseStart notifies collaborators that a phase began.
func (d *Dispatcher) PhaseStart(ctx context.Context, info PlanInfo, phase PhaseInfo) {
	d.publisher.Publish(New(TypePhaseStart, info.RunID, phase.ID, phase))
	for _, h := range d.hooks {
		d.call("PhaseStart", func() error { return h.PhaseStart(ctx, info, phase) })
	}
}

// PhaseComplete notifies collaborators that a phase completed.
func (d *Dispatcher) PhaseComplete(ctx context.Context, info PlanInfo, phase PhaseInfo) {
	d.publisher.Publish(New(TypePhaseComplete, info.RunID, phase.ID, phase))
	for _, h := range d.hooks {
		d.call("PhaseComplete", func() error { return h.PhaseComplete(ctx, info, phase) })
	}
}

// PhaseFailed notifies collaborators that a phase failed.
func (d *Dispatcher) PhaseFailed(ctx context.Context, info PlanInfo, phase PhaseInfo, failure string) {
	d.publisher.Publish(New(TypePhaseFailed, info.RunID, phase.ID, failure))
	for _, h := range d.hooks {
		d.call("PhaseFailed", func() error { return h.PhaseFailed(ctx, info, phase, failure) })
	}
}

// PlanComplete notifies collaborators that the run finished.
func (d *Dispatcher) PlanComplete(ctx context.Context, info PlanInfo, success bool) {
	d.publisher.Publish(New(TypePlanComplete, info.RunID, "", success))
	for _, h := range d.hooks {
		d.call("PlanComplete", func() error { return h.PlanComplete(ctx, info, success) })
	}
}

// MilestoneProgress reports done/total phase counts.
func (d *Dispatcher) MilestoneProgress(ctx context.Context, info PlanInfo, m Milestone) {
	d.publisher.Publish(New(TypeMilestone, info.RunID, "", m))
	for _, h := range d.hooks {
		d.call("MilestoneProgress", func() error { return h.MilestoneProgress(ctx, info, m) })
	}
}

// call shields the orchestrator from collaborator failures.
func (d *Dispatcher) call(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("collaborator panicked", "hook", name, "panic", r)
		}
	}()
	if err := fn(); err != nil {
		d.logger.Warn("collaborator failed", "hook", name, "error", err)
	}
}
