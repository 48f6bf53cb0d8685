// Package budget watches the worker's context-window consumption and asks
// for a cooperative restart before the window is exhausted.
package budget

import (
	"log/slog"
	"sync"

	"github.com/debussylabs/debussy/internal/stream"
)

// Defaults match a worker that degrades noticeably past ~80% of its window
// or after long tool-call marathons.
const (
	DefaultThresholdPct  = 80
	DefaultToolCallLimit = 150
)

// Estimator tracks token statistics and tool-call volume for one phase
// attempt. When either limit is crossed it fires the restart callback,
// exactly once per attempt.
type Estimator struct {
	mu sync.Mutex

	thresholdPct  int
	toolCallLimit int
	onRestart     func(reason string)
	logger        *slog.Logger

	contextTokens int
	contextWindow int
	toolCalls     int
	fired         bool
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithThresholdPct sets the context-usage percentage that triggers restart.
func WithThresholdPct(pct int) Option {
	return func(e *Estimator) {
		if pct > 0 {
			e.thresholdPct = pct
		}
	}
}

// WithToolCallLimit sets the tool-call count that triggers restart.
func WithToolCallLimit(n int) Option {
	return func(e *Estimator) {
		if n > 0 {
			e.toolCallLimit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Estimator) { e.logger = logger }
}

// New creates an Estimator that calls onRestart when a limit is crossed.
func New(onRestart func(reason string), opts ...Option) *Estimator {
	e := &Estimator{
		thresholdPct:  DefaultThresholdPct,
		toolCallLimit: DefaultToolCallLimit,
		onRestart:     onRestart,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Observe ingests a token-stats update from the stream parser.
func (e *Estimator) Observe(stats stream.TokenStats) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ct := stats.ContextTokens(); ct > 0 {
		e.contextTokens = ct
	}
	if stats.ContextWindow > 0 {
		e.contextWindow = stats.ContextWindow
	}
	e.check()
}

// RecordToolCall counts one tool invocation.
func (e *Estimator) RecordToolCall() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.toolCalls++
	e.check()
}

// Reset clears all counters for the next attempt.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.contextTokens = 0
	e.contextWindow = 0
	e.toolCalls = 0
	e.fired = false
}

// Fired reports whether this attempt already requested a restart.
func (e *Estimator) Fired() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fired
}

// check runs with the mutex held.
func (e *Estimator) check() {
	if e.fired {
		return
	}

	var reason string
	switch {
	case e.contextWindow > 0 && e.contextTokens*100 >= e.contextWindow*e.thresholdPct:
		reason = "context window usage reached threshold"
	case e.toolCalls >= e.toolCallLimit:
		reason = "tool call limit reached"
	default:
		return
	}

	e.fired = true
	e.logger.Info("requesting context restart",
		"reason", reason,
		"context_tokens", e.contextTokens,
		"context_window", e.contextWindow,
		"tool_calls", e.toolCalls,
	)
	if e.onRestart != nil {
		e.onRestart(reason)
	}
}
