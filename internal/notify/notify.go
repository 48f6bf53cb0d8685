// Package notify posts run lifecycle events to a configured webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/debussylabs/debussy/internal/events"
)

// Compile-time interface check.
var _ events.Hook = (*Webhook)(nil)

// Webhook delivers lifecycle payloads as JSON POSTs. Transient HTTP
// failures are retried with backoff; a delivery that exhausts retries is
// reported as an error and dropped by the dispatcher.
type Webhook struct {
	events.BaseHook

	url    string
	client *retryablehttp.Client
	logger *slog.Logger
}

// Option configures the Webhook.
type Option func(*Webhook)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Webhook) { w.logger = logger }
}

// WithHTTPClient replaces the underlying HTTP client (tests).
func WithHTTPClient(c *http.Client) Option {
	return func(w *Webhook) { w.client.HTTPClient = c }
}

// NewWebhook creates a notifier posting to url.
func NewWebhook(url string, opts ...Option) *Webhook {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = 30 * time.Second
	client.Logger = nil

	w := &Webhook{
		url:    url,
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// payload is the wire format of one notification.
type payload struct {
	Event   string            `json:"event"`
	Plan    events.PlanInfo   `json:"plan"`
	Phase   *events.PhaseInfo `json:"phase,omitempty"`
	Failure string            `json:"failure,omitempty"`
	Success *bool             `json:"success,omitempty"`
	Done    int               `json:"done,omitempty"`
	Total   int               `json:"total,omitempty"`
	Time    time.Time         `json:"time"`
}

func (w *Webhook) PlanStart(ctx context.Context, info events.PlanInfo) error {
	return w.post(ctx, payload{Event: string(events.TypePlanStart), Plan: info})
}

func (w *Webhook) PhaseStart(ctx context.Context, info events.PlanInfo, phase events.PhaseInfo) error {
	return w.post(ctx, payload{Event: string(events.TypePhaseStart), Plan: info, Phase: &phase})
}

func (w *Webhook) PhaseComplete(ctx context.Context, info events.PlanInfo, phase events.PhaseInfo) error {
	return w.post(ctx, payload{Event: string(events.TypePhaseComplete), Plan: info, Phase: &phase})
}

func (w *Webhook) PhaseFailed(ctx context.Context, info events.PlanInfo, phase events.PhaseInfo, failure string) error {
	return w.post(ctx, payload{Event: string(events.TypePhaseFailed), Plan: info, Phase: &phase, Failure: failure})
}

func (w *Webhook) PlanComplete(ctx context.Context, info events.PlanInfo, success bool) error {
	return w.post(ctx, payload{Event: string(events.TypePlanComplete), Plan: info, Success: &success})
}

func (w *Webhook) MilestoneProgress(ctx context.Context, info events.PlanInfo, m events.Milestone) error {
	return w.post(ctx, payload{Event: string(events.TypeMilestone), Plan: info, Done: m.Done, Total: m.Total})
}

func (w *Webhook) post(ctx context.Context, p payload) error {
	p.Time = time.Now().UTC()

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook %s: %w", p.Event, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s: unexpected status %d", p.Event, resp.StatusCode)
	}

	w.logger.Debug("webhook delivered", "event", p.Event, "status", resp.StatusCode)
	return nil
}
