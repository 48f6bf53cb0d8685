package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	v3 "github.com/ctreminiom/go-atlassian/v2/jira/v3"
	"github.com/ctreminiom/go-atlassian/v2/pkg/infra/models"

	"github.com/debussylabs/debussy/internal/config"
	"github.com/debussylabs/debussy/internal/events"
	"github.com/debussylabs/debussy/internal/plan"
)

// doneTransition is matched case-insensitively against available
// workflow transitions on plan completion.
const doneTransition = "Done"

// Compile-time interface check.
var _ events.Hook = (*JiraSync)(nil)

// JiraSync mirrors run lifecycle onto Jira issues: comments on phase/plan
// boundaries, and a transition to Done when the whole plan completes.
type JiraSync struct {
	events.BaseHook

	client *v3.Client
	keys   []string
	logger *slog.Logger
}

// NewJiraSync creates a sync using basic auth against a Jira Cloud instance.
func NewJiraSync(cfg config.JiraConfig, meta plan.Metadata, logger *slog.Logger) (*JiraSync, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("jira base URL is required")
	}
	if cfg.Email == "" || cfg.APIToken == "" {
		return nil, fmt.Errorf("jira email and API token are required")
	}

	client, err := v3.New(&http.Client{Timeout: 30 * time.Second}, strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("create jira client: %w", err)
	}
	client.Auth.SetBasicAuth(cfg.Email, cfg.APIToken)
	client.Auth.SetUserAgent("debussy/1.0")

	return &JiraSync{
		client: client,
		keys:   meta.JiraIssues,
		logger: logger,
	}, nil
}

func (s *JiraSync) PlanStart(ctx context.Context, info events.PlanInfo) error {
	return s.comment(ctx, planStartMessage(info))
}

func (s *JiraSync) PhaseComplete(ctx context.Context, info events.PlanInfo, phase events.PhaseInfo) error {
	return s.comment(ctx, phaseCompleteMessage(info, phase))
}

func (s *JiraSync) PhaseFailed(ctx context.Context, info events.PlanInfo, phase events.PhaseInfo, failure string) error {
	return s.comment(ctx, phaseFailedMessage(info, phase, failure))
}

// PlanComplete comments and then moves each issue to Done when the
// workflow offers that transition.
func (s *JiraSync) PlanComplete(ctx context.Context, info events.PlanInfo, success bool) error {
	firstErr := s.comment(ctx, planCompleteMessage(info, success))

	if !success {
		return firstErr
	}
	for _, key := range s.keys {
		if err := s.transitionToDone(ctx, key); err != nil {
			s.logger.Warn("jira transition failed", "issue", key, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *JiraSync) comment(ctx context.Context, text string) error {
	payload := &models.CommentPayloadScheme{Body: adfParagraph(text)}

	var firstErr error
	for _, key := range s.keys {
		if _, _, err := s.client.Issue.Comment.Add(ctx, key, payload, nil); err != nil {
			s.logger.Warn("jira comment failed", "issue", key, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("comment on %s: %w", key, err)
			}
		}
	}
	return firstErr
}

func (s *JiraSync) transitionToDone(ctx context.Context, key string) error {
	transitions, _, err := s.client.Issue.Transitions(ctx, key)
	if err != nil {
		return fmt.Errorf("list transitions for %s: %w", key, err)
	}

	for _, tr := range transitions.Transitions {
		if strings.EqualFold(tr.Name, doneTransition) {
			if _, err := s.client.Issue.Move(ctx, key, tr.ID, nil); err != nil {
				return fmt.Errorf("move %s to %s: %w", key, tr.Name, err)
			}
			return nil
		}
	}

	// Workflows without a Done transition are left alone.
	s.logger.Debug("no Done transition available", "issue", key)
	return nil
}

// adfParagraph wraps plain text in a minimal Atlassian Document Format body.
func adfParagraph(text string) *models.CommentNodeScheme {
	body := &models.CommentNodeScheme{
		Version: 1,
		Type:    "doc",
	}
	body.AppendNode(&models.CommentNodeScheme{
		Type: "paragraph",
		Content: []*models.CommentNodeScheme{
			{Type: "text", Text: text},
		},
	})
	return body
}
