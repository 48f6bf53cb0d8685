package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	gogitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/debussylabs/debussy/internal/config"
	"github.com/debussylabs/debussy/internal/events"
	"github.com/debussylabs/debussy/internal/plan"
)

// Compile-time interface check.
var _ events.Hook = (*GitLabSync)(nil)

// GitLabSync mirrors run lifecycle onto GitLab issues as notes.
type GitLabSync struct {
	events.BaseHook

	client *gogitlab.Client
	// project is the full path ("group/repo" or "group/subgroup/repo").
	project string
	issues  []int
	logger  *slog.Logger
}

// NewGitLabSync creates a sync against the configured project.
func NewGitLabSync(cfg config.GitLabConfig, meta plan.Metadata, logger *slog.Logger) (*GitLabSync, error) {
	if cfg.Project == "" {
		return nil, fmt.Errorf("gitlab project path is required")
	}

	issues, err := parseIssueNumbers(meta.GitLabIssues)
	if err != nil {
		return nil, fmt.Errorf("bad gitlab issue reference: %w", err)
	}

	var client *gogitlab.Client
	if cfg.BaseURL != "" {
		baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
		client, err = gogitlab.NewClient(cfg.Token, gogitlab.WithBaseURL(baseURL+"/api/v4"))
	} else {
		client, err = gogitlab.NewClient(cfg.Token)
	}
	if err != nil {
		return nil, fmt.Errorf("create gitlab client: %w", err)
	}

	return &GitLabSync{
		client:  client,
		project: cfg.Project,
		issues:  issues,
		logger:  logger,
	}, nil
}

func (s *GitLabSync) PlanStart(ctx context.Context, info events.PlanInfo) error {
	return s.broadcast(ctx, planStartMessage(info))
}

func (s *GitLabSync) PhaseComplete(ctx context.Context, info events.PlanInfo, phase events.PhaseInfo) error {
	return s.broadcast(ctx, phaseCompleteMessage(info, phase))
}

func (s *GitLabSync) PhaseFailed(ctx context.Context, info events.PlanInfo, phase events.PhaseInfo, failure string) error {
	return s.broadcast(ctx, phaseFailedMessage(info, phase, failure))
}

func (s *GitLabSync) PlanComplete(ctx context.Context, info events.PlanInfo, success bool) error {
	return s.broadcast(ctx, planCompleteMessage(info, success))
}

func (s *GitLabSync) broadcast(ctx context.Context, body string) error {
	var firstErr error
	for _, iid := range s.issues {
		_, _, err := s.client.Notes.CreateIssueNote(s.project, int64(iid),
			&gogitlab.CreateIssueNoteOptions{Body: gogitlab.Ptr(body)},
			gogitlab.WithContext(ctx))
		if err != nil {
			s.logger.Warn("gitlab note failed", "issue", iid, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("note on #%d: %w", iid, err)
			}
		}
	}
	return firstErr
}
