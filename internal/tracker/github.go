package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	gogithub "github.com/google/go-github/v82/github"
	"golang.org/x/oauth2"

	"github.com/debussylabs/debussy/internal/config"
	"github.com/debussylabs/debussy/internal/events"
	"github.com/debussylabs/debussy/internal/plan"
)

// Labels applied on run lifecycle.
const (
	githubLabelRunning   = "debussy:running"
	githubLabelDone      = "debussy:done"
	githubLabelAttention = "debussy:attention"
)

// Compile-time interface check.
var _ events.Hook = (*GitHubSync)(nil)

// GitHubSync mirrors run lifecycle onto GitHub issues: comments on
// phase/plan boundaries and status labels.
type GitHubSync struct {
	events.BaseHook

	client *gogithub.Client
	owner  string
	repo   string
	issues []int
	logger *slog.Logger
}

// NewGitHubSync creates a sync against the configured repo. The repo falls
// back to the plan's GitHub Repo metadata when unset in config.
func NewGitHubSync(cfg config.GitHubConfig, meta plan.Metadata, logger *slog.Logger) (*GitHubSync, error) {
	repoPath := cfg.Repo
	if repoPath == "" {
		repoPath = meta.GitHubRepo
	}
	owner, repo, ok := strings.Cut(repoPath, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("github repo must be owner/name, got %q", repoPath)
	}

	issues, err := parseIssueNumbers(meta.GitHubIssues)
	if err != nil {
		return nil, err
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	httpClient := oauth2.NewClient(context.Background(), ts)
	return &GitHubSync{
		client: gogithub.NewClient(httpClient),
		owner:  owner,
		repo:   repo,
		issues: issues,
		logger: logger,
	}, nil
}

// parseIssueNumbers converts "#123"-style references to numbers.
func parseIssueNumbers(refs []string) ([]int, error) {
	nums := make([]int, 0, len(refs))
	for _, ref := range refs {
		n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(ref), "#"))
		if err != nil {
			return nil, fmt.Errorf("bad github issue reference %q: %w", ref, err)
		}
		nums = append(nums, n)
	}
	return nums, nil
}

func (s *GitHubSync) PlanStart(ctx context.Context, info events.PlanInfo) error {
	return s.broadcast(ctx, planStartMessage(info), githubLabelRunning)
}

func (s *GitHubSync) PhaseComplete(ctx context.Context, info events.PlanInfo, phase events.PhaseInfo) error {
	return s.broadcast(ctx, phaseCompleteMessage(info, phase), "")
}

func (s *GitHubSync) PhaseFailed(ctx context.Context, info events.PlanInfo, phase events.PhaseInfo, failure string) error {
	return s.broadcast(ctx, phaseFailedMessage(info, phase, failure), githubLabelAttention)
}

func (s *GitHubSync) PlanComplete(ctx context.Context, info events.PlanInfo, success bool) error {
	label := githubLabelDone
	if !success {
		label = githubLabelAttention
	}
	return s.broadcast(ctx, planCompleteMessage(info, success), label)
}

// broadcast comments on every linked issue and optionally applies a label.
// The first error is returned after all issues were attempted.
func (s *GitHubSync) broadcast(ctx context.Context, body, label string) error {
	var firstErr error
	for _, number := range s.issues {
		comment := &gogithub.IssueComment{Body: gogithub.Ptr(body)}
		if _, _, err := s.client.Issues.CreateComment(ctx, s.owner, s.repo, number, comment); err != nil {
			s.logger.Warn("github comment failed", "issue", number, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("comment on #%d: %w", number, err)
			}
			continue
		}

		if label == "" {
			continue
		}
		if _, _, err := s.client.Issues.AddLabelsToIssue(ctx, s.owner, s.repo, number, []string{label}); err != nil {
			s.logger.Warn("github label failed", "issue", number, "label", label, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("label #%d: %w", number, err)
			}
		}
	}
	return firstErr
}
