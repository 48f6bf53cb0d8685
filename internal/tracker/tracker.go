// Package tracker syncs run lifecycle to issue trackers. Each tracker is
// an events.Hook; the dispatcher already shields the run from tracker
// failures, so every method here just returns its error.
package tracker

import (
	"fmt"
	"log/slog"

	"github.com/debussylabs/debussy/internal/config"
	"github.com/debussylabs/debussy/internal/events"
	"github.com/debussylabs/debussy/internal/plan"
)

// FromConfig builds the enabled trackers for a plan. Trackers with no
// issue references resolve to nil and are skipped.
func FromConfig(cfg *config.Config, meta plan.Metadata, logger *slog.Logger) ([]events.Hook, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var hooks []events.Hook

	if cfg.Trackers.GitHub.Enabled && len(meta.GitHubIssues) > 0 {
		gh, err := NewGitHubSync(cfg.Trackers.GitHub, meta, logger)
		if err != nil {
			return nil, fmt.Errorf("github tracker: %w", err)
		}
		hooks = append(hooks, gh)
	}

	if cfg.Trackers.GitLab.Enabled && len(meta.GitLabIssues) > 0 {
		gl, err := NewGitLabSync(cfg.Trackers.GitLab, meta, logger)
		if err != nil {
			return nil, fmt.Errorf("gitlab tracker: %w", err)
		}
		hooks = append(hooks, gl)
	}

	if cfg.Trackers.Jira.Enabled && len(meta.JiraIssues) > 0 {
		j, err := NewJiraSync(cfg.Trackers.Jira, meta, logger)
		if err != nil {
			return nil, fmt.Errorf("jira tracker: %w", err)
		}
		hooks = append(hooks, j)
	}

	return hooks, nil
}

func planStartMessage(info events.PlanInfo) string {
	return fmt.Sprintf("Debussy started run `%s` for plan **%s** (%d phases).",
		info.RunID, info.Name, info.TotalPhases)
}

func phaseCompleteMessage(info events.PlanInfo, phase events.PhaseInfo) string {
	return fmt.Sprintf("Phase %s (%s) completed [%d/%d] in run `%s`.",
		phase.ID, phase.Title, phase.Index, phase.Total, info.RunID)
}

func phaseFailedMessage(info events.PlanInfo, phase events.PhaseInfo, failure string) string {
	msg := fmt.Sprintf("Phase %s (%s) failed after %d attempt(s) in run `%s`. Human attention required.",
		phase.ID, phase.Title, phase.Attempt, info.RunID)
	if failure != "" {
		msg += " Reason: " + failure
	}
	return msg
}

func planCompleteMessage(info events.PlanInfo, success bool) string {
	if !success {
		return fmt.Sprintf("Debussy stopped run `%s` of **%s** before completion.",
			info.RunID, info.Name)
	}
	return fmt.Sprintf("Debussy completed all %d phases of **%s** (run `%s`).",
		info.TotalPhases, info.Name, info.RunID)
}
