// Package git wraps the git CLI for the two things the orchestrator needs:
// the dirty-check before a run starts, and per-phase auto-commits. The
// working directory is otherwise the worker's business.
package git

import (
	"fmt"
	"log/slog"
	"strings"
)

// DefaultCommitTemplate produces the per-phase commit subject. The
// placeholders {id}, {title} and {icon} are substituted.
const DefaultCommitTemplate = "Debussy: Phase {id} - {title} {icon}"

// Git operates on one repository.
type Git struct {
	workDir string
	runner  CommandRunner
	logger  *slog.Logger
}

// Option configures Git.
type Option func(*Git)

// WithRunner replaces the command runner (tests).
func WithRunner(r CommandRunner) Option {
	return func(g *Git) { g.runner = r }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Git) { g.logger = logger }
}

// New creates a Git rooted at workDir.
func New(workDir string, opts ...Option) *Git {
	g := &Git{
		workDir: workDir,
		runner:  NewExecRunner(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IsRepo reports whether workDir is inside a git work tree.
func (g *Git) IsRepo() bool {
	out, err := g.runner.Run(g.workDir, "git", "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// HasTrackedChanges reports whether any tracked file is modified, staged,
// or deleted. Untracked files do not count.
func (g *Git) HasTrackedChanges() (bool, error) {
	out, err := g.runner.Run(g.workDir, "git", "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}

	for _, line := range strings.Split(out, "\n") {
		if line == "" || strings.HasPrefix(line, "??") {
			continue
		}
		return true, nil
	}
	return false, nil
}

// CommitPhase stages all tracked-file changes and commits them with the
// templated message. It returns false without committing when no tracked
// file changed; untracked files never trigger a commit.
func (g *Git) CommitPhase(template, phaseID, title, icon, coAuthor string) (bool, error) {
	dirty, err := g.HasTrackedChanges()
	if err != nil {
		return false, err
	}
	if !dirty {
		g.logger.Debug("no tracked changes, skipping commit", "phase", phaseID)
		return false, nil
	}

	// -u stages tracked files only.
	if _, err := g.runner.Run(g.workDir, "git", "add", "-u"); err != nil {
		return false, fmt.Errorf("git add: %w", err)
	}

	if _, err := g.runner.Run(g.workDir, "git", "commit", "-m", CommitMessage(template, phaseID, title, icon, coAuthor)); err != nil {
		return false, fmt.Errorf("git commit: %w", err)
	}

	g.logger.Info("phase committed", "phase", phaseID)
	return true, nil
}

// Head returns the current commit SHA.
func (g *Git) Head() (string, error) {
	sha, err := g.runner.Run(g.workDir, "git", "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse HEAD: %w", err)
	}
	return sha, nil
}

// CommitMessage expands the commit template and appends the co-author
// trailer naming the worker model.
func CommitMessage(template, phaseID, title, icon, coAuthor string) string {
	if template == "" {
		template = DefaultCommitTemplate
	}

	msg := strings.NewReplacer(
		"{id}", phaseID,
		"{title}", title,
		"{icon}", icon,
	).Replace(template)
	msg = strings.TrimSpace(msg)

	if coAuthor != "" {
		msg += "\n\nCo-Authored-By: " + coAuthor
	}
	return msg
}
