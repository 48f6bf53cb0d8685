// Package orchestrator drives a run: phase scheduling, worker attempts,
// context-window restarts, compliance remediation, and state persistence.
// One orchestrator owns one run at a time.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/debussylabs/debussy/internal/audit"
	"github.com/debussylabs/debussy/internal/budget"
	"github.com/debussylabs/debussy/internal/checkpoint"
	"github.com/debussylabs/debussy/internal/compliance"
	"github.com/debussylabs/debussy/internal/config"
	deberrors "github.com/debussylabs/debussy/internal/errors"
	"github.com/debussylabs/debussy/internal/events"
	"github.com/debussylabs/debussy/internal/gate"
	"github.com/debussylabs/debussy/internal/git"
	"github.com/debussylabs/debussy/internal/plan"
	"github.com/debussylabs/debussy/internal/prompt"
	"github.com/debussylabs/debussy/internal/state"
	"github.com/debussylabs/debussy/internal/stream"
	"github.com/debussylabs/debussy/internal/worker"
)

// Orchestrator executes plans.
type Orchestrator struct {
	cfg        *config.Config
	store      *state.Store
	root       string
	prompts    *prompt.Builder
	gates      *gate.Runner
	checker    *compliance.Checker
	repo       *git.Git
	dispatcher *events.Dispatcher
	output     func(line string)
	logger     *slog.Logger
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithDispatcher sets the collaborator dispatcher.
func WithDispatcher(d *events.Dispatcher) Option {
	return func(o *Orchestrator) { o.dispatcher = d }
}

// WithOutput sets the sink for worker display lines.
func WithOutput(fn func(line string)) Option {
	return func(o *Orchestrator) { o.output = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithGit replaces the git client (tests).
func WithGit(repo *git.Git) Option {
	return func(o *Orchestrator) { o.repo = repo }
}

// New creates an orchestrator for a project rooted at root.
func New(cfg *config.Config, store *state.Store, root string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		store:   store,
		root:    root,
		prompts: prompt.NewBuilder(config.StateDir(root)),
		gates: gate.NewRunner(root,
			gate.WithTimeout(time.Duration(cfg.Gates.TimeoutSeconds)*time.Second)),
		repo:       git.New(root),
		dispatcher: events.NewDispatcher(nil, nil),
		output:     func(string) {},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.checker = compliance.NewChecker(o.gates, root, compliance.WithLogger(o.logger))
	return o
}

// RunOptions are the per-run caller options.
type RunOptions struct {
	PlanPath   string
	StartPhase string   // skip everything before this phase id
	SkipPhases []string // explicit skips, unioned with the store's completed set
	Model      string   // overrides config worker model
	DryRun     bool
	AllowDirty bool
	AutoCommit bool
}

// Run executes (or resumes) the plan. It returns nil when every phase
// completed; a cancellation leaves the run PAUSED and returns the
// cancellation error.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) error {
	auditRes := audit.Run(opts.PlanPath, plan.WithGateCommands(o.cfg.Gates.Commands))
	if !auditRes.Passed {
		for _, issue := range auditRes.Errors() {
			o.logger.Error("audit issue", "code", issue.Code, "detail", issue.Message)
		}
		return deberrors.ErrPlanAudit(len(auditRes.Errors()))
	}
	p := auditRes.Plan

	if !opts.AllowDirty && o.repo.IsRepo() {
		dirty, err := o.repo.HasTrackedChanges()
		if err != nil {
			return fmt.Errorf("dirty check: %w", err)
		}
		if dirty {
			return deberrors.ErrGitDirty()
		}
	}

	run, err := o.createOrResumeRun(ctx, p, opts.PlanPath)
	if err != nil {
		return err
	}

	skip, statuses, err := o.buildSkipSet(ctx, p, run, opts)
	if err != nil {
		return err
	}

	info := events.PlanInfo{
		RunID:       run.ID,
		Name:        p.Name,
		PlanPath:    opts.PlanPath,
		GitHubRepo:  p.Meta.GitHubRepo,
		IssueRefs:   p.Meta.IssueRefs(),
		TotalPhases: len(p.Phases),
	}

	if opts.DryRun {
		return o.dryRun(p, skip, statuses)
	}

	o.dispatcher.PlanStart(ctx, info)

	done := 0
	for _, phase := range p.Phases {
		if statuses[phase.ID] == plan.StatusCompleted {
			done++
		}
	}

	for i, phase := range p.Phases {
		if err := ctx.Err(); err != nil {
			return o.pause(run)
		}
		if skip[phase.ID] {
			o.logger.Info("skipping phase", "phase", phase.ID)
			continue
		}
		if !dependenciesMet(phase, statuses) {
			o.logger.Warn("dependencies not met, skipping phase",
				"phase", phase.ID, "depends_on", phase.DependsOn)
			continue
		}

		phaseInfo := events.PhaseInfo{
			ID:      phase.ID,
			Title:   phase.Title,
			Index:   i + 1,
			Total:   len(p.Phases),
			Attempt: 1,
		}

		statuses[phase.ID] = plan.StatusRunning
		outcome, err := o.runPhase(ctx, run, info, phase, phaseInfo, opts)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return o.pause(run)
			}
			statuses[phase.ID] = plan.StatusFailed
			o.failRun(ctx, run)
			return err
		}
		statuses[phase.ID] = outcome

		done++
		o.dispatcher.MilestoneProgress(ctx, info, events.Milestone{Done: done, Total: len(p.Phases)})
	}

	if err := o.store.UpdateRunStatus(ctx, run.ID, state.RunCompleted); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if _, err := o.store.RecordCompletion(ctx, p.Name, p.Meta.IssueRefs(), opts.PlanPath, run.ID); err != nil {
		o.logger.Warn("record completed feature", "error", err)
	}
	o.dispatcher.PlanComplete(ctx, info, true)
	return nil
}

// createOrResumeRun reuses a resumable run for the plan or creates a new one.
func (o *Orchestrator) createOrResumeRun(ctx context.Context, p *plan.Plan, planPath string) (*state.Run, error) {
	run, err := o.store.FindResumableRun(ctx, planPath)
	if err != nil {
		return nil, fmt.Errorf("find resumable run: %w", err)
	}
	if run != nil {
		o.logger.Info("resuming run", "run", run.ID, "status", run.Status)
		if err := o.store.UpdateRunStatus(ctx, run.ID, state.RunRunning); err != nil {
			return nil, fmt.Errorf("reactivate run: %w", err)
		}
		return run, nil
	}

	run, err = o.store.CreateRun(ctx, planPath, p.Name)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	o.logger.Info("created run", "run", run.ID, "plan", p.Name)
	return run, nil
}

// buildSkipSet unions the caller's skip set with the store's completed
// phases. The store is the source of truth; a phase marked COMPLETED in
// the markdown is honored only when the store has no record of it.
func (o *Orchestrator) buildSkipSet(ctx context.Context, p *plan.Plan, run *state.Run, opts RunOptions) (map[string]bool, map[string]plan.Status, error) {
	completed, err := o.store.GetCompletedPhases(ctx, run.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("load completed phases: %w", err)
	}

	skip := make(map[string]bool)
	statuses := make(map[string]plan.Status, len(p.Phases))

	for _, id := range opts.SkipPhases {
		skip[id] = true
	}
	for _, phase := range p.Phases {
		statuses[phase.ID] = plan.StatusPending
		if completed[phase.ID] {
			skip[phase.ID] = true
			statuses[phase.ID] = plan.StatusCompleted
		} else if phase.Status == plan.StatusCompleted {
			// Markdown fallback.
			skip[phase.ID] = true
			statuses[phase.ID] = plan.StatusCompleted
		}
	}

	if opts.StartPhase != "" {
		if p.GetPhase(opts.StartPhase) == nil {
			return nil, nil, deberrors.ErrPlanParse(opts.PlanPath,
				fmt.Sprintf("start phase %q not in plan", opts.StartPhase))
		}
		for _, phase := range p.Phases {
			if phase.ID == opts.StartPhase {
				break
			}
			if !skip[phase.ID] {
				skip[phase.ID] = true
				// Treated as satisfied for dependency checks.
				statuses[phase.ID] = plan.StatusCompleted
			}
		}
	}

	return skip, statuses, nil
}

// dependenciesMet checks the orchestrator's in-memory view: every
// dependency must be COMPLETED.
func dependenciesMet(phase *plan.Phase, statuses map[string]plan.Status) bool {
	for _, dep := range phase.DependsOn {
		if statuses[dep] != plan.StatusCompleted {
			return false
		}
	}
	return true
}

// dryRun prints the execution order without touching the worker or store.
func (o *Orchestrator) dryRun(p *plan.Plan, skip map[string]bool, statuses map[string]plan.Status) error {
	for _, phase := range p.Phases {
		switch {
		case skip[phase.ID]:
			o.output(fmt.Sprintf("skip  %s: %s", phase.ID, phase.Title))
		case !dependenciesMet(phase, statuses):
			o.output(fmt.Sprintf("hold  %s: %s (needs %s)",
				phase.ID, phase.Title, strings.Join(phase.DependsOn, ", ")))
		default:
			o.output(fmt.Sprintf("run   %s: %s", phase.ID, phase.Title))
			// A phase that will run satisfies later dependency checks.
			statuses[phase.ID] = plan.StatusCompleted
		}
	}
	return nil
}

// runPhase drives one phase to a terminal status through the first
// attempt plus up to MaxRetries remediation retries. A non-nil error
// fails the run.
func (o *Orchestrator) runPhase(ctx context.Context, run *state.Run, info events.PlanInfo, phase *plan.Phase, phaseInfo events.PhaseInfo, opts RunOptions) (plan.Status, error) {
	if err := o.store.SetCurrentPhase(ctx, run.ID, phase.ID); err != nil {
		return plan.StatusFailed, fmt.Errorf("set current phase: %w", err)
	}

	o.dispatcher.PhaseStart(ctx, info, phaseInfo)

	// A resumed run may hold executions from before a crash; attempt
	// numbers stay contiguous by continuing after the highest one.
	base, err := o.store.GetAttemptCount(ctx, run.ID, phase.ID)
	if err != nil {
		return plan.StatusFailed, fmt.Errorf("count attempts: %w", err)
	}

	maxAttempts := o.cfg.Retry.MaxRetries + 1
	var prevIssues []compliance.Issue

	for n := 1; n <= maxAttempts; n++ {
		attempt := base + n
		phaseInfo.Attempt = attempt

		exec, err := o.store.CreatePhaseExecution(ctx, run.ID, phase.ID, attempt)
		if err != nil {
			return plan.StatusFailed, fmt.Errorf("create execution: %w", err)
		}
		if err := o.store.UpdatePhaseStatus(ctx, run.ID, phase.ID, state.PhaseRunning, ""); err != nil {
			return plan.StatusFailed, fmt.Errorf("mark running: %w", err)
		}

		var promptText string
		if prevIssues == nil {
			promptText, err = o.prompts.Phase(phase)
		} else {
			promptText, err = o.prompts.Remediation(phase, prevIssues)
		}
		if err != nil {
			return plan.StatusFailed, fmt.Errorf("build prompt: %w", err)
		}

		result, sessionText, err := o.executeWithRestart(ctx, run, phase, promptText, opts)
		if err != nil {
			msg := err.Error()
			o.store.UpdatePhaseStatus(ctx, run.ID, phase.ID, state.PhaseFailed, msg)
			if errors.Is(err, context.Canceled) {
				return plan.StatusFailed, err
			}
			o.dispatcher.PhaseFailed(ctx, info, phaseInfo, msg)
			return plan.StatusFailed, err
		}
		if !result.Success {
			msg := result.ErrorMessage
			if msg == "" {
				msg = fmt.Sprintf("worker exited with code %d", result.ExitCode)
			}
			o.store.UpdatePhaseStatus(ctx, run.ID, phase.ID, state.PhaseFailed, msg)
			o.dispatcher.PhaseFailed(ctx, info, phaseInfo, msg)
			if strings.HasPrefix(result.ErrorMessage, "timeout") {
				return plan.StatusFailed, deberrors.ErrWorkerTimeout(phase.ID, o.cfg.Worker.TimeoutSeconds)
			}
			return plan.StatusFailed, fmt.Errorf("phase %s worker failed: %s", phase.ID, msg)
		}

		if err := o.store.UpdatePhaseStatus(ctx, run.ID, phase.ID, state.PhaseValidating, ""); err != nil {
			return plan.StatusFailed, fmt.Errorf("mark validating: %w", err)
		}

		signal, err := o.store.GetCompletionSignal(ctx, run.ID, phase.ID)
		if err != nil {
			return plan.StatusFailed, fmt.Errorf("load completion signal: %w", err)
		}
		if signal != nil && signal.Status == "blocked" {
			msg := "worker blocked: " + signal.Reason
			o.store.UpdatePhaseStatus(ctx, run.ID, phase.ID, state.PhaseBlocked, msg)
			o.dispatcher.PhaseFailed(ctx, info, phaseInfo, msg)
			return plan.StatusBlocked, fmt.Errorf("phase %s blocked: %s", phase.ID, signal.Reason)
		}

		var report compliance.Report
		if signal != nil {
			report = compliance.ParseReport(signal.Report)
		}

		verdict, gateResults := o.checker.Verify(ctx, phase, sessionText, report)
		for i := range gateResults {
			gr := gateResults[i]
			if err := o.store.RecordGateResult(ctx, exec.ID, &state.GateResult{
				ExecutionID: exec.ID,
				Name:        gr.Name,
				Command:     gr.Command,
				Passed:      gr.Passed,
				Output:      gr.Output,
				Duration:    gr.Duration,
			}); err != nil {
				o.logger.Warn("record gate result", "gate", gr.Name, "error", err)
			}
		}

		if verdict.Passed || verdict.Strategy == compliance.WarnAndAccept {
			if verdict.Strategy == compliance.WarnAndAccept {
				for _, issue := range verdict.Issues {
					o.logger.Warn("accepting phase with issue",
						"phase", phase.ID, "kind", issue.Kind, "detail", issue.Details)
				}
			}
			if err := o.store.UpdatePhaseStatus(ctx, run.ID, phase.ID, state.PhaseCompleted, ""); err != nil {
				return plan.StatusFailed, fmt.Errorf("mark completed: %w", err)
			}
			o.commitPhase(phase, opts, true)
			o.dispatcher.PhaseComplete(ctx, info, phaseInfo)
			return plan.StatusCompleted, nil
		}

		if verdict.Strategy == compliance.HumanRequired {
			msg := "compliance requires human intervention"
			o.store.UpdatePhaseStatus(ctx, run.ID, phase.ID, state.PhaseAwaitingHuman, msg)
			o.dispatcher.Publish(events.New(events.TypeAlert, run.ID, phase.ID, msg))
			o.dispatcher.PhaseFailed(ctx, info, phaseInfo, msg)
			return plan.StatusAwaitingHuman, fmt.Errorf("phase %s awaiting human intervention", phase.ID)
		}

		o.logger.Info("compliance failed",
			"phase", phase.ID, "attempt", attempt,
			"strategy", verdict.Strategy, "issues", len(verdict.Issues))
		prevIssues = verdict.Issues
	}

	msg := fmt.Sprintf("Failed after %d attempts", maxAttempts)
	o.store.UpdatePhaseStatus(ctx, run.ID, phase.ID, state.PhaseFailed, msg)
	o.dispatcher.Publish(events.New(events.TypeAlert, run.ID, phase.ID, msg))
	o.dispatcher.PhaseFailed(ctx, info, phaseInfo, msg)
	return plan.StatusFailed, deberrors.ErrMaxAttempts(phase.ID, maxAttempts)
}

// executeWithRestart wraps worker invocations with the context-window
// restart loop. The returned session text covers the final attempt only;
// earlier attempts contribute through the checkpoint preamble.
func (o *Orchestrator) executeWithRestart(ctx context.Context, run *state.Run, phase *plan.Phase, promptText string, opts RunOptions) (*worker.Result, string, error) {
	checkpoints := checkpoint.New(o.store, checkpoint.WithLogger(o.logger))
	restartCount := 0
	preamble := ""

	for {
		result, sessionText, err := o.executeOnce(ctx, run, phase, preamble, promptText, opts, checkpoints)
		if err != nil {
			return nil, "", err
		}

		if result.Stopped() && o.cfg.Restart.Enabled {
			if restartCount >= o.cfg.Restart.MaxRestarts {
				return nil, "", deberrors.ErrRestartLimit(phase.ID, o.cfg.Restart.MaxRestarts)
			}
			restartCount++
			o.logger.Info("context restart",
				"phase", phase.ID, "restart", restartCount, "max", o.cfg.Restart.MaxRestarts)

			// Preserve partial work before the fresh attempt.
			o.commitPhase(phase, opts, false)
			preamble = checkpoints.PrepareRestart(ctx, run.ID, phase.ID)
			continue
		}

		checkpoints.Clear()
		return result, sessionText, nil
	}
}

// executeOnce runs a single worker subprocess for the phase.
func (o *Orchestrator) executeOnce(ctx context.Context, run *state.Run, phase *plan.Phase, preamble, promptText string, opts RunOptions, checkpoints *checkpoint.Manager) (*worker.Result, string, error) {
	logPath := config.LogPath(o.root, run.ID, phase.ID)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, "", fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("open session log: %w", err)
	}
	defer logFile.Close()

	var runner *worker.Runner

	parser := stream.New(
		stream.WithTextOutput(func(line string) {
			o.output(line)
			o.dispatcher.Publish(events.New(events.TypeOutput, run.ID, phase.ID, line))
		}),
		stream.WithBashCommand(checkpoints.ObserveBashCommand),
		stream.WithRawSink(logFile),
	)

	estimator := budget.New(func(reason string) {
		o.logger.Info("requesting context restart", "phase", phase.ID, "reason", reason)
		runner.RequestStop()
	},
		budget.WithThresholdPct(o.cfg.Restart.ContextThresholdPct),
		budget.WithToolCallLimit(o.cfg.Restart.ToolCallLimit),
		budget.WithLogger(o.logger),
	)

	// Estimator taps are wired after construction so the restart callback
	// can reach the runner.
	stream.WithToolUse(func(string) { estimator.RecordToolCall() })(parser)
	stream.WithTokenStats(func(stats stream.TokenStats) {
		estimator.Observe(stats)
		o.dispatcher.Publish(events.New(events.TypeTokens, run.ID, phase.ID, stats))
	})(parser)

	model := opts.Model
	if model == "" {
		model = o.cfg.Worker.Model
	}

	workerOpts := []worker.Option{
		worker.WithWorkdir(o.root),
		worker.WithTimeout(time.Duration(o.cfg.Worker.TimeoutSeconds) * time.Second),
		worker.WithStderrOutput(o.output),
		worker.WithLogger(o.logger),
	}
	if o.cfg.Worker.Command != "" && (o.cfg.Worker.Command != "claude" || len(o.cfg.Worker.Args) > 0) {
		workerOpts = append(workerOpts, worker.WithCommand(o.cfg.Worker.Command, o.cfg.Worker.Args...))
	}
	if model != "" {
		workerOpts = append(workerOpts, worker.WithModel(model))
	}
	if len(o.cfg.Worker.SandboxCommand) > 0 {
		workerOpts = append(workerOpts, worker.WithSandbox(o.cfg.Worker.SandboxCommand))
	}
	runner = worker.New(parser, workerOpts...)

	effective := promptText
	if preamble != "" {
		effective = preamble + "\n\n---\n\n" + promptText
	}

	result, err := runner.Execute(ctx, effective)
	if err != nil {
		return nil, "", err
	}

	if err := o.store.SetWorkerInfo(ctx, run.ID, phase.ID, result.PID, logPath); err != nil {
		o.logger.Warn("record worker info", "error", err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, "", ctxErr
	}

	return result, parser.SessionText(), nil
}

// commitPhase auto-commits tracked changes at a phase boundary. Failures
// are logged, never fatal.
func (o *Orchestrator) commitPhase(phase *plan.Phase, opts RunOptions, success bool) {
	if !opts.AutoCommit || !o.cfg.Git.AutoCommit {
		return
	}
	if !success && !o.cfg.Git.CommitOnFailure {
		return
	}
	if !o.repo.IsRepo() {
		return
	}

	icon := ""
	if !success {
		icon = "(partial)"
	}
	coAuthor := o.cfg.Git.CoAuthor
	if coAuthor == "" && o.cfg.Worker.Model != "" {
		coAuthor = o.cfg.Worker.Model
	}

	committed, err := o.repo.CommitPhase(o.cfg.Git.CommitTemplate, phase.ID, phase.Title, icon, coAuthor)
	if err != nil {
		o.logger.Warn("auto-commit failed", "phase", phase.ID, "error", err)
		return
	}
	if committed {
		o.logger.Info("auto-committed phase changes", "phase", phase.ID)
	}
}

// pause parks the run for resume after a cancellation.
func (o *Orchestrator) pause(run *state.Run) error {
	// The loop context is cancelled; use a fresh one for the final write.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := o.store.UpdateRunStatus(ctx, run.ID, state.RunPaused); err != nil {
		o.logger.Error("pause run", "run", run.ID, "error", err)
	}
	o.logger.Info("run paused", "run", run.ID)
	return deberrors.ErrRunCancelled(run.ID)
}

func (o *Orchestrator) failRun(ctx context.Context, run *state.Run) {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := o.store.UpdateRunStatus(ctx, run.ID, state.RunFailed); err != nil {
		o.logger.Error("mark run failed", "run", run.ID, "error", err)
	}
}
