package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/debussylabs/debussy/internal/config"
	deberrors "github.com/debussylabs/debussy/internal/errors"
	"github.com/debussylabs/debussy/internal/events"
	"github.com/debussylabs/debussy/internal/lock"
	"github.com/debussylabs/debussy/internal/notify"
	"github.com/debussylabs/debussy/internal/orchestrator"
	"github.com/debussylabs/debussy/internal/plan"
	"github.com/debussylabs/debussy/internal/progress"
	"github.com/debussylabs/debussy/internal/stream"
	"github.com/debussylabs/debussy/internal/tracker"
	"github.com/debussylabs/debussy/internal/tui"
)

// newRunCmd creates the run command.
func newRunCmd() *cobra.Command {
	var (
		startPhase    string
		skipPhases    []string
		dryRun        bool
		model         string
		noInteractive bool
		allowDirty    bool
		noAutoCommit  bool
		useTUI        bool
	)

	cmd := &cobra.Command{
		Use:   "run <plan.md>",
		Short: "Execute a markdown plan",
		Long: `Execute a plan's phases in document order through the worker CLI.

Each phase is verified after the worker finishes: gates re-run, notes
checked, required agents and steps cross-checked against the transcript.
Failures are retried with a remediation prompt; a phase that still
fails after its retries fails the run.

Interrupting with Ctrl-C pauses the run; continue with 'debussy resume'.

Example:
  debussy run plan/master.md
  debussy run plan/master.md --phase 3 --dry-run
  debussy run plan/master.md --skip-phase 2 --skip-phase 2.1 --tui`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot()
			if err != nil {
				return err
			}
			cfg, err := config.Load(root)
			if err != nil {
				return err
			}

			return executeRun(cfg, root, runParams{
				planPath: args[0],
				opts: orchestrator.RunOptions{
					PlanPath:   args[0],
					StartPhase: startPhase,
					SkipPhases: skipPhases,
					Model:      model,
					DryRun:     dryRun,
					AllowDirty: allowDirty,
					AutoCommit: !noAutoCommit,
				},
				useTUI:        useTUI,
				noInteractive: noInteractive,
			})
		},
	}

	cmd.Flags().StringVar(&startPhase, "phase", "", "start at this phase, skipping earlier ones")
	cmd.Flags().StringArrayVar(&skipPhases, "skip-phase", nil, "skip this phase (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the execution order without running anything")
	cmd.Flags().StringVar(&model, "model", "", "override the configured worker model")
	cmd.Flags().BoolVar(&noInteractive, "no-interactive", false, "no progress display, log output only")
	cmd.Flags().BoolVar(&allowDirty, "allow-dirty", false, "run even with uncommitted changes")
	cmd.Flags().BoolVar(&noAutoCommit, "no-auto-commit", false, "disable per-phase auto-commits")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "live dashboard instead of line output")
	return cmd
}

type runParams struct {
	planPath      string
	opts          orchestrator.RunOptions
	useTUI        bool
	noInteractive bool
}

// executeRun wires the collaborators around one orchestrator run. It is
// shared by run and resume.
func executeRun(cfg *config.Config, root string, params runParams) error {
	logger := slog.Default()

	// Plan metadata up front: the trackers need the issue references
	// before the run starts.
	p, err := plan.Load(params.planPath)
	if err != nil {
		return err
	}

	guard := lock.NewPIDGuard(config.PIDPath(root))
	if err := guard.Acquire(); err != nil {
		return err
	}
	defer guard.Release()

	st, err := openStore(cfg, root)
	if err != nil {
		return err
	}
	defer st.Close()

	var hooks []events.Hook

	var disp *progress.Display
	if !params.useTUI && !params.noInteractive {
		disp = progress.New(os.Stdout, progress.WithQuiet(quiet))
		hooks = append(hooks, disp)
	}

	trackers, err := tracker.FromConfig(cfg, p.Meta, logger)
	if err != nil {
		return err
	}
	hooks = append(hooks, trackers...)

	if cfg.Notify.WebhookURL != "" {
		hooks = append(hooks, notify.NewWebhook(cfg.Notify.WebhookURL, notify.WithLogger(logger)))
	}

	publisher := events.NewMemoryPublisher()
	dispatcher := events.NewDispatcher(publisher, logger, hooks...)

	if cfg.Events.ListenAddr != "" {
		broadcaster := events.NewBroadcaster(publisher, cfg.Events.ListenAddr, logger)
		broadcaster.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = broadcaster.Shutdown(ctx)
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nInterrupt received, pausing run...")
		cancel()
	}()

	orchOpts := []orchestrator.Option{
		orchestrator.WithDispatcher(dispatcher),
		orchestrator.WithLogger(logger),
	}
	if disp != nil {
		orchOpts = append(orchOpts, orchestrator.WithOutput(disp.Output))

		// Token snapshots only travel the channel stream.
		tokenCh := publisher.Subscribe(events.GlobalRunID)
		go func() {
			for e := range tokenCh {
				if e.Type == events.TypeTokens {
					if stats, ok := e.Data.(stream.TokenStats); ok {
						disp.Tokens(stats)
					}
				}
			}
		}()
	}

	orch := orchestrator.New(cfg, st, root, orchOpts...)

	if params.useTUI {
		err = runWithTUI(ctx, cancel, orch, publisher, params.opts)
	} else {
		err = orch.Run(ctx, params.opts)
		publisher.Close()
	}

	if errors.Is(err, deberrors.ErrRunCancelled("")) {
		if disp != nil {
			disp.Interrupted()
		}
		return nil
	}
	return err
}

// runWithTUI drives the orchestrator behind the live dashboard. Quitting
// the dashboard cancels the run context, which pauses the run.
func runWithTUI(ctx context.Context, cancel context.CancelFunc, orch *orchestrator.Orchestrator, publisher *events.MemoryPublisher, opts orchestrator.RunOptions) error {
	ch := publisher.Subscribe(events.GlobalRunID)

	errCh := make(chan error, 1)
	go func() {
		errCh <- orch.Run(ctx, opts)
		publisher.Close()
	}()

	if err := tui.Run(ch, cancel); err != nil {
		cancel()
		<-errCh
		return fmt.Errorf("dashboard: %w", err)
	}
	return <-errCh
}
