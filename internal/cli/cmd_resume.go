package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/debussylabs/debussy/internal/config"
	deberrors "github.com/debussylabs/debussy/internal/errors"
	"github.com/debussylabs/debussy/internal/orchestrator"
	"github.com/debussylabs/debussy/internal/state"
)

// newResumeCmd creates the resume command.
func newResumeCmd() *cobra.Command {
	var (
		noInteractive bool
		useTUI        bool
	)

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Continue a paused or failed run",
		Long: `Continue the most recent paused or failed run where it left off.

Phases the store already recorded as COMPLETED are skipped; the phase
that was interrupted is attempted again from scratch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot()
			if err != nil {
				return err
			}
			cfg, err := config.Load(root)
			if err != nil {
				return err
			}

			run, err := resumableRun(cmd.Context(), cfg, root)
			if err != nil {
				return err
			}

			return executeRun(cfg, root, runParams{
				planPath: run.PlanPath,
				opts: orchestrator.RunOptions{
					PlanPath:   run.PlanPath,
					AutoCommit: true,
				},
				useTUI:        useTUI,
				noInteractive: noInteractive,
			})
		},
	}

	cmd.Flags().BoolVar(&noInteractive, "no-interactive", false, "no progress display, log output only")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "live dashboard instead of line output")
	return cmd
}

// resumableRun finds the run to continue: the current RUNNING/PAUSED run,
// or failing that the most recent FAILED one.
func resumableRun(ctx context.Context, cfg *config.Config, root string) (*state.Run, error) {
	st, err := openStore(cfg, root)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	run, err := st.GetCurrentRun(ctx)
	if err != nil {
		return nil, err
	}
	if run != nil {
		return run, nil
	}

	runs, err := st.ListRuns(ctx, 20)
	if err != nil {
		return nil, err
	}
	for _, r := range runs {
		if r.Status == state.RunFailed {
			return r, nil
		}
	}
	return nil, deberrors.ErrNoCurrentRun()
}
