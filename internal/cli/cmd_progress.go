package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/debussylabs/debussy/internal/config"
	"github.com/debussylabs/debussy/internal/state"
)

// newProgressCmd creates the progress command. The worker invokes it to
// record milestones that survive a context-window restart.
func newProgressCmd() *cobra.Command {
	var (
		phase string
		step  string
	)

	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Record a phase milestone (worker-facing)",
		Long: `Record one completed milestone for the phase in flight.

The worker calls this as it works:
  debussy progress --phase 2 --step "endpoints implemented"

Recorded milestones feed the resumption preamble when the phase has to
restart on a fresh context window.`,
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
			st, err := openStore(cfg, root)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := recordProgress(cmd.Context(), st, phase, step); err != nil {
				return err
			}
			fmt.Printf("Recorded milestone for phase %s\n", phase)
			return nil
		},
	}

	cmd.Flags().StringVar(&phase, "phase", "", "phase id the milestone belongs to")
	cmd.Flags().StringVar(&step, "step", "", "short description of the finished milestone")
	_ = cmd.MarkFlagRequired("phase")
	_ = cmd.MarkFlagRequired("step")
	return cmd
}

// recordProgress persists one milestone against the current run.
func recordProgress(ctx context.Context, st *state.Store, phase, step string) error {
	if step == "" {
		return fmt.Errorf("record progress: --step must not be empty")
	}

	run, err := requireCurrentRun(ctx, st)
	if err != nil {
		return err
	}
	return st.LogProgress(ctx, run.ID, phase, step)
}
