package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/debussylabs/debussy/internal/config"
	"github.com/debussylabs/debussy/internal/state"
)

// newDoneCmd creates the done command. The worker invokes it to declare a
// phase's terminal status; the orchestrator reads the signal after the
// worker exits.
func newDoneCmd() *cobra.Command {
	var (
		phase  string
		status string
		reason string
		report string
	)

	cmd := &cobra.Command{
		Use:   "done",
		Short: "Record a phase completion signal (worker-facing)",
		Long: `Record the worker's terminal declaration for a phase.

The worker calls this at the end of a phase:
  debussy done --phase 2 --status completed --report '{"agents_used":["api-designer"]}'
  debussy done --phase 2 --status blocked --reason "missing credentials"`,
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

			if err := recordDone(cmd.Context(), st, phase, status, reason, report); err != nil {
				return err
			}
			fmt.Printf("Recorded %s for phase %s\n", status, phase)
			return nil
		},
	}

	cmd.Flags().StringVar(&phase, "phase", "", "phase id the signal is for")
	cmd.Flags().StringVar(&status, "status", "", "completed, blocked, or failed")
	cmd.Flags().StringVar(&reason, "reason", "", "why the phase is blocked or failed")
	cmd.Flags().StringVar(&report, "report", "", "JSON completion report (agents_used, steps_completed, ...)")
	_ = cmd.MarkFlagRequired("phase")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

// recordDone validates and persists one completion signal against the
// current run.
func recordDone(ctx context.Context, st *state.Store, phase, status, reason, report string) error {
	if report != "" && !gjson.Valid(report) {
		return fmt.Errorf("record completion: --report is not valid JSON")
	}

	run, err := requireCurrentRun(ctx, st)
	if err != nil {
		return err
	}

	return st.RecordCompletionSignal(ctx, &state.CompletionSignal{
		RunID:   run.ID,
		PhaseID: phase,
		Status:  status,
		Reason:  reason,
		Report:  report,
	})
}
