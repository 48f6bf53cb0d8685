package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/debussylabs/debussy/internal/config"
	deberrors "github.com/debussylabs/debussy/internal/errors"
	"github.com/debussylabs/debussy/internal/state"
)

// newStatusCmd creates the status command.
func newStatusCmd() *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current run",
		Args:  cobra.NoArgs,
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

			return renderStatus(cmd.Context(), st, os.Stdout, runID)
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "show this run instead of the current one")
	return cmd
}

// renderStatus prints one run with its phase attempts.
func renderStatus(ctx context.Context, st *state.Store, w io.Writer, runID string) error {
	var run *state.Run
	var err error

	if runID != "" {
		run, err = st.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if run == nil {
			return deberrors.ErrRunNotFound(runID)
		}
	} else {
		run, err = requireCurrentRun(ctx, st)
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "Run:     %s\n", run.ID)
	fmt.Fprintf(w, "Plan:    %s (%s)\n", run.PlanName, run.PlanPath)
	fmt.Fprintf(w, "Status:  %s\n", run.Status)
	fmt.Fprintf(w, "Started: %s\n", run.StartedAt.Local().Format(time.RFC822))
	if run.CurrentPhase != "" {
		fmt.Fprintf(w, "Phase:   %s\n", run.CurrentPhase)
	}

	execs, err := st.ListPhaseExecutions(ctx, run.ID)
	if err != nil {
		return err
	}
	if len(execs) == 0 {
		return nil
	}

	fmt.Fprintf(w, "\n%-8s %-8s %-15s %s\n", "PHASE", "ATTEMPT", "STATUS", "ERROR")
	for _, e := range execs {
		msg := e.ErrorMessage
		if len(msg) > 60 {
			msg = msg[:57] + "..."
		}
		fmt.Fprintf(w, "%-8s %-8d %-15s %s\n", e.PhaseID, e.Attempt, e.Status, msg)
	}
	return nil
}
