package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/debussylabs/debussy/internal/config"
	"github.com/debussylabs/debussy/internal/state"
)

// newHistoryCmd creates the history command.
func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past runs",
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

			return renderHistory(cmd.Context(), st, os.Stdout, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	return cmd
}

// renderHistory prints recent runs, newest first.
func renderHistory(ctx context.Context, st *state.Store, w io.Writer, limit int) error {
	runs, err := st.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	fmt.Fprintf(w, "%-36s %-12s %-17s %s\n", "RUN", "STATUS", "STARTED", "PLAN")
	for _, run := range runs {
		fmt.Fprintf(w, "%-36s %-12s %-17s %s\n",
			run.ID, run.Status, run.StartedAt.Local().Format(time.RFC822), run.PlanName)
	}
	return nil
}
