package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/debussylabs/debussy/internal/audit"
	"github.com/debussylabs/debussy/internal/config"
	deberrors "github.com/debussylabs/debussy/internal/errors"
	"github.com/debussylabs/debussy/internal/plan"
)

// newAuditCmd creates the audit command.
func newAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit <plan.md>",
		Short: "Check a plan's structure without running it",
		Long: `Audit a plan: phase documents exist, dependencies resolve, gates
have commands, notes files chain correctly. Errors fail the audit;
warnings don't.`,
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

			res := audit.Run(args[0], plan.WithGateCommands(cfg.Gates.Commands))
			printAudit(os.Stdout, res)
			if !res.Passed {
				return deberrors.ErrPlanAudit(len(res.Errors()))
			}
			return nil
		},
	}
}

// printAudit renders the audit outcome, one line per issue.
func printAudit(w io.Writer, res *audit.Result) {
	for _, issue := range res.Issues {
		fmt.Fprintf(w, "%-7s %-22s %s\n", issue.Severity, issue.Code, issue.Message)
	}
	if len(res.Issues) > 0 {
		fmt.Fprintln(w)
	}

	if res.Passed {
		fmt.Fprintf(w, "Audit passed: %s\n", res.Summary)
		return
	}
	fmt.Fprintf(w, "Audit failed: %s\n", res.Summary)
}
