// Package cli implements the debussy command-line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	deberrors "github.com/debussylabs/debussy/internal/errors"
)

var (
	verbose bool
	quiet   bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "debussy",
	Short: "Markdown-plan orchestrator for untrusted worker CLIs",
	Long: `debussy runs multi-phase markdown plans through a code-generating
worker CLI, verifies each phase's compliance, retries with remediation
prompts, and keeps resumable state in .debussy/state.db.

Quick start:
  debussy audit plan/master.md    Check the plan's structure
  debussy run plan/master.md      Execute the plan phase by phase
  debussy status                  Show the current run
  debussy resume                  Continue a paused or failed run`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and prints structured errors.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		if derr := deberrors.FromError(err); derr != nil {
			fmt.Fprintln(os.Stderr, derr.UserMessage())
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return err
	}
	return nil
}

func init() {
	cobra.OnInitialize(initEnv)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newResumeCmd())
	rootCmd.AddCommand(newDoneCmd())
	rootCmd.AddCommand(newProgressCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newAuditCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initEnv wires DEBUSSY_* env vars and the log level. The layered config
// files themselves are loaded per-command through config.Load.
func initEnv() {
	viper.SetEnvPrefix("DEBUSSY")
	viper.AutomaticEnv()

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
