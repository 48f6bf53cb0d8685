package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is stamped by the release build; the default marks dev builds.
var version = "0.1.0-dev"

// newVersionCmd creates the version command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show debussy version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("debussy version " + version)
		},
	}
}
