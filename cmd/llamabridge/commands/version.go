package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/wagiedev/llamabridge"
)

// Set at build time via -ldflags "-X .../commands.Commit=...".
var (
	Commit = "unknown"
	Date   = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "llamabridge %s (%s) built %s %s/%s\n",
			llamabridge.Version, Commit, Date, runtime.GOOS, runtime.GOARCH)

		if verbose {
			fmt.Fprintf(out, "  go:     %s\n", runtime.Version())
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
