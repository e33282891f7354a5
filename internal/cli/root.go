// Package cli implements the wavecheck command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// errFailed is returned when a verification completes with outcome FAILURE.
// The report has already been printed.
var errFailed = errors.New("verification failed")

var (
	flagDir      string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "wavecheck",
	Short: "Run verification agents over changed code in gated waves",
	Long: `wavecheck runs a set of verification agents over source files. Agents
are grouped into waves; a wave starts only when every agent of the previous
wave passed. Hybrid agents scan cheaply first and spend a stronger model only
on the sections the scan flagged.

Settings are read from wavecheck.yml in the project directory, .env and the
environment. ANTHROPIC_API_KEY is required for every command that calls a
model.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagDir, "dir", "C", ".", "project directory")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "debug|info|warn|error (overrides config)")

	rootCmd.AddCommand(runCmd, estimateCmd, voteCmd, batchCmd, costReportCmd, pendingCmd, findingsCmd, serveMCPCmd, versionCmd)
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errFailed):
		return 1
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
}
