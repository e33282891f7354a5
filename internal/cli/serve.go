package cli

import (
	"github.com/spf13/cobra"

	"github.com/dusk-indust/wavecheck/internal/mcptools"
)

var serveMCPCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Serve the verification tools over MCP",
	Long: `Run an MCP server exposing run_verification, estimate_cost,
vote_severity and query_findings. Serves stdio by default, or streamable HTTP
with --http.`,
	RunE: runServeMCP,
}

func init() {
	serveMCPCmd.Flags().String("http", "", "listen address for streamable HTTP, e.g. 127.0.0.1:6143")
	serveMCPCmd.Flags().String("mode", modeConcurrent, "wave execution mode: concurrent or batch")
}

func runServeMCP(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	addr, _ := cmd.Flags().GetString("http")
	mode, _ := cmd.Flags().GetString("mode")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	// stdout carries the protocol, so no progress lines.
	sched, err := a.scheduler(mode, nil)
	if err != nil {
		return err
	}
	svc, err := a.verifier(ctx, sched)
	if err != nil {
		return err
	}
	server := mcptools.NewMCPServer(mcptools.NewService(svc, a.voter, mcptools.VotingDefaults{
		Samples:       a.cfg.DeepDive.Voting.Samples,
		MinConfidence: a.cfg.DeepDive.Voting.MinConfidence,
	}))

	if addr != "" {
		a.logger.Info("mcp_listening", "addr", addr)
		return mcptools.RunHTTP(ctx, server, addr)
	}
	return mcptools.RunStdio(ctx, server)
}
