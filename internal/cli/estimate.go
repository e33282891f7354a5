package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/wavecheck/internal/agent"
	"github.com/dusk-indust/wavecheck/internal/verify"
)

var estimateCmd = &cobra.Command{
	Use:     "estimate [files...]",
	Aliases: []string{"cost"},
	Short:   "Estimate the cost of a run without calling a model",
	Long: `Price every agent over the selected files. Hybrid agents run the local
scan to count the sections a deep dive would cover; direct agents are priced
from their prompt and the size of the files. The total assumes every wave
runs.`,
	RunE: runEstimate,
}

func init() {
	addInputFlags(estimateCmd)
	estimateCmd.Flags().Bool("json", false, "print the estimate as JSON")
}

func runEstimate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	in, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	asJSON, _ := cmd.Flags().GetBool("json")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := a.scheduler(modeConcurrent, nil)
	if err != nil {
		return err
	}
	svc := verify.New(sched, a.waves,
		verify.WithEstimator(a.runner),
		verify.WithRoot(a.cfg.Dir),
		verify.WithMarkers(a.markers()),
		verify.WithLogger(a.logger),
	)
	est, err := svc.Estimate(ctx, in)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(est)
	}

	fmt.Fprintf(w, "%-4s  %-26s  %-6s  %-9s  %-16s  %10s\n", "WAVE", "AGENT", "MODE", "TIER", "DETAIL", "COST")
	for _, e := range est.Agents {
		detail := fmt.Sprintf("%d in / %d out", e.InputTokens, e.OutputTokens)
		if e.Mode == agent.ModeHybrid {
			detail = fmt.Sprintf("%d of %d flagged", e.Selected, e.Flagged)
		}
		fmt.Fprintf(w, "%-4d  %-26s  %-6s  %-9s  %-16s  $%9.4f\n", e.Wave, e.AgentID, e.Mode, e.Tier, detail, e.CostUSD)
	}
	fmt.Fprintf(w, "\ntotal: $%.4f  (batch mode: $%.4f)\n", est.TotalUSD, est.BatchUSD)
	return nil
}
