package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/wavecheck/internal/audit"
)

var costReportCmd = &cobra.Command{
	Use:   "cost-report",
	Short: "Summarise a month of audit records per agent",
	RunE:  runCostReport,
}

func init() {
	costReportCmd.Flags().String("month", "", "month to report, YYYY-MM (default current UTC month)")
	costReportCmd.Flags().Bool("json", false, "print the summary as JSON")
}

func runCostReport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	month, _ := cmd.Flags().GetString("month")
	if month == "" {
		month = time.Now().UTC().Format("2006-01")
	}
	asJSON, _ := cmd.Flags().GetBool("json")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	records, skipped, err := audit.ReadMonth(a.audit.Dir(), month)
	if err != nil {
		return err
	}
	if skipped > 0 {
		a.logger.Warn("audit_lines_skipped", "month", month, "count", skipped)
	}
	sum := audit.Summarize(records)

	w := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}

	fmt.Fprintf(w, "Cost report %s: %d sessions, %d agent runs, $%.4f\n\n", month, sum.Sessions, sum.Records, sum.CostUSD)
	if len(sum.Agents) == 0 {
		fmt.Fprintln(w, "No audit records.")
		return nil
	}
	fmt.Fprintf(w, "%-26s  %5s  %8s  %6s  %8s  %10s  %10s\n", "AGENT", "RUNS", "FAILURES", "ERRORS", "FINDINGS", "COST", "MEAN")
	for _, s := range sum.Agents {
		fmt.Fprintf(w, "%-26s  %5d  %8d  %6d  %8d  $%9.4f  %10s\n",
			s.Agent, s.Runs, s.Failures, s.Errors, s.Findings, s.CostUSD, s.MeanDuration.Round(time.Millisecond))
	}
	return nil
}
