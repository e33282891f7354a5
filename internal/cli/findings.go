package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/wavecheck/internal/findings"
)

var findingsCmd = &cobra.Command{
	Use:   "findings",
	Short: "Query the findings recorded by earlier runs",
	Long: `Print the findings of one run, the findings located in one file, or
the files with the most findings. Without flags, prints graph statistics and
the top hotspots.`,
	RunE: runFindings,
}

func init() {
	findingsCmd.Flags().String("session", "", "run session id")
	findingsCmd.Flags().String("file", "", "file path as recorded")
	findingsCmd.Flags().Int("hotspots", 10, "number of hotspot files to list")
}

func runFindings(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	session, _ := cmd.Flags().GetString("session")
	file, _ := cmd.Flags().GetString("file")
	limit, _ := cmd.Flags().GetInt("hotspots")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.openFindings(ctx)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()

	switch {
	case session != "":
		list, err := store.FindingsByRun(ctx, session)
		if err != nil {
			return err
		}
		printFindings(w, list)
	case file != "":
		list, err := store.FindingsByFile(ctx, file)
		if err != nil {
			return err
		}
		printFindings(w, list)
	default:
		st, err := store.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d runs, %d agent runs, %d findings in %d files\n", st.Runs, st.AgentRuns, st.Findings, st.Files)
		hot, err := store.Hotspots(ctx, limit)
		if err != nil {
			return err
		}
		for _, h := range hot {
			fmt.Fprintf(w, "  %5d  %s\n", h.Findings, h.Path)
		}
	}
	return nil
}

func printFindings(w io.Writer, list []findings.FindingNode) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No findings.")
		return
	}
	for _, f := range list {
		fmt.Fprintf(w, "%s:%d  %-8s  %-24s  %s\n", f.File, f.Line, f.Severity, f.Agent, f.Message)
	}
}
