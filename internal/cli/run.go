package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/wavecheck/internal/model"
	"github.com/dusk-indust/wavecheck/internal/report"
	"github.com/dusk-indust/wavecheck/internal/verify"
)

const (
	modeConcurrent = "concurrent"
	modeBatch      = "batch"
)

var runCmd = &cobra.Command{
	Use:   "run [files...]",
	Short: "Run the verification waves",
	Long: `Run every configured wave over the given files. Without files, the
files added or modified by --diff are verified; with neither, the files named
by the pending markers are verified and the markers are cleared after a
successful run.

The exit code is 1 when the run ends in FAILURE.

Examples:
  wavecheck run app/db.py app/views.py
  git diff HEAD | wavecheck run --diff -
  wavecheck run --mode batch`,
	RunE: runRun,
}

func init() {
	addInputFlags(runCmd)
	runCmd.Flags().String("mode", modeConcurrent, "wave execution mode: concurrent or batch")
	runCmd.Flags().Bool("json", false, "print the JSON report instead of the summary")
	runCmd.Flags().BoolP("quiet", "q", false, "do not print progress")
}

func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().String("diff", "", "unified diff file to take changed files from (- for stdin)")
	cmd.Flags().StringSlice("ext", nil, "only verify files with these extensions, e.g. .py,.go")
}

// readInput resolves the file arguments and input flags of cmd.
func readInput(cmd *cobra.Command, args []string) (verify.Input, error) {
	in := verify.Input{Files: args}
	in.Extensions, _ = cmd.Flags().GetStringSlice("ext")

	diffPath, _ := cmd.Flags().GetString("diff")
	if diffPath == "" || len(args) > 0 {
		return in, nil
	}
	var (
		data []byte
		err  error
	)
	if diffPath == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(diffPath)
	}
	if err != nil {
		return in, fmt.Errorf("reading diff: %w", err)
	}
	in.Diff = string(data)
	return in, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	in, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	mode, _ := cmd.Flags().GetString("mode")
	asJSON, _ := cmd.Flags().GetBool("json")
	quiet, _ := cmd.Flags().GetBool("quiet")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var progress io.Writer = cmd.ErrOrStderr()
	if quiet || asJSON {
		progress = nil
	}
	sched, err := a.scheduler(mode, progress)
	if err != nil {
		return err
	}
	svc, err := a.verifier(ctx, sched)
	if err != nil {
		return err
	}

	out, runErr := svc.Verify(ctx, in)
	if out == nil {
		return runErr
	}

	w := cmd.OutOrStdout()
	if out.NothingPending {
		if asJSON {
			fmt.Fprintln(w, `{"outcome": "NOTHING_PENDING"}`)
		} else {
			fmt.Fprintln(w, "no files pending verification")
		}
		return nil
	}
	if asJSON {
		if err := report.WriteJSON(w, out.Report); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(w, report.Terminal(out.Report))
		if out.Paths != nil {
			fmt.Fprintf(w, "report: %s\n", out.Paths.Markdown)
		}
		if out.ClearedMarkers > 0 {
			fmt.Fprintf(w, "cleared %d pending markers\n", out.ClearedMarkers)
		}
	}
	if runErr != nil {
		return runErr
	}
	if out.Run.Outcome != model.OutcomeSuccess {
		return errFailed
	}
	return nil
}
