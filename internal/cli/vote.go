package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/wavecheck/internal/agent"
	"github.com/dusk-indust/wavecheck/internal/model"
)

var voteCmd = &cobra.Command{
	Use:   "vote",
	Short: "Classify the severity of one finding by majority vote",
	Long: `Sample the severity of a finding several times and report the majority
decision with its confidence. The exit code is 1 when the confidence is below
the minimum.

Example:
  wavecheck vote --file app/db.py --lines 40:52 --finding "SQL built from user input"`,
	RunE: runVote,
}

func init() {
	voteCmd.Flags().String("agent", string(agent.RoleSecurity), "agent whose perspective the vote takes")
	voteCmd.Flags().String("file", "", "file containing the finding")
	voteCmd.Flags().String("lines", "", "line range START:END, 1-based and inclusive")
	voteCmd.Flags().String("finding", "", "description of the finding")
	voteCmd.Flags().Int("samples", 0, "number of samples (default from config)")
	voteCmd.Flags().Float64("min-confidence", 0, "minimum confidence to report (default from config)")
	_ = voteCmd.MarkFlagRequired("file")
	_ = voteCmd.MarkFlagRequired("finding")
}

func runVote(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	flags := cmd.Flags()
	role, _ := flags.GetString("agent")
	file, _ := flags.GetString("file")
	lines, _ := flags.GetString("lines")
	finding, _ := flags.GetString("finding")
	n, _ := flags.GetInt("samples")
	minConf, _ := flags.GetFloat64("min-confidence")

	start, end, err := parseLines(lines)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	code, start, end := excerpt(string(data), start, end)

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if n <= 0 {
		n = a.cfg.DeepDive.Voting.Samples
	}
	if minConf <= 0 {
		minConf = a.cfg.DeepDive.Voting.MinConfidence
	}

	prompt, err := agent.RenderSeverityVote(agent.SectionData{
		Agent:     agent.Role(role),
		File:      file,
		StartLine: start,
		EndLine:   end,
		Reason:    finding,
		Code:      code,
	})
	if err != nil {
		return err
	}
	ok, res, err := a.voter.VoteWithThreshold(ctx, prompt, n, minConf)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "decision:   %s\n", res.Decision)
	fmt.Fprintf(w, "confidence: %.2f (minimum %.2f)\n", res.Confidence, minConf)
	var tally []string
	for _, sev := range model.Precedence {
		if c := res.Votes[sev]; c > 0 {
			tally = append(tally, fmt.Sprintf("%s=%d", sev, c))
		}
	}
	fmt.Fprintf(w, "votes:      %s\n", strings.Join(tally, " "))
	if res.Unparseable > 0 {
		fmt.Fprintf(w, "unparseable samples: %d\n", res.Unparseable)
	}
	if !ok {
		return errFailed
	}
	return nil
}

// parseLines parses START:END. An empty range selects the whole file.
func parseLines(s string) (start, end int, err error) {
	if s == "" {
		return 0, 0, nil
	}
	if _, err := fmt.Sscanf(s, "%d:%d", &start, &end); err != nil {
		return 0, 0, fmt.Errorf("--lines: want START:END, got %q", s)
	}
	if start < 1 || end < start {
		return 0, 0, errors.New("--lines: need 1 <= START <= END")
	}
	return start, end, nil
}

// excerpt returns lines start..end of src, clamped to the file. Zero
// bounds select every line.
func excerpt(src string, start, end int) (string, int, int) {
	all := strings.Split(strings.TrimRight(src, "\n"), "\n")
	if start == 0 {
		start, end = 1, len(all)
	}
	if end > len(all) {
		end = len(all)
	}
	if start > end {
		return "", start, end
	}
	return strings.Join(all[start-1:end], "\n"), start, end
}
