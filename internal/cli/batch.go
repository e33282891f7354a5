package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/wavecheck/internal/agent"
	"github.com/dusk-indust/wavecheck/internal/batch"
	"github.com/dusk-indust/wavecheck/internal/llm"
	"github.com/dusk-indust/wavecheck/internal/orchestrator"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Work with message batches directly",
	Long: `Submit the direct agents of one wave as a message batch, poll it and
read its results. Batches are billed at half price but may take up to a day;
'wavecheck run --mode batch' does all three steps per wave.`,
}

var batchSubmitCmd = &cobra.Command{
	Use:   "submit [files...]",
	Short: "Submit the direct agents of a wave as one batch",
	RunE:  runBatchSubmit,
}

var batchPollCmd = &cobra.Command{
	Use:   "poll BATCH_ID",
	Short: "Print the status of a batch",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatchPoll,
}

var batchResultsCmd = &cobra.Command{
	Use:   "results BATCH_ID",
	Short: "Download and evaluate the results of an ended batch",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatchResults,
}

func init() {
	addInputFlags(batchSubmitCmd)
	batchSubmitCmd.Flags().Int("wave", 1, "wave whose direct agents are submitted")
	batchPollCmd.Flags().Bool("wait", false, "poll with backoff until the batch ends")

	batchCmd.AddCommand(batchSubmitCmd, batchPollCmd, batchResultsCmd)
}

func runBatchSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	in, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	waveNum, _ := cmd.Flags().GetInt("wave")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var wave *orchestrator.Wave
	for i := range a.waves {
		if a.waves[i].Number == waveNum {
			wave = &a.waves[i]
		}
	}
	if wave == nil {
		return fmt.Errorf("no wave %d configured", waveNum)
	}

	client, err := a.batchClient()
	if err != nil {
		return err
	}
	sched, err := a.scheduler(modeConcurrent, nil)
	if err != nil {
		return err
	}
	svc, err := a.verifier(ctx, sched)
	if err != nil {
		return err
	}
	files, _, err := svc.Files(in)
	if err != nil {
		return err
	}

	rc := orchestrator.RunContext{SessionID: orchestrator.NewSessionID(), Files: files}
	models := a.cfg.Models()
	var requests []batch.Request
	for _, desc := range wave.Agents {
		if desc.Mode != agent.ModeDirect {
			continue
		}
		prompt, err := a.runner.Prompt(desc, rc)
		if err != nil {
			return err
		}
		requests = append(requests, batch.Request{
			CustomID: batch.NewCustomID(string(desc.ID)),
			Params:   llm.UserPrompt(models.For(desc.Tier), prompt, a.cfg.API.MaxTokens),
		})
	}
	if len(requests) == 0 {
		return fmt.Errorf("wave %d has no direct agents", waveNum)
	}

	st, err := client.Submit(ctx, requests)
	if err != nil {
		return err
	}
	a.logger.Info("batch_submitted", "session", rc.SessionID, "wave", waveNum, "batch_id", st.ID, "requests", len(requests))

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, st.ID)
	for _, r := range requests {
		fmt.Fprintf(w, "  %s\n", r.CustomID)
	}
	return nil
}

func runBatchPoll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	wait, _ := cmd.Flags().GetBool("wait")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	client, err := a.batchClient()
	if err != nil {
		return err
	}
	var st *batch.Status
	if wait {
		poller, err := a.poller(client)
		if err != nil {
			return err
		}
		st, err = poller.Wait(ctx, args[0])
		if err != nil {
			return err
		}
	} else {
		st, err = client.Poll(ctx, args[0])
		if err != nil {
			return err
		}
	}

	c := st.RequestCounts
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s  %s\n", st.ID, st.ProcessingStatus)
	fmt.Fprintf(w, "  processing=%d succeeded=%d errored=%d canceled=%d expired=%d\n",
		c.Processing, c.Succeeded, c.Errored, c.Canceled, c.Expired)
	fmt.Fprintf(w, "  created %s, expires %s\n", st.CreatedAt.Format(time.RFC3339), st.ExpiresAt.Format(time.RFC3339))
	return nil
}

func runBatchResults(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	client, err := a.batchClient()
	if err != nil {
		return err
	}
	results, err := client.DownloadResults(ctx, args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	failed := false
	for _, r := range results {
		id := batch.AgentFromCustomID(r.CustomID)
		desc, ok := a.cfg.Agent(id)
		if !ok {
			fmt.Fprintf(w, "%-28s  %s (agent not configured)\n", r.CustomID, r.Result.Type)
			continue
		}
		msg, err := r.Message()
		if err != nil {
			failed = true
			fmt.Fprintf(w, "%-28s  FAIL  %v\n", id, err)
			continue
		}
		res := a.runner.Complete(desc, "", &agent.InvocationResult{
			Output:       msg.Text(),
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
			StopReason:   msg.StopReason,
		}, 0)
		if !res.Passed() {
			failed = true
		}
		reason := res.Reason
		if res.Error != "" {
			reason = res.Error
		}
		fmt.Fprintf(w, "%-28s  %-4s  findings=%d  $%.4f  %s\n", id, res.Status, res.Findings, res.Cost*batch.Discount, reason)
	}
	if failed {
		return errFailed
	}
	return nil
}
