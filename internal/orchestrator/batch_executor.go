package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dusk-indust/wavecheck/internal/agent"
	"github.com/dusk-indust/wavecheck/internal/batch"
	"github.com/dusk-indust/wavecheck/internal/llm"
	"github.com/dusk-indust/wavecheck/internal/model"
	"github.com/dusk-indust/wavecheck/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// Compile-time check.
var _ Executor = (*BatchExecutor)(nil)

// BatchExecutor submits the direct agents of a wave as one message batch and
// waits for it. Hybrid agents still run through the runner, concurrently
// with the batch. A batch that cannot be submitted or does not end in time
// aborts the run.
type BatchExecutor struct {
	runner    *Runner
	client    batch.Client
	poller    *batch.Poller
	models    llm.Models
	maxTokens int
	fanout    *FanOut
	tracer    trace.Tracer
	logger    *slog.Logger
}

// NewBatchExecutor creates a BatchExecutor.
func NewBatchExecutor(runner *Runner, client batch.Client, poller *batch.Poller, models llm.Models, onProgress func(ProgressEvent), logger *slog.Logger) *BatchExecutor {
	if models == nil {
		models = llm.DefaultModels()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchExecutor{
		runner:    runner,
		client:    client,
		poller:    poller,
		models:    models,
		maxTokens: 8000,
		fanout:    NewFanOut(onProgress),
		tracer:    telemetry.Tracer("wavecheck/orchestrator"),
		logger:    logger,
	}
}

// pendingRequest ties a submitted request to its agent.
type pendingRequest struct {
	desc   agent.Descriptor
	prompt string
}

// Execute runs the wave.
func (e *BatchExecutor) Execute(ctx context.Context, wave Wave, rc RunContext) ([]model.AgentResult, error) {
	results := make([]model.AgentResult, len(wave.Agents))

	var hybrids []agent.Descriptor
	hybridIdx := make([]int, 0, len(wave.Agents))
	pending := make(map[string]pendingRequest)
	order := make(map[agent.Role]int)
	var requests []batch.Request

	for i, desc := range wave.Agents {
		order[desc.ID] = i
		if desc.Mode == agent.ModeHybrid {
			hybrids = append(hybrids, desc)
			hybridIdx = append(hybridIdx, i)
			continue
		}
		prompt, err := e.runner.Prompt(desc, rc)
		if err != nil {
			e.finish(rc, results, i, model.FailedResult(string(desc.ID), desc.Wave, err, 0))
			continue
		}
		id := batch.NewCustomID(string(desc.ID))
		pending[id] = pendingRequest{desc: desc, prompt: prompt}
		requests = append(requests, batch.Request{
			CustomID: id,
			Params:   llm.UserPrompt(e.models.For(desc.Tier), prompt, e.maxTokens),
		})
	}

	done := make(chan []model.AgentResult, 1)
	go func() {
		run := func(ctx context.Context, desc agent.Descriptor) model.AgentResult {
			return tracedRun(ctx, e.tracer, desc, func(ctx context.Context) model.AgentResult {
				return e.runner.Run(ctx, desc, rc)
			})
		}
		done <- e.fanout.Run(ctx, wave.Number, hybrids, run, rc.OnComplete)
	}()

	batchErr := e.runBatch(ctx, wave.Number, requests, pending, order, results, rc)

	// Hybrid agents are always awaited so their results reach the audit log.
	for j, res := range <-done {
		results[hybridIdx[j]] = res
	}
	if batchErr != nil {
		return nil, batchErr
	}
	return results, nil
}

func (e *BatchExecutor) runBatch(ctx context.Context, wave int, requests []batch.Request, pending map[string]pendingRequest, order map[agent.Role]int, results []model.AgentResult, rc RunContext) error {
	if len(requests) == 0 {
		return nil
	}
	start := time.Now()

	st, err := e.client.Submit(ctx, requests)
	if err != nil {
		return err
	}
	e.logger.Info("batch_submitted", "session", rc.SessionID, "wave", wave, "batch_id", st.ID, "requests", len(requests))

	if _, err := e.poller.Wait(ctx, st.ID); err != nil {
		var te *batch.TimeoutError
		if errors.As(err, &te) {
			e.logger.Error("batch_timeout", "session", rc.SessionID, "wave", wave, "batch_id", st.ID, "waited", te.Waited)
		}
		return err
	}

	downloaded, err := e.client.DownloadResults(ctx, st.ID)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	for _, r := range downloaded {
		req, ok := pending[r.CustomID]
		if !ok {
			e.logger.Warn("batch_unknown_result", "batch_id", st.ID, "custom_id", r.CustomID)
			continue
		}
		delete(pending, r.CustomID)

		e.finish(rc, results, order[req.desc.ID], e.complete(req, r, elapsed))
	}
	for id, req := range pending {
		e.finish(rc, results, order[req.desc.ID], model.FailedResult(string(req.desc.ID), req.desc.Wave,
			fmt.Errorf("batch %s returned no result for %s", st.ID, id), elapsed))
	}
	return nil
}

func (e *BatchExecutor) finish(rc RunContext, results []model.AgentResult, i int, res model.AgentResult) {
	results[i] = res
	if res.Error != "" {
		e.logger.Error("agent_failed", "session", rc.SessionID, "agent", res.AgentID, "wave", res.Wave, "error", res.Error)
	} else {
		e.logger.Info("agent_completed",
			"session", rc.SessionID,
			"agent", res.AgentID,
			"wave", res.Wave,
			"status", res.Status,
			"findings", res.Findings,
			"cost_usd", res.Cost,
			"reason", res.Reason,
		)
	}
	rc.complete(res)
}

// complete converts one batch result. Results are billed at the batch
// discount.
func (e *BatchExecutor) complete(req pendingRequest, r batch.Result, elapsed time.Duration) model.AgentResult {
	msg, err := r.Message()
	if err != nil {
		return model.FailedResult(string(req.desc.ID), req.desc.Wave,
			&agent.InvocationError{Agent: req.desc.ID, Err: err}, elapsed)
	}
	res := e.runner.Complete(req.desc, req.prompt, &agent.InvocationResult{
		Output:       msg.Text(),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
		StopReason:   msg.StopReason,
	}, elapsed)
	res.Cost *= batch.Discount
	return res
}
