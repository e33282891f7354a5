package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dusk-indust/wavecheck/internal/agent"
	"github.com/dusk-indust/wavecheck/internal/cost"
	"github.com/dusk-indust/wavecheck/internal/hybrid"
	"github.com/dusk-indust/wavecheck/internal/model"
	"github.com/dusk-indust/wavecheck/internal/threshold"
)

// Runner turns one agent descriptor into an AgentResult. Every agent-level
// failure is recovered into a FAIL result; Run never returns an error.
type Runner struct {
	invoker   agent.Invoker
	pipeline  *hybrid.Pipeline
	evaluator *threshold.Evaluator
	costs     cost.Model
	maxTokens int
	maxFile   int
	readFile  func(path string) ([]byte, error)
	logger    *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithPipeline enables hybrid agents. Without a pipeline, hybrid agents fail.
func WithPipeline(p *hybrid.Pipeline) RunnerOption {
	return func(r *Runner) {
		r.pipeline = p
	}
}

// WithMaxTokens bounds the response size of direct invocations.
func WithMaxTokens(n int) RunnerOption {
	return func(r *Runner) {
		r.maxTokens = n
	}
}

// WithFileReader replaces os.ReadFile for the files sent to direct agents.
func WithFileReader(fn func(path string) ([]byte, error)) RunnerOption {
	return func(r *Runner) {
		r.readFile = fn
	}
}

// WithMaxFileBytes caps how much of each file a direct prompt carries.
func WithMaxFileBytes(n int) RunnerOption {
	return func(r *Runner) {
		r.maxFile = n
	}
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner creates a Runner.
func NewRunner(invoker agent.Invoker, evaluator *threshold.Evaluator, costs cost.Model, opts ...RunnerOption) *Runner {
	r := &Runner{
		invoker:   invoker,
		evaluator: evaluator,
		costs:     costs,
		maxTokens: 4096,
		maxFile:   agent.DefaultMaxFileBytes,
		readFile:  os.ReadFile,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes desc on the run's files.
func (r *Runner) Run(ctx context.Context, desc agent.Descriptor, rc RunContext) model.AgentResult {
	start := time.Now()
	r.logger.Info("agent_started", "session", rc.SessionID, "agent", desc.ID, "wave", desc.Wave, "mode", desc.Mode)

	var res model.AgentResult
	if desc.Mode == agent.ModeHybrid {
		res = r.runHybrid(ctx, desc, rc, start)
	} else {
		res = r.runDirect(ctx, desc, rc, start)
	}

	if res.Error != "" {
		r.logger.Error("agent_failed",
			"session", rc.SessionID,
			"agent", desc.ID,
			"wave", desc.Wave,
			"error", res.Error,
			"elapsed_ms", res.Duration.Milliseconds(),
		)
	} else {
		r.logger.Info("agent_completed",
			"session", rc.SessionID,
			"agent", desc.ID,
			"wave", desc.Wave,
			"status", res.Status,
			"findings", res.Findings,
			"cost_usd", res.Cost,
			"reason", res.Reason,
			"elapsed_ms", res.Duration.Milliseconds(),
		)
	}
	return res
}

// Prompt renders the direct-path prompt for desc with the text of every
// input file.
func (r *Runner) Prompt(desc agent.Descriptor, rc RunContext) (string, error) {
	sources := agent.LoadSources(rc.Files, r.maxFile, r.readFile)
	for _, src := range sources {
		switch {
		case src.Err != "":
			r.logger.Warn("prompt_file_unreadable", "agent", desc.ID, "file", src.Path, "error", src.Err)
		case src.Truncated:
			r.logger.Warn("prompt_file_truncated", "agent", desc.ID, "file", src.Path, "max_bytes", r.maxFile)
		}
	}
	return agent.RenderPrompt(desc, agent.PromptData{
		SessionID: rc.SessionID,
		Files:     rc.Files,
		Sources:   sources,
	})
}

func (r *Runner) runDirect(ctx context.Context, desc agent.Descriptor, rc RunContext, start time.Time) model.AgentResult {
	prompt, err := r.Prompt(desc, rc)
	if err != nil {
		return model.FailedResult(string(desc.ID), desc.Wave, err, time.Since(start))
	}

	out, err := r.invoker.Invoke(ctx, desc, agent.InvocationContext{
		SessionID: rc.SessionID,
		Files:     rc.Files,
		Prompt:    prompt,
		Tier:      desc.Tier,
		MaxTokens: r.maxTokens,
	})
	if err != nil {
		var ie *agent.InvocationError
		if !errors.As(err, &ie) {
			err = &agent.InvocationError{Agent: desc.ID, Err: err}
		}
		return model.FailedResult(string(desc.ID), desc.Wave, err, time.Since(start))
	}
	return r.Complete(desc, prompt, out, time.Since(start))
}

// Complete parses a direct invocation's output and applies the agent's
// threshold. The batch path uses it for results downloaded after the fact.
func (r *Runner) Complete(desc agent.Descriptor, prompt string, out *agent.InvocationResult, elapsed time.Duration) model.AgentResult {
	id := string(desc.ID)
	spend := r.directCost(desc, prompt, out)

	report, err := agent.ParseReport(out.Output)
	if err != nil {
		res := model.FailedResult(id, desc.Wave, err, elapsed)
		res.Cost = spend
		return res
	}

	res := model.AgentResult{
		AgentID:  id,
		Wave:     desc.Wave,
		Findings: report.Total(),
		Counts:   report.Counts(),
		Score:    report.Score,
		Coverage: report.Coverage,
		Cost:     spend,
		Duration: elapsed,
		Items:    report.Located(),
	}
	passed, reason := r.evaluator.Evaluate(id, threshold.MetricsFor(res))
	res.Status = model.StatusFail
	if passed {
		res.Status = model.StatusPass
	}
	res.Reason = reason
	r.logger.Debug("threshold_check", "agent", id, "passed", passed, "reason", reason)
	return res
}

func (r *Runner) directCost(desc agent.Descriptor, prompt string, out *agent.InvocationResult) float64 {
	in, outTok := out.InputTokens, out.OutputTokens
	if in <= 0 {
		in = cost.EstimateTokens(prompt)
	}
	if outTok <= 0 {
		outTok = cost.EstimateTokens(out.Output)
	}
	return r.costs.Estimate(r.costs.Resolve(desc.Tier), in, outTok)
}

func (r *Runner) runHybrid(ctx context.Context, desc agent.Descriptor, rc RunContext, start time.Time) model.AgentResult {
	id := string(desc.ID)
	if r.pipeline == nil {
		return model.FailedResult(id, desc.Wave, fmt.Errorf("orchestrator: %s: hybrid pipeline not configured", id), time.Since(start))
	}

	hr, err := r.pipeline.Run(ctx, desc, rc.Files, rc.SessionID)
	if err != nil {
		return model.FailedResult(id, desc.Wave, err, time.Since(start))
	}

	res := model.AgentResult{
		AgentID:  id,
		Wave:     desc.Wave,
		Status:   hr.Status,
		Findings: hr.Confirmed,
		Counts:   hr.ConfirmedCounts(),
		Cost:     hr.TotalCost,
		Duration: time.Since(start),
		Hybrid:   hr,
		Items:    hr.ConfirmedFindings(),
	}
	// The hybrid status is authoritative; the rule's verdict is advisory.
	passed, reason := r.evaluator.Evaluate(id, threshold.MetricsFor(res))
	res.Reason = reason
	if passed != res.Passed() {
		r.logger.Info("threshold_check",
			"agent", id,
			"hybrid_status", hr.Status,
			"rule_passed", passed,
			"reason", reason,
		)
	}
	return res
}
