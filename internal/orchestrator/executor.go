package orchestrator

import (
	"context"

	"github.com/dusk-indust/wavecheck/internal/agent"
	"github.com/dusk-indust/wavecheck/internal/model"
	"github.com/dusk-indust/wavecheck/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Executor runs every agent of one wave and returns their results in wave
// order. Agent failures are results; a returned error is an operation-level
// failure that aborts the run.
type Executor interface {
	Execute(ctx context.Context, wave Wave, rc RunContext) ([]model.AgentResult, error)
}

// Compile-time check.
var _ Executor = (*ConcurrentExecutor)(nil)

// ConcurrentExecutor invokes each agent as its own task.
type ConcurrentExecutor struct {
	runner *Runner
	fanout *FanOut
	tracer trace.Tracer
}

// NewConcurrentExecutor creates a ConcurrentExecutor. onProgress may be nil.
func NewConcurrentExecutor(runner *Runner, onProgress func(ProgressEvent)) *ConcurrentExecutor {
	return &ConcurrentExecutor{
		runner: runner,
		fanout: NewFanOut(onProgress),
		tracer: telemetry.Tracer("wavecheck/orchestrator"),
	}
}

// Execute runs the wave's agents concurrently and waits for all of them.
func (e *ConcurrentExecutor) Execute(ctx context.Context, wave Wave, rc RunContext) ([]model.AgentResult, error) {
	run := func(ctx context.Context, desc agent.Descriptor) model.AgentResult {
		return tracedRun(ctx, e.tracer, desc, func(ctx context.Context) model.AgentResult {
			return e.runner.Run(ctx, desc, rc)
		})
	}
	return e.fanout.Run(ctx, wave.Number, wave.Agents, run, rc.OnComplete), nil
}

// tracedRun wraps one agent run in a span.
func tracedRun(ctx context.Context, tracer trace.Tracer, desc agent.Descriptor, fn func(context.Context) model.AgentResult) model.AgentResult {
	ctx, span := tracer.Start(ctx, "wavecheck.agent",
		trace.WithAttributes(
			attribute.String("agent", string(desc.ID)),
			attribute.Int("wave", desc.Wave),
			attribute.String("mode", string(desc.Mode)),
		),
	)
	defer span.End()

	res := fn(ctx)
	span.SetAttributes(
		attribute.String("status", string(res.Status)),
		attribute.Int("findings", res.Findings),
		attribute.Float64("cost_usd", res.Cost),
	)
	if res.Error != "" {
		span.SetStatus(codes.Error, res.Error)
	}
	return res
}
