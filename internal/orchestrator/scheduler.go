package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dusk-indust/wavecheck/internal/audit"
	"github.com/dusk-indust/wavecheck/internal/model"
	"github.com/dusk-indust/wavecheck/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// NewSessionID returns a fresh run identifier.
func NewSessionID() string {
	return "verify-" + uuid.NewString()
}

// Scheduler drives the wave state machine:
//
//	pending -> wave-running -> wave-evaluated -> (pass: next wave | fail: done-failure)
//
// and done-success after the last wave passes.
type Scheduler struct {
	executor   Executor
	sink       audit.Sink
	metrics    *telemetry.Metrics
	tracer     trace.Tracer
	logger     *slog.Logger
	onProgress func(ProgressEvent)
	now        func() time.Time

	mu    sync.Mutex
	state State
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithAuditSink sets where agent records are appended.
func WithAuditSink(sink audit.Sink) Option {
	return func(s *Scheduler) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithMetrics records run metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithProgress registers a callback for run-level events. It is called
// synchronously.
func WithProgress(fn func(ProgressEvent)) Option {
	return func(s *Scheduler) {
		s.onProgress = fn
	}
}

// WithClock overrides time.Now for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// NewScheduler creates a Scheduler that runs each wave with executor.
func NewScheduler(executor Executor, opts ...Option) *Scheduler {
	s := &Scheduler{
		executor: executor,
		sink:     audit.Discard,
		tracer:   telemetry.Tracer("wavecheck/orchestrator"),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state of the most recent run.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) transition(to State, wave int, msg string) {
	s.mu.Lock()
	s.state = to
	s.mu.Unlock()
	if s.onProgress != nil {
		s.onProgress(ProgressEvent{State: to, Wave: wave, Message: msg})
	}
}

// Run executes waves in order under a fresh session id.
func (s *Scheduler) Run(ctx context.Context, waves []Wave, files []string) (*model.RunResult, error) {
	return s.RunSession(ctx, NewSessionID(), waves, files)
}

// RunSession executes waves in order. A wave that does not pass ends the
// run with FAILURE and later waves are never started. The partial result is
// returned as-is. Errors are reserved for invalid waves, cancellation and
// executor failures; the result is still returned with FAILURE.
func (s *Scheduler) RunSession(ctx context.Context, sessionID string, waves []Wave, files []string) (*model.RunResult, error) {
	if err := ValidateWaves(waves); err != nil {
		return nil, err
	}

	start := s.now()
	result := &model.RunResult{
		SessionID: sessionID,
		Outcome:   model.OutcomeFailure,
		StartedAt: start,
		Files:     files,
	}
	defer func() { result.Duration = s.now().Sub(start) }()

	ctx, span := s.tracer.Start(ctx, "wavecheck.run",
		trace.WithAttributes(
			attribute.String("session", sessionID),
			attribute.Int("waves", len(waves)),
			attribute.Int("files", len(files)),
		),
	)
	defer span.End()

	s.transition(StatePending, 0, "")
	rc := RunContext{
		SessionID:  sessionID,
		Files:      files,
		OnComplete: func(r model.AgentResult) { s.recordAgent(ctx, sessionID, r) },
	}

	for _, wave := range waves {
		if err := ctx.Err(); err != nil {
			s.transition(StateDoneFailure, wave.Number, "cancelled")
			span.SetStatus(codes.Error, err.Error())
			return result, fmt.Errorf("orchestrator: wave %d not started: %w", wave.Number, err)
		}

		wr, err := s.runWave(ctx, wave, rc)
		if err != nil {
			s.transition(StateDoneFailure, wave.Number, err.Error())
			span.SetStatus(codes.Error, err.Error())
			return result, err
		}
		result.Waves = append(result.Waves, wr)

		if !wr.AllPassed {
			s.transition(StateDoneFailure, wave.Number, fmt.Sprintf("%d agent(s) failed", len(wr.Failed())))
			span.SetAttributes(attribute.String("outcome", string(model.OutcomeFailure)))
			s.logger.Warn("run_gated",
				"session", sessionID,
				"wave", wave.Number,
				"failed", agentIDs(wr.Failed()),
				"skipped_waves", len(waves)-len(result.Waves),
			)
			return result, nil
		}
	}

	result.Outcome = model.OutcomeSuccess
	s.transition(StateDoneSuccess, waves[len(waves)-1].Number, "")
	span.SetAttributes(attribute.String("outcome", string(model.OutcomeSuccess)))
	return result, nil
}

func (s *Scheduler) runWave(ctx context.Context, wave Wave, rc RunContext) (model.WaveResult, error) {
	ctx, span := s.tracer.Start(ctx, "wavecheck.wave",
		trace.WithAttributes(attribute.Int("wave", wave.Number)),
	)
	defer span.End()

	s.transition(StateWaveRunning, wave.Number, fmt.Sprintf("%d agent(s)", len(wave.Agents)))
	s.logger.Info("wave_started", "session", rc.SessionID, "wave", wave.Number, "agents", len(wave.Agents))

	start := s.now()
	agents, err := s.executor.Execute(ctx, wave, rc)
	if err != nil {
		s.logger.Error("wave_aborted", "session", rc.SessionID, "wave", wave.Number, "error", err)
		span.SetStatus(codes.Error, err.Error())
		return model.WaveResult{}, fmt.Errorf("orchestrator: wave %d: %w", wave.Number, err)
	}

	wr := model.NewWaveResult(wave.Number, agents, s.now().Sub(start))
	s.metrics.RecordWave(ctx, wave.Number, wr.AllPassed)
	span.SetAttributes(attribute.Bool("all_passed", wr.AllPassed))

	verdict := "passed"
	if !wr.AllPassed {
		verdict = "failed"
	}
	s.transition(StateWaveEvaluated, wave.Number, verdict)
	s.logger.Info("wave_completed",
		"session", rc.SessionID,
		"wave", wave.Number,
		"all_passed", wr.AllPassed,
		"cost_usd", wr.Cost(),
		"elapsed_ms", wr.Duration.Milliseconds(),
	)
	return wr, nil
}

// recordAgent appends r to the audit sink as soon as the agent completes.
// Sink failures are logged and never change the agent's verdict.
func (s *Scheduler) recordAgent(ctx context.Context, sessionID string, r model.AgentResult) {
	s.metrics.RecordAgent(ctx, r.AgentID, r.Wave, string(r.Status), r.Duration, r.Cost)
	rec := audit.FromAgentResult(sessionID, r, s.now())
	if err := s.sink.Append(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("audit_append_failed", "session", sessionID, "agent", r.AgentID, "error", err)
	}
}

func agentIDs(results []model.AgentResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.AgentID
	}
	return ids
}
