package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the verification instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	agentDuration  metric.Float64Histogram
	agentResults   metric.Int64Counter
	costUSD        metric.Float64Counter
	deepDives      metric.Int64Counter
	voteConfidence metric.Float64Histogram
	waves          metric.Int64Counter
	batchPolls     metric.Int64Counter
}

// NewMetrics creates instruments on the global meter provider.
func NewMetrics() *Metrics {
	return NewMetricsFrom(Meter("wavecheck"))
}

// NewMetricsFrom creates instruments on meter. Instrument creation errors
// leave that instrument unset; recording on it is skipped.
func NewMetricsFrom(meter metric.Meter) *Metrics {
	m := &Metrics{}
	m.agentDuration, _ = meter.Float64Histogram("wavecheck.agent.duration",
		metric.WithDescription("Wall time of one agent run (ms)"),
		metric.WithUnit("ms"),
	)
	m.agentResults, _ = meter.Int64Counter("wavecheck.agent.results",
		metric.WithDescription("Agent verdicts by status"),
	)
	m.costUSD, _ = meter.Float64Counter("wavecheck.cost",
		metric.WithDescription("Estimated spend"),
		metric.WithUnit("USD"),
	)
	m.deepDives, _ = meter.Int64Counter("wavecheck.deep_dive.count",
		metric.WithDescription("Deep dives by outcome"),
	)
	m.voteConfidence, _ = meter.Float64Histogram("wavecheck.vote.confidence",
		metric.WithDescription("Majority share of consistency votes"),
	)
	m.waves, _ = meter.Int64Counter("wavecheck.wave.count",
		metric.WithDescription("Completed waves by gate outcome"),
	)
	m.batchPolls, _ = meter.Int64Counter("wavecheck.batch.polls",
		metric.WithDescription("Batch status polls by processing status"),
	)
	return m
}

// RecordAgent records one agent verdict.
func (m *Metrics) RecordAgent(ctx context.Context, agentID string, wave int, status string, elapsed time.Duration, cost float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("agent", agentID),
		attribute.Int("wave", wave),
		attribute.String("status", status),
	)
	if m.agentDuration != nil {
		m.agentDuration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	}
	if m.agentResults != nil {
		m.agentResults.Add(ctx, 1, attrs)
	}
	if m.costUSD != nil && cost > 0 {
		m.costUSD.Add(ctx, cost, metric.WithAttributes(attribute.String("agent", agentID)))
	}
}

// RecordDeepDive records one deep-dive outcome.
func (m *Metrics) RecordDeepDive(ctx context.Context, agentID string, confirmed, voted bool) {
	if m == nil || m.deepDives == nil {
		return
	}
	m.deepDives.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent", agentID),
		attribute.Bool("confirmed", confirmed),
		attribute.Bool("voted", voted),
	))
}

// RecordVote records a vote's confidence.
func (m *Metrics) RecordVote(ctx context.Context, confidence float64) {
	if m == nil || m.voteConfidence == nil {
		return
	}
	m.voteConfidence.Record(ctx, confidence)
}

// RecordWave records a completed wave.
func (m *Metrics) RecordWave(ctx context.Context, wave int, passed bool) {
	if m == nil || m.waves == nil {
		return
	}
	m.waves.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("wave", wave),
		attribute.Bool("passed", passed),
	))
}

// RecordBatchPoll records one batch status poll.
func (m *Metrics) RecordBatchPoll(ctx context.Context, status string) {
	if m == nil || m.batchPolls == nil {
		return
	}
	m.batchPolls.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
