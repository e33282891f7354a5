package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/dusk-indust/wavecheck/internal/telemetry"
)

// ErrTimeout is matched by every TimeoutError.
var ErrTimeout = errors.New("batch: wait timed out")

// TimeoutError reports a batch that did not end within the maximum wait.
type TimeoutError struct {
	BatchID string
	Waited  time.Duration
	Last    ProcessingStatus
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("batch %s did not complete within %s (last status: %s)", e.BatchID, e.Waited.Round(time.Second), e.Last)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Backoff shapes the polling schedule.
type Backoff struct {
	// Base is the delay after the first poll.
	Base time.Duration `yaml:"pollInterval" json:"poll_interval"`
	// Factor multiplies the delay per attempt.
	Factor float64 `yaml:"growthFactor" json:"growth_factor"`
	// Max caps the delay before jitter.
	Max time.Duration `yaml:"maxInterval" json:"max_interval"`
	// Jitter randomizes each delay by up to this fraction either way.
	Jitter float64 `yaml:"jitter" json:"jitter"`
	// MaxWait bounds the whole wait.
	MaxWait time.Duration `yaml:"maxWait" json:"max_wait"`
}

// DefaultBackoff polls after 60s, growing 1.5x to at most 5m, for up to 1h.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:    60 * time.Second,
		Factor:  1.5,
		Max:     5 * time.Minute,
		Jitter:  0.1,
		MaxWait: time.Hour,
	}
}

// Validate rejects schedules that never advance or never end.
func (b Backoff) Validate() error {
	switch {
	case b.Base <= 0:
		return fmt.Errorf("batch: poll interval must be positive")
	case b.Factor < 1:
		return fmt.Errorf("batch: growth factor must be >= 1, got %g", b.Factor)
	case b.Max < b.Base:
		return fmt.Errorf("batch: max interval %s is below poll interval %s", b.Max, b.Base)
	case b.Jitter < 0 || b.Jitter > 1:
		return fmt.Errorf("batch: jitter must be within [0,1], got %g", b.Jitter)
	case b.MaxWait <= 0:
		return fmt.Errorf("batch: max wait must be positive")
	}
	return nil
}

// schedule returns a fresh delay sequence. The total wait is bounded by
// Wait against its own clock, not by the schedule.
func (b Backoff) schedule() *backoff.ExponentialBackOff {
	e := backoff.NewExponentialBackOff()
	e.InitialInterval = b.Base
	e.Multiplier = b.Factor
	e.MaxInterval = b.Max
	e.RandomizationFactor = b.Jitter
	e.Reset()
	return e
}

// Poller waits for batches to end.
type Poller struct {
	client  Client
	backoff Backoff
	logger  *slog.Logger
	metrics *telemetry.Metrics
	sleep   func(context.Context, time.Duration) error
	now     func() time.Time
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records each poll.
func WithMetrics(m *telemetry.Metrics) PollerOption {
	return func(p *Poller) {
		p.metrics = m
	}
}

// WithClock replaces time.Now and the context-aware sleep.
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) PollerOption {
	return func(p *Poller) {
		p.now = now
		p.sleep = sleep
	}
}

// NewPoller creates a Poller.
func NewPoller(client Client, backoff Backoff, opts ...PollerOption) (*Poller, error) {
	if err := backoff.Validate(); err != nil {
		return nil, err
	}
	p := &Poller{
		client:  client,
		backoff: backoff,
		logger:  slog.Default(),
		sleep:   sleepCtx,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Wait polls batchID until it ends. It returns a *TimeoutError once the
// next delay would exceed the maximum wait. Poll errors are returned as-is.
func (p *Poller) Wait(ctx context.Context, batchID string) (*Status, error) {
	start := p.now()
	delays := p.backoff.schedule()
	for attempt := 0; ; attempt++ {
		st, err := p.client.Poll(ctx, batchID)
		if err != nil {
			return nil, err
		}
		waited := p.now().Sub(start)
		p.metrics.RecordBatchPoll(ctx, string(st.ProcessingStatus))
		p.logger.Info("batch_polled",
			"batch_id", batchID,
			"attempt", attempt,
			"status", st.ProcessingStatus,
			"succeeded", st.RequestCounts.Succeeded,
			"errored", st.RequestCounts.Errored,
			"processing", st.RequestCounts.Processing,
			"elapsed_s", int(waited.Seconds()),
		)
		if st.Ended() {
			return st, nil
		}

		delay := delays.NextBackOff()
		if waited+delay > p.backoff.MaxWait {
			return nil, &TimeoutError{BatchID: batchID, Waited: waited, Last: st.ProcessingStatus}
		}
		if err := p.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
