// Package verify is the application service behind the CLI and the MCP
// server: it resolves the files to verify, runs the waves, and persists the
// outcome to the findings graph, the report directory and the pending
// markers.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dusk-indust/wavecheck/internal/findings"
	"github.com/dusk-indust/wavecheck/internal/model"
	"github.com/dusk-indust/wavecheck/internal/orchestrator"
	"github.com/dusk-indust/wavecheck/internal/pending"
	"github.com/dusk-indust/wavecheck/internal/report"
)

// ErrNoFiles is returned when input resolves to no files.
var ErrNoFiles = errors.New("verify: no files to verify")

// Scheduler runs waves; *orchestrator.Scheduler implements it.
type Scheduler interface {
	Run(ctx context.Context, waves []orchestrator.Wave, files []string) (*model.RunResult, error)
}

// Estimator prices waves; *orchestrator.Runner implements it.
type Estimator interface {
	Estimate(ctx context.Context, waves []orchestrator.Wave, files []string) (*orchestrator.Estimate, error)
}

// Service runs verifications for one project.
type Service struct {
	scheduler Scheduler
	estimator Estimator
	waves     []orchestrator.Wave
	root      string
	store     findings.Store
	reports   *report.FileSink
	markers   *pending.Markers
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithEstimator enables Estimate.
func WithEstimator(e Estimator) Option {
	return func(s *Service) {
		s.estimator = e
	}
}

// WithRoot sets the project root used to resolve diff paths.
func WithRoot(dir string) Option {
	return func(s *Service) {
		s.root = dir
	}
}

// WithFindings records every run in store.
func WithFindings(store findings.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithReports writes every run's report through sink.
func WithReports(sink *report.FileSink) Option {
	return func(s *Service) {
		s.reports = sink
	}
}

// WithMarkers enables pending-marker input and clearing.
func WithMarkers(m *pending.Markers) Option {
	return func(s *Service) {
		s.markers = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now for report stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a Service that runs waves through scheduler.
func New(scheduler Scheduler, waves []orchestrator.Wave, opts ...Option) *Service {
	s := &Service{
		scheduler: scheduler,
		waves:     waves,
		root:      ".",
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Waves returns the configured waves.
func (s *Service) Waves() []orchestrator.Wave {
	return s.waves
}

// Findings returns the findings store, or nil.
func (s *Service) Findings() findings.Store {
	return s.store
}

// Input selects the files of a verification. Explicit files win over a
// diff; with neither, the pending markers are used.
type Input struct {
	Files []string
	// Diff is unified diff text; the files it adds or modifies are verified.
	Diff string
	// Extensions filters the resolved files; empty keeps all.
	Extensions []string
}

// Files resolves in. fromPending reports whether the files came from the
// pending markers.
func (s *Service) Files(in Input) (files []string, fromPending bool, err error) {
	switch {
	case len(in.Files) > 0:
		files = in.Files
	case strings.TrimSpace(in.Diff) != "":
		changed, err := pending.FromDiff(strings.NewReader(in.Diff))
		if err != nil {
			return nil, false, err
		}
		for _, c := range changed {
			p := filepath.Join(s.root, c)
			if _, err := os.Stat(p); err == nil {
				files = append(files, p)
			}
		}
	case s.markers != nil:
		files, err = s.markers.Files()
		if err != nil {
			return nil, false, err
		}
		fromPending = true
	}
	files = pending.FilterExt(files, in.Extensions...)
	if len(files) == 0 {
		return nil, fromPending, ErrNoFiles
	}
	return files, fromPending, nil
}

// Outcome is a finished verification.
type Outcome struct {
	Run            *model.RunResult
	Report         *report.Report
	Paths          *report.Paths
	ClearedMarkers int
	// NothingPending is set when the input came from the pending markers
	// and none were left. Run and Report are nil.
	NothingPending bool
}

// Verify runs the waves over the files selected by in. A gated run is not
// an error, and neither is an empty pending-marker set. When the scheduler
// fails after starting, the partial outcome is returned with the error.
// Persistence failures are logged only.
func (s *Service) Verify(ctx context.Context, in Input) (*Outcome, error) {
	files, fromPending, err := s.Files(in)
	if errors.Is(err, ErrNoFiles) && fromPending {
		s.logger.Info("no_pending_files")
		return &Outcome{NothingPending: true}, nil
	}
	if err != nil {
		return nil, err
	}

	run, runErr := s.scheduler.Run(ctx, s.waves, files)
	if run == nil {
		return nil, runErr
	}
	out := &Outcome{Run: run, Report: report.Build(run, s.now())}
	s.persist(context.WithoutCancel(ctx), out)
	if runErr != nil {
		return out, runErr
	}

	if run.Outcome == model.OutcomeSuccess && fromPending {
		n, err := s.markers.Clear()
		if err != nil {
			return out, fmt.Errorf("verify: %w", err)
		}
		out.ClearedMarkers = n
		s.logger.Info("pending_markers_cleared", "session", run.SessionID, "count", n)
	}
	return out, nil
}

func (s *Service) persist(ctx context.Context, out *Outcome) {
	if s.store != nil {
		if err := findings.Record(ctx, s.store, out.Run); err != nil {
			s.logger.Error("findings_record_failed", "session", out.Run.SessionID, "error", err)
		}
	}
	if s.reports != nil {
		paths, err := s.reports.Write(out.Report)
		if err != nil {
			s.logger.Error("report_write_failed", "session", out.Run.SessionID, "error", err)
			return
		}
		out.Paths = &paths
	}
}

// Estimate prices a verification of the files selected by in.
func (s *Service) Estimate(ctx context.Context, in Input) (*orchestrator.Estimate, error) {
	if s.estimator == nil {
		return nil, errors.New("verify: no estimator configured")
	}
	files, _, err := s.Files(in)
	if err != nil {
		return nil, err
	}
	return s.estimator.Estimate(ctx, s.waves, files)
}
