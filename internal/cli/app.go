package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dusk-indust/wavecheck/internal/agent"
	"github.com/dusk-indust/wavecheck/internal/audit"
	"github.com/dusk-indust/wavecheck/internal/batch"
	"github.com/dusk-indust/wavecheck/internal/config"
	"github.com/dusk-indust/wavecheck/internal/findings"
	"github.com/dusk-indust/wavecheck/internal/hybrid"
	"github.com/dusk-indust/wavecheck/internal/llm"
	"github.com/dusk-indust/wavecheck/internal/orchestrator"
	"github.com/dusk-indust/wavecheck/internal/pending"
	"github.com/dusk-indust/wavecheck/internal/report"
	"github.com/dusk-indust/wavecheck/internal/scan"
	"github.com/dusk-indust/wavecheck/internal/telemetry"
	"github.com/dusk-indust/wavecheck/internal/threshold"
	"github.com/dusk-indust/wavecheck/internal/verify"
	"github.com/dusk-indust/wavecheck/internal/vote"
)

// app is the object graph shared by the subcommands. Everything is built
// from one loaded config.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	client   *llm.Client // nil without an API key
	runner   *orchestrator.Runner
	voter    *vote.Voter
	waves    []orchestrator.Wave
	audit    *audit.JSONLSink
	store    findings.Store
	shutdown telemetry.Shutdown

	progress     *orchestrator.ProgressReporter
	progressDone chan struct{}
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(flagDir)
	if err != nil {
		return nil, err
	}
	levelName := cfg.Log.Level
	if flagLogLevel != "" {
		levelName = flagLogLevel
	}
	level, err := config.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName, version, cfg.Telemetry.Insecure)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  telemetry.NewMetrics(),
		shutdown: shutdown,
	}
	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	cfg := a.cfg
	costs, err := cfg.CostModel()
	if err != nil {
		return err
	}
	models := cfg.Models()

	// Without a key the object graph is still complete so that estimates
	// and local queries work; model calls fail with ErrNoAPIKey.
	var invoker agent.Invoker = agent.InvokerFunc(func(context.Context, agent.Descriptor, agent.InvocationContext) (*agent.InvocationResult, error) {
		return nil, llm.ErrNoAPIKey
	})
	var sampler vote.Sampler = vote.SamplerFunc(func(context.Context, string) (string, error) {
		return "", llm.ErrNoAPIKey
	})
	clientOpts := []llm.ClientOption{llm.WithMaxRetries(cfg.API.MaxRetries)}
	if cfg.API.Timeout > 0 {
		clientOpts = append(clientOpts, llm.WithTimeout(cfg.API.Timeout))
	}
	if cfg.API.BaseURL != "" {
		clientOpts = append(clientOpts, llm.WithBaseURL(cfg.API.BaseURL))
	}
	client, err := llm.NewClient(cfg.API.Key, clientOpts...)
	switch {
	case err == nil:
		a.client = client
		invoker = llm.NewInvoker(client, models)
		sampler = llm.NewSampler(client, models,
			cfg.DeepDive.Voting.Tier,
			cfg.DeepDive.Voting.Temperature,
			cfg.DeepDive.Voting.OutputTokens,
		)
	case errors.Is(err, llm.ErrNoAPIKey):
		a.logger.Debug("api_key_missing")
	default:
		return err
	}

	a.voter = vote.New(sampler, vote.WithLogger(a.logger))

	cat, err := cfg.Catalogue()
	if err != nil {
		return err
	}
	scanner := scan.NewScanner(cat, costs,
		scan.WithStructureAnalyzer(cfg.StructureAnalyzer()),
		scan.WithOutputTokensPerFlag(cfg.DeepDive.ScanOutputTokensPerFlag),
		scan.WithLogger(a.logger),
	)
	pipeline, err := hybrid.New(scanner, invoker, costs, cfg.HybridConfig(),
		hybrid.WithVoter(a.voter),
		hybrid.WithMetrics(a.metrics),
		hybrid.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}
	evaluator, err := threshold.NewEvaluator(cfg.ThresholdTable())
	if err != nil {
		return err
	}
	a.runner = orchestrator.NewRunner(invoker, evaluator, costs,
		orchestrator.WithPipeline(pipeline),
		orchestrator.WithMaxTokens(cfg.API.MaxTokens),
		orchestrator.WithMaxFileBytes(cfg.API.MaxFileBytes),
		orchestrator.WithRunnerLogger(a.logger),
	)

	reg, err := cfg.Registry()
	if err != nil {
		return err
	}
	a.waves = orchestrator.WavesFromRegistry(reg)

	a.audit, err = audit.NewJSONLSink(cfg.Resolve(cfg.Paths.Audit))
	return err
}

// openFindings opens the findings store on first use.
func (a *app) openFindings(ctx context.Context) (findings.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := findings.Open(ctx, a.cfg.Resolve(a.cfg.Paths.Findings))
	if err != nil {
		return nil, err
	}
	if !findings.Persistent {
		a.logger.Warn("findings_not_persistent", "reason", "built without cgo")
	}
	a.store = s
	return s, nil
}

func (a *app) batchClient() (*batch.APIClient, error) {
	if a.client == nil {
		return nil, llm.ErrNoAPIKey
	}
	return batch.NewAPIClient(a.client), nil
}

func (a *app) poller(client batch.Client) (*batch.Poller, error) {
	return batch.NewPoller(client, a.cfg.Batch,
		batch.WithLogger(a.logger),
		batch.WithMetrics(a.metrics),
	)
}

// scheduler builds a scheduler whose executor matches mode. Progress lines
// go to progress when it is non-nil.
func (a *app) scheduler(mode string, progress io.Writer) (*orchestrator.Scheduler, error) {
	onProgress := a.printProgress(progress)

	var exec orchestrator.Executor
	switch mode {
	case modeConcurrent:
		exec = orchestrator.NewConcurrentExecutor(a.runner, onProgress)
	case modeBatch:
		client, err := a.batchClient()
		if err != nil {
			return nil, err
		}
		poller, err := a.poller(client)
		if err != nil {
			return nil, err
		}
		exec = orchestrator.NewBatchExecutor(a.runner, client, poller, a.cfg.Models(), onProgress, a.logger)
	default:
		return nil, fmt.Errorf("unknown mode %q (want %s or %s)", mode, modeConcurrent, modeBatch)
	}

	return orchestrator.NewScheduler(exec,
		orchestrator.WithAuditSink(a.audit),
		orchestrator.WithMetrics(a.metrics),
		orchestrator.WithLogger(a.logger),
		orchestrator.WithProgress(onProgress),
	), nil
}

// verifier builds the verification service over sched.
func (a *app) verifier(ctx context.Context, sched verify.Scheduler) (*verify.Service, error) {
	store, err := a.openFindings(ctx)
	if err != nil {
		return nil, err
	}
	return verify.New(sched, a.waves,
		verify.WithEstimator(a.runner),
		verify.WithRoot(a.cfg.Dir),
		verify.WithFindings(store),
		verify.WithReports(report.NewFileSink(a.cfg.Resolve(a.cfg.Paths.Reports))),
		verify.WithMarkers(a.markers()),
		verify.WithLogger(a.logger),
	), nil
}

func (a *app) markers() *pending.Markers {
	return pending.New(a.cfg.Dir, a.cfg.Paths.Pending)
}

// Close drains progress, flushes telemetry and closes the findings store.
func (a *app) Close() {
	if a.progress != nil {
		a.progress.Close()
		<-a.progressDone
		if n := a.progress.Dropped(); n > 0 {
			a.logger.Debug("progress_events_dropped", "count", n)
		}
		a.progress = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("findings_close_failed", "error", err)
		}
	}
	if a.shutdown != nil {
		if err := a.shutdown(context.Background()); err != nil {
			a.logger.Warn("telemetry_shutdown_failed", "error", err)
		}
	}
}

// printProgress prints progress lines to w from a single goroutine. Agents
// never block on the terminal; events are dropped when the buffer is full.
func (a *app) printProgress(w io.Writer) func(orchestrator.ProgressEvent) {
	if w == nil {
		return nil
	}
	if a.progress == nil {
		a.progress = orchestrator.NewProgressReporter(0)
		a.progressDone = make(chan struct{})
		go func(events <-chan orchestrator.ProgressEvent) {
			defer close(a.progressDone)
			for ev := range events {
				fmt.Fprintln(w, orchestrator.FormatProgress(ev))
			}
		}(a.progress.Events())
	}
	return a.progress.Emit
}
