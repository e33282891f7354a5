// Package hybrid runs the two-phase verification strategy: a cheap scan
// over every input file, then expensive deep dives limited to the sections
// the scan flagged.
package hybrid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dusk-indust/wavecheck/internal/agent"
	"github.com/dusk-indust/wavecheck/internal/cost"
	"github.com/dusk-indust/wavecheck/internal/model"
	"github.com/dusk-indust/wavecheck/internal/scan"
	"github.com/dusk-indust/wavecheck/internal/telemetry"
	"github.com/dusk-indust/wavecheck/internal/vote"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Config tunes phase 2.
type Config struct {
	// DeepDiveTier is the cost tier used to confirm flagged sections.
	DeepDiveTier string
	// MaxConcurrent caps in-flight deep dives across every agent sharing the
	// pipeline. A deep dive keeps its slot while it votes.
	MaxConcurrent int
	// ContextTokens is the fixed prompt overhead added to each section.
	ContextTokens int
	// OutputTokens is the expected response size of one deep dive.
	OutputTokens int
	// MaxSections limits how many sections are deep-dived; 0 means all.
	// The most severe sections are kept.
	MaxSections int
	// MaxCost limits the estimated deep-dive spend per agent; 0 means no cap.
	MaxCost float64
	// VoteTier is the cost tier vote samples are drawn on. Empty means
	// DeepDiveTier.
	VoteTier string
	// VoteSamples enables consistency voting for ambiguous confirmations of
	// CRITICAL or HIGH sections when positive and a voter is configured.
	VoteSamples int
	// MinConfidence is the vote share required to report a voted finding.
	MinConfidence float64
	// VoteOutputTokens is the expected response size of one vote sample.
	VoteOutputTokens int
}

// DefaultConfig returns the standard phase-2 settings.
func DefaultConfig() Config {
	return Config{
		DeepDiveTier:     cost.TierExpensive,
		MaxConcurrent:    3,
		ContextTokens:    1000,
		OutputTokens:     500,
		VoteTier:         cost.TierMid,
		VoteSamples:      3,
		MinConfidence:    0.67,
		VoteOutputTokens: 100,
	}
}

// Validate reports unusable settings.
func (c Config) Validate() error {
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("hybrid: maxConcurrent must be >= 1, got %d", c.MaxConcurrent)
	}
	if c.ContextTokens < 0 || c.OutputTokens < 0 || c.VoteOutputTokens < 0 {
		return errors.New("hybrid: token budgets must not be negative")
	}
	if c.MaxSections < 0 || c.MaxCost < 0 {
		return errors.New("hybrid: sampling limits must not be negative")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("hybrid: minConfidence %.2f outside [0,1]", c.MinConfidence)
	}
	return nil
}

func (c Config) voteTier() string {
	if c.VoteTier == "" {
		return c.DeepDiveTier
	}
	return c.VoteTier
}

// Sampling reports whether deep dives may cover a subset of the flags.
func (c Config) Sampling() bool {
	return c.MaxSections > 0 || c.MaxCost > 0
}

// Pipeline runs the cheap scan and bounded deep dives for one agent at a
// time. It is safe for concurrent use by the agents of a wave.
type Pipeline struct {
	scanner *scan.Scanner
	invoker agent.Invoker
	voter   *vote.Voter
	costs   cost.Model
	cfg     Config
	limiter *semaphore.Weighted
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithVoter enables consistency voting for ambiguous confirmations.
func WithVoter(v *vote.Voter) Option {
	return func(p *Pipeline) {
		p.voter = v
	}
}

// WithMetrics records deep-dive and vote metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Pipeline.
func New(scanner *scan.Scanner, invoker agent.Invoker, costs cost.Model, cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		scanner: scanner,
		invoker: invoker,
		costs:   costs,
		cfg:     cfg,
		limiter: semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run scans files for desc and deep-dives the flagged sections. Deep-dive
// failures are recorded on their results; only scan cancellation is
// returned as an error.
func (p *Pipeline) Run(ctx context.Context, desc agent.Descriptor, files []string, sessionID string) (*model.HybridResult, error) {
	scanRes, sources, err := p.scanner.Scan(ctx, desc, files)
	if err != nil {
		return nil, fmt.Errorf("hybrid: %s: scan: %w", desc.ID, err)
	}

	selected := p.selectSections(scanRes.Sections, sources)
	if len(selected) < len(scanRes.Sections) {
		p.logger.Info("deep_dive_sampled",
			"agent", desc.ID,
			"flagged", len(scanRes.Sections),
			"selected", len(selected),
		)
	}

	dives := make([]model.DeepDiveResult, len(selected))
	var g errgroup.Group
	for i, section := range selected {
		g.Go(func() error {
			dives[i] = p.boundedDeepDive(ctx, desc, section, sources, sessionID)
			return nil
		})
	}
	_ = g.Wait()

	res := model.NewHybridResult(scanRes, dives)
	p.logger.Info("hybrid_completed",
		"agent", desc.ID,
		"flagged", len(scanRes.Sections),
		"confirmed", res.Confirmed,
		"false_positives", res.FalsePositives,
		"status", res.Status,
		"cost_usd", res.TotalCost,
	)
	return res, nil
}

func (p *Pipeline) boundedDeepDive(ctx context.Context, desc agent.Descriptor, section model.FlaggedSection, sources scan.Sources, sessionID string) model.DeepDiveResult {
	if err := p.limiter.Acquire(ctx, 1); err != nil {
		return model.DeepDiveResult{Section: section, Error: fmt.Sprintf("waiting for deep-dive slot: %v", err)}
	}
	defer p.limiter.Release(1)
	return p.DeepDive(ctx, desc, section, sources, sessionID)
}

// estimateSection returns the phase-2 token counts for section.
func (p *Pipeline) estimateSection(code string) (int, int) {
	return cost.EstimateTokens(code) + p.cfg.ContextTokens, p.cfg.OutputTokens
}

// selectSections returns every section unless sampling is configured, in
// which case the most severe sections are kept until MaxSections or MaxCost
// is reached. Selected sections keep their scan order.
func (p *Pipeline) selectSections(sections []model.FlaggedSection, sources scan.Sources) []model.FlaggedSection {
	if !p.cfg.Sampling() || len(sections) == 0 {
		return sections
	}

	order := make([]int, len(sections))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return int(sections[b].Severity) - int(sections[a].Severity)
	})

	var (
		keep   []int
		budget float64
	)
	for _, idx := range order {
		if p.cfg.MaxSections > 0 && len(keep) >= p.cfg.MaxSections {
			break
		}
		if p.cfg.MaxCost > 0 {
			code, _ := sources.Extract(sections[idx])
			in, out := p.estimateSection(code)
			c := p.costs.Estimate(p.cfg.DeepDiveTier, in, out)
			if budget+c > p.cfg.MaxCost {
				continue
			}
			budget += c
		}
		keep = append(keep, idx)
	}
	slices.Sort(keep)

	out := make([]model.FlaggedSection, len(keep))
	for i, idx := range keep {
		out[i] = sections[idx]
	}
	return out
}

// DeepDive confirms or refutes one section with the deep-dive tier. The
// returned result always references section.
func (p *Pipeline) DeepDive(ctx context.Context, desc agent.Descriptor, section model.FlaggedSection, sources scan.Sources, sessionID string) (res model.DeepDiveResult) {
	start := time.Now()
	res.Section = section
	defer func() {
		res.Duration = time.Since(start)
		p.metrics.RecordDeepDive(ctx, string(desc.ID), res.Confirmed, res.Voted)
		p.logger.Debug("deep_dive_completed",
			"agent", desc.ID,
			"section", section.String(),
			"confirmed", res.Confirmed,
			"severity", res.EffectiveSeverity().String(),
			"error", res.Error,
		)
	}()

	code, err := sources.Extract(section)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	data := agent.SectionData{
		Agent:     desc.ID,
		File:      section.File,
		StartLine: section.StartLine,
		EndLine:   section.EndLine,
		Reason:    section.Reason,
		Severity:  section.Severity.String(),
		Code:      code,
	}
	prompt, err := agent.RenderDeepDive(data)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	out, err := p.invoker.Invoke(ctx, desc, agent.InvocationContext{
		SessionID: sessionID,
		Files:     []string{section.File},
		Prompt:    prompt,
		Tier:      p.cfg.DeepDiveTier,
		MaxTokens: p.cfg.OutputTokens * 2,
	})
	if err != nil {
		p.logger.Warn("deep_dive_failed",
			"agent", desc.ID,
			"section", section.String(),
			"retryable", retryable(err),
			"error", err,
		)
		res.Error = (&agent.InvocationError{Agent: desc.ID, Err: err}).Error()
		return res
	}
	in, outTokens := p.estimateSection(code)
	res.Cost = p.costs.Estimate(p.cfg.DeepDiveTier, in, outTokens)

	verdict, err := agent.ParseVerdict(out.Output)
	if err != nil {
		p.logger.Warn("deep_dive_unparseable", "agent", desc.ID, "section", section.String(), "error", err)
		res.Error = err.Error()
		if p.canVote(section) {
			p.resolveByVote(ctx, &res, data)
		}
		return res
	}

	switch verdict.Verdict {
	case agent.VerdictConfirmed:
		res.Confirmed = true
		res.AdjustedSeverity = verdict.Severity
		res.Fix = verdict.Fix
	case agent.VerdictRefuted:
		res.Confirmed = false
	case agent.VerdictUncertain:
		res.Fix = verdict.Fix
		if p.canVote(section) {
			p.resolveByVote(ctx, &res, data)
		} else {
			// Without a voter an uncertain verdict keeps the flag at its
			// provisional severity.
			res.Confirmed = true
		}
	}
	return res
}

// retryable reports whether err was a transient upstream failure, such as
// rate limiting that outlasted the client's own retries.
func retryable(err error) bool {
	var r interface{ Retryable() bool }
	return errors.As(err, &r) && r.Retryable()
}

func (p *Pipeline) canVote(section model.FlaggedSection) bool {
	return p.voter != nil && p.cfg.VoteSamples > 0 && section.Severity.Blocking()
}

// resolveByVote settles an ambiguous deep dive by majority vote. A vote that
// fails leaves the section unconfirmed with the error recorded.
func (p *Pipeline) resolveByVote(ctx context.Context, res *model.DeepDiveResult, data agent.SectionData) {
	prompt, err := agent.RenderSeverityVote(data)
	if err != nil {
		res.Error = err.Error()
		return
	}
	should, vr, err := p.voter.VoteWithThreshold(ctx, prompt, p.cfg.VoteSamples, p.cfg.MinConfidence)
	if err != nil {
		res.Error = fmt.Sprintf("vote: %v", err)
		return
	}
	res.Voted = true
	res.Error = ""
	res.Confidence = vr.Confidence
	res.Confirmed = should
	res.AdjustedSeverity = vr.Decision
	res.Cost += float64(p.cfg.VoteSamples) *
		p.costs.Estimate(p.cfg.voteTier(), cost.EstimateTokens(prompt), p.cfg.VoteOutputTokens)
	p.metrics.RecordVote(ctx, vr.Confidence)
}
