package vote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/dusk-indust/wavecheck/internal/model"
	"golang.org/x/sync/errgroup"
)

// Sampler produces one stochastic judgment for prompt.
type Sampler interface {
	Sample(ctx context.Context, prompt string) (string, error)
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func(ctx context.Context, prompt string) (string, error)

// Sample calls f.
func (f SamplerFunc) Sample(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ErrNoSamples is returned when fewer than one sample is requested.
var ErrNoSamples = errors.New("vote: n must be at least 1")

// Result is the outcome of a vote.
type Result struct {
	Decision   model.Severity         `json:"decision"`
	Confidence float64                `json:"confidence"`
	Votes      map[model.Severity]int `json:"votes"`
	// Unparseable counts samples tallied under the default category because
	// no category keyword was found.
	Unparseable int      `json:"unparseable"`
	Samples     []string `json:"samples"`
	Prompt      string   `json:"prompt"`
	N           int      `json:"n"`
}

// Voter dispatches samples concurrently and tallies them.
type Voter struct {
	sampler  Sampler
	fallback model.Severity
	logger   *slog.Logger
}

// Option configures a Voter.
type Option func(*Voter)

// WithDefaultCategory sets the category unparseable samples are tallied
// under. The default is MEDIUM.
func WithDefaultCategory(s model.Severity) Option {
	return func(v *Voter) {
		v.fallback = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Voter) {
		if l != nil {
			v.logger = l
		}
	}
}

// New creates a Voter that draws samples from sampler.
func New(sampler Sampler, opts ...Option) *Voter {
	v := &Voter{
		sampler:  sampler,
		fallback: model.SeverityMedium,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Vote draws n samples for prompt concurrently and returns the majority
// category among categories (nil means all severities). Ties go to the more
// severe category. Any sampling error fails the vote.
func (v *Voter) Vote(ctx context.Context, prompt string, n int, categories []model.Severity) (*Result, error) {
	if n < 1 {
		return nil, ErrNoSamples
	}
	cats := orderCategories(categories)
	fallback := v.defaultCategory(cats)

	samples := make([]string, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := range n {
		g.Go(func() error {
			out, err := v.sampler.Sample(gctx, prompt)
			if err != nil {
				return fmt.Errorf("vote: sample %d: %w", i+1, err)
			}
			samples[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		Votes:   make(map[model.Severity]int, len(cats)),
		Samples: samples,
		Prompt:  prompt,
		N:       n,
	}
	for _, c := range cats {
		res.Votes[c] = 0
	}
	for _, s := range samples {
		category, ok := ParseCategory(s, cats).Category()
		if !ok {
			res.Unparseable++
			category = fallback
		}
		res.Votes[category]++
	}

	best := 0
	for _, c := range cats {
		if res.Votes[c] > best {
			best = res.Votes[c]
			res.Decision = c
		}
	}
	res.Confidence = float64(best) / float64(n)

	v.logger.Info("voting_complete",
		"decision", res.Decision.String(),
		"confidence", res.Confidence,
		"n", n,
		"unparseable", res.Unparseable,
	)
	return res, nil
}

// VoteWithThreshold votes and reports whether the decision is confident
// enough to act on.
func (v *Voter) VoteWithThreshold(ctx context.Context, prompt string, n int, minConfidence float64) (bool, *Result, error) {
	res, err := v.Vote(ctx, prompt, n, nil)
	if err != nil {
		return false, nil, err
	}
	return ShouldReport(res.Confidence, minConfidence), res, nil
}

// ShouldReport compares confidence against minConfidence at percentage
// precision, inclusively. Two votes out of three (0.666...) therefore meet
// a 0.67 minimum.
func ShouldReport(confidence, minConfidence float64) bool {
	return math.Round(confidence*100)/100 >= minConfidence
}

// orderCategories returns categories sorted by descending severity with
// duplicates removed.
func orderCategories(categories []model.Severity) []model.Severity {
	if len(categories) == 0 {
		return model.Precedence
	}
	cats := slices.Clone(categories)
	slices.SortFunc(cats, func(a, b model.Severity) int { return int(b) - int(a) })
	return slices.Compact(cats)
}

func (v *Voter) defaultCategory(cats []model.Severity) model.Severity {
	if slices.Contains(cats, v.fallback) {
		return v.fallback
	}
	return cats[len(cats)/2]
}
