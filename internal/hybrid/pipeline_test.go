package hybrid

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dusk-indust/wavecheck/internal/agent"
	"github.com/dusk-indust/wavecheck/internal/cost"
	"github.com/dusk-indust/wavecheck/internal/model"
	"github.com/dusk-indust/wavecheck/internal/scan"
	"github.com/dusk-indust/wavecheck/internal/vote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Each line matching "FLAG-<severity>" is flagged with that severity, so
// tests control exactly which sections phase 1 produces.
func testCatalogue(t *testing.T) *scan.Catalogue {
	t.Helper()
	patterns := map[string][]scan.Pattern{scan.AllAgents: {}}
	for _, sev := range model.Precedence {
		patterns[scan.AllAgents] = append(patterns[scan.AllAgents], scan.Pattern{
			ID:       "flag-" + strings.ToLower(sev.String()),
			Reason:   "flagged " + sev.String(),
			Severity: sev,
			Match:    `FLAG-` + sev.String() + `\b`,
		})
	}
	c, err := scan.NewCatalogue(patterns)
	require.NoError(t, err)
	return c
}

func newPipeline(t *testing.T, files map[string]string, inv agent.Invoker, cfg Config, opts ...Option) *Pipeline {
	t.Helper()
	reader := func(path string) ([]byte, error) {
		s, ok := files[path]
		if !ok {
			return nil, errors.New("missing")
		}
		return []byte(s), nil
	}
	s := scan.NewScanner(testCatalogue(t), cost.DefaultModel(), scan.WithFileReader(reader))
	p, err := New(s, inv, cost.DefaultModel(), cfg, opts...)
	require.NoError(t, err)
	return p
}

// verdictInvoker answers every deep dive with the verdict chosen by fn.
func verdictInvoker(fn func(prompt string) string) agent.Invoker {
	return agent.InvokerFunc(func(_ context.Context, _ agent.Descriptor, ic agent.InvocationContext) (*agent.InvocationResult, error) {
		return &agent.InvocationResult{Output: fn(ic.Prompt)}, nil
	})
}

var desc = agent.Descriptor{ID: agent.RoleSecurity, Wave: 1, Tier: cost.TierCheap, Mode: agent.ModeHybrid}

func assertHybridInvariants(t *testing.T, h *model.HybridResult, sampled bool) {
	t.Helper()
	if sampled {
		assert.LessOrEqual(t, len(h.DeepDives), len(h.Scan.Sections))
	} else {
		assert.Len(t, h.DeepDives, len(h.Scan.Sections))
	}
	assert.Equal(t, len(h.DeepDives), h.Confirmed+h.FalsePositives)

	total := h.Scan.Cost
	for _, d := range h.DeepDives {
		assert.GreaterOrEqual(t, d.Cost, 0.0)
		total += d.Cost
	}
	assert.InDelta(t, total, h.TotalCost, 1e-12)
	assert.GreaterOrEqual(t, h.TotalCost, 0.0)
}

func TestRun_NoFlagsMeansScanCostOnly(t *testing.T) {
	var calls atomic.Int32
	inv := agent.InvokerFunc(func(context.Context, agent.Descriptor, agent.InvocationContext) (*agent.InvocationResult, error) {
		calls.Add(1)
		return nil, errors.New("should not be called")
	})
	p := newPipeline(t, map[string]string{"clean.py": "x = 1\ny = 2\n"}, inv, DefaultConfig())

	h, err := p.Run(context.Background(), desc, []string{"clean.py"}, "s1")
	require.NoError(t, err)

	assert.Empty(t, h.DeepDives)
	assert.Equal(t, h.Scan.Cost, h.TotalCost)
	assert.Equal(t, model.StatusPass, h.Status)
	assert.Zero(t, calls.Load())
	assertHybridInvariants(t, h, false)
}

func TestRun_ConfirmedCriticalFails(t *testing.T) {
	src := "a = 1\nFLAG-CRITICAL here\nb = 2\nFLAG-LOW there\n"
	inv := verdictInvoker(func(prompt string) string {
		if strings.Contains(prompt, "flagged CRITICAL") {
			return `{"verdict": "confirmed", "severity": "CRITICAL", "fix": "parameterize"}`
		}
		return `{"verdict": "refuted"}`
	})
	p := newPipeline(t, map[string]string{"f.py": src}, inv, DefaultConfig())

	h, err := p.Run(context.Background(), desc, []string{"f.py"}, "s1")
	require.NoError(t, err)

	require.Len(t, h.DeepDives, 2)
	assert.Equal(t, model.StatusFail, h.Status)
	assert.Equal(t, 1, h.Confirmed)
	assert.Equal(t, 1, h.FalsePositives)
	assert.Equal(t, "parameterize", h.DeepDives[0].Fix, "results keep scan order")
	assertHybridInvariants(t, h, false)
}

func TestRun_DowngradedConfirmationPasses(t *testing.T) {
	inv := verdictInvoker(func(string) string {
		return `{"verdict": "confirmed", "severity": "LOW"}`
	})
	p := newPipeline(t, map[string]string{"f.py": "FLAG-HIGH\n"}, inv, DefaultConfig())

	h, err := p.Run(context.Background(), desc, []string{"f.py"}, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPass, h.Status)
	assert.Equal(t, model.SeverityLow, h.DeepDives[0].EffectiveSeverity())
}

func TestRun_DeepDiveErrorIsIsolated(t *testing.T) {
	src := "FLAG-CRITICAL one\nFLAG-CRITICAL two\nFLAG-CRITICAL three\n"
	inv := agent.InvokerFunc(func(_ context.Context, _ agent.Descriptor, ic agent.InvocationContext) (*agent.InvocationResult, error) {
		if strings.Contains(ic.Prompt, "two") {
			return nil, errors.New("overloaded")
		}
		return &agent.InvocationResult{Output: `{"verdict": "refuted"}`}, nil
	})
	p := newPipeline(t, map[string]string{"f.py": src}, inv, DefaultConfig())

	h, err := p.Run(context.Background(), desc, []string{"f.py"}, "s1")
	require.NoError(t, err)
	require.Len(t, h.DeepDives, 3)
	assert.Contains(t, h.DeepDives[1].Error, "overloaded")
	assert.False(t, h.DeepDives[1].Confirmed)
	assert.Zero(t, h.DeepDives[1].Cost)
	assert.Empty(t, h.DeepDives[0].Error)
	assert.Equal(t, model.StatusPass, h.Status)
	assertHybridInvariants(t, h, false)
}

func TestRun_BoundedConcurrency(t *testing.T) {
	var lines []string
	for i := range 10 {
		lines = append(lines, fmt.Sprintf("FLAG-MEDIUM %d", i))
	}
	var inFlight, peak atomic.Int32
	inv := agent.InvokerFunc(func(context.Context, agent.Descriptor, agent.InvocationContext) (*agent.InvocationResult, error) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return &agent.InvocationResult{Output: `{"verdict": "refuted"}`}, nil
	})
	p := newPipeline(t, map[string]string{"f.py": strings.Join(lines, "\n")}, inv, DefaultConfig())

	h, err := p.Run(context.Background(), desc, []string{"f.py"}, "s1")
	require.NoError(t, err)
	assert.Len(t, h.DeepDives, 10)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Greater(t, peak.Load(), int32(1), "deep dives should overlap")
}

func TestRun_DeepDiveCostFormula(t *testing.T) {
	inv := verdictInvoker(func(string) string { return `{"verdict": "refuted"}` })
	cfg := DefaultConfig()
	p := newPipeline(t, map[string]string{"f.py": "FLAG-LOW abcdefgh\n"}, inv, cfg)

	h, err := p.Run(context.Background(), desc, []string{"f.py"}, "s1")
	require.NoError(t, err)
	require.Len(t, h.DeepDives, 1)

	code := "FLAG-LOW abcdefgh"
	want := cost.DefaultModel().Estimate(cost.TierExpensive, len(code)/4+cfg.ContextTokens, cfg.OutputTokens)
	assert.InDelta(t, want, h.DeepDives[0].Cost, 1e-12)
}

func TestRun_UncertainResolvedByVote(t *testing.T) {
	inv := verdictInvoker(func(string) string { return `{"verdict": "uncertain"}` })
	samples := []string{"CRITICAL", "CRITICAL", "HIGH"}
	var i atomic.Int32
	voter := vote.New(vote.SamplerFunc(func(context.Context, string) (string, error) {
		return samples[int(i.Add(1)-1)%len(samples)], nil
	}))
	p := newPipeline(t, map[string]string{"f.py": "FLAG-HIGH\n"}, inv, DefaultConfig(), WithVoter(voter))

	h, err := p.Run(context.Background(), desc, []string{"f.py"}, "s1")
	require.NoError(t, err)

	d := h.DeepDives[0]
	assert.True(t, d.Voted)
	assert.True(t, d.Confirmed, "2/3 meets the 0.67 minimum")
	assert.Equal(t, model.SeverityCritical, d.AdjustedSeverity)
	assert.InDelta(t, 0.667, d.Confidence, 0.001)
	assert.Equal(t, model.StatusFail, h.Status)
}

func TestRun_LowConfidenceVoteIsNotReported(t *testing.T) {
	inv := verdictInvoker(func(string) string { return "I am not sure." })
	samples := []string{"CRITICAL", "HIGH", "LOW"}
	var i atomic.Int32
	voter := vote.New(vote.SamplerFunc(func(context.Context, string) (string, error) {
		return samples[int(i.Add(1)-1)%len(samples)], nil
	}))
	p := newPipeline(t, map[string]string{"f.py": "FLAG-CRITICAL\n"}, inv, DefaultConfig(), WithVoter(voter))

	h, err := p.Run(context.Background(), desc, []string{"f.py"}, "s1")
	require.NoError(t, err)

	d := h.DeepDives[0]
	assert.True(t, d.Voted)
	assert.False(t, d.Confirmed)
	assert.Empty(t, d.Error, "a successful vote clears the parse error")
	assert.Equal(t, model.StatusPass, h.Status)
}

func TestRun_UncertainWithoutVoterKeepsFlag(t *testing.T) {
	inv := verdictInvoker(func(string) string { return `{"verdict": "uncertain", "severity": "LOW"}` })
	p := newPipeline(t, map[string]string{"f.py": "FLAG-HIGH\n"}, inv, DefaultConfig())

	h, err := p.Run(context.Background(), desc, []string{"f.py"}, "s1")
	require.NoError(t, err)
	d := h.DeepDives[0]
	assert.True(t, d.Confirmed)
	assert.Equal(t, model.SeverityUnknown, d.AdjustedSeverity, "an uncertain verdict does not downgrade")
	assert.Equal(t, model.SeverityHigh, d.EffectiveSeverity())
	assert.Equal(t, model.StatusFail, h.Status)
}

func TestRun_VotesArePricedOnVoteTier(t *testing.T) {
	inv := verdictInvoker(func(string) string { return `{"verdict": "uncertain"}` })
	var prompt atomic.Value
	voter := vote.New(vote.SamplerFunc(func(_ context.Context, p string) (string, error) {
		prompt.Store(p)
		return "CRITICAL", nil
	}))
	cfg := DefaultConfig()
	p := newPipeline(t, map[string]string{"f.py": "FLAG-HIGH\n"}, inv, cfg, WithVoter(voter))

	h, err := p.Run(context.Background(), desc, []string{"f.py"}, "s1")
	require.NoError(t, err)
	d := h.DeepDives[0]
	require.True(t, d.Voted)

	costs := cost.DefaultModel()
	dive := costs.Estimate(cost.TierExpensive, len("FLAG-HIGH")/4+cfg.ContextTokens, cfg.OutputTokens)
	votes := float64(cfg.VoteSamples) *
		costs.Estimate(cost.TierMid, cost.EstimateTokens(prompt.Load().(string)), cfg.VoteOutputTokens)
	assert.InDelta(t, dive+votes, d.Cost, 1e-12)

	cfg.VoteTier = ""
	p = newPipeline(t, map[string]string{"f.py": "FLAG-HIGH\n"}, inv, cfg, WithVoter(voter))
	h, err = p.Run(context.Background(), desc, []string{"f.py"}, "s1")
	require.NoError(t, err)
	votes = float64(cfg.VoteSamples) *
		costs.Estimate(cost.TierExpensive, cost.EstimateTokens(prompt.Load().(string)), cfg.VoteOutputTokens)
	assert.InDelta(t, dive+votes, h.DeepDives[0].Cost, 1e-12, "an empty vote tier falls back to the deep-dive tier")
}

func TestNew_NilLoggerUsesDefault(t *testing.T) {
	inv := verdictInvoker(func(string) string { return `{"verdict": "refuted"}` })
	p := newPipeline(t, map[string]string{"f.py": "FLAG-LOW\n"}, inv, DefaultConfig(), WithLogger(nil))
	require.NotNil(t, p.logger)
	assert.NotPanics(t, func() {
		_, _ = p.Run(context.Background(), desc, []string{"f.py"}, "s1")
	})
}

func TestRun_SamplingKeepsMostSevere(t *testing.T) {
	src := "FLAG-LOW a\nFLAG-CRITICAL b\nFLAG-MEDIUM c\nFLAG-HIGH d\n"
	inv := verdictInvoker(func(string) string { return `{"verdict": "refuted"}` })
	cfg := DefaultConfig()
	cfg.MaxSections = 2
	p := newPipeline(t, map[string]string{"f.py": src}, inv, cfg)

	h, err := p.Run(context.Background(), desc, []string{"f.py"}, "s1")
	require.NoError(t, err)

	require.Len(t, h.DeepDives, 2)
	assert.Equal(t, model.SeverityCritical, h.DeepDives[0].Section.Severity)
	assert.Equal(t, model.SeverityHigh, h.DeepDives[1].Section.Severity)
	assertHybridInvariants(t, h, true)
}

func TestRun_SamplingCostCap(t *testing.T) {
	src := "FLAG-LOW a\nFLAG-LOW b\nFLAG-LOW c\n"
	inv := verdictInvoker(func(string) string { return `{"verdict": "refuted"}` })
	cfg := DefaultConfig()
	one := cost.DefaultModel().Estimate(cfg.DeepDiveTier, len("FLAG-LOW a")/4+cfg.ContextTokens, cfg.OutputTokens)
	cfg.MaxCost = one*2 + one/2
	p := newPipeline(t, map[string]string{"f.py": src}, inv, cfg)

	h, err := p.Run(context.Background(), desc, []string{"f.py"}, "s1")
	require.NoError(t, err)
	assert.Len(t, h.DeepDives, 2)
	assertHybridInvariants(t, h, true)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	bad := cfg
	bad.MaxConcurrent = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.MinConfidence = 1.5
	assert.Error(t, bad.Validate())
}
