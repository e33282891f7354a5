package vote

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dusk-indust/wavecheck/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSampler returns its outputs in call order.
type scriptedSampler struct {
	outputs []string
	calls   atomic.Int32
}

func (s *scriptedSampler) Sample(_ context.Context, _ string) (string, error) {
	i := int(s.calls.Add(1)) - 1
	return s.outputs[i%len(s.outputs)], nil
}

func assertInvariants(t *testing.T, res *Result) {
	t.Helper()
	sum, best := 0, 0
	for _, n := range res.Votes {
		sum += n
		best = max(best, n)
	}
	assert.Equal(t, res.N, sum, "histogram must sum to N")
	assert.InDelta(t, float64(best)/float64(res.N), res.Confidence, 1e-12)
	assert.GreaterOrEqual(t, res.Confidence, 0.0)
	assert.LessOrEqual(t, res.Confidence, 1.0)
	assert.Len(t, res.Samples, res.N)
}

func TestVote_MajorityCritical(t *testing.T) {
	s := &scriptedSampler{outputs: []string{
		"This is CRITICAL: user input reaches the query.",
		"Severity: HIGH",
		"I'd rate it critical.",
	}}
	v := New(s)

	res, err := v.Vote(context.Background(), "rate this", 3, nil)
	require.NoError(t, err)

	assert.Equal(t, model.SeverityCritical, res.Decision)
	assert.InDelta(t, 0.667, res.Confidence, 0.001)
	assert.Equal(t, 2, res.Votes[model.SeverityCritical])
	assert.Equal(t, 1, res.Votes[model.SeverityHigh])
	assert.Equal(t, 0, res.Votes[model.SeverityMedium])
	assert.Equal(t, 0, res.Votes[model.SeverityLow])
	assert.Equal(t, "rate this", res.Prompt)
	assertInvariants(t, res)
}

func TestVoteWithThreshold_InclusiveAtTwoThirds(t *testing.T) {
	s := &scriptedSampler{outputs: []string{"CRITICAL", "CRITICAL", "HIGH"}}
	v := New(s)

	report, res, err := v.VoteWithThreshold(context.Background(), "p", 3, 0.67)
	require.NoError(t, err)
	assert.True(t, report, "2/3 meets a 0.67 minimum")
	assert.Equal(t, model.SeverityCritical, res.Decision)
}

func TestShouldReport(t *testing.T) {
	assert.True(t, ShouldReport(2.0/3.0, 0.67))
	assert.True(t, ShouldReport(0.8, 0.8))
	assert.False(t, ShouldReport(1.0/3.0, 0.34))
	assert.False(t, ShouldReport(0.5, 0.67))
	assert.True(t, ShouldReport(1, 1))
}

// Ties resolve toward the more severe category. This is a deliberate policy
// so ambiguous findings err on the side of caution.
func TestVote_TieBreakPrefersHigherSeverity(t *testing.T) {
	s := &scriptedSampler{outputs: []string{"LOW", "HIGH", "LOW", "HIGH"}}
	res, err := New(s).Vote(context.Background(), "p", 4, nil)
	require.NoError(t, err)

	assert.Equal(t, model.SeverityHigh, res.Decision)
	assert.Equal(t, 0.5, res.Confidence)
	assertInvariants(t, res)
}

func TestVote_UnparseableDefaultsToMedium(t *testing.T) {
	s := &scriptedSampler{outputs: []string{"no idea", "looks fine to me", "LOW"}}
	res, err := New(s).Vote(context.Background(), "p", 3, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Unparseable)
	assert.Equal(t, model.SeverityMedium, res.Decision)
	assertInvariants(t, res)
}

func TestVote_CustomDefaultCategory(t *testing.T) {
	s := &scriptedSampler{outputs: []string{"???"}}
	res, err := New(s, WithDefaultCategory(model.SeverityHigh)).Vote(context.Background(), "p", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, model.SeverityHigh, res.Decision)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestVote_RestrictedCategorySet(t *testing.T) {
	// LOW is not a candidate, so the sample falls back to a category in the set.
	s := &scriptedSampler{outputs: []string{"LOW"}}
	res, err := New(s).Vote(context.Background(), "p", 1, []model.Severity{model.SeverityHigh, model.SeverityCritical})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unparseable)
	assert.Contains(t, []model.Severity{model.SeverityHigh, model.SeverityCritical}, res.Decision)
	assert.Len(t, res.Votes, 2)
}

func TestVote_RejectsZeroSamples(t *testing.T) {
	_, err := New(&scriptedSampler{outputs: []string{"x"}}).Vote(context.Background(), "p", 0, nil)
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestNew_NilLoggerUsesDefault(t *testing.T) {
	v := New(&scriptedSampler{outputs: []string{"HIGH"}}, WithLogger(nil))
	require.NotNil(t, v.logger)

	res, err := v.Vote(context.Background(), "p", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, model.SeverityHigh, res.Decision)
}

func TestVote_SampleErrorFailsVote(t *testing.T) {
	boom := errors.New("rate limited")
	s := SamplerFunc(func(context.Context, string) (string, error) { return "", boom })
	_, err := New(s).Vote(context.Background(), "p", 3, nil)
	assert.ErrorIs(t, err, boom)
}

func TestVote_SamplesRunConcurrently(t *testing.T) {
	const n = 5
	var wg sync.WaitGroup
	wg.Add(n)
	s := SamplerFunc(func(ctx context.Context, _ string) (string, error) {
		wg.Done()
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
			return "HIGH", nil
		case <-time.After(2 * time.Second):
			return "", errors.New("samples were not dispatched concurrently")
		}
	})

	res, err := New(s).Vote(context.Background(), "p", n, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestParseCategory_FirstMatchInPrecedenceOrder(t *testing.T) {
	p := ParseCategory("not HIGH, really CRITICAL", model.Precedence)
	c, ok := p.Category()
	require.True(t, ok)
	assert.Equal(t, model.SeverityCritical, c)

	p = ParseCategory("HIGHLIGHTED lowercase words", model.Precedence)
	_, ok = p.Category()
	assert.False(t, ok, "keywords match on word boundaries only")
	assert.Equal(t, "HIGHLIGHTED lowercase words", p.Raw())
}
