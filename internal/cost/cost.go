// Package cost estimates the monetary cost of model invocations from token
// counts and per-tier pricing.
package cost

import (
	"fmt"
	"sort"
)

// Default tier names.
const (
	TierCheap     = "cheap"
	TierMid       = "mid"
	TierExpensive = "expensive"
)

// CharsPerToken is the size heuristic used by EstimateTokens. It is an
// approximation, not a tokenizer.
const CharsPerToken = 4

// Pricing holds USD prices per million tokens.
type Pricing struct {
	Input  float64 `yaml:"input" json:"input"`
	Output float64 `yaml:"output" json:"output"`
}

// Model maps tier names to pricing. It is immutable once built; unknown tiers
// resolve to the fallback tier.
type Model struct {
	tiers    map[string]Pricing
	fallback string
}

// NewModel builds a Model. The fallback tier must be present in tiers and no
// price may be negative.
func NewModel(tiers map[string]Pricing, fallback string) (Model, error) {
	if len(tiers) == 0 {
		return Model{}, fmt.Errorf("cost: no tiers defined")
	}
	copied := make(map[string]Pricing, len(tiers))
	for name, p := range tiers {
		if p.Input < 0 || p.Output < 0 {
			return Model{}, fmt.Errorf("cost: tier %q has negative pricing", name)
		}
		copied[name] = p
	}
	if _, ok := copied[fallback]; !ok {
		return Model{}, fmt.Errorf("cost: fallback tier %q is not defined", fallback)
	}
	return Model{tiers: copied, fallback: fallback}, nil
}

// DefaultModel returns the built-in three-tier pricing with mid as fallback.
func DefaultModel() Model {
	return Model{
		tiers: map[string]Pricing{
			TierCheap:     {Input: 0.25, Output: 1.25},
			TierMid:       {Input: 3.00, Output: 15.00},
			TierExpensive: {Input: 15.00, Output: 75.00},
		},
		fallback: TierMid,
	}
}

// Pricing returns the pricing for tier and whether tier was known. Unknown
// tiers return the fallback pricing.
func (m Model) Pricing(tier string) (Pricing, bool) {
	if p, ok := m.tiers[tier]; ok {
		return p, true
	}
	return m.tiers[m.fallback], false
}

// Resolve returns tier if known, else the fallback tier name.
func (m Model) Resolve(tier string) string {
	if _, ok := m.tiers[tier]; ok {
		return tier
	}
	return m.fallback
}

// Fallback returns the fallback tier name.
func (m Model) Fallback() string {
	return m.fallback
}

// Tiers returns the known tier names, sorted.
func (m Model) Tiers() []string {
	names := make([]string, 0, len(m.tiers))
	for name := range m.tiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Estimate returns the USD cost of a call on tier. Negative token counts are
// treated as zero so the result is never negative.
func (m Model) Estimate(tier string, inputTokens, outputTokens int) float64 {
	p, _ := m.Pricing(tier)
	in := float64(max(inputTokens, 0))
	out := float64(max(outputTokens, 0))
	return in/1e6*p.Input + out/1e6*p.Output
}

// EstimateTokens approximates the token count of text.
func EstimateTokens(text string) int {
	return TokensForChars(len(text))
}

// TokensForChars approximates the token count of n characters.
func TokensForChars(n int) int {
	if n <= 0 {
		return 0
	}
	return n / CharsPerToken
}
