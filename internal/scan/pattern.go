// Package scan implements the cheap first phase of hybrid verification: it
// reads the input files once and flags narrow line ranges that deserve an
// expensive second look.
package scan

import (
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/dusk-indust/wavecheck/internal/model"
)

// AllAgents is the catalogue key for patterns that apply to every agent.
const AllAgents = "*"

// Pattern is one trigger in the catalogue. A line matches when Match
// matches and, if set, Require also matches the same line.
type Pattern struct {
	ID       string         `yaml:"id" json:"id"`
	Reason   string         `yaml:"reason" json:"reason"`
	Severity model.Severity `yaml:"severity" json:"severity"`
	Match    string         `yaml:"match" json:"match"`
	Require  string         `yaml:"require,omitempty" json:"require,omitempty"`
	// Context is the number of lines flagged on each side of the match.
	Context    int      `yaml:"context,omitempty" json:"context,omitempty"`
	Extensions []string `yaml:"extensions,omitempty" json:"extensions,omitempty"`
}

type compiledPattern struct {
	Pattern
	match   *regexp.Regexp
	require *regexp.Regexp
}

func (p compiledPattern) appliesTo(path string) bool {
	if len(p.Extensions) == 0 {
		return true
	}
	return slices.Contains(p.Extensions, strings.ToLower(filepath.Ext(path)))
}

func (p compiledPattern) matches(line string) bool {
	if !p.match.MatchString(line) {
		return false
	}
	return p.require == nil || p.require.MatchString(line)
}

// Catalogue holds compiled patterns keyed by agent id. It is read-only after
// construction and safe for concurrent use.
type Catalogue struct {
	byAgent map[string][]compiledPattern
}

// NewCatalogue compiles patterns. The AllAgents key applies to every agent.
func NewCatalogue(patterns map[string][]Pattern) (*Catalogue, error) {
	c := &Catalogue{byAgent: make(map[string][]compiledPattern, len(patterns))}
	for agentID, list := range patterns {
		for _, p := range list {
			cp, err := compile(p)
			if err != nil {
				return nil, fmt.Errorf("scan: agent %s: %w", agentID, err)
			}
			c.byAgent[agentID] = append(c.byAgent[agentID], cp)
		}
	}
	return c, nil
}

func compile(p Pattern) (compiledPattern, error) {
	if p.ID == "" {
		return compiledPattern{}, fmt.Errorf("pattern has no id")
	}
	if p.Severity == model.SeverityUnknown {
		return compiledPattern{}, fmt.Errorf("pattern %s has no severity", p.ID)
	}
	if p.Context < 0 {
		return compiledPattern{}, fmt.Errorf("pattern %s has negative context", p.ID)
	}
	match, err := regexp.Compile(p.Match)
	if err != nil {
		return compiledPattern{}, fmt.Errorf("pattern %s: %w", p.ID, err)
	}
	cp := compiledPattern{Pattern: p, match: match}
	if p.Require != "" {
		if cp.require, err = regexp.Compile(p.Require); err != nil {
			return compiledPattern{}, fmt.Errorf("pattern %s: %w", p.ID, err)
		}
	}
	cp.Extensions = slices.Clone(p.Extensions)
	for i, ext := range cp.Extensions {
		cp.Extensions[i] = strings.ToLower(ext)
	}
	return cp, nil
}

// For returns the shared patterns followed by the agent-specific ones.
func (c *Catalogue) For(agentID string) []compiledPattern {
	out := slices.Clone(c.byAgent[AllAgents])
	if agentID != AllAgents {
		out = append(out, c.byAgent[agentID]...)
	}
	return out
}

// DefaultPatterns is the built-in trigger set.
func DefaultPatterns() map[string][]Pattern {
	return map[string][]Pattern{
		AllAgents: {
			{
				ID:       "sql-injection",
				Reason:   "Potential SQL injection: query built with string formatting",
				Severity: model.SeverityCritical,
				Match:    `(?i)\b(select|insert|update|delete)\b`,
				Require:  `f"|%|\.format\(|\+\s*\w|fmt\.Sprintf`,
				Context:  5,
			},
			{
				ID:       "hardcoded-secret",
				Reason:   "Potential hardcoded secret",
				Severity: model.SeverityHigh,
				Match:    `(?i)(password|api_key|apikey|secret|token)`,
				Require:  `[:=]\s*["']`,
				Context:  3,
			},
		},
		"best-practices-enforcer": {
			{
				ID:         "legacy-typing",
				Reason:     "Legacy typing hint; use built-in generics or X | None",
				Severity:   model.SeverityMedium,
				Match:      `\b(List|Dict|Optional|Union)\[`,
				Extensions: []string{".py"},
			},
			{
				ID:         "print-logging",
				Reason:     "print() used instead of structured logging",
				Severity:   model.SeverityLow,
				Match:      `(^|[^\w.])print\(`,
				Extensions: []string{".py"},
			},
		},
	}
}
