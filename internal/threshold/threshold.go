// Package threshold maps an agent's aggregated metrics to a pass/fail verdict
// using a per-agent rule table.
package threshold

import (
	"fmt"

	"github.com/dusk-indust/wavecheck/internal/model"
)

// Kind selects how a Rule is evaluated.
type Kind string

const (
	// KindCount fails when the number of findings exceeds Max.
	KindCount Kind = "count"
	// KindSeverity fails on any critical finding or more than MaxHigh high
	// findings. Medium and low findings never block.
	KindSeverity Kind = "severity"
	// KindScore fails when the reported score is below MinScore.
	KindScore Kind = "score"
	// KindCoverage fails when the reported coverage is below MinCoverage.
	KindCoverage Kind = "coverage"
)

// ReasonNoThreshold is returned for agents without a rule.
const ReasonNoThreshold = "no threshold defined"

// Rule is one entry of the threshold table.
type Rule struct {
	Kind Kind `yaml:"kind" json:"kind"`
	// Metric names the counted quantity in reasons, e.g. "violations".
	Metric      string  `yaml:"metric,omitempty" json:"metric,omitempty"`
	Max         int     `yaml:"max,omitempty" json:"max,omitempty"`
	MaxHigh     int     `yaml:"maxHigh,omitempty" json:"max_high,omitempty"`
	MinScore    float64 `yaml:"minScore,omitempty" json:"min_score,omitempty"`
	MinCoverage float64 `yaml:"minCoverage,omitempty" json:"min_coverage,omitempty"`
}

// Validate reports malformed rules.
func (r Rule) Validate() error {
	switch r.Kind {
	case KindCount:
		if r.Max < 0 {
			return fmt.Errorf("threshold: count rule has negative max %d", r.Max)
		}
	case KindSeverity:
		if r.MaxHigh < 0 {
			return fmt.Errorf("threshold: severity rule has negative maxHigh %d", r.MaxHigh)
		}
	case KindScore:
	case KindCoverage:
		if r.MinCoverage < 0 || r.MinCoverage > 100 {
			return fmt.Errorf("threshold: coverage rule minimum %.1f outside [0,100]", r.MinCoverage)
		}
	default:
		return fmt.Errorf("threshold: unknown rule kind %q", r.Kind)
	}
	return nil
}

// Metrics are the aggregated numbers a rule is evaluated against.
type Metrics struct {
	Findings int
	Counts   model.SeverityCounts
	Score    *float64
	Coverage *float64
}

// MetricsFor extracts Metrics from an agent result.
func MetricsFor(r model.AgentResult) Metrics {
	return Metrics{
		Findings: r.Findings,
		Counts:   r.Counts,
		Score:    r.Score,
		Coverage: r.Coverage,
	}
}

// Table maps agent ids to rules.
type Table map[string]Rule

// Evaluator applies a Table. It is safe for concurrent use because the table
// is copied at construction and never written afterwards.
type Evaluator struct {
	table Table
}

// NewEvaluator validates and copies table.
func NewEvaluator(table Table) (*Evaluator, error) {
	copied := make(Table, len(table))
	for id, rule := range table {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("%w (agent %s)", err, id)
		}
		copied[id] = rule
	}
	return &Evaluator{table: copied}, nil
}

// Rule returns the rule for agentID, if any.
func (e *Evaluator) Rule(agentID string) (Rule, bool) {
	r, ok := e.table[agentID]
	return r, ok
}

// Evaluate returns whether agentID passes with metrics m, and a reason that
// names the metric with its actual and threshold values. Agents without a
// rule pass.
func (e *Evaluator) Evaluate(agentID string, m Metrics) (bool, string) {
	rule, ok := e.table[agentID]
	if !ok {
		return true, ReasonNoThreshold
	}

	switch rule.Kind {
	case KindCount:
		metric := rule.Metric
		if metric == "" {
			metric = "findings"
		}
		if m.Findings > rule.Max {
			return false, fmt.Sprintf("%s: %d (threshold: %d)", metric, m.Findings, rule.Max)
		}
		return true, fmt.Sprintf("%s: %d (threshold: %d)", metric, m.Findings, rule.Max)

	case KindSeverity:
		if m.Counts.Critical > 0 {
			return false, fmt.Sprintf("critical findings: %d (threshold: 0)", m.Counts.Critical)
		}
		if m.Counts.High > rule.MaxHigh {
			return false, fmt.Sprintf("high findings: %d (threshold: %d)", m.Counts.High, rule.MaxHigh)
		}
		return true, fmt.Sprintf("critical: 0, high: %d (threshold: %d), medium/low non-blocking",
			m.Counts.High, rule.MaxHigh)

	case KindScore:
		if m.Score == nil {
			return false, fmt.Sprintf("score not reported (threshold: %.1f)", rule.MinScore)
		}
		if *m.Score < rule.MinScore {
			return false, fmt.Sprintf("score: %.1f (threshold: %.1f)", *m.Score, rule.MinScore)
		}
		return true, fmt.Sprintf("score: %.1f (threshold: %.1f)", *m.Score, rule.MinScore)

	case KindCoverage:
		if m.Coverage == nil {
			return false, fmt.Sprintf("coverage not reported (threshold: %.1f%%)", rule.MinCoverage)
		}
		if *m.Coverage < rule.MinCoverage {
			return false, fmt.Sprintf("coverage: %.1f%% (threshold: %.1f%%)", *m.Coverage, rule.MinCoverage)
		}
		return true, fmt.Sprintf("coverage: %.1f%% (threshold: %.1f%%)", *m.Coverage, rule.MinCoverage)
	}

	// Unreachable for validated tables.
	return false, fmt.Sprintf("unknown rule kind %q", rule.Kind)
}
