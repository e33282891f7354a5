package model

import (
	"fmt"
	"time"
)

// Status is the pass/fail verdict of an agent.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
)

// Outcome is the verdict of a whole run.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
)

// FlaggedSection is a narrow span of input selected by the cheap scan for
// expensive re-analysis. Lines are 1-based and inclusive.
type FlaggedSection struct {
	File      string   `json:"file"`
	StartLine int      `json:"start_line"`
	EndLine   int      `json:"end_line"`
	Reason    string   `json:"reason"`
	Severity  Severity `json:"severity"`
	AgentID   string   `json:"agent_id"`
	Rule      string   `json:"rule,omitempty"`
}

// NewFlaggedSection validates the line range and returns a section.
func NewFlaggedSection(agentID, file string, start, end int, sev Severity, reason, rule string) (FlaggedSection, error) {
	if start < 1 || end < start {
		return FlaggedSection{}, fmt.Errorf("model: invalid line range [%d,%d] in %s", start, end, file)
	}
	return FlaggedSection{
		File:      file,
		StartLine: start,
		EndLine:   end,
		Reason:    reason,
		Severity:  sev,
		AgentID:   agentID,
		Rule:      rule,
	}, nil
}

// Lines returns the number of lines the section spans.
func (f FlaggedSection) Lines() int {
	return f.EndLine - f.StartLine + 1
}

func (f FlaggedSection) String() string {
	return fmt.Sprintf("%s:%d-%d", f.File, f.StartLine, f.EndLine)
}

// DeepDiveResult is the outcome of confirming a single flagged section.
type DeepDiveResult struct {
	Section   FlaggedSection `json:"section"`
	Confirmed bool           `json:"confirmed"`
	// AdjustedSeverity is SeverityUnknown when the deep dive kept the
	// provisional severity.
	AdjustedSeverity Severity      `json:"adjusted_severity,omitempty"`
	Fix              string        `json:"fix,omitempty"`
	Cost             float64       `json:"cost_usd"`
	Duration         time.Duration `json:"duration"`
	Voted            bool          `json:"voted,omitempty"`
	Confidence       float64       `json:"confidence,omitempty"`
	Error            string        `json:"error,omitempty"`
}

// EffectiveSeverity is the adjusted severity if set, else the provisional one.
func (d DeepDiveResult) EffectiveSeverity() Severity {
	if d.AdjustedSeverity != SeverityUnknown {
		return d.AdjustedSeverity
	}
	return d.Section.Severity
}

// ScanResult aggregates phase 1 for one agent.
type ScanResult struct {
	AgentID       string           `json:"agent_id"`
	Tier          string           `json:"tier"`
	Sections      []FlaggedSection `json:"sections"`
	TotalFindings int              `json:"total_findings"`
	InputTokens   int              `json:"input_tokens"`
	OutputTokens  int              `json:"output_tokens"`
	Cost          float64          `json:"cost_usd"`
	Duration      time.Duration    `json:"duration"`
}

// HybridResult aggregates phase 1 and phase 2 for one agent.
// Build it with NewHybridResult so the totals and status stay consistent.
type HybridResult struct {
	AgentID        string           `json:"agent_id"`
	Scan           ScanResult       `json:"scan"`
	DeepDives      []DeepDiveResult `json:"deep_dives"`
	TotalDuration  time.Duration    `json:"total_duration"`
	TotalCost      float64          `json:"total_cost_usd"`
	Confirmed      int              `json:"confirmed"`
	FalsePositives int              `json:"false_positives"`
	Status         Status           `json:"status"`
}

// NewHybridResult derives totals, counts and status from the scan and its
// deep dives. The status is FAIL iff a confirmed deep dive carries a
// blocking severity.
func NewHybridResult(scan ScanResult, dives []DeepDiveResult) *HybridResult {
	h := &HybridResult{
		AgentID:       scan.AgentID,
		Scan:          scan,
		DeepDives:     dives,
		TotalDuration: scan.Duration,
		TotalCost:     scan.Cost,
		Status:        StatusPass,
	}
	for _, d := range dives {
		h.TotalDuration += d.Duration
		h.TotalCost += d.Cost
		if !d.Confirmed {
			h.FalsePositives++
			continue
		}
		h.Confirmed++
		if d.EffectiveSeverity().Blocking() {
			h.Status = StatusFail
		}
	}
	return h
}

// ConfirmedFindings lists the confirmed deep dives as located findings.
func (h *HybridResult) ConfirmedFindings() []Finding {
	var out []Finding
	for _, d := range h.DeepDives {
		if !d.Confirmed {
			continue
		}
		out = append(out, Finding{
			File:     d.Section.File,
			Line:     d.Section.StartLine,
			Severity: d.EffectiveSeverity(),
			Message:  d.Section.Reason,
			Fix:      d.Fix,
			Rule:     d.Section.Rule,
		})
	}
	return out
}

// ConfirmedCounts tallies confirmed findings by effective severity.
func (h *HybridResult) ConfirmedCounts() SeverityCounts {
	var c SeverityCounts
	for _, d := range h.DeepDives {
		if d.Confirmed {
			c.Add(d.EffectiveSeverity())
		}
	}
	return c
}

// Finding is one reported issue located in a file.
type Finding struct {
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Fix      string   `json:"fix,omitempty"`
	Rule     string   `json:"rule,omitempty"`
}

// AgentResult is the verdict of one agent within a wave.
type AgentResult struct {
	AgentID  string         `json:"agent_id"`
	Wave     int            `json:"wave"`
	Status   Status         `json:"status"`
	Findings int            `json:"findings"`
	Counts   SeverityCounts `json:"counts"`
	Score    *float64       `json:"score,omitempty"`
	Coverage *float64       `json:"coverage,omitempty"`
	Cost     float64        `json:"cost_usd"`
	Duration time.Duration  `json:"duration"`
	// Reason carries the threshold verdict.
	Reason string        `json:"reason,omitempty"`
	Error  string        `json:"error,omitempty"`
	Hybrid *HybridResult `json:"hybrid,omitempty"`
	Items  []Finding     `json:"items,omitempty"`
}

// Passed reports whether the agent passed.
func (r AgentResult) Passed() bool {
	return r.Status == StatusPass
}

// FailedResult builds a FAIL result that carries err as its error text.
func FailedResult(agentID string, wave int, err error, elapsed time.Duration) AgentResult {
	return AgentResult{
		AgentID:  agentID,
		Wave:     wave,
		Status:   StatusFail,
		Duration: elapsed,
		Error:    err.Error(),
	}
}

// WaveResult aggregates the agents of one wave in configuration order.
type WaveResult struct {
	Wave      int           `json:"wave"`
	Agents    []AgentResult `json:"agents"`
	Duration  time.Duration `json:"duration"`
	AllPassed bool          `json:"all_passed"`
}

// NewWaveResult computes AllPassed over agents.
func NewWaveResult(wave int, agents []AgentResult, elapsed time.Duration) WaveResult {
	all := true
	for _, a := range agents {
		if !a.Passed() {
			all = false
			break
		}
	}
	return WaveResult{Wave: wave, Agents: agents, Duration: elapsed, AllPassed: all}
}

// Failed returns the agents that did not pass.
func (w WaveResult) Failed() []AgentResult {
	var out []AgentResult
	for _, a := range w.Agents {
		if !a.Passed() {
			out = append(out, a)
		}
	}
	return out
}

// Cost sums agent costs.
func (w WaveResult) Cost() float64 {
	var total float64
	for _, a := range w.Agents {
		total += a.Cost
	}
	return total
}

// RunResult is the outcome of one orchestration run. Waves that were never
// started are absent.
type RunResult struct {
	SessionID string        `json:"session_id"`
	Outcome   Outcome       `json:"outcome"`
	Waves     []WaveResult  `json:"waves"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Files     []string      `json:"files,omitempty"`
}

// Cost sums the cost of every executed wave.
func (r *RunResult) Cost() float64 {
	var total float64
	for _, w := range r.Waves {
		total += w.Cost()
	}
	return total
}

// Agents flattens agent results across waves in execution order.
func (r *RunResult) Agents() []AgentResult {
	var out []AgentResult
	for _, w := range r.Waves {
		out = append(out, w.Agents...)
	}
	return out
}
