// Package report renders a finished run as JSON, Markdown, a Mermaid wave
// diagram and a coloured terminal summary, and persists them per session.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dusk-indust/wavecheck/internal/model"
)

// Report is the exported view of a run.
type Report struct {
	SessionID   string       `json:"sessionId"`
	Outcome     string       `json:"outcome"`
	GeneratedAt string       `json:"generatedAt"`
	StartedAt   string       `json:"startedAt"`
	DurationMS  int64        `json:"durationMs"`
	CostUSD     float64      `json:"costUsd"`
	Files       []string     `json:"files,omitempty"`
	Waves       []WaveExport `json:"waves"`
	// GatedAfter is the wave whose failure stopped the run, or 0.
	GatedAfter int `json:"gatedAfter,omitempty"`
}

// WaveExport describes one executed wave.
type WaveExport struct {
	Wave       int           `json:"wave"`
	AllPassed  bool          `json:"allPassed"`
	DurationMS int64         `json:"durationMs"`
	CostUSD    float64       `json:"costUsd"`
	Agents     []AgentExport `json:"agents"`
}

// AgentExport describes one agent verdict.
type AgentExport struct {
	Agent          string          `json:"agent"`
	Status         string          `json:"status"`
	Findings       int             `json:"findings"`
	Critical       int             `json:"critical"`
	High           int             `json:"high"`
	Medium         int             `json:"medium"`
	Low            int             `json:"low"`
	Score          *float64        `json:"score,omitempty"`
	Coverage       *float64        `json:"coverage,omitempty"`
	CostUSD        float64         `json:"costUsd"`
	DurationMS     int64           `json:"durationMs"`
	Reason         string          `json:"reason,omitempty"`
	Error          string          `json:"error,omitempty"`
	Hybrid         bool            `json:"hybrid,omitempty"`
	Flagged        int             `json:"flagged,omitempty"`
	FalsePositives int             `json:"falsePositives,omitempty"`
	Items          []model.Finding `json:"items,omitempty"`
}

// Build converts run into a Report stamped with now.
func Build(run *model.RunResult, now time.Time) *Report {
	r := &Report{
		SessionID:   run.SessionID,
		Outcome:     string(run.Outcome),
		GeneratedAt: now.UTC().Format(time.RFC3339),
		StartedAt:   run.StartedAt.UTC().Format(time.RFC3339),
		DurationMS:  run.Duration.Milliseconds(),
		CostUSD:     run.Cost(),
		Files:       run.Files,
	}
	for _, w := range run.Waves {
		we := WaveExport{
			Wave:       w.Wave,
			AllPassed:  w.AllPassed,
			DurationMS: w.Duration.Milliseconds(),
			CostUSD:    w.Cost(),
		}
		for _, a := range w.Agents {
			we.Agents = append(we.Agents, exportAgent(a))
		}
		r.Waves = append(r.Waves, we)
		if !w.AllPassed && r.GatedAfter == 0 {
			r.GatedAfter = w.Wave
		}
	}
	return r
}

func exportAgent(a model.AgentResult) AgentExport {
	ae := AgentExport{
		Agent:      a.AgentID,
		Status:     string(a.Status),
		Findings:   a.Findings,
		Critical:   a.Counts.Critical,
		High:       a.Counts.High,
		Medium:     a.Counts.Medium,
		Low:        a.Counts.Low,
		Score:      a.Score,
		Coverage:   a.Coverage,
		CostUSD:    a.Cost,
		DurationMS: a.Duration.Milliseconds(),
		Reason:     a.Reason,
		Error:      a.Error,
		Items:      a.Items,
	}
	if a.Hybrid != nil {
		ae.Hybrid = true
		ae.Flagged = len(a.Hybrid.Scan.Sections)
		ae.FalsePositives = a.Hybrid.FalsePositives
	}
	return ae
}

// Passed reports whether the run succeeded.
func (r *Report) Passed() bool {
	return r.Outcome == string(model.OutcomeSuccess)
}

// Failed lists the agents that did not pass, in wave order.
func (r *Report) Failed() []AgentExport {
	var out []AgentExport
	for _, w := range r.Waves {
		for _, a := range w.Agents {
			if a.Status != string(model.StatusPass) {
				out = append(out, a)
			}
		}
	}
	return out
}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

func formatMS(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).String()
}
