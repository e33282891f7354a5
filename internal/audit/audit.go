// Package audit appends one structured record per agent completion to an
// append-only log partitioned by UTC day.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/dusk-indust/wavecheck/internal/model"
)

// Record is one audit log line.
type Record struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	SessionID  string    `json:"session_id"`
	Agent      string    `json:"agent"`
	Wave       int       `json:"wave"`
	Status     string    `json:"status"`
	Findings   int       `json:"findings"`
	Critical   int       `json:"critical"`
	High       int       `json:"high"`
	Medium     int       `json:"medium"`
	Low        int       `json:"low"`
	CostUSD    float64   `json:"cost_usd"`
	DurationMS int64     `json:"duration_ms"`
	Reason     string    `json:"reason,omitempty"`
	ReportPath string    `json:"report_path,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// FromAgentResult builds the record for r at time now.
func FromAgentResult(sessionID string, r model.AgentResult, now time.Time) Record {
	return Record{
		ID:         fmt.Sprintf("%s-%d", r.AgentID, now.Unix()),
		Timestamp:  now.UTC(),
		SessionID:  sessionID,
		Agent:      r.AgentID,
		Wave:       r.Wave,
		Status:     string(r.Status),
		Findings:   r.Findings,
		Critical:   r.Counts.Critical,
		High:       r.Counts.High,
		Medium:     r.Counts.Medium,
		Low:        r.Counts.Low,
		CostUSD:    r.Cost,
		DurationMS: r.Duration.Milliseconds(),
		Reason:     r.Reason,
		Error:      r.Error,
	}
}

// Sink receives audit records. Implementations must be safe for concurrent
// use.
type Sink interface {
	Append(ctx context.Context, rec Record) error
}

// Discard drops every record.
var Discard Sink = discard{}

type discard struct{}

func (discard) Append(context.Context, Record) error { return nil }
