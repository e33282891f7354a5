// Package model holds the result types shared across a verification run:
// severities, flagged sections, deep-dive outcomes and the per-agent, per-wave
// and per-run aggregates built from them.
package model

import (
	"fmt"
	"strings"
)

// Severity is the ordered impact category of a finding.
// Larger values are more severe; the zero value is SeverityUnknown.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// Precedence lists severities from most to least severe. Scanners and voters
// walk categories in this order, so it also fixes tie-breaking.
var Precedence = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

func (s Severity) String() string {
	names := [...]string{"UNKNOWN", "LOW", "MEDIUM", "HIGH", "CRITICAL"}
	if s >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "UNKNOWN"
}

// Blocking reports whether a confirmed finding of this severity fails an agent.
func (s Severity) Blocking() bool {
	return s >= SeverityHigh
}

// ParseSeverity converts a case-insensitive severity name.
func ParseSeverity(name string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "CRITICAL":
		return SeverityCritical, nil
	case "HIGH":
		return SeverityHigh, nil
	case "MEDIUM":
		return SeverityMedium, nil
	case "LOW":
		return SeverityLow, nil
	}
	return SeverityUnknown, fmt.Errorf("model: unknown severity %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	if len(text) == 0 || strings.EqualFold(string(text), "UNKNOWN") {
		*s = SeverityUnknown
		return nil
	}
	v, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// SeverityCounts tallies findings per severity.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Add increments the bucket for sev. Unknown severities are ignored.
func (c *SeverityCounts) Add(sev Severity) {
	switch sev {
	case SeverityCritical:
		c.Critical++
	case SeverityHigh:
		c.High++
	case SeverityMedium:
		c.Medium++
	case SeverityLow:
		c.Low++
	}
}

// Total returns the sum over all buckets.
func (c SeverityCounts) Total() int {
	return c.Critical + c.High + c.Medium + c.Low
}
