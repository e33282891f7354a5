package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dusk-indust/wavecheck/internal/model"
)

// previewLimit bounds how much raw output a ParseError carries.
const previewLimit = 200

// ParseError reports agent output that could not be interpreted.
type ParseError struct {
	Reason  string
	Preview string
	Err     error
}

func (e *ParseError) Error() string {
	msg := "failed to parse response"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Preview != "" {
		msg += fmt.Sprintf(" (preview: %q)", e.Preview)
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func newParseError(raw, reason string, err error) *ParseError {
	preview := raw
	if len(preview) > previewLimit {
		preview = preview[:previewLimit]
	}
	return &ParseError{Reason: reason, Preview: preview, Err: err}
}

// Finding is one issue reported by an agent.
type Finding struct {
	File     string         `json:"file"`
	Line     int            `json:"line"`
	Severity model.Severity `json:"severity"`
	Finding  string         `json:"finding"`
	Fix      string         `json:"fix,omitempty"`
	CWE      string         `json:"cwe,omitempty"`
}

// Summary is the agent's own tally of its findings.
type Summary struct {
	Total    int `json:"total"`
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Report is the structured output of a direct invocation.
type Report struct {
	Findings []Finding `json:"findings"`
	Summary  *Summary  `json:"summary"`
	Score    *float64  `json:"score,omitempty"`
	Coverage *float64  `json:"coverage,omitempty"`
}

// Counts tallies findings by severity. Listed findings take precedence over
// the summary block, which is used only when no findings are listed.
func (r *Report) Counts() model.SeverityCounts {
	var c model.SeverityCounts
	if len(r.Findings) > 0 || r.Summary == nil {
		for _, f := range r.Findings {
			c.Add(f.Severity)
		}
		return c
	}
	return model.SeverityCounts{
		Critical: r.Summary.Critical,
		High:     r.Summary.High,
		Medium:   r.Summary.Medium,
		Low:      r.Summary.Low,
	}
}

// Total is the number of findings.
func (r *Report) Total() int {
	if len(r.Findings) > 0 || r.Summary == nil {
		return len(r.Findings)
	}
	return max(r.Summary.Total, r.Counts().Total())
}

// Located converts the listed findings to model findings. The CWE, when
// present, is carried as the rule.
func (r *Report) Located() []model.Finding {
	if len(r.Findings) == 0 {
		return nil
	}
	out := make([]model.Finding, len(r.Findings))
	for i, f := range r.Findings {
		out[i] = model.Finding{
			File:     f.File,
			Line:     f.Line,
			Severity: f.Severity,
			Message:  f.Finding,
			Fix:      f.Fix,
			Rule:     f.CWE,
		}
	}
	return out
}

// ParseReport decodes an agent's JSON report. Surrounding prose and markdown
// fences are tolerated; anything else yields a *ParseError.
func ParseReport(raw string) (*Report, error) {
	var r Report
	if err := decodeJSON(raw, &r); err != nil {
		return nil, err
	}
	if r.Findings == nil && r.Summary == nil && r.Score == nil && r.Coverage == nil {
		return nil, newParseError(raw, "no findings, summary, score or coverage", nil)
	}
	for i, f := range r.Findings {
		if f.Severity == model.SeverityUnknown {
			return nil, newParseError(raw, fmt.Sprintf("finding %d has no severity", i), nil)
		}
	}
	return &r, nil
}

// decodeJSON extracts the outermost JSON object from raw, checks its nesting
// depth and decodes it into dst.
func decodeJSON(raw string, dst any) error {
	body, ok := extractObject(raw)
	if !ok {
		return newParseError(raw, "no JSON object found", nil)
	}

	var generic any
	if err := json.Unmarshal([]byte(body), &generic); err != nil {
		return newParseError(raw, "invalid JSON", err)
	}
	if err := ValidateDepth(generic, MaxJSONDepth); err != nil {
		return newParseError(raw, "nesting too deep", err)
	}
	if err := json.Unmarshal([]byte(body), dst); err != nil {
		return newParseError(raw, "unexpected shape", err)
	}
	return nil
}

// extractObject returns the text between the first '{' and the last '}'.
func extractObject(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < start {
		return "", false
	}
	return raw[start : end+1], true
}
