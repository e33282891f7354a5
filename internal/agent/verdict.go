package agent

import (
	"fmt"
	"strings"

	"github.com/dusk-indust/wavecheck/internal/model"
)

// Verdict is the outcome of a deep dive.
type Verdict string

const (
	VerdictConfirmed Verdict = "confirmed"
	VerdictRefuted   Verdict = "refuted"
	VerdictUncertain Verdict = "uncertain"
)

// DeepDiveVerdict is the parsed response to a deep-dive prompt.
type DeepDiveVerdict struct {
	Verdict   Verdict        `json:"verdict"`
	Severity  model.Severity `json:"severity"`
	Fix       string         `json:"fix,omitempty"`
	Reasoning string         `json:"reasoning,omitempty"`
}

// ParseVerdict decodes a deep-dive response.
func ParseVerdict(raw string) (*DeepDiveVerdict, error) {
	var v DeepDiveVerdict
	if err := decodeJSON(raw, &v); err != nil {
		return nil, err
	}
	v.Verdict = Verdict(strings.ToLower(strings.TrimSpace(string(v.Verdict))))
	switch v.Verdict {
	case VerdictConfirmed, VerdictRefuted, VerdictUncertain:
	default:
		return nil, newParseError(raw, fmt.Sprintf("unknown verdict %q", v.Verdict), nil)
	}
	return &v, nil
}
