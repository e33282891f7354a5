package mcptools

import (
	"github.com/dusk-indust/wavecheck/internal/findings"
	"github.com/dusk-indust/wavecheck/internal/orchestrator"
	"github.com/dusk-indust/wavecheck/internal/report"
)

// --- MCP tool input and output types ---
// The MCP Go SDK derives each tool's JSON schema from these struct tags.

// RunVerificationInput is the input for the run_verification tool.
type RunVerificationInput struct {
	Files      []string `json:"files,omitempty" jsonschema:"files to verify; takes precedence over diff"`
	Diff       string   `json:"diff,omitempty" jsonschema:"unified diff whose added or modified files are verified"`
	Extensions []string `json:"extensions,omitempty" jsonschema:"only verify files with these extensions (e.g. py, go)"`
}

// RunVerificationOutput is the result of the run_verification tool.
type RunVerificationOutput struct {
	SessionID      string         `json:"sessionId"`
	Outcome        string         `json:"outcome"`
	CostUSD        float64        `json:"costUsd"`
	Agents         []AgentSummary `json:"agents"`
	GatedAfter     int            `json:"gatedAfter,omitempty"`
	Reports        *report.Paths  `json:"reports,omitempty"`
	ClearedMarkers int            `json:"clearedMarkers,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// AgentSummary is one agent verdict of a run.
type AgentSummary struct {
	Agent    string  `json:"agent"`
	Wave     int     `json:"wave"`
	Status   string  `json:"status"`
	Findings int     `json:"findings"`
	CostUSD  float64 `json:"costUsd"`
	Reason   string  `json:"reason,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// EstimateCostInput is the input for the estimate_cost tool.
type EstimateCostInput struct {
	Files      []string `json:"files,omitempty" jsonschema:"files to price; takes precedence over diff"`
	Diff       string   `json:"diff,omitempty" jsonschema:"unified diff whose added or modified files are priced"`
	Extensions []string `json:"extensions,omitempty" jsonschema:"only price files with these extensions"`
}

// EstimateCostOutput is the result of the estimate_cost tool.
type EstimateCostOutput struct {
	Estimate orchestrator.Estimate `json:"estimate"`
}

// VoteSeverityInput is the input for the vote_severity tool.
type VoteSeverityInput struct {
	Agent         string  `json:"agent,omitempty" jsonschema:"agent whose finding is voted on (e.g. security-auditor)"`
	File          string  `json:"file" jsonschema:"file containing the finding"`
	StartLine     int     `json:"startLine,omitempty" jsonschema:"first line of the code in question"`
	EndLine       int     `json:"endLine,omitempty" jsonschema:"last line of the code in question"`
	Finding       string  `json:"finding" jsonschema:"description of the suspected issue"`
	Code          string  `json:"code,omitempty" jsonschema:"the code in question"`
	Samples       int     `json:"samples,omitempty" jsonschema:"number of independent samples (default from config)"`
	MinConfidence float64 `json:"minConfidence,omitempty" jsonschema:"vote share required to report (default from config)"`
}

// VoteSeverityOutput is the result of the vote_severity tool.
type VoteSeverityOutput struct {
	Decision    string         `json:"decision"`
	Confidence  float64        `json:"confidence"`
	Report      bool           `json:"report"`
	Votes       map[string]int `json:"votes"`
	Unparseable int            `json:"unparseable"`
	Samples     int            `json:"samples"`
}

// QueryFindingsInput is the input for the query_findings tool.
type QueryFindingsInput struct {
	SessionID string `json:"sessionId,omitempty" jsonschema:"return the findings of this run"`
	File      string `json:"file,omitempty" jsonschema:"return every finding located in this file"`
	Hotspots  int    `json:"hotspots,omitempty" jsonschema:"also return the N files with the most findings"`
}

// QueryFindingsOutput is the result of the query_findings tool.
type QueryFindingsOutput struct {
	Findings []findings.FindingNode `json:"findings"`
	Hotspots []findings.FileCount   `json:"hotspots,omitempty"`
	Stats    findings.Stats         `json:"stats"`
}
