// Package findings keeps a graph of verification runs: each run has agent
// runs, each agent run flags findings, and each finding is located in a file.
package findings

import (
	"context"
	"io"
	"time"
)

// Store is the findings graph backend.
// Implementations: KuzuStore (cgo builds), MemStore.
type Store interface {
	io.Closer

	InitSchema(ctx context.Context) error

	AddRun(ctx context.Context, run RunNode) error
	// AddAgentRun requires the parent run to exist.
	AddAgentRun(ctx context.Context, ar AgentRunNode) error
	// AddFinding requires the agent run to exist. The file node is created
	// on first reference.
	AddFinding(ctx context.Context, f FindingNode) error

	FindingsByRun(ctx context.Context, sessionID string) ([]FindingNode, error)
	FindingsByFile(ctx context.Context, path string) ([]FindingNode, error)
	Hotspots(ctx context.Context, limit int) ([]FileCount, error)

	Stats(ctx context.Context) (*Stats, error)
}

// RunNode is one orchestration run.
type RunNode struct {
	SessionID string    `json:"session_id"`
	Outcome   string    `json:"outcome"`
	StartedAt time.Time `json:"started_at"`
	CostUSD   float64   `json:"cost_usd"`
}

// AgentRunNode is one agent's execution inside a run.
type AgentRunNode struct {
	ID        string  `json:"id"`
	SessionID string  `json:"session_id"`
	Agent     string  `json:"agent"`
	Wave      int     `json:"wave"`
	Status    string  `json:"status"`
	CostUSD   float64 `json:"cost_usd"`
}

// FindingNode is one reported issue.
type FindingNode struct {
	ID         string `json:"id"`
	AgentRunID string `json:"agent_run_id"`
	Agent      string `json:"agent"`
	File       string `json:"file"`
	Line       int    `json:"line"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
	Fix        string `json:"fix,omitempty"`
	Rule       string `json:"rule,omitempty"`
}

// FileCount pairs a file with the number of findings located in it.
type FileCount struct {
	Path     string `json:"path"`
	Findings int    `json:"findings"`
}

// Stats summarises the graph.
type Stats struct {
	Runs       int            `json:"runs"`
	AgentRuns  int            `json:"agent_runs"`
	Findings   int            `json:"findings"`
	Files      int            `json:"files"`
	BySeverity map[string]int `json:"by_severity"`
}

// AgentRunID builds the agent run key.
func AgentRunID(sessionID, agent string) string {
	return sessionID + "/" + agent
}
