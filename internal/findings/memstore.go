package findings

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

var _ Store = (*MemStore)(nil)

// MemStore implements Store with maps. Safe for concurrent use.
type MemStore struct {
	mu        sync.RWMutex
	runs      map[string]RunNode
	agentRuns map[string]AgentRunNode
	findings  map[string]FindingNode
	files     map[string]struct{}
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		runs:      make(map[string]RunNode),
		agentRuns: make(map[string]AgentRunNode),
		findings:  make(map[string]FindingNode),
		files:     make(map[string]struct{}),
	}
}

// InitSchema is a no-op.
func (m *MemStore) InitSchema(_ context.Context) error {
	return nil
}

// Close is a no-op.
func (m *MemStore) Close() error {
	return nil
}

func (m *MemStore) AddRun(_ context.Context, run RunNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.SessionID]; ok {
		return fmt.Errorf("findings: run %s already recorded", run.SessionID)
	}
	m.runs[run.SessionID] = run
	return nil
}

func (m *MemStore) AddAgentRun(_ context.Context, ar AgentRunNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[ar.SessionID]; !ok {
		return fmt.Errorf("findings: unknown run %s", ar.SessionID)
	}
	if _, ok := m.agentRuns[ar.ID]; ok {
		return fmt.Errorf("findings: agent run %s already recorded", ar.ID)
	}
	m.agentRuns[ar.ID] = ar
	return nil
}

func (m *MemStore) AddFinding(_ context.Context, f FindingNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agentRuns[f.AgentRunID]; !ok {
		return fmt.Errorf("findings: unknown agent run %s", f.AgentRunID)
	}
	m.findings[f.ID] = f
	m.files[f.File] = struct{}{}
	return nil
}

func (m *MemStore) FindingsByRun(_ context.Context, sessionID string) ([]FindingNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []FindingNode
	for _, f := range m.findings {
		if m.agentRuns[f.AgentRunID].SessionID == sessionID {
			out = append(out, f)
		}
	}
	sortFindings(out)
	return out, nil
}

func (m *MemStore) FindingsByFile(_ context.Context, path string) ([]FindingNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []FindingNode
	for _, f := range m.findings {
		if f.File == path {
			out = append(out, f)
		}
	}
	sortFindings(out)
	return out, nil
}

func (m *MemStore) Hotspots(_ context.Context, limit int) ([]FileCount, error) {
	m.mu.RLock()
	counts := make(map[string]int, len(m.files))
	for _, f := range m.findings {
		counts[f.File]++
	}
	m.mu.RUnlock()

	out := make([]FileCount, 0, len(counts))
	for p, n := range counts {
		out = append(out, FileCount{Path: p, Findings: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Findings != out[j].Findings {
			return out[i].Findings > out[j].Findings
		}
		return out[i].Path < out[j].Path
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) Stats(_ context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := &Stats{
		Runs:       len(m.runs),
		AgentRuns:  len(m.agentRuns),
		Findings:   len(m.findings),
		Files:      len(m.files),
		BySeverity: make(map[string]int),
	}
	for _, f := range m.findings {
		st.BySeverity[f.Severity]++
	}
	return st, nil
}

// sortFindings orders by file, line, agent, then id; KuzuStore queries use
// the same ordering.
func sortFindings(fs []FindingNode) {
	sort.Slice(fs, func(i, j int) bool {
		a, b := fs[i], fs[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Agent != b.Agent {
			return a.Agent < b.Agent
		}
		return a.ID < b.ID
	})
}
