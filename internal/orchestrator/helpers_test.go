package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dusk-indust/wavecheck/internal/agent"
	"github.com/dusk-indust/wavecheck/internal/audit"
	"github.com/dusk-indust/wavecheck/internal/cost"
	"github.com/dusk-indust/wavecheck/internal/threshold"
	"github.com/stretchr/testify/require"
)

func direct(id agent.Role, wave int) agent.Descriptor {
	return agent.Descriptor{ID: id, Wave: wave, Tier: cost.TierMid, Mode: agent.ModeDirect}
}

// The standard five agents, all on the direct path.
func standardWaves() []Wave {
	return []Wave{
		{Number: 1, Agents: []agent.Descriptor{
			direct(agent.RoleBestPractices, 1),
			direct(agent.RoleSecurity, 1),
			direct(agent.RoleHallucination, 1),
		}},
		{Number: 2, Agents: []agent.Descriptor{
			direct(agent.RoleCodeReview, 2),
			direct(agent.RoleTestGen, 2),
		}},
	}
}

// passingReport returns output that passes the default rule of id.
func passingReport(id agent.Role) string {
	switch id {
	case agent.RoleCodeReview:
		return `{"findings": [], "score": 9.5}`
	case agent.RoleTestGen:
		return `{"findings": [], "coverage": 91.0}`
	default:
		return `{"findings": [], "summary": {"total": 0, "critical": 0, "high": 0, "medium": 0, "low": 0}}`
	}
}

const failingSecurityReport = `{"findings": [{"file": "app.py", "line": 3, "severity": "CRITICAL", "finding": "SQL injection"}]}`

// scriptedInvoker answers per agent; agents without a script pass.
type scriptedInvoker struct {
	mu      sync.Mutex
	outputs map[agent.Role]string
	errs    map[agent.Role]error
	before  func(ctx context.Context, desc agent.Descriptor)
	calls   []agent.Role
}

func (s *scriptedInvoker) Invoke(ctx context.Context, desc agent.Descriptor, ic agent.InvocationContext) (*agent.InvocationResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, desc.ID)
	s.mu.Unlock()
	if s.before != nil {
		s.before(ctx, desc)
	}
	if err := s.errs[desc.ID]; err != nil {
		return nil, err
	}
	out, ok := s.outputs[desc.ID]
	if !ok {
		out = passingReport(desc.ID)
	}
	return &agent.InvocationResult{Output: out, InputTokens: 1000, OutputTokens: 200}, nil
}

func (s *scriptedInvoker) called() []agent.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]agent.Role(nil), s.calls...)
}

func newRunner(t *testing.T, inv agent.Invoker, opts ...RunnerOption) *Runner {
	t.Helper()
	ev, err := threshold.NewEvaluator(threshold.DefaultTable())
	require.NoError(t, err)
	return NewRunner(inv, ev, cost.DefaultModel(), opts...)
}

// memorySink records audit records in append order.
type memorySink struct {
	mu      sync.Mutex
	records []audit.Record
	err     error
	onAdd   func(audit.Record)
}

func (m *memorySink) Append(_ context.Context, rec audit.Record) error {
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
	if m.onAdd != nil {
		m.onAdd(rec)
	}
	return m.err
}

func (m *memorySink) agents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.records))
	for i, r := range m.records {
		out[i] = r.Agent
	}
	return out
}

var errBoom = errors.New("upstream exploded")

// mapReader serves file contents from memory.
func mapReader(files map[string]string) func(string) ([]byte, error) {
	return func(path string) ([]byte, error) {
		s, ok := files[path]
		if !ok {
			return nil, errors.New("no such file")
		}
		return []byte(s), nil
	}
}
