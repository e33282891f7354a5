package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dusk-indust/wavecheck/internal/agent"
	"github.com/dusk-indust/wavecheck/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanOut_RunsConcurrentlyAndKeepsOrder(t *testing.T) {
	agents := standardWaves()[0].Agents
	var inFlight, peak atomic.Int32
	fn := func(_ context.Context, d agent.Descriptor) model.AgentResult {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return model.AgentResult{AgentID: string(d.ID), Wave: 1, Status: model.StatusPass}
	}

	results := NewFanOut(nil).Run(context.Background(), 1, agents, fn, nil)
	require.Len(t, results, 3)
	for i, d := range agents {
		assert.Equal(t, string(d.ID), results[i].AgentID)
	}
	assert.Equal(t, int32(3), peak.Load())
}

func TestFanOut_EmitsProgressAndCompletions(t *testing.T) {
	agents := standardWaves()[0].Agents
	var (
		mu        sync.Mutex
		events    []ProgressEvent
		completed []string
	)
	onProgress := func(ev ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	}
	onComplete := func(r model.AgentResult) {
		mu.Lock()
		defer mu.Unlock()
		completed = append(completed, r.AgentID)
	}
	fn := func(_ context.Context, d agent.Descriptor) model.AgentResult {
		if d.ID == agent.RoleSecurity {
			return model.AgentResult{AgentID: string(d.ID), Status: model.StatusFail, Error: "boom"}
		}
		return model.AgentResult{AgentID: string(d.ID), Status: model.StatusPass}
	}

	NewFanOut(onProgress).Run(context.Background(), 1, agents, fn, onComplete)

	assert.ElementsMatch(t, []string{"best-practices-enforcer", "security-auditor", "hallucination-detector"}, completed)

	counts := map[ProgressStatus]int{}
	for _, ev := range events {
		counts[ev.Status]++
		if ev.Status == ProgressFailed {
			assert.Equal(t, "security-auditor", ev.Agent)
			assert.Equal(t, "boom", ev.Message)
		}
	}
	assert.Equal(t, 3, counts[ProgressPending])
	assert.Equal(t, 3, counts[ProgressWorking])
	assert.Equal(t, 2, counts[ProgressComplete])
	assert.Equal(t, 1, counts[ProgressFailed])
}

func TestFanOut_EmptyWave(t *testing.T) {
	results := NewFanOut(nil).Run(context.Background(), 1, nil, nil, nil)
	assert.Empty(t, results)
}
