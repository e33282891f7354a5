// Package orchestrator runs verification agents in gated waves: every agent
// of a wave runs concurrently, and the next wave starts only when the whole
// wave passed.
package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"github.com/dusk-indust/wavecheck/internal/agent"
	"github.com/dusk-indust/wavecheck/internal/model"
)

// State is the position of a run in the wave state machine.
type State int

const (
	StatePending State = iota
	StateWaveRunning
	StateWaveEvaluated
	StateDoneSuccess
	StateDoneFailure
)

func (s State) String() string {
	names := [...]string{
		"pending",
		"wave-running",
		"wave-evaluated",
		"done-success",
		"done-failure",
	}
	if int(s) >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDoneSuccess || s == StateDoneFailure
}

// Wave is one ordered stage. Its agent set is fixed before execution.
type Wave struct {
	Number int
	Agents []agent.Descriptor
}

// ErrInvalidWaves reports malformed wave definitions.
var ErrInvalidWaves = errors.New("orchestrator: invalid wave definitions")

// ValidateWaves checks that wave numbers strictly increase, every wave has
// agents, each agent is assigned to the wave that contains it, and no agent
// appears twice.
func ValidateWaves(waves []Wave) error {
	if len(waves) == 0 {
		return fmt.Errorf("%w: no waves", ErrInvalidWaves)
	}
	seen := make(map[agent.Role]int)
	prev := 0
	for i, w := range waves {
		if i > 0 && w.Number <= prev {
			return fmt.Errorf("%w: wave %d follows wave %d", ErrInvalidWaves, w.Number, prev)
		}
		prev = w.Number
		if len(w.Agents) == 0 {
			return fmt.Errorf("%w: wave %d has no agents", ErrInvalidWaves, w.Number)
		}
		for _, d := range w.Agents {
			if err := d.Validate(); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidWaves, err)
			}
			if d.Wave != w.Number {
				return fmt.Errorf("%w: agent %s is assigned to wave %d but listed in wave %d", ErrInvalidWaves, d.ID, d.Wave, w.Number)
			}
			if other, dup := seen[d.ID]; dup {
				return fmt.Errorf("%w: agent %s listed in waves %d and %d", ErrInvalidWaves, d.ID, other, w.Number)
			}
			seen[d.ID] = w.Number
		}
	}
	return nil
}

// WavesFromRegistry groups the registry's agents by wave number.
func WavesFromRegistry(reg *agent.Registry) []Wave {
	numbers, byWave := reg.ByWave()
	waves := make([]Wave, 0, len(numbers))
	for _, n := range numbers {
		waves = append(waves, Wave{Number: n, Agents: byWave[n]})
	}
	return waves
}

// ProgressEvent is emitted while a run advances.
type ProgressEvent struct {
	State   State
	Wave    int
	Agent   string
	Status  ProgressStatus
	Message string
	Elapsed time.Duration
}

// ProgressStatus is the state of an agent within a wave.
type ProgressStatus string

const (
	ProgressPending  ProgressStatus = "pending"
	ProgressWorking  ProgressStatus = "working"
	ProgressComplete ProgressStatus = "complete"
	ProgressFailed   ProgressStatus = "failed"
)

// RunContext is what every agent of a run shares.
type RunContext struct {
	SessionID string
	Files     []string
	// OnComplete is called once per agent, right after it finishes and
	// before the wave is joined. It may be called concurrently.
	OnComplete func(model.AgentResult)
}

func (rc RunContext) complete(r model.AgentResult) {
	if rc.OnComplete != nil {
		rc.OnComplete(r)
	}
}
