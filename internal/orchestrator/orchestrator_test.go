package orchestrator

import (
	"testing"

	"github.com/dusk-indust/wavecheck/internal/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_String(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "done-failure", StateDoneFailure.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.True(t, StateDoneSuccess.Terminal())
	assert.False(t, StateWaveEvaluated.Terminal())
}

func TestValidateWaves(t *testing.T) {
	require.NoError(t, ValidateWaves(standardWaves()))

	tests := map[string][]Wave{
		"empty":        nil,
		"no agents":    {{Number: 1}},
		"out of order": {{Number: 2, Agents: []agent.Descriptor{direct(agent.RoleSecurity, 2)}}, {Number: 1, Agents: []agent.Descriptor{direct(agent.RoleCodeReview, 1)}}},
		"wrong wave":   {{Number: 1, Agents: []agent.Descriptor{direct(agent.RoleSecurity, 2)}}},
		"duplicate": {
			{Number: 1, Agents: []agent.Descriptor{direct(agent.RoleSecurity, 1)}},
			{Number: 2, Agents: []agent.Descriptor{direct(agent.RoleSecurity, 2)}},
		},
		"bad mode": {{Number: 1, Agents: []agent.Descriptor{{ID: agent.RoleSecurity, Wave: 1, Mode: "psychic"}}}},
	}
	for name, waves := range tests {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, ValidateWaves(waves), ErrInvalidWaves)
		})
	}
}

func TestWavesFromRegistry(t *testing.T) {
	reg, err := agent.NewRegistry(agent.DefaultCatalogue()...)
	require.NoError(t, err)

	waves := WavesFromRegistry(reg)
	require.Len(t, waves, 2)
	assert.Equal(t, 1, waves[0].Number)
	assert.Len(t, waves[0].Agents, 3)
	assert.Len(t, waves[1].Agents, 2)
	require.NoError(t, ValidateWaves(waves))
}
