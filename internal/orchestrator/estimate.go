package orchestrator

import (
	"context"

	"github.com/dusk-indust/wavecheck/internal/agent"
	"github.com/dusk-indust/wavecheck/internal/batch"
	"github.com/dusk-indust/wavecheck/internal/cost"
)

// AgentEstimate is the projected spend of one agent.
type AgentEstimate struct {
	AgentID string     `json:"agent_id"`
	Wave    int        `json:"wave"`
	Mode    agent.Mode `json:"mode"`
	Tier    string     `json:"tier"`
	// Flagged and Selected are set for hybrid agents.
	Flagged  int `json:"flagged,omitempty"`
	Selected int `json:"selected,omitempty"`
	// InputTokens and OutputTokens are set for direct agents. Output is the
	// response cap, so direct estimates are upper bounds.
	InputTokens  int     `json:"input_tokens,omitempty"`
	OutputTokens int     `json:"output_tokens,omitempty"`
	CostUSD      float64 `json:"cost_usd"`
}

// Estimate projects the spend of a run before it starts.
type Estimate struct {
	Agents []AgentEstimate `json:"agents"`
	// TotalUSD assumes every wave runs.
	TotalUSD float64 `json:"total_usd"`
	// BatchUSD applies the batch discount to direct agents.
	BatchUSD float64 `json:"batch_usd"`
}

// Estimate prices every agent of waves over files without invoking a model.
// Hybrid agents run the local phase-1 scan; direct agents are priced from
// the prompt they would be sent, file contents included.
func (r *Runner) Estimate(ctx context.Context, waves []Wave, files []string) (*Estimate, error) {
	if err := ValidateWaves(waves); err != nil {
		return nil, err
	}

	est := &Estimate{}
	for _, w := range waves {
		for _, desc := range w.Agents {
			ae, err := r.estimateAgent(ctx, desc, files)
			if err != nil {
				return nil, err
			}
			est.Agents = append(est.Agents, ae)
			est.TotalUSD += ae.CostUSD
			if desc.Mode == agent.ModeDirect {
				est.BatchUSD += ae.CostUSD * batch.Discount
			} else {
				est.BatchUSD += ae.CostUSD
			}
		}
	}
	return est, nil
}

func (r *Runner) estimateAgent(ctx context.Context, desc agent.Descriptor, files []string) (AgentEstimate, error) {
	ae := AgentEstimate{
		AgentID: string(desc.ID),
		Wave:    desc.Wave,
		Mode:    desc.Mode,
		Tier:    r.costs.Resolve(desc.Tier),
	}
	if desc.Mode == agent.ModeHybrid && r.pipeline != nil {
		h, err := r.pipeline.Estimate(ctx, desc, files)
		if err != nil {
			return ae, err
		}
		ae.Flagged = h.Flagged
		ae.Selected = h.Selected
		ae.CostUSD = h.Total
		return ae, nil
	}

	prompt, err := r.Prompt(desc, RunContext{Files: files})
	if err != nil {
		return ae, err
	}
	ae.InputTokens = cost.EstimateTokens(prompt)
	ae.OutputTokens = r.maxTokens
	ae.CostUSD = r.costs.Estimate(ae.Tier, ae.InputTokens, ae.OutputTokens)
	return ae, nil
}
