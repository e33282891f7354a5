package hybrid

import (
	"context"
	"fmt"

	"github.com/dusk-indust/wavecheck/internal/agent"
)

// Estimate is the projected spend of one hybrid agent, computed from a local
// phase-1 scan without invoking any model.
type Estimate struct {
	AgentID      string  `json:"agent_id"`
	Flagged      int     `json:"flagged"`
	Selected     int     `json:"selected"`
	ScanCost     float64 `json:"scan_cost_usd"`
	DeepDiveCost float64 `json:"deep_dive_cost_usd"`
	Total        float64 `json:"total_cost_usd"`
}

// Estimate scans files for desc and prices a deep dive of every section that
// would be selected. Voting is not included.
func (p *Pipeline) Estimate(ctx context.Context, desc agent.Descriptor, files []string) (Estimate, error) {
	scanRes, sources, err := p.scanner.Scan(ctx, desc, files)
	if err != nil {
		return Estimate{}, fmt.Errorf("hybrid: %s: scan: %w", desc.ID, err)
	}
	selected := p.selectSections(scanRes.Sections, sources)

	est := Estimate{
		AgentID:  string(desc.ID),
		Flagged:  len(scanRes.Sections),
		Selected: len(selected),
		ScanCost: scanRes.Cost,
	}
	for _, s := range selected {
		code, _ := sources.Extract(s)
		in, out := p.estimateSection(code)
		est.DeepDiveCost += p.costs.Estimate(p.cfg.DeepDiveTier, in, out)
	}
	est.Total = est.ScanCost + est.DeepDiveCost
	return est, nil
}
