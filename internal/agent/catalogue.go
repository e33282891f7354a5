package agent

import "github.com/dusk-indust/wavecheck/internal/cost"

// DefaultCatalogue returns the built-in two-wave agent set. Wave 1 looks for
// pattern-level defects; wave 2 judges quality and coverage once wave 1 is
// clean.
func DefaultCatalogue() []Descriptor {
	return []Descriptor{
		{ID: RoleBestPractices, Wave: 1, Tier: cost.TierMid, Mode: ModeHybrid, Structural: true},
		{ID: RoleSecurity, Wave: 1, Tier: cost.TierCheap, Mode: ModeHybrid},
		{ID: RoleHallucination, Wave: 1, Tier: cost.TierMid, Mode: ModeDirect},
		{ID: RoleCodeReview, Wave: 2, Tier: cost.TierMid, Mode: ModeDirect},
		{ID: RoleTestGen, Wave: 2, Tier: cost.TierMid, Mode: ModeDirect},
	}
}
