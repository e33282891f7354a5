package threshold

// DefaultTable is the built-in rule set for the standard agents.
func DefaultTable() Table {
	return Table{
		"best-practices-enforcer": {Kind: KindCount, Metric: "violations", Max: 0},
		"security-auditor":        {Kind: KindSeverity, MaxHigh: 0},
		"hallucination-detector":  {Kind: KindCount, Metric: "hallucinations", Max: 0},
		"code-reviewer":           {Kind: KindScore, MinScore: 9.0},
		"test-generator":          {Kind: KindCoverage, MinCoverage: 80.0},
	}
}
