package audit

import (
	"sort"
	"time"
)

// AgentSummary aggregates one agent's records.
type AgentSummary struct {
	Agent        string        `json:"agent"`
	Runs         int           `json:"runs"`
	Failures     int           `json:"failures"`
	Errors       int           `json:"errors"`
	Findings     int           `json:"findings"`
	CostUSD      float64       `json:"cost_usd"`
	MeanDuration time.Duration `json:"mean_duration"`
}

// CostSummary aggregates a set of records, typically one month.
type CostSummary struct {
	Sessions int            `json:"sessions"`
	Records  int            `json:"records"`
	CostUSD  float64        `json:"cost_usd"`
	Agents   []AgentSummary `json:"agents"`
}

// Summarize groups records by agent. Agents are sorted by descending cost,
// then name.
func Summarize(records []Record) CostSummary {
	type acc struct {
		AgentSummary
		totalMS int64
	}
	byAgent := map[string]*acc{}
	sessions := map[string]bool{}
	var sum CostSummary

	for _, r := range records {
		sessions[r.SessionID] = true
		a, ok := byAgent[r.Agent]
		if !ok {
			a = &acc{AgentSummary: AgentSummary{Agent: r.Agent}}
			byAgent[r.Agent] = a
		}
		a.Runs++
		if r.Status != "PASS" {
			a.Failures++
		}
		if r.Error != "" {
			a.Errors++
		}
		a.Findings += r.Findings
		a.CostUSD += r.CostUSD
		a.totalMS += r.DurationMS
		sum.CostUSD += r.CostUSD
	}

	for _, a := range byAgent {
		a.MeanDuration = time.Duration(a.totalMS/int64(a.Runs)) * time.Millisecond
		sum.Agents = append(sum.Agents, a.AgentSummary)
	}
	sort.Slice(sum.Agents, func(i, j int) bool {
		if sum.Agents[i].CostUSD != sum.Agents[j].CostUSD {
			return sum.Agents[i].CostUSD > sum.Agents[j].CostUSD
		}
		return sum.Agents[i].Agent < sum.Agents[j].Agent
	})
	sum.Sessions = len(sessions)
	sum.Records = len(records)
	return sum
}
