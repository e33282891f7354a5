package findings

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dusk-indust/wavecheck/internal/model"
)

// Record writes run, its agent runs and every located finding to s.
// Findings get fresh UUIDs.
func Record(ctx context.Context, s Store, run *model.RunResult) error {
	err := s.AddRun(ctx, RunNode{
		SessionID: run.SessionID,
		Outcome:   string(run.Outcome),
		StartedAt: run.StartedAt,
		CostUSD:   run.Cost(),
	})
	if err != nil {
		return fmt.Errorf("findings: record run: %w", err)
	}

	for _, a := range run.Agents() {
		if err := ctx.Err(); err != nil {
			return err
		}
		arID := AgentRunID(run.SessionID, a.AgentID)
		err := s.AddAgentRun(ctx, AgentRunNode{
			ID:        arID,
			SessionID: run.SessionID,
			Agent:     a.AgentID,
			Wave:      a.Wave,
			Status:    string(a.Status),
			CostUSD:   a.Cost,
		})
		if err != nil {
			return fmt.Errorf("findings: record %s: %w", a.AgentID, err)
		}
		for _, f := range a.Items {
			err := s.AddFinding(ctx, FindingNode{
				ID:         uuid.NewString(),
				AgentRunID: arID,
				Agent:      a.AgentID,
				File:       f.File,
				Line:       f.Line,
				Severity:   f.Severity.String(),
				Message:    f.Message,
				Fix:        f.Fix,
				Rule:       f.Rule,
			})
			if err != nil {
				return fmt.Errorf("findings: record %s finding: %w", a.AgentID, err)
			}
		}
	}
	return nil
}
