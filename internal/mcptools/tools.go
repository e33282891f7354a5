package mcptools

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/wavecheck/internal/agent"
	"github.com/dusk-indust/wavecheck/internal/findings"
	"github.com/dusk-indust/wavecheck/internal/verify"
	"github.com/dusk-indust/wavecheck/internal/vote"
)

// VotingDefaults fill vote_severity arguments left at zero.
type VotingDefaults struct {
	Samples       int
	MinConfidence float64
}

// Service handles MCP tool calls on top of a verify.Service.
type Service struct {
	verifier *verify.Service
	voter    *vote.Voter
	voting   VotingDefaults
}

// NewService creates a Service. voter may be nil, which disables
// vote_severity.
func NewService(verifier *verify.Service, voter *vote.Voter, voting VotingDefaults) *Service {
	return &Service{verifier: verifier, voter: voter, voting: voting}
}

// RunVerification runs every wave over the selected files. A gated or
// failed run is reported in the output, not as a tool error.
func (s *Service) RunVerification(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RunVerificationInput,
) (*mcp.CallToolResult, RunVerificationOutput, error) {
	out, err := s.verifier.Verify(ctx, verify.Input{
		Files:      input.Files,
		Diff:       input.Diff,
		Extensions: input.Extensions,
	})
	if out == nil {
		return nil, RunVerificationOutput{}, err
	}
	if out.NothingPending {
		return nil, RunVerificationOutput{Outcome: "NOTHING_PENDING"}, nil
	}

	res := RunVerificationOutput{
		SessionID:      out.Report.SessionID,
		Outcome:        out.Report.Outcome,
		CostUSD:        out.Report.CostUSD,
		GatedAfter:     out.Report.GatedAfter,
		Reports:        out.Paths,
		ClearedMarkers: out.ClearedMarkers,
	}
	for _, w := range out.Report.Waves {
		for _, a := range w.Agents {
			res.Agents = append(res.Agents, AgentSummary{
				Agent:    a.Agent,
				Wave:     w.Wave,
				Status:   a.Status,
				Findings: a.Findings,
				CostUSD:  a.CostUSD,
				Reason:   a.Reason,
				Error:    a.Error,
			})
		}
	}
	if err != nil {
		res.Error = err.Error()
	}
	return nil, res, nil
}

// EstimateCost prices a verification without invoking any model.
func (s *Service) EstimateCost(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input EstimateCostInput,
) (*mcp.CallToolResult, EstimateCostOutput, error) {
	est, err := s.verifier.Estimate(ctx, verify.Input{
		Files:      input.Files,
		Diff:       input.Diff,
		Extensions: input.Extensions,
	})
	if err != nil {
		return nil, EstimateCostOutput{}, err
	}
	return nil, EstimateCostOutput{Estimate: *est}, nil
}

// VoteSeverity asks for the severity of a finding several times and
// reports the majority with its confidence.
func (s *Service) VoteSeverity(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input VoteSeverityInput,
) (*mcp.CallToolResult, VoteSeverityOutput, error) {
	if s.voter == nil {
		return nil, VoteSeverityOutput{}, errors.New("voting is not configured")
	}
	if input.File == "" || input.Finding == "" {
		return nil, VoteSeverityOutput{}, errors.New("file and finding are required")
	}

	n := input.Samples
	if n <= 0 {
		n = s.voting.Samples
	}
	minConf := input.MinConfidence
	if minConf <= 0 {
		minConf = s.voting.MinConfidence
	}

	role := agent.Role(input.Agent)
	if role == "" {
		role = agent.RoleSecurity
	}
	prompt, err := agent.RenderSeverityVote(agent.SectionData{
		Agent:     role,
		File:      input.File,
		StartLine: input.StartLine,
		EndLine:   input.EndLine,
		Reason:    input.Finding,
		Code:      input.Code,
	})
	if err != nil {
		return nil, VoteSeverityOutput{}, err
	}

	report, res, err := s.voter.VoteWithThreshold(ctx, prompt, n, minConf)
	if err != nil {
		return nil, VoteSeverityOutput{}, fmt.Errorf("vote: %w", err)
	}

	votes := make(map[string]int, len(res.Votes))
	for sev, c := range res.Votes {
		votes[sev.String()] = c
	}
	return nil, VoteSeverityOutput{
		Decision:    res.Decision.String(),
		Confidence:  res.Confidence,
		Report:      report,
		Votes:       votes,
		Unparseable: res.Unparseable,
		Samples:     res.N,
	}, nil
}

// QueryFindings reads the findings graph by run, by file, or both.
func (s *Service) QueryFindings(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryFindingsInput,
) (*mcp.CallToolResult, QueryFindingsOutput, error) {
	store := s.verifier.Findings()
	if store == nil {
		return nil, QueryFindingsOutput{}, errors.New("findings store is not configured")
	}
	if input.SessionID == "" && input.File == "" && input.Hotspots <= 0 {
		return nil, QueryFindingsOutput{}, errors.New("one of sessionId, file or hotspots is required")
	}

	var out QueryFindingsOutput
	if input.SessionID != "" {
		fs, err := store.FindingsByRun(ctx, input.SessionID)
		if err != nil {
			return nil, out, err
		}
		out.Findings = fs
	}
	if input.File != "" {
		fs, err := store.FindingsByFile(ctx, input.File)
		if err != nil {
			return nil, out, err
		}
		if input.SessionID != "" {
			fs = intersect(out.Findings, fs)
		}
		out.Findings = fs
	}
	if out.Findings == nil {
		out.Findings = []findings.FindingNode{}
	}
	if input.Hotspots > 0 {
		hs, err := store.Hotspots(ctx, input.Hotspots)
		if err != nil {
			return nil, out, err
		}
		out.Hotspots = hs
	}
	st, err := store.Stats(ctx)
	if err != nil {
		return nil, out, err
	}
	out.Stats = *st
	return nil, out, nil
}

func intersect(a, b []findings.FindingNode) []findings.FindingNode {
	ids := make(map[string]bool, len(a))
	for _, f := range a {
		ids[f.ID] = true
	}
	var out []findings.FindingNode
	for _, f := range b {
		if ids[f.ID] {
			out = append(out, f)
		}
	}
	return out
}
