package scan

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dusk-indust/wavecheck/internal/agent"
	"github.com/dusk-indust/wavecheck/internal/cost"
	"github.com/dusk-indust/wavecheck/internal/model"
)

// DefaultOutputTokensPerFlag approximates the cheap tier's output per flag.
const DefaultOutputTokensPerFlag = 50

// Sources holds the lines of every file read during a scan, keyed by path.
// It is written only by Scan and read-only afterwards.
type Sources map[string][]string

// Extract returns the exact lines of section, clamped to the file.
func (s Sources) Extract(section model.FlaggedSection) (string, error) {
	lines, ok := s[section.File]
	if !ok {
		return "", fmt.Errorf("scan: %s was not scanned", section.File)
	}
	start := max(section.StartLine, 1)
	end := min(section.EndLine, len(lines))
	if start > end {
		return "", fmt.Errorf("scan: section %s is outside the file (%d lines)", section, len(lines))
	}
	return strings.Join(lines[start-1:end], "\n"), nil
}

// Scanner runs the pattern catalogue and the structure analyzer over files.
type Scanner struct {
	catalogue        *Catalogue
	structure        *StructureAnalyzer
	costs            cost.Model
	readFile         func(string) ([]byte, error)
	outputTokensFlag int
	logger           *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithStructureAnalyzer enables structural triggers for agents whose
// descriptor sets Structural.
func WithStructureAnalyzer(a *StructureAnalyzer) Option {
	return func(s *Scanner) {
		s.structure = a
	}
}

// WithFileReader replaces os.ReadFile.
func WithFileReader(fn func(string) ([]byte, error)) Option {
	return func(s *Scanner) {
		s.readFile = fn
	}
}

// WithOutputTokensPerFlag overrides DefaultOutputTokensPerFlag.
func WithOutputTokensPerFlag(n int) Option {
	return func(s *Scanner) {
		s.outputTokensFlag = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScanner creates a Scanner over catalogue priced with costs.
func NewScanner(catalogue *Catalogue, costs cost.Model, opts ...Option) *Scanner {
	s := &Scanner{
		catalogue:        catalogue,
		costs:            costs,
		readFile:         os.ReadFile,
		outputTokensFlag: DefaultOutputTokensPerFlag,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan reads files and flags sections for desc. Unreadable files are logged
// and skipped. Work is bounded by input size; ctx is checked between files.
func (s *Scanner) Scan(ctx context.Context, desc agent.Descriptor, files []string) (model.ScanResult, Sources, error) {
	start := time.Now()
	agentID := string(desc.ID)
	patterns := s.catalogue.For(agentID)
	sources := make(Sources, len(files))

	var (
		sections   []model.FlaggedSection
		totalChars int
	)
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return model.ScanResult{}, nil, err
		}
		data, err := s.readFile(path)
		if err != nil {
			s.logger.Warn("scan_file_skipped", "agent", agentID, "file", path, "error", err)
			continue
		}
		totalChars += len(data)
		lines := strings.Split(string(data), "\n")
		sources[path] = lines

		sections = append(sections, s.matchPatterns(agentID, path, lines, patterns)...)
		if desc.Structural && s.structure != nil && s.structure.Supports(path) {
			sections = append(sections, s.structural(agentID, path, data)...)
		}
	}

	tier := s.costs.Resolve(desc.Tier)
	in := cost.TokensForChars(totalChars)
	out := len(sections) * s.outputTokensFlag
	res := model.ScanResult{
		AgentID:       agentID,
		Tier:          tier,
		Sections:      sections,
		TotalFindings: len(sections),
		InputTokens:   in,
		OutputTokens:  out,
		Cost:          s.costs.Estimate(tier, in, out),
		Duration:      time.Since(start),
	}
	s.logger.Info("cheap_scan_completed",
		"agent", agentID,
		"tier", tier,
		"files", len(sources),
		"flagged", len(sections),
		"cost_usd", res.Cost,
	)
	return res, sources, nil
}

func (s *Scanner) matchPatterns(agentID, path string, lines []string, patterns []compiledPattern) []model.FlaggedSection {
	var out []model.FlaggedSection
	for _, p := range patterns {
		if !p.appliesTo(path) {
			continue
		}
		for i, line := range lines {
			if !p.matches(line) {
				continue
			}
			lineNo := i + 1
			start := max(1, lineNo-p.Context)
			end := min(len(lines), lineNo+p.Context)
			section, err := model.NewFlaggedSection(agentID, path, start, end, p.Severity, p.Reason, p.ID)
			if err != nil {
				s.logger.Warn("scan_section_invalid", "agent", agentID, "file", path, "error", err)
				continue
			}
			out = append(out, section)
		}
	}
	return out
}

func (s *Scanner) structural(agentID, path string, data []byte) []model.FlaggedSection {
	issues, err := s.structure.Analyze(path, data)
	if err != nil {
		s.logger.Warn("structure_analysis_failed", "agent", agentID, "file", path, "error", err)
		return nil
	}
	out := make([]model.FlaggedSection, 0, len(issues))
	for _, is := range issues {
		var reason string
		switch is.Kind {
		case IssueLongFunction:
			reason = fmt.Sprintf("Function %s is %d lines long (limit %d)", is.Function, is.Value, is.Limit)
		case IssueDeepNesting:
			reason = fmt.Sprintf("Function %s nests %d levels deep (limit %d)", is.Function, is.Value, is.Limit)
		}
		section, err := model.NewFlaggedSection(agentID, path, is.StartLine, is.EndLine, model.SeverityMedium, reason, string(is.Kind))
		if err != nil {
			continue
		}
		out = append(out, section)
	}
	return out
}
