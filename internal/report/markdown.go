package report

import (
	"fmt"
	"io"
	"strings"
)

// WriteMarkdown renders r as a Markdown document.
func WriteMarkdown(w io.Writer, r *Report) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Verification Report: %s\n\n", r.SessionID)
	fmt.Fprintf(&sb, "**Outcome:** %s | **Cost:** $%.4f | **Duration:** %s\n\n",
		r.Outcome, r.CostUSD, formatMS(r.DurationMS))
	fmt.Fprintf(&sb, "Started %s, generated %s.\n\n", r.StartedAt, r.GeneratedAt)
	if r.GatedAfter > 0 {
		fmt.Fprintf(&sb, "> Run stopped after wave %d; later waves were not started.\n\n", r.GatedAfter)
	}

	if len(r.Files) > 0 {
		sb.WriteString("## Files\n\n")
		for _, f := range r.Files {
			fmt.Fprintf(&sb, "- `%s`\n", f)
		}
		sb.WriteString("\n")
	}

	for _, wv := range r.Waves {
		verdict := "passed"
		if !wv.AllPassed {
			verdict = "failed"
		}
		fmt.Fprintf(&sb, "## Wave %d (%s)\n\n", wv.Wave, verdict)
		sb.WriteString("| Agent | Status | Findings | C/H/M/L | Cost | Duration | Reason |\n")
		sb.WriteString("|-------|--------|----------|---------|------|----------|--------|\n")
		for _, a := range wv.Agents {
			reason := a.Reason
			if a.Error != "" {
				reason = a.Error
			}
			fmt.Fprintf(&sb, "| %s | %s | %d | %d/%d/%d/%d | $%.4f | %s | %s |\n",
				a.Agent, a.Status, a.Findings,
				a.Critical, a.High, a.Medium, a.Low,
				a.CostUSD, formatMS(a.DurationMS), escapeCell(reason))
		}
		sb.WriteString("\n")

		for _, a := range wv.Agents {
			if len(a.Items) == 0 {
				continue
			}
			fmt.Fprintf(&sb, "### %s\n\n", a.Agent)
			if a.Hybrid {
				fmt.Fprintf(&sb, "%d flagged, %d confirmed, %d false positives.\n\n",
					a.Flagged, a.Findings, a.FalsePositives)
			}
			for _, it := range a.Items {
				loc := it.File
				if it.Line > 0 {
					loc = fmt.Sprintf("%s:%d", it.File, it.Line)
				}
				fmt.Fprintf(&sb, "- **%s** `%s` %s", it.Severity, loc, it.Message)
				if it.Fix != "" {
					fmt.Fprintf(&sb, " (fix: %s)", it.Fix)
				}
				sb.WriteString("\n")
			}
			sb.WriteString("\n")
		}
	}

	sb.WriteString("## Wave Diagram\n\n```mermaid\n")
	sb.WriteString(Mermaid(r))
	sb.WriteString("```\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
