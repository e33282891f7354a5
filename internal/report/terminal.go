package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorRed    = lipgloss.Color("#ff5555")
	colorGreen  = lipgloss.Color("#50fa7b")
	colorYellow = lipgloss.Color("#f1fa8c")
	colorBlue   = lipgloss.Color("#8be9fd")
	colorDim    = lipgloss.Color("#6272a4")
	colorBorder = lipgloss.Color("#44475a")
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(colorBlue).
			Bold(true)

	waveStyle = lipgloss.NewStyle().
			Foreground(colorBlue)

	passStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	warnStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)
)

// Terminal renders a boxed, coloured run summary. Colour is dropped
// automatically when the output is not a terminal.
func Terminal(r *Report) string {
	var lines []string

	outcome := passStyle.Render(r.Outcome)
	if !r.Passed() {
		outcome = failStyle.Render(r.Outcome)
	}
	lines = append(lines,
		headerStyle.Render("Verification "+r.SessionID),
		fmt.Sprintf("%s  %s  %s",
			outcome,
			dimStyle.Render(fmt.Sprintf("$%.4f", r.CostUSD)),
			dimStyle.Render(formatMS(r.DurationMS))),
		"",
	)

	width := agentWidth(r)
	for _, w := range r.Waves {
		lines = append(lines, waveStyle.Render(fmt.Sprintf("Wave %d", w.Wave)))
		for _, a := range w.Agents {
			mark, status := passStyle.Render("✓"), passStyle.Render(a.Status)
			if a.Status != "PASS" {
				mark, status = failStyle.Render("✗"), failStyle.Render(a.Status)
			}
			detail := a.Reason
			if a.Error != "" {
				detail = a.Error
			}
			lines = append(lines, fmt.Sprintf("  %s %-*s %s %s",
				mark, width, a.Agent, status, dimStyle.Render(detail)))
		}
	}
	if r.GatedAfter > 0 {
		lines = append(lines, "", warnStyle.Render(fmt.Sprintf("gated after wave %d", r.GatedAfter)))
	}
	return boxStyle.Render(strings.Join(lines, "\n")) + "\n"
}

func agentWidth(r *Report) int {
	n := 0
	for _, w := range r.Waves {
		for _, a := range w.Agents {
			n = max(n, len(a.Agent))
		}
	}
	return n
}
