package report

import (
	"fmt"
	"strings"
)

// Mermaid renders the executed waves as a graph TD diagram: one subgraph per
// wave, agent nodes styled by status, and an edge from each wave to the
// next. A gated run ends in a stop node.
func Mermaid(r *Report) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	sb.WriteString("  classDef pass fill:#50fa7b,color:#282a36\n")
	sb.WriteString("  classDef fail fill:#ff5555,color:#f8f8f2\n")

	for _, w := range r.Waves {
		fmt.Fprintf(&sb, "  subgraph W%d[\"Wave %d\"]\n", w.Wave, w.Wave)
		for i, a := range w.Agents {
			class := "pass"
			if a.Status != "PASS" {
				class = "fail"
			}
			fmt.Fprintf(&sb, "    W%dA%d[\"%s<br/>%s\"]:::%s\n", w.Wave, i, mermaidLabel(a.Agent), a.Status, class)
		}
		sb.WriteString("  end\n")
	}
	for i := 1; i < len(r.Waves); i++ {
		fmt.Fprintf(&sb, "  W%d --> W%d\n", r.Waves[i-1].Wave, r.Waves[i].Wave)
	}
	if r.GatedAfter > 0 {
		fmt.Fprintf(&sb, "  W%d -.-> STOP((\"gated\")):::fail\n", r.GatedAfter)
	}
	return sb.String()
}

// mermaidLabel strips characters that break quoted node labels.
func mermaidLabel(s string) string {
	return strings.NewReplacer(`"`, "'", "[", "(", "]", ")").Replace(s)
}
