// Package graph renders a study design as a Mermaid flowchart.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/revisit/pkg/domain"
)

// GenerateMermaid produces a Mermaid flowchart for a design tree.
// It applies semantic styling:
// - Composite blocks: ([Stadium]), labelled with the block id or "sequence" at the root
// - Stimuli: [Rectangle]
// - Interruptions: dotted edges to {{Hexagon}} nodes
// When agg is non-nil, stimuli are labelled with their counts and classed by weight.
func GenerateMermaid(design domain.Node, agg *domain.Aggregate) string {
	g := &generator{leaves: make(map[string]bool), interruptions: make(map[string]bool)}
	g.sb.WriteString("graph TD\n")
	g.walk(design, "")

	if agg != nil {
		g.overlay(*agg)
	}
	return g.sb.String()
}

type generator struct {
	sb            strings.Builder
	blocks        int
	leaves        map[string]bool
	interruptions map[string]bool
}

// walk emits node n and its edge from parent, returning the Mermaid id of n.
func (g *generator) walk(n domain.Node, parent string) string {
	if n.IsLeaf() {
		id := leafID(n.ID)
		if !g.leaves[n.ID] {
			g.leaves[n.ID] = true
			fmt.Fprintf(&g.sb, "    %s[\"%s\"]\n", id, escapeLabel(n.ID))
		}
		if parent != "" {
			fmt.Fprintf(&g.sb, "    %s --> %s\n", parent, id)
		}
		return id
	}

	id := fmt.Sprintf("block%d", g.blocks)
	g.blocks++
	label := n.ID
	if label == "" {
		label = "sequence"
		if parent != "" {
			label = "block"
		}
	}
	fmt.Fprintf(&g.sb, "    %s([\"%s\"])\n", id, escapeLabel(label))
	if parent != "" {
		fmt.Fprintf(&g.sb, "    %s --> %s\n", parent, id)
	}

	for _, child := range n.Components {
		g.walk(child, id)
	}
	for _, spec := range n.Interruptions {
		for _, stimulus := range spec.Components {
			target := interruptionID(stimulus)
			if !g.interruptions[stimulus] {
				g.interruptions[stimulus] = true
				fmt.Fprintf(&g.sb, "    %s{{\"%s\"}}\n", target, escapeLabel(stimulus))
			}
			fmt.Fprintf(&g.sb, "    %s -. interruption .-> %s\n", id, target)
		}
	}
	return id
}

func (g *generator) overlay(agg domain.Aggregate) {
	g.sb.WriteString("\n    %% Frequency Overlay\n")
	// Force black text (color:#000) so labels stay readable on the light fills in both themes
	g.sb.WriteString("    classDef nodata fill:#f4f4f5,stroke:#a1a1aa,stroke-dasharray:3 3,color:#000;\n")
	g.sb.WriteString("    classDef low fill:#e0e7ff,stroke:#6366f1,color:#000;\n")
	g.sb.WriteString("    classDef mid fill:#a5b4fc,stroke:#4f46e5,color:#000;\n")
	g.sb.WriteString("    classDef high fill:#818cf8,stroke:#3730a3,stroke-width:3px,color:#000;\n")
	g.sb.WriteString("    classDef interruption fill:#fef3c7,stroke:#d97706,color:#000;\n")

	ids := make([]string, 0, len(g.leaves))
	for id := range g.leaves {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		safe := leafID(id)
		weight, ok := agg.Weight(id)
		if !ok {
			fmt.Fprintf(&g.sb, "    class %s nodata;\n", safe)
			continue
		}
		fmt.Fprintf(&g.sb, "    %s[\"%s <br/> %d\"]\n", safe, escapeLabel(id), agg.Table[id])
		fmt.Fprintf(&g.sb, "    class %s %s;\n", safe, weightClass(weight))
	}

	if len(g.interruptions) > 0 {
		names := make([]string, 0, len(g.interruptions))
		for id := range g.interruptions {
			names = append(names, interruptionID(id))
		}
		sort.Strings(names)
		fmt.Fprintf(&g.sb, "    class %s interruption;\n", strings.Join(names, ","))
	}
}

func weightClass(w float64) string {
	switch {
	case w >= 0.75:
		return "high"
	case w >= 0.4:
		return "mid"
	default:
		return "low"
	}
}

func leafID(id string) string {
	return "s_" + sanitizeMermaidID(id)
}

func interruptionID(id string) string {
	return "i_" + sanitizeMermaidID(id)
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	var sb strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}
