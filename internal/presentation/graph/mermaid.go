package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/knot/internal/compiler"
	"github.com/aretw0/knot/pkg/domain"
	"github.com/aretw0/knot/pkg/dsl"
)

// GraphOverlay contains runtime state to visualize on the graph.
type GraphOverlay struct {
	// Active entities take part in at least one tied knot.
	Active []string
	// Degraded entities had an access point no provider claimed.
	Degraded []string
}

// GenerateMermaid produces a Mermaid flowchart of the binding topology.
// It applies semantic styling:
// - Entity: [Rectangle]
// - Aggregate transform of a composite side: {{Hexagon}}
// - Simple clause: two-way edge labelled with the clause
// - Composite clause: one edge per child into the aggregate, then one edge
//   from the aggregate to the plain side
// It also applies overlay styles (Active/Degraded) if provided.
func GenerateMermaid(bindings []compiler.Binding, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	declared := make(map[string]bool)
	declare := func(entity string) string {
		safeID := sanitizeMermaidID(entity)
		if !declared[safeID] {
			declared[safeID] = true
			fmt.Fprintf(&sb, "    %s[\"%s\"]\n", safeID, escapeLabel(entity))
		}
		return safeID
	}

	aggregates := 0
	for _, b := range bindings {
		left := declare(b.Left)
		right := declare(b.Right)

		for _, spec := range b.Specs {
			switch {
			case spec.Right.Composite:
				aggregates++
				writeComposite(&sb, aggregates, right, spec.Right, left, spec.Left)
			case spec.Left.Composite:
				aggregates++
				writeComposite(&sb, aggregates, left, spec.Left, right, spec.Right)
			default:
				fmt.Fprintf(&sb, "    %s <-- \"%s\" --> %s\n", left, escapeLabel(dsl.Format(spec)), right)
			}
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) so labels stay readable on both themes
		sb.WriteString("    classDef active fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef degraded fill:#ffebee,stroke:#c62828,stroke-width:2px,stroke-dasharray:4,color:#000;\n")
		writeClass(&sb, "active", overlay.Active, declared)
		writeClass(&sb, "degraded", overlay.Degraded, declared)
	}

	return sb.String()
}

// writeComposite draws the children of the composite side feeding its
// aggregate, and the aggregate writing into the plain side.
func writeComposite(sb *strings.Builder, n int, compositeID string, composite *domain.AccessPoint, plainID string, plain *domain.AccessPoint) {
	aggID := fmt.Sprintf("knot_agg_%d", n)
	fmt.Fprintf(sb, "    %s{{\"%s\"}}\n", aggID, escapeLabel(composite.Aggregate))
	for _, child := range composite.Children {
		fmt.Fprintf(sb, "    %s -- \"%s\" --> %s\n", compositeID, escapeLabel(dsl.FormatAccessPoint(child)), aggID)
	}
	fmt.Fprintf(sb, "    %s -- \"%s\" --> %s\n", aggID, escapeLabel(dsl.FormatAccessPoint(plain)), plainID)
}

func writeClass(sb *strings.Builder, class string, entities []string, declared map[string]bool) {
	seen := make(map[string]bool)
	for _, entity := range entities {
		safeID := sanitizeMermaidID(entity)
		// Only style entities drawn in this graph
		if !declared[safeID] || seen[safeID] {
			continue
		}
		seen[safeID] = true
		fmt.Fprintf(sb, "    class %s %s;\n", safeID, class)
	}
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
