package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/authtree/pkg/domain"
	"github.com/aretw0/authtree/pkg/ports"
	"github.com/google/uuid"
)

// GraphOverlay contains session data to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []uuid.UUID
	CurrentNode  uuid.UUID
}

// OverlayFor highlights the node a flow state is positioned on.
func OverlayFor(state *domain.FlowState) *GraphOverlay {
	if state == nil || state.Status == domain.StatusCompleted {
		return nil
	}
	return &GraphOverlay{CurrentNode: state.CurrentNodeID}
}

// GenerateMermaid produces a Mermaid flowchart for a flow.
// It applies semantic styling:
// - Entry: ((Circle))
// - Inner tree: [[Subroutine]]
// - Default: [Rectangle]
// Terminal sentinels are drawn once, as SUCCESS and FAILURE circles.
func GenerateMermaid(flow *domain.Flow, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	w := &writer{sb: &sb, ids: make(map[uuid.UUID]string)}
	w.flow(flow, "n", "    ")
	w.terminals()
	w.overlay(overlay)

	return sb.String()
}

// GenerateMermaidTree renders flow and, as subgraphs, every flow reachable through
// inner tree nodes. Each embedded flow is drawn once; maxDepth bounds the expansion.
func GenerateMermaidTree(ctx context.Context, flows ports.FlowRegistry, flow *domain.Flow, maxDepth int) (string, error) {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	w := &writer{sb: &sb, ids: make(map[uuid.UUID]string)}
	w.flow(flow, "n", "    ")

	type pending struct {
		flow  *domain.Flow
		depth int
	}
	queue := []pending{{flow, 0}}
	entries := map[string]string{flow.Name(): w.ids[flow.Entry()]}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, id := range cur.flow.NodeIDs() {
			def, _ := cur.flow.Node(id)
			name := def.EmbeddedFlow()
			if name == "" {
				continue
			}

			entry, seen := entries[name]
			if !seen {
				if cur.depth+1 > maxDepth {
					continue
				}
				inner, err := flows.GetFlow(ctx, cur.flow.Realm(), name)
				if err != nil {
					return "", fmt.Errorf("failed to load embedded flow %s: %w", name, err)
				}
				prefix := fmt.Sprintf("f%d_n", len(entries))
				fmt.Fprintf(&sb, "    subgraph %s[\"%s\"]\n", prefix+"g", escape(name))
				w.flow(inner, prefix, "        ")
				sb.WriteString("    end\n")

				entry = w.ids[inner.Entry()]
				entries[name] = entry
				queue = append(queue, pending{inner, cur.depth + 1})
			}
			fmt.Fprintf(&sb, "    %s -.-> %s\n", w.ids[id], entry)
		}
	}

	w.terminals()
	return sb.String(), nil
}

type writer struct {
	sb       *strings.Builder
	ids      map[uuid.UUID]string
	terminal map[uuid.UUID]bool
}

func (w *writer) flow(flow *domain.Flow, prefix, indent string) {
	order := flow.NodeIDs()
	for i, id := range order {
		w.ids[id] = fmt.Sprintf("%s%d", prefix, i)
	}

	for _, id := range order {
		def, _ := flow.Node(id)
		safeID := w.ids[id]

		opener, closer := "[", "]"
		label := escape(flow.DisplayNameFor(id))
		switch {
		case def.Type == domain.NodeTypeInnerTree:
			opener, closer = "[[", "]]"
			label = fmt.Sprintf("%s <br/> ↳ %s", label, escape(def.EmbeddedFlow()))
		case id == flow.Entry():
			opener, closer = "((", "))"
		}
		fmt.Fprintf(w.sb, "%s%s%s\"%s\"%s\n", indent, safeID, opener, label, closer)

		for _, outcome := range flow.OutcomesOf(id) {
			target, _ := flow.ConnectionTarget(id, outcome)
			fmt.Fprintf(w.sb, "%s%s -- \"%s\" --> %s\n", indent, safeID, escape(outcome), w.target(target))
		}
	}
}

func (w *writer) target(id uuid.UUID) string {
	switch id {
	case domain.SuccessNodeID:
		w.markTerminal(id)
		return "success"
	case domain.FailureNodeID:
		w.markTerminal(id)
		return "failure"
	}
	return w.ids[id]
}

func (w *writer) markTerminal(id uuid.UUID) {
	if w.terminal == nil {
		w.terminal = make(map[uuid.UUID]bool)
	}
	w.terminal[id] = true
}

func (w *writer) terminals() {
	if w.terminal[domain.SuccessNodeID] {
		w.sb.WriteString("    success((\"SUCCESS\"))\n")
	}
	if w.terminal[domain.FailureNodeID] {
		w.sb.WriteString("    failure((\"FAILURE\"))\n")
	}
}

func (w *writer) overlay(overlay *GraphOverlay) {
	if overlay == nil {
		return
	}
	w.sb.WriteString("\n    %% Overlay Styles\n")
	// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
	w.sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
	w.sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

	seen := make(map[string]bool)
	for _, id := range overlay.VisitedNodes {
		safeID, ok := w.ids[id]
		if ok && !seen[safeID] {
			seen[safeID] = true
			fmt.Fprintf(w.sb, "    class %s visited;\n", safeID)
		}
	}
	if safeID, ok := w.ids[overlay.CurrentNode]; ok {
		fmt.Fprintf(w.sb, "    class %s current;\n", safeID)
	}
}

// escape keeps labels from closing their quotes.
func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
