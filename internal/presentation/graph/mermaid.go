package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
)

// RunOverlay contains run state to visualize on the plan graph.
type RunOverlay struct {
	Statuses map[string]string
}

// OverlayFromSnapshot lifts a snapshot's concept statuses into an overlay.
func OverlayFromSnapshot(snap *domain.RunSnapshot) *RunOverlay {
	o := &RunOverlay{Statuses: make(map[string]string, len(snap.Concepts))}
	for name, cs := range snap.Concepts {
		o.Statuses[name] = cs.Status
	}
	return o
}

// GenerateMermaid produces a Mermaid flowchart from a plan.
// It applies semantic styling:
// - Truth state: {Diamond}
// - Functional (input paradigm): [/Parallelogram/]
// - Functional (other paradigms): [[Subroutine]]
// - Collection: [(Cylinder)]
// - Grounded entity: ((Circle))
// - Default: [Rectangle]
// Inference edges carry the operator kind; gates, orderings and loop
// drivers render dotted or labeled. Overlay statuses style the nodes.
func GenerateMermaid(p *domain.Plan, overlay *RunOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for i := range p.Concepts {
		c := &p.Concepts[i]
		safeID := sanitizeMermaidID(c.Name)

		opener, closer := "[", "]"
		switch {
		case c.Type == domain.ConceptTruth:
			opener, closer = "{", "}"
		case c.Type.IsFunctional() && c.Paradigm != nil && c.Paradigm.Kind == domain.ParadigmInput:
			opener, closer = "[/", "/]"
		case c.Type.IsFunctional():
			opener, closer = "[[", "]]"
		case c.Type == domain.ConceptCollection:
			opener, closer = "[(", ")]"
		case c.Ground != nil:
			opener, closer = "((", "))"
		}

		label := fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, c.Name, closer)
		if c.Type.IsFunctional() && c.Paradigm != nil {
			// Annotate collaborators with their paradigm kind.
			label = fmt.Sprintf("    %s%s\"%s <br/> ⚙ %s\"%s\n", safeID, opener, c.Name, c.Paradigm.Kind, closer)
		}
		sb.WriteString(label)
	}

	for i := range p.Inferences {
		inf := &p.Inferences[i]
		safeTo := sanitizeMermaidID(inf.Target)
		label := string(inf.Op.Kind)

		for _, v := range inf.Values {
			arrow := fmt.Sprintf("-- \"%s\" -->", label)
			if v.Version != "" && v.Version != domain.VersionCurrent {
				arrow = fmt.Sprintf("-- \"%s@%s\" -->", label, v.Version)
			}
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", sanitizeMermaidID(v.Concept), arrow, safeTo))
		}

		if inf.Actor != "" {
			sb.WriteString(fmt.Sprintf("    %s -.-> %s\n", sanitizeMermaidID(inf.Actor), safeTo))
		}

		if inf.Gate != nil {
			guard := "when"
			if inf.Gate.Negated {
				guard = "unless"
			}
			sb.WriteString(fmt.Sprintf("    %s -. \"%s\" .-> %s\n", sanitizeMermaidID(inf.Gate.Source), guard, safeTo))
		}

		if inf.Loop != nil {
			sb.WriteString(fmt.Sprintf("    %s -- \"loop %s\" --> %s\n", sanitizeMermaidID(inf.Loop.Base), inf.Loop.Axis, safeTo))
		}

		// Pure ordering edges point from the prior inference's target.
		for _, after := range inf.After {
			if prior := p.InferenceAt(after); prior != nil {
				sb.WriteString(fmt.Sprintf("    %s -. after .-> %s\n", sanitizeMermaidID(prior.Target), safeTo))
			}
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef done fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef failed fill:#ffebee,stroke:#b71c1c,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef aborted fill:#eeeeee,stroke:#616161,stroke-width:2px,color:#000;\n")

		names := make([]string, 0, len(overlay.Statuses))
		for name := range overlay.Statuses {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			status := overlay.Statuses[name]
			if status != "done" && status != "failed" && status != "aborted" {
				continue
			}
			safeID := sanitizeMermaidID(name)
			if safeID == "" {
				continue
			}
			sb.WriteString(fmt.Sprintf("    class %s %s;\n", safeID, status))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
