package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/lys5588/NormCode-Psylens-sub002/internal/presentation/graph"
	"github.com/lys5588/NormCode-Psylens-sub002/internal/presentation/tui"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
)

// Inspect prints a static description of the plan: declaration tables
// plus the dependency graph. On a terminal the markdown is styled and
// preceded by the banner; piped output stays plain markdown.
func Inspect(ctx context.Context, source string) error {
	p, err := LoadPlan(ctx, source)
	if err != nil {
		return err
	}

	doc := describePlan(p)
	if isTerminal(os.Stdout) {
		tui.PrintBanner()
		if rendered, err := tui.NewRenderer()(doc); err == nil {
			doc = rendered
		}
	}
	fmt.Println(strings.TrimSpace(doc))
	return nil
}

func describePlan(p *domain.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", p.Name)

	b.WriteString("## Concepts\n\n")
	b.WriteString("| name | type | axes | ground | paradigm |\n")
	b.WriteString("| --- | --- | --- | --- | --- |\n")
	for i := range p.Concepts {
		c := &p.Concepts[i]
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			c.Name, c.Type, describeAxes(c.Axes), describeGround(c.Ground), describeParadigm(c.Paradigm))
	}

	b.WriteString("\n## Inferences\n\n")
	b.WriteString("| position | operator | target | inputs | conditions |\n")
	b.WriteString("| --- | --- | --- | --- | --- |\n")
	for i := range p.Inferences {
		inf := &p.Inferences[i]
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			inf.Position, inf.Op.Kind, inf.Target, describeInputs(inf), describeConditions(inf))
	}

	b.WriteString("\n## Graph\n\n")
	b.WriteString("```mermaid\n")
	b.WriteString(graph.GenerateMermaid(p, nil))
	b.WriteString("```\n")
	return b.String()
}

func describeAxes(axes []domain.AxisDecl) string {
	if len(axes) == 0 {
		return "-"
	}
	parts := make([]string, len(axes))
	for i, a := range axes {
		parts[i] = a.Name
		if a.Kind == domain.AxisDependent {
			parts[i] += " (dependent)"
		}
	}
	return strings.Join(parts, ", ")
}

func describeGround(ground any) string {
	if ground == nil {
		return "-"
	}
	s := fmt.Sprintf("%v", ground)
	if len(s) > 32 {
		s = s[:32] + " ..."
	}
	return s
}

func describeParadigm(p *domain.Paradigm) string {
	if p == nil {
		return "-"
	}
	out := string(p.Kind)
	if p.Output != "" {
		out += " (" + p.Output + ")"
	}
	return out
}

func describeInputs(inf *domain.Inference) string {
	var parts []string
	for _, v := range inf.Values {
		if v.Version == "" {
			parts = append(parts, v.Concept)
		} else {
			parts = append(parts, v.Concept+"@"+string(v.Version))
		}
	}
	if inf.Actor != "" {
		parts = append(parts, "actor "+inf.Actor)
	}
	if inf.Loop != nil {
		parts = append(parts, fmt.Sprintf("loop %s over %s", inf.Loop.Base, inf.Loop.Axis))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

func describeConditions(inf *domain.Inference) string {
	var parts []string
	if inf.Gate != nil {
		if inf.Gate.Negated {
			parts = append(parts, "unless "+inf.Gate.Source)
		} else {
			parts = append(parts, "when "+inf.Gate.Source)
		}
	}
	for _, a := range inf.After {
		parts = append(parts, "after "+string(a))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}
