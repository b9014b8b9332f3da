package validator

import (
	"fmt"
	"strings"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/reference"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/schema"
)

// Validate checks a plan for structural problems before execution. It keeps
// going after the first finding so a plan author sees every problem in one
// pass. The returned error is marked plan-invalid and lists each problem on
// its own line.
func Validate(plan *domain.Plan) error {
	if plan == nil {
		return domain.PlanInvalidf("plan is nil")
	}
	c := &checker{plan: plan}
	c.checkConcepts()
	c.checkInferences()
	c.checkSequencing()
	c.checkProducers()
	c.checkReads()
	c.checkCarries()
	if len(c.problems) == 0 {
		return nil
	}
	return domain.PlanInvalidf("plan %q has %d problem(s):\n- %s",
		plan.Name, len(c.problems), strings.Join(c.problems, "\n- "))
}

type checker struct {
	plan     *domain.Plan
	problems []string
}

func (c *checker) addf(format string, args ...any) {
	c.problems = append(c.problems, fmt.Sprintf(format, args...))
}

func (c *checker) checkConcepts() {
	if c.plan.Name == "" {
		c.addf("plan has no name")
	}
	seen := make(map[string]bool, len(c.plan.Concepts))
	for i := range c.plan.Concepts {
		con := &c.plan.Concepts[i]
		if con.Name == "" {
			c.addf("concept #%d has no name", i)
			continue
		}
		if seen[con.Name] {
			c.addf("concept %q is declared twice", con.Name)
		}
		seen[con.Name] = true

		if !con.Type.Valid() {
			c.addf("concept %q: unknown type %q", con.Name, con.Type)
		}
		axes := make(map[string]bool, len(con.Axes))
		for _, a := range con.Axes {
			if a.Name == "" {
				c.addf("concept %q declares an axis with no name", con.Name)
				continue
			}
			if axes[a.Name] {
				c.addf("concept %q declares axis %q twice", con.Name, a.Name)
			}
			axes[a.Name] = true
			switch a.Kind {
			case "", domain.AxisSelf, domain.AxisDependent:
			default:
				c.addf("concept %q: axis %q has unknown kind %q", con.Name, a.Name, a.Kind)
			}
		}
		if con.Position != "" {
			if _, err := domain.ParsePosition(string(con.Position)); err != nil {
				c.addf("concept %q: %v", con.Name, err)
			}
		}
		if con.Paradigm != nil {
			if err := con.Paradigm.Validate(); err != nil {
				c.addf("concept %q: %v", con.Name, err)
			} else if con.Paradigm.Output != "" {
				if _, err := schema.ParseType(con.Paradigm.Output); err != nil {
					c.addf("concept %q: output type: %v", con.Name, err)
				}
			}
		}
		if con.Ground != nil {
			if _, err := reference.FromNested(con.Ground, con.SelfAxes()...); err != nil {
				c.addf("concept %q: ground does not fit its axes: %v", con.Name, err)
			}
		}
	}
}

func (c *checker) checkInferences() {
	seen := make(map[domain.FlowPosition]bool, len(c.plan.Inferences))
	for i := range c.plan.Inferences {
		inf := &c.plan.Inferences[i]
		pos := inf.Position
		if _, err := domain.ParsePosition(string(pos)); err != nil {
			c.addf("inference #%d: %v", i, err)
			continue
		}
		if seen[pos] {
			c.addf("position %s is used twice", pos)
		}
		seen[pos] = true

		if err := inf.Op.Validate(); err != nil {
			c.addf("%s: %v", pos, err)
		}
		if inf.Target == "" {
			c.addf("%s has no target", pos)
		} else if c.plan.Concept(inf.Target) == nil {
			c.addf("%s targets undeclared concept %q", pos, inf.Target)
		}
		for _, v := range inf.Values {
			if c.plan.Concept(v.Concept) == nil {
				c.addf("%s reads undeclared concept %q", pos, v.Concept)
			}
			if !v.Version.Valid() {
				c.addf("%s reads %q at unknown version %q", pos, v.Concept, v.Version)
			} else if v.Version == domain.VersionPrevious || v.Version == domain.VersionInitial {
				if len(c.enclosingLoops(pos)) == 0 {
					c.addf("%s reads %s@%s outside any loop", pos, v.Concept, v.Version)
				}
			}
		}
		if inf.Gate != nil {
			if inf.Gate.Source == "" {
				c.addf("%s has a gate with no source", pos)
			} else if c.plan.Concept(inf.Gate.Source) == nil {
				c.addf("%s gates on undeclared concept %q", pos, inf.Gate.Source)
			}
		}

		switch inf.Op.Kind {
		case domain.OpIdentity:
			if len(inf.Values) != 1 {
				c.addf("identity at %s needs exactly one value, got %d", pos, len(inf.Values))
			} else if inf.Values[0].Concept == inf.Target {
				c.addf("identity at %s aliases %q to itself", pos, inf.Target)
			}
			if inf.Gate != nil {
				c.addf("identity at %s cannot be gated; the binding is unconditional", pos)
			}
		case domain.OpSelection:
			if len(inf.Values) != 1 {
				c.addf("selection at %s needs exactly one value, got %d", pos, len(inf.Values))
			}
		case domain.OpAbstraction:
			if p := inf.Op.Abstraction; p != nil && p.Value != nil {
				if _, err := reference.FromNested(p.Value, p.Axes...); err != nil {
					c.addf("abstraction at %s: %v", pos, err)
				}
			}
		case domain.OpApply:
			c.checkApply(inf)
		case domain.OpLoop:
			c.checkLoop(inf)
		}

		if inf.Actor != "" && inf.Op.Kind != domain.OpApply {
			c.addf("%s sets an actor on a %s operator", pos, inf.Op.Kind)
		}
		if inf.Loop != nil && inf.Op.Kind != domain.OpLoop {
			c.addf("%s carries a loop spec on a %s operator", pos, inf.Op.Kind)
		}
	}
}

func (c *checker) checkApply(inf *domain.Inference) {
	pos := inf.Position
	if inf.Actor == "" {
		c.addf("apply at %s names no actor", pos)
		return
	}
	actor := c.plan.Concept(inf.Actor)
	if actor == nil {
		c.addf("apply at %s names undeclared actor %q", pos, inf.Actor)
		return
	}
	if !actor.Type.IsFunctional() {
		c.addf("apply at %s: %q is %s, not a functional concept", pos, inf.Actor, actor.Type)
	}
	if actor.Paradigm == nil {
		c.addf("apply at %s: actor %q has no paradigm", pos, inf.Actor)
	}
}

func (c *checker) checkLoop(inf *domain.Inference) {
	pos := inf.Position
	if inf.Loop == nil {
		c.addf("loop at %s has no loop spec", pos)
		return
	}
	if len(inf.Values) > 0 {
		c.addf("loop at %s takes no values; the base lives in the loop spec", pos)
	}
	if inf.Loop.Base == "" {
		c.addf("loop at %s names no base", pos)
	} else if c.plan.Concept(inf.Loop.Base) == nil {
		c.addf("loop at %s iterates undeclared concept %q", pos, inf.Loop.Base)
	}
	if inf.Loop.Axis == "" {
		c.addf("loop at %s names no axis", pos)
	} else if base := c.plan.Concept(inf.Loop.Base); base != nil && len(base.SelfAxes()) > 0 {
		found := false
		for _, name := range base.SelfAxes() {
			if name == inf.Loop.Axis {
				found = true
				break
			}
		}
		if !found {
			c.addf("loop at %s walks axis %q, which %q does not declare", pos, inf.Loop.Axis, inf.Loop.Base)
		}
	}
	if inf.Loop.Depth != 0 {
		want := len(c.enclosingLoops(pos)) + 1
		if inf.Loop.Depth != want {
			c.addf("loop at %s declares depth %d but nests at %d", pos, inf.Loop.Depth, want)
		}
	}
}

// checkSequencing needs the full position set, so it runs as its own pass.
func (c *checker) checkSequencing() {
	positions := make(map[domain.FlowPosition]bool, len(c.plan.Inferences))
	for i := range c.plan.Inferences {
		positions[c.plan.Inferences[i].Position] = true
	}
	for i := range c.plan.Inferences {
		inf := &c.plan.Inferences[i]
		for _, after := range inf.After {
			if after == inf.Position {
				c.addf("%s sequences after itself", inf.Position)
				continue
			}
			if !positions[after] {
				c.addf("%s sequences after unknown position %s", inf.Position, after)
			}
		}
	}
}

// checkProducers flags concepts with more than one ungated producer in the
// same loop scope. Gated producers are conditional alternatives and may
// share a target; two unconditional ones would merge in completion order.
func (c *checker) checkProducers() {
	type scopeKey struct {
		name  string
		scope domain.FlowPosition
	}
	producers := make(map[scopeKey][]domain.FlowPosition)
	var order []scopeKey
	for i := range c.plan.Inferences {
		inf := &c.plan.Inferences[i]
		if inf.Gate != nil || inf.Target == "" || c.plan.Concept(inf.Target) == nil {
			continue
		}
		k := scopeKey{name: inf.Target, scope: c.produceScope(inf)}
		if _, ok := producers[k]; !ok {
			order = append(order, k)
		}
		producers[k] = append(producers[k], inf.Position)
	}
	for _, k := range order {
		if list := producers[k]; len(list) > 1 {
			parts := make([]string, len(list))
			for i, p := range list {
				parts[i] = string(p)
			}
			c.addf("concept %q has %d ungated producers in one scope (%s)",
				k.name, len(list), strings.Join(parts, ", "))
		}
	}
}

// checkReads flags concepts that are read somewhere but can never hold a
// value: no producer, no ground, no paradigm handle. The runtime would stall
// on them; reporting here names the concept instead of the stuck positions.
func (c *checker) checkReads() {
	reported := make(map[string]bool)
	report := func(pos domain.FlowPosition, name string) {
		if name == "" || reported[name] {
			return
		}
		con := c.plan.Concept(name)
		if con == nil {
			return // undeclared reads are reported per inference
		}
		if con.Ground != nil || (con.Type.IsFunctional() && con.Paradigm != nil) {
			return
		}
		if len(c.plan.ProducersOf(name)) > 0 {
			return
		}
		reported[name] = true
		c.addf("concept %q is read (first at %s) but nothing produces, grounds or implements it", name, pos)
	}
	for i := range c.plan.Inferences {
		inf := &c.plan.Inferences[i]
		for _, v := range inf.Values {
			report(inf.Position, v.Concept)
		}
		if inf.Gate != nil {
			report(inf.Position, inf.Gate.Source)
		}
		report(inf.Position, inf.Actor)
		if inf.Loop != nil {
			report(inf.Position, inf.Loop.Base)
		}
	}
}

// checkCarries verifies that every concept a loop carries (previous/initial
// reads and continuation targets under the loop) has a seed the frame can
// freeze at entry: a ground, a paradigm handle, or a producer outside the
// loop's subtree.
func (c *checker) checkCarries() {
	for _, driver := range c.plan.LoopDrivers() {
		pos := driver.Position
		var carried []string
		seen := make(map[string]bool)
		mark := func(name string) {
			if name != "" && !seen[name] {
				seen[name] = true
				carried = append(carried, name)
			}
		}
		for i := range c.plan.Inferences {
			inf := &c.plan.Inferences[i]
			if !inf.Position.Under(pos) {
				continue
			}
			for _, v := range inf.Values {
				if v.Version == domain.VersionPrevious || v.Version == domain.VersionInitial {
					mark(v.Concept)
				}
			}
			if inf.Op.Kind == domain.OpContinuation {
				mark(inf.Target)
			}
		}
		for _, name := range carried {
			con := c.plan.Concept(name)
			if con == nil {
				continue
			}
			if con.Ground != nil || (con.Type.IsFunctional() && con.Paradigm != nil) {
				continue
			}
			outside := false
			for _, p := range c.plan.ProducersOf(name) {
				if p.Position != pos && !p.Position.Under(pos) {
					outside = true
					break
				}
			}
			if !outside {
				c.addf("loop at %s carries %q, which has no seed outside the loop", pos, name)
			}
		}
	}
}

// enclosingLoops returns the loop-driver positions strictly enclosing pos,
// outermost first.
func (c *checker) enclosingLoops(pos domain.FlowPosition) []domain.FlowPosition {
	var out []domain.FlowPosition
	for _, d := range c.plan.LoopDrivers() {
		if pos != d.Position && pos.Under(d.Position) {
			out = append(out, d.Position)
		}
	}
	return out
}

// produceScope is the loop scope an inference's output lands in: the frame
// it drives for a loop driver, the innermost enclosing driver otherwise.
func (c *checker) produceScope(inf *domain.Inference) domain.FlowPosition {
	if inf.Op.Kind == domain.OpLoop {
		return inf.Position
	}
	var best domain.FlowPosition
	for _, d := range c.enclosingLoops(inf.Position) {
		if d.Depth() > best.Depth() {
			best = d
		}
	}
	return best
}
