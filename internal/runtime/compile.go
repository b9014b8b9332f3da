package runtime

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/reference"
)

// unitOutcome tracks one inference through the scheduler.
type unitOutcome string

const (
	outcomePending unitOutcome = "pending"
	outcomeRunning unitOutcome = "running"
	outcomeDone    unitOutcome = "done"
	outcomeFailed  unitOutcome = "failed"
	outcomeSkipped unitOutcome = "skipped"
	outcomeAborted unitOutcome = "aborted"
)

// settled reports whether the unit has finished this iteration, one way or
// another. Sequencing (After) waits for settled, not for done.
func (o unitOutcome) settled() bool {
	switch o {
	case outcomeDone, outcomeFailed, outcomeSkipped, outcomeAborted:
		return true
	}
	return false
}

// unit is one inference plus its scheduling state.
type unit struct {
	inf   *domain.Inference
	frame *frame // innermost enclosing loop frame, nil at top level

	// deps are every concept this unit reads: values, gate source, actor
	// and loop base. Current-version reads block until the concept
	// resolves; previous/initial reads hit the frame carries.
	deps []domain.ValueRef

	// carrySeeds names the carried concepts a loop driver freezes at frame
	// entry. They gate the driver on holding a value at all, not on being
	// resolved, since reopened frames carry last iteration's value over.
	carrySeeds []string

	outcome  unitOutcome
	attempts int
}

func (u *unit) pos() domain.FlowPosition { return u.inf.Position }

// carry holds the loop-relative versions of one carried concept.
type carry struct {
	initial  *reference.Reference
	previous *reference.Reference
}

// frame is one loop scope: the driver, its direct body, and the carry state
// for the concepts the body reads at previous/initial versions.
type frame struct {
	driver  *unit
	spec    domain.LoopSpec
	parent  *frame
	body    []*unit  // units whose innermost enclosing frame is this one
	nested  []*frame // frames directly inside this one
	carried []string // concept names with loop-relative reads

	open      bool
	closed    bool
	iteration int
	carries   map[string]*carry
}

func (f *frame) pos() domain.FlowPosition { return f.driver.inf.Position }

// depth of positional nesting, 1 for an outermost loop.
func (f *frame) depth() int {
	d := 1
	for p := f.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// iterVec renders the iteration counters of every open enclosing frame,
// outermost first. It keys the computed set so each inference runs at most
// once per iteration version.
func iterVec(f *frame) string {
	var counts []string
	for ; f != nil; f = f.parent {
		counts = append(counts, fmt.Sprintf("%d", f.iteration))
	}
	for i, j := 0, len(counts)-1; i < j; i, j = i+1, j-1 {
		counts[i], counts[j] = counts[j], counts[i]
	}
	return strings.Join(counts, ",")
}

// program is the compiled form of a plan: units wired with dependencies and
// the loop tree.
type program struct {
	plan      *domain.Plan
	units     []*unit
	byPos     map[domain.FlowPosition]*unit
	frames    []*frame // outermost first
	producers map[string][]*unit
}

// compile builds the program and seeds the store: aliases for identity
// inferences, ground literals, and functional concept handles. The plan
// must already be validated.
func compile(plan *domain.Plan, store *Store) (*program, error) {
	p := &program{
		plan:      plan,
		byPos:     make(map[domain.FlowPosition]*unit),
		producers: make(map[string][]*unit),
	}

	for i := range plan.Concepts {
		store.Register(plan.Concepts[i].Name)
	}

	// 1. Identity aliases first, so every later read resolves canonically.
	for i := range plan.Inferences {
		inf := &plan.Inferences[i]
		if inf.Op.Kind != domain.OpIdentity {
			continue
		}
		if len(inf.Values) != 1 {
			return nil, domain.PlanInvalidf("identity at %s needs exactly one value", inf.Position)
		}
		if err := store.Alias(inf.Target, inf.Values[0].Concept); err != nil {
			return nil, err
		}
	}

	// 2. One unit per inference, with its full read set.
	for i := range plan.Inferences {
		inf := &plan.Inferences[i]
		u := &unit{inf: inf, outcome: outcomePending}
		u.deps = append(u.deps, inf.Values...)
		if inf.Gate != nil {
			u.deps = append(u.deps, domain.Ref(inf.Gate.Source))
		}
		if inf.Actor != "" {
			u.deps = append(u.deps, domain.Ref(inf.Actor))
		}
		if inf.Loop != nil {
			u.deps = append(u.deps, domain.Ref(inf.Loop.Base))
		}
		p.units = append(p.units, u)
		p.byPos[inf.Position] = u
		p.producers[store.Canonical(inf.Target)] = append(p.producers[store.Canonical(inf.Target)], u)
	}

	// 3. Loop tree from positions: a frame per driver, body membership by
	// the innermost strictly-enclosing driver position.
	var drivers []*unit
	for _, u := range p.units {
		if u.inf.Op.Kind == domain.OpLoop {
			if u.inf.Loop == nil {
				return nil, domain.PlanInvalidf("loop driver at %s is missing its loop spec", u.pos())
			}
			drivers = append(drivers, u)
		}
	}
	sort.Slice(drivers, func(i, j int) bool { return drivers[i].pos().Depth() < drivers[j].pos().Depth() })

	frameByPos := make(map[domain.FlowPosition]*frame, len(drivers))
	for _, d := range drivers {
		f := &frame{driver: d, spec: *d.inf.Loop, carries: make(map[string]*carry)}
		f.parent = innermostFrame(frameByPos, d.pos())
		if f.parent != nil {
			f.parent.nested = append(f.parent.nested, f)
		}
		if f.spec.Depth != 0 && f.spec.Depth != f.depth() {
			return nil, domain.PlanInvalidf("loop at %s declares depth %d but nests at %d", d.pos(), f.spec.Depth, f.depth())
		}
		frameByPos[d.pos()] = f
		p.frames = append(p.frames, f)
	}
	for _, u := range p.units {
		u.frame = innermostFrame(frameByPos, u.pos())
		if u.frame != nil && u.inf.Op.Kind != domain.OpLoop {
			u.frame.body = append(u.frame.body, u)
		}
	}
	for _, d := range drivers {
		// A nested driver is body of its parent frame.
		f := frameByPos[d.pos()]
		if f.parent != nil {
			f.parent.body = append(f.parent.body, d)
		}
	}

	// 4. Carried concepts: anything a body unit reads at previous/initial,
	// plus continuation targets, which read their own previous version
	// implicitly. The driver additionally waits for those concepts' outside
	// seeds.
	for _, f := range p.frames {
		seen := make(map[string]bool)
		mark := func(name string) {
			canon := store.Canonical(name)
			if !seen[canon] {
				seen[canon] = true
				f.carried = append(f.carried, canon)
				f.driver.carrySeeds = append(f.driver.carrySeeds, canon)
			}
		}
		for _, u := range unitsUnder(f) {
			for _, v := range u.inf.Values {
				if v.Version == domain.VersionPrevious || v.Version == domain.VersionInitial {
					mark(v.Concept)
				}
			}
			if u.inf.Op.Kind == domain.OpContinuation {
				mark(u.inf.Target)
			}
		}
		sort.Strings(f.carried)
		sort.Strings(f.driver.carrySeeds)
	}

	return p, nil
}

// unitsUnder returns the frame's body plus every unit in nested frames.
func unitsUnder(f *frame) []*unit {
	out := append([]*unit(nil), f.body...)
	for _, nested := range f.nested {
		out = append(out, unitsUnder(nested)...)
	}
	return out
}

func innermostFrame(frames map[domain.FlowPosition]*frame, pos domain.FlowPosition) *frame {
	var best *frame
	for fpos, f := range frames {
		if pos != fpos && pos.Under(fpos) {
			if best == nil || fpos.Depth() > best.pos().Depth() {
				best = f
			}
		}
	}
	return best
}

// seedStore installs run-start values: ground literals shaped by the
// concept's own axes, and callable handles for functional concepts backed
// by a paradigm.
func seedStore(plan *domain.Plan, store *Store) error {
	for i := range plan.Concepts {
		c := &plan.Concepts[i]
		if c.Ground != nil {
			ref, err := reference.FromNested(c.Ground, c.SelfAxes()...)
			if err != nil {
				return domain.PlanInvalidf("ground for %q: %v", c.Name, err)
			}
			store.Put(c.Name, ref, StatusDone)
			continue
		}
		if c.Type.IsFunctional() && c.Paradigm != nil {
			store.Put(c.Name, reference.Scalar(reference.Sign(c.Name)), StatusDone)
		}
	}
	return nil
}
