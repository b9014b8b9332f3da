package runtime

import (
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/reference"
)

// gateDecision is the evaluated form of one inference's gate. A no-axis
// condition gates the whole inference through allow; an axis-carrying
// condition gates per coordinate through mask.
type gateDecision struct {
	allow bool
	mask  *reference.Reference
}

// passes reports the verdict for one output coordinate.
func (g gateDecision) passes(c reference.Coord) (bool, error) {
	if g.mask == nil {
		return g.allow, nil
	}
	p := make(reference.Coord)
	for _, ax := range g.mask.Axes() {
		if ax.IsDegenerate() {
			continue
		}
		p[ax.Name] = c[ax.Name]
	}
	e, err := g.mask.At(p)
	if err != nil {
		return false, err
	}
	return !e.IsSkip() && e.Value() == true, nil
}

// evalGate reduces the condition reference to a decision. Skip elements
// count as false whether or not the gate is negated; a concrete non-boolean
// element is a shape mismatch.
func evalGate(gate *domain.Gate, cond *reference.Reference) (gateDecision, error) {
	negated := gate.Negated

	truth := func(e reference.Element) (bool, error) {
		if e.IsSkip() {
			return false, nil
		}
		b, ok := e.Value().(bool)
		if !ok {
			return false, domain.ShapeMismatchf("condition %q holds %T, want bool", gate.Source, e.Value())
		}
		if negated {
			return !b, nil
		}
		return b, nil
	}

	if isScalarShape(cond) {
		var verdict bool
		var failure error
		cond.Each(func(_ reference.Coord, e reference.Element) bool {
			verdict, failure = truth(e)
			return false
		})
		return gateDecision{allow: verdict}, failure
	}

	mask := cond.Copy()
	var failure error
	cond.Each(func(c reference.Coord, e reference.Element) bool {
		v, err := truth(e)
		if err != nil {
			failure = err
			return false
		}
		_ = mask.Set(c, reference.Of(v))
		return true
	})
	if failure != nil {
		return gateDecision{}, failure
	}
	return gateDecision{allow: true, mask: mask}, nil
}

// checkMaskAxes verifies the condition only varies along axes the gated
// output actually has, so every mask coordinate addresses a real slot.
func (g gateDecision) checkMaskAxes(out *reference.Reference) error {
	if g.mask == nil {
		return nil
	}
	for _, ax := range g.mask.Axes() {
		if ax.IsDegenerate() {
			continue
		}
		if !out.HasAxis(ax.Name) {
			return domain.ShapeMismatchf("condition axis %q does not appear on the gated value", ax.Name)
		}
	}
	return nil
}

// maskRef returns a copy of r with every element whose coordinate fails the
// gate turned to skip.
func (g gateDecision) maskRef(r *reference.Reference) (*reference.Reference, error) {
	if g.mask == nil && g.allow {
		return r, nil
	}
	if err := g.checkMaskAxes(r); err != nil {
		return nil, err
	}
	out := r.Copy()
	var failure error
	out.Each(func(c reference.Coord, e reference.Element) bool {
		ok, err := g.passes(c)
		if err != nil {
			failure = err
			return false
		}
		if !ok {
			_ = out.Set(c, reference.Skip())
		}
		return true
	})
	if failure != nil {
		return nil, failure
	}
	return out, nil
}

// isScalarShape reports whether r has no non-degenerate axes.
func isScalarShape(r *reference.Reference) bool {
	for _, ax := range r.Axes() {
		if !ax.IsDegenerate() {
			return false
		}
	}
	return true
}
