package runtime

import (
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/reference"
)

// The assigning executors are pure: resolved inputs in, a produced
// reference out. A nil result means the inference contributes nothing.

// execAbstraction builds a reference from the inference's literal.
func execAbstraction(params *domain.AbstractionParams) (*reference.Reference, error) {
	return reference.FromNested(params.Value, params.Axes...)
}

// execSpecification cross-aligns the candidates and takes the first
// non-skip element per coordinate, in value order. A coordinate where every
// candidate is skip stays skip.
func execSpecification(values []*reference.Reference) (*reference.Reference, error) {
	if len(values) == 0 {
		return nil, domain.ShapeMismatchf("specification needs at least one value")
	}
	out, err := unionGrid(values...)
	if err != nil {
		return nil, err
	}
	var failure error
	out.Each(func(c reference.Coord, _ reference.Element) bool {
		for _, v := range values {
			e, atErr := projectAt(v, c)
			if atErr != nil {
				failure = atErr
				return false
			}
			if !e.IsSkip() {
				_ = out.Set(c, e.Copy())
				return true
			}
		}
		return true
	})
	if failure != nil {
		return nil, failure
	}
	return out, nil
}

// execContinuation appends each value in order onto the previous version of
// the target along the named axis. prev may be nil (fresh target). A value
// that is entirely skip contributes nothing; if everything was skip the
// result is nil and the target keeps its previous version.
func execContinuation(prev *reference.Reference, values []*reference.Reference, axis string) (*reference.Reference, error) {
	acc := prev
	changed := false
	for _, v := range values {
		if v.IsAllSkip() {
			continue
		}
		if acc == nil {
			first := v
			if !first.HasAxis(axis) {
				joined, err := reference.Join(axis, first)
				if err != nil {
					return nil, err
				}
				first = joined
			} else {
				first = first.Copy()
			}
			acc = first
			changed = true
			continue
		}
		next, err := acc.Append(v, axis)
		if err != nil {
			return nil, err
		}
		acc = next
		changed = true
	}
	if !changed {
		return nil, nil
	}
	return acc, nil
}

// execSelection applies the extraction steps in sequence.
func execSelection(input *reference.Reference, steps []domain.SelectStep) (*reference.Reference, error) {
	cur := input
	for i, step := range steps {
		var err error
		switch {
		case step.Pos != nil:
			cur, err = selectPos(cur, step.Axis, *step.Pos)
		case step.All:
			cur, err = selectAll(cur, step.Axis)
		case step.Key != "":
			cur, err = selectKey(cur, step.Key)
		default:
			err = domain.PlanInvalidf("selection step %d is empty", i)
		}
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// selectPos fixes one coordinate along axis and drops the axis. Negative
// positions count from the end.
func selectPos(r *reference.Reference, axis string, pos int) (*reference.Reference, error) {
	size, err := r.AxisSize(axis)
	if err != nil {
		return nil, err
	}
	idx := pos
	if idx < 0 {
		idx += size
	}
	if idx < 0 || idx >= size {
		return nil, domain.ShapeMismatchf("position %d out of range for axis %q (size %d)", pos, axis, size)
	}
	return r.Sub(reference.Coord{axis: idx})
}

// selectAll collapses axis into list-valued elements over the kept axes.
func selectAll(r *reference.Reference, axis string) (*reference.Reference, error) {
	if !r.HasAxis(axis) {
		return nil, domain.AxisNotFoundf("axis %q not on the selected value", axis)
	}
	var keep []string
	for _, name := range nonDegenerateNames(r) {
		if name != axis {
			keep = append(keep, name)
		}
	}
	return r.Slice(keep...)
}

// selectKey maps map-valued elements to the entry under key. A missing key
// yields skip; skip stays skip; a concrete non-map element is a shape
// mismatch.
func selectKey(r *reference.Reference, key string) (*reference.Reference, error) {
	out := r.Copy()
	var failure error
	out.Each(func(c reference.Coord, e reference.Element) bool {
		if e.IsSkip() {
			return true
		}
		m, ok := e.Value().(map[string]any)
		if !ok {
			failure = domain.ShapeMismatchf("element at %v is %T, want a keyed record for key %q", c, e.Value(), key)
			return false
		}
		v, present := m[key]
		if !present {
			_ = out.Set(c, reference.Skip())
			return true
		}
		_ = out.Set(c, reference.Of(v))
		return true
	})
	if failure != nil {
		return nil, failure
	}
	return out, nil
}
