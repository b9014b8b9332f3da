package reference

import "github.com/cockroachdb/errors"

// The combinators below are the only ways References combine. Skip
// propagation is absolute: a coordinate with any skip input produces skip
// and invokes nothing for that coordinate.

// unionAxes merges the non-degenerate axes of all inputs, first-seen order,
// requiring shared names to agree in size.
func unionAxes(refs ...*Reference) ([]Axis, error) {
	var union []Axis
	index := make(map[string]int)
	for _, r := range refs {
		for _, ax := range r.axes {
			if ax.IsDegenerate() {
				continue
			}
			if i, ok := index[ax.Name]; ok {
				if union[i].Size != ax.Size {
					return nil, shapeMismatchf("axis %q has sizes %d and %d", ax.Name, union[i].Size, ax.Size)
				}
				continue
			}
			index[ax.Name] = len(union)
			union = append(union, ax)
		}
	}
	return union, nil
}

// atProjected reads r at the union coordinate, keeping only r's own axes.
func atProjected(r *Reference, c Coord) (Element, error) {
	p := make(Coord, len(r.axes))
	for _, ax := range r.axes {
		if ax.IsDegenerate() {
			continue
		}
		p[ax.Name] = c[ax.Name]
	}
	return r.At(p)
}

// CrossProduct aligns the inputs on their shared axes and unions the rest.
// Shared axes must agree in size. Every output element is the ordered tuple
// of the aligned input values; any skip input makes the output skip.
func CrossProduct(refs ...*Reference) (*Reference, error) {
	if len(refs) == 0 {
		return nil, shapeMismatchf("cross product of no inputs")
	}
	union, err := unionAxes(refs...)
	if err != nil {
		return nil, err
	}
	out, err := New(union...)
	if err != nil {
		return nil, err
	}
	var failure error
	out.Each(func(c Coord, _ Element) bool {
		tuple := make([]any, len(refs))
		for i, r := range refs {
			e, atErr := atProjected(r, c)
			if atErr != nil {
				failure = atErr
				return false
			}
			if e.IsSkip() {
				_ = out.Set(c, Skip())
				return true
			}
			tuple[i] = deepCopyValue(e.Value())
		}
		_ = out.Set(c, Of(tuple))
		return true
	})
	if failure != nil {
		return nil, failure
	}
	return out, nil
}

// Join stacks inputs of identical axes and shape along a new leading axis of
// size len(refs).
func Join(newAxis string, refs ...*Reference) (*Reference, error) {
	if len(refs) == 0 {
		return nil, shapeMismatchf("join of no inputs")
	}
	if newAxis == "" || newAxis == NoAxisName {
		return nil, shapeMismatchf("join needs a fresh axis name, got %q", newAxis)
	}
	want := shapeKey(refs[0].axes, "")
	for i, r := range refs {
		if r.HasAxis(newAxis) {
			return nil, shapeMismatchf("axis %q already present on input %d", newAxis, i)
		}
		if shapeKey(r.axes, "") != want {
			return nil, shapeMismatchf("join inputs disagree: %v vs %v", refs[0].axisNames(), r.axisNames())
		}
	}

	axes := []Axis{{Name: newAxis, Size: len(refs)}}
	for _, ax := range refs[0].axes {
		if !ax.IsDegenerate() {
			axes = append(axes, ax)
		}
	}
	out, err := New(axes...)
	if err != nil {
		return nil, err
	}
	var failure error
	out.Each(func(c Coord, _ Element) bool {
		r := refs[c[newAxis]]
		rc := c.clone()
		delete(rc, newAxis)
		e, atErr := atProjected(r, rc)
		if atErr != nil {
			failure = atErr
			return false
		}
		_ = out.Set(c, Element{value: deepCopyValue(e.Value()), skip: e.IsSkip()})
		return true
	})
	if failure != nil {
		return nil, failure
	}
	return out, nil
}

// CrossAction applies every callable of fns to every value of args, laying
// results along the new innermost axis. A call returning []any expands along
// that axis; a scalar occupies one slot; shorter rows are padded with skip.
// A skip callable or skip argument yields an all-skip row without invoking
// anything. A call error aborts the combinator.
func CrossAction(fns, args *Reference, newAxis string) (*Reference, error) {
	if newAxis == "" || newAxis == NoAxisName {
		return nil, shapeMismatchf("cross action needs a fresh axis name, got %q", newAxis)
	}
	union, err := unionAxes(fns, args)
	if err != nil {
		return nil, err
	}
	for _, ax := range union {
		if ax.Name == newAxis {
			return nil, shapeMismatchf("axis %q already present on the inputs", newAxis)
		}
	}
	grid, err := New(union...)
	if err != nil {
		return nil, err
	}

	// First pass: run every pair, collect rows. nil row means skip.
	var rows [][]any
	anySkip := false
	var failure error
	grid.Each(func(c Coord, _ Element) bool {
		fnE, atErr := atProjected(fns, c)
		if atErr != nil {
			failure = atErr
			return false
		}
		argE, atErr := atProjected(args, c)
		if atErr != nil {
			failure = atErr
			return false
		}
		if fnE.IsSkip() || argE.IsSkip() {
			rows = append(rows, nil)
			anySkip = true
			return true
		}
		fn, ok := fnE.AsFn()
		if !ok {
			failure = shapeMismatchf("element at %v is not callable (%T)", c, fnE.Value())
			return false
		}
		res, callErr := fn(deepCopyValue(argE.Value()))
		if callErr != nil {
			failure = errors.Wrapf(callErr, "cross action at %v", c)
			return false
		}
		switch v := res.(type) {
		case []any:
			rows = append(rows, v)
		default:
			rows = append(rows, []any{res})
		}
		return true
	})
	if failure != nil {
		return nil, failure
	}

	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	if width == 0 && anySkip {
		width = 1
	}

	axes := append(append([]Axis(nil), union...), Axis{Name: newAxis, Size: width})
	out, err := New(axes...)
	if err != nil {
		return nil, err
	}
	i := 0
	grid.Each(func(c Coord, _ Element) bool {
		row := rows[i]
		i++
		for j := 0; j < width; j++ {
			cc := c.clone()
			cc[newAxis] = j
			e := Skip()
			if row != nil && j < len(row) {
				e = Of(row[j])
			}
			_ = out.Set(cc, e)
		}
		return true
	})
	return out, nil
}

// ElementAction applies fn position-wise over inputs that already share the
// same axes and sizes. Iteration follows the first input's axis order;
// the others are aligned by name.
func ElementAction(fn func(args []any) (any, error), refs ...*Reference) (*Reference, error) {
	return elementAction(func(args []any, _ Coord) (any, error) { return fn(args) }, refs)
}

// ElementActionAt is ElementAction with the per-axis coordinate passed to fn.
func ElementActionAt(fn func(args []any, at Coord) (any, error), refs ...*Reference) (*Reference, error) {
	return elementAction(fn, refs)
}

func elementAction(fn func(args []any, at Coord) (any, error), refs []*Reference) (*Reference, error) {
	if len(refs) == 0 {
		return nil, shapeMismatchf("element action of no inputs")
	}
	want := shapeKey(refs[0].axes, "")
	for _, r := range refs[1:] {
		if shapeKey(r.axes, "") != want {
			return nil, shapeMismatchf("element action inputs disagree: %v vs %v", refs[0].axisNames(), r.axisNames())
		}
	}
	out, err := New(refs[0].axes...)
	if err != nil {
		return nil, err
	}
	var failure error
	out.Each(func(c Coord, _ Element) bool {
		args := make([]any, len(refs))
		for i, r := range refs {
			e, atErr := atProjected(r, c)
			if atErr != nil {
				failure = atErr
				return false
			}
			if e.IsSkip() {
				_ = out.Set(c, Skip())
				return true
			}
			args[i] = deepCopyValue(e.Value())
		}
		res, callErr := fn(args, c.clone())
		if callErr != nil {
			failure = errors.Wrapf(callErr, "element action at %v", c)
			return false
		}
		_ = out.Set(c, Of(res))
		return true
	})
	if failure != nil {
		return nil, failure
	}
	return out, nil
}
