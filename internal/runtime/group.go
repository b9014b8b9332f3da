package runtime

import (
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/reference"
)

// groupSource pairs a value concept's name with its resolved reference,
// in the order the inference listed its values.
type groupSource struct {
	name string
	ref  *reference.Reference
}

// execGroupIn gathers the sources into keyed records. Per source the
// collapsed axes, (Collapse ∩ source axes) − Protected, are erased into the
// element; the kept axes are cross-aligned across sources and every element
// becomes map[sourceName]value. A source that is skip at a coordinate omits
// its key, and an element with no keys at all is skip.
//
// With NewAxis the collapsed content stays addressable: the output gains an
// explicit innermost axis sized to the widest source, and shorter sources
// simply omit their key past their own width.
func execGroupIn(sources []groupSource, params *domain.GroupInParams) (*reference.Reference, error) {
	if len(sources) == 0 {
		return nil, domain.ShapeMismatchf("group_in needs at least one value")
	}
	collapseSet := nameSet(params.Collapse)
	protectedSet := nameSet(params.Protected)

	collapsed := make([][]reference.Axis, len(sources))
	kept := make([][]reference.Axis, len(sources))
	for i, s := range sources {
		for _, ax := range s.ref.Axes() {
			if ax.IsDegenerate() {
				continue
			}
			if collapseSet[ax.Name] && !protectedSet[ax.Name] {
				collapsed[i] = append(collapsed[i], ax)
			} else {
				kept[i] = append(kept[i], ax)
			}
		}
	}

	if params.NewAxis == "" {
		return groupInNested(sources, collapsed, kept)
	}
	return groupInExplicit(sources, collapsed, kept, params.NewAxis)
}

// groupInNested erases each source's collapsed axes into nested lists, then
// zips the reduced sources into records over the union of kept axes.
func groupInNested(sources []groupSource, collapsed, kept [][]reference.Axis) (*reference.Reference, error) {
	reduced := make([]*reference.Reference, len(sources))
	for i, s := range sources {
		if len(collapsed[i]) == 0 {
			reduced[i] = s.ref
			continue
		}
		r, err := s.ref.Slice(axisNames(kept[i])...)
		if err != nil {
			return nil, err
		}
		reduced[i] = r
	}

	out, err := unionGrid(reduced...)
	if err != nil {
		return nil, err
	}
	var failure error
	out.Each(func(c reference.Coord, _ reference.Element) bool {
		record := make(map[string]any, len(sources))
		for i, s := range sources {
			e, err := projectAt(reduced[i], c)
			if err != nil {
				failure = err
				return false
			}
			if e.IsSkip() {
				continue
			}
			record[s.name] = e.Copy().Value()
		}
		if len(record) > 0 {
			_ = out.Set(c, reference.Of(record))
		}
		return true
	})
	if failure != nil {
		return nil, failure
	}
	return out, nil
}

// groupInExplicit lays the collapsed content out along newAxis instead of
// nesting it. The axis is sized to the widest source's collapsed slot count.
func groupInExplicit(sources []groupSource, collapsed, kept [][]reference.Axis, newAxis string) (*reference.Reference, error) {
	width := 0
	counts := make([]int, len(sources))
	for i := range sources {
		counts[i] = axesProduct(collapsed[i])
		if counts[i] > width {
			width = counts[i]
		}
	}

	union, err := unionAxes(kept...)
	if err != nil {
		return nil, err
	}
	for _, ax := range union {
		if ax.Name == newAxis {
			return nil, domain.ShapeMismatchf("new axis %q already kept by a source", newAxis)
		}
	}
	out, err := reference.New(append(union, reference.Axis{Name: newAxis, Size: width})...)
	if err != nil {
		return nil, err
	}

	var failure error
	out.Each(func(c reference.Coord, _ reference.Element) bool {
		slot := c[newAxis]
		record := make(map[string]any, len(sources))
		for i, s := range sources {
			if slot >= counts[i] {
				continue
			}
			at := linearCoord(collapsed[i], slot)
			for _, ax := range kept[i] {
				at[ax.Name] = c[ax.Name]
			}
			e, err := s.ref.At(at)
			if err != nil {
				failure = err
				return false
			}
			if e.IsSkip() {
				continue
			}
			record[s.name] = e.Copy().Value()
		}
		if len(record) > 0 {
			_ = out.Set(c, reference.Of(record))
		}
		return true
	})
	if failure != nil {
		return nil, failure
	}
	return out, nil
}

// execGroupAcross concatenates the sources' collapsed content along one
// output axis, losing source identity. Collapse lists come from CollapsePer
// (per source), from a shared Collapse every source must carry, or, with
// neither, from the single axis name all sources share; anything less
// determinate is a collapse ambiguity.
func execGroupAcross(sources []groupSource, params *domain.GroupAcrossParams) (*reference.Reference, error) {
	if len(sources) == 0 {
		return nil, domain.ShapeMismatchf("group_across needs at least one value")
	}
	collapsed, err := resolveAcrossCollapse(sources, params)
	if err != nil {
		return nil, err
	}

	outName := params.NewAxis
	if outName == "" {
		for _, axes := range collapsed {
			if len(axes) != 1 {
				return nil, domain.CollapseAmbiguityf("collapsing %d axes from one source needs new_axis", len(axes))
			}
			switch {
			case outName == "":
				outName = axes[0].Name
			case outName != axes[0].Name:
				return nil, domain.CollapseAmbiguityf("collapsed axes %q and %q differ; set new_axis", outName, axes[0].Name)
			}
		}
	}

	kept := make([][]reference.Axis, len(sources))
	for i, s := range sources {
		names := nameSet(axisNames(collapsed[i]))
		for _, ax := range s.ref.Axes() {
			if ax.IsDegenerate() || names[ax.Name] {
				continue
			}
			if ax.Name == outName {
				return nil, domain.ShapeMismatchf("kept axis %q collides with the output axis", ax.Name)
			}
			kept[i] = append(kept[i], ax)
		}
	}
	union, err := unionAxes(kept...)
	if err != nil {
		return nil, err
	}

	// One table entry per output slot, mapping it back to a source and the
	// fixed coordinates of that source's collapsed axes.
	type slot struct {
		src int
		at  reference.Coord
	}
	var table []slot
	for i := range sources {
		n := axesProduct(collapsed[i])
		for j := 0; j < n; j++ {
			table = append(table, slot{src: i, at: linearCoord(collapsed[i], j)})
		}
	}

	out, err := reference.New(append(union, reference.Axis{Name: outName, Size: len(table)})...)
	if err != nil {
		return nil, err
	}
	var failure error
	out.Each(func(c reference.Coord, _ reference.Element) bool {
		entry := table[c[outName]]
		s := sources[entry.src]
		at := make(reference.Coord, len(entry.at)+len(kept[entry.src]))
		for name, i := range entry.at {
			at[name] = i
		}
		for _, ax := range kept[entry.src] {
			at[ax.Name] = c[ax.Name]
		}
		e, err := s.ref.At(at)
		if err != nil {
			failure = err
			return false
		}
		if !e.IsSkip() {
			_ = out.Set(c, e.Copy())
		}
		return true
	})
	if failure != nil {
		return nil, failure
	}
	return out, nil
}

// resolveAcrossCollapse decides which axes each source loses.
func resolveAcrossCollapse(sources []groupSource, params *domain.GroupAcrossParams) ([][]reference.Axis, error) {
	collapsed := make([][]reference.Axis, len(sources))
	switch {
	case len(params.CollapsePer) > 0:
		for i, s := range sources {
			names, ok := params.CollapsePer[s.name]
			if !ok {
				return nil, domain.CollapseAmbiguityf("no collapse entry for source %q", s.name)
			}
			axes, err := namedAxes(s.ref, names)
			if err != nil {
				return nil, err
			}
			collapsed[i] = axes
		}
	case len(params.Collapse) > 0:
		for i, s := range sources {
			axes, err := namedAxes(s.ref, params.Collapse)
			if err != nil {
				return nil, err
			}
			collapsed[i] = axes
		}
	default:
		shared := ""
		for _, s := range sources {
			names := nonDegenerateNames(s.ref)
			if len(names) != 1 {
				return nil, domain.CollapseAmbiguityf("source %q carries %d axes; give collapse lists", s.name, len(names))
			}
			switch {
			case shared == "":
				shared = names[0]
			case shared != names[0]:
				return nil, domain.CollapseAmbiguityf("sources carry different axes %q and %q; give collapse lists", shared, names[0])
			}
		}
		for i, s := range sources {
			axes, err := namedAxes(s.ref, []string{shared})
			if err != nil {
				return nil, err
			}
			collapsed[i] = axes
		}
	}
	return collapsed, nil
}

// namedAxes resolves names against r, preserving the given order.
func namedAxes(r *reference.Reference, names []string) ([]reference.Axis, error) {
	axes := make([]reference.Axis, 0, len(names))
	for _, name := range names {
		size, err := r.AxisSize(name)
		if err != nil {
			return nil, err
		}
		axes = append(axes, reference.Axis{Name: name, Size: size})
	}
	return axes, nil
}

// linearCoord decodes a row-major index over axes, last axis fastest.
func linearCoord(axes []reference.Axis, j int) reference.Coord {
	c := make(reference.Coord, len(axes))
	for i := len(axes) - 1; i >= 0; i-- {
		c[axes[i].Name] = j % axes[i].Size
		j /= axes[i].Size
	}
	return c
}

func axesProduct(axes []reference.Axis) int {
	n := 1
	for _, ax := range axes {
		n *= ax.Size
	}
	return n
}

func axisNames(axes []reference.Axis) []string {
	names := make([]string, len(axes))
	for i, ax := range axes {
		names[i] = ax.Name
	}
	return names
}

func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}
