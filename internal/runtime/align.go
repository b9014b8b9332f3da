package runtime

import (
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/reference"
)

// unionGrid builds an all-skip reference over the union of the inputs'
// non-degenerate axes, first-seen order. Shared names must agree in size.
func unionGrid(refs ...*reference.Reference) (*reference.Reference, error) {
	var lists [][]reference.Axis
	for _, r := range refs {
		lists = append(lists, r.Axes())
	}
	axes, err := unionAxes(lists...)
	if err != nil {
		return nil, err
	}
	return reference.New(axes...)
}

// unionAxes merges axis lists in first-seen order, dropping degenerate
// entries. Shared names must agree in size.
func unionAxes(lists ...[]reference.Axis) ([]reference.Axis, error) {
	var axes []reference.Axis
	index := make(map[string]int)
	for _, list := range lists {
		for _, ax := range list {
			if ax.IsDegenerate() {
				continue
			}
			if i, ok := index[ax.Name]; ok {
				if axes[i].Size != ax.Size {
					return nil, domain.ShapeMismatchf("axis %q has sizes %d and %d", ax.Name, axes[i].Size, ax.Size)
				}
				continue
			}
			index[ax.Name] = len(axes)
			axes = append(axes, ax)
		}
	}
	return axes, nil
}

// projectAt reads r at the union coordinate, keeping only r's own axes.
func projectAt(r *reference.Reference, c reference.Coord) (reference.Element, error) {
	p := make(reference.Coord)
	for _, ax := range r.Axes() {
		if ax.IsDegenerate() {
			continue
		}
		p[ax.Name] = c[ax.Name]
	}
	return r.At(p)
}

// nonDegenerateNames lists r's real axis names in declaration order.
func nonDegenerateNames(r *reference.Reference) []string {
	var names []string
	for _, ax := range r.Axes() {
		if !ax.IsDegenerate() {
			names = append(names, ax.Name)
		}
	}
	return names
}
