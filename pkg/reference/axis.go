package reference

// NoAxisName is the reserved name of the degenerate axis. A concept with no
// inherent plurality still addresses its single value through this axis, so
// every Reference is indexable the same way.
const NoAxisName = "no-axis"

// Axis is a named dimension of a Reference: a name plus a concrete size.
// Whether an axis is self-provided or dependent is a plan-level property and
// is not recorded here; at execution time only the extent matters.
type Axis struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

// NoAxis returns the degenerate size-1 axis.
func NoAxis() Axis {
	return Axis{Name: NoAxisName, Size: 1}
}

// IsDegenerate reports whether the axis is the reserved no-axis placeholder.
func (a Axis) IsDegenerate() bool {
	return a.Name == NoAxisName
}

// Coord addresses an element by named per-axis indices.
type Coord map[string]int

func (c Coord) clone() Coord {
	out := make(Coord, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
