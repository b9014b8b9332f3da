package reference

import (
	"fmt"
	"sort"
	"strings"
)

// Reference is the value container of the execution substrate: an ordered set
// of named axes and one element per coordinate, stored flat in row-major
// order. A Reference is always rectangular. All operations return new
// References or elements that never alias the receiver's data; only Set and
// Fill mutate the receiver.
type Reference struct {
	axes []Axis
	data []Element
}

// New builds a Reference over the given axes with every element skip.
// Passing no axes yields the degenerate single-element Reference.
func New(axes ...Axis) (*Reference, error) {
	if len(axes) == 0 {
		axes = []Axis{NoAxis()}
	}
	seen := make(map[string]bool, len(axes))
	for _, ax := range axes {
		if ax.Name == "" {
			return nil, axisNotFoundf("axis with empty name")
		}
		if seen[ax.Name] {
			return nil, shapeMismatchf("duplicate axis %q", ax.Name)
		}
		seen[ax.Name] = true
		if ax.Size < 0 {
			return nil, shapeMismatchf("axis %q has negative size %d", ax.Name, ax.Size)
		}
		if ax.IsDegenerate() && ax.Size != 1 {
			return nil, shapeMismatchf("axis %q must have size 1, got %d", NoAxisName, ax.Size)
		}
	}
	r := &Reference{axes: append([]Axis(nil), axes...)}
	r.data = make([]Element, r.capacity())
	for i := range r.data {
		r.data[i] = Skip()
	}
	return r, nil
}

// Scalar wraps a single value into a Reference over the degenerate axis.
func Scalar(v any) *Reference {
	return &Reference{
		axes: []Axis{NoAxis()},
		data: []Element{Of(v)},
	}
}

// FromNested builds a Reference from a literal: a scalar, or nested []any
// collections one level deep per axis name, outermost first. The literal must
// be rectangular. SkipValue leaves become skip elements.
func FromNested(value any, axisNames ...string) (*Reference, error) {
	if len(axisNames) == 0 {
		return Scalar(value), nil
	}
	seen := make(map[string]bool, len(axisNames))
	for _, name := range axisNames {
		if name == "" || seen[name] {
			return nil, shapeMismatchf("literal axis names must be unique and non-empty")
		}
		seen[name] = true
	}

	sizes := make([]int, len(axisNames))
	for i := range sizes {
		sizes[i] = -1
	}
	var elems []Element
	var walk func(v any, depth int) error
	walk = func(v any, depth int) error {
		if depth == len(axisNames) {
			elems = append(elems, Of(deepCopyValue(v)))
			return nil
		}
		list, ok := v.([]any)
		if !ok {
			return shapeMismatchf("literal for axis %q must be a list, got %T", axisNames[depth], v)
		}
		if sizes[depth] == -1 {
			sizes[depth] = len(list)
		} else if sizes[depth] != len(list) {
			return shapeMismatchf("ragged literal: axis %q has sizes %d and %d", axisNames[depth], sizes[depth], len(list))
		}
		for _, item := range list {
			if err := walk(item, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(value, 0); err != nil {
		return nil, err
	}

	axes := make([]Axis, len(axisNames))
	for i, name := range axisNames {
		size := sizes[i]
		if size == -1 {
			size = 0
		}
		axes[i] = Axis{Name: name, Size: size}
	}
	r := &Reference{axes: axes, data: elems}
	if len(r.data) != r.capacity() {
		return nil, shapeMismatchf("literal does not fill shape %v", r.Shape())
	}
	return r, nil
}

func (r *Reference) capacity() int {
	n := 1
	for _, ax := range r.axes {
		n *= ax.Size
	}
	return n
}

// Axes returns a copy of the axis list.
func (r *Reference) Axes() []Axis {
	return append([]Axis(nil), r.axes...)
}

// Shape returns the axis sizes in declaration order.
func (r *Reference) Shape() []int {
	out := make([]int, len(r.axes))
	for i, ax := range r.axes {
		out[i] = ax.Size
	}
	return out
}

// Len is the number of elements.
func (r *Reference) Len() int { return len(r.data) }

// HasAxis reports whether the Reference carries the named axis.
func (r *Reference) HasAxis(name string) bool {
	_, ok := r.axisIndex(name)
	return ok
}

// AxisSize returns the size of the named axis.
func (r *Reference) AxisSize(name string) (int, error) {
	i, ok := r.axisIndex(name)
	if !ok {
		return 0, axisNotFoundf("axis %q not in %v", name, r.axisNames())
	}
	return r.axes[i].Size, nil
}

func (r *Reference) axisIndex(name string) (int, bool) {
	for i, ax := range r.axes {
		if ax.Name == name {
			return i, true
		}
	}
	return 0, false
}

func (r *Reference) axisNames() []string {
	names := make([]string, len(r.axes))
	for i, ax := range r.axes {
		names[i] = ax.Name
	}
	return names
}

func (r *Reference) strides() []int {
	s := make([]int, len(r.axes))
	acc := 1
	for i := len(r.axes) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= r.axes[i].Size
	}
	return s
}

// offsetOf resolves a full coordinate to a flat offset. Degenerate axes may
// be omitted; every other axis must be present and in range.
func (r *Reference) offsetOf(c Coord) (int, error) {
	for name := range c {
		if _, ok := r.axisIndex(name); !ok {
			return 0, axisNotFoundf("axis %q not in %v", name, r.axisNames())
		}
	}
	strides := r.strides()
	off := 0
	for i, ax := range r.axes {
		idx, ok := c[ax.Name]
		if !ok {
			if ax.IsDegenerate() {
				continue
			}
			return 0, axisNotFoundf("coordinate missing axis %q", ax.Name)
		}
		if idx < 0 || idx >= ax.Size {
			return 0, shapeMismatchf("index %d out of range for axis %q (size %d)", idx, ax.Name, ax.Size)
		}
		off += idx * strides[i]
	}
	return off, nil
}

// At returns the element at a full coordinate.
func (r *Reference) At(c Coord) (Element, error) {
	off, err := r.offsetOf(c)
	if err != nil {
		return Element{}, err
	}
	return r.data[off], nil
}

// Set replaces the element at a full coordinate.
func (r *Reference) Set(c Coord, e Element) error {
	off, err := r.offsetOf(c)
	if err != nil {
		return err
	}
	r.data[off] = e
	return nil
}

// Fill sets every element.
func (r *Reference) Fill(e Element) {
	for i := range r.data {
		r.data[i] = e
	}
}

// IsAllSkip reports whether the Reference holds at least one element and all
// of them are skip.
func (r *Reference) IsAllSkip() bool {
	if len(r.data) == 0 {
		return false
	}
	for _, e := range r.data {
		if !e.IsSkip() {
			return false
		}
	}
	return true
}

// Each visits every element in row-major order with its coordinate
// (degenerate axes omitted). Returning false stops the walk.
func (r *Reference) Each(fn func(c Coord, e Element) bool) {
	idx := make([]int, len(r.axes))
	for off := 0; off < len(r.data); off++ {
		c := make(Coord, len(r.axes))
		for i, ax := range r.axes {
			if !ax.IsDegenerate() {
				c[ax.Name] = idx[i]
			}
		}
		if !fn(c, r.data[off]) {
			return
		}
		for i := len(idx) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < r.axes[i].Size {
				break
			}
			idx[i] = 0
		}
	}
}

// Sub returns a deep-copied sub-Reference with the given axes fixed and the
// remaining axes kept. Fixing every axis yields a degenerate single-element
// Reference.
func (r *Reference) Sub(c Coord) (*Reference, error) {
	for name, idx := range c {
		i, ok := r.axisIndex(name)
		if !ok {
			return nil, axisNotFoundf("axis %q not in %v", name, r.axisNames())
		}
		if idx < 0 || idx >= r.axes[i].Size {
			return nil, shapeMismatchf("index %d out of range for axis %q (size %d)", idx, name, r.axes[i].Size)
		}
	}
	var rem []Axis
	for _, ax := range r.axes {
		if _, fixed := c[ax.Name]; !fixed {
			rem = append(rem, ax)
		}
	}
	out, err := New(rem...)
	if err != nil {
		return nil, err
	}
	out.Each(func(rc Coord, _ Element) bool {
		full := rc.clone()
		for name, idx := range c {
			full[name] = idx
		}
		e, atErr := r.At(full)
		if atErr != nil {
			err = atErr
			return false
		}
		_ = out.Set(rc, Element{value: deepCopyValue(e.value), skip: e.skip})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Slice projects the Reference onto the named axes, in the order given. Each
// resulting element is the residual nested collection over the dropped axes
// (skip leaves become SkipValue), or the bare element when nothing is
// dropped. With no names the entire tensor collapses into one atomic value
// over the degenerate axis, the standard way to erase structure before
// passing a whole collection along as a single value. An element whose
// residual is entirely skip becomes skip.
func (r *Reference) Slice(names ...string) (*Reference, error) {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := r.axisIndex(name); !ok {
			return nil, axisNotFoundf("axis %q not in %v", name, r.axisNames())
		}
		if seen[name] {
			return nil, shapeMismatchf("axis %q sliced twice", name)
		}
		seen[name] = true
	}

	var selected, rem []Axis
	for _, name := range names {
		i, _ := r.axisIndex(name)
		selected = append(selected, r.axes[i])
	}
	for _, ax := range r.axes {
		if !seen[ax.Name] {
			rem = append(rem, ax)
		}
	}

	out, err := New(selected...)
	if err != nil {
		return nil, err
	}
	out.Each(func(c Coord, _ Element) bool {
		v, allSkip, n := r.residual(c, rem)
		var e Element
		switch {
		case allSkip && n > 0:
			e = Skip()
		default:
			e = Of(v)
		}
		_ = out.Set(c, e)
		return true
	})
	return out, nil
}

// residual builds the nested collection over rem with the other axes fixed,
// reporting whether every visited leaf was skip and how many leaves exist.
// Degenerate axes contribute no nesting level; with no effective remaining
// axes the single leaf is returned bare.
func (r *Reference) residual(fixed Coord, rem []Axis) (any, bool, int) {
	var effective []Axis
	for _, ax := range rem {
		if !ax.IsDegenerate() {
			effective = append(effective, ax)
		}
	}
	var build func(c Coord, axes []Axis) (any, bool, int)
	build = func(c Coord, axes []Axis) (any, bool, int) {
		if len(axes) == 0 {
			e, err := r.At(c)
			if err != nil {
				return nil, false, 0
			}
			return deepCopyValue(e.Interface()), e.IsSkip(), 1
		}
		ax := axes[0]
		list := make([]any, ax.Size)
		all := true
		total := 0
		for i := 0; i < ax.Size; i++ {
			cc := c.clone()
			cc[ax.Name] = i
			v, skip, n := build(cc, axes[1:])
			list[i] = v
			all = all && skip
			total += n
		}
		return list, all && total > 0, total
	}
	return build(fixed.clone(), effective)
}

// Append returns a new Reference with other appended along the named axis.
// The regime is selected structurally. When the axis already exists on the
// receiver, other's slots are appended sibling-style; slots that are
// entirely skip contribute nothing, so appending absence is a no-op. When
// the axis does not exist, it is created as a new innermost axis and other's
// atomic value(s) are attached to every existing leaf; skip leaves stay
// skip.
func (r *Reference) Append(other *Reference, along string) (*Reference, error) {
	if along == "" {
		return nil, axisNotFoundf("append axis name is empty")
	}
	if along == NoAxisName {
		return nil, shapeMismatchf("cannot append along %q", NoAxisName)
	}
	if r.HasAxis(along) {
		return r.appendSibling(other, along)
	}
	return r.appendBroadcast(other, along)
}

func (r *Reference) appendSibling(other *Reference, along string) (*Reference, error) {
	axisPos, _ := r.axisIndex(along)
	residualWant := shapeKey(r.axes, along)

	// Cut other into slots along the append axis; a slot provides one new
	// position on the receiver's axis.
	var slots []*Reference
	if other.HasAxis(along) {
		n, _ := other.AxisSize(along)
		for j := 0; j < n; j++ {
			slot, err := other.Sub(Coord{along: j})
			if err != nil {
				return nil, err
			}
			slots = append(slots, slot)
		}
	} else {
		slots = []*Reference{other}
	}

	var kept []*Reference
	for _, slot := range slots {
		if shapeKey(slot.axes, along) != residualWant {
			return nil, shapeMismatchf("appended slot axes %v do not match %v along %q", slot.axisNames(), r.axisNames(), along)
		}
		if !slot.IsAllSkip() {
			kept = append(kept, slot)
		}
	}

	newAxes := r.Axes()
	newAxes[axisPos].Size += len(kept)
	out, err := New(newAxes...)
	if err != nil {
		return nil, err
	}
	oldSize := r.axes[axisPos].Size
	var failure error
	out.Each(func(c Coord, _ Element) bool {
		j := c[along]
		var e Element
		if j < oldSize {
			src, err := r.At(c)
			if err != nil {
				failure = err
				return false
			}
			e = src
		} else {
			slot := kept[j-oldSize]
			sc := c.clone()
			delete(sc, along)
			src, err := slot.At(sc)
			if err != nil {
				failure = err
				return false
			}
			e = src
		}
		_ = out.Set(c, Element{value: deepCopyValue(e.value), skip: e.skip})
		return true
	})
	if failure != nil {
		return nil, failure
	}
	return out, nil
}

func (r *Reference) appendBroadcast(other *Reference, along string) (*Reference, error) {
	// Erase other into one atomic value per slot of its own append axis, or
	// a single value when it does not carry the axis.
	var attached []Element
	if other.HasAxis(along) {
		n, _ := other.AxisSize(along)
		for j := 0; j < n; j++ {
			slot, err := other.Sub(Coord{along: j})
			if err != nil {
				return nil, err
			}
			attached = append(attached, eraseToElement(slot))
		}
	} else {
		attached = []Element{eraseToElement(other)}
	}

	var newAxes []Axis
	for _, ax := range r.axes {
		if !ax.IsDegenerate() {
			newAxes = append(newAxes, ax)
		}
	}
	newAxes = append(newAxes, Axis{Name: along, Size: len(attached)})
	out, err := New(newAxes...)
	if err != nil {
		return nil, err
	}
	var failure error
	out.Each(func(c Coord, _ Element) bool {
		j := c[along]
		tc := c.clone()
		delete(tc, along)
		leaf, atErr := r.At(tc)
		if atErr != nil {
			failure = atErr
			return false
		}
		e := Skip()
		if !leaf.IsSkip() && !attached[j].IsSkip() {
			e = Of(deepCopyValue(attached[j].Value()))
		}
		_ = out.Set(c, e)
		return true
	})
	if failure != nil {
		return nil, failure
	}
	return out, nil
}

// eraseToElement collapses a whole Reference into one element, skip when
// every position is skip.
func eraseToElement(r *Reference) Element {
	v, allSkip, n := r.residual(Coord{}, r.axes)
	if allSkip && n > 0 {
		return Skip()
	}
	return Of(v)
}

// shapeKey is a comparable rendering of the non-degenerate axes minus the
// excluded name, order-insensitive.
func shapeKey(axes []Axis, exclude string) string {
	parts := make([]string, 0, len(axes))
	for _, ax := range axes {
		if ax.Name == exclude || ax.IsDegenerate() {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%d", ax.Name, ax.Size))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// Copy returns a deep copy. Mutating the copy never changes the original.
func (r *Reference) Copy() *Reference {
	out := &Reference{
		axes: append([]Axis(nil), r.axes...),
		data: make([]Element, len(r.data)),
	}
	for i, e := range r.data {
		out.data[i] = Element{value: deepCopyValue(e.value), skip: e.skip}
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}

func (r *Reference) String() string {
	parts := make([]string, len(r.axes))
	for i, ax := range r.axes {
		parts[i] = fmt.Sprintf("%s:%d", ax.Name, ax.Size)
	}
	return fmt.Sprintf("Reference[%s]", strings.Join(parts, " "))
}

// Sample renders up to n elements for event payloads and logs.
func (r *Reference) Sample(n int) string {
	if n <= 0 || len(r.data) == 0 {
		return "[]"
	}
	if n > len(r.data) {
		n = len(r.data)
	}
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		parts = append(parts, r.data[i].String())
	}
	s := "[" + strings.Join(parts, " ")
	if n < len(r.data) {
		s += " ..."
	}
	return s + "]"
}
