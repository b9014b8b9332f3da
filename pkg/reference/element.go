package reference

import "fmt"

// SkipValue is the sentinel that stands in for a skip element inside raw
// nested collections produced by structure erasure (Slice). Inside a
// Reference skips are carried by the Element sum type, never by this value;
// the sentinel only exists so erased collections stay self-describing.
var SkipValue = skipMarker{}

type skipMarker struct{}

func (skipMarker) String() string { return "<skip>" }

// Sign is an opaque pointer-like handle naming externally perceived content.
// The engine moves Signs around like any other value; resolving one is the
// collaborator's business.
type Sign string

// Fn is the callable element type consumed by CrossAction. The orchestrator
// wraps external collaborator calls into Fn closures; the algebra itself
// never performs I/O.
type Fn func(arg any) (any, error)

// Element is one position of a Reference: either a concrete value or the
// skip marker ("no data here"). Skip is data, never an error, and it
// propagates through every operation that touches it.
type Element struct {
	value any
	skip  bool
}

// Of wraps a concrete value. Passing SkipValue yields the skip element, so
// erased collections round-trip.
func Of(v any) Element {
	if _, ok := v.(skipMarker); ok {
		return Skip()
	}
	return Element{value: v}
}

// Skip returns the skip element.
func Skip() Element {
	return Element{skip: true}
}

// IsSkip reports whether the element is the skip marker.
func (e Element) IsSkip() bool { return e.skip }

// Value returns the concrete value. It is nil for skip elements; callers
// that need to distinguish a nil value from skip check IsSkip first.
func (e Element) Value() any { return e.value }

// Interface returns the value for concrete elements and SkipValue for skip
// elements, for use inside raw nested collections.
func (e Element) Interface() any {
	if e.skip {
		return SkipValue
	}
	return e.value
}

// Copy returns an isolated element: nested collections in the value are
// deep-copied so the copy and the original never share mutable state.
func (e Element) Copy() Element {
	return Element{value: deepCopyValue(e.value), skip: e.skip}
}

// AsFn extracts a callable, reporting whether the element holds one.
func (e Element) AsFn() (Fn, bool) {
	if e.skip {
		return nil, false
	}
	fn, ok := e.value.(Fn)
	return fn, ok
}

func (e Element) String() string {
	if e.skip {
		return SkipValue.String()
	}
	return fmt.Sprintf("%v", e.value)
}
