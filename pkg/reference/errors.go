package reference

import "github.com/cockroachdb/errors"

// Sentinel errors for the tensor algebra. Callers match them with errors.Is;
// constructors below attach coordinates and axis names to the message.
var (
	// ErrShapeMismatch reports incompatible shapes: disagreeing sizes on a
	// shared axis, ragged literals, colliding axis names, or indices out of
	// range. It always indicates an implementer error in the compiled plan.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrAxisNotFound reports a reference to an axis name the Reference does
	// not carry, or an incomplete coordinate where a full one is required.
	ErrAxisNotFound = errors.New("axis not found")
)

func shapeMismatchf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrShapeMismatch)
}

func axisNotFoundf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrAxisNotFound)
}
