package domain

import (
	"github.com/cockroachdb/errors"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/reference"
)

// The execution substrate distinguishes a small closed set of failure
// families. Everything here is matched with errors.Is; messages carry the
// concrete coordinates. Skip is a value in the data model, never an error.
var (
	// ErrShapeMismatch and ErrAxisNotFound originate in the tensor algebra
	// and are re-exported so callers match the whole taxonomy in one place.
	ErrShapeMismatch = reference.ErrShapeMismatch
	ErrAxisNotFound  = reference.ErrAxisNotFound

	// ErrCollapseAmbiguity reports a grouping operation that could not
	// determine which axes to collapse. The engine fails fast rather than
	// guess.
	ErrCollapseAmbiguity = errors.New("collapse ambiguity")

	// ErrCollaboratorFailure reports an external content-producing call
	// that kept failing after retries. The owning inference is marked
	// failed, its output resolves entirely skip, and downstream proceeds.
	ErrCollaboratorFailure = errors.New("collaborator failure")

	// ErrLoopCeilingExceeded reports a loop that ran past the configured
	// iteration ceiling, usually a self-extending loop whose gate never
	// turns false.
	ErrLoopCeilingExceeded = errors.New("loop ceiling exceeded")

	// ErrSnapshotNotFound is returned when a checkpoint ID cannot be found
	// in the store.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrPlanInvalid is returned by validation with every collected
	// problem attached.
	ErrPlanInvalid = errors.New("plan invalid")

	// ErrRunAborted is returned when the run's context is cancelled.
	ErrRunAborted = errors.New("run aborted")
)

// ShapeMismatchf builds a marked shape-mismatch error for alignment
// failures outside the algebra itself.
func ShapeMismatchf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrShapeMismatch)
}

// AxisNotFoundf builds a marked axis-not-found error.
func AxisNotFoundf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrAxisNotFound)
}

// CollapseAmbiguityf builds a marked collapse-ambiguity error.
func CollapseAmbiguityf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrCollapseAmbiguity)
}

// CollaboratorFailure wraps the final error of an exhausted external call.
func CollaboratorFailure(err error, attempts int) error {
	return errors.Mark(errors.Wrapf(err, "collaborator failed after %d attempts", attempts), ErrCollaboratorFailure)
}

// LoopCeilingExceededf builds a marked loop-ceiling error.
func LoopCeilingExceededf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrLoopCeilingExceeded)
}

// PlanInvalidf builds a marked plan-validation error.
func PlanInvalidf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrPlanInvalid)
}

// RunAborted wraps the context's cause as a run-level abort.
func RunAborted(err error) error {
	return errors.Mark(errors.Wrap(err, "run aborted"), ErrRunAborted)
}
