package schema

import "fmt"

// ValidationError represents a single validation failure.
type ValidationError struct {
	Path   string // Location inside the value ("element 2", "key score"), empty at the root
	Reason string // Human-readable reason for failure
	Value  any    // The value that failed validation
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s (got %T)", e.Reason, e.Value)
	}
	return fmt.Sprintf("%s: %s (got %T)", e.Path, e.Reason, e.Value)
}
