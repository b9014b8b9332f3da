package ports

import (
	"context"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/reference"
)

// RunController is the engine surface exposed to serving adapters (HTTP,
// MCP). Adapters drive and observe a run through it without depending on
// the engine implementation.
type RunController interface {
	// Plan returns the validated plan being executed.
	Plan() *domain.Plan

	// Run executes the plan to quiescence. It is safe to call once per
	// controller; adapters that accept repeated run requests must guard it.
	Run(ctx context.Context) error

	// State captures a point-in-time view of the run as a snapshot.
	State(ctx context.Context) (*domain.RunSnapshot, error)

	// Inspect returns a concept's current value.
	// Returns nil when the concept is still pending.
	Inspect(concept string) (*reference.Reference, error)

	// Cancel marks the inference at position aborted; its target resolves
	// entirely skip and downstream proceeds.
	Cancel(position domain.FlowPosition) error
}
