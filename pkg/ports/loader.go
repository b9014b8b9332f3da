package ports

import (
	"context"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
)

// PlanLoader defines how the engine retrieves a plan definition.
// This allows the storage layer (Loam, FS, Memory) to be decoupled.
type PlanLoader interface {
	// Load assembles the complete plan. The result is decoded but not yet
	// validated; validation is the engine's job.
	Load(ctx context.Context) (*domain.Plan, error)
}

// Watchable defines an interface for loaders that can notify about backend changes.
// This is typically used for hot-reload or dev-mode functionality.
type Watchable interface {
	// Watch returns a channel that is signaled when the underlying plan
	// source changes. It abstracts away the specific event details,
	// signaling only that a reload is required.
	Watch(ctx context.Context) (<-chan struct{}, error)
}
