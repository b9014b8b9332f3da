package ports

import (
	"context"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
)

// SnapshotStore defines the interface for persisting run checkpoints.
// This allows for durable execution, enabling "Stop & Resume" workflows.
type SnapshotStore interface {
	// Save persists the snapshot under its ID, overwriting any previous
	// version.
	Save(ctx context.Context, snap *domain.RunSnapshot) error

	// Load retrieves a snapshot by ID.
	// Returns domain.ErrSnapshotNotFound if it does not exist.
	Load(ctx context.Context, id string) (*domain.RunSnapshot, error)

	// List returns the stored snapshots, most recent first.
	List(ctx context.Context) ([]domain.SnapshotInfo, error)

	// Delete removes the snapshot for the given ID. Deleting a missing
	// snapshot is not an error.
	Delete(ctx context.Context, id string) error

	// Fork copies snapshot id into an independent snapshot under newID with
	// a fresh run identity and returns the copy.
	// Returns domain.ErrSnapshotNotFound if id does not exist.
	Fork(ctx context.Context, id, newID, newRunID string) (*domain.RunSnapshot, error)
}
