package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
)

// Store implements ports.SnapshotStore in memory. Safe for concurrent use.
// Snapshots are deep-copied on the way in and out, so callers cannot mutate
// stored state through retained pointers.
type Store struct {
	mu   sync.RWMutex
	data map[string]*domain.RunSnapshot
}

// NewStore creates an empty in-memory snapshot store.
func NewStore() *Store {
	return &Store{data: make(map[string]*domain.RunSnapshot)}
}

// Save persists a deep copy of the snapshot under its ID.
func (s *Store) Save(ctx context.Context, snap *domain.RunSnapshot) error {
	copied, err := snap.Clone()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[copied.ID] = copied
	return nil
}

// Load retrieves a copy of the snapshot for the given ID.
func (s *Store) Load(ctx context.Context, id string) (*domain.RunSnapshot, error) {
	s.mu.RLock()
	snap, ok := s.data[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(domain.ErrSnapshotNotFound, "snapshot %q", id)
	}
	return snap.Clone()
}

// List returns the stored snapshots, most recent first.
func (s *Store) List(ctx context.Context) ([]domain.SnapshotInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]domain.SnapshotInfo, 0, len(s.data))
	for _, snap := range s.data {
		infos = append(infos, snap.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].CreatedAt.After(infos[j].CreatedAt)
		}
		return infos[i].ID < infos[j].ID
	})
	return infos, nil
}

// Delete removes the snapshot for the given ID, if present.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// Fork copies snapshot id under newID with a fresh run identity.
func (s *Store) Fork(ctx context.Context, id, newID, newRunID string) (*domain.RunSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.data[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrSnapshotNotFound, "snapshot %q", id)
	}
	forked, err := snap.ForkFrom(newID, newRunID)
	if err != nil {
		return nil, err
	}
	stored, err := forked.Clone()
	if err != nil {
		return nil, err
	}
	s.data[newID] = stored
	return forked, nil
}
