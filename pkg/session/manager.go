package session

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/lys5588/NormCode-Psylens-sub002/internal/logging"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed holder can block a snapshot when
// a distributed locker is in play.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the per-snapshot mutex and its reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager serializes snapshot access so concurrent Resume and Fork calls on
// the same snapshot cannot interleave their read-modify-write cycles. Locks
// are reference counted and garbage collected when the last holder leaves.
// An optional distributed locker extends the guarantee across replicas.
type Manager struct {
	store ports.SnapshotStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker ports.DistributedLocker
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) { m.locker = locker }
}

// WithLockTTL overrides the distributed lock TTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithLogger configures a logger for deferred errors.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager wraps the given snapshot store.
func NewManager(store ports.SnapshotStore, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		locks:  make(map[string]*lockEntry),
		ttl:    DefaultLockTTL,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu and pair this with release(id).
func (m *Manager) acquire(id string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		entry = &lockEntry{}
		m.locks[id] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and drops the entry at zero.
func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, id)
	}
}

// WithLock runs fn while holding the lock for the snapshot ID, taking the
// distributed lock too when one is configured.
func (m *Manager) WithLock(ctx context.Context, id string, fn func(context.Context) error) error {
	entry := m.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(id)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, id, m.ttl)
		if err != nil {
			return errors.Wrap(err, "acquire distributed lock")
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"snapshot_id", id,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Load retrieves a snapshot under its lock.
func (m *Manager) Load(ctx context.Context, id string) (*domain.RunSnapshot, error) {
	var snap *domain.RunSnapshot
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		var err error
		snap, err = m.store.Load(ctx, id)
		return err
	})
	return snap, err
}

// Save persists a snapshot under its lock.
func (m *Manager) Save(ctx context.Context, snap *domain.RunSnapshot) error {
	return m.WithLock(ctx, snap.ID, func(ctx context.Context) error {
		return m.store.Save(ctx, snap)
	})
}

// Delete removes a snapshot under its lock.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		return m.store.Delete(ctx, id)
	})
}

// Fork copies a snapshot while holding the source's lock, so a concurrent
// Save on the source cannot tear the copy.
func (m *Manager) Fork(ctx context.Context, id, newID, newRunID string) (*domain.RunSnapshot, error) {
	var forked *domain.RunSnapshot
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		var err error
		forked, err = m.store.Fork(ctx, id, newID, newRunID)
		return err
	})
	return forked, err
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]domain.SnapshotInfo, error) {
	return m.store.List(ctx)
}

// Store returns the underlying snapshot store.
func (m *Manager) Store() ports.SnapshotStore {
	return m.store
}
