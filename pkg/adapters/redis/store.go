package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	backend "github.com/redis/go-redis/v9"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
)

// Store implements ports.SnapshotStore on Redis. Snapshots live as JSON
// values under prefix+id; a ZSET under prefix+"index" orders them by
// creation time so List avoids a key scan.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets an expiration for stored snapshots. Expired entries are
// pruned from the index lazily on List.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for snapshots.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Redis store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "psylens:snapshot:",
		ttl:    0, // no expiration by default
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save persists the snapshot and indexes it by creation time.
func (s *Store) Save(ctx context.Context, snap *domain.RunSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrapf(err, "encode snapshot %q", snap.ID)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(snap.ID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  float64(snap.CreatedAt.Unix()),
		Member: snap.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "save snapshot %q", snap.ID)
	}
	return nil
}

// Load retrieves the snapshot for the given ID.
func (s *Store) Load(ctx context.Context, id string) (*domain.RunSnapshot, error) {
	val, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, errors.Wrapf(domain.ErrSnapshotNotFound, "snapshot %q", id)
		}
		return nil, errors.Wrapf(err, "load snapshot %q", id)
	}

	var snap domain.RunSnapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return nil, errors.Wrapf(err, "decode snapshot %q", id)
	}
	return &snap, nil
}

// List returns the stored snapshots, most recent first. Index entries whose
// values have expired are pruned on the way.
func (s *Store) List(ctx context.Context) ([]domain.SnapshotInfo, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list snapshots")
	}
	if len(ids) == 0 {
		return []domain.SnapshotInfo{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list snapshots")
	}

	infos := make([]domain.SnapshotInfo, 0, len(ids))
	var expired []any
	for i, raw := range vals {
		str, ok := raw.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var snap domain.RunSnapshot
		if err := json.Unmarshal([]byte(str), &snap); err != nil {
			return nil, errors.Wrapf(err, "decode snapshot %q", ids[i])
		}
		infos = append(infos, snap.Info())
	}
	if len(expired) > 0 {
		_ = s.client.ZRem(ctx, s.indexKey(), expired...).Err()
	}
	return infos, nil
}

// Delete removes the snapshot and its index entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "delete snapshot %q", id)
	}
	return nil
}

// Fork copies snapshot id under newID with a fresh run identity.
func (s *Store) Fork(ctx context.Context, id, newID, newRunID string) (*domain.RunSnapshot, error) {
	snap, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	forked, err := snap.ForkFrom(newID, newRunID)
	if err != nil {
		return nil, err
	}
	if err := s.Save(ctx, forked); err != nil {
		return nil, err
	}
	return forked, nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
