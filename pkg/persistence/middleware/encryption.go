package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/ports"
)

// envelopeKey marks the unit slot carrying the ciphertext in an envelope
// snapshot.
const envelopeKey = "__encrypted__"

// EncryptionConfig holds the keys for sealing and opening snapshots.
type EncryptionConfig struct {
	// ActiveKey seals new snapshots. Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are tried in order when the active key cannot open a
	// snapshot, enabling zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.SnapshotStore
	config EncryptionConfig
}

// NewEncryptionMiddleware seals snapshot bodies with AES-GCM before they
// reach the underlying store. Listing metadata (id, run, plan, parent,
// created-at) stays in the clear so List keeps working; concepts, frames,
// aliases and units are opaque at rest.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.SnapshotStore) ports.SnapshotStore {
		return &encryptionMiddleware{next: next, config: config}
	}
}

func (m *encryptionMiddleware) Save(ctx context.Context, snap *domain.RunSnapshot) error {
	plaintext, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}

	ciphertext, err := seal(plaintext, m.config.ActiveKey)
	if err != nil {
		return errors.Wrap(err, "encrypt snapshot")
	}

	envelope := &domain.RunSnapshot{
		ID:        snap.ID,
		RunID:     snap.RunID,
		Plan:      snap.Plan,
		ParentID:  snap.ParentID,
		CreatedAt: snap.CreatedAt,
		Units:     map[string]string{envelopeKey: base64.StdEncoding.EncodeToString(ciphertext)},
	}
	return m.next.Save(ctx, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, id string) (*domain.RunSnapshot, error) {
	envelope, err := m.next.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	// A snapshot without an envelope was written before encryption was
	// enabled. Failing closed beats quietly returning who knows what.
	encoded, ok := envelope.Units[envelopeKey]
	if !ok {
		return nil, errors.Newf("snapshot %q is missing its encrypted envelope", id)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "decode snapshot ciphertext")
	}

	plaintext, err := openWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, errors.Wrapf(err, "decrypt snapshot %q", id)
	}

	var snap domain.RunSnapshot
	if err := json.Unmarshal(plaintext, &snap); err != nil {
		return nil, errors.Wrap(err, "unmarshal decrypted snapshot")
	}
	return &snap, nil
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]domain.SnapshotInfo, error) {
	return m.next.List(ctx)
}

func (m *encryptionMiddleware) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

// Fork reseals the copy itself rather than delegating, so the decrypted body
// carries the new identity instead of the parent's.
func (m *encryptionMiddleware) Fork(ctx context.Context, id, newID, newRunID string) (*domain.RunSnapshot, error) {
	snap, err := m.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	forked, err := snap.ForkFrom(newID, newRunID)
	if err != nil {
		return nil, err
	}
	if err := m.Save(ctx, forked); err != nil {
		return nil, err
	}
	return forked, nil
}

func seal(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func openWithRotation(ciphertext, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := open(ciphertext, activeKey); err == nil {
		return plain, nil
	}

	for _, key := range fallbackKeys {
		if plain, err := open(ciphertext, key); err == nil {
			return plain, nil
		}
	}

	return nil, errors.New("decryption failed with all available keys")
}

func open(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}
