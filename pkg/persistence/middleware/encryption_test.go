package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/adapters/memory"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/persistence/middleware"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func TestEncryptedStore_Contract(t *testing.T) {
	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ports.RunSnapshotStoreContract(t, mw(memory.NewStore()))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	inner := memory.NewStore()
	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	secure := mw(inner)

	ctx := context.Background()
	snap := ports.ContractSnapshot("enc-1")
	require.NoError(t, secure.Save(ctx, snap))

	stored, err := inner.Load(ctx, "enc-1")
	require.NoError(t, err)
	assert.Empty(t, stored.Concepts, "concepts must not be stored in the clear")
	assert.Empty(t, stored.Aliases)
	assert.Empty(t, stored.Frames)
	assert.Contains(t, stored.Units, "__encrypted__")
	assert.Equal(t, snap.Plan, stored.Plan)
	assert.Equal(t, snap.RunID, stored.RunID)

	loaded, err := secure.Load(ctx, "enc-1")
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	inner := memory.NewStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)

	oldStore := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})(inner)

	ctx := context.Background()
	snap := ports.ContractSnapshot("rotate-1")
	require.NoError(t, oldStore.Save(ctx, snap))

	rotated := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(inner)

	loaded, err := rotated.Load(ctx, "rotate-1")
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)

	// A fresh save reseals with the new key, so the old key alone no
	// longer opens it.
	require.NoError(t, rotated.Save(ctx, loaded))
	_, err = oldStore.Load(ctx, "rotate-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decryption failed")
}

func TestEncryptionMiddleware_RejectsPlainSnapshots(t *testing.T) {
	inner := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, inner.Save(ctx, ports.ContractSnapshot("plain-1")))

	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(inner)
	_, err := secure.Load(ctx, "plain-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing its encrypted envelope")
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for invalid key size")
		}
	}()
	middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
}
