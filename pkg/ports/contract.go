package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/reference"
)

// ContractSnapshot builds a representative snapshot for conformance tests.
func ContractSnapshot(id string) *domain.RunSnapshot {
	val, _ := reference.FromNested([]any{"a", "b", reference.SkipValue}, "item")
	return &domain.RunSnapshot{
		ID:        id,
		RunID:     "run-" + id,
		Plan:      "contract-plan",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Concepts: map[string]domain.ConceptSnapshot{
			"letters": {Status: "done", Value: val},
			"pending": {Status: "pending"},
		},
		Aliases:  map[string]string{"alias": "letters"},
		Units:    map[string]string{"1": "done", "2": "pending"},
		Computed: []string{"1@"},
		Frames: []domain.FrameSnapshot{
			{Position: "2", Base: "letters", Axis: "item", Iteration: 1},
		},
	}
}

// RunSnapshotStoreContract runs a suite of tests to verify that a
// SnapshotStore implementation adheres to the defined interface contract.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	ctx := context.Background()
	base := "contract-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		snap := ContractSnapshot(base)
		require.NoError(t, store.Save(ctx, snap), "Save should not return error")

		loaded, err := store.Load(ctx, base)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, snap.RunID, loaded.RunID)
		assert.Equal(t, snap.Units, loaded.Units)
		assert.Equal(t, "letters", loaded.Aliases["alias"])

		letters := loaded.Concepts["letters"].Value
		require.NotNil(t, letters, "concept value must survive persistence")
		v, err := letters.At(reference.Coord{"item": 0})
		require.NoError(t, err)
		assert.Equal(t, "a", v.Interface())
		skip, err := letters.At(reference.Coord{"item": 2})
		require.NoError(t, err)
		assert.True(t, skip.IsSkip(), "skip elements must survive persistence")
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+base)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
	})

	t.Run("Overwrite", func(t *testing.T) {
		snap := ContractSnapshot(base)
		snap.Units["1"] = "failed"
		require.NoError(t, store.Save(ctx, snap))

		loaded, err := store.Load(ctx, base)
		require.NoError(t, err)
		assert.Equal(t, "failed", loaded.Units["1"])
	})

	t.Run("List", func(t *testing.T) {
		id1 := base + "-1"
		id2 := base + "-2"
		require.NoError(t, store.Save(ctx, ContractSnapshot(id1)))
		require.NoError(t, store.Save(ctx, ContractSnapshot(id2)))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		infos, err := store.List(ctx)
		require.NoError(t, err)
		ids := make([]string, 0, len(infos))
		for _, info := range infos {
			ids = append(ids, info.ID)
			assert.NotEmpty(t, info.Plan, "listing must carry the plan name")
		}
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})

	t.Run("Fork", func(t *testing.T) {
		forkID := base + "-fork"
		forked, err := store.Fork(ctx, base, forkID, "run-"+forkID)
		require.NoError(t, err)
		defer func() { _ = store.Delete(ctx, forkID) }()

		assert.Equal(t, forkID, forked.ID)
		assert.Equal(t, base, forked.ParentID, "fork must record its parent")

		// The copy is independent of the original.
		loaded, err := store.Load(ctx, forkID)
		require.NoError(t, err)
		assert.Equal(t, "run-"+forkID, loaded.RunID)
		orig, err := store.Load(ctx, base)
		require.NoError(t, err)
		assert.NotEqual(t, orig.RunID, loaded.RunID)
	})

	t.Run("Fork Non-Existent", func(t *testing.T) {
		_, err := store.Fork(ctx, "non-existent-"+base, "x", "run-x")
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, base))
		_, err := store.Load(ctx, base)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound, "Load after Delete should return ErrSnapshotNotFound")

		assert.NoError(t, store.Delete(ctx, base), "deleting a missing snapshot is not an error")
	})
}

// RunPerformerContract verifies behavior every Performer must share: the
// fixture call succeeds, and a canceled context is honored without invoking
// the collaborator.
func RunPerformerContract(t *testing.T, p Performer, paradigm domain.Paradigm, inputs []any) {
	t.Run("Perform", func(t *testing.T) {
		out, err := p.Perform(context.Background(), paradigm, inputs)
		require.NoError(t, err)
		assert.NotNil(t, out)
	})

	t.Run("Canceled Context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := p.Perform(ctx, paradigm, inputs)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
