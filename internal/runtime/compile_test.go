package runtime

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/reference"
)

func nestedLoopPlan() *domain.Plan {
	return &domain.Plan{
		Name: "nested",
		Concepts: []domain.Concept{
			{Name: "docs", Type: domain.ConceptCollection, Axes: []domain.AxisDecl{{Name: "doc", Kind: domain.AxisSelf}}, Ground: []any{"a", "b"}},
			{Name: "doc", Type: domain.ConceptEntity},
			{Name: "parts", Type: domain.ConceptCollection, Axes: []domain.AxisDecl{{Name: "part", Kind: domain.AxisSelf}}, Ground: []any{"x"}},
			{Name: "part", Type: domain.ConceptEntity},
			{Name: "notes", Type: domain.ConceptCollection, Axes: []domain.AxisDecl{{Name: "n", Kind: domain.AxisSelf}}, Ground: []any{}},
			{Name: "count", Type: domain.ConceptEntity, Ground: 0},
			{Name: "tally", Type: domain.ConceptEntity},
			{Name: "summary", Type: domain.ConceptEntity},
		},
		Inferences: []domain.Inference{
			{Position: "1", Target: "doc", Op: domain.LoopDriver(), Loop: &domain.LoopSpec{Base: "docs", Axis: "doc"}},
			{Position: "1.1", Target: "part", Op: domain.LoopDriver(), Loop: &domain.LoopSpec{Base: "parts", Axis: "part"}},
			{Position: "1.1.1", Target: "notes", Op: domain.Continuation("n"), Values: []domain.ValueRef{domain.Ref("part")}},
			{Position: "1.2", Target: "tally", Op: domain.Specification(), Values: []domain.ValueRef{domain.PrevRef("count"), domain.Ref("doc")}},
			{Position: "2", Target: "summary", Op: domain.Specification(), Values: []domain.ValueRef{domain.Ref("notes")}},
		},
	}
}

func TestCompile_BuildsLoopTree(t *testing.T) {
	store := NewStore()
	prog, err := compile(nestedLoopPlan(), store)
	require.NoError(t, err)

	require.Len(t, prog.frames, 2)
	outer, inner := prog.frames[0], prog.frames[1]
	require.Equal(t, domain.FlowPosition("1"), outer.pos())
	require.Equal(t, domain.FlowPosition("1.1"), inner.pos())

	if inner.parent != outer {
		t.Fatalf("inner frame's parent = %v, want the outer frame", inner.parent)
	}
	require.Len(t, outer.nested, 1)

	bodyPositions := func(f *frame) []domain.FlowPosition {
		var out []domain.FlowPosition
		for _, u := range f.body {
			out = append(out, u.pos())
		}
		return out
	}
	require.ElementsMatch(t, []domain.FlowPosition{"1.2", "1.1"}, bodyPositions(outer))
	require.ElementsMatch(t, []domain.FlowPosition{"1.1.1"}, bodyPositions(inner))

	if top := prog.byPos["2"]; top.frame != nil {
		t.Errorf("top-level unit got frame %v, want none", top.frame.pos())
	}
	if u := prog.byPos["1.1.1"]; u.frame != inner {
		t.Errorf("1.1.1 frame = %v, want the inner frame", u.frame)
	}
}

func TestCompile_TracksCarriedConcepts(t *testing.T) {
	store := NewStore()
	prog, err := compile(nestedLoopPlan(), store)
	require.NoError(t, err)

	outer, inner := prog.frames[0], prog.frames[1]
	require.Equal(t, []string{"count", "notes"}, outer.carried,
		"an enclosing frame freezes everything carried anywhere under it")
	require.Equal(t, []string{"count", "notes"}, outer.driver.carrySeeds)
	require.Equal(t, []string{"notes"}, inner.carried,
		"a continuation target reads its own previous version implicitly")
	require.Equal(t, []string{"notes"}, inner.driver.carrySeeds)
}

func TestCompile_RecordsProducers(t *testing.T) {
	store := NewStore()
	prog, err := compile(nestedLoopPlan(), store)
	require.NoError(t, err)

	require.Len(t, prog.producers["notes"], 1)
	require.Equal(t, domain.FlowPosition("1.1.1"), prog.producers["notes"][0].pos())
	require.Len(t, prog.producers["doc"], 1)
}

func TestCompile_IdentityBindsAlias(t *testing.T) {
	plan := &domain.Plan{
		Name: "aliases",
		Concepts: []domain.Concept{
			{Name: "origin", Type: domain.ConceptEntity, Ground: "v"},
			{Name: "mirror", Type: domain.ConceptEntity},
		},
		Inferences: []domain.Inference{
			{Position: "1", Target: "mirror", Op: domain.Identity(), Values: []domain.ValueRef{domain.Ref("origin")}},
		},
	}
	store := NewStore()
	_, err := compile(plan, store)
	require.NoError(t, err)

	if got := store.Canonical("mirror"); got != "origin" {
		t.Errorf("Canonical(mirror) = %q, want origin", got)
	}
}

func TestCompile_IdentityNeedsOneValue(t *testing.T) {
	plan := &domain.Plan{
		Name: "bad",
		Concepts: []domain.Concept{
			{Name: "a", Type: domain.ConceptEntity, Ground: 1},
			{Name: "b", Type: domain.ConceptEntity, Ground: 2},
			{Name: "c", Type: domain.ConceptEntity},
		},
		Inferences: []domain.Inference{
			{Position: "1", Target: "c", Op: domain.Identity(), Values: []domain.ValueRef{domain.Ref("a"), domain.Ref("b")}},
		},
	}
	_, err := compile(plan, NewStore())
	if !errors.Is(err, domain.ErrPlanInvalid) {
		t.Errorf("error = %v, want ErrPlanInvalid", err)
	}
}

func TestCompile_LoopDepthMismatch(t *testing.T) {
	plan := &domain.Plan{
		Name: "depths",
		Concepts: []domain.Concept{
			{Name: "items", Type: domain.ConceptCollection, Axes: []domain.AxisDecl{{Name: "item", Kind: domain.AxisSelf}}, Ground: []any{1}},
			{Name: "item", Type: domain.ConceptEntity},
		},
		Inferences: []domain.Inference{
			{Position: "1", Target: "item", Op: domain.LoopDriver(), Loop: &domain.LoopSpec{Base: "items", Axis: "item", Depth: 2}},
		},
	}
	_, err := compile(plan, NewStore())
	if !errors.Is(err, domain.ErrPlanInvalid) {
		t.Errorf("error = %v, want ErrPlanInvalid", err)
	}
}

func TestSeedStore_GroundsAndHandles(t *testing.T) {
	plan := &domain.Plan{
		Name: "seeds",
		Concepts: []domain.Concept{
			{Name: "rows", Type: domain.ConceptCollection, Axes: []domain.AxisDecl{{Name: "row", Kind: domain.AxisSelf}}, Ground: []any{1, 2, 3}},
			{Name: "label", Type: domain.ConceptEntity, Ground: "fixed"},
			{Name: "writer", Type: domain.ConceptActor, Paradigm: &domain.Paradigm{Kind: domain.ParadigmModel, Model: &domain.ModelParadigm{Name: "m"}}},
			{Name: "pendingOne", Type: domain.ConceptEntity},
		},
	}
	store := NewStore()
	_, err := compile(plan, store)
	require.NoError(t, err)
	require.NoError(t, seedStore(plan, store))

	rows, status := store.Get("rows")
	require.Equal(t, StatusDone, status)
	if size, _ := rows.AxisSize("row"); size != 3 {
		t.Errorf("rows size = %d, want 3", size)
	}

	label, _ := store.Get("label")
	if got := valueAt(t, label, reference.Coord{}); got != "fixed" {
		t.Errorf("label = %v, want fixed", got)
	}

	writer, status := store.Get("writer")
	require.Equal(t, StatusDone, status)
	if _, ok := valueAt(t, writer, reference.Coord{}).(reference.Sign); !ok {
		t.Errorf("writer should hold a callable handle, got %T", valueAt(t, writer, reference.Coord{}))
	}

	ref, status := store.Get("pendingOne")
	if ref != nil || status != StatusPending {
		t.Errorf("undeclared seed = (%v, %v), want pending and empty", ref, status)
	}
}

func TestIterVec_OrdersOutermostFirst(t *testing.T) {
	inner := &frame{iteration: 2}
	outer := &frame{iteration: 7}
	inner.parent = outer

	if got := iterVec(inner); got != "7,2" {
		t.Errorf("iterVec = %q, want 7,2", got)
	}
	if got := iterVec(nil); got != "" {
		t.Errorf("iterVec(nil) = %q, want empty", got)
	}
}
