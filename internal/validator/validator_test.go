package validator

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
)

// reviewPlan is a small but complete plan: a gated loop with a carried
// counter, a continuation, and a downstream summary.
func reviewPlan() *domain.Plan {
	return &domain.Plan{
		Name: "review",
		Concepts: []domain.Concept{
			{Name: "items", Type: domain.ConceptCollection, Axes: []domain.AxisDecl{{Name: "item", Kind: domain.AxisSelf}}, Ground: []any{"a", "b"}},
			{Name: "item", Type: domain.ConceptEntity},
			{Name: "count", Type: domain.ConceptEntity, Ground: 0},
			{Name: "bump", Type: domain.ConceptActor, Paradigm: &domain.Paradigm{
				Kind: domain.ParadigmModel, Output: "int", Model: &domain.ModelParadigm{Name: "bump"},
			}},
			{Name: "acc", Type: domain.ConceptCollection, Axes: []domain.AxisDecl{{Name: "n", Kind: domain.AxisSelf}}, Ground: []any{}},
			{Name: "ok", Type: domain.ConceptTruth, Ground: true},
			{Name: "summary", Type: domain.ConceptEntity},
		},
		Inferences: []domain.Inference{
			{Position: "1", Target: "item", Op: domain.LoopDriver(), Loop: &domain.LoopSpec{Base: "items", Axis: "item", Depth: 1}},
			{Position: "1.1", Target: "count", Op: domain.Apply(), Actor: "bump",
				Values: []domain.ValueRef{domain.PrevRef("count")}, Gate: &domain.Gate{Source: "ok"}},
			{Position: "1.2", Target: "acc", Op: domain.Continuation("n"),
				Values: []domain.ValueRef{domain.Ref("count")}, After: []domain.FlowPosition{"1.1"}},
			{Position: "2", Target: "summary", Op: domain.Specification(), Values: []domain.ValueRef{domain.Ref("acc")}},
		},
	}
}

func TestValidate_AcceptsCompletePlan(t *testing.T) {
	require.NoError(t, Validate(reviewPlan()))
}

func TestValidate_NilPlan(t *testing.T) {
	err := Validate(nil)
	if !errors.Is(err, domain.ErrPlanInvalid) {
		t.Fatalf("Validate(nil) = %v, want ErrPlanInvalid", err)
	}
}

func TestValidate_Findings(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(p *domain.Plan)
		want   string
	}{
		{
			name:   "duplicate concept",
			mutate: func(p *domain.Plan) { p.Concepts = append(p.Concepts, domain.Concept{Name: "item", Type: domain.ConceptEntity}) },
			want:   `concept "item" is declared twice`,
		},
		{
			name:   "unknown concept type",
			mutate: func(p *domain.Plan) { p.Concepts[1].Type = "widget" },
			want:   `unknown type "widget"`,
		},
		{
			name:   "duplicate axis",
			mutate: func(p *domain.Plan) { p.Concepts[0].Axes = append(p.Concepts[0].Axes, domain.AxisDecl{Name: "item"}) },
			want:   `declares axis "item" twice`,
		},
		{
			name:   "ground does not fit axes",
			mutate: func(p *domain.Plan) { p.Concepts[0].Ground = 42 },
			want:   "ground does not fit its axes",
		},
		{
			name:   "malformed output type",
			mutate: func(p *domain.Plan) { p.Concepts[3].Paradigm.Output = "list[" },
			want:   "output type",
		},
		{
			name:   "duplicate position",
			mutate: func(p *domain.Plan) { p.Inferences[3].Position = "1.1" },
			want:   "position 1.1 is used twice",
		},
		{
			name:   "position is not a dotted path",
			mutate: func(p *domain.Plan) { p.Inferences[3].Position = "two" },
			want:   "is not a number",
		},
		{
			name:   "undeclared target",
			mutate: func(p *domain.Plan) { p.Inferences[3].Target = "ghost" },
			want:   `targets undeclared concept "ghost"`,
		},
		{
			name:   "undeclared value",
			mutate: func(p *domain.Plan) { p.Inferences[3].Values = []domain.ValueRef{domain.Ref("ghost")} },
			want:   `reads undeclared concept "ghost"`,
		},
		{
			name:   "previous read outside any loop",
			mutate: func(p *domain.Plan) { p.Inferences[3].Values = []domain.ValueRef{domain.PrevRef("acc")} },
			want:   "reads acc@previous outside any loop",
		},
		{
			name: "gated identity",
			mutate: func(p *domain.Plan) {
				p.Inferences = append(p.Inferences, domain.Inference{
					Position: "3", Target: "summary", Op: domain.Identity(),
					Values: []domain.ValueRef{domain.Ref("acc")},
					Gate:   &domain.Gate{Source: "ok"},
				})
			},
			want: "identity at 3 cannot be gated",
		},
		{
			name: "identity aliasing itself",
			mutate: func(p *domain.Plan) {
				p.Inferences = append(p.Inferences, domain.Inference{
					Position: "3", Target: "summary", Op: domain.Identity(),
					Values: []domain.ValueRef{domain.Ref("summary")},
					Gate:   &domain.Gate{Source: "ok"},
				})
			},
			want: `identity at 3 aliases "summary" to itself`,
		},
		{
			name:   "apply without actor",
			mutate: func(p *domain.Plan) { p.Inferences[1].Actor = "" },
			want:   "apply at 1.1 names no actor",
		},
		{
			name:   "actor is not functional",
			mutate: func(p *domain.Plan) { p.Inferences[1].Actor = "ok" },
			want:   `"ok" is truth, not a functional concept`,
		},
		{
			name:   "actor without paradigm",
			mutate: func(p *domain.Plan) { p.Concepts[3].Paradigm = nil },
			want:   `actor "bump" has no paradigm`,
		},
		{
			name:   "actor on a non-apply operator",
			mutate: func(p *domain.Plan) { p.Inferences[3].Actor = "bump" },
			want:   "2 sets an actor on a specification operator",
		},
		{
			name:   "loop spec on a non-loop operator",
			mutate: func(p *domain.Plan) { p.Inferences[3].Loop = &domain.LoopSpec{Base: "items", Axis: "item"} },
			want:   "2 carries a loop spec on a specification operator",
		},
		{
			name:   "loop with values",
			mutate: func(p *domain.Plan) { p.Inferences[0].Values = []domain.ValueRef{domain.Ref("items")} },
			want:   "loop at 1 takes no values",
		},
		{
			name:   "loop over undeclared base",
			mutate: func(p *domain.Plan) { p.Inferences[0].Loop.Base = "ghosts" },
			want:   `iterates undeclared concept "ghosts"`,
		},
		{
			name:   "loop axis the base does not declare",
			mutate: func(p *domain.Plan) { p.Inferences[0].Loop.Axis = "row" },
			want:   `walks axis "row", which "items" does not declare`,
		},
		{
			name:   "loop depth mismatch",
			mutate: func(p *domain.Plan) { p.Inferences[0].Loop.Depth = 2 },
			want:   "declares depth 2 but nests at 1",
		},
		{
			name:   "sequencing after itself",
			mutate: func(p *domain.Plan) { p.Inferences[3].After = []domain.FlowPosition{"2"} },
			want:   "2 sequences after itself",
		},
		{
			name:   "sequencing after unknown position",
			mutate: func(p *domain.Plan) { p.Inferences[3].After = []domain.FlowPosition{"9"} },
			want:   "2 sequences after unknown position 9",
		},
		{
			name: "two ungated producers in one scope",
			mutate: func(p *domain.Plan) {
				p.Inferences = append(p.Inferences, domain.Inference{
					Position: "3", Target: "summary", Op: domain.Specification(),
					Values: []domain.ValueRef{domain.Ref("acc")},
				})
			},
			want: `concept "summary" has 2 ungated producers in one scope (2, 3)`,
		},
		{
			name: "read with nothing behind it",
			mutate: func(p *domain.Plan) {
				p.Concepts = append(p.Concepts, domain.Concept{Name: "orphan", Type: domain.ConceptEntity})
				p.Inferences[3].Values = []domain.ValueRef{domain.Ref("orphan")}
			},
			want: `concept "orphan" is read (first at 2) but nothing produces, grounds or implements it`,
		},
		{
			name:   "carried concept without an outside seed",
			mutate: func(p *domain.Plan) { p.Concepts[2].Ground = nil },
			want:   `loop at 1 carries "count", which has no seed outside the loop`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan := reviewPlan()
			tc.mutate(plan)
			err := Validate(plan)
			require.Error(t, err)
			require.ErrorIs(t, err, domain.ErrPlanInvalid)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	plan := reviewPlan()
	plan.Inferences[3].Target = "ghost"
	plan.Inferences[0].Loop.Depth = 2
	plan.Concepts[2].Ground = nil

	err := Validate(plan)
	require.Error(t, err)
	require.Contains(t, err.Error(), "3 problem(s)")
	require.Contains(t, err.Error(), `targets undeclared concept "ghost"`)
	require.Contains(t, err.Error(), "declares depth 2 but nests at 1")
	require.Contains(t, err.Error(), `carries "count"`)
	require.Equal(t, 3, strings.Count(err.Error(), "\n- "))
}
