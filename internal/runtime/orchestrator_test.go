package runtime_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/lys5588/NormCode-Psylens-sub002/internal/runtime"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/ports"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/reference"
)

// eventLog collects lifecycle callbacks; hooks run on scheduler and worker
// goroutines, so every append is guarded.
type eventLog struct {
	mu        sync.Mutex
	skipped   []domain.FlowPosition
	cancelled []domain.FlowPosition
	failKinds []string
	retries   []int
	loops     []int
	finished  int
}

func (l *eventLog) hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnInferenceFinished: func(_ context.Context, _ *domain.InferenceEvent) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.finished++
		},
		OnInferenceSkipped: func(_ context.Context, ev *domain.InferenceEvent) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.skipped = append(l.skipped, ev.Position)
		},
		OnInferenceFailed: func(_ context.Context, ev *domain.InferenceEvent) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.failKinds = append(l.failKinds, ev.FailureKind)
		},
		OnInferenceRetried: func(_ context.Context, ev *domain.InferenceEvent) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.retries = append(l.retries, ev.Attempt)
		},
		OnLoopIteration: func(_ context.Context, ev *domain.LoopEvent) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.loops = append(l.loops, ev.Iteration)
		},
		OnPositionCancelled: func(_ context.Context, ev *domain.InferenceEvent) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.cancelled = append(l.cancelled, ev.Position)
		},
	}
}

func mustRun(t *testing.T, plan *domain.Plan, cfg runtime.Config) *runtime.Orchestrator {
	t.Helper()
	o, err := runtime.NewOrchestrator(plan, cfg)
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background()))
	return o
}

func inspect(t *testing.T, o *runtime.Orchestrator, name string) *reference.Reference {
	t.Helper()
	ref, err := o.Inspect(name)
	require.NoError(t, err)
	return ref
}

func value(t *testing.T, r *reference.Reference, c reference.Coord) any {
	t.Helper()
	e, err := r.At(c)
	require.NoError(t, err)
	return e.Value()
}

func isSkip(t *testing.T, r *reference.Reference, c reference.Coord) bool {
	t.Helper()
	e, err := r.At(c)
	require.NoError(t, err)
	return e.IsSkip()
}

func collection(name, axis string, ground ...any) domain.Concept {
	return domain.Concept{
		Name:   name,
		Type:   domain.ConceptCollection,
		Axes:   []domain.AxisDecl{{Name: axis, Kind: domain.AxisSelf}},
		Ground: ground,
	}
}

func entity(name string) domain.Concept {
	return domain.Concept{Name: name, Type: domain.ConceptEntity}
}

func actor(name string) domain.Concept {
	return domain.Concept{
		Name:     name,
		Type:     domain.ConceptActor,
		Paradigm: &domain.Paradigm{Kind: domain.ParadigmModel, Output: "any", Model: &domain.ModelParadigm{Name: name}},
	}
}

func TestRun_LinearPipeline(t *testing.T) {
	plan := &domain.Plan{
		Name: "pipeline",
		Concepts: []domain.Concept{
			collection("people", "person",
				map[string]any{"name": "ada", "age": 36},
				map[string]any{"name": "lin", "age": 41},
			),
			{Name: "names", Type: domain.ConceptCollection},
			entity("first"),
			entity("roster"),
		},
		Inferences: []domain.Inference{
			{Position: "1", Target: "names", Op: domain.Selection(domain.SelectKey("name")), Values: []domain.ValueRef{domain.Ref("people")}},
			{Position: "2", Target: "first", Op: domain.Selection(domain.SelectAt("person", 0)), Values: []domain.ValueRef{domain.Ref("names")}},
			{Position: "3", Target: "roster", Op: domain.Identity(), Values: []domain.ValueRef{domain.Ref("names")}},
		},
	}

	log := &eventLog{}
	o := mustRun(t, plan, runtime.Config{Hooks: log.hooks()})

	names := inspect(t, o, "names")
	require.Equal(t, "ada", value(t, names, reference.Coord{"person": 0}))
	require.Equal(t, "lin", value(t, names, reference.Coord{"person": 1}))

	first := inspect(t, o, "first")
	require.Equal(t, "ada", value(t, first, reference.Coord{}))

	roster := inspect(t, o, "roster")
	require.Equal(t, "lin", value(t, roster, reference.Coord{"person": 1}))
	require.Equal(t, runtime.StatusDone, o.ConceptStatus("roster"))
	require.Equal(t, 3, log.finished)
}

func TestRun_ApplyDelegatesPerCoordinate(t *testing.T) {
	plan := &domain.Plan{
		Name: "delegate",
		Concepts: []domain.Concept{
			collection("nums", "n", 1, reference.SkipValue, 3),
			actor("double"),
			entity("doubled"),
		},
		Inferences: []domain.Inference{
			{Position: "1", Target: "doubled", Op: domain.Apply(), Actor: "double", Values: []domain.ValueRef{domain.Ref("nums")}},
		},
	}

	calls := 0
	perform := ports.PerformerFunc(func(_ context.Context, _ domain.Paradigm, inputs []any) (any, error) {
		calls++
		return inputs[0].(int) * 2, nil
	})

	o := mustRun(t, plan, runtime.Config{Performer: perform})

	doubled := inspect(t, o, "doubled")
	require.Equal(t, 2, value(t, doubled, reference.Coord{"n": 0}))
	require.True(t, isSkip(t, doubled, reference.Coord{"n": 1}))
	require.Equal(t, 6, value(t, doubled, reference.Coord{"n": 2}))
	require.Equal(t, 2, calls, "skip coordinates must not reach the collaborator")
}

func TestRun_GateSkipsAndMasks(t *testing.T) {
	plan := &domain.Plan{
		Name: "gates",
		Concepts: []domain.Concept{
			collection("vals", "item", 10, 20, 30),
			collection("flags", "item", true, false, true),
			{Name: "off", Type: domain.ConceptTruth, Ground: false},
			entity("masked"),
			entity("never"),
		},
		Inferences: []domain.Inference{
			{Position: "1", Target: "masked", Op: domain.Specification(), Values: []domain.ValueRef{domain.Ref("vals")}, Gate: &domain.Gate{Source: "flags"}},
			{Position: "2", Target: "never", Op: domain.Specification(), Values: []domain.ValueRef{domain.Ref("vals")}, Gate: &domain.Gate{Source: "off"}},
		},
	}

	log := &eventLog{}
	o := mustRun(t, plan, runtime.Config{Hooks: log.hooks()})

	masked := inspect(t, o, "masked")
	require.Equal(t, 10, value(t, masked, reference.Coord{"item": 0}))
	require.True(t, isSkip(t, masked, reference.Coord{"item": 1}), "a per-coordinate gate leaves denied slots skip")
	require.Equal(t, 30, value(t, masked, reference.Coord{"item": 2}))

	never := inspect(t, o, "never")
	require.True(t, never.IsAllSkip())
	require.Equal(t, []domain.FlowPosition{"2"}, log.skipped)
}

func TestRun_GroupAcrossConcatenates(t *testing.T) {
	plan := &domain.Plan{
		Name: "across",
		Concepts: []domain.Concept{
			collection("signal", "signal", "s1", "s2"),
			collection("narrative", "narrative", "n1"),
			entity("combined"),
			entity("bad"),
		},
		Inferences: []domain.Inference{
			{
				Position: "1", Target: "combined",
				Op: domain.GroupAcross(domain.GroupAcrossParams{
					CollapsePer: map[string][]string{"signal": {"signal"}, "narrative": {"narrative"}},
					NewAxis:     "combined",
				}),
				Values: []domain.ValueRef{domain.Ref("signal"), domain.Ref("narrative")},
			},
			{
				Position: "2", Target: "bad",
				Op:     domain.GroupAcross(domain.GroupAcrossParams{}),
				Values: []domain.ValueRef{domain.Ref("signal"), domain.Ref("narrative")},
			},
		},
	}

	log := &eventLog{}
	o, err := runtime.NewOrchestrator(plan, runtime.Config{Hooks: log.hooks()})
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background()), "a failed inference must not fail the run")

	combined := inspect(t, o, "combined")
	size, err := combined.AxisSize("combined")
	require.NoError(t, err)
	require.Equal(t, 3, size)
	require.Equal(t, "s1", value(t, combined, reference.Coord{"combined": 0}))
	require.Equal(t, "n1", value(t, combined, reference.Coord{"combined": 2}))

	require.Equal(t, []string{"collapse_ambiguity"}, log.failKinds)
	require.Equal(t, runtime.StatusFailed, o.ConceptStatus("bad"))
	require.True(t, inspect(t, o, "bad").IsAllSkip())
}

func TestRun_LoopCarriesAcrossIterations(t *testing.T) {
	plan := &domain.Plan{
		Name: "carry",
		Concepts: []domain.Concept{
			collection("items", "item", "a", "b", "c"),
			entity("item"),
			{Name: "count", Type: domain.ConceptEntity, Ground: 0},
			actor("bump"),
			collection("acc", "n"),
		},
		Inferences: []domain.Inference{
			{Position: "1", Target: "item", Op: domain.LoopDriver(), Loop: &domain.LoopSpec{Base: "items", Axis: "item"}},
			{Position: "1.1", Target: "count", Op: domain.Apply(), Actor: "bump", Values: []domain.ValueRef{domain.PrevRef("count")}},
			{Position: "1.2", Target: "acc", Op: domain.Continuation("n"), Values: []domain.ValueRef{domain.Ref("count")}},
		},
	}

	bump := ports.PerformerFunc(func(_ context.Context, _ domain.Paradigm, inputs []any) (any, error) {
		return inputs[0].(int) + 1, nil
	})

	log := &eventLog{}
	o := mustRun(t, plan, runtime.Config{Performer: bump, Hooks: log.hooks()})

	count := inspect(t, o, "count")
	require.Equal(t, 3, value(t, count, reference.Coord{}))

	acc := inspect(t, o, "acc")
	size, err := acc.AxisSize("n")
	require.NoError(t, err)
	require.Equal(t, 3, size)
	for i, want := range []any{1, 2, 3} {
		require.Equal(t, want, value(t, acc, reference.Coord{"n": i}))
	}
	require.Equal(t, []int{0, 1, 2}, log.loops)
}

func TestRun_NestedLoopsAccumulate(t *testing.T) {
	plan := &domain.Plan{
		Name: "nested",
		Concepts: []domain.Concept{
			collection("docs", "doc", "d1", "d2"),
			entity("doc"),
			collection("parts", "part", "p1", "p2"),
			entity("part"),
			entity("pair"),
			collection("all", "entry"),
			entity("flat"),
		},
		Inferences: []domain.Inference{
			{Position: "1", Target: "doc", Op: domain.LoopDriver(), Loop: &domain.LoopSpec{Base: "docs", Axis: "doc"}},
			{Position: "1.1", Target: "part", Op: domain.LoopDriver(), Loop: &domain.LoopSpec{Base: "parts", Axis: "part"}},
			{Position: "1.1.1", Target: "pair", Op: domain.GroupIn(domain.GroupInParams{}), Values: []domain.ValueRef{domain.Ref("doc"), domain.Ref("part")}},
			{Position: "1.1.2", Target: "all", Op: domain.Continuation("entry"), Values: []domain.ValueRef{domain.Ref("pair")}},
			{Position: "2", Target: "flat", Op: domain.Selection(domain.SelectAll("entry")), Values: []domain.ValueRef{domain.Ref("all")}},
		},
	}

	o := mustRun(t, plan, runtime.Config{})

	all := inspect(t, o, "all")
	size, err := all.AxisSize("entry")
	require.NoError(t, err)
	require.Equal(t, 4, size, "the inner loop must rerun for every outer iteration")

	firstEntry, ok := value(t, all, reference.Coord{"entry": 0}).(map[string]any)
	require.True(t, ok)
	require.Equal(t, "d1", firstEntry["doc"])
	require.Equal(t, "p1", firstEntry["part"])

	lastEntry, ok := value(t, all, reference.Coord{"entry": 3}).(map[string]any)
	require.True(t, ok)
	require.Equal(t, "d2", lastEntry["doc"])
	require.Equal(t, "p2", lastEntry["part"])

	flat, ok := value(t, inspect(t, o, "flat"), reference.Coord{}).([]any)
	require.True(t, ok)
	require.Len(t, flat, 4, "readers outside the loop see only the settled value")
}

func TestRun_RetriesThenContinues(t *testing.T) {
	plan := &domain.Plan{
		Name: "retries",
		Concepts: []domain.Concept{
			{Name: "seed", Type: domain.ConceptEntity, Ground: "s"},
			{Name: "backup", Type: domain.ConceptEntity, Ground: "fallback"},
			actor("broken"),
			entity("raw"),
			entity("final"),
		},
		Inferences: []domain.Inference{
			{Position: "1", Target: "raw", Op: domain.Apply(), Actor: "broken", Values: []domain.ValueRef{domain.Ref("seed")}},
			{Position: "2", Target: "final", Op: domain.Specification(), Values: []domain.ValueRef{domain.Ref("raw"), domain.Ref("backup")}},
		},
	}

	perform := ports.PerformerFunc(func(_ context.Context, _ domain.Paradigm, _ []any) (any, error) {
		return nil, errors.New("collaborator down")
	})

	log := &eventLog{}
	cfg := runtime.Config{
		Performer: perform,
		Hooks:     log.hooks(),
		Retry:     runtime.RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond},
	}
	o := mustRun(t, plan, cfg)

	require.Equal(t, []int{2, 3}, log.retries)
	require.Equal(t, []string{"collaborator"}, log.failKinds)
	require.Equal(t, runtime.StatusFailed, o.ConceptStatus("raw"))

	final := inspect(t, o, "final")
	require.Equal(t, "fallback", value(t, final, reference.Coord{}),
		"downstream must keep going with the failed target as skip")
}

func TestRun_LoopCeilingStopsSelfExtension(t *testing.T) {
	plan := &domain.Plan{
		Name: "runaway",
		Concepts: []domain.Concept{
			collection("queue", "item", "x"),
			entity("item"),
			{Name: "always", Type: domain.ConceptTruth, Ground: true},
		},
		Inferences: []domain.Inference{
			{Position: "1", Target: "item", Op: domain.LoopDriver(), Loop: &domain.LoopSpec{Base: "queue", Axis: "item"}},
			{Position: "1.1", Target: "queue", Op: domain.Continuation("item"), Values: []domain.ValueRef{domain.Ref("item")}, Gate: &domain.Gate{Source: "always"}},
		},
	}

	o, err := runtime.NewOrchestrator(plan, runtime.Config{Ceiling: 4})
	require.NoError(t, err)

	err = o.Run(context.Background())
	if !errors.Is(err, domain.ErrLoopCeilingExceeded) {
		t.Fatalf("Run error = %v, want ErrLoopCeilingExceeded", err)
	}
}

func TestRun_CheckpointResumeAndFork(t *testing.T) {
	plan := &domain.Plan{
		Name: "checkpoints",
		Concepts: []domain.Concept{
			{Name: "seed", Type: domain.ConceptEntity, Ground: "v"},
			actor("up"),
			entity("shout"),
			entity("echo"),
		},
		Inferences: []domain.Inference{
			{Position: "1", Target: "shout", Op: domain.Apply(), Actor: "up", Values: []domain.ValueRef{domain.Ref("seed")}},
			{Position: "2", Target: "echo", Op: domain.Specification(), Values: []domain.ValueRef{domain.Ref("shout")}},
		},
	}

	failing := ports.PerformerFunc(func(_ context.Context, _ domain.Paradigm, _ []any) (any, error) {
		return nil, errors.New("offline")
	})
	o1 := mustRun(t, plan, runtime.Config{
		Performer: failing,
		Retry:     runtime.RetryPolicy{MaxRetries: 0, Backoff: time.Millisecond},
	})
	require.Equal(t, runtime.StatusFailed, o1.ConceptStatus("shout"))

	snap := o1.Snapshot()
	require.Equal(t, o1.RunID(), snap.RunID)
	require.Equal(t, "failed", snap.Units["1"])

	t.Run("resume recomputes only after a rerun", func(t *testing.T) {
		calls := 0
		working := ports.PerformerFunc(func(_ context.Context, _ domain.Paradigm, _ []any) (any, error) {
			calls++
			return fmt.Sprintf("V%d", calls), nil
		})
		o2, err := runtime.NewOrchestrator(plan, runtime.Config{Performer: working})
		require.NoError(t, err)
		require.NoError(t, o2.Restore(snap))
		require.Equal(t, o1.RunID(), o2.RunID(), "a resume continues under the checkpoint's run id")

		require.NoError(t, o2.Run(context.Background()))
		require.Equal(t, 0, calls, "a settled checkpoint resumes as a no-op")

		require.NoError(t, o2.Rerun("shout"))
		require.NoError(t, o2.Run(context.Background()))
		require.Equal(t, 1, calls)
		require.Equal(t, "V1", value(t, inspect(t, o2, "echo"), reference.Coord{}))
	})

	t.Run("fork runs independently under a new identity", func(t *testing.T) {
		fork, err := snap.ForkFrom("fork-snap", "fork-run")
		require.NoError(t, err)
		require.Equal(t, snap.ID, fork.ParentID)

		working := ports.PerformerFunc(func(_ context.Context, _ domain.Paradigm, _ []any) (any, error) {
			return "W", nil
		})
		o3, err := runtime.NewOrchestrator(plan, runtime.Config{Performer: working})
		require.NoError(t, err)
		require.NoError(t, o3.Restore(fork))
		require.Equal(t, "fork-run", o3.RunID())

		require.NoError(t, o3.Rerun("shout"))
		require.NoError(t, o3.Run(context.Background()))
		require.Equal(t, "W", value(t, inspect(t, o3, "echo"), reference.Coord{}))

		require.Equal(t, runtime.StatusFailed, o1.ConceptStatus("shout"),
			"the original run must not see the fork's work")
	})
}

func TestCancel_AbortsPositionAndDownstreamContinues(t *testing.T) {
	plan := &domain.Plan{
		Name: "cancel",
		Concepts: []domain.Concept{
			{Name: "a", Type: domain.ConceptEntity, Ground: 1},
			{Name: "backup", Type: domain.ConceptEntity, Ground: "b"},
			entity("x"),
			entity("y"),
		},
		Inferences: []domain.Inference{
			{Position: "1", Target: "x", Op: domain.Specification(), Values: []domain.ValueRef{domain.Ref("a")}},
			{Position: "2", Target: "y", Op: domain.Specification(), Values: []domain.ValueRef{domain.Ref("x"), domain.Ref("backup")}},
		},
	}

	log := &eventLog{}
	o, err := runtime.NewOrchestrator(plan, runtime.Config{Hooks: log.hooks()})
	require.NoError(t, err)
	require.NoError(t, o.Cancel("1"))
	require.NoError(t, o.Run(context.Background()))

	require.Equal(t, runtime.StatusAborted, o.ConceptStatus("x"))
	require.True(t, inspect(t, o, "x").IsAllSkip())
	require.Equal(t, []domain.FlowPosition{"1"}, log.cancelled)
	require.Equal(t, "b", value(t, inspect(t, o, "y"), reference.Coord{}))
}

func TestCancel_UnknownPosition(t *testing.T) {
	plan := &domain.Plan{
		Name:     "empty",
		Concepts: []domain.Concept{{Name: "a", Type: domain.ConceptEntity, Ground: 1}},
	}
	o, err := runtime.NewOrchestrator(plan, runtime.Config{})
	require.NoError(t, err)
	if err := o.Cancel("9"); !errors.Is(err, domain.ErrPlanInvalid) {
		t.Errorf("Cancel(9) error = %v, want ErrPlanInvalid", err)
	}
}

func TestRerun_RecomputesOnlyDownstream(t *testing.T) {
	plan := &domain.Plan{
		Name: "rerun",
		Concepts: []domain.Concept{
			{Name: "s1", Type: domain.ConceptEntity, Ground: 1},
			{Name: "s2", Type: domain.ConceptEntity, Ground: 2},
			actor("da"),
			actor("db"),
			entity("x"),
			entity("y"),
			entity("z"),
		},
		Inferences: []domain.Inference{
			{Position: "1", Target: "x", Op: domain.Apply(), Actor: "da", Values: []domain.ValueRef{domain.Ref("s1")}},
			{Position: "2", Target: "y", Op: domain.Apply(), Actor: "db", Values: []domain.ValueRef{domain.Ref("s2")}},
			{Position: "3", Target: "z", Op: domain.GroupIn(domain.GroupInParams{}), Values: []domain.ValueRef{domain.Ref("x"), domain.Ref("y")}},
		},
	}

	var mu sync.Mutex
	counts := map[string]int{}
	perform := ports.PerformerFunc(func(_ context.Context, p domain.Paradigm, _ []any) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		counts[p.Model.Name]++
		return fmt.Sprintf("%s#%d", p.Model.Name, counts[p.Model.Name]), nil
	})

	o := mustRun(t, plan, runtime.Config{Performer: perform})
	z, ok := value(t, inspect(t, o, "z"), reference.Coord{}).(map[string]any)
	require.True(t, ok)
	require.Equal(t, "da#1", z["x"])
	require.Equal(t, "db#1", z["y"])

	require.NoError(t, o.Rerun("s1"))
	require.NoError(t, o.Run(context.Background()))

	z, ok = value(t, inspect(t, o, "z"), reference.Coord{}).(map[string]any)
	require.True(t, ok)
	require.Equal(t, "da#2", z["x"], "the rerun slice recomputes")
	require.Equal(t, "db#1", z["y"], "the untouched branch keeps its value")
	require.Equal(t, map[string]int{"da": 2, "db": 1}, counts)
}

func TestRerun_UnknownConcept(t *testing.T) {
	plan := &domain.Plan{
		Name:     "tiny",
		Concepts: []domain.Concept{{Name: "a", Type: domain.ConceptEntity, Ground: 1}},
	}
	o, err := runtime.NewOrchestrator(plan, runtime.Config{})
	require.NoError(t, err)
	if err := o.Rerun("nope"); !errors.Is(err, domain.ErrPlanInvalid) {
		t.Errorf("Rerun(nope) error = %v, want ErrPlanInvalid", err)
	}
}

func TestRun_BlockedPlanReported(t *testing.T) {
	plan := &domain.Plan{
		Name: "stuck",
		Concepts: []domain.Concept{
			entity("ghost"),
			entity("out"),
		},
		Inferences: []domain.Inference{
			{Position: "1", Target: "out", Op: domain.Specification(), Values: []domain.ValueRef{domain.Ref("ghost")}},
		},
	}

	o, err := runtime.NewOrchestrator(plan, runtime.Config{})
	require.NoError(t, err)

	err = o.Run(context.Background())
	if !errors.Is(err, domain.ErrPlanInvalid) {
		t.Fatalf("Run error = %v, want ErrPlanInvalid", err)
	}
	if !strings.Contains(err.Error(), "blocked at 1") {
		t.Errorf("error %q should name the blocked position", err)
	}
}

func TestRun_ContextCancellationAborts(t *testing.T) {
	plan := &domain.Plan{
		Name: "aborted",
		Concepts: []domain.Concept{
			{Name: "a", Type: domain.ConceptEntity, Ground: 1},
			entity("b"),
		},
		Inferences: []domain.Inference{
			{Position: "1", Target: "b", Op: domain.Specification(), Values: []domain.ValueRef{domain.Ref("a")}},
		},
	}

	o, err := runtime.NewOrchestrator(plan, runtime.Config{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = o.Run(ctx)
	if !errors.Is(err, domain.ErrRunAborted) {
		t.Fatalf("Run error = %v, want ErrRunAborted", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, should carry the context cause", err)
	}
}
