package observability

import (
	"context"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
)

// Aggregate merges hook sets into one, invoking each registered callback in
// the order the sets were given. Fields nobody registered stay nil, so the
// engine's nil checks keep working.
func Aggregate(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunStarted:        fanOut(hooks, func(h domain.LifecycleHooks) func(context.Context, *domain.RunEvent) { return h.OnRunStarted }),
		OnRunFinished:       fanOut(hooks, func(h domain.LifecycleHooks) func(context.Context, *domain.RunEvent) { return h.OnRunFinished }),
		OnInferenceStarted:  fanOut(hooks, func(h domain.LifecycleHooks) func(context.Context, *domain.InferenceEvent) { return h.OnInferenceStarted }),
		OnInferenceFinished: fanOut(hooks, func(h domain.LifecycleHooks) func(context.Context, *domain.InferenceEvent) { return h.OnInferenceFinished }),
		OnInferenceFailed:   fanOut(hooks, func(h domain.LifecycleHooks) func(context.Context, *domain.InferenceEvent) { return h.OnInferenceFailed }),
		OnInferenceRetried:  fanOut(hooks, func(h domain.LifecycleHooks) func(context.Context, *domain.InferenceEvent) { return h.OnInferenceRetried }),
		OnInferenceSkipped:  fanOut(hooks, func(h domain.LifecycleHooks) func(context.Context, *domain.InferenceEvent) { return h.OnInferenceSkipped }),
		OnConceptResolved:   fanOut(hooks, func(h domain.LifecycleHooks) func(context.Context, *domain.ConceptEvent) { return h.OnConceptResolved }),
		OnLoopIteration:     fanOut(hooks, func(h domain.LifecycleHooks) func(context.Context, *domain.LoopEvent) { return h.OnLoopIteration }),
		OnCheckpointSaved:   fanOut(hooks, func(h domain.LifecycleHooks) func(context.Context, *domain.RunEvent) { return h.OnCheckpointSaved }),
		OnPositionCancelled: fanOut(hooks, func(h domain.LifecycleHooks) func(context.Context, *domain.InferenceEvent) { return h.OnPositionCancelled }),
	}
}

func fanOut[E any](hooks []domain.LifecycleHooks, pick func(domain.LifecycleHooks) func(context.Context, *E)) func(context.Context, *E) {
	var active []func(context.Context, *E)
	for _, h := range hooks {
		if fn := pick(h); fn != nil {
			active = append(active, fn)
		}
	}
	switch len(active) {
	case 0:
		return nil
	case 1:
		return active[0]
	default:
		return func(ctx context.Context, e *E) {
			for _, fn := range active {
				fn(ctx, e)
			}
		}
	}
}
