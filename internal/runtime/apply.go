package runtime

import (
	"context"
	"time"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/ports"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/reference"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/schema"
)

// RetryPolicy bounds repeated collaborator calls for one coordinate.
// MaxRetries counts the extra attempts after the first; Backoff is the pause
// before the first retry and doubles each further retry.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// DefaultRetryPolicy allows two retries with a short growing pause.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, Backoff: 100 * time.Millisecond}
}

func (p RetryPolicy) wait(retry int) time.Duration {
	d := p.Backoff
	for i := 1; i < retry; i++ {
		d *= 2
	}
	return d
}

// applyConfig carries everything one apply dispatch needs besides its
// resolved inputs. onRetry, when set, observes each repeated attempt.
type applyConfig struct {
	performer ports.Performer
	paradigm  domain.Paradigm
	retry     RetryPolicy
	onRetry   func(attempt int)
}

// execApply delegates the inference to the external collaborator: the value
// references are perceived into one tuple grid, the gate masks tuples whose
// coordinate it rejects, the actor's concrete elements become callables
// around the Performer, and CrossAction runs one call per surviving
// coordinate. Results land along the target's own axis when it has one;
// otherwise a scratch axis is collapsed away afterwards.
func execApply(ctx context.Context, cfg applyConfig, actor *reference.Reference, values []*reference.Reference, gate gateDecision, selfAxis string) (*reference.Reference, error) {
	perceived, err := perceive(values)
	if err != nil {
		return nil, err
	}
	masked, err := gate.maskRef(perceived)
	if err != nil {
		return nil, err
	}

	call := cfg.closure(ctx)
	fns := actor.Copy()
	fns.Each(func(c reference.Coord, e reference.Element) bool {
		if !e.IsSkip() {
			_ = fns.Set(c, reference.Of(call))
		}
		return true
	})

	axis := selfAxis
	scratch := axis == "" || fns.HasAxis(axis) || masked.HasAxis(axis)
	if scratch {
		axis = freshAxisName(fns, masked)
	}
	out, err := reference.CrossAction(fns, masked, axis)
	if err != nil {
		return nil, err
	}
	if !scratch {
		return out, nil
	}

	width, err := out.AxisSize(axis)
	if err != nil {
		return nil, err
	}
	if width <= 1 {
		if width == 0 {
			return reference.Scalar(reference.SkipValue), nil
		}
		return out.Sub(reference.Coord{axis: 0})
	}
	var keep []string
	for _, name := range nonDegenerateNames(out) {
		if name != axis {
			keep = append(keep, name)
		}
	}
	return out.Slice(keep...)
}

// perceive builds the tuple grid the collaborator consumes. With no values
// the grid is a single empty tuple, so the call still runs once per actor
// coordinate.
func perceive(values []*reference.Reference) (*reference.Reference, error) {
	if len(values) == 0 {
		return reference.Scalar([]any{}), nil
	}
	return reference.CrossProduct(values...)
}

// closure wraps the Performer into a callable that retries with backoff and
// validates the result against the paradigm's output type. A result that
// fails validation burns an attempt like a failed call. Exhaustion surfaces
// as a collaborator failure carrying the last error.
func (cfg applyConfig) closure(ctx context.Context) reference.Fn {
	return func(arg any) (any, error) {
		inputs, ok := arg.([]any)
		if !ok {
			inputs = []any{arg}
		}
		attempts := cfg.retry.MaxRetries + 1
		var lastErr error
		for attempt := 1; attempt <= attempts; attempt++ {
			if attempt > 1 {
				if cfg.onRetry != nil {
					cfg.onRetry(attempt)
				}
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(cfg.retry.wait(attempt - 1)):
				}
			}
			res, err := cfg.performer.Perform(ctx, cfg.paradigm, inputs)
			if err != nil {
				lastErr = err
				if ctx.Err() != nil {
					return nil, err
				}
				continue
			}
			if err := schema.Check(cfg.paradigm.Output, res); err != nil {
				lastErr = err
				continue
			}
			return res, nil
		}
		return nil, domain.CollaboratorFailure(lastErr, attempts)
	}
}

// freshAxisName returns a name no input carries.
func freshAxisName(refs ...*reference.Reference) string {
	name := "__result"
	for {
		taken := false
		for _, r := range refs {
			if r.HasAxis(name) {
				taken = true
				break
			}
		}
		if !taken {
			return name
		}
		name = "_" + name
	}
}
