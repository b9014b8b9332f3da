package ports

import (
	"context"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
)

// Performer defines how external collaborations are executed. The engine
// hands over the paradigm and the already-perceived input values for one
// coordinate; the host implements this interface to handle them.
//
// The returned value becomes the coordinate's element. A []any result
// expands along the target's own axis. An error is wrapped as a
// collaborator failure and retried per the engine's policy.
type Performer interface {
	Perform(ctx context.Context, paradigm domain.Paradigm, inputs []any) (any, error)
}

// PerformerFunc adapts a function to the Performer interface.
type PerformerFunc func(ctx context.Context, paradigm domain.Paradigm, inputs []any) (any, error)

func (f PerformerFunc) Perform(ctx context.Context, paradigm domain.Paradigm, inputs []any) (any, error) {
	return f(ctx, paradigm, inputs)
}
