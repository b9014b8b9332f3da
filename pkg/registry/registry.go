// Package registry serves model paradigms with in-process handler functions.
// It is the performer of choice for tests, examples and embedded use, where
// spawning a real collaborator would be overkill.
package registry

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
)

// Handler answers one model invocation. It receives the paradigm's model
// configuration (name, template, token budget) and the perceived inputs.
type Handler func(ctx context.Context, model domain.ModelParadigm, inputs []any) (any, error)

// Registry maps model names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a model name. An existing binding is
// overwritten.
func (r *Registry) Register(name string, fn Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = fn
}

// Perform implements ports.Performer for model paradigms, dispatching on the
// paradigm's model name.
func (r *Registry) Perform(ctx context.Context, paradigm domain.Paradigm, inputs []any) (any, error) {
	if paradigm.Kind != domain.ParadigmModel || paradigm.Model == nil {
		return nil, errors.Newf("registry performer handles model paradigms, got %q", paradigm.Kind)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	fn, ok := r.handlers[paradigm.Model.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Newf("no handler registered for model %q", paradigm.Model.Name)
	}

	return fn(ctx, *paradigm.Model, inputs)
}
