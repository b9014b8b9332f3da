package psylens

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/lys5588/NormCode-Psylens-sub002/internal/logging"
	"github.com/lys5588/NormCode-Psylens-sub002/internal/runtime"
	"github.com/lys5588/NormCode-Psylens-sub002/internal/validator"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/adapters/loamplan"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/observability"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/plan"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/ports"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/reference"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/session"
)

// Engine is the high-level entry point for the Psylens library. It wraps
// the internal orchestrator behind a simplified API and carries the
// optional plan source and snapshot store alongside the run itself.
type Engine struct {
	orchestrator *runtime.Orchestrator
	loader       ports.PlanLoader
	sessions     *session.Manager
	logger       *slog.Logger
	hookSet      domain.LifecycleHooks

	// option state, consumed by New
	performer ports.Performer
	hooks     []domain.LifecycleHooks
	store     ports.SnapshotStore
	locker    ports.DistributedLocker
	workers   int
	ceiling   int
	retry     runtime.RetryPolicy

	mu     sync.Mutex
	parent string
}

var _ ports.RunController = (*Engine)(nil)

// RetryPolicy bounds repeated collaborator calls for one coordinate.
// MaxRetries counts the extra attempts after the first; Backoff is the
// pause before the first retry and doubles each further retry.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithPerformer sets the collaborator that executes apply inferences.
// Plans without apply inferences run fine without one.
func WithPerformer(p ports.Performer) Option {
	return func(e *Engine) { e.performer = p }
}

// WithLifecycleHooks registers observability hooks. The option may be
// given more than once; all registered sets receive every event.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) { e.hooks = append(e.hooks, hooks) }
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithSnapshotStore enables Checkpoint, Resume and Fork against the
// given store.
func WithSnapshotStore(store ports.SnapshotStore) Option {
	return func(e *Engine) { e.store = store }
}

// WithLocker extends snapshot locking across replicas. Only meaningful
// together with WithSnapshotStore.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) { e.locker = locker }
}

// WithWorkers bounds how many inferences execute concurrently.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithLoopCeiling overrides the iteration guard for self-extending loops.
func WithLoopCeiling(n int) Option {
	return func(e *Engine) { e.ceiling = n }
}

// WithRetryPolicy overrides how failed collaborator calls are retried.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *Engine) { e.retry = runtime.RetryPolicy(p) }
}

// New validates the plan and builds an engine around it. The plan may
// come from pkg/plan documents, the builder, or a loader; it is checked
// here regardless of origin.
func New(p *domain.Plan, opts ...Option) (*Engine, error) {
	if p == nil {
		return nil, domain.PlanInvalidf("plan is nil")
	}
	eng := &Engine{}
	for _, opt := range opts {
		opt(eng)
	}

	if err := validator.Validate(p); err != nil {
		return nil, err
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	eng.logger = eng.logger.With("plan", p.Name)
	eng.hookSet = observability.Aggregate(eng.hooks...)

	orch, err := runtime.NewOrchestrator(p, runtime.Config{
		Performer: eng.performer,
		Hooks:     eng.hookSet,
		Logger:    eng.logger,
		Workers:   eng.workers,
		Ceiling:   eng.ceiling,
		Retry:     eng.retry,
	})
	if err != nil {
		return nil, err
	}
	eng.orchestrator = orch

	if eng.store != nil {
		sessOpts := []session.Option{session.WithLogger(eng.logger)}
		if eng.locker != nil {
			sessOpts = append(sessOpts, session.WithLocker(eng.locker))
		}
		eng.sessions = session.NewManager(eng.store, sessOpts...)
	}
	return eng, nil
}

// FromLoader loads a plan from the given source and builds an engine
// that keeps the loader, so Watch can surface source changes.
func FromLoader(ctx context.Context, loader ports.PlanLoader, opts ...Option) (*Engine, error) {
	p, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	eng, err := New(p, opts...)
	if err != nil {
		return nil, err
	}
	eng.loader = loader
	return eng, nil
}

// Open builds an engine from a plan source on disk: a JSON or YAML plan
// document, or a directory holding one declaration per markdown file.
func Open(ctx context.Context, source string, opts ...Option) (*Engine, error) {
	abs, err := filepath.Abs(source)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve plan source %s", source)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "stat plan source %s", source)
	}
	if info.IsDir() {
		loader, err := loamplan.Open(abs)
		if err != nil {
			return nil, err
		}
		return FromLoader(ctx, loader, opts...)
	}
	p, err := plan.Load(abs)
	if err != nil {
		return nil, err
	}
	return New(p, opts...)
}

// Plan returns the plan this engine executes.
func (e *Engine) Plan() *domain.Plan { return e.orchestrator.Plan() }

// RunID identifies the current run in events, logs and snapshots. Resume
// adopts the restored snapshot's run identity.
func (e *Engine) RunID() string { return e.orchestrator.RunID() }

// Run drives the plan to quiescence. Failed inferences surface through
// events and skip propagation, not through the returned error; the error
// reports aborts, loop ceilings and plans that stop making progress.
func (e *Engine) Run(ctx context.Context) error {
	return e.orchestrator.Run(ctx)
}

// State captures the run's current checkpoint form without persisting it.
func (e *Engine) State(ctx context.Context) (*domain.RunSnapshot, error) {
	return e.orchestrator.Snapshot(), nil
}

// Inspect returns a copy of the named concept's current value.
func (e *Engine) Inspect(concept string) (*reference.Reference, error) {
	return e.orchestrator.Inspect(concept)
}

// Cancel aborts the inference at the given position. Its target resolves
// skip and downstream work proceeds around it.
func (e *Engine) Cancel(position domain.FlowPosition) error {
	return e.orchestrator.Cancel(position)
}

// Rerun clears a concept and everything computed downstream of it, so
// the next Run recomputes exactly that slice.
func (e *Engine) Rerun(concept string) error {
	return e.orchestrator.Rerun(concept)
}

// Checkpoint persists the run's current state and returns the stored
// snapshot. A checkpoint taken after Resume records the resumed snapshot
// as its parent, so lineages stay traceable across sessions.
func (e *Engine) Checkpoint(ctx context.Context) (*domain.RunSnapshot, error) {
	if e.sessions == nil {
		return nil, errors.New("no snapshot store configured")
	}
	snap := e.orchestrator.Snapshot()
	e.mu.Lock()
	snap.ParentID = e.parent
	e.parent = snap.ID
	e.mu.Unlock()

	if err := e.sessions.Save(ctx, snap); err != nil {
		return nil, err
	}
	e.logger.Info("checkpoint saved", "run", snap.RunID, "snapshot", snap.ID)
	if fn := e.hookSet.OnCheckpointSaved; fn != nil {
		fn(ctx, &domain.RunEvent{
			EventBase: domain.EventBase{
				Timestamp: time.Now().UTC(),
				Type:      domain.EventCheckpointSaved,
				RunID:     snap.RunID,
			},
			Plan:     snap.Plan,
			Snapshot: snap.ID,
		})
	}
	return snap, nil
}

// Resume restores a stored snapshot into the engine. The next Run
// continues from the checkpoint; work that was mid-flight when the
// snapshot was taken is recomputed.
func (e *Engine) Resume(ctx context.Context, id string) error {
	if e.sessions == nil {
		return errors.New("no snapshot store configured")
	}
	snap, err := e.sessions.Load(ctx, id)
	if err != nil {
		return err
	}
	if err := e.orchestrator.Restore(snap); err != nil {
		return err
	}
	e.mu.Lock()
	e.parent = snap.ID
	e.mu.Unlock()
	e.logger.Info("run resumed", "run", snap.RunID, "snapshot", snap.ID)
	return nil
}

// Fork copies a stored snapshot under fresh snapshot and run identities
// and returns the copy. The source lineage is untouched; Resume the
// returned snapshot's ID to continue the branch.
func (e *Engine) Fork(ctx context.Context, id string) (*domain.RunSnapshot, error) {
	if e.sessions == nil {
		return nil, errors.New("no snapshot store configured")
	}
	forked, err := e.sessions.Fork(ctx, id, uuid.NewString(), uuid.NewString())
	if err != nil {
		return nil, err
	}
	e.logger.Info("snapshot forked", "source", id, "snapshot", forked.ID, "run", forked.RunID)
	return forked, nil
}

// Watch returns a channel that signals when the underlying plan source
// changes. It errors when the source does not support watching (direct
// plans and single-document files).
func (e *Engine) Watch(ctx context.Context) (<-chan struct{}, error) {
	if w, ok := e.loader.(ports.Watchable); ok {
		return w.Watch(ctx)
	}
	return nil, errors.New("plan source does not support watching")
}

// Loader returns the plan source backing this engine, or nil when the
// plan was passed in directly.
func (e *Engine) Loader() ports.PlanLoader { return e.loader }

// Snapshots returns the session-guarded snapshot access, or nil when no
// store is configured.
func (e *Engine) Snapshots() *session.Manager { return e.sessions }
