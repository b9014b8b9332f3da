package runtime

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/lys5588/NormCode-Psylens-sub002/internal/logging"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/ports"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/reference"
)

// Defaults applied to zero Config fields.
const (
	DefaultWorkers     = 4
	DefaultLoopCeiling = 10000
)

// Config parameterizes one run. The zero value works for plans without
// apply inferences; anything delegating to a collaborator needs a
// Performer.
type Config struct {
	Performer ports.Performer
	Hooks     domain.LifecycleHooks
	Logger    *slog.Logger
	Workers   int
	Ceiling   int
	Retry     RetryPolicy
	RunID     string
}

// Orchestrator executes one plan run: a single bookkeeping goroutine owns
// eligibility, merging and frame transitions, while a bounded pool of
// workers runs the inferences themselves. All state lives in the explicit
// store; nothing is global, so runs are independent.
type Orchestrator struct {
	cfg   Config
	prog  *program
	store *Store
	log   *slog.Logger

	mu        sync.Mutex
	computed  map[string]bool
	cancelled map[domain.FlowPosition]bool
	driven    map[*unit]*frame
}

// unitResult travels from a worker back to the bookkeeping loop. A nil out
// with a nil err means the inference contributed nothing.
type unitResult struct {
	u   *unit
	out *reference.Reference
	err error
}

// unitInputs is everything a worker needs, resolved on the bookkeeping
// side so workers never touch scheduling state.
type unitInputs struct {
	gate     gateDecision
	values   []*reference.Reference
	prev     *reference.Reference
	actor    *reference.Reference
	paradigm domain.Paradigm
	selfAxis string
}

// NewOrchestrator compiles the plan and seeds the store. The plan is
// assumed validated; structural problems the compiler still catches come
// back as plan-invalid errors.
func NewOrchestrator(plan *domain.Plan, cfg Config) (*Orchestrator, error) {
	store := NewStore()
	prog, err := compile(plan, store)
	if err != nil {
		return nil, err
	}
	if err := seedStore(plan, store); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = DefaultLoopCeiling
	}
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	o := &Orchestrator{
		cfg:       cfg,
		prog:      prog,
		store:     store,
		log:       cfg.Logger,
		computed:  make(map[string]bool),
		cancelled: make(map[domain.FlowPosition]bool),
		driven:    make(map[*unit]*frame, len(prog.frames)),
	}
	for _, f := range prog.frames {
		o.driven[f.driver] = f
	}
	return o, nil
}

// Plan returns the plan this orchestrator executes.
func (o *Orchestrator) Plan() *domain.Plan { return o.prog.plan }

// RunID identifies this run in events, logs and snapshots.
func (o *Orchestrator) RunID() string { return o.cfg.RunID }

// Run drives the plan to quiescence. Failed inferences do not fail the
// run; their targets resolve skip and the failures surface through events.
// The returned error reports aborts, loop ceilings, gate shape errors and
// plans that stopped making progress.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.log.Info("run started", "run", o.cfg.RunID, "plan", o.prog.plan.Name)
	o.emitRun(ctx, domain.EventRunStarted, nil)
	start := time.Now()
	err := o.schedule(ctx)
	if err != nil {
		o.log.Warn("run finished", "run", o.cfg.RunID, "err", err, "elapsed", time.Since(start))
	} else {
		o.log.Info("run finished", "run", o.cfg.RunID, "elapsed", time.Since(start))
	}
	o.emitRun(ctx, domain.EventRunFinished, err)
	return err
}

func (o *Orchestrator) schedule(ctx context.Context) error {
	results := make(chan unitResult)
	inflight := 0
	drain := func() {
		for inflight > 0 {
			<-results
			inflight--
		}
	}

	for {
		if ctx.Err() != nil {
			drain()
			return domain.RunAborted(ctx.Err())
		}

		o.mu.Lock()
		moved, err := o.advanceFrames(ctx)
		if err == nil {
			var launched bool
			launched, err = o.launch(ctx, results, &inflight)
			moved = moved || launched
		}
		o.mu.Unlock()
		if err != nil {
			drain()
			return err
		}
		if moved {
			continue
		}
		if inflight == 0 {
			break
		}

		select {
		case res := <-results:
			inflight--
			o.absorb(ctx, res)
		case <-ctx.Done():
			drain()
			return domain.RunAborted(ctx.Err())
		}
	}
	return o.checkComplete()
}

// advanceFrames moves every quiescent open frame one iteration, innermost
// first.
func (o *Orchestrator) advanceFrames(ctx context.Context) (bool, error) {
	moved := false
	for i := len(o.prog.frames) - 1; i >= 0; i-- {
		f := o.prog.frames[i]
		if !f.open || !frameQuiescent(f) {
			continue
		}
		closed, err := advanceFrame(f, o.store, o.cfg.Ceiling)
		if err != nil {
			return moved, err
		}
		moved = true
		if closed {
			o.log.Debug("loop closed", "run", o.cfg.RunID, "pos", string(f.pos()), "iterations", f.iteration+1)
			o.emitConcept(ctx, f.driver.inf.Target)
			continue
		}
		o.emitLoop(ctx, f)
	}
	return moved, nil
}

// launch settles or dispatches every currently eligible unit. Identity and
// loop drivers resolve on the bookkeeping side; everything else goes to a
// worker while the pool has room.
func (o *Orchestrator) launch(ctx context.Context, results chan<- unitResult, inflight *int) (bool, error) {
	launched := false
	for _, u := range o.prog.units {
		if u.outcome != outcomePending || !frameActive(u.frame) || o.computed[o.key(u)] {
			continue
		}
		if o.cancelled[u.pos()] {
			o.computed[o.key(u)] = true
			o.settleAborted(ctx, u)
			launched = true
			continue
		}
		if !o.ready(u) {
			continue
		}
		needsWorker := u.inf.Op.Kind != domain.OpIdentity && u.inf.Op.Kind != domain.OpLoop
		if needsWorker && *inflight >= o.cfg.Workers {
			continue
		}

		dec := gateDecision{allow: true}
		if u.inf.Gate != nil {
			cond, _ := o.store.Get(u.inf.Gate.Source)
			if cond == nil {
				return launched, domain.PlanInvalidf("gate source %q has no value at %s", u.inf.Gate.Source, u.pos())
			}
			var err error
			dec, err = evalGate(u.inf.Gate, cond)
			if err != nil {
				return launched, err
			}
			if dec.mask == nil && !dec.allow {
				o.computed[o.key(u)] = true
				o.settleSkipped(ctx, u)
				launched = true
				continue
			}
		}

		o.computed[o.key(u)] = true
		u.attempts++
		switch u.inf.Op.Kind {
		case domain.OpIdentity:
			o.settleIdentity(ctx, u)
		case domain.OpLoop:
			if err := o.openDriver(ctx, u); err != nil {
				return launched, err
			}
		default:
			in, err := o.prepare(u, dec)
			if err != nil {
				return launched, err
			}
			u.outcome = outcomeRunning
			o.emitInference(ctx, domain.EventInferenceStarted, u, "running", nil, "")
			*inflight++
			go func(u *unit, in unitInputs) {
				out, execErr := o.execute(ctx, u, in)
				results <- unitResult{u: u, out: out, err: execErr}
			}(u, in)
		}
		launched = true
	}
	return launched, nil
}

// ready checks sequencing and dependency resolution for one pending unit.
func (o *Orchestrator) ready(u *unit) bool {
	for _, pos := range u.inf.After {
		if dep, ok := o.prog.byPos[pos]; ok && !dep.outcome.settled() {
			return false
		}
	}
	for _, v := range u.deps {
		if v.Version == domain.VersionPrevious || v.Version == domain.VersionInitial {
			continue
		}
		name := o.store.Canonical(v.Concept)
		if _, st := o.store.Get(name); !st.Resolved() {
			return false
		}
		if o.producerBlocks(u, name) {
			return false
		}
	}
	for _, name := range u.carrySeeds {
		if !o.seedReady(u, name) {
			return false
		}
	}
	return true
}

// producerBlocks reports whether some producer of name sits inside a loop
// that has not finished and does not enclose u, in which case u would read
// a value still being iterated.
func (o *Orchestrator) producerBlocks(u *unit, name string) bool {
	for _, p := range o.prog.producers[name] {
		if p == u {
			continue
		}
		var outermost *frame
		for f := o.scopeOf(p); f != nil; f = f.parent {
			if !o.enclosedBy(u, f) {
				outermost = f
			}
		}
		if outermost != nil && !outermost.closed {
			return true
		}
	}
	return false
}

// seedReady gates a loop driver on its carried concepts: the concept must
// hold some value, and no producer outside the loop may still be on its way
// to replacing that value this round.
func (o *Orchestrator) seedReady(u *unit, name string) bool {
	ref, _ := o.store.Get(name)
	if ref == nil {
		return false
	}
	for _, p := range o.prog.producers[name] {
		if p == u || o.enclosedBy(p, o.driven[u]) {
			continue
		}
		if !p.outcome.settled() && frameActive(p.frame) && !o.computed[o.key(p)] {
			return false
		}
	}
	return true
}

// scopeOf is the frame a unit's output belongs to; a driver's output is
// the frame it drives.
func (o *Orchestrator) scopeOf(u *unit) *frame {
	if f, ok := o.driven[u]; ok {
		return f
	}
	return u.frame
}

// enclosedBy reports whether f is on u's scope chain.
func (o *Orchestrator) enclosedBy(u *unit, f *frame) bool {
	if f == nil {
		return false
	}
	for g := o.scopeOf(u); g != nil; g = g.parent {
		if g == f {
			return true
		}
	}
	return false
}

// key identifies one computation of a unit: its position at the current
// iteration vector of its enclosing frames.
func (o *Orchestrator) key(u *unit) string {
	return string(u.pos()) + "@" + iterVec(u.frame)
}

// prepare resolves a unit's inputs on the bookkeeping side.
func (o *Orchestrator) prepare(u *unit, dec gateDecision) (unitInputs, error) {
	in := unitInputs{gate: dec}
	for _, v := range u.inf.Values {
		ref, err := o.resolveValue(u, v)
		if err != nil {
			return in, err
		}
		in.values = append(in.values, ref)
	}
	switch u.inf.Op.Kind {
	case domain.OpContinuation:
		if c := carryFor(u.frame, o.store.Canonical(u.inf.Target)); c != nil {
			in.prev = c.previous
		}
	case domain.OpApply:
		actorRef, _ := o.store.Get(u.inf.Actor)
		if actorRef == nil {
			return in, domain.PlanInvalidf("actor %q has no value at %s", u.inf.Actor, u.pos())
		}
		in.actor = actorRef
		actor := o.prog.plan.Concept(u.inf.Actor)
		if actor == nil || actor.Paradigm == nil {
			return in, domain.PlanInvalidf("actor %q has no paradigm", u.inf.Actor)
		}
		in.paradigm = *actor.Paradigm
		if target := o.prog.plan.Concept(u.inf.Target); target != nil {
			if axes := target.SelfAxes(); len(axes) > 0 {
				in.selfAxis = axes[0]
			}
		}
	}
	return in, nil
}

// resolveValue reads one input at the requested loop-relative version.
func (o *Orchestrator) resolveValue(u *unit, v domain.ValueRef) (*reference.Reference, error) {
	canon := o.store.Canonical(v.Concept)
	switch v.Version {
	case domain.VersionPrevious, domain.VersionInitial:
		c := carryFor(u.frame, canon)
		if c == nil {
			return nil, domain.PlanInvalidf("%s reads %s@%s outside a loop carrying it", u.pos(), v.Concept, v.Version)
		}
		if v.Version == domain.VersionInitial {
			return c.initial, nil
		}
		return c.previous, nil
	default:
		ref, _ := o.store.Get(canon)
		if ref == nil {
			return nil, domain.PlanInvalidf("%s reads %q before it holds a value", u.pos(), v.Concept)
		}
		return ref, nil
	}
}

// execute runs one inference on a worker. The gate decision is already
// evaluated; structural families mask their output, continuation masks its
// appended values, apply masks the perceived tuples before calling out.
func (o *Orchestrator) execute(ctx context.Context, u *unit, in unitInputs) (*reference.Reference, error) {
	op := u.inf.Op
	switch op.Kind {
	case domain.OpAbstraction:
		out, err := execAbstraction(op.Abstraction)
		return maskOutput(in.gate, out, err)
	case domain.OpSpecification:
		out, err := execSpecification(in.values)
		return maskOutput(in.gate, out, err)
	case domain.OpContinuation:
		values := in.values
		if in.gate.mask != nil {
			values = make([]*reference.Reference, len(in.values))
			for i, v := range in.values {
				mv, err := in.gate.maskRef(v)
				if err != nil {
					return nil, err
				}
				values[i] = mv
			}
		}
		return execContinuation(in.prev, values, op.Continuation.Axis)
	case domain.OpSelection:
		if len(in.values) != 1 {
			return nil, domain.PlanInvalidf("selection at %s needs exactly one value", u.pos())
		}
		out, err := execSelection(in.values[0], op.Selection.Steps)
		return maskOutput(in.gate, out, err)
	case domain.OpGroupIn:
		out, err := execGroupIn(o.groupSources(u, in), op.GroupIn)
		return maskOutput(in.gate, out, err)
	case domain.OpGroupAcross:
		out, err := execGroupAcross(o.groupSources(u, in), op.GroupAcross)
		return maskOutput(in.gate, out, err)
	case domain.OpApply:
		if o.cfg.Performer == nil {
			return nil, domain.PlanInvalidf("apply at %s needs a performer", u.pos())
		}
		cfg := applyConfig{
			performer: o.cfg.Performer,
			paradigm:  in.paradigm,
			retry:     o.cfg.Retry,
			onRetry:   o.retryObserver(ctx, u),
		}
		return execApply(ctx, cfg, in.actor, in.values, in.gate, in.selfAxis)
	}
	return nil, domain.PlanInvalidf("operator %q cannot execute", op.Kind)
}

func maskOutput(dec gateDecision, out *reference.Reference, err error) (*reference.Reference, error) {
	if err != nil || out == nil {
		return out, err
	}
	return dec.maskRef(out)
}

func (o *Orchestrator) groupSources(u *unit, in unitInputs) []groupSource {
	srcs := make([]groupSource, len(in.values))
	for i, v := range u.inf.Values {
		srcs[i] = groupSource{name: v.Concept, ref: in.values[i]}
	}
	return srcs
}

// absorb folds a worker result back into the run.
func (o *Orchestrator) absorb(ctx context.Context, res unitResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	u := res.u
	if o.cancelled[u.pos()] {
		o.settleAborted(ctx, u)
		return
	}
	if res.err != nil {
		u.outcome = outcomeFailed
		o.store.MergeNothing(u.inf.Target, StatusFailed)
		o.emitFailed(ctx, u, res.err)
		o.emitConcept(ctx, u.inf.Target)
		return
	}
	u.outcome = outcomeDone
	if res.out == nil {
		o.store.MergeNothing(u.inf.Target, StatusDone)
		o.emitInference(ctx, domain.EventInferenceFinished, u, "done", nil, "")
	} else {
		o.store.Merge(u.inf.Target, res.out)
		o.emitInference(ctx, domain.EventInferenceFinished, u, "done", res.out.Shape(), res.out.Sample(3))
	}
	o.emitConcept(ctx, u.inf.Target)
}

// openDriver opens the unit's loop frame and settles the driver.
func (o *Orchestrator) openDriver(ctx context.Context, u *unit) error {
	f, ok := o.driven[u]
	if !ok {
		return domain.PlanInvalidf("loop driver at %s has no frame", u.pos())
	}
	empty, err := openFrame(f, o.store)
	if err != nil {
		return err
	}
	u.outcome = outcomeDone
	if empty {
		o.emitInference(ctx, domain.EventInferenceFinished, u, "done", nil, "")
		o.emitConcept(ctx, u.inf.Target)
		return nil
	}
	o.emitLoop(ctx, f)
	target, _ := o.store.Get(u.inf.Target)
	o.emitInference(ctx, domain.EventInferenceFinished, u, "done", target.Shape(), target.Sample(3))
	return nil
}

// settleIdentity resolves an identity inference; the alias was bound at
// compile time, so the target already shares the source's state.
func (o *Orchestrator) settleIdentity(ctx context.Context, u *unit) {
	u.outcome = outcomeDone
	o.emitInference(ctx, domain.EventInferenceFinished, u, "done", nil, "")
	o.emitConcept(ctx, u.inf.Target)
}

// settleSkipped resolves a unit whose gate said no. The target keeps any
// existing value; a fresh target resolves as a single skip.
func (o *Orchestrator) settleSkipped(ctx context.Context, u *unit) {
	u.outcome = outcomeSkipped
	o.store.MergeNothing(u.inf.Target, StatusDone)
	if f, ok := o.driven[u]; ok && !f.open && !f.closed {
		settleFrameSkipped(f, o.store)
	}
	o.emitInference(ctx, domain.EventInferenceSkipped, u, "skipped", nil, "")
	o.emitConcept(ctx, u.inf.Target)
}

// settleAborted resolves a cancelled unit.
func (o *Orchestrator) settleAborted(ctx context.Context, u *unit) {
	u.outcome = outcomeAborted
	o.store.MergeNothing(u.inf.Target, StatusAborted)
	if f, ok := o.driven[u]; ok && !f.open && !f.closed {
		settleFrameSkipped(f, o.store)
	}
	o.log.Info("inference cancelled", "run", o.cfg.RunID, "pos", string(u.pos()), "target", u.inf.Target)
	if fn := o.cfg.Hooks.OnPositionCancelled; fn != nil {
		fn(ctx, o.inferenceEvent(domain.EventPositionCancelled, u, "aborted"))
	}
	o.emitConcept(ctx, u.inf.Target)
}

// checkComplete flags plans that stopped making progress with work left.
func (o *Orchestrator) checkComplete() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var stuck []string
	for _, u := range o.prog.units {
		if !u.outcome.settled() {
			stuck = append(stuck, string(u.pos()))
		}
	}
	if len(stuck) > 0 {
		sort.Strings(stuck)
		return domain.PlanInvalidf("no progress possible; inferences blocked at %s", strings.Join(stuck, ", "))
	}
	return nil
}

// Cancel marks the inference at pos aborted. Pending work never starts,
// running work is discarded when it completes, and the target resolves
// skip for downstream.
func (o *Orchestrator) Cancel(pos domain.FlowPosition) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	u, ok := o.prog.byPos[pos]
	if !ok {
		return domain.PlanInvalidf("no inference at %s", pos)
	}
	o.cancelled[pos] = true
	if u.outcome == outcomePending {
		o.computed[o.key(u)] = true
		o.settleAborted(context.Background(), u)
	}
	return nil
}

// Rerun clears a concept and everything downstream of it through inference
// edges, so the next Run recomputes exactly that slice. Grounds and
// functional handles among the cleared concepts reseed immediately.
func (o *Orchestrator) Rerun(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	canon := o.store.Canonical(name)
	if o.prog.plan.Concept(name) == nil && o.prog.plan.Concept(canon) == nil {
		return domain.PlanInvalidf("concept %q not in plan", name)
	}

	affected := map[string]bool{canon: true}
	for changed := true; changed; {
		changed = false
		for _, u := range o.prog.units {
			target := o.store.Canonical(u.inf.Target)
			if affected[target] || !o.unitReads(u, affected) {
				continue
			}
			affected[target] = true
			changed = true
		}
	}

	for c := range affected {
		o.store.Clear(c)
	}
	for _, u := range o.prog.units {
		if !affected[o.store.Canonical(u.inf.Target)] {
			continue
		}
		u.outcome = outcomePending
		u.attempts = 0
		o.forgetComputed(u.pos())
		delete(o.cancelled, u.pos())
	}
	for _, f := range o.prog.frames {
		if f.driver.outcome == outcomePending {
			resetFrameTree(f)
		}
	}
	o.reseed(affected)
	o.log.Info("rerun scheduled", "run", o.cfg.RunID, "concept", canon, "affected", len(affected))
	return nil
}

func (o *Orchestrator) unitReads(u *unit, affected map[string]bool) bool {
	for _, v := range u.deps {
		if affected[o.store.Canonical(v.Concept)] {
			return true
		}
	}
	for _, name := range u.carrySeeds {
		if affected[name] {
			return true
		}
	}
	return false
}

func (o *Orchestrator) forgetComputed(pos domain.FlowPosition) {
	prefix := string(pos) + "@"
	for key := range o.computed {
		if strings.HasPrefix(key, prefix) {
			delete(o.computed, key)
		}
	}
}

func (o *Orchestrator) reseed(affected map[string]bool) {
	for i := range o.prog.plan.Concepts {
		c := &o.prog.plan.Concepts[i]
		if !affected[o.store.Canonical(c.Name)] {
			continue
		}
		if c.Ground != nil {
			if ref, err := reference.FromNested(c.Ground, c.SelfAxes()...); err == nil {
				o.store.Put(c.Name, ref, StatusDone)
			}
			continue
		}
		if c.Type.IsFunctional() && c.Paradigm != nil {
			o.store.Put(c.Name, reference.Scalar(reference.Sign(c.Name)), StatusDone)
		}
	}
}

// Inspect returns a copy of the concept's current value.
func (o *Orchestrator) Inspect(name string) (*reference.Reference, error) {
	ref, _ := o.store.Get(name)
	if ref == nil {
		return nil, domain.PlanInvalidf("concept %q holds no value", name)
	}
	return ref.Copy(), nil
}

// ConceptStatus reports a concept's resolution status.
func (o *Orchestrator) ConceptStatus(name string) Status {
	return o.store.Status(name)
}

// Snapshot captures the run into its serializable checkpoint form. Units
// caught mid-flight degrade to pending so a resume recomputes them.
func (o *Orchestrator) Snapshot() *domain.RunSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	snap := &domain.RunSnapshot{
		ID:        uuid.NewString(),
		RunID:     o.cfg.RunID,
		Plan:      o.prog.plan.Name,
		CreatedAt: time.Now().UTC(),
		Concepts:  make(map[string]domain.ConceptSnapshot),
		Aliases:   o.store.Aliases(),
		Units:     make(map[string]string, len(o.prog.units)),
	}

	functional := make(map[string]bool)
	for i := range o.prog.plan.Concepts {
		c := &o.prog.plan.Concepts[i]
		if c.Type.IsFunctional() {
			functional[o.store.Canonical(c.Name)] = true
		}
	}
	for _, name := range o.store.Names() {
		ref, status := o.store.Get(name)
		cs := domain.ConceptSnapshot{Status: string(status)}
		if ref != nil && !functional[name] {
			cs.Value = ref.Copy()
		}
		snap.Concepts[name] = cs
	}

	inflightKeys := make(map[string]bool)
	for _, u := range o.prog.units {
		outcome := u.outcome
		if outcome == outcomeRunning {
			outcome = outcomePending
			inflightKeys[o.key(u)] = true
		}
		snap.Units[string(u.pos())] = string(outcome)
	}
	for key := range o.computed {
		if !inflightKeys[key] {
			snap.Computed = append(snap.Computed, key)
		}
	}
	sort.Strings(snap.Computed)

	for _, f := range o.prog.frames {
		if !f.open {
			continue
		}
		fs := domain.FrameSnapshot{
			Position:  f.pos(),
			Base:      f.spec.Base,
			Axis:      f.spec.Axis,
			Iteration: f.iteration,
			Carries:   make(map[string]domain.CarrySnapshot, len(f.carries)),
		}
		for name, c := range f.carries {
			fs.Carries[name] = domain.CarrySnapshot{Initial: c.initial.Copy(), Previous: c.previous.Copy()}
		}
		snap.Frames = append(snap.Frames, fs)
	}
	return snap
}

// Restore replaces run state with a snapshot taken from the same plan.
// Functional concepts keep the callable handles seeded at construction.
func (o *Orchestrator) Restore(snap *domain.RunSnapshot) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if snap.Plan != o.prog.plan.Name {
		return domain.PlanInvalidf("snapshot belongs to plan %q, not %q", snap.Plan, o.prog.plan.Name)
	}
	if snap.RunID != "" {
		o.cfg.RunID = snap.RunID
	}

	for name, cs := range snap.Concepts {
		status := Status(cs.Status)
		if cs.Value != nil {
			o.store.Put(name, cs.Value.Copy(), status)
			continue
		}
		ref, _ := o.store.Get(name)
		o.store.Put(name, ref, status)
	}
	for pos, outcome := range snap.Units {
		u, ok := o.prog.byPos[domain.FlowPosition(pos)]
		if !ok {
			continue
		}
		u.outcome = unitOutcome(outcome)
		if u.outcome == outcomeRunning {
			u.outcome = outcomePending
		}
	}
	o.computed = make(map[string]bool, len(snap.Computed))
	for _, key := range snap.Computed {
		o.computed[key] = true
	}
	o.cancelled = make(map[domain.FlowPosition]bool)

	framesByPos := make(map[domain.FlowPosition]*frame, len(o.prog.frames))
	for _, f := range o.prog.frames {
		framesByPos[f.pos()] = f
		resetFrameTree(f)
	}
	for _, fs := range snap.Frames {
		f, ok := framesByPos[fs.Position]
		if !ok {
			return domain.PlanInvalidf("snapshot frame %s not in plan", fs.Position)
		}
		f.open = true
		f.iteration = fs.Iteration
		f.carries = make(map[string]*carry, len(fs.Carries))
		for name, c := range fs.Carries {
			f.carries[name] = &carry{initial: c.Initial, previous: c.Previous}
		}
	}
	// A frame absent from the snapshot whose driver already settled had
	// finished (or been skipped) before the snapshot was taken.
	for _, f := range o.prog.frames {
		if !f.open && f.driver.outcome.settled() {
			f.closed = true
		}
	}
	return nil
}

// Event and logging plumbing.

func (o *Orchestrator) base(t domain.EventType) domain.EventBase {
	return domain.EventBase{Timestamp: time.Now().UTC(), Type: t, RunID: o.cfg.RunID}
}

func (o *Orchestrator) inferenceEvent(t domain.EventType, u *unit, outcome string) *domain.InferenceEvent {
	return &domain.InferenceEvent{
		EventBase: o.base(t),
		Position:  u.pos(),
		Target:    u.inf.Target,
		Op:        u.inf.Op.Kind,
		Outcome:   outcome,
		Attempt:   u.attempts,
	}
}

func (o *Orchestrator) emitInference(ctx context.Context, t domain.EventType, u *unit, outcome string, shape []int, sample string) {
	o.log.Debug("inference "+outcome, "run", o.cfg.RunID, "pos", string(u.pos()), "target", u.inf.Target, "outcome", outcome, "shape", shape)
	ev := o.inferenceEvent(t, u, outcome)
	ev.Shape = shape
	ev.Sample = sample
	var fn func(context.Context, *domain.InferenceEvent)
	switch t {
	case domain.EventInferenceStarted:
		fn = o.cfg.Hooks.OnInferenceStarted
	case domain.EventInferenceFinished:
		fn = o.cfg.Hooks.OnInferenceFinished
	case domain.EventInferenceSkipped:
		fn = o.cfg.Hooks.OnInferenceSkipped
	}
	if fn != nil {
		fn(ctx, ev)
	}
}

func (o *Orchestrator) emitFailed(ctx context.Context, u *unit, err error) {
	o.log.Warn("inference failed", "run", o.cfg.RunID, "pos", string(u.pos()), "target", u.inf.Target, "err", err, "attempt", u.attempts)
	ev := o.inferenceEvent(domain.EventInferenceFailed, u, "failed")
	ev.FailureKind = failureKind(err)
	if fn := o.cfg.Hooks.OnInferenceFailed; fn != nil {
		fn(ctx, ev)
	}
}

func (o *Orchestrator) emitConcept(ctx context.Context, name string) {
	ref, _ := o.store.Get(name)
	if ref == nil {
		return
	}
	if fn := o.cfg.Hooks.OnConceptResolved; fn != nil {
		fn(ctx, &domain.ConceptEvent{
			EventBase: o.base(domain.EventConceptResolved),
			Concept:   o.store.Canonical(name),
			Shape:     ref.Shape(),
			Skipped:   ref.IsAllSkip(),
		})
	}
}

func (o *Orchestrator) emitLoop(ctx context.Context, f *frame) {
	o.log.Debug("loop iteration", "run", o.cfg.RunID, "pos", string(f.pos()), "base", f.spec.Base, "iteration", f.iteration)
	if fn := o.cfg.Hooks.OnLoopIteration; fn != nil {
		fn(ctx, &domain.LoopEvent{
			EventBase: o.base(domain.EventLoopIteration),
			Position:  f.pos(),
			Base:      f.spec.Base,
			Iteration: f.iteration,
		})
	}
}

func (o *Orchestrator) emitRun(ctx context.Context, t domain.EventType, err error) {
	ev := &domain.RunEvent{EventBase: o.base(t), Plan: o.prog.plan.Name}
	if err != nil {
		ev.Err = err.Error()
	}
	var fn func(context.Context, *domain.RunEvent)
	switch t {
	case domain.EventRunStarted:
		fn = o.cfg.Hooks.OnRunStarted
	case domain.EventRunFinished:
		fn = o.cfg.Hooks.OnRunFinished
	}
	if fn != nil {
		fn(ctx, ev)
	}
}

func (o *Orchestrator) retryObserver(ctx context.Context, u *unit) func(int) {
	return func(attempt int) {
		o.log.Warn("collaborator retry", "run", o.cfg.RunID, "pos", string(u.pos()), "target", u.inf.Target, "attempt", attempt)
		if fn := o.cfg.Hooks.OnInferenceRetried; fn != nil {
			ev := o.inferenceEvent(domain.EventInferenceRetried, u, "retrying")
			ev.Attempt = attempt
			fn(ctx, ev)
		}
	}
}

// failureKind classifies an inference failure for events and metrics.
func failureKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrCollaboratorFailure):
		return "collaborator"
	case errors.Is(err, domain.ErrShapeMismatch):
		return "shape_mismatch"
	case errors.Is(err, domain.ErrAxisNotFound):
		return "axis_not_found"
	case errors.Is(err, domain.ErrCollapseAmbiguity):
		return "collapse_ambiguity"
	case errors.Is(err, domain.ErrPlanInvalid):
		return "plan_invalid"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "error"
}
