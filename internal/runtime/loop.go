package runtime

import (
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/reference"
)

// openFrame activates a loop scope at iteration zero: carries freeze their
// seed values, every body target drops to pending, and the driver's target
// binds to the first base element. An empty base closes the frame on the
// spot and settles the whole body as skipped.
func openFrame(f *frame, store *Store) (empty bool, err error) {
	size, err := frameBaseSize(f, store)
	if err != nil {
		return false, err
	}
	if size == 0 {
		settleFrameSkipped(f, store)
		return true, nil
	}

	f.open = true
	f.closed = false
	f.iteration = 0
	f.carries = make(map[string]*carry, len(f.carried))
	for _, name := range f.carried {
		cur, _ := store.Get(name)
		if cur == nil {
			return false, domain.PlanInvalidf("loop at %s carries %q, which has no value at entry", f.pos(), name)
		}
		seed := cur.Copy()
		f.carries[name] = &carry{initial: seed, previous: seed}
	}
	for _, u := range unitsUnder(f) {
		u.outcome = outcomePending
		u.attempts = 0
		store.ResetPending(u.inf.Target)
	}
	for _, nested := range f.nested {
		resetFrameTree(nested)
	}
	return false, bindDriverTarget(f, store)
}

// advanceFrame moves an open frame to the next iteration once its body is
// quiescent. The base size is re-read, so a body that extended the base
// keeps the loop alive. Reaching the end closes the frame and leaves every
// looped concept at its final value.
func advanceFrame(f *frame, store *Store, ceiling int) (closed bool, err error) {
	size, err := frameBaseSize(f, store)
	if err != nil {
		return false, err
	}
	next := f.iteration + 1
	if next >= size {
		f.open = false
		f.closed = true
		return true, nil
	}
	if ceiling > 0 && next >= ceiling {
		return false, domain.LoopCeilingExceededf("loop at %s passed %d iterations", f.pos(), ceiling)
	}

	for _, name := range f.carried {
		cur, _ := store.Get(name)
		if cur != nil {
			f.carries[name].previous = cur.Copy()
		}
	}
	f.iteration = next
	for _, u := range unitsUnder(f) {
		u.outcome = outcomePending
		u.attempts = 0
		store.ResetPending(u.inf.Target)
	}
	for _, nested := range f.nested {
		resetFrameTree(nested)
	}
	return false, bindDriverTarget(f, store)
}

// bindDriverTarget points the driver's target at the current base element.
func bindDriverTarget(f *frame, store *Store) error {
	base, _ := store.Get(f.spec.Base)
	if base == nil {
		return domain.PlanInvalidf("loop base %q has no value", f.spec.Base)
	}
	sub, err := base.Sub(reference.Coord{f.spec.Axis: f.iteration})
	if err != nil {
		return err
	}
	store.Put(f.driver.inf.Target, sub, StatusDone)
	return nil
}

func frameBaseSize(f *frame, store *Store) (int, error) {
	base, _ := store.Get(f.spec.Base)
	if base == nil {
		return 0, domain.PlanInvalidf("loop base %q has no value", f.spec.Base)
	}
	return base.AxisSize(f.spec.Axis)
}

// settleFrameSkipped closes a frame that never ran: the driver target and
// every fresh body target become no-axis skip, carried seeds stay as they
// are, and the body settles as skipped so sequencing is not held up.
func settleFrameSkipped(f *frame, store *Store) {
	f.open = false
	f.closed = true
	store.MergeNothing(f.driver.inf.Target, StatusDone)
	for _, u := range unitsUnder(f) {
		u.outcome = outcomeSkipped
		store.MergeNothing(u.inf.Target, StatusDone)
	}
	for _, nested := range f.nested {
		nested.open = false
		nested.closed = true
	}
}

// resetFrameTree returns a frame and everything nested under it to the
// unopened state, ready for the next enclosing iteration.
func resetFrameTree(f *frame) {
	f.open = false
	f.closed = false
	f.iteration = 0
	f.carries = nil
	for _, nested := range f.nested {
		resetFrameTree(nested)
	}
}

// frameActive reports whether every frame enclosing a unit is open, i.e.
// the unit's scope is currently iterating.
func frameActive(f *frame) bool {
	for ; f != nil; f = f.parent {
		if !f.open {
			return false
		}
	}
	return true
}

// frameQuiescent reports whether an open frame has finished its current
// iteration: every body unit settled and every nested frame closed.
func frameQuiescent(f *frame) bool {
	for _, u := range unitsUnder(f) {
		if !u.outcome.settled() {
			return false
		}
	}
	for _, nested := range f.nested {
		if !nested.closed {
			return false
		}
	}
	return true
}

// carryFor resolves a loop-relative read against the innermost enclosing
// frame that carries the concept.
func carryFor(f *frame, name string) *carry {
	for ; f != nil; f = f.parent {
		if c, ok := f.carries[name]; ok {
			return c
		}
	}
	return nil
}
