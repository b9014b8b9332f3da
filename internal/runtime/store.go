package runtime

import (
	"sync"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/reference"
)

// Status tracks a concept's resolution within the current run.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusAborted Status = "aborted"
)

// Resolved reports whether downstream inferences may read the concept.
// Failed and aborted concepts resolve too; their values carry skip.
func (s Status) Resolved() bool {
	return s == StatusDone || s == StatusFailed || s == StatusAborted
}

type conceptState struct {
	ref    *reference.Reference
	status Status
}

// Store holds every concept's current value and status for one run. Loop
// frames keep their own previous/initial carries; the store always reflects
// "now". All access goes through the orchestrator's bookkeeping loop plus
// read-only inspection, hence the lock.
type Store struct {
	mu      sync.RWMutex
	states  map[string]*conceptState
	aliases map[string]string
}

func NewStore() *Store {
	return &Store{
		states:  make(map[string]*conceptState),
		aliases: make(map[string]string),
	}
}

// Register creates the pending state for a concept if absent.
func (s *Store) Register(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	canon := s.canonical(name)
	if _, ok := s.states[canon]; !ok {
		s.states[canon] = &conceptState{status: StatusPending}
	}
}

// Alias binds name to target so both read and write one underlying state.
func (s *Store) Alias(name, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	canonTarget := s.canonical(target)
	if canonTarget == name {
		return domain.PlanInvalidf("identity cycle between %q and %q", name, target)
	}
	s.aliases[name] = canonTarget
	delete(s.states, name)
	if _, ok := s.states[canonTarget]; !ok {
		s.states[canonTarget] = &conceptState{status: StatusPending}
	}
	return nil
}

// Canonical resolves alias chains to the owning concept name.
func (s *Store) Canonical(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.canonical(name)
}

func (s *Store) canonical(name string) string {
	seen := 0
	for {
		next, ok := s.aliases[name]
		if !ok {
			return name
		}
		name = next
		if seen++; seen > len(s.aliases) {
			return name
		}
	}
}

// Get returns the concept's current value and status.
func (s *Store) Get(name string) (*reference.Reference, Status) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[s.canonical(name)]
	if !ok {
		return nil, StatusPending
	}
	return st.ref, st.status
}

// Status returns the concept's status.
func (s *Store) Status(name string) Status {
	_, status := s.Get(name)
	return status
}

// Put sets the concept's value and status outright.
func (s *Store) Put(name string, ref *reference.Reference, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	canon := s.canonical(name)
	s.states[canon] = &conceptState{ref: ref, status: status}
}

// Merge folds a produced reference into the concept under the
// first-non-skip rule: where the contribution is concrete it wins, where it
// is skip the existing element survives. A contribution with a different
// shape replaces the value unless it is entirely skip. The concept resolves
// done.
func (s *Store) Merge(name string, out *reference.Reference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	canon := s.canonical(name)
	st, ok := s.states[canon]
	if !ok {
		st = &conceptState{}
		s.states[canon] = st
	}
	st.ref = mergeRefs(st.ref, out)
	st.status = StatusDone
}

// MergeNothing records that a producer contributed nothing (gate false or
// empty result): an existing value persists untouched, a fresh concept
// resolves as a single skip. The final status is given by the caller
// (done for gated-skip, failed or aborted for broken producers).
func (s *Store) MergeNothing(name string, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	canon := s.canonical(name)
	st, ok := s.states[canon]
	if !ok {
		st = &conceptState{}
		s.states[canon] = st
	}
	if st.ref == nil {
		st.ref = reference.Scalar(reference.SkipValue)
	}
	st.status = status
}

// ResetPending marks the concept pending again while keeping its value, so
// a new iteration can merge over it.
func (s *Store) ResetPending(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	canon := s.canonical(name)
	if st, ok := s.states[canon]; ok {
		st.status = StatusPending
	} else {
		s.states[canon] = &conceptState{status: StatusPending}
	}
}

// Clear drops the concept's value and marks it pending. Used by selective
// re-runs, where stale values must not leak through merges.
func (s *Store) Clear(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[s.canonical(name)] = &conceptState{status: StatusPending}
}

// Names lists every registered canonical concept name.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.states))
	for name := range s.states {
		names = append(names, name)
	}
	return names
}

// Aliases returns a copy of the alias bindings.
func (s *Store) Aliases() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.aliases))
	for k, v := range s.aliases {
		out[k] = v
	}
	return out
}

// mergeRefs implements the first-non-skip merge. old may be nil.
func mergeRefs(old, out *reference.Reference) *reference.Reference {
	if out == nil {
		return old
	}
	if old == nil {
		return out
	}
	if !sameGrid(old, out) {
		if out.IsAllSkip() {
			return old
		}
		return out
	}
	merged := old.Copy()
	out.Each(func(c reference.Coord, e reference.Element) bool {
		if !e.IsSkip() {
			_ = merged.Set(c, e)
		}
		return true
	})
	return merged
}

// sameGrid reports whether two references address the same coordinate set:
// identical non-degenerate axis names and sizes, order aside.
func sameGrid(a, b *reference.Reference) bool {
	am := make(map[string]int)
	for _, ax := range a.Axes() {
		if !ax.IsDegenerate() {
			am[ax.Name] = ax.Size
		}
	}
	bm := make(map[string]int)
	for _, ax := range b.Axes() {
		if !ax.IsDegenerate() {
			bm[ax.Name] = ax.Size
		}
	}
	if len(am) != len(bm) {
		return false
	}
	for name, size := range am {
		if bm[name] != size {
			return false
		}
	}
	return true
}
