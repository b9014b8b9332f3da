package domain

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/reference"
)

// ConceptSnapshot is one concept's captured state. Functional concepts are
// captured status-only (their callable elements are rebuilt from the plan on
// resume), so Value may be nil even when Status is done.
type ConceptSnapshot struct {
	Status string               `json:"status"`
	Value  *reference.Reference `json:"value,omitempty"`
}

// CarrySnapshot holds the loop-relative versions of one carried concept
// inside a frame.
type CarrySnapshot struct {
	Initial  *reference.Reference `json:"initial,omitempty"`
	Previous *reference.Reference `json:"previous,omitempty"`
}

// FrameSnapshot captures one active loop frame.
type FrameSnapshot struct {
	Position  FlowPosition             `json:"position"`
	Base      string                   `json:"base"`
	Axis      string                   `json:"axis"`
	Iteration int                      `json:"iteration"`
	Carries   map[string]CarrySnapshot `json:"carries,omitempty"`
}

// RunSnapshot is the JSON-serializable checkpoint of a run: concept values
// and statuses, alias bindings, per-inference unit states, computed keys and
// the loop frame stack. It pairs with the plan that produced it; resuming
// against a different plan is undefined.
type RunSnapshot struct {
	ID        string                     `json:"id"`
	RunID     string                     `json:"run_id"`
	Plan      string                     `json:"plan"`
	ParentID  string                     `json:"parent_id,omitempty"`
	CreatedAt time.Time                  `json:"created_at"`
	Concepts  map[string]ConceptSnapshot `json:"concepts"`
	Aliases   map[string]string          `json:"aliases,omitempty"`
	Units     map[string]string          `json:"units"`
	Computed  []string                   `json:"computed,omitempty"`
	Frames    []FrameSnapshot            `json:"frames,omitempty"`
}

// SnapshotInfo is the listing view of a stored snapshot.
type SnapshotInfo struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Plan      string    `json:"plan"`
	ParentID  string    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Info returns the listing view of s.
func (s *RunSnapshot) Info() SnapshotInfo {
	return SnapshotInfo{ID: s.ID, RunID: s.RunID, Plan: s.Plan, ParentID: s.ParentID, CreatedAt: s.CreatedAt}
}

// Clone deep-copies the snapshot through its JSON form.
func (s *RunSnapshot) Clone() (*RunSnapshot, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "clone snapshot")
	}
	var out RunSnapshot
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "clone snapshot")
	}
	return &out, nil
}

// ForkFrom derives an independent copy under a new snapshot and run
// identity, recording s as its parent.
func (s *RunSnapshot) ForkFrom(id, runID string) (*RunSnapshot, error) {
	out, err := s.Clone()
	if err != nil {
		return nil, err
	}
	out.ID = id
	out.RunID = runID
	out.ParentID = s.ID
	out.CreatedAt = time.Now().UTC()
	return out, nil
}
