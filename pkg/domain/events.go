package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventRunStarted        EventType = "run_started"
	EventRunFinished       EventType = "run_finished"
	EventInferenceStarted  EventType = "inference_started"
	EventInferenceFinished EventType = "inference_finished"
	EventInferenceFailed   EventType = "inference_failed"
	EventInferenceRetried  EventType = "inference_retried"
	EventInferenceSkipped  EventType = "inference_skipped"
	EventConceptResolved   EventType = "concept_resolved"
	EventLoopIteration     EventType = "loop_iteration"
	EventCheckpointSaved   EventType = "checkpoint_saved"
	EventPositionCancelled EventType = "position_cancelled"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
}

// InferenceEvent reports one inference starting, finishing, failing or
// being skipped by its gate. Shape and Sample describe the produced value
// on success; FailureKind classifies the error on failure.
type InferenceEvent struct {
	EventBase
	Position    FlowPosition `json:"position"`
	Target      string       `json:"target"`
	Op          OperatorKind `json:"op"`
	Outcome     string       `json:"outcome,omitempty"`
	Shape       []int        `json:"shape,omitempty"`
	Sample      string       `json:"sample,omitempty"`
	FailureKind string       `json:"failure_kind,omitempty"`
	Attempt     int          `json:"attempt,omitempty"`
}

// LoopEvent reports a loop frame advancing to a new iteration.
type LoopEvent struct {
	EventBase
	Position  FlowPosition `json:"position"`
	Base      string       `json:"base"`
	Iteration int          `json:"iteration"`
}

// ConceptEvent reports a concept's value settling.
type ConceptEvent struct {
	EventBase
	Concept string `json:"concept"`
	Shape   []int  `json:"shape,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
}

// RunEvent brackets a whole run; on finish Err carries the failure text.
// Checkpoint events reuse it with Snapshot set to the stored ID.
type RunEvent struct {
	EventBase
	Plan     string `json:"plan"`
	Err      string `json:"err,omitempty"`
	Snapshot string `json:"snapshot,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnRunStarted        func(context.Context, *RunEvent)
	OnRunFinished       func(context.Context, *RunEvent)
	OnInferenceStarted  func(context.Context, *InferenceEvent)
	OnInferenceFinished func(context.Context, *InferenceEvent)
	OnInferenceFailed   func(context.Context, *InferenceEvent)
	OnInferenceRetried  func(context.Context, *InferenceEvent)
	OnInferenceSkipped  func(context.Context, *InferenceEvent)
	OnConceptResolved   func(context.Context, *ConceptEvent)
	OnLoopIteration     func(context.Context, *LoopEvent)
	OnCheckpointSaved   func(context.Context, *RunEvent)
	OnPositionCancelled func(context.Context, *InferenceEvent)
}
