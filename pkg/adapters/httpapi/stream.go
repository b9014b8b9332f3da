package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/lys5588/NormCode-Psylens-sub002/internal/logging"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
)

// Event is one server-sent frame: the lifecycle event type plus the event
// rendered as JSON.
type Event struct {
	Type string
	Data string
}

// Broadcaster fans lifecycle events out to subscribed SSE clients. Wire
// Hooks into the engine and hand the broadcaster to the server.
type Broadcaster struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewBroadcaster builds an empty broadcaster. A nil logger silences the
// slow-client warnings.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Broadcaster{
		logger: logger,
		subs:   make(map[chan Event]struct{}),
	}
}

// Subscribe registers a client. Call the returned cancel func when the
// client goes away.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 16)
	b.subs[ch] = struct{}{}

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}
}

func (b *Broadcaster) broadcast(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
			// Drop the frame if the client's buffer is full.
			b.logger.Warn("sse client buffer full, dropping event", "event", evt.Type)
		}
	}
}

func (b *Broadcaster) publish(t domain.EventType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	b.broadcast(Event{Type: string(t), Data: string(data)})
}

// Hooks returns lifecycle hooks that feed the broadcaster. Combine them
// with other hook sets through observability.Aggregate.
func (b *Broadcaster) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunStarted:        func(_ context.Context, e *domain.RunEvent) { b.publish(domain.EventRunStarted, e) },
		OnRunFinished:       func(_ context.Context, e *domain.RunEvent) { b.publish(domain.EventRunFinished, e) },
		OnInferenceStarted:  func(_ context.Context, e *domain.InferenceEvent) { b.publish(domain.EventInferenceStarted, e) },
		OnInferenceFinished: func(_ context.Context, e *domain.InferenceEvent) { b.publish(domain.EventInferenceFinished, e) },
		OnInferenceFailed:   func(_ context.Context, e *domain.InferenceEvent) { b.publish(domain.EventInferenceFailed, e) },
		OnInferenceRetried:  func(_ context.Context, e *domain.InferenceEvent) { b.publish(domain.EventInferenceRetried, e) },
		OnInferenceSkipped:  func(_ context.Context, e *domain.InferenceEvent) { b.publish(domain.EventInferenceSkipped, e) },
		OnConceptResolved:   func(_ context.Context, e *domain.ConceptEvent) { b.publish(domain.EventConceptResolved, e) },
		OnLoopIteration:     func(_ context.Context, e *domain.LoopEvent) { b.publish(domain.EventLoopIteration, e) },
		OnCheckpointSaved:   func(_ context.Context, e *domain.RunEvent) { b.publish(domain.EventCheckpointSaved, e) },
		OnPositionCancelled: func(_ context.Context, e *domain.InferenceEvent) { b.publish(domain.EventPositionCancelled, e) },
	}
}
