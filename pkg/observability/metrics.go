package observability

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
)

// Metrics collects engine counters and latencies for prometheus scraping.
// Durations pair each inference_started event with the matching finish or
// failure at the same position, so loop re-executions are measured per
// iteration.
type Metrics struct {
	inferences     *prometheus.CounterVec
	retries        prometheus.Counter
	loopIterations prometheus.Counter
	duration       prometheus.Histogram

	mu     sync.Mutex
	starts map[domain.FlowPosition]time.Time
}

// NewMetrics builds the collectors and registers them on reg. A nil reg
// falls back to the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		inferences: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psylens_inferences_total",
				Help: "Inferences executed, labeled by outcome.",
			},
			[]string{"outcome"},
		),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psylens_performer_retries_total",
			Help: "Performer attempts beyond the first.",
		}),
		loopIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psylens_loop_iterations_total",
			Help: "Loop frame iterations advanced.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "psylens_inference_duration_seconds",
			Help:    "Wall-clock inference execution time.",
			Buckets: prometheus.DefBuckets,
		}),
		starts: make(map[domain.FlowPosition]time.Time),
	}
	reg.MustRegister(m.inferences, m.retries, m.loopIterations, m.duration)
	return m
}

// Hooks exposes the collectors as lifecycle hooks. Combine with other hook
// sets via Aggregate.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnInferenceStarted: func(_ context.Context, e *domain.InferenceEvent) {
			m.markStart(e.Position, e.Timestamp)
		},
		OnInferenceFinished: func(_ context.Context, e *domain.InferenceEvent) {
			m.inferences.WithLabelValues("finished").Inc()
			m.observe(e.Position, e.Timestamp)
		},
		OnInferenceFailed: func(_ context.Context, e *domain.InferenceEvent) {
			m.inferences.WithLabelValues("failed").Inc()
			m.observe(e.Position, e.Timestamp)
		},
		OnInferenceSkipped: func(_ context.Context, e *domain.InferenceEvent) {
			m.inferences.WithLabelValues("skipped").Inc()
		},
		OnInferenceRetried: func(_ context.Context, e *domain.InferenceEvent) {
			m.retries.Inc()
		},
		OnLoopIteration: func(_ context.Context, e *domain.LoopEvent) {
			m.loopIterations.Inc()
		},
	}
}

func (m *Metrics) markStart(pos domain.FlowPosition, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts[pos] = at
}

// observe records the elapsed time since the matching start, if one was
// seen. An unmatched finish (a run resumed mid-flight) records nothing.
func (m *Metrics) observe(pos domain.FlowPosition, at time.Time) {
	m.mu.Lock()
	start, ok := m.starts[pos]
	if ok {
		delete(m.starts, pos)
	}
	m.mu.Unlock()
	if ok {
		m.duration.Observe(at.Sub(start).Seconds())
	}
}
