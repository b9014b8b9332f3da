package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lys5588/NormCode-Psylens-sub002/api"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/plan"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/reference"
)

const stubPlanYAML = `
name: review
concepts:
  - {name: greeting, type: entity, ground: hello}
  - {name: echoed, type: entity}
inferences:
  - {position: "1", target: echoed, op: {kind: identity}, values: [greeting]}
`

func stubPlan(t *testing.T) *domain.Plan {
	t.Helper()
	p, err := plan.DecodeYAML([]byte(stubPlanYAML))
	require.NoError(t, err)
	return p
}

// stubController fakes the engine behind the server.
type stubController struct {
	plan *domain.Plan

	mu        sync.Mutex
	runs      int
	runErr    error
	runDelay  time.Duration
	stateErr  error
	cancelled []domain.FlowPosition
}

func (c *stubController) Plan() *domain.Plan { return c.plan }

func (c *stubController) Run(ctx context.Context) error {
	c.mu.Lock()
	c.runs++
	delay := c.runDelay
	err := c.runErr
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func (c *stubController) State(ctx context.Context) (*domain.RunSnapshot, error) {
	if c.stateErr != nil {
		return nil, c.stateErr
	}
	return &domain.RunSnapshot{ID: "snap-1", RunID: "run-1", Plan: c.plan.Name}, nil
}

func (c *stubController) Inspect(concept string) (*reference.Reference, error) {
	return reference.Scalar("hello"), nil
}

func (c *stubController) Cancel(pos domain.FlowPosition) error {
	if pos != "1" {
		return domain.PlanInvalidf("no inference at %s", pos)
	}
	c.mu.Lock()
	c.cancelled = append(c.cancelled, pos)
	c.mu.Unlock()
	return nil
}

func doRequest(h http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandler_Health(t *testing.T) {
	h := NewHandler(&stubController{plan: stubPlan(t)})

	w := doRequest(h, http.MethodGet, "/healthz", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandler_Info(t *testing.T) {
	h := NewHandler(&stubController{plan: stubPlan(t)},
		WithVersion("1.2.3"),
		WithSpec(api.Spec),
	)

	w := doRequest(h, http.MethodGet, "/api/info", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "psylens-http", body["app"])
	assert.Equal(t, "1.2.3", body["version"])
	assert.Equal(t, "0.1.0", body["api_version"])
}

func TestHandler_PlanDocument(t *testing.T) {
	h := NewHandler(&stubController{plan: stubPlan(t)})

	w := doRequest(h, http.MethodGet, "/api/plan", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	roundTripped, err := plan.Decode(w.Body.Bytes())
	require.NoError(t, err, "the served document must stay decodable")
	assert.Equal(t, "review", roundTripped.Name)
	assert.NotNil(t, roundTripped.Concept("greeting"))
}

func TestHandler_RunLifecycle(t *testing.T) {
	ctrl := &stubController{plan: stubPlan(t)}
	h := NewHandler(ctrl)

	w := doRequest(h, http.MethodPost, "/api/run", nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		var status RunStatus
		resp := doRequest(h, http.MethodGet, "/api/run", nil)
		if err := json.Unmarshal(resp.Body.Bytes(), &status); err != nil {
			return false
		}
		return status.Phase == PhaseFinished
	}, 2*time.Second, 10*time.Millisecond, "run should settle")

	again := doRequest(h, http.MethodPost, "/api/run", nil)
	assert.Equal(t, http.StatusConflict, again.Code)
	assert.Contains(t, again.Body.String(), "run already")

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	assert.Equal(t, 1, ctrl.runs, "a conflicting start must not launch a second run")
}

func TestHandler_RunFailure(t *testing.T) {
	ctrl := &stubController{plan: stubPlan(t), runErr: errors.New("collaborator exploded")}
	h := NewHandler(ctrl)

	w := doRequest(h, http.MethodPost, "/api/run", nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		var status RunStatus
		resp := doRequest(h, http.MethodGet, "/api/run", nil)
		if err := json.Unmarshal(resp.Body.Bytes(), &status); err != nil {
			return false
		}
		return status.Phase == PhaseFailed && strings.Contains(status.Error, "collaborator exploded")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_RunStatusIncludesSnapshot(t *testing.T) {
	h := NewHandler(&stubController{plan: stubPlan(t)})

	w := doRequest(h, http.MethodGet, "/api/run", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var status RunStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, PhaseIdle, status.Phase)
	require.NotNil(t, status.Snapshot)
	assert.Equal(t, "run-1", status.Snapshot.RunID)
}

func TestHandler_StateErrorSurfaces(t *testing.T) {
	h := NewHandler(&stubController{plan: stubPlan(t), stateErr: errors.New("store offline")})

	w := doRequest(h, http.MethodGet, "/api/run", nil)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "store offline")
}

func TestHandler_CancelPosition(t *testing.T) {
	t.Run("Known Position", func(t *testing.T) {
		ctrl := &stubController{plan: stubPlan(t)}
		h := NewHandler(ctrl)

		w := doRequest(h, http.MethodPost, "/api/run/cancel", strings.NewReader(`{"position":"1"}`))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "cancelled")
		ctrl.mu.Lock()
		defer ctrl.mu.Unlock()
		assert.Equal(t, []domain.FlowPosition{"1"}, ctrl.cancelled)
	})

	t.Run("Unknown Position", func(t *testing.T) {
		h := NewHandler(&stubController{plan: stubPlan(t)})

		w := doRequest(h, http.MethodPost, "/api/run/cancel", strings.NewReader(`{"position":"9"}`))

		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "no inference at 9")
	})

	t.Run("Malformed Body", func(t *testing.T) {
		h := NewHandler(&stubController{plan: stubPlan(t)})

		w := doRequest(h, http.MethodPost, "/api/run/cancel", strings.NewReader(`{`))

		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Missing Position", func(t *testing.T) {
		h := NewHandler(&stubController{plan: stubPlan(t)})

		w := doRequest(h, http.MethodPost, "/api/run/cancel", strings.NewReader(`{}`))

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "position is required")
	})
}

// streamRequest runs an SSE subscription until cancel is called and
// returns everything the handler wrote.
func streamRequest(t *testing.T, h http.Handler, target string, during func()) string {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		h.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond) // let the subscription register
	during()
	time.Sleep(50 * time.Millisecond) // let frames flush

	cancel()
	<-done

	return w.Body.String()
}

func TestHandler_EventsStream(t *testing.T) {
	b := NewBroadcaster(nil)
	h := NewHandler(&stubController{plan: stubPlan(t)}, WithBroadcaster(b))
	hooks := b.Hooks()

	out := streamRequest(t, h, "/api/events", func() {
		hooks.OnInferenceFinished(context.Background(), &domain.InferenceEvent{
			EventBase: domain.EventBase{Type: domain.EventInferenceFinished, RunID: "run-1"},
			Position:  "1",
			Target:    "greeting",
			Outcome:   "finished",
		})
	})

	assert.Contains(t, out, "event: ping")
	assert.Contains(t, out, "event: inference_finished")
	assert.Contains(t, out, `"position":"1"`)
}

func TestHandler_EventsFilter(t *testing.T) {
	b := NewBroadcaster(nil)
	h := NewHandler(&stubController{plan: stubPlan(t)}, WithBroadcaster(b))
	hooks := b.Hooks()

	out := streamRequest(t, h, "/api/events?watch=run_finished", func() {
		hooks.OnInferenceStarted(context.Background(), &domain.InferenceEvent{Position: "1"})
		hooks.OnRunFinished(context.Background(), &domain.RunEvent{Plan: "review"})
	})

	assert.Contains(t, out, "event: run_finished")
	assert.NotContains(t, out, "event: inference_started")
}

func TestHandler_CORS(t *testing.T) {
	h := NewHandler(&stubController{plan: stubPlan(t)})

	w := doRequest(h, http.MethodOptions, "/api/run", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandler_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	ticks := prometheus.NewCounter(prometheus.CounterOpts{Name: "psylens_test_ticks_total", Help: "Test ticks."})
	reg.MustRegister(ticks)
	ticks.Inc()

	h := NewHandler(&stubController{plan: stubPlan(t)}, WithMetrics(reg))

	w := doRequest(h, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "psylens_test_ticks_total 1")
}

func TestHandler_ServesSpecAndSwagger(t *testing.T) {
	t.Run("With Spec", func(t *testing.T) {
		h := NewHandler(&stubController{plan: stubPlan(t)}, WithSpec(api.Spec))

		spec := doRequest(h, http.MethodGet, "/openapi.yaml", nil)
		require.Equal(t, http.StatusOK, spec.Code)
		assert.Contains(t, spec.Body.String(), "openapi: 3.0.3")

		ui := doRequest(h, http.MethodGet, "/swagger", nil)
		require.Equal(t, http.StatusOK, ui.Code)
		assert.Contains(t, ui.Body.String(), "swagger-ui")
	})

	t.Run("Without Spec", func(t *testing.T) {
		h := NewHandler(&stubController{plan: stubPlan(t)})

		w := doRequest(h, http.MethodGet, "/openapi.yaml", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
