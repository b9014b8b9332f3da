// Package httpapi serves one plan run over HTTP: liveness, the plan
// document, run control, a lifecycle event stream and Prometheus metrics.
// The contract lives in api/openapi.yaml.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"github.com/lys5588/NormCode-Psylens-sub002/internal/logging"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/plan"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/ports"
)

// Run phases reported by GET /api/run.
const (
	PhaseIdle     = "idle"
	PhaseRunning  = "running"
	PhaseFinished = "finished"
	PhaseFailed   = "failed"
)

// RunStatus is the GET /api/run response body.
type RunStatus struct {
	Phase    string              `json:"phase"`
	Error    string              `json:"error,omitempty"`
	Snapshot *domain.RunSnapshot `json:"snapshot,omitempty"`
}

// Server drives one ports.RunController over HTTP.
type Server struct {
	controller ports.RunController
	streams    *Broadcaster
	logger     *slog.Logger
	gatherer   prometheus.Gatherer
	spec       []byte
	version    string
	runCtx     context.Context

	stateMu sync.Mutex
	phase   string
	runErr  error
}

// Option customizes the server.
type Option func(*Server)

// WithBroadcaster attaches an event broadcaster whose Hooks are wired
// into the engine. Without one the event stream stays silent.
func WithBroadcaster(b *Broadcaster) Option {
	return func(s *Server) { s.streams = b }
}

// WithLogger sets the request and lifecycle logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics serves /metrics from g instead of the default registry.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithSpec serves the OpenAPI document on /openapi.yaml plus a Swagger UI
// on /swagger.
func WithSpec(spec []byte) Option {
	return func(s *Server) { s.spec = spec }
}

// WithVersion reports v from /api/info.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithRunContext sets the context the run detaches onto when POST
// /api/run launches it. Cancel it to abort the run.
func WithRunContext(ctx context.Context) Option {
	return func(s *Server) { s.runCtx = ctx }
}

// NewServer builds a server around one run controller.
func NewServer(controller ports.RunController, opts ...Option) *Server {
	s := &Server{
		controller: controller,
		logger:     logging.NewNop(),
		gatherer:   prometheus.DefaultGatherer,
		version:    "dev",
		runCtx:     context.Background(),
		phase:      PhaseIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.streams == nil {
		s.streams = NewBroadcaster(s.logger)
	}
	return s
}

// NewHandler is the one-call form of NewServer().Handler().
func NewHandler(controller ports.RunController, opts ...Option) http.Handler {
	return NewServer(controller, opts...).Handler()
}

// Handler returns the routed handler wrapped in request logging and CORS.
func (s *Server) Handler() http.Handler {
	return enableCORS(logRequests(s.logger, s.routes()))
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/api/info", s.handleInfo)
	r.Get("/api/plan", s.handlePlan)
	r.Get("/api/run", s.handleRunStatus)
	r.Post("/api/run", s.handleRunStart)
	r.Post("/api/run/cancel", s.handleCancel)
	r.Get("/api/events", s.handleEvents)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	if len(s.spec) > 0 {
		r.Get("/openapi.yaml", s.handleSpec)
		r.Get("/swagger", s.handleSwagger)
	}
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":         "psylens-http",
		"version":     s.version,
		"api_version": apiVersion(s.spec),
	})
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	doc, err := plan.Encode(s.controller.Plan())
	if err != nil {
		http.Error(w, fmt.Sprintf("encode plan: %v", err), http.StatusInternalServerError)
		s.logger.Error("plan encode failed", "err", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(doc)
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	s.stateMu.Lock()
	status := RunStatus{Phase: s.phase}
	if s.runErr != nil {
		status.Error = s.runErr.Error()
	}
	s.stateMu.Unlock()

	snap, err := s.controller.State(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("capture state: %v", err), http.StatusInternalServerError)
		s.logger.Error("state capture failed", "err", err)
		return
	}
	status.Snapshot = snap

	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleRunStart(w http.ResponseWriter, r *http.Request) {
	s.stateMu.Lock()
	if s.phase != PhaseIdle {
		phase := s.phase
		s.stateMu.Unlock()
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": "run already " + phase})
		return
	}
	s.phase = PhaseRunning
	s.stateMu.Unlock()

	go s.run()

	s.writeJSON(w, http.StatusAccepted, RunStatus{Phase: PhaseRunning})
}

// run executes the plan on the server's own context; the launching
// request is long gone by the time the run settles.
func (s *Server) run() {
	err := s.controller.Run(s.runCtx)

	s.stateMu.Lock()
	s.runErr = err
	if err != nil {
		s.phase = PhaseFailed
	} else {
		s.phase = PhaseFinished
	}
	s.stateMu.Unlock()

	if err != nil {
		s.logger.Error("run failed", "err", err)
	} else {
		s.logger.Info("run finished")
	}
}

type cancelRequest struct {
	Position string `json:"position"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var body cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		s.logger.Warn("cancel: invalid request body", "err", err)
		return
	}
	if body.Position == "" {
		http.Error(w, "position is required", http.StatusBadRequest)
		return
	}

	if err := s.controller.Cancel(domain.FlowPosition(body.Position)); err != nil {
		if errors.Is(err, domain.ErrPlanInvalid) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("cancel: %v", err), http.StatusInternalServerError)
		s.logger.Error("cancel failed", "position", body.Position, "err", err)
		return
	}

	s.logger.Info("position cancelled", "position", body.Position)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "position": body.Position})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		s.logger.Error("events: streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Optional ?watch=a,b filter keeps only the named event types.
	var watch map[string]bool
	if raw := r.URL.Query().Get("watch"); raw != "" {
		watch = make(map[string]bool)
		for _, t := range strings.Split(raw, ",") {
			watch[strings.TrimSpace(t)] = true
		}
	}

	ch, cancel := s.streams.Subscribe()
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("sse client disconnected")
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if watch != nil && !watch[evt.Type] {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, evt.Data)
			flusher.Flush()
		}
	}
}

func (s *Server) handleSpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/yaml")
	w.Write(s.spec)
}

func (s *Server) handleSwagger(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(swaggerHTML))
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

// apiVersion pulls info.version out of the served OpenAPI document.
func apiVersion(spec []byte) string {
	if len(spec) == 0 {
		return "unknown"
	}
	var doc struct {
		Info struct {
			Version string `yaml:"version"`
		} `yaml:"info"`
	}
	if err := yaml.Unmarshal(spec, &doc); err != nil || doc.Info.Version == "" {
		return "unknown"
	}
	return doc.Info.Version
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Psylens API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`
