// Package mcp exposes a plan run to MCP clients: tools to inspect the
// plan, launch the run, poll its status and cancel positions, plus the
// plan document as a resource. Stdio and SSE transports are supported.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lys5588/NormCode-Psylens-sub002/internal/logging"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/plan"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/ports"
)

// Run phases reported by the run_status tool.
const (
	phaseIdle     = "idle"
	phaseRunning  = "running"
	phaseFinished = "finished"
	phaseFailed   = "failed"
)

// StatusResult is the structured output of run_plan and run_status.
type StatusResult struct {
	Phase    string              `json:"phase" jsonschema_description:"idle, running, finished or failed"`
	Error    string              `json:"error,omitempty" jsonschema_description:"Failure text when the phase is failed"`
	Snapshot *domain.RunSnapshot `json:"snapshot,omitempty" jsonschema_description:"Point-in-time run snapshot"`
}

// CancelResult is the structured output of cancel_position.
type CancelResult struct {
	Status   string `json:"status"`
	Position string `json:"position"`
}

// Server wraps one run controller and exposes it as an MCP server.
type Server struct {
	controller ports.RunController
	logger     *slog.Logger
	mcpServer  *server.MCPServer
	runCtx     context.Context
	version    string

	mu     sync.Mutex
	phase  string
	runErr error
}

// Option customizes the server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVersion reports v as the server version during the MCP handshake.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithRunContext sets the context the run detaches onto when run_plan
// launches it. Cancel it to abort the run.
func WithRunContext(ctx context.Context) Option {
	return func(s *Server) { s.runCtx = ctx }
}

// NewServer builds an MCP server around one run controller.
func NewServer(controller ports.RunController, opts ...Option) *Server {
	s := &Server{
		controller: controller,
		logger:     logging.NewNop(),
		runCtx:     context.Background(),
		version:    "dev",
		phase:      phaseIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mcpServer = server.NewMCPServer("psylens-mcp", s.version)
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and blocks until
// ctx is cancelled or the listener fails.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("mcp server listening (sse)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("shutting down mcp server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "stop mcp server")
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: inspect_plan
	s.mcpServer.AddTool(mcp.NewTool("inspect_plan",
		mcp.WithDescription("Get the plan definition, or one concept's current value when concept is given."),
		mcp.WithString("concept", mcp.Description("Concept name to inspect (optional)")),
	), s.handleInspectPlan)

	// TOOL: run_plan
	runTool := mcp.NewTool("run_plan",
		mcp.WithDescription("Launch the plan run. One run per server; poll run_status for progress."),
		mcp.WithOutputSchema[StatusResult](),
	)
	s.mcpServer.AddTool(runTool, mcp.NewStructuredToolHandler(s.handleRunPlan))

	// TOOL: run_status
	statusTool := mcp.NewTool("run_status",
		mcp.WithDescription("Report the run phase plus a point-in-time snapshot."),
		mcp.WithOutputSchema[StatusResult](),
	)
	s.mcpServer.AddTool(statusTool, mcp.NewStructuredToolHandler(s.handleRunStatus))

	// TOOL: cancel_position
	cancelTool := mcp.NewTool("cancel_position",
		mcp.WithDescription("Cancel the inference at one position; its target resolves skip and downstream proceeds."),
		mcp.WithString("position", mcp.Required(), mcp.Description("Flow position, e.g. \"1.2\"")),
		mcp.WithOutputSchema[CancelResult](),
	)
	s.mcpServer.AddTool(cancelTool, mcp.NewStructuredToolHandler(s.handleCancelPosition))
}

func (s *Server) handleInspectPlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if name := request.GetString("concept", ""); name != "" {
		ref, err := s.controller.Inspect(name)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("inspect %s: %v", name, err)), nil
		}
		jsonBytes, err := json.Marshal(ref)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("render %s: %v", name, err)), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	}

	doc, err := plan.Encode(s.controller.Plan())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode plan: %v", err)), nil
	}
	return mcp.NewToolResultText(string(doc)), nil
}

func (s *Server) handleRunPlan(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (StatusResult, error) {
	s.mu.Lock()
	if s.phase != phaseIdle {
		phase := s.phase
		s.mu.Unlock()
		return StatusResult{}, errors.Newf("run already %s", phase)
	}
	s.phase = phaseRunning
	s.mu.Unlock()

	go s.run()

	return StatusResult{Phase: phaseRunning}, nil
}

// run executes the plan on the server's own context; the tool call that
// launched it returns immediately.
func (s *Server) run() {
	err := s.controller.Run(s.runCtx)

	s.mu.Lock()
	s.runErr = err
	if err != nil {
		s.phase = phaseFailed
	} else {
		s.phase = phaseFinished
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("run failed", "err", err)
	} else {
		s.logger.Info("run finished")
	}
}

func (s *Server) handleRunStatus(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (StatusResult, error) {
	s.mu.Lock()
	result := StatusResult{Phase: s.phase}
	if s.runErr != nil {
		result.Error = s.runErr.Error()
	}
	s.mu.Unlock()

	snap, err := s.controller.State(ctx)
	if err != nil {
		return StatusResult{}, errors.Wrap(err, "capture state")
	}
	result.Snapshot = snap

	return result, nil
}

func (s *Server) handleCancelPosition(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (CancelResult, error) {
	position, _ := args["position"].(string)
	if position == "" {
		return CancelResult{}, errors.New("position is required")
	}

	if err := s.controller.Cancel(domain.FlowPosition(position)); err != nil {
		return CancelResult{}, err
	}

	s.logger.Info("position cancelled", "position", position)
	return CancelResult{Status: "cancelled", Position: position}, nil
}

func (s *Server) registerResources() {
	// EXPOSE: psylens://plan
	s.mcpServer.AddResource(mcp.NewResource("psylens://plan", "Plan Definition",
		mcp.WithMIMEType("application/json"),
	), s.handlePlanResource)
}

func (s *Server) handlePlanResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	doc, err := plan.Encode(s.controller.Plan())
	if err != nil {
		return nil, errors.Wrap(err, "encode plan")
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "psylens://plan",
			MIMEType: "application/json",
			Text:     string(doc),
		},
	}, nil
}
