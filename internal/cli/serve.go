package cli

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"

	psylens "github.com/lys5588/NormCode-Psylens-sub002"
	"github.com/lys5588/NormCode-Psylens-sub002/api"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/adapters/httpapi"
	mcpadapter "github.com/lys5588/NormCode-Psylens-sub002/pkg/adapters/mcp"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/observability"
)

// shutdownGrace bounds how long in-flight requests may finish after a
// termination signal.
const shutdownGrace = 5 * time.Second

// ServeOptions carries the configuration of the serve command.
type ServeOptions struct {
	Source    string
	Addr      string
	MCP       string
	Store     string
	RedisAddr string
	LogLevel  string
}

// Serve exposes one plan over HTTP or MCP. Runs start on request, so
// the engine is built eagerly (surfacing plan errors at startup) but
// stays idle until a client asks for execution.
func Serve(opts ServeOptions) error {
	// A server without logs is undebuggable; default to info.
	level := opts.LogLevel
	if level == "" {
		level = "info"
	}
	logger := createLogger(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	broadcaster := httpapi.NewBroadcaster(logger)

	runOpts := RunOptions{
		Source:    opts.Source,
		Store:     opts.Store,
		RedisAddr: opts.RedisAddr,
	}
	engine, cleanup, err := buildEngine(ctx, runOpts, logger, metrics.Hooks(), broadcaster.Hooks())
	if err != nil {
		return err
	}
	defer cleanup()

	switch opts.MCP {
	case "":
		return serveHTTP(ctx, opts.Addr, engine, broadcaster, registry, logger)
	case "stdio":
		logger.Info("mcp server listening on stdio", "plan", engine.Plan().Name)
		srv := mcpadapter.NewServer(engine,
			mcpadapter.WithLogger(logger),
			mcpadapter.WithVersion(psylens.Version),
			mcpadapter.WithRunContext(ctx),
		)
		return srv.ServeStdio()
	case "sse":
		port, err := addrPort(opts.Addr)
		if err != nil {
			return err
		}
		logger.Info("mcp server listening", "transport", "sse", "port", port)
		srv := mcpadapter.NewServer(engine,
			mcpadapter.WithLogger(logger),
			mcpadapter.WithVersion(psylens.Version),
			mcpadapter.WithRunContext(ctx),
		)
		if err := srv.ServeSSE(ctx, port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "mcp sse server")
		}
		return nil
	default:
		return errors.Newf("unknown MCP transport %q (want stdio or sse)", opts.MCP)
	}
}

func serveHTTP(ctx context.Context, addr string, engine *psylens.Engine, b *httpapi.Broadcaster, registry *prometheus.Registry, logger interface {
	Info(msg string, args ...any)
}) error {
	apiSrv := httpapi.NewServer(engine,
		httpapi.WithBroadcaster(b),
		httpapi.WithMetrics(registry),
		httpapi.WithSpec(api.Spec),
		httpapi.WithVersion(psylens.Version),
		httpapi.WithRunContext(ctx),
	)

	srv := &http.Server{Addr: addr, Handler: apiSrv.Handler()}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr, "plan", engine.Plan().Name)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
		logger.Info("shutting down")
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			_ = srv.Close()
			return errors.Wrap(err, "graceful shutdown")
		}
		return nil
	}
}

// addrPort extracts the numeric port from a listen address like
// ":8080" or "127.0.0.1:8080".
func addrPort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, errors.Wrapf(err, "parse listen address %q", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, errors.Wrapf(err, "parse listen address %q", addr)
	}
	return port, nil
}
