package cli

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"

	psylens "github.com/lys5588/NormCode-Psylens-sub002"
	"github.com/lys5588/NormCode-Psylens-sub002/internal/presentation/tui"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
)

// checkpointGrace bounds the final checkpoint write after the run
// context is already cancelled.
const checkpointGrace = 10 * time.Second

// RunSession executes one run of the plan: load, optionally resume,
// run to completion, optionally checkpoint.
func RunSession(opts RunOptions) error {
	logger := createLogger(opts.LogLevel)
	jsonOut := opts.Output == "json"
	tty := isTerminal(os.Stdout)

	if opts.Interactive && !isTerminal(os.Stdin) {
		return errors.New("--interactive needs a terminal on stdin")
	}
	if !jsonOut && tty {
		tui.PrintBanner()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The runner doubles as the progress surface: its hooks print
	// inference events as they settle, then Run appends the report.
	var runner *psylens.Runner
	var hooks []domain.LifecycleHooks
	if !jsonOut {
		runner = psylens.NewRunner(os.Stdout)
		if tty {
			runner.Renderer = tui.NewRenderer()
		}
		hooks = append(hooks, runner.Hooks())
	}

	engine, cleanup, err := buildEngine(ctx, opts, logger, hooks...)
	if err != nil {
		return err
	}
	defer cleanup()

	if opts.Resume != "" {
		if err := engine.Resume(ctx, opts.Resume); err != nil {
			return err
		}
		if !jsonOut {
			printSystemMessage("Resumed checkpoint '%s'.", opts.Resume)
		}
	}

	var runErr error
	if runner != nil {
		runErr = runner.Run(ctx, engine)
	} else {
		runErr = engine.Run(ctx)
	}

	// An interrupted run still checkpoints: saving the settled prefix is
	// what makes Ctrl+C recoverable. The write gets its own deadline
	// since ctx is already dead at that point.
	var saved *domain.RunSnapshot
	if opts.Checkpoint {
		cpCtx, cancel := context.WithTimeout(context.Background(), checkpointGrace)
		defer cancel()
		snap, err := engine.Checkpoint(cpCtx)
		if err != nil {
			return errors.CombineErrors(runErr, err)
		}
		saved = snap
	}

	if jsonOut {
		snap := saved
		if snap == nil {
			if snap, err = engine.State(ctx); err != nil {
				return errors.CombineErrors(runErr, err)
			}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return errors.CombineErrors(runErr, err)
		}
	}

	return handleExecutionError(runErr)
}
