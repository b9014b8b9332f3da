package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"

	psylens "github.com/lys5588/NormCode-Psylens-sub002"
	"github.com/lys5588/NormCode-Psylens-sub002/internal/presentation/tui"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
)

// settleDelay lets the filesystem finish a save burst before reloading.
const settleDelay = 100 * time.Millisecond

// RunWatch reruns the plan on every source change until interrupted.
// Each iteration loads a fresh engine, so edits to concepts, paradigms
// and inferences all take effect.
func RunWatch(opts RunOptions) error {
	logger := createLogger(opts.LogLevel)
	if isTerminal(os.Stdout) {
		tui.PrintBanner()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printSystemMessage("Watching '%s'.", opts.Source)

	for {
		again, err := watchIteration(ctx, opts, logger)
		if err != nil {
			return err
		}
		if !again {
			printSystemMessage("Watcher stopped.")
			return nil
		}
		logger.Info("watcher restarting")
	}
}

// watchIteration runs the plan once and waits for the next change. It
// reports whether the watcher should go around again.
func watchIteration(parent context.Context, opts RunOptions, logger *slog.Logger) (bool, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	runner := psylens.NewRunner(os.Stdout)
	if isTerminal(os.Stdout) {
		runner.Renderer = tui.NewRenderer()
	}

	engine, cleanup, err := buildEngine(ctx, opts, logger, runner.Hooks())
	if err != nil {
		return waitForFix(parent, err)
	}
	defer cleanup()

	watchCh, err := engine.Watch(ctx)
	if err != nil {
		return false, errors.Wrap(err, "watch plan source")
	}

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx, engine) }()

	select {
	case <-parent.Done():
		cancel()
		<-done
		return false, nil

	case _, ok := <-watchCh:
		cancel()
		<-done
		if !ok {
			return false, nil
		}
		printSystemMessage("Change detected; rerunning.")
		time.Sleep(settleDelay)
		return true, nil

	case err := <-done:
		if err != nil && !isInterrupted(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		printSystemMessage("Waiting for changes...")
		select {
		case <-parent.Done():
			return false, nil
		case _, ok := <-watchCh:
			if !ok {
				return false, nil
			}
			printSystemMessage("Change detected; rerunning.")
			time.Sleep(settleDelay)
			return true, nil
		}
	}
}

// waitForFix holds the watcher open while the operator repairs a plan
// that no longer loads. Without a working loader there is nothing to
// watch, so it polls instead.
func waitForFix(parent context.Context, cause error) (bool, error) {
	if parent.Err() != nil {
		return false, nil
	}
	if !errors.Is(cause, domain.ErrPlanInvalid) {
		return false, cause
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", cause)
	printSystemMessage("Waiting for a fix...")
	select {
	case <-parent.Done():
		return false, nil
	case <-time.After(2 * time.Second):
		return true, nil
	}
}
