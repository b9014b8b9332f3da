// Package cli implements the workflows behind the psylens commands:
// plan loading, engine assembly from flags, single runs and the watch
// loop. The cobra files in cmd/psylens stay thin and delegate here.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"golang.org/x/term"

	"github.com/lys5588/NormCode-Psylens-sub002/internal/logging"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/adapters/loamplan"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/plan"
)

// createLogger configures the command logger. Without a level the CLI
// stays silent; logs go to stderr so stdout carries only run output.
func createLogger(level string) *slog.Logger {
	if level == "" {
		return logging.NewNop()
	}
	return logging.New(logging.ParseLevel(level))
}

// printSystemMessage prints a standardized system message to stdout.
func printSystemMessage(format string, args ...any) {
	fmt.Printf(">>> %s\n", fmt.Sprintf(format, args...))
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}

// handleExecutionError keeps operator interruptions out of the exit
// code: Ctrl+C is a decision, not a failure.
func handleExecutionError(err error) error {
	if isInterrupted(err) {
		return nil
	}
	return err
}

// LoadPlan reads a plan without building an engine around it. A
// directory is opened as a Loam repository, anything else as a plan
// file.
func LoadPlan(ctx context.Context, source string) (*domain.Plan, error) {
	abs, err := filepath.Abs(source)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve plan source %s", source)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "stat plan source %s", source)
	}
	if info.IsDir() {
		loader, err := loamplan.Open(abs)
		if err != nil {
			return nil, err
		}
		return loader.Load(ctx)
	}
	return plan.Load(abs)
}
