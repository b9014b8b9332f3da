package psylens

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
)

// Runner executes a plan run and reports progress using the provided IO.
// This keeps frontends (CLI, tests, services) decoupled from the engine.
type Runner struct {
	Output   io.Writer
	Renderer ContentRenderer

	mu sync.Mutex
}

// ContentRenderer transforms the final report before it is written. This
// allows TUI rendering (markdown to ANSI) without coupling the root
// package to a terminal library.
type ContentRenderer func(string) (string, error)

// NewRunner creates a Runner writing to the given output.
func NewRunner(output io.Writer) *Runner {
	return &Runner{Output: output}
}

// printf serializes writes; retry events arrive from worker goroutines.
func (r *Runner) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.Output, format, args...)
}

// Hooks returns lifecycle hooks that stream one progress line per event.
// Register them on the engine at construction:
//
//	r := psylens.NewRunner(os.Stdout)
//	eng, err := psylens.New(p, psylens.WithLifecycleHooks(r.Hooks()))
func (r *Runner) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunStarted: func(_ context.Context, ev *domain.RunEvent) {
			r.printf("run %s started (plan %s)\n", ev.RunID, ev.Plan)
		},
		OnInferenceFinished: func(_ context.Context, ev *domain.InferenceEvent) {
			r.printf("  %s %s -> %s %s\n", ev.Position, ev.Op, ev.Target, ev.Sample)
		},
		OnInferenceSkipped: func(_ context.Context, ev *domain.InferenceEvent) {
			r.printf("  %s %s -> %s skipped\n", ev.Position, ev.Op, ev.Target)
		},
		OnInferenceFailed: func(_ context.Context, ev *domain.InferenceEvent) {
			r.printf("  %s %s -> %s FAILED (%s, attempt %d)\n",
				ev.Position, ev.Op, ev.Target, ev.FailureKind, ev.Attempt)
		},
		OnLoopIteration: func(_ context.Context, ev *domain.LoopEvent) {
			r.printf("  %s loop over %s: iteration %d\n", ev.Position, ev.Base, ev.Iteration)
		},
		OnCheckpointSaved: func(_ context.Context, ev *domain.RunEvent) {
			r.printf("checkpoint %s saved\n", ev.Snapshot)
		},
		OnRunFinished: func(_ context.Context, ev *domain.RunEvent) {
			if ev.Err != "" {
				r.printf("run %s finished with error: %s\n", ev.RunID, ev.Err)
				return
			}
			r.printf("run %s finished\n", ev.RunID)
		},
	}
}

// Run executes the engine and writes the final concept report. A run
// error is returned as-is; the report covers whatever resolved before
// the failure.
func (r *Runner) Run(ctx context.Context, engine *Engine) error {
	if r.Output == nil {
		return errors.New("output writer must be set (use os.Stdout)")
	}

	runErr := engine.Run(ctx)

	snap, err := engine.State(ctx)
	if err != nil {
		return errors.CombineErrors(runErr, err)
	}
	report := Report(engine.Plan(), snap)
	if r.Renderer != nil {
		if rendered, err := r.Renderer(report); err == nil {
			report = rendered
		}
	}
	r.mu.Lock()
	fmt.Fprintln(r.Output, strings.TrimSpace(report))
	r.mu.Unlock()
	return runErr
}

// Report renders a run snapshot as a markdown concept table, in the
// plan's declaration order. Functional concepts hold callable handles,
// not data, so they are left out.
func Report(p *domain.Plan, snap *domain.RunSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", p.Name)
	fmt.Fprintf(&b, "run `%s`\n\n", snap.RunID)
	b.WriteString("| concept | status | value |\n")
	b.WriteString("| --- | --- | --- |\n")
	for i := range p.Concepts {
		c := &p.Concepts[i]
		if c.Type.IsFunctional() {
			continue
		}
		cs, ok := snap.Concepts[resolveAlias(snap.Aliases, c.Name)]
		if !ok {
			continue
		}
		value := "-"
		if cs.Value != nil {
			value = cs.Value.Sample(4)
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", c.Name, cs.Status, value)
	}
	return b.String()
}

// resolveAlias follows alias links to the canonical concept name. The
// chain is bounded by the map size; validation rejects cycles upstream.
func resolveAlias(aliases map[string]string, name string) string {
	for i := 0; i <= len(aliases); i++ {
		next, ok := aliases[name]
		if !ok {
			return name
		}
		name = next
	}
	return name
}
