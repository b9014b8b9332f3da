// Package process runs script paradigms as local subprocesses behind an
// allow list.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
)

// Performer executes script paradigms. Only commands present in the allow
// list may run; everything else is rejected before a process is spawned.
//
// Inputs reach the child two ways: as a JSON array on stdin, and as
// PSYLENS_ARG_<n> environment variables (primitives printed plainly, anything
// else JSON-encoded) with PSYLENS_ARGC carrying the count. Structured tools
// read stdin; shell one-liners read the variables. Stdout is the result,
// trimmed, and decoded as JSON when it looks like a JSON document.
type Performer struct {
	allowed map[string]struct{}
	baseDir string
	env     map[string]string
}

// Option configures a Performer.
type Option func(*Performer)

// WithBaseDir sets the working directory for every run.
func WithBaseDir(dir string) Option {
	return func(p *Performer) { p.baseDir = dir }
}

// WithEnv adds environment variables to every run, on top of the parent
// process environment.
func WithEnv(env map[string]string) Option {
	return func(p *Performer) {
		for k, v := range env {
			p.env[k] = v
		}
	}
}

// New builds a Performer whose allow list holds the given commands.
func New(allow []string, opts ...Option) *Performer {
	p := &Performer{
		allowed: make(map[string]struct{}, len(allow)),
		env:     map[string]string{},
	}
	p.Allow(allow...)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Allow adds commands to the allow list. Empty strings are ignored.
func (p *Performer) Allow(commands ...string) {
	for _, c := range commands {
		if c == "" {
			continue
		}
		p.allowed[c] = struct{}{}
	}
}

// Perform runs the paradigm's command and returns its stdout. The script's
// Timeout, when set, bounds the run without affecting the caller's context;
// a timed-out run reports context.DeadlineExceeded so retry policy can treat
// it like any other collaborator failure.
func (p *Performer) Perform(ctx context.Context, paradigm domain.Paradigm, inputs []any) (any, error) {
	if paradigm.Kind != domain.ParadigmScript || paradigm.Script == nil {
		return nil, errors.Newf("process performer handles script paradigms, got %q", paradigm.Kind)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	script := paradigm.Script
	if _, ok := p.allowed[script.Command]; !ok {
		return nil, errors.Newf("command %q is not on the allow list", script.Command)
	}

	parent := ctx
	if script.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, script.Timeout)
		defer cancel()
	}

	payload, err := json.Marshal(inputs)
	if err != nil {
		return nil, errors.Wrap(err, "encode script inputs")
	}

	cmd := exec.CommandContext(ctx, script.Command, script.Args...)
	cmd.Dir = p.baseDir
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = append(cmd.Environ(), p.environ(inputs)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if parentErr := parent.Err(); parentErr != nil {
			return nil, parentErr
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.Wrapf(context.DeadlineExceeded, "%s exceeded its %s budget", script.Command, script.Timeout)
		}
		return nil, errors.Newf("%s failed: %v (stderr: %s)", script.Command, err, strings.TrimSpace(stderr.String()))
	}

	return decodeOutput(stdout.String()), nil
}

func (p *Performer) environ(inputs []any) []string {
	env := make([]string, 0, len(p.env)+len(inputs)+1)
	for k, v := range p.env {
		env = append(env, k+"="+v)
	}
	for i, in := range inputs {
		env = append(env, fmt.Sprintf("PSYLENS_ARG_%d=%s", i, encodeArg(in)))
	}
	env = append(env, fmt.Sprintf("PSYLENS_ARGC=%d", len(inputs)))
	return env
}

// encodeArg renders one input for the environment: primitives print plainly,
// everything else goes through JSON so shells see one stable form.
func encodeArg(v any) string {
	switch v.(type) {
	case nil:
		return ""
	case string, bool, int, int64, float64:
		return fmt.Sprintf("%v", v)
	default:
		if data, err := json.Marshal(v); err == nil {
			return string(data)
		}
		return fmt.Sprintf("%v", v)
	}
}

// decodeOutput trims stdout and decodes it as JSON when it looks like a JSON
// object or array. Anything else stays a string.
func decodeOutput(raw string) any {
	out := strings.TrimSpace(raw)
	if (strings.HasPrefix(out, "{") && strings.HasSuffix(out, "}")) ||
		(strings.HasPrefix(out, "[") && strings.HasSuffix(out, "]")) {
		var decoded any
		if err := json.Unmarshal([]byte(out), &decoded); err == nil {
			return decoded
		}
	}
	return out
}
