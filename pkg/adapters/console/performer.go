// Package console collects operator answers for input paradigms.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
)

// Performer prompts on a writer and reads one line per call from a reader.
// The paradigm's Default answers an empty line or exhausted input, so piped
// runs finish without an operator at the keyboard.
type Performer struct {
	out     io.Writer
	reader  *bufio.Reader
	maxSize int

	mu    sync.Mutex
	once  sync.Once
	lines chan lineResult
}

type lineResult struct {
	text string
	err  error
}

// Option configures a Performer.
type Option func(*Performer)

// WithMaxInputSize caps accepted line length in bytes.
func WithMaxInputSize(n int) Option {
	return func(p *Performer) {
		if n > 0 {
			p.maxSize = n
		}
	}
}

// New builds a Performer over the given streams. Nil streams default to
// stdin and stdout.
func New(r io.Reader, w io.Writer, opts ...Option) *Performer {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	p := &Performer{
		out:     w,
		reader:  bufio.NewReader(r),
		maxSize: maxInputSize(),
		lines:   make(chan lineResult),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Perform implements ports.Performer for input paradigms. Inference values
// are not consumed; an input paradigm sources its data from the operator.
// A canceled wait leaves the pending line for the next caller.
func (p *Performer) Perform(ctx context.Context, paradigm domain.Paradigm, _ []any) (any, error) {
	if paradigm.Kind != domain.ParadigmInput || paradigm.Input == nil {
		return nil, errors.Newf("console performer handles input paradigms, got %q", paradigm.Kind)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in := paradigm.Input
	if in.Prompt != "" {
		fmt.Fprintln(p.out, in.Prompt)
	}
	if in.Default != "" {
		fmt.Fprintf(p.out, "[%s] > ", in.Default)
	} else {
		fmt.Fprint(p.out, "> ")
	}

	p.once.Do(func() { go p.pump() })

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res, ok := <-p.lines:
		if !ok {
			res = lineResult{err: io.EOF}
		}
		if res.err != nil {
			if in.Default != "" {
				return in.Default, nil
			}
			return nil, errors.Wrap(res.err, "read operator input")
		}
		answer, err := SanitizeInput(strings.TrimSpace(res.text), p.maxSize)
		if err != nil {
			return nil, err
		}
		if answer == "" && in.Default != "" {
			return in.Default, nil
		}
		return answer, nil
	}
}

// pump feeds lines to Perform. It reads at most one line ahead; a trailing
// line without a newline is delivered before the terminal error.
func (p *Performer) pump() {
	for {
		text, err := p.reader.ReadString('\n')
		if text != "" {
			p.lines <- lineResult{text: text}
		}
		if err != nil {
			p.lines <- lineResult{err: err}
			close(p.lines)
			return
		}
	}
}
