package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/ports"
)

func modelParadigm(name, template string) domain.Paradigm {
	return domain.Paradigm{
		Kind:  domain.ParadigmModel,
		Model: &domain.ModelParadigm{Name: name, Template: template},
	}
}

func TestRegistry_Contract(t *testing.T) {
	r := New()
	r.Register("echo", func(_ context.Context, _ domain.ModelParadigm, inputs []any) (any, error) {
		return inputs, nil
	})

	ports.RunPerformerContract(t, r, modelParadigm("echo", ""), []any{"alpha"})
}

func TestRegistry_DispatchesByModelName(t *testing.T) {
	r := New()
	r.Register("upper", func(_ context.Context, _ domain.ModelParadigm, inputs []any) (any, error) {
		return strings.ToUpper(inputs[0].(string)), nil
	})
	r.Register("join", func(_ context.Context, model domain.ModelParadigm, inputs []any) (any, error) {
		parts := make([]string, len(inputs))
		for i, in := range inputs {
			parts[i] = fmt.Sprint(in)
		}
		return model.Template + strings.Join(parts, ","), nil
	})

	out, err := r.Perform(context.Background(), modelParadigm("upper", ""), []any{"quiet"})
	require.NoError(t, err)
	assert.Equal(t, "QUIET", out)

	out, err = r.Perform(context.Background(), modelParadigm("join", "items: "), []any{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "items: a,b", out)
}

func TestRegistry_HandlerSeesModelConfig(t *testing.T) {
	r := New()
	var seen domain.ModelParadigm
	r.Register("probe", func(_ context.Context, model domain.ModelParadigm, _ []any) (any, error) {
		seen = model
		return "ok", nil
	})

	paradigm := domain.Paradigm{
		Kind:  domain.ParadigmModel,
		Model: &domain.ModelParadigm{Name: "probe", Template: "summarize {{.}}", MaxTokens: 256},
	}
	_, err := r.Perform(context.Background(), paradigm, nil)
	require.NoError(t, err)
	assert.Equal(t, "probe", seen.Name)
	assert.Equal(t, "summarize {{.}}", seen.Template)
	assert.Equal(t, 256, seen.MaxTokens)
}

func TestRegistry_UnknownModel(t *testing.T) {
	r := New()

	_, err := r.Perform(context.Background(), modelParadigm("ghost", ""), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no handler registered for model "ghost"`)
}

func TestRegistry_RejectsNonModelParadigms(t *testing.T) {
	r := New()
	paradigm := domain.Paradigm{
		Kind:   domain.ParadigmScript,
		Script: &domain.ScriptParadigm{Command: "sh"},
	}

	_, err := r.Perform(context.Background(), paradigm, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model paradigms")
}

func TestRegistry_OverwriteReplacesHandler(t *testing.T) {
	r := New()
	r.Register("m", func(context.Context, domain.ModelParadigm, []any) (any, error) { return "first", nil })
	r.Register("m", func(context.Context, domain.ModelParadigm, []any) (any, error) { return "second", nil })

	out, err := r.Perform(context.Background(), modelParadigm("m", ""), nil)
	require.NoError(t, err)
	assert.Equal(t, "second", out)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := New()
	r.Register("m", func(context.Context, domain.ModelParadigm, []any) (any, error) { return "ok", nil })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			r.Register(fmt.Sprintf("m%d", i), func(context.Context, domain.ModelParadigm, []any) (any, error) {
				return i, nil
			})
		}(i)
		go func() {
			defer wg.Done()
			_, err := r.Perform(context.Background(), modelParadigm("m", ""), nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
