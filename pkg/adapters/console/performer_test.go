package console

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/ports"
)

func inputParadigm(prompt, def string) domain.Paradigm {
	return domain.Paradigm{
		Kind:  domain.ParadigmInput,
		Input: &domain.InputParadigm{Prompt: prompt, Default: def},
	}
}

func TestPerformer_Contract(t *testing.T) {
	p := New(strings.NewReader("blue\n"), &bytes.Buffer{})
	ports.RunPerformerContract(t, p, inputParadigm("Favorite color?", ""), nil)
}

func TestPerformer_PromptAndAnswer(t *testing.T) {
	var out bytes.Buffer
	p := New(strings.NewReader("  indigo  \n"), &out)

	answer, err := p.Perform(context.Background(), inputParadigm("Favorite color?", ""), nil)
	require.NoError(t, err)
	assert.Equal(t, "indigo", answer)
	assert.Contains(t, out.String(), "Favorite color?")
	assert.Contains(t, out.String(), "> ")
}

func TestPerformer_DefaultOnEmptyLine(t *testing.T) {
	var out bytes.Buffer
	p := New(strings.NewReader("\n"), &out)

	answer, err := p.Perform(context.Background(), inputParadigm("Region?", "west"), nil)
	require.NoError(t, err)
	assert.Equal(t, "west", answer)
	assert.Contains(t, out.String(), "[west] > ")
}

func TestPerformer_DefaultOnExhaustedInput(t *testing.T) {
	p := New(strings.NewReader(""), &bytes.Buffer{})

	answer, err := p.Perform(context.Background(), inputParadigm("Region?", "west"), nil)
	require.NoError(t, err)
	assert.Equal(t, "west", answer)
}

func TestPerformer_ExhaustedInputWithoutDefault(t *testing.T) {
	p := New(strings.NewReader(""), &bytes.Buffer{})

	_, err := p.Perform(context.Background(), inputParadigm("Region?", ""), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read operator input")
}

func TestPerformer_SequentialAnswers(t *testing.T) {
	p := New(strings.NewReader("one\ntwo\n"), &bytes.Buffer{})

	first, err := p.Perform(context.Background(), inputParadigm("First?", ""), nil)
	require.NoError(t, err)
	second, err := p.Perform(context.Background(), inputParadigm("Second?", ""), nil)
	require.NoError(t, err)

	assert.Equal(t, "one", first)
	assert.Equal(t, "two", second)
}

func TestPerformer_LastLineWithoutNewline(t *testing.T) {
	p := New(strings.NewReader("final answer"), &bytes.Buffer{})

	answer, err := p.Perform(context.Background(), inputParadigm("Q?", ""), nil)
	require.NoError(t, err)
	assert.Equal(t, "final answer", answer)
}

func TestPerformer_RejectsNonInputParadigms(t *testing.T) {
	p := New(strings.NewReader("x\n"), &bytes.Buffer{})
	paradigm := domain.Paradigm{
		Kind:   domain.ParadigmScript,
		Script: &domain.ScriptParadigm{Command: "sh"},
	}

	_, err := p.Perform(context.Background(), paradigm, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input paradigms")
}

func TestPerformer_OversizedLine(t *testing.T) {
	p := New(strings.NewReader(strings.Repeat("a", 32)+"\n"), &bytes.Buffer{}, WithMaxInputSize(8))

	_, err := p.Perform(context.Background(), inputParadigm("Q?", ""), nil)
	assert.ErrorIs(t, err, ErrInputTooLarge)
}

func TestSanitizeInput_SizeLimit(t *testing.T) {
	tests := []struct {
		name      string
		inputSize int
		wantErr   bool
	}{
		{"Under Limit", DefaultMaxInputSize - 1, false},
		{"Exact Limit", DefaultMaxInputSize, false},
		{"Over Limit", DefaultMaxInputSize + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SanitizeInput(strings.Repeat("a", tt.inputSize), 0)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInputTooLarge)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSanitizeInput_ControlChars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Normal Text", "Hello World", "Hello World"},
		{"Safe Controls", "Line1\nLine2\tTabbed", "Line1\nLine2\tTabbed"},
		{"ANSI Code", "\x1b[31mRed\x1b[0m", "[31mRed[0m"},
		{"Null Byte", "Null\x00Byte", "NullByte"},
		{"Bell", "Ding\x07", "Ding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeInput(tt.input, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSanitizeInput_InvalidUTF8(t *testing.T) {
	_, err := SanitizeInput(string([]byte{0xff, 0xfe, 0xfd}), 0)
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}
