package domain

import (
	"time"
)

// ParadigmKind names how a functional concept reaches its collaborator.
type ParadigmKind string

const (
	ParadigmModel  ParadigmKind = "model"
	ParadigmScript ParadigmKind = "script"
	ParadigmInput  ParadigmKind = "input"
	ParadigmFile   ParadigmKind = "file"
)

// ModelParadigm calls a language model (or a registered in-process handler).
// Template is the prompt with {{value}} placeholders filled from the
// perceived inputs.
type ModelParadigm struct {
	Name      string `json:"name" yaml:"name" mapstructure:"name"`
	Template  string `json:"template,omitempty" yaml:"template,omitempty" mapstructure:"template"`
	MaxTokens int    `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" mapstructure:"max_tokens"`
}

// ScriptParadigm runs an allow-listed subprocess. Inputs arrive on stdin as
// JSON; stdout is the result.
type ScriptParadigm struct {
	Command string        `json:"command" yaml:"command" mapstructure:"command"`
	Args    []string      `json:"args,omitempty" yaml:"args,omitempty" mapstructure:"args"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`
}

// InputParadigm blocks for operator-supplied input.
type InputParadigm struct {
	Prompt  string `json:"prompt,omitempty" yaml:"prompt,omitempty" mapstructure:"prompt"`
	Default string `json:"default,omitempty" yaml:"default,omitempty" mapstructure:"default"`
}

// FileParadigm reads a file. Format is raw, json or yaml.
type FileParadigm struct {
	Path   string `json:"path" yaml:"path" mapstructure:"path"`
	Format string `json:"format,omitempty" yaml:"format,omitempty" mapstructure:"format"`
}

// Paradigm is a closed tagged variant describing the external collaboration
// behind a functional concept. Output, when set, is the type string the
// collaborator's result must satisfy (see pkg/schema).
type Paradigm struct {
	Kind   ParadigmKind    `json:"kind" yaml:"kind"`
	Output string          `json:"output,omitempty" yaml:"output,omitempty"`
	Model  *ModelParadigm  `json:"model,omitempty" yaml:"model,omitempty"`
	Script *ScriptParadigm `json:"script,omitempty" yaml:"script,omitempty"`
	Input  *InputParadigm  `json:"input,omitempty" yaml:"input,omitempty"`
	File   *FileParadigm   `json:"file,omitempty" yaml:"file,omitempty"`
}

// DecodeParadigm builds a Paradigm from its flat document form: a "kind" key
// plus that kind's configuration fields as siblings. Durations accept Go
// duration strings ("30s").
func DecodeParadigm(raw map[string]any) (*Paradigm, error) {
	kindVal, ok := raw["kind"]
	if !ok {
		return nil, PlanInvalidf("paradigm is missing a kind")
	}
	kind, ok := kindVal.(string)
	if !ok {
		return nil, PlanInvalidf("paradigm kind must be a string, got %T", kindVal)
	}

	config := make(map[string]any, len(raw))
	var output string
	for k, v := range raw {
		switch k {
		case "kind":
		case "output":
			if s, ok := v.(string); ok {
				output = s
			} else {
				return nil, PlanInvalidf("paradigm output must be a string, got %T", v)
			}
		default:
			config[k] = v
		}
	}

	p := &Paradigm{Kind: ParadigmKind(kind), Output: output}
	var target any
	switch p.Kind {
	case ParadigmModel:
		p.Model = &ModelParadigm{}
		target = p.Model
	case ParadigmScript:
		p.Script = &ScriptParadigm{}
		target = p.Script
	case ParadigmInput:
		p.Input = &InputParadigm{}
		target = p.Input
	case ParadigmFile:
		p.File = &FileParadigm{}
		target = p.File
	default:
		return nil, PlanInvalidf("unknown paradigm kind %q", kind)
	}

	if err := decodeConfig(config, target); err != nil {
		return nil, PlanInvalidf("paradigm %q: %v", kind, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Map renders the paradigm back into its flat document form.
func (p Paradigm) Map() map[string]any {
	m := map[string]any{"kind": string(p.Kind)}
	if p.Output != "" {
		m["output"] = p.Output
	}
	switch p.Kind {
	case ParadigmModel:
		if p.Model != nil {
			m["name"] = p.Model.Name
			if p.Model.Template != "" {
				m["template"] = p.Model.Template
			}
			if p.Model.MaxTokens > 0 {
				m["max_tokens"] = p.Model.MaxTokens
			}
		}
	case ParadigmScript:
		if p.Script != nil {
			m["command"] = p.Script.Command
			if len(p.Script.Args) > 0 {
				m["args"] = p.Script.Args
			}
			if p.Script.Timeout > 0 {
				m["timeout"] = p.Script.Timeout.String()
			}
		}
	case ParadigmInput:
		if p.Input != nil {
			if p.Input.Prompt != "" {
				m["prompt"] = p.Input.Prompt
			}
			if p.Input.Default != "" {
				m["default"] = p.Input.Default
			}
		}
	case ParadigmFile:
		if p.File != nil {
			m["path"] = p.File.Path
			if p.File.Format != "" {
				m["format"] = p.File.Format
			}
		}
	}
	return m
}

// Validate checks kind-local requirements.
func (p Paradigm) Validate() error {
	switch p.Kind {
	case ParadigmModel:
		if p.Model == nil || p.Model.Name == "" {
			return PlanInvalidf("model paradigm needs a name")
		}
	case ParadigmScript:
		if p.Script == nil || p.Script.Command == "" {
			return PlanInvalidf("script paradigm needs a command")
		}
	case ParadigmInput:
		if p.Input == nil {
			return PlanInvalidf("input paradigm is missing parameters")
		}
	case ParadigmFile:
		if p.File == nil || p.File.Path == "" {
			return PlanInvalidf("file paradigm needs a path")
		}
		switch p.File.Format {
		case "", "raw", "json", "yaml":
		default:
			return PlanInvalidf("file paradigm format %q is not raw, json or yaml", p.File.Format)
		}
	default:
		return PlanInvalidf("unknown paradigm kind %q", p.Kind)
	}
	return nil
}
