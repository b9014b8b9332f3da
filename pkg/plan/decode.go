package plan

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
)

// planDoc is the boundary shape of a plan file. It is deliberately loose:
// operator and paradigm parameters stay as maps until the domain decoders
// type them, and values, gates and axes accept string shorthands alongside
// the explicit mapping form.
type planDoc struct {
	Name       string         `json:"name" yaml:"name"`
	Concepts   []conceptDoc   `json:"concepts,omitempty" yaml:"concepts,omitempty"`
	Inferences []inferenceDoc `json:"inferences,omitempty" yaml:"inferences,omitempty"`
}

type conceptDoc struct {
	Name     string         `json:"name" yaml:"name"`
	Type     string         `json:"type" yaml:"type"`
	Axes     []any          `json:"axes,omitempty" yaml:"axes,omitempty"`
	Position string         `json:"position,omitempty" yaml:"position,omitempty"`
	Paradigm map[string]any `json:"paradigm,omitempty" yaml:"paradigm,omitempty"`
	Ground   any            `json:"ground,omitempty" yaml:"ground,omitempty"`
}

type inferenceDoc struct {
	Position string         `json:"position" yaml:"position"`
	Target   string         `json:"target" yaml:"target"`
	Op       map[string]any `json:"op" yaml:"op"`
	Actor    string         `json:"actor,omitempty" yaml:"actor,omitempty"`
	Values   []any          `json:"values,omitempty" yaml:"values,omitempty"`
	Gate     any            `json:"gate,omitempty" yaml:"gate,omitempty"`
	After    []string       `json:"after,omitempty" yaml:"after,omitempty"`
	Loop     map[string]any `json:"loop,omitempty" yaml:"loop,omitempty"`
}

// Decode reads a JSON plan document. The result is structurally typed but
// not yet validated; run it through the engine (or the validator) before
// executing.
func Decode(data []byte) (*domain.Plan, error) {
	var doc planDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, domain.PlanInvalidf("plan document: %v", err)
	}
	return fromDoc(doc)
}

// DecodeYAML reads a YAML plan document.
func DecodeYAML(data []byte) (*domain.Plan, error) {
	var doc planDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, domain.PlanInvalidf("plan document: %v", err)
	}
	return fromDoc(doc)
}

// Load reads a plan file, switching decoder on the extension. .json, .yaml
// and .yml are recognized.
func Load(path string) (*domain.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read plan %s", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return Decode(data)
	case ".yaml", ".yml":
		return DecodeYAML(data)
	default:
		return nil, domain.PlanInvalidf("plan %s: unsupported extension %q (want .json, .yaml or .yml)", path, filepath.Ext(path))
	}
}

// Encode renders a plan back into an indented JSON document in the same
// shape Decode accepts.
func Encode(p *domain.Plan) ([]byte, error) {
	return json.MarshalIndent(toDoc(p), "", "  ")
}

// EncodeYAML renders a plan as a YAML document.
func EncodeYAML(p *domain.Plan) ([]byte, error) {
	return yaml.Marshal(toDoc(p))
}

func fromDoc(doc planDoc) (*domain.Plan, error) {
	p := &domain.Plan{Name: doc.Name}
	for _, cd := range doc.Concepts {
		c, err := decodeConcept(cd)
		if err != nil {
			return nil, err
		}
		p.Concepts = append(p.Concepts, c)
	}
	for _, id := range doc.Inferences {
		inf, err := decodeInference(id)
		if err != nil {
			return nil, err
		}
		p.Inferences = append(p.Inferences, inf)
	}
	return p, nil
}

func decodeConcept(doc conceptDoc) (domain.Concept, error) {
	c := domain.Concept{
		Name:   doc.Name,
		Type:   domain.ConceptType(doc.Type),
		Ground: doc.Ground,
	}
	for i, raw := range doc.Axes {
		switch v := raw.(type) {
		case string:
			c.Axes = append(c.Axes, domain.AxisDecl{Name: v})
		case map[string]any:
			var decl domain.AxisDecl
			if err := decodeField(v, &decl); err != nil {
				return domain.Concept{}, domain.PlanInvalidf("concept %q axis %d: %v", doc.Name, i, err)
			}
			c.Axes = append(c.Axes, decl)
		default:
			return domain.Concept{}, domain.PlanInvalidf("concept %q axis %d must be a string or mapping, got %T", doc.Name, i, raw)
		}
	}
	if doc.Position != "" {
		pos, err := domain.ParsePosition(doc.Position)
		if err != nil {
			return domain.Concept{}, domain.PlanInvalidf("concept %q: %v", doc.Name, err)
		}
		c.Position = pos
	}
	if doc.Paradigm != nil {
		paradigm, err := domain.DecodeParadigm(doc.Paradigm)
		if err != nil {
			return domain.Concept{}, domain.PlanInvalidf("concept %q: %v", doc.Name, err)
		}
		c.Paradigm = paradigm
	}
	return c, nil
}

func decodeInference(doc inferenceDoc) (domain.Inference, error) {
	pos, err := domain.ParsePosition(doc.Position)
	if err != nil {
		return domain.Inference{}, domain.PlanInvalidf("inference %q: %v", doc.Position, err)
	}
	inf := domain.Inference{Position: pos, Target: doc.Target, Actor: doc.Actor}

	op, err := domain.DecodeOperator(doc.Op)
	if err != nil {
		return domain.Inference{}, domain.PlanInvalidf("inference at %s: %v", pos, err)
	}
	inf.Op = op

	for i, raw := range doc.Values {
		switch v := raw.(type) {
		case string:
			ref, err := parseValueRef(v)
			if err != nil {
				return domain.Inference{}, domain.PlanInvalidf("inference at %s: %v", pos, err)
			}
			inf.Values = append(inf.Values, ref)
		case map[string]any:
			var ref domain.ValueRef
			if err := decodeField(v, &ref); err != nil {
				return domain.Inference{}, domain.PlanInvalidf("inference at %s value %d: %v", pos, i, err)
			}
			if !ref.Version.Valid() {
				return domain.Inference{}, domain.PlanInvalidf("inference at %s value %d: unknown version %q", pos, i, ref.Version)
			}
			inf.Values = append(inf.Values, ref)
		default:
			return domain.Inference{}, domain.PlanInvalidf("inference at %s value %d must be a string or mapping, got %T", pos, i, raw)
		}
	}

	gate, err := decodeGate(doc.Gate)
	if err != nil {
		return domain.Inference{}, domain.PlanInvalidf("inference at %s: %v", pos, err)
	}
	inf.Gate = gate

	for _, a := range doc.After {
		ap, err := domain.ParsePosition(a)
		if err != nil {
			return domain.Inference{}, domain.PlanInvalidf("inference at %s: after: %v", pos, err)
		}
		inf.After = append(inf.After, ap)
	}

	if doc.Loop != nil {
		var spec domain.LoopSpec
		if err := decodeField(doc.Loop, &spec); err != nil {
			return domain.Inference{}, domain.PlanInvalidf("inference at %s loop: %v", pos, err)
		}
		inf.Loop = &spec
	}
	return inf, nil
}

// parseValueRef reads the "concept" / "concept@version" shorthand.
func parseValueRef(s string) (domain.ValueRef, error) {
	name, version, found := strings.Cut(s, "@")
	if !found {
		return domain.ValueRef{Concept: s}, nil
	}
	mark := domain.VersionMark(version)
	if name == "" || version == "" || !mark.Valid() {
		return domain.ValueRef{}, domain.PlanInvalidf("value reference %q: want \"concept\" or \"concept@current|previous|initial\"", s)
	}
	return domain.ValueRef{Concept: name, Version: mark}, nil
}

// decodeGate reads either the "source" / "!source" shorthand or the explicit
// {source, negated} mapping.
func decodeGate(raw any) (*domain.Gate, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		negated := strings.HasPrefix(v, "!")
		source := strings.TrimPrefix(v, "!")
		if source == "" {
			return nil, domain.PlanInvalidf("gate %q names no source", v)
		}
		return &domain.Gate{Source: source, Negated: negated}, nil
	case map[string]any:
		var gate domain.Gate
		if err := decodeField(v, &gate); err != nil {
			return nil, domain.PlanInvalidf("gate: %v", err)
		}
		return &gate, nil
	default:
		return nil, domain.PlanInvalidf("gate must be a string or mapping, got %T", raw)
	}
}

// decodeField maps one loose document mapping onto a typed struct. Weak
// typing absorbs JSON's float64 numbers.
func decodeField(input map[string]any, result any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           result,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

func toDoc(p *domain.Plan) planDoc {
	doc := planDoc{Name: p.Name}
	for _, c := range p.Concepts {
		cd := conceptDoc{
			Name:     c.Name,
			Type:     string(c.Type),
			Position: string(c.Position),
			Ground:   c.Ground,
		}
		for _, a := range c.Axes {
			if a.Kind == "" {
				cd.Axes = append(cd.Axes, a.Name)
			} else {
				cd.Axes = append(cd.Axes, map[string]any{"name": a.Name, "kind": string(a.Kind)})
			}
		}
		if c.Paradigm != nil {
			cd.Paradigm = c.Paradigm.Map()
		}
		doc.Concepts = append(doc.Concepts, cd)
	}
	for _, inf := range p.Inferences {
		id := inferenceDoc{
			Position: string(inf.Position),
			Target:   inf.Target,
			Op:       inf.Op.Map(),
			Actor:    inf.Actor,
		}
		for _, v := range inf.Values {
			if v.Version == "" {
				id.Values = append(id.Values, v.Concept)
			} else {
				id.Values = append(id.Values, v.Concept+"@"+string(v.Version))
			}
		}
		if inf.Gate != nil {
			if inf.Gate.Negated {
				id.Gate = "!" + inf.Gate.Source
			} else {
				id.Gate = inf.Gate.Source
			}
		}
		for _, a := range inf.After {
			id.After = append(id.After, string(a))
		}
		if inf.Loop != nil {
			loop := map[string]any{"base": inf.Loop.Base, "axis": inf.Loop.Axis}
			if inf.Loop.Depth > 0 {
				loop["depth"] = inf.Loop.Depth
			}
			id.Loop = loop
		}
		doc.Inferences = append(doc.Inferences, id)
	}
	return doc
}
