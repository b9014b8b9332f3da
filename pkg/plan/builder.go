package plan

import (
	"fmt"
	"strings"
	"time"

	"github.com/lys5588/NormCode-Psylens-sub002/internal/validator"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
)

// Builder assembles a plan in code. Declare concepts, chain inferences, then
// Build; the result is fully validated, so a Builder-produced plan never
// needs a separate validation pass.
type Builder struct {
	name       string
	concepts   []*ConceptBuilder
	inferences []*InferenceBuilder
	errs       []string
}

// New starts a plan named name.
func New(name string) *Builder {
	return &Builder{name: name}
}

func (b *Builder) addf(format string, args ...any) {
	b.errs = append(b.errs, fmt.Sprintf(format, args...))
}

func (b *Builder) concept(name string, typ domain.ConceptType) *ConceptBuilder {
	cb := &ConceptBuilder{b: b, c: domain.Concept{Name: name, Type: typ}}
	b.concepts = append(b.concepts, cb)
	return cb
}

// Entity declares a single-value concept.
func (b *Builder) Entity(name string) *ConceptBuilder {
	return b.concept(name, domain.ConceptEntity)
}

// Truth declares a boolean-valued concept usable as a gate source.
func (b *Builder) Truth(name string) *ConceptBuilder {
	return b.concept(name, domain.ConceptTruth)
}

// Collection declares a concept extending along the given self axes.
func (b *Builder) Collection(name string, axes ...string) *ConceptBuilder {
	cb := b.concept(name, domain.ConceptCollection)
	for _, a := range axes {
		cb.c.Axes = append(cb.c.Axes, domain.AxisDecl{Name: a, Kind: domain.AxisSelf})
	}
	return cb
}

// Evaluation declares a scored-judgement concept.
func (b *Builder) Evaluation(name string) *ConceptBuilder {
	return b.concept(name, domain.ConceptEvaluation)
}

// Actor declares a functional concept performed on request. Give it a
// paradigm (Model, Script, Input or FileSource) before Build.
func (b *Builder) Actor(name string) *ConceptBuilder {
	return b.concept(name, domain.ConceptActor)
}

// Action declares a functional concept like Actor, for operations rather
// than agents.
func (b *Builder) Action(name string) *ConceptBuilder {
	return b.concept(name, domain.ConceptAction)
}

// Infer starts an inference at position. Pick exactly one operation (Keep,
// Literal, Specify, Continue, Select, GroupIn, GroupAcross, Apply or Loop);
// a later call replaces the earlier one.
func (b *Builder) Infer(position string) *InferenceBuilder {
	ib := &InferenceBuilder{b: b, inf: domain.Inference{Position: domain.FlowPosition(position)}}
	b.inferences = append(b.inferences, ib)
	return ib
}

// Build assembles the plan, fills in loop depths from positional nesting and
// validates the whole.
func (b *Builder) Build() (*domain.Plan, error) {
	p := &domain.Plan{Name: b.name}
	for _, cb := range b.concepts {
		p.Concepts = append(p.Concepts, cb.c)
	}
	for _, ib := range b.inferences {
		p.Inferences = append(p.Inferences, ib.inf)
	}
	for i := range p.Inferences {
		inf := &p.Inferences[i]
		if inf.Op.Kind != domain.OpLoop || inf.Loop == nil || inf.Loop.Depth != 0 {
			continue
		}
		depth := 1
		for j := range p.Inferences {
			other := &p.Inferences[j]
			if j != i && other.Op.Kind == domain.OpLoop && inf.Position.Under(other.Position) {
				depth++
			}
		}
		inf.Loop.Depth = depth
	}
	if len(b.errs) > 0 {
		return nil, domain.PlanInvalidf("plan %q: %s", b.name, strings.Join(b.errs, "; "))
	}
	if err := validator.Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

// ConceptBuilder refines one declared concept. All methods return the
// receiver for chaining.
type ConceptBuilder struct {
	b *Builder
	c domain.Concept
}

// At records the flow position the concept belongs to.
func (cb *ConceptBuilder) At(position string) *ConceptBuilder {
	cb.c.Position = domain.FlowPosition(position)
	return cb
}

// Ground seeds the concept with a literal value. Collections take nested
// lists, one level per self axis, outermost first.
func (cb *ConceptBuilder) Ground(value any) *ConceptBuilder {
	cb.c.Ground = value
	return cb
}

// DependentAxes declares axes the concept inherits from upstream values.
func (cb *ConceptBuilder) DependentAxes(names ...string) *ConceptBuilder {
	for _, n := range names {
		cb.c.Axes = append(cb.c.Axes, domain.AxisDecl{Name: n, Kind: domain.AxisDependent})
	}
	return cb
}

// Model gives the concept a model paradigm handled by the named performer
// route.
func (cb *ConceptBuilder) Model(name string) *ConceptBuilder {
	cb.ensureParadigm().Kind = domain.ParadigmModel
	cb.c.Paradigm.Model = &domain.ModelParadigm{Name: name}
	return cb
}

// Template sets the prompt template of a model paradigm.
func (cb *ConceptBuilder) Template(tpl string) *ConceptBuilder {
	if cb.c.Paradigm == nil || cb.c.Paradigm.Model == nil {
		cb.b.addf("concept %q: Template needs Model first", cb.c.Name)
		return cb
	}
	cb.c.Paradigm.Model.Template = tpl
	return cb
}

// MaxTokens caps the model response length.
func (cb *ConceptBuilder) MaxTokens(n int) *ConceptBuilder {
	if cb.c.Paradigm == nil || cb.c.Paradigm.Model == nil {
		cb.b.addf("concept %q: MaxTokens needs Model first", cb.c.Name)
		return cb
	}
	cb.c.Paradigm.Model.MaxTokens = n
	return cb
}

// Script gives the concept a script paradigm running the given command.
func (cb *ConceptBuilder) Script(command string, args ...string) *ConceptBuilder {
	cb.ensureParadigm().Kind = domain.ParadigmScript
	cb.c.Paradigm.Script = &domain.ScriptParadigm{Command: command, Args: args}
	return cb
}

// Timeout bounds a script paradigm's run time.
func (cb *ConceptBuilder) Timeout(d time.Duration) *ConceptBuilder {
	if cb.c.Paradigm == nil || cb.c.Paradigm.Script == nil {
		cb.b.addf("concept %q: Timeout needs Script first", cb.c.Name)
		return cb
	}
	cb.c.Paradigm.Script.Timeout = d
	return cb
}

// Input gives the concept an input paradigm prompting a human.
func (cb *ConceptBuilder) Input(prompt string) *ConceptBuilder {
	cb.ensureParadigm().Kind = domain.ParadigmInput
	cb.c.Paradigm.Input = &domain.InputParadigm{Prompt: prompt}
	return cb
}

// Default sets the value an input paradigm falls back to on empty answers.
func (cb *ConceptBuilder) Default(value string) *ConceptBuilder {
	if cb.c.Paradigm == nil || cb.c.Paradigm.Input == nil {
		cb.b.addf("concept %q: Default needs Input first", cb.c.Name)
		return cb
	}
	cb.c.Paradigm.Input.Default = value
	return cb
}

// FileSource gives the concept a file paradigm read from path. Format is
// "raw", "json" or "yaml"; empty means raw.
func (cb *ConceptBuilder) FileSource(path, format string) *ConceptBuilder {
	cb.ensureParadigm().Kind = domain.ParadigmFile
	cb.c.Paradigm.File = &domain.FileParadigm{Path: path, Format: format}
	return cb
}

// Output declares the schema type of the paradigm's result, e.g. "int" or
// "list[str]". It may be set before or after the paradigm kind.
func (cb *ConceptBuilder) Output(typeName string) *ConceptBuilder {
	cb.ensureParadigm().Output = typeName
	return cb
}

func (cb *ConceptBuilder) ensureParadigm() *domain.Paradigm {
	if cb.c.Paradigm == nil {
		cb.c.Paradigm = &domain.Paradigm{}
	}
	return cb.c.Paradigm
}

// InferenceBuilder refines one inference. Value arguments use the
// "concept" / "concept@previous" / "concept@initial" shorthand.
type InferenceBuilder struct {
	b   *Builder
	inf domain.Inference
}

func (ib *InferenceBuilder) values(refs []string) []domain.ValueRef {
	out := make([]domain.ValueRef, 0, len(refs))
	for _, s := range refs {
		ref, err := parseValueRef(s)
		if err != nil {
			ib.b.addf("inference at %s: %v", ib.inf.Position, err)
			continue
		}
		out = append(out, ref)
	}
	return out
}

// Keep binds target as another name for source.
func (ib *InferenceBuilder) Keep(target, source string) *InferenceBuilder {
	ib.inf.Target = target
	ib.inf.Op = domain.Identity()
	ib.inf.Values = ib.values([]string{source})
	return ib
}

// Literal seeds target from a literal value. Axes name the dimensions of a
// nested-list value, outermost first.
func (ib *InferenceBuilder) Literal(target string, value any, axes ...string) *InferenceBuilder {
	ib.inf.Target = target
	ib.inf.Op = domain.Abstraction(value, axes...)
	ib.inf.Values = nil
	return ib
}

// Specify fills target with the first non-skip candidate per coordinate.
func (ib *InferenceBuilder) Specify(target string, candidates ...string) *InferenceBuilder {
	ib.inf.Target = target
	ib.inf.Op = domain.Specification()
	ib.inf.Values = ib.values(candidates)
	return ib
}

// Continue appends the sources onto target's previous value along axis.
func (ib *InferenceBuilder) Continue(target, axis string, sources ...string) *InferenceBuilder {
	ib.inf.Target = target
	ib.inf.Op = domain.Continuation(axis)
	ib.inf.Values = ib.values(sources)
	return ib
}

// Select extracts parts of source into target by the given steps
// (domain.SelectAt, domain.SelectKey, domain.SelectAll).
func (ib *InferenceBuilder) Select(target, source string, steps ...domain.SelectStep) *InferenceBuilder {
	ib.inf.Target = target
	ib.inf.Op = domain.Selection(steps...)
	ib.inf.Values = ib.values([]string{source})
	return ib
}

// GroupIn gathers the sources into keyed records on target.
func (ib *InferenceBuilder) GroupIn(target string, params domain.GroupInParams, sources ...string) *InferenceBuilder {
	ib.inf.Target = target
	ib.inf.Op = domain.GroupIn(params)
	ib.inf.Values = ib.values(sources)
	return ib
}

// GroupAcross concatenates the sources' contents into target along one axis.
func (ib *InferenceBuilder) GroupAcross(target string, params domain.GroupAcrossParams, sources ...string) *InferenceBuilder {
	ib.inf.Target = target
	ib.inf.Op = domain.GroupAcross(params)
	ib.inf.Values = ib.values(sources)
	return ib
}

// Apply delegates each coordinate of the args to the functional concept
// actor and collects results into target.
func (ib *InferenceBuilder) Apply(target, actor string, args ...string) *InferenceBuilder {
	ib.inf.Target = target
	ib.inf.Op = domain.Apply()
	ib.inf.Actor = actor
	ib.inf.Values = ib.values(args)
	return ib
}

// Loop drives iteration over base along axis, exposing one element per
// iteration as element. Nesting depth is derived from the position at Build.
func (ib *InferenceBuilder) Loop(element, base, axis string) *InferenceBuilder {
	ib.inf.Target = element
	ib.inf.Op = domain.LoopDriver()
	ib.inf.Values = nil
	ib.inf.Loop = &domain.LoopSpec{Base: base, Axis: axis}
	return ib
}

// When gates the inference on a truth-state source.
func (ib *InferenceBuilder) When(source string) *InferenceBuilder {
	ib.inf.Gate = &domain.Gate{Source: source}
	return ib
}

// Unless gates the inference on the negation of a truth-state source.
func (ib *InferenceBuilder) Unless(source string) *InferenceBuilder {
	ib.inf.Gate = &domain.Gate{Source: source, Negated: true}
	return ib
}

// After orders the inference behind the given positions regardless of data
// dependencies.
func (ib *InferenceBuilder) After(positions ...string) *InferenceBuilder {
	for _, p := range positions {
		ib.inf.After = append(ib.inf.After, domain.FlowPosition(p))
	}
	return ib
}
