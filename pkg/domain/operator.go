package domain

import (
	"github.com/mitchellh/mapstructure"
)

// decodeConfig maps document-borne parameters onto a typed struct. Weak
// typing absorbs JSON's float64 numbers; the hook accepts "30s"-style
// duration strings.
func decodeConfig(input map[string]any, result any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           result,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// OperatorKind names the execution family of an inference.
type OperatorKind string

const (
	// OpIdentity binds the target and its single value concept to one state.
	OpIdentity OperatorKind = "identity"
	// OpAbstraction seeds the target from a literal.
	OpAbstraction OperatorKind = "abstraction"
	// OpSpecification picks the first non-skip candidate per coordinate.
	OpSpecification OperatorKind = "specification"
	// OpContinuation appends values onto the target's previous version.
	OpContinuation OperatorKind = "continuation"
	// OpSelection extracts parts of a value by position, key or unpacking.
	OpSelection OperatorKind = "selection"
	// OpGroupIn gathers sources into keyed records.
	OpGroupIn OperatorKind = "group_in"
	// OpGroupAcross concatenates source contents along one axis.
	OpGroupAcross OperatorKind = "group_across"
	// OpLoop drives iteration over a base concept; parameters live in
	// Inference.Loop.
	OpLoop OperatorKind = "loop"
	// OpApply delegates each coordinate to the functional concept named by
	// Inference.Actor.
	OpApply OperatorKind = "apply"
)

// AbstractionParams carries the literal for OpAbstraction. Axes name the
// dimensions of a nested-list Value, outermost first.
type AbstractionParams struct {
	Value any      `json:"value" yaml:"value" mapstructure:"value"`
	Axes  []string `json:"axes,omitempty" yaml:"axes,omitempty" mapstructure:"axes"`
}

// ContinuationParams names the axis the append grows.
type ContinuationParams struct {
	Axis string `json:"axis" yaml:"axis" mapstructure:"axis"`
}

// SelectStep is one extraction applied by OpSelection. Exactly one of Pos,
// Key or All is set per step. Pos and All address the named Axis; Key maps
// over map-valued elements and needs no axis.
type SelectStep struct {
	Pos  *int   `json:"pos,omitempty" yaml:"pos,omitempty" mapstructure:"pos"`
	Key  string `json:"key,omitempty" yaml:"key,omitempty" mapstructure:"key"`
	All  bool   `json:"all,omitempty" yaml:"all,omitempty" mapstructure:"all"`
	Axis string `json:"axis,omitempty" yaml:"axis,omitempty" mapstructure:"axis"`
}

// SelectionParams is the ordered step list for OpSelection.
type SelectionParams struct {
	Steps []SelectStep `json:"steps" yaml:"steps" mapstructure:"steps"`
}

// GroupInParams configures keyed grouping. Collapse names axes erased into
// each element, Protected exempts axes from collapsing, NewAxis keeps the
// collapsed content as an explicit dimension instead of nested lists.
type GroupInParams struct {
	Collapse  []string `json:"collapse,omitempty" yaml:"collapse,omitempty" mapstructure:"collapse"`
	Protected []string `json:"protected,omitempty" yaml:"protected,omitempty" mapstructure:"protected"`
	NewAxis   string   `json:"new_axis,omitempty" yaml:"new_axis,omitempty" mapstructure:"new_axis"`
}

// GroupAcrossParams configures flattening concatenation. CollapsePer gives
// per-source collapse lists for heterogeneous sources; Collapse is a shared
// list every source must carry. With neither, all sources must share exactly
// one axis name.
type GroupAcrossParams struct {
	Collapse    []string            `json:"collapse,omitempty" yaml:"collapse,omitempty" mapstructure:"collapse"`
	CollapsePer map[string][]string `json:"collapse_per,omitempty" yaml:"collapse_per,omitempty" mapstructure:"collapse_per"`
	NewAxis     string              `json:"new_axis,omitempty" yaml:"new_axis,omitempty" mapstructure:"new_axis"`
}

// Operator is a closed tagged variant: Kind selects the family and exactly
// the matching params pointer is populated. Kinds without parameters leave
// all pointers nil.
type Operator struct {
	Kind         OperatorKind        `json:"kind" yaml:"kind"`
	Abstraction  *AbstractionParams  `json:"abstraction,omitempty" yaml:"abstraction,omitempty"`
	Continuation *ContinuationParams `json:"continuation,omitempty" yaml:"continuation,omitempty"`
	Selection    *SelectionParams    `json:"selection,omitempty" yaml:"selection,omitempty"`
	GroupIn      *GroupInParams      `json:"group_in,omitempty" yaml:"group_in,omitempty"`
	GroupAcross  *GroupAcrossParams  `json:"group_across,omitempty" yaml:"group_across,omitempty"`
}

// Constructors for building plans in code.

func Identity() Operator      { return Operator{Kind: OpIdentity} }
func Specification() Operator { return Operator{Kind: OpSpecification} }
func LoopDriver() Operator    { return Operator{Kind: OpLoop} }
func Apply() Operator         { return Operator{Kind: OpApply} }

func Abstraction(value any, axes ...string) Operator {
	return Operator{Kind: OpAbstraction, Abstraction: &AbstractionParams{Value: value, Axes: axes}}
}

func Continuation(axis string) Operator {
	return Operator{Kind: OpContinuation, Continuation: &ContinuationParams{Axis: axis}}
}

func Selection(steps ...SelectStep) Operator {
	return Operator{Kind: OpSelection, Selection: &SelectionParams{Steps: steps}}
}

func GroupIn(params GroupInParams) Operator {
	return Operator{Kind: OpGroupIn, GroupIn: &params}
}

func GroupAcross(params GroupAcrossParams) Operator {
	return Operator{Kind: OpGroupAcross, GroupAcross: &params}
}

// SelectAt extracts the element at pos along axis and drops the axis.
// Negative positions count from the end.
func SelectAt(axis string, pos int) SelectStep {
	p := pos
	return SelectStep{Pos: &p, Axis: axis}
}

// SelectKey maps map-valued elements to the value under key.
func SelectKey(key string) SelectStep { return SelectStep{Key: key} }

// SelectAll collapses axis into list-valued elements.
func SelectAll(axis string) SelectStep { return SelectStep{All: true, Axis: axis} }

// DecodeOperator builds an Operator from a flat document form: a "kind" key
// plus that kind's parameter fields as siblings.
func DecodeOperator(raw map[string]any) (Operator, error) {
	kindVal, ok := raw["kind"]
	if !ok {
		return Operator{}, PlanInvalidf("operator is missing a kind")
	}
	kind, ok := kindVal.(string)
	if !ok {
		return Operator{}, PlanInvalidf("operator kind must be a string, got %T", kindVal)
	}

	params := make(map[string]any, len(raw))
	for k, v := range raw {
		if k != "kind" {
			params[k] = v
		}
	}

	op := Operator{Kind: OperatorKind(kind)}
	var target any
	switch op.Kind {
	case OpIdentity, OpSpecification, OpLoop, OpApply:
		// No parameters.
	case OpAbstraction:
		op.Abstraction = &AbstractionParams{}
		target = op.Abstraction
	case OpContinuation:
		op.Continuation = &ContinuationParams{}
		target = op.Continuation
	case OpSelection:
		op.Selection = &SelectionParams{}
		target = op.Selection
	case OpGroupIn:
		op.GroupIn = &GroupInParams{}
		target = op.GroupIn
	case OpGroupAcross:
		op.GroupAcross = &GroupAcrossParams{}
		target = op.GroupAcross
	default:
		return Operator{}, PlanInvalidf("unknown operator kind %q", kind)
	}
	if target != nil {
		if err := decodeConfig(params, target); err != nil {
			return Operator{}, PlanInvalidf("operator %q: %v", kind, err)
		}
	}
	if err := op.Validate(); err != nil {
		return Operator{}, err
	}
	return op, nil
}

// Map renders the operator back into its flat document form.
func (o Operator) Map() map[string]any {
	m := map[string]any{"kind": string(o.Kind)}
	switch o.Kind {
	case OpAbstraction:
		if o.Abstraction != nil {
			m["value"] = o.Abstraction.Value
			if len(o.Abstraction.Axes) > 0 {
				m["axes"] = o.Abstraction.Axes
			}
		}
	case OpContinuation:
		if o.Continuation != nil {
			m["axis"] = o.Continuation.Axis
		}
	case OpSelection:
		if o.Selection != nil {
			steps := make([]any, 0, len(o.Selection.Steps))
			for _, s := range o.Selection.Steps {
				step := map[string]any{}
				if s.Pos != nil {
					step["pos"] = *s.Pos
				}
				if s.Key != "" {
					step["key"] = s.Key
				}
				if s.All {
					step["all"] = true
				}
				if s.Axis != "" {
					step["axis"] = s.Axis
				}
				steps = append(steps, step)
			}
			m["steps"] = steps
		}
	case OpGroupIn:
		if o.GroupIn != nil {
			if len(o.GroupIn.Collapse) > 0 {
				m["collapse"] = o.GroupIn.Collapse
			}
			if len(o.GroupIn.Protected) > 0 {
				m["protected"] = o.GroupIn.Protected
			}
			if o.GroupIn.NewAxis != "" {
				m["new_axis"] = o.GroupIn.NewAxis
			}
		}
	case OpGroupAcross:
		if o.GroupAcross != nil {
			if len(o.GroupAcross.Collapse) > 0 {
				m["collapse"] = o.GroupAcross.Collapse
			}
			if len(o.GroupAcross.CollapsePer) > 0 {
				m["collapse_per"] = o.GroupAcross.CollapsePer
			}
			if o.GroupAcross.NewAxis != "" {
				m["new_axis"] = o.GroupAcross.NewAxis
			}
		}
	}
	return m
}

// Validate checks kind-local structural rules. Cross-references (value
// counts, actor presence, loop specs) are the validator's job.
func (o Operator) Validate() error {
	switch o.Kind {
	case OpIdentity, OpSpecification, OpLoop, OpApply:
		return nil
	case OpAbstraction:
		if o.Abstraction == nil || o.Abstraction.Value == nil {
			return PlanInvalidf("abstraction operator needs a value")
		}
	case OpContinuation:
		if o.Continuation == nil || o.Continuation.Axis == "" {
			return PlanInvalidf("continuation operator needs an axis")
		}
	case OpSelection:
		if o.Selection == nil || len(o.Selection.Steps) == 0 {
			return PlanInvalidf("selection operator needs at least one step")
		}
		for i, s := range o.Selection.Steps {
			set := 0
			if s.Pos != nil {
				set++
			}
			if s.Key != "" {
				set++
			}
			if s.All {
				set++
			}
			if set != 1 {
				return PlanInvalidf("selection step %d must set exactly one of pos, key, all", i)
			}
			if (s.Pos != nil || s.All) && s.Axis == "" {
				return PlanInvalidf("selection step %d needs an axis", i)
			}
		}
	case OpGroupIn:
		if o.GroupIn == nil {
			return PlanInvalidf("group_in operator is missing parameters")
		}
	case OpGroupAcross:
		if o.GroupAcross == nil {
			return PlanInvalidf("group_across operator is missing parameters")
		}
		if len(o.GroupAcross.Collapse) > 0 && len(o.GroupAcross.CollapsePer) > 0 {
			return PlanInvalidf("group_across operator sets both collapse and collapse_per")
		}
	default:
		return PlanInvalidf("unknown operator kind %q", o.Kind)
	}
	return nil
}
