package domain

// Plan is a complete executable description: the concepts (nodes) and the
// inferences (edges) that produce them. Plans are validated before running;
// see internal/validator.
type Plan struct {
	Name       string      `json:"name" yaml:"name"`
	Concepts   []Concept   `json:"concepts" yaml:"concepts"`
	Inferences []Inference `json:"inferences" yaml:"inferences"`
}

// Concept returns the declaration for name, or nil.
func (p *Plan) Concept(name string) *Concept {
	for i := range p.Concepts {
		if p.Concepts[i].Name == name {
			return &p.Concepts[i]
		}
	}
	return nil
}

// InferenceAt returns the inference at pos, or nil.
func (p *Plan) InferenceAt(pos FlowPosition) *Inference {
	for i := range p.Inferences {
		if p.Inferences[i].Position == pos {
			return &p.Inferences[i]
		}
	}
	return nil
}

// ProducersOf returns the inferences targeting concept name, in plan order.
func (p *Plan) ProducersOf(name string) []*Inference {
	var out []*Inference
	for i := range p.Inferences {
		if p.Inferences[i].Target == name {
			out = append(out, &p.Inferences[i])
		}
	}
	return out
}

// LoopDrivers returns the loop-driver inferences, in plan order.
func (p *Plan) LoopDrivers() []*Inference {
	var out []*Inference
	for i := range p.Inferences {
		if p.Inferences[i].Op.Kind == OpLoop {
			out = append(out, &p.Inferences[i])
		}
	}
	return out
}
