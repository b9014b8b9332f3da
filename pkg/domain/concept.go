package domain

// ConceptType classifies what a concept's reference holds.
type ConceptType string

const (
	ConceptEntity     ConceptType = "entity"
	ConceptTruth      ConceptType = "truth"
	ConceptCollection ConceptType = "collection"
	ConceptActor      ConceptType = "actor"
	ConceptAction     ConceptType = "action"
	ConceptEvaluation ConceptType = "evaluation"
)

// IsFunctional reports whether references of this type carry callable
// elements rather than plain values.
func (t ConceptType) IsFunctional() bool {
	return t == ConceptActor || t == ConceptAction
}

// Valid reports whether t is one of the known concept types.
func (t ConceptType) Valid() bool {
	switch t {
	case ConceptEntity, ConceptTruth, ConceptCollection, ConceptActor, ConceptAction, ConceptEvaluation:
		return true
	}
	return false
}

// AxisKind distinguishes axes a concept introduces from axes it inherits.
type AxisKind string

const (
	// AxisSelf is declared by the concept itself; the concept's own values
	// extend along it.
	AxisSelf AxisKind = "self"
	// AxisDependent is inherited from an upstream concept during execution.
	AxisDependent AxisKind = "dependent"
)

// AxisDecl declares one named dimension of a concept.
type AxisDecl struct {
	Name string   `json:"name" yaml:"name" mapstructure:"name"`
	Kind AxisKind `json:"kind,omitempty" yaml:"kind,omitempty" mapstructure:"kind"`
}

// Concept is a named value slot in a plan. Its runtime payload is a
// reference; the declaration only carries shape and sourcing metadata.
type Concept struct {
	Name     string       `json:"name" yaml:"name" mapstructure:"name"`
	Type     ConceptType  `json:"type" yaml:"type" mapstructure:"type"`
	Axes     []AxisDecl   `json:"axes,omitempty" yaml:"axes,omitempty" mapstructure:"axes"`
	Position FlowPosition `json:"position,omitempty" yaml:"position,omitempty" mapstructure:"position"`
	Paradigm *Paradigm    `json:"paradigm,omitempty" yaml:"paradigm,omitempty" mapstructure:"paradigm"`
	Ground   any          `json:"ground,omitempty" yaml:"ground,omitempty" mapstructure:"ground"`
}

// SelfAxes returns the names of the axes the concept declares as its own.
func (c Concept) SelfAxes() []string {
	var names []string
	for _, a := range c.Axes {
		if a.Kind == "" || a.Kind == AxisSelf {
			names = append(names, a.Name)
		}
	}
	return names
}
