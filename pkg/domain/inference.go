package domain

// VersionMark addresses a loop-relative version of a concept's value.
type VersionMark string

const (
	// VersionCurrent reads the value being produced in this iteration.
	VersionCurrent VersionMark = "current"
	// VersionPrevious reads last iteration's snapshot.
	VersionPrevious VersionMark = "previous"
	// VersionInitial reads the value at loop-frame entry.
	VersionInitial VersionMark = "initial"
)

// Valid reports whether m is a known version marker. The empty marker is
// valid and means current.
func (m VersionMark) Valid() bool {
	switch m {
	case "", VersionCurrent, VersionPrevious, VersionInitial:
		return true
	}
	return false
}

// ValueRef names an input concept, optionally at a loop-relative version.
type ValueRef struct {
	Concept string      `json:"concept" yaml:"concept" mapstructure:"concept"`
	Version VersionMark `json:"version,omitempty" yaml:"version,omitempty" mapstructure:"version"`
}

// Ref is shorthand for a current-version input.
func Ref(concept string) ValueRef { return ValueRef{Concept: concept} }

// PrevRef reads the previous-iteration value of concept.
func PrevRef(concept string) ValueRef {
	return ValueRef{Concept: concept, Version: VersionPrevious}
}

// InitRef reads the loop-entry value of concept.
func InitRef(concept string) ValueRef {
	return ValueRef{Concept: concept, Version: VersionInitial}
}

// Gate makes an inference conditional on a truth-state concept. A false (or,
// with Negated, true) condition suppresses work: wholesale for a no-axis
// condition, per coordinate otherwise.
type Gate struct {
	Source  string `json:"source" yaml:"source" mapstructure:"source"`
	Negated bool   `json:"negated,omitempty" yaml:"negated,omitempty" mapstructure:"negated"`
}

// LoopSpec parameterizes a loop-driver inference. Base names the concept
// iterated over, Axis the dimension walked, Depth the loop's nesting level
// (1 is outermost) which must match its positional nesting.
type LoopSpec struct {
	Base  string `json:"base" yaml:"base" mapstructure:"base"`
	Axis  string `json:"axis" yaml:"axis" mapstructure:"axis"`
	Depth int    `json:"depth,omitempty" yaml:"depth,omitempty" mapstructure:"depth"`
}

// Inference is one edge of the dependency graph: it produces Target from
// Values under Op. It is pure description; execution lives in the runtime.
type Inference struct {
	Position FlowPosition   `json:"position" yaml:"position" mapstructure:"position"`
	Target   string         `json:"target" yaml:"target" mapstructure:"target"`
	Op       Operator       `json:"op" yaml:"op" mapstructure:"op"`
	Actor    string         `json:"actor,omitempty" yaml:"actor,omitempty" mapstructure:"actor"`
	Values   []ValueRef     `json:"values,omitempty" yaml:"values,omitempty" mapstructure:"values"`
	Gate     *Gate          `json:"gate,omitempty" yaml:"gate,omitempty" mapstructure:"gate"`
	After    []FlowPosition `json:"after,omitempty" yaml:"after,omitempty" mapstructure:"after"`
	Loop     *LoopSpec      `json:"loop,omitempty" yaml:"loop,omitempty" mapstructure:"loop"`
}

// ValueConcepts lists the referenced input concept names in order.
func (inf Inference) ValueConcepts() []string {
	names := make([]string, 0, len(inf.Values))
	for _, v := range inf.Values {
		names = append(names, v.Concept)
	}
	return names
}
