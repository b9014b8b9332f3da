package loamplan

// Document kinds recognized in frontmatter.
const (
	KindPlan      = "plan"
	KindConcept   = "concept"
	KindInference = "inference"
)

// DocMetadata is the frontmatter of one plan document. Concept and
// inference fields share the struct; Kind decides which half applies.
// It uses "mapstructure" tags so Loam can decode standard YAML keys.
type DocMetadata struct {
	Kind string `json:"kind" mapstructure:"kind"`
	Name string `json:"name" mapstructure:"name"`

	// Concept config
	Type     string         `json:"type" mapstructure:"type"`
	Axes     []any          `json:"axes" mapstructure:"axes"`
	Ground   any            `json:"ground" mapstructure:"ground"`
	Paradigm map[string]any `json:"paradigm" mapstructure:"paradigm"`

	// Inference config
	Position string         `json:"position" mapstructure:"position"`
	Target   string         `json:"target" mapstructure:"target"`
	Op       map[string]any `json:"op" mapstructure:"op"`
	Actor    string         `json:"actor" mapstructure:"actor"`
	Values   []any          `json:"values" mapstructure:"values"`
	Gate     any            `json:"gate" mapstructure:"gate"`
	After    []string       `json:"after" mapstructure:"after"`
	Loop     map[string]any `json:"loop" mapstructure:"loop"`
}
