package memory

import (
	"context"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/plan"
)

// Loader implements ports.PlanLoader from an in-process document. The plan
// is held in encoded form and decoded per Load, so every caller gets an
// independent copy.
type Loader struct {
	document []byte
	decode   func([]byte) (*domain.Plan, error)
}

// NewLoader wraps a JSON plan document.
func NewLoader(document []byte) *Loader {
	return &Loader{document: document, decode: plan.Decode}
}

// NewYAMLLoader wraps a YAML plan document.
func NewYAMLLoader(document []byte) *Loader {
	return &Loader{document: document, decode: plan.DecodeYAML}
}

// NewFromPlan serializes an assembled plan. This handles encoding
// automatically, which keeps test setups short.
func NewFromPlan(p *domain.Plan) (*Loader, error) {
	data, err := plan.Encode(p)
	if err != nil {
		return nil, err
	}
	return NewLoader(data), nil
}

// Load decodes a fresh copy of the plan.
func (l *Loader) Load(ctx context.Context) (*domain.Plan, error) {
	return l.decode(l.document)
}
