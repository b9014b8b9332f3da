package psylens

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/ports"
)

// RoutePerformer dispatches each collaboration to the performer slot for
// its paradigm kind, so one engine can mix model handlers, scripts,
// console prompts and file reads in a single plan. A nil slot means that
// kind is not served and its inferences fail as collaborator errors.
type RoutePerformer struct {
	Model  ports.Performer
	Script ports.Performer
	Input  ports.Performer
	File   ports.Performer
}

var _ ports.Performer = RoutePerformer{}

// Perform forwards to the slot matching the paradigm kind.
func (r RoutePerformer) Perform(ctx context.Context, paradigm domain.Paradigm, inputs []any) (any, error) {
	var p ports.Performer
	switch paradigm.Kind {
	case domain.ParadigmModel:
		p = r.Model
	case domain.ParadigmScript:
		p = r.Script
	case domain.ParadigmInput:
		p = r.Input
	case domain.ParadigmFile:
		p = r.File
	}
	if p == nil {
		return nil, errors.Newf("no performer registered for %s paradigm", paradigm.Kind)
	}
	return p.Perform(ctx, paradigm, inputs)
}
