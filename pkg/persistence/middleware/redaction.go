package middleware

import (
	"context"
	"regexp"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/ports"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/reference"
)

const masked = "***"

type redactionMiddleware struct {
	next     ports.SnapshotStore
	patterns []*regexp.Regexp
}

// NewRedactionMiddleware masks the persisted values of concepts whose names
// match any of the patterns, including their loop carry history. Masking
// applies to the stored copy only; the snapshot the engine holds in memory
// is untouched. Redaction is one-way, loads return the masked values.
func NewRedactionMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.SnapshotStore) ports.SnapshotStore {
		return &redactionMiddleware{next: next, patterns: patterns}
	}
}

func (m *redactionMiddleware) Save(ctx context.Context, snap *domain.RunSnapshot) error {
	cloned, err := snap.Clone()
	if err != nil {
		return err
	}

	for name, concept := range cloned.Concepts {
		if concept.Value != nil && m.matches(name) {
			concept.Value = reference.Scalar(masked)
			cloned.Concepts[name] = concept
		}
	}
	for fi, frame := range cloned.Frames {
		for name, carry := range frame.Carries {
			if !m.matches(name) {
				continue
			}
			if carry.Initial != nil {
				carry.Initial = reference.Scalar(masked)
			}
			if carry.Previous != nil {
				carry.Previous = reference.Scalar(masked)
			}
			cloned.Frames[fi].Carries[name] = carry
		}
	}

	return m.next.Save(ctx, cloned)
}

func (m *redactionMiddleware) Load(ctx context.Context, id string) (*domain.RunSnapshot, error) {
	return m.next.Load(ctx, id)
}

func (m *redactionMiddleware) List(ctx context.Context) ([]domain.SnapshotInfo, error) {
	return m.next.List(ctx)
}

func (m *redactionMiddleware) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

func (m *redactionMiddleware) Fork(ctx context.Context, id, newID, newRunID string) (*domain.RunSnapshot, error) {
	return m.next.Fork(ctx, id, newID, newRunID)
}

func (m *redactionMiddleware) matches(name string) bool {
	for _, p := range m.patterns {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}
