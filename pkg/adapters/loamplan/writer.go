package loamplan

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/aretw0/loam"
	"github.com/cockroachdb/errors"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
)

// DocSaver is the slice of the typed repository the writer needs.
type DocSaver interface {
	Save(ctx context.Context, doc *loam.DocumentModel[DocMetadata]) error
}

// Writer persists a plan into a Loam repository, one markdown document
// per declaration, in the layout Loader reads back: a kind: plan document
// naming the plan, one concepts/<name> document per concept and one
// inferences/<position> document per inference. A model paradigm's prompt
// template becomes the markdown body so long prompts stay readable.
type Writer struct {
	repo DocSaver
}

// NewWriter wraps an already-initialized typed repository.
func NewWriter(repo DocSaver) *Writer {
	return &Writer{repo: repo}
}

// OpenWriter initializes a Loam repository rooted at dir for writing.
// Pass loam.WithVersioning(false) for plain file generation.
func OpenWriter(dir string, opts ...loam.Option) (*Writer, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve plan directory %s", dir)
	}
	repo, err := loam.Init(absPath, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "open plan repository %s", dir)
	}
	return NewWriter(loam.NewTypedRepository[DocMetadata](repo)), nil
}

// Save writes every declaration of the plan. Existing documents with the
// same IDs are overwritten; documents the plan no longer declares are left
// alone, so Save composes with hand-edited repositories.
func (w *Writer) Save(ctx context.Context, p *domain.Plan) error {
	if p == nil {
		return domain.PlanInvalidf("plan is nil")
	}

	err := w.repo.Save(ctx, &loam.DocumentModel[DocMetadata]{
		ID:   "plan",
		Data: DocMetadata{Kind: KindPlan, Name: p.Name},
	})
	if err != nil {
		return errors.Wrapf(err, "write plan document for %q", p.Name)
	}

	for i := range p.Concepts {
		c := &p.Concepts[i]
		if err := w.repo.Save(ctx, conceptModel(c)); err != nil {
			return errors.Wrapf(err, "write concept %q", c.Name)
		}
	}
	for i := range p.Inferences {
		inf := &p.Inferences[i]
		if err := w.repo.Save(ctx, inferenceModel(inf)); err != nil {
			return errors.Wrapf(err, "write inference at %s", inf.Position)
		}
	}
	return nil
}

func conceptModel(c *domain.Concept) *loam.DocumentModel[DocMetadata] {
	meta := DocMetadata{
		Kind:     KindConcept,
		Name:     c.Name,
		Type:     string(c.Type),
		Position: string(c.Position),
		Ground:   c.Ground,
	}
	for _, a := range c.Axes {
		if a.Kind == "" {
			meta.Axes = append(meta.Axes, a.Name)
		} else {
			meta.Axes = append(meta.Axes, map[string]any{"name": a.Name, "kind": string(a.Kind)})
		}
	}

	body := ""
	if c.Paradigm != nil {
		m := c.Paradigm.Map()
		// The loader promotes a model document's body to the template, so
		// the round trip keeps the prompt out of the frontmatter.
		if c.Paradigm.Kind == domain.ParadigmModel {
			if tpl, ok := m["template"].(string); ok && tpl != "" {
				body = tpl
				delete(m, "template")
			}
		}
		meta.Paradigm = m
	}

	return &loam.DocumentModel[DocMetadata]{
		ID:      "concepts/" + docStem(c.Name),
		Content: body,
		Data:    meta,
	}
}

func inferenceModel(inf *domain.Inference) *loam.DocumentModel[DocMetadata] {
	meta := DocMetadata{
		Kind:     KindInference,
		Position: string(inf.Position),
		Target:   inf.Target,
		Op:       inf.Op.Map(),
		Actor:    inf.Actor,
	}
	for _, v := range inf.Values {
		if v.Version == "" {
			meta.Values = append(meta.Values, v.Concept)
		} else {
			meta.Values = append(meta.Values, v.Concept+"@"+string(v.Version))
		}
	}
	if inf.Gate != nil {
		if inf.Gate.Negated {
			meta.Gate = "!" + inf.Gate.Source
		} else {
			meta.Gate = inf.Gate.Source
		}
	}
	for _, a := range inf.After {
		meta.After = append(meta.After, string(a))
	}
	if inf.Loop != nil {
		loop := map[string]any{"base": inf.Loop.Base, "axis": inf.Loop.Axis}
		if inf.Loop.Depth > 0 {
			loop["depth"] = inf.Loop.Depth
		}
		meta.Loop = loop
	}

	return &loam.DocumentModel[DocMetadata]{
		ID:   "inferences/" + docStem(string(inf.Position)),
		Data: meta,
	}
}

// docStem turns a declaration name into a filesystem-safe document stem.
// The loader reads names from frontmatter, so the mapping only has to be
// collision-resistant, not reversible.
func docStem(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '-'
		}
	}, name)
}
