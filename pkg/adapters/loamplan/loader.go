// Package loamplan reads and writes plans as Loam repositories of
// markdown documents.
//
// Each document declares one concept or inference in its YAML frontmatter,
// discriminated by a kind field. A concept document whose paradigm is a
// model may leave template unset and put the prompt in the markdown body
// instead, which keeps long prompts out of YAML. An optional kind: plan
// document names the plan; without one the loader falls back to the
// repository directory name. Writer produces the same layout, one document
// per declaration.
package loamplan

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/loam"
	"github.com/cockroachdb/errors"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/plan"
)

// Loader adapts a Loam repository to the ports.PlanLoader interface.
type Loader struct {
	Repo *loam.TypedRepository[DocMetadata]

	// fallback names the plan when no kind: plan document exists.
	fallback string
}

// New wraps an already-initialized typed repository.
func New(repo *loam.TypedRepository[DocMetadata]) *Loader {
	return &Loader{
		Repo:     repo,
		fallback: "plan",
	}
}

// Open initializes a Loam repository rooted at dir and wraps it. The
// directory name doubles as the plan name until a kind: plan document
// says otherwise.
func Open(dir string, opts ...loam.Option) (*Loader, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve plan directory %s", dir)
	}
	repo, err := loam.Init(absPath, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "open plan repository %s", dir)
	}

	l := New(loam.NewTypedRepository[DocMetadata](repo))
	l.fallback = filepath.Base(absPath)
	return l, nil
}

// Load assembles one plan from every document in the repository. The
// result is decoded but not validated; validation is the engine's job.
func (l *Loader) Load(ctx context.Context) (*domain.Plan, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list plan documents")
	}

	// Loam's listing order follows the filesystem walk; sort so the
	// assembled plan is stable across runs.
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })

	assembled := map[string]any{"name": l.fallback}
	concepts := make([]map[string]any, 0, len(docs))
	inferences := make([]map[string]any, 0, len(docs))

	// Collision detection: two documents declaring the same concept name
	// or inference position is a plan bug, not a last-one-wins choice.
	conceptSeen := make(map[string]string)
	inferenceSeen := make(map[string]string)

	for _, doc := range docs {
		meta := doc.Data
		switch meta.Kind {
		case KindPlan:
			if meta.Name != "" {
				assembled["name"] = meta.Name
			}

		case KindConcept:
			name := conceptName(doc.ID, meta)
			if prior, ok := conceptSeen[name]; ok {
				return nil, errors.Newf("concept %q is defined in both %s and %s", name, prior, doc.ID)
			}
			conceptSeen[name] = doc.ID
			concepts = append(concepts, conceptDoc(name, meta, doc.Content))

		case KindInference:
			if meta.Position == "" {
				return nil, errors.Newf("inference document %s has no position", doc.ID)
			}
			if prior, ok := inferenceSeen[meta.Position]; ok {
				return nil, errors.Newf("inference %s is defined in both %s and %s", meta.Position, prior, doc.ID)
			}
			inferenceSeen[meta.Position] = doc.ID
			inferences = append(inferences, inferenceDoc(meta))

		case "":
			return nil, errors.Newf("document %s has no kind (want plan, concept or inference)", doc.ID)
		default:
			return nil, errors.Newf("document %s has unknown kind %q", doc.ID, meta.Kind)
		}
	}

	assembled["concepts"] = concepts
	assembled["inferences"] = inferences

	data, err := json.Marshal(assembled)
	if err != nil {
		return nil, errors.Wrap(err, "assemble plan document")
	}
	return plan.Decode(data)
}

// conceptName prefers the frontmatter name and falls back to the file
// stem, so small plans can skip the name field entirely.
func conceptName(docID string, meta DocMetadata) string {
	if meta.Name != "" {
		return meta.Name
	}
	base := filepath.Base(filepath.ToSlash(docID))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func conceptDoc(name string, meta DocMetadata, body string) map[string]any {
	c := map[string]any{
		"name": name,
		"type": meta.Type,
	}
	if len(meta.Axes) > 0 {
		c["axes"] = meta.Axes
	}
	if meta.Position != "" {
		c["position"] = meta.Position
	}
	if meta.Ground != nil {
		c["ground"] = meta.Ground
	}
	if meta.Paradigm != nil {
		c["paradigm"] = paradigmDoc(meta.Paradigm, body)
	}
	return c
}

// paradigmDoc copies the frontmatter paradigm and, for model paradigms
// without an explicit template, promotes the markdown body to one.
func paradigmDoc(raw map[string]any, body string) map[string]any {
	p := make(map[string]any, len(raw)+1)
	for k, v := range raw {
		p[k] = v
	}

	template := strings.TrimSpace(body)
	if template == "" {
		return p
	}
	if kind, _ := p["kind"].(string); kind != string(domain.ParadigmModel) {
		return p
	}
	if _, explicit := p["template"]; !explicit {
		p["template"] = template
	}
	return p
}

func inferenceDoc(meta DocMetadata) map[string]any {
	inf := map[string]any{
		"position": meta.Position,
		"target":   meta.Target,
	}
	if meta.Op != nil {
		inf["op"] = meta.Op
	}
	if meta.Actor != "" {
		inf["actor"] = meta.Actor
	}
	if len(meta.Values) > 0 {
		inf["values"] = meta.Values
	}
	if meta.Gate != nil {
		inf["gate"] = meta.Gate
	}
	if len(meta.After) > 0 {
		inf["after"] = meta.After
	}
	if meta.Loop != nil {
		inf["loop"] = meta.Loop
	}
	return inf
}

// Watch implements ports.Watchable, signaling whenever any plan document
// changes on disk.
func (l *Loader) Watch(ctx context.Context) (<-chan struct{}, error) {
	// Watch every relevant file recursively; the doublestar pattern is
	// handled by Loam so no manual filtering loop is needed.
	events, err := l.Repo.Watch(ctx, "**/*.{md,json,yaml,yml}")
	if err != nil {
		return nil, errors.Wrap(err, "start plan watcher")
	}

	ch := make(chan struct{}, 1)

	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				// The signal only says "reload"; if one is already
				// pending the new event coalesces into it.
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()

	return ch, nil
}
