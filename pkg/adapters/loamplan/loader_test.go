package loamplan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/loam"
	"github.com/aretw0/loam/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lys5588/NormCode-Psylens-sub002/internal/testutils"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/ports/tests"
)

func saveDocs(t *testing.T, repo core.Repository, docs map[string]string) {
	t.Helper()
	ctx := context.Background()
	for id, content := range docs {
		require.NoError(t, repo.Save(ctx, core.Document{ID: id, Content: content}), "save %s", id)
	}
}

func newLoader(t *testing.T, docs map[string]string) *Loader {
	t.Helper()
	_, repo := testutils.SetupTestRepo(t)
	saveDocs(t, repo, docs)
	return New(loam.NewTypedRepository[DocMetadata](repo))
}

// reviewDocs is a small review plan split one declaration per document,
// the layout the loader is built for.
func reviewDocs() map[string]string {
	return map[string]string{
		"plan.md": `---
kind: plan
name: review
---
Walks every item and keeps a running count.`,
		"concepts/items.md": `---
kind: concept
name: items
type: collection
axes: [item]
ground: [alpha, beta]
---
The work queue.`,
		"concepts/item.md": `---
kind: concept
type: entity
---
One element of the queue.`,
		"concepts/count.md": `---
kind: concept
name: count
type: entity
ground: 0
---
`,
		"concepts/bump.md": `---
kind: concept
name: bump
type: actor
paradigm:
  kind: model
  name: bump
  output: int
  max_tokens: 64
---
Increase the running count by one.
Return only the integer.`,
		"concepts/ok.md": `---
kind: concept
name: ok
type: truth
ground: true
---
`,
		"concepts/summary.md": `---
kind: concept
name: summary
type: entity
position: "2"
---
`,
		"inferences/walk.md": `---
kind: inference
position: "1"
target: item
op: {kind: loop}
loop: {base: items, axis: item, depth: 1}
---
`,
		"inferences/bump-count.md": `---
kind: inference
position: "1.1"
target: count
op: {kind: apply}
actor: bump
values: ["count@previous"]
gate: ok
---
`,
		"inferences/summarize.md": `---
kind: inference
position: "2"
target: summary
op: {kind: specification}
values: [count]
after: ["1.1"]
gate: "!ok"
---
`,
	}
}

func TestLoader_Contract(t *testing.T) {
	loader := newLoader(t, reviewDocs())

	tests.PlanLoaderContractTest(t, loader,
		[]string{"items", "item", "count", "bump", "ok", "summary"},
		[]string{"1", "1.1", "2"},
	)
}

func TestLoader_AssemblesReviewPlan(t *testing.T) {
	loader := newLoader(t, reviewDocs())

	p, err := loader.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "review", p.Name, "name comes from the kind: plan document")

	items := p.Concept("items")
	require.NotNil(t, items)
	assert.Equal(t, []any{"alpha", "beta"}, items.Ground)

	walk := p.InferenceAt(domain.FlowPosition("1"))
	require.NotNil(t, walk)
	require.NotNil(t, walk.Loop)
	assert.Equal(t, "items", walk.Loop.Base)
	assert.Equal(t, "item", walk.Loop.Axis)
	assert.Equal(t, 1, walk.Loop.Depth)

	bump := p.InferenceAt(domain.FlowPosition("1.1"))
	require.NotNil(t, bump)
	assert.Equal(t, domain.OpApply, bump.Op.Kind)
	assert.Equal(t, "bump", bump.Actor)
	require.Len(t, bump.Values, 1)
	assert.Equal(t, domain.VersionPrevious, bump.Values[0].Version)

	summarize := p.InferenceAt(domain.FlowPosition("2"))
	require.NotNil(t, summarize)
	require.NotNil(t, summarize.Gate)
	assert.Equal(t, "ok", summarize.Gate.Source)
	assert.True(t, summarize.Gate.Negated)
	assert.Equal(t, []domain.FlowPosition{"1.1"}, summarize.After)
}

func TestLoader_BodyBecomesModelTemplate(t *testing.T) {
	t.Run("Body Promoted", func(t *testing.T) {
		loader := newLoader(t, reviewDocs())

		p, err := loader.Load(context.Background())
		require.NoError(t, err)

		bump := p.Concept("bump")
		require.NotNil(t, bump)
		require.NotNil(t, bump.Paradigm)
		require.NotNil(t, bump.Paradigm.Model)
		assert.Equal(t, "Increase the running count by one.\nReturn only the integer.", bump.Paradigm.Model.Template)
	})

	t.Run("Frontmatter Template Wins", func(t *testing.T) {
		loader := newLoader(t, map[string]string{
			"judge.md": `---
kind: concept
name: judge
type: actor
paradigm:
  kind: model
  name: judge
  template: "Rate {{input}} from 1 to 5."
---
This body is commentary, not the prompt.`,
		})

		p, err := loader.Load(context.Background())
		require.NoError(t, err)

		judge := p.Concept("judge")
		require.NotNil(t, judge)
		assert.Equal(t, "Rate {{input}} from 1 to 5.", judge.Paradigm.Model.Template)
	})

	t.Run("Non-Model Body Stays Commentary", func(t *testing.T) {
		loader := newLoader(t, map[string]string{
			"notes.md": `---
kind: concept
name: notes
type: actor
paradigm:
  kind: file
  path: notes.txt
---
Reads the shared notes file.`,
		})

		p, err := loader.Load(context.Background())
		require.NoError(t, err)

		notes := p.Concept("notes")
		require.NotNil(t, notes)
		require.NotNil(t, notes.Paradigm.File)
		assert.Equal(t, "notes.txt", notes.Paradigm.File.Path)
	})
}

func TestLoader_ConceptNameFallsBackToFileStem(t *testing.T) {
	loader := newLoader(t, map[string]string{
		"concepts/flavor.md": `---
kind: concept
type: entity
ground: vanilla
---
`,
	})

	p, err := loader.Load(context.Background())
	require.NoError(t, err)

	flavor := p.Concept("flavor")
	require.NotNil(t, flavor, "unnamed concepts take their file stem")
	assert.Equal(t, "vanilla", flavor.Ground)
}

func TestLoader_PlanNameFallback(t *testing.T) {
	t.Run("Wrapped Repository", func(t *testing.T) {
		loader := newLoader(t, map[string]string{
			"only.md": `---
kind: concept
name: only
type: entity
---
`,
		})

		p, err := loader.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "plan", p.Name)
	})

	t.Run("Opened Directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nightly-review")
		require.NoError(t, os.MkdirAll(dir, 0o755))

		loader, err := Open(dir)
		require.NoError(t, err)

		p, err := loader.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "nightly-review", p.Name, "directory name stands in for a plan document")
	})
}

func TestLoader_RejectsCollisions(t *testing.T) {
	t.Run("Concept Names", func(t *testing.T) {
		loader := newLoader(t, map[string]string{
			"a.md": `---
kind: concept
name: count
type: entity
---
`,
			"b.md": `---
kind: concept
name: count
type: entity
---
`,
		})

		_, err := loader.Load(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), `concept "count" is defined in both`)
	})

	t.Run("Inference Positions", func(t *testing.T) {
		loader := newLoader(t, map[string]string{
			"a.md": `---
kind: inference
position: "1"
target: x
op: {kind: specification}
values: [y]
---
`,
			"b.md": `---
kind: inference
position: "1"
target: z
op: {kind: specification}
values: [y]
---
`,
		})

		_, err := loader.Load(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "inference 1 is defined in both")
	})
}

func TestLoader_RejectsMalformedDocuments(t *testing.T) {
	t.Run("Missing Kind", func(t *testing.T) {
		loader := newLoader(t, map[string]string{
			"stray.md": `---
name: stray
---
`,
		})

		_, err := loader.Load(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "has no kind")
	})

	t.Run("Unknown Kind", func(t *testing.T) {
		loader := newLoader(t, map[string]string{
			"widget.md": `---
kind: widget
name: widget
---
`,
		})

		_, err := loader.Load(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown kind "widget"`)
	})

	t.Run("Inference Without Position", func(t *testing.T) {
		loader := newLoader(t, map[string]string{
			"drift.md": `---
kind: inference
target: x
op: {kind: specification}
---
`,
		})

		_, err := loader.Load(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "has no position")
	})
}
