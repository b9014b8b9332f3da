package plan

import (
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
)

func TestBuilder_ReviewFlow(t *testing.T) {
	b := New("review")

	b.Collection("items", "item").Ground([]any{"alpha", "beta"})
	b.Entity("item")
	b.Entity("count").Ground(0)
	b.Actor("bump").Model("bump").Template("Add one to {{value}}.").MaxTokens(64).Output("int")
	b.Collection("acc", "n").Ground([]any{})
	b.Truth("ok").Ground(true)
	b.Entity("summary").At("2")

	b.Infer("1").Loop("item", "items", "item")
	b.Infer("1.1").Apply("count", "bump", "count@previous").When("ok")
	b.Infer("1.2").Specify("count", "count@initial").Unless("ok")
	b.Infer("1.3").Continue("acc", "n", "count").After("1.1", "1.2")
	b.Infer("2").Specify("summary", "acc")

	p, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	if p.Name != "review" {
		t.Errorf("plan name = %q, want %q", p.Name, "review")
	}
	if len(p.Concepts) != 7 {
		t.Fatalf("expected 7 concepts, got %d", len(p.Concepts))
	}
	if len(p.Inferences) != 5 {
		t.Fatalf("expected 5 inferences, got %d", len(p.Inferences))
	}

	items := p.Concept("items")
	if items.Type != domain.ConceptCollection {
		t.Errorf("items type = %q, want collection", items.Type)
	}
	if axes := items.SelfAxes(); len(axes) != 1 || axes[0] != "item" {
		t.Errorf("items self axes = %v, want [item]", axes)
	}

	bump := p.Concept("bump")
	if bump.Paradigm == nil || bump.Paradigm.Kind != domain.ParadigmModel {
		t.Fatalf("bump paradigm = %+v, want a model paradigm", bump.Paradigm)
	}
	if bump.Paradigm.Output != "int" {
		t.Errorf("bump output = %q, want int", bump.Paradigm.Output)
	}
	if bump.Paradigm.Model.MaxTokens != 64 {
		t.Errorf("bump max tokens = %d, want 64", bump.Paradigm.Model.MaxTokens)
	}

	if pos := p.Concept("summary").Position; pos != "2" {
		t.Errorf("summary position = %q, want 2", pos)
	}

	driver := p.InferenceAt("1")
	if driver == nil || driver.Loop == nil {
		t.Fatal("expected a loop driver at 1")
	}
	if driver.Loop.Depth != 1 {
		t.Errorf("driver depth = %d, want 1", driver.Loop.Depth)
	}

	apply := p.InferenceAt("1.1")
	if apply.Actor != "bump" {
		t.Errorf("apply actor = %q, want bump", apply.Actor)
	}
	if apply.Gate == nil || apply.Gate.Source != "ok" || apply.Gate.Negated {
		t.Errorf("apply gate = %+v, want on ok", apply.Gate)
	}
	if len(apply.Values) != 1 || apply.Values[0] != domain.PrevRef("count") {
		t.Errorf("apply values = %v, want [count@previous]", apply.Values)
	}

	alt := p.InferenceAt("1.2")
	if alt.Gate == nil || !alt.Gate.Negated {
		t.Errorf("alternative gate = %+v, want negated", alt.Gate)
	}
	if len(alt.Values) != 1 || alt.Values[0] != domain.InitRef("count") {
		t.Errorf("alternative values = %v, want [count@initial]", alt.Values)
	}

	cont := p.InferenceAt("1.3")
	if cont.Op.Kind != domain.OpContinuation || cont.Op.Continuation.Axis != "n" {
		t.Errorf("continuation op = %+v, want axis n", cont.Op)
	}
	if len(cont.After) != 2 {
		t.Errorf("continuation after = %v, want two positions", cont.After)
	}
}

func TestBuilder_NestedLoopDepths(t *testing.T) {
	b := New("fanout")

	b.Collection("docs", "doc").Ground([]any{"d1", "d2"})
	b.Entity("doc")
	b.Collection("parts", "part").Ground([]any{"p1", "p2"})
	b.Entity("part")
	b.Entity("pair")
	b.Collection("pairs", "n").Ground([]any{})

	b.Infer("1").Loop("doc", "docs", "doc")
	b.Infer("1.1").Loop("part", "parts", "part")
	b.Infer("1.1.1").GroupIn("pair", domain.GroupInParams{}, "doc", "part")
	b.Infer("1.1.2").Continue("pairs", "n", "pair").After("1.1.1")

	p, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	if d := p.InferenceAt("1").Loop.Depth; d != 1 {
		t.Errorf("outer loop depth = %d, want 1", d)
	}
	if d := p.InferenceAt("1.1").Loop.Depth; d != 2 {
		t.Errorf("inner loop depth = %d, want 2", d)
	}
}

func TestBuilder_ParadigmShapes(t *testing.T) {
	b := New("paradigms")

	b.Action("load_corpus").FileSource("corpus.yaml", "yaml").Output("dict")
	b.Action("ask").Input("Proceed?").Default("yes").Output("str")
	b.Action("sync").Script("rsync", "-a", "./in", "./out").Timeout(30 * time.Second).Output("str")

	p, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	file := p.Concept("load_corpus").Paradigm
	if file.Kind != domain.ParadigmFile || file.File.Path != "corpus.yaml" || file.File.Format != "yaml" {
		t.Errorf("file paradigm = %+v, want corpus.yaml as yaml", file)
	}

	input := p.Concept("ask").Paradigm
	if input.Kind != domain.ParadigmInput || input.Input.Prompt != "Proceed?" || input.Input.Default != "yes" {
		t.Errorf("input paradigm = %+v, want prompt with default", input)
	}

	script := p.Concept("sync").Paradigm
	if script.Kind != domain.ParadigmScript || script.Script.Command != "rsync" {
		t.Fatalf("script paradigm = %+v, want rsync command", script)
	}
	if len(script.Script.Args) != 3 {
		t.Errorf("script args = %v, want three", script.Script.Args)
	}
	if script.Script.Timeout != 30*time.Second {
		t.Errorf("script timeout = %v, want 30s", script.Script.Timeout)
	}
}

func TestBuilder_CollectsMisuse(t *testing.T) {
	b := New("broken")

	b.Entity("x").Template("T").MaxTokens(9)
	b.Entity("y").Timeout(time.Second)
	b.Entity("z").Default("d")

	_, err := b.Build()
	if err == nil {
		t.Fatal("Build() succeeded, want paradigm misuse errors")
	}
	if !errors.Is(err, domain.ErrPlanInvalid) {
		t.Errorf("error %v is not plan-invalid", err)
	}
	for _, want := range []string{
		`concept "x": Template needs Model first`,
		`concept "x": MaxTokens needs Model first`,
		`concept "y": Timeout needs Script first`,
		`concept "z": Default needs Input first`,
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestBuilder_BadValueShorthand(t *testing.T) {
	b := New("broken")

	b.Entity("dst")
	b.Infer("1").Specify("dst", "src@soon")

	_, err := b.Build()
	if err == nil {
		t.Fatal("Build() succeeded, want a shorthand error")
	}
	if !strings.Contains(err.Error(), `value reference "src@soon"`) {
		t.Errorf("error %q does not name the bad reference", err)
	}
}

func TestBuilder_SurfacesValidationProblems(t *testing.T) {
	b := New("ghostly")

	b.Entity("dst")
	b.Infer("1").Keep("dst", "ghost")

	_, err := b.Build()
	if err == nil {
		t.Fatal("Build() succeeded, want validation problems")
	}
	if !errors.Is(err, domain.ErrPlanInvalid) {
		t.Errorf("error %v is not plan-invalid", err)
	}
	if !strings.Contains(err.Error(), `"ghost"`) {
		t.Errorf("error %q does not name the missing concept", err)
	}
	if !strings.Contains(err.Error(), "problem(s)") {
		t.Errorf("error %q is not the collected validation report", err)
	}
}
