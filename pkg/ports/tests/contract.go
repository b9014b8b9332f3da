package tests

import (
	"context"
	"testing"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/ports"
)

// PlanLoaderContractTest is a reusable test suite that verifies if an
// adapter complies with ports.PlanLoader. wantConcepts and wantInferences
// describe the fixture the loader was set up with.
func PlanLoaderContractTest(t *testing.T, loader ports.PlanLoader, wantConcepts, wantInferences []string) {
	t.Helper()

	plan, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error loading plan: %v", err)
	}
	if plan == nil {
		t.Fatal("loader returned a nil plan")
	}

	t.Run("Concepts", func(t *testing.T) {
		if len(plan.Concepts) != len(wantConcepts) {
			t.Errorf("expected %d concepts, got %d", len(wantConcepts), len(plan.Concepts))
		}
		for _, name := range wantConcepts {
			if plan.Concept(name) == nil {
				t.Errorf("concept %s missing from plan", name)
			}
		}
	})

	t.Run("Inferences", func(t *testing.T) {
		if len(plan.Inferences) != len(wantInferences) {
			t.Errorf("expected %d inferences, got %d", len(wantInferences), len(plan.Inferences))
		}
		lookup := make(map[string]bool)
		for _, inf := range plan.Inferences {
			lookup[string(inf.Position)] = true
		}
		for _, pos := range wantInferences {
			if !lookup[pos] {
				t.Errorf("inference %s missing from plan", pos)
			}
		}
	})
}
