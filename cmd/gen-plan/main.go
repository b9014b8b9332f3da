package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/loam"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/adapters/loamplan"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/plan"
)

// gen-plan writes a known-good document plan to disk: a gated review
// flow with a model actor and a fallback. It doubles as a smoke test of
// the writer/loader round trip and as seed material for the run, watch
// and serve commands.
func main() {
	targetDir := "examples/golden-plan"
	if len(os.Args) > 1 {
		targetDir = os.Args[1]
	}

	if err := os.MkdirAll(targetDir, 0755); err != nil {
		panic(err)
	}

	fmt.Printf("Generating golden plan in: %s\n", targetDir)

	b := plan.New("golden")
	b.Collection("documents", "doc").Ground([]any{
		"quarterly report",
		"incident postmortem",
	})
	b.Truth("review_enabled").Ground(true)
	b.Actor("reviewer").Model("reviewer").
		Template("Review the following document and summarize it: {input}").
		Output("str")
	b.Collection("reviews").DependentAxes("doc")
	b.Collection("fallback").DependentAxes("doc")
	b.Collection("outcome").DependentAxes("doc")

	b.Infer("1").Apply("reviews", "reviewer", "documents").When("review_enabled")
	b.Infer("2").Literal("fallback", []any{"unreviewed", "unreviewed"}, "doc")
	b.Infer("3").Specify("outcome", "reviews", "fallback")

	p, err := b.Build()
	check(err)

	// No versioning: pure file generation, like a level editor saving
	// to disk.
	writer, err := loamplan.OpenWriter(targetDir, loam.WithVersioning(false))
	check(err)
	check(writer.Save(context.TODO(), p))

	fmt.Println("Done. Verify contents in", targetDir)
}

func check(err error) {
	if err != nil {
		panic(err)
	}
}
