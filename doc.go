/*
Package psylens executes NormCode plans: dependency graphs of concepts whose
values are named-dimension tensors (References) and whose edges are typed
inferences carried out by operators or delegated to external collaborators.

It implements a skip-propagating dataflow engine, separating the plan (what
depends on what) from the run state (which concept holds which value) and
from side-effects (model calls, scripts, prompts, file reads).

# Concept

A plan declares concepts and the inferences between them. Each concept's
value is a Reference: a tensor over named axes whose elements are concrete
values or the skip marker. The engine schedules inferences as their inputs
resolve, runs independent branches concurrently, and treats skip as data:
a gated-out or failed inference resolves its target skip and downstream
work simply computes around the hole. Loops iterate a base collection with
carried state per iteration, and the whole run can be checkpointed into a
snapshot store and resumed or forked later.

# Key Features

  - Named-dimension tensors: elements are addressed by axis name, and the
    combinator algebra (cross product, projection, append, distribution)
    aligns shared axes structurally.
  - Skip propagation: absence is a value, never an error; conditions mask
    work per coordinate, including the external calls that never happen.
  - Explicit state: runs are independent; nothing is global. Snapshots
    capture concept values, unit states and loop frames as JSON.
  - Hexagonal layout: performers, snapshot stores and plan sources are
    ports; adapters cover scripts, prompts, files, Redis and Loam.

# Usage

Initialize an engine from a plan source (a JSON/YAML document or a plan
directory), give it a performer for its collaborations, and run:

	package main

	import (
		"context"
		"fmt"
		"log"
		"os"

		"github.com/lys5588/NormCode-Psylens-sub002"
		"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
		"github.com/lys5588/NormCode-Psylens-sub002/pkg/registry"
	)

	func main() {
		ctx := context.Background()

		// Model-paradigm collaborations served by in-process handlers.
		handlers := registry.New()
		handlers.Register("summarize", func(ctx context.Context, model domain.ModelParadigm, inputs []any) (any, error) {
			return fmt.Sprintf("%d items reviewed", len(inputs)), nil
		})

		eng, err := psylens.Open(ctx, "./review-plan",
			psylens.WithPerformer(psylens.RoutePerformer{Model: handlers}),
		)
		if err != nil {
			log.Fatal(err)
		}

		runner := psylens.NewRunner(os.Stdout)
		if err := runner.Run(ctx, eng); err != nil {
			log.Fatal(err)
		}
	}

Plans can equally be assembled in Go with pkg/plan's builder and executed
via New. See the examples directory for loop carries, checkpointing and
the observability hooks.
*/
package psylens
