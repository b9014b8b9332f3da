/*
Package plan reads and writes plan documents and provides a fluent builder
for constructing plans in code.

Documents are JSON or YAML with one mapping per concept and per inference.
Operator and paradigm parameters sit flat beside their kind, values accept
the "concept@version" shorthand and gates the "!source" shorthand:

	name: review
	concepts:
	  - {name: items, type: collection, axes: [item], ground: [a, b]}
	  - {name: item, type: entity}
	  - {name: loud, type: entity}
	  - {name: shout, type: actor, paradigm: {kind: model, name: shout, output: str}}
	  - {name: out, type: collection, axes: [n], ground: []}
	inferences:
	  - {position: "1", target: item, op: {kind: loop}, loop: {base: items, axis: item}}
	  - {position: "1.1", target: loud, op: {kind: apply}, actor: shout, values: [item]}
	  - {position: "1.2", target: out, op: {kind: continuation, axis: n}, values: [loud], after: ["1.1"]}

Decode and DecodeYAML read raw bytes, Load switches on the file extension,
and Encode/EncodeYAML render a plan back out in the same shape.

The builder covers the same ground with type checking and IDE completion.
It is the convenient route in tests and generators:

	b := plan.New("review")
	b.Collection("items", "item").Ground([]any{"a", "b"})
	b.Entity("item")
	b.Entity("loud")
	b.Actor("shout").Model("shout").Output("str")
	b.Collection("out", "n").Ground([]any{})

	b.Infer("1").Loop("item", "items", "item")
	b.Infer("1.1").Apply("loud", "shout", "item")
	b.Infer("1.2").Continue("out", "n", "loud").After("1.1")

	p, err := b.Build()

Build derives loop nesting depths from the inference positions and validates
the assembled plan, so a successfully built plan is ready to run.
*/
package plan
