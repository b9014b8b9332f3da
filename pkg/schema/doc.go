// Package schema validates collaborator results against declared type
// strings.
//
// A functional concept's paradigm may declare the shape its collaborator
// must return ("str", "int", "list[str]", "dict[float]", ...). The runtime
// checks each result before accepting it, so a misbehaving collaborator is
// caught at the boundary and retried instead of corrupting downstream
// references.
//
// Basic usage:
//
//	if err := schema.Check("list[str]", result); err != nil {
//	    // reject the result
//	}
//
// Types can also be built programmatically:
//
//	typ := schema.List(schema.Str())
//	err := typ.Validate(result)
//
// Custom validators can be registered for domain-specific checks:
//
//	sentiment := schema.Custom("sentiment", func(v any) error {
//	    s, ok := v.(string)
//	    if !ok || (s != "pos" && s != "neg") {
//	        return fmt.Errorf("expected pos or neg")
//	    }
//	    return nil
//	})
//
// This package is designed to be library-agnostic, with zero external
// dependencies beyond the Go standard library.
package schema
