// Package reference implements the named-dimension value model of the
// execution substrate: References (rectangular tensors addressed by named
// axes), the skip marker for per-coordinate absence, and the four
// combinators through which References combine.
//
// A Reference holds one element per coordinate. An element is either a
// concrete value or skip. Skip means "no data here": it is ordinary data,
// never an error, and it propagates through every operation that touches
// it, so a skipped coordinate costs nothing downstream.
//
// The combinators are CrossProduct (align shared axes, union the rest),
// Join (stack identically-shaped inputs along a new axis), CrossAction
// (apply callables to values, results along a new axis) and ElementAction
// (position-wise application over identically-shaped inputs). Everything in
// this package is pure: no I/O, no logging, no shared state.
package reference
