// Package domain holds the core vocabulary of the execution substrate:
// concepts, inferences, operators, paradigms, flow positions, lifecycle
// events and the typed error taxonomy. Types here are pure description;
// behavior lives in the runtime.
package domain
