/*
Package observability wires engine lifecycle hooks into monitoring backends.

It ships a prometheus Metrics bundle counting inferences by outcome, performer
retries and loop iterations, with a latency histogram for inference execution,
and an Aggregate combinator that fans one event stream out to several hook
sets (logging, metrics, SSE) without the engine knowing about any of them.
*/
package observability
