// Package condition evaluates edge guards for graph transitions.
//
// Edges carry one of four conditions: on_success, on_failure, always or
// conditional. The first three are decided purely by whether the source node
// succeeded. Conditional edges carry an HCL expression over run context keys,
// such as "score >= 0.8"; expressions are compiled once and cached, and the
// run context is bound as expression variables on every decision. No
// functions are exposed to guard expressions, keeping them side effect free.
package condition
