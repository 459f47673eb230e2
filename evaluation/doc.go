// Package evaluation implements the test side of goalflow: generating tests
// from a goal, gating them through a one-way approval state machine, running
// the approved ones concurrently against a built graph, judging their
// outcomes and classifying failures into actionable categories.
//
// The Manager owns the lifecycle (pending -> approved | modified | rejected),
// the Runner executes runnable tests grouped by parent criterion, the Judge
// decides pass/fail of a completed run, and the Categorizer maps failure text
// to a root-cause category with iteration guidance.
package evaluation
