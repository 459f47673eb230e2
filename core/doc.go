// Package core provides the foundational domain types, interfaces and
// execution contexts used by goalflow. It defines the core abstractions for:
//
//   - Goals (success criteria and constraints an agent is built against)
//   - Graph specifications (typed nodes joined by condition-bearing edges)
//   - Execution state (run cursor, pause snapshots, results)
//   - Node invocation (the opaque capability contract the executor drives)
//   - Tests (generated checks moving through an approval state machine)
//   - Pluggable stores for paused runs, tests and run records
//
// The package intentionally keeps implementation concerns (persistence,
// condition evaluation, the executor itself, model backends) out of scope,
// exposing small interfaces to enable custom backends and extensions.
package core
