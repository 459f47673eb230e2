// Package executor interprets workflow graphs.
//
// A run starts at the graph's entry node with an input context and proceeds
// node by node. Each node is invoked through a core.NodeInvoker; on success
// its outputs merge into the shared run context, on error the node is
// retried up to its declared retry budget and then routed through on_failure
// edges when any are eligible. Outgoing edges are considered in descending
// priority order with the edge id as tiebreaker, and the first eligible edge
// is taken, making every transition deterministic and attributable.
//
// A run finishes in exactly one of three ways: it reaches a terminal node,
// it pauses at a pause-capable node whose invocation requested external
// input, or it fails with a fatal error (a structural defect, an exhausted
// node with no failure route, a stuck state with no eligible edge, or the
// step limit). Paused runs persist a snapshot through core.PauseStore and
// are continued later with Resume, which restarts at the entry point named
// by the snapshot's resume label.
package executor
