// Package invoke implements core.NodeInvoker on top of the model and tool
// subsystems. It dispatches by node type: llm_generate renders the node's
// system prompt and maps the model output onto the declared output keys,
// llm_tool_use drives a bounded multi-turn function-calling loop against the
// tool registry, router resolves a registered RouterFunc or asks the model to
// pick one of the declared routes, and function runs a registered Go handler.
//
// The invoker performs exactly one attempt per Invoke call; retry policy is
// the executor's concern.
package invoke
