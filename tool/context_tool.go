package tool

import (
	"fmt"

	"github.com/hupe1980/goalflow/core"
)

// InputRequestKey is the context key the request_user_input operation writes
// its prompt to, so the question survives in the pause snapshot and can be
// shown to whoever supplies the input.
const InputRequestKey = "input_request"

// ContextTool exposes the shared run context to models as a callable tool.
//
// It provides the operations a tool-use node needs to cooperate with the
// surrounding run:
//   - get_value reads a context key
//   - set_value writes a context key, visible to downstream nodes
//   - list_keys enumerates the available context keys
//   - request_user_input signals that the run should suspend for external
//     input; the signal only takes effect on pause-capable nodes
type ContextTool struct {
	name        string
	description string
}

// NewContextTool creates the run context tool.
func NewContextTool() *ContextTool {
	return &ContextTool{
		name: "run_context",
		description: "Reads and writes the shared run context and can request external input. " +
			"Supports operations: get_value, set_value, list_keys, request_user_input.",
	}
}

// Name returns the tool identifier.
func (t *ContextTool) Name() string {
	return t.name
}

// Description returns the tool description.
func (t *ContextTool) Description() string {
	return t.description
}

// Parameters returns the JSON schema for tool parameters.
func (t *ContextTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"operation": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"get_value", "set_value", "list_keys", "request_user_input"},
				"description": "The context operation to perform",
			},
			"key": map[string]interface{}{
				"type":        "string",
				"description": "Context key for get_value/set_value operations",
			},
			"value": map[string]interface{}{
				"description": "Value for set_value operations (any type)",
			},
			"prompt": map[string]interface{}{
				"type":        "string",
				"description": "Question to present when requesting user input",
			},
			"resume_label": map[string]interface{}{
				"type":        "string",
				"description": "Entry point label to resume at after input arrives (optional)",
			},
		},
		"required": []string{"operation"},
	}
}

// Call implements the Tool interface with structured arguments.
func (t *ContextTool) Call(toolCtx *core.ToolContext, args map[string]interface{}) (interface{}, error) {
	operation, ok := args["operation"].(string)
	if !ok || operation == "" {
		return nil, NewToolError(t.name, "operation parameter is required", "VALIDATION_ERROR")
	}

	switch operation {
	case "get_value":
		return t.handleGetValue(toolCtx, args)
	case "set_value":
		return t.handleSetValue(toolCtx, args)
	case "list_keys":
		return map[string]interface{}{"keys": toolCtx.Keys()}, nil
	case "request_user_input":
		return t.handleRequestUserInput(toolCtx, args)
	default:
		return nil, NewToolError(t.name, fmt.Sprintf("unknown operation %q", operation), "VALIDATION_ERROR")
	}
}

func (t *ContextTool) handleGetValue(toolCtx *core.ToolContext, args map[string]interface{}) (interface{}, error) {
	key, ok := args["key"].(string)
	if !ok || key == "" {
		return nil, NewToolError(t.name, "key parameter is required for get_value", "VALIDATION_ERROR")
	}

	value, found := toolCtx.GetValue(key)
	return map[string]interface{}{
		"key":   key,
		"value": value,
		"found": found,
	}, nil
}

func (t *ContextTool) handleSetValue(toolCtx *core.ToolContext, args map[string]interface{}) (interface{}, error) {
	key, ok := args["key"].(string)
	if !ok || key == "" {
		return nil, NewToolError(t.name, "key parameter is required for set_value", "VALIDATION_ERROR")
	}

	toolCtx.SetValue(key, args["value"])
	toolCtx.Logger().Debug("tool.context.set", "tool", t.name, "key", key)

	return map[string]interface{}{
		"key":    key,
		"status": "ok",
	}, nil
}

func (t *ContextTool) handleRequestUserInput(toolCtx *core.ToolContext, args map[string]interface{}) (interface{}, error) {
	if prompt, ok := args["prompt"].(string); ok && prompt != "" {
		toolCtx.SetValue(InputRequestKey, prompt)
	}

	label, _ := args["resume_label"].(string)
	toolCtx.RequestUserInput(label)
	toolCtx.Logger().Info("tool.context.await_input", "tool", t.name, "node_id", toolCtx.NodeID(), "resume_label", label)

	return map[string]interface{}{
		"status": "awaiting_input",
	}, nil
}
