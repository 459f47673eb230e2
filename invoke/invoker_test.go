package invoke

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/goalflow/core"
	"github.com/hupe1980/goalflow/model"
	"github.com/hupe1980/goalflow/tool"
)

func invocation(node core.NodeSpec, input map[string]any) core.Invocation {
	return core.Invocation{RunID: "run-1", Node: node, Input: input, Attempt: 1}
}

func TestInvokeFunctionNode(t *testing.T) {
	inv := New(nil)
	inv.RegisterFunc("double", func(_ context.Context, input map[string]any) (map[string]any, error) {
		n := input["n"].(int)
		return map[string]any{"result": n * 2}, nil
	})

	res, err := inv.Invoke(context.Background(), invocation(
		core.NodeSpec{ID: "double", Type: core.NodeFunction},
		map[string]any{"n": 21},
	))
	require.NoError(t, err)
	assert.Equal(t, 42, res.Outputs["result"])
}

func TestInvokeFunctionNodeByName(t *testing.T) {
	inv := New(nil)
	inv.RegisterFunc("classify", func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return map[string]any{"category": "billing"}, nil
	})

	res, err := inv.Invoke(context.Background(), invocation(
		core.NodeSpec{ID: "n-7", Name: "classify", Type: core.NodeFunction},
		nil,
	))
	require.NoError(t, err)
	assert.Equal(t, "billing", res.Outputs["category"])
}

func TestInvokeFunctionNodeUnregistered(t *testing.T) {
	inv := New(nil)
	_, err := inv.Invoke(context.Background(), invocation(
		core.NodeSpec{ID: "missing", Type: core.NodeFunction},
		nil,
	))
	assert.ErrorContains(t, err, "no function registered")
}

func TestInvokeFunctionNodeError(t *testing.T) {
	inv := New(nil)
	inv.RegisterFunc("boom", func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return nil, errors.New("backend unavailable")
	})

	_, err := inv.Invoke(context.Background(), invocation(
		core.NodeSpec{ID: "boom", Type: core.NodeFunction},
		nil,
	))
	assert.ErrorContains(t, err, "backend unavailable")
}

func TestInvokeRouterFunc(t *testing.T) {
	inv := New(nil)
	inv.RegisterRouter("triage", func(_ context.Context, input map[string]any) (string, error) {
		if input["urgent"] == true {
			return "escalate", nil
		}
		return "queue", nil
	})

	node := core.NodeSpec{ID: "triage", Type: core.NodeRouter, OutputKeys: []string{"route"}}

	res, err := inv.Invoke(context.Background(), invocation(node, map[string]any{"urgent": true}))
	require.NoError(t, err)
	assert.Equal(t, "escalate", res.Outputs["route"])

	res, err = inv.Invoke(context.Background(), invocation(node, map[string]any{"urgent": false}))
	require.NoError(t, err)
	assert.Equal(t, "queue", res.Outputs["route"])
}

func TestInvokeRouterViaModel(t *testing.T) {
	m := model.NewMockModel("router-test")
	m.AddTurns(model.MockTurn{Calls: []core.FunctionCall{{
		Name:      SelectRouteTool,
		Arguments: `{"route":"refund"}`,
	}}})

	inv := New(m)
	res, err := inv.Invoke(context.Background(), invocation(
		core.NodeSpec{ID: "triage", Type: core.NodeRouter, Routes: []string{"refund", "escalate"}},
		map[string]any{"ticket": "money back please"},
	))
	require.NoError(t, err)
	assert.Equal(t, "refund", res.Outputs["route"])
}

func TestInvokeRouterViaModelRejectsUndeclaredRoute(t *testing.T) {
	m := model.NewMockModel("router-test")
	m.AddTurns(model.MockTurn{Calls: []core.FunctionCall{{
		Name:      SelectRouteTool,
		Arguments: `{"route":"nonsense"}`,
	}}})

	inv := New(m)
	_, err := inv.Invoke(context.Background(), invocation(
		core.NodeSpec{ID: "triage", Type: core.NodeRouter, Routes: []string{"refund"}},
		nil,
	))
	assert.ErrorContains(t, err, "undeclared route")
}

func TestInvokeGenerateMapsOutputKeys(t *testing.T) {
	m := model.NewMockModel("gen-test")
	m.AddTurns(model.MockTurn{Text: `{"summary":"short","sentiment":"positive"}`})

	inv := New(m)
	res, err := inv.Invoke(context.Background(), invocation(
		core.NodeSpec{
			ID:         "summarize",
			Type:       core.NodeLLMGenerate,
			OutputKeys: []string{"raw", "summary", "sentiment"},
		},
		map[string]any{"text": "a long document"},
	))
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"short","sentiment":"positive"}`, res.Outputs["raw"])
	assert.Equal(t, "short", res.Outputs["summary"])
	assert.Equal(t, "positive", res.Outputs["sentiment"])
}

func TestInvokeGenerateRendersSystemPrompt(t *testing.T) {
	m := model.NewMockModel("gen-test")
	m.AddTurns(model.MockTurn{Text: "done"})

	inv := New(m)
	_, err := inv.Invoke(context.Background(), invocation(
		core.NodeSpec{
			ID:           "draft",
			Type:         core.NodeLLMGenerate,
			SystemPrompt: "Summarize for {{.audience}}.",
			OutputKeys:   []string{"draft"},
		},
		map[string]any{"audience": "executives"},
	))
	require.NoError(t, err)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Summarize for executives.", reqs[0].Instructions)
}

func TestInvokeToolUseLoop(t *testing.T) {
	registry := tool.NewRegistry(tool.NewFunctionTool(
		"lookup_order",
		"Look up an order by id",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"order_id": map[string]any{"type": "string"},
			},
			"required": []string{"order_id"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			tc.SetValue("order_status", "shipped")
			return map[string]any{"status": "shipped"}, nil
		},
	))

	m := model.NewMockModel("tool-test")
	m.AddTurns(
		model.MockTurn{Calls: []core.FunctionCall{{ID: "c1", Name: "lookup_order", Arguments: `{"order_id":"o-1"}`}}},
		model.MockTurn{Text: "Order o-1 has shipped."},
	)

	inv := New(m, func(o *Options) { o.Registry = registry })
	res, err := inv.Invoke(context.Background(), invocation(
		core.NodeSpec{
			ID:         "support",
			Type:       core.NodeLLMToolUse,
			Tools:      []string{"lookup_order"},
			OutputKeys: []string{"reply"},
		},
		map[string]any{"order_id": "o-1"},
	))
	require.NoError(t, err)
	assert.False(t, res.AwaitingInput)
	assert.Equal(t, "Order o-1 has shipped.", res.Outputs["reply"])
	// Context writes from the tool survive as node outputs.
	assert.Equal(t, "shipped", res.Outputs["order_status"])
}

func TestInvokeToolUseRequestInput(t *testing.T) {
	m := model.NewMockModel("tool-test")
	m.AddTurns(model.MockTurn{Calls: []core.FunctionCall{{
		ID:        "c1",
		Name:      RequestInputTool,
		Arguments: `{"prompt":"Which account?","resume_label":"after_input"}`,
	}}})

	inv := New(m)
	res, err := inv.Invoke(context.Background(), invocation(
		core.NodeSpec{ID: "clarify", Type: core.NodeLLMToolUse},
		nil,
	))
	require.NoError(t, err)
	assert.True(t, res.AwaitingInput)
	assert.Equal(t, "after_input", res.ResumeLabel)
	assert.Equal(t, "Which account?", res.Outputs[tool.InputRequestKey])
}

func TestInvokeToolUseTurnLimit(t *testing.T) {
	registry := tool.NewRegistry(tool.NewFunctionTool(
		"noop", "does nothing",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(*core.ToolContext, map[string]any) (any, error) { return "ok", nil },
	))

	m := model.NewMockModel("tool-test")
	m.AddTurns(
		model.MockTurn{Calls: []core.FunctionCall{{ID: "c1", Name: "noop", Arguments: `{}`}}},
		model.MockTurn{Calls: []core.FunctionCall{{ID: "c2", Name: "noop", Arguments: `{}`}}},
		model.MockTurn{Calls: []core.FunctionCall{{ID: "c3", Name: "noop", Arguments: `{}`}}},
	)

	inv := New(m, func(o *Options) {
		o.Registry = registry
		o.MaxToolTurns = 2
	})
	_, err := inv.Invoke(context.Background(), invocation(
		core.NodeSpec{ID: "loop", Type: core.NodeLLMToolUse, Tools: []string{"noop"}},
		nil,
	))
	assert.ErrorContains(t, err, "exceeded 2 tool turns")
}

func TestInvokeUnknownNodeType(t *testing.T) {
	inv := New(nil)
	_, err := inv.Invoke(context.Background(), invocation(
		core.NodeSpec{ID: "x", Type: core.NodeType("teleport")},
		nil,
	))
	assert.ErrorContains(t, err, "unknown type")
}

func TestMapOutputs(t *testing.T) {
	tests := []struct {
		name string
		node core.NodeSpec
		text string
		want map[string]any
	}{
		{
			name: "no keys defaults to output",
			node: core.NodeSpec{ID: "n"},
			text: "hello",
			want: map[string]any{"output": "hello"},
		},
		{
			name: "single key raw text",
			node: core.NodeSpec{ID: "n", OutputKeys: []string{"answer"}},
			text: "42",
			want: map[string]any{"answer": "42"},
		},
		{
			name: "extra keys from json",
			node: core.NodeSpec{ID: "n", OutputKeys: []string{"raw", "score"}},
			text: `{"score": 0.9}`,
			want: map[string]any{"raw": `{"score": 0.9}`, "score": 0.9},
		},
		{
			name: "extra keys ignored for non-json",
			node: core.NodeSpec{ID: "n", OutputKeys: []string{"raw", "score"}},
			text: "not json",
			want: map[string]any{"raw": "not json"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mapOutputs(tt.node, tt.text))
		})
	}
}
