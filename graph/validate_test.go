package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/goalflow/core"
)

func validGraph() *core.GraphSpec {
	return &core.GraphSpec{
		ID:            "g-1",
		GoalID:        "goal-1",
		Version:       1,
		EntryNode:     "a",
		TerminalNodes: []string{"b"},
		Nodes: []core.NodeSpec{
			{ID: "a", Name: "A", Type: core.NodeFunction},
			{ID: "b", Name: "B", Type: core.NodeFunction},
		},
		Edges: []core.EdgeSpec{
			{ID: "e1", Source: "a", Target: "b", Condition: core.EdgeOnSuccess},
		},
	}
}

func TestValidateAcceptsValidGraph(t *testing.T) {
	res := Validate(validGraph())
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
	assert.NoError(t, res.Err("g-1"))
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(g *core.GraphSpec)
		wantMsg string
	}{
		{
			name:    "no nodes",
			mutate:  func(g *core.GraphSpec) { g.Nodes = nil; g.Edges = nil; g.TerminalNodes = nil; g.EntryNode = "" },
			wantMsg: "has no nodes",
		},
		{
			name:    "duplicate node id",
			mutate:  func(g *core.GraphSpec) { g.Nodes = append(g.Nodes, core.NodeSpec{ID: "a", Type: core.NodeFunction}) },
			wantMsg: `duplicate node id "a"`,
		},
		{
			name:    "unknown node type",
			mutate:  func(g *core.GraphSpec) { g.Nodes[0].Type = "quantum" },
			wantMsg: `unknown node_type "quantum"`,
		},
		{
			name:    "missing entry node",
			mutate:  func(g *core.GraphSpec) { g.EntryNode = "" },
			wantMsg: "entry_node is required",
		},
		{
			name:    "unknown entry node",
			mutate:  func(g *core.GraphSpec) { g.EntryNode = "ghost" },
			wantMsg: `entry_node "ghost"`,
		},
		{
			name:    "dangling edge source",
			mutate:  func(g *core.GraphSpec) { g.Edges[0].Source = "ghost" },
			wantMsg: `unknown source node "ghost"`,
		},
		{
			name:    "dangling edge target",
			mutate:  func(g *core.GraphSpec) { g.Edges[0].Target = "ghost" },
			wantMsg: `unknown target node "ghost"`,
		},
		{
			name: "duplicate edge id",
			mutate: func(g *core.GraphSpec) {
				g.Edges = append(g.Edges, core.EdgeSpec{ID: "e1", Source: "a", Target: "b", Condition: core.EdgeAlways})
			},
			wantMsg: `duplicate edge id "e1"`,
		},
		{
			name:    "unknown edge condition",
			mutate:  func(g *core.GraphSpec) { g.Edges[0].Condition = "sometimes" },
			wantMsg: `unknown condition "sometimes"`,
		},
		{
			name:    "conditional edge without expression",
			mutate:  func(g *core.GraphSpec) { g.Edges[0].Condition = core.EdgeConditional },
			wantMsg: "no condition_expr",
		},
		{
			name: "conditional edge with malformed expression",
			mutate: func(g *core.GraphSpec) {
				g.Edges[0].Condition = core.EdgeConditional
				g.Edges[0].ConditionExpr = "score >="
			},
			wantMsg: `edge "e1"`,
		},
		{
			name:    "unknown entry point target",
			mutate:  func(g *core.GraphSpec) { g.EntryPoints = map[string]string{"default": "ghost"} },
			wantMsg: `entry_point "default"`,
		},
		{
			name:    "unknown terminal node",
			mutate:  func(g *core.GraphSpec) { g.TerminalNodes = append(g.TerminalNodes, "ghost") },
			wantMsg: `terminal node "ghost"`,
		},
		{
			name:    "unknown pause node",
			mutate:  func(g *core.GraphSpec) { g.PauseNodes = []string{"ghost"} },
			wantMsg: `pause node "ghost"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := validGraph()
			tt.mutate(g)

			res := Validate(g)
			assert.False(t, res.Valid)
			assert.True(t, containsMessage(res.Errors, tt.wantMsg), "errors %v should contain %q", res.Errors, tt.wantMsg)

			var structErr *core.StructuralError
			require.ErrorAs(t, res.Err(g.ID), &structErr)
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(g *core.GraphSpec)
		wantMsg string
	}{
		{
			name: "unreachable node",
			mutate: func(g *core.GraphSpec) {
				g.Nodes = append(g.Nodes, core.NodeSpec{ID: "island", Type: core.NodeFunction})
				g.TerminalNodes = append(g.TerminalNodes, "island")
			},
			wantMsg: `node "island" is unreachable`,
		},
		{
			name:    "router without routes",
			mutate:  func(g *core.GraphSpec) { g.Nodes[0].Type = core.NodeRouter },
			wantMsg: "declares no routes",
		},
		{
			name: "terminal node with outgoing edges",
			mutate: func(g *core.GraphSpec) {
				g.Edges = append(g.Edges, core.EdgeSpec{ID: "e2", Source: "b", Target: "a", Condition: core.EdgeAlways})
			},
			wantMsg: `terminal node "b" has outgoing edges`,
		},
		{
			name: "dead end node",
			mutate: func(g *core.GraphSpec) {
				g.Nodes = append(g.Nodes, core.NodeSpec{ID: "c", Type: core.NodeFunction})
				g.Edges = append(g.Edges, core.EdgeSpec{ID: "e2", Source: "a", Target: "c", Condition: core.EdgeOnFailure})
			},
			wantMsg: `node "c" has no outgoing edges`,
		},
		{
			name:    "ignored condition expression",
			mutate:  func(g *core.GraphSpec) { g.Edges[0].ConditionExpr = "score > 1" },
			wantMsg: "the expression is ignored",
		},
		{
			name: "pause node resume_label without entry point",
			mutate: func(g *core.GraphSpec) {
				g.PauseNodes = []string{"a"}
				g.Nodes[0].ResumeLabel = "after_review"
			},
			wantMsg: `resume_label "after_review"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := validGraph()
			tt.mutate(g)

			res := Validate(g)
			assert.True(t, res.Valid, "warnings must not invalidate the graph: %v", res.Errors)
			assert.True(t, containsMessage(res.Warnings, tt.wantMsg), "warnings %v should contain %q", res.Warnings, tt.wantMsg)
			assert.NoError(t, res.Err(g.ID))
		})
	}
}

func TestValidateIsIdempotent(t *testing.T) {
	g := validGraph()
	g.Nodes = append(g.Nodes, core.NodeSpec{ID: "island", Type: core.NodeFunction})
	g.TerminalNodes = append(g.TerminalNodes, "island")

	first := Validate(g)
	second := Validate(g)
	assert.Equal(t, first, second)
}

func TestValidateNilGraph(t *testing.T) {
	res := Validate(nil)
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "nil")
}

func containsMessage(msgs []string, want string) bool {
	for _, m := range msgs {
		if strings.Contains(m, want) {
			return true
		}
	}
	return false
}
