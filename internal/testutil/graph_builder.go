package testutil

import (
	"github.com/hupe1980/goalflow/core"
)

// GraphBuilder helps construct graph specs with fluent chaining for tests.
// Example:
//
//	g := NewGraphBuilder("g-1").
//		Node("a", core.NodeFunction).
//		Node("b", core.NodeFunction).
//		Edge("e1", "a", "b", core.EdgeOnSuccess).
//		Entry("a").Terminal("b").
//		Build()
type GraphBuilder struct {
	graph core.GraphSpec
}

// NewGraphBuilder creates a new builder for a graph with the given id.
// Use chainable methods (Node, Edge, Entry, ...) then call Build.
func NewGraphBuilder(id string) *GraphBuilder {
	return &GraphBuilder{graph: core.GraphSpec{ID: id, Version: 1}}
}

// Goal sets the goal id the graph pursues (chainable).
func (b *GraphBuilder) Goal(goalID string) *GraphBuilder {
	b.graph.GoalID = goalID
	return b
}

// Node appends a node of the given type. Optional mutators adjust the spec
// in place, e.g. to set output keys or retry limits (chainable).
func (b *GraphBuilder) Node(id string, typ core.NodeType, fns ...func(n *core.NodeSpec)) *GraphBuilder {
	n := core.NodeSpec{ID: id, Name: id, Type: typ}
	for _, fn := range fns {
		fn(&n)
	}
	b.graph.Nodes = append(b.graph.Nodes, n)
	return b
}

// Edge appends an edge with the given condition. Optional mutators adjust
// the spec in place, e.g. to set priority or a guard expression (chainable).
func (b *GraphBuilder) Edge(id, source, target string, cond core.EdgeCondition, fns ...func(e *core.EdgeSpec)) *GraphBuilder {
	e := core.EdgeSpec{ID: id, Source: source, Target: target, Condition: cond}
	for _, fn := range fns {
		fn(&e)
	}
	b.graph.Edges = append(b.graph.Edges, e)
	return b
}

// Conditional appends a conditional edge guarded by expr (chainable).
func (b *GraphBuilder) Conditional(id, source, target, expr string, fns ...func(e *core.EdgeSpec)) *GraphBuilder {
	return b.Edge(id, source, target, core.EdgeConditional, append([]func(e *core.EdgeSpec){func(e *core.EdgeSpec) {
		e.ConditionExpr = expr
	}}, fns...)...)
}

// Entry sets the entry node (chainable).
func (b *GraphBuilder) Entry(id string) *GraphBuilder {
	b.graph.EntryNode = id
	return b
}

// EntryPoint registers a named resumption target (chainable).
func (b *GraphBuilder) EntryPoint(label, target string) *GraphBuilder {
	if b.graph.EntryPoints == nil {
		b.graph.EntryPoints = map[string]string{}
	}
	b.graph.EntryPoints[label] = target
	return b
}

// Terminal marks the given nodes as terminal (chainable).
func (b *GraphBuilder) Terminal(ids ...string) *GraphBuilder {
	b.graph.TerminalNodes = append(b.graph.TerminalNodes, ids...)
	return b
}

// Pause marks the given nodes as pause-capable (chainable).
func (b *GraphBuilder) Pause(ids ...string) *GraphBuilder {
	b.graph.PauseNodes = append(b.graph.PauseNodes, ids...)
	return b
}

// Build returns the assembled *core.GraphSpec.
func (b *GraphBuilder) Build() *core.GraphSpec {
	g := b.graph
	return &g
}
