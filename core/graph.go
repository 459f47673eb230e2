package core

import "sort"

// NodeType enumerates the recognized kinds of work units. The set is closed;
// dispatch sites switch exhaustively over these values.
type NodeType string

const (
	// NodeLLMGenerate is a single language-model generation step.
	NodeLLMGenerate NodeType = "llm_generate"
	// NodeLLMToolUse is a language-model step that may call registered tools.
	NodeLLMToolUse NodeType = "llm_tool_use"
	// NodeRouter selects one of several routes based on context.
	NodeRouter NodeType = "router"
	// NodeFunction is a deterministic, registered Go function.
	NodeFunction NodeType = "function"
)

// Valid reports whether t is one of the recognized node types.
func (t NodeType) Valid() bool {
	switch t {
	case NodeLLMGenerate, NodeLLMToolUse, NodeRouter, NodeFunction:
		return true
	}
	return false
}

// EdgeCondition enumerates the transition predicates an edge can carry.
type EdgeCondition string

const (
	// EdgeOnSuccess fires when the source node completed without error.
	EdgeOnSuccess EdgeCondition = "on_success"
	// EdgeOnFailure fires when the source node raised an error signal,
	// including exhausted retries.
	EdgeOnFailure EdgeCondition = "on_failure"
	// EdgeAlways fires regardless of the source node's outcome.
	EdgeAlways EdgeCondition = "always"
	// EdgeConditional fires when the edge's expression evaluates truthy
	// against the current context.
	EdgeConditional EdgeCondition = "conditional"
)

// Valid reports whether c is one of the recognized edge conditions.
func (c EdgeCondition) Valid() bool {
	switch c {
	case EdgeOnSuccess, EdgeOnFailure, EdgeAlways, EdgeConditional:
		return true
	}
	return false
}

// NodeSpec declares a unit of work in the graph.
type NodeSpec struct {
	ID           string   `yaml:"id" json:"id"`
	Name         string   `yaml:"name" json:"name"`
	Type         NodeType `yaml:"node_type" json:"node_type"`
	InputKeys    []string `yaml:"input_keys,omitempty" json:"input_keys,omitempty"`
	OutputKeys   []string `yaml:"output_keys,omitempty" json:"output_keys,omitempty"`
	SystemPrompt string   `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
	Tools        []string `yaml:"tools,omitempty" json:"tools,omitempty"`
	// Routes lists the route keys a router node may emit.
	Routes []string `yaml:"routes,omitempty" json:"routes,omitempty"`
	// ResumeLabel names the entry point used when a run paused at this node
	// is resumed. Empty means "default".
	ResumeLabel string `yaml:"resume_label,omitempty" json:"resume_label,omitempty"`
	MaxRetries  int    `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
}

// EdgeSpec declares a directed, conditioned transition between two nodes.
type EdgeSpec struct {
	ID        string        `yaml:"id" json:"id"`
	Source    string        `yaml:"source" json:"source"`
	Target    string        `yaml:"target" json:"target"`
	Condition EdgeCondition `yaml:"condition" json:"condition"`
	// ConditionExpr is required iff Condition is EdgeConditional: a boolean
	// expression over context keys, e.g. "score >= 0.8".
	ConditionExpr string `yaml:"condition_expr,omitempty" json:"condition_expr,omitempty"`
	Priority      int    `yaml:"priority,omitempty" json:"priority,omitempty"`
}

// GraphSpec is the full declarative workflow definition. It is immutable
// after validation; concurrent runs share it read-only.
type GraphSpec struct {
	ID      string `yaml:"id" json:"id"`
	GoalID  string `yaml:"goal_id" json:"goal_id"`
	Version int    `yaml:"version" json:"version"`
	// EntryNode is where a fresh run starts.
	EntryNode string `yaml:"entry_node" json:"entry_node"`
	// EntryPoints are named resumption targets for paused runs.
	EntryPoints   map[string]string `yaml:"entry_points,omitempty" json:"entry_points,omitempty"`
	TerminalNodes []string          `yaml:"terminal_nodes,omitempty" json:"terminal_nodes,omitempty"`
	PauseNodes    []string          `yaml:"pause_nodes,omitempty" json:"pause_nodes,omitempty"`
	Nodes         []NodeSpec        `yaml:"nodes" json:"nodes"`
	Edges         []EdgeSpec        `yaml:"edges" json:"edges"`
}

// Node returns the node with the given id, if present.
func (g *GraphSpec) Node(id string) (NodeSpec, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeSpec{}, false
}

// OutgoingEdges returns all edges leaving the given node, ordered by
// descending priority with ties broken by ascending edge id. This ordering
// is the contract the executor relies on for deterministic edge selection.
func (g *GraphSpec) OutgoingEdges(nodeID string) []EdgeSpec {
	var out []EdgeSpec
	for _, e := range g.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// IsTerminal reports whether the node is a declared terminal node.
func (g *GraphSpec) IsTerminal(nodeID string) bool {
	for _, id := range g.TerminalNodes {
		if id == nodeID {
			return true
		}
	}
	return false
}

// IsPauseNode reports whether the node may suspend the run pending input.
func (g *GraphSpec) IsPauseNode(nodeID string) bool {
	for _, id := range g.PauseNodes {
		if id == nodeID {
			return true
		}
	}
	return false
}

// ResumeNode resolves the entry point for the given resume label.
func (g *GraphSpec) ResumeNode(label string) (string, bool) {
	id, ok := g.EntryPoints[label]
	return id, ok
}
