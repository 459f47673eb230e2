package graph

import (
	"fmt"

	"github.com/hupe1980/goalflow/condition"
	"github.com/hupe1980/goalflow/core"
)

// ValidationResult collects structural findings for a graph. Errors make the
// graph unexecutable; warnings flag suspicious but runnable constructs.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func (r *ValidationResult) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Valid = false
}

func (r *ValidationResult) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Err returns the findings as a structural error, or nil when the graph is
// valid. Warnings never contribute.
func (r *ValidationResult) Err(graphID string) error {
	if r.Valid {
		return nil
	}
	return core.NewStructuralError(graphID, r.Errors...)
}

// Validate checks a graph for structural defects. Validation is pure and
// idempotent: the same graph always yields the same result, and the graph is
// never mutated. Conditional edge guards are compiled here so malformed
// expressions surface before any run starts.
func Validate(g *core.GraphSpec) *ValidationResult {
	res := &ValidationResult{Valid: true}
	if g == nil {
		res.addError("graph is nil")
		return res
	}

	if len(g.Nodes) == 0 {
		res.addError("graph %q has no nodes", g.ID)
	}

	nodeIDs := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			res.addError("node with empty id")
			continue
		}
		if nodeIDs[n.ID] {
			res.addError("duplicate node id %q", n.ID)
			continue
		}
		nodeIDs[n.ID] = true

		if !n.Type.Valid() {
			res.addError("node %q has unknown node_type %q", n.ID, n.Type)
		}
		if n.Type == core.NodeRouter && len(n.Routes) == 0 {
			res.addWarning("router node %q declares no routes", n.ID)
		}
	}

	edgeIDs := make(map[string]bool, len(g.Edges))
	for _, e := range g.Edges {
		if e.ID == "" {
			res.addError("edge %s->%s has empty id", e.Source, e.Target)
		} else if edgeIDs[e.ID] {
			res.addError("duplicate edge id %q", e.ID)
		}
		edgeIDs[e.ID] = true

		if !nodeIDs[e.Source] {
			res.addError("edge %q references unknown source node %q", e.ID, e.Source)
		}
		if !nodeIDs[e.Target] {
			res.addError("edge %q references unknown target node %q", e.ID, e.Target)
		}
		if !e.Condition.Valid() {
			res.addError("edge %q has unknown condition %q", e.ID, e.Condition)
			continue
		}
		if e.Condition == core.EdgeConditional {
			if e.ConditionExpr == "" {
				res.addError("conditional edge %q has no condition_expr", e.ID)
			} else if _, err := condition.Compile(e.ConditionExpr); err != nil {
				res.addError("edge %q: %v", e.ID, err)
			}
		} else if e.ConditionExpr != "" {
			res.addWarning("edge %q carries a condition_expr but its condition is %q; the expression is ignored", e.ID, e.Condition)
		}
	}

	if g.EntryNode == "" {
		res.addError("entry_node is required")
	} else if !nodeIDs[g.EntryNode] {
		res.addError("entry_node %q is not a defined node", g.EntryNode)
	}

	for label, target := range g.EntryPoints {
		if !nodeIDs[target] {
			res.addError("entry_point %q references unknown node %q", label, target)
		}
	}

	for _, id := range g.TerminalNodes {
		if !nodeIDs[id] {
			res.addError("terminal node %q is not a defined node", id)
		} else if len(g.OutgoingEdges(id)) > 0 {
			res.addWarning("terminal node %q has outgoing edges; they are never evaluated", id)
		}
	}

	for _, n := range g.Nodes {
		if nodeIDs[n.ID] && len(g.OutgoingEdges(n.ID)) == 0 && !g.IsTerminal(n.ID) {
			res.addWarning("node %q has no outgoing edges and is not terminal; runs reaching it get stuck", n.ID)
		}
	}

	for _, id := range g.PauseNodes {
		if !nodeIDs[id] {
			res.addError("pause node %q is not a defined node", id)
			continue
		}
		if n, ok := g.Node(id); ok && n.ResumeLabel != "" {
			if _, ok := g.ResumeNode(n.ResumeLabel); !ok {
				res.addWarning("pause node %q names resume_label %q but no entry_point matches; resume restarts at the node itself", id, n.ResumeLabel)
			}
		}
	}

	for _, id := range unreachable(g, nodeIDs) {
		res.addWarning("node %q is unreachable from entry_node %q", id, g.EntryNode)
	}

	return res
}

// unreachable walks the edge set from the entry node, treating every edge as
// traversable regardless of condition, and returns nodes the walk never
// reaches, in declaration order.
func unreachable(g *core.GraphSpec, nodeIDs map[string]bool) []string {
	if g.EntryNode == "" || !nodeIDs[g.EntryNode] {
		return nil
	}
	seen := map[string]bool{g.EntryNode: true}
	queue := []string{g.EntryNode}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.Edges {
			if e.Source == cur && nodeIDs[e.Target] && !seen[e.Target] {
				seen[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}
	var out []string
	for _, n := range g.Nodes {
		if nodeIDs[n.ID] && !seen[n.ID] {
			out = append(out, n.ID)
		}
	}
	return out
}
