package graph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/goalflow/core"
)

const sampleDocument = `
goal:
  id: goal-1
  name: Summarize tickets
  description: Summarize support tickets without leaking customer data
  success_criteria:
    - id: c1
      description: summary accuracy above threshold
      metric: accuracy
      target:
        min: 0.8
      weight: 1.0
  constraints:
    - id: k1
      description: never include customer email addresses
      constraint_type: hard
      category: privacy
graph:
  id: g-1
  goal_id: goal-1
  version: 1
  entry_node: draft
  entry_points:
    default: review
  terminal_nodes: [done]
  pause_nodes: [review]
  nodes:
    - id: draft
      name: Draft summary
      node_type: llm_generate
      output_keys: [draft]
    - id: review
      name: Human review
      node_type: llm_tool_use
      resume_label: default
    - id: done
      name: Finalize
      node_type: function
  edges:
    - id: e1
      source: draft
      target: review
      condition: on_success
    - id: e2
      source: review
      target: done
      condition: on_success
`

const sampleBareGraph = `
id: g-2
goal_id: goal-2
version: 3
entry_node: start
terminal_nodes: [start]
nodes:
  - id: start
    name: Start
    node_type: function
edges: []
`

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleDocument))
	require.NoError(t, err)

	require.NotNil(t, doc.Goal)
	assert.Equal(t, "goal-1", doc.Goal.ID)
	require.Len(t, doc.Goal.SuccessCriteria, 1)
	require.NotNil(t, doc.Goal.SuccessCriteria[0].Target.Min)
	assert.InDelta(t, 0.8, *doc.Goal.SuccessCriteria[0].Target.Min, 1e-9)
	require.Len(t, doc.Goal.Constraints, 1)
	assert.Equal(t, core.ConstraintHard, doc.Goal.Constraints[0].Type)

	require.NotNil(t, doc.Graph)
	assert.Equal(t, "g-1", doc.Graph.ID)
	assert.Equal(t, "draft", doc.Graph.EntryNode)
	assert.Equal(t, map[string]string{"default": "review"}, doc.Graph.EntryPoints)
	assert.Len(t, doc.Graph.Nodes, 3)
	assert.Len(t, doc.Graph.Edges, 2)

	node, ok := doc.Graph.Node("review")
	require.True(t, ok)
	assert.Equal(t, core.NodeLLMToolUse, node.Type)
	assert.Equal(t, "default", node.ResumeLabel)
}

func TestParseBareGraph(t *testing.T) {
	g, err := Parse([]byte(sampleBareGraph))
	require.NoError(t, err)
	assert.Equal(t, "g-2", g.ID)
	assert.Equal(t, 3, g.Version)
	assert.True(t, g.IsTerminal("start"))
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("id: g-3\nentry_nodes: [a]\n"))
	assert.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleDocument))
	require.NoError(t, err)

	data, err := Marshal(doc)
	require.NoError(t, err)

	again, err := ParseDocument(data)
	require.NoError(t, err)
	assert.Equal(t, doc, again)
}

func TestLoadFile(t *testing.T) {
	t.Run("document", func(t *testing.T) {
		path := writeTempFile(t, "flow.yaml", sampleDocument)
		doc, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "g-1", doc.Graph.ID)
		assert.Equal(t, "goal-1", doc.Goal.ID)
	})

	t.Run("bare graph", func(t *testing.T) {
		path := writeTempFile(t, "graph.yaml", sampleBareGraph)
		doc, err := LoadFile(path)
		require.NoError(t, err)
		assert.Nil(t, doc.Goal)
		assert.Equal(t, "g-2", doc.Graph.ID)
	})

	t.Run("invalid graph rejected", func(t *testing.T) {
		broken := `
id: g-4
entry_node: ghost
nodes:
  - id: start
    name: Start
    node_type: function
edges: []
`
		path := writeTempFile(t, "broken.yaml", broken)
		_, err := LoadFile(path)
		var structErr *core.StructuralError
		require.ErrorAs(t, err, &structErr)
	})

	t.Run("skip validation", func(t *testing.T) {
		broken := `
id: g-4
entry_node: ghost
nodes:
  - id: start
    name: Start
    node_type: function
edges: []
`
		path := writeTempFile(t, "broken.yaml", broken)
		doc, err := LoadFile(path, func(o *LoadOptions) { o.SkipValidation = true })
		require.NoError(t, err)
		assert.Equal(t, "ghost", doc.Graph.EntryNode)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
