package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/goalflow/core"
	"github.com/hupe1980/goalflow/model"
)

// Generator produces tests for a goal at a lifecycle stage. Returned tests
// need not carry ids, goal ids or statuses; the Manager normalizes them to
// fresh pending entities before storage.
type Generator interface {
	Generate(ctx context.Context, goal *core.Goal, g *core.GraphSpec, stage core.GenerationStage) ([]*core.Test, error)
}

// TemplateGenerator derives tests deterministically with no model
// dependency: one constraint test per constraint, one criteria test per
// success criterion, and a fixed set of edge-case probes. The default
// expectation is simply that the run completes, which the judge verifies
// when a test declares no expected keys.
type TemplateGenerator struct{}

// NewTemplateGenerator creates the deterministic generator.
func NewTemplateGenerator() *TemplateGenerator { return &TemplateGenerator{} }

// Generate implements Generator.
func (g *TemplateGenerator) Generate(_ context.Context, goal *core.Goal, graph *core.GraphSpec, stage core.GenerationStage) ([]*core.Test, error) {
	switch stage {
	case core.StageGoal:
		return g.constraintTests(goal), nil
	case core.StageBuild:
		return g.criteriaTests(goal), nil
	case core.StageDebug:
		return g.edgeCaseTests(goal, graph), nil
	}
	return nil, fmt.Errorf("evaluation: unknown generation stage %q", stage)
}

func (g *TemplateGenerator) constraintTests(goal *core.Goal) []*core.Test {
	tests := make([]*core.Test, 0, len(goal.Constraints))
	for _, c := range goal.Constraints {
		tests = append(tests, &core.Test{
			Name:             fmt.Sprintf("constraint_%s_happy_path", c.ID),
			Description:      fmt.Sprintf("Verifies the run honors constraint %q (%s).", c.ID, c.Description),
			ParentCriteriaID: c.ID,
			Input:            map[string]any{"scenario": "happy_path", "constraint": c.Description},
			Expected:         map[string]any{},
			Confidence:       0.5,
		})
	}
	return tests
}

func (g *TemplateGenerator) criteriaTests(goal *core.Goal) []*core.Test {
	tests := make([]*core.Test, 0, len(goal.SuccessCriteria))
	for _, sc := range goal.SuccessCriteria {
		tests = append(tests, &core.Test{
			Name:             fmt.Sprintf("success_%s_happy_path", sc.ID),
			Description:      fmt.Sprintf("Verifies the run meets criterion %q (metric %s).", sc.ID, sc.Metric),
			ParentCriteriaID: sc.ID,
			Input:            map[string]any{"scenario": "happy_path", "criterion": sc.Description},
			Expected:         map[string]any{},
			Confidence:       0.5,
		})
	}
	return tests
}

// edgeCaseTests probes the boundaries a generated workflow most often gets
// wrong: empty input, oversized input and unusual characters.
func (g *TemplateGenerator) edgeCaseTests(goal *core.Goal, graph *core.GraphSpec) []*core.Test {
	parent := "edge_cases"
	probes := []struct {
		name  string
		desc  string
		input map[string]any
	}{
		{"edge_case_empty_input", "Run with an empty input context.", map[string]any{}},
		{"edge_case_large_input", "Run with an oversized input value.", map[string]any{"payload": strings.Repeat("x", 10_000)}},
		{"edge_case_unicode_input", "Run with unicode and special characters.", map[string]any{"payload": "héllo wörld ☃ \"quoted\""}},
	}

	tests := make([]*core.Test, 0, len(probes))
	for _, p := range probes {
		tests = append(tests, &core.Test{
			Name:             p.name,
			Description:      p.desc,
			ParentCriteriaID: parent,
			Input:            p.input,
			Expected:         map[string]any{},
			Confidence:       0.4,
		})
	}
	return tests
}

// SubmitTestTool is the reserved tool name a generation model calls once per
// proposed test.
const SubmitTestTool = "submit_test"

// maxGenerationTurns bounds the submit_test collection loop.
const maxGenerationTurns = 5

// ModelGenerator asks a model to propose tests via the submit_test tool. Each
// stage uses a dedicated prompt describing the goal's constraints or criteria
// and the graph's shape; every submit_test call becomes one pending test.
type ModelGenerator struct {
	model model.Model
}

// NewModelGenerator creates a model-backed generator.
func NewModelGenerator(m model.Model) *ModelGenerator {
	return &ModelGenerator{model: m}
}

// Generate implements Generator.
func (g *ModelGenerator) Generate(ctx context.Context, goal *core.Goal, graph *core.GraphSpec, stage core.GenerationStage) ([]*core.Test, error) {
	if g.model == nil {
		return nil, fmt.Errorf("evaluation: model generator requires a model")
	}

	req := model.Request{
		Instructions: generationInstructions,
		Contents:     []core.Content{core.NewUserText(stagePrompt(goal, graph, stage))},
		Tools:        []model.ToolDefinition{submitTestDefinition()},
	}

	var tests []*core.Test
	for turn := 0; turn < maxGenerationTurns; turn++ {
		resp, err := g.model.Generate(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("evaluation: generation model call: %w", err)
		}
		req.Contents = append(req.Contents, resp.Content)

		calls := resp.Content.FunctionCalls()
		if len(calls) == 0 {
			break
		}

		var responses []core.Part
		for _, call := range calls {
			if call.Name != SubmitTestTool {
				responses = append(responses, core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
					ID: call.ID, Name: call.Name, Error: "unknown tool",
				}})
				continue
			}
			t, err := parseSubmittedTest(call.Arguments)
			if err != nil {
				responses = append(responses, core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
					ID: call.ID, Name: call.Name, Error: err.Error(),
				}})
				continue
			}
			tests = append(tests, t)
			responses = append(responses, core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
				ID: call.ID, Name: call.Name, Response: "accepted",
			}})
		}
		req.Contents = append(req.Contents, core.Content{Role: "tool", Parts: responses})
	}

	if len(tests) == 0 {
		return nil, fmt.Errorf("evaluation: generation model submitted no tests")
	}
	return tests, nil
}

// submittedTest is the submit_test argument payload.
type submittedTest struct {
	ParentID    string         `json:"parent_id"`
	TestName    string         `json:"test_name"`
	Description string         `json:"description"`
	Input       map[string]any `json:"input"`
	Expected    map[string]any `json:"expected_output"`
	Confidence  float64        `json:"confidence"`
}

func parseSubmittedTest(arguments string) (*core.Test, error) {
	var st submittedTest
	if err := json.Unmarshal([]byte(arguments), &st); err != nil {
		return nil, fmt.Errorf("decode submit_test arguments: %w", err)
	}
	if st.TestName == "" {
		return nil, fmt.Errorf("submit_test requires test_name")
	}
	if st.Input == nil {
		st.Input = map[string]any{}
	}
	if st.Expected == nil {
		st.Expected = map[string]any{}
	}
	return &core.Test{
		Name:             st.TestName,
		Description:      st.Description,
		ParentCriteriaID: st.ParentID,
		Input:            st.Input,
		Expected:         st.Expected,
		Confidence:       st.Confidence,
	}, nil
}

func submitTestDefinition() model.ToolDefinition {
	return model.ToolDefinition{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        SubmitTestTool,
			Description: "Submit one proposed test for the agent workflow. Call once per test.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"parent_id": map[string]any{
						"type":        "string",
						"description": "Id of the constraint or success criterion this test verifies",
					},
					"test_name": map[string]any{
						"type":        "string",
						"description": "Descriptive snake_case test name",
					},
					"description": map[string]any{
						"type":        "string",
						"description": "What the test validates and why",
					},
					"input": map[string]any{
						"type":        "object",
						"description": "Input context the workflow is executed with",
					},
					"expected_output": map[string]any{
						"type":        "object",
						"description": "Expected key/value pairs in the final context",
					},
					"confidence": map[string]any{
						"type":        "number",
						"description": "0-1 score for how testable the requirement is",
					},
				},
				"required": []string{"parent_id", "test_name", "input", "expected_output"},
			},
		},
	}
}

const generationInstructions = "You generate tests for declaratively specified agent workflows. " +
	"For each test, call the submit_test tool exactly once. " +
	"Cover the happy path, boundary conditions and violation scenarios for every requirement you are given."

// stagePrompt renders the user prompt for one generation stage.
func stagePrompt(goal *core.Goal, graph *core.GraphSpec, stage core.GenerationStage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Goal\nName: %s\nDescription: %s\n\n", goal.Name, goal.Description)

	switch stage {
	case core.StageGoal:
		b.WriteString("## Constraints to Test\n")
		for _, c := range goal.Constraints {
			fmt.Fprintf(&b, "- %s (%s): %s\n", c.ID, c.Type, c.Description)
		}
		b.WriteString("\nGenerate tests that verify each constraint is satisfied, including violation scenarios.\n")
	case core.StageBuild:
		b.WriteString("## Success Criteria to Test\n")
		for _, sc := range goal.SuccessCriteria {
			fmt.Fprintf(&b, "- %s (metric %s, weight %.2f): %s\n", sc.ID, sc.Metric, sc.Weight, sc.Description)
		}
		if graph != nil {
			b.WriteString("\n## Workflow Shape\nNodes:")
			for _, n := range graph.Nodes {
				fmt.Fprintf(&b, " %s(%s)", n.ID, n.Type)
			}
			b.WriteString("\n")
		}
		b.WriteString("\nGenerate tests that verify the workflow achieves each criterion.\n")
	case core.StageDebug:
		b.WriteString("Generate additional edge case tests: unusual input formats, empty or null inputs, " +
			"extremely large or small values, unicode and special characters, and failure simulations.\n")
	}
	return b.String()
}
