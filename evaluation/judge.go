package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/hupe1980/goalflow/core"
	"github.com/hupe1980/goalflow/model"
)

// Verdict is a judge's decision on one completed test run.
type Verdict struct {
	Passed      bool
	Explanation string
}

// Judge decides whether a finished run satisfies a test's expectations.
type Judge interface {
	Judge(ctx context.Context, t *core.Test, result *core.ExecutionResult) (Verdict, error)
}

// ExpectationJudge checks the test's expected key/value pairs against the
// run's final context. A test without expected keys passes when the run
// completed successfully. Numeric values compare across int and float
// representations so a stored 1 matches a decoded 1.0.
type ExpectationJudge struct{}

var _ Judge = (*ExpectationJudge)(nil)

// NewExpectationJudge creates the deterministic judge.
func NewExpectationJudge() *ExpectationJudge { return &ExpectationJudge{} }

// Judge implements Judge.
func (j *ExpectationJudge) Judge(_ context.Context, t *core.Test, result *core.ExecutionResult) (Verdict, error) {
	if result == nil || !result.Success {
		reason := "run did not complete"
		if result != nil && result.Err != nil {
			reason = result.Err.Error()
		}
		return Verdict{Passed: false, Explanation: reason}, nil
	}

	if len(t.Expected) == 0 {
		return Verdict{Passed: true, Explanation: "run completed successfully"}, nil
	}

	for key, want := range t.Expected {
		got, ok := result.Output[key]
		if !ok {
			return Verdict{Passed: false, Explanation: fmt.Sprintf("expected key %q missing from final context", key)}, nil
		}
		if !valuesEqual(want, got) {
			return Verdict{Passed: false, Explanation: fmt.Sprintf("key %q: expected %v, got %v", key, want, got)}, nil
		}
	}
	return Verdict{Passed: true, Explanation: "all expected values present"}, nil
}

func valuesEqual(want, got any) bool {
	if wf, ok := asFloat(want); ok {
		if gf, gok := asFloat(got); gok {
			return math.Abs(wf-gf) < 1e-9
		}
		return false
	}
	return fmt.Sprintf("%v", want) == fmt.Sprintf("%v", got)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// ModelJudge asks a model whether the run's output satisfies the test's
// intent, for expectations that resist exact matching. A model error never
// propagates: the verdict fails closed with the error text so a flaky judge
// cannot silently approve a run.
type ModelJudge struct {
	model model.Model
}

var _ Judge = (*ModelJudge)(nil)

// NewModelJudge creates a model-backed judge.
func NewModelJudge(m model.Model) *ModelJudge {
	return &ModelJudge{model: m}
}

// Judge implements Judge.
func (j *ModelJudge) Judge(ctx context.Context, t *core.Test, result *core.ExecutionResult) (Verdict, error) {
	if result == nil || !result.Success {
		reason := "run did not complete"
		if result != nil && result.Err != nil {
			reason = result.Err.Error()
		}
		return Verdict{Passed: false, Explanation: reason}, nil
	}

	resp, err := j.model.Generate(ctx, model.Request{
		Instructions: judgeInstructions,
		Contents:     []core.Content{core.NewUserText(judgePrompt(t, result))},
	})
	if err != nil {
		return Verdict{Passed: false, Explanation: fmt.Sprintf("judge model error: %v", err)}, nil
	}

	return parseVerdict(resp.Content.Text()), nil
}

const judgeInstructions = "You judge whether an agent workflow's output satisfies a test's expectations. " +
	`Respond with JSON only: {"passes": true/false, "explanation": "..."}`

func judgePrompt(t *core.Test, result *core.ExecutionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Test\nName: %s\nDescription: %s\n\n", t.Name, t.Description)
	b.WriteString("## Expected Output\n")
	writeJSON(&b, t.Expected)
	b.WriteString("\n## Actual Final Context\n")
	writeJSON(&b, result.Output)
	b.WriteString("\nDoes the actual output satisfy the test's expectations?")
	return b.String()
}

func writeJSON(b *strings.Builder, v map[string]any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(b, "%v\n", v)
		return
	}
	b.Write(data)
	b.WriteString("\n")
}

// parseVerdict decodes the judge's JSON reply, stripping markdown code
// fences the model may wrap it in. Undecodable replies fail closed.
func parseVerdict(text string) Verdict {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
		cleaned = strings.TrimSpace(cleaned)
	}

	var payload struct {
		Passes      bool   `json:"passes"`
		Explanation string `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return Verdict{Passed: false, Explanation: fmt.Sprintf("unparseable judge reply: %s", text)}
	}
	return Verdict{Passed: payload.Passes, Explanation: payload.Explanation}
}
