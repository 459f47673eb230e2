package condition

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/hupe1980/goalflow/core"
	"github.com/hupe1980/goalflow/logging"
)

// CompiledExpr is a parsed edge guard expression. Parsing happens once, at
// validation time or on first evaluation; the compiled form is immutable and
// safe for concurrent use.
type CompiledExpr struct {
	src  string
	expr hclsyntax.Expression
}

// Compile parses src as a native HCL expression. An empty or unparseable
// expression is a structural defect and is rejected here rather than at run
// time.
func Compile(src string) (*CompiledExpr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("condition: empty expression")
	}
	expr, diags := hclsyntax.ParseExpression([]byte(src), "condition", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("condition: parse %q: %w", src, diags)
	}
	return &CompiledExpr{src: src, expr: expr}, nil
}

// Source returns the original expression text.
func (e *CompiledExpr) Source() string { return e.src }

// Eval evaluates the expression with the given context values bound as
// variables and reduces the result to a boolean. Booleans evaluate as-is,
// numbers are truthy when non-zero and strings when non-empty. A null result
// is false. References to keys absent from the context surface as an error.
func (e *CompiledExpr) Eval(vars map[string]any) (bool, error) {
	val, diags := e.expr.Value(&hcl.EvalContext{Variables: ctyVariables(vars)})
	if diags.HasErrors() {
		return false, fmt.Errorf("condition: eval %q: %w", e.src, diags)
	}
	return truthy(val)
}

// Variables returns the root names the expression references, in no
// particular order. Validators use this to warn about guards over keys no
// node ever produces.
func (e *CompiledExpr) Variables() []string {
	seen := map[string]bool{}
	var names []string
	for _, tr := range e.expr.Variables() {
		name := tr.RootName()
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

func truthy(val cty.Value) (bool, error) {
	if val.IsNull() {
		return false, nil
	}
	if !val.IsKnown() {
		return false, fmt.Errorf("condition: result is unknown")
	}
	switch val.Type() {
	case cty.Bool:
		return val.True(), nil
	case cty.Number:
		return val.AsBigFloat().Sign() != 0, nil
	case cty.String:
		return val.AsString() != "", nil
	}
	return false, fmt.Errorf("condition: result type %s cannot be used as a guard", val.Type().FriendlyName())
}

func ctyVariables(vars map[string]any) map[string]cty.Value {
	out := make(map[string]cty.Value, len(vars))
	for k, v := range vars {
		out[k] = ctyValue(v)
	}
	return out
}

// ctyValue maps a context value to its cty representation. Values with no
// natural mapping become null so that guards touching them evaluate to an
// error instead of panicking mid-run.
func ctyValue(v any) cty.Value {
	switch tv := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType)
	case bool:
		return cty.BoolVal(tv)
	case string:
		return cty.StringVal(tv)
	case int:
		return cty.NumberIntVal(int64(tv))
	case int32:
		return cty.NumberIntVal(int64(tv))
	case int64:
		return cty.NumberIntVal(tv)
	case uint:
		return cty.NumberUIntVal(uint64(tv))
	case uint64:
		return cty.NumberUIntVal(tv)
	case float32:
		return cty.NumberFloatVal(float64(tv))
	case float64:
		return cty.NumberFloatVal(tv)
	case []any:
		if len(tv) == 0 {
			return cty.EmptyTupleVal
		}
		vals := make([]cty.Value, len(tv))
		for i, item := range tv {
			vals[i] = ctyValue(item)
		}
		return cty.TupleVal(vals)
	case []string:
		if len(tv) == 0 {
			return cty.EmptyTupleVal
		}
		vals := make([]cty.Value, len(tv))
		for i, item := range tv {
			vals[i] = cty.StringVal(item)
		}
		return cty.TupleVal(vals)
	case map[string]any:
		if len(tv) == 0 {
			return cty.EmptyObjectVal
		}
		vals := make(map[string]cty.Value, len(tv))
		for k, item := range tv {
			vals[k] = ctyValue(item)
		}
		return cty.ObjectVal(vals)
	}
	return cty.NullVal(cty.DynamicPseudoType)
}

// Outcome is the node result an edge decision is made against.
type Outcome struct {
	// Success reports whether the node invocation ultimately succeeded,
	// after any retries.
	Success bool
	// Context is the run context after the node's outputs were merged.
	Context map[string]any
}

// Evaluator decides edge eligibility for node outcomes. Compiled guard
// expressions are cached by source text, so repeated runs over the same
// graph parse each expression exactly once. Safe for concurrent use.
type Evaluator struct {
	mu     sync.RWMutex
	cache  map[string]*CompiledExpr
	logger logging.Logger
}

// Options configures an Evaluator.
type Options struct {
	Logger logging.Logger
}

// NewEvaluator creates an edge condition evaluator.
func NewEvaluator(optFns ...func(o *Options)) *Evaluator {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Evaluator{cache: make(map[string]*CompiledExpr), logger: opts.Logger}
}

// Eligible reports whether the edge may be taken for the outcome. The
// on_success, on_failure and always conditions depend only on the outcome's
// success flag; conditional edges additionally evaluate their guard against
// the context.
func (e *Evaluator) Eligible(edge core.EdgeSpec, out Outcome) (bool, error) {
	switch edge.Condition {
	case core.EdgeOnSuccess:
		return out.Success, nil
	case core.EdgeOnFailure:
		return !out.Success, nil
	case core.EdgeAlways:
		return true, nil
	case core.EdgeConditional:
		expr, err := e.compiled(edge.ConditionExpr)
		if err != nil {
			return false, err
		}
		return expr.Eval(out.Context)
	}
	return false, fmt.Errorf("condition: unknown edge condition %q", edge.Condition)
}

// Select returns the first eligible edge. Callers pass edges already ordered
// by descending priority with the edge id as tiebreaker, which is what
// core.GraphSpec.OutgoingEdges produces. A guard that fails to evaluate makes
// its edge ineligible and is logged; it never aborts the decision.
func (e *Evaluator) Select(edges []core.EdgeSpec, out Outcome) (core.EdgeSpec, bool) {
	for _, edge := range edges {
		ok, err := e.Eligible(edge, out)
		if err != nil {
			e.logger.Warn("Edge condition evaluation failed", "edge_id", edge.ID, "error", err)
			continue
		}
		if ok {
			return edge, true
		}
	}
	return core.EdgeSpec{}, false
}

func (e *Evaluator) compiled(src string) (*CompiledExpr, error) {
	e.mu.RLock()
	ce := e.cache[src]
	e.mu.RUnlock()
	if ce != nil {
		return ce, nil
	}
	ce, err := Compile(src)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.cache[src] = ce
	e.mu.Unlock()
	return ce, nil
}
