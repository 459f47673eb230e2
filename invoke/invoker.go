package invoke

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/goalflow/core"
	"github.com/hupe1980/goalflow/internal/util"
	"github.com/hupe1980/goalflow/logging"
	"github.com/hupe1980/goalflow/model"
	"github.com/hupe1980/goalflow/tool"
)

// DefaultMaxToolTurns bounds the function-calling loop of llm_tool_use nodes.
const DefaultMaxToolTurns = 10

// Reserved tool names the invoker intercepts before registry dispatch.
const (
	// SelectRouteTool is offered to the model on router nodes without a
	// registered RouterFunc; its argument picks one of the declared routes.
	SelectRouteTool = "select_route"
	// RequestInputTool lets the model signal that it cannot proceed without
	// external input. On a pause node this suspends the run.
	RequestInputTool = "request_user_input"
)

// Func is a deterministic handler backing a function node. It receives the
// node's input snapshot and returns the outputs to merge into the run context.
type Func func(ctx context.Context, input map[string]any) (map[string]any, error)

// RouterFunc picks a route key for a router node from its input snapshot.
type RouterFunc func(ctx context.Context, input map[string]any) (string, error)

// Options configures a ModelInvoker.
type Options struct {
	// Registry resolves the tools a llm_tool_use node declares. Defaults to
	// an empty registry.
	Registry *tool.Registry
	// MaxToolTurns bounds model round-trips within one llm_tool_use attempt.
	MaxToolTurns int
	// Logger receives invocation logs. Defaults to a no-op logger.
	Logger logging.Logger
}

// ModelInvoker is the standard core.NodeInvoker: model calls for generation
// and tool use, registered Go handlers for function and router nodes.
type ModelInvoker struct {
	model        model.Model
	registry     *tool.Registry
	maxToolTurns int
	logger       logging.Logger

	mu      sync.RWMutex
	funcs   map[string]Func
	routers map[string]RouterFunc
}

// New creates a ModelInvoker driving the given model.
func New(m model.Model, optFns ...func(o *Options)) *ModelInvoker {
	opts := Options{
		Registry:     tool.NewRegistry(),
		MaxToolTurns: DefaultMaxToolTurns,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Registry == nil {
		opts.Registry = tool.NewRegistry()
	}
	if opts.MaxToolTurns <= 0 {
		opts.MaxToolTurns = DefaultMaxToolTurns
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &ModelInvoker{
		model:        m,
		registry:     opts.Registry,
		maxToolTurns: opts.MaxToolTurns,
		logger:       opts.Logger,
		funcs:        map[string]Func{},
		routers:      map[string]RouterFunc{},
	}
}

// Registry returns the tool registry so callers can register tools after
// construction.
func (i *ModelInvoker) Registry() *tool.Registry { return i.registry }

// RegisterFunc binds a handler to function nodes. The name is matched against
// the node id first, then the node name.
func (i *ModelInvoker) RegisterFunc(name string, fn Func) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.funcs[name] = fn
}

// RegisterRouter binds a routing decision to router nodes, matched like
// RegisterFunc. Router nodes without a registered RouterFunc fall back to a
// model call with the select_route tool.
func (i *ModelInvoker) RegisterRouter(name string, fn RouterFunc) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.routers[name] = fn
}

// Invoke implements core.NodeInvoker.
func (i *ModelInvoker) Invoke(ctx context.Context, inv core.Invocation) (*core.InvocationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch inv.Node.Type {
	case core.NodeFunction:
		return i.invokeFunction(ctx, inv)
	case core.NodeRouter:
		return i.invokeRouter(ctx, inv)
	case core.NodeLLMGenerate:
		return i.invokeGenerate(ctx, inv)
	case core.NodeLLMToolUse:
		return i.invokeToolUse(ctx, inv)
	}
	return nil, fmt.Errorf("invoke: node %s has unknown type %q", inv.Node.ID, inv.Node.Type)
}

func (i *ModelInvoker) invokeFunction(ctx context.Context, inv core.Invocation) (*core.InvocationResult, error) {
	fn := i.lookupFunc(inv.Node)
	if fn == nil {
		return nil, fmt.Errorf("invoke: no function registered for node %s", inv.Node.ID)
	}
	outputs, err := fn(ctx, inv.Input)
	if err != nil {
		return nil, fmt.Errorf("invoke: function node %s: %w", inv.Node.ID, err)
	}
	i.logger.Debug("invoke.function.done", "node_id", inv.Node.ID, "outputs", len(outputs))
	return &core.InvocationResult{Outputs: outputs}, nil
}

func (i *ModelInvoker) invokeRouter(ctx context.Context, inv core.Invocation) (*core.InvocationResult, error) {
	routeKey := "route"
	if len(inv.Node.OutputKeys) > 0 {
		routeKey = inv.Node.OutputKeys[0]
	}

	if fn := i.lookupRouter(inv.Node); fn != nil {
		route, err := fn(ctx, inv.Input)
		if err != nil {
			return nil, fmt.Errorf("invoke: router node %s: %w", inv.Node.ID, err)
		}
		i.logger.Debug("invoke.router.done", "node_id", inv.Node.ID, "route", route)
		return &core.InvocationResult{Outputs: map[string]any{routeKey: route}}, nil
	}

	// No registered router: single-shot model call constrained to the node's
	// declared routes.
	if i.model == nil {
		return nil, fmt.Errorf("invoke: router node %s has no registered RouterFunc and no model", inv.Node.ID)
	}
	if len(inv.Node.Routes) == 0 {
		return nil, fmt.Errorf("invoke: router node %s declares no routes", inv.Node.ID)
	}

	req, err := i.buildRequest(inv, []model.ToolDefinition{selectRouteDefinition(inv.Node.Routes)})
	if err != nil {
		return nil, err
	}
	resp, err := i.model.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("invoke: router node %s: %w", inv.Node.ID, err)
	}

	for _, call := range resp.Content.FunctionCalls() {
		if call.Name != SelectRouteTool {
			continue
		}
		var args struct {
			Route string `json:"route"`
		}
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return nil, fmt.Errorf("invoke: router node %s: decode select_route: %w", inv.Node.ID, err)
		}
		if !containsRoute(inv.Node.Routes, args.Route) {
			return nil, fmt.Errorf("invoke: router node %s: model selected undeclared route %q", inv.Node.ID, args.Route)
		}
		i.logger.Debug("invoke.router.done", "node_id", inv.Node.ID, "route", args.Route)
		return &core.InvocationResult{Outputs: map[string]any{routeKey: args.Route}}, nil
	}
	return nil, fmt.Errorf("invoke: router node %s: model did not call select_route", inv.Node.ID)
}

func (i *ModelInvoker) invokeGenerate(ctx context.Context, inv core.Invocation) (*core.InvocationResult, error) {
	if i.model == nil {
		return nil, fmt.Errorf("invoke: node %s requires a model", inv.Node.ID)
	}
	req, err := i.buildRequest(inv, nil)
	if err != nil {
		return nil, err
	}
	resp, err := i.model.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("invoke: node %s: %w", inv.Node.ID, err)
	}
	text := resp.Content.Text()
	i.logger.Debug("invoke.generate.done", "node_id", inv.Node.ID, "finish_reason", resp.FinishReason)
	return &core.InvocationResult{Outputs: mapOutputs(inv.Node, text)}, nil
}

// invokeToolUse drives the multi-turn function-calling loop. Each turn the
// model either requests tool calls, which are executed and fed back as tool
// responses, or returns plain text, which terminates the loop. The turn count
// is bounded; exhausting it is an invocation failure the executor may retry.
func (i *ModelInvoker) invokeToolUse(ctx context.Context, inv core.Invocation) (*core.InvocationResult, error) {
	if i.model == nil {
		return nil, fmt.Errorf("invoke: node %s requires a model", inv.Node.ID)
	}
	tools, err := i.registry.Resolve(inv.Node.Tools)
	if err != nil {
		return nil, fmt.Errorf("invoke: node %s: %w", inv.Node.ID, err)
	}

	defs := make([]model.ToolDefinition, 0, len(tools)+1)
	for _, t := range tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	defs = append(defs, requestInputDefinition())

	req, err := i.buildRequest(inv, defs)
	if err != nil {
		return nil, err
	}

	outputs := map[string]any{}
	for turn := 0; turn < i.maxToolTurns; turn++ {
		resp, err := i.model.Generate(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("invoke: node %s: %w", inv.Node.ID, err)
		}
		req.Contents = append(req.Contents, resp.Content)

		calls := resp.Content.FunctionCalls()
		if len(calls) == 0 {
			mergeOutputs(outputs, mapOutputs(inv.Node, resp.Content.Text()))
			i.logger.Debug("invoke.tool_use.done", "node_id", inv.Node.ID, "turns", turn+1)
			return &core.InvocationResult{Outputs: outputs}, nil
		}

		responses, pause := i.executeCalls(ctx, inv, calls, outputs)
		if pause != nil {
			pause.Outputs = outputs
			i.logger.Info("invoke.tool_use.await_input", "node_id", inv.Node.ID, "resume_label", pause.ResumeLabel)
			return pause, nil
		}
		req.Contents = append(req.Contents, core.Content{Role: "tool", Parts: responses})
	}
	return nil, fmt.Errorf("invoke: node %s exceeded %d tool turns", inv.Node.ID, i.maxToolTurns)
}

// executeCalls runs the turn's tool calls sequentially, accumulating context
// writes into outputs. A request_user_input signal stops the turn and returns
// a pause result; remaining calls are not executed.
func (i *ModelInvoker) executeCalls(ctx context.Context, inv core.Invocation, calls []core.FunctionCall, outputs map[string]any) ([]core.Part, *core.InvocationResult) {
	var parts []core.Part
	for _, call := range calls {
		if call.Name == RequestInputTool {
			var args struct {
				Prompt      string `json:"prompt"`
				ResumeLabel string `json:"resume_label"`
			}
			_ = json.Unmarshal([]byte(call.Arguments), &args)
			if args.Prompt != "" {
				outputs[tool.InputRequestKey] = args.Prompt
			}
			return nil, &core.InvocationResult{AwaitingInput: true, ResumeLabel: args.ResumeLabel}
		}

		toolCtx := core.NewToolContext(ctx, i.logger, inv.RunID, inv.Node.ID, call.ID, workingState(inv.Input, outputs))
		result, err := i.callTool(toolCtx, call)
		fr := core.FunctionResponse{ID: call.ID, Name: call.Name}
		if err != nil {
			fr.Error = err.Error()
		} else {
			fr.Response = result
		}
		parts = append(parts, core.FunctionResponsePart{FunctionResponse: fr})

		mergeOutputs(outputs, toolCtx.Delta())
		if awaiting, label := toolCtx.AwaitingInput(); awaiting {
			return nil, &core.InvocationResult{AwaitingInput: true, ResumeLabel: label}
		}
	}
	return parts, nil
}

// callTool dispatches one call through the registry. Tool errors are returned
// to the model as structured failures rather than failing the node attempt;
// the model decides whether to retry, work around or give up.
func (i *ModelInvoker) callTool(toolCtx *core.ToolContext, call core.FunctionCall) (any, error) {
	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return nil, fmt.Errorf("decode arguments: %w", err)
		}
	}
	return i.registry.Execute(toolCtx, call.Name, args)
}

// buildRequest assembles the model request: rendered system prompt as
// instructions and the input snapshot as the opening user message.
func (i *ModelInvoker) buildRequest(inv core.Invocation, defs []model.ToolDefinition) (model.Request, error) {
	instructions, err := util.RenderTemplate(inv.Node.SystemPrompt, inv.Input)
	if err != nil {
		return model.Request{}, fmt.Errorf("invoke: node %s: render system prompt: %w", inv.Node.ID, err)
	}
	return model.Request{
		Instructions: instructions,
		Contents:     []core.Content{core.NewUserText(inputMessage(inv.Input))},
		Tools:        defs,
	}, nil
}

func (i *ModelInvoker) lookupFunc(node core.NodeSpec) Func {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if fn, ok := i.funcs[node.ID]; ok {
		return fn
	}
	return i.funcs[node.Name]
}

func (i *ModelInvoker) lookupRouter(node core.NodeSpec) RouterFunc {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if fn, ok := i.routers[node.ID]; ok {
		return fn
	}
	return i.routers[node.Name]
}

// mapOutputs maps model text onto the node's declared output keys. The first
// key receives the raw text; when more keys are declared and the text parses
// as a JSON object, the declared keys present in the object are merged too.
// Nodes without output keys store the text under "output".
func mapOutputs(node core.NodeSpec, text string) map[string]any {
	if len(node.OutputKeys) == 0 {
		if text == "" {
			return nil
		}
		return map[string]any{"output": text}
	}

	outputs := map[string]any{node.OutputKeys[0]: text}
	if len(node.OutputKeys) > 1 {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &parsed); err == nil {
			for _, key := range node.OutputKeys[1:] {
				if v, ok := parsed[key]; ok {
					outputs[key] = v
				}
			}
		}
	}
	return outputs
}

func containsRoute(routes []string, route string) bool {
	for _, r := range routes {
		if r == route {
			return true
		}
	}
	return false
}

func mergeOutputs(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}

// workingState is the context view a tool call sees: the node's input overlaid
// with writes from earlier calls in the same attempt.
func workingState(input, outputs map[string]any) map[string]any {
	state := make(map[string]any, len(input)+len(outputs))
	for k, v := range input {
		state[k] = v
	}
	for k, v := range outputs {
		state[k] = v
	}
	return state
}

// inputMessage renders the input snapshot for the opening user turn. JSON
// keeps structured values intact for the model.
func inputMessage(input map[string]any) string {
	if len(input) == 0 {
		return "Proceed with the task."
	}
	data, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", input)
	}
	return "Input:\n" + string(data)
}

func selectRouteDefinition(routes []string) model.ToolDefinition {
	return model.ToolDefinition{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        SelectRouteTool,
			Description: "Select which route the workflow should take next.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"route": map[string]any{
						"type":        "string",
						"enum":        routes,
						"description": "The route to take",
					},
				},
				"required": []string{"route"},
			},
		},
	}
}

func requestInputDefinition() model.ToolDefinition {
	return model.ToolDefinition{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        RequestInputTool,
			Description: "Request external input when the task cannot proceed without it. The run suspends until the input arrives.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"prompt": map[string]any{
						"type":        "string",
						"description": "Question to present to whoever supplies the input",
					},
					"resume_label": map[string]any{
						"type":        "string",
						"description": "Entry point label to resume at after input arrives (optional)",
					},
				},
				"required": []string{"prompt"},
			},
		},
	}
}

var _ core.NodeInvoker = (*ModelInvoker)(nil)
