// Package model defines the provider-agnostic language model interface used
// by node invocation and test generation, plus a deterministic MockModel for
// tests and examples. Provider adapters live in the subpackages anthropic and
// openai.
package model

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hupe1980/goalflow/core"
)

// ToolCall represents a function call request surfaced by a model provider.
// Unified across vendors so downstream logic does not need per-provider branching.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"` // "function"
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction describes the concrete function target of a tool call.
type ToolCallFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"` // JSON string of arguments
}

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input produced by node invocation.
type Request struct {
	Instructions string           `json:"instructions"` // Instructions for the model
	Contents     []core.Content   `json:"contents"`     // Higher-level content converted to provider messages
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the complete model output for one Generate call.
type Response struct {
	ID           string       `json:"id"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required to drive generation. Generate is
// synchronous: node invocation blocks on the call and consumes one complete
// response per turn.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockTurn is one scripted model response: plain text and/or function calls.
type MockTurn struct {
	Text  string
	Calls []core.FunctionCall
	Err   error
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Responses are matched against the text of the latest user content; scripted
// turns (AddTurns) take precedence and are consumed in order, enabling
// multi-turn tool loop tests. Safe for concurrent use.
type MockModel struct {
	mu        sync.Mutex
	info      Info
	responses map[string]string
	turns     []MockTurn
	requests  []Request
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      "mock",
			SupportsTools: true,
		},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// AddTurns appends scripted turns consumed first-in-first-out by Generate.
func (m *MockModel) AddTurns(turns ...MockTurn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turns...)
}

// Requests returns every request Generate received, in order.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	if len(m.turns) > 0 {
		turn := m.turns[0]
		m.turns = m.turns[1:]
		m.mu.Unlock()
		return turnResponse(turn)
	}
	canned := m.responses[lastUserText(req.Contents)]
	m.mu.Unlock()

	if canned == "" {
		canned = fmt.Sprintf("Mock response to: %s", lastUserText(req.Contents))
	}
	return &Response{
		ID:           core.NewID(),
		Content:      core.Content{Role: "assistant", Parts: []core.Part{core.TextPart{Text: canned}}},
		FinishReason: "stop",
	}, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

func turnResponse(turn MockTurn) (*Response, error) {
	if turn.Err != nil {
		return nil, turn.Err
	}
	var parts []core.Part
	if turn.Text != "" {
		parts = append(parts, core.TextPart{Text: turn.Text})
	}
	finish := "stop"
	for _, call := range turn.Calls {
		if call.ID == "" {
			call.ID = core.NewID()
		}
		parts = append(parts, core.FunctionCallPart{FunctionCall: call})
		finish = "tool_calls"
	}
	return &Response{
		ID:           core.NewID(),
		Content:      core.Content{Role: "assistant", Parts: parts},
		FinishReason: finish,
	}, nil
}

func lastUserText(contents []core.Content) string {
	for i := len(contents) - 1; i >= 0; i-- {
		if contents[i].Role == "user" {
			return contents[i].Text()
		}
	}
	if len(contents) > 0 {
		return contents[len(contents)-1].Text()
	}
	return ""
}
