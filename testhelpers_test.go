package kata

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// mockProvider is a test Provider that returns canned responses in order.
type mockProvider struct {
	name      string
	responses []ChatResponse // popped in order
	idx       int
	requests  []ChatRequest // every request seen, for assertions
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	m.requests = append(m.requests, req)
	if m.idx >= len(m.responses) {
		return ChatResponse{Content: "exhausted"}, nil
	}
	resp := m.responses[m.idx]
	m.idx++
	return resp, nil
}

// --- Tool mocks (shared across loop_test.go, tool_test.go) ---

type echoTool struct{}

func (echoTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "echo", Description: "Echo back the input"}}
}
func (echoTool) Execute(_ context.Context, _ string, args json.RawMessage) (ToolResult, error) {
	var p struct {
		Text string `json:"text"`
	}
	_ = json.Unmarshal(args, &p)
	return ToolResult{Content: p.Text}, nil
}

// bigTool returns more output than any transcript budget.
type bigTool struct{ size int }

func (bigTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "big", Description: "Produce a lot of output"}}
}
func (b bigTool) Execute(_ context.Context, _ string, _ json.RawMessage) (ToolResult, error) {
	return ToolResult{Content: strings.Repeat("x", b.size)}, nil
}

type errTool struct{}

func (errTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "fail", Description: "Always fails"}}
}
func (errTool) Execute(_ context.Context, _ string, _ json.RawMessage) (ToolResult, error) {
	return ToolResult{}, errors.New("tool broken")
}

type panicTool struct{}

func (panicTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "boom", Description: "Panics"}}
}
func (panicTool) Execute(_ context.Context, _ string, _ json.RawMessage) (ToolResult, error) {
	panic("boom")
}

type planTool struct{}

func (planTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "TodoWrite", Description: "Record the plan"}}
}
func (planTool) Execute(_ context.Context, _ string, _ json.RawMessage) (ToolResult, error) {
	return ToolResult{Content: "plan recorded"}, nil
}

// call builds a ToolCall with the given id and name.
func call(id, name string) ToolCall {
	return ToolCall{ID: id, Name: name, Args: json.RawMessage(`{}`)}
}
