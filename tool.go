package kata

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool defines an agent capability with one or more tool functions.
type Tool interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error)
}

// ToolResult is the outcome of a tool execution. Error is a textual failure
// the model can read and recover from; it is not a Go error.
type ToolResult struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// ToolRegistry holds all registered tools and dispatches execution. It is the
// single dispatch entry point: nothing a tool does — bad arguments, I/O
// failure, even a panic — escapes Dispatch as anything other than a textual
// result, so one failing tool never ends the session.
type ToolRegistry struct {
	tools []Tool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{}
}

// Add registers a tool.
func (r *ToolRegistry) Add(t Tool) {
	r.tools = append(r.tools, t)
}

// AllDefinitions returns tool definitions from all registered tools, in
// registration order. This is the tool manifest sent with every turn.
func (r *ToolRegistry) AllDefinitions() []ToolDefinition {
	var defs []ToolDefinition
	for _, t := range r.tools {
		defs = append(defs, t.Definitions()...)
	}
	return defs
}

// Execute dispatches a tool call by name. A name with no registered handler
// yields an "unknown tool" result, not an error.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	for _, t := range r.tools {
		for _, d := range t.Definitions() {
			if d.Name == name {
				return t.Execute(ctx, name, args)
			}
		}
	}
	return ToolResult{Error: "unknown tool: " + name}, nil
}

// Dispatch executes a tool call and flattens every failure mode into the
// result string the loop inserts into the conversation: handler errors and
// panics become "error: ..." text. The returned bool reports whether the
// result is an error.
func (r *ToolRegistry) Dispatch(ctx context.Context, tc ToolCall) (content string, isError bool) {
	result, err := r.safeExecute(ctx, tc)
	if err != nil {
		return "error: " + err.Error(), true
	}
	if result.Error != "" {
		return "error: " + result.Error, true
	}
	return result.Content, false
}

// safeExecute wraps Execute with panic recovery so a misbehaving handler is
// converted to an error result instead of crashing the loop.
func (r *ToolRegistry) safeExecute(ctx context.Context, tc ToolCall) (result ToolResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			result = ToolResult{}
			err = fmt.Errorf("tool %q panic: %v", tc.Name, p)
		}
	}()
	return r.Execute(ctx, tc.Name, tc.Args)
}
