// Package agent provides the Task delegation tool. A delegated task runs in
// a sub-agent: a fresh loop against the same provider with its own transcript
// and a tool set filtered by agent type, so exploration noise never lands in
// the parent's context.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	kata "github.com/edenmoss/kata"
	"github.com/edenmoss/kata/tools/file"
	"github.com/edenmoss/kata/tools/shell"
)

// Type describes one delegation target.
type Type struct {
	Name        string
	Description string
	Writes      bool
}

var agentTypes = []Type{
	{Name: "explore", Description: "Read-only: search the workspace and report findings", Writes: false},
	{Name: "code", Description: "Full access: create and modify files", Writes: true},
	{Name: "plan", Description: "Read-only: inspect the workspace and produce a plan", Writes: false},
}

// Types returns the available agent types.
func Types() []Type {
	return append([]Type(nil), agentTypes...)
}

func lookupType(name string) (Type, bool) {
	for _, at := range agentTypes {
		if at.Name == name {
			return at, true
		}
	}
	return Type{}, false
}

// Tool delegates tasks to sub-agents.
type Tool struct {
	provider  kata.Provider
	workspace string
	maxTurns  int
	timeout   int
	logger    *slog.Logger
}

// Option configures the delegation tool.
type Option func(*Tool)

// WithMaxTurns caps each sub-agent's loop (default: 10).
func WithMaxTurns(n int) Option {
	return func(t *Tool) { t.maxTurns = n }
}

// WithCommandTimeout sets the sub-agents' shell timeout in seconds (default: 30).
func WithCommandTimeout(seconds int) Option {
	return func(t *Tool) { t.timeout = seconds }
}

// WithLogger sets the logger handed to sub-agent loops. Nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tool) {
		if l != nil {
			t.logger = l
		}
	}
}

// New creates the delegation tool. Sub-agents run in workspace against
// provider.
func New(provider kata.Provider, workspace string, opts ...Option) *Tool {
	t := &Tool{
		provider:  provider,
		workspace: workspace,
		maxTurns:  10,
		timeout:   30,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tool) Definitions() []kata.ToolDefinition {
	var kinds []string
	for _, at := range agentTypes {
		access := "read-only"
		if at.Writes {
			access = "full access"
		}
		kinds = append(kinds, fmt.Sprintf("%s (%s)", at.Name, access))
	}
	return []kata.ToolDefinition{
		{
			Name:        "Task",
			Description: "Delegate a task to a sub-agent. Types: " + strings.Join(kinds, ", "),
			Parameters:  json.RawMessage(`{"type":"object","properties":{"description":{"type":"string","description":"Short summary of the delegated work"},"prompt":{"type":"string","description":"Full instructions for the sub-agent"},"agent_type":{"type":"string","enum":["explore","code","plan"]}},"required":["description","prompt","agent_type"]}`),
		},
	}
}

// ToolsFor returns the tool set a sub-agent of the given type runs with.
// Read-only types get the shell and read_file only; the delegation tool
// itself is never included, so sub-agents cannot recurse.
func (t *Tool) ToolsFor(agentType string) ([]kata.Tool, bool) {
	at, ok := lookupType(agentType)
	if !ok {
		return nil, false
	}
	set := []kata.Tool{shell.New(t.workspace, t.timeout)}
	if at.Writes {
		set = append(set, file.New(t.workspace))
	} else {
		set = append(set, file.NewReadOnly(t.workspace))
	}
	return set, true
}

func (t *Tool) Execute(ctx context.Context, name string, args json.RawMessage) (kata.ToolResult, error) {
	if name != "Task" {
		return kata.ToolResult{Error: "unknown agent tool: " + name}, nil
	}
	var params struct {
		Description string `json:"description"`
		Prompt      string `json:"prompt"`
		AgentType   string `json:"agent_type"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return kata.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if params.Prompt == "" {
		return kata.ToolResult{Error: "prompt is required"}, nil
	}
	at, ok := lookupType(params.AgentType)
	if !ok {
		return kata.ToolResult{Error: "unknown agent type: " + params.AgentType}, nil
	}

	subTools, _ := t.ToolsFor(at.Name)
	opts := []kata.LoopOption{
		kata.WithTools(subTools...),
		kata.WithSystemPrompt(fmt.Sprintf("You are a %s sub-agent. %s. Report your result concisely.", at.Name, at.Description)),
		kata.WithMaxTurns(t.maxTurns),
	}
	if t.logger != nil {
		opts = append(opts, kata.WithLogger(t.logger))
	}
	loop := kata.NewLoop(t.provider, opts...)

	// Fresh transcript: the sub-agent sees only its own prompt, never the
	// parent's history.
	out, err := loop.Run(ctx, params.Prompt)
	if err != nil {
		return kata.ToolResult{Error: fmt.Sprintf("sub-agent (%s) failed: %v", at.Name, err)}, nil
	}
	if out.Exhausted {
		return kata.ToolResult{Error: fmt.Sprintf("sub-agent (%s) ran out of turns", at.Name)}, nil
	}
	return kata.ToolResult{Content: fmt.Sprintf("Sub-agent (%s) result: %s", at.Name, out.Text)}, nil
}

var _ kata.Tool = (*Tool)(nil)
