// Package todo provides the TodoWrite tool: an in-memory plan list replaced
// wholesale on every call.
package todo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	kata "github.com/edenmoss/kata"
)

const maxItems = 20

// Item is one entry in the plan list.
type Item struct {
	Content    string `json:"content"`
	Status     string `json:"status"`
	ActiveForm string `json:"activeForm"`
}

// Manager holds the current plan list. Update replaces the whole list
// atomically: a batch that fails validation leaves the previous items
// untouched.
type Manager struct {
	mu    sync.Mutex
	items []Item
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Update validates and installs a new list. More than 20 items or more than
// one in_progress item rejects the whole batch.
func (m *Manager) Update(items []Item) error {
	if len(items) > maxItems {
		return fmt.Errorf("todo list exceeds %d items (got %d)", maxItems, len(items))
	}
	inProgress := 0
	for i, it := range items {
		switch it.Status {
		case "pending", "completed":
		case "in_progress":
			inProgress++
		default:
			return fmt.Errorf("item %d: unknown status %q", i, it.Status)
		}
	}
	if inProgress > 1 {
		return fmt.Errorf("only one item may be in_progress (got %d)", inProgress)
	}
	m.mu.Lock()
	m.items = append([]Item(nil), items...)
	m.mu.Unlock()
	return nil
}

// Items returns a copy of the current list.
func (m *Manager) Items() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Item(nil), m.items...)
}

// Render formats the list with [ ]/[>]/[x] markers, a completed counter, and
// the activeForm of the in-progress item after "<-".
func (m *Manager) Render() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	done := 0
	for _, it := range m.items {
		if it.Status == "completed" {
			done++
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Todos (%d/%d completed):\n", done, len(m.items))
	for _, it := range m.items {
		marker := "[ ]"
		switch it.Status {
		case "in_progress":
			marker = "[>]"
		case "completed":
			marker = "[x]"
		}
		fmt.Fprintf(&b, "%s %s", marker, it.Content)
		if it.Status == "in_progress" && it.ActiveForm != "" {
			fmt.Fprintf(&b, "  <- %s", it.ActiveForm)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Tool exposes the Manager as the TodoWrite tool.
type Tool struct {
	manager *Manager
}

// New wraps manager as a tool.
func New(manager *Manager) *Tool {
	return &Tool{manager: manager}
}

func (t *Tool) Definitions() []kata.ToolDefinition {
	return []kata.ToolDefinition{{
		Name:        "TodoWrite",
		Description: "Replace the task plan with a new list of todo items. Keep at most one item in_progress.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"todos":{"type":"array","items":{"type":"object","properties":{"content":{"type":"string"},"status":{"type":"string","enum":["pending","in_progress","completed"]},"activeForm":{"type":"string"}},"required":["content","status","activeForm"]}}},"required":["todos"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (kata.ToolResult, error) {
	var params struct {
		Todos []Item `json:"todos"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return kata.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if err := t.manager.Update(params.Todos); err != nil {
		return kata.ToolResult{Error: err.Error()}, nil
	}
	return kata.ToolResult{Content: t.manager.Render()}, nil
}
