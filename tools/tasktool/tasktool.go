// Package tasktool exposes the durable task graph to the agent: TaskCreate,
// TaskGet, TaskUpdate, TaskList over a task.Manager, plus TaskOutput and
// TaskStop for background work units recorded on the session.
package tasktool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	kata "github.com/edenmoss/kata"
	"github.com/edenmoss/kata/task"
)

// Tool binds the task tools to a manager and a session.
type Tool struct {
	manager *task.Manager
	session *kata.Session
}

// New creates the task tool set. session may be nil when background units
// are not in play.
func New(manager *task.Manager, session *kata.Session) *Tool {
	return &Tool{manager: manager, session: session}
}

func (t *Tool) Definitions() []kata.ToolDefinition {
	return []kata.ToolDefinition{
		{
			Name:        "TaskCreate",
			Description: "Create a new task to track work",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"subject":{"type":"string","description":"Brief task title"},"description":{"type":"string","description":"Task details"},"activeForm":{"type":"string","description":"Present-continuous form shown while in progress"},"metadata":{"type":"object","additionalProperties":{"type":"string"}}},"required":["subject","description"]}`),
		},
		{
			Name:        "TaskGet",
			Description: "Get full details of a task by its ID",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"taskId":{"type":"string","description":"The ID of the task to retrieve"}},"required":["taskId"]}`),
		},
		{
			Name:        "TaskUpdate",
			Description: "Update a task's status, details, or dependencies",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"taskId":{"type":"string"},"subject":{"type":"string"},"description":{"type":"string"},"status":{"type":"string","enum":["pending","in_progress","completed"]},"owner":{"type":"string"},"metadata":{"type":"object","additionalProperties":{"type":"string"},"description":"Keys merged into the task's metadata"},"addBlockedBy":{"type":"array","items":{"type":"string"},"description":"Task IDs that must complete before this one"}},"required":["taskId"]}`),
		},
		{
			Name:        "TaskList",
			Description: "List all tasks and their status",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        "TaskOutput",
			Description: "Retrieve output from a background task by its task_id",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"task_id":{"type":"string","description":"The background task ID (e.g. b1)"}},"required":["task_id"]}`),
		},
		{
			Name:        "TaskStop",
			Description: "Stop a running background task by its task_id",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"task_id":{"type":"string","description":"The background task ID to stop"}},"required":["task_id"]}`),
		},
	}
}

func (t *Tool) Execute(ctx context.Context, name string, args json.RawMessage) (kata.ToolResult, error) {
	var params struct {
		Subject      string            `json:"subject"`
		Description  string            `json:"description"`
		ActiveForm   string            `json:"activeForm"`
		Metadata     map[string]string `json:"metadata"`
		TaskID       string            `json:"taskId"`
		Status       string            `json:"status"`
		Owner        *string           `json:"owner"`
		AddBlockedBy []string          `json:"addBlockedBy"`
		BgID         string            `json:"task_id"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return kata.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}

	switch name {
	case "TaskCreate":
		return t.create(params.Subject, params.Description, params.ActiveForm, params.Metadata)
	case "TaskGet":
		return t.get(params.TaskID)
	case "TaskUpdate":
		u := task.Update{Owner: params.Owner, Metadata: params.Metadata, AddBlockedBy: params.AddBlockedBy}
		if params.Subject != "" {
			u.Subject = &params.Subject
		}
		if params.Description != "" {
			u.Description = &params.Description
		}
		if params.ActiveForm != "" {
			u.ActiveForm = &params.ActiveForm
		}
		if params.Status != "" {
			st := task.Status(params.Status)
			u.Status = &st
		}
		return t.update(params.TaskID, u)
	case "TaskList":
		return t.list()
	case "TaskOutput":
		return t.background(params.BgID)
	case "TaskStop":
		return t.stop(params.BgID)
	default:
		return kata.ToolResult{Error: "unknown task tool: " + name}, nil
	}
}

func (t *Tool) create(subject, description, activeForm string, metadata map[string]string) (kata.ToolResult, error) {
	created, err := t.manager.Create(subject, description, activeForm, metadata)
	if err != nil {
		return kata.ToolResult{Error: err.Error()}, nil
	}
	return kata.ToolResult{Content: fmt.Sprintf("Created task %s: %s", created.ID, created.Subject)}, nil
}

func (t *Tool) get(id string) (kata.ToolResult, error) {
	got, err := t.manager.Get(id)
	if errors.Is(err, task.ErrNotFound) {
		return kata.ToolResult{Error: fmt.Sprintf("task %s not found", id)}, nil
	}
	if err != nil {
		return kata.ToolResult{Error: err.Error()}, nil
	}
	return kata.ToolResult{Content: renderTask(got)}, nil
}

func (t *Tool) update(id string, u task.Update) (kata.ToolResult, error) {
	updated, err := t.manager.Update(id, u)
	if errors.Is(err, task.ErrNotFound) {
		return kata.ToolResult{Error: fmt.Sprintf("task %s not found", id)}, nil
	}
	if err != nil {
		return kata.ToolResult{Error: err.Error()}, nil
	}
	return kata.ToolResult{Content: fmt.Sprintf("Updated task %s (status: %s)", updated.ID, updated.Status)}, nil
}

func (t *Tool) list() (kata.ToolResult, error) {
	tasks, err := t.manager.List()
	if err != nil {
		return kata.ToolResult{Error: err.Error()}, nil
	}
	if len(tasks) == 0 {
		return kata.ToolResult{Content: "No tasks."}, nil
	}
	var b strings.Builder
	for _, tk := range tasks {
		fmt.Fprintf(&b, "#%s [%s] %s", tk.ID, tk.Status, tk.Subject)
		if len(tk.BlockedBy) > 0 {
			deps := append([]string(nil), tk.BlockedBy...)
			sort.Strings(deps)
			fmt.Fprintf(&b, " (blocked by %s)", strings.Join(deps, ", "))
		}
		b.WriteString("\n")
	}
	return kata.ToolResult{Content: b.String()}, nil
}

func renderTask(tk task.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %s: %s\nStatus: %s\n", tk.ID, tk.Subject, tk.Status)
	if tk.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", tk.Description)
	}
	if tk.Owner != "" {
		fmt.Fprintf(&b, "Owner: %s\n", tk.Owner)
	}
	if len(tk.BlockedBy) > 0 {
		fmt.Fprintf(&b, "Blocked by: %s\n", strings.Join(tk.BlockedBy, ", "))
	}
	if len(tk.Blocks) > 0 {
		fmt.Fprintf(&b, "Blocks: %s\n", strings.Join(tk.Blocks, ", "))
	}
	return b.String()
}

func (t *Tool) background(id string) (kata.ToolResult, error) {
	if t.session == nil {
		return kata.ToolResult{Error: "no session bound"}, nil
	}
	bg, ok := t.session.Background(id)
	if !ok {
		return kata.ToolResult{Error: fmt.Sprintf("background task %s not found", id)}, nil
	}
	return kata.ToolResult{Content: fmt.Sprintf("[%s] %s", bg.Status, bg.Output)}, nil
}

func (t *Tool) stop(id string) (kata.ToolResult, error) {
	if t.session == nil {
		return kata.ToolResult{Error: "no session bound"}, nil
	}
	if !t.session.StopBackground(id) {
		return kata.ToolResult{Error: fmt.Sprintf("background task %s not found", id)}, nil
	}
	return kata.ToolResult{Content: fmt.Sprintf("Stopped background task %s", id)}, nil
}
