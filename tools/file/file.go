// Package file provides the read_file, write_file, and edit_file tools,
// confined to the session workspace.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kata "github.com/edenmoss/kata"
)

// Tool provides file read/write/edit within a workspace directory.
type Tool struct {
	workspacePath string
	readOnly      bool
}

// New creates a file tool restricted to workspacePath.
func New(workspacePath string) *Tool {
	return &Tool{workspacePath: workspacePath}
}

// NewReadOnly creates a file tool that only exposes read_file. Used for
// sub-agent types that must not modify the workspace.
func NewReadOnly(workspacePath string) *Tool {
	return &Tool{workspacePath: workspacePath, readOnly: true}
}

func (t *Tool) Definitions() []kata.ToolDefinition {
	defs := []kata.ToolDefinition{
		{
			Name:        "read_file",
			Description: "Read a file from the workspace and return its content.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"File path relative to workspace"}},"required":["path"]}`),
		},
	}
	if t.readOnly {
		return defs
	}
	return append(defs,
		kata.ToolDefinition{
			Name:        "write_file",
			Description: "Write content to a file in the workspace, creating parent directories if needed. Overwrites existing files.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"File path relative to workspace"},"content":{"type":"string","description":"Content to write"}},"required":["path","content"]}`),
		},
		kata.ToolDefinition{
			Name:        "edit_file",
			Description: "Replace the first occurrence of old_string with new_string in a workspace file.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"File path relative to workspace"},"old_string":{"type":"string","description":"Text to find"},"new_string":{"type":"string","description":"Replacement text"}},"required":["path","old_string","new_string"]}`),
		},
	)
}

func (t *Tool) Execute(ctx context.Context, name string, args json.RawMessage) (kata.ToolResult, error) {
	var params struct {
		Path      string `json:"path"`
		Content   string `json:"content"`
		OldString string `json:"old_string"`
		NewString string `json:"new_string"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return kata.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}

	if t.readOnly && name != "read_file" {
		return kata.ToolResult{Error: "file access is read-only: " + name}, nil
	}
	resolved, err := t.resolvePath(params.Path)
	if err != nil {
		return kata.ToolResult{Error: err.Error()}, nil
	}

	switch name {
	case "read_file":
		return t.read(resolved)
	case "write_file":
		return t.write(resolved, params.Content)
	case "edit_file":
		return t.edit(resolved, params.OldString, params.NewString)
	default:
		return kata.ToolResult{Error: "unknown file tool: " + name}, nil
	}
}

func (t *Tool) resolvePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths not allowed: %s", path)
	}
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("path traversal not allowed: %s", path)
	}
	resolved := filepath.Join(t.workspacePath, path)
	// Double-check it's still within workspace
	if !strings.HasPrefix(resolved, t.workspacePath) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return resolved, nil
}

func (t *Tool) read(path string) (kata.ToolResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return kata.ToolResult{Error: "read error: " + err.Error()}, nil
	}
	return kata.ToolResult{Content: string(data)}, nil
}

func (t *Tool) write(path, content string) (kata.ToolResult, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return kata.ToolResult{Error: "mkdir error: " + err.Error()}, nil
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return kata.ToolResult{Error: "write error: " + err.Error()}, nil
	}
	return kata.ToolResult{Content: fmt.Sprintf("Written %d bytes to %s", len(content), filepath.Base(path))}, nil
}

func (t *Tool) edit(path, oldString, newString string) (kata.ToolResult, error) {
	if oldString == "" {
		return kata.ToolResult{Error: "old_string is required"}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return kata.ToolResult{Error: "read error: " + err.Error()}, nil
	}
	content := string(data)
	if !strings.Contains(content, oldString) {
		return kata.ToolResult{Error: fmt.Sprintf("old_string not found in %s", filepath.Base(path))}, nil
	}
	content = strings.Replace(content, oldString, newString, 1)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return kata.ToolResult{Error: "write error: " + err.Error()}, nil
	}
	return kata.ToolResult{Content: fmt.Sprintf("Edited %s", filepath.Base(path))}, nil
}
