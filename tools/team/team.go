// Package team provides the multi-agent coordination tools: TeamCreate,
// SendMessage, and TeamDelete over the shared session state.
package team

import (
	"context"
	"encoding/json"
	"fmt"

	kata "github.com/edenmoss/kata"
)

// Tool binds the team tools to a session.
type Tool struct {
	session *kata.Session
}

// New creates the team tool set over session.
func New(session *kata.Session) *Tool {
	return &Tool{session: session}
}

func (t *Tool) Definitions() []kata.ToolDefinition {
	return []kata.ToolDefinition{
		{
			Name:        "TeamCreate",
			Description: "Create a new team for coordinating multiple agents working together",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"team_name":{"type":"string","description":"Name for the new team"},"description":{"type":"string","description":"Team purpose"}},"required":["team_name"]}`),
		},
		{
			Name:        "SendMessage",
			Description: "Send a message to a teammate or broadcast to all. Types: message, broadcast, shutdown_request",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"type":{"type":"string","enum":["message","broadcast","shutdown_request"],"description":"Message type"},"recipient":{"type":"string","description":"Teammate name (for message/shutdown_request)"},"content":{"type":"string","description":"Message content"}},"required":["type","content"]}`),
		},
		{
			Name:        "TeamDelete",
			Description: "Delete a team and clean up all its resources",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
	}
}

func (t *Tool) Execute(ctx context.Context, name string, args json.RawMessage) (kata.ToolResult, error) {
	var params struct {
		TeamName    string `json:"team_name"`
		Description string `json:"description"`
		Type        string `json:"type"`
		Recipient   string `json:"recipient"`
		Content     string `json:"content"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return kata.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}

	switch name {
	case "TeamCreate":
		if params.TeamName == "" {
			return kata.ToolResult{Error: "team_name is required"}, nil
		}
		if err := t.session.CreateTeam(params.TeamName, params.Description); err != nil {
			return kata.ToolResult{Error: err.Error()}, nil
		}
		return kata.ToolResult{Content: fmt.Sprintf("Team '%s' created successfully", params.TeamName)}, nil

	case "SendMessage":
		return t.send(params.Type, params.Recipient, params.Content)

	case "TeamDelete":
		t.session.DeleteTeam()
		return kata.ToolResult{Content: "Team deleted and all resources cleaned up"}, nil

	default:
		return kata.ToolResult{Error: "unknown team tool: " + name}, nil
	}
}

func (t *Tool) send(msgType, recipient, content string) (kata.ToolResult, error) {
	switch msgType {
	case "message", "broadcast", "shutdown_request":
	default:
		return kata.ToolResult{Error: fmt.Sprintf("unknown message type %q", msgType)}, nil
	}
	if msgType != "broadcast" && recipient == "" {
		return kata.ToolResult{Error: "recipient is required for " + msgType}, nil
	}
	t.session.RecordMessage(kata.TeamMessage{Type: msgType, Recipient: recipient, Content: content})

	preview := content
	if len(preview) > 100 {
		preview = preview[:100]
	}
	switch msgType {
	case "broadcast":
		return kata.ToolResult{Content: "Broadcast sent to all teammates: " + preview}, nil
	case "shutdown_request":
		return kata.ToolResult{Content: "Shutdown request sent to " + recipient}, nil
	default:
		return kata.ToolResult{Content: fmt.Sprintf("Message sent to %s: %s", recipient, preview)}, nil
	}
}
