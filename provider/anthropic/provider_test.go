package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	kata "github.com/edenmoss/kata"
)

func TestBuildBodySystemAndTools(t *testing.T) {
	req := kata.ChatRequest{
		Messages: []kata.ChatMessage{
			kata.SystemMessage("You are a coding agent."),
			kata.UserMessage("hello"),
		},
		Tools: []kata.ToolDefinition{{Name: "bash", Description: "run commands"}},
	}

	body := buildBody(req, "claude-sonnet-4-5", 2000)
	if body.System != "You are a coding agent." {
		t.Errorf("system = %q", body.System)
	}
	if len(body.Messages) != 1 {
		t.Fatalf("system message leaked into messages: %+v", body.Messages)
	}
	if body.Messages[0].Role != "user" || body.Messages[0].Content[0].Text != "hello" {
		t.Errorf("user message wrong: %+v", body.Messages[0])
	}
	if len(body.Tools) != 1 || body.Tools[0].Name != "bash" {
		t.Errorf("tools wrong: %+v", body.Tools)
	}
	// Empty parameters must still produce a valid schema.
	if string(body.Tools[0].InputSchema) == "" {
		t.Error("empty input schema")
	}
}

func TestBuildBodyToolRound(t *testing.T) {
	req := kata.ChatRequest{
		Messages: []kata.ChatMessage{
			kata.UserMessage("do it"),
			{Role: "assistant", ToolCalls: []kata.ToolCall{{ID: "c1", Name: "bash", Args: json.RawMessage(`{"command":"ls"}`)}}},
			kata.ToolResultMessage("c1", "file.txt"),
		},
	}

	body := buildBody(req, "m", 100)
	if len(body.Messages) != 3 {
		t.Fatalf("got %d messages", len(body.Messages))
	}

	asst := body.Messages[1]
	if asst.Role != "assistant" || asst.Content[0].Type != "tool_use" || asst.Content[0].ID != "c1" {
		t.Errorf("tool_use block wrong: %+v", asst)
	}

	result := body.Messages[2]
	if result.Role != "user" || result.Content[0].Type != "tool_result" || result.Content[0].ToolUseID != "c1" {
		t.Errorf("tool_result block wrong: %+v", result)
	}
	if result.Content[0].Content != "file.txt" {
		t.Errorf("result content = %q", result.Content[0].Content)
	}
}

func TestParseResponseTextConcatenation(t *testing.T) {
	resp := parseResponse(messagesResponse{
		Content: []contentBlock{
			{Type: "text", Text: "part one "},
			{Type: "text", Text: "part two"},
		},
		StopReason: "end_turn",
		Usage:      usage{InputTokens: 10, OutputTokens: 5},
	})
	if resp.Content != "part one part two" {
		t.Errorf("got %q", resp.Content)
	}
	if len(resp.ToolCalls) != 0 {
		t.Errorf("unexpected tool calls: %+v", resp.ToolCalls)
	}
	if resp.Usage.InputTokens != 10 || resp.Usage.OutputTokens != 5 {
		t.Errorf("usage wrong: %+v", resp.Usage)
	}
}

func TestParseResponseToolUse(t *testing.T) {
	resp := parseResponse(messagesResponse{
		Content: []contentBlock{
			{Type: "text", Text: "I'll run it."},
			{Type: "tool_use", ID: "c1", Name: "bash", Input: json.RawMessage(`{"command":"ls"}`)},
		},
		StopReason: "tool_use",
	})
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "bash" {
		t.Fatalf("tool calls wrong: %+v", resp.ToolCalls)
	}
	if resp.Content != "I'll run it." {
		t.Errorf("text lost alongside tool use: %q", resp.Content)
	}
}

func TestChatHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("rate limited"))
	}))
	defer srv.Close()

	p := NewProvider("key", "model", WithBaseURL(srv.URL))
	_, err := p.Chat(context.Background(), kata.ChatRequest{
		Messages: []kata.ChatMessage{kata.UserMessage("hi")},
	})
	httpErr, ok := err.(*kata.ErrHTTP)
	if !ok {
		t.Fatalf("expected *ErrHTTP, got %T: %v", err, err)
	}
	if httpErr.Status != 429 {
		t.Errorf("status = %d", httpErr.Status)
	}
	if httpErr.RetryAfter.Seconds() != 2 {
		t.Errorf("retry-after = %v", httpErr.RetryAfter)
	}
}

func TestChatRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "key" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing version header")
		}
		json.NewEncoder(w).Encode(messagesResponse{
			Content:    []contentBlock{{Type: "text", Text: "hi back"}},
			StopReason: "end_turn",
		})
	}))
	defer srv.Close()

	p := NewProvider("key", "model", WithBaseURL(srv.URL))
	resp, err := p.Chat(context.Background(), kata.ChatRequest{
		Messages: []kata.ChatMessage{kata.UserMessage("hi")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "hi back" {
		t.Errorf("got %q", resp.Content)
	}
}
