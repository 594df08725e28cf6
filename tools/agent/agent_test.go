package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	kata "github.com/edenmoss/kata"
)

type scriptedProvider struct {
	responses []kata.ChatResponse
	requests  []kata.ChatRequest
	idx       int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Chat(_ context.Context, req kata.ChatRequest) (kata.ChatResponse, error) {
	p.requests = append(p.requests, req)
	if p.idx >= len(p.responses) {
		return kata.ChatResponse{Content: "exhausted"}, nil
	}
	r := p.responses[p.idx]
	p.idx++
	return r, nil
}

func toolNames(tools []kata.Tool) map[string]bool {
	names := map[string]bool{}
	for _, tl := range tools {
		for _, d := range tl.Definitions() {
			names[d.Name] = true
		}
	}
	return names
}

func TestAgentTypesDefined(t *testing.T) {
	byName := map[string]Type{}
	for _, at := range Types() {
		byName[at.Name] = at
	}
	for _, want := range []string{"explore", "code", "plan"} {
		at, ok := byName[want]
		if !ok {
			t.Fatalf("missing agent type %q", want)
		}
		if at.Description == "" {
			t.Errorf("%s has empty description", want)
		}
	}
}

func TestExploreAndPlanAreReadOnly(t *testing.T) {
	tool := New(&scriptedProvider{}, t.TempDir())
	for _, kind := range []string{"explore", "plan"} {
		set, ok := tool.ToolsFor(kind)
		if !ok {
			t.Fatalf("ToolsFor(%s) unknown", kind)
		}
		names := toolNames(set)
		if !names["bash"] || !names["read_file"] {
			t.Errorf("%s missing read tools: %v", kind, names)
		}
		if names["write_file"] || names["edit_file"] {
			t.Errorf("%s has write tools: %v", kind, names)
		}
	}
}

func TestCodeHasFullAccess(t *testing.T) {
	tool := New(&scriptedProvider{}, t.TempDir())
	set, _ := tool.ToolsFor("code")
	names := toolNames(set)
	for _, want := range []string{"bash", "read_file", "write_file", "edit_file"} {
		if !names[want] {
			t.Errorf("code missing %s", want)
		}
	}
}

func TestNoRecursiveDelegation(t *testing.T) {
	tool := New(&scriptedProvider{}, t.TempDir())
	for _, at := range Types() {
		set, _ := tool.ToolsFor(at.Name)
		if toolNames(set)["Task"] {
			t.Errorf("%s sub-agent can recurse", at.Name)
		}
	}
}

func TestUnknownAgentType(t *testing.T) {
	tool := New(&scriptedProvider{}, t.TempDir())
	if _, ok := tool.ToolsFor("audit"); ok {
		t.Error("unknown type accepted")
	}
	res, err := tool.Execute(context.Background(), "Task",
		json.RawMessage(`{"description":"d","prompt":"p","agent_type":"audit"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Error, "unknown agent type") {
		t.Errorf("got %q", res.Error)
	}
}

func TestDelegationRunsFreshTranscript(t *testing.T) {
	p := &scriptedProvider{responses: []kata.ChatResponse{
		{Content: "found three files"},
	}}
	tool := New(p, t.TempDir())

	res, err := tool.Execute(context.Background(), "Task",
		json.RawMessage(`{"description":"scan","prompt":"list the files","agent_type":"explore"}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Error != "" {
		t.Fatal(res.Error)
	}
	if want := "Sub-agent (explore) result: found three files"; res.Content != want {
		t.Errorf("got %q, want %q", res.Content, want)
	}

	// The sub-agent sees only its own prompt: one system message, one user
	// message, nothing from any parent conversation.
	if len(p.requests) != 1 {
		t.Fatalf("%d requests", len(p.requests))
	}
	msgs := p.requests[0].Messages
	if len(msgs) != 2 || msgs[0].Role != "system" || msgs[1].Role != "user" {
		t.Fatalf("transcript not fresh: %+v", msgs)
	}
	if !strings.Contains(msgs[1].Content, "list the files") {
		t.Errorf("prompt missing: %q", msgs[1].Content)
	}
}

func TestDelegationExhaustionIsErrorResult(t *testing.T) {
	calls := []kata.ToolCall{{ID: "c1", Name: "bash", Args: json.RawMessage(`{"command":"true"}`)}}
	p := &scriptedProvider{responses: []kata.ChatResponse{
		{ToolCalls: calls}, {ToolCalls: calls},
	}}
	tool := New(p, t.TempDir(), WithMaxTurns(2))

	res, err := tool.Execute(context.Background(), "Task",
		json.RawMessage(`{"description":"d","prompt":"never stop","agent_type":"explore"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Error, "ran out of turns") {
		t.Errorf("got %q / %q", res.Content, res.Error)
	}
}

func TestMissingPrompt(t *testing.T) {
	tool := New(&scriptedProvider{}, t.TempDir())
	res, err := tool.Execute(context.Background(), "Task",
		json.RawMessage(`{"description":"d","agent_type":"code"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Error, "prompt") {
		t.Errorf("got %q", res.Error)
	}
}
