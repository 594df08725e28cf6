package team

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	kata "github.com/edenmoss/kata"
)

func exec(t *testing.T, tool *Tool, name, args string) kata.ToolResult {
	t.Helper()
	res, err := tool.Execute(context.Background(), name, json.RawMessage(args))
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestTeamCreate(t *testing.T) {
	session := kata.NewSession("kata", t.TempDir())
	tool := New(session)

	res := exec(t, tool, "TeamCreate", `{"team_name":"builders","description":"ship the release"}`)
	if res.Error != "" {
		t.Fatal(res.Error)
	}
	if !strings.Contains(res.Content, "'builders' created") {
		t.Errorf("got %q", res.Content)
	}
	if session.Team() == nil || session.Team().Name != "builders" {
		t.Error("team not recorded on session")
	}

	// Creating the same team again fails.
	res = exec(t, tool, "TeamCreate", `{"team_name":"builders"}`)
	if !strings.Contains(res.Error, "already exists") {
		t.Errorf("got %q", res.Error)
	}
}

func TestSendMessageVariants(t *testing.T) {
	session := kata.NewSession("kata", t.TempDir())
	tool := New(session)
	exec(t, tool, "TeamCreate", `{"team_name":"builders"}`)

	res := exec(t, tool, "SendMessage", `{"type":"message","recipient":"alice","content":"start on the parser"}`)
	if res.Error != "" {
		t.Fatal(res.Error)
	}
	if !strings.Contains(res.Content, "Message sent to alice") {
		t.Errorf("got %q", res.Content)
	}

	res = exec(t, tool, "SendMessage", `{"type":"broadcast","content":"standup in 5"}`)
	if !strings.Contains(res.Content, "Broadcast sent to all teammates") {
		t.Errorf("got %q", res.Content)
	}

	res = exec(t, tool, "SendMessage", `{"type":"shutdown_request","recipient":"bob","content":"wrap up"}`)
	if !strings.Contains(res.Content, "Shutdown request sent to bob") {
		t.Errorf("got %q", res.Content)
	}

	sent := session.SentMessages()
	if len(sent) != 3 {
		t.Fatalf("recorded %d messages, want 3", len(sent))
	}
	if sent[1].Type != "broadcast" || sent[2].Recipient != "bob" {
		t.Errorf("messages recorded wrong: %+v", sent)
	}
}

func TestSendMessageValidation(t *testing.T) {
	session := kata.NewSession("kata", t.TempDir())
	tool := New(session)

	res := exec(t, tool, "SendMessage", `{"type":"message","content":"no recipient"}`)
	if !strings.Contains(res.Error, "recipient") {
		t.Errorf("got %q", res.Error)
	}

	res = exec(t, tool, "SendMessage", `{"type":"whisper","content":"x"}`)
	if !strings.Contains(res.Error, "unknown message type") {
		t.Errorf("got %q", res.Error)
	}
}

func TestTeamDelete(t *testing.T) {
	session := kata.NewSession("kata", t.TempDir())
	tool := New(session)
	exec(t, tool, "TeamCreate", `{"team_name":"builders"}`)

	res := exec(t, tool, "TeamDelete", `{}`)
	if res.Error != "" {
		t.Fatal(res.Error)
	}
	if !strings.Contains(res.Content, "deleted") {
		t.Errorf("got %q", res.Content)
	}
	if session.Team() != nil {
		t.Error("team still present after delete")
	}
}
