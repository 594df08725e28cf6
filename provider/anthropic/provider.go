// Package anthropic implements kata.Provider for the Anthropic messages API.
// Non-streaming; tool use is mapped onto the generic tool-call types.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	kata "github.com/edenmoss/kata"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 2000
)

// Provider implements kata.Provider against the Anthropic messages API.
type Provider struct {
	apiKey    string
	model     string
	baseURL   string
	maxTokens int
	client    *http.Client
	logger    *slog.Logger
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithBaseURL overrides the API base URL, e.g. for a proxy.
func WithBaseURL(u string) ProviderOption {
	return func(p *Provider) { p.baseURL = u }
}

// WithMaxTokens sets the per-response token cap.
func WithMaxTokens(n int) ProviderOption {
	return func(p *Provider) {
		if n > 0 {
			p.maxTokens = n
		}
	}
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) {
		if c != nil {
			p.client = c
		}
	}
}

// WithLogger sets a structured logger. Nil is ignored.
func WithLogger(l *slog.Logger) ProviderOption {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProvider creates an Anthropic chat provider for the given model.
func NewProvider(apiKey, model string, opts ...ProviderOption) *Provider {
	p := &Provider{
		apiKey:    apiKey,
		model:     model,
		baseURL:   defaultBaseURL,
		maxTokens: defaultMaxTokens,
		client:    &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return "anthropic" }

// Chat sends a non-streaming messages request. When req.Tools is non-empty
// and the model stops with "tool_use", the response carries ToolCalls.
func (p *Provider) Chat(ctx context.Context, req kata.ChatRequest) (kata.ChatResponse, error) {
	body := buildBody(req, p.model, p.maxTokens)
	payload, err := json.Marshal(body)
	if err != nil {
		return kata.ChatResponse{}, &kata.ErrLLM{Provider: p.Name(), Message: fmt.Sprintf("marshal request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return kata.ChatResponse{}, &kata.ErrLLM{Provider: p.Name(), Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return kata.ChatResponse{}, &kata.ErrLLM{Provider: p.Name(), Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return kata.ChatResponse{}, &kata.ErrHTTP{
			Status:     resp.StatusCode,
			Body:       string(raw),
			RetryAfter: kata.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var mr messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return kata.ChatResponse{}, &kata.ErrLLM{Provider: p.Name(), Message: fmt.Sprintf("decode response: %v", err)}
	}
	return parseResponse(mr), nil
}

// buildBody converts generic chat messages into Anthropic wire format. The
// system message becomes the top-level system field; tool results become
// tool_result blocks in user messages.
func buildBody(req kata.ChatRequest, model string, maxTokens int) messagesRequest {
	body := messagesRequest{Model: model, MaxTokens: maxTokens}

	for _, m := range req.Messages {
		switch {
		case m.Role == "system":
			body.System = m.Content

		case m.Role == "assistant" && len(m.ToolCalls) > 0:
			var blocks []contentBlock
			if m.Content != "" {
				blocks = append(blocks, contentBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				input := tc.Args
				if len(input) == 0 {
					input = json.RawMessage(`{}`)
				}
				blocks = append(blocks, contentBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input})
			}
			body.Messages = append(body.Messages, message{Role: "assistant", Content: blocks})

		case m.Role == "tool":
			body.Messages = append(body.Messages, message{Role: "user", Content: []contentBlock{{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   m.Content,
			}}})

		default:
			body.Messages = append(body.Messages, message{Role: m.Role, Content: []contentBlock{{
				Type: "text",
				Text: m.Content,
			}}})
		}
	}

	for _, t := range req.Tools {
		schema := t.Parameters
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		body.Tools = append(body.Tools, tool{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return body
}

// parseResponse concatenates text blocks and collects tool_use blocks.
func parseResponse(mr messagesResponse) kata.ChatResponse {
	var out kata.ChatResponse
	for _, b := range mr.Content {
		switch b.Type {
		case "text":
			out.Content += b.Text
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, kata.ToolCall{ID: b.ID, Name: b.Name, Args: b.Input})
		}
	}
	if mr.StopReason != "tool_use" {
		out.ToolCalls = nil
	}
	out.Usage = kata.Usage{InputTokens: mr.Usage.InputTokens, OutputTokens: mr.Usage.OutputTokens}
	return out
}

// Compile-time interface check.
var _ kata.Provider = (*Provider)(nil)
