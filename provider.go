package kata

import "context"

// Provider abstracts the completion endpoint. The loop consumes it only
// through the request/response shape; transport, streaming, and model
// selection are the provider's business.
type Provider interface {
	// Chat sends the message history and tool manifest, returning a complete
	// response. When the response carries tool calls the loop dispatches them;
	// when it carries none the loop treats Content as the terminal answer.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// Name returns the provider name (e.g. "anthropic").
	Name() string
}
