// Package provider defines the Provider interface for Large Language Model
// backends used by the translation/validation gateway, and backend
// implementations over github.com/mozilla-ai/any-llm-go and the OpenAI SDK.
package provider

import "context"

// Message is a single turn in an LLM conversation.
type Message struct {
	// Role is one of "system", "user", "assistant".
	Role    string
	Content string
}

// CompletionRequest carries everything a backend needs to produce a
// response. Messages must be non-empty.
type CompletionRequest struct {
	Messages []Message

	// Temperature in [0.0, 2.0]; low values favor deterministic output,
	// which the gateway always requests for cacheability.
	Temperature float64

	// MaxTokens caps completion length. Zero means provider default.
	MaxTokens int

	// SystemPrompt is injected ahead of Messages.
	SystemPrompt string
}

// Usage holds token accounting returned by a backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResponse is the full, non-streamed reply.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any LLM backend the gateway calls
// through. Implementations must be safe for concurrent use.
type Provider interface {
	// Complete sends req and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
