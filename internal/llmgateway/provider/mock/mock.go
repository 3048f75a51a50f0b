// Package mock provides a test double for the provider.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/vocatutor/vocatutor/internal/llmgateway/provider"
)

// Call records a single invocation of Complete.
type Call struct {
	Ctx context.Context
	Req provider.CompletionRequest
}

// Provider is a mock implementation of provider.Provider. Zero value
// returns a zero CompletionResponse and nil error; set Err to inject a
// failure, or set Responses to return a different response per call.
type Provider struct {
	mu sync.Mutex

	Response  *provider.CompletionResponse
	Responses []*provider.CompletionResponse
	Err       error

	Calls []Call
}

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, Call{Ctx: ctx, Req: req})

	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.Responses) > 0 {
		idx := len(p.Calls) - 1
		if idx < len(p.Responses) {
			return p.Responses[idx], nil
		}
		return p.Responses[len(p.Responses)-1], nil
	}
	if p.Response == nil {
		return &provider.CompletionResponse{}, nil
	}
	return p.Response, nil
}

var _ provider.Provider = (*Provider)(nil)
