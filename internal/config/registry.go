package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vocatutor/vocatutor/internal/llmgateway/provider"
)

// ErrProviderNotRegistered is returned by [Registry.Create] when no factory
// has been registered under the requested backend name.
var ErrProviderNotRegistered = errors.New("config: llm backend not registered")

// Registry maps LLM backend names to their constructor functions, the same
// way the teacher's provider registry dispatches on a provider name — just
// narrowed to the one provider kind the vocab engine talks to. It is safe
// for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]func(LLMConfig) (provider.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]func(LLMConfig) (provider.Provider, error))}
}

// Register registers a backend factory under name. Subsequent calls with
// the same name overwrite the previous registration.
func (r *Registry) Register(name string, factory func(LLMConfig) (provider.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = factory
}

// Create instantiates the LLM provider for cfg.Backend.
// Returns [ErrProviderNotRegistered] if no factory has been registered for
// that name.
func (r *Registry) Create(cfg LLMConfig) (provider.Provider, error) {
	r.mu.RLock()
	factory, ok := r.backends[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotRegistered, cfg.Backend)
	}
	return factory(cfg)
}
