package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/agentd-ai/agentd/internal/event"
	"github.com/agentd-ai/agentd/internal/history"
	"github.com/agentd-ai/agentd/pkg/types"
)

// Registry maps provider ids to service factories. Providers register at
// startup; resolving an unregistered provider is an explicit error, never a
// silent fallback.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a provider factory under id, replacing any previous entry.
func (r *Registry) Register(id string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = factory
}

// IDs returns the registered provider ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// New builds a Service for the configured provider.
func (r *Registry) New(cfg types.LLMConfig, hist *history.Store, local *event.Bus) (Service, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.ProviderID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider not found: %s (registered: %v)", cfg.ProviderID, r.IDs())
	}
	return factory(cfg, hist, local)
}

// FactoryFunc adapts a Registry into the Factory signature expected by the
// session manager.
func (r *Registry) FactoryFunc() Factory {
	return func(cfg types.LLMConfig, hist *history.Store, local *event.Bus) (Service, error) {
		return r.New(cfg, hist, local)
	}
}
