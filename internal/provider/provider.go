// Package provider defines the LLM execution contract the session core
// depends on. Real provider adapters live outside this repository; the
// built-in loopback provider exists so the runtime and its tests can stream
// end to end without network access.
package provider

import (
	"context"

	"github.com/agentd-ai/agentd/internal/event"
	"github.com/agentd-ai/agentd/internal/history"
	"github.com/agentd-ai/agentd/pkg/types"
)

// Service executes LLM calls for one session. Implementations emit a
// response:completed event on the session-local bus when a call finishes so
// usage accounting can happen without coupling to the caller.
type Service interface {
	// Stream sends input through the LLM with the session's history as
	// context and returns the completed result.
	Stream(ctx context.Context, input string) (*StreamResult, error)

	// Config returns the LLM configuration this service was built with.
	Config() types.LLMConfig

	// Close releases the service. Idempotent.
	Close() error
}

// StreamResult is the outcome of one completed LLM call.
type StreamResult struct {
	Content    string            `json:"content"`
	ProviderID string            `json:"providerID"`
	ModelID    string            `json:"modelID"`
	Usage      *types.TokenUsage `json:"usage,omitempty"`
	Cost       *float64          `json:"cost,omitempty"`
	Finish     string            `json:"finish,omitempty"`
}

// Factory builds a Service bound to a session's history and local event bus.
type Factory func(cfg types.LLMConfig, hist *history.Store, local *event.Bus) (Service, error)
