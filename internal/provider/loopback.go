package provider

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/agentd-ai/agentd/internal/event"
	"github.com/agentd-ai/agentd/internal/history"
	"github.com/agentd-ai/agentd/pkg/types"
)

// LoopbackID is the provider id of the built-in loopback provider.
const LoopbackID = "loopback"

// loopback echoes input back with deterministic token usage. It appends both
// sides of the exchange to history and emits response:completed on the
// session-local bus, exercising the full accounting path without a network.
type loopback struct {
	cfg    types.LLMConfig
	hist   *history.Store
	local  *event.Bus
	closed atomic.Bool
}

// NewLoopback builds a loopback service. Registered under LoopbackID by
// RegisterLoopback.
func NewLoopback(cfg types.LLMConfig, hist *history.Store, local *event.Bus) (Service, error) {
	if cfg.ModelID == "" {
		cfg.ModelID = "echo-1"
	}
	return &loopback{cfg: cfg, hist: hist, local: local}, nil
}

// RegisterLoopback registers the loopback factory on a registry.
func RegisterLoopback(r *Registry) {
	r.Register(LoopbackID, NewLoopback)
}

func (l *loopback) Stream(ctx context.Context, input string) (*StreamResult, error) {
	if l.closed.Load() {
		return nil, fmt.Errorf("llm service is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := l.hist.Append(ctx, &types.Message{Role: "user", Content: input}); err != nil {
		return nil, err
	}

	content := "echo: " + input
	if err := l.hist.Append(ctx, &types.Message{
		Role:       "assistant",
		Content:    content,
		ProviderID: LoopbackID,
		ModelID:    l.cfg.ModelID,
	}); err != nil {
		return nil, err
	}

	usage := &types.TokenUsage{
		InputTokens:  estimateTokens(input),
		OutputTokens: estimateTokens(content),
	}
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens

	result := &StreamResult{
		Content:    content,
		ProviderID: LoopbackID,
		ModelID:    l.cfg.ModelID,
		Usage:      usage,
		Finish:     "stop",
	}

	if l.local != nil {
		l.local.PublishSync(event.Event{
			Type: event.ResponseCompleted,
			Data: event.ResponseCompletedData{
				ProviderID: result.ProviderID,
				ModelID:    result.ModelID,
				Usage:      usage,
			},
		})
	}

	return result, nil
}

func (l *loopback) Config() types.LLMConfig {
	return l.cfg
}

func (l *loopback) Close() error {
	l.closed.Store(true)
	return nil
}

// estimateTokens approximates token count at ~4 characters per token.
func estimateTokens(text string) int64 {
	return int64(len(text) / 4)
}
