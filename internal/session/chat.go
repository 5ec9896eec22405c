package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentd-ai/agentd/internal/event"
	"github.com/agentd-ai/agentd/internal/history"
	"github.com/agentd-ai/agentd/internal/provider"
	"github.com/agentd-ai/agentd/pkg/types"
)

// accumulateTimeout bounds the background usage write kicked off by a
// response-completion event.
const accumulateTimeout = 30 * time.Second

// UsageSink receives token usage for a session. The SessionManager is the
// production implementation.
type UsageSink interface {
	AccumulateTokenUsage(ctx context.Context, sessionID string, update UsageUpdate) error
}

// ChatSession binds one session id to a live LLM execution pipeline and
// history provider. All events emitted on the session-local bus are forwarded
// to the agent-wide bus tagged with the session id.
//
// A ChatSession holds in-memory resources only. Disposing it never touches
// the persisted SessionRecord.
type ChatSession struct {
	id         string
	agentBus   *event.Bus
	local      *event.Bus
	hist       *history.Store
	llmFactory provider.Factory
	usage      UsageSink
	logger     zerolog.Logger

	mu  sync.Mutex
	llm provider.Service
	cfg types.LLMConfig

	unsubs   []func()
	disposed atomic.Bool
}

// newChatSession constructs an uninitialized ChatSession; Init must be called
// before use.
func newChatSession(
	id string,
	cfg types.LLMConfig,
	hist *history.Store,
	agentBus *event.Bus,
	llmFactory provider.Factory,
	usage UsageSink,
	logger zerolog.Logger,
) *ChatSession {
	return &ChatSession{
		id:         id,
		cfg:        cfg,
		hist:       hist,
		agentBus:   agentBus,
		llmFactory: llmFactory,
		usage:      usage,
		logger:     logger.With().Str("sessionID", id).Logger(),
	}
}

// ID returns the session id this ChatSession is bound to.
func (s *ChatSession) ID() string {
	return s.id
}

// History returns the session's history store.
func (s *ChatSession) History() *history.Store {
	return s.hist
}

// Config returns the LLM configuration currently in effect.
func (s *ChatSession) Config() types.LLMConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Init constructs the history provider and LLM service and wires event
// forwarding.
func (s *ChatSession) Init(ctx context.Context) error {
	s.local = event.NewBus()

	llm, err := s.llmFactory(s.cfg, s.hist, s.local)
	if err != nil {
		s.local.Close()
		return fmt.Errorf("failed to build llm service: %w", err)
	}
	s.llm = llm

	s.unsubs = append(s.unsubs, s.local.SubscribeAll(s.forward))
	return nil
}

// forward republishes a session-local event on the agent-wide bus with the
// session id merged into its payload, and routes completion usage into the
// accounting path.
func (s *ChatSession) forward(e event.Event) {
	e.Data = event.Tag(e.Data, s.id)
	s.agentBus.Publish(e)

	if e.Type == event.ResponseCompleted {
		if data, ok := e.Data.(event.ResponseCompletedData); ok {
			s.recordUsage(data)
		}
	}
}

// recordUsage accumulates token usage from a completed response. It runs in
// the background and never interrupts the conversation flow: failures are
// logged as warnings only. The provider/model tag falls back to the session's
// configured LLM so cost attribution stays correct when the payload omits it.
func (s *ChatSession) recordUsage(data event.ResponseCompletedData) {
	if s.usage == nil || data.Usage == nil {
		return
	}

	providerID := data.ProviderID
	modelID := data.ModelID
	if providerID == "" || modelID == "" {
		cfg := s.Config()
		if providerID == "" {
			providerID = cfg.ProviderID
		}
		if modelID == "" {
			modelID = cfg.ModelID
		}
	}

	update := UsageUpdate{
		Usage:      *data.Usage,
		Cost:       data.Cost,
		ProviderID: providerID,
		ModelID:    modelID,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), accumulateTimeout)
		defer cancel()
		if err := s.usage.AccumulateTokenUsage(ctx, s.id, update); err != nil {
			s.logger.Warn().Err(err).Msg("failed to accumulate token usage")
		}
	}()
}

// Stream sends input through the LLM service and returns its result or
// propagates its error.
func (s *ChatSession) Stream(ctx context.Context, input string) (*provider.StreamResult, error) {
	if s.disposed.Load() {
		return nil, fmt.Errorf("session %s is disposed", s.id)
	}

	s.mu.Lock()
	llm := s.llm
	s.mu.Unlock()

	return llm.Stream(ctx, input)
}

// SwitchLLM rebuilds the LLM service against the same history and emits an
// llm:switched event. The old service is closed only after the replacement is
// built, so a failed switch leaves the session on its previous LLM.
func (s *ChatSession) SwitchLLM(ctx context.Context, cfg types.LLMConfig) error {
	if s.disposed.Load() {
		return fmt.Errorf("session %s is disposed", s.id)
	}

	replacement, err := s.llmFactory(cfg, s.hist, s.local)
	if err != nil {
		return fmt.Errorf("failed to switch llm: %w", err)
	}

	s.mu.Lock()
	old := s.llm
	s.llm = replacement
	s.cfg = cfg
	s.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close replaced llm service")
		}
	}

	s.local.PublishSync(event.Event{
		Type: event.LLMSwitched,
		Data: event.LLMSwitchedData{
			SessionID:       s.id,
			NewConfig:       cfg,
			HistoryRetained: true,
		},
	})

	return nil
}

// Reset clears the conversation history and emits a session:reset event.
func (s *ChatSession) Reset(ctx context.Context) error {
	if err := s.hist.Clear(ctx); err != nil {
		return fmt.Errorf("failed to reset session %s: %w", s.id, err)
	}

	s.local.PublishSync(event.Event{
		Type: event.SessionReset,
		Data: event.SessionResetData{SessionID: s.id},
	})

	return nil
}

// Dispose releases event listeners and in-memory handles. Idempotent; never
// deletes the persisted record.
func (s *ChatSession) Dispose() {
	if !s.disposed.CompareAndSwap(false, true) {
		return
	}

	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil

	if s.local != nil {
		s.local.Close()
	}

	s.mu.Lock()
	llm := s.llm
	s.mu.Unlock()
	if llm != nil {
		if err := llm.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close llm service")
		}
	}

	s.logger.Debug().Msg("session disposed")
}
