package session

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/agentd-ai/agentd/internal/event"
	"github.com/agentd-ai/agentd/internal/history"
	"github.com/agentd-ai/agentd/pkg/types"
)

const (
	// minMessagesToCompact is the history size below which compaction is not
	// worth doing.
	minMessagesToCompact = 3

	// summarizeMaxRetries bounds retries of the summarization strategy
	// before the failure propagates.
	summarizeMaxRetries = 3
	// summarizeInitialInterval is the initial retry backoff interval.
	summarizeInitialInterval = time.Second
	// summarizeMaxInterval caps the retry backoff interval.
	summarizeMaxInterval = 15 * time.Second
)

// Summarizer is the external summarization strategy compaction delegates to.
type Summarizer interface {
	// Summarize produces a summary of the conversation. An empty summary
	// means there is nothing worth keeping.
	Summarize(ctx context.Context, messages []*types.Message) (string, error)
}

// CompactionResult describes a completed compaction.
type CompactionResult struct {
	PreviousSessionID string
	NewSessionID      string
	Session           *ChatSession
	SummaryMessage    *types.Message
	SummaryTokens     int
	OriginalMessages  int
}

// CompactionService replaces a long conversation with a continuation session
// seeded by a summary, atomically linking the two records.
type CompactionService struct {
	manager    *Manager
	summarizer Summarizer
	events     *event.Bus
	logger     zerolog.Logger
}

// NewCompactionService creates a compaction service. events may be nil when
// no notification is wanted.
func NewCompactionService(manager *Manager, summarizer Summarizer, events *event.Bus, logger zerolog.Logger) *CompactionService {
	return &CompactionService{
		manager:    manager,
		summarizer: summarizer,
		events:     events,
		logger:     logger.With().Str("component", "compaction").Logger(),
	}
}

// Compact rewrites a session chain: summarize the history, create a
// continuation session seeded with the summary, and mark the original
// compacted. Returns nil when there is nothing to compact (too little
// history, or the strategy yields no summary).
//
// Compaction is all-or-nothing: any failure propagates to the caller, and no
// session is left marked compacted unless both the continuation creation and
// the forward link succeeded.
func (c *CompactionService) Compact(ctx context.Context, sess *ChatSession, reason string) (*CompactionResult, error) {
	messages, err := sess.History().List(ctx)
	if err != nil {
		return nil, err
	}
	if len(messages) < minMessagesToCompact {
		c.logger.Debug().Str("sessionID", sess.ID()).Int("messages", len(messages)).Msg("too little history to compact")
		return nil, nil
	}

	summary, err := c.summarize(ctx, messages)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(summary)
	if text == "" {
		c.logger.Debug().Str("sessionID", sess.ID()).Msg("summarizer yielded no summary")
		return nil, nil
	}

	now := time.Now().UnixMilli()
	summaryMsg := &types.Message{
		ID:               history.NewMessageID(),
		Role:             "assistant",
		Content:          text,
		CreatedAt:        now,
		IsSessionSummary: true,
		Summary: &types.SummaryMetadata{
			ContinuedFrom:    sess.ID(),
			SummarizedAt:     now,
			OriginalMessages: len(messages),
			FirstMessageAt:   messages[0].CreatedAt,
			LastMessageAt:    messages[len(messages)-1].CreatedAt,
		},
	}

	newSess, err := c.manager.CreateContinuation(ctx, sess.ID())
	if err != nil {
		return nil, err
	}

	// The summary becomes the continuation's first history entry.
	if err := newSess.History().Append(ctx, summaryMsg); err != nil {
		return nil, err
	}

	if err := c.manager.MarkCompacted(ctx, sess.ID(), newSess.ID()); err != nil {
		return nil, err
	}

	summaryTokens := estimateSummaryTokens(text)
	if c.events != nil {
		c.events.PublishSync(event.Event{
			Type: event.SessionContinued,
			Data: event.SessionContinuedData{
				SessionID:         sess.ID(),
				PreviousSessionID: sess.ID(),
				NewSessionID:      newSess.ID(),
				SummaryTokens:     summaryTokens,
				OriginalMessages:  len(messages),
				Reason:            reason,
			},
		})
	}

	c.logger.Info().
		Str("sessionID", sess.ID()).
		Str("newSessionID", newSess.ID()).
		Int("originalMessages", len(messages)).
		Msg("session compacted")

	return &CompactionResult{
		PreviousSessionID: sess.ID(),
		NewSessionID:      newSess.ID(),
		Session:           newSess,
		SummaryMessage:    summaryMsg,
		SummaryTokens:     summaryTokens,
		OriginalMessages:  len(messages),
	}, nil
}

// summarize invokes the strategy with exponential backoff for transient
// failures.
func (c *CompactionService) summarize(ctx context.Context, messages []*types.Message) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = summarizeInitialInterval
	b.MaxInterval = summarizeMaxInterval
	b.RandomizationFactor = 0.5

	var summary string
	operation := func() error {
		var err error
		summary, err = c.summarizer.Summarize(ctx, messages)
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, summarizeMaxRetries), ctx))
	if err != nil {
		return "", err
	}
	return summary, nil
}

// estimateSummaryTokens approximates token count at ~4 characters per token.
func estimateSummaryTokens(text string) int {
	return len(text) / 4
}
