// Package history persists conversation messages under the "messages:<id>"
// key namespace. The session core treats the payload as opaque beyond counts
// and summary-message injection.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentd-ai/agentd/internal/storage"
	"github.com/agentd-ai/agentd/pkg/types"
)

// Store reads and writes one session's message history.
type Store struct {
	db        storage.Database
	sessionID string
}

// NewStore creates a history store bound to one session id.
func NewStore(db storage.Database, sessionID string) *Store {
	return &Store{db: db, sessionID: sessionID}
}

// SessionID returns the session this store is bound to.
func (s *Store) SessionID() string {
	return s.sessionID
}

// List returns all messages in insertion order. A missing history key yields
// an empty slice, not an error.
func (s *Store) List(ctx context.Context) ([]*types.Message, error) {
	var messages []*types.Message
	err := s.db.Get(ctx, storage.MessagesKey(s.sessionID), &messages)
	if errors.Is(err, storage.ErrNotFound) {
		return []*types.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return messages, nil
}

// Count returns the number of stored messages.
func (s *Store) Count(ctx context.Context) (int, error) {
	messages, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(messages), nil
}

// Append adds a message to the history. A zero ID or CreatedAt is filled in.
func (s *Store) Append(ctx context.Context, msg *types.Message) error {
	messages, err := s.List(ctx)
	if err != nil {
		return err
	}

	if msg.ID == "" {
		msg.ID = NewMessageID()
	}
	if msg.CreatedAt == 0 {
		msg.CreatedAt = time.Now().UnixMilli()
	}
	msg.SessionID = s.sessionID

	messages = append(messages, msg)
	return s.db.Set(ctx, storage.MessagesKey(s.sessionID), messages)
}

// Clear removes all messages but keeps the history key addressable.
func (s *Store) Clear(ctx context.Context) error {
	return s.db.Set(ctx, storage.MessagesKey(s.sessionID), []*types.Message{})
}

// Delete removes the history key entirely.
func (s *Store) Delete(ctx context.Context) error {
	return s.db.Delete(ctx, storage.MessagesKey(s.sessionID))
}

// NewMessageID generates a new ULID message id.
func NewMessageID() string {
	return ulid.Make().String()
}
