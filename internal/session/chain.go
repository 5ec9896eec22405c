package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/agentd-ai/agentd/internal/storage"
	"github.com/agentd-ai/agentd/pkg/types"
)

// CreateContinuation creates the successor session for a compaction: a fresh
// record linked back to fromID, carrying the parent's LLM configuration and
// an incremented compaction count. The parent record is not mutated; that is
// MarkCompacted's job, called only after the continuation exists.
func (m *Manager) CreateContinuation(ctx context.Context, fromID string) (*ChatSession, error) {
	var parent types.SessionRecord
	if err := m.store.Database.Get(ctx, storage.SessionKey(fromID), &parent); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newNotFoundError(fromID)
		}
		return nil, err
	}

	if err := m.checkCapacity(ctx); err != nil {
		return nil, err
	}

	newID := uuid.NewString()

	// Carry the parent's effective LLM configuration over to the new id.
	parentCfg := m.effectiveLLMConfig(fromID)
	m.mu.Lock()
	m.llmConfigs[newID] = parentCfg
	m.mu.Unlock()

	now := time.Now().UnixMilli()
	record := types.SessionRecord{
		ID:              newID,
		Version:         types.SessionRecordVersion,
		CreatedAt:       now,
		LastActivity:    now,
		Metadata:        map[string]any{},
		ContinuedFrom:   fromID,
		CompactionCount: parent.CompactionCount + 1,
	}
	if err := m.store.Database.Set(ctx, storage.SessionKey(newID), &record); err != nil {
		m.mu.Lock()
		delete(m.llmConfigs, newID)
		m.mu.Unlock()
		m.logger.Error().Err(err).Str("sessionID", newID).Msg("failed to persist continuation record")
		return nil, err
	}

	sess, err := m.buildChatSession(ctx, newID)
	if err != nil {
		// Roll back the persisted record and the config override.
		if delErr := m.store.Database.Delete(ctx, storage.SessionKey(newID)); delErr != nil {
			m.logger.Error().Err(delErr).Str("sessionID", newID).Msg("failed to roll back continuation record")
		}
		_ = m.store.Cache.Delete(ctx, storage.SessionKey(newID))
		m.mu.Lock()
		delete(m.llmConfigs, newID)
		m.mu.Unlock()
		return nil, newInitError(newID, err)
	}

	m.mu.Lock()
	m.sessions[newID] = sess
	m.mu.Unlock()
	m.cacheRecord(ctx, &record)

	m.logger.Info().
		Str("sessionID", newID).
		Str("continuedFrom", fromID).
		Msg("continuation session created")
	return sess, nil
}

// effectiveLLMConfig resolves the LLM configuration in force for a session:
// the live session's config, then any registered override, then the default.
func (m *Manager) effectiveLLMConfig(id string) types.LLMConfig {
	m.mu.Lock()
	sess := m.sessions[id]
	override, hasOverride := m.llmConfigs[id]
	m.mu.Unlock()

	if sess != nil {
		return sess.Config()
	}
	if hasOverride {
		return override
	}
	return m.cfg.DefaultLLM
}

// MarkCompacted records the forward link on a compacted session. Call only
// after CreateContinuation has succeeded for continuedTo.
func (m *Manager) MarkCompacted(ctx context.Context, id, continuedTo string) error {
	var record types.SessionRecord
	if err := m.store.Database.Get(ctx, storage.SessionKey(id), &record); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return newNotFoundError(id)
		}
		return err
	}

	now := time.Now().UnixMilli()
	record.ContinuedTo = continuedTo
	record.CompactedAt = &now
	record.LastActivity = now

	if err := m.store.Database.Set(ctx, storage.SessionKey(id), &record); err != nil {
		return err
	}
	m.cacheRecord(ctx, &record)
	return nil
}

// Chain returns the session's full continuation chain in chronological
// order. The walk is bounded by a visited set in both directions, so a
// missing or cyclic ancestor terminates the walk instead of looping.
func (m *Manager) Chain(ctx context.Context, id string) ([]*types.SessionRecord, error) {
	record, err := m.Record(ctx, id)
	if err != nil {
		return nil, err
	}

	// Walk backward to the chain root.
	visited := map[string]bool{record.ID: true}
	root := record
	for root.ContinuedFrom != "" {
		if visited[root.ContinuedFrom] {
			break
		}
		parent, err := m.Record(ctx, root.ContinuedFrom)
		if err != nil {
			break
		}
		visited[parent.ID] = true
		root = parent
	}

	// Walk forward from the root collecting records.
	chain := []*types.SessionRecord{root}
	seen := map[string]bool{root.ID: true}
	current := root
	for current.ContinuedTo != "" {
		if seen[current.ContinuedTo] {
			break
		}
		next, err := m.Record(ctx, current.ContinuedTo)
		if err != nil {
			break
		}
		seen[next.ID] = true
		chain = append(chain, next)
		current = next
	}

	return chain, nil
}
