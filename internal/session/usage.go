package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agentd-ai/agentd/internal/history"
	"github.com/agentd-ai/agentd/internal/storage"
	"github.com/agentd-ai/agentd/pkg/types"
)

// UsageUpdate is one accounting delta for a session. ProviderID/ModelID tag
// the update for per-model stats; untagged updates only move the
// session-level totals.
type UsageUpdate struct {
	Usage      types.TokenUsage
	Cost       *float64
	ProviderID string
	ModelID    string
}

// AccumulateTokenUsage adds a usage delta to the session's persisted totals.
//
// Calls are serialized per session id: each call's read-modify-write,
// including persistence, completes before the next call's read begins, so
// concurrent accumulation never loses updates. Different sessions accumulate
// fully in parallel.
//
// A missing record is a no-op: accumulation never creates sessions. No
// ordering is guaranteed against a concurrent Reset or Delete of the same
// session; callers must not race those paths.
func (m *Manager) AccumulateTokenUsage(ctx context.Context, id string, update UsageUpdate) error {
	release, err := m.usageLocks.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	var record types.SessionRecord
	if err := m.store.Database.Get(ctx, storage.SessionKey(id), &record); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.logger.Debug().Str("sessionID", id).Msg("skipping usage for unknown session")
			return nil
		}
		return fmt.Errorf("failed to load session record: %w", err)
	}

	now := time.Now().UnixMilli()

	if record.TokenUsage == nil {
		record.TokenUsage = &types.TokenUsage{}
	}
	record.TokenUsage.Add(update.Usage)

	if update.Cost != nil {
		if record.EstimatedCost == nil {
			record.EstimatedCost = new(float64)
		}
		*record.EstimatedCost += *update.Cost
	}

	if update.ProviderID != "" && update.ModelID != "" {
		key := types.ModelKey(update.ProviderID, update.ModelID)
		if record.ModelStats == nil {
			record.ModelStats = make(map[string]*types.ModelStats)
		}
		stats, ok := record.ModelStats[key]
		if !ok {
			stats = &types.ModelStats{
				ProviderID: update.ProviderID,
				ModelID:    update.ModelID,
				FirstUsed:  now,
			}
			record.ModelStats[key] = stats
		}
		stats.Usage.Add(update.Usage)
		if update.Cost != nil {
			stats.Cost += *update.Cost
		}
		stats.MessageCount++
		stats.LastUsed = now
	}

	// Resync the message count from stored history while we hold the
	// per-session lock.
	if n, err := history.NewStore(m.store.Database, id).Count(ctx); err == nil {
		record.MessageCount = n
	}

	record.LastActivity = now

	if err := m.store.Database.Set(ctx, storage.SessionKey(id), &record); err != nil {
		return fmt.Errorf("failed to persist token usage: %w", err)
	}
	m.cacheRecord(ctx, &record)
	return nil
}
