package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentd-ai/agentd/internal/event"
	"github.com/agentd-ai/agentd/internal/history"
	"github.com/agentd-ai/agentd/internal/provider"
	"github.com/agentd-ai/agentd/internal/storage"
	"github.com/agentd-ai/agentd/pkg/types"
)

const (
	// DefaultMaxSessions caps storage records when the config is silent.
	DefaultMaxSessions = 100
	// DefaultTTL is the idle duration before memory eviction.
	DefaultTTL = time.Hour
	// maxCleanupInterval caps the background sweep period.
	maxCleanupInterval = 15 * time.Minute
)

// Config parameterizes a Manager.
type Config struct {
	// MaxSessions caps the number of session records in storage.
	MaxSessions int
	// TTL is the idle duration after which a resident session is evicted
	// from memory. The storage record is never deleted by eviction.
	TTL time.Duration
	// CacheTTL is applied to session records written to the cache store.
	CacheTTL time.Duration
	// DefaultLLM is the LLM configuration for sessions without an override.
	DefaultLLM types.LLMConfig
}

func (c Config) withDefaults() Config {
	if c.MaxSessions <= 0 {
		c.MaxSessions = DefaultMaxSessions
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = c.TTL
	}
	return c
}

// cleanupInterval returns the background sweep period: TTL/4 capped at 15
// minutes.
func (c Config) cleanupInterval() time.Duration {
	interval := c.TTL / 4
	if interval > maxCleanupInterval {
		interval = maxCleanupInterval
	}
	if interval <= 0 {
		interval = time.Second
	}
	return interval
}

// creation is an in-flight construction future. All concurrent callers for
// one id wait on done and receive the same result.
type creation struct {
	done chan struct{}
	sess *ChatSession
	err  error
}

// Manager is the top-level session orchestrator. Storage is the source of
// truth; the in-memory map is a cache of live ChatSessions.
type Manager struct {
	store      *storage.Manager
	events     *event.Bus
	llmFactory provider.Factory
	cfg        Config
	logger     zerolog.Logger

	mu         sync.Mutex
	sessions   map[string]*ChatSession
	pending    map[string]*creation
	llmConfigs map[string]types.LLMConfig

	usageLocks *keyedLock

	stop      chan struct{}
	sweepDone chan struct{}
	closeOnce sync.Once
}

// NewManager creates a Manager and starts its background cleanup sweep.
func NewManager(
	store *storage.Manager,
	events *event.Bus,
	llmFactory provider.Factory,
	cfg Config,
	logger zerolog.Logger,
) *Manager {
	m := &Manager{
		store:      store,
		events:     events,
		llmFactory: llmFactory,
		cfg:        cfg.withDefaults(),
		logger:     logger.With().Str("component", "session-manager").Logger(),
		sessions:   make(map[string]*ChatSession),
		pending:    make(map[string]*creation),
		llmConfigs: make(map[string]types.LLMConfig),
		usageLocks: newKeyedLock(),
		stop:       make(chan struct{}),
		sweepDone:  make(chan struct{}),
	}

	go m.runCleanup()
	return m
}

// Create returns the session for id, creating it if necessary. An empty id
// generates a new UUID. Concurrent calls for the same id are coalesced into
// one construction; every caller receives the same ChatSession.
func (m *Manager) Create(ctx context.Context, id string) (*ChatSession, error) {
	if id == "" {
		id = uuid.NewString()
	}
	return m.admit(ctx, id, false)
}

// admit coalesces concurrent entry for one id: join an in-flight creation,
// hit the memory map, or start the atomic creation path. With restoreOnly
// set, a missing record yields absent instead of a fresh session.
func (m *Manager) admit(ctx context.Context, id string, restoreOnly bool) (*ChatSession, error) {
	for {
		m.mu.Lock()
		if inflight, ok := m.pending[id]; ok {
			m.mu.Unlock()
			sess, err := inflight.wait(ctx)
			// An absent result can only come from a restore-only flight. A
			// full creation must not adopt it: go around and run its own
			// creation (the finished flight has already left the pending
			// map).
			if sess == nil && err == nil && !restoreOnly {
				continue
			}
			return sess, err
		}
		if sess, ok := m.sessions[id]; ok {
			m.mu.Unlock()
			m.touch(ctx, id)
			return sess, nil
		}
		inflight := &creation{done: make(chan struct{})}
		m.pending[id] = inflight
		m.mu.Unlock()

		sess, err := m.createInternal(ctx, id, restoreOnly)
		inflight.sess, inflight.err = sess, err

		m.mu.Lock()
		if sess != nil {
			m.sessions[id] = sess
		}
		delete(m.pending, id)
		m.mu.Unlock()
		close(inflight.done)

		return sess, err
	}
}

func (c *creation) wait(ctx context.Context) (*ChatSession, error) {
	select {
	case <-c.done:
		return c.sess, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// createInternal runs the atomic creation path: expiry sweep, storage
// restore, capacity check, record-first persistence, then ChatSession
// construction with rollback on failure.
func (m *Manager) createInternal(ctx context.Context, id string, restoreOnly bool) (*ChatSession, error) {
	m.CleanupExpired(ctx)

	// Another process may already have created this session.
	var record types.SessionRecord
	err := m.store.Database.Get(ctx, storage.SessionKey(id), &record)
	if err == nil {
		return m.restore(ctx, &record)
	}
	if errors.Is(err, storage.ErrNotFound) && restoreOnly {
		return nil, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		// Storage failures are logged and re-thrown unmodified to preserve
		// the root cause.
		m.logger.Error().Err(err).Str("sessionID", id).Msg("failed to check storage for session")
		return nil, err
	}

	if err := m.checkCapacity(ctx); err != nil {
		return nil, err
	}

	// Persist the record before constructing the heavier ChatSession,
	// claiming the slot.
	now := time.Now().UnixMilli()
	record = types.SessionRecord{
		ID:           id,
		Version:      types.SessionRecordVersion,
		CreatedAt:    now,
		LastActivity: now,
		Metadata:     map[string]any{},
	}
	if err := m.store.Database.Set(ctx, storage.SessionKey(id), &record); err != nil {
		m.logger.Error().Err(err).Str("sessionID", id).Msg("failed to persist session record")
		return nil, err
	}

	sess, err := m.buildChatSession(ctx, id)
	if err != nil {
		// Roll back the claimed slot.
		if delErr := m.store.Database.Delete(ctx, storage.SessionKey(id)); delErr != nil {
			m.logger.Error().Err(delErr).Str("sessionID", id).Msg("failed to roll back session record")
		}
		_ = m.store.Cache.Delete(ctx, storage.SessionKey(id))
		return nil, newInitError(id, err)
	}

	m.cacheRecord(ctx, &record)
	m.logger.Info().Str("sessionID", id).Msg("session created")
	return sess, nil
}

// restore rebuilds a ChatSession from an existing record. The activity
// refresh goes through touch so it is serialized against accumulation still
// in flight from before the session left memory.
func (m *Manager) restore(ctx context.Context, record *types.SessionRecord) (*ChatSession, error) {
	sess, err := m.buildChatSession(ctx, record.ID)
	if err != nil {
		return nil, newInitError(record.ID, err)
	}

	m.touch(ctx, record.ID)

	m.logger.Debug().Str("sessionID", record.ID).Msg("session restored from storage")
	return sess, nil
}

// buildChatSession constructs and initializes the in-memory session object.
func (m *Manager) buildChatSession(ctx context.Context, id string) (*ChatSession, error) {
	m.mu.Lock()
	cfg, ok := m.llmConfigs[id]
	m.mu.Unlock()
	if !ok {
		cfg = m.cfg.DefaultLLM
	}

	hist := history.NewStore(m.store.Database, id)
	sess := newChatSession(id, cfg, hist, m.events, m.llmFactory, m, m.logger)
	if err := sess.Init(ctx); err != nil {
		return nil, err
	}
	return sess, nil
}

// checkCapacity enforces MaxSessions against the live count of storage
// records.
func (m *Manager) checkCapacity(ctx context.Context) error {
	keys, err := m.store.Database.List(ctx, "session:")
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to count session records")
		return err
	}
	if len(keys) >= m.cfg.MaxSessions {
		return newCapacityError(len(keys), m.cfg.MaxSessions)
	}
	return nil
}

// Get retrieves a session: pending creation first, then memory, then (when
// restore is true) storage. Returns (nil, nil) when the session is nowhere to
// be found.
func (m *Manager) Get(ctx context.Context, id string, restore bool) (*ChatSession, error) {
	m.mu.Lock()
	if inflight, ok := m.pending[id]; ok {
		m.mu.Unlock()
		return inflight.wait(ctx)
	}
	if sess, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		m.touch(ctx, id)
		return sess, nil
	}
	m.mu.Unlock()

	if !restore {
		return nil, nil
	}

	// Coalesce concurrent restores on the pending future; a missing record
	// yields absent rather than a fresh session.
	return m.admit(ctx, id, true)
}

// End removes the session from memory only: the ChatSession is disposed and
// the cache entry evicted, but the storage record is untouched. Idempotent.
func (m *Manager) End(ctx context.Context, id string) {
	m.mu.Lock()
	sess := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if sess != nil {
		sess.Dispose()
	}
	_ = m.store.Cache.Delete(ctx, storage.SessionKey(id))
}

// Delete disposes the session's memory resources and removes both its record
// and its message history from storage. Irreversible.
func (m *Manager) Delete(ctx context.Context, id string) error {
	sess, err := m.Get(ctx, id, true)
	if err != nil {
		return err
	}
	if sess != nil {
		m.mu.Lock()
		delete(m.sessions, id)
		delete(m.llmConfigs, id)
		m.mu.Unlock()
		sess.Dispose()
	}

	_ = m.store.Cache.Delete(ctx, storage.SessionKey(id))
	if err := m.store.Database.Delete(ctx, storage.SessionKey(id)); err != nil {
		return fmt.Errorf("failed to delete session record: %w", err)
	}
	if err := m.store.Database.Delete(ctx, storage.MessagesKey(id)); err != nil {
		return fmt.Errorf("failed to delete session history: %w", err)
	}

	m.logger.Info().Str("sessionID", id).Msg("session deleted")
	return nil
}

// Reset clears the session's conversation, zeroes its message count, and
// refreshes lastActivity.
func (m *Manager) Reset(ctx context.Context, id string) error {
	sess, err := m.Get(ctx, id, true)
	if err != nil {
		return err
	}
	if sess == nil {
		return newNotFoundError(id)
	}

	if err := sess.Reset(ctx); err != nil {
		return err
	}

	var record types.SessionRecord
	if err := m.store.Database.Get(ctx, storage.SessionKey(id), &record); err != nil {
		return fmt.Errorf("failed to load session record: %w", err)
	}
	record.MessageCount = 0
	record.LastActivity = time.Now().UnixMilli()
	if err := m.store.Database.Set(ctx, storage.SessionKey(id), &record); err != nil {
		return fmt.Errorf("failed to persist session record: %w", err)
	}
	m.cacheRecord(ctx, &record)
	return nil
}

// Record loads the persisted record for a session.
func (m *Manager) Record(ctx context.Context, id string) (*types.SessionRecord, error) {
	var record types.SessionRecord
	if err := m.store.Database.Get(ctx, storage.SessionKey(id), &record); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newNotFoundError(id)
		}
		return nil, err
	}
	return &record, nil
}

// ListRecords returns all session records in storage.
func (m *Manager) ListRecords(ctx context.Context) ([]*types.SessionRecord, error) {
	keys, err := m.store.Database.List(ctx, "session:")
	if err != nil {
		return nil, err
	}
	records := make([]*types.SessionRecord, 0, len(keys))
	for _, key := range keys {
		var record types.SessionRecord
		if err := m.store.Database.Get(ctx, key, &record); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		records = append(records, &record)
	}
	return records, nil
}

// ResidentCount returns the number of sessions currently held in memory.
func (m *Manager) ResidentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CleanupExpired evicts idle sessions from memory. Every resident session's
// record is read from storage each sweep (O(resident) reads per cycle, a
// documented cost); a session idle past the TTL is disposed and dropped from
// the memory map. The storage record is never touched, so a later Get or
// Create transparently restores the session.
func (m *Manager) CleanupExpired(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	now := time.Now().UnixMilli()
	for _, id := range ids {
		var record types.SessionRecord
		if err := m.store.Database.Get(ctx, storage.SessionKey(id), &record); err != nil {
			m.logger.Warn().Err(err).Str("sessionID", id).Msg("failed to load record during cleanup")
			continue
		}
		if now-record.LastActivity <= m.cfg.TTL.Milliseconds() {
			continue
		}

		m.mu.Lock()
		sess := m.sessions[id]
		delete(m.sessions, id)
		m.mu.Unlock()
		if sess != nil {
			sess.Dispose()
		}
		m.logger.Debug().Str("sessionID", id).Msg("session evicted from memory")
	}
}

// runCleanup drives the periodic eviction sweep.
func (m *Manager) runCleanup() {
	defer close(m.sweepDone)

	ticker := time.NewTicker(m.cfg.cleanupInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CleanupExpired(context.Background())
		case <-m.stop:
			return
		}
	}
}

// SwitchLLMForSession rebinds one session to a new LLM configuration.
func (m *Manager) SwitchLLMForSession(ctx context.Context, id string, cfg types.LLMConfig) error {
	sess, err := m.Get(ctx, id, true)
	if err != nil {
		return err
	}
	if sess == nil {
		return newNotFoundError(id)
	}

	if err := sess.SwitchLLM(ctx, cfg); err != nil {
		return err
	}

	m.mu.Lock()
	m.llmConfigs[id] = cfg
	m.mu.Unlock()
	return nil
}

// SwitchLLMForAll rebinds every resident session to cfg. A failure on one
// session is recorded and that session skipped; the sweep never aborts. The
// returned warnings name the failed session ids.
func (m *Manager) SwitchLLMForAll(ctx context.Context, cfg types.LLMConfig) []string {
	m.mu.Lock()
	resident := make([]*ChatSession, 0, len(m.sessions))
	for _, sess := range m.sessions {
		resident = append(resident, sess)
	}
	m.mu.Unlock()

	var warnings []string
	var switched []string
	for _, sess := range resident {
		if err := sess.SwitchLLM(ctx, cfg); err != nil {
			m.logger.Warn().Err(err).Str("sessionID", sess.ID()).Msg("failed to switch llm")
			warnings = append(warnings, fmt.Sprintf("session %s: %v", sess.ID(), err))
			continue
		}
		m.mu.Lock()
		m.llmConfigs[sess.ID()] = cfg
		m.mu.Unlock()
		switched = append(switched, sess.ID())
	}

	m.events.Publish(event.Event{
		Type: event.LLMSwitched,
		Data: event.LLMSwitchedData{
			SessionIDs:      switched,
			NewConfig:       cfg,
			HistoryRetained: true,
		},
	})

	return warnings
}

// Close stops the cleanup sweep and disposes all resident sessions. Storage
// is left untouched.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.stop)
		<-m.sweepDone

		m.mu.Lock()
		resident := make([]*ChatSession, 0, len(m.sessions))
		for _, sess := range m.sessions {
			resident = append(resident, sess)
		}
		m.sessions = make(map[string]*ChatSession)
		m.mu.Unlock()

		for _, sess := range resident {
			sess.Dispose()
		}
	})
}

// touch refreshes a session's lastActivity in storage and cache. The rewrite
// holds the per-session usage lock so it cannot clobber a concurrent
// accumulation's read-modify-write. Best effort: failures are logged, not
// surfaced.
func (m *Manager) touch(ctx context.Context, id string) {
	release, err := m.usageLocks.Acquire(ctx, id)
	if err != nil {
		return
	}
	defer release()

	var record types.SessionRecord
	if err := m.store.Database.Get(ctx, storage.SessionKey(id), &record); err != nil {
		m.logger.Warn().Err(err).Str("sessionID", id).Msg("failed to load record for activity refresh")
		return
	}
	record.LastActivity = time.Now().UnixMilli()
	if err := m.store.Database.Set(ctx, storage.SessionKey(id), &record); err != nil {
		m.logger.Warn().Err(err).Str("sessionID", id).Msg("failed to refresh session activity")
		return
	}
	m.cacheRecord(ctx, &record)
}

// cacheRecord writes a record to the cache store with the configured TTL.
func (m *Manager) cacheRecord(ctx context.Context, record *types.SessionRecord) {
	ttlSeconds := int(m.cfg.CacheTTL / time.Second)
	if err := m.store.Cache.Set(ctx, storage.SessionKey(record.ID), record, ttlSeconds); err != nil {
		m.logger.Warn().Err(err).Str("sessionID", record.ID).Msg("failed to cache session record")
	}
}
