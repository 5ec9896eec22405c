package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agentd-ai/agentd/internal/event"
	"github.com/agentd-ai/agentd/internal/history"
	"github.com/agentd-ai/agentd/internal/logging"
	"github.com/agentd-ai/agentd/internal/provider"
	"github.com/agentd-ai/agentd/internal/storage"
	"github.com/agentd-ai/agentd/pkg/types"
)

// errInitRefused is returned by factories scripted to fail.
var errInitRefused = errors.New("llm init refused")

// testEnv bundles the pieces a manager test needs.
type testEnv struct {
	manager *Manager
	store   *storage.Manager
	bus     *event.Bus
	factory *scriptedFactory
}

// scriptedFactory builds loopback services but can be told to fail for
// specific session ids or unconditionally.
type scriptedFactory struct {
	mu      sync.Mutex
	failAll bool
	failFor map[string]bool
	builds  int
}

func (f *scriptedFactory) factory(cfg types.LLMConfig, hist *history.Store, local *event.Bus) (provider.Service, error) {
	f.mu.Lock()
	f.builds++
	fail := f.failAll || f.failFor[hist.SessionID()]
	f.mu.Unlock()
	if fail {
		return nil, errInitRefused
	}
	return provider.NewLoopback(cfg, hist, local)
}

func (f *scriptedFactory) setFailAll(fail bool) {
	f.mu.Lock()
	f.failAll = fail
	f.mu.Unlock()
}

func (f *scriptedFactory) failSession(id string) {
	f.mu.Lock()
	f.failFor[id] = true
	f.mu.Unlock()
}

func (f *scriptedFactory) buildCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.builds
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	store := &storage.Manager{
		Database: storage.NewMemoryDatabase(),
		Cache:    storage.NewMemoryCache(time.Hour),
		Blob:     storage.NewMemoryBlob(),
	}
	bus := event.NewBus()
	factory := &scriptedFactory{failFor: make(map[string]bool)}

	cfg := Config{
		MaxSessions: 10,
		TTL:         time.Hour,
		DefaultLLM:  types.LLMConfig{ProviderID: provider.LoopbackID, ModelID: "echo-1"},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	manager := NewManager(store, bus, factory.factory, cfg, logging.Nop())
	t.Cleanup(func() {
		manager.Close()
		bus.Close()
	})

	return &testEnv{manager: manager, store: store, bus: bus, factory: factory}
}

// sessionKeys returns all session record keys currently in storage.
func (e *testEnv) sessionKeys(t *testing.T) []string {
	t.Helper()
	keys, err := e.store.Database.List(context.Background(), "session:")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	return keys
}

// backdate rewrites a record's lastActivity to the given moment.
func (e *testEnv) backdate(t *testing.T, id string, lastActivity time.Time) {
	t.Helper()
	ctx := context.Background()
	var record types.SessionRecord
	if err := e.store.Database.Get(ctx, storage.SessionKey(id), &record); err != nil {
		t.Fatalf("Get record failed: %v", err)
	}
	record.LastActivity = lastActivity.UnixMilli()
	if err := e.store.Database.Set(ctx, storage.SessionKey(id), &record); err != nil {
		t.Fatalf("Set record failed: %v", err)
	}
}

// staticSummarizer returns a fixed summary.
type staticSummarizer struct {
	summary string
	err     error
	calls   int
}

func (s *staticSummarizer) Summarize(ctx context.Context, messages []*types.Message) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.summary, nil
}
