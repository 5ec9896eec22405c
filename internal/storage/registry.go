package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/agentd-ai/agentd/pkg/types"
)

// DefaultCacheTTL is the default TTL for cache entries when the config does
// not supply one.
const DefaultCacheTTL = time.Hour

// Factory builds a storage Manager from configuration.
type Factory func(cfg types.StorageConfig) (*Manager, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register adds a backend factory under name. Built-in backends "memory" and
// "json" are registered at init; additional backends may be registered before
// Open is called.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open resolves the configured backend and builds a Manager.
//
// An empty backend name falls back to the in-memory backend; the fallback is
// reported through the returned warning so callers can surface it, rather
// than disappearing into a log line. An unknown backend name is an error, not
// a fallback.
func Open(cfg types.StorageConfig) (*Manager, string, error) {
	name := cfg.Backend
	warning := ""
	if name == "" {
		name = "memory"
		warning = "no storage backend configured; using in-memory storage (data will not survive restart)"
	}

	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, "", fmt.Errorf("storage backend %q is not available (registered: %v)", name, Backends())
	}

	mgr, err := factory(cfg)
	if err != nil {
		return nil, "", err
	}
	return mgr, warning, nil
}

func init() {
	Register("memory", func(cfg types.StorageConfig) (*Manager, error) {
		return &Manager{
			Database: NewMemoryDatabase(),
			Cache:    NewMemoryCache(DefaultCacheTTL),
			Blob:     NewMemoryBlob(),
		}, nil
	})

	Register("json", func(cfg types.StorageConfig) (*Manager, error) {
		if cfg.Path == "" {
			return nil, fmt.Errorf("json storage backend requires storage.path")
		}
		return &Manager{
			Database: NewFileDatabase(cfg.Path),
			Cache:    NewMemoryCache(DefaultCacheTTL),
			Blob:     NewFileBlob(cfg.Path),
		}, nil
	})
}
