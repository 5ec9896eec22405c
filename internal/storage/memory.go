package storage

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryDatabase is an in-process Database. Values are stored as marshaled
// JSON so Get/Set round-trip exactly like the file backend.
type MemoryDatabase struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryDatabase creates an empty in-memory database.
func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{data: make(map[string][]byte)}
}

func (d *MemoryDatabase) Get(ctx context.Context, key string, v any) error {
	d.mu.RLock()
	raw, ok := d.data[key]
	d.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(raw, v)
}

func (d *MemoryDatabase) Set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.data[key] = raw
	d.mu.Unlock()
	return nil
}

func (d *MemoryDatabase) Delete(ctx context.Context, key string) error {
	d.mu.Lock()
	delete(d.data, key)
	d.mu.Unlock()
	return nil
}

func (d *MemoryDatabase) List(ctx context.Context, prefix string) ([]string, error) {
	d.mu.RLock()
	keys := []string{}
	for key := range d.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	d.mu.RUnlock()
	sort.Strings(keys)
	return keys, nil
}

// MemoryCache is a TTL cache backed by patrickmn/go-cache.
type MemoryCache struct {
	cache *gocache.Cache
}

// NewMemoryCache creates a cache with the given default TTL and a janitor
// sweeping expired entries once per minute.
func NewMemoryCache(defaultTTL time.Duration) *MemoryCache {
	return &MemoryCache{cache: gocache.New(defaultTTL, time.Minute)}
}

func (c *MemoryCache) Get(ctx context.Context, key string, v any) error {
	raw, ok := c.cache.Get(key)
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(raw.([]byte), v)
}

func (c *MemoryCache) Set(ctx context.Context, key string, v any, ttlSeconds int) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ttl := gocache.NoExpiration
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	c.cache.Set(key, raw, ttl)
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.cache.Delete(key)
	return nil
}

// MemoryBlob is an in-process Blob store.
type MemoryBlob struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBlob creates an empty in-memory blob store.
func NewMemoryBlob() *MemoryBlob {
	return &MemoryBlob{data: make(map[string][]byte)}
}

func (b *MemoryBlob) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	raw, ok := b.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

func (b *MemoryBlob) Put(ctx context.Context, key string, data []byte) error {
	stored := make([]byte, len(data))
	copy(stored, data)
	b.mu.Lock()
	b.data[key] = stored
	b.mu.Unlock()
	return nil
}

func (b *MemoryBlob) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	delete(b.data, key)
	b.mu.Unlock()
	return nil
}
