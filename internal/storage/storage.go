// Package storage defines the keyed storage contract the session core
// depends on, plus the built-in backends.
//
// The contract has three parts: a Database (durable keyed JSON documents), a
// TTL-capable Cache, and a Blob store. Keys are flat strings; the session
// subsystem relies on the exact namespaces "session:<id>" and
// "messages:<id>".
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key is absent.
var ErrNotFound = errors.New("not found")

// Database is a durable keyed document store.
type Database interface {
	// Get unmarshals the value at key into v. Returns ErrNotFound if absent.
	Get(ctx context.Context, key string, v any) error
	// Set stores v at key, replacing any existing value.
	Set(ctx context.Context, key string, v any) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns all keys beginning with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Cache is a keyed store with per-entry TTL.
type Cache interface {
	Get(ctx context.Context, key string, v any) error
	// Set stores v at key, expiring after ttlSeconds. ttlSeconds <= 0 means
	// no expiry.
	Set(ctx context.Context, key string, v any, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// Blob stores opaque byte payloads.
type Blob interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Manager bundles the three stores a running agent needs.
type Manager struct {
	Database Database
	Cache    Cache
	Blob     Blob
}

// SessionKey returns the database/cache key for a session record.
func SessionKey(sessionID string) string {
	return "session:" + sessionID
}

// MessagesKey returns the database key for a session's history payload.
func MessagesKey(sessionID string) string {
	return "messages:" + sessionID
}
