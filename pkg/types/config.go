package types

import (
	"encoding/json"
	"time"
)

// Config is the top-level agentd configuration, loaded from jsonc files and
// environment variables.
type Config struct {
	LogLevel string        `json:"logLevel,omitempty"`
	Storage  StorageConfig `json:"storage,omitempty"`
	Session  SessionConfig `json:"session,omitempty"`
	LLM      LLMConfig     `json:"llm,omitempty"`
}

// StorageConfig selects and parameterizes the storage backend.
type StorageConfig struct {
	// Backend names a registered storage backend ("json", "memory"). Empty
	// falls back to the in-memory backend; the fallback is reported to the
	// caller as a warning, not silently applied.
	Backend string `json:"backend,omitempty"`
	// Path is the data directory for file-backed backends.
	Path string `json:"path,omitempty"`
}

// SessionConfig controls session lifecycle limits.
type SessionConfig struct {
	// MaxSessions caps the number of session records in storage.
	MaxSessions int `json:"maxSessions,omitempty"`
	// TTL is the idle duration after which a session is evicted from memory.
	// Eviction never deletes the storage record.
	TTL Duration `json:"ttl,omitempty"`
	// CacheTTL is the TTL applied to session records in the cache store.
	CacheTTL Duration `json:"cacheTTL,omitempty"`
}

// Duration is a time.Duration that unmarshals from JSON strings like "30m"
// as well as plain nanosecond numbers.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
	var ns int64
	if err := json.Unmarshal(data, &ns); err != nil {
		return err
	}
	*d = Duration(ns)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}
