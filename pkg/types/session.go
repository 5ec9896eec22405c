// Package types provides the core data types for the agentd runtime.
package types

// SessionRecordVersion is the schema version written to new records.
const SessionRecordVersion = "1"

// SessionRecord is the persisted metadata document for one conversation.
// It lives at database key "session:<id>" and is the source of truth: the
// absence of an in-memory ChatSession never implies the conversation is gone.
type SessionRecord struct {
	ID           string         `json:"id"`
	Version      string         `json:"version"`
	CreatedAt    int64          `json:"createdAt"`
	LastActivity int64          `json:"lastActivity"`
	MessageCount int            `json:"messageCount"`
	Metadata     map[string]any `json:"metadata,omitempty"`

	// TokenUsage is absent until the first accumulation; EstimatedCost is
	// absent until a cost is first supplied.
	TokenUsage    *TokenUsage            `json:"tokenUsage,omitempty"`
	EstimatedCost *float64               `json:"estimatedCost,omitempty"`
	ModelStats    map[string]*ModelStats `json:"modelStats,omitempty"`

	// Continuation chain links. ContinuedTo and CompactedAt are set together
	// when a session is compacted; ContinuedFrom only ever points at an older
	// session, so chains are acyclic by construction.
	ContinuedFrom   string `json:"continuedFrom,omitempty"`
	ContinuedTo     string `json:"continuedTo,omitempty"`
	CompactedAt     *int64 `json:"compactedAt,omitempty"`
	CompactionCount int    `json:"compactionCount"`
}

// Title returns the optional title stored in the record metadata.
func (r *SessionRecord) Title() string {
	if r.Metadata == nil {
		return ""
	}
	title, _ := r.Metadata["title"].(string)
	return title
}

// TokenUsage holds accumulated token counts for LLM calls. Every field is
// non-negative and only ever grows.
type TokenUsage struct {
	InputTokens      int64 `json:"inputTokens"`
	OutputTokens     int64 `json:"outputTokens"`
	ReasoningTokens  int64 `json:"reasoningTokens"`
	CacheReadTokens  int64 `json:"cacheReadTokens"`
	CacheWriteTokens int64 `json:"cacheWriteTokens"`
	TotalTokens      int64 `json:"totalTokens"`
}

// Add accumulates other into u field by field.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.ReasoningTokens += other.ReasoningTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.CacheWriteTokens += other.CacheWriteTokens
	u.TotalTokens += other.TotalTokens
}

// ModelStats tracks the per-model slice of a session's accumulated usage.
// Summing ModelStats across all models of a session reproduces the
// session-level TokenUsage and EstimatedCost exactly.
type ModelStats struct {
	ProviderID   string     `json:"providerID"`
	ModelID      string     `json:"modelID"`
	Usage        TokenUsage `json:"usage"`
	Cost         float64    `json:"cost"`
	MessageCount int        `json:"messageCount"`
	FirstUsed    int64      `json:"firstUsed"`
	LastUsed     int64      `json:"lastUsed"`
}

// ModelKey builds the ModelStats map key for a provider/model pair.
func ModelKey(providerID, modelID string) string {
	return providerID + "/" + modelID
}

// LLMConfig identifies the provider and model a session streams through.
type LLMConfig struct {
	ProviderID  string  `json:"providerID"`
	ModelID     string  `json:"modelID"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}
