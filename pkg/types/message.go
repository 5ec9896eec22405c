package types

// Message is one entry in a session's conversation history. History payloads
// live at database key "messages:<id>" and are owned by the history provider;
// the session core only reads counts and injects summary messages.
type Message struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	Role      string `json:"role"` // "user" | "assistant" | "system"
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"`

	ProviderID string `json:"providerID,omitempty"`
	ModelID    string `json:"modelID,omitempty"`

	// IsSessionSummary marks the seed message of a continuation session.
	IsSessionSummary bool             `json:"isSessionSummary,omitempty"`
	Summary          *SummaryMetadata `json:"summary,omitempty"`
}

// SummaryMetadata is the backlink metadata attached to a session-summary
// message when a conversation is compacted.
type SummaryMetadata struct {
	ContinuedFrom    string `json:"continuedFrom"`
	SummarizedAt     int64  `json:"summarizedAt"`
	OriginalMessages int    `json:"originalMessages"`
	FirstMessageAt   int64  `json:"firstMessageAt,omitempty"`
	LastMessageAt    int64  `json:"lastMessageAt,omitempty"`
}
