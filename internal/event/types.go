package event

import "github.com/agentd-ai/agentd/pkg/types"

// Tagged is implemented by every event payload that can carry a session id.
// Forwarding a session-local event onto the agent bus calls WithSessionID,
// making the tagging a total operation over the payload union: payloads that
// already carry an id keep it, and nil payloads become a bare SessionTag.
type Tagged interface {
	WithSessionID(sessionID string) any
}

// SessionTag is the payload used for events that otherwise carry no data.
type SessionTag struct {
	SessionID string `json:"sessionID"`
}

func (d SessionTag) WithSessionID(id string) any {
	if d.SessionID == "" {
		d.SessionID = id
	}
	return d
}

// Tag injects sessionID into a payload. Payloads implementing Tagged are
// tagged in place; anything else (including nil) is wrapped alongside a
// SessionTag.
func Tag(data any, sessionID string) any {
	if data == nil {
		return SessionTag{SessionID: sessionID}
	}
	if tagged, ok := data.(Tagged); ok {
		return tagged.WithSessionID(sessionID)
	}
	return struct {
		SessionID string `json:"sessionID"`
		Data      any    `json:"data"`
	}{SessionID: sessionID, Data: data}
}

// SessionResetData is the payload for session:reset events.
type SessionResetData struct {
	SessionID string `json:"sessionID"`
}

func (d SessionResetData) WithSessionID(id string) any {
	if d.SessionID == "" {
		d.SessionID = id
	}
	return d
}

// SessionContinuedData is the payload for session:continued events.
type SessionContinuedData struct {
	SessionID         string `json:"sessionID"`
	PreviousSessionID string `json:"previousSessionId"`
	NewSessionID      string `json:"newSessionId"`
	SummaryTokens     int    `json:"summaryTokens"`
	OriginalMessages  int    `json:"originalMessages"`
	Reason            string `json:"reason,omitempty"`
}

func (d SessionContinuedData) WithSessionID(id string) any {
	if d.SessionID == "" {
		d.SessionID = id
	}
	return d
}

// LLMSwitchedData is the payload for llm:switched events. The manager-level
// sweep reports all affected session ids; the per-session variant carries a
// single id in both fields.
type LLMSwitchedData struct {
	SessionID       string          `json:"sessionID,omitempty"`
	SessionIDs      []string        `json:"sessionIds,omitempty"`
	NewConfig       types.LLMConfig `json:"newConfig"`
	HistoryRetained bool            `json:"historyRetained"`
}

func (d LLMSwitchedData) WithSessionID(id string) any {
	if d.SessionID == "" {
		d.SessionID = id
	}
	return d
}

// ResponseCompletedData is the payload for response:completed events emitted
// on a session-local bus when an LLM call finishes.
type ResponseCompletedData struct {
	SessionID  string            `json:"sessionID,omitempty"`
	ProviderID string            `json:"providerID,omitempty"`
	ModelID    string            `json:"modelID,omitempty"`
	Usage      *types.TokenUsage `json:"usage,omitempty"`
	Cost       *float64          `json:"cost,omitempty"`
}

func (d ResponseCompletedData) WithSessionID(id string) any {
	if d.SessionID == "" {
		d.SessionID = id
	}
	return d
}
