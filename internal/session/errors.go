package session

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error code. Codes are part of the
// public contract; callers and tests match on them rather than on message
// text.
type Code string

const (
	// CodeNotFound means the session id is absent from both memory and
	// storage.
	CodeNotFound Code = "session_not_found"
	// CodeCapacityExceeded means creation was attempted at or above the
	// configured session limit.
	CodeCapacityExceeded Code = "session_capacity_exceeded"
	// CodeInitFailed means ChatSession construction failed after the storage
	// slot was claimed; the slot has been rolled back.
	CodeInitFailed Code = "session_init_failed"
	// CodeInvalidScope means a malformed session type, lifecycle, or parent
	// reference was supplied at creation time.
	CodeInvalidScope Code = "session_invalid_scope"
)

// Error is a typed, session-scoped error.
type Error struct {
	Code      Code
	SessionID string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCode reports whether err is a session Error with the given code.
func IsCode(err error, code Code) bool {
	var sessionErr *Error
	return errors.As(err, &sessionErr) && sessionErr.Code == code
}

func newNotFoundError(sessionID string) *Error {
	return &Error{
		Code:      CodeNotFound,
		SessionID: sessionID,
		Message:   fmt.Sprintf("session %s not found", sessionID),
	}
}

func newCapacityError(current, limit int) *Error {
	return &Error{
		Code:    CodeCapacityExceeded,
		Message: fmt.Sprintf("session limit reached (%d of %d)", current, limit),
	}
}

func newInitError(sessionID string, err error) *Error {
	return &Error{
		Code:      CodeInitFailed,
		SessionID: sessionID,
		Message:   fmt.Sprintf("failed to initialize session %s", sessionID),
		Err:       err,
	}
}
