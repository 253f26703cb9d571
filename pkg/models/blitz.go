package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the status of a Blitz session.
type SessionStatus string

const (
	SessionSearching SessionStatus = "searching"
	SessionCalling   SessionStatus = "calling"
	SessionComplete  SessionStatus = "complete"
	SessionError     SessionStatus = "error"
)

// BlitzSession is one parallel call fan-out workflow: find businesses, call
// up to three of them concurrently, and summarize the outcomes.
type BlitzSession struct {
	ID           string        `json:"id"`
	UserMessage  string        `json:"user_message"`
	ParsedParams RouterParams  `json:"parsed_params"`
	Status       SessionStatus `json:"status"`
	Businesses   []Business    `json:"businesses"`
	Calls        []CallRecord  `json:"calls"`
	CreatedAt    time.Time     `json:"created_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	Summary      string        `json:"summary,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// NewBlitzSession creates a session in the searching state. id may be empty,
// in which case a fresh one is generated.
func NewBlitzSession(id, userMessage string, params RouterParams) *BlitzSession {
	if id == "" {
		id = uuid.NewString()
	}
	return &BlitzSession{
		ID:           id,
		UserMessage:  userMessage,
		ParsedParams: params,
		Status:       SessionSearching,
		Businesses:   []Business{},
		Calls:        []CallRecord{},
		CreatedAt:    time.Now().UTC(),
	}
}

// FindCall locates a call record by call id or carrier sid.
// Sessions hold at most three calls, so a linear scan is fine.
func (s *BlitzSession) FindCall(callID, callSid string) *CallRecord {
	for i := range s.Calls {
		if callID != "" && s.Calls[i].ID == callID {
			return &s.Calls[i]
		}
		if callSid != "" && s.Calls[i].CallSid == callSid {
			return &s.Calls[i]
		}
	}
	return nil
}

// AllCallsTerminal reports whether every call has reached a final status.
func (s *BlitzSession) AllCallsTerminal() bool {
	for i := range s.Calls {
		if !s.Calls[i].Status.Terminal() {
			return false
		}
	}
	return true
}
