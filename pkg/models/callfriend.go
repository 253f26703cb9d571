package models

import (
	"time"

	"github.com/google/uuid"
)

// CallFriendPhase is the phase of a call-friend session.
type CallFriendPhase string

const (
	CallFriendInitiating CallFriendPhase = "initiating"
	CallFriendRinging    CallFriendPhase = "ringing"
	CallFriendConnected  CallFriendPhase = "connected"
	CallFriendComplete   CallFriendPhase = "complete"
	CallFriendFailed     CallFriendPhase = "failed"
	CallFriendNoAnswer   CallFriendPhase = "no_answer"
)

// Terminal reports whether the phase is final.
func (p CallFriendPhase) Terminal() bool {
	return p == CallFriendComplete || p == CallFriendFailed || p == CallFriendNoAnswer
}

// TranscriptEntry is one line of a live conversation transcript.
// Role is "human", "ai", or "system".
type TranscriptEntry struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// CallFriendSession tracks one call placed to a person on the user's behalf,
// with a live audio bridge capturing the conversation.
type CallFriendSession struct {
	ID          string `json:"id"`
	FriendName  string `json:"friend_name"`
	PhoneNumber string `json:"phone_number"`
	Question    string `json:"question"`
	UserContext string `json:"user_context,omitempty"`

	Phase   CallFriendPhase `json:"phase"`
	CallSid string          `json:"call_sid,omitempty"`

	Transcript []TranscriptEntry `json:"transcript"`
	Response   string            `json:"response,omitempty"`
	Summary    string            `json:"summary,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Error        string     `json:"error,omitempty"`
	RecordingURL string     `json:"recording_url,omitempty"`
}

// NewCallFriendSession creates a call-friend session in the initiating phase.
func NewCallFriendSession(friendName, phoneNumber, question string) *CallFriendSession {
	return &CallFriendSession{
		ID:          uuid.NewString(),
		FriendName:  friendName,
		PhoneNumber: phoneNumber,
		Question:    question,
		Phase:       CallFriendInitiating,
		Transcript:  []TranscriptEntry{},
		CreatedAt:   time.Now().UTC(),
	}
}
