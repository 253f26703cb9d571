package models

import (
	"time"

	"github.com/google/uuid"
)

// CallStatus is the status of an individual phone call.
type CallStatus string

const (
	CallStatusPending   CallStatus = "pending"
	CallStatusRinging   CallStatus = "ringing"
	CallStatusConnected CallStatus = "connected"
	CallStatusSpeaking  CallStatus = "speaking"
	CallStatusRecording CallStatus = "recording"
	CallStatusComplete  CallStatus = "complete"
	CallStatusNoAnswer  CallStatus = "no_answer"
	CallStatusBusy      CallStatus = "busy"
	CallStatusFailed    CallStatus = "failed"
)

// Terminal reports whether the status is final. A terminal status is never
// overwritten by the webhook reconciler.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusComplete, CallStatusNoAnswer, CallStatusBusy, CallStatusFailed:
		return true
	default:
		return false
	}
}

// CallScript describes what the AI should say and ask during a playback call.
type CallScript struct {
	ServiceType string `json:"service_type"`
	Timeframe   string `json:"timeframe,omitempty"`
	Question    string `json:"question"`
	UserNotes   string `json:"user_notes,omitempty"`
}

// CallRecord tracks one outbound call. Owned by its parent Blitz session;
// mutated by the telephony driver at creation and by the webhook reconciler
// afterwards. CallSid is immutable once set.
type CallRecord struct {
	ID              string              `json:"id"`
	CallSid         string              `json:"call_sid,omitempty"`
	Business        Business            `json:"business"`
	Status          CallStatus          `json:"status"`
	StartedAt       *time.Time          `json:"started_at,omitempty"`
	EndedAt         *time.Time          `json:"ended_at,omitempty"`
	DurationSeconds *int                `json:"duration_seconds,omitempty"`
	Transcript      []map[string]string `json:"transcript"`
	Result          string              `json:"result,omitempty"`
	Error           string              `json:"error,omitempty"`
	RecordingURL    string              `json:"recording_url,omitempty"`
}

// NewCallRecord creates a pending call record for a business.
func NewCallRecord(business Business) CallRecord {
	return CallRecord{
		ID:         uuid.NewString(),
		Business:   business,
		Status:     CallStatusPending,
		Transcript: []map[string]string{},
	}
}
