package models

import (
	"time"

	"github.com/google/uuid"
)

// QueuePhase is the current phase of a queue hold-waiting workflow.
type QueuePhase string

const (
	QueueInitiating    QueuePhase = "initiating"
	QueueRinging       QueuePhase = "ringing"
	QueueIVR           QueuePhase = "ivr"
	QueueHold          QueuePhase = "hold"
	QueueHumanDetected QueuePhase = "human_detected"
	QueueCompleted     QueuePhase = "completed"
	QueueFailed        QueuePhase = "failed"
	QueueCancelled     QueuePhase = "cancelled"
)

// queuePhaseOrder is the total order used by the phase-guarded save. A write
// whose expected phase orders below the stored phase is skipped, so a slow
// hold ticker can never drag a session back from human_detected.
var queuePhaseOrder = map[QueuePhase]int{
	QueueInitiating:    0,
	QueueRinging:       1,
	QueueIVR:           2,
	QueueHold:          3,
	QueueHumanDetected: 4,
	QueueCompleted:     5,
	QueueFailed:        5,
	QueueCancelled:     5,
}

// Order returns the phase's position in the queue state machine.
// Unknown phases order first so a guard never skips over them.
func (p QueuePhase) Order() int {
	if n, ok := queuePhaseOrder[p]; ok {
		return n
	}
	return 0
}

// Terminal reports whether the phase is final.
func (p QueuePhase) Terminal() bool {
	return p == QueueCompleted || p == QueueFailed || p == QueueCancelled
}

// IVRStep records one IVR menu interaction: what was heard and what was pressed.
type IVRStep struct {
	Heard   string `json:"heard"`
	Pressed string `json:"pressed"`
	At      string `json:"at"`
}

// QueueSession tracks a single hold-waiting call: IVR navigation, the hold
// loop, and the human-detected handoff.
type QueueSession struct {
	ID           string     `json:"id"`
	UserMessage  string     `json:"user_message"`
	PhoneNumber  string     `json:"phone_number"`
	BusinessName string     `json:"business_name"`
	Reason       string     `json:"reason,omitempty"`
	Phase        QueuePhase `json:"phase"`
	CallSid      string     `json:"call_sid,omitempty"`

	IVRStepsTaken []IVRStep `json:"ivr_steps_taken"`

	HoldStartedAt      *time.Time `json:"hold_started_at,omitempty"`
	HoldElapsedSeconds int        `json:"hold_elapsed_seconds"`
	LastUpdateAt       *time.Time `json:"last_update_at,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	HumanDetected  bool   `json:"human_detected"`
	CallbackNumber string `json:"callback_number,omitempty"`
	Error          string `json:"error,omitempty"`

	MaxHoldMinutes int `json:"max_hold_minutes"`
}

// NewQueueSession creates a queue session in the initiating phase.
func NewQueueSession(userMessage, phoneNumber, businessName, reason string) *QueueSession {
	return &QueueSession{
		ID:             uuid.NewString(),
		UserMessage:    userMessage,
		PhoneNumber:    phoneNumber,
		BusinessName:   businessName,
		Reason:         reason,
		Phase:          QueueInitiating,
		IVRStepsTaken:  []IVRStep{},
		CreatedAt:      time.Now().UTC(),
		MaxHoldMinutes: 30,
	}
}
