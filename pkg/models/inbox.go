package models

import (
	"time"

	"github.com/google/uuid"
)

// InboxPhase is the phase of an inbox-check workflow.
type InboxPhase string

const (
	InboxCheckingConnection InboxPhase = "checking_connection"
	InboxAuthRequired       InboxPhase = "auth_required"
	InboxFetching           InboxPhase = "fetching"
	InboxSummarizing        InboxPhase = "summarizing"
	InboxComplete           InboxPhase = "complete"
	InboxError              InboxPhase = "error"
)

// InboxSummary is the structured mailbox summary returned to the client.
type InboxSummary struct {
	ImportantCount        int      `json:"important_count"`
	TopUpdates            []string `json:"top_updates"`
	NeedsAction           bool     `json:"needs_action"`
	DraftRepliesAvailable bool     `json:"draft_replies_available"`
	SenderHighlights      []string `json:"sender_highlights"`
	TimeRange             string   `json:"time_range"`
}

// InboxSession is the state of a single inbox-check run.
type InboxSession struct {
	ID          string        `json:"id"`
	UserMessage string        `json:"user_message"`
	EntityID    string        `json:"entity_id"`
	Phase       InboxPhase    `json:"phase"`
	AuthURL     string        `json:"auth_url,omitempty"`
	EmailCount  int           `json:"email_count"`
	Summary     *InboxSummary `json:"summary,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// NewInboxSession creates an inbox session in the checking phase.
// entityID defaults to "default" when empty.
func NewInboxSession(userMessage, entityID string) *InboxSession {
	if entityID == "" {
		entityID = "default"
	}
	return &InboxSession{
		ID:          uuid.NewString(),
		UserMessage: userMessage,
		EntityID:    entityID,
		Phase:       InboxCheckingConnection,
		CreatedAt:   time.Now().UTC(),
	}
}
