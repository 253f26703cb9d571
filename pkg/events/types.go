// Package events defines the event vocabulary agents publish to per-session
// Redis queues, and the Emitter they publish through.
//
// Every event lands on a single per-session queue (events:{session_id}) and
// is drained exactly once by that session's SSE stream. Each agent has a
// terminal set: event types that tell the stream to close. An agent that
// starts MUST eventually emit one of its terminal types, or the client hangs
// until the queue TTL expires.
package events

import "github.com/friendlyhq/friendly/pkg/models"

// Shared lifecycle events.
const (
	TypeSessionStart    = "session_start"
	TypeStatus          = "status"
	TypeError           = "error"
	TypeSessionComplete = "session_complete"
	TypeTranscript      = "transcript"
)

// Blitz call fan-out events.
const (
	TypeCallStarted   = "call_started"
	TypeCallConnected = "call_connected"
	TypeCallResult    = "call_result"
	TypeCallFailed    = "call_failed"
)

// Queue (hold-for-me) events.
const (
	TypeQueueStarted       = "queue_started"
	TypeQueueIVR           = "queue_ivr"
	TypeQueueHold          = "queue_hold"
	TypeQueueHoldUpdate    = "queue_hold_update"
	TypeQueueHumanDetected = "queue_human_detected"
	TypeQueueFailed        = "queue_failed"
)

// Build events.
const (
	TypeBuildStarted       = "build_started"
	TypeBuildProgress      = "build_progress"
	TypeBuildComplete      = "build_complete"
	TypeBuildError         = "build_error"
	TypeBuildClarification = "build_clarification"
)

// Inbox events.
const (
	TypeInboxStart        = "inbox_start"
	TypeInboxAuthRequired = "inbox_auth_required"
	TypeInboxFetching     = "inbox_fetching"
	TypeInboxSummarizing  = "inbox_summarizing"
	TypeInboxComplete     = "inbox_complete"
	TypeInboxError        = "inbox_error"
)

// terminalSets maps each agent to the event types that close its stream.
var terminalSets = map[models.AgentType][]string{
	models.AgentBlitz:      {TypeSessionComplete, TypeError},
	models.AgentCallFriend: {TypeSessionComplete, TypeError},
	models.AgentQueue:      {TypeQueueHumanDetected, TypeQueueFailed},
	models.AgentBuild:      {TypeBuildComplete, TypeBuildError, TypeBuildClarification},
	models.AgentInbox:      {TypeInboxComplete, TypeInboxError, TypeInboxAuthRequired},
}

// TerminalEvents returns the event types that close the stream for the given
// agent. Unknown agents fall back to the shared lifecycle terminals.
func TerminalEvents(agent models.AgentType) []string {
	if set, ok := terminalSets[agent]; ok {
		return set
	}
	return []string{TypeSessionComplete, TypeError}
}

// IsTerminal reports whether eventType closes the stream for the agent.
func IsTerminal(agent models.AgentType, eventType string) bool {
	for _, t := range TerminalEvents(agent) {
		if t == eventType {
			return true
		}
	}
	return false
}
