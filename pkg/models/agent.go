// Package models defines the session variants, call records, and event
// payloads shared by the agent workflows, the HTTP API, and the store.
package models

// AgentType identifies which agent a user message routes to.
type AgentType string

const (
	// AgentBlitz finds local services and calls them in parallel for quotes.
	AgentBlitz AgentType = "blitz"
	// AgentBuild generates web pages via the tool-calling build loop.
	AgentBuild AgentType = "build"
	// AgentBounce cancels subscriptions (not yet wired to a workflow).
	AgentBounce AgentType = "bounce"
	// AgentQueue waits on hold and navigates IVR menus for the user.
	AgentQueue AgentType = "queue"
	// AgentBid negotiates bills (not yet wired to a workflow).
	AgentBid AgentType = "bid"
	// AgentInbox checks the user's mailbox and summarizes it.
	AgentInbox AgentType = "inbox"
	// AgentCallFriend calls a person on the user's behalf with a live AI voice.
	AgentCallFriend AgentType = "call_friend"
	// AgentChat is the default conversational agent.
	AgentChat AgentType = "chat"
)

// IsValid checks if the agent type is one the router may return.
func (a AgentType) IsValid() bool {
	switch a {
	case AgentBlitz, AgentBuild, AgentBounce, AgentQueue, AgentBid, AgentInbox, AgentCallFriend, AgentChat:
		return true
	default:
		return false
	}
}

// RouterParams holds the structured parameters the router extracts from a
// user message. All fields are optional; absent fields stay empty.
type RouterParams struct {
	Service   string `json:"service,omitempty"`
	Timeframe string `json:"timeframe,omitempty"`
	Location  string `json:"location,omitempty"`
	Action    string `json:"action,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// RouterResult is the outcome of intent classification.
type RouterResult struct {
	Agent      AgentType    `json:"agent"`
	Params     RouterParams `json:"params"`
	Confidence float64      `json:"confidence"`
}
