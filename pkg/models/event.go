package models

import "time"

// Event is one entry on a session's event queue. The SSE gateway renders it
// as `event: <type>\ndata: <json>\n\n`.
type Event struct {
	Type      string         `json:"event"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType string, data map[string]any) Event {
	if data == nil {
		data = map[string]any{}
	}
	return Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}
