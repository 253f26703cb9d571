package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/friendlyhq/friendly/pkg/events"
	"github.com/friendlyhq/friendly/pkg/models"
)

// popTimeout is how long one queue pop blocks before a keepalive is sent.
const popTimeout = 30 * time.Second

// formatSSE renders one wire event. Marshal failures degrade to an empty
// data object rather than corrupting the stream.
func formatSSE(eventType string, data map[string]any) string {
	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte("{}")
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, payload)
}

// streamEvents drains the session's event queue to the client until a
// terminal event for the agent arrives or the client goes away. initial, if
// non-empty, is sent before the first pop.
func (s *Server) streamEvents(c *gin.Context, agentType models.AgentType, sessionID, initial string) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Writer.WriteHeaderNow()

	write := func(chunk string) bool {
		if _, err := c.Writer.WriteString(chunk); err != nil {
			return false
		}
		c.Writer.Flush()
		return true
	}

	if initial != "" && !write(initial) {
		return
	}

	ctx := c.Request.Context()
	for {
		event, err := s.store.PopEvent(ctx, sessionID, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return // client disconnected
			}
			write(formatSSE(events.TypeError, map[string]any{"message": err.Error()}))
			return
		}
		if event == nil {
			if !write(": keepalive\n\n") {
				return
			}
			continue
		}
		if !write(formatSSE(event.Type, event.Data)) {
			return
		}
		if events.IsTerminal(agentType, event.Type) {
			return
		}
	}
}
