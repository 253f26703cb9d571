package events

import (
	"context"
	"log/slog"

	"github.com/friendlyhq/friendly/pkg/models"
)

// Pusher delivers an event onto a session's queue.
// Satisfied by *store.Store.
type Pusher interface {
	PushEvent(ctx context.Context, sessionID string, event models.Event) error
}

// Emitter publishes agent events. Delivery is best-effort: a failed push is
// logged and dropped, never propagated, so a flaky bus cannot take down a
// live call.
type Emitter struct {
	pusher Pusher
}

// NewEmitter creates an Emitter publishing through the given pusher.
func NewEmitter(pusher Pusher) *Emitter {
	return &Emitter{pusher: pusher}
}

// Emit pushes one event onto the session's queue, stamping it with the
// current time.
func (e *Emitter) Emit(ctx context.Context, sessionID, eventType string, data map[string]any) {
	evt := models.NewEvent(eventType, data)
	if err := e.pusher.PushEvent(ctx, sessionID, evt); err != nil {
		slog.Warn("Failed to publish event",
			"session_id", sessionID, "event", eventType, "error", err)
	}
}
