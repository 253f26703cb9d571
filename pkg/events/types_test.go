package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/friendlyhq/friendly/pkg/models"
)

func TestTerminalEvents_PerAgent(t *testing.T) {
	assert.ElementsMatch(t, []string{"session_complete", "error"}, TerminalEvents(models.AgentBlitz))
	assert.ElementsMatch(t, []string{"session_complete", "error"}, TerminalEvents(models.AgentCallFriend))
	assert.ElementsMatch(t, []string{"queue_human_detected", "queue_failed"}, TerminalEvents(models.AgentQueue))
	assert.ElementsMatch(t, []string{"build_complete", "build_error", "build_clarification"}, TerminalEvents(models.AgentBuild))
	assert.ElementsMatch(t, []string{"inbox_complete", "inbox_error", "inbox_auth_required"}, TerminalEvents(models.AgentInbox))
}

func TestTerminalEvents_UnknownAgentFallsBack(t *testing.T) {
	assert.ElementsMatch(t, []string{"session_complete", "error"}, TerminalEvents(models.AgentType("mystery")))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(models.AgentQueue, TypeQueueFailed))
	assert.True(t, IsTerminal(models.AgentQueue, TypeQueueHumanDetected))
	assert.False(t, IsTerminal(models.AgentQueue, TypeQueueHoldUpdate))

	// Queue streams stay open on generic errors; only queue_* terminals close them.
	assert.False(t, IsTerminal(models.AgentQueue, TypeError))

	assert.True(t, IsTerminal(models.AgentBuild, TypeBuildClarification))
	assert.False(t, IsTerminal(models.AgentBuild, TypeBuildProgress))

	assert.True(t, IsTerminal(models.AgentInbox, TypeInboxAuthRequired))
	assert.False(t, IsTerminal(models.AgentInbox, TypeInboxFetching))
}

type recordingPusher struct {
	events []models.Event
	ids    []string
	err    error
}

func (r *recordingPusher) PushEvent(_ context.Context, sessionID string, event models.Event) error {
	if r.err != nil {
		return r.err
	}
	r.ids = append(r.ids, sessionID)
	r.events = append(r.events, event)
	return nil
}

func TestEmitter_Emit(t *testing.T) {
	pusher := &recordingPusher{}
	emitter := NewEmitter(pusher)

	emitter.Emit(context.Background(), "sess-1", TypeCallStarted, map[string]any{
		"business": "Mario's Pizza",
	})

	require.Len(t, pusher.events, 1)
	assert.Equal(t, "sess-1", pusher.ids[0])
	assert.Equal(t, TypeCallStarted, pusher.events[0].Type)
	assert.Equal(t, "Mario's Pizza", pusher.events[0].Data["business"])
	assert.False(t, pusher.events[0].Timestamp.IsZero())
}

func TestEmitter_EmitNilData(t *testing.T) {
	pusher := &recordingPusher{}
	emitter := NewEmitter(pusher)

	emitter.Emit(context.Background(), "sess-1", TypeStatus, nil)

	require.Len(t, pusher.events, 1)
	assert.NotNil(t, pusher.events[0].Data)
}

func TestEmitter_EmitSwallowsPushFailure(t *testing.T) {
	pusher := &recordingPusher{err: errors.New("redis down")}
	emitter := NewEmitter(pusher)

	// Must not panic or propagate.
	emitter.Emit(context.Background(), "sess-1", TypeStatus, nil)
	assert.Empty(t, pusher.events)
}
