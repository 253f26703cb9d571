package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueuePhase_Order(t *testing.T) {
	ordered := []QueuePhase{QueueInitiating, QueueRinging, QueueIVR, QueueHold, QueueHumanDetected}

	for i := 1; i < len(ordered); i++ {
		assert.Greater(t, ordered[i].Order(), ordered[i-1].Order(),
			"%s should order after %s", ordered[i], ordered[i-1])
	}

	// All terminal phases share the top slot.
	assert.Equal(t, 5, QueueCompleted.Order())
	assert.Equal(t, 5, QueueFailed.Order())
	assert.Equal(t, 5, QueueCancelled.Order())
}

func TestQueuePhase_OrderUnknownPhase(t *testing.T) {
	assert.Equal(t, 0, QueuePhase("bogus").Order())
}

func TestQueuePhase_Terminal(t *testing.T) {
	assert.True(t, QueueCompleted.Terminal())
	assert.True(t, QueueFailed.Terminal())
	assert.True(t, QueueCancelled.Terminal())

	assert.False(t, QueueInitiating.Terminal())
	assert.False(t, QueueRinging.Terminal())
	assert.False(t, QueueIVR.Terminal())
	assert.False(t, QueueHold.Terminal())
	assert.False(t, QueueHumanDetected.Terminal())
}

func TestNewQueueSession_Defaults(t *testing.T) {
	s := NewQueueSession("wait on hold with HMRC", "+442079460000", "HMRC", "self assessment")

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, QueueInitiating, s.Phase)
	assert.Equal(t, 30, s.MaxHoldMinutes)
	assert.Empty(t, s.IVRStepsTaken)
	assert.False(t, s.HumanDetected)
}
