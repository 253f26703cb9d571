package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/friendlyhq/friendly/pkg/events"
	"github.com/friendlyhq/friendly/pkg/models"
)

func TestDemoRun(t *testing.T) {
	st := newMemStore()
	sink := &eventSink{}
	d := NewDemo(st, events.NewEmitter(sink))
	d.delayUnit = 0

	s := models.NewBlitzSession("", "find me a plumber", models.RouterParams{Service: "plumber"})
	d.Run(context.Background(), s)

	assert.Equal(t, models.SessionComplete, s.Status)
	require.Len(t, s.Calls, 3)
	assert.Equal(t, models.CallStatusComplete, s.Calls[0].Status)
	assert.Equal(t, models.CallStatusComplete, s.Calls[1].Status)
	assert.Equal(t, models.CallStatusNoAnswer, s.Calls[2].Status)
	assert.Equal(t, "Available tomorrow 2pm, £95 call-out fee + parts", s.Calls[0].Result)

	assert.Contains(t, s.Summary, "Found 2 plumbers available:")
	assert.Contains(t, s.Summary, "- Pimlico Plumbers:")

	assert.Equal(t, 2, sink.count(events.TypeStatus))
	assert.Equal(t, 3, sink.count(events.TypeCallStarted))
	assert.Equal(t, 2, sink.count(events.TypeCallConnected))
	assert.Equal(t, 2, sink.count(events.TypeCallResult))
	assert.Equal(t, 1, sink.count(events.TypeCallFailed))

	complete := sink.last(events.TypeSessionComplete)
	require.NotNil(t, complete)
	results := complete.Data["results"].([]map[string]any)
	require.Len(t, results, 3)
	assert.Equal(t, "HomeServe UK", results[2]["business"])
	assert.Equal(t, "no_answer", results[2]["status"])

	// Final state is persisted.
	var stored models.BlitzSession
	ok, err := st.Load(context.Background(), "session", s.ID, &stored)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.SessionComplete, stored.Status)
}
