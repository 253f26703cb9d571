package agent

import (
	"context"
	"errors"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/friendlyhq/friendly/pkg/events"
	"github.com/friendlyhq/friendly/pkg/llm"
	"github.com/friendlyhq/friendly/pkg/models"
)

func newTestQueue(st *memStore, sink *eventSink, caller *fakeCaller, completer llm.Completer) *Queue {
	q := NewQueue(st, events.NewEmitter(sink), caller, completer, "http://backend.test")
	q.holdTick = time.Hour // keep the ticker quiet during tests
	return q
}

func seedQueueSession(t *testing.T, q *Queue) *models.QueueSession {
	t.Helper()
	s := models.NewQueueSession("cancel my broadband", "+442071234567", "Acme Telecom", "cancel broadband contract")
	s.CallSid = "CA001"
	s.Phase = models.QueueRinging
	q.save(context.Background(), s)
	return s
}

func TestIsLikelyHumanSpeech(t *testing.T) {
	for _, phrase := range holdPhrases {
		assert.False(t, IsLikelyHumanSpeech("Please note, "+phrase+" today"), phrase)
	}
	assert.False(t, IsLikelyHumanSpeech(""))
	assert.False(t, IsLikelyHumanSpeech("hi"))
	assert.False(t, IsLikelyHumanSpeech("Hello."))
	assert.False(t, IsLikelyHumanSpeech("good morning"))

	assert.True(t, IsLikelyHumanSpeech("Hello, how can I help you today?"))
	assert.True(t, IsLikelyHumanSpeech("Thanks for calling Acme, what do you need?"))
}

func TestDecideIVRAction(t *testing.T) {
	q := newTestQueue(newMemStore(), &eventSink{}, &fakeCaller{}, nil)
	assert.Equal(t, "HOLD", q.DecideIVRAction(context.Background(), "press 1 for sales", "Acme", ""), "no LLM defaults to HOLD")

	tests := []struct {
		content string
		want    string
	}{
		{"2", "2"},
		{" 3 1 ", "31"},
		{"hold", "HOLD"},
		{"HUMAN", "HUMAN"},
		{"press two", "HOLD"},
	}
	for _, tt := range tests {
		completer := &fakeLLM{enabled: true, responses: []*llm.Response{{Content: tt.content}}}
		q := newTestQueue(newMemStore(), &eventSink{}, &fakeCaller{}, completer)
		got := q.DecideIVRAction(context.Background(), "menu audio", "Acme Telecom", "cancel contract")
		assert.Equal(t, tt.want, got, tt.content)

		req := completer.requests[0]
		assert.Equal(t, llm.ModelMixtral, req.Model)
		assert.InDelta(t, 0.1, req.Temperature, 1e-9)
		assert.Equal(t, 10, req.MaxTokens)
		assert.Contains(t, req.Messages[0].Content, "cancel contract")
		assert.Contains(t, req.Messages[0].Content, "Acme Telecom")
	}

	failing := &fakeLLM{enabled: true, errs: []error{errors.New("api down")}, responses: []*llm.Response{{Content: "1"}}}
	qErr := newTestQueue(newMemStore(), &eventSink{}, &fakeCaller{}, failing)
	assert.Equal(t, "HOLD", qErr.DecideIVRAction(context.Background(), "menu", "Acme", ""))
}

func TestQueueRun_CallFails(t *testing.T) {
	st := newMemStore()
	sink := &eventSink{}
	q := newTestQueue(st, sink, &fakeCaller{configured: false}, nil)

	s := models.NewQueueSession("wait on hold", "+442071234567", "Acme Telecom", "")
	q.Run(context.Background(), s)

	assert.Equal(t, models.QueueFailed, s.Phase)
	failed := sink.last(events.TypeQueueFailed)
	require.NotNil(t, failed)
	assert.Equal(t, "Couldn't connect the call. Want me to try again?", failed.Data["message"])
}

func TestQueueRun_PlacesCall(t *testing.T) {
	st := newMemStore()
	sink := &eventSink{}
	caller := &fakeCaller{configured: true}
	q := newTestQueue(st, sink, caller, nil)

	s := models.NewQueueSession("wait on hold", "+442071234567", "Acme Telecom", "")
	q.Run(context.Background(), s)

	assert.Equal(t, models.QueueRinging, s.Phase)
	assert.Equal(t, "CA001", s.CallSid)

	placed := caller.placedOpts()
	require.Len(t, placed, 1)
	assert.Equal(t, "http://backend.test/api/queue/twiml/"+s.ID, placed[0].TwiMLURL)
	assert.Equal(t, 60, placed[0].TimeoutSeconds)
	assert.False(t, placed[0].Record, "queue calls are never recorded")

	started := sink.last(events.TypeQueueStarted)
	require.NotNil(t, started)
	assert.Equal(t, "Calling Acme Telecom...", started.Data["message"])
}

func TestQueueHandleIVRSpeech_PressesDigit(t *testing.T) {
	st := newMemStore()
	sink := &eventSink{}
	completer := &fakeLLM{enabled: true, responses: []*llm.Response{{Content: "2"}}}
	q := newTestQueue(st, sink, &fakeCaller{configured: true}, completer)
	s := seedQueueSession(t, q)

	twiml := q.HandleIVRSpeech(context.Background(), s.ID, "press 1 for sales, press 2 for support")

	assert.Contains(t, twiml, `digits="2"`)
	assert.Contains(t, twiml, "/api/queue/ivr-handler/"+s.ID)

	loaded, ok := q.LoadSession(context.Background(), s.ID)
	require.True(t, ok)
	assert.Equal(t, models.QueueIVR, loaded.Phase)
	require.Len(t, loaded.IVRStepsTaken, 1)
	assert.Equal(t, "2", loaded.IVRStepsTaken[0].Pressed)

	pressing := sink.last(events.TypeQueueIVR)
	require.NotNil(t, pressing)
	assert.Equal(t, "Pressing 2...", pressing.Data["message"])
}

func TestQueueHandleIVRSpeech_Hold(t *testing.T) {
	st := newMemStore()
	sink := &eventSink{}
	completer := &fakeLLM{enabled: true, responses: []*llm.Response{{Content: "HOLD"}}}
	q := newTestQueue(st, sink, &fakeCaller{configured: true}, completer)
	s := seedQueueSession(t, q)

	twiml := q.HandleIVRSpeech(context.Background(), s.ID, "your call is important to us")

	assert.Contains(t, twiml, "/api/queue/human-check/"+s.ID)

	loaded, _ := q.LoadSession(context.Background(), s.ID)
	assert.Equal(t, models.QueueHold, loaded.Phase)
	assert.NotNil(t, loaded.HoldStartedAt)
	require.NotNil(t, sink.last(events.TypeQueueHold))
}

func TestQueueHandleIVRSpeech_SessionGone(t *testing.T) {
	q := newTestQueue(newMemStore(), &eventSink{}, &fakeCaller{}, nil)
	twiml := q.HandleIVRSpeech(context.Background(), "nope", "hello")
	assert.Contains(t, twiml, "<Hangup/>")
}

func TestQueueHandleIVRSpeech_TerminalPhaseIgnored(t *testing.T) {
	st := newMemStore()
	sink := &eventSink{}
	completer := &fakeLLM{enabled: true, responses: []*llm.Response{{Content: "HOLD"}}}
	q := newTestQueue(st, sink, &fakeCaller{configured: true}, completer)

	s := seedQueueSession(t, q)
	s.Phase = models.QueueFailed
	q.save(context.Background(), s)

	twiml := q.HandleIVRSpeech(context.Background(), s.ID, "press 1 for sales")
	assert.Contains(t, twiml, "<Hangup/>")

	loaded, _ := q.LoadSession(context.Background(), s.ID)
	assert.Equal(t, models.QueueFailed, loaded.Phase,
		"a late gather callback must not resurrect a finished session")

	// Same for a human heard after the user cancelled.
	c := seedQueueSession(t, q)
	c.Phase = models.QueueCancelled
	q.save(context.Background(), c)

	twiml = q.HandleHumanCheck(context.Background(), c.ID, "Hello, you're through to Dave, how can I help?")
	assert.Contains(t, twiml, "<Hangup/>")

	loaded, _ = q.LoadSession(context.Background(), c.ID)
	assert.Equal(t, models.QueueCancelled, loaded.Phase)
	assert.False(t, loaded.HumanDetected)
}

func TestQueueHandleHumanCheck(t *testing.T) {
	st := newMemStore()
	sink := &eventSink{}
	q := newTestQueue(st, sink, &fakeCaller{configured: true}, nil)
	s := seedQueueSession(t, q)
	now := time.Now().UTC().Add(-90 * time.Second)
	s.Phase = models.QueueHold
	s.HoldStartedAt = &now
	q.save(context.Background(), s)

	// Hold music keeps waiting.
	twiml := q.HandleHumanCheck(context.Background(), s.ID, "thank you for holding, you are number 4 in the queue")
	assert.Contains(t, twiml, "/api/queue/hold-loop/"+s.ID)
	loaded, _ := q.LoadSession(context.Background(), s.ID)
	assert.Equal(t, models.QueueHold, loaded.Phase)
	assert.GreaterOrEqual(t, loaded.HoldElapsedSeconds, 89)

	// A real human flips the session.
	twiml = q.HandleHumanCheck(context.Background(), s.ID, "Hello, you're through to Dave, how can I help?")
	assert.Contains(t, twiml, "please hold for just a moment")

	loaded, _ = q.LoadSession(context.Background(), s.ID)
	assert.Equal(t, models.QueueHumanDetected, loaded.Phase)
	assert.True(t, loaded.HumanDetected)
	assert.Equal(t, "+442071234567", loaded.CallbackNumber)

	detected := sink.last(events.TypeQueueHumanDetected)
	require.NotNil(t, detected)
	assert.Contains(t, detected.Data["message"], "A human picked up at Acme Telecom!")
}

func TestQueuePhaseGuard(t *testing.T) {
	st := newMemStore()
	q := newTestQueue(st, &eventSink{}, &fakeCaller{configured: true}, nil)
	s := seedQueueSession(t, q)

	// Advance the stored copy to human_detected.
	advanced := *s
	advanced.Phase = models.QueueHumanDetected
	q.save(context.Background(), &advanced)

	// A stale hold-loop writer must not drag it back.
	stale := *s
	stale.Phase = models.QueueHold
	assert.False(t, q.saveGuarded(context.Background(), &stale, models.QueueHold))

	loaded, _ := q.LoadSession(context.Background(), s.ID)
	assert.Equal(t, models.QueueHumanDetected, loaded.Phase)
}

func TestQueueHandleCallStatus(t *testing.T) {
	st := newMemStore()
	sink := &eventSink{}
	q := newTestQueue(st, sink, &fakeCaller{configured: true}, nil)

	s := seedQueueSession(t, q)
	q.HandleCallStatus(context.Background(), s.ID, "in-progress")
	loaded, _ := q.LoadSession(context.Background(), s.ID)
	assert.Equal(t, models.QueueIVR, loaded.Phase)
	connected := sink.last(events.TypeQueueIVR)
	require.NotNil(t, connected)
	assert.Equal(t, "Connected! Listening to the phone menu...", connected.Data["message"])

	q.HandleCallStatus(context.Background(), s.ID, "completed")
	loaded, _ = q.LoadSession(context.Background(), s.ID)
	assert.Equal(t, models.QueueFailed, loaded.Phase)
	assert.Equal(t, "Call ended without reaching a human", loaded.Error)

	// Terminal phases ignore late status callbacks.
	human := seedQueueSession(t, q)
	human.Phase = models.QueueHumanDetected
	q.save(context.Background(), human)
	q.HandleCallStatus(context.Background(), human.ID, "completed")
	loaded, _ = q.LoadSession(context.Background(), human.ID)
	assert.Equal(t, models.QueueHumanDetected, loaded.Phase)
}

func TestHeadKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", head("short", 100))
	assert.Equal(t, "na", head("naïve caller", 3), "never split a multi-byte rune")
	assert.True(t, utf8.ValidString(head("für Kundenservice drücken Sie eins", 20)))
}

func TestQueueCancel(t *testing.T) {
	st := newMemStore()
	sink := &eventSink{}
	caller := &fakeCaller{configured: true}
	q := newTestQueue(st, sink, caller, nil)

	assert.False(t, q.Cancel(context.Background(), "unknown"))

	s := seedQueueSession(t, q)
	assert.True(t, q.Cancel(context.Background(), s.ID))

	loaded, _ := q.LoadSession(context.Background(), s.ID)
	assert.Equal(t, models.QueueCancelled, loaded.Phase)
	assert.NotNil(t, loaded.CompletedAt)
	assert.Equal(t, []string{"CA001"}, caller.hangups)

	cancelled := sink.last(events.TypeQueueFailed)
	require.NotNil(t, cancelled)
	assert.Equal(t, true, cancelled.Data["cancelled"])
}
