package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/friendlyhq/friendly/pkg/events"
	"github.com/friendlyhq/friendly/pkg/models"
)

func TestExtractQuote(t *testing.T) {
	tests := []struct {
		text string
		want *float64
	}{
		{"Available, £95 call-out fee", ptr(95.0)},
		{"$120.50", ptr(120.50)},
		{"call 3 businesses", nil},
		{"£50 or £100", ptr(50.0)},
		{"quote was £ 85 plus parts", ptr(85.0)},
		{"", nil},
	}
	for _, tt := range tests {
		got := ExtractQuote(tt.text)
		if tt.want == nil {
			assert.Nil(t, got, tt.text)
		} else {
			require.NotNil(t, got, tt.text)
			assert.InDelta(t, *tt.want, *got, 1e-9, tt.text)
		}
	}
}

func ptr(f float64) *float64 { return &f }

func newTestBlitz(st *memStore, sink *eventSink, searcher *fakeSearcher, caller *fakeCaller) *Blitz {
	b := NewBlitz(st, events.NewEmitter(sink), searcher, caller, nil, "http://backend.test")
	b.pollInterval = time.Millisecond
	b.pollTimeout = 30 * time.Millisecond
	return b
}

func TestBlitzRun_NoBusinesses(t *testing.T) {
	st := newMemStore()
	sink := &eventSink{}
	b := newTestBlitz(st, sink, &fakeSearcher{}, &fakeCaller{configured: true})

	s := models.NewBlitzSession("", "find me a plumber", models.RouterParams{Service: "plumber"})
	b.Run(context.Background(), s)

	assert.Equal(t, models.SessionComplete, s.Status)
	assert.Contains(t, s.Summary, "couldn't find any plumber")

	complete := sink.last(events.TypeSessionComplete)
	require.NotNil(t, complete)
	assert.Empty(t, complete.Data["results"])
}

func TestBlitzRun_FanOut(t *testing.T) {
	st := newMemStore()
	sink := &eventSink{}
	caller := &fakeCaller{configured: true}
	searcher := &fakeSearcher{results: []models.Business{
		{Name: "Pimlico Plumbers", Phone: "+442078331111"},
		{Name: "Mr. Plumber London", Phone: "+442072230987"},
		{Name: "No Phone Ltd"}, // filtered out
	}}
	b := newTestBlitz(st, sink, searcher, caller)

	s := models.NewBlitzSession("", "find me a plumber", models.RouterParams{Service: "plumber", Location: "London"})
	b.Run(context.Background(), s)

	require.Len(t, s.Calls, 2)
	placed := caller.placedOpts()
	require.Len(t, placed, 2)
	for _, opts := range placed {
		assert.Contains(t, opts.TwiMLURL, "http://backend.test/api/blitz/twiml/"+s.ID+"/")
		assert.Contains(t, opts.StatusCallback, "/api/blitz/webhook?session_id="+s.ID)
		assert.Equal(t, 45, opts.TimeoutSeconds)
		assert.True(t, opts.Record)
		assert.True(t, opts.MachineDetection)
	}

	// No webhooks arrive, so the poll window closes and open calls fail.
	assert.Equal(t, models.SessionComplete, s.Status)
	for _, call := range s.Calls {
		assert.Equal(t, models.CallStatusFailed, call.Status)
		assert.Equal(t, "Timeout", call.Error)
	}
	assert.Contains(t, s.Summary, "I called 2 plumbers but couldn't get through")

	assert.Equal(t, 2, sink.count(events.TypeCallStarted))
	require.NotNil(t, sink.last(events.TypeSessionComplete))
}

func TestBlitzRun_TwilioNotConfigured(t *testing.T) {
	st := newMemStore()
	sink := &eventSink{}
	searcher := &fakeSearcher{results: []models.Business{{Name: "Pimlico Plumbers", Phone: "+442078331111"}}}
	b := newTestBlitz(st, sink, searcher, &fakeCaller{configured: false})

	s := models.NewBlitzSession("", "find me a plumber", models.RouterParams{Service: "plumber"})
	b.Run(context.Background(), s)

	require.Len(t, s.Calls, 1)
	assert.Equal(t, models.CallStatusFailed, s.Calls[0].Status)
	assert.Equal(t, "Twilio not configured", s.Calls[0].Error)

	failed := sink.last(events.TypeCallFailed)
	require.NotNil(t, failed)
	assert.Equal(t, "Twilio not configured", failed.Data["error"])
}

func seedBlitzSession(t *testing.T, st *memStore) *models.BlitzSession {
	t.Helper()
	s := models.NewBlitzSession("", "find me a plumber", models.RouterParams{Service: "plumber"})
	biz := models.Business{Name: "Pimlico Plumbers", Phone: "+442078331111"}
	s.Businesses = []models.Business{biz}
	call := models.NewCallRecord(biz)
	call.CallSid = "CA001"
	started := time.Now().UTC().Add(-10 * time.Second)
	call.StartedAt = &started
	call.Status = models.CallStatusRinging
	s.Calls = []models.CallRecord{call}
	require.NoError(t, st.Save(context.Background(), "session", s.ID, s, 0))
	return s
}

func TestBlitzHandleStatus_Reconciles(t *testing.T) {
	st := newMemStore()
	sink := &eventSink{}
	b := newTestBlitz(st, sink, &fakeSearcher{}, &fakeCaller{configured: true})
	s := seedBlitzSession(t, st)
	callID := s.Calls[0].ID

	b.HandleStatus(context.Background(), s.ID, callID, "CA001", "in-progress")
	loaded, ok := b.Load(context.Background(), s.ID)
	require.True(t, ok)
	assert.Equal(t, models.CallStatusConnected, loaded.Calls[0].Status)
	require.NotNil(t, sink.last(events.TypeCallConnected))

	b.HandleStatus(context.Background(), s.ID, "", "CA001", "busy")
	loaded, _ = b.Load(context.Background(), s.ID)
	assert.Equal(t, models.CallStatusBusy, loaded.Calls[0].Status)
	assert.Equal(t, "Line busy", loaded.Calls[0].Error)
	assert.NotNil(t, loaded.Calls[0].EndedAt)

	// Terminal statuses are immutable.
	b.HandleStatus(context.Background(), s.ID, callID, "CA001", "in-progress")
	loaded, _ = b.Load(context.Background(), s.ID)
	assert.Equal(t, models.CallStatusBusy, loaded.Calls[0].Status)

	// Unknown carrier statuses are dropped.
	b.HandleStatus(context.Background(), s.ID, callID, "CA001", "warp-speed")
	loaded, _ = b.Load(context.Background(), s.ID)
	assert.Equal(t, models.CallStatusBusy, loaded.Calls[0].Status)
}

func TestBlitzHandleRecordingComplete(t *testing.T) {
	st := newMemStore()
	sink := &eventSink{}
	b := newTestBlitz(st, sink, &fakeSearcher{}, &fakeCaller{configured: true})
	s := seedBlitzSession(t, st)

	b.HandleRecordingComplete(context.Background(), s.ID, s.Calls[0].ID, "https://api.twilio.com/rec/RE1")

	loaded, ok := b.Load(context.Background(), s.ID)
	require.True(t, ok)
	call := loaded.Calls[0]
	assert.Equal(t, models.CallStatusComplete, call.Status)
	assert.Equal(t, "Response recorded - processing...", call.Result)
	assert.Equal(t, "https://api.twilio.com/rec/RE1", call.RecordingURL)

	result := sink.last(events.TypeCallResult)
	require.NotNil(t, result)
	assert.Equal(t, "Pimlico Plumbers", result.Data["business"])
}

func TestBlitzRecordingAfterCompletedStatus(t *testing.T) {
	st := newMemStore()
	sink := &eventSink{}
	b := newTestBlitz(st, sink, &fakeSearcher{}, &fakeCaller{configured: true})
	s := seedBlitzSession(t, st)
	callID := s.Calls[0].ID

	// The carrier usually delivers the completed status callback before the
	// recording callback; the recording must still land.
	b.HandleStatus(context.Background(), s.ID, callID, "CA001", "completed")
	b.HandleRecordingComplete(context.Background(), s.ID, callID, "https://api.twilio.com/rec/RE2")

	loaded, ok := b.Load(context.Background(), s.ID)
	require.True(t, ok)
	call := loaded.Calls[0]
	assert.Equal(t, models.CallStatusComplete, call.Status)
	assert.Equal(t, "Response recorded - processing...", call.Result)
	assert.Equal(t, "https://api.twilio.com/rec/RE2", call.RecordingURL)
	require.NotNil(t, sink.last(events.TypeCallResult))

	// Failure endings stay immutable: no recording resurrects a busy call.
	busy := seedBlitzSession(t, st)
	b.HandleStatus(context.Background(), busy.ID, busy.Calls[0].ID, "CA001", "busy")
	b.HandleRecordingComplete(context.Background(), busy.ID, busy.Calls[0].ID, "https://api.twilio.com/rec/RE3")

	loaded, _ = b.Load(context.Background(), busy.ID)
	assert.Equal(t, models.CallStatusBusy, loaded.Calls[0].Status)
	assert.Empty(t, loaded.Calls[0].Result)
}

func TestBlitzHandleAMD_VoicemailHangsUp(t *testing.T) {
	st := newMemStore()
	sink := &eventSink{}
	caller := &fakeCaller{configured: true}
	b := newTestBlitz(st, sink, &fakeSearcher{}, caller)
	s := seedBlitzSession(t, st)

	b.HandleAMD(context.Background(), s.ID, s.Calls[0].ID, "human")
	loaded, _ := b.Load(context.Background(), s.ID)
	assert.Equal(t, models.CallStatusRinging, loaded.Calls[0].Status, "human answer leaves the call alone")

	b.HandleAMD(context.Background(), s.ID, s.Calls[0].ID, "machine_start")
	loaded, _ = b.Load(context.Background(), s.ID)
	assert.Equal(t, models.CallStatusFailed, loaded.Calls[0].Status)
	assert.Equal(t, "Voicemail detected", loaded.Calls[0].Error)
	assert.Equal(t, []string{"CA001"}, caller.hangups)
}

func TestBlitzSummarize(t *testing.T) {
	b := &Blitz{}
	s := models.NewBlitzSession("", "", models.RouterParams{})
	s.Calls = []models.CallRecord{
		{Business: models.Business{Name: "A"}, Status: models.CallStatusComplete, Result: "Available tomorrow, £95"},
		{Business: models.Business{Name: "B"}, Status: models.CallStatusNoAnswer},
	}

	summary := b.summarize(s, "plumber")
	assert.True(t, strings.HasPrefix(summary, "Found 1 options for you:"))
	assert.Contains(t, summary, "- A: Available tomorrow, £95")

	s.Calls[0].Status = models.CallStatusFailed
	assert.Contains(t, b.summarize(s, "plumber"), "I called 2 plumbers")
	assert.Contains(t, b.summarize(s, ""), "I called 2 businesses")
}
