package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/friendlyhq/friendly/pkg/models"
	"github.com/friendlyhq/friendly/pkg/store"
)

func seedQueue(t *testing.T, ms *memStore, phase models.QueuePhase) *models.QueueSession {
	t.Helper()
	session := models.NewQueueSession("call HMRC and hold", "+443002003300", "HMRC", "tax question")
	session.Phase = phase
	require.NoError(t, ms.Save(context.Background(), store.KindQueue, session.ID, session, 2*time.Hour))
	return session
}

func TestQueueTwiMLListensForIVR(t *testing.T) {
	srv, ms := newTestServer(models.RouterResult{})
	session := seedQueue(t, ms, models.QueueRinging)

	w := postForm(srv, "/api/queue/twiml/"+session.ID, url.Values{})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/xml", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "<Gather")
	assert.Contains(t, body, "/api/queue/ivr-handler/"+session.ID)
	assert.Contains(t, body, "/api/queue/hold-loop/"+session.ID)
}

func TestQueueIVRHandlerFallsBackToHold(t *testing.T) {
	srv, ms := newTestServer(models.RouterResult{})
	session := seedQueue(t, ms, models.QueueIVR)

	// No LLM configured: the IVR decision defaults to holding.
	w := postForm(srv, "/api/queue/ivr-handler/"+session.ID,
		url.Values{"SpeechResult": {"press 1 for sales, press 2 for support"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/queue/human-check/"+session.ID)

	var stored models.QueueSession
	_, err := ms.Load(context.Background(), store.KindQueue, session.ID, &stored)
	require.NoError(t, err)
	assert.Equal(t, models.QueueHold, stored.Phase)
}

func TestQueueIVRHandlerUnknownSessionHangsUp(t *testing.T) {
	srv, _ := newTestServer(models.RouterResult{})

	w := postForm(srv, "/api/queue/ivr-handler/missing", url.Values{"SpeechResult": {"anything"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Hangup/>")
}

func TestQueueHumanCheckDetectsHuman(t *testing.T) {
	srv, ms := newTestServer(models.RouterResult{})
	session := seedQueue(t, ms, models.QueueHold)
	now := time.Now().UTC().Add(-90 * time.Second)
	session.HoldStartedAt = &now
	require.NoError(t, ms.Save(context.Background(), store.KindQueue, session.ID, session, 2*time.Hour))

	w := postForm(srv, "/api/queue/human-check/"+session.ID,
		url.Values{"SpeechResult": {"Hello, this is Dave from support, how can I help you today?"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "please hold for just a moment")

	var stored models.QueueSession
	_, err := ms.Load(context.Background(), store.KindQueue, session.ID, &stored)
	require.NoError(t, err)
	assert.Equal(t, models.QueueHumanDetected, stored.Phase)
	assert.True(t, stored.HumanDetected)
}

func TestQueueStatusCallback(t *testing.T) {
	srv, ms := newTestServer(models.RouterResult{})
	session := seedQueue(t, ms, models.QueueRinging)

	w := postForm(srv, "/api/queue/status-callback?session_id="+session.ID,
		url.Values{"CallSid": {"CA001"}, "CallStatus": {"in-progress"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	var stored models.QueueSession
	_, err := ms.Load(context.Background(), store.KindQueue, session.ID, &stored)
	require.NoError(t, err)
	assert.Equal(t, models.QueueIVR, stored.Phase)
}

func TestQueueCancel(t *testing.T) {
	srv, ms := newTestServer(models.RouterResult{})
	session := seedQueue(t, ms, models.QueueHold)

	w := postForm(srv, "/api/queue/cancel/"+session.ID, url.Values{})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cancelled"`)

	w = postForm(srv, "/api/queue/cancel/missing", url.Values{})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"not_found"`)
}

func TestQueueSessionEndpoint(t *testing.T) {
	srv, ms := newTestServer(models.RouterResult{})
	session := seedQueue(t, ms, models.QueueHold)

	req := httptest.NewRequest(http.MethodGet, "/api/queue/session/"+session.ID, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"business":"HMRC"`)
	assert.Contains(t, body, `"phase":"hold"`)

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/queue/session/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
