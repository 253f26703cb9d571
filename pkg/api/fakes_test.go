package api

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/friendlyhq/friendly/pkg/agent"
	"github.com/friendlyhq/friendly/pkg/config"
	"github.com/friendlyhq/friendly/pkg/events"
	"github.com/friendlyhq/friendly/pkg/media"
	"github.com/friendlyhq/friendly/pkg/models"
	"github.com/friendlyhq/friendly/pkg/places"
	"github.com/friendlyhq/friendly/pkg/store"
	"github.com/friendlyhq/friendly/pkg/telephony"
	"github.com/friendlyhq/friendly/pkg/tracing"
)

// memStore backs the handlers and the agents in-memory: sessions survive a
// JSON round-trip like they do in Redis, and the per-session event queue is
// a buffered channel the SSE gateway drains.
type memStore struct {
	mu       sync.Mutex
	data     map[string][]byte
	previews map[string]string
	events   chan *models.Event
	pingErr  error
}

func newMemStore() *memStore {
	return &memStore{
		data:     make(map[string][]byte),
		previews: make(map[string]string),
		events:   make(chan *models.Event, 128),
	}
}

func (m *memStore) Save(_ context.Context, kind store.Kind, id string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[string(kind)+":"+id] = raw
	return nil
}

func (m *memStore) Load(_ context.Context, kind store.Kind, id string, out any) (bool, error) {
	m.mu.Lock()
	raw, ok := m.data[string(kind)+":"+id]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

func (m *memStore) Delete(_ context.Context, kind store.Kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(kind)+":"+id)
	return nil
}

func (m *memStore) SavePreview(_ context.Context, previewID, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.previews[previewID] = html
	return nil
}

func (m *memStore) LoadPreview(_ context.Context, previewID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	html, ok := m.previews[previewID]
	if !ok {
		return "", store.ErrNotFound
	}
	return html, nil
}

func (m *memStore) CacheInboxSummary(_ context.Context, entityID string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data["inbox_cache:"+entityID] = raw
	return nil
}

func (m *memStore) CachedInboxSummary(_ context.Context, entityID string, out interface{}) (bool, error) {
	m.mu.Lock()
	raw, ok := m.data["inbox_cache:"+entityID]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

func (m *memStore) PushEvent(_ context.Context, _ string, event models.Event) error {
	m.events <- &event
	return nil
}

func (m *memStore) PopEvent(ctx context.Context, _ string, timeout time.Duration) (*models.Event, error) {
	select {
	case e := <-m.events:
		return e, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, nil
	}
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }

type fakeClassifier struct {
	result models.RouterResult
}

func (f *fakeClassifier) Classify(context.Context, string) models.RouterResult {
	return f.result
}

type fakeResponder struct {
	reply string
}

func (f *fakeResponder) Respond(context.Context, string, []agent.ChatMessage) string {
	return f.reply
}

type fakeCaller struct {
	mu         sync.Mutex
	configured bool
	placed     []telephony.PlaceOptions
	n          int
}

func (f *fakeCaller) Configured() bool { return f.configured }

func (f *fakeCaller) Place(_ context.Context, opts telephony.PlaceOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.configured {
		return "", telephony.ErrNotConfigured
	}
	f.placed = append(f.placed, opts)
	f.n++
	return fmt.Sprintf("CA%03d", f.n), nil
}

func (f *fakeCaller) Hangup(context.Context, string) error { return nil }

type fakeSearcher struct {
	businesses []models.Business
}

func (f *fakeSearcher) Search(context.Context, string, string, *places.LatLng, int) []models.Business {
	return f.businesses
}

type fakeTTS struct {
	audio []byte
}

func (f *fakeTTS) Generate(context.Context, string) []byte { return f.audio }

// newTestServer wires a server over in-memory fakes. The returned memStore
// doubles as the event queue feeding SSE handlers.
func newTestServer(result models.RouterResult) (*Server, *memStore) {
	ms := newMemStore()
	emitter := events.NewEmitter(ms)
	caller := &fakeCaller{}
	cfg := &config.Config{
		BackendURL:  "http://backend.test",
		Port:        "8080",
		CORSOrigins: []string{"*"},
	}

	srv := New(Deps{
		Config:     cfg,
		Store:      ms,
		Classifier: &fakeClassifier{result: result},
		TTS:        &fakeTTS{audio: []byte("mp3")},
		Tracer:     tracing.New(nil),
		Bridges:    media.NewRegistry(),
		Emitter:    emitter,
		Blitz:      agent.NewBlitz(ms, emitter, &fakeSearcher{}, caller, nil, cfg.BackendURL),
		Demo:       agent.NewDemo(ms, emitter),
		Queue:      agent.NewQueue(ms, emitter, caller, nil, cfg.BackendURL),
		CallFriend: agent.NewCallFriend(ms, emitter, caller, nil, cfg.BackendURL, cfg.WebSocketURL()),
		Build:      agent.NewBuild(ms, ms, emitter, nil, cfg.BackendURL),
		Inbox:      agent.NewInbox(ms, ms, emitter, nil, nil),
		Chat:       &fakeResponder{reply: "Hey! I'm Friendly."},
	})
	return srv, ms
}
