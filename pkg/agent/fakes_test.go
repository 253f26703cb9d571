package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/friendlyhq/friendly/pkg/llm"
	"github.com/friendlyhq/friendly/pkg/models"
	"github.com/friendlyhq/friendly/pkg/places"
	"github.com/friendlyhq/friendly/pkg/store"
	"github.com/friendlyhq/friendly/pkg/telephony"
)

// memStore backs agent tests with the same JSON round-trip Redis does.
type memStore struct {
	mu       sync.Mutex
	data     map[string][]byte
	previews map[string]string
	inbox    map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{
		data:     map[string][]byte{},
		previews: map[string]string{},
		inbox:    map[string][]byte{},
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

func (m *memStore) CacheInboxSummary(_ context.Context, entityID string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbox[entityID] = raw
	return nil
}

func (m *memStore) CachedInboxSummary(_ context.Context, entityID string, out interface{}) (bool, error) {
	m.mu.Lock()
	raw, ok := m.inbox[entityID]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

// eventSink records everything the agents emit.
type eventSink struct {
	mu     sync.Mutex
	events []models.Event
}

func (e *eventSink) PushEvent(_ context.Context, _ string, event models.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *eventSink) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.events))
	for i, evt := range e.events {
		out[i] = evt.Type
	}
	return out
}

// last returns the newest event of the given type, or nil.
func (e *eventSink) last(eventType string) *models.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.events) - 1; i >= 0; i-- {
		if e.events[i].Type == eventType {
			return &e.events[i]
		}
	}
	return nil
}

func (e *eventSink) count(eventType string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, evt := range e.events {
		if evt.Type == eventType {
			n++
		}
	}
	return n
}

// fakeCaller implements telephony.Caller.
type fakeCaller struct {
	mu         sync.Mutex
	configured bool
	placeErr   error
	placed     []telephony.PlaceOptions
	hangups    []string
}

func (f *fakeCaller) Place(_ context.Context, opts telephony.PlaceOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.configured {
		return "", telephony.ErrNotConfigured
	}
	if f.placeErr != nil {
		return "", f.placeErr
	}
	f.placed = append(f.placed, opts)
	return fmt.Sprintf("CA%03d", len(f.placed)), nil
}

func (f *fakeCaller) Hangup(_ context.Context, callSID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hangups = append(f.hangups, callSID)
	return nil
}

func (f *fakeCaller) Configured() bool {
	return f.configured
}

func (f *fakeCaller) placedOpts() []telephony.PlaceOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]telephony.PlaceOptions, len(f.placed))
	copy(out, f.placed)
	return out
}

// fakeSearcher implements places.Searcher.
type fakeSearcher struct {
	results []models.Business
}

func (f *fakeSearcher) Search(_ context.Context, _, _ string, _ *places.LatLng, maxResults int) []models.Business {
	if len(f.results) > maxResults {
		return f.results[:maxResults]
	}
	return f.results
}

// fakeLLM implements llm.Completer, replaying scripted responses in order.
// The last response repeats once the script runs out.
type fakeLLM struct {
	mu        sync.Mutex
	enabled   bool
	responses []*llm.Response
	errs      []error
	requests  []llm.Request
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.requests)
	f.requests = append(f.requests, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if len(f.responses) == 0 {
		return nil, errors.New("fakeLLM: no scripted response")
	}
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i], nil
}

func (f *fakeLLM) Enabled() bool {
	return f.enabled
}
