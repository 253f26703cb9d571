package media

import (
	"fmt"
	"sync"
)

// Registry tracks live bridges so webhook handlers and shutdown can reach
// conversations started by the media-stream endpoints. Keys are
// "{session_id}:{call_id}".
type Registry struct {
	mu      sync.RWMutex
	bridges map[string]*Bridge
}

func NewRegistry() *Registry {
	return &Registry{bridges: make(map[string]*Bridge)}
}

func key(sessionID, callID string) string {
	return fmt.Sprintf("%s:%s", sessionID, callID)
}

func (r *Registry) Put(sessionID, callID string, b *Bridge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bridges[key(sessionID, callID)] = b
}

func (r *Registry) Get(sessionID, callID string) (*Bridge, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bridges[key(sessionID, callID)]
	return b, ok
}

// Remove detaches and closes a bridge if present.
func (r *Registry) Remove(sessionID, callID string) {
	r.mu.Lock()
	b, ok := r.bridges[key(sessionID, callID)]
	delete(r.bridges, key(sessionID, callID))
	r.mu.Unlock()

	if ok {
		b.Close()
	}
}

// CloseAll tears down every live bridge; used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	bridges := make([]*Bridge, 0, len(r.bridges))
	for _, b := range r.bridges {
		bridges = append(bridges, b)
	}
	r.bridges = make(map[string]*Bridge)
	r.mu.Unlock()

	for _, b := range bridges {
		b.Close()
	}
}

// Len reports the number of live bridges.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bridges)
}
