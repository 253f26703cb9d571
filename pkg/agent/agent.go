// Package agent implements the workflows behind each routed intent: the
// blitz call fan-out, queue hold-waiting, friend calls, the build loop, the
// inbox check, and plain chat. Agents publish progress through the event
// emitter and persist state through the session store; HTTP transport
// concerns stay in pkg/api.
package agent

import (
	"context"
	"time"

	"github.com/friendlyhq/friendly/pkg/store"
)

// SessionStore is the slice of the Redis store agents persist sessions
// through. Satisfied by *store.Store.
type SessionStore interface {
	Save(ctx context.Context, kind store.Kind, id string, value any, ttl time.Duration) error
	Load(ctx context.Context, kind store.Kind, id string, out any) (bool, error)
	Delete(ctx context.Context, kind store.Kind, id string) error
}

// PreviewSaver stores rendered build previews. Satisfied by *store.Store.
type PreviewSaver interface {
	SavePreview(ctx context.Context, previewID, html string) error
}

// InboxCache caches mailbox summaries per connected account.
// Satisfied by *store.Store.
type InboxCache interface {
	CacheInboxSummary(ctx context.Context, entityID string, value interface{}) error
	CachedInboxSummary(ctx context.Context, entityID string, out interface{}) (bool, error)
}
