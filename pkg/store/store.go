// Package store provides the Redis-backed keyed storage shared by every
// workflow: session state, per-session event queues, the TTS audio cache,
// build previews, and the persisted trace ring.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Kind namespaces session keys. All kinds share the save/load/delete
// operations; they differ only in key prefix and TTL.
type Kind string

const (
	// KindSession is the shared namespace for blitz, call-friend, and build
	// sessions.
	KindSession Kind = "session"
	// KindQueue holds queue sessions. Hold waits can be long, so the TTL is
	// doubled.
	KindQueue Kind = "queue"
	// KindInbox holds inbox-check sessions.
	KindInbox Kind = "inbox"
)

// Session TTLs. events:{id} shares SessionTTL so a session and its event
// queue expire together.
const (
	SessionTTL = time.Hour
	QueueTTL   = 2 * time.Hour
	AudioTTL   = 24 * time.Hour
	PreviewTTL = time.Hour
)

// TTL returns the expiry applied to keys of this kind.
func (k Kind) TTL() time.Duration {
	if k == KindQueue {
		return QueueTTL
	}
	return SessionTTL
}

func (k Kind) key(id string) string {
	return string(k) + ":" + id
}

// ErrNotFound is returned by operations that require an existing key.
var ErrNotFound = errors.New("store: key not found")

// Store wraps a Redis client with the key namespacing and JSON round-trip
// used by all session kinds. Values are whole-value atomic replacements;
// read-modify-write is the caller's job.
type Store struct {
	rdb *redis.Client
}

// New connects to Redis using a redis:// URL and verifies the connection.
func New(ctx context.Context, redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Store{rdb: rdb}, nil
}

// NewFromClient wraps an existing Redis client (useful for testing).
func NewFromClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Close releases the underlying Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ping verifies the Redis connection, for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Save serializes value and replaces the stored session atomically.
func (s *Store) Save(ctx context.Context, kind Kind, id string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s session %s: %w", kind, id, err)
	}
	if err := s.rdb.Set(ctx, kind.key(id), data, ttl).Err(); err != nil {
		return fmt.Errorf("save %s session %s: %w", kind, id, err)
	}
	return nil
}

// Load deserializes the stored session into out. Returns (false, nil) when
// the key does not exist or has expired.
func (s *Store) Load(ctx context.Context, kind Kind, id string, out any) (bool, error) {
	data, err := s.rdb.Get(ctx, kind.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s session %s: %w", kind, id, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("unmarshal %s session %s: %w", kind, id, err)
	}
	return true, nil
}

// Delete removes the stored session. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, kind Kind, id string) error {
	if err := s.rdb.Del(ctx, kind.key(id)).Err(); err != nil {
		return fmt.Errorf("delete %s session %s: %w", kind, id, err)
	}
	return nil
}
