package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/friendlyhq/friendly/pkg/models"
)

// Event queues live at events:{session_id} with the same TTL as the session
// itself, so both expire together. Within a queue, delivery order is strict
// producer-insertion order; the bus is best-effort across TTL expiry.

func eventsKey(sessionID string) string {
	return "events:" + sessionID
}

// PushEvent appends an event to the session's queue and refreshes the TTL.
func (s *Store) PushEvent(ctx context.Context, sessionID string, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.Type, err)
	}

	key := eventsKey(sessionID)
	if err := s.rdb.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("push event %s: %w", event.Type, err)
	}
	if err := s.rdb.Expire(ctx, key, SessionTTL).Err(); err != nil {
		return fmt.Errorf("expire event queue %s: %w", sessionID, err)
	}
	return nil
}

// PopEvent blocks up to timeout waiting for the next event. Returns
// (nil, nil) on timeout. This is the only allowed blocking wait point for
// the SSE gateway.
func (s *Store) PopEvent(ctx context.Context, sessionID string, timeout time.Duration) (*models.Event, error) {
	res, err := s.rdb.BLPop(ctx, timeout, eventsKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop event for %s: %w", sessionID, err)
	}
	// BLPop returns [key, value].
	if len(res) < 2 {
		return nil, nil
	}

	var event models.Event
	if err := json.Unmarshal([]byte(res[1]), &event); err != nil {
		return nil, fmt.Errorf("unmarshal event for %s: %w", sessionID, err)
	}
	return &event, nil
}

// ClearEvents drops the session's event queue.
func (s *Store) ClearEvents(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, eventsKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear events for %s: %w", sessionID, err)
	}
	return nil
}
