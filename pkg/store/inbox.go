package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// InboxCacheTTL is how long a fetched inbox summary stays fresh. Checking
// email twice within a few minutes should not refetch or resummarize.
const InboxCacheTTL = 5 * time.Minute

func inboxCacheKey(entityID string) string {
	return "inbox_cache:" + entityID
}

// CacheInboxSummary stores a summarized inbox for the entity.
func (s *Store) CacheInboxSummary(ctx context.Context, entityID string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal inbox cache %s: %w", entityID, err)
	}
	if err := s.rdb.Set(ctx, inboxCacheKey(entityID), data, InboxCacheTTL).Err(); err != nil {
		return fmt.Errorf("cache inbox %s: %w", entityID, err)
	}
	return nil
}

// CachedInboxSummary loads a previously cached inbox summary into out.
// Returns false when there is no fresh cache entry.
func (s *Store) CachedInboxSummary(ctx context.Context, entityID string, out interface{}) (bool, error) {
	data, err := s.rdb.Get(ctx, inboxCacheKey(entityID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load inbox cache %s: %w", entityID, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("unmarshal inbox cache %s: %w", entityID, err)
	}
	return true, nil
}
