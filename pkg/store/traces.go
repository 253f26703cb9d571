package store

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	tracesKey = "friendly:traces"

	// tracesMax bounds the persisted trace list. Older entries fall off.
	tracesMax = 1000
)

// PersistTraces prepends the given raw trace records to the persisted trace
// list, newest first, and trims the list to its bound.
func (s *Store) PersistTraces(ctx context.Context, traces []json.RawMessage) error {
	if len(traces) == 0 {
		return nil
	}
	vals := make([]interface{}, len(traces))
	for i, t := range traces {
		vals[i] = []byte(t)
	}
	if err := s.rdb.LPush(ctx, tracesKey, vals...).Err(); err != nil {
		return fmt.Errorf("persist traces: %w", err)
	}
	if err := s.rdb.LTrim(ctx, tracesKey, 0, tracesMax-1).Err(); err != nil {
		return fmt.Errorf("trim traces: %w", err)
	}
	return nil
}

// LoadTraces returns up to limit persisted trace records, newest first.
// Used to rehydrate the in-memory trace ring on startup.
func (s *Store) LoadTraces(ctx context.Context, limit int) ([]json.RawMessage, error) {
	if limit <= 0 || limit > tracesMax {
		limit = tracesMax
	}
	raw, err := s.rdb.LRange(ctx, tracesKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("load traces: %w", err)
	}
	out := make([]json.RawMessage, 0, len(raw))
	for _, r := range raw {
		out = append(out, json.RawMessage(r))
	}
	return out, nil
}
