package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Build previews are HTML documents stored under a short opaque id for one
// hour, long enough for the user to open the preview link.

func previewKey(previewID string) string {
	return "build:preview:" + previewID
}

// NewPreviewID returns a short id suitable for a preview URL.
func NewPreviewID() string {
	return uuid.NewString()[:8]
}

// SavePreview stores the rendered HTML under the preview id.
func (s *Store) SavePreview(ctx context.Context, previewID, html string) error {
	if err := s.rdb.Set(ctx, previewKey(previewID), html, PreviewTTL).Err(); err != nil {
		return fmt.Errorf("save preview %s: %w", previewID, err)
	}
	return nil
}

// LoadPreview returns the stored HTML. Returns ErrNotFound when the preview
// id is unknown or has expired.
func (s *Store) LoadPreview(ctx context.Context, previewID string) (string, error) {
	html, err := s.rdb.Get(ctx, previewKey(previewID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load preview %s: %w", previewID, err)
	}
	return html, nil
}
