package store

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// The TTS cache is content-addressed: identical text (case- and
// whitespace-sensitive) always maps to the same key. Audio is stored
// base64-encoded for 24 hours to save synthesis credits.

// AudioCacheKey returns the cache key for a piece of speech text.
func AudioCacheKey(text string) string {
	sum := md5.Sum([]byte(text))
	return "tts:" + hex.EncodeToString(sum[:])
}

// CacheAudio stores synthesized audio for the given text.
func (s *Store) CacheAudio(ctx context.Context, text string, audio []byte) error {
	encoded := base64.StdEncoding.EncodeToString(audio)
	if err := s.rdb.Set(ctx, AudioCacheKey(text), encoded, AudioTTL).Err(); err != nil {
		return fmt.Errorf("cache audio: %w", err)
	}
	return nil
}

// CachedAudio returns previously synthesized audio for the text, or
// (nil, nil) on a cache miss.
func (s *Store) CachedAudio(ctx context.Context, text string) ([]byte, error) {
	encoded, err := s.rdb.Get(ctx, AudioCacheKey(text)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached audio: %w", err)
	}

	audio, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode cached audio: %w", err)
	}
	return audio, nil
}
