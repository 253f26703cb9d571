// Package tts generates call audio with ElevenLabs, cached in Redis to save
// API credits. A nil result means the caller should fall back to carrier-side
// text-to-speech.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/friendlyhq/friendly/pkg/models"
	"github.com/friendlyhq/friendly/pkg/store"
)

const apiBaseURL = "https://api.elevenlabs.io/v1"

// VoiceRachel is the default professional female voice.
const VoiceRachel = "21m00Tcm4TlvDq8ikWAM"

// outputFormat is 22.05kHz / 32kbps MP3, the sweet spot for telephony playback.
const outputFormat = "mp3_22050_32"

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

var defaultVoiceSettings = voiceSettings{
	Stability:       0.5,
	SimilarityBoost: 0.75,
	Style:           0.0,
	UseSpeakerBoost: true,
}

// Generator is the consumer-side synthesis interface.
type Generator interface {
	Generate(ctx context.Context, text string) []byte
}

// Client synthesizes speech via the ElevenLabs REST API.
type Client struct {
	apiKey  string
	voiceID string
	baseURL string
	store   *store.Store
	http    *http.Client
}

// New creates a client. st may be nil to disable caching; an empty apiKey
// makes every Generate return nil.
func New(apiKey string, st *store.Store) *Client {
	return &Client{
		apiKey:  apiKey,
		voiceID: VoiceRachel,
		baseURL: apiBaseURL,
		store:   st,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Generate returns MP3 audio for text, or nil on any failure. Audio is
// content-addressed in Redis for 24h.
func (c *Client) Generate(ctx context.Context, text string) []byte {
	if c.store != nil {
		if cached, err := c.store.CachedAudio(ctx, text); err == nil && cached != nil {
			slog.Info("tts: cache hit", "chars", len(text))
			return cached
		}
	}

	if c.apiKey == "" {
		slog.Warn("tts: ELEVENLABS_API_KEY not set")
		return nil
	}

	audio, err := c.synthesize(ctx, text)
	if err != nil {
		slog.Error("tts: synthesis failed", "error", err)
		return nil
	}

	if c.store != nil && len(audio) > 0 {
		if err := c.store.CacheAudio(ctx, text, audio); err != nil {
			slog.Warn("tts: failed to cache audio", "error", err)
		}
	}
	return audio
}

func (c *Client) synthesize(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(map[string]any{
		"text":           text,
		"model_id":       "eleven_multilingual_v2",
		"voice_settings": defaultVoiceSettings,
		"output_format":  outputFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", c.baseURL, c.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return nil, fmt.Errorf("API status %d: %s", resp.StatusCode, body)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading audio: %w", err)
	}
	slog.Info("tts: generated audio", "bytes", len(audio), "chars", len(text))
	return audio, nil
}

// BuildCallScript renders the message the AI speaks on an outbound quote
// call before the record beep.
func BuildCallScript(script models.CallScript) string {
	timeframe := script.Timeframe
	if timeframe == "" {
		timeframe = "soon"
	}
	question := script.Question
	if question == "" {
		question = "availability and call-out fee"
	}
	return fmt.Sprintf(`Hello! I'm an AI assistant calling on behalf of a customer.
They're looking for a %s and would like to know about your %s.
They need someone who can come %s.
Could you let me know your availability and pricing?
Please speak clearly after the beep.`, script.ServiceType, question, timeframe)
}
