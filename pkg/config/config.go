// Package config loads application settings from the environment.
// Every external collaborator (Twilio, ElevenLabs, Google Places, NVIDIA NIM,
// Composio, Redis) is optional: a missing key switches the component to its
// deterministic fallback path instead of failing startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the flat settings surface, populated once at startup.
type Config struct {
	// Twilio carrier credentials.
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string

	// ElevenLabs voice synthesis and conversational agent.
	ElevenLabsAPIKey  string
	ElevenLabsAgentID string

	// Google Places directory.
	GooglePlacesAPIKey string

	// NVIDIA NIM (Mistral) for classification, chat, and summaries.
	NvidiaAPIKey string

	// Mistral API for the agentic build loop.
	MistralAPIKey string

	// Composio mailbox connector.
	ComposioAPIKey string

	// W&B Weave tracing project.
	WandbAPIKey  string
	WeaveProject string

	// Infrastructure.
	RedisURL   string
	BackendURL string
	Port       string

	CORSOrigins []string
	DemoMode    bool

	RateLimitPerMinute int
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		TwilioAccountSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:    os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioPhoneNumber:  os.Getenv("TWILIO_PHONE_NUMBER"),
		ElevenLabsAPIKey:   os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsAgentID:  os.Getenv("ELEVENLABS_AGENT_ID"),
		GooglePlacesAPIKey: os.Getenv("GOOGLE_PLACES_API_KEY"),
		NvidiaAPIKey:       os.Getenv("NVIDIA_API_KEY"),
		MistralAPIKey:      os.Getenv("MISTRAL_API_KEY"),
		ComposioAPIKey:     os.Getenv("COMPOSIO_API_KEY"),
		WandbAPIKey:        os.Getenv("WANDB_API_KEY"),
		WeaveProject:       getEnv("WEAVE_PROJECT", "friendly-blitz"),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		BackendURL:         getEnv("BACKEND_URL", "http://localhost:8080"),
		Port:               getEnv("PORT", "8080"),
		CORSOrigins:        parseCORSOrigins(getEnv("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000")),
		DemoMode:           parseBool(os.Getenv("DEMO_MODE")),
		RateLimitPerMinute: 10,
	}

	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE %q", v)
		}
		cfg.RateLimitPerMinute = n
	}

	return cfg, nil
}

// TwilioConfigured reports whether outbound calls can be placed.
func (c *Config) TwilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioPhoneNumber != ""
}

// WebSocketURL converts the backend URL to its ws/wss equivalent, for the
// carrier's media-stream directive.
func (c *Config) WebSocketURL() string {
	url := strings.Replace(c.BackendURL, "https://", "wss://", 1)
	return strings.Replace(url, "http://", "ws://", 1)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// parseCORSOrigins splits the comma-separated origin list, prefixing
// https:// when a scheme is missing.
func parseCORSOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			origin = "https://" + origin
		}
		origins = append(origins, origin)
	}
	return origins
}
