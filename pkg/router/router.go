// Package router classifies user messages into agent intents with a
// single-shot LLM call, falling back to chat on any failure.
package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/friendlyhq/friendly/pkg/llm"
	"github.com/friendlyhq/friendly/pkg/models"
)

const systemPrompt = `You are a router for Friendly, an AI assistant that makes phone calls on behalf of users.

Classify the user's intent and output ONLY valid JSON:
{"agent": "blitz|build|bounce|queue|bid|inbox|call_friend|chat", "params": {...}, "confidence": 0.0-1.0}

Agents:
- blitz: Find services, get quotes, check availability (plumber, electrician, restaurant, etc.)
- build: Build a website, landing page, app, or other web artifact
- bounce: Cancel subscriptions (Netflix, gym, etc.)
- queue: Wait on hold for someone (HMRC, bank, etc.)
- bid: Negotiate bills lower (Sky, broadband, etc.)
- inbox: Summarize or check the user's email inbox
- call_friend: Call a specific named person and relay a question or message
- chat: General conversation, greetings, help, questions about the service

IMPORTANT: if the message asks to call a specific person by name ("call Sarah and ask..."),
the agent is call_friend even if the message also mentions services or venues.

Params for blitz:
- service: the type of service needed (plumber, electrician, locksmith, etc.)
- timeframe: when they need it (today, tomorrow, this week, urgent, ASAP)
- location: where they need it (city, area, postcode)
- action: what they want (quote, book, find, availability)
- notes: any extra details mentioned

Examples:
User: "find me a plumber who can come tomorrow"
{"agent": "blitz", "params": {"service": "plumber", "timeframe": "tomorrow"}, "confidence": 0.95}

User: "I need an electrician in Manchester urgently"
{"agent": "blitz", "params": {"service": "electrician", "location": "Manchester", "timeframe": "urgent"}, "confidence": 0.95}

User: "build me a landing page for my bakery"
{"agent": "build", "params": {"notes": "landing page for a bakery"}, "confidence": 0.95}

User: "cancel my Netflix subscription"
{"agent": "bounce", "params": {"service": "Netflix", "action": "cancel"}, "confidence": 0.98}

User: "call HMRC and wait on hold for me"
{"agent": "queue", "params": {"service": "HMRC", "action": "wait"}, "confidence": 0.95}

User: "negotiate my Sky bill down"
{"agent": "bid", "params": {"service": "Sky", "action": "negotiate"}, "confidence": 0.95}

User: "what's in my inbox today?"
{"agent": "inbox", "params": {}, "confidence": 0.95}

User: "call Sarah and ask if she's free for dinner at the new restaurant"
{"agent": "call_friend", "params": {"service": "Sarah", "notes": "is she free for dinner at the new restaurant"}, "confidence": 0.95}

User: "hello"
{"agent": "chat", "params": {}, "confidence": 1.0}

User: "what can you do?"
{"agent": "chat", "params": {}, "confidence": 1.0}

Output ONLY the JSON, no explanation or markdown.`

const maxMessageLen = 1000

// Router classifies intents. A nil or disabled Completer routes everything
// to chat.
type Router struct {
	llm llm.Completer
}

func New(completer llm.Completer) *Router {
	return &Router{llm: completer}
}

// fallback is the deterministic answer for every failure mode.
func fallback() models.RouterResult {
	return models.RouterResult{
		Agent:      models.AgentChat,
		Params:     models.RouterParams{},
		Confidence: 0.5,
	}
}

// Classify routes one user message. It never returns an error: any failure
// (missing key, HTTP error, unparseable response, unknown agent tag)
// degrades to chat with confidence 0.5.
func (r *Router) Classify(ctx context.Context, userMessage string) models.RouterResult {
	userMessage = strings.TrimSpace(userMessage)
	if len(userMessage) > maxMessageLen {
		userMessage = userMessage[:maxMessageLen]
	}

	if r.llm == nil || !r.llm.Enabled() {
		slog.Warn("router: LLM not configured, falling back to chat")
		return fallback()
	}

	resp, err := r.llm.Complete(ctx, llm.Request{
		Model: llm.ModelMistralLarge,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
		Temperature: 0.1,
		MaxTokens:   200,
	})
	if err != nil {
		slog.Error("router: classification failed", "error", err)
		return fallback()
	}

	result := parseResponse(resp.Content)
	slog.Info("router: classified message",
		"agent", result.Agent,
		"confidence", result.Confidence)
	return result
}

// parseResponse decodes the model's JSON, tolerating markdown fences and
// clamping confidence to [0, 1].
func parseResponse(content string) models.RouterResult {
	content = llm.StripFences(content)

	var raw struct {
		Agent      string              `json:"agent"`
		Params     models.RouterParams `json:"params"`
		Confidence *float64            `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		slog.Warn("router: failed to parse response", "error", err)
		return fallback()
	}

	agent := models.AgentType(strings.ToLower(raw.Agent))
	if !agent.IsValid() {
		agent = models.AgentChat
	}

	confidence := 1.0
	if raw.Confidence != nil {
		confidence = *raw.Confidence
	}
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	return models.RouterResult{
		Agent:      agent,
		Params:     raw.Params,
		Confidence: confidence,
	}
}
