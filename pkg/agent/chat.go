package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/friendlyhq/friendly/pkg/llm"
	"github.com/friendlyhq/friendly/pkg/tracing"
)

const chatSystemPrompt = `You are Friendly, a helpful AI assistant that can make real phone calls on behalf of users.

Your capabilities:
- **Blitz**: Find local services (plumbers, electricians, etc.) and call them in parallel to get quotes and availability
- **VibeCoder**: Help users build web apps and landing pages
- **Bounce**: Cancel subscriptions for users (coming soon)
- **Queue**: Wait on hold for users (coming soon)
- **Bid**: Negotiate bills down (coming soon)

Personality:
- Friendly, casual, and helpful
- Concise responses (2-3 sentences max unless explaining something complex)
- Use simple language, no jargon
- Proactively suggest how you can help

When users ask for services, quotes, or availability - guide them to use Blitz by saying something like "find me a plumber" or "get quotes from electricians".

When users want to build something - guide them to VibeCoder.

Do NOT make up information. If you don't know something, say so.`

// ChatMessage is one turn of prior conversation context.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat is the default conversational agent for messages that don't route to
// a workflow. Without an LLM it falls back to canned keyword responses.
type Chat struct {
	llm    llm.Completer
	tracer *tracing.Store
}

// NewChat wires the chat agent.
func NewChat(completer llm.Completer, tracer *tracing.Store) *Chat {
	return &Chat{llm: completer, tracer: tracer}
}

// Respond generates a conversational reply, keeping the last six history
// turns for context.
func (c *Chat) Respond(ctx context.Context, userMessage string, history []ChatMessage) string {
	started := time.Now()
	if c.llm == nil || !c.llm.Enabled() {
		slog.Warn("LLM not configured, using fallback chat response")
		return fallbackChatResponse(userMessage)
	}

	messages := []llm.Message{{Role: "system", Content: chatSystemPrompt}}
	if len(history) > 6 {
		history = history[len(history)-6:]
	}
	for _, msg := range history {
		role := msg.Role
		if role == "" {
			role = "user"
		}
		messages = append(messages, llm.Message{Role: role, Content: msg.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: userMessage})

	resp, err := c.llm.Complete(ctx, llm.Request{
		Model:       llm.ModelMixtral,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   500,
	})
	if err != nil {
		slog.Error("Chat generation failed", "error", err)
		if c.tracer != nil {
			c.tracer.LogChatResponse(userMessage, "", time.Since(started).Seconds(), false, err.Error())
		}
		return fallbackChatResponse(userMessage)
	}

	content := strings.TrimSpace(resp.Content)
	if c.tracer != nil {
		c.tracer.LogChatResponse(userMessage, content, time.Since(started).Seconds(), true, "")
	}
	return content
}

func fallbackChatResponse(message string) string {
	message = strings.ToLower(message)

	containsAny := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(message, w) {
				return true
			}
		}
		return false
	}

	switch {
	case containsAny("hello", "hi", "hey", "yo"):
		return "Hey! I'm Friendly. I can help you find services and get quotes by making phone calls. Try saying 'find me a plumber' or 'get quotes for an electrician'."
	case containsAny("help", "what can you do", "how do you work"):
		return `I'm Friendly, your AI assistant that makes real phone calls!

I can help you with:
- **Blitz**: Find services and get quotes (plumbers, electricians, etc.)
- **VibeCoder**: Build web apps and landing pages

Try: "Find me a plumber who can come tomorrow" or "Build me a landing page"`
	case containsAny("thank", "thanks", "cheers"):
		return "You're welcome! Let me know if you need anything else."
	case containsAny("bye", "goodbye", "see you"):
		return "Bye! Come back when you need help finding services or building something."
	default:
		return "I can help you find services (like plumbers or electricians) or build web apps. What do you need?"
	}
}
