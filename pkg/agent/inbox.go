package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/friendlyhq/friendly/pkg/events"
	"github.com/friendlyhq/friendly/pkg/llm"
	"github.com/friendlyhq/friendly/pkg/models"
	"github.com/friendlyhq/friendly/pkg/store"
)

const inboxSummaryPrompt = `You are Friendly's inbox assistant. The user asked you to check their email.

You will receive raw email data. Produce a JSON summary with these fields:
{
  "important_count": <number of important/actionable emails>,
  "top_updates": [<list of 3-7 short bullet strings summarizing the most important emails>],
  "needs_action": <true if any email requires a response or action>,
  "draft_replies_available": false,
  "sender_highlights": [<list of notable senders, e.g. "Your manager Alex", "Amazon shipping">]
}

Rules:
- Each bullet in top_updates should be one concise sentence (under 80 chars)
- Focus on what matters: urgent, from people (not spam), requires action
- Ignore newsletters, promotions, and automated notifications unless they seem important
- Be warm and conversational in the bullet text
- Output ONLY valid JSON, no markdown or explanation`

// emailQuery selects the last day's important, unread, or primary mail.
const emailQuery = "newer_than:1d (is:important OR is:unread OR category:primary)"

// Email is one normalized mailbox message.
type Email struct {
	Subject  string   `json:"subject"`
	From     string   `json:"from"`
	Snippet  string   `json:"snippet"`
	Date     string   `json:"date"`
	IsUnread bool     `json:"is_unread"`
	Labels   []string `json:"labels"`
}

// MailConnector abstracts the hosted mailbox integration.
type MailConnector interface {
	// CheckConnection reports whether the entity's mailbox is linked. When it
	// isn't, authURL is where the user completes OAuth.
	CheckConnection(ctx context.Context, entityID string) (connected bool, authURL string, err error)
	// FetchEmails returns up to maxResults messages matching the query.
	FetchEmails(ctx context.Context, entityID, query string, maxResults int) ([]Email, error)
}

// Inbox checks the user's mailbox through the connector and produces a
// structured summary, cached for five minutes per entity.
type Inbox struct {
	store     SessionStore
	cache     InboxCache
	emitter   *events.Emitter
	connector MailConnector
	llm       llm.Completer
}

// NewInbox wires the inbox workflow.
func NewInbox(st SessionStore, cache InboxCache, emitter *events.Emitter, connector MailConnector, completer llm.Completer) *Inbox {
	return &Inbox{store: st, cache: cache, emitter: emitter, connector: connector, llm: completer}
}

// Run executes the inbox-check workflow for a session.
func (in *Inbox) Run(ctx context.Context, s *models.InboxSession) {
	in.save(ctx, s)

	if cached := in.cachedSummary(ctx, s.EntityID); cached != nil {
		slog.Info("Inbox cache hit", "entity_id", s.EntityID)
		in.emitter.Emit(ctx, s.ID, events.TypeInboxStart, map[string]any{"message": "Checking your inbox..."})
		in.complete(ctx, s, cached)
		return
	}

	in.emitter.Emit(ctx, s.ID, events.TypeInboxStart, map[string]any{"message": "Checking your Gmail connection..."})

	if err := in.run(ctx, s); err != nil {
		slog.Error("Inbox workflow failed", "session_id", s.ID, "error", err)
		s.Phase = models.InboxError
		s.Error = err.Error()
		in.save(ctx, s)
		in.emitter.Emit(ctx, s.ID, events.TypeInboxError, map[string]any{
			"message": "Something went wrong checking your inbox. Want me to try again?",
			"error":   err.Error(),
		})
	}
}

func (in *Inbox) run(ctx context.Context, s *models.InboxSession) error {
	if in.connector == nil {
		return fmt.Errorf("mail connector not configured")
	}

	connected, authURL, err := in.connector.CheckConnection(ctx, s.EntityID)
	if err != nil {
		return err
	}
	if !connected {
		s.Phase = models.InboxAuthRequired
		s.AuthURL = authURL
		in.save(ctx, s)
		in.emitter.Emit(ctx, s.ID, events.TypeInboxAuthRequired, map[string]any{
			"message":  "I need to connect to your Gmail first. Click the link below to authorize:",
			"auth_url": authURL,
		})
		return nil
	}

	s.Phase = models.InboxFetching
	in.save(ctx, s)
	in.emitter.Emit(ctx, s.ID, events.TypeInboxFetching, map[string]any{
		"message": "Connected! Fetching your recent emails...",
	})

	emails, err := in.connector.FetchEmails(ctx, s.EntityID, emailQuery, 20)
	if err != nil {
		return err
	}
	s.EmailCount = len(emails)
	s.Phase = models.InboxSummarizing
	in.save(ctx, s)
	in.emitter.Emit(ctx, s.ID, events.TypeInboxSummarizing, map[string]any{
		"message":     fmt.Sprintf("Found %d emails. Summarizing what's important...", len(emails)),
		"email_count": len(emails),
	})

	summary := in.summarize(ctx, emails)
	in.cacheSummary(ctx, s.EntityID, summary)
	in.complete(ctx, s, summary)
	return nil
}

func (in *Inbox) complete(ctx context.Context, s *models.InboxSession, summary *models.InboxSummary) {
	now := time.Now().UTC()
	s.Phase = models.InboxComplete
	s.Summary = summary
	s.CompletedAt = &now
	in.save(ctx, s)
	in.emitter.Emit(ctx, s.ID, events.TypeInboxComplete, map[string]any{
		"message": "Here's your inbox summary!",
		"summary": summary,
	})
}

// summarize turns fetched emails into an InboxSummary, falling back to a
// count-based summary when the LLM is unavailable or returns junk.
func (in *Inbox) summarize(ctx context.Context, emails []Email) *models.InboxSummary {
	if len(emails) == 0 {
		return &models.InboxSummary{
			ImportantCount: 0,
			TopUpdates:     []string{"Your inbox is clear — nothing important in the last 24 hours!"},
			NeedsAction:    false,
		}
	}
	if in.llm == nil || !in.llm.Enabled() {
		return fallbackInboxSummary(emails)
	}

	// Limit to 15 emails to fit the context window.
	limited := emails
	if len(limited) > 15 {
		limited = limited[:15]
	}
	var parts []string
	for i, email := range limited {
		parts = append(parts, fmt.Sprintf("%d. From: %s\n   Subject: %s\n   Preview: %s\n   Unread: %t",
			i+1, email.From, email.Subject, head(email.Snippet, 150), email.IsUnread))
	}

	resp, err := in.llm.Complete(ctx, llm.Request{
		Model: llm.ModelMixtral,
		Messages: []llm.Message{
			{Role: "system", Content: inboxSummaryPrompt},
			{Role: "user", Content: "Here are my recent emails:\n\n" + strings.Join(parts, "\n\n")},
		},
		Temperature: 0.3,
		MaxTokens:   800,
	})
	if err != nil {
		slog.Error("Email summarization failed", "error", err)
		return fallbackInboxSummary(emails)
	}

	var summary models.InboxSummary
	if err := json.Unmarshal([]byte(llm.StripFences(resp.Content)), &summary); err != nil {
		slog.Warn("LLM returned non-JSON inbox summary, using fallback")
		return fallbackInboxSummary(emails)
	}
	return &summary
}

func fallbackInboxSummary(emails []Email) *models.InboxSummary {
	unread := 0
	for _, e := range emails {
		if e.IsUnread {
			unread++
		}
	}
	updates := []string{fmt.Sprintf("You have %d emails in the last 24 hours (%d unread)", len(emails), unread)}
	if len(emails) > 0 {
		updates = append(updates, "Latest from: "+emails[0].From)
	}
	return &models.InboxSummary{
		ImportantCount: unread,
		TopUpdates:     updates,
		NeedsAction:    unread > 0,
	}
}

func (in *Inbox) cachedSummary(ctx context.Context, entityID string) *models.InboxSummary {
	if in.cache == nil {
		return nil
	}
	var summary models.InboxSummary
	ok, err := in.cache.CachedInboxSummary(ctx, entityID, &summary)
	if err != nil || !ok {
		return nil
	}
	return &summary
}

func (in *Inbox) cacheSummary(ctx context.Context, entityID string, summary *models.InboxSummary) {
	if in.cache == nil {
		return
	}
	if err := in.cache.CacheInboxSummary(ctx, entityID, summary); err != nil {
		slog.Warn("Failed to cache inbox summary", "entity_id", entityID, "error", err)
	}
}

func (in *Inbox) save(ctx context.Context, s *models.InboxSession) {
	if err := in.store.Save(ctx, store.KindInbox, s.ID, s, store.SessionTTL); err != nil {
		slog.Error("Failed to save inbox session", "session_id", s.ID, "error", err)
	}
}
