package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/friendlyhq/friendly/pkg/events"
	"github.com/friendlyhq/friendly/pkg/llm"
	"github.com/friendlyhq/friendly/pkg/models"
	"github.com/friendlyhq/friendly/pkg/store"
	"github.com/friendlyhq/friendly/pkg/telephony"
)

const callFriendMaxSeconds = 180

// CallFriend places a live AI voice call to a named person, relays a
// question, and reports back what they said. The conversation itself runs
// over the media bridge; this workflow owns call setup, status
// reconciliation, polling, and the final summary.
type CallFriend struct {
	store      SessionStore
	emitter    *events.Emitter
	caller     telephony.Caller
	llm        llm.Completer
	backendURL string
	wsURL      string

	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewCallFriend wires the call-friend workflow. wsURL is the ws/wss base the
// carrier connects its media stream to.
func NewCallFriend(st SessionStore, emitter *events.Emitter, caller telephony.Caller, completer llm.Completer, backendURL, wsURL string) *CallFriend {
	return &CallFriend{
		store:        st,
		emitter:      emitter,
		caller:       caller,
		llm:          completer,
		backendURL:   backendURL,
		wsURL:        wsURL,
		pollInterval: 2 * time.Second,
		pollTimeout:  callFriendMaxSeconds * time.Second,
	}
}

// Run executes the full call-friend workflow for a session.
func (c *CallFriend) Run(ctx context.Context, s *models.CallFriendSession) {
	c.save(ctx, s)
	c.emitter.Emit(ctx, s.ID, events.TypeStatus, map[string]any{
		"phase":       string(models.CallFriendInitiating),
		"message":     fmt.Sprintf("Calling %s...", s.FriendName),
		"friend_name": s.FriendName,
	})

	sid, err := c.caller.Place(ctx, telephony.PlaceOptions{
		To:                      s.PhoneNumber,
		TwiMLURL:                fmt.Sprintf("%s/api/call_friend/twiml/%s", c.backendURL, s.ID),
		StatusCallback:          fmt.Sprintf("%s/api/call_friend/webhook?session_id=%s", c.backendURL, s.ID),
		TimeoutSeconds:          45,
		Record:                  true,
		RecordingStatusCallback: fmt.Sprintf("%s/api/call_friend/recording?session_id=%s", c.backendURL, s.ID),
		MachineDetection:        true,
		AMDStatusCallback:       fmt.Sprintf("%s/api/call_friend/amd?session_id=%s", c.backendURL, s.ID),
	})
	if err != nil {
		slog.Error("Call-friend call failed", "session_id", s.ID, "error", err)
		s.Phase = models.CallFriendFailed
		s.Error = "Failed to initiate call"
		c.save(ctx, s)
		c.emitter.Emit(ctx, s.ID, events.TypeError, map[string]any{
			"message": "Failed to initiate call. Please check the phone number.",
		})
		return
	}

	s.CallSid = sid
	s.Phase = models.CallFriendRinging
	c.save(ctx, s)
	c.emitter.Emit(ctx, s.ID, events.TypeCallStarted, map[string]any{
		"phase":       string(models.CallFriendRinging),
		"message":     fmt.Sprintf("Ringing %s...", s.FriendName),
		"friend_name": s.FriendName,
	})

	c.pollUntilDone(ctx, s)

	if len(s.Transcript) > 0 {
		s.Summary = c.summarize(ctx, s)
	} else {
		s.Summary = fmt.Sprintf("I called %s but couldn't get a clear response. You might want to try calling them directly.", s.FriendName)
	}

	c.emitter.Emit(ctx, s.ID, events.TypeSessionComplete, map[string]any{
		"phase":       string(s.Phase),
		"summary":     s.Summary,
		"response":    s.Response,
		"transcript":  s.Transcript,
		"friend_name": s.FriendName,
	})
	c.save(ctx, s)
}

// pollUntilDone watches the session until the media bridge or the webhook
// reconciler marks it terminal, or the call window closes.
func (c *CallFriend) pollUntilDone(ctx context.Context, s *models.CallFriendSession) {
	deadline := time.Now().Add(c.pollTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.pollInterval):
		}

		latest, ok := c.LoadSession(ctx, s.ID)
		if ok {
			s.Phase = latest.Phase
			s.Transcript = latest.Transcript
			s.Response = latest.Response
			s.RecordingURL = latest.RecordingURL
			s.CompletedAt = latest.CompletedAt
			s.Error = latest.Error
		}
		if s.Phase.Terminal() {
			return
		}
	}

	now := time.Now().UTC()
	s.Phase = models.CallFriendFailed
	s.Error = "Call timed out"
	s.CompletedAt = &now
	c.save(ctx, s)
}

// summarize turns the conversation transcript into a short friendly recap.
func (c *CallFriend) summarize(ctx context.Context, s *models.CallFriendSession) string {
	fallback := fmt.Sprintf("I spoke with %s. They said: %s", s.FriendName, s.Response)
	if s.Response == "" {
		fallback = fmt.Sprintf("I called %s but couldn't get a clear response. You might want to try calling them directly.", s.FriendName)
	}
	if c.llm == nil || !c.llm.Enabled() {
		return fallback
	}

	var lines []string
	for _, entry := range s.Transcript {
		lines = append(lines, fmt.Sprintf("%s: %s", entry.Role, entry.Text))
	}
	prompt := fmt.Sprintf(`I just called %s on behalf of a user to ask: "%s"

Here's the conversation transcript:
%s

Please write a brief, friendly summary (2-3 sentences) of what %s said, addressed to the user.`,
		s.FriendName, s.Question, strings.Join(lines, "\n"), s.FriendName)

	resp, err := c.llm.Complete(ctx, llm.Request{
		Model:       llm.ModelMixtral,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0.7,
		MaxTokens:   200,
	})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		return fallback
	}
	return strings.TrimSpace(resp.Content)
}

// TwiML returns the conversation document connecting the call to the media
// stream. Unknown sessions get an apology and a hangup.
func (c *CallFriend) TwiML(ctx context.Context, sessionID string) string {
	if _, ok := c.LoadSession(ctx, sessionID); !ok {
		return telephony.ErrorTwiML("Sorry, something went wrong. Please try again.")
	}
	streamURL := fmt.Sprintf("%s/api/call_friend/media-stream/%s", c.wsURL, sessionID)
	return telephony.ConversationTwiML(streamURL, callFriendMaxSeconds)
}

// HandleStatus reconciles carrier status callbacks. Terminal phases are
// immutable.
func (c *CallFriend) HandleStatus(ctx context.Context, sessionID, callSid, callStatus string) {
	s, ok := c.LoadSession(ctx, sessionID)
	if !ok {
		return
	}

	switch callStatus {
	case "ringing":
		if s.Phase.Terminal() {
			return
		}
		s.Phase = models.CallFriendRinging
		c.emitter.Emit(ctx, sessionID, events.TypeStatus, map[string]any{
			"phase":       string(models.CallFriendRinging),
			"message":     fmt.Sprintf("Ringing %s...", s.FriendName),
			"friend_name": s.FriendName,
		})
	case "in-progress", "answered":
		if s.Phase.Terminal() {
			return
		}
		s.Phase = models.CallFriendConnected
		c.emitter.Emit(ctx, sessionID, events.TypeCallConnected, map[string]any{
			"phase":       string(models.CallFriendConnected),
			"message":     fmt.Sprintf("%s answered!", s.FriendName),
			"friend_name": s.FriendName,
		})
	case "completed":
		if !s.Phase.Terminal() {
			now := time.Now().UTC()
			s.Phase = models.CallFriendComplete
			s.CompletedAt = &now
		}
	case "busy", "no-answer":
		if s.Phase.Terminal() {
			return
		}
		s.Phase = models.CallFriendNoAnswer
		if callStatus == "busy" {
			s.Error = "Line busy"
		} else {
			s.Error = "No answer"
		}
		c.emitter.Emit(ctx, sessionID, events.TypeError, map[string]any{
			"phase":       "no_answer",
			"message":     fmt.Sprintf("%s didn't answer. They might be busy - try again later!", s.FriendName),
			"friend_name": s.FriendName,
		})
	case "failed", "canceled":
		if s.Phase.Terminal() {
			return
		}
		s.Phase = models.CallFriendFailed
		s.Error = "Call failed"
		c.emitter.Emit(ctx, sessionID, events.TypeError, map[string]any{
			"phase":       string(models.CallFriendFailed),
			"message":     fmt.Sprintf("Couldn't connect to %s. Please check the number and try again.", s.FriendName),
			"friend_name": s.FriendName,
		})
	}

	if s.CallSid == "" && callSid != "" {
		s.CallSid = callSid
	}
	c.save(ctx, s)
}

// HandleAMD notes a voicemail pickup. The call is left up so the voice agent
// can leave a message.
func (c *CallFriend) HandleAMD(ctx context.Context, sessionID, answeredBy string) {
	if !strings.HasPrefix(answeredBy, "machine") {
		return
	}
	s, ok := c.LoadSession(ctx, sessionID)
	if !ok {
		return
	}
	c.emitter.Emit(ctx, sessionID, events.TypeTranscript, map[string]any{
		"speaker": "system",
		"text":    fmt.Sprintf("Reached %s's voicemail. Leaving a message...", s.FriendName),
	})
}

// HandleRecording stores the call recording URL.
func (c *CallFriend) HandleRecording(ctx context.Context, sessionID, recordingURL string) {
	s, ok := c.LoadSession(ctx, sessionID)
	if !ok {
		return
	}
	s.RecordingURL = recordingURL
	c.save(ctx, s)
}

// LoadSession fetches a call-friend session by id.
func (c *CallFriend) LoadSession(ctx context.Context, sessionID string) (*models.CallFriendSession, bool) {
	var s models.CallFriendSession
	ok, err := c.store.Load(ctx, store.KindSession, sessionID, &s)
	if err != nil {
		slog.Warn("Failed to load call-friend session", "session_id", sessionID, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return &s, true
}

// SaveSession persists session mutations made outside the workflow, such as
// the media bridge's transcript handoff.
func (c *CallFriend) SaveSession(ctx context.Context, s *models.CallFriendSession) {
	c.save(ctx, s)
}

func (c *CallFriend) save(ctx context.Context, s *models.CallFriendSession) {
	if err := c.store.Save(ctx, store.KindSession, s.ID, s, store.SessionTTL); err != nil {
		slog.Error("Failed to save call-friend session", "session_id", s.ID, "error", err)
	}
}
