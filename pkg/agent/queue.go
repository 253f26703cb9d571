package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/friendlyhq/friendly/pkg/events"
	"github.com/friendlyhq/friendly/pkg/llm"
	"github.com/friendlyhq/friendly/pkg/models"
	"github.com/friendlyhq/friendly/pkg/store"
	"github.com/friendlyhq/friendly/pkg/telephony"
)

const ivrSystemPrompt = `You are navigating an automated phone menu (IVR) on behalf of a user.

The user wants to: %s
They are calling: %s

You just heard this from the phone menu:
"%s"

Based on what you heard, decide what to do:

1. If you heard menu options (e.g., "press 1 for X, press 2 for Y"), respond with the digit(s) to press.
2. If you're being asked to hold or wait, respond with "HOLD" — we'll wait on hold.
3. If a human seems to be talking (not a recording), respond with "HUMAN".
4. If you can't understand or it's unclear, respond with "HOLD" to wait.

Respond with ONLY one of:
- A digit or digits to press (e.g., "1", "2", "31")
- "HOLD"
- "HUMAN"

No explanation, just the action.`

// holdPhrases mark automated hold/IVR audio. Any one of them in a transcript
// rules out a human speaker.
var holdPhrases = []string{
	"your call is important",
	"please hold",
	"please wait",
	"all of our",
	"agents are busy",
	"advisors are busy",
	"currently experiencing",
	"high call volume",
	"you are number",
	"position in the queue",
	"estimated wait time",
	"thank you for holding",
	"thank you for waiting",
	"we appreciate your patience",
	"please continue to hold",
	"call may be recorded",
	"calls may be monitored",
	"for training purposes",
	"for quality purposes",
}

// genericGreetings could come from either an IVR or a human; on their own
// they are not enough to flag a human.
var genericGreetings = []string{"hello", "hi", "welcome", "good morning", "good afternoon"}

// Queue places a call, navigates IVR menus with the LLM, waits on hold, and
// alerts the user the moment a human picks up. After call initiation the
// workflow is driven entirely by carrier webhooks; a background ticker
// streams elapsed hold time to the user.
type Queue struct {
	store      SessionStore
	emitter    *events.Emitter
	caller     telephony.Caller
	llm        llm.Completer
	backendURL string

	holdTick time.Duration
}

// NewQueue wires the queue hold-waiting workflow.
func NewQueue(st SessionStore, emitter *events.Emitter, caller telephony.Caller, completer llm.Completer, backendURL string) *Queue {
	return &Queue{
		store:      st,
		emitter:    emitter,
		caller:     caller,
		llm:        completer,
		backendURL: backendURL,
		holdTick:   30 * time.Second,
	}
}

// Run initiates the queue call. IVR navigation, the hold loop, and human
// detection all happen through webhook handlers afterwards.
func (q *Queue) Run(ctx context.Context, s *models.QueueSession) {
	q.save(ctx, s)
	q.emitter.Emit(ctx, s.ID, events.TypeQueueStarted, map[string]any{
		"message":  fmt.Sprintf("Calling %s...", s.BusinessName),
		"phone":    s.PhoneNumber,
		"business": s.BusinessName,
	})

	sid, err := q.caller.Place(ctx, telephony.PlaceOptions{
		To:             s.PhoneNumber,
		TwiMLURL:       fmt.Sprintf("%s/api/queue/twiml/%s", q.backendURL, s.ID),
		StatusCallback: fmt.Sprintf("%s/api/queue/status-callback?session_id=%s", q.backendURL, s.ID),
		TimeoutSeconds: 60,
		// No recording for queue calls, we just need to listen.
	})
	if err != nil {
		slog.Error("Queue call failed", "session_id", s.ID, "error", err)
		s.Phase = models.QueueFailed
		s.Error = "Failed to initiate call — Twilio not configured or call failed"
		q.save(ctx, s)
		q.emitter.Emit(ctx, s.ID, events.TypeQueueFailed, map[string]any{
			"message": "Couldn't connect the call. Want me to try again?",
			"error":   s.Error,
		})
		return
	}

	s.CallSid = sid
	s.Phase = models.QueueRinging
	q.save(ctx, s)

	go q.holdUpdateLoop(ctx, s.ID)
}

// holdUpdateLoop streams elapsed hold time every 30 seconds while the
// session is still waiting, and enforces the max hold cutoff.
func (q *Queue) holdUpdateLoop(ctx context.Context, sessionID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(q.holdTick):
		}

		s, ok := q.LoadSession(ctx, sessionID)
		if !ok {
			return
		}
		switch s.Phase {
		case models.QueueHold, models.QueueIVR, models.QueueRinging:
		default:
			return
		}

		if s.HoldStartedAt == nil {
			// Still in IVR or ringing, just send a status ping.
			q.emitter.Emit(ctx, sessionID, events.TypeQueueHoldUpdate, map[string]any{
				"message": fmt.Sprintf("Still connecting to %s...", s.BusinessName),
				"elapsed": 0,
			})
			continue
		}

		elapsed := time.Since(*s.HoldStartedAt)
		s.HoldElapsedSeconds = int(elapsed.Seconds())

		if elapsed > time.Duration(s.MaxHoldMinutes)*time.Minute {
			s.Phase = models.QueueFailed
			s.Error = fmt.Sprintf("Hold time exceeded %d minutes", s.MaxHoldMinutes)
			q.saveGuarded(ctx, s, models.QueueHold)
			q.emitter.Emit(ctx, sessionID, events.TypeQueueFailed, map[string]any{
				"message": fmt.Sprintf("Been on hold for over %d minutes. Want me to keep trying or give up?", s.MaxHoldMinutes),
				"elapsed": s.HoldElapsedSeconds,
			})
			q.hangup(ctx, s)
			return
		}

		q.saveGuarded(ctx, s, models.QueueHold)
		q.emitter.Emit(ctx, sessionID, events.TypeQueueHoldUpdate, map[string]any{
			"message": "Still on hold...",
			"elapsed": s.HoldElapsedSeconds,
		})
	}
}

// InitialTwiML is the first document served to the queue call: listen to the
// IVR, fall through to the hold loop on silence.
func (q *Queue) InitialTwiML(sessionID string) string {
	return telephony.QueueInitialTwiML(q.ivrHandlerURL(sessionID), q.holdLoopURL(sessionID))
}

// HoldLoopTwiML listens for a human during hold and loops back on silence.
func (q *Queue) HoldLoopTwiML(sessionID string) string {
	return telephony.QueueHoldTwiML(q.humanCheckURL(sessionID), q.holdLoopURL(sessionID))
}

// HandleIVRSpeech processes speech captured during IVR navigation and
// returns the next TwiML document.
func (q *Queue) HandleIVRSpeech(ctx context.Context, sessionID, transcript string) string {
	s, ok := q.LoadSession(ctx, sessionID)
	if !ok || s.Phase.Terminal() {
		return telephony.HangupTwiML()
	}

	s.Phase = models.QueueIVR
	q.saveGuarded(ctx, s, models.QueueIVR)
	q.emitter.Emit(ctx, sessionID, events.TypeQueueIVR, map[string]any{
		"message": "Navigating phone menu...",
		"heard":   head(transcript, 100),
	})

	action := q.DecideIVRAction(ctx, transcript, s.BusinessName, s.Reason)

	switch action {
	case "HUMAN":
		return q.handleHumanDetected(ctx, s)
	case "HOLD":
		now := time.Now().UTC()
		s.Phase = models.QueueHold
		s.HoldStartedAt = &now
		q.saveGuarded(ctx, s, models.QueueHold)
		q.emitter.Emit(ctx, sessionID, events.TypeQueueHold, map[string]any{
			"message": "On hold... waiting for a human",
			"elapsed": 0,
		})
		return q.HoldLoopTwiML(sessionID)
	}

	// A digit: press it and listen for the next menu level.
	s.IVRStepsTaken = append(s.IVRStepsTaken, models.IVRStep{
		Heard:   head(transcript, 200),
		Pressed: action,
		At:      time.Now().UTC().Format(time.RFC3339),
	})
	q.saveGuarded(ctx, s, models.QueueIVR)
	q.emitter.Emit(ctx, sessionID, events.TypeQueueIVR, map[string]any{
		"message": fmt.Sprintf("Pressing %s...", action),
		"step":    len(s.IVRStepsTaken),
	})
	return telephony.QueueDTMFTwiML(action, q.ivrHandlerURL(sessionID), q.holdLoopURL(sessionID))
}

// HandleHumanCheck processes speech captured during the hold loop and
// decides whether a human has picked up.
func (q *Queue) HandleHumanCheck(ctx context.Context, sessionID, transcript string) string {
	s, ok := q.LoadSession(ctx, sessionID)
	if !ok {
		return telephony.HangupTwiML()
	}

	if IsLikelyHumanSpeech(transcript) {
		return q.handleHumanDetected(ctx, s)
	}

	if s.HoldStartedAt != nil {
		s.HoldElapsedSeconds = int(time.Since(*s.HoldStartedAt).Seconds())
		q.saveGuarded(ctx, s, models.QueueHold)
	}
	return q.HoldLoopTwiML(sessionID)
}

func (q *Queue) handleHumanDetected(ctx context.Context, s *models.QueueSession) string {
	if s.Phase.Terminal() {
		return telephony.HangupTwiML()
	}
	now := time.Now().UTC()
	s.Phase = models.QueueHumanDetected
	s.HumanDetected = true
	s.CompletedAt = &now
	s.CallbackNumber = s.PhoneNumber
	if s.HoldStartedAt != nil {
		s.HoldElapsedSeconds = int(now.Sub(*s.HoldStartedAt).Seconds())
	}
	q.saveGuarded(ctx, s, models.QueueHumanDetected)

	q.emitter.Emit(ctx, s.ID, events.TypeQueueHumanDetected, map[string]any{
		"message":   fmt.Sprintf("A human picked up at %s! Call now: %s", s.BusinessName, s.PhoneNumber),
		"phone":     s.PhoneNumber,
		"business":  s.BusinessName,
		"hold_time": s.HoldElapsedSeconds,
	})

	return telephony.QueueHumanDetectedTwiML()
}

// HandleCallStatus reconciles carrier status callbacks with the session
// phase.
func (q *Queue) HandleCallStatus(ctx context.Context, sessionID, callStatus string) {
	s, ok := q.LoadSession(ctx, sessionID)
	if !ok {
		return
	}
	slog.Info("Queue call status", "session_id", sessionID, "status", callStatus)

	switch callStatus {
	case "completed", "busy", "no-answer", "failed", "canceled":
		// Call ended; if we haven't detected a human, it failed.
		switch s.Phase {
		case models.QueueHumanDetected, models.QueueCompleted, models.QueueCancelled:
			return
		}
		errorMap := map[string]string{
			"completed": "Call ended without reaching a human",
			"busy":      "Line was busy",
			"no-answer": "No answer",
			"failed":    "Call failed to connect",
			"canceled":  "Call was cancelled",
		}
		now := time.Now().UTC()
		s.Phase = models.QueueFailed
		s.Error = errorMap[callStatus]
		s.CompletedAt = &now
		q.save(ctx, s)
		q.emitter.Emit(ctx, sessionID, events.TypeQueueFailed, map[string]any{
			"message": fmt.Sprintf("%s. Want me to try again?", s.Error),
			"error":   s.Error,
		})
	case "in-progress", "answered":
		if s.Phase != models.QueueRinging {
			return
		}
		s.Phase = models.QueueIVR
		q.save(ctx, s)
		q.emitter.Emit(ctx, sessionID, events.TypeQueueIVR, map[string]any{
			"message": "Connected! Listening to the phone menu...",
		})
	}
}

// Cancel stops a queue wait on the user's request. Reports whether the
// session existed.
func (q *Queue) Cancel(ctx context.Context, sessionID string) bool {
	s, ok := q.LoadSession(ctx, sessionID)
	if !ok {
		return false
	}
	now := time.Now().UTC()
	s.Phase = models.QueueCancelled
	s.CompletedAt = &now
	q.save(ctx, s)

	q.emitter.Emit(ctx, sessionID, events.TypeQueueFailed, map[string]any{
		"message":   "Queue cancelled. I've hung up the call.",
		"cancelled": true,
	})
	q.hangup(ctx, s)
	return true
}

// DecideIVRAction asks the LLM which button to press for the menu audio
// just heard. Returns a digit string, "HOLD", or "HUMAN"; any failure or
// unexpected output defaults to "HOLD".
func (q *Queue) DecideIVRAction(ctx context.Context, transcript, businessName, reason string) string {
	if q.llm == nil || !q.llm.Enabled() {
		slog.Warn("No LLM configured for IVR decision, defaulting to HOLD")
		return "HOLD"
	}
	if reason == "" {
		reason = "general enquiry"
	}

	resp, err := q.llm.Complete(ctx, llm.Request{
		Model: llm.ModelMixtral,
		Messages: []llm.Message{
			{Role: "system", Content: fmt.Sprintf(ivrSystemPrompt, reason, businessName, transcript)},
			{Role: "user", Content: "Menu audio: " + transcript},
		},
		Temperature: 0.1,
		MaxTokens:   10,
	})
	if err != nil {
		slog.Error("IVR decision failed", "error", err)
		return "HOLD"
	}

	action := strings.ToUpper(strings.TrimSpace(resp.Content))
	if action == "HOLD" || action == "HUMAN" {
		return action
	}
	cleaned := strings.ReplaceAll(action, " ", "")
	if cleaned != "" && isDigits(cleaned) {
		return cleaned
	}

	slog.Warn("Unexpected IVR action, defaulting to HOLD", "action", action)
	return "HOLD"
}

// IsLikelyHumanSpeech decides whether hold-loop speech came from a person.
// Deliberately simple: false positives are fine, missing a real human is
// not.
func IsLikelyHumanSpeech(transcript string) bool {
	if len(strings.TrimSpace(transcript)) < 5 {
		return false
	}
	lower := strings.ToLower(transcript)
	for _, phrase := range holdPhrases {
		if strings.Contains(lower, phrase) {
			return false
		}
	}
	// A bare greeting could be either an IVR or a human; only flag a human
	// when there's more to go on.
	stripped := strings.TrimRight(strings.TrimSpace(lower), ".")
	for _, greeting := range genericGreetings {
		if stripped == greeting {
			return false
		}
	}
	return true
}

// LoadSession fetches a queue session by id.
func (q *Queue) LoadSession(ctx context.Context, sessionID string) (*models.QueueSession, bool) {
	var s models.QueueSession
	ok, err := q.store.Load(ctx, store.KindQueue, sessionID, &s)
	if err != nil {
		slog.Warn("Failed to load queue session", "session_id", sessionID, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return &s, true
}

func (q *Queue) save(ctx context.Context, s *models.QueueSession) {
	now := time.Now().UTC()
	s.LastUpdateAt = &now
	if err := q.store.Save(ctx, store.KindQueue, s.ID, s, store.QueueTTL); err != nil {
		slog.Error("Failed to save queue session", "session_id", s.ID, "error", err)
	}
}

// saveGuarded re-reads the stored session and refuses to write when the
// stored phase has advanced beyond expected. This keeps a slow hold ticker
// from dragging a session back from human_detected.
func (q *Queue) saveGuarded(ctx context.Context, s *models.QueueSession, expected models.QueuePhase) bool {
	var current models.QueueSession
	ok, err := q.store.Load(ctx, store.KindQueue, s.ID, &current)
	if err == nil && ok && current.Phase.Order() > expected.Order() {
		slog.Info("Phase guard: skipping write",
			"session_id", s.ID, "current", current.Phase, "expected", expected)
		return false
	}
	q.save(ctx, s)
	return true
}

func (q *Queue) hangup(ctx context.Context, s *models.QueueSession) {
	if s.CallSid == "" {
		return
	}
	if err := q.caller.Hangup(ctx, s.CallSid); err != nil {
		slog.Error("Failed to hang up queue call", "call_sid", s.CallSid, "error", err)
	}
}

func (q *Queue) ivrHandlerURL(sessionID string) string {
	return fmt.Sprintf("%s/api/queue/ivr-handler/%s", q.backendURL, sessionID)
}

func (q *Queue) holdLoopURL(sessionID string) string {
	return fmt.Sprintf("%s/api/queue/hold-loop/%s", q.backendURL, sessionID)
}

func (q *Queue) humanCheckURL(sessionID string) string {
	return fmt.Sprintf("%s/api/queue/human-check/%s", q.backendURL, sessionID)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// head truncates s to at most n bytes without splitting a rune.
func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
