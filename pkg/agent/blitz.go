package agent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/friendlyhq/friendly/pkg/events"
	"github.com/friendlyhq/friendly/pkg/models"
	"github.com/friendlyhq/friendly/pkg/places"
	"github.com/friendlyhq/friendly/pkg/store"
	"github.com/friendlyhq/friendly/pkg/telephony"
	"github.com/friendlyhq/friendly/pkg/tracing"
)

const (
	blitzMaxBusinesses = 3
	blitzCallTimeout   = 45
)

// Blitz finds local businesses and calls up to three of them in parallel to
// collect availability and quotes. The workflow owns the session document;
// after the fan-out it only polls, leaving writes to the webhook reconciler.
type Blitz struct {
	store      SessionStore
	emitter    *events.Emitter
	places     places.Searcher
	caller     telephony.Caller
	tracer     *tracing.Store
	backendURL string

	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewBlitz wires the blitz workflow.
func NewBlitz(st SessionStore, emitter *events.Emitter, searcher places.Searcher, caller telephony.Caller, tracer *tracing.Store, backendURL string) *Blitz {
	return &Blitz{
		store:        st,
		emitter:      emitter,
		places:       searcher,
		caller:       caller,
		tracer:       tracer,
		backendURL:   backendURL,
		pollInterval: time.Second,
		pollTimeout:  2 * time.Minute,
	}
}

// Run executes the full blitz workflow for a session. Failures are absorbed:
// the session is marked errored and the stream gets a terminal error event.
func (b *Blitz) Run(ctx context.Context, s *models.BlitzSession) {
	started := time.Now()
	if err := b.run(ctx, s); err != nil {
		slog.Error("Blitz session failed", "session_id", s.ID, "error", err)
		s.Status = models.SessionError
		s.Error = err.Error()
		b.save(ctx, s)
		b.emitter.Emit(ctx, s.ID, events.TypeError, map[string]any{"message": err.Error()})
		return
	}
	b.logSessionTrace(s, time.Since(started).Seconds())
}

func (b *Blitz) run(ctx context.Context, s *models.BlitzSession) error {
	service := s.ParsedParams.Service
	serviceLabel := service
	if serviceLabel == "" {
		serviceLabel = "services"
	}
	location := s.ParsedParams.Location
	if location == "" {
		location = "London"
	}
	query := service
	if query == "" {
		query = "service"
	}

	if err := b.save(ctx, s); err != nil {
		return err
	}
	b.emitter.Emit(ctx, s.ID, events.TypeStatus, map[string]any{
		"status":  string(models.SessionSearching),
		"message": fmt.Sprintf("Finding %s near you...", serviceLabel),
	})

	found := b.places.Search(ctx, query, location, nil, blitzMaxBusinesses)
	for _, biz := range found {
		if biz.Phone == "" {
			continue
		}
		s.Businesses = append(s.Businesses, biz)
		if len(s.Businesses) == blitzMaxBusinesses {
			break
		}
	}

	if len(s.Businesses) == 0 {
		now := time.Now().UTC()
		s.Status = models.SessionComplete
		s.CompletedAt = &now
		s.Summary = fmt.Sprintf("Sorry, I couldn't find any %s with phone numbers in that area.", serviceLabel)
		if err := b.save(ctx, s); err != nil {
			return err
		}
		b.emitter.Emit(ctx, s.ID, events.TypeSessionComplete, map[string]any{
			"summary": s.Summary,
			"results": []any{},
		})
		return nil
	}

	s.Status = models.SessionCalling
	b.emitter.Emit(ctx, s.ID, events.TypeStatus, map[string]any{
		"status":     string(models.SessionCalling),
		"message":    fmt.Sprintf("Calling %d businesses...", len(s.Businesses)),
		"businesses": s.Businesses,
	})

	for _, biz := range s.Businesses {
		s.Calls = append(s.Calls, models.NewCallRecord(biz))
	}
	if err := b.save(ctx, s); err != nil {
		return err
	}

	// Fan out. Each goroutine owns its own call slot; the session is saved
	// once after all calls are placed so no goroutine clobbers another's
	// update.
	var wg sync.WaitGroup
	for i := range s.Calls {
		wg.Add(1)
		go func(call *models.CallRecord) {
			defer wg.Done()
			b.placeCall(ctx, s.ID, call)
		}(&s.Calls[i])
	}
	wg.Wait()
	if err := b.save(ctx, s); err != nil {
		return err
	}

	b.pollUntilDone(ctx, s)

	now := time.Now().UTC()
	s.Status = models.SessionComplete
	s.CompletedAt = &now
	s.Summary = b.summarize(s, service)
	if err := b.save(ctx, s); err != nil {
		return err
	}

	results := make([]map[string]any, 0, len(s.Calls))
	for _, call := range s.Calls {
		results = append(results, map[string]any{
			"business": call.Business.Name,
			"status":   string(call.Status),
			"result":   call.Result,
		})
	}
	b.emitter.Emit(ctx, s.ID, events.TypeSessionComplete, map[string]any{
		"summary": s.Summary,
		"results": results,
	})
	return nil
}

func (b *Blitz) placeCall(ctx context.Context, sessionID string, call *models.CallRecord) {
	if !b.caller.Configured() {
		call.Status = models.CallStatusFailed
		call.Error = "Twilio not configured"
		b.emitter.Emit(ctx, sessionID, events.TypeCallFailed, map[string]any{
			"business": call.Business.Name,
			"error":    call.Error,
		})
		return
	}

	now := time.Now().UTC()
	call.Status = models.CallStatusRinging
	call.StartedAt = &now
	b.emitter.Emit(ctx, sessionID, events.TypeCallStarted, map[string]any{
		"business": call.Business.Name,
		"phone":    call.Business.Phone,
		"status":   string(models.CallStatusRinging),
	})

	callbackQS := fmt.Sprintf("session_id=%s&call_id=%s", sessionID, call.ID)
	sid, err := b.caller.Place(ctx, telephony.PlaceOptions{
		To:                      call.Business.Phone,
		TwiMLURL:                fmt.Sprintf("%s/api/blitz/twiml/%s/%s", b.backendURL, sessionID, call.ID),
		StatusCallback:          fmt.Sprintf("%s/api/blitz/webhook?%s", b.backendURL, callbackQS),
		TimeoutSeconds:          blitzCallTimeout,
		Record:                  true,
		RecordingStatusCallback: fmt.Sprintf("%s/api/blitz/recording?%s", b.backendURL, callbackQS),
		MachineDetection:        true,
		AMDStatusCallback:       fmt.Sprintf("%s/api/blitz/amd?%s", b.backendURL, callbackQS),
	})
	if err != nil {
		slog.Error("Failed to place blitz call",
			"session_id", sessionID, "business", call.Business.Name, "error", err)
		call.Status = models.CallStatusFailed
		call.Error = err.Error()
		b.emitter.Emit(ctx, sessionID, events.TypeCallFailed, map[string]any{
			"business": call.Business.Name,
			"error":    call.Error,
		})
		return
	}
	call.CallSid = sid
}

// pollUntilDone re-reads the session until every call is terminal or the
// poll window closes. The webhook reconciler owns call updates from here on,
// so only the Calls slice is copied back.
func (b *Blitz) pollUntilDone(ctx context.Context, s *models.BlitzSession) {
	deadline := time.Now().Add(b.pollTimeout)
	for time.Now().Before(deadline) {
		if s.AllCallsTerminal() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(b.pollInterval):
		}

		var latest models.BlitzSession
		ok, err := b.store.Load(ctx, store.KindSession, s.ID, &latest)
		if err != nil {
			slog.Warn("Failed to refresh blitz session", "session_id", s.ID, "error", err)
			continue
		}
		if ok {
			s.Calls = latest.Calls
		}
	}

	for i := range s.Calls {
		if !s.Calls[i].Status.Terminal() {
			s.Calls[i].Status = models.CallStatusFailed
			s.Calls[i].Error = "Timeout"
		}
	}
}

func (b *Blitz) summarize(s *models.BlitzSession, service string) string {
	var lines []string
	for _, call := range s.Calls {
		if call.Status == models.CallStatusComplete && call.Result != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", call.Business.Name, call.Result))
		}
	}
	if len(lines) > 0 {
		return fmt.Sprintf("Found %d options for you:\n\n%s", len(lines), strings.Join(lines, "\n"))
	}

	label := "businesses"
	if service != "" {
		label = service + "s"
	}
	return fmt.Sprintf("I called %d %s but couldn't get through to any of them. Would you like me to try different ones?", len(s.Calls), label)
}

func (b *Blitz) logSessionTrace(s *models.BlitzSession, duration float64) {
	if b.tracer == nil {
		return
	}
	successful := 0
	var bestQuote string
	for _, call := range s.Calls {
		callDuration := 0.0
		if call.StartedAt != nil && call.EndedAt != nil {
			callDuration = call.EndedAt.Sub(*call.StartedAt).Seconds()
		}
		success := call.Status == models.CallStatusComplete && call.Result != ""
		if success {
			successful++
		}
		quote := ExtractQuote(call.Result)
		if quote != nil && bestQuote == "" {
			bestQuote = call.Result
		}
		b.tracer.LogBlitzCall(tracing.BlitzCall{
			SessionID:         s.ID,
			BusinessName:      call.Business.Name,
			BusinessPhone:     call.Business.Phone,
			Success:           success,
			Duration:          callDuration,
			QuoteReceived:     quote,
			BusinessResponded: success,
			ResultText:        call.Result,
			Error:             call.Error,
		})
	}
	b.tracer.LogBlitzSession(tracing.BlitzSession{
		SessionID:       s.ID,
		TotalCalls:      len(s.Calls),
		SuccessfulCalls: successful,
		Duration:        duration,
		ServiceType:     s.ParsedParams.Service,
		Location:        s.ParsedParams.Location,
		BestQuote:       bestQuote,
	})
}

func (b *Blitz) save(ctx context.Context, s *models.BlitzSession) error {
	if err := b.store.Save(ctx, store.KindSession, s.ID, s, store.SessionTTL); err != nil {
		return fmt.Errorf("save blitz session %s: %w", s.ID, err)
	}
	return nil
}

// Load fetches a blitz session by id.
func (b *Blitz) Load(ctx context.Context, sessionID string) (*models.BlitzSession, bool) {
	var s models.BlitzSession
	ok, err := b.store.Load(ctx, store.KindSession, sessionID, &s)
	if err != nil {
		slog.Warn("Failed to load blitz session", "session_id", sessionID, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return &s, true
}

// HandleStatus applies a carrier status callback to the matching call.
// Terminal call statuses are immutable; a late or duplicate callback for a
// finished call is dropped.
func (b *Blitz) HandleStatus(ctx context.Context, sessionID, callID, callSid, carrierStatus string) {
	s, ok := b.Load(ctx, sessionID)
	if !ok {
		return
	}
	call := s.FindCall(callID, callSid)
	if call == nil {
		return
	}
	status, known := telephony.MapStatus(carrierStatus)
	if !known || call.Status.Terminal() {
		return
	}
	if call.CallSid == "" && callSid != "" {
		call.CallSid = callSid
	}
	call.Status = status

	switch status {
	case models.CallStatusRinging:
		b.emitter.Emit(ctx, sessionID, events.TypeCallStarted, map[string]any{
			"business": call.Business.Name,
			"phone":    call.Business.Phone,
			"status":   string(models.CallStatusRinging),
		})
	case models.CallStatusConnected:
		b.emitter.Emit(ctx, sessionID, events.TypeCallConnected, map[string]any{
			"business": call.Business.Name,
			"status":   string(models.CallStatusConnected),
		})
	case models.CallStatusBusy, models.CallStatusNoAnswer, models.CallStatusFailed:
		call.Error = map[models.CallStatus]string{
			models.CallStatusBusy:     "Line busy",
			models.CallStatusNoAnswer: "No answer",
			models.CallStatusFailed:   "Call failed",
		}[status]
		b.markEnded(call)
		b.emitter.Emit(ctx, sessionID, events.TypeCallFailed, map[string]any{
			"business": call.Business.Name,
			"error":    call.Error,
		})
	case models.CallStatusComplete:
		b.markEnded(call)
	}

	if err := b.save(ctx, s); err != nil {
		slog.Error("Failed to save blitz session after status callback", "session_id", sessionID, "error", err)
	}
}

// HandleRecording stores the recording URL from the carrier's recording
// status callback. It never touches call status.
func (b *Blitz) HandleRecording(ctx context.Context, sessionID, callID, recordingURL string) {
	s, ok := b.Load(ctx, sessionID)
	if !ok {
		return
	}
	call := s.FindCall(callID, "")
	if call == nil {
		return
	}
	call.RecordingURL = recordingURL
	if err := b.save(ctx, s); err != nil {
		slog.Error("Failed to save blitz session after recording callback", "session_id", sessionID, "error", err)
	}
}

// HandleRecordingComplete finishes a call once the business's answer has
// been recorded.
func (b *Blitz) HandleRecordingComplete(ctx context.Context, sessionID, callID, recordingURL string) {
	s, ok := b.Load(ctx, sessionID)
	if !ok {
		return
	}
	call := s.FindCall(callID, "")
	if call == nil {
		return
	}
	// The carrier often delivers the completed status callback before the
	// recording callback; a COMPLETE call still accepts its recording.
	// Failure-class endings stay immutable.
	if call.Status.Terminal() && call.Status != models.CallStatusComplete {
		return
	}
	call.RecordingURL = recordingURL
	call.Result = "Response recorded - processing..."
	if call.Status != models.CallStatusComplete {
		call.Status = models.CallStatusComplete
		b.markEnded(call)
	}

	b.emitter.Emit(ctx, sessionID, events.TypeCallResult, map[string]any{
		"business": call.Business.Name,
		"status":   string(models.CallStatusComplete),
		"result":   call.Result,
	})
	if err := b.save(ctx, s); err != nil {
		slog.Error("Failed to save blitz session after recording complete", "session_id", sessionID, "error", err)
	}
}

// HandleAMD reacts to async answering-machine detection: a voicemail pickup
// hangs up immediately so the session isn't stuck listening to a greeting.
func (b *Blitz) HandleAMD(ctx context.Context, sessionID, callID, answeredBy string) {
	if !strings.HasPrefix(answeredBy, "machine") {
		return
	}
	s, ok := b.Load(ctx, sessionID)
	if !ok {
		return
	}
	call := s.FindCall(callID, "")
	if call == nil || call.Status.Terminal() {
		return
	}
	if call.CallSid != "" {
		if err := b.caller.Hangup(ctx, call.CallSid); err != nil {
			slog.Warn("Failed to hang up voicemail call", "call_sid", call.CallSid, "error", err)
		}
	}
	call.Status = models.CallStatusFailed
	call.Error = "Voicemail detected"
	b.markEnded(call)
	b.emitter.Emit(ctx, sessionID, events.TypeCallFailed, map[string]any{
		"business": call.Business.Name,
		"error":    call.Error,
	})
	if err := b.save(ctx, s); err != nil {
		slog.Error("Failed to save blitz session after AMD callback", "session_id", sessionID, "error", err)
	}
}

func (b *Blitz) markEnded(call *models.CallRecord) {
	now := time.Now().UTC()
	call.EndedAt = &now
	if call.StartedAt != nil {
		seconds := int(now.Sub(*call.StartedAt).Seconds())
		call.DurationSeconds = &seconds
	}
}

var quotePattern = regexp.MustCompile(`[£$]\s*(\d+(?:\.\d{1,2})?)`)

// ExtractQuote pulls the first currency-marked amount out of a call result.
// Bare numbers are ignored; without a currency symbol "call 3 businesses"
// would read as a £3 quote.
func ExtractQuote(text string) *float64 {
	m := quotePattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &v
}
