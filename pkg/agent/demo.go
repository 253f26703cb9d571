package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/friendlyhq/friendly/pkg/events"
	"github.com/friendlyhq/friendly/pkg/models"
	"github.com/friendlyhq/friendly/pkg/store"
)

// demoBusinesses back the scripted demo workflow.
var demoBusinesses = []models.Business{
	{ID: "demo_1", Name: "Pimlico Plumbers", Phone: "+442078331111", Address: "1 Sail Street, London SE11 6NQ", Rating: 4.8},
	{ID: "demo_2", Name: "Mr. Plumber London", Phone: "+442072230987", Address: "15 High Street, London EC1V 9JX", Rating: 4.5},
	{ID: "demo_3", Name: "HomeServe UK", Phone: "+443301238888", Address: "Cable Drive, Walsall WS2 7BN", Rating: 4.2},
}

// demoResults line up with demoBusinesses; an empty string means no answer.
var demoResults = []string{
	"Available tomorrow 2pm, £95 call-out fee + parts",
	"Can come today after 5pm, £85 call-out fee",
	"",
}

// Demo simulates the full blitz workflow without touching any external
// service, with realistic pacing. Used for reliable presentations.
type Demo struct {
	store   SessionStore
	emitter *events.Emitter

	// delayUnit scales all pacing sleeps; tests set it to zero.
	delayUnit time.Duration
}

// NewDemo wires the scripted demo workflow.
func NewDemo(st SessionStore, emitter *events.Emitter) *Demo {
	return &Demo{store: st, emitter: emitter, delayUnit: time.Second}
}

// Run simulates a blitz session end to end.
func (d *Demo) Run(ctx context.Context, s *models.BlitzSession) {
	service := s.ParsedParams.Service
	if service == "" {
		service = "plumber"
	}

	d.save(ctx, s)
	d.emitter.Emit(ctx, s.ID, events.TypeStatus, map[string]any{
		"status":  string(models.SessionSearching),
		"message": fmt.Sprintf("Finding %ss near you...", service),
	})
	d.sleep(ctx, 1.5)

	s.Businesses = demoBusinesses
	for _, biz := range s.Businesses {
		s.Calls = append(s.Calls, models.NewCallRecord(biz))
	}

	s.Status = models.SessionCalling
	d.emitter.Emit(ctx, s.ID, events.TypeStatus, map[string]any{
		"status":     string(models.SessionCalling),
		"message":    fmt.Sprintf("Calling %d businesses...", len(s.Businesses)),
		"businesses": s.Businesses,
	})

	for i := range s.Calls {
		call := &s.Calls[i]
		result := demoResults[i]
		d.sleep(ctx, 0.5)

		now := time.Now().UTC()
		call.Status = models.CallStatusRinging
		call.StartedAt = &now
		d.emitter.Emit(ctx, s.ID, events.TypeCallStarted, map[string]any{
			"business": call.Business.Name,
			"phone":    call.Business.Phone,
			"status":   string(models.CallStatusRinging),
		})
		d.sleep(ctx, 1.5+float64(i)*0.5)

		if result == "" {
			ended := time.Now().UTC()
			call.Status = models.CallStatusNoAnswer
			call.EndedAt = &ended
			d.emitter.Emit(ctx, s.ID, events.TypeCallFailed, map[string]any{
				"business": call.Business.Name,
				"error":    "No answer",
			})
			continue
		}

		call.Status = models.CallStatusConnected
		d.emitter.Emit(ctx, s.ID, events.TypeCallConnected, map[string]any{
			"business": call.Business.Name,
			"status":   string(models.CallStatusConnected),
		})
		d.sleep(ctx, 2)

		ended := time.Now().UTC()
		call.Status = models.CallStatusComplete
		call.Result = result
		call.EndedAt = &ended
		d.emitter.Emit(ctx, s.ID, events.TypeCallResult, map[string]any{
			"business": call.Business.Name,
			"status":   string(models.CallStatusComplete),
			"result":   result,
		})
	}

	now := time.Now().UTC()
	s.Status = models.SessionComplete
	s.CompletedAt = &now

	var lines []string
	successful := 0
	for _, call := range s.Calls {
		if call.Status == models.CallStatusComplete {
			successful++
			lines = append(lines, fmt.Sprintf("- %s: %s", call.Business.Name, call.Result))
		}
	}
	s.Summary = fmt.Sprintf("Found %d %ss available:\n\n%s", successful, service, strings.Join(lines, "\n"))

	d.sleep(ctx, 0.5)
	results := make([]map[string]any, 0, len(s.Calls))
	for _, call := range s.Calls {
		results = append(results, map[string]any{
			"business": call.Business.Name,
			"status":   string(call.Status),
			"result":   call.Result,
		})
	}
	d.emitter.Emit(ctx, s.ID, events.TypeSessionComplete, map[string]any{
		"summary": s.Summary,
		"results": results,
	})
	d.save(ctx, s)
}

func (d *Demo) sleep(ctx context.Context, units float64) {
	delay := time.Duration(units * float64(d.delayUnit))
	if delay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func (d *Demo) save(ctx context.Context, s *models.BlitzSession) {
	if err := d.store.Save(ctx, store.KindSession, s.ID, s, store.SessionTTL); err != nil {
		slog.Error("Failed to save demo session", "session_id", s.ID, "error", err)
	}
}
