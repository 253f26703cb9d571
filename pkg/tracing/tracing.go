// Package tracing keeps a bounded in-memory ring of structured operation
// outcomes with cached aggregations. Traces are mirrored to Redis so they
// survive restarts; every write path is fire-and-forget and never surfaces
// an error to the caller.
package tracing

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/friendlyhq/friendly/pkg/store"
)

// MaxTraces bounds the in-memory ring.
const MaxTraces = 500

// Trace is one recorded operation outcome.
type Trace struct {
	Operation       string         `json:"operation"`
	Timestamp       string         `json:"timestamp"`
	Success         bool           `json:"success"`
	DurationSeconds float64        `json:"duration_seconds"`
	Input           map[string]any `json:"input"`
	Output          map[string]any `json:"output"`
	Metadata        map[string]any `json:"metadata"`
	Error           string         `json:"error,omitempty"`
}

// Store is the trace ring. A nil persist store disables Redis mirroring.
type Store struct {
	mu      sync.Mutex
	traces  []Trace
	summary map[string]any // invalidated on every write

	persist *store.Store
	wg      sync.WaitGroup
}

func New(persist *store.Store) *Store {
	return &Store{persist: persist}
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

// Log records one trace. Nil maps are normalized to empty so aggregation
// code can index them freely.
func (s *Store) Log(t Trace) {
	if t.Input == nil {
		t.Input = map[string]any{}
	}
	if t.Output == nil {
		t.Output = map[string]any{}
	}
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	t.DurationSeconds = round3(t.DurationSeconds)
	t.Timestamp = time.Now().UTC().Format(time.RFC3339)

	s.mu.Lock()
	s.summary = nil
	s.traces = append(s.traces, t)
	if len(s.traces) > MaxTraces {
		s.traces = s.traces[len(s.traces)-MaxTraces:]
	}
	s.mu.Unlock()

	if s.persist != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.persistOne(t)
		}()
	}
}

func (s *Store) persistOne(t Trace) {
	raw, err := json.Marshal(t)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.persist.PersistTraces(ctx, []json.RawMessage{raw}); err != nil {
		slog.Debug("tracing: failed to persist trace", "error", err)
	}
}

// Hydrate loads persisted traces on startup, oldest first.
func (s *Store) Hydrate(ctx context.Context) {
	if s.persist == nil {
		return
	}
	raws, err := s.persist.LoadTraces(ctx, MaxTraces)
	if err != nil {
		slog.Warn("tracing: failed to load persisted traces", "error", err)
		return
	}
	if len(raws) == 0 {
		return
	}

	// Persisted newest-first; reverse for chronological order.
	var loaded []Trace
	for i := len(raws) - 1; i >= 0; i-- {
		var t Trace
		if err := json.Unmarshal(raws[i], &t); err != nil {
			continue
		}
		loaded = append(loaded, t)
	}

	s.mu.Lock()
	s.traces = loaded
	s.summary = nil
	s.mu.Unlock()
	slog.Info("tracing: hydrated traces", "count", len(loaded))
}

// Close waits briefly for in-flight persists.
func (s *Store) Close() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		slog.Warn("tracing: timed out waiting for trace persistence")
	}
}

// RecentTraces returns the last limit traces, optionally filtered by
// operation.
func (s *Store) RecentTraces(operation string, limit int) []Trace {
	if limit <= 0 {
		limit = 20
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var filtered []Trace
	for _, t := range s.traces {
		if operation == "" || t.Operation == operation {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	out := make([]Trace, len(filtered))
	copy(out, filtered)
	return out
}

// PerformanceSummary aggregates per-operation counts and durations, with
// extra insight for outbound quote calls. The result is cached until the
// next write.
func (s *Store) PerformanceSummary() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.summary != nil {
		return s.summary
	}
	if len(s.traces) == 0 {
		s.summary = map[string]any{"total_traces": 0, "message": "No traces yet"}
		return s.summary
	}

	ops := map[string][]Trace{}
	for _, t := range s.traces {
		ops[t.Operation] = append(ops[t.Operation], t)
	}

	operations := map[string]any{}
	for name, traces := range ops {
		total := len(traces)
		successes := 0
		var durations []float64
		for _, t := range traces {
			if t.Success {
				successes++
			}
			if t.DurationSeconds > 0 {
				durations = append(durations, t.DurationSeconds)
			}
		}

		opSummary := map[string]any{
			"total":        total,
			"successes":    successes,
			"failures":     total - successes,
			"success_rate": round3(float64(successes) / float64(total)),
		}
		if len(durations) > 0 {
			sum, minD, maxD := 0.0, durations[0], durations[0]
			for _, d := range durations {
				sum += d
				if d < minD {
					minD = d
				}
				if d > maxD {
					maxD = d
				}
			}
			opSummary["avg_duration"] = round3(sum / float64(len(durations)))
			opSummary["min_duration"] = round3(minD)
			opSummary["max_duration"] = round3(maxD)
		}
		operations[name] = opSummary
	}

	summary := map[string]any{
		"total_traces": len(s.traces),
		"operations":   operations,
	}

	if calls := ops["blitz_call"]; len(calls) > 0 {
		answered, quotes := 0, 0
		var fast, slow []Trace
		for _, t := range calls {
			if responded, _ := t.Metadata["business_responded"].(bool); responded {
				answered++
			}
			if t.Metadata["quote_received"] != nil {
				quotes++
			}
			if t.DurationSeconds <= 10 {
				fast = append(fast, t)
			} else {
				slow = append(slow, t)
			}
		}
		insights := map[string]any{
			"total_calls":          len(calls),
			"businesses_responded": answered,
			"quotes_received":      quotes,
			"response_rate":        round3(float64(answered) / float64(len(calls))),
			"quote_rate":           round3(float64(quotes) / float64(len(calls))),
		}
		if len(fast) > 0 {
			insights["fast_answer_success_rate"] = round3(successRate(fast))
		}
		if len(slow) > 0 {
			insights["slow_answer_success_rate"] = round3(successRate(slow))
		}
		summary["blitz_insights"] = insights
	}

	s.summary = summary
	return summary
}

func successRate(traces []Trace) float64 {
	successes := 0
	for _, t := range traces {
		if t.Success {
			successes++
		}
	}
	return float64(successes) / float64(len(traces))
}

// ImprovementData compares early versus recent quote-call sessions to show
// whether outcomes are trending better.
func (s *Store) ImprovementData() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.traces) < 2 {
		return map[string]any{"message": "Not enough data for improvement analysis"}
	}

	var sessions []Trace
	for _, t := range s.traces {
		if t.Operation == "blitz_session" {
			sessions = append(sessions, t)
		}
	}
	if len(sessions) < 2 {
		return map[string]any{"message": "Not enough blitz sessions for improvement analysis"}
	}

	mid := len(sessions) / 2
	early := bucketStats(sessions[:mid])
	recent := bucketStats(sessions[mid:])

	rateChange := recent["avg_session_success_rate"].(float64) - early["avg_session_success_rate"].(float64)
	durationChange := early["avg_duration"].(float64) - recent["avg_duration"].(float64)

	return map[string]any{
		"early_sessions":  early,
		"recent_sessions": recent,
		"improvement": map[string]any{
			"success_rate_change":        round3(rateChange),
			"duration_reduction_seconds": round3(durationChange),
			"improving":                  rateChange > 0 || durationChange > 0,
		},
		"total_sessions_analyzed": len(sessions),
	}
}

func bucketStats(bucket []Trace) map[string]any {
	successes := 0
	var durations, rates []float64
	for _, t := range bucket {
		if t.Success {
			successes++
		}
		if t.DurationSeconds > 0 {
			durations = append(durations, t.DurationSeconds)
		}
		rate, _ := t.Output["success_rate"].(float64)
		rates = append(rates, rate)
	}

	avgRate, avgDuration := 0.0, 0.0
	if len(rates) > 0 {
		sum := 0.0
		for _, r := range rates {
			sum += r
		}
		avgRate = round3(sum / float64(len(rates)))
	}
	if len(durations) > 0 {
		sum := 0.0
		for _, d := range durations {
			sum += d
		}
		avgDuration = round3(sum / float64(len(durations)))
	}

	return map[string]any{
		"sessions":                 len(bucket),
		"successes":                successes,
		"avg_session_success_rate": avgRate,
		"avg_duration":             avgDuration,
	}
}
