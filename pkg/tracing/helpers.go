package tracing

// Domain-specific logging helpers. All of them funnel into Log with the
// shapes the summary endpoints aggregate over.

// BlitzCall describes the outcome of one outbound quote call.
type BlitzCall struct {
	SessionID         string
	BusinessName      string
	BusinessPhone     string
	Success           bool
	Duration          float64
	IVRNavigated      bool
	QuoteReceived     *float64
	BusinessResponded bool
	ResultText        string
	Error             string
}

func (s *Store) LogBlitzCall(c BlitzCall) {
	var quote any
	if c.QuoteReceived != nil {
		quote = *c.QuoteReceived
	}
	s.Log(Trace{
		Operation:       "blitz_call",
		Success:         c.Success,
		DurationSeconds: c.Duration,
		Input: map[string]any{
			"business_name":  c.BusinessName,
			"business_phone": c.BusinessPhone,
			"session_id":     c.SessionID,
		},
		Output: map[string]any{
			"result_text":    c.ResultText,
			"quote_received": quote,
		},
		Metadata: map[string]any{
			"call_success":       c.Success,
			"call_duration":      c.Duration,
			"ivr_navigated":      c.IVRNavigated,
			"quote_received":     quote,
			"business_responded": c.BusinessResponded,
		},
		Error: c.Error,
	})
}

// BlitzSession describes the outcome of a whole fan-out session.
type BlitzSession struct {
	SessionID       string
	TotalCalls      int
	SuccessfulCalls int
	Duration        float64
	ServiceType     string
	Location        string
	BestQuote       string
}

func (s *Store) LogBlitzSession(bs BlitzSession) {
	rate := 0.0
	if bs.TotalCalls > 0 {
		rate = round3(float64(bs.SuccessfulCalls) / float64(bs.TotalCalls))
	}
	s.Log(Trace{
		Operation:       "blitz_session",
		Success:         bs.SuccessfulCalls > 0,
		DurationSeconds: bs.Duration,
		Input: map[string]any{
			"session_id":   bs.SessionID,
			"service_type": bs.ServiceType,
			"location":     bs.Location,
		},
		Output: map[string]any{
			"total_calls":      bs.TotalCalls,
			"successful_calls": bs.SuccessfulCalls,
			"success_rate":     rate,
			"best_quote":       bs.BestQuote,
		},
		Metadata: map[string]any{
			"total_calls":      bs.TotalCalls,
			"successful_calls": bs.SuccessfulCalls,
			"success_rate":     rate,
		},
	})
}

func (s *Store) LogRouterClassification(userMessage, agent string, confidence, duration float64, params map[string]any) {
	s.Log(Trace{
		Operation:       "classify_intent",
		Success:         true,
		DurationSeconds: duration,
		Input:           map[string]any{"user_message": truncate(userMessage, 200)},
		Output: map[string]any{
			"classified_agent": agent,
			"confidence":       confidence,
			"params":           params,
		},
	})
}

func (s *Store) LogChatResponse(userMessage, responseText string, duration float64, success bool, errText string) {
	s.Log(Trace{
		Operation:       "chat_response",
		Success:         success,
		DurationSeconds: duration,
		Input:           map[string]any{"user_message": truncate(userMessage, 200)},
		Output:          map[string]any{"response_preview": truncate(responseText, 200)},
		Error:           errText,
	})
}

func (s *Store) LogBusinessSearch(query, location string, resultsCount int, duration float64, usedFallback bool) {
	s.Log(Trace{
		Operation:       "business_search",
		Success:         resultsCount > 0,
		DurationSeconds: duration,
		Input:           map[string]any{"query": query, "location": location},
		Output:          map[string]any{"results_count": resultsCount, "used_fallback": usedFallback},
	})
}

func (s *Store) LogTTSGeneration(textLength int, duration float64, cacheHit, success bool, errText string) {
	s.Log(Trace{
		Operation:       "tts_generation",
		Success:         success,
		DurationSeconds: duration,
		Input:           map[string]any{"text_length": textLength},
		Output:          map[string]any{"cache_hit": cacheHit},
		Error:           errText,
	})
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
