// Package telephony wraps the Twilio Voice REST API: placing calls, hanging
// up, mapping carrier status strings, and rendering TwiML call-control
// documents.
package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/friendlyhq/friendly/pkg/models"
)

const apiBaseURL = "https://api.twilio.com/2010-04-01"

// PlaceOptions controls one outbound call. TwiMLURL is fetched by the
// carrier when the callee answers.
type PlaceOptions struct {
	To                      string
	TwiMLURL                string
	StatusCallback          string
	TimeoutSeconds          int // ring timeout, defaults to 45
	Record                  bool
	RecordingStatusCallback string
	MachineDetection        bool // async AMD
	AMDStatusCallback       string
}

// Caller is the consumer-side carrier interface.
type Caller interface {
	Place(ctx context.Context, opts PlaceOptions) (string, error)
	Hangup(ctx context.Context, callSID string) error
	Configured() bool
}

// Driver talks to the Twilio REST API with account-SID basic auth.
type Driver struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	http       *http.Client
}

func NewDriver(accountSID, authToken, fromNumber string) *Driver {
	return &Driver{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		baseURL:    apiBaseURL,
		http:       &http.Client{Timeout: 30 * time.Second},
	}
}

// Configured reports whether credentials and a caller number are present.
func (d *Driver) Configured() bool {
	return d.accountSID != "" && d.authToken != "" && d.fromNumber != ""
}

// ErrNotConfigured is returned by Place and Hangup when credentials are missing.
var ErrNotConfigured = fmt.Errorf("telephony: Twilio not configured")

// Place creates an outbound call and returns the carrier call SID.
func (d *Driver) Place(ctx context.Context, opts PlaceOptions) (string, error) {
	if !d.Configured() {
		return "", ErrNotConfigured
	}

	timeout := opts.TimeoutSeconds
	if timeout <= 0 {
		timeout = 45
	}

	form := url.Values{}
	form.Set("To", opts.To)
	form.Set("From", d.fromNumber)
	form.Set("Url", opts.TwiMLURL)
	form.Set("Timeout", strconv.Itoa(timeout))
	if opts.StatusCallback != "" {
		form.Set("StatusCallback", opts.StatusCallback)
		form.Set("StatusCallbackMethod", "POST")
		for _, ev := range []string{"initiated", "ringing", "answered", "completed"} {
			form.Add("StatusCallbackEvent", ev)
		}
	}
	if opts.Record {
		form.Set("Record", "true")
		if opts.RecordingStatusCallback != "" {
			form.Set("RecordingStatusCallback", opts.RecordingStatusCallback)
		}
	}
	if opts.MachineDetection {
		form.Set("MachineDetection", "Enable")
		form.Set("AsyncAmd", "true")
		if opts.AMDStatusCallback != "" {
			form.Set("AsyncAmdStatusCallback", opts.AMDStatusCallback)
			form.Set("AsyncAmdStatusCallbackMethod", "POST")
		}
	}

	var created struct {
		SID string `json:"sid"`
	}
	if err := d.post(ctx, fmt.Sprintf("/Accounts/%s/Calls.json", d.accountSID), form, &created); err != nil {
		return "", fmt.Errorf("placing call to %s: %w", opts.To, err)
	}

	slog.Info("telephony: call placed", "sid", created.SID, "to", opts.To)
	return created.SID, nil
}

// Hangup terminates a live call by forcing its status to completed.
func (d *Driver) Hangup(ctx context.Context, callSID string) error {
	if !d.Configured() {
		return ErrNotConfigured
	}

	form := url.Values{}
	form.Set("Status", "completed")
	path := fmt.Sprintf("/Accounts/%s/Calls/%s.json", d.accountSID, callSID)
	if err := d.post(ctx, path, form, nil); err != nil {
		return fmt.Errorf("hanging up %s: %w", callSID, err)
	}
	slog.Info("telephony: call hung up", "sid", callSID)
	return nil
}

func (d *Driver) post(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth(d.accountSID, d.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return fmt.Errorf("carrier status %d: %s", resp.StatusCode, body)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// twilioStatusMap is the single source of truth for mapping carrier status
// strings to internal call states. Webhook handlers go through MapStatus.
var twilioStatusMap = map[string]models.CallStatus{
	"initiated":   models.CallStatusPending,
	"ringing":     models.CallStatusRinging,
	"in-progress": models.CallStatusConnected,
	"answered":    models.CallStatusConnected,
	"completed":   models.CallStatusComplete,
	"busy":        models.CallStatusBusy,
	"no-answer":   models.CallStatusNoAnswer,
	"failed":      models.CallStatusFailed,
	"canceled":    models.CallStatusFailed,
}

// MapStatus converts a carrier status string to the internal CallStatus.
// Unknown strings report ok=false and must be ignored by callers.
func MapStatus(carrierStatus string) (models.CallStatus, bool) {
	status, ok := twilioStatusMap[strings.ToLower(strings.TrimSpace(carrierStatus))]
	return status, ok
}
