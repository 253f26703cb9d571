package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const composioBaseURL = "https://backend.composio.dev"

// ComposioConnector talks to the hosted Composio API to link and read the
// user's Gmail. Entities map one-to-one to Friendly users.
type ComposioConnector struct {
	apiKey      string
	baseURL     string
	redirectURL string
	http        *http.Client
}

// NewComposioConnector creates the Gmail connector. redirectURL is where
// Composio sends the user after OAuth completes.
func NewComposioConnector(apiKey, backendURL string) *ComposioConnector {
	return &ComposioConnector{
		apiKey:      apiKey,
		baseURL:     composioBaseURL,
		redirectURL: backendURL + "/api/inbox/auth-callback",
		http:        &http.Client{Timeout: 30 * time.Second},
	}
}

// Configured reports whether an API key is present.
func (c *ComposioConnector) Configured() bool {
	return c.apiKey != ""
}

// CheckConnection looks for an active Gmail connection for the entity. When
// none exists a fresh OAuth flow is initiated and its URL returned.
func (c *ComposioConnector) CheckConnection(ctx context.Context, entityID string) (bool, string, error) {
	if !c.Configured() {
		return false, "", fmt.Errorf("composio: COMPOSIO_API_KEY not configured")
	}

	query := url.Values{}
	query.Set("user_uuid", entityID)
	query.Set("appNames", "gmail")
	query.Set("status", "ACTIVE")

	var listResp struct {
		Items []struct {
			Status string `json:"status"`
		} `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/connectedAccounts?"+query.Encode(), nil, &listResp); err != nil {
		return false, "", err
	}
	for _, item := range listResp.Items {
		if item.Status == "ACTIVE" {
			return true, "", nil
		}
	}

	body := map[string]any{
		"appName":     "gmail",
		"entityId":    entityID,
		"redirectUri": c.redirectURL,
	}
	var initResp struct {
		RedirectURL string `json:"redirectUrl"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/connectedAccounts", body, &initResp); err != nil {
		return false, "", err
	}
	return false, initResp.RedirectURL, nil
}

// FetchEmails executes the Gmail fetch action and normalizes the result.
// Composio response shapes vary between integrations, so several key
// spellings are accepted per field.
func (c *ComposioConnector) FetchEmails(ctx context.Context, entityID, query string, maxResults int) ([]Email, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("composio: COMPOSIO_API_KEY not configured")
	}

	body := map[string]any{
		"entityId": entityID,
		"input": map[string]any{
			"query":       query,
			"max_results": maxResults,
		},
	}
	var execResp struct {
		Data struct {
			Messages []map[string]any `json:"messages"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v2/actions/GMAIL_FETCH_EMAILS/execute", body, &execResp); err != nil {
		return nil, err
	}

	emails := make([]Email, 0, len(execResp.Data.Messages))
	for _, raw := range execResp.Data.Messages {
		emails = append(emails, normalizeEmail(raw))
	}
	return emails, nil
}

func normalizeEmail(raw map[string]any) Email {
	email := Email{
		Subject:  stringField(raw, "subject", "Subject"),
		From:     stringField(raw, "sender", "from", "From"),
		Snippet:  head(stringField(raw, "snippet", "body_preview"), 200),
		Date:     stringField(raw, "date", "internalDate"),
		IsUnread: true,
	}
	if email.Subject == "" {
		email.Subject = "(no subject)"
	}
	if email.From == "" {
		email.From = "Unknown"
	}
	if unread, ok := raw["is_unread"].(bool); ok {
		email.IsUnread = unread
	}
	if labels, ok := raw["labels"].([]any); ok {
		for _, l := range labels {
			if s, ok := l.(string); ok {
				email.Labels = append(email.Labels, s)
			}
		}
	}
	return email
}

func stringField(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := raw[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func (c *ComposioConnector) do(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("composio: marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("composio: build request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("composio: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("composio: %s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("composio: decode response: %w", err)
		}
	}
	return nil
}
