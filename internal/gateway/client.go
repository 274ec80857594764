package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the production gateway endpoint.
const DefaultBaseURL = "https://bizchatapi.in/api"

// reserved recipient keys that never become payload fields.
var reservedFields = map[string]bool{
	"phone":             true,
	"name":              true,
	"template_language": true,
}

// Client sends templated WhatsApp messages through the gateway HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a gateway client. baseURL may be empty to use the
// production endpoint, timeout zero for the 30 second default.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SendTemplate delivers one templated message. Delivery failures (bad
// status, timeout, connection faults) are returned inside Result, never
// as an error, so callers can proceed to the next recipient
// unconditionally. The error return covers programmer mistakes only.
func (c *Client) SendTemplate(ctx context.Context, creds Credentials, msg Message) (Result, error) {
	if creds.Token == "" || creds.VendorUID == "" {
		return Result{}, fmt.Errorf("gateway credentials not configured")
	}

	payload := map[string]any{
		"phone_number":      dialableDigits(msg.Phone),
		"template_name":     msg.TemplateName,
		"template_language": msg.Language,
	}
	if lang, ok := msg.Fields["template_language"]; ok && lang != "" {
		payload["template_language"] = lang
	}
	for k, v := range msg.Fields {
		if !reservedFields[k] {
			payload[k] = v
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/contact/send-template-message?token=%s",
		c.baseURL, url.PathEscape(creds.VendorUID), url.QueryEscape(creds.Token))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{OK: false, Error: err.Error()}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{OK: false, Error: fmt.Sprintf("read response: %v", err)}, nil
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Result{OK: false, Error: errorText(resp.StatusCode, body)}, nil
	}

	var sr sendResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return Result{OK: false, Error: fmt.Sprintf("HTTP %d: unparseable response body", resp.StatusCode)}, nil
	}

	return Result{OK: true, MessageID: sr.MessageID}, nil
}

// dialableDigits strips the + prefix and separators; the gateway expects
// bare digits.
func dialableDigits(phone string) string {
	r := strings.NewReplacer("+", "", "-", "", " ", "")
	return r.Replace(phone)
}

func errorText(status int, body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return fmt.Sprintf("HTTP %d", status)
	}
	if len(text) > 500 {
		text = text[:500]
	}
	return fmt.Sprintf("HTTP %d: %s", status, text)
}
