// Package whatsapp talks to the third-party WhatsApp message relay.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotConfigured is returned by Send when no relay URL was configured.
var ErrNotConfigured = fmt.Errorf("whatsapp relay is not configured")

const maxResponseBody = 64 << 10

// Client is a client for the WhatsApp relay API.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a relay client. Every call is bounded by timeout.
func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   strings.TrimSpace(endpoint),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	APIKey  string `json:"api_key"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type sendResponse struct {
	Success   *bool  `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NormalizePhone strips every non-digit character from phone.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Send delivers message to phone. Transport failures, non-2xx statuses,
// unreadable bodies and relay-reported failures all come back as an error.
// There is no retry.
func (c *Client) Send(ctx context.Context, phone, message string) error {
	if c.endpoint == "" {
		return ErrNotConfigured
	}

	digits := NormalizePhone(phone)
	if digits == "" {
		return fmt.Errorf("phone number %q has no digits", phone)
	}

	body, err := json.Marshal(sendRequest{APIKey: c.apiKey, Phone: digits, Message: message})
	if err != nil {
		return fmt.Errorf("failed to marshal relay payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach whatsapp relay: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("failed to read relay response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("whatsapp relay returned status %d", resp.StatusCode)
	}

	var result sendResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("malformed relay response: %w", err)
	}
	if result.Success == nil {
		return fmt.Errorf("malformed relay response: missing success flag")
	}
	if !*result.Success {
		if result.Error == "" {
			result.Error = "unknown error"
		}
		return fmt.Errorf("whatsapp relay rejected message: %s", result.Error)
	}
	return nil
}
