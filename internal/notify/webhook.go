package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/RevCBH/siren/internal/escalation"
)

// WebhookPayload is the JSON structure sent to webhook endpoints
type WebhookPayload struct {
	ID          string `json:"id"`
	Session     string `json:"session"`
	Label       string `json:"label,omitempty"`
	Action      string `json:"action"`
	Reason      string `json:"reason"`
	MissedCount int    `json:"missed_count"`
	ContactID   string `json:"contact_id"`
	ContactName string `json:"contact_name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Text        string `json:"text"`
	Time        string `json:"time"`
}

// Webhook posts actions to an HTTP endpoint as JSON
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a Webhook notifier with default HTTP client
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NewWebhookWithClient creates a Webhook notifier with custom HTTP client
func NewWebhookWithClient(url string, client *http.Client) *Webhook {
	return &Webhook{
		url:    url,
		client: client,
	}
}

// Send posts the action as JSON to the webhook URL
func (w *Webhook) Send(ctx context.Context, a escalation.Action) error {
	payload := WebhookPayload{
		ID:          a.ID,
		Session:     a.SessionID,
		Label:       a.Label,
		Action:      string(a.Kind),
		Reason:      a.Reason,
		MissedCount: a.MissedCount,
		ContactID:   a.ContactID,
		ContactName: a.Contact.Name,
		Phone:       a.Contact.Phone,
		Text:        Render(a),
		Time:        a.At.UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", a.ID)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(resp.StatusCode, "webhook returned %d", resp.StatusCode)
	}
	return nil
}

// Name returns "webhook"
func (w *Webhook) Name() string {
	return "webhook"
}
