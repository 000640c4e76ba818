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

// Slack posts actions to a Slack incoming webhook
type Slack struct {
	webhookURL string
	client     *http.Client
}

// NewSlack creates a Slack notifier with default HTTP client
func NewSlack(webhookURL string) *Slack {
	return &Slack{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NewSlackWithClient creates a Slack notifier with custom HTTP client
func NewSlackWithClient(webhookURL string, client *http.Client) *Slack {
	return &Slack{
		webhookURL: webhookURL,
		client:     client,
	}
}

// Send posts the action to Slack
func (s *Slack) Send(ctx context.Context, a escalation.Action) error {
	emoji := ":warning:"
	if a.Kind == escalation.ActionCall {
		emoji = ":rotating_light:"
	}

	fields := []map[string]any{
		{"type": "mrkdwn", "text": fmt.Sprintf("*contact:* %s", a.Contact.DisplayName())},
		{"type": "mrkdwn", "text": fmt.Sprintf("*missed:* %d", a.MissedCount)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*session:* %s", a.SessionID)},
	}
	if a.Contact.Phone != "" {
		fields = append(fields, map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*phone:* %s", a.Contact.Phone),
		})
	}

	blocks := []map[string]any{
		{
			"type": "section",
			"text": map[string]string{
				"type": "mrkdwn",
				"text": fmt.Sprintf("*%s*\n%s", Title(a), Render(a)),
			},
		},
		{
			"type":     "context",
			"elements": fields,
		},
	}

	payload := map[string]any{
		"text":   fmt.Sprintf("%s *[%s]* %s", emoji, a.Kind, Title(a)),
		"blocks": blocks,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(resp.StatusCode, "slack webhook returned %d", resp.StatusCode)
	}
	return nil
}

// Name returns "slack"
func (s *Slack) Name() string {
	return "slack"
}
