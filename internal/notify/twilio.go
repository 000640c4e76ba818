package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/RevCBH/siren/internal/escalation"
)

// DefaultTwilioBaseURL is the Twilio REST API root
const DefaultTwilioBaseURL = "https://api.twilio.com"

// TwilioConfig holds credentials for a Twilio-compatible telephony API
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string

	// BaseURL overrides the API root (default: https://api.twilio.com)
	BaseURL string

	// Voice is the TwiML <Say> voice (default: alice)
	Voice string
}

// Twilio sends SMS for Message actions and places voice calls for Call actions
type Twilio struct {
	cfg    TwilioConfig
	client *http.Client
}

// NewTwilio creates a Twilio notifier with default HTTP client
func NewTwilio(cfg TwilioConfig) *Twilio {
	return NewTwilioWithClient(cfg, &http.Client{Timeout: 15 * time.Second})
}

// NewTwilioWithClient creates a Twilio notifier with custom HTTP client
func NewTwilioWithClient(cfg TwilioConfig, client *http.Client) *Twilio {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTwilioBaseURL
	}
	if cfg.Voice == "" {
		cfg.Voice = "alice"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Twilio{cfg: cfg, client: client}
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send creates a message or call resource for the action's contact
func (t *Twilio) Send(ctx context.Context, a escalation.Action) error {
	if a.Contact.Phone == "" {
		return fmt.Errorf("twilio: contact %s has no phone number", a.ContactID)
	}

	form := url.Values{}
	form.Set("To", a.Contact.Phone)
	form.Set("From", t.cfg.From)

	resource := "Messages"
	switch a.Kind {
	case escalation.ActionCall:
		resource = "Calls"
		twiml, err := t.twiml(Render(a))
		if err != nil {
			return err
		}
		form.Set("Twiml", twiml)
	default:
		form.Set("Body", Render(a))
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/%s.json",
		t.cfg.BaseURL, url.PathEscape(t.cfg.AccountSID), resource)

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create twilio request: %w", err)
	}
	req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("twilio request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var te twilioError
		if json.Unmarshal(body, &te) == nil && te.Message != "" {
			return statusError(resp.StatusCode, "twilio %s returned %d: %s (code %d)", strings.ToLower(resource), resp.StatusCode, te.Message, te.Code)
		}
		return statusError(resp.StatusCode, "twilio %s returned %d", strings.ToLower(resource), resp.StatusCode)
	}
	return nil
}

func (t *Twilio) twiml(text string) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(`<Response><Say voice="`)
	if err := xml.EscapeText(&buf, []byte(t.cfg.Voice)); err != nil {
		return "", fmt.Errorf("build twiml: %w", err)
	}
	buf.WriteString(`" loop="2">`)
	if err := xml.EscapeText(&buf, []byte(text)); err != nil {
		return "", fmt.Errorf("build twiml: %w", err)
	}
	buf.WriteString(`</Say></Response>`)
	return buf.String(), nil
}

// Name returns "twilio"
func (t *Twilio) Name() string {
	return "twilio"
}
