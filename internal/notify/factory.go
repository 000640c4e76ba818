package notify

import "fmt"

// Config holds notifier configuration
type Config struct {
	Backends     []string
	SlackWebhook string
	WebhookURL   string
	Twilio       TwilioConfig

	// Retry applies to network backends; MaxAttempts <= 1 disables retries
	Retry RetryConfig
}

// FromConfig creates a Notifier from configuration
func FromConfig(cfg Config) (Notifier, error) {
	var notifiers []Notifier

	for _, backend := range cfg.Backends {
		switch backend {
		case "terminal":
			notifiers = append(notifiers, NewTerminal())
		case "slack":
			if cfg.SlackWebhook == "" {
				return nil, fmt.Errorf("slack backend requires webhook URL")
			}
			notifiers = append(notifiers, withRetry(NewSlack(cfg.SlackWebhook), cfg.Retry))
		case "webhook":
			if cfg.WebhookURL == "" {
				return nil, fmt.Errorf("webhook backend requires URL")
			}
			notifiers = append(notifiers, withRetry(NewWebhook(cfg.WebhookURL), cfg.Retry))
		case "twilio":
			if cfg.Twilio.AccountSID == "" || cfg.Twilio.AuthToken == "" || cfg.Twilio.From == "" {
				return nil, fmt.Errorf("twilio backend requires account SID, auth token and from number")
			}
			notifiers = append(notifiers, withRetry(NewTwilio(cfg.Twilio), cfg.Retry))
		default:
			return nil, fmt.Errorf("unknown notifier backend: %s", backend)
		}
	}

	if len(notifiers) == 0 {
		return NewTerminal(), nil
	}

	if len(notifiers) == 1 {
		return notifiers[0], nil
	}

	return NewMulti(notifiers...), nil
}

func withRetry(n Notifier, cfg RetryConfig) Notifier {
	if cfg.MaxAttempts <= 1 {
		return n
	}
	return NewRetrying(n, cfg)
}
