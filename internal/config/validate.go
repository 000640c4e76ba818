package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"
)

// ValidationError contains details about what failed validation.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config.%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// validateConfig checks all config values for validity.
// Returns nil if valid, or joined errors for all validation failures.
func validateConfig(cfg *Config) error {
	var errs []error

	errs = append(errs, validateEscalation("checkin", cfg.CheckIn.EscalationConfig, true)...)
	errs = append(errs, validateEscalation("shake", cfg.Shake.EscalationConfig, false)...)
	errs = append(errs, validateEscalation("voice", cfg.Voice.EscalationConfig, false)...)

	// Shake.Sensitivity must be positive
	if cfg.Shake.Sensitivity <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "shake.sensitivity",
			Value:   cfg.Shake.Sensitivity,
			Message: "must be positive",
		})
	}

	// Shake.Window must be >= 1
	if cfg.Shake.Window < 1 {
		errs = append(errs, &ValidationError{
			Field:   "shake.window",
			Value:   cfg.Shake.Window,
			Message: "must be at least 1",
		})
	}

	// Voice.Sensitivity is a percentage
	if cfg.Voice.Sensitivity < 0 || cfg.Voice.Sensitivity > 100 {
		errs = append(errs, &ValidationError{
			Field:   "voice.sensitivity",
			Value:   cfg.Voice.Sensitivity,
			Message: "must be between 0 and 100",
		})
	}

	if !hasWord(cfg.Voice.Phrase) {
		errs = append(errs, &ValidationError{
			Field:   "voice.phrase",
			Value:   cfg.Voice.Phrase,
			Message: "must contain at least one word",
		})
	}

	// Contacts[].ID must be set and unique, priority non-negative
	seen := make(map[string]bool)
	for i, c := range cfg.Contacts {
		if c.ID == "" {
			errs = append(errs, &ValidationError{
				Field:   fmt.Sprintf("contacts[%d].id", i),
				Value:   c.ID,
				Message: "must not be empty",
			})
		} else if seen[c.ID] {
			errs = append(errs, &ValidationError{
				Field:   fmt.Sprintf("contacts[%d].id", i),
				Value:   c.ID,
				Message: "must be unique",
			})
		}
		seen[c.ID] = true
		if c.Priority < 0 {
			errs = append(errs, &ValidationError{
				Field:   fmt.Sprintf("contacts[%d].priority", i),
				Value:   c.Priority,
				Message: "must be non-negative (0 = unset)",
			})
		}
	}

	if cfg.ContactsBackend.URL != "" {
		if u, err := url.Parse(cfg.ContactsBackend.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, &ValidationError{
				Field:   "contacts_backend.url",
				Value:   cfg.ContactsBackend.URL,
				Message: "must be an absolute URL",
			})
		}
	}
	errs = append(errs, validateDuration("contacts_backend.timeout", cfg.ContactsBackend.Timeout, false)...)

	// Notify.Backends must be known
	validBackends := map[string]bool{
		"terminal": true,
		"slack":    true,
		"webhook":  true,
		"twilio":   true,
	}
	for i, b := range cfg.Notify.Backends {
		if !validBackends[b] {
			errs = append(errs, &ValidationError{
				Field:   fmt.Sprintf("notify.backends[%d]", i),
				Value:   b,
				Message: "must be one of: terminal, slack, webhook, twilio",
			})
		}
	}
	errs = append(errs, validateDuration("notify.send_timeout", cfg.Notify.SendTimeout, false)...)
	errs = append(errs, validateDuration("notify.retry.initial_backoff", cfg.Notify.Retry.InitialBackoff, true)...)
	errs = append(errs, validateDuration("notify.retry.max_backoff", cfg.Notify.Retry.MaxBackoff, true)...)
	if cfg.Notify.Retry.MaxAttempts < 0 {
		errs = append(errs, &ValidationError{
			Field:   "notify.retry.max_attempts",
			Value:   cfg.Notify.Retry.MaxAttempts,
			Message: "must be non-negative",
		})
	}

	if cfg.Daemon.Socket == "" {
		errs = append(errs, &ValidationError{
			Field:   "daemon.socket",
			Value:   cfg.Daemon.Socket,
			Message: "must not be empty",
		})
	}
	if cfg.Daemon.DBPath == "" {
		errs = append(errs, &ValidationError{
			Field:   "daemon.db_path",
			Value:   cfg.Daemon.DBPath,
			Message: "must not be empty",
		})
	}
	if cfg.Daemon.EventBuffer < 1 {
		errs = append(errs, &ValidationError{
			Field:   "daemon.event_buffer",
			Value:   cfg.Daemon.EventBuffer,
			Message: "must be at least 1",
		})
	}
	errs = append(errs, validateDuration("daemon.prune_after", cfg.Daemon.PruneAfter, false)...)
	errs = append(errs, validateDuration("daemon.history_retention", cfg.Daemon.HistoryRetention, false)...)

	// LogLevel must be one of: debug, info, warn, error (case-sensitive)
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, &ValidationError{
			Field:   "log_level",
			Value:   cfg.LogLevel,
			Message: "must be one of: debug, info, warn, error",
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func validateEscalation(prefix string, e EscalationConfig, needInterval bool) []error {
	var errs []error

	errs = append(errs, validateDuration(prefix+".interval", e.Interval, true)...)
	if needInterval {
		if d, err := time.ParseDuration(e.Interval); err == nil && d <= 0 {
			errs = append(errs, &ValidationError{
				Field:   prefix + ".interval",
				Value:   e.Interval,
				Message: "must be positive",
			})
		}
	}
	errs = append(errs, validateDuration(prefix+".timeout", e.Timeout, false)...)
	errs = append(errs, validateDuration(prefix+".refractory", e.Refractory, true)...)

	if e.MessageThreshold < 1 {
		errs = append(errs, &ValidationError{
			Field:   prefix + ".message_threshold",
			Value:   e.MessageThreshold,
			Message: "must be at least 1",
		})
	}
	if e.CallThreshold < 1 {
		errs = append(errs, &ValidationError{
			Field:   prefix + ".call_threshold",
			Value:   e.CallThreshold,
			Message: "must be at least 1",
		})
	}
	return errs
}

// validateDuration checks a Go duration string; zero is rejected unless allowZero
func validateDuration(field, value string, allowZero bool) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{&ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("invalid duration: %v", err),
		}}
	}
	if d < 0 || (d == 0 && !allowZero) {
		return []error{&ValidationError{
			Field:   field,
			Value:   value,
			Message: "must be positive",
		}}
	}
	return nil
}

// hasWord reports whether s contains a letter or digit
func hasWord(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}
