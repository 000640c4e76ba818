package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/RevCBH/siren/internal/escalation"
	"github.com/RevCBH/siren/internal/notify"
)

// FileName is the config file looked up in the Siren home directory
const FileName = "siren.yaml"

// Config holds all configuration for the Siren daemon and CLI.
// It is immutable after creation via LoadConfig(); a reload produces a new value.
type Config struct {
	// Home is the directory the config was loaded from (not serialized)
	Home string `yaml:"-"`

	// CheckIn contains defaults for scheduled check-in sessions
	CheckIn CheckInConfig `yaml:"checkin"`

	// Shake contains defaults for shake-watch sessions
	Shake ShakeConfig `yaml:"shake"`

	// Voice contains defaults for voice-watch sessions
	Voice VoiceConfig `yaml:"voice"`

	// Contacts are the emergency contacts used when a session names none
	Contacts []escalation.Contact `yaml:"contacts"`

	// ContactsBackend is an optional HTTP/JSON contacts service
	ContactsBackend ContactsBackendConfig `yaml:"contacts_backend"`

	// Notify selects and configures notifier backends
	Notify NotifyConfig `yaml:"notify"`

	// Daemon contains daemon process settings
	Daemon DaemonConfig `yaml:"daemon"`

	// LogLevel controls log verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level"`
}

// EscalationConfig holds the timings shared by every session mode.
// Durations are Go duration strings.
type EscalationConfig struct {
	// Interval is the quiet period before a check-in is due ("0s" disables it)
	Interval string `yaml:"interval"`

	// Timeout is the grace period to acknowledge once a check-in is due
	Timeout string `yaml:"timeout"`

	// Refractory is the minimum spacing between accepted sensor triggers
	Refractory string `yaml:"refractory"`

	MessageThreshold int `yaml:"message_threshold"`
	CallThreshold    int `yaml:"call_threshold"`
}

// CheckInConfig configures scheduled check-in sessions
type CheckInConfig struct {
	EscalationConfig `yaml:",inline"`
}

// ShakeConfig configures shake-watch sessions
type ShakeConfig struct {
	EscalationConfig `yaml:",inline"`

	// Sensitivity is the acceleration magnitude (m/s²) a shake must exceed
	Sensitivity float64 `yaml:"sensitivity"`

	// Window is how many previous samples form the rolling average
	Window int `yaml:"window"`
}

// VoiceConfig configures voice-watch sessions
type VoiceConfig struct {
	EscalationConfig `yaml:",inline"`

	// Phrase is the safety phrase to listen for
	Phrase string `yaml:"phrase"`

	// Sensitivity is the minimum recognizer confidence in percent
	Sensitivity float64 `yaml:"sensitivity"`
}

// ContactsBackendConfig points at the Auth/Contacts service
type ContactsBackendConfig struct {
	// URL returns the contact list as JSON; empty disables the backend
	URL string `yaml:"url"`

	// Token is sent as a bearer token
	Token string `yaml:"token"`

	// Timeout bounds one request
	Timeout string `yaml:"timeout"`
}

// NotifyConfig configures notifier backends
type NotifyConfig struct {
	// Backends lists active backends: terminal, slack, webhook, twilio
	Backends []string `yaml:"backends"`

	SlackWebhook string       `yaml:"slack_webhook"`
	WebhookURL   string       `yaml:"webhook_url"`
	Twilio       TwilioConfig `yaml:"twilio"`
	Retry        RetryConfig  `yaml:"retry"`

	// SendTimeout bounds a single delivery attempt chain
	SendTimeout string `yaml:"send_timeout"`
}

// TwilioConfig holds telephony credentials
type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	From       string `yaml:"from"`
	BaseURL    string `yaml:"base_url,omitempty"`
}

// RetryConfig controls notifier retries
type RetryConfig struct {
	MaxAttempts    int    `yaml:"max_attempts"`
	InitialBackoff string `yaml:"initial_backoff"`
	MaxBackoff     string `yaml:"max_backoff"`
}

// DaemonConfig holds daemon process settings. Relative paths resolve
// against the Siren home directory.
type DaemonConfig struct {
	Socket  string `yaml:"socket"`
	PIDFile string `yaml:"pid_file"`
	DBPath  string `yaml:"db_path"`

	// WebAddr is the HTTP API listen address; empty disables the web server
	WebAddr string `yaml:"web_addr"`

	// EventBuffer is the event bus capacity
	EventBuffer int `yaml:"event_buffer"`

	// PruneAfter is how long finished sessions stay in memory
	PruneAfter string `yaml:"prune_after"`

	// HistoryRetention is how long finished sessions stay in the database
	HistoryRetention string `yaml:"history_retention"`
}

// Durations parses the escalation timings
func (e EscalationConfig) Durations() (interval, timeout, refractory time.Duration, err error) {
	if interval, err = time.ParseDuration(e.Interval); err != nil {
		return 0, 0, 0, fmt.Errorf("interval: %w", err)
	}
	if timeout, err = time.ParseDuration(e.Timeout); err != nil {
		return 0, 0, 0, fmt.Errorf("timeout: %w", err)
	}
	if refractory, err = time.ParseDuration(e.Refractory); err != nil {
		return 0, 0, 0, fmt.Errorf("refractory: %w", err)
	}
	return interval, timeout, refractory, nil
}

// Escalation returns the timings configured for a mode
func (c *Config) Escalation(mode escalation.Mode) EscalationConfig {
	switch mode {
	case escalation.ModeShakeWatch:
		return c.Shake.EscalationConfig
	case escalation.ModeVoiceWatch:
		return c.Voice.EscalationConfig
	}
	return c.CheckIn.EscalationConfig
}

// SessionConfig builds an engine session config for mode from the configured
// defaults. Contacts are left for the caller to resolve.
func (c *Config) SessionConfig(mode escalation.Mode) (escalation.SessionConfig, error) {
	e := c.Escalation(mode)
	interval, timeout, refractory, err := e.Durations()
	if err != nil {
		return escalation.SessionConfig{}, fmt.Errorf("%s: %w", mode, err)
	}
	return escalation.SessionConfig{
		Mode:             mode,
		Interval:         interval,
		CheckInTimeout:   timeout,
		Refractory:       refractory,
		MessageThreshold: e.MessageThreshold,
		CallThreshold:    e.CallThreshold,
	}, nil
}

// NotifierConfig converts the notify section for notify.FromConfig
func (c *Config) NotifierConfig() notify.Config {
	retry := notify.RetryConfig{
		MaxAttempts:     c.Notify.Retry.MaxAttempts,
		InitialBackoff:  notify.DefaultRetryConfig.InitialBackoff,
		MaxBackoff:      notify.DefaultRetryConfig.MaxBackoff,
		BackoffMultiply: notify.DefaultRetryConfig.BackoffMultiply,
	}
	if d, err := time.ParseDuration(c.Notify.Retry.InitialBackoff); err == nil {
		retry.InitialBackoff = d
	}
	if d, err := time.ParseDuration(c.Notify.Retry.MaxBackoff); err == nil {
		retry.MaxBackoff = d
	}

	return notify.Config{
		Backends:     c.Notify.Backends,
		SlackWebhook: c.Notify.SlackWebhook,
		WebhookURL:   c.Notify.WebhookURL,
		Twilio: notify.TwilioConfig{
			AccountSID: c.Notify.Twilio.AccountSID,
			AuthToken:  c.Notify.Twilio.AuthToken,
			From:       c.Notify.Twilio.From,
			BaseURL:    c.Notify.Twilio.BaseURL,
		},
		Retry: retry,
	}
}

// SendTimeoutDuration returns the notifier send timeout as a Duration.
func (c *Config) SendTimeoutDuration() (time.Duration, error) {
	return time.ParseDuration(c.Notify.SendTimeout)
}

// ContactsTimeoutDuration returns the contacts backend timeout as a Duration.
func (c *Config) ContactsTimeoutDuration() (time.Duration, error) {
	return time.ParseDuration(c.ContactsBackend.Timeout)
}

// PruneAfterDuration returns the retention for finished sessions as a Duration.
func (c *Config) PruneAfterDuration() (time.Duration, error) {
	return time.ParseDuration(c.Daemon.PruneAfter)
}

// HistoryRetentionDuration returns the database retention for finished sessions.
func (c *Config) HistoryRetentionDuration() (time.Duration, error) {
	return time.ParseDuration(c.Daemon.HistoryRetention)
}

// DefaultHome returns the Siren home directory: $SIREN_HOME or ~/.siren
func DefaultHome() (string, error) {
	if home := os.Getenv("SIREN_HOME"); home != "" {
		return home, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(userHome, ".siren"), nil
}

// Path returns the config file path inside home
func Path(home string) string {
	return filepath.Join(home, FileName)
}

// LoadConfig loads configuration from home/siren.yaml, applying defaults,
// .env files, environment overrides and validation in that order.
// A missing config file is not an error.
func LoadConfig(home string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Home = home

	data, err := os.ReadFile(Path(home))
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := LoadDotEnv(home); err != nil {
		return nil, err
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Resolve relative paths
	cfg.Daemon.Socket = resolve(home, cfg.Daemon.Socket)
	cfg.Daemon.PIDFile = resolve(home, cfg.Daemon.PIDFile)
	cfg.Daemon.DBPath = resolve(home, cfg.Daemon.DBPath)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to home/siren.yaml
func (c *Config) Save() error {
	if err := os.MkdirAll(c.Home, 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	// Credentials may live here
	return os.WriteFile(Path(c.Home), data, 0600)
}

func resolve(home, p string) string {
	if p == "" || filepath.IsAbs(p) || p == ":memory:" {
		return p
	}
	return filepath.Join(home, p)
}
