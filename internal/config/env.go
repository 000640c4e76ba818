package config

import (
	"os"
	"strconv"
	"strings"
)

// envOverrides maps environment variables to config field setters.
var envOverrides = []struct {
	envVar string
	apply  func(*Config, string)
}{
	{
		envVar: "SIREN_SOCKET",
		apply: func(c *Config, v string) {
			c.Daemon.Socket = v
		},
	},
	{
		envVar: "SIREN_DB",
		apply: func(c *Config, v string) {
			c.Daemon.DBPath = v
		},
	},
	{
		envVar: "SIREN_WEB_ADDR",
		apply: func(c *Config, v string) {
			c.Daemon.WebAddr = v
		},
	},
	{
		envVar: "SIREN_LOG_LEVEL",
		apply: func(c *Config, v string) {
			c.LogLevel = v
		},
	},
	{
		envVar: "SIREN_CHECKIN_INTERVAL",
		apply: func(c *Config, v string) {
			c.CheckIn.Interval = v
		},
	},
	{
		envVar: "SIREN_CALL_THRESHOLD",
		apply: func(c *Config, v string) {
			if n, err := strconv.Atoi(v); err == nil {
				c.CheckIn.CallThreshold = n
				c.Shake.CallThreshold = n
				c.Voice.CallThreshold = n
			}
		},
	},
	{
		envVar: "SIREN_VOICE_PHRASE",
		apply: func(c *Config, v string) {
			c.Voice.Phrase = v
		},
	},
	{
		envVar: "SIREN_NOTIFY_BACKENDS",
		apply: func(c *Config, v string) {
			var backends []string
			for _, b := range strings.Split(v, ",") {
				if b = strings.TrimSpace(b); b != "" {
					backends = append(backends, b)
				}
			}
			c.Notify.Backends = backends
		},
	},
	{
		envVar: "SIREN_SLACK_WEBHOOK",
		apply: func(c *Config, v string) {
			c.Notify.SlackWebhook = v
		},
	},
	{
		envVar: "SIREN_WEBHOOK_URL",
		apply: func(c *Config, v string) {
			c.Notify.WebhookURL = v
		},
	},
	{
		envVar: "SIREN_TWILIO_ACCOUNT_SID",
		apply: func(c *Config, v string) {
			c.Notify.Twilio.AccountSID = v
		},
	},
	{
		envVar: "SIREN_TWILIO_AUTH_TOKEN",
		apply: func(c *Config, v string) {
			c.Notify.Twilio.AuthToken = v
		},
	},
	{
		envVar: "SIREN_TWILIO_FROM",
		apply: func(c *Config, v string) {
			c.Notify.Twilio.From = v
		},
	},
	{
		envVar: "SIREN_CONTACTS_URL",
		apply: func(c *Config, v string) {
			c.ContactsBackend.URL = v
		},
	},
	{
		envVar: "SIREN_CONTACTS_TOKEN",
		apply: func(c *Config, v string) {
			c.ContactsBackend.Token = v
		},
	},
}

// applyEnvOverrides modifies config in place with environment variable values.
func applyEnvOverrides(cfg *Config) {
	for _, override := range envOverrides {
		if val := os.Getenv(override.envVar); val != "" {
			override.apply(cfg, val)
		}
	}
}
