package config

const (
	DefaultCheckInInterval  = "15m"
	DefaultCheckInTimeout   = "30s"
	DefaultReflexInterval   = "0s" // reflex sessions have no scheduled countdown
	DefaultReflexTimeout    = "10s"
	DefaultRefractory       = "5s"
	DefaultMessageThreshold = 1
	DefaultCallThreshold    = 3
	DefaultShakeSensitivity = 15.0
	DefaultShakeWindow      = 10
	DefaultVoicePhrase      = "siren help me"
	DefaultVoiceSensitivity = 70.0
	DefaultContactsTimeout  = "5s"
	DefaultSendTimeout      = "30s"
	DefaultRetryAttempts    = 3
	DefaultRetryInitial     = "1s"
	DefaultRetryMax         = "30s"
	DefaultSocket           = "daemon.sock"
	DefaultPIDFile          = "daemon.pid"
	DefaultDBPath           = "siren.db"
	DefaultWebAddr          = ":8787"
	DefaultEventBuffer      = 1024
	DefaultPruneAfter       = "24h"
	DefaultHistoryRetention = "720h"
	DefaultLogLevel         = "info"
)

// DefaultEscalation returns escalation timings for scheduled check-ins.
func DefaultEscalation() EscalationConfig {
	return EscalationConfig{
		Interval:         DefaultCheckInInterval,
		Timeout:          DefaultCheckInTimeout,
		Refractory:       DefaultRefractory,
		MessageThreshold: DefaultMessageThreshold,
		CallThreshold:    DefaultCallThreshold,
	}
}

// DefaultReflexEscalation returns escalation timings for sensor-driven sessions.
func DefaultReflexEscalation() EscalationConfig {
	return EscalationConfig{
		Interval:         DefaultReflexInterval,
		Timeout:          DefaultReflexTimeout,
		Refractory:       DefaultRefractory,
		MessageThreshold: DefaultMessageThreshold,
		CallThreshold:    DefaultCallThreshold,
	}
}

// DefaultConfig returns a Config with all default values applied.
func DefaultConfig() *Config {
	return &Config{
		CheckIn: CheckInConfig{EscalationConfig: DefaultEscalation()},
		Shake: ShakeConfig{
			EscalationConfig: DefaultReflexEscalation(),
			Sensitivity:      DefaultShakeSensitivity,
			Window:           DefaultShakeWindow,
		},
		Voice: VoiceConfig{
			EscalationConfig: DefaultReflexEscalation(),
			Phrase:           DefaultVoicePhrase,
			Sensitivity:      DefaultVoiceSensitivity,
		},
		ContactsBackend: ContactsBackendConfig{
			Timeout: DefaultContactsTimeout,
		},
		Notify: NotifyConfig{
			Backends:    []string{"terminal"},
			SendTimeout: DefaultSendTimeout,
			Retry: RetryConfig{
				MaxAttempts:    DefaultRetryAttempts,
				InitialBackoff: DefaultRetryInitial,
				MaxBackoff:     DefaultRetryMax,
			},
		},
		Daemon: DaemonConfig{
			Socket:      DefaultSocket,
			PIDFile:     DefaultPIDFile,
			DBPath:      DefaultDBPath,
			WebAddr:     DefaultWebAddr,
			EventBuffer: DefaultEventBuffer,
			PruneAfter:  DefaultPruneAfter,

			HistoryRetention: DefaultHistoryRetention,
		},
		LogLevel: DefaultLogLevel,
	}
}
