package events

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// LogConfig configures the logging handler
type LogConfig struct {
	// Writer is where logs are written (default: os.Stderr)
	Writer io.Writer

	// IncludePayload includes event payload in log output
	IncludePayload bool

	// TimeFormat is the timestamp format (default: RFC3339).
	// Set to "-" to omit the timestamp.
	TimeFormat string
}

// LogHandler returns a handler that logs events to the configured writer
// Format: 2026-01-02T15:04:05Z [event.type] session mode=M tier=T
func LogHandler(cfg LogConfig) Handler {
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}

	var mu sync.Mutex
	return func(e Event) {
		var buf strings.Builder
		if cfg.TimeFormat != "-" && !e.Time.IsZero() {
			buf.WriteString(e.Time.Format(cfg.TimeFormat))
			buf.WriteString(" ")
		}
		buf.WriteString("[")
		buf.WriteString(string(e.Type))
		buf.WriteString("]")

		if e.Session != "" {
			buf.WriteString(" ")
			buf.WriteString(e.Session)
		}
		if e.Mode != "" {
			fmt.Fprintf(&buf, " mode=%s", e.Mode)
		}
		if e.Tier != "" {
			fmt.Fprintf(&buf, " tier=%s", e.Tier)
		}
		if e.Error != "" {
			fmt.Fprintf(&buf, " error=%q", e.Error)
		}
		if cfg.IncludePayload && e.Payload != nil {
			fmt.Fprintf(&buf, " payload=%v", e.Payload)
		}
		buf.WriteString("\n")

		mu.Lock()
		fmt.Fprint(cfg.Writer, buf.String())
		mu.Unlock()
	}
}

// FilterHandler wraps a handler so it only sees the listed event types
func FilterHandler(h Handler, types ...EventType) Handler {
	allowed := make(map[EventType]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}
	return func(e Event) {
		if allowed[e.Type] {
			h(e)
		}
	}
}

// SessionHandler wraps a handler so it only sees events for one session
func SessionHandler(h Handler, session string) Handler {
	return func(e Event) {
		if e.Session == session {
			h(e)
		}
	}
}
