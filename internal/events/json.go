package events

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// JSONEvent is the flattened form of an Event used for JSON lines on
// stdout, the web event stream and the stored event log. Payloads are
// always objects so consumers can index into them.
type JSONEvent struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Session   string         `json:"session,omitempty"`
	Mode      string         `json:"mode,omitempty"`
	Tier      string         `json:"tier,omitempty"` // Tier after the event
	Payload   map[string]any `json:"payload,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// ToJSONEvent flattens e. Struct payloads become their JSON object form;
// anything that doesn't encode to an object is wrapped as {"value": v}.
func ToJSONEvent(e Event) JSONEvent {
	return JSONEvent{
		Type:      string(e.Type),
		Timestamp: e.Time,
		Session:   e.Session,
		Mode:      e.Mode,
		Tier:      e.Tier,
		Payload:   payloadObject(e.Payload),
		Error:     e.Error,
	}
}

func payloadObject(p any) map[string]any {
	switch v := p.(type) {
	case nil:
		return nil
	case map[string]any:
		return v
	}

	var obj map[string]any
	if data, err := json.Marshal(p); err == nil && json.Unmarshal(data, &obj) == nil && obj != nil {
		return obj
	}
	return map[string]any{"value": p}
}

// IsJSONMode reports whether command output should be JSON lines: when
// forced, or when stdout is not a terminal.
func IsJSONMode(force bool) bool {
	if force || os.Stdout == nil {
		return true
	}
	return !term.IsTerminal(int(os.Stdout.Fd()))
}

// JSONEmitter writes one JSON object per line. Emit is safe for
// concurrent use.
type JSONEmitter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONEmitter creates an emitter writing to w
func NewJSONEmitter(w io.Writer) *JSONEmitter {
	return &JSONEmitter{enc: json.NewEncoder(w)}
}

// Emit writes event as a single line
func (j *JSONEmitter) Emit(event Event) error {
	je := ToJSONEvent(event)

	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(je)
}

// JSONEmitterHandler subscribes an emitter to a bus. Write failures are
// logged since handlers can't return them.
func JSONEmitterHandler(emitter *JSONEmitter) Handler {
	return func(e Event) {
		if err := emitter.Emit(e); err != nil {
			log.Printf("WARN: failed to emit JSON event: %v", err)
		}
	}
}
