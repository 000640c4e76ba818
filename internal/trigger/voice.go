package trigger

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/RevCBH/siren/internal/escalation"
)

// DefaultVoiceSensitivity is the minimum recognizer confidence, in percent
const DefaultVoiceSensitivity = 70.0

// Recognition is one result from a speech recognizer
type Recognition struct {
	Transcript string    `json:"transcript"`
	Confidence float64   `json:"confidence"`
	At         time.Time `json:"at"`
}

// VoiceMatcher matches recognized speech against a stored safety phrase
type VoiceMatcher struct {
	session     string
	sink        Sink
	phrase      string
	sensitivity float64
	now         func() time.Time
}

// CheckVoiceSettings reports whether a phrase and sensitivity can build a
// matcher. A phrase made only of punctuation normalizes to nothing.
func CheckVoiceSettings(phrase string, sensitivity float64) error {
	if normalize(phrase) == "" {
		return fmt.Errorf("voice phrase must contain at least one word")
	}
	if math.IsNaN(sensitivity) || sensitivity < 0 || sensitivity > 100 {
		return fmt.Errorf("voice sensitivity %v out of range 0-100", sensitivity)
	}
	return nil
}

// NewVoiceMatcher creates a matcher. Sensitivity is a percentage (0-100);
// zero selects the default.
func NewVoiceMatcher(sessionID string, sink Sink, phrase string, sensitivity float64) (*VoiceMatcher, error) {
	if sensitivity == 0 {
		sensitivity = DefaultVoiceSensitivity
	}
	if err := CheckVoiceSettings(phrase, sensitivity); err != nil {
		return nil, err
	}
	p := normalize(phrase)
	return &VoiceMatcher{
		session:     sessionID,
		sink:        sink,
		phrase:      p,
		sensitivity: sensitivity,
		now:         time.Now,
	}, nil
}

func (v *VoiceMatcher) Session() string { return v.session }

func (v *VoiceMatcher) Kind() escalation.TriggerKind { return escalation.TriggerVoice }

// Phrase returns the normalized phrase
func (v *VoiceMatcher) Phrase() string { return v.phrase }

// Hear checks one transcript. Confidence is the recognizer's score in
// [0, 1], as Web Speech reports it; anything outside is dropped. It returns true when the phrase matched with enough
// confidence and the trigger was forwarded.
func (v *VoiceMatcher) Hear(transcript string, confidence float64) (bool, error) {
	return v.hear(Recognition{Transcript: transcript, Confidence: confidence})
}

// Listen consumes recognizer results until ctx is done or in is closed
func (v *VoiceMatcher) Listen(ctx context.Context, in <-chan Recognition) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-in:
			if !ok {
				return nil
			}
			if _, err := v.hear(r); err != nil {
				return err
			}
		}
	}
}

func (v *VoiceMatcher) hear(r Recognition) (bool, error) {
	pct, ok := percent(r.Confidence)
	if !ok || pct < v.sensitivity {
		return false, nil
	}
	if !containsPhrase(normalize(r.Transcript), v.phrase) {
		return false, nil
	}

	at := r.At
	if at.IsZero() {
		at = v.now()
	}
	err := v.sink.OnTrigger(v.session, escalation.TriggerEvent{
		Kind:  escalation.TriggerVoice,
		At:    at,
		Value: pct,
	})
	return err == nil, err
}

// percent converts a recognizer confidence in [0, 1] to a percentage
func percent(c float64) (float64, bool) {
	if math.IsNaN(c) || c < 0 || c > 1 {
		return 0, false
	}
	return c * 100, true
}

// normalize lowercases, strips punctuation and collapses whitespace
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case r == '\'' || r == '’':
			// "don't" and "dont" must match
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// containsPhrase matches on word boundaries
func containsPhrase(transcript, phrase string) bool {
	return strings.Contains(" "+transcript+" ", " "+phrase+" ")
}
