package escalation

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSession is returned for an unknown session id, or a terminal
	// session on any mutating call except Cancel.
	ErrInvalidSession = errors.New("invalid session")

	// ErrStaleEpoch marks a timer callback that lost a race with another
	// transition. It is dropped internally and never returned to callers.
	ErrStaleEpoch = errors.New("stale epoch")

	// ErrInvalidConfig is wrapped by session configuration validation errors.
	ErrInvalidConfig = errors.New("invalid session config")

	// ErrEngineClosed is returned by CreateSession after Close.
	ErrEngineClosed = errors.New("engine closed")

	// ErrUnsupportedInput is returned when sensor input reaches a session
	// whose mode has no detector for it.
	ErrUnsupportedInput = errors.New("session does not accept this input")
)

// NotifierFailure records a notifier backend that could not deliver an action.
// The engine logs it and publishes action.failed; it never retries.
type NotifierFailure struct {
	Notifier string
	Action   Action
	Err      error
}

func (f *NotifierFailure) Error() string {
	return fmt.Sprintf("notifier %s: %s to %s failed: %v", f.Notifier, f.Action.Kind, f.Action.ContactID, f.Err)
}

func (f *NotifierFailure) Unwrap() error {
	return f.Err
}
