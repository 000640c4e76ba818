package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/RevCBH/siren/internal/escalation"
)

// RetryConfig controls how network backends retry a failed delivery
type RetryConfig struct {
	MaxAttempts     int           // Total tries; below 2 means no retries
	InitialBackoff  time.Duration // Wait before the second try
	MaxBackoff      time.Duration // Cap on the wait between tries
	BackoffMultiply float64       // Growth factor for the wait
}

// DefaultRetryConfig provides defaults for network backends
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialBackoff:  time.Second,
	MaxBackoff:      30 * time.Second,
	BackoffMultiply: 2,
}

// after returns the wait that follows wait
func (c RetryConfig) after(wait time.Duration) time.Duration {
	if c.BackoffMultiply > 1 {
		wait = time.Duration(float64(wait) * c.BackoffMultiply)
	}
	if c.MaxBackoff > 0 && wait > c.MaxBackoff {
		wait = c.MaxBackoff
	}
	return wait
}

// permanentError marks a delivery failure another attempt cannot fix,
// such as a rejected phone number
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// statusError describes an HTTP error response. Client errors other than
// timeouts and rate limits are permanent.
func statusError(code int, format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
		return Permanent(err)
	}
	return err
}

// Retrying wraps a notifier and retries failed sends with backoff
type Retrying struct {
	inner Notifier
	cfg   RetryConfig
	clock clockwork.Clock
}

// NewRetrying wraps inner with the given retry policy
func NewRetrying(inner Notifier, cfg RetryConfig) *Retrying {
	return &Retrying{inner: inner, cfg: cfg, clock: clockwork.NewRealClock()}
}

// WithClock replaces the clock used for backoff waits
func (r *Retrying) WithClock(clock clockwork.Clock) *Retrying {
	r.clock = clock
	return r
}

// Send delivers the action. Transient failures are retried until the
// attempts run out or ctx ends; permanent ones return at once.
func (r *Retrying) Send(ctx context.Context, a escalation.Action) error {
	attempts := max(r.cfg.MaxAttempts, 1)
	wait := r.cfg.InitialBackoff

	for attempt := 1; ; attempt++ {
		err := r.inner.Send(ctx, a)
		if err == nil {
			return nil
		}
		if IsPermanent(err) || attempt == attempts {
			return fmt.Errorf("%s: gave up after %d attempt(s): %w", r.inner.Name(), attempt, err)
		}

		log.Printf("WARN: %s: %s to %s failed (attempt %d of %d), retrying in %s: %v",
			r.inner.Name(), a.Kind, a.Contact.DisplayName(), attempt, attempts, wait, err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w (last error: %v)", r.inner.Name(), ctx.Err(), err)
		case <-r.clock.After(wait):
		}
		wait = r.cfg.after(wait)
	}
}

// Name returns the wrapped backend's name
func (r *Retrying) Name() string {
	return r.inner.Name()
}
