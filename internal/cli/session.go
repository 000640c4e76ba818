package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/RevCBH/siren/internal/client"
	"github.com/RevCBH/siren/internal/escalation"
)

// SessionStartOptions holds flags for the session start command
type SessionStartOptions struct {
	Mode             string        // checkin, shake or voice
	Label            string        // Free-form description ("walking home")
	Interval         time.Duration // Zero: configured default
	Timeout          time.Duration // Zero: configured default
	MessageThreshold int           // Zero: configured default
	CallThreshold    int           // Zero: configured default
	Contacts         []string      // name:phone[:priority], empty resolves on the daemon
	Watch            bool          // Stream the session's events after starting
}

// Validate checks SessionStartOptions and converts them to client options
func (opts SessionStartOptions) Validate() (client.SessionOptions, error) {
	mode, err := escalation.ParseMode(opts.Mode)
	if err != nil {
		return client.SessionOptions{}, err
	}
	if opts.Interval < 0 || opts.Timeout < 0 {
		return client.SessionOptions{}, fmt.Errorf("durations must not be negative")
	}
	if opts.MessageThreshold < 0 || opts.CallThreshold < 0 {
		return client.SessionOptions{}, fmt.Errorf("thresholds must not be negative")
	}

	contacts := make([]escalation.Contact, 0, len(opts.Contacts))
	for i, raw := range opts.Contacts {
		c, err := parseContact(raw, i+1)
		if err != nil {
			return client.SessionOptions{}, err
		}
		contacts = append(contacts, c)
	}

	return client.SessionOptions{
		Mode:             mode,
		Label:            opts.Label,
		Interval:         opts.Interval,
		Timeout:          opts.Timeout,
		MessageThreshold: opts.MessageThreshold,
		CallThreshold:    opts.CallThreshold,
		Contacts:         contacts,
	}, nil
}

// parseContact parses "name:phone[:priority]". Without a priority the
// contact takes its position in the flag list.
func parseContact(raw string, position int) (escalation.Contact, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return escalation.Contact{}, fmt.Errorf("invalid contact %q (expected name:phone[:priority])", raw)
	}
	c := escalation.Contact{
		ID:       fmt.Sprintf("cli-%d", position),
		Name:     strings.TrimSpace(parts[0]),
		Phone:    strings.TrimSpace(parts[1]),
		Priority: position,
	}
	if c.Phone == "" {
		return escalation.Contact{}, fmt.Errorf("contact %q has no phone number", raw)
	}
	if len(parts) == 3 {
		p, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil || p < 1 {
			return escalation.Contact{}, fmt.Errorf("contact %q: priority must be a positive integer", raw)
		}
		c.Priority = p
	}
	return c, nil
}

// NewSessionCmd creates the session command group
func NewSessionCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Start and manage safety sessions",
	}

	cmd.AddCommand(newSessionStartCmd(a))
	cmd.AddCommand(newSessionListCmd(a))

	return cmd
}

// newSessionStartCmd creates the 'session start' command
func newSessionStartCmd(a *App) *cobra.Command {
	opts := SessionStartOptions{Mode: "checkin"}

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a safety session",
		Long: `Start a safety session on the daemon.

Modes:
  checkin  Asks you to check in every --interval; missed check-ins escalate
  shake    Watches phone motion; a hard shake you don't cancel escalates
  voice    Listens for your safety phrase; a match you don't cancel escalates

Unset timings and thresholds use the defaults from siren.yaml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionOpts, err := opts.Validate()
			if err != nil {
				return err
			}

			c, err := a.connect()
			if err != nil {
				return err
			}
			defer c.Close()

			created, err := c.StartSession(cmd.Context(), sessionOpts)
			if err != nil {
				return err
			}

			for _, w := range created.Warnings {
				a.printf("%s\n", messageColor.Sprintf("Warning: %s", w))
			}
			a.printf("Session %s started (%s)\n", created.Session.ID, modeName(string(created.Session.Mode)))
			a.printf("%s\n", countdown(created.Session, time.Now()))

			if !opts.Watch {
				return nil
			}
			return a.streamEvents(cmd.Context(), c, client.WatchOptions{SessionID: created.Session.ID}, false)
		},
	}

	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", opts.Mode, "Session mode: checkin, shake or voice")
	cmd.Flags().StringVarP(&opts.Label, "label", "l", "", "Label shown to contacts (e.g. \"walking home\")")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "Time between check-ins")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "Grace period to acknowledge once a check-in is due")
	cmd.Flags().IntVar(&opts.MessageThreshold, "message-threshold", 0, "Missed check-ins before contacts are messaged")
	cmd.Flags().IntVar(&opts.CallThreshold, "call-threshold", 0, "Missed check-ins before the first contact is called")
	cmd.Flags().StringArrayVar(&opts.Contacts, "contact", nil, "Contact as name:phone[:priority] (repeatable)")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Stream the session's events after starting")

	return cmd
}

// newSessionListCmd creates the 'session list' command
func newSessionListCmd(a *App) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List sessions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.showSessions(cmd.Context(), !all)
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include finished sessions")

	return cmd
}

// NewAckCmd creates the 'ack' command, the user's "I'm safe"
func NewAckCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:     "ack <session-id>",
		Aliases: []string{"safe"},
		Short:   "Check in: confirm you are safe",
		Long: `Acknowledge a session. This answers a due check-in, cancels a pending
shake or voice alert, and stands down an escalation that is underway.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.sessionAction(cmd.Context(), args[0], "Acknowledged", (*client.Client).Acknowledge)
		},
	}
}

// NewCompleteCmd creates the 'complete' command
func NewCompleteCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <session-id>",
		Short: "End a session safely",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.sessionAction(cmd.Context(), args[0], "Completed", (*client.Client).Complete)
		},
	}
}

// NewCancelCmd creates the 'cancel' command
func NewCancelCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <session-id>",
		Short: "Stop monitoring a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.sessionAction(cmd.Context(), args[0], "Cancelled", (*client.Client).Cancel)
		},
	}
}

// NewTriggerCmd creates the 'trigger' command used to inject sensor
// triggers by hand
func NewTriggerCmd(a *App) *cobra.Command {
	var (
		kind  string
		value float64
	)

	cmd := &cobra.Command{
		Use:   "trigger <session-id>",
		Short: "Send a trigger to a session",
		Long: `Send a trigger event to a session.

  --kind motion --value 25   acceleration magnitude in m/s²
  --kind voice --value 90    recognizer confidence in percent
  --kind manual              a fresh check-in, same as ack`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := escalation.ParseTriggerKind(kind)
			if err != nil {
				return err
			}

			c, err := a.connect()
			if err != nil {
				return err
			}
			defer c.Close()

			s, err := c.Trigger(cmd.Context(), args[0], k, value)
			if err != nil {
				return sessionError(args[0], err)
			}
			a.printf("Trigger %s sent; session %s is %s\n", k, s.ID, s.Tier)
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", string(escalation.TriggerManual), "Trigger kind: motion, voice or manual")
	cmd.Flags().Float64Var(&value, "value", 0, "Motion magnitude or voice confidence")

	return cmd
}

// sessionAction dials the daemon, runs call against id and reports the new tier
func (a *App) sessionAction(ctx context.Context, id, verb string, call func(*client.Client, context.Context, string) (*client.Session, error)) error {
	c, err := a.connect()
	if err != nil {
		return err
	}
	defer c.Close()

	s, err := call(c, ctx, id)
	if err != nil {
		return sessionError(id, err)
	}
	a.printf("%s %s; session is %s\n", verb, s.ID, s.Tier)
	if !s.Tier.IsTerminal() {
		a.printf("%s\n", countdown(s, time.Now()))
	}
	return nil
}

// sessionError makes daemon errors readable for a session command
func sessionError(id string, err error) error {
	if errors.Is(err, escalation.ErrInvalidSession) {
		return fmt.Errorf("session %s: not found or already ended", id)
	}
	if client.IsUnavailable(err) {
		return fmt.Errorf("daemon not running (start it with 'siren daemon start'): %w", err)
	}
	return err
}
