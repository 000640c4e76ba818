package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/RevCBH/siren/internal/escalation"
	"github.com/RevCBH/siren/internal/events"
	"github.com/RevCBH/siren/internal/notify"
)

// DrillOptions holds flags for the drill command
type DrillOptions struct {
	Interval         time.Duration
	Timeout          time.Duration
	MessageThreshold int
	CallThreshold    int
	MaxDuration      time.Duration // Drill stops here if no call was reached
}

// Drill outcomes
const (
	DrillCallReached = "call reached"
	DrillStopped     = "stopped"
	DrillTimedOut    = "timed out"
	DrillInterrupted = "interrupted"
)

// DrillResult summarizes a finished drill
type DrillResult struct {
	SessionID string
	Outcome   string
	Acks      int
	Messages  int
	Calls     int
	Tier      escalation.Tier
}

// drillContact stands in when no contacts are configured
var drillContact = escalation.Contact{ID: "drill", Name: "Drill contact", Phone: "+15550100", Priority: 1}

// NewDrillCmd creates the drill command: a rehearsal of a check-in session
// that runs in-process with short timers and never contacts anyone.
func NewDrillCmd(a *App) *cobra.Command {
	opts := DrillOptions{
		Interval:         10 * time.Second,
		Timeout:          10 * time.Second,
		MessageThreshold: 1,
		CallThreshold:    2,
		MaxDuration:      5 * time.Minute,
	}

	cmd := &cobra.Command{
		Use:   "drill",
		Short: "Rehearse a check-in session without contacting anyone",
		Long: `Run a practice check-in session in this terminal.

Press Enter (or type "safe") to check in when asked. Stop answering to see
what your contacts would receive: messages first, then a call. Actions are
printed here only; nothing is sent. Type "q" to stop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Interval <= 0 || opts.Timeout <= 0 {
				return fmt.Errorf("--interval and --timeout must be positive")
			}
			if opts.MessageThreshold < 1 || opts.CallThreshold < opts.MessageThreshold {
				return fmt.Errorf("thresholds must satisfy 1 <= message <= call")
			}

			var list []escalation.Contact
			if cfg, err := a.loadConfig(); err == nil {
				list = cfg.Contacts
			} else if a.verbose {
				fmt.Fprintf(os.Stderr, "Using drill contact: %v\n", err)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			handler := NewSignalHandler(cancel)
			handler.Start()
			defer handler.Stop()

			result, err := runDrill(ctx, opts, list, clockwork.NewRealClock(), os.Stdin, a.out)
			if err != nil {
				return err
			}
			a.printf("\nDrill %s: %d check-in(s), %d message(s), %d call(s)\n",
				result.Outcome, result.Acks, result.Messages, result.Calls)
			return nil
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", opts.Interval, "Time between check-ins")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", opts.Timeout, "Grace period to check in")
	cmd.Flags().IntVar(&opts.MessageThreshold, "message-threshold", opts.MessageThreshold, "Misses before messaging")
	cmd.Flags().IntVar(&opts.CallThreshold, "call-threshold", opts.CallThreshold, "Misses before calling")
	cmd.Flags().DurationVar(&opts.MaxDuration, "max", opts.MaxDuration, "Stop the drill after this long")

	return cmd
}

// runDrill drives one check-in session on a private engine until the first
// call is placed, the user quits, the drill times out or ctx ends.
func runDrill(ctx context.Context, opts DrillOptions, list []escalation.Contact, clock clockwork.Clock, in io.Reader, out io.Writer) (*DrillResult, error) {
	out = &lockedWriter{w: out}
	if len(list) == 0 {
		list = []escalation.Contact{drillContact}
	}

	result := &DrillResult{}
	var mu sync.Mutex
	callPlaced := make(chan struct{})
	var callOnce sync.Once

	bus := events.NewBus(256)
	bus.Subscribe(func(e events.Event) {
		displayEvent(out, e)
		if e.Type != events.ActionDelivered {
			return
		}
		a, ok := e.Payload.(escalation.Action)
		if !ok {
			return
		}
		mu.Lock()
		if a.Kind == escalation.ActionCall {
			result.Calls++
			callOnce.Do(func() { close(callPlaced) })
		} else {
			result.Messages++
		}
		mu.Unlock()
	})

	engine := escalation.New(escalation.EngineConfig{
		Clock:    clock,
		Notifier: notify.NewTerminalWriter(out),
		Bus:      bus,
		Logger:   log.New(out, "drill: ", 0),
	})

	id, err := engine.CreateSession(escalation.SessionConfig{
		Mode:             escalation.ModeCheckIn,
		Label:            "drill",
		Interval:         opts.Interval,
		CheckInTimeout:   opts.Timeout,
		MessageThreshold: opts.MessageThreshold,
		CallThreshold:    opts.CallThreshold,
		Contacts:         list,
	})
	if err != nil {
		engine.Close()
		bus.Close()
		return nil, err
	}
	result.SessionID = id

	fmt.Fprintf(out, "Drill started: check-in every %s, %s to answer. Press Enter to check in, q to stop.\n",
		formatDuration(opts.Interval), formatDuration(opts.Timeout))

	quit := make(chan struct{})
	// The reader may outlive the drill while stdin stays open; closed
	// input leaves the drill running on timers alone.
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
			case "q", "quit", "stop":
				close(quit)
				return
			case "", "a", "ack", "safe":
				if engine.Acknowledge(id) == nil {
					mu.Lock()
					result.Acks++
					mu.Unlock()
				}
			}
		}
	}()

	var outcome string
	select {
	case <-callPlaced:
		outcome = DrillCallReached
		fmt.Fprintf(out, "Escalation reached a call to %s. In a real session they would be phoned now.\n",
			firstByPriority(list).DisplayName())
	case <-quit:
		outcome = DrillStopped
	case <-clock.After(opts.MaxDuration):
		outcome = DrillTimedOut
	case <-ctx.Done():
		outcome = DrillInterrupted
	}

	if outcome == DrillInterrupted {
		_ = engine.Cancel(id)
	} else {
		_ = engine.Complete(id)
	}
	snap, _ := engine.Session(id)
	engine.Close()
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	result.Outcome = outcome
	result.Tier = snap.Tier
	return result, nil
}

// firstByPriority returns the contact a call goes to
func firstByPriority(list []escalation.Contact) escalation.Contact {
	best := list[0]
	for _, c := range list[1:] {
		if c.Priority > 0 && (best.Priority == 0 || c.Priority < best.Priority) {
			best = c
		}
	}
	return best
}

// lockedWriter serializes writes from the bus, notifier and logger goroutines
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
