package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/RevCBH/siren/internal/cli/tui"
	"github.com/RevCBH/siren/internal/client"
	"github.com/RevCBH/siren/internal/events"
)

// WatchOptions holds flags for the watch command
type WatchOptions struct {
	JSON     bool // Force JSON lines even on a terminal
	TUI      bool // Interactive screen with check-in keys
	From     int  // Replay history after this sequence number
	NoReplay bool // Skip stored history for a single session
}

// NewWatchCmd creates the 'watch' command for following session events
func NewWatchCmd(a *App) *cobra.Command {
	var opts WatchOptions

	cmd := &cobra.Command{
		Use:   "watch [session-id]",
		Short: "Follow session events live",
		Long: `Watch events from the daemon in real-time.

With a session id, stored history is replayed first and the command exits
when the session ends. Use --from to resume after a sequence number
without missing events. Output is JSON lines when stdout is not a
terminal or --json is set. --tui opens an interactive screen where you
can check in with a single key.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}

			c, err := a.connect()
			if err != nil {
				return err
			}
			defer c.Close()

			if opts.TUI {
				if opts.JSON {
					return fmt.Errorf("--tui and --json cannot be combined")
				}
				if !term.IsTerminal(int(os.Stdout.Fd())) {
					return fmt.Errorf("--tui needs a terminal")
				}
				return watchTUI(cmd.Context(), c, id)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			handler := NewSignalHandler(cancel)
			handler.Start()
			defer handler.Stop()

			return a.streamEvents(ctx, c, client.WatchOptions{
				SessionID:    id,
				Replay:       id != "" && !opts.NoReplay,
				FromSequence: opts.From,
			}, opts.JSON)
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Emit JSON lines")
	cmd.Flags().BoolVar(&opts.TUI, "tui", false, "Interactive check-in screen")
	cmd.Flags().IntVar(&opts.From, "from", 0, "Resume after sequence number")
	cmd.Flags().BoolVar(&opts.NoReplay, "no-replay", false, "Don't replay stored history")

	return cmd
}

// eventStream is the part of the client streamEvents uses
type eventStream interface {
	GetSession(ctx context.Context, id string) (*client.Session, error)
	Watch(ctx context.Context, opts client.WatchOptions, handler func(events.Event)) error
}

// streamEvents prints events until ctx is cancelled, the daemon goes away
// or, when watching one session, that session ends.
func (a *App) streamEvents(ctx context.Context, c eventStream, opts client.WatchOptions, forceJSON bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jsonMode := events.IsJSONMode(forceJSON)

	if opts.SessionID != "" && !opts.Replay {
		s, err := c.GetSession(ctx, opts.SessionID)
		if err != nil {
			return sessionError(opts.SessionID, err)
		}
		if s.Tier.IsTerminal() {
			if !jsonMode {
				a.printf("Session %s already %s\n", s.ID, s.Tier)
			}
			return nil
		}
	}

	show := func(e events.Event) { displayEvent(a.out, e) }
	if jsonMode {
		show = events.JSONEmitterHandler(events.NewJSONEmitter(a.out))
	}

	err := c.Watch(ctx, opts, func(e events.Event) {
		show(e)
		if opts.SessionID != "" && e.Session == opts.SessionID && endsSession(e.Type) {
			cancel()
		}
	})

	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return nil
	case client.IsUnavailable(err):
		if !jsonMode {
			a.printf("Daemon stopped\n")
		}
		return nil
	}
	return sessionError(opts.SessionID, err)
}

func endsSession(t events.EventType) bool {
	return t == events.SessionResolved || t == events.SessionCancelled
}

// watchTUI runs the interactive screen until the user quits or the
// daemon stream ends
func watchTUI(ctx context.Context, c *client.Client, id string) error {
	model := tui.NewModel(c, id)
	program := tea.NewProgram(model, tea.WithAltScreen())
	bridge := tui.NewBridge(program)

	// Keep log output off the alt screen
	logs := tui.NewLogWriter(program)
	prev := log.Writer()
	log.SetOutput(logs)
	defer func() {
		log.SetOutput(prev)
		logs.Close()
	}()

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()

	go func() {
		err := c.Watch(watchCtx, client.WatchOptions{SessionID: id}, bridge.Handler())
		if err != nil && watchCtx.Err() == nil {
			log.Printf("watch ended: %v", err)
		}
		bridge.SendDone()
	}()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
