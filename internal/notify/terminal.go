package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"

	"github.com/RevCBH/siren/internal/escalation"
)

// Terminal writes actions to a terminal with colored severity markers.
// Used for drills and as the fallback backend.
type Terminal struct {
	mu sync.Mutex // Serializes writes
	w  io.Writer
}

// NewTerminal creates a terminal notifier writing to stderr
func NewTerminal() *Terminal {
	return &Terminal{w: os.Stderr}
}

// NewTerminalWriter creates a terminal notifier writing to w
func NewTerminalWriter(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

var (
	callStyle    = color.New(color.FgRed, color.Bold)
	messageStyle = color.New(color.FgYellow)
	dimStyle     = color.New(color.Faint)
)

// Send writes the action
func (t *Terminal) Send(ctx context.Context, a escalation.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	prefix := messageStyle.Sprint("✉  [message]")
	if a.Kind == escalation.ActionCall {
		prefix = callStyle.Sprint("☎  [call]")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.w, "\n%s %s\n", prefix, Title(a))
	if a.Contact.Phone != "" {
		fmt.Fprintf(t.w, "   %s\n", dimStyle.Sprint(a.Contact.Phone))
	}
	fmt.Fprintf(t.w, "   %s\n", Render(a))
	fmt.Fprintf(t.w, "   %s\n", dimStyle.Sprintf("session=%s reason=%s", a.SessionID, a.Reason))
	return nil
}

// Name returns "terminal"
func (t *Terminal) Name() string {
	return "terminal"
}
