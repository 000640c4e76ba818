package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/RevCBH/siren/internal/events"
)

// Sender is the part of *tea.Program the bridge needs
type Sender interface {
	Send(msg tea.Msg)
}

// Bridge forwards daemon events into the bubbletea program
type Bridge struct {
	program Sender
}

// NewBridge creates a new bridge for the given program
func NewBridge(program Sender) *Bridge {
	return &Bridge{program: program}
}

// Handler returns an event handler suitable for client.Watch or events.Bus
func (b *Bridge) Handler() events.Handler {
	return func(evt events.Event) {
		if msg := eventToMsg(evt); msg != nil {
			b.program.Send(msg)
		}
	}
}

// eventToMsg converts an event to a tea.Msg. Daemon lifecycle events carry
// no session state and are logged only.
func eventToMsg(evt events.Event) tea.Msg {
	switch evt.Type {
	case events.DaemonStarted, events.DaemonConfigReloaded:
		return LogMsg{Line: evt.String()}
	}
	return EventMsg{Event: evt}
}

// SendDone sends a DoneMsg to the program
func (b *Bridge) SendDone() {
	b.program.Send(DoneMsg{})
}
