package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/RevCBH/siren/internal/client"
	"github.com/RevCBH/siren/internal/escalation"
	"github.com/RevCBH/siren/internal/events"
)

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.help.Width = msg.Width
		if !m.ready {
			m.log = viewport.New(msg.Width, m.logHeight())
			m.ready = true
		}
		m.resize()
		return m, nil

	case TickMsg:
		return m, tickCmd()

	case DoneMsg:
		m.Done = true
		return m, tea.Quit

	case EventMsg:
		m.appendLog(formatEvent(msg.Event))
		if msg.Event.Session == "" {
			return m, nil
		}
		return m, m.fetch(msg.Event.Session)

	case LogMsg:
		m.appendLog(m.Styles.LogLine.Render(msg.Line))

	case SessionsMsg:
		if msg.Err != nil {
			m.Status = fmt.Sprintf("refresh failed: %v", msg.Err)
			return m, nil
		}
		m.Sessions = nil
		for _, s := range msg.Sessions {
			m.upsert(s)
		}
		m.resize()

	case SessionMsg:
		if msg.Err != nil {
			m.Status = actionError(msg.Action, msg.Err)
			return m, nil
		}
		m.upsert(msg.Session)
		m.resize()
		if msg.Action != "" {
			m.Status = fmt.Sprintf("%s: session is %s", msg.Action, msg.Session.Tier)
		}
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.Quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.Selected > 0 {
			m.Selected--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.Selected < len(m.Sessions)-1 {
			m.Selected++
		}
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		m.Status = ""
		return m, m.refresh()

	case key.Matches(msg, m.keys.Ack):
		return m, m.actOnSelected("acknowledged", Actions.Acknowledge)

	case key.Matches(msg, m.keys.Complete):
		return m, m.actOnSelected("completed", Actions.Complete)

	case key.Matches(msg, m.keys.Cancel):
		return m, m.actOnSelected("cancelled", Actions.Cancel)
	}

	// Anything else scrolls the event log
	if !m.ready {
		return m, nil
	}
	var cmd tea.Cmd
	m.log, cmd = m.log.Update(msg)
	return m, cmd
}

func (m *Model) actOnSelected(name string, call func(Actions, context.Context, string) (*client.Session, error)) tea.Cmd {
	s := m.SelectedSession()
	if s == nil {
		m.Status = "no session selected"
		return nil
	}
	if s.Tier.IsTerminal() {
		m.Status = fmt.Sprintf("session %s already %s", s.ID, s.Tier)
		return nil
	}
	return m.act(name, s.ID, call)
}

// resize fits the log viewport below the session list
func (m *Model) resize() {
	if !m.ready {
		return
	}
	m.log.Width = m.Width
	m.log.Height = m.logHeight()
	m.log.SetContent(m.renderLog())
	m.log.GotoBottom()
}

// logHeight is what remains after the header, the session rows, the log
// title, the status line and the help line
func (m *Model) logHeight() int {
	rows := len(m.Sessions)
	if rows == 0 {
		rows = 1
	}
	h := m.Height - (2 + rows + 2 + 2)
	if h < 3 {
		h = 3
	}
	return h
}

func actionError(action string, err error) string {
	if errors.Is(err, escalation.ErrInvalidSession) {
		return "session not found or already ended"
	}
	if action == "" {
		return fmt.Sprintf("refresh failed: %v", err)
	}
	return fmt.Sprintf("%s failed: %v", action, err)
}

// formatEvent renders a compact event log line
func formatEvent(e events.Event) string {
	line := fmt.Sprintf("%s  %-22s", e.Time.Local().Format("15:04:05"), e.Type)
	if e.Session != "" {
		line += "  " + e.Session
	}
	if e.Tier != "" {
		line += "  " + e.Tier
	}
	if e.Error != "" {
		line += "  error: " + e.Error
	}
	return line
}
