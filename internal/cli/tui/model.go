package tui

import (
	"context"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/RevCBH/siren/internal/client"
	"github.com/RevCBH/siren/internal/events"
)

// Actions is the subset of the daemon client the TUI drives
type Actions interface {
	ListSessions(ctx context.Context, activeOnly bool) ([]*client.Session, error)
	GetSession(ctx context.Context, id string) (*client.Session, error)
	Acknowledge(ctx context.Context, id string) (*client.Session, error)
	Complete(ctx context.Context, id string) (*client.Session, error)
	Cancel(ctx context.Context, id string) (*client.Session, error)
}

// Model is the bubbletea model for the watch screen
type Model struct {
	// Configuration
	Styles  Styles
	actions Actions
	only    string // Session filter; empty shows every active session
	timeout time.Duration
	now     func() time.Time

	// State
	Sessions []*client.Session
	Selected int
	LogLines []string
	LogLimit int
	Status   string
	Width    int
	Height   int

	log   viewport.Model
	help  help.Model
	keys  keyMap
	ready bool

	// Control
	Quitting bool
	Done     bool
}

// NewModel creates a watch model. If sessionID is set only that session
// is shown.
func NewModel(actions Actions, sessionID string) *Model {
	return &Model{
		Styles:   DefaultStyles(),
		actions:  actions,
		only:     sessionID,
		timeout:  5 * time.Second,
		now:      time.Now,
		LogLimit: 500,
		help:     help.New(),
		keys:     defaultKeyMap(),
	}
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.refresh(),
	)
}

// SelectedSession returns the highlighted session, or nil
func (m *Model) SelectedSession() *client.Session {
	if m.Selected < 0 || m.Selected >= len(m.Sessions) {
		return nil
	}
	return m.Sessions[m.Selected]
}

// upsert replaces or adds a session and keeps the list ordered by start time
func (m *Model) upsert(s *client.Session) {
	if m.only != "" && s.ID != m.only {
		return
	}

	selected := ""
	if cur := m.SelectedSession(); cur != nil {
		selected = cur.ID
	}

	found := false
	for i, existing := range m.Sessions {
		if existing.ID == s.ID {
			m.Sessions[i] = s
			found = true
			break
		}
	}
	if !found {
		m.Sessions = append(m.Sessions, s)
	}
	sort.SliceStable(m.Sessions, func(i, j int) bool {
		return m.Sessions[i].CreatedAt.Before(m.Sessions[j].CreatedAt)
	})

	m.Selected = 0
	for i, existing := range m.Sessions {
		if existing.ID == selected {
			m.Selected = i
		}
	}
}

// appendLog adds a line to the event log, trimming to LogLimit
func (m *Model) appendLog(line string) {
	m.LogLines = append(m.LogLines, line)
	if m.LogLimit > 0 && len(m.LogLines) > m.LogLimit {
		m.LogLines = m.LogLines[len(m.LogLines)-m.LogLimit:]
	}
	if m.ready {
		atBottom := m.log.AtBottom()
		m.log.SetContent(m.renderLog())
		if atBottom {
			m.log.GotoBottom()
		}
	}
}

// TickMsg is sent every second to update countdowns
type TickMsg time.Time

// tickCmd returns a command that sends TickMsg every second
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// DoneMsg signals the TUI should exit
type DoneMsg struct{}

// EventMsg carries one daemon event into the program
type EventMsg struct {
	Event events.Event
}

// SessionsMsg is the result of a full refresh
type SessionsMsg struct {
	Sessions []*client.Session
	Err      error
}

// SessionMsg is the result of a single-session fetch or action
type SessionMsg struct {
	Session *client.Session
	Action  string // Set when the fetch was a user action
	Err     error
}

// refresh loads the session list
func (m *Model) refresh() tea.Cmd {
	actions, only, timeout := m.actions, m.only, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if only != "" {
			s, err := actions.GetSession(ctx, only)
			if err != nil {
				return SessionsMsg{Err: err}
			}
			return SessionsMsg{Sessions: []*client.Session{s}}
		}
		sessions, err := actions.ListSessions(ctx, true)
		return SessionsMsg{Sessions: sessions, Err: err}
	}
}

// fetch reloads one session after an event touched it
func (m *Model) fetch(id string) tea.Cmd {
	actions, timeout := m.actions, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		s, err := actions.GetSession(ctx, id)
		return SessionMsg{Session: s, Err: err}
	}
}

// act runs a user action against a session
func (m *Model) act(name, id string, call func(Actions, context.Context, string) (*client.Session, error)) tea.Cmd {
	actions, timeout := m.actions, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		s, err := call(actions, ctx, id)
		return SessionMsg{Session: s, Action: name, Err: err}
	}
}
