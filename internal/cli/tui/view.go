package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/RevCBH/siren/internal/client"
	"github.com/RevCBH/siren/internal/escalation"
)

// View implements tea.Model
func (m *Model) View() string {
	if m.Done || m.Quitting {
		return ""
	}
	if !m.ready {
		return "Connecting…"
	}

	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	b.WriteString(m.renderSessions())
	b.WriteString("\n")

	b.WriteString(m.Styles.LogTitle.Render("Events"))
	b.WriteString("\n")
	b.WriteString(m.log.View())
	b.WriteString("\n")

	b.WriteString(m.Styles.Status.Render(m.Status))
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))

	return b.String()
}

func (m *Model) renderHeader() string {
	return fmt.Sprintf("%s  %s",
		m.Styles.Title.Render("SIREN"),
		m.Styles.Clock.Render(m.now().Format("15:04:05")),
	)
}

func (m *Model) renderSessions() string {
	if len(m.Sessions) == 0 {
		return "  No active sessions\n"
	}

	var b strings.Builder
	now := m.now()
	for i, s := range m.Sessions {
		b.WriteString(m.renderSession(s, i == m.Selected, now))
		b.WriteString("\n")
	}
	return b.String()
}

// renderSession renders one row:
// ▸ 01J9ZK…  [awaiting_ack]  "walking home"  ack within 0:24  missed 1
func (m *Model) renderSession(s *client.Session, selected bool, now time.Time) string {
	cursor := " "
	if selected {
		cursor = m.Styles.Selected.Render(IconSelected)
	}

	parts := []string{
		cursor,
		m.Styles.SessionID.Render(s.ID),
		m.Styles.Tier(s.Tier).Render(string(s.Tier)),
	}
	if s.Label != "" {
		parts = append(parts, m.Styles.Label.Render(fmt.Sprintf("%q", s.Label)))
	}
	parts = append(parts, m.renderCountdown(s, now))
	if s.MissedCount > 0 {
		parts = append(parts, fmt.Sprintf("missed %d", s.MissedCount))
	}
	return strings.Join(parts, "  ")
}

func (m *Model) renderCountdown(s *client.Session, now time.Time) string {
	switch {
	case s.Tier.IsTerminal():
		return m.Styles.Countdown.Render("ended")
	case s.Tier == escalation.TierEscalating:
		return m.Styles.Urgent.Render(IconAlarm + " contacting your people, press a if safe")
	case s.Deadline == nil:
		return m.Styles.Countdown.Render("watching")
	case s.Tier == escalation.TierAwaitingAck:
		return m.Styles.Urgent.Render("ack within " + formatCountdown(s.Remaining(now)))
	}
	return m.Styles.Countdown.Render("check-in in " + formatCountdown(s.Remaining(now)))
}

func (m *Model) renderLog() string {
	return strings.Join(m.LogLines, "\n")
}

// formatCountdown formats a duration as M:SS, or H:MM:SS past an hour
func formatCountdown(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	mins := d / time.Minute
	d -= mins * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mins, s)
	}
	return fmt.Sprintf("%d:%02d", mins, s)
}
