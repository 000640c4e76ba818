package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/RevCBH/siren/internal/escalation"
)

// Styles contains all lipgloss styles for the TUI
type Styles struct {
	// Header styling
	Title lipgloss.Style
	Clock lipgloss.Style

	// Session rows
	Selected  lipgloss.Style
	SessionID lipgloss.Style
	Label     lipgloss.Style
	Countdown lipgloss.Style
	Urgent    lipgloss.Style

	// Tier badges
	TierArmed      lipgloss.Style
	TierAwaiting   lipgloss.Style
	TierEscalating lipgloss.Style
	TierEnded      lipgloss.Style

	// Log area styling
	LogTitle lipgloss.Style
	LogLine  lipgloss.Style

	// Footer styling
	Status lipgloss.Style
}

// DefaultStyles returns the default TUI styles
func DefaultStyles() Styles {
	badge := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	return Styles{
		Title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("161")).Padding(0, 2),
		Clock: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),

		Selected:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		SessionID: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		Label:     lipgloss.NewStyle().Foreground(lipgloss.Color("250")).Italic(true),
		Countdown: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Urgent:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),

		TierArmed:      badge.Foreground(lipgloss.Color("0")).Background(lipgloss.Color("42")),
		TierAwaiting:   badge.Foreground(lipgloss.Color("0")).Background(lipgloss.Color("214")),
		TierEscalating: badge.Foreground(lipgloss.Color("15")).Background(lipgloss.Color("196")),
		TierEnded:      badge.Foreground(lipgloss.Color("250")).Background(lipgloss.Color("238")),

		LogTitle: lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Bold(true),
		LogLine:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),

		Status: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
}

// Tier returns the badge style for a tier
func (s Styles) Tier(t escalation.Tier) lipgloss.Style {
	switch t {
	case escalation.TierArmed:
		return s.TierArmed
	case escalation.TierAwaitingAck:
		return s.TierAwaiting
	case escalation.TierEscalating:
		return s.TierEscalating
	}
	return s.TierEnded
}

// Icons used in the TUI
const (
	IconSelected = "▸"
	IconAlarm    = "⚠"
)
