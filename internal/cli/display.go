package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/RevCBH/siren/internal/client"
	"github.com/RevCBH/siren/internal/escalation"
	"github.com/RevCBH/siren/internal/events"
)

var (
	timeColor    = color.New(color.Faint)
	sessionColor = color.New(color.FgCyan)
	callColor    = color.New(color.FgRed, color.Bold)
	messageColor = color.New(color.FgYellow)
	failColor    = color.New(color.FgRed)
)

// Styles for session detail output
var (
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// tierColor picks the color used for a tier name
func tierColor(tier string) *color.Color {
	switch escalation.Tier(tier) {
	case escalation.TierArmed:
		return color.New(color.FgGreen)
	case escalation.TierAwaitingAck:
		return color.New(color.FgYellow, color.Bold)
	case escalation.TierEscalating:
		return color.New(color.FgRed, color.Bold)
	case escalation.TierResolved:
		return color.New(color.FgHiGreen)
	}
	return color.New(color.FgHiBlack)
}

// displayEvent renders an event as one line on w
func displayEvent(w io.Writer, e events.Event) {
	fmt.Fprintln(w, formatEvent(e))
}

// formatEvent builds the human-readable line for an event. Payloads are
// read through their JSON form so events from the daemon stream (decoded
// maps) and from an in-process bus (typed structs) render the same.
func formatEvent(e events.Event) string {
	timestamp := timeColor.Sprintf("[%s]", formatTime(e.Time))
	payload := events.ToJSONEvent(e).Payload

	var msg string
	switch e.Type {
	case events.SessionCreated:
		label := stringAt(payload, "config", "label")
		msg = fmt.Sprintf("Session started (%s)", modeName(e.Mode))
		if label != "" {
			msg += fmt.Sprintf(" %q", label)
		}
	case events.SessionWarning:
		msg = messageColor.Sprintf("Warning: %s", stringAt(payload, "warning"))
	case events.SessionTierChanged:
		from := stringAt(payload, "from")
		to := stringAt(payload, "to")
		msg = fmt.Sprintf("%s → %s", tierColor(from).Sprint(from), tierColor(to).Sprint(to))
		if reason := stringAt(payload, "reason"); reason != "" {
			msg += timeColor.Sprintf(" (%s)", reason)
		}
	case events.SessionResolved:
		msg = tierColor(string(escalation.TierResolved)).Sprint("Session completed")
	case events.SessionCancelled:
		msg = tierColor(string(escalation.TierCancelled)).Sprint("Session cancelled")
	case events.TriggerAccepted:
		msg = fmt.Sprintf("Trigger %s accepted", stringAt(payload, "trigger", "kind"))
		if collapsed, _ := payload["collapsed"].(bool); collapsed {
			msg += " (collapsed)"
		}
	case events.TriggerDropped:
		msg = timeColor.Sprintf("Trigger %s dropped: %s",
			stringAt(payload, "trigger", "kind"), stringAt(payload, "reason"))
	case events.ActionEmitted:
		msg = formatAction(payload)
	case events.ActionDelivered:
		msg = timeColor.Sprintf("Delivered %s to %s",
			stringAt(payload, "action"), contactName(payload))
	case events.ActionFailed:
		msg = failColor.Sprintf("Failed to %s %s", stringAt(payload, "action"), contactName(payload))
		if e.Error != "" {
			msg += failColor.Sprintf(" - %s", e.Error)
		}
	case events.DaemonStarted:
		msg = "Daemon started"
	case events.DaemonConfigReloaded:
		msg = "Config reloaded"
	default:
		msg = string(e.Type)
	}

	if e.Session == "" {
		return fmt.Sprintf("%s %s", timestamp, msg)
	}
	return fmt.Sprintf("%s %s %s", timestamp, sessionColor.Sprint(shortID(e.Session)), msg)
}

// formatAction renders an action.emitted payload
func formatAction(payload map[string]any) string {
	name := contactName(payload)
	missed := intAt(payload, "missed_count")
	if escalation.ActionKind(stringAt(payload, "action")) == escalation.ActionCall {
		return callColor.Sprintf("CALL %s (missed %d)", name, missed)
	}
	return messageColor.Sprintf("MESSAGE %s (missed %d)", name, missed)
}

// contactName returns a display name from an action payload
func contactName(payload map[string]any) string {
	c := escalation.Contact{
		ID:    stringAt(payload, "contact", "id"),
		Name:  stringAt(payload, "contact", "name"),
		Phone: stringAt(payload, "contact", "phone"),
	}
	if name := c.DisplayName(); name != "" {
		return name
	}
	return stringAt(payload, "contact_id")
}

// stringAt walks nested maps and returns the string at path, or ""
func stringAt(m map[string]any, path ...string) string {
	v, ok := valueAt(m, path...)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// intAt returns the number at path as an int. JSON numbers decode as float64.
func intAt(m map[string]any, path ...string) int {
	v, ok := valueAt(m, path...)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}

func valueAt(m map[string]any, path ...string) (any, bool) {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// displaySessions renders sessions in tabular format using tabwriter.
// Columns: ID, Mode, Label, Tier, Missed, Next, Contacts
func displaySessions(w io.Writer, sessions []*client.Session, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tMODE\tLABEL\tTIER\tMISSED\tNEXT\tCONTACTS")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%d\n",
			s.ID,
			modeName(string(s.Mode)),
			orDash(s.Label),
			s.Tier,
			s.MissedCount,
			countdown(s, now),
			len(s.Contacts),
		)
	}
}

// displaySession renders one session in detail
func displaySession(w io.Writer, s *client.Session, now time.Time) {
	row := func(label, value string) {
		fmt.Fprintf(w, "%s  %s\n", labelStyle.Render(fmt.Sprintf("%-12s", label)), value)
	}

	fmt.Fprintln(w, titleStyle.Render("Session "+s.ID))
	row("Mode", modeName(string(s.Mode)))
	if s.Label != "" {
		row("Label", s.Label)
	}
	row("Tier", tierColor(string(s.Tier)).Sprint(s.Tier))
	row("Missed", fmt.Sprintf("%d (message at %d, call at %d)",
		s.MissedCount, s.MessageThreshold, s.CallThreshold))
	if s.Interval > 0 {
		row("Interval", formatDuration(s.Interval))
	}
	row("Grace", formatDuration(s.Timeout))
	if s.Mode.IsReflex() {
		row("Refractory", formatDuration(s.Refractory))
	}
	row("Next", countdown(s, now))
	row("Started", s.CreatedAt.Local().Format(time.DateTime))
	if s.LastAckAt != nil {
		row("Last ack", s.LastAckAt.Local().Format(time.DateTime))
	}

	if len(s.Contacts) == 0 {
		row("Contacts", dimStyle.Render("none"))
		return
	}
	row("Contacts", "")
	for _, c := range s.Contacts {
		fmt.Fprintf(w, "  %d. %s %s\n", c.Priority, c.DisplayName(), dimStyle.Render(c.Phone))
	}
}

// countdown describes what the session is waiting for
func countdown(s *client.Session, now time.Time) string {
	if s.Tier.IsTerminal() {
		return "-"
	}
	if s.Deadline == nil {
		if s.Tier == escalation.TierEscalating {
			return "waiting for ack"
		}
		return "watching"
	}
	left := formatDuration(s.Remaining(now))
	if s.Tier == escalation.TierAwaitingAck {
		return "ack within " + left
	}
	return "check-in in " + left
}

// modeName returns the short CLI name for a mode
func modeName(mode string) string {
	switch escalation.Mode(mode) {
	case escalation.ModeShakeWatch:
		return "shake"
	case escalation.ModeVoiceWatch:
		return "voice"
	}
	return mode
}

// shortID truncates long session ids for event lines
func shortID(id string) string {
	if len(id) > 10 {
		return id[len(id)-10:]
	}
	return id
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// boolToStatus converts a health boolean to a human-readable status string.
func boolToStatus(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "unhealthy"
}

// formatDuration formats a duration in human-readable form (e.g., "2m30s")
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)

	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		if seconds > 0 {
			return fmt.Sprintf("%dm%ds", minutes, seconds)
		}
		return fmt.Sprintf("%dm", minutes)
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if minutes > 0 {
		return fmt.Sprintf("%dh%dm", hours, minutes)
	}
	return fmt.Sprintf("%dh", hours)
}

// formatTime formats a timestamp for display
func formatTime(t time.Time) string {
	return t.Local().Format("15:04:05")
}
