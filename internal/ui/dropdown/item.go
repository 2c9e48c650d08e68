package dropdown

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ufcrashout/iTrax/internal/model"
	"github.com/ufcrashout/iTrax/internal/theme"
)

// Icon identifies the glyph shown next to a notification.
type Icon string

const (
	IconSignIn  Icon = "sign-in"
	IconSignOut Icon = "sign-out"
	IconMapPin  Icon = "map-pin"
	IconMobile  Icon = "mobile"
	IconGear    Icon = "gear"
	IconBell    Icon = "bell"
)

var glyphs = map[Icon]string{
	IconSignIn:  "⇥",
	IconSignOut: "⇤",
	IconMapPin:  "📍",
	IconMobile:  "📱",
	IconGear:    "⚙",
	IconBell:    "🔔",
}

// Glyph returns the terminal rendering of the icon.
func (i Icon) Glyph() string {
	if g, ok := glyphs[i]; ok {
		return g
	}
	return glyphs[IconBell]
}

// IconFor picks the icon for a notification type and event. Unknown
// types get the bell.
func IconFor(t model.NotificationType, eventType string) Icon {
	switch t {
	case model.NotificationTypeGeofence:
		switch eventType {
		case model.EventTypeEntry:
			return IconSignIn
		case model.EventTypeExit:
			return IconSignOut
		default:
			return IconMapPin
		}
	case model.NotificationTypeDevice:
		return IconMobile
	case model.NotificationTypeSystem:
		return IconGear
	default:
		return IconBell
	}
}

// RelativeTime labels ts relative to now. Units are floor-truncated and
// timestamps in the future read as "Just now".
func RelativeTime(now, ts time.Time) string {
	d := now.Sub(ts)
	switch {
	case d < time.Minute:
		return "Just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	default:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	}
}

// Item wraps a notification record for bubbles/list.
type Item struct {
	Record model.NotificationRecord
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string { return i.Record.Message }

// Title returns the notification message.
func (i Item) Title() string { return i.Record.Message }

// Description returns the device name and event type.
func (i Item) Description() string {
	parts := []string{i.Record.Name()}
	if i.Record.EventType != "" {
		parts = append(parts, i.Record.EventType)
	}
	return strings.Join(parts, " | ")
}

// ItemDelegate renders notification rows.
type ItemDelegate struct {
	now func() time.Time
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 2 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws one notification: icon, message and "New" marker on the
// first line, device and relative time on the second.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}
	fmt.Fprint(w, renderRow(it.Record, index == m.Index(), d.now()))
}

func renderRow(r model.NotificationRecord, selected bool, now time.Time) string {
	icon := theme.TypeStyle(string(r.NotificationType)).
		Render(IconFor(r.NotificationType, r.EventType).Glyph())

	msgStyle := theme.ReadStyle
	marker := ""
	if !r.IsRead {
		msgStyle = theme.UnreadStyle
		marker = " " + theme.NewMarkerStyle.Render("New")
	}

	first := fmt.Sprintf("%s %s%s", icon, msgStyle.Render(r.Message), marker)

	meta := []string{}
	if name := r.Name(); name != "" {
		meta = append(meta, name)
	}
	if !r.Timestamp.IsZero() {
		meta = append(meta, RelativeTime(now, r.Timestamp.Time))
	}
	second := "  " + theme.HelpStyle.Render(strings.Join(meta, " · "))

	line := lipgloss.JoinVertical(lipgloss.Left, first, second)
	if selected {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}
