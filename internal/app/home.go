package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/ufcrashout/iTrax/internal/theme"
)

// renderHome renders the landing view: the unread summary and push
// health at a glance.
func (m Model) renderHome() string {
	width := m.layout.ContentWidth()

	title := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).Render("iTrax notifications")

	var unread string
	switch m.unreadCount {
	case 0:
		unread = theme.ReadStyle.Render("You're all caught up.")
	case 1:
		unread = theme.UnreadStyle.Render("1 unread notification")
	default:
		unread = theme.UnreadStyle.Render(humanize.Comma(int64(m.unreadCount)) + " unread notifications")
	}

	lines := []string{title, "", unread}

	ps := m.poller.Status()
	if !ps.LastPoll.IsZero() {
		lines = append(lines, theme.HelpStyle.Render("checked "+humanize.RelTime(ps.LastPoll, m.now(), "ago", "from now")))
	}
	if m.pollErr != nil {
		lines = append(lines, theme.ErrorStyle.Render("server unreachable, showing last known count"))
	}

	state := m.ctrl.State().String()
	lines = append(lines, "", "Push: "+theme.PushStateStyle(state).Render(state))
	if m.pushErr != nil {
		lines = append(lines, theme.HelpStyle.Render(fmt.Sprintf("  %v", m.pushErr)))
	}
	if m.trayOn {
		lines = append(lines, theme.HelpStyle.Render(fmt.Sprintf("  %d in tray", m.tray.Len())))
	}

	lines = append(lines, "", theme.HelpStyle.Render(strings.Join([]string{
		"n  open the notification dropdown",
		"N  all notifications",
		"t  push tray",
		":  command palette",
	}, "\n")))

	return theme.DetailPanelStyle.
		Width(max(width-4, 20)).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
