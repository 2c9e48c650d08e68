package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/ufcrashout/iTrax/internal/theme"
)

// Layout manages the multi-panel terminal layout dimensions.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
// HeaderHeight and StatusBarHeight default to 1.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the main content area,
// accounting for the header and status bar.
func (l Layout) ContentHeight() int {
	return l.Height - l.HeaderHeight - l.StatusBarHeight
}

// Badge renders the bell with the unread count. A zero count hides the
// number; pulse selects the highlighted style used right after an increase.
func Badge(count int, pulse bool) string {
	bell := theme.HeaderStyle.Render("🔔")
	if count <= 0 {
		return bell
	}

	label := fmt.Sprintf("%d", count)
	if count > 99 {
		label = "99+"
	}

	style := theme.BadgeStyle
	if pulse {
		style = theme.BadgePulseStyle
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, bell, style.Render(label))
}

// RenderHeader renders the top header bar with a title, the badge, and
// the push status.
func (l Layout) RenderHeader(title, badge, pushStatus string) string {
	titleRendered := theme.HeaderStyle.Render(title)

	statusRendered := theme.HeaderStyle.
		Align(lipgloss.Right).
		Render(pushStatus)

	right := lipgloss.JoinHorizontal(lipgloss.Top, statusRendered, badge)

	gap := max(0, l.Width-lipgloss.Width(titleRendered)-lipgloss.Width(right))

	filler := theme.HeaderStyle.Render(
		lipgloss.NewStyle().
			Width(gap).
			Background(theme.HeaderStyle.GetBackground()).
			Render(""),
	)

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		titleRendered,
		filler,
		right,
	)
}

// RenderStatusBar renders the bottom status bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	rendered := theme.StatusBarStyle.Render(hints)

	gap := max(0, l.Width-lipgloss.Width(rendered))

	filler := theme.StatusBarStyle.Render(
		lipgloss.NewStyle().
			Width(gap).
			Background(theme.StatusBarStyle.GetBackground()).
			Render(""),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, filler)
}

// RenderWithFrame composes a full terminal view by vertically joining
// the header, content area, and status bar.
func (l Layout) RenderWithFrame(
	header string,
	content string,
	statusBar string,
) string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		content,
		statusBar,
	)
}
