// Package tray lists push notifications that have been shown and not yet
// dismissed, and forwards clicks on them to the push agent.
package tray

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/ufcrashout/iTrax/internal/agent"
	"github.com/ufcrashout/iTrax/internal/keys"
	"github.com/ufcrashout/iTrax/internal/model"
	"github.com/ufcrashout/iTrax/internal/theme"
)

// Source lists the displayed notifications still open.
type Source interface {
	GetOpenDisplayed(ctx context.Context) ([]model.DisplayedNotification, error)
}

// Clicker handles a click on a displayed notification.
type Clicker interface {
	HandleClick(ctx context.Context, click agent.NotificationClick)
}

// LoadedMsg carries the open notifications, newest first.
type LoadedMsg struct {
	Items []model.DisplayedNotification
	Err   error
}

// ShownMsg is sent when the agent displays a new notification.
type ShownMsg struct {
	Notification model.DisplayedNotification
}

// ClickedMsg is sent after a click has been handed to the agent.
type ClickedMsg struct {
	Click agent.NotificationClick
}

type item struct {
	n model.DisplayedNotification
}

func (i item) FilterValue() string { return i.n.Title }

type delegate struct {
	now func() time.Time
}

func (d delegate) Height() int                             { return 2 }
func (d delegate) Spacing() int                            { return 0 }
func (d delegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d delegate) Render(w io.Writer, m list.Model, index int, li list.Item) {
	it, ok := li.(item)
	if !ok {
		return
	}

	n := it.n
	title := fmt.Sprintf("%s %s", theme.UnreadStyle.Render(n.Title),
		theme.HelpStyle.Render(humanize.RelTime(n.CreatedAt, d.now(), "ago", "from now")))
	body := "  " + n.Options.Body
	if len(n.Options.Actions) > 0 {
		body += "  " + theme.HelpStyle.Render(actionHints(n.Options.Actions))
	}

	line := lipgloss.JoinVertical(lipgloss.Left, title, body)
	if index == m.Index() {
		fmt.Fprint(w, theme.SelectedItemStyle.Render(line))
		return
	}
	fmt.Fprint(w, theme.ListItemStyle.Render(line))
}

// actionHints renders the notification's buttons with the keys that press
// them.
func actionHints(actions []model.NotificationAction) string {
	out := ""
	for _, a := range actions {
		k := ""
		switch a.Action {
		case agent.ActionExplore:
			k = "d"
		case agent.ActionClose:
			k = "x"
		default:
			continue
		}
		if out != "" {
			out += "  "
		}
		out += fmt.Sprintf("[%s] %s", k, a.Title)
	}
	return out
}

// Model is the tray view.
type Model struct {
	list    list.Model
	source  Source
	clicker Clicker
	keys    *keys.KeyMap
	err     error
	width   int
	height  int
}

// New creates a tray view. now may be nil.
func New(src Source, clicker Clicker, k *keys.KeyMap, now func() time.Time, width, height int) Model {
	if now == nil {
		now = time.Now
	}

	l := list.New([]list.Item{}, delegate{now: now}, width, height-2)
	l.Title = "Push Tray"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle
	l.SetStatusBarItemName("notification", "notifications")

	return Model{
		list:    l,
		source:  src,
		clicker: clicker,
		keys:    k,
		width:   width,
		height:  height,
	}
}

// Init loads the tray.
func (m Model) Init() tea.Cmd {
	return m.Load()
}

// Load returns a tea.Cmd that reads the open notifications.
func (m Model) Load() tea.Cmd {
	src := m.source
	return func() tea.Msg {
		items, err := src.GetOpenDisplayed(context.Background())
		return LoadedMsg{Items: items, Err: err}
	}
}

// Len returns the number of open notifications.
func (m Model) Len() int {
	return len(m.list.Items())
}

// Update handles messages for the tray.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.err = nil
		items := make([]list.Item, len(msg.Items))
		for i, n := range msg.Items {
			items[i] = item{n: n}
		}
		return m, m.list.SetItems(items)

	case ShownMsg:
		return m, m.list.InsertItem(0, item{n: msg.Notification})

	case ClickedMsg:
		return m, m.Load()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Select):
			return m, m.click("")
		case key.Matches(msg, m.keys.Detail):
			return m, m.click(agent.ActionExplore)
		case key.Matches(msg, m.keys.Dismiss):
			return m, m.click(agent.ActionClose)
		case key.Matches(msg, m.keys.Refresh):
			return m, m.Load()
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// click hands the selected notification to the agent with action.
func (m Model) click(action string) tea.Cmd {
	it, ok := m.list.SelectedItem().(item)
	if !ok {
		return nil
	}

	clicker := m.clicker
	click := agent.NotificationClick{NotificationID: it.n.ID, Action: action}
	return func() tea.Msg {
		clicker.HandleClick(context.Background(), click)
		return ClickedMsg{Click: click}
	}
}

// View renders the tray.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No push notifications.\n\nNew pushes appear here while the agent runs.")
	}
	return m.list.View()
}

// SetSize updates the tray dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
}
