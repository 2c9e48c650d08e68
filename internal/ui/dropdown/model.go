// Package dropdown renders the recent-notifications list and applies
// read-state changes once the server has confirmed them.
package dropdown

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ufcrashout/iTrax/internal/keys"
	"github.com/ufcrashout/iTrax/internal/model"
	"github.com/ufcrashout/iTrax/internal/theme"
)

// EmptyText is rendered when the server returns no records.
const EmptyText = "No notifications"

// requestTimeout bounds each list or mark request.
const requestTimeout = 15 * time.Second

// Source is the notification state the dropdown reads and mutates.
type Source interface {
	FetchPage(ctx context.Context, unreadOnly bool, limit int) ([]model.NotificationRecord, error)
	MarkRead(ctx context.Context, id model.RecordID) error
	MarkAllRead(ctx context.Context, unreadOnly bool) (model.MarkAllResult, error)
	UnreadCount() int
}

// LoadedMsg carries a fetched page. FullPage names the list that asked
// for it.
type LoadedMsg struct {
	Records  []model.NotificationRecord
	Err      error
	FullPage bool
}

// MarkedReadMsg reports the outcome of marking one record read. Count is
// the unread count after the follow-up poll.
type MarkedReadMsg struct {
	ID    model.RecordID
	Count int
	Err   error
}

// MarkedAllMsg reports the outcome of marking everything read, with the
// re-fetched records and count. Err is set only when the server refused
// the mark; ListErr means it stuck but the refetch failed.
type MarkedAllMsg struct {
	Records  []model.NotificationRecord
	Count    int
	Err      error
	ListErr  error
	Reload   bool
	FullPage bool
}

// SelectedMsg asks the parent to show a record's details.
type SelectedMsg struct {
	Record model.NotificationRecord
}

// OpenWebMsg asks the parent to open the dashboard notifications page.
type OpenWebMsg struct{}

// Model is the dropdown view component.
type Model struct {
	list       list.Model
	source     Source
	keys       *keys.KeyMap
	title      string
	limit      int
	fullPage   bool
	unreadOnly bool
	loading    bool
	loaded     bool
	err        error
	width      int
	height     int
}

// Options configure a dropdown.
type Options struct {
	Title string
	Limit int

	// FullPage marks the larger page view; mark-all then reloads at Limit
	// instead of taking the dropdown-sized refetch.
	FullPage bool

	// Now is the clock used for relative times; nil means time.Now.
	Now func() time.Time
}

// New creates a dropdown model.
func New(src Source, k *keys.KeyMap, opts Options, width, height int) Model {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Title == "" {
		opts.Title = "Notifications"
	}

	l := list.New([]list.Item{}, ItemDelegate{now: opts.Now}, width-4, height-4)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetShowTitle(false)
	l.SetFilteringEnabled(false)

	return Model{
		list:     l,
		source:   src,
		keys:     k,
		title:    opts.Title,
		limit:    opts.Limit,
		fullPage: opts.FullPage,
		width:    width,
		height:   height,
	}
}

// Init loads the first page.
func (m Model) Init() tea.Cmd {
	return m.Load()
}

// Load returns a tea.Cmd fetching the current page.
func (m Model) Load() tea.Cmd {
	src, unreadOnly, limit, fullPage := m.source, m.unreadOnly, m.limit, m.fullPage
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		records, err := src.FetchPage(ctx, unreadOnly, limit)
		return LoadedMsg{Records: records, Err: err, FullPage: fullPage}
	}
}

// Open marks the dropdown loading and fetches a fresh page.
func (m *Model) Open() tea.Cmd {
	m.loading = true
	return m.Load()
}

// FullPage reports whether this is the full notifications page.
func (m Model) FullPage() bool {
	return m.fullPage
}

// UnreadOnly reports whether the read-state filter is on.
func (m Model) UnreadOnly() bool {
	return m.unreadOnly
}

// Records returns the records currently shown.
func (m Model) Records() []model.NotificationRecord {
	items := m.list.Items()
	out := make([]model.NotificationRecord, 0, len(items))
	for _, it := range items {
		if i, ok := it.(Item); ok {
			out = append(out, i.Record)
		}
	}
	return out
}

// Update handles messages for the dropdown.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		m.loading = false
		if msg.Err != nil {
			// Keep what is shown; the error is surfaced in the status line.
			m.err = msg.Err
			return m, nil
		}
		m.err = nil
		m.loaded = true
		return m, m.setRecords(msg.Records)

	case MarkedReadMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.err = nil
		m.markLocal(msg.ID)
		return m, nil

	case MarkedAllMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		if msg.Reload {
			m.err = nil
			return m, m.Load()
		}
		if msg.ListErr != nil {
			m.err = msg.ListErr
			m.markAllLocal()
			return m, nil
		}
		m.err = nil
		return m, m.setRecords(msg.Records)

	case tea.KeyMsg:
		return m.handleKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Select):
		item, ok := m.list.SelectedItem().(Item)
		if !ok {
			return m, nil
		}
		if item.Record.IsRead {
			return m, func() tea.Msg { return SelectedMsg{Record: item.Record} }
		}
		return m, m.MarkRead(item.Record.ID)

	case key.Matches(msg, m.keys.Detail):
		item, ok := m.list.SelectedItem().(Item)
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg { return SelectedMsg{Record: item.Record} }

	case key.Matches(msg, m.keys.UnreadOnly):
		m.unreadOnly = !m.unreadOnly
		m.loading = true
		return m, m.Load()

	case key.Matches(msg, m.keys.MarkAllRead):
		return m, m.MarkAll()

	case key.Matches(msg, m.keys.Refresh):
		m.loading = true
		return m, m.Load()

	case key.Matches(msg, m.keys.OpenWeb):
		return m, func() tea.Msg { return OpenWebMsg{} }
	}

	// Delegate to the list for navigation keys (up/down/pgup/pgdn)
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// MarkRead returns a command marking id read on the server. The row is
// only restyled when the resulting MarkedReadMsg reports success.
func (m Model) MarkRead(id model.RecordID) tea.Cmd {
	src := m.source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		if err := src.MarkRead(ctx, id); err != nil {
			return MarkedReadMsg{ID: id, Err: err}
		}
		return MarkedReadMsg{ID: id, Count: src.UnreadCount()}
	}
}

// MarkAll returns a command marking every record read and re-fetching.
func (m Model) MarkAll() tea.Cmd {
	src, unreadOnly, fullPage := m.source, m.unreadOnly, m.fullPage
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		res, err := src.MarkAllRead(ctx, unreadOnly)
		return MarkedAllMsg{
			Records:  res.Records,
			Count:    src.UnreadCount(),
			Err:      err,
			ListErr:  res.ListErr,
			Reload:   fullPage,
			FullPage: fullPage,
		}
	}
}

// markLocal restyles a single row as read.
func (m *Model) markLocal(id model.RecordID) {
	for i, it := range m.list.Items() {
		item, ok := it.(Item)
		if !ok || item.Record.ID != id {
			continue
		}
		item.Record.IsRead = true
		m.list.SetItem(i, item)
		return
	}
}

// markAllLocal restyles every shown row as read.
func (m *Model) markAllLocal() {
	for i, it := range m.list.Items() {
		if item, ok := it.(Item); ok && !item.Record.IsRead {
			item.Record.IsRead = true
			m.list.SetItem(i, item)
		}
	}
}

func (m *Model) setRecords(records []model.NotificationRecord) tea.Cmd {
	items := make([]list.Item, len(records))
	for i, r := range records {
		items[i] = Item{Record: r}
	}
	return m.list.SetItems(items)
}

// Err returns the last request error, if any.
func (m Model) Err() error {
	return m.err
}

// View renders the dropdown.
func (m Model) View() string {
	filter := "all"
	if m.unreadOnly {
		filter = "unread"
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		theme.HeaderStyle.Render(m.title),
		" ",
		theme.HelpStyle.Render(filter),
	)

	var body string
	switch {
	case !m.loaded && m.err != nil:
		body = theme.ErrorStyle.Render("Could not load notifications: " + m.err.Error())
	case !m.loaded:
		body = theme.HelpStyle.Render("Loading...")
	case len(m.list.Items()) == 0:
		body = lipgloss.NewStyle().
			Width(max(m.width-4, 0)).
			Align(lipgloss.Center).
			Foreground(theme.ColorGray).
			Render(EmptyText)
	default:
		body = m.list.View()
	}

	return theme.DropdownStyle.
		Width(max(m.width-2, 0)).
		Render(lipgloss.JoinVertical(lipgloss.Left, header, body))
}

// SetSize updates the dropdown dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width-4, height-4)
}
