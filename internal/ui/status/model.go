// Package status shows the push agent's lifecycle, cache, subscription,
// and poll health.
package status

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/ufcrashout/iTrax/internal/keys"
	"github.com/ufcrashout/iTrax/internal/theme"
)

// Snapshot is everything the status view shows.
type Snapshot struct {
	AgentState string
	Scope      string
	Assets     int
	AssetBytes int64

	PushState string
	CSRF      bool
	RelayURL  string
	UAID      string
	Endpoint  string

	Unread   int
	LastPoll time.Time
	PollErr  error
	Interval time.Duration

	OpenInTray int
	Windows    int
}

// Loader gathers a Snapshot.
type Loader func(ctx context.Context) (Snapshot, error)

// LoadedMsg carries a fresh snapshot.
type LoadedMsg struct {
	Snapshot Snapshot
	Err      error
}

// CopiedMsg reports the outcome of copying the endpoint.
type CopiedMsg struct {
	Err error
}

// Model is the status view.
type Model struct {
	load   Loader
	keys   *keys.KeyMap
	now    func() time.Time
	clip   func(string) error
	snap   Snapshot
	err    error
	note   string
	width  int
	height int
}

// New creates a status view.
func New(load Loader, k *keys.KeyMap, width, height int) Model {
	return Model{
		load:   load,
		keys:   k,
		now:    time.Now,
		clip:   clipboard.WriteAll,
		width:  width,
		height: height,
	}
}

// Init loads the first snapshot.
func (m Model) Init() tea.Cmd {
	return m.Load()
}

// Load returns a tea.Cmd that gathers a snapshot.
func (m Model) Load() tea.Cmd {
	load := m.load
	return func() tea.Msg {
		snap, err := load(context.Background())
		return LoadedMsg{Snapshot: snap, Err: err}
	}
}

// Update handles messages for the status view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		m.err = msg.Err
		if msg.Err == nil {
			m.snap = msg.Snapshot
		}
		return m, nil

	case CopiedMsg:
		if msg.Err != nil {
			m.note = "copy failed: " + msg.Err.Error()
		} else {
			m.note = "endpoint copied"
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Refresh):
			m.note = ""
			return m, m.Load()
		case key.Matches(msg, m.keys.CopyEndpoint):
			endpoint, clip := m.snap.Endpoint, m.clip
			if endpoint == "" {
				m.note = "no push subscription"
				return m, nil
			}
			return m, func() tea.Msg { return CopiedMsg{Err: clip(endpoint)} }
		}
	}
	return m, nil
}

// View renders the status view.
func (m Model) View() string {
	s := m.snap
	labelStyle := lipgloss.NewStyle().Foreground(theme.ColorGray).Width(14)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	section := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue).MarginTop(1)

	row := func(label, value string) string {
		if value == "" {
			value = theme.HelpStyle.Render("none")
		} else {
			value = valStyle.Render(value)
		}
		return labelStyle.Render(label) + value
	}

	lastPoll := "never"
	if !s.LastPoll.IsZero() {
		lastPoll = humanize.RelTime(s.LastPoll, m.now(), "ago", "from now")
	}

	lines := []string{
		section.Render("Agent"),
		row("State", s.AgentState),
		row("Scope", s.Scope),
		row("Cache", fmt.Sprintf("%s assets, %s", humanize.Comma(int64(s.Assets)), humanize.Bytes(uint64(max(s.AssetBytes, 0))))),
		row("Windows", humanize.Comma(int64(s.Windows))),
		row("Tray", fmt.Sprintf("%d open", s.OpenInTray)),

		section.Render("Push"),
		labelStyle.Render("State") + theme.PushStateStyle(s.PushState).Render(s.PushState),
		row("Service", s.RelayURL),
		row("CSRF token", csrfLabel(s.CSRF)),
		row("UAID", s.UAID),
		row("Endpoint", s.Endpoint),

		section.Render("Polling"),
		row("Unread", humanize.Comma(int64(s.Unread))),
		row("Every", s.Interval.String()),
		row("Last poll", lastPoll),
	}
	if s.PollErr != nil {
		lines = append(lines, labelStyle.Render("Last error")+theme.ErrorStyle.Render(s.PollErr.Error()))
	}
	if m.err != nil {
		lines = append(lines, "", theme.ErrorStyle.Render("status unavailable: "+m.err.Error()))
	}
	if m.note != "" {
		lines = append(lines, "", theme.HelpStyle.Render(m.note))
	}

	return theme.DetailPanelStyle.
		Width(max(m.width-4, 0)).
		Render(strings.Join(lines, "\n"))
}

func csrfLabel(ok bool) string {
	if ok {
		return "present"
	}
	return "missing, changes will be refused"
}

// SetSize updates the status view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}
