package detail

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ufcrashout/iTrax/internal/keys"
	"github.com/ufcrashout/iTrax/internal/model"
	"github.com/ufcrashout/iTrax/internal/theme"
	"github.com/ufcrashout/iTrax/internal/ui/dropdown"
)

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// MarkReadMsg asks the parent to mark the shown record read.
type MarkReadMsg struct {
	ID model.RecordID
}

// Model is the notification detail view component.
type Model struct {
	record   *model.NotificationRecord
	viewport viewport.Model
	keys     *keys.KeyMap
	now      func() time.Time
	width    int
	height   int
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		now:      time.Now,
		width:    width,
		height:   height,
	}
}

// Init returns the initial command for the detail view.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case dropdown.MarkedReadMsg:
		if msg.Err == nil && m.record != nil && m.record.ID == msg.ID {
			m.record.IsRead = true
			m.viewport.SetContent(m.renderContent())
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg {
				return BackMsg{}
			}

		case key.Matches(msg, m.keys.Select):
			if m.record != nil && !m.record.IsRead {
				id := m.record.ID
				return m, func() tea.Msg {
					return MarkReadMsg{ID: id}
				}
			}
			return m, nil
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	if m.record == nil {
		emptyStyle := lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray)
		return emptyStyle.Render("No notification selected")
	}

	return m.viewport.View()
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	if m.record == nil {
		return ""
	}

	r := m.record
	var sections []string

	icon := dropdown.IconFor(r.NotificationType, r.EventType).Glyph()
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render(icon+"  "+r.Message))

	// Badges line: type + priority + read state
	typeLabel := string(r.NotificationType)
	if typeLabel == "" {
		typeLabel = string(model.NotificationTypeOther)
	}
	badges := []string{
		theme.TypeStyle(typeLabel).Render(strings.ToUpper(typeLabel)),
		theme.PriorityStyle(string(r.Priority)).Render(string(r.Priority)),
	}
	if r.IsRead {
		badges = append(badges, theme.ReadStyle.Render("read"))
	} else {
		badges = append(badges, theme.NewMarkerStyle.Render("New"))
	}
	sections = append(sections, strings.Join(badges, "  "), "")

	// Metadata table
	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray).Width(11)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)

	add := func(label, value string) {
		if value == "" {
			return
		}
		sections = append(sections, metaStyle.Render(label+":")+" "+valStyle.Render(value))
	}

	add("Device", r.Name())
	add("Event", r.EventType)
	add("Geofence", r.GeofenceName)
	add("Rule", r.RuleName)
	if !r.Timestamp.IsZero() {
		add("Time", fmt.Sprintf("%s (%s)",
			r.Timestamp.Local().Format("2006-01-02 15:04:05"),
			dropdown.RelativeTime(m.now(), r.Timestamp.Time)))
	}
	if r.ReadAt != nil && !r.ReadAt.IsZero() {
		add("Read at", r.ReadAt.Local().Format("2006-01-02 15:04:05"))
	}
	add("ID", string(r.ID))

	if !r.IsRead {
		sections = append(sections, "", theme.HelpStyle.Render("enter: mark read  esc: back"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetRecord updates the record being displayed and re-renders the content.
func (m *Model) SetRecord(r model.NotificationRecord) {
	m.record = &r
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
}
