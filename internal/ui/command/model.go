package command

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ufcrashout/iTrax/internal/theme"
)

// Command palette verbs.
const (
	Subscribe   = "subscribe"
	Unsubscribe = "unsubscribe"
	Refresh     = "refresh"
	MarkAll     = "mark-all-read"
	Open        = "open"
	Status      = "status"
	Sync        = "sync"
	Configure   = "configure"
	Quit        = "quit"
)

// Commands lists every palette verb with a short description, in display
// order.
var Commands = []struct {
	Name string
	Help string
}{
	{Subscribe, "enable push notifications"},
	{Unsubscribe, "disable push notifications"},
	{Refresh, "poll the unread count now"},
	{MarkAll, "mark every notification read"},
	{Open, "open a dashboard route in the browser (default /notifications)"},
	{Status, "show push agent status"},
	{Sync, "run a background sync (tag optional)"},
	{Configure, "edit the dashboard connection"},
	{Quit, "exit"},
}

// CommandMsg is emitted when the user executes a command.
type CommandMsg struct {
	Name string
	Args []string
}

// Parse splits a palette line into a CommandMsg. Unique prefixes of a verb
// are expanded.
func Parse(line string) (CommandMsg, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return CommandMsg{}, false
	}

	name := strings.ToLower(fields[0])
	var match string
	for _, c := range Commands {
		if c.Name == name {
			match = name
			break
		}
		if strings.HasPrefix(c.Name, name) {
			if match != "" {
				return CommandMsg{}, false
			}
			match = c.Name
		}
	}
	if match == "" {
		return CommandMsg{}, false
	}

	return CommandMsg{Name: match, Args: fields[1:]}, true
}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	err    string
	width  int
	height int
}

// New creates a new command palette model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "type a command..."
	ti.Prompt = ": "
	ti.Focus()
	ti.Width = width - 6

	suggestions := make([]string, len(Commands))
	for i, c := range Commands {
		suggestions[i] = c.Name
	}
	ti.ShowSuggestions = true
	ti.SetSuggestions(suggestions)

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			if line == "" {
				return m, nil
			}
			parsed, ok := Parse(line)
			if !ok {
				m.err = "unknown command: " + line
				return m, nil
			}
			m.err = ""
			m.input.Reset()
			return m, func() tea.Msg {
				return parsed
			}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	title := titleStyle.Render("Command Palette")
	lines := []string{title, m.input.View()}
	if m.err != "" {
		lines = append(lines, theme.ErrorStyle.Render(m.err))
	}

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	m.err = ""
	return m.input.Focus()
}
