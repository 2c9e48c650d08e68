// Package permission asks the user whether iTrax may show desktop
// notifications, from inside the running terminal UI.
package permission

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/ufcrashout/iTrax/internal/model"
	"github.com/ufcrashout/iTrax/internal/theme"
)

// RequestMsg asks the UI to show the prompt. The answer is sent on Reply.
type RequestMsg struct {
	Reply chan<- model.Permission
}

// AnsweredMsg is emitted once the prompt closes.
type AnsweredMsg struct {
	Permission model.Permission
}

// Bridge turns the UI prompt into a blocking call usable from a
// background goroutine.
type Bridge struct {
	send func(tea.Msg)
}

// NewBridge creates a bridge that delivers requests with send, typically
// (*tea.Program).Send.
func NewBridge(send func(tea.Msg)) *Bridge {
	return &Bridge{send: send}
}

// Prompt shows the prompt and waits for the answer. A canceled context
// counts as a dismissed prompt.
func (b *Bridge) Prompt(ctx context.Context) (model.Permission, error) {
	reply := make(chan model.Permission, 1)
	b.send(RequestMsg{Reply: reply})

	select {
	case p := <-reply:
		return p, nil
	case <-ctx.Done():
		return model.PermissionDefault, ctx.Err()
	}
}

// Model is the permission prompt view.
type Model struct {
	form  *huh.Form
	allow *bool
	reply chan<- model.Permission
	done  bool
	width int
}

// New creates a prompt answering on reply.
func New(reply chan<- model.Permission, width int) Model {
	allow := new(bool)
	*allow = true

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Show iTrax notifications on this computer?").
				Description("Geofence and device alerts arrive even when this window is in the background.\nEsc decides later.").
				Affirmative("Allow").
				Negative("Block").
				Value(allow),
		),
	).WithShowHelp(true).WithWidth(max(width-8, 20))

	return Model{
		form:  form,
		allow: allow,
		reply: reply,
		width: width,
	}
}

// Init starts the form.
func (m Model) Init() tea.Cmd {
	return m.form.Init()
}

// Done reports whether the prompt has been answered or dismissed.
func (m Model) Done() bool {
	return m.done
}

// Update handles messages for the prompt.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.done {
		return m, nil
	}

	if k, ok := msg.(tea.KeyMsg); ok && k.String() == "esc" {
		return m.finish(model.PermissionDefault)
	}

	f, cmd := m.form.Update(msg)
	if form, ok := f.(*huh.Form); ok {
		m.form = form
	}

	switch m.form.State {
	case huh.StateCompleted:
		if *m.allow {
			return m.finish(model.PermissionGranted)
		}
		return m.finish(model.PermissionDenied)
	case huh.StateAborted:
		return m.finish(model.PermissionDefault)
	}

	return m, cmd
}

func (m Model) finish(p model.Permission) (Model, tea.Cmd) {
	m.done = true
	if m.reply != nil {
		m.reply <- p
	}
	return m, func() tea.Msg { return AnsweredMsg{Permission: p} }
}

// View renders the prompt.
func (m Model) View() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render("Notifications")

	return theme.DetailPanelStyle.
		Width(max(m.width-4, 0)).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, m.form.View()))
}
