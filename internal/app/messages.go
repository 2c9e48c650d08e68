package app

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ufcrashout/iTrax/internal/agent"
)

// NavigateMsg asks the UI to show a dashboard route. The agent sends it
// when a notification click focuses this window.
type NavigateMsg struct {
	Route string
}

// bootstrapDoneMsg reports the outcome of the startup push bootstrap.
type bootstrapDoneMsg struct {
	err error
}

// pushDoneMsg reports a palette subscribe or unsubscribe.
type pushDoneMsg struct {
	verb string
	err  error
}

// noticeMsg sets the one-line notice in the status bar.
type noticeMsg struct {
	text string
	err  error
}

// pulseEndMsg clears the badge highlight started by increase seq.
type pulseEndMsg struct {
	seq int
}

// Window adapts a running program into a client window the agent can
// focus. Routes arrive as NavigateMsg.
func Window(send func(tea.Msg)) agent.Window {
	return agent.WindowFunc(func(_ context.Context, route string) error {
		send(NavigateMsg{Route: route})
		return nil
	})
}
