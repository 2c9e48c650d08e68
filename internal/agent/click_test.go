package agent_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ufcrashout/iTrax/internal/agent"
)

func TestClickRouting(t *testing.T) {
	tests := []struct {
		name   string
		action string
		want   []string
	}{
		{name: "view details", action: agent.ActionExplore, want: []string{agent.RouteNotifications}},
		{name: "close", action: agent.ActionClose, want: nil},
		{name: "body", action: "", want: []string{agent.RouteRoot}},
		{name: "unknown action", action: "snooze", want: []string{agent.RouteRoot}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			win := &recordingWindow{}
			clients := agent.NewClients("http://localhost:5000", nil)
			clients.Attach(win)

			a, display := newAgent(t, "http://localhost:5000", agent.WithClients(clients))
			a.HandleClick(context.Background(), agent.NotificationClick{NotificationID: "n1", Action: tt.action})
			a.Wait()

			assert.Equal(t, []string{"n1"}, display.Closed(), "notification is always closed first")
			assert.Equal(t, tt.want, win.Routes())
		})
	}
}

func TestClickWithoutWindowLaunches(t *testing.T) {
	var (
		mu       sync.Mutex
		launched []string
	)
	clients := agent.NewClients("http://localhost:5000/", func(_ context.Context, url string) error {
		mu.Lock()
		defer mu.Unlock()
		launched = append(launched, url)
		return nil
	})

	a, _ := newAgent(t, "http://localhost:5000", agent.WithClients(clients))
	a.HandleClick(context.Background(), agent.NotificationClick{NotificationID: "n1", Action: agent.ActionExplore})
	a.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"http://localhost:5000/notifications"}, launched)
}

func TestClickFocusesMostRecentWindow(t *testing.T) {
	first, second := &recordingWindow{}, &recordingWindow{}
	clients := agent.NewClients("http://localhost:5000", nil)
	clients.Attach(first)
	detach := clients.Attach(second)

	a, _ := newAgent(t, "http://localhost:5000", agent.WithClients(clients))
	a.HandleClick(context.Background(), agent.NotificationClick{NotificationID: "n1"})
	a.Wait()

	assert.Empty(t, first.Routes())
	assert.Equal(t, []string{"/"}, second.Routes())

	detach()
	require.Equal(t, 1, clients.Count())

	a.HandleClick(context.Background(), agent.NotificationClick{NotificationID: "n2"})
	a.Wait()
	assert.Equal(t, []string{"/"}, first.Routes())
}

func TestClickWithNoWindowAndNoLauncherDoesNotFail(t *testing.T) {
	a, display := newAgent(t, "http://localhost:5000")

	a.HandleClick(context.Background(), agent.NotificationClick{NotificationID: "n1"})
	a.Wait()

	assert.Equal(t, []string{"n1"}, display.Closed())
}
