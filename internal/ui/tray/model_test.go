package tray

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ufcrashout/iTrax/internal/agent"
	"github.com/ufcrashout/iTrax/internal/keys"
	"github.com/ufcrashout/iTrax/internal/model"
	"github.com/ufcrashout/iTrax/tests/testutil"
)

type recordingClicker struct {
	clicks []agent.NotificationClick
}

func (r *recordingClicker) HandleClick(_ context.Context, c agent.NotificationClick) {
	r.clicks = append(r.clicks, c)
}

func TestTrayLoadsAndClicks(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()

	_, err := st.AddDisplayed(ctx, model.DisplayedNotification{
		Title: "Van entered depot",
		Options: model.NotificationOptions{
			Body: "Geofence entry",
			Actions: []model.NotificationAction{
				{Action: agent.ActionExplore, Title: "View Details"},
				{Action: agent.ActionClose, Title: "Close"},
			},
		},
	})
	require.NoError(t, err)

	clicker := &recordingClicker{}
	m := New(st, clicker, keys.DefaultKeyMap(), nil, 80, 20)

	m, _ = m.Update(m.Load()())
	require.Equal(t, 1, m.Len())

	view := m.View()
	assert.Contains(t, view, "Van entered depot")
	assert.Contains(t, view, "[d] View Details")

	tests := []struct {
		key    tea.KeyMsg
		action string
	}{
		{tea.KeyMsg{Type: tea.KeyEnter}, ""},
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")}, agent.ActionExplore},
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")}, agent.ActionClose},
	}
	for _, tt := range tests {
		_, cmd := m.Update(tt.key)
		require.NotNil(t, cmd)
		msg, ok := cmd().(ClickedMsg)
		require.True(t, ok)
		assert.Equal(t, tt.action, msg.Click.Action)
	}
	require.Len(t, clicker.clicks, 3)
}

func TestTrayShownInsertsNewest(t *testing.T) {
	st := testutil.NewTestStore(t)
	m := New(st, &recordingClicker{}, keys.DefaultKeyMap(), nil, 80, 20)

	m, _ = m.Update(ShownMsg{Notification: model.DisplayedNotification{ID: "a", Title: "first", CreatedAt: time.Now()}})
	m, _ = m.Update(ShownMsg{Notification: model.DisplayedNotification{ID: "b", Title: "second", CreatedAt: time.Now()}})

	assert.Equal(t, 2, m.Len())
	assert.Contains(t, m.View(), "second")
}

func TestTrayEmpty(t *testing.T) {
	m := New(testutil.NewTestStore(t), &recordingClicker{}, keys.DefaultKeyMap(), nil, 80, 20)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "No push notifications")
}
