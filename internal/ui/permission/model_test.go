package permission

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ufcrashout/iTrax/internal/model"
)

func TestEscDismisses(t *testing.T) {
	reply := make(chan model.Permission, 1)
	m := New(reply, 80)

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.True(t, m.Done())
	require.NotNil(t, cmd)

	assert.Equal(t, AnsweredMsg{Permission: model.PermissionDefault}, cmd())
	assert.Equal(t, model.PermissionDefault, <-reply)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Nil(t, cmd, "answers only once")
}

func TestBridgeDeliversAnswer(t *testing.T) {
	requests := make(chan RequestMsg, 1)
	b := NewBridge(func(msg tea.Msg) { requests <- msg.(RequestMsg) })

	go func() {
		req := <-requests
		req.Reply <- model.PermissionGranted
	}()

	got, err := b.Prompt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.PermissionGranted, got)
}

func TestBridgeCanceled(t *testing.T) {
	b := NewBridge(func(tea.Msg) {})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	got, err := b.Prompt(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, model.PermissionDefault, got)
}
