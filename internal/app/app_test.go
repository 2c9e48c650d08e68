package app

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ufcrashout/iTrax/internal/agent"
	"github.com/ufcrashout/iTrax/internal/api"
	"github.com/ufcrashout/iTrax/internal/controller"
	"github.com/ufcrashout/iTrax/internal/model"
	appsync "github.com/ufcrashout/iTrax/internal/sync"
	"github.com/ufcrashout/iTrax/internal/ui/command"
	"github.com/ufcrashout/iTrax/internal/ui/detail"
	"github.com/ufcrashout/iTrax/internal/ui/dropdown"
	"github.com/ufcrashout/iTrax/internal/ui/permission"
	"github.com/ufcrashout/iTrax/tests/testutil"
)

type memPermissions struct {
	mu   sync.Mutex
	perm model.Permission
}

func (m *memPermissions) Permission(context.Context) (model.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.perm == "" {
		return model.PermissionDefault, nil
	}
	return m.perm, nil
}

func (m *memPermissions) SetPermission(_ context.Context, p model.Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perm = p
	return nil
}

type opened struct {
	mu   sync.Mutex
	urls []string
}

func (o *opened) open(_ context.Context, url string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.urls = append(o.urls, url)
	return nil
}

func newTestModel(t *testing.T) (Model, *testutil.FakeDashboard, *memPermissions, *opened) {
	t.Helper()

	dash := testutil.NewFakeDashboard(t)
	client := api.NewClient(dash.URL(), api.WithCSRFToken(dash.CSRFToken), api.WithoutRateLimit())
	perms := &memPermissions{}
	ctrl := controller.New(client, nil, perms, controller.Options{})
	o := &opened{}

	cfg := &model.AppConfig{
		Server:  model.ServerConfig{BaseURL: dash.URL() + "/"},
		Display: model.DisplayConfig{ListLimit: 10, PageLimit: 50},
	}

	m := New(Deps{
		Config:      cfg,
		ConfigPath:  t.TempDir() + "/config.yaml",
		Controller:  ctrl,
		Poller:      appsync.New(ctrl, time.Hour),
		Permissions: perms,
		OpenURL:     o.open,
	})
	return m, dash, perms, o
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestCountIncreasePulsesBadge(t *testing.T) {
	m, _, _, _ := newTestModel(t)

	m, cmd := update(t, m, appsync.CountResultMsg{Count: 3})
	assert.Equal(t, 3, m.unreadCount)
	assert.True(t, m.pulse)
	assert.NotNil(t, cmd)

	m, _ = update(t, m, pulseEndMsg{seq: m.pulseSeq})
	assert.False(t, m.pulse)
}

func TestCountDecreaseDoesNotPulse(t *testing.T) {
	m, _, _, _ := newTestModel(t)
	m.unreadCount = 5

	m, _ = update(t, m, appsync.CountResultMsg{Count: 2})
	assert.Equal(t, 2, m.unreadCount)
	assert.False(t, m.pulse)
}

func TestStalePulseEndIsIgnored(t *testing.T) {
	m, _, _, _ := newTestModel(t)

	m, _ = update(t, m, appsync.CountResultMsg{Count: 1})
	first := m.pulseSeq
	m, _ = update(t, m, appsync.CountResultMsg{Count: 4})

	m, _ = update(t, m, pulseEndMsg{seq: first})
	assert.True(t, m.pulse)
}

func TestPollErrorKeepsCount(t *testing.T) {
	m, _, _, _ := newTestModel(t)
	m.unreadCount = 7

	m, _ = update(t, m, appsync.CountResultMsg{Count: 7, Err: assert.AnError})
	assert.Equal(t, 7, m.unreadCount)
	assert.ErrorIs(t, m.pollErr, assert.AnError)

	m, _ = update(t, m, appsync.CountResultMsg{Count: 7})
	assert.NoError(t, m.pollErr)
}

func TestMarkedReadUpdatesBadge(t *testing.T) {
	m, _, _, _ := newTestModel(t)
	m.unreadCount = 5

	m, _ = update(t, m, dropdown.MarkedReadMsg{ID: "1", Count: 4})
	assert.Equal(t, 4, m.unreadCount)

	m, _ = update(t, m, dropdown.MarkedReadMsg{ID: "2", Err: assert.AnError})
	assert.Equal(t, 4, m.unreadCount)
	assert.Contains(t, m.notice, "failed")
}

func TestListResultsReachTheListThatAsked(t *testing.T) {
	m, dash, _, _ := newTestModel(t)
	records := make([]model.NotificationRecord, 30)
	for i := range records {
		records[i] = model.NotificationRecord{ID: model.RecordID(strconv.Itoa(i + 1)), Message: "alert"}
	}
	dash.SetNotifications(records...)

	m, dropdownCmd := update(t, m, keyMsg("n"))
	m, pageCmd := update(t, m, keyMsg("N"))
	require.Equal(t, ViewAll, m.currentView)

	m, _ = update(t, m, pageCmd())
	m, _ = update(t, m, dropdownCmd())

	assert.Len(t, m.allPage.Records(), 30)
	assert.Len(t, m.dropdown.Records(), 10)
}

func TestMarkAllListFailureStillUpdatesBadge(t *testing.T) {
	m, _, _, _ := newTestModel(t)
	m.unreadCount = 4

	m, _ = update(t, m, dropdown.MarkedAllMsg{Count: 0, ListErr: assert.AnError})
	assert.Zero(t, m.unreadCount)
	assert.Contains(t, m.notice, "reloading the list failed")

	m.unreadCount = 4
	m, _ = update(t, m, dropdown.MarkedAllMsg{Err: assert.AnError})
	assert.Equal(t, 4, m.unreadCount)
	assert.Contains(t, m.notice, "mark all read failed")
}

func TestNavigateRoutes(t *testing.T) {
	m, _, _, _ := newTestModel(t)

	m, cmd := update(t, m, NavigateMsg{Route: agent.RouteNotifications})
	assert.Equal(t, ViewAll, m.currentView)
	assert.Equal(t, ViewAll, m.listView)
	assert.NotNil(t, cmd)

	m, _ = update(t, m, NavigateMsg{Route: agent.RouteRoot})
	assert.Equal(t, ViewHome, m.currentView)
}

func TestWindowSendsNavigate(t *testing.T) {
	var got []tea.Msg
	w := Window(func(msg tea.Msg) { got = append(got, msg) })

	require.NoError(t, w.Navigate(context.Background(), "/notifications"))
	assert.Equal(t, []tea.Msg{NavigateMsg{Route: "/notifications"}}, got)
}

func TestSelectedOpensDetailAndBackReturnsToList(t *testing.T) {
	m, _, _, _ := newTestModel(t)
	m, _ = update(t, m, keyMsg("N"))
	require.Equal(t, ViewAll, m.currentView)

	m, _ = update(t, m, dropdown.SelectedMsg{Record: model.NotificationRecord{ID: "9", Message: "hi"}})
	assert.Equal(t, ViewDetail, m.currentView)

	m, _ = update(t, m, detail.BackMsg{})
	assert.Equal(t, ViewAll, m.currentView)
}

func TestDropdownKeyToggles(t *testing.T) {
	m, _, _, _ := newTestModel(t)

	m, cmd := update(t, m, keyMsg("n"))
	assert.Equal(t, ViewDropdown, m.currentView)
	assert.NotNil(t, cmd)

	m, _ = update(t, m, keyMsg("n"))
	assert.Equal(t, ViewHome, m.currentView)
}

func TestPermissionRequestShowsPrompt(t *testing.T) {
	m, _, _, _ := newTestModel(t)

	first := make(chan model.Permission, 1)
	m, _ = update(t, m, permission.RequestMsg{Reply: first})
	assert.Equal(t, ViewPermission, m.currentView)

	second := make(chan model.Permission, 1)
	m, _ = update(t, m, permission.RequestMsg{Reply: second})
	assert.Equal(t, model.PermissionDefault, <-second)
	assert.Equal(t, ViewPermission, m.currentView)

	m, _ = update(t, m, permission.AnsweredMsg{Permission: model.PermissionGranted})
	assert.Equal(t, ViewHome, m.currentView)
}

func TestOpenCommandUsesBaseURL(t *testing.T) {
	m, dash, _, o := newTestModel(t)

	_, cmd := update(t, m, command.CommandMsg{Name: command.Open, Args: []string{"settings"}})
	require.NotNil(t, cmd)
	msg := cmd()

	assert.Equal(t, noticeMsg{text: "opened " + dash.URL() + "/settings"}, msg)
	assert.Equal(t, []string{dash.URL() + "/settings"}, o.urls)
}

func TestOpenWebOpensNotificationsPage(t *testing.T) {
	m, dash, _, o := newTestModel(t)

	_, cmd := update(t, m, dropdown.OpenWebMsg{})
	require.NotNil(t, cmd)
	cmd()

	assert.Equal(t, []string{dash.URL() + agent.RouteNotifications}, o.urls)
}

func TestBootstrapReportsDisabledPush(t *testing.T) {
	m, _, _, _ := newTestModel(t)

	msg := m.bootstrapPush()()
	done, ok := msg.(bootstrapDoneMsg)
	require.True(t, ok)
	assert.ErrorIs(t, done.err, controller.ErrPushUnsupported)
}

func TestSubscribeCommandClearsStoredBlock(t *testing.T) {
	m, _, perms, _ := newTestModel(t)
	perms.perm = model.PermissionDenied

	_, cmd := update(t, m, command.CommandMsg{Name: command.Subscribe})
	require.NotNil(t, cmd)
	done, ok := cmd().(pushDoneMsg)
	require.True(t, ok)

	assert.Error(t, done.err)
	p, err := perms.Permission(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.PermissionDefault, p)
}

func TestQuitKeyStopsPoller(t *testing.T) {
	m, _, _, _ := newTestModel(t)

	_, cmd := update(t, m, keyMsg("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestKeysIgnoredWhileCommandPaletteOpen(t *testing.T) {
	m, _, _, _ := newTestModel(t)

	m, _ = update(t, m, keyMsg(":"))
	require.Equal(t, ViewCommand, m.currentView)

	m, _ = update(t, m, keyMsg("n"))
	assert.Equal(t, ViewCommand, m.currentView)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, ViewHome, m.currentView)
}
