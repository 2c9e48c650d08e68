package controller_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ufcrashout/iTrax/internal/agent"
	"github.com/ufcrashout/iTrax/internal/api"
	"github.com/ufcrashout/iTrax/internal/controller"
	"github.com/ufcrashout/iTrax/internal/model"
	"github.com/ufcrashout/iTrax/tests/testutil"
)

// fakePushManager hands out one subscription per key.
type fakePushManager struct {
	mu         sync.Mutex
	sub        *model.Subscription
	subscribed []agent.SubscribeOptions
	failWith   error
}

func (f *fakePushManager) GetSubscription(context.Context) (*model.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sub, nil
}

func (f *fakePushManager) Subscribe(_ context.Context, opts agent.SubscribeOptions) (*model.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.subscribed = append(f.subscribed, opts)
	f.sub = &model.Subscription{
		Endpoint: "https://push.example.com/wpush/v2/" + opts.ApplicationServerKey,
		Keys:     model.SubscriptionKeys{P256dh: "p", Auth: "a"},
	}
	return f.sub, nil
}

func (f *fakePushManager) Unsubscribe(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	had := f.sub != nil
	f.sub = nil
	return had, nil
}

// memPermissions is an in-memory Permissions.
type memPermissions struct {
	perm model.Permission
}

func (m *memPermissions) Permission(context.Context) (model.Permission, error) {
	if m.perm == "" {
		return model.PermissionDefault, nil
	}
	return m.perm, nil
}

func (m *memPermissions) SetPermission(_ context.Context, p model.Permission) error {
	m.perm = p
	return nil
}

func grant(context.Context) (model.Permission, error) { return model.PermissionGranted, nil }

type fixture struct {
	dash  *testutil.FakeDashboard
	pm    *fakePushManager
	perms *memPermissions
	ctrl  *controller.Controller
}

func newFixture(t *testing.T, opts controller.Options) *fixture {
	t.Helper()

	f := &fixture{
		dash:  testutil.NewFakeDashboard(t),
		pm:    &fakePushManager{},
		perms: &memPermissions{},
	}
	client := api.NewClient(f.dash.URL(), api.WithCSRFToken(f.dash.CSRFToken), api.WithoutRateLimit())
	register := func(context.Context) (controller.PushManager, error) { return f.pm, nil }

	opts.PushEnabled = true
	f.ctrl = controller.New(client, register, f.perms, opts)
	return f
}

func TestSubscribeTwiceRegistersOnce(t *testing.T) {
	f := newFixture(t, controller.Options{})
	ctx := context.Background()

	require.NoError(t, f.ctrl.BootstrapPush(ctx, grant))
	require.NoError(t, f.ctrl.Subscribe(ctx))
	require.NoError(t, f.ctrl.Subscribe(ctx))

	assert.Equal(t, controller.StateSubscribed, f.ctrl.State())
	assert.Len(t, f.dash.CallsTo(http.MethodPost, api.PathSubscribe), 1)
	assert.Len(t, f.pm.subscribed, 1)
	assert.True(t, f.pm.subscribed[0].UserVisibleOnly)
	assert.Equal(t, f.dash.VAPIDKey, f.pm.subscribed[0].ApplicationServerKey)

	calls := f.dash.CallsTo(http.MethodPost, api.PathSubscribe)
	assert.Equal(t, f.dash.CSRFToken, calls[0].CSRF)
}

func TestSubscribeReusesExistingSubscription(t *testing.T) {
	f := newFixture(t, controller.Options{})
	f.pm.sub = &model.Subscription{Endpoint: "https://push.example.com/existing"}
	ctx := context.Background()

	require.NoError(t, f.ctrl.BootstrapPush(ctx, grant))

	assert.Empty(t, f.pm.subscribed, "no new subscription when one exists")
	assert.Empty(t, f.dash.CallsTo(http.MethodGet, api.PathVAPIDKey))
	subs := f.dash.Subscriptions()
	require.Len(t, subs, 1)
	assert.Equal(t, "https://push.example.com/existing", subs[0].Endpoint)
}

func TestSubscribeFallsBackToConfiguredKey(t *testing.T) {
	f := newFixture(t, controller.Options{FallbackKey: model.DefaultVAPIDKey})
	f.dash.Fail(api.PathVAPIDKey, http.StatusInternalServerError)

	require.NoError(t, f.ctrl.BootstrapPush(context.Background(), grant))

	require.Len(t, f.pm.subscribed, 1)
	assert.Equal(t, model.DefaultVAPIDKey, f.pm.subscribed[0].ApplicationServerKey)
	assert.Equal(t, controller.StateSubscribed, f.ctrl.State())
}

func TestSubscribeWithoutFallbackHaltsAtGranted(t *testing.T) {
	f := newFixture(t, controller.Options{})
	f.dash.Fail(api.PathVAPIDKey, http.StatusInternalServerError)

	err := f.ctrl.BootstrapPush(context.Background(), grant)
	require.Error(t, err)
	assert.Equal(t, controller.StatePermissionGranted, f.ctrl.State())
	assert.Nil(t, f.ctrl.Subscription())
}

func TestSubscriptionPostFailureIsNotRetried(t *testing.T) {
	f := newFixture(t, controller.Options{})
	f.dash.Fail(api.PathSubscribe, http.StatusInternalServerError)
	ctx := context.Background()

	require.NoError(t, f.ctrl.BootstrapPush(ctx, grant))
	require.NoError(t, f.ctrl.Subscribe(ctx))

	assert.Equal(t, controller.StateSubscribed, f.ctrl.State())
	assert.Len(t, f.dash.CallsTo(http.MethodPost, api.PathSubscribe), 1)
}

func TestBootstrapRegistrationFailureKeepsPolling(t *testing.T) {
	dash := testutil.NewFakeDashboard(t)
	dash.SetNotifications(model.NotificationRecord{ID: "1"})
	client := api.NewClient(dash.URL(), api.WithoutRateLimit())
	register := func(context.Context) (controller.PushManager, error) {
		return nil, errors.New("install failed")
	}

	ctrl := controller.New(client, register, &memPermissions{}, controller.Options{PushEnabled: true})
	ctx := context.Background()

	require.Error(t, ctrl.BootstrapPush(ctx, grant))
	assert.Equal(t, controller.StateSupported, ctrl.State())

	n, err := ctrl.PollUnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBootstrapDisabledVariant(t *testing.T) {
	dash := testutil.NewFakeDashboard(t)
	client := api.NewClient(dash.URL(), api.WithoutRateLimit())

	ctrl := controller.New(client, nil, &memPermissions{}, controller.Options{PushEnabled: false})

	assert.Equal(t, controller.StateDisabled, ctrl.State())
	assert.ErrorIs(t, ctrl.BootstrapPush(context.Background(), grant), controller.ErrPushUnsupported)
	assert.Empty(t, dash.Calls())
}

func TestBootstrapPermissionStates(t *testing.T) {
	t.Run("dismissed prompt stays default", func(t *testing.T) {
		f := newFixture(t, controller.Options{})
		dismiss := func(context.Context) (model.Permission, error) { return model.PermissionDefault, nil }

		require.NoError(t, f.ctrl.BootstrapPush(context.Background(), dismiss))
		assert.Equal(t, controller.StatePermissionDefault, f.ctrl.State())
		assert.Equal(t, model.Permission(""), f.perms.perm, "a dismissed prompt is not persisted")
	})

	t.Run("denied is remembered and never re-asked", func(t *testing.T) {
		f := newFixture(t, controller.Options{})
		asked := 0
		deny := func(context.Context) (model.Permission, error) {
			asked++
			return model.PermissionDenied, nil
		}

		ctx := context.Background()
		assert.ErrorIs(t, f.ctrl.BootstrapPush(ctx, deny), controller.ErrPermissionDenied)
		assert.ErrorIs(t, f.ctrl.BootstrapPush(ctx, deny), controller.ErrPermissionDenied)
		assert.Equal(t, 1, asked)
		assert.Equal(t, controller.StatePermissionDenied, f.ctrl.State())
		assert.Empty(t, f.pm.subscribed)
	})

	t.Run("stored grant skips the prompt", func(t *testing.T) {
		f := newFixture(t, controller.Options{})
		f.perms.perm = model.PermissionGranted

		require.NoError(t, f.ctrl.BootstrapPush(context.Background(), nil))
		assert.Equal(t, controller.StateSubscribed, f.ctrl.State())
	})
}

func TestPollKeepsCountOnFailure(t *testing.T) {
	f := newFixture(t, controller.Options{})
	f.dash.QueueCountReplies(
		testutil.CountReply{Body: `{"success": true, "unread_count": 5}`},
		testutil.CountReply{Status: http.StatusInternalServerError, Body: `{"error": "boom"}`},
		testutil.CountReply{Body: `{"success": true, "unread_count": 3}`},
	)
	ctx := context.Background()

	var badges []int
	for range 3 {
		_, _ = f.ctrl.PollUnreadCount(ctx)
		badges = append(badges, f.ctrl.UnreadCount())
	}

	assert.Equal(t, []int{5, 5, 3}, badges)
}

func TestPollKeepsCountOnUnsuccessfulReply(t *testing.T) {
	f := newFixture(t, controller.Options{})
	f.dash.QueueCountReplies(
		testutil.CountReply{Body: `{"success": true, "unread_count": 4}`},
		testutil.CountReply{Body: `{"success": false, "unread_count": 0}`},
		testutil.CountReply{Body: `not json`},
	)
	ctx := context.Background()

	for range 3 {
		_, _ = f.ctrl.PollUnreadCount(ctx)
	}
	assert.Equal(t, 4, f.ctrl.UnreadCount())
}

func TestFetchListUsesDropdownLimit(t *testing.T) {
	f := newFixture(t, controller.Options{})
	records := make([]model.NotificationRecord, 0, 12)
	for i := range 12 {
		records = append(records, model.NotificationRecord{ID: model.RecordID(string(rune('a' + i)))})
	}
	f.dash.SetNotifications(records...)

	got, err := f.ctrl.FetchList(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, got, controller.DefaultListLimit)
	assert.Equal(t, records[0].ID, got[0].ID, "server order is kept")
}

func TestFetchPageClampsLimit(t *testing.T) {
	f := newFixture(t, controller.Options{})

	_, err := f.ctrl.FetchPage(context.Background(), true, 500)
	require.NoError(t, err)
	_, err = f.ctrl.FetchPage(context.Background(), true, 0)
	require.NoError(t, err)
}

func TestMarkReadThenPolls(t *testing.T) {
	f := newFixture(t, controller.Options{})
	f.dash.SetNotifications(model.NotificationRecord{ID: "7"}, model.NotificationRecord{ID: "8"})
	ctx := context.Background()

	_, err := f.ctrl.PollUnreadCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, f.ctrl.UnreadCount())

	require.NoError(t, f.ctrl.MarkRead(ctx, "7"))
	assert.Equal(t, 1, f.ctrl.UnreadCount())

	calls := f.dash.Calls()
	require.GreaterOrEqual(t, len(calls), 2)
	last := calls[len(calls)-2:]
	assert.Equal(t, testutil.Call{Method: http.MethodPut, Path: "/api/notifications/7/read", CSRF: f.dash.CSRFToken}, last[0])
	assert.Equal(t, http.MethodGet, last[1].Method)
	assert.Equal(t, api.PathCount, last[1].Path)
}

func TestMarkReadFailureDoesNotPoll(t *testing.T) {
	f := newFixture(t, controller.Options{})
	ctx := context.Background()

	require.Error(t, f.ctrl.MarkRead(ctx, "missing"))
	assert.Empty(t, f.dash.CallsTo(http.MethodGet, api.PathCount))
}

func TestMarkAllReadRefetches(t *testing.T) {
	f := newFixture(t, controller.Options{})
	f.dash.SetNotifications(model.NotificationRecord{ID: "1"}, model.NotificationRecord{ID: "2"})
	ctx := context.Background()

	res, err := f.ctrl.MarkAllRead(ctx, false)
	require.NoError(t, err)
	require.NoError(t, res.ListErr)
	require.Len(t, res.Records, 2)
	for _, r := range res.Records {
		assert.True(t, r.IsRead)
	}
	assert.Zero(t, f.ctrl.UnreadCount())
	assert.Len(t, f.dash.CallsTo(http.MethodGet, api.PathList), 1)
	assert.Len(t, f.dash.CallsTo(http.MethodGet, api.PathCount), 1)
}

func TestMarkAllReadFailureOnlyLogs(t *testing.T) {
	f := newFixture(t, controller.Options{})
	f.dash.Fail(api.PathMarkAllRead, http.StatusInternalServerError)

	_, err := f.ctrl.MarkAllRead(context.Background(), false)
	require.Error(t, err)
	assert.Empty(t, f.dash.CallsTo(http.MethodGet, api.PathList))
}

func TestMarkAllReadListFailureStillReportsMark(t *testing.T) {
	f := newFixture(t, controller.Options{})
	f.dash.SetNotifications(model.NotificationRecord{ID: "1"})
	f.dash.Fail(api.PathList, http.StatusInternalServerError)

	res, err := f.ctrl.MarkAllRead(context.Background(), false)
	require.NoError(t, err)
	assert.Error(t, res.ListErr)
	assert.Zero(t, f.ctrl.UnreadCount())
	assert.Len(t, f.dash.CallsTo(http.MethodGet, api.PathCount), 1)
}

func TestHasCSRFTokenFollowsClient(t *testing.T) {
	f := newFixture(t, controller.Options{})
	assert.True(t, f.ctrl.HasCSRFToken())

	bare := controller.New(api.NewClient(f.dash.URL()), nil, f.perms, controller.Options{})
	assert.False(t, bare.HasCSRFToken())
}

func TestUnsubscribe(t *testing.T) {
	f := newFixture(t, controller.Options{})
	ctx := context.Background()

	require.NoError(t, f.ctrl.BootstrapPush(ctx, grant))
	require.Len(t, f.dash.Subscriptions(), 1)

	require.NoError(t, f.ctrl.Unsubscribe(ctx))
	assert.Nil(t, f.ctrl.Subscription())
	assert.Equal(t, controller.StatePermissionGranted, f.ctrl.State())
	assert.Empty(t, f.dash.Subscriptions())

	require.NoError(t, f.ctrl.Subscribe(ctx))
	assert.Len(t, f.dash.CallsTo(http.MethodPost, api.PathSubscribe), 2)
}

func TestStorePermissions(t *testing.T) {
	p := controller.NewStorePermissions(testutil.NewTestStore(t))
	ctx := context.Background()

	got, err := p.Permission(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.PermissionDefault, got)

	require.NoError(t, p.SetPermission(ctx, model.PermissionGranted))
	got, err = p.Permission(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.PermissionGranted, got)
}

func TestPushStateString(t *testing.T) {
	assert.Equal(t, "permission:granted", controller.StatePermissionGranted.String())
}
