package api_test

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ufcrashout/iTrax/internal/api"
	"github.com/ufcrashout/iTrax/internal/model"
	"github.com/ufcrashout/iTrax/tests/testutil"
)

func newClient(d *testutil.FakeDashboard, token string) *api.Client {
	return api.NewClient(d.URL(), api.WithCSRFToken(token), api.WithoutRateLimit())
}

func TestUnreadCount(t *testing.T) {
	d := testutil.NewFakeDashboard(t)
	d.SetNotifications(
		model.NotificationRecord{ID: "1", Message: "a"},
		model.NotificationRecord{ID: "2", Message: "b", IsRead: true},
	)

	n, err := newClient(d, d.CSRFToken).UnreadCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUnreadCountUnsuccessful(t *testing.T) {
	d := testutil.NewFakeDashboard(t)
	d.QueueCountReplies(testutil.CountReply{Body: `{"success": false, "error": "db down"}`})

	_, err := newClient(d, "").UnreadCount(context.Background())
	require.ErrorIs(t, err, api.ErrUnsuccessful)
	assert.Contains(t, err.Error(), "db down")
}

func TestUnreadCountServerError(t *testing.T) {
	d := testutil.NewFakeDashboard(t)
	d.Fail(api.PathCount, http.StatusInternalServerError)

	_, err := newClient(d, "").UnreadCount(context.Background())
	var statusErr *api.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.Status)
	assert.Equal(t, "injected failure", statusErr.Body)
}

func TestListNotificationsQuery(t *testing.T) {
	d := testutil.NewFakeDashboard(t)
	records := make([]model.NotificationRecord, 0, 15)
	for i := range 15 {
		records = append(records, model.NotificationRecord{
			ID:     model.RecordID(strings.Repeat("9", i+1)),
			IsRead: i%2 == 0,
		})
	}
	d.SetNotifications(records...)

	c := newClient(d, "")

	all, err := c.ListNotifications(context.Background(), api.ListQuery{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all, 10)
	assert.Equal(t, records[0].ID, all[0].ID)

	unread, err := c.ListNotifications(context.Background(), api.ListQuery{UnreadOnly: true, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, unread, 7)
	for _, n := range unread {
		assert.False(t, n.IsRead)
	}
}

func TestListNotificationsEmpty(t *testing.T) {
	d := testutil.NewFakeDashboard(t)

	got, err := newClient(d, "").ListNotifications(context.Background(), api.ListQuery{Limit: 10})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestMarkReadSendsCSRFHeader(t *testing.T) {
	d := testutil.NewFakeDashboard(t)
	d.SetNotifications(model.NotificationRecord{ID: "42"})

	require.NoError(t, newClient(d, d.CSRFToken).MarkRead(context.Background(), "42"))

	calls := d.CallsTo(http.MethodPut, "/api/notifications/42/read")
	require.Len(t, calls, 1)
	assert.Equal(t, d.CSRFToken, calls[0].CSRF)
	assert.True(t, d.Notifications()[0].IsRead)
}

func TestMissingCSRFTokenOmitsHeader(t *testing.T) {
	d := testutil.NewFakeDashboard(t)
	d.SetNotifications(model.NotificationRecord{ID: "42"})

	err := newClient(d, "").MarkRead(context.Background(), "42")
	var statusErr *api.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.Status)

	calls := d.CallsTo(http.MethodPut, "/api/notifications/42/read")
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].CSRF)
}

func TestMarkAllRead(t *testing.T) {
	d := testutil.NewFakeDashboard(t)
	d.SetNotifications(model.NotificationRecord{ID: "1"}, model.NotificationRecord{ID: "2"})

	require.NoError(t, newClient(d, d.CSRFToken).MarkAllRead(context.Background()))
	for _, n := range d.Notifications() {
		assert.True(t, n.IsRead)
	}
}

func TestSubscriptionRoundTrip(t *testing.T) {
	d := testutil.NewFakeDashboard(t)
	c := newClient(d, d.CSRFToken)
	ctx := context.Background()

	key, err := c.VAPIDPublicKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, d.VAPIDKey, key)

	sub := model.Subscription{
		Endpoint: "https://push.example.com/wpush/v2/abc",
		Keys:     model.SubscriptionKeys{P256dh: "p", Auth: "a"},
	}
	require.NoError(t, c.RegisterSubscription(ctx, sub))
	assert.Equal(t, []model.Subscription{sub}, d.Subscriptions())

	require.NoError(t, c.RemoveSubscription(ctx, sub.Endpoint))
	assert.Empty(t, d.Subscriptions())
}

func TestUnauthenticatedRequestIsAuthError(t *testing.T) {
	d := testutil.NewFakeDashboard(t)
	d.RequireLogin()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	c := api.NewClient(d.URL(), api.WithHTTPClient(&http.Client{Jar: jar}), api.WithoutRateLimit())

	_, err = c.UnreadCount(context.Background())
	assert.True(t, api.IsAuth(err), "got %v", err)
}

func TestRateLimitHonoursContext(t *testing.T) {
	d := testutil.NewFakeDashboard(t)
	c := api.NewClient(d.URL())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.UnreadCount(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
