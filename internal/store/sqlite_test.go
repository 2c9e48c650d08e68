package store_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ufcrashout/iTrax/internal/model"
	"github.com/ufcrashout/iTrax/internal/store"
	"github.com/ufcrashout/iTrax/tests/testutil"
)

func TestPutAndGetAsset(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	err := s.PutAssets(ctx, []model.CachedAsset{
		{
			Method: http.MethodGet,
			URL:    "http://localhost:5000/static/css/style.css",
			Status: http.StatusOK,
			Header: http.Header{"Content-Type": {"text/css"}},
			Body:   []byte("body{}"),
		},
		{
			Method: http.MethodGet,
			URL:    "http://localhost:5000/",
			Status: http.StatusOK,
			Body:   []byte("<html></html>"),
		},
	})
	require.NoError(t, err)

	a, err := s.GetAsset(ctx, http.MethodGet, "http://localhost:5000/static/css/style.css")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, a.Status)
	assert.Equal(t, "text/css", a.Header.Get("Content-Type"))
	assert.Equal(t, []byte("body{}"), a.Body)
	assert.False(t, a.CachedAt.IsZero())

	count, size, err := s.AssetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, int64(len("body{}")+len("<html></html>")), size)
}

func TestGetAssetMissing(t *testing.T) {
	s := testutil.NewTestStore(t)

	_, err := s.GetAsset(context.Background(), http.MethodGet, "http://localhost:5000/nope")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.GetAsset(context.Background(), http.MethodPost, "http://localhost:5000/")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPutAssetsIsAtomic(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	ctxCanceled, cancel := context.WithCancel(ctx)
	cancel()

	err := s.PutAssets(ctxCanceled, []model.CachedAsset{
		{Method: http.MethodGet, URL: "http://x/a", Status: 200, Body: []byte("a")},
	})
	require.Error(t, err)

	count, _, err := s.AssetStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSubscriptionRoundTrip(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	rec := model.SubscriptionRecord{
		Scope:     "/",
		ChannelID: "6f1c2a8e-2b7e-4a55-9d0b-0c6f0c1f2d3e",
		Subscription: model.Subscription{
			Endpoint: "https://push.example.com/wpush/v2/abc",
			Keys:     model.SubscriptionKeys{P256dh: "pub", Auth: "auth"},
		},
		PrivateKey:           []byte{1, 2, 3},
		ApplicationServerKey: model.DefaultVAPIDKey,
	}
	require.NoError(t, s.SaveSubscription(ctx, rec))

	got, err := s.GetSubscription(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, rec.ChannelID, got.ChannelID)
	assert.Equal(t, rec.Subscription.Endpoint, got.Subscription.Endpoint)
	assert.Equal(t, rec.Subscription.Keys, got.Subscription.Keys)
	assert.Equal(t, rec.PrivateKey, got.PrivateKey)
	assert.Equal(t, rec.ApplicationServerKey, got.ApplicationServerKey)

	byChannel, err := s.GetSubscriptionByChannel(ctx, rec.ChannelID)
	require.NoError(t, err)
	assert.Equal(t, "/", byChannel.Scope)

	require.NoError(t, s.DeleteSubscription(ctx, "/"))
	_, err = s.GetSubscription(ctx, "/")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSettings(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	_, err := s.GetSetting(ctx, store.SettingPermission)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.SetSetting(ctx, store.SettingPermission, string(model.PermissionGranted)))
	require.NoError(t, s.SetSetting(ctx, store.SettingPermission, string(model.PermissionDenied)))

	v, err := s.GetSetting(ctx, store.SettingPermission)
	require.NoError(t, err)
	assert.Equal(t, string(model.PermissionDenied), v)
}

func TestDisplayedNotifications(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	first, err := s.AddDisplayed(ctx, model.DisplayedNotification{
		Title: "iTrax Notification",
		Options: model.NotificationOptions{
			Body:    "Phone entered Home",
			Vibrate: []int{100, 50, 100},
			Data:    map[string]any{"primaryKey": float64(1)},
			Actions: []model.NotificationAction{{Action: "explore", Title: "View Details"}},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	time.Sleep(2 * time.Millisecond)
	second, err := s.AddDisplayed(ctx, model.DisplayedNotification{Title: "second"})
	require.NoError(t, err)

	open, err := s.GetOpenDisplayed(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, second.ID, open[0].ID)
	assert.Equal(t, "Phone entered Home", open[1].Options.Body)
	assert.Equal(t, []int{100, 50, 100}, open[1].Options.Vibrate)
	assert.Equal(t, "explore", open[1].Options.Actions[0].Action)

	require.NoError(t, s.CloseDisplayed(ctx, first.ID))

	open, err = s.GetOpenDisplayed(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, second.ID, open[0].ID)
}
