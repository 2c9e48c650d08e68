package pushsvc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ufcrashout/iTrax/internal/pushsvc"
	"github.com/ufcrashout/iTrax/tests/testutil"
)

func dial(t *testing.T, svc *testutil.FakePushService, uaid string) *pushsvc.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pushsvc.Dial(ctx, svc.URL(), uaid, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestDialAssignsUAID(t *testing.T) {
	svc := testutil.NewFakePushService(t)

	conn := dial(t, svc, "")
	assert.NotEmpty(t, conn.UAID())
}

func TestRegisterReturnsEndpoint(t *testing.T) {
	svc := testutil.NewFakePushService(t)
	conn := dial(t, svc, "")

	ctx := context.Background()
	endpoint, err := conn.Register(ctx, "chan-1", "BKey")
	require.NoError(t, err)
	assert.Equal(t, svc.Server.URL+"/wpush/v2/chan-1", endpoint)
	assert.Equal(t, []string{"chan-1"}, svc.Registered())

	require.NoError(t, conn.Unregister(ctx, "chan-1"))
	assert.Zero(t, svc.Channels())
}

func TestNotificationAndAck(t *testing.T) {
	svc := testutil.NewFakePushService(t)
	conn := dial(t, svc, "")

	ctx := context.Background()
	_, err := conn.Register(ctx, "chan-1", "BKey")
	require.NoError(t, err)

	require.NoError(t, svc.Deliver("chan-1", []byte{0xde, 0xad, 0xbe, 0xef}))

	var n pushsvc.Notification
	select {
	case n = <-conn.Notifications():
	case <-time.After(5 * time.Second):
		t.Fatal("no notification delivered")
	}
	assert.Equal(t, "chan-1", n.ChannelID)
	assert.Equal(t, "aes128gcm", n.Encoding)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, n.Data)

	require.NoError(t, conn.Ack(ctx, n, pushsvc.AckDelivered))

	select {
	case u := <-svc.Acked():
		assert.Equal(t, n.Version, u.Version)
		assert.Equal(t, pushsvc.AckDelivered, u.Code)
	case <-time.After(5 * time.Second):
		t.Fatal("ack not received")
	}
}

func TestEmptyNotificationHasNoData(t *testing.T) {
	svc := testutil.NewFakePushService(t)
	conn := dial(t, svc, "")

	_, err := conn.Register(context.Background(), "chan-1", "BKey")
	require.NoError(t, err)
	require.NoError(t, svc.Deliver("chan-1", nil))

	select {
	case n := <-conn.Notifications():
		assert.Empty(t, n.Data)
	case <-time.After(5 * time.Second):
		t.Fatal("no notification delivered")
	}
}

func TestRemoteDisconnectEndsConnection(t *testing.T) {
	svc := testutil.NewFakePushService(t)
	conn := dial(t, svc, "")

	svc.Disconnect()

	select {
	case <-conn.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("connection did not end")
	}
	assert.Error(t, conn.Err())

	_, err := conn.Register(context.Background(), "chan-2", "BKey")
	assert.ErrorIs(t, err, pushsvc.ErrClosed)
}

func TestCloseIsClean(t *testing.T) {
	svc := testutil.NewFakePushService(t)
	conn := dial(t, svc, "")

	require.NoError(t, conn.Close())
	assert.NoError(t, conn.Err())

	_, open := <-conn.Notifications()
	assert.False(t, open)
}
