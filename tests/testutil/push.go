package testutil

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	webpushgo "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/require"

	"github.com/ufcrashout/iTrax/internal/model"
)

// SendPush delivers payload to sub's endpoint the way an application
// server does, encrypted and VAPID-signed by a real sender library. It
// returns the push service's status code.
func SendPush(t *testing.T, sub model.Subscription, payload []byte) int {
	t.Helper()

	vapidPrivate, vapidPublic, err := webpushgo.GenerateVAPIDKeys()
	require.NoError(t, err, "generating vapid keys")

	resp, err := webpushgo.SendNotification(payload, &webpushgo.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpushgo.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}, &webpushgo.Options{
		Subscriber:      "ops@itrax.example.com",
		VAPIDPublicKey:  vapidPublic,
		VAPIDPrivateKey: vapidPrivate,
		TTL:             60,
	})
	require.NoError(t, err, "sending push")
	defer resp.Body.Close()

	return resp.StatusCode
}

// EncryptPush returns the aes128gcm body SendPush would deliver for
// payload, captured by a local endpoint.
func EncryptPush(t *testing.T, sub model.Subscription, payload []byte) []byte {
	t.Helper()

	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		captured = body
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sub.Endpoint = srv.URL + "/wpush/v2/capture"
	status := SendPush(t, sub, payload)
	require.Equal(t, http.StatusCreated, status)

	require.NotEmpty(t, captured, "push body")
	return bytes.Clone(captured)
}
