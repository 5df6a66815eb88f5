package notification

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/habitkit/devicegate/pkg/config"
	"github.com/habitkit/devicegate/pkg/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBrowserSubscription(t *testing.T, endpoint string) device.PushSubscription {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)
	return device.PushSubscription{
		Kind:     device.SubscriptionWebPush,
		Endpoint: endpoint,
		Keys: device.SubscriptionKeys{
			P256dh: base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
			Auth:   base64.RawURLEncoding.EncodeToString(auth),
		},
	}
}

func newWebPushPusher(t *testing.T) *WebPushPusher {
	t.Helper()
	private, public, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	return NewWebPushPusher(config.PushConfig{
		VAPIDPublicKey:  public,
		VAPIDPrivateKey: private,
		VAPIDSubscriber: "ops@example.com",
		TTL:             60,
	})
}

func TestWebPushPusher_Push(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "aes128gcm", r.Header.Get("Content-Encoding"))
		assert.Contains(t, r.Header.Get("Authorization"), "vapid")
		switch r.URL.Path {
		case "/gone":
			w.WriteHeader(http.StatusGone)
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer server.Close()

	pusher := newWebPushPusher(t).WithHTTPClient(server.Client())
	ctx := context.Background()
	payload := Payload{Title: "Reminder", Body: "Log today's habits"}

	err := pusher.Push(ctx, newBrowserSubscription(t, server.URL+"/ok"), payload)
	require.NoError(t, err)

	err = pusher.Push(ctx, newBrowserSubscription(t, server.URL+"/gone"), payload)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSubscriptionExpired))

	err = pusher.Push(ctx, newBrowserSubscription(t, server.URL+"/broken"), payload)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSubscriptionExpired))

	assert.Equal(t, int32(3), hits.Load())
}
