package notification

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/habitkit/devicegate/pkg/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFCMClient struct {
	sent []*messaging.Message
	err  error
}

func (f *fakeFCMClient) Send(ctx context.Context, message *messaging.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, message)
	return "projects/devicegate/messages/1", nil
}

func TestFCMPusher_Push(t *testing.T) {
	client := &fakeFCMClient{}
	pusher := NewFCMPusher(client)

	err := pusher.Push(context.Background(), device.PushSubscription{Kind: device.SubscriptionFCM, Endpoint: "token-abc"}, Payload{
		Title: "Streak",
		Body:  "3 days in a row",
		URL:   "/habits",
		Data:  map[string]string{"habit": "water"},
	})
	require.NoError(t, err)
	require.Len(t, client.sent, 1)

	msg := client.sent[0]
	assert.Equal(t, "token-abc", msg.Token)
	assert.Equal(t, "Streak", msg.Notification.Title)
	assert.Equal(t, "3 days in a row", msg.Notification.Body)
	assert.Equal(t, map[string]string{"habit": "water", "url": "/habits"}, msg.Data)
}

func TestFCMPusher_PushError(t *testing.T) {
	pusher := NewFCMPusher(&fakeFCMClient{err: errors.New("quota exceeded")})
	err := pusher.Push(context.Background(), device.PushSubscription{Kind: device.SubscriptionFCM, Endpoint: "token-abc"}, Payload{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSubscriptionExpired))
}
