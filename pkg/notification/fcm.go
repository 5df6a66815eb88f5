package notification

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/habitkit/devicegate/pkg/device"
	"google.golang.org/api/option"
)

// FCMClient is the subset of *messaging.Client used for delivery.
type FCMClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMPusher delivers through Firebase Cloud Messaging. The subscription
// endpoint holds the device registration token.
type FCMPusher struct {
	client FCMClient
}

func NewFCMPusher(client FCMClient) *FCMPusher {
	return &FCMPusher{client: client}
}

// NewFCMPusherFromCredentials initializes a Firebase app from a service account file.
func NewFCMPusherFromCredentials(ctx context.Context, credentialsFile string) (*FCMPusher, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("firebase: error initializing app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase: error getting messaging client: %w", err)
	}
	return NewFCMPusher(client), nil
}

func (p *FCMPusher) Push(ctx context.Context, sub device.PushSubscription, payload Payload) error {
	data := make(map[string]string, len(payload.Data)+2)
	for k, v := range payload.Data {
		data[k] = v
	}
	if payload.URL != "" {
		data["url"] = payload.URL
	}
	if payload.Tag != "" {
		data["tag"] = payload.Tag
	}

	_, err := p.client.Send(ctx, &messaging.Message{
		Token: sub.Endpoint,
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	})
	if err != nil {
		if messaging.IsUnregistered(err) {
			return fmt.Errorf("%w: %v", ErrSubscriptionExpired, err)
		}
		return fmt.Errorf("fcm: %w", err)
	}
	return nil
}
