package notification

import (
	"context"
	"fmt"
	"io"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/habitkit/devicegate/pkg/config"
	"github.com/habitkit/devicegate/pkg/device"
)

// WebPushPusher delivers to browser push services using VAPID.
type WebPushPusher struct {
	publicKey  string
	privateKey string
	subscriber string
	ttl        int
	client     webpush.HTTPClient
}

func NewWebPushPusher(cfg config.PushConfig) *WebPushPusher {
	return &WebPushPusher{
		publicKey:  cfg.VAPIDPublicKey,
		privateKey: cfg.VAPIDPrivateKey,
		subscriber: cfg.VAPIDSubscriber,
		ttl:        cfg.TTL,
		client:     http.DefaultClient,
	}
}

// WithHTTPClient replaces the client used to reach push services.
func (p *WebPushPusher) WithHTTPClient(client webpush.HTTPClient) *WebPushPusher {
	p.client = client
	return p
}

func (p *WebPushPusher) Push(ctx context.Context, sub device.PushSubscription, payload Payload) error {
	message, err := payload.Encode()
	if err != nil {
		return err
	}

	resp, err := webpush.SendNotificationWithContext(ctx, message, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.Keys.Auth,
			P256dh: sub.Keys.P256dh,
		},
	}, &webpush.Options{
		HTTPClient:      p.client,
		Subscriber:      p.subscriber,
		VAPIDPublicKey:  p.publicKey,
		VAPIDPrivateKey: p.privateKey,
		TTL:             p.ttl,
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		return fmt.Errorf("web push: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusGone, resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: push service answered %d", ErrSubscriptionExpired, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("web push: push service answered %d", resp.StatusCode)
	}
	return nil
}
