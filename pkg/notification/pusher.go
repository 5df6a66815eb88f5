package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/habitkit/devicegate/pkg/config"
	"github.com/habitkit/devicegate/pkg/device"
)

// ErrSubscriptionExpired means the push service no longer accepts the
// subscription. The device must subscribe again.
var ErrSubscriptionExpired = errors.New("push subscription expired")

// Payload is the notification sent to each device. Its content is opaque to
// the dispatcher.
type Payload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	URL   string            `json:"url,omitempty"`
	Tag   string            `json:"tag,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

func (p Payload) Encode() ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return raw, nil
}

// Pusher delivers one payload to one subscription.
type Pusher interface {
	Push(ctx context.Context, sub device.PushSubscription, payload Payload) error
}

// MultiPusher routes each subscription to the pusher registered for its kind.
type MultiPusher struct {
	pushers map[device.SubscriptionKind]Pusher
}

func NewMultiPusher() *MultiPusher {
	return &MultiPusher{pushers: make(map[device.SubscriptionKind]Pusher)}
}

// Register is not safe to call concurrently with Push.
func (m *MultiPusher) Register(kind device.SubscriptionKind, p Pusher) *MultiPusher {
	m.pushers[kind] = p
	return m
}

func (m *MultiPusher) Push(ctx context.Context, sub device.PushSubscription, payload Payload) error {
	p, ok := m.pushers[sub.EffectiveKind()]
	if !ok {
		return fmt.Errorf("no pusher registered for subscription kind %q", sub.EffectiveKind())
	}
	return p.Push(ctx, sub, payload)
}

// NewPusherFromConfig registers a pusher for every transport cfg enables.
// Subscriptions of a disabled kind fail delivery and are counted as failed.
func NewPusherFromConfig(ctx context.Context, cfg config.PushConfig) (*MultiPusher, error) {
	m := NewMultiPusher()
	if cfg.WebPushEnabled() {
		m.Register(device.SubscriptionWebPush, NewWebPushPusher(cfg))
	}
	if cfg.FCMEnabled() {
		fcm, err := NewFCMPusherFromCredentials(ctx, cfg.FCMCredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize FCM: %w", err)
		}
		m.Register(device.SubscriptionFCM, fcm)
	}
	return m, nil
}
