package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/habitkit/devicegate/pkg/device"
	dgerrors "github.com/habitkit/devicegate/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrency = 8
	DefaultPushTimeout = 10 * time.Second
)

// DeviceSource is the device read used by fanout. *device.DeviceService satisfies it.
type DeviceSource interface {
	ActiveDevicesWithSubscription(ctx context.Context, accountID uuid.UUID) ([]device.Device, error)
	ClearPushSubscription(ctx context.Context, accountID uuid.UUID, deviceID string) error
}

type Result struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	// Pruned counts subscriptions cleared because the push service rejected them as gone.
	Pruned int `json:"pruned"`
}

type Dispatcher struct {
	devices     DeviceSource
	pusher      Pusher
	concurrency int
	timeout     time.Duration
}

type DispatcherOption func(*Dispatcher)

func WithConcurrency(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithPushTimeout bounds each single delivery.
func WithPushTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

func NewDispatcher(devices DeviceSource, pusher Pusher, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		devices:     devices,
		pusher:      pusher,
		concurrency: DefaultConcurrency,
		timeout:     DefaultPushTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fanout delivers payload to every active device of the account that has a
// push subscription. Per-device failures are counted, never returned.
func (d *Dispatcher) Fanout(ctx context.Context, accountID uuid.UUID, payload Payload) (Result, error) {
	devices, err := d.devices.ActiveDevicesWithSubscription(ctx, accountID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load devices for fanout: %w", err)
	}
	if len(devices) == 0 {
		slog.Debug("No subscribed devices for fanout", "account_id", accountID)
		return Result{}, nil
	}

	var sent, failed, pruned atomic.Int64
	var g errgroup.Group
	g.SetLimit(d.concurrency)

	for _, dev := range devices {
		g.Go(func() error {
			pushCtx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()

			if err := d.pusher.Push(pushCtx, *dev.PushSubscription, payload); err != nil {
				failed.Add(1)
				err = dgerrors.DeliveryFailed(err, dev.DeviceID)
				slog.Warn("Push delivery failed", "account_id", accountID, "device_id", dev.DeviceID, "error", err)
				if errors.Is(err, ErrSubscriptionExpired) {
					if err := d.devices.ClearPushSubscription(ctx, accountID, dev.DeviceID); err != nil {
						slog.Error("Failed to clear expired subscription", "device_id", dev.DeviceID, "error", err)
					} else {
						pruned.Add(1)
					}
				}
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Sent: int(sent.Load()), Failed: int(failed.Load()), Pruned: int(pruned.Load())}
	slog.Info("Fanout complete", "account_id", accountID, "sent", res.Sent, "failed", res.Failed, "pruned", res.Pruned)
	return res, nil
}
