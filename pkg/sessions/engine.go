package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/habitkit/devicegate/pkg/device"
	dgerrors "github.com/habitkit/devicegate/pkg/errors"
	"github.com/jonboulle/clockwork"
)

// DeviceStore is the part of the device registry the engine needs.
type DeviceStore interface {
	GetDevice(ctx context.Context, accountID uuid.UUID, deviceID string) (device.Device, error)
	FindActiveDevices(ctx context.Context, accountID uuid.UUID) ([]device.Device, error)
	// ExpireSession deactivates the device only if its session has ended at
	// `at`, checking and writing in one step.
	ExpireSession(ctx context.Context, accountID uuid.UUID, deviceID string, at time.Time, inactivityTimeout time.Duration) (bool, error)
}

// Engine applies the Policy to stored devices and logs out expired ones.
type Engine struct {
	policy   Policy
	devices  DeviceStore
	clock    clockwork.Clock
	redirect string
}

type EngineOption func(*Engine)

func WithEngineClock(clock clockwork.Clock) EngineOption {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithLogoutRedirect sets where clients are sent after an expired session.
func WithLogoutRedirect(path string) EngineOption {
	return func(e *Engine) {
		e.redirect = path
	}
}

func NewEngine(policy Policy, devices DeviceStore, opts ...EngineOption) *Engine {
	e := &Engine{
		policy:   policy,
		devices:  devices,
		clock:    clockwork.NewRealClock(),
		redirect: "/login?message=session_expired",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Policy() Policy {
	return e.policy
}

func (e *Engine) LogoutRedirect() string {
	return e.redirect
}

// Status evaluates the device without side effects.
func (e *Engine) Status(ctx context.Context, accountID uuid.UUID, deviceID string) (Status, device.Device, error) {
	d, err := e.devices.GetDevice(ctx, accountID, deviceID)
	if errors.Is(err, device.ErrDeviceNotFound) {
		return Status{Valid: false, Track: TrackInactivity, Reason: ReasonDeviceUnknown}, device.Device{}, nil
	}
	if err != nil {
		return Status{}, device.Device{}, fmt.Errorf("failed to load device: %w", err)
	}
	return e.policy.Evaluate(d, e.clock.Now()), d, nil
}

// Gate evaluates the device and, when the session is no longer valid, logs
// it out by deactivating the device. It returns ErrSessionExpired in that case.
func (e *Engine) Gate(ctx context.Context, accountID uuid.UUID, deviceID string) (device.Device, error) {
	status, d, err := e.Status(ctx, accountID, deviceID)
	if err != nil {
		return device.Device{}, err
	}
	if status.Valid {
		return d, nil
	}

	if d.IsActive {
		changed, err := e.devices.ExpireSession(ctx, accountID, deviceID, e.clock.Now(), e.policy.InactivityTimeout)
		if err != nil {
			return device.Device{}, fmt.Errorf("failed to log out expired device: %w", err)
		}
		if changed {
			slog.Info("Session expired, device logged out",
				"account_id", accountID,
				"device_id", deviceID,
				"track", status.Track,
				"reason", status.Reason)
		} else {
			// The row moved on since it was read, e.g. a re-registration.
			status, d, err = e.Status(ctx, accountID, deviceID)
			if err != nil {
				return device.Device{}, err
			}
			if status.Valid {
				return d, nil
			}
		}
	}
	return device.Device{}, dgerrors.SessionExpired(fmt.Errorf("%w: %s", ErrSessionExpired, status.Reason), string(status.Track))
}

// ListSessions returns the account's active devices with their session status.
func (e *Engine) ListSessions(ctx context.Context, accountID uuid.UUID, currentDeviceID string) ([]DeviceSession, error) {
	active, err := e.devices.FindActiveDevices(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	now := e.clock.Now()
	sessions := make([]DeviceSession, 0, len(active))
	for _, d := range active {
		sessions = append(sessions, DeviceSession{
			DeviceID:         d.DeviceID,
			DeviceName:       d.DeviceName,
			DeviceType:       string(d.DeviceType),
			Browser:          d.Browser,
			LastActive:       d.LastActive,
			RegisteredAt:     d.RegisteredAt,
			IsCurrentSession: d.DeviceID == currentDeviceID,
			Status:           e.policy.Evaluate(d, now),
		})
	}
	return sessions, nil
}
