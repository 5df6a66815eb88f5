package device

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
)

var ErrDeviceNotFound = errors.New("device not found")

type DeviceType string

const (
	DeviceTypeDesktop DeviceType = "desktop"
	DeviceTypeMobile  DeviceType = "mobile"
	DeviceTypeTablet  DeviceType = "tablet"
)

// Valid reports whether t is one of the supported device types.
func (t DeviceType) Valid() bool {
	switch t {
	case DeviceTypeDesktop, DeviceTypeMobile, DeviceTypeTablet:
		return true
	}
	return false
}

type SubscriptionKind string

const (
	SubscriptionWebPush SubscriptionKind = "webpush"
	SubscriptionFCM     SubscriptionKind = "fcm"
)

type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushSubscription is the delivery address of a device. For FCM subscriptions
// Endpoint holds the registration token and Keys is empty.
type PushSubscription struct {
	Kind     SubscriptionKind `json:"kind,omitempty"`
	Endpoint string           `json:"endpoint"`
	Keys     SubscriptionKeys `json:"keys"`
}

// EffectiveKind defaults an unset kind to Web Push.
func (s PushSubscription) EffectiveKind() SubscriptionKind {
	if s.Kind == "" {
		return SubscriptionWebPush
	}
	return s.Kind
}

// Device is one registered client of an account. Rows are never deleted;
// eviction and logout flip IsActive to false.
type Device struct {
	AccountID        uuid.UUID         `json:"account_id"`
	DeviceID         string            `json:"device_id"`
	PhysicalDeviceID string            `json:"physical_device_id,omitempty"`
	DeviceType       DeviceType        `json:"device_type"`
	Browser          string            `json:"browser"`
	OS               string            `json:"os"`
	DeviceName       string            `json:"device_name"`
	LastActive       time.Time         `json:"last_active"`
	RegisteredAt     time.Time         `json:"registered_at"`
	IsActive         bool              `json:"is_active"`
	RememberMe       bool              `json:"remember_me"`
	RememberMeExpiry *time.Time        `json:"remember_me_expiry,omitempty"`
	PushSubscription *PushSubscription `json:"push_subscription,omitempty"`
}

// RegisterOutcome is the result of an atomic, quota-checked upsert.
type RegisterOutcome struct {
	Device Device
	// Registered is false when the account was at its limit; nothing changed.
	Registered  bool
	Created     bool
	Reactivated bool
	// ActiveDevices is populated on rejection, most recently active first.
	ActiveDevices []Device
}

// Repository stores devices. Implementations must make RegisterWithinLimit
// atomic per account: no interleaving of registrations may leave more than
// limit active devices.
type Repository interface {
	// RegisterWithinLimit upserts d by (AccountID, DeviceID). An already active
	// row is refreshed without a quota check. A new or inactive row is only
	// written when the account has fewer than limit active devices.
	RegisterWithinLimit(ctx context.Context, d Device, limit int) (RegisterOutcome, error)
	GetDevice(ctx context.Context, accountID uuid.UUID, deviceID string) (Device, error)
	// FindActiveDevices returns active devices, most recently active first.
	FindActiveDevices(ctx context.Context, accountID uuid.UUID) ([]Device, error)
	// UpdateLastActive bumps LastActive on an active row whose session is still
	// live at `at` (see SessionLive). It reports false for unknown, inactive or
	// expired devices; an ended session is never revived.
	UpdateLastActive(ctx context.Context, accountID uuid.UUID, deviceID string, at time.Time, inactivityTimeout time.Duration) (bool, error)
	// Deactivate soft-deletes the row and clears remember-me. It reports
	// whether an active row was changed; a missing row is not an error.
	Deactivate(ctx context.Context, accountID uuid.UUID, deviceID string) (bool, error)
	// DeactivateExpired is Deactivate restricted to rows whose session has
	// ended at `at`. The check and the write are one step, so a concurrent
	// heartbeat either lands first and keeps the row or is rejected.
	DeactivateExpired(ctx context.Context, accountID uuid.UUID, deviceID string, at time.Time, inactivityTimeout time.Duration) (bool, error)
	// UpdatePushSubscription replaces the subscription; nil clears it.
	UpdatePushSubscription(ctx context.Context, accountID uuid.UUID, deviceID string, sub *PushSubscription) (bool, error)
	WithTx(tx interface{}) Repository
}

// mergeRegistration applies an incoming registration onto an existing row.
// RegisteredAt is immutable and a nil subscription keeps the stored one.
func mergeRegistration(existing, incoming Device) Device {
	merged := incoming
	merged.RegisteredAt = existing.RegisteredAt
	if merged.PhysicalDeviceID == "" {
		merged.PhysicalDeviceID = existing.PhysicalDeviceID
	}
	if merged.PushSubscription == nil {
		merged.PushSubscription = existing.PushSubscription
	}
	merged.IsActive = true
	return merged
}

// SessionLive reports whether d is active and its session has not ended at
// `at`. Remember-me sessions end at RememberMeExpiry; all others end
// inactivityTimeout after LastActive.
func SessionLive(d Device, at time.Time, inactivityTimeout time.Duration) bool {
	if !d.IsActive {
		return false
	}
	if d.RememberMe {
		return d.RememberMeExpiry != nil && at.Before(*d.RememberMeExpiry)
	}
	return at.Sub(d.LastActive) < inactivityTimeout
}

func sortByLastActive(devices []Device) {
	slices.SortStableFunc(devices, func(a, b Device) int {
		return b.LastActive.Compare(a.LastActive)
	})
}

func deviceKey(accountID uuid.UUID, deviceID string) string {
	return accountID.String() + ":" + deviceID
}
