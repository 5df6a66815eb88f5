package sessions

import (
	"errors"
	"time"
)

var ErrSessionExpired = errors.New("session expired")

// Track names the expiry policy that applies to a device.
type Track string

const (
	TrackRememberMe Track = "remember_me"
	TrackInactivity Track = "inactivity"
)

const (
	ReasonDeviceInactive    = "device_inactive"
	ReasonDeviceUnknown     = "device_unknown"
	ReasonRememberMeExpired = "remember_me_expired"
	ReasonInactivityTimeout = "inactivity_timeout"
)

// Status is the outcome of evaluating a device against the session policy.
type Status struct {
	Valid     bool      `json:"valid"`
	Track     Track     `json:"track"`
	Reason    string    `json:"reason,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// DeviceSession is one active device with its session status, as listed to the account owner.
type DeviceSession struct {
	DeviceID         string    `json:"device_id"`
	DeviceName       string    `json:"device_name"`
	DeviceType       string    `json:"device_type"`
	Browser          string    `json:"browser"`
	LastActive       time.Time `json:"last_active"`
	RegisteredAt     time.Time `json:"registered_at"`
	IsCurrentSession bool      `json:"is_current_session"`
	Status           Status    `json:"status"`
}
