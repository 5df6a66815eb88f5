package sessions

import (
	"time"

	"github.com/habitkit/devicegate/pkg/device"
)

const (
	DefaultRememberMeTTL     = 7 * 24 * time.Hour
	DefaultInactivityTimeout = 12 * time.Hour
)

// Policy decides whether a device still holds a valid session. Two tracks
// exist: remember-me sessions live until a fixed expiry regardless of
// activity, all others expire after InactivityTimeout without activity.
type Policy struct {
	RememberMeTTL     time.Duration
	InactivityTimeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		RememberMeTTL:     DefaultRememberMeTTL,
		InactivityTimeout: DefaultInactivityTimeout,
	}
}

func (p Policy) IsSessionValid(d device.Device, now time.Time) bool {
	return p.Evaluate(d, now).Valid
}

func (p Policy) Evaluate(d device.Device, now time.Time) Status {
	track := TrackInactivity
	if d.RememberMe {
		track = TrackRememberMe
	}

	if !d.IsActive {
		return Status{Valid: false, Track: track, Reason: ReasonDeviceInactive}
	}

	if d.RememberMe {
		if d.RememberMeExpiry == nil {
			return Status{Valid: false, Track: track, Reason: ReasonRememberMeExpired}
		}
		expiresAt := *d.RememberMeExpiry
		if !now.Before(expiresAt) {
			return Status{Valid: false, Track: track, Reason: ReasonRememberMeExpired, ExpiresAt: expiresAt}
		}
		return Status{Valid: true, Track: track, ExpiresAt: expiresAt}
	}

	expiresAt := d.LastActive.Add(p.InactivityTimeout)
	if now.Sub(d.LastActive) >= p.InactivityTimeout {
		return Status{Valid: false, Track: track, Reason: ReasonInactivityTimeout, ExpiresAt: expiresAt}
	}
	return Status{Valid: true, Track: track, ExpiresAt: expiresAt}
}
