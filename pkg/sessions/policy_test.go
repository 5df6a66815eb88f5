package sessions

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/habitkit/devicegate/pkg/device"
	"github.com/stretchr/testify/assert"
)

func TestPolicy_Evaluate(t *testing.T) {
	policy := DefaultPolicy()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Second)

	tests := []struct {
		name   string
		device device.Device
		valid  bool
		track  Track
		reason string
	}{
		{
			name:   "recent activity",
			device: device.Device{IsActive: true, LastActive: now.Add(-11 * time.Hour)},
			valid:  true,
			track:  TrackInactivity,
		},
		{
			name:   "exactly at inactivity timeout",
			device: device.Device{IsActive: true, LastActive: now.Add(-12 * time.Hour)},
			valid:  false,
			track:  TrackInactivity,
			reason: ReasonInactivityTimeout,
		},
		{
			name:   "remember me ignores inactivity",
			device: device.Device{IsActive: true, LastActive: now.Add(-72 * time.Hour), RememberMe: true, RememberMeExpiry: &future},
			valid:  true,
			track:  TrackRememberMe,
		},
		{
			name:   "remember me expired",
			device: device.Device{IsActive: true, LastActive: now, RememberMe: true, RememberMeExpiry: &past},
			valid:  false,
			track:  TrackRememberMe,
			reason: ReasonRememberMeExpired,
		},
		{
			name:   "remember me without expiry",
			device: device.Device{IsActive: true, LastActive: now, RememberMe: true},
			valid:  false,
			track:  TrackRememberMe,
			reason: ReasonRememberMeExpired,
		},
		{
			name:   "inactive device",
			device: device.Device{IsActive: false, LastActive: now, RememberMe: true, RememberMeExpiry: &future},
			valid:  false,
			track:  TrackRememberMe,
			reason: ReasonDeviceInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.device.AccountID = uuid.New()
			status := policy.Evaluate(tt.device, now)
			assert.Equal(t, tt.valid, status.Valid)
			assert.Equal(t, tt.track, status.Track)
			assert.Equal(t, tt.reason, status.Reason)
			assert.Equal(t, tt.valid, policy.IsSessionValid(tt.device, now))
		})
	}
}

func TestPolicy_InactivityExpiresAt(t *testing.T) {
	policy := DefaultPolicy()
	lastActive := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	d := device.Device{IsActive: true, LastActive: lastActive}

	status := policy.Evaluate(d, lastActive.Add(time.Hour))
	assert.Equal(t, lastActive.Add(12*time.Hour), status.ExpiresAt)
}
