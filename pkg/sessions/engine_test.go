package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/habitkit/devicegate/pkg/client"
	"github.com/habitkit/devicegate/pkg/device"
	dgerrors "github.com/habitkit/devicegate/pkg/errors"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	engine  *Engine
	devices *device.DeviceService
	clock   *clockwork.FakeClock
}

func setupEngine(t *testing.T) engineFixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	devices := device.NewDeviceService(device.NewInMemDeviceRepository(), device.WithClock(clock))
	return engineFixture{
		engine:  NewEngine(DefaultPolicy(), devices, WithEngineClock(clock)),
		devices: devices,
		clock:   clock,
	}
}

func (f engineFixture) register(t *testing.T, accountID uuid.UUID, deviceID string, rememberMe bool) {
	t.Helper()
	result, err := f.devices.Register(context.Background(), device.RegisterParams{
		AccountID:  accountID,
		DeviceID:   deviceID,
		DeviceType: device.DeviceTypeDesktop,
		RememberMe: rememberMe,
	})
	require.NoError(t, err)
	require.True(t, result.Success)
}

func TestEngine_Gate_ValidSession(t *testing.T) {
	f := setupEngine(t)
	accountID := uuid.New()
	f.register(t, accountID, "device-a", false)

	f.clock.Advance(11 * time.Hour)
	d, err := f.engine.Gate(context.Background(), accountID, "device-a")
	require.NoError(t, err)
	assert.Equal(t, "device-a", d.DeviceID)
}

func TestEngine_Gate_ExpiredLogsOut(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	accountID := uuid.New()
	f.register(t, accountID, "device-a", false)

	f.clock.Advance(12*time.Hour + time.Minute)
	_, err := f.engine.Gate(ctx, accountID, "device-a")
	require.ErrorIs(t, err, ErrSessionExpired)
	assert.True(t, dgerrors.IsCode(err, dgerrors.ErrCodeSessionExpired))

	d, err := f.devices.GetDevice(ctx, accountID, "device-a")
	require.NoError(t, err)
	assert.False(t, d.IsActive, "expiry frees the device slot")

	// Rejected again once inactive, without further writes.
	_, err = f.engine.Gate(ctx, accountID, "device-a")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestEngine_Gate_RememberMeOutlivesInactivity(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	accountID := uuid.New()
	f.register(t, accountID, "device-a", true)

	f.clock.Advance(6 * 24 * time.Hour)
	_, err := f.engine.Gate(ctx, accountID, "device-a")
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	_, err = f.engine.Gate(ctx, accountID, "device-a")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestEngine_Gate_UnknownDevice(t *testing.T) {
	f := setupEngine(t)

	_, err := f.engine.Gate(context.Background(), uuid.New(), "ghost")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestEngine_SustainedHeartbeatsNeverExpire(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	accountID := uuid.New()
	f.register(t, accountID, "device-a", false)

	for elapsed := time.Duration(0); elapsed < 20*time.Hour; elapsed += 5 * time.Minute {
		f.clock.Advance(5 * time.Minute)
		_, err := f.engine.Gate(ctx, accountID, "device-a")
		require.NoError(t, err, "expired after %s", elapsed)
		ok, err := f.devices.Heartbeat(ctx, accountID, "device-a")
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestEngine_HeartbeatDoesNotReviveExpiredSession(t *testing.T) {
	tests := []struct {
		name       string
		rememberMe bool
		idle       time.Duration
		reason     string
	}{
		{"inactivity", false, 13 * time.Hour, ReasonInactivityTimeout},
		{"remember me", true, DefaultRememberMeTTL + time.Hour, ReasonRememberMeExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupEngine(t)
			ctx := context.Background()
			accountID := uuid.New()
			f.register(t, accountID, "device-a", tt.rememberMe)

			f.clock.Advance(tt.idle)
			status, _, err := f.engine.Status(ctx, accountID, "device-a")
			require.NoError(t, err)
			require.False(t, status.Valid)
			assert.Equal(t, tt.reason, status.Reason)

			ok, err := f.devices.Heartbeat(ctx, accountID, "device-a")
			require.NoError(t, err)
			assert.False(t, ok, "an ended session is not refreshed")

			status, d, err := f.engine.Status(ctx, accountID, "device-a")
			require.NoError(t, err)
			assert.False(t, status.Valid)
			assert.False(t, d.IsActive, "the expired device was logged out")
		})
	}
}

// staleStore serves one outdated read of device-a, as if a heartbeat landed
// right after the engine loaded the row.
type staleStore struct {
	*device.DeviceService
	served bool
}

func (s *staleStore) GetDevice(ctx context.Context, accountID uuid.UUID, deviceID string) (device.Device, error) {
	d, err := s.DeviceService.GetDevice(ctx, accountID, deviceID)
	if err == nil && !s.served {
		s.served = true
		d.LastActive = d.LastActive.Add(-13 * time.Hour)
	}
	return d, err
}

func TestEngine_Gate_KeepsDeviceRefreshedAfterRead(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	accountID := uuid.New()
	f.register(t, accountID, "device-a", false)

	engine := NewEngine(DefaultPolicy(), &staleStore{DeviceService: f.devices}, WithEngineClock(f.clock))
	d, err := engine.Gate(ctx, accountID, "device-a")
	require.NoError(t, err)
	assert.Equal(t, "device-a", d.DeviceID)

	stored, err := f.devices.GetDevice(ctx, accountID, "device-a")
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
}

func TestEngine_ListSessions(t *testing.T) {
	f := setupEngine(t)
	accountID := uuid.New()
	f.register(t, accountID, "device-a", false)
	f.clock.Advance(time.Minute)
	f.register(t, accountID, "device-b", true)

	list, err := f.engine.ListSessions(context.Background(), accountID, "device-a")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "device-b", list[0].DeviceID)
	assert.Equal(t, TrackRememberMe, list[0].Status.Track)
	assert.True(t, list[1].IsCurrentSession)
}

func TestEngine_Middleware(t *testing.T) {
	f := setupEngine(t)
	accountID := uuid.New()
	f.register(t, accountID, "device-a", false)

	handler := f.engine.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, ok := DeviceFromContext(r.Context())
		if ok {
			w.Header().Set("X-Admitted-Device", d.DeviceID)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(deviceID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/habits", nil)
		if deviceID != "" {
			req.Header.Set(DeviceIDHeader, deviceID)
		}
		req = req.WithContext(client.WithAuthAccount(req.Context(), &client.AuthAccount{AccountID: accountID}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := serve("device-a")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "device-a", rec.Header().Get("X-Admitted-Device"))

	rec = serve("")
	assert.Equal(t, http.StatusNoContent, rec.Code, "no header, no gate")

	f.clock.Advance(13 * time.Hour)
	rec = serve("device-a")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var body ExpiredResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.ShouldLogout)
	assert.Equal(t, "SESSION_EXPIRED", body.Code)
	assert.NotEmpty(t, body.Redirect)
}

type failingStore struct{ DeviceStore }

func (failingStore) GetDevice(ctx context.Context, accountID uuid.UUID, deviceID string) (device.Device, error) {
	return device.Device{}, errors.New("connection reset")
}

func TestEngine_Gate_StoreError(t *testing.T) {
	engine := NewEngine(DefaultPolicy(), failingStore{})

	_, err := engine.Gate(context.Background(), uuid.New(), "device-a")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionExpired)
}
