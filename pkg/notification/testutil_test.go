package notification

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/habitkit/devicegate/pkg/device"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func newDeviceService(t *testing.T, limit int) *device.DeviceService {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	return device.NewDeviceService(device.NewInMemDeviceRepository(),
		device.WithDeviceLimit(limit),
		device.WithClock(clock),
	)
}

func registerSubscribed(t *testing.T, svc *device.DeviceService, accountID uuid.UUID, deviceID string) {
	t.Helper()
	res, err := svc.Register(context.Background(), device.RegisterParams{
		AccountID:  accountID,
		DeviceID:   deviceID,
		DeviceType: device.DeviceTypeMobile,
		PushSubscription: &device.PushSubscription{
			Endpoint: endpointFor(deviceID),
		},
	})
	require.NoError(t, err)
	require.True(t, res.Success)
}

func endpointFor(deviceID string) string {
	return fmt.Sprintf("https://push.example.com/%s", deviceID)
}
