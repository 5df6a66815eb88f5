package device

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDevice(accountID uuid.UUID, deviceID string, lastActive time.Time) Device {
	return Device{
		AccountID:    accountID,
		DeviceID:     deviceID,
		DeviceType:   DeviceTypeMobile,
		Browser:      "Safari",
		OS:           "iOS",
		DeviceName:   "Safari on iPhone",
		LastActive:   lastActive,
		RegisteredAt: lastActive,
		IsActive:     true,
	}
}

func TestFileDeviceRepository_PersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	accountID := uuid.New()
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	repo, err := NewFileDeviceRepository(dir)
	require.NoError(t, err)

	d := newTestDevice(accountID, "device-a", now)
	d.PushSubscription = &PushSubscription{Endpoint: "https://push.example.com/a", Keys: SubscriptionKeys{P256dh: "k", Auth: "a"}}
	outcome, err := repo.RegisterWithinLimit(ctx, d, 2)
	require.NoError(t, err)
	require.True(t, outcome.Registered)
	assert.True(t, outcome.Created)

	_, err = repo.RegisterWithinLimit(ctx, newTestDevice(accountID, "device-b", now.Add(time.Minute)), 2)
	require.NoError(t, err)
	changed, err := repo.Deactivate(ctx, accountID, "device-b")
	require.NoError(t, err)
	require.True(t, changed)

	reloaded, err := NewFileDeviceRepository(dir)
	require.NoError(t, err)

	active, err := reloaded.FindActiveDevices(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "device-a", active[0].DeviceID)
	require.NotNil(t, active[0].PushSubscription)
	assert.Equal(t, "https://push.example.com/a", active[0].PushSubscription.Endpoint)

	evicted, err := reloaded.GetDevice(ctx, accountID, "device-b")
	require.NoError(t, err)
	assert.False(t, evicted.IsActive)
}

func TestFileDeviceRepository_ReactivateReportsOutcome(t *testing.T) {
	ctx := context.Background()
	accountID := uuid.New()
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	repo, err := NewFileDeviceRepository(t.TempDir())
	require.NoError(t, err)

	_, err = repo.RegisterWithinLimit(ctx, newTestDevice(accountID, "device-a", now), 2)
	require.NoError(t, err)
	_, err = repo.Deactivate(ctx, accountID, "device-a")
	require.NoError(t, err)

	outcome, err := repo.RegisterWithinLimit(ctx, newTestDevice(accountID, "device-a", now.Add(time.Hour)), 2)
	require.NoError(t, err)
	assert.True(t, outcome.Registered)
	assert.True(t, outcome.Reactivated)
	assert.False(t, outcome.Created)
	assert.Equal(t, now, outcome.Device.RegisteredAt)
}

func TestFileDeviceRepository_ConcurrentRegister(t *testing.T) {
	ctx := context.Background()
	accountID := uuid.New()
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	repo, err := NewFileDeviceRepository(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.RegisterWithinLimit(ctx, newTestDevice(accountID, fmt.Sprintf("device-%d", i), now), 2)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	active, err := repo.FindActiveDevices(ctx, accountID)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestFileDeviceRepository_UpdateLastActive(t *testing.T) {
	ctx := context.Background()
	accountID := uuid.New()
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	repo, err := NewFileDeviceRepository(t.TempDir())
	require.NoError(t, err)
	_, err = repo.RegisterWithinLimit(ctx, newTestDevice(accountID, "device-a", now), 2)
	require.NoError(t, err)

	ok, err := repo.UpdateLastActive(ctx, accountID, "device-a", now.Add(time.Hour), DefaultInactivityTimeout)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.UpdateLastActive(ctx, accountID, "unknown", now, DefaultInactivityTimeout)
	require.NoError(t, err)
	assert.False(t, ok)

	d, err := repo.GetDevice(ctx, accountID, "device-a")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), d.LastActive)

	// 13h after the last write the session has ended and stays ended.
	late := now.Add(14 * time.Hour)
	ok, err = repo.UpdateLastActive(ctx, accountID, "device-a", late, DefaultInactivityTimeout)
	require.NoError(t, err)
	assert.False(t, ok)

	changed, err := repo.DeactivateExpired(ctx, accountID, "device-a", now.Add(2*time.Hour), DefaultInactivityTimeout)
	require.NoError(t, err)
	assert.False(t, changed, "a live session is left alone")

	changed, err = repo.DeactivateExpired(ctx, accountID, "device-a", late, DefaultInactivityTimeout)
	require.NoError(t, err)
	assert.True(t, changed)

	reloaded, err := NewFileDeviceRepository(repo.dataDir)
	require.NoError(t, err)
	d, err = reloaded.GetDevice(ctx, accountID, "device-a")
	require.NoError(t, err)
	assert.False(t, d.IsActive)
}

func TestNewDeviceRepository(t *testing.T) {
	repo, err := NewDeviceRepository("memory", RepositoryConfig{})
	require.NoError(t, err)
	assert.IsType(t, &InMemDeviceRepository{}, repo)

	repo, err = NewDeviceRepository("file", RepositoryConfig{DataDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileDeviceRepository{}, repo)

	_, err = NewDeviceRepository("postgres", RepositoryConfig{})
	assert.Error(t, err)

	_, err = NewDeviceRepository("mongo", RepositoryConfig{})
	assert.Error(t, err)
}
