package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestMemoryThrottle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	th := NewMemoryThrottle(clock)
	ctx := context.Background()

	ok, err := th.Allow(ctx, "device-a", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(4 * time.Minute)
	ok, _ = th.Allow(ctx, "device-a", 5*time.Minute)
	assert.False(t, ok, "inside the window")

	ok, _ = th.Allow(ctx, "device-b", 5*time.Minute)
	assert.True(t, ok, "keys are independent")

	clock.Advance(time.Minute)
	ok, _ = th.Allow(ctx, "device-a", 5*time.Minute)
	assert.True(t, ok, "window elapsed")
}

func TestRedisThrottle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	th := NewRedisThrottle(client)
	ok, err := th.Allow(ctx, "device-a", 200*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = th.Allow(ctx, "device-a", 200*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	require.Eventually(t, func() bool {
		ok, err := th.Allow(ctx, "device-a", 200*time.Millisecond)
		return err == nil && ok
	}, 3*time.Second, 50*time.Millisecond)
}

func TestRedisThrottle_Unavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	_, err := NewRedisThrottle(client).Allow(context.Background(), "device-a", time.Minute)
	assert.Error(t, err)
}
