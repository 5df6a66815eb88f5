// Package throttle coalesces repeated events per key into at most one per
// window. The device registry uses it so a burst of heartbeats from one
// device turns into a single lastActive write.
package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// Throttle reports whether an event for key is the first in its window.
type Throttle interface {
	Allow(ctx context.Context, key string, window time.Duration) (bool, error)
}

// RedisThrottle shares windows across server instances using SET NX PX.
type RedisThrottle struct {
	client *redis.Client
	prefix string
}

func NewRedisThrottle(client *redis.Client) *RedisThrottle {
	return &RedisThrottle{client: client, prefix: "throttle:"}
}

func (t *RedisThrottle) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	ok, err := t.client.SetNX(ctx, t.prefix+key, 1, window).Result()
	if err != nil {
		return false, fmt.Errorf("throttle %s: %w", key, err)
	}
	return ok, nil
}

// MemoryThrottle is the single-process variant.
type MemoryThrottle struct {
	mu      sync.Mutex
	expires map[string]time.Time
	clock   clockwork.Clock
}

func NewMemoryThrottle(clock clockwork.Clock) *MemoryThrottle {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryThrottle{expires: make(map[string]time.Time), clock: clock}
}

func (t *MemoryThrottle) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if until, ok := t.expires[key]; ok && now.Before(until) {
		return false, nil
	}
	t.expires[key] = now.Add(window)
	if len(t.expires) > 10000 {
		t.sweep(now)
	}
	return true, nil
}

func (t *MemoryThrottle) sweep(now time.Time) {
	for key, until := range t.expires {
		if !now.Before(until) {
			delete(t.expires, key)
		}
	}
}
