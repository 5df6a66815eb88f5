package device

import (
	"context"
	"sync"
	"time"
)

// stubThrottle allows the first call per key and denies the rest.
type stubThrottle struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func newStubThrottle() *stubThrottle {
	return &stubThrottle{seen: make(map[string]bool)}
}

func (t *stubThrottle) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return false, t.err
	}
	if t.seen[key] {
		return false, nil
	}
	t.seen[key] = true
	return true, nil
}
