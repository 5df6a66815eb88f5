package notification

import (
	"context"
	"sync"

	"github.com/habitkit/devicegate/pkg/device"
)

type Delivery struct {
	Endpoint string
	Payload  Payload
}

// MockPusher records deliveries. Endpoints listed in Failures fail with the given error.
type MockPusher struct {
	mu        sync.Mutex
	Sent      []Delivery
	Failures  map[string]error
	Attempted int
}

func NewMockPusher() *MockPusher {
	return &MockPusher{Failures: make(map[string]error)}
}

func (m *MockPusher) FailFor(endpoint string, err error) *MockPusher {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failures[endpoint] = err
	return m
}

func (m *MockPusher) Push(ctx context.Context, sub device.PushSubscription, payload Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Attempted++
	if err, ok := m.Failures[sub.Endpoint]; ok {
		return err
	}
	m.Sent = append(m.Sent, Delivery{Endpoint: sub.Endpoint, Payload: payload})
	return nil
}

func (m *MockPusher) Deliveries() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Delivery(nil), m.Sent...)
}
