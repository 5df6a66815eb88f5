package device

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemDeviceRepository keeps devices in a map. One mutex guards every
// operation, which makes RegisterWithinLimit atomic.
type InMemDeviceRepository struct {
	devices map[string]Device
	mu      sync.Mutex
}

func NewInMemDeviceRepository() *InMemDeviceRepository {
	return &InMemDeviceRepository{
		devices: make(map[string]Device),
	}
}

func (r *InMemDeviceRepository) RegisterWithinLimit(ctx context.Context, d Device, limit int) (RegisterOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return registerInMap(r.devices, d, limit, nil)
}

// registerInMap holds the upsert logic shared by the in-memory and file
// repositories. persist is called before the map is mutated and may veto it.
func registerInMap(devices map[string]Device, d Device, limit int, persist func(map[string]Device) error) (RegisterOutcome, error) {
	key := deviceKey(d.AccountID, d.DeviceID)
	existing, exists := devices[key]

	if exists && existing.IsActive {
		merged := mergeRegistration(existing, d)
		if err := commit(devices, key, merged, persist); err != nil {
			return RegisterOutcome{}, err
		}
		return RegisterOutcome{Device: merged, Registered: true}, nil
	}

	active := activeInMap(devices, d.AccountID)
	if len(active) >= limit {
		slog.Debug("Device limit reached", "account_id", d.AccountID, "device_id", d.DeviceID, "active", len(active))
		return RegisterOutcome{ActiveDevices: active}, nil
	}

	stored := d
	stored.IsActive = true
	if exists {
		stored = mergeRegistration(existing, d)
	}
	if err := commit(devices, key, stored, persist); err != nil {
		return RegisterOutcome{}, err
	}
	return RegisterOutcome{Device: stored, Registered: true, Created: !exists, Reactivated: exists}, nil
}

func commit(devices map[string]Device, key string, d Device, persist func(map[string]Device) error) error {
	if persist == nil {
		devices[key] = d
		return nil
	}
	previous, had := devices[key]
	devices[key] = d
	if err := persist(devices); err != nil {
		if had {
			devices[key] = previous
		} else {
			delete(devices, key)
		}
		return err
	}
	return nil
}

func activeInMap(devices map[string]Device, accountID uuid.UUID) []Device {
	active := []Device{}
	for _, d := range devices {
		if d.AccountID == accountID && d.IsActive {
			active = append(active, d)
		}
	}
	sortByLastActive(active)
	return active
}

func (r *InMemDeviceRepository) GetDevice(ctx context.Context, accountID uuid.UUID, deviceID string) (Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[deviceKey(accountID, deviceID)]
	if !ok {
		return Device{}, ErrDeviceNotFound
	}
	return d, nil
}

func (r *InMemDeviceRepository) FindActiveDevices(ctx context.Context, accountID uuid.UUID) ([]Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return activeInMap(r.devices, accountID), nil
}

func (r *InMemDeviceRepository) UpdateLastActive(ctx context.Context, accountID uuid.UUID, deviceID string, at time.Time, inactivityTimeout time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := deviceKey(accountID, deviceID)
	d, ok := r.devices[key]
	if !ok || !SessionLive(d, at, inactivityTimeout) {
		return false, nil
	}
	d.LastActive = at
	r.devices[key] = d
	return true, nil
}

func (r *InMemDeviceRepository) Deactivate(ctx context.Context, accountID uuid.UUID, deviceID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := deviceKey(accountID, deviceID)
	d, ok := r.devices[key]
	if !ok || !d.IsActive {
		return false, nil
	}
	r.devices[key] = deactivated(d)
	return true, nil
}

func (r *InMemDeviceRepository) DeactivateExpired(ctx context.Context, accountID uuid.UUID, deviceID string, at time.Time, inactivityTimeout time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := deviceKey(accountID, deviceID)
	d, ok := r.devices[key]
	if !ok || !d.IsActive || SessionLive(d, at, inactivityTimeout) {
		return false, nil
	}
	r.devices[key] = deactivated(d)
	return true, nil
}

func deactivated(d Device) Device {
	d.IsActive = false
	d.RememberMe = false
	d.RememberMeExpiry = nil
	return d
}

func (r *InMemDeviceRepository) UpdatePushSubscription(ctx context.Context, accountID uuid.UUID, deviceID string, sub *PushSubscription) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := deviceKey(accountID, deviceID)
	d, ok := r.devices[key]
	if !ok {
		return false, nil
	}
	d.PushSubscription = sub
	r.devices[key] = d
	return true, nil
}

// WithTx is a no-op for the in-memory repository.
func (r *InMemDeviceRepository) WithTx(tx interface{}) Repository {
	return r
}
