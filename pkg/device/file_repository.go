package device

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileDeviceRepository keeps devices in memory and writes the full set to
// devices.json on every change, via a temp file and an atomic rename.
type FileDeviceRepository struct {
	dataDir string
	devices map[string]Device
	mutex   sync.Mutex
}

type deviceData struct {
	Devices []Device `json:"devices"`
}

func NewFileDeviceRepository(dataDir string) (*FileDeviceRepository, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	repo := &FileDeviceRepository{
		dataDir: dataDir,
		devices: make(map[string]Device),
	}
	if err := repo.load(); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}
	return repo, nil
}

func (r *FileDeviceRepository) RegisterWithinLimit(ctx context.Context, d Device, limit int) (RegisterOutcome, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return registerInMap(r.devices, d, limit, r.save)
}

func (r *FileDeviceRepository) GetDevice(ctx context.Context, accountID uuid.UUID, deviceID string) (Device, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	d, ok := r.devices[deviceKey(accountID, deviceID)]
	if !ok {
		return Device{}, ErrDeviceNotFound
	}
	return d, nil
}

func (r *FileDeviceRepository) FindActiveDevices(ctx context.Context, accountID uuid.UUID) ([]Device, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return activeInMap(r.devices, accountID), nil
}

func (r *FileDeviceRepository) UpdateLastActive(ctx context.Context, accountID uuid.UUID, deviceID string, at time.Time, inactivityTimeout time.Duration) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := deviceKey(accountID, deviceID)
	d, ok := r.devices[key]
	if !ok || !SessionLive(d, at, inactivityTimeout) {
		return false, nil
	}
	d.LastActive = at
	if err := commit(r.devices, key, d, r.save); err != nil {
		return false, fmt.Errorf("failed to save: %w", err)
	}
	return true, nil
}

func (r *FileDeviceRepository) Deactivate(ctx context.Context, accountID uuid.UUID, deviceID string) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := deviceKey(accountID, deviceID)
	d, ok := r.devices[key]
	if !ok || !d.IsActive {
		return false, nil
	}
	if err := commit(r.devices, key, deactivated(d), r.save); err != nil {
		return false, fmt.Errorf("failed to save: %w", err)
	}
	return true, nil
}

func (r *FileDeviceRepository) DeactivateExpired(ctx context.Context, accountID uuid.UUID, deviceID string, at time.Time, inactivityTimeout time.Duration) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := deviceKey(accountID, deviceID)
	d, ok := r.devices[key]
	if !ok || !d.IsActive || SessionLive(d, at, inactivityTimeout) {
		return false, nil
	}
	if err := commit(r.devices, key, deactivated(d), r.save); err != nil {
		return false, fmt.Errorf("failed to save: %w", err)
	}
	return true, nil
}

func (r *FileDeviceRepository) UpdatePushSubscription(ctx context.Context, accountID uuid.UUID, deviceID string, sub *PushSubscription) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := deviceKey(accountID, deviceID)
	d, ok := r.devices[key]
	if !ok {
		return false, nil
	}
	d.PushSubscription = sub
	if err := commit(r.devices, key, d, r.save); err != nil {
		return false, fmt.Errorf("failed to save: %w", err)
	}
	return true, nil
}

// WithTx is a no-op; every write is already persisted atomically.
func (r *FileDeviceRepository) WithTx(tx interface{}) Repository {
	return r
}

func (r *FileDeviceRepository) load() error {
	data, err := os.ReadFile(filepath.Join(r.dataDir, "devices.json"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var devData deviceData
	if err := json.Unmarshal(data, &devData); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}
	for _, d := range devData.Devices {
		r.devices[deviceKey(d.AccountID, d.DeviceID)] = d
	}
	return nil
}

// save must be called with the mutex held.
func (r *FileDeviceRepository) save(devices map[string]Device) error {
	data := deviceData{Devices: make([]Device, 0, len(devices))}
	for _, d := range devices {
		data.Devices = append(data.Devices, d)
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	tempFile := filepath.Join(r.dataDir, "devices.json.tmp")
	if err := os.WriteFile(tempFile, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempFile, filepath.Join(r.dataDir, "devices.json")); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}
