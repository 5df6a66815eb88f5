package identity

import (
	"context"
	"errors"
	"log/slog"
)

// Resolver reconciles the device id across its stores. Stores are consulted
// in the order given; the first one is the primary.
type Resolver struct {
	stores   []Store
	hardware HardwareInfo
	newID    func(HardwareInfo) string
}

func NewResolver(hardware HardwareInfo, stores ...Store) *Resolver {
	return &Resolver{stores: stores, hardware: hardware, newID: NewDeviceID}
}

// Resolve returns the stored id or derives a new one. Failures to write a
// store are logged; the resolved id is returned regardless.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	if len(r.stores) == 0 {
		return "", errors.New("identity: no stores configured")
	}

	for i, s := range r.stores {
		id, err := s.Load(ctx)
		if err != nil {
			slog.Warn("Failed to read device id store", "store", s.Name(), "error", err)
			continue
		}
		if id == "" {
			continue
		}
		r.propagate(ctx, id, i)
		return id, nil
	}

	id := r.newID(r.hardware)
	slog.Info("Derived new device id", "device_id", id)
	r.propagate(ctx, id, -1)
	return id, nil
}

// PhysicalDeviceID is the fingerprint of this machine.
func (r *Resolver) PhysicalDeviceID() string {
	return Fingerprint(r.hardware)
}

// Clear removes the id from every store.
func (r *Resolver) Clear(ctx context.Context) error {
	var errs []error
	for _, s := range r.stores {
		if err := s.Clear(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Resolver) propagate(ctx context.Context, id string, source int) {
	for i, s := range r.stores {
		if i == source {
			continue
		}
		if err := s.Save(ctx, id); err != nil {
			slog.Warn("Failed to write device id store", "store", s.Name(), "error", err)
		}
	}
}
