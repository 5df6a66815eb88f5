// Package replacement drives the "pick a device to evict" flow that follows a
// rejected registration.
//
// The flow is AwaitingSelection -> Evicted -> Registered | Conflict | LoggedOut.
// Remove performs the eviction; Replace evicts and then retries the
// registration. Nothing reserves the freed slot: if another registration
// takes it first, Replace ends in Conflict with the current active devices.
package replacement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/habitkit/devicegate/pkg/device"
	dgerrors "github.com/habitkit/devicegate/pkg/errors"
)

const DeviceRemovedRedirect = "/login?message=device_removed"

type State string

const (
	StateAwaitingSelection State = "awaiting_selection"
	StateEvicted           State = "evicted"
	StateRegistered        State = "registered"
	StateConflict          State = "conflict"
	StateLoggedOut         State = "logged_out"
)

// Registry is the part of the device service the coordinator drives.
type Registry interface {
	Deactivate(ctx context.Context, accountID uuid.UUID, deviceID string) (bool, error)
	Register(ctx context.Context, p device.RegisterParams) (device.RegisterResult, error)
}

type Coordinator struct {
	registry Registry
}

func NewCoordinator(registry Registry) *Coordinator {
	return &Coordinator{registry: registry}
}

type RemoveResult struct {
	Success      bool   `json:"success"`
	ShouldLogout bool   `json:"shouldLogout,omitempty"`
	Redirect     string `json:"redirect,omitempty"`
	State        State  `json:"-"`
}

// Remove evicts deviceIDToRemove. Evicting an unknown or already inactive
// device succeeds. When the caller evicts itself it must log out.
func (c *Coordinator) Remove(ctx context.Context, accountID uuid.UUID, deviceIDToRemove, requestingDeviceID string) (RemoveResult, error) {
	if deviceIDToRemove == "" {
		return RemoveResult{}, dgerrors.InvalidInput("deviceIdToRemove", "is required")
	}

	changed, err := c.registry.Deactivate(ctx, accountID, deviceIDToRemove)
	if err != nil {
		return RemoveResult{}, fmt.Errorf("failed to remove device: %w", err)
	}

	self := deviceIDToRemove == requestingDeviceID
	slog.Info("Device removed",
		"account_id", accountID,
		"device_id", deviceIDToRemove,
		"requested_by", requestingDeviceID,
		"self", self,
		"changed", changed)

	if self {
		return RemoveResult{
			Success:      true,
			ShouldLogout: true,
			Redirect:     DeviceRemovedRedirect,
			State:        StateLoggedOut,
		}, nil
	}
	return RemoveResult{Success: true, State: StateEvicted}, nil
}

type ReplaceResult struct {
	State    State
	Register device.RegisterResult
}

// Replace evicts deviceIDToRemove and registers the new device in its place.
func (c *Coordinator) Replace(ctx context.Context, accountID uuid.UUID, deviceIDToRemove string, params device.RegisterParams) (ReplaceResult, error) {
	if params.AccountID == uuid.Nil {
		params.AccountID = accountID
	}
	if params.AccountID != accountID {
		return ReplaceResult{}, dgerrors.InvalidInput("accountId", "does not match the evicting account")
	}

	removed, err := c.Remove(ctx, accountID, deviceIDToRemove, params.DeviceID)
	if err != nil {
		return ReplaceResult{}, err
	}
	if removed.State == StateLoggedOut {
		// Evicting the device being registered frees nothing for it.
		return ReplaceResult{State: StateLoggedOut}, nil
	}

	params.ForceRegister = true
	result, err := c.registry.Register(ctx, params)
	if err != nil {
		return ReplaceResult{}, err
	}
	if !result.Success {
		slog.Info("Freed slot was taken before re-registration",
			"account_id", accountID,
			"device_id", params.DeviceID,
			"evicted", deviceIDToRemove)
		return ReplaceResult{State: StateConflict, Register: result}, nil
	}
	return ReplaceResult{State: StateRegistered, Register: result}, nil
}
