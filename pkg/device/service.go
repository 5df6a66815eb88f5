package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	dgerrors "github.com/habitkit/devicegate/pkg/errors"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultDeviceLimit     = 2
	DefaultRememberMeTTL   = 7 * 24 * time.Hour
	DefaultHeartbeatWindow = 5 * time.Minute
	// DefaultInactivityTimeout must match the session policy's timeout.
	DefaultInactivityTimeout = 12 * time.Hour

	MessageDeviceLimitReached = "Device limit reached"
)

// HeartbeatThrottle coalesces heartbeat writes. Allow reports whether a write
// for key is due in the current window.
type HeartbeatThrottle interface {
	Allow(ctx context.Context, key string, window time.Duration) (bool, error)
}

// DeviceService is the device registry: quota-checked registration, access
// validation, heartbeats and soft eviction.
type DeviceService struct {
	repo              Repository
	limit             int
	rememberMeTTL     time.Duration
	inactivityTimeout time.Duration
	heartbeatWindow   time.Duration
	throttle          HeartbeatThrottle
	clock             clockwork.Clock
}

type Option func(*DeviceService)

func WithDeviceLimit(limit int) Option {
	return func(s *DeviceService) {
		if limit > 0 {
			s.limit = limit
		}
	}
}

func WithRememberMeTTL(ttl time.Duration) Option {
	return func(s *DeviceService) {
		if ttl > 0 {
			s.rememberMeTTL = ttl
		}
	}
}

// WithInactivityTimeout sets how long a session without remember-me survives
// without activity. Heartbeats never revive a session past it.
func WithInactivityTimeout(timeout time.Duration) Option {
	return func(s *DeviceService) {
		if timeout > 0 {
			s.inactivityTimeout = timeout
		}
	}
}

// WithHeartbeatThrottle enables write coalescing; without it every heartbeat is written.
func WithHeartbeatThrottle(t HeartbeatThrottle, window time.Duration) Option {
	return func(s *DeviceService) {
		s.throttle = t
		if window > 0 {
			s.heartbeatWindow = window
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(s *DeviceService) {
		s.clock = clock
	}
}

func NewDeviceService(repo Repository, opts ...Option) *DeviceService {
	s := &DeviceService{
		repo:              repo,
		limit:             DefaultDeviceLimit,
		rememberMeTTL:     DefaultRememberMeTTL,
		inactivityTimeout: DefaultInactivityTimeout,
		heartbeatWindow:   DefaultHeartbeatWindow,
		clock:             clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DeviceService) Limit() int {
	return s.limit
}

type RegisterParams struct {
	AccountID        uuid.UUID
	DeviceID         string
	PhysicalDeviceID string
	DeviceName       string
	DeviceType       DeviceType
	Browser          string
	OS               string
	PushSubscription *PushSubscription
	RememberMe       bool
	// ForceRegister marks the retry step of a replacement flow. It does not
	// bypass the device limit.
	ForceRegister bool
}

type RegisterResult struct {
	Success  bool
	DeviceID string
	Message  string
	Device   *Device
	// ActiveDevices is set when Success is false so the caller can offer a device to evict.
	ActiveDevices []Device
}

// Register creates or refreshes a device. Reaching the device limit is not an
// error: the result has Success=false and lists the active devices.
func (s *DeviceService) Register(ctx context.Context, p RegisterParams) (RegisterResult, error) {
	if p.AccountID == uuid.Nil {
		return RegisterResult{}, dgerrors.InvalidInput("accountId", "is required")
	}
	if p.DeviceID == "" {
		return RegisterResult{}, dgerrors.InvalidInput("deviceId", "is required")
	}
	if !p.DeviceType.Valid() {
		p.DeviceType = DeviceTypeDesktop
	}

	now := s.clock.Now().UTC()
	d := Device{
		AccountID:        p.AccountID,
		DeviceID:         p.DeviceID,
		PhysicalDeviceID: p.PhysicalDeviceID,
		DeviceType:       p.DeviceType,
		Browser:          p.Browser,
		OS:               p.OS,
		DeviceName:       p.DeviceName,
		LastActive:       now,
		RegisteredAt:     now,
		IsActive:         true,
		RememberMe:       p.RememberMe,
		PushSubscription: p.PushSubscription,
	}
	if p.RememberMe {
		expiry := now.Add(s.rememberMeTTL)
		d.RememberMeExpiry = &expiry
	}

	outcome, err := s.repo.RegisterWithinLimit(ctx, d, s.limit)
	if err != nil {
		slog.Error("Failed to register device", "err", err, "account_id", p.AccountID, "device_id", p.DeviceID)
		return RegisterResult{}, fmt.Errorf("failed to register device: %w", err)
	}

	if !outcome.Registered {
		quotaErr := dgerrors.QuotaExceeded(s.limit).WithDetail("active_devices_count", len(outcome.ActiveDevices))
		slog.Info("Device registration rejected",
			"account_id", p.AccountID,
			"device_id", p.DeviceID,
			"force", p.ForceRegister,
			"code", dgerrors.GetCode(quotaErr),
			"active", len(outcome.ActiveDevices))
		return RegisterResult{
			Success:       false,
			DeviceID:      p.DeviceID,
			Message:       MessageDeviceLimitReached,
			ActiveDevices: outcome.ActiveDevices,
		}, nil
	}

	slog.Info("Device registered",
		"account_id", p.AccountID,
		"device_id", p.DeviceID,
		"created", outcome.Created,
		"reactivated", outcome.Reactivated,
		"force", p.ForceRegister)

	stored := outcome.Device
	return RegisterResult{Success: true, DeviceID: stored.DeviceID, Device: &stored}, nil
}

type ValidateResult struct {
	// IsDeviceRegistered is true when any row exists, including an evicted one.
	IsDeviceRegistered   bool
	CanAccess            bool
	IsAtLimit            bool
	NeedsDeviceSelection bool
	ActiveDevicesCount   int
	DeviceLimit          int
	ActiveDevices        []Device
}

// Validate is read-only.
func (s *DeviceService) Validate(ctx context.Context, accountID uuid.UUID, deviceID string) (ValidateResult, error) {
	active, err := s.repo.FindActiveDevices(ctx, accountID)
	if err != nil {
		return ValidateResult{}, fmt.Errorf("failed to list active devices: %w", err)
	}

	registered := false
	if deviceID != "" {
		_, err := s.repo.GetDevice(ctx, accountID, deviceID)
		switch {
		case err == nil:
			registered = true
		case !errors.Is(err, ErrDeviceNotFound):
			return ValidateResult{}, fmt.Errorf("failed to get device: %w", err)
		}
	}

	canAccess := false
	for _, d := range active {
		if d.DeviceID == deviceID {
			canAccess = true
			break
		}
	}

	count := len(active)
	return ValidateResult{
		IsDeviceRegistered:   registered,
		CanAccess:            canAccess,
		IsAtLimit:            count >= s.limit,
		NeedsDeviceSelection: !canAccess && count >= s.limit,
		ActiveDevicesCount:   count,
		DeviceLimit:          s.limit,
		ActiveDevices:        active,
	}, nil
}

// Heartbeat records activity. It reports false for unknown, inactive or
// expired devices, which the client treats as a signal to log out. An expired
// device is deactivated instead of being refreshed.
func (s *DeviceService) Heartbeat(ctx context.Context, accountID uuid.UUID, deviceID string) (bool, error) {
	now := s.clock.Now().UTC()
	if s.throttle != nil {
		allowed, err := s.throttle.Allow(ctx, "heartbeat:"+deviceKey(accountID, deviceID), s.heartbeatWindow)
		if err != nil {
			slog.Warn("Heartbeat throttle unavailable, writing through", "err", err, "device_id", deviceID)
		} else if !allowed {
			d, err := s.repo.GetDevice(ctx, accountID, deviceID)
			if errors.Is(err, ErrDeviceNotFound) {
				return false, nil
			}
			if err != nil {
				return false, fmt.Errorf("failed to get device: %w", err)
			}
			if SessionLive(d, now, s.inactivityTimeout) {
				return true, nil
			}
			return false, s.expireAfterHeartbeat(ctx, accountID, deviceID, now)
		}
	}

	ok, err := s.repo.UpdateLastActive(ctx, accountID, deviceID, now, s.inactivityTimeout)
	if err != nil {
		return false, fmt.Errorf("failed to record heartbeat: %w", err)
	}
	if !ok {
		return false, s.expireAfterHeartbeat(ctx, accountID, deviceID, now)
	}
	return true, nil
}

func (s *DeviceService) expireAfterHeartbeat(ctx context.Context, accountID uuid.UUID, deviceID string, now time.Time) error {
	changed, err := s.ExpireSession(ctx, accountID, deviceID, now, s.inactivityTimeout)
	if err != nil {
		return err
	}
	if !changed {
		slog.Debug("Heartbeat for inactive device", "account_id", accountID, "device_id", deviceID)
	}
	return nil
}

// ExpireSession deactivates the device only if its session has ended at
// `at`. It reports whether the device was logged out.
func (s *DeviceService) ExpireSession(ctx context.Context, accountID uuid.UUID, deviceID string, at time.Time, inactivityTimeout time.Duration) (bool, error) {
	changed, err := s.repo.DeactivateExpired(ctx, accountID, deviceID, at, inactivityTimeout)
	if err != nil {
		slog.Error("Failed to expire device session", "err", err, "account_id", accountID, "device_id", deviceID)
		return false, fmt.Errorf("failed to expire device session: %w", err)
	}
	if changed {
		slog.Info("Device session expired", "account_id", accountID, "device_id", deviceID)
	}
	return changed, nil
}

// Deactivate soft-evicts a device. Missing or already inactive devices are a
// no-op; the returned bool reports whether anything changed.
func (s *DeviceService) Deactivate(ctx context.Context, accountID uuid.UUID, deviceID string) (bool, error) {
	changed, err := s.repo.Deactivate(ctx, accountID, deviceID)
	if err != nil {
		slog.Error("Failed to deactivate device", "err", err, "account_id", accountID, "device_id", deviceID)
		return false, fmt.Errorf("failed to deactivate device: %w", err)
	}
	if changed {
		slog.Info("Device deactivated", "account_id", accountID, "device_id", deviceID)
	}
	return changed, nil
}

// Logout ends the device's session. The row is deactivated so the slot is
// freed and remember-me is cleared.
func (s *DeviceService) Logout(ctx context.Context, accountID uuid.UUID, deviceID string) error {
	_, err := s.Deactivate(ctx, accountID, deviceID)
	return err
}

func (s *DeviceService) GetDevice(ctx context.Context, accountID uuid.UUID, deviceID string) (Device, error) {
	return s.repo.GetDevice(ctx, accountID, deviceID)
}

// UpdatePushSubscription sets or, with nil, clears the subscription of an
// active device. It reports false when the device is unknown or inactive.
func (s *DeviceService) UpdatePushSubscription(ctx context.Context, accountID uuid.UUID, deviceID string, sub *PushSubscription) (bool, error) {
	d, err := s.repo.GetDevice(ctx, accountID, deviceID)
	if errors.Is(err, ErrDeviceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get device: %w", err)
	}
	if !d.IsActive {
		return false, nil
	}
	return s.repo.UpdatePushSubscription(ctx, accountID, deviceID, sub)
}

// ClearPushSubscription drops a dead subscription regardless of device state.
func (s *DeviceService) ClearPushSubscription(ctx context.Context, accountID uuid.UUID, deviceID string) error {
	_, err := s.repo.UpdatePushSubscription(ctx, accountID, deviceID, nil)
	return err
}

// ActiveDevicesWithSubscription is the device read used by notification fanout.
func (s *DeviceService) ActiveDevicesWithSubscription(ctx context.Context, accountID uuid.UUID) ([]Device, error) {
	active, err := s.repo.FindActiveDevices(ctx, accountID)
	if err != nil {
		return nil, err
	}
	withSub := make([]Device, 0, len(active))
	for _, d := range active {
		if d.PushSubscription != nil && d.PushSubscription.Endpoint != "" {
			withSub = append(withSub, d)
		}
	}
	return withSub, nil
}

func (s *DeviceService) FindActiveDevices(ctx context.Context, accountID uuid.UUID) ([]Device, error) {
	return s.repo.FindActiveDevices(ctx, accountID)
}
