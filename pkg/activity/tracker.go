package activity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/habitkit/devicegate/pkg/device/api"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	DefaultInactivityTimeout = 12 * time.Hour
	DefaultHeartbeatInterval = 5 * time.Minute
	DefaultLogoutTimeout     = 5 * time.Second
	DefaultHeartbeatTimeout  = 10 * time.Second

	// Gaps longer than this are idle time and do not count as active time.
	activeGap = time.Minute

	SessionExpiredRedirect = "/login?message=session_expired"
	DeviceRemovedRedirect  = "/login?message=device_removed"
)

type State int

const (
	StateIdle State = iota
	StateActive
	StateExpired
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

type Kind string

const (
	KindPointer Kind = "pointer"
	KindKey     Kind = "key"
	KindScroll  Kind = "scroll"
	KindTouch   Kind = "touch"
)

type Reason string

const (
	ReasonInactivity    Reason = "inactivity"
	ReasonDeviceRemoved Reason = "device_removed"
	ReasonUser          Reason = "user"
)

// Snapshot is the tracker's view of recent activity. It is not persisted.
type Snapshot struct {
	LastActivityAt   time.Time
	InactivityStreak time.Duration
	DailyActiveTime  time.Duration
}

// Server is the device API as seen by the tracker. *deviceclient.Client satisfies it.
type Server interface {
	Heartbeat(ctx context.Context, deviceID string) (bool, error)
	Logout(ctx context.Context, deviceID string) (api.LogoutResponse, error)
}

// Cleaner removes local session state on logout.
type Cleaner interface {
	Clear(ctx context.Context) error
}

type LogoutEvent struct {
	Reason   Reason
	Redirect string
	// ServerErr is set when the server could not be told; local cleanup ran anyway.
	ServerErr error
}

type Config struct {
	InactivityTimeout time.Duration
	HeartbeatInterval time.Duration
	LogoutTimeout     time.Duration
	HeartbeatTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		InactivityTimeout: DefaultInactivityTimeout,
		HeartbeatInterval: DefaultHeartbeatInterval,
		LogoutTimeout:     DefaultLogoutTimeout,
		HeartbeatTimeout:  DefaultHeartbeatTimeout,
	}
}

type Tracker struct {
	mu       sync.Mutex
	cfg      Config
	clock    clockwork.Clock
	deviceID string
	server   Server
	cleaners []Cleaner
	onLogout func(LogoutEvent)
	limiter  *rate.Limiter

	state      State
	lastActive time.Time
	dailyTime  time.Duration
	timer      clockwork.Timer
	inflight   sync.WaitGroup
}

type Option func(*Tracker)

func WithClock(clock clockwork.Clock) Option {
	return func(t *Tracker) {
		t.clock = clock
	}
}

func WithConfig(cfg Config) Option {
	return func(t *Tracker) {
		d := DefaultConfig()
		if cfg.InactivityTimeout <= 0 {
			cfg.InactivityTimeout = d.InactivityTimeout
		}
		if cfg.HeartbeatInterval <= 0 {
			cfg.HeartbeatInterval = d.HeartbeatInterval
		}
		if cfg.LogoutTimeout <= 0 {
			cfg.LogoutTimeout = d.LogoutTimeout
		}
		if cfg.HeartbeatTimeout <= 0 {
			cfg.HeartbeatTimeout = d.HeartbeatTimeout
		}
		t.cfg = cfg
	}
}

// WithCleaners registers local stores cleared on logout.
func WithCleaners(cleaners ...Cleaner) Option {
	return func(t *Tracker) {
		t.cleaners = append(t.cleaners, cleaners...)
	}
}

// WithLogoutHandler sets the callback invoked once local cleanup is done.
func WithLogoutHandler(fn func(LogoutEvent)) Option {
	return func(t *Tracker) {
		t.onLogout = fn
	}
}

func NewTracker(deviceID string, server Server, opts ...Option) *Tracker {
	t := &Tracker{
		cfg:      DefaultConfig(),
		clock:    clockwork.NewRealClock(),
		deviceID: deviceID,
		server:   server,
		onLogout: func(LogoutEvent) {},
	}
	for _, opt := range opts {
		opt(t)
	}
	t.limiter = rate.NewLimiter(rate.Every(t.cfg.HeartbeatInterval), 1)
	return t
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Check returns the state the tracker should be in at now. It has no side effects.
func (t *Tracker) Check(now time.Time) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.check(now)
}

func (t *Tracker) check(now time.Time) State {
	if t.state != StateActive {
		return t.state
	}
	if now.Sub(t.lastActive) >= t.cfg.InactivityTimeout {
		return StateExpired
	}
	return StateActive
}

// Start begins tracking. Starting counts as activity.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateIdle {
		return
	}
	t.state = StateActive
	t.lastActive = t.clock.Now()
	t.timer = t.clock.AfterFunc(t.cfg.InactivityTimeout, t.onTimer)
	slog.Debug("Activity tracking started", "device_id", t.deviceID)
}

// Stop cancels tracking permanently. Later events are ignored.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Tracker) stopLocked() {
	t.state = StateStopped
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Wait blocks until background heartbeats and logouts have finished.
func (t *Tracker) Wait() {
	t.inflight.Wait()
}

// RecordActivity registers a user event and, at most once per heartbeat
// interval, tells the server the device is in use.
func (t *Tracker) RecordActivity(kind Kind) {
	t.mu.Lock()
	if t.state != StateActive {
		t.mu.Unlock()
		return
	}
	now := t.clock.Now()
	if !sameDay(now, t.lastActive) {
		t.dailyTime = 0
	} else if gap := now.Sub(t.lastActive); gap > 0 && gap <= activeGap {
		t.dailyTime += gap
	}
	t.lastActive = now
	beat := t.limiter.AllowN(now, 1)
	if beat {
		t.inflight.Add(1)
	}
	t.mu.Unlock()

	if beat {
		go t.heartbeat()
	}
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	daily := t.dailyTime
	if !sameDay(now, t.lastActive) {
		daily = 0
	}
	return Snapshot{
		LastActivityAt:   t.lastActive,
		InactivityStreak: now.Sub(t.lastActive),
		DailyActiveTime:  daily,
	}
}

// Logout ends the session at the user's request.
func (t *Tracker) Logout(ctx context.Context) {
	if !t.expire() {
		return
	}
	t.logout(ctx, ReasonUser)
}

func (t *Tracker) onTimer() {
	t.mu.Lock()
	if t.state != StateActive {
		t.mu.Unlock()
		return
	}
	now := t.clock.Now()
	if t.check(now) == StateActive {
		remaining := t.cfg.InactivityTimeout - now.Sub(t.lastActive)
		t.timer = t.clock.AfterFunc(remaining, t.onTimer)
		t.mu.Unlock()
		return
	}
	t.state = StateExpired
	t.inflight.Add(1)
	t.mu.Unlock()

	defer t.inflight.Done()
	slog.Info("Session expired after inactivity", "device_id", t.deviceID)
	t.logout(context.Background(), ReasonInactivity)
}

func (t *Tracker) heartbeat() {
	defer t.inflight.Done()
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.HeartbeatTimeout)
	defer cancel()

	ok, err := t.server.Heartbeat(ctx, t.deviceID)
	if err != nil {
		slog.Warn("Heartbeat failed", "device_id", t.deviceID, "error", err)
		return
	}
	if ok {
		return
	}
	if !t.expire() {
		return
	}
	slog.Info("Device no longer active on server", "device_id", t.deviceID)
	t.logout(context.Background(), ReasonDeviceRemoved)
}

// expire moves an active tracker to Expired and reports whether this call did it.
func (t *Tracker) expire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateActive {
		return false
	}
	t.state = StateExpired
	return true
}

func (t *Tracker) logout(ctx context.Context, reason Reason) {
	event := LogoutEvent{Reason: reason, Redirect: defaultRedirect(reason)}

	callCtx, cancel := context.WithTimeout(ctx, t.cfg.LogoutTimeout)
	resp, err := t.server.Logout(callCtx, t.deviceID)
	cancel()
	if err != nil {
		slog.Warn("Server logout failed, cleaning up locally", "device_id", t.deviceID, "error", err)
		event.ServerErr = err
	} else if resp.Redirect != "" && reason == ReasonUser {
		event.Redirect = resp.Redirect
	}

	for _, c := range t.cleaners {
		if err := c.Clear(ctx); err != nil {
			slog.Warn("Failed to clear local session state", "error", err)
		}
	}

	t.mu.Lock()
	t.stopLocked()
	t.mu.Unlock()

	t.onLogout(event)
}

func defaultRedirect(reason Reason) string {
	switch reason {
	case ReasonInactivity:
		return SessionExpiredRedirect
	case ReasonDeviceRemoved:
		return DeviceRemovedRedirect
	}
	return api.LogoutRedirect
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
