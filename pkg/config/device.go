package config

import "time"

const (
	DefaultDeviceLimit       = 2
	DefaultRememberMeTTL     = 7 * 24 * time.Hour
	DefaultInactivityTimeout = 12 * time.Hour
	DefaultHeartbeatWindow   = 5 * time.Minute
	DefaultDeviceAPIPrefix   = "/api/v1/devices"
)

// DeviceConfig controls the per-account device quota and session policy.
type DeviceConfig struct {
	Limit             int           `env:"DEVICE_LIMIT" env-default:"2"`
	RememberMeTTL     time.Duration `env:"DEVICE_REMEMBER_ME_TTL" env-default:"168h"`
	InactivityTimeout time.Duration `env:"DEVICE_INACTIVITY_TIMEOUT" env-default:"12h"`
	HeartbeatWindow   time.Duration `env:"DEVICE_HEARTBEAT_WINDOW" env-default:"5m"`
	APIPrefix         string        `env:"DEVICE_API_PREFIX" env-default:"/api/v1/devices"`
	PersistenceType   string        `env:"DEVICE_PERSISTENCE_TYPE" env-default:"postgres"`
	DataDir           string        `env:"DEVICE_DATA_DIR" env-default:"data"`
	// CookieMaxAge is the lifetime of the device_id identity hint cookie.
	CookieMaxAge time.Duration `env:"DEVICE_COOKIE_MAX_AGE" env-default:"720h"`
	CookieSecure bool          `env:"DEVICE_COOKIE_SECURE" env-default:"false"`
}

func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		Limit:             DefaultDeviceLimit,
		RememberMeTTL:     DefaultRememberMeTTL,
		InactivityTimeout: DefaultInactivityTimeout,
		HeartbeatWindow:   DefaultHeartbeatWindow,
		APIPrefix:         DefaultDeviceAPIPrefix,
		PersistenceType:   "memory",
		DataDir:           "data",
		CookieMaxAge:      30 * 24 * time.Hour,
	}
}

func NewDeviceConfigFromEnv() DeviceConfig {
	d := DefaultDeviceConfig()
	return DeviceConfig{
		Limit:             GetEnvInt("DEVICE_LIMIT", d.Limit),
		RememberMeTTL:     GetEnvDuration("DEVICE_REMEMBER_ME_TTL", d.RememberMeTTL),
		InactivityTimeout: GetEnvDuration("DEVICE_INACTIVITY_TIMEOUT", d.InactivityTimeout),
		HeartbeatWindow:   GetEnvDuration("DEVICE_HEARTBEAT_WINDOW", d.HeartbeatWindow),
		APIPrefix:         GetEnvOrDefault("DEVICE_API_PREFIX", d.APIPrefix),
		PersistenceType:   GetEnvOrDefault("DEVICE_PERSISTENCE_TYPE", "postgres"),
		DataDir:           GetEnvOrDefault("DEVICE_DATA_DIR", d.DataDir),
		CookieMaxAge:      GetEnvDuration("DEVICE_COOKIE_MAX_AGE", d.CookieMaxAge),
		CookieSecure:      GetEnvBool("DEVICE_COOKIE_SECURE", IsProduction()),
	}
}

func (c DeviceConfig) Validate() ValidationErrors {
	return CollectErrors(
		RequirePositive("DEVICE_LIMIT", c.Limit),
		RequirePositiveDuration("DEVICE_REMEMBER_ME_TTL", c.RememberMeTTL),
		RequirePositiveDuration("DEVICE_INACTIVITY_TIMEOUT", c.InactivityTimeout),
		RequirePositiveDuration("DEVICE_HEARTBEAT_WINDOW", c.HeartbeatWindow),
		RequireNonEmpty("DEVICE_API_PREFIX", c.APIPrefix),
		RequireOneOf("DEVICE_PERSISTENCE_TYPE", c.PersistenceType, []string{"postgres", "file", "memory"}),
	)
}
