package config

import "time"

// RateLimitConfig controls request limits on the device API.
// Rates are requests per second; capacity is the burst.
type RateLimitConfig struct {
	PerIPEnabled    bool    `env:"RATELIMIT_PER_IP_ENABLED" env-default:"true"`
	PerIPCapacity   int     `env:"RATELIMIT_PER_IP_CAPACITY" env-default:"100"`
	PerIPRefillRate float64 `env:"RATELIMIT_PER_IP_REFILL_RATE" env-default:"1.67"`

	PerAccountEnabled    bool    `env:"RATELIMIT_PER_ACCOUNT_ENABLED" env-default:"true"`
	PerAccountCapacity   int     `env:"RATELIMIT_PER_ACCOUNT_CAPACITY" env-default:"60"`
	PerAccountRefillRate float64 `env:"RATELIMIT_PER_ACCOUNT_REFILL_RATE" env-default:"1"`

	// Registration is the quota-sensitive path, so it gets its own tighter bucket.
	RegisterCapacity   int     `env:"RATELIMIT_REGISTER_CAPACITY" env-default:"10"`
	RegisterRefillRate float64 `env:"RATELIMIT_REGISTER_REFILL_RATE" env-default:"0.167"`

	BucketTTL time.Duration `env:"RATELIMIT_BUCKET_TTL" env-default:"1h"`
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		PerIPEnabled:         true,
		PerIPCapacity:        100,
		PerIPRefillRate:      100.0 / 60.0,
		PerAccountEnabled:    true,
		PerAccountCapacity:   60,
		PerAccountRefillRate: 1,
		RegisterCapacity:     10,
		RegisterRefillRate:   10.0 / 60.0,
		BucketTTL:            time.Hour,
	}
}
