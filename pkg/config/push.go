package config

import "time"

// PushConfig holds Web Push (VAPID) and Firebase Cloud Messaging credentials.
// Either transport may be left unconfigured; subscriptions of that kind then fail delivery.
type PushConfig struct {
	VAPIDPublicKey     string        `env:"VAPID_PUBLIC_KEY" env-default:""`
	VAPIDPrivateKey    string        `env:"VAPID_PRIVATE_KEY" env-default:""`
	VAPIDSubscriber    string        `env:"VAPID_SUBSCRIBER" env-default:""`
	TTL                int           `env:"PUSH_TTL_SECONDS" env-default:"86400"`
	FCMCredentialsFile string        `env:"FCM_CREDENTIALS_FILE" env-default:""`
	Concurrency        int           `env:"PUSH_CONCURRENCY" env-default:"8"`
	Timeout            time.Duration `env:"PUSH_TIMEOUT" env-default:"10s"`
}

func (c PushConfig) WebPushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

func (c PushConfig) FCMEnabled() bool {
	return c.FCMCredentialsFile != ""
}

func NewPushConfigFromEnv() PushConfig {
	return PushConfig{
		VAPIDPublicKey:     GetEnv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey:    GetEnv("VAPID_PRIVATE_KEY"),
		VAPIDSubscriber:    GetEnv("VAPID_SUBSCRIBER"),
		TTL:                GetEnvInt("PUSH_TTL_SECONDS", 86400),
		FCMCredentialsFile: GetEnv("FCM_CREDENTIALS_FILE"),
		Concurrency:        GetEnvInt("PUSH_CONCURRENCY", 8),
		Timeout:            GetEnvDuration("PUSH_TIMEOUT", 10*time.Second),
	}
}

func (c PushConfig) Validate() ValidationErrors {
	return CollectErrors(
		RequirePositive("PUSH_CONCURRENCY", c.Concurrency),
		WhenSet(c.VAPIDPublicKey, func() *ValidationError {
			return RequireNonEmpty("VAPID_PRIVATE_KEY", c.VAPIDPrivateKey)
		}),
		WhenSet(c.VAPIDSubscriber, func() *ValidationError {
			return RequireValidURL("VAPID_SUBSCRIBER", c.VAPIDSubscriber)
		}),
	)
}
