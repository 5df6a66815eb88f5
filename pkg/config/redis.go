package config

// RedisConfig is shared by the heartbeat throttle and the reminder queue.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD" env-default:""`
	DB       int    `env:"REDIS_DB" env-default:"0"`
	// Enabled=false falls back to in-process throttling.
	Enabled bool `env:"REDIS_ENABLED" env-default:"false"`
}

func NewRedisConfigFromEnv() RedisConfig {
	return RedisConfig{
		Addr:     GetEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		Password: GetEnv("REDIS_PASSWORD"),
		DB:       GetEnvInt("REDIS_DB", 0),
		Enabled:  GetEnvBool("REDIS_ENABLED", false),
	}
}

func (c RedisConfig) Validate() ValidationErrors {
	if !c.Enabled {
		return nil
	}
	return CollectErrors(RequireNonEmpty("REDIS_ADDR", c.Addr))
}
