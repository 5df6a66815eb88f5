// Package config holds the configuration structs and environment helpers
// shared by the devicegate server, the reminder worker and the client tools.
//
// Structs carry cleanenv `env` / `env-default` tags so a binary can load
// everything in one pass:
//
//	var cfg struct {
//		DB     config.DatabaseConfig
//		Device config.DeviceConfig
//		Redis  config.RedisConfig
//		Push   config.PushConfig
//	}
//	if err := cleanenv.ReadEnv(&cfg); err != nil {
//		slog.Error("failed to read config", "err", err)
//	}
//
// Each struct also has a NewXxxFromEnv constructor built on the GetEnv*
// helpers for callers that do not use cleanenv, and a Validate method that
// returns ValidationErrors.
//
// # Environment variables
//
//	DEVICEGATE_PG_HOST, DEVICEGATE_PG_PORT, DEVICEGATE_PG_DATABASE,
//	DEVICEGATE_PG_USER, DEVICEGATE_PG_PASSWORD, DEVICEGATE_PG_SCHEMA
//	DEVICE_LIMIT                 (default 2)
//	DEVICE_REMEMBER_ME_TTL       (default 168h)
//	DEVICE_INACTIVITY_TIMEOUT    (default 12h)
//	DEVICE_HEARTBEAT_WINDOW      (default 5m)
//	DEVICE_API_PREFIX            (default /api/v1/devices)
//	DEVICE_PERSISTENCE_TYPE      (postgres, file or memory)
//	DEVICE_DATA_DIR              (file persistence, default data)
//	REDIS_ADDR, REDIS_PASSWORD, REDIS_DB
//	VAPID_PUBLIC_KEY, VAPID_PRIVATE_KEY, VAPID_SUBSCRIBER, PUSH_TTL_SECONDS
//	FCM_CREDENTIALS_FILE
package config
