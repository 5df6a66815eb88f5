package config

import (
	"fmt"
)

// DatabaseConfig holds the PostgreSQL connection settings for the device registry.
type DatabaseConfig struct {
	Host     string `env:"DEVICEGATE_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"DEVICEGATE_PG_PORT" env-default:"5432"`
	Database string `env:"DEVICEGATE_PG_DATABASE" env-default:"devicegate_db"`
	User     string `env:"DEVICEGATE_PG_USER" env-default:"devicegate"`
	Password string `env:"DEVICEGATE_PG_PASSWORD" env-default:"pwd"`
	Schema   string `env:"DEVICEGATE_PG_SCHEMA" env-default:"public"`
}

// ToDatabaseURL converts the config to a URL accepted by pgxpool.New.
func (d DatabaseConfig) ToDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s,public",
		d.User, d.Password, d.Host, d.Port, d.Database, d.Schema)
}

func (d DatabaseConfig) Validate() ValidationErrors {
	return CollectErrors(
		RequireNonEmpty("DEVICEGATE_PG_HOST", d.Host),
		RequireValidPort("DEVICEGATE_PG_PORT", d.Port),
		RequireNonEmpty("DEVICEGATE_PG_DATABASE", d.Database),
		RequireNonEmpty("DEVICEGATE_PG_USER", d.User),
	)
}

func NewDatabaseConfigFromEnv() DatabaseConfig {
	return DatabaseConfig{
		Host:     GetEnvOrDefault("DEVICEGATE_PG_HOST", "localhost"),
		Port:     GetEnvUint16("DEVICEGATE_PG_PORT", 5432),
		Database: GetEnvOrDefault("DEVICEGATE_PG_DATABASE", "devicegate_db"),
		User:     GetEnvOrDefault("DEVICEGATE_PG_USER", "devicegate"),
		Password: GetEnvOrDefault("DEVICEGATE_PG_PASSWORD", "pwd"),
		Schema:   GetEnvOrDefault("DEVICEGATE_PG_SCHEMA", "public"),
	}
}
