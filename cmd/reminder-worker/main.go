package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/habitkit/devicegate/pkg/config"
	"github.com/habitkit/devicegate/pkg/device"
	"github.com/habitkit/devicegate/pkg/notification"
	"github.com/habitkit/devicegate/pkg/reminder"
	"github.com/hibiken/asynq"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

type Config struct {
	Concurrency int `env:"REMINDER_WORKER_CONCURRENCY" env-default:"10"`

	Database config.DatabaseConfig
	Device   config.DeviceConfig
	Redis    config.RedisConfig
	Push     config.PushConfig
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	cfg := Config{}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("Failed to read configuration", "error", err)
		os.Exit(1)
	}
	if err := config.Validate(cfg.Device.Validate, cfg.Redis.Validate, cfg.Push.Validate); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	repoConfig := device.RepositoryConfig{DataDir: cfg.Device.DataDir}
	switch cfg.Device.PersistenceType {
	case "postgres", "postgresql":
		pool, err := pgxpool.New(ctx, cfg.Database.ToDatabaseURL())
		if err != nil {
			slog.Error("Failed to connect to database", "host", cfg.Database.Host, "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		repoConfig.DB = pool
	case "inmem", "memory":
		slog.Warn("Reminder worker is using an in-memory device store; it will not see devices registered by the server")
	}

	repo, err := device.NewDeviceRepository(cfg.Device.PersistenceType, repoConfig)
	if err != nil {
		slog.Error("Failed to create device repository", "error", err)
		os.Exit(1)
	}
	deviceService := device.NewDeviceService(repo,
		device.WithDeviceLimit(cfg.Device.Limit),
		device.WithRememberMeTTL(cfg.Device.RememberMeTTL),
		device.WithInactivityTimeout(cfg.Device.InactivityTimeout),
	)

	pusher, err := notification.NewPusherFromConfig(ctx, cfg.Push)
	if err != nil {
		slog.Error("Failed to create pusher", "error", err)
		os.Exit(1)
	}
	dispatcher := notification.NewDispatcher(deviceService, pusher,
		notification.WithConcurrency(cfg.Push.Concurrency),
		notification.WithPushTimeout(cfg.Push.Timeout),
	)

	srv := asynq.NewServer(reminder.RedisClientOpt(cfg.Redis), asynq.Config{
		Concurrency: cfg.Concurrency,
	})
	mux := asynq.NewServeMux()
	reminder.NewHandler(dispatcher).Register(mux)

	slog.Info("Reminder worker starting", "redis", cfg.Redis.Addr, "concurrency", cfg.Concurrency)
	if err := srv.Run(mux); err != nil {
		slog.Error("Reminder worker stopped", "error", err)
		os.Exit(1)
	}
}
