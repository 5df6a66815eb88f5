package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/habitkit/devicegate/pkg/client"
	"github.com/habitkit/devicegate/pkg/config"
	"github.com/habitkit/devicegate/pkg/device"
	deviceapi "github.com/habitkit/devicegate/pkg/device/api"
	"github.com/habitkit/devicegate/pkg/notification"
	notificationapi "github.com/habitkit/devicegate/pkg/notification/api"
	"github.com/habitkit/devicegate/pkg/ratelimit"
	"github.com/habitkit/devicegate/pkg/reminder"
	"github.com/habitkit/devicegate/pkg/replacement"
	"github.com/habitkit/devicegate/pkg/sessions"
	sessionsapi "github.com/habitkit/devicegate/pkg/sessions/api"
	"github.com/habitkit/devicegate/pkg/throttle"
	"github.com/hibiken/asynq"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/chi-demo/app"
)

type Config struct {
	JWTSecret string `env:"JWT_SECRET" env-default:"devicegate-dev-secret"`

	SessionsAPIPrefix      string `env:"SESSIONS_API_PREFIX" env-default:"/api/v1/sessions"`
	NotificationsAPIPrefix string `env:"NOTIFICATIONS_API_PREFIX" env-default:"/api/v1/notifications"`

	Database  config.DatabaseConfig
	Device    config.DeviceConfig
	Redis     config.RedisConfig
	Push      config.PushConfig
	RateLimit config.RateLimitConfig
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	}))
	slog.SetDefault(logger)

	loadEnvFile()

	cfg := Config{}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("Failed to read configuration", "error", err)
		os.Exit(1)
	}
	if err := config.Validate(cfg.Device.Validate, cfg.Redis.Validate, cfg.Push.Validate); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if config.IsProduction() && cfg.JWTSecret == "devicegate-dev-secret" {
		slog.Error("JWT_SECRET must be set in production")
		os.Exit(1)
	}

	ctx := context.Background()
	repoConfig := device.RepositoryConfig{DataDir: cfg.Device.DataDir}
	var achievements notification.AchievementRepository = notification.NewInMemoryAchievementRepository()
	if isPostgres(cfg.Device.PersistenceType) {
		if err := config.Validate(cfg.Database.Validate); err != nil {
			slog.Error("Invalid database configuration", "error", err)
			os.Exit(1)
		}
		pool, err := pgxpool.New(ctx, cfg.Database.ToDatabaseURL())
		if err != nil {
			slog.Error("Failed to connect to database",
				"host", cfg.Database.Host,
				"port", cfg.Database.Port,
				"database", cfg.Database.Database,
				"error", err)
			os.Exit(1)
		}
		defer pool.Close()
		repoConfig.DB = pool
		achievements = notification.NewPostgresAchievementRepository(pool)
		slog.Info("Database connected", "database", cfg.Database.Database, "schema", cfg.Database.Schema)
	}

	repo, err := device.NewDeviceRepository(cfg.Device.PersistenceType, repoConfig)
	if err != nil {
		slog.Error("Failed to create device repository", "error", err)
		os.Exit(1)
	}

	clock := clockwork.NewRealClock()
	deviceService := device.NewDeviceService(repo,
		device.WithDeviceLimit(cfg.Device.Limit),
		device.WithRememberMeTTL(cfg.Device.RememberMeTTL),
		device.WithInactivityTimeout(cfg.Device.InactivityTimeout),
		device.WithHeartbeatThrottle(newThrottle(ctx, cfg.Redis, clock), cfg.Device.HeartbeatWindow),
		device.WithClock(clock),
	)
	engine := sessions.NewEngine(sessions.Policy{
		RememberMeTTL:     cfg.Device.RememberMeTTL,
		InactivityTimeout: cfg.Device.InactivityTimeout,
	}, deviceService, sessions.WithEngineClock(clock))
	coordinator := replacement.NewCoordinator(deviceService)

	deviceHandler := deviceapi.NewDeviceHandler(deviceService, coordinator, deviceapi.CookieOptions{
		MaxAge: cfg.Device.CookieMaxAge,
		Secure: cfg.Device.CookieSecure,
	})
	sessionsHandler := sessionsapi.NewHandler(engine)

	pusher, err := notification.NewPusherFromConfig(ctx, cfg.Push)
	if err != nil {
		slog.Error("Failed to create pusher", "error", err)
		os.Exit(1)
	}
	dispatcher := notification.NewDispatcher(deviceService, pusher,
		notification.WithConcurrency(cfg.Push.Concurrency),
		notification.WithPushTimeout(cfg.Push.Timeout),
	)
	milestones := notification.NewMilestoneNotifier(achievements, dispatcher, clock)

	// Reminders need the asynq queue, which lives in Redis.
	var reminders notificationapi.ReminderScheduler
	if cfg.Redis.Enabled {
		queue := asynq.NewClient(reminder.RedisClientOpt(cfg.Redis))
		defer queue.Close()
		reminders = reminder.NewScheduler(queue, clock)
	}
	notificationHandler := notificationapi.NewNotificationHandler(milestones, achievements, reminders)

	tokenAuth := jwtauth.New("HS256", []byte(cfg.JWTSecret), nil)
	limiter := ratelimit.NewMiddleware(cfg.RateLimit)

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	server.R.Group(func(r chi.Router) {
		r.Use(client.Verifier(tokenAuth))
		r.Use(client.AuthAccountMiddleware)
		r.Use(limiter.Handler)

		r.Mount(cfg.Device.APIPrefix, deviceapi.Handler(deviceHandler, engine.Middleware))
		r.Route(cfg.SessionsAPIPrefix, sessionsHandler.RegisterRoutes)
		r.With(engine.Middleware).Mount(cfg.NotificationsAPIPrefix, notificationapi.Handler(notificationHandler))
	})

	slog.Info("Device gate ready",
		"device_api", cfg.Device.APIPrefix,
		"sessions_api", cfg.SessionsAPIPrefix,
		"device_limit", cfg.Device.Limit,
		"persistence", cfg.Device.PersistenceType,
		"webpush", cfg.Push.WebPushEnabled(),
		"fcm", cfg.Push.FCMEnabled(),
		"reminders", reminders != nil)

	server.Run()
}

func isPostgres(persistenceType string) bool {
	return persistenceType == "postgres" || persistenceType == "postgresql"
}

// newThrottle shares the heartbeat window across instances through Redis
// when it is enabled and reachable.
func newThrottle(ctx context.Context, cfg config.RedisConfig, clock clockwork.Clock) device.HeartbeatThrottle {
	if !cfg.Enabled {
		return throttle.NewMemoryThrottle(clock)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("Redis unavailable, using in-process heartbeat throttle", "addr", cfg.Addr, "error", err)
		return throttle.NewMemoryThrottle(clock)
	}
	slog.Info("Redis connected", "addr", cfg.Addr)
	return throttle.NewRedisThrottle(rdb)
}

func loadEnvFile() {
	envFile := ".env"
	if execPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(candidate); err == nil {
			envFile = candidate
		}
	}
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		slog.Debug("No .env file found (using environment variables or defaults)")
		return
	}
	slog.Info("Loading configuration from .env file", "path", envFile)
	if err := godotenv.Load(envFile); err != nil {
		slog.Warn("Failed to load .env file", "error", err)
	}
}
