package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/credstock/internal/alerts"
	"github.com/angelmondragon/credstock/internal/ledger"
	"github.com/angelmondragon/credstock/internal/lifecycle"
	"github.com/angelmondragon/credstock/internal/notify"
	"github.com/angelmondragon/credstock/internal/settings"
	"github.com/angelmondragon/credstock/internal/stockcount"
	"github.com/angelmondragon/credstock/pkg/config"
	"github.com/angelmondragon/credstock/pkg/db"
	"github.com/angelmondragon/credstock/pkg/logger"
	"github.com/angelmondragon/credstock/pkg/metrics"
	"github.com/angelmondragon/credstock/pkg/migrate"
	"github.com/angelmondragon/credstock/pkg/redis"
)

const (
	lockName        = "lifecycle"
	shutdownTimeout = 2 * time.Minute
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "lifecycle-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "lifecycle-worker"

	logg = logger.New(logger.Options{
		ServiceName: "lifecycle-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if !cfg.Redis.Enabled() {
		logg.Error(context.Background(), "lifecycle worker needs redis for its cycle lock", fmt.Errorf("%s or %s is required", config.EnvRedisURL, config.EnvRedisAddr))
		os.Exit(1)
	}

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRun(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stockMetrics := metrics.NewStockMetrics(prometheus.DefaultRegisterer)
	jobMetrics := metrics.NewJobMetrics(prometheus.DefaultRegisterer)

	store := ledger.NewStore(dbClient.DB(), ledger.WithBatchSize(cfg.Lifecycle.BatchSize))
	settingsSvc := settings.NewService(dbClient.DB(), settings.DefaultsFromConfig(cfg))
	if err := settingsSvc.Seed(context.Background()); err != nil {
		logg.Error(context.Background(), "failed to seed settings", err)
		os.Exit(1)
	}

	telegram := notify.NewTelegram(notify.TelegramParams{
		Settings:   settingsSvc,
		Formatter:  notify.NewFormatter(cfg.Telegram.Timezone),
		Logger:     logg,
		Metrics:    stockMetrics,
		BaseURL:    cfg.Telegram.BaseURL,
		MaxRetries: cfg.Telegram.MaxRetries,
	})
	counts := stockcount.NewRedis(store, redisClient, cfg.CountCache.TTL, logg)
	monitor := alerts.NewMonitor(alerts.MonitorParams{
		Counter:          store,
		Settings:         settingsSvc,
		Notifier:         telegram,
		Bucket:           cfg.Alerts.Bucket(),
		DefaultThreshold: cfg.Alerts.Threshold,
		Metrics:          stockMetrics,
		Logger:           logg,
	})

	lock, err := lifecycle.NewRedisLock(redisClient, redisClient.LockKey(lockName), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create scheduler lock", err)
		os.Exit(1)
	}

	scheduler, err := lifecycle.NewStandardScheduler(lifecycle.StandardParams{
		Logger:       logg,
		Store:        store,
		Cache:        counts,
		Notifier:     telegram,
		Evaluator:    monitor,
		Settings:     settingsSvc,
		Lock:         lock,
		StockMetrics: stockMetrics,
		JobMetrics:   jobMetrics,
		Config:       cfg.Lifecycle,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create lifecycle scheduler", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting lifecycle worker")

	scheduler.Start(ctx)
	<-ctx.Done()

	logg.Info(context.WithoutCancel(ctx), "lifecycle worker shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logg.Error(context.WithoutCancel(ctx), "scheduler stop incomplete", err)
	}
	if err := store.Close(shutdownCtx); err != nil {
		logg.Error(context.WithoutCancel(ctx), "ledger close incomplete", err)
	}
}
