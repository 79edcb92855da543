package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/credstock/api/routes"
	"github.com/angelmondragon/credstock/internal/alerts"
	"github.com/angelmondragon/credstock/internal/apikeys"
	"github.com/angelmondragon/credstock/internal/catalog"
	"github.com/angelmondragon/credstock/internal/fulfillment"
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
	shutdownTimeout   = 30 * time.Second
	lifecycleLockName = "lifecycle"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

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

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	} else {
		logg.Warn(context.Background(), "redis not configured, using in-process cache and no rate limiting")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	stockMetrics := metrics.NewStockMetrics(reg)
	jobMetrics := metrics.NewJobMetrics(reg)

	store := ledger.NewStore(dbClient.DB(), ledger.WithBatchSize(cfg.Lifecycle.BatchSize))
	if err := store.EnsureDefaults(context.Background()); err != nil {
		logg.Error(context.Background(), "failed to ensure default inventories", err)
		os.Exit(1)
	}

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
	activity := notify.NewActivity(telegram, settingsSvc)

	var counts *stockcount.Cache
	if redisClient != nil {
		counts = stockcount.NewRedis(store, redisClient, cfg.CountCache.TTL, logg)
	} else {
		counts = stockcount.NewMemory(store, cfg.CountCache.TTL, logg)
	}

	engine, err := fulfillment.NewEngine(fulfillment.EngineParams{
		Store: store,
		Cache: counts,
		Notifier: fulfillment.SaleNotifierFunc(func(ctx context.Context, sale fulfillment.Sale) {
			activity.ProductsSold(ctx, int64(sale.Quantity), sale.OrderID)
		}),
		Logger:              logg,
		Metrics:             stockMetrics,
		MaxQuantity:         cfg.Fulfillment.MaxQuantity,
		NotificationTimeout: cfg.Fulfillment.NotificationTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create fulfillment engine", err)
		os.Exit(1)
	}

	catalogSvc, err := catalog.NewService(catalog.ServiceParams{
		Store:    store,
		Cache:    counts,
		Notifier: activity,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	monitor := alerts.NewMonitor(alerts.MonitorParams{
		Counter:          store,
		Settings:         settingsSvc,
		Notifier:         telegram,
		Bucket:           cfg.Alerts.Bucket(),
		DefaultThreshold: cfg.Alerts.Threshold,
		Metrics:          stockMetrics,
		Logger:           logg,
	})

	var lock lifecycle.Lock
	if redisClient != nil {
		lock, err = lifecycle.NewRedisLock(redisClient, redisClient.LockKey(lifecycleLockName), 0)
		if err != nil {
			logg.Error(context.Background(), "failed to create scheduler lock", err)
			os.Exit(1)
		}
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

	deps := routes.Deps{
		DB:        dbClient,
		Gatherer:  reg,
		HTTP:      metrics.NewHTTPMetrics(reg),
		Keys:      apikeys.NewService(apikeys.NewRepository(dbClient.DB()), logg),
		Counter:   counts,
		Seller:    engine,
		Catalog:   catalogSvc,
		Settings:  settingsSvc,
		Telegram:  telegram,
		Checker:   monitor,
		Scheduler: scheduler,
	}
	if redisClient != nil {
		deps.Redis = redisClient
		deps.RateStore = redisClient
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":    cfg.App.Env,
		"addr":   addr,
		"driver": cfg.DB.Driver,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Scheduler.Enabled {
		scheduler.Start(ctx)
	} else {
		logg.Info(ctx, "lifecycle scheduler disabled in api process")
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
	}

	logg.Info(ctx, "api server shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "http shutdown incomplete", err)
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logg.Error(ctx, "scheduler stop incomplete", err)
	}
	if err := engine.Wait(shutdownCtx); err != nil {
		logg.Warn(ctx, "pending sale notifications abandoned")
	}
	if err := catalogSvc.Wait(shutdownCtx); err != nil {
		logg.Warn(ctx, "pending upload notifications abandoned")
	}
	if err := store.Close(shutdownCtx); err != nil {
		logg.Error(ctx, "ledger close incomplete", err)
	}
}
