package lifecycle

import (
	"github.com/angelmondragon/credstock/internal/notify"
	"github.com/angelmondragon/credstock/internal/settings"
	"github.com/angelmondragon/credstock/pkg/config"
	"github.com/angelmondragon/credstock/pkg/logger"
	"github.com/angelmondragon/credstock/pkg/metrics"
)

// StandardParams wire the inventory and stock-check jobs into one scheduler.
type StandardParams struct {
	Logger       *logger.Logger
	Store        AgingStore
	Cache        Invalidator
	Notifier     notify.Notifier
	Evaluator    Evaluator
	Settings     settings.Provider
	Lock         Lock
	StockMetrics *metrics.StockMetrics
	JobMetrics   *metrics.JobMetrics
	Config       config.LifecycleConfig
}

// NewStandardScheduler registers inventory-lifecycle then stock-check.
// The interval is read from settings on every Start, falling back to Config.Interval.
func NewStandardScheduler(p StandardParams) (*Scheduler, error) {
	inventoryJob, err := NewInventoryJob(InventoryJobParams{
		Logger:   p.Logger,
		Store:    p.Store,
		Cache:    p.Cache,
		Notifier: p.Notifier,
		Metrics:  p.StockMetrics,
		Config:   p.Config,
	})
	if err != nil {
		return nil, err
	}
	stockJob, err := NewStockCheckJob(p.Evaluator)
	if err != nil {
		return nil, err
	}

	registry := NewRegistry(inventoryJob, stockJob)

	var interval IntervalFunc
	if p.Settings != nil {
		interval = SettingsInterval(p.Settings)
	}

	return NewScheduler(SchedulerParams{
		Logger:          p.Logger,
		Registry:        registry,
		Lock:            p.Lock,
		Metrics:         p.JobMetrics,
		Interval:        interval,
		DefaultInterval: p.Config.Interval,
	})
}
