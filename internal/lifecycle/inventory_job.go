package lifecycle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/angelmondragon/credstock/internal/notify"
	"github.com/angelmondragon/credstock/pkg/config"
	"github.com/angelmondragon/credstock/pkg/db/models"
	"github.com/angelmondragon/credstock/pkg/logger"
	"github.com/angelmondragon/credstock/pkg/metrics"
	"go.uber.org/multierr"
)

const InventoryJobName = "inventory-lifecycle"

// AgingStore is the ledger surface used by the inventory job.
type AgingStore interface {
	Migrate(ctx context.Context, src, dst int64, olderThan time.Time) (int64, error)
	Expire(ctx context.Context, bucket int64, olderThan time.Time) (int64, error)
	GetInventory(ctx context.Context, id int64) (*models.Inventory, error)
	Now() time.Time
}

// Invalidator drops cached available counts.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

type InventoryJobParams struct {
	Logger   *logger.Logger
	Store    AgingStore
	Cache    Invalidator
	Notifier notify.Notifier
	Metrics  *metrics.StockMetrics
	Config   config.LifecycleConfig
}

func NewInventoryJob(params InventoryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("ledger store required")
	}
	cfg := params.Config
	if cfg.SourceInventoryID <= 0 || cfg.DestinationInventoryID <= 0 || cfg.SourceInventoryID == cfg.DestinationInventoryID {
		return nil, fmt.Errorf("invalid lifecycle buckets %d -> %d", cfg.SourceInventoryID, cfg.DestinationInventoryID)
	}
	if cfg.MigrationAge <= 0 || cfg.ExpiryAge <= 0 {
		return nil, fmt.Errorf("lifecycle ages must be positive")
	}
	notifier := params.Notifier
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &inventoryJob{
		logg:     params.Logger,
		store:    params.Store,
		cache:    params.Cache,
		notifier: notifier,
		metrics:  params.Metrics,
		cfg:      cfg,
	}, nil
}

type inventoryJob struct {
	logg     *logger.Logger
	store    AgingStore
	cache    Invalidator
	notifier notify.Notifier
	metrics  *metrics.StockMetrics
	cfg      config.LifecycleConfig
}

func (j *inventoryJob) Name() string { return InventoryJobName }

// Run migrates aged products out of the source bucket, then expires aged products in the destination.
func (j *inventoryJob) Run(ctx context.Context) error {
	var errs error

	moved, err := j.store.Migrate(ctx, j.cfg.SourceInventoryID, j.cfg.DestinationInventoryID, j.store.Now().Add(-j.cfg.MigrationAge))
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("migrate: %w", err))
	}
	if moved > 0 {
		j.metrics.AddMigrated(moved)
		j.invalidate(ctx)
		res := j.notifier.Send(ctx, notify.KindProductsMoved, notify.Payload{
			Quantity:    moved,
			Source:      j.inventoryName(ctx, j.cfg.SourceInventoryID),
			Destination: j.inventoryName(ctx, j.cfg.DestinationInventoryID),
		})
		j.logStage(ctx, "products migrated", moved, res)
	}

	expired, err := j.store.Expire(ctx, j.cfg.DestinationInventoryID, j.store.Now().Add(-j.cfg.ExpiryAge))
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("expire: %w", err))
	}
	if expired > 0 {
		j.metrics.AddExpired(expired)
		j.invalidate(ctx)
		res := j.notifier.Send(ctx, notify.KindProductsDeleted, notify.Payload{
			Quantity: expired,
			Source:   j.inventoryName(ctx, j.cfg.DestinationInventoryID),
			Reason:   "expired after " + ageLabel(j.cfg.ExpiryAge),
		})
		j.logStage(ctx, "products expired", expired, res)
	}

	return errs
}

func (j *inventoryJob) invalidate(ctx context.Context) {
	if j.cache != nil {
		j.cache.Invalidate(ctx)
	}
}

// inventoryName falls back to the numeric id when the inventory cannot be read.
func (j *inventoryJob) inventoryName(ctx context.Context, id int64) string {
	inv, err := j.store.GetInventory(ctx, id)
	if err != nil || inv == nil {
		return "#" + strconv.FormatInt(id, 10)
	}
	return inv.Name
}

func (j *inventoryJob) logStage(ctx context.Context, msg string, rows int64, res notify.Result) {
	fields := map[string]any{
		"rows":           rows,
		"notified":       res.Success,
		"source_id":      j.cfg.SourceInventoryID,
		"destination_id": j.cfg.DestinationInventoryID,
	}
	if res.Error != "" {
		fields["notify_error"] = res.Error
	}
	j.logg.Info(j.logg.WithFields(ctx, fields), msg)
}

func ageLabel(age time.Duration) string {
	day := 24 * time.Hour
	if age%day == 0 {
		days := int64(age / day)
		if days == 1 {
			return "1 day"
		}
		return strconv.FormatInt(days, 10) + " days"
	}
	return age.String()
}
