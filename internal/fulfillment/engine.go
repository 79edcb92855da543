package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/credstock/internal/ledger"
	pkgerrors "github.com/angelmondragon/credstock/pkg/errors"
	"github.com/angelmondragon/credstock/pkg/logger"
	"github.com/angelmondragon/credstock/pkg/metrics"
)

const (
	defaultMaxQuantity         = 100
	defaultNotificationTimeout = 10 * time.Second
)

// Store is the ledger surface the engine needs.
type Store interface {
	BeginWrite(ctx context.Context) (*ledger.WriteTx, error)
	Now() time.Time
}

// Invalidator drops cached available counts.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// SaleNotifier is told about every committed sale.
type SaleNotifier interface {
	SaleCompleted(ctx context.Context, sale Sale)
}

// SaleNotifierFunc adapts a function to SaleNotifier.
type SaleNotifierFunc func(ctx context.Context, sale Sale)

func (f SaleNotifierFunc) SaleCompleted(ctx context.Context, sale Sale) {
	f(ctx, sale)
}

// Request is one sell call.
type Request struct {
	Quantity    int
	OrderID     string
	InventoryID *int64
}

// Item is one allocated product as returned to the buyer.
type Item struct {
	ProductID int64  `json:"-"`
	Content   string `json:"product"`
}

// Sale describes a committed allocation.
type Sale struct {
	OrderID     string
	InventoryID *int64
	Quantity    int
	SoldAt      time.Time
}

// EngineParams configure the engine.
type EngineParams struct {
	Store               Store
	Cache               Invalidator
	Notifier            SaleNotifier
	Logger              *logger.Logger
	Metrics             *metrics.StockMetrics
	MaxQuantity         int
	NotificationTimeout time.Duration
}

// Engine allocates stock atomically.
type Engine struct {
	params  EngineParams
	pending sync.WaitGroup
}

func NewEngine(params EngineParams) (*Engine, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("ledger store required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.MaxQuantity <= 0 {
		params.MaxQuantity = defaultMaxQuantity
	}
	if params.NotificationTimeout <= 0 {
		params.NotificationTimeout = defaultNotificationTimeout
	}
	return &Engine{params: params}, nil
}

// Allocate sells exactly req.Quantity of the lowest-id unsold products or nothing at all.
func (e *Engine) Allocate(ctx context.Context, req Request) (items []Item, err error) {
	started := time.Now()
	defer func() {
		e.params.Metrics.ObserveAllocation(outcomeOf(err), len(items), time.Since(started))
	}()

	orderID := strings.TrimSpace(req.OrderID)
	if req.Quantity < 1 || req.Quantity > e.params.MaxQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 1 and %d", e.params.MaxQuantity))
	}
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	ctx = e.params.Logger.WithOrderID(ctx, orderID)
	if req.InventoryID != nil {
		ctx = e.params.Logger.WithInventoryID(ctx, *req.InventoryID)
	}

	tx, err := e.params.Store.BeginWrite(ctx)
	if err != nil {
		return nil, e.storageError(ctx, err, "begin allocation")
	}
	defer func() { _ = tx.Rollback() }()

	products, err := tx.SelectAvailable(ctx, req.InventoryID, req.Quantity)
	if err != nil {
		return nil, e.storageError(ctx, err, "select available products")
	}
	if len(products) == 0 {
		e.params.Logger.Info(ctx, "allocation rejected, out of stock")
		return nil, pkgerrors.New(pkgerrors.CodeOutOfStock, "No products available")
	}
	if len(products) < req.Quantity {
		e.params.Logger.Info(e.params.Logger.WithField(ctx, "available", len(products)), "allocation rejected, insufficient stock")
		return nil, pkgerrors.New(
			pkgerrors.CodeInsufficientStock,
			fmt.Sprintf("Insufficient stock. Only %d products available", len(products)),
		).WithDetails(map[string]int{"available": len(products)})
	}

	soldAt := e.params.Store.Now()
	ids := make([]int64, 0, len(products))
	items = make([]Item, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
		items = append(items, Item{ProductID: p.ID, Content: p.Content})
	}
	if err := tx.MarkSold(ctx, ids, orderID, soldAt); err != nil {
		return nil, e.storageError(ctx, err, "mark products sold")
	}
	if err := tx.Commit(); err != nil {
		return nil, e.storageError(ctx, err, "commit allocation")
	}

	e.params.Logger.Info(e.params.Logger.WithField(ctx, "quantity", len(items)), "allocation committed")
	e.afterCommit(ctx, Sale{OrderID: orderID, InventoryID: req.InventoryID, Quantity: len(items), SoldAt: soldAt})
	return items, nil
}

// afterCommit invalidates caches and notifies in the background; nothing here can undo the sale.
func (e *Engine) afterCommit(ctx context.Context, sale Sale) {
	if e.params.Cache != nil {
		e.params.Cache.Invalidate(ctx)
	}
	if e.params.Notifier == nil {
		return
	}

	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.params.NotificationTimeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				e.params.Logger.Warn(nctx, fmt.Sprintf("sale notifier panicked: %v", r))
			}
		}()
		e.params.Notifier.SaleCompleted(nctx, sale)
	}()
}

// Wait blocks until background sale notifications finish, bounded by ctx.
func (e *Engine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) storageError(ctx context.Context, err error, msg string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		e.params.Logger.Warn(e.params.Logger.WithField(ctx, "error", err.Error()), msg+" aborted")
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocation aborted")
	}
	if errors.Is(err, ledger.ErrStoreClosed) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "service shutting down")
	}
	e.params.Logger.Error(ctx, msg, err)
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func outcomeOf(err error) string {
	if err == nil {
		return metrics.OutcomeSuccess
	}
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeOutOfStock:
		return metrics.OutcomeOutOfStock
	case pkgerrors.CodeInsufficientStock:
		return metrics.OutcomeInsufficient
	case pkgerrors.CodeValidation:
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}
