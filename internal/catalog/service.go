package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/angelmondragon/credstock/internal/ledger"
	"github.com/angelmondragon/credstock/internal/notify"
	"github.com/angelmondragon/credstock/pkg/db/models"
	pkgerrors "github.com/angelmondragon/credstock/pkg/errors"
	"github.com/angelmondragon/credstock/pkg/logger"
	"github.com/angelmondragon/credstock/pkg/pagination"
)

const (
	MaxUploadProducts = 200
	MaxProductLength  = 2000
	MaxInventoryName  = 100
	MaxBulkDeleteIDs  = 1000
	MaxDeleteList     = 1000
	noticeTimeout     = 10 * time.Second
)

// Invalidator drops cached available counts.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// ActivityNotifier announces operator stock changes.
type ActivityNotifier interface {
	ProductsAdded(ctx context.Context, quantity int64, inventory string) notify.Result
	ListDeleted(ctx context.Context, deleted, notFound int64, inventory string) notify.Result
}

type CreateInventoryInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

type UpdateInventoryInput struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	Active      *bool   `json:"active"`
}

type DeleteByListInput struct {
	List []string `json:"list" validate:"required,min=1"`
}

type AddProductsInput struct {
	InventoryID int64    `json:"inventory_id" validate:"omitempty,gt=0"`
	Products    []string `json:"products" validate:"required,min=1"`
}

// AddProductsResult reports how many lines were stored and why others were not.
type AddProductsResult struct {
	Inserted int64    `json:"inserted"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// ServiceParams configure the catalog service.
type ServiceParams struct {
	Store    *ledger.Store
	Cache    Invalidator
	Notifier ActivityNotifier
	Logger   *logger.Logger
}

// Service exposes operator operations over inventories and products.
type Service struct {
	store    *ledger.Store
	cache    Invalidator
	notifier ActivityNotifier
	logg     *logger.Logger
	pending  sync.WaitGroup
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("ledger store required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Service{
		store:    params.Store,
		cache:    params.Cache,
		notifier: params.Notifier,
		logg:     params.Logger,
	}, nil
}

func (s *Service) ListInventories(ctx context.Context) ([]models.Inventory, error) {
	rows, err := s.store.ListInventories(ctx)
	if err != nil {
		return nil, s.mapError(ctx, err, "list inventories")
	}
	return rows, nil
}

func (s *Service) CreateInventory(ctx context.Context, input CreateInventoryInput) (*models.Inventory, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" || utf8.RuneCountInString(name) > MaxInventoryName {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("name must be 1-%d characters", MaxInventoryName))
	}
	inv, err := s.store.CreateInventory(ctx, name, input.Description)
	if err != nil {
		return nil, s.mapError(ctx, err, "create inventory")
	}
	return inv, nil
}

func (s *Service) UpdateInventory(ctx context.Context, id int64, input UpdateInventoryInput) (*models.Inventory, error) {
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be blank")
	}
	inv, err := s.store.UpdateInventory(ctx, id, ledger.UpdateInventoryInput{
		Name:        input.Name,
		Description: input.Description,
		Active:      input.Active,
	})
	if err != nil {
		return nil, s.mapError(ctx, err, "update inventory")
	}
	return inv, nil
}

func (s *Service) DeleteInventory(ctx context.Context, id int64) error {
	if err := s.store.DeleteInventory(ctx, id); err != nil {
		return s.mapError(ctx, err, "delete inventory")
	}
	s.invalidate(ctx)
	return nil
}

// AddProducts stores one product per non-blank line. Lines longer than MaxProductLength are skipped.
func (s *Service) AddProducts(ctx context.Context, input AddProductsInput) (*AddProductsResult, error) {
	inventoryID := input.InventoryID
	if inventoryID == 0 {
		inventoryID = models.DefaultInventoryID
	}

	var (
		valid  []string
		result AddProductsResult
	)
	for i, line := range input.Products {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			result.Skipped++
		case utf8.RuneCountInString(line) > MaxProductLength:
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Line %d: product exceeds %d characters", i+1, MaxProductLength))
		default:
			valid = append(valid, line)
		}
	}
	if len(valid) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "No valid products to insert").WithDetails(result.Errors)
	}
	if len(valid) > MaxUploadProducts {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("Too many products. Maximum %d allowed, got %d", MaxUploadProducts, len(valid)))
	}

	ctx = s.logg.WithInventoryID(ctx, inventoryID)
	inserted, err := s.store.InsertProducts(ctx, inventoryID, valid)
	if err != nil {
		return nil, s.mapError(ctx, err, "insert products")
	}
	result.Inserted = inserted
	s.invalidate(ctx)
	s.logg.Info(s.logg.WithField(ctx, "inserted", inserted), "products added")
	s.announceUpload(ctx, inventoryID, inserted)
	return &result, nil
}

func (s *Service) ListProducts(ctx context.Context, filter ledger.ProductFilter) (*ledger.ProductPage, error) {
	if _, err := pagination.ParseCursor(filter.Page.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	page, err := s.store.ListProducts(ctx, filter)
	if err != nil {
		return nil, s.mapError(ctx, err, "list products")
	}
	return page, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	deleted, err := s.store.DeleteProducts(ctx, []int64{id})
	if err != nil {
		return s.mapError(ctx, err, "delete product")
	}
	if deleted == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "Product not found")
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) DeleteProducts(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "ids are required")
	}
	if len(ids) > MaxBulkDeleteIDs {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d ids per request", MaxBulkDeleteIDs))
	}
	deleted, err := s.store.DeleteProducts(ctx, ids)
	if err != nil {
		return 0, s.mapError(ctx, err, "delete products")
	}
	if deleted > 0 {
		s.invalidate(ctx)
	}
	return deleted, nil
}

// DeleteByList removes the listed accounts from one inventory and reports what it could not find.
func (s *Service) DeleteByList(ctx context.Context, inventoryID int64, input DeleteByListInput) (*ledger.ListDeleteResult, error) {
	if len(input.List) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "List is required and must be an array")
	}
	if len(input.List) > MaxDeleteList {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d entries per request", MaxDeleteList))
	}
	inv, err := s.store.GetInventory(ctx, inventoryID)
	if err != nil {
		return nil, s.mapError(ctx, err, "delete by list")
	}

	ctx = s.logg.WithInventoryID(ctx, inventoryID)
	res, err := s.store.DeleteByContents(ctx, inventoryID, input.List)
	if err != nil {
		return nil, s.mapError(ctx, err, "delete by list")
	}
	if res.Deleted > 0 {
		s.invalidate(ctx)
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"deleted":   res.Deleted,
		"not_found": len(res.NotFound),
	}), "products deleted by list")

	s.sendNotice(ctx, func(nctx context.Context) notify.Result {
		return s.notifier.ListDeleted(nctx, res.Deleted, int64(len(res.NotFound)), inv.Name)
	})
	return res, nil
}

// PurgeSold removes the sold history of one inventory.
func (s *Service) PurgeSold(ctx context.Context, inventoryID int64) (int64, error) {
	if _, err := s.store.GetInventory(ctx, inventoryID); err != nil {
		return 0, s.mapError(ctx, err, "purge sold products")
	}
	deleted, err := s.store.DeleteSoldProducts(ctx, inventoryID)
	if err != nil {
		return 0, s.mapError(ctx, err, "purge sold products")
	}
	return deleted, nil
}

func (s *Service) Stats(ctx context.Context) (*ledger.Stats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, s.mapError(ctx, err, "load stats")
	}
	return stats, nil
}

// Wait blocks until pending activity notices finish, bounded by ctx.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) announceUpload(ctx context.Context, inventoryID, inserted int64) {
	if s.notifier == nil || inserted == 0 {
		return
	}
	name := fmt.Sprintf("#%d", inventoryID)
	if inv, err := s.store.GetInventory(ctx, inventoryID); err == nil {
		name = inv.Name
	}
	s.sendNotice(ctx, func(nctx context.Context) notify.Result {
		return s.notifier.ProductsAdded(nctx, inserted, name)
	})
}

// sendNotice delivers an activity notice in the background. Wait drains it.
func (s *Service) sendNotice(ctx context.Context, send func(context.Context) notify.Result) {
	if s.notifier == nil {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), noticeTimeout)
		defer cancel()
		if res := send(nctx); !res.Success {
			s.logg.Debug(s.logg.WithField(nctx, "notify_error", res.Error), "activity notice not delivered")
		}
	}()
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}

func (s *Service) mapError(ctx context.Context, err error, msg string) error {
	switch {
	case errors.Is(err, ledger.ErrInventoryNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "Inventory not found")
	case errors.Is(err, ledger.ErrProtectedInventory):
		return pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "Cannot delete the default inventory")
	case errors.Is(err, ledger.ErrInventoryNotEmpty):
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "Cannot delete inventory that still holds products")
	case errors.Is(err, ledger.ErrDuplicateInventory):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "Inventory name already exists")
	case errors.Is(err, ledger.ErrStoreClosed):
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "service shutting down")
	}
	s.logg.Error(ctx, msg, err)
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
