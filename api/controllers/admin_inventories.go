package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/credstock/api/responses"
	"github.com/angelmondragon/credstock/api/validators"
	"github.com/angelmondragon/credstock/internal/catalog"
	"github.com/angelmondragon/credstock/internal/ledger"
	"github.com/angelmondragon/credstock/pkg/db/models"
	"github.com/angelmondragon/credstock/pkg/logger"
	"github.com/angelmondragon/credstock/pkg/types"
)

// Catalog is the operator surface over inventories and products.
type Catalog interface {
	ListInventories(ctx context.Context) ([]models.Inventory, error)
	CreateInventory(ctx context.Context, input catalog.CreateInventoryInput) (*models.Inventory, error)
	UpdateInventory(ctx context.Context, id int64, input catalog.UpdateInventoryInput) (*models.Inventory, error)
	DeleteInventory(ctx context.Context, id int64) error
	AddProducts(ctx context.Context, input catalog.AddProductsInput) (*catalog.AddProductsResult, error)
	ListProducts(ctx context.Context, filter ledger.ProductFilter) (*ledger.ProductPage, error)
	DeleteProduct(ctx context.Context, id int64) error
	DeleteProducts(ctx context.Context, ids []int64) (int64, error)
	PurgeSold(ctx context.Context, inventoryID int64) (int64, error)
	DeleteByList(ctx context.Context, inventoryID int64, input catalog.DeleteByListInput) (*ledger.ListDeleteResult, error)
	Stats(ctx context.Context) (*ledger.Stats, error)
}

func AdminListInventories(svc Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := svc.ListInventories(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

func AdminCreateInventory(svc Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload catalog.CreateInventoryInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		inv, err := svc.CreateInventory(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, inv)
	}
}

func AdminUpdateInventory(svc Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "inventoryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload catalog.UpdateInventoryInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		inv, err := svc.UpdateInventory(r.Context(), id, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, inv)
	}
}

func AdminDeleteInventory(svc Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "inventoryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteInventory(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, types.Deleted{Deleted: true, ID: id})
	}
}

// AdminPurgeSold drops the sold history of one inventory.
func AdminPurgeSold(svc Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "inventoryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		deleted, err := svc.PurgeSold(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, types.DeletedCount{Deleted: deleted})
	}
}

// AdminDeleteByList removes the listed accounts from one inventory.
func AdminDeleteByList(svc Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "inventoryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload catalog.DeleteByListInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithInventoryID(ctx, id)
		}
		result, err := svc.DeleteByList(ctx, id, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AdminStats(svc Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}
