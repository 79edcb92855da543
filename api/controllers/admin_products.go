package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/credstock/api/responses"
	"github.com/angelmondragon/credstock/api/validators"
	"github.com/angelmondragon/credstock/internal/catalog"
	"github.com/angelmondragon/credstock/internal/ledger"
	"github.com/angelmondragon/credstock/pkg/db/models"
	pkgerrors "github.com/angelmondragon/credstock/pkg/errors"
	"github.com/angelmondragon/credstock/pkg/logger"
	"github.com/angelmondragon/credstock/pkg/pagination"
	"github.com/angelmondragon/credstock/pkg/types"
)

// AdminListProducts pages products filtered by inventory_id, sold and order_id.
func AdminListProducts(svc Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inventoryID, err := validators.ParseQueryID(r, "inventory_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sold, err := validators.ParseQueryBool(r, "sold")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListProducts(r.Context(), ledger.ProductFilter{
			InventoryID: inventoryID,
			Sold:        sold,
			OrderID:     strings.TrimSpace(r.URL.Query().Get("order_id")),
			Page: pagination.Params{
				Limit:  limit,
				Cursor: r.URL.Query().Get("cursor"),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

type addProductsRequest struct {
	InventoryID int64    `json:"inventory_id" validate:"omitempty,gt=0"`
	Products    []string `json:"products"`
	Text        string   `json:"text"`
}

// AdminAddProducts stores one product per line. Lines come from products, text, or both.
func AdminAddProducts(svc Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload addProductsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lines := payload.Products
		if payload.Text != "" {
			lines = append(lines, strings.Split(strings.ReplaceAll(payload.Text, "\r\n", "\n"), "\n")...)
		}
		if len(lines) == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "products or text is required"))
			return
		}

		inventoryID := payload.InventoryID
		if inventoryID == 0 {
			inventoryID = models.DefaultInventoryID
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithInventoryID(ctx, inventoryID)
		}

		result, err := svc.AddProducts(ctx, catalog.AddProductsInput{InventoryID: inventoryID, Products: lines})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func AdminDeleteProduct(svc Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteProduct(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, types.Deleted{Deleted: true, ID: id})
	}
}

type bulkDeleteRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
}

func AdminBulkDeleteProducts(svc Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload bulkDeleteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		deleted, err := svc.DeleteProducts(r.Context(), payload.IDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, types.DeletedCount{Deleted: deleted})
	}
}
