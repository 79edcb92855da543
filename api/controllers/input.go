package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/credstock/api/middleware"
	"github.com/angelmondragon/credstock/api/responses"
	"github.com/angelmondragon/credstock/api/validators"
	"github.com/angelmondragon/credstock/internal/fulfillment"
	pkgerrors "github.com/angelmondragon/credstock/pkg/errors"
	"github.com/angelmondragon/credstock/pkg/logger"
	"github.com/angelmondragon/credstock/pkg/types"
)

// StockCounter serves cached available counts.
type StockCounter interface {
	Available(ctx context.Context, bucket *int64) (int64, error)
}

// Seller allocates stock for an order.
type Seller interface {
	Allocate(ctx context.Context, req fulfillment.Request) ([]fulfillment.Item, error)
}

// InputCount returns {"sum": n}, the available count visible to the calling key.
func InputCount(counter StockCounter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if counter == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock counter unavailable"))
			return
		}

		requested, err := validators.ParseQueryID(r, "inventory_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		n, err := counter.Available(r.Context(), resolveBucket(r.Context(), requested))
		if err != nil {
			if pkgerrors.As(err) == nil {
				err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count available products")
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteRaw(w, http.StatusOK, types.StockSum{Sum: n})
	}
}

// InputSell sells quantity products for order_id and returns [{"product": ...}] in allocation order.
func InputSell(seller Seller, maxQuantity int, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if seller == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment unavailable"))
			return
		}

		query, err := validators.ParseSellQuery(r, maxQuantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, query.OrderID)
		}

		items, err := seller.Allocate(ctx, fulfillment.Request{
			Quantity:    query.Quantity,
			OrderID:     query.OrderID,
			InventoryID: resolveBucket(ctx, query.InventoryID),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteRaw(w, http.StatusOK, items)
	}
}

func resolveBucket(ctx context.Context, requested *int64) *int64 {
	if p, ok := middleware.PrincipalFromContext(ctx); ok {
		return p.Bucket(requested)
	}
	return requested
}
