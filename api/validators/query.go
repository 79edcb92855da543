package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/credstock/pkg/errors"
)

func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParseQueryID reads an optional positive id. A missing value yields nil.
func ParseQueryID(r *http.Request, key string) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be a positive id").WithDetails(map[string]any{"field": key})
	}
	return &id, nil
}

// ParseQueryBool reads an optional boolean flag.
func ParseQueryBool(r *http.Request, key string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be a boolean").WithDetails(map[string]any{"field": key})
	}
	return &v, nil
}

// SellQuery is the validated input of a sale request.
type SellQuery struct {
	OrderID     string `query:"order_id" validate:"required,orderid"`
	Quantity    int    `query:"quantity" validate:"required,gte=1"`
	InventoryID *int64 `query:"inventory_id" validate:"omitempty,gte=1"`
}

// ParseSellQuery reads and validates order_id, quantity and inventory_id.
// maxQuantity bounds the quantity when positive.
func ParseSellQuery(r *http.Request, maxQuantity int) (SellQuery, error) {
	q := r.URL.Query()
	out := SellQuery{OrderID: strings.TrimSpace(q.Get("order_id"))}

	if raw := strings.TrimSpace(q.Get("quantity")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return SellQuery{}, pkgerrors.New(pkgerrors.CodeValidation, "Invalid quantity").WithDetails(map[string]string{"quantity": "must be numeric"})
		}
		out.Quantity = n
	}
	if raw := strings.TrimSpace(q.Get("inventory_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return SellQuery{}, pkgerrors.New(pkgerrors.CodeValidation, "Invalid inventory_id").WithDetails(map[string]string{"inventory_id": "must be numeric"})
		}
		out.InventoryID = &id
	}

	if err := validate.Struct(out); err != nil {
		return SellQuery{}, formatValidationErrors(err)
	}
	if maxQuantity > 0 && out.Quantity > maxQuantity {
		return SellQuery{}, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(map[string]string{
			"quantity": "must be at most " + strconv.Itoa(maxQuantity),
		})
	}
	return out, nil
}
