package notify

import "context"

// Kind names a notification template.
type Kind string

const (
	KindStockAlert      Kind = "stock_alert"
	KindProductsAdded   Kind = "products_added"
	KindProductsSold    Kind = "products_sold"
	KindProductsMoved   Kind = "products_moved"
	KindProductsDeleted Kind = "products_deleted"
	KindListDeleted     Kind = "list_deleted"
	KindTest            Kind = "test"
)

const errNotConfigured = "not configured"

// Payload carries the values a template may render. Unused fields are ignored.
type Payload struct {
	Available   int64
	Threshold   int64
	AlertKind   string
	Quantity    int64
	OrderID     string
	Source      string
	Destination string
	Reason      string
	NotFound    int64
}

// Result reports the delivery outcome. It is informational only.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Notifier delivers operator notifications. Implementations never panic or block past ctx.
type Notifier interface {
	Send(ctx context.Context, kind Kind, payload Payload) Result
}

// Noop discards every notification.
type Noop struct{}

func (Noop) Send(context.Context, Kind, Payload) Result {
	return Result{Error: errNotConfigured}
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, kind Kind, payload Payload) Result

func (f Func) Send(ctx context.Context, kind Kind, payload Payload) Result {
	return f(ctx, kind, payload)
}
