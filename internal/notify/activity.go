package notify

import (
	"context"

	"github.com/angelmondragon/credstock/internal/settings"
)

// Activity sends per-event notices. Upload and sale notices need the operator opt-in.
type Activity struct {
	notifier Notifier
	settings settings.Provider
}

func NewActivity(notifier Notifier, provider settings.Provider) *Activity {
	return &Activity{notifier: notifier, settings: provider}
}

// ProductsAdded announces an upload of quantity products into inventory.
func (a *Activity) ProductsAdded(ctx context.Context, quantity int64, inventory string) Result {
	snap, err := a.settings.Get(ctx)
	if err != nil {
		return Result{Error: err.Error()}
	}
	if !snap.NotifyOnAdd || !snap.TelegramEnabled {
		return Result{Error: "disabled"}
	}
	return a.notifier.Send(ctx, KindProductsAdded, Payload{Quantity: quantity, Destination: inventory})
}

// ProductsSold announces a completed sale.
func (a *Activity) ProductsSold(ctx context.Context, quantity int64, orderID string) Result {
	snap, err := a.settings.Get(ctx)
	if err != nil {
		return Result{Error: err.Error()}
	}
	if !snap.NotifyOnSold || !snap.TelegramEnabled {
		return Result{Error: "disabled"}
	}
	return a.notifier.Send(ctx, KindProductsSold, Payload{Quantity: quantity, OrderID: orderID})
}

// ListDeleted summarizes a delete-by-list run. It only needs Telegram enabled.
func (a *Activity) ListDeleted(ctx context.Context, deleted, notFound int64, inventory string) Result {
	snap, err := a.settings.Get(ctx)
	if err != nil {
		return Result{Error: err.Error()}
	}
	if !snap.TelegramEnabled {
		return Result{Error: "disabled"}
	}
	return a.notifier.Send(ctx, KindListDeleted, Payload{Quantity: deleted, NotFound: notFound, Source: inventory})
}
