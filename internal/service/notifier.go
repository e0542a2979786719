package service

import (
	"context"

	"github.com/google/uuid"
)

// Notifier receives lifecycle events after the triggering transaction has
// committed. Implementations must not block and must not report failures;
// clients can always poll the canonical state instead.
type Notifier interface {
	Publish(ctx context.Context, event string, sessionID uuid.UUID, payload any)
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, string, uuid.UUID, any) {}

// OrderEvent is the payload of new_order, order_status_updated and
// bill_requested.
type OrderEvent struct {
	Order *OrderView `json:"order"`
}

func publishOrder(ctx context.Context, n Notifier, event string, view *OrderView) {
	if n == nil || view == nil {
		return
	}
	n.Publish(ctx, event, view.SessionID, OrderEvent{Order: view})
}
