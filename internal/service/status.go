package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tableside/api/internal/database"
	"github.com/tableside/api/internal/enum"
)

// allowedTransitions is the order status edge table. COMPLETED is reached
// here only from SERVED; the payment reconciler completes orders directly.
var allowedTransitions = map[string][]string{
	enum.OrderStatusReceived:  {enum.OrderStatusPreparing, enum.OrderStatusRejected},
	enum.OrderStatusPreparing: {enum.OrderStatusReady, enum.OrderStatusCancelled},
	enum.OrderStatusReady:     {enum.OrderStatusServed},
	enum.OrderStatusServed:    {enum.OrderStatusCompleted},
}

var validOrderStatuses = map[string]bool{
	enum.OrderStatusReceived:  true,
	enum.OrderStatusPreparing: true,
	enum.OrderStatusReady:     true,
	enum.OrderStatusServed:    true,
	enum.OrderStatusCompleted: true,
	enum.OrderStatusRejected:  true,
	enum.OrderStatusCancelled: true,
}

// IsValidOrderStatus reports whether s is a known order status.
func IsValidOrderStatus(s string) bool {
	return validOrderStatuses[s]
}

func isTerminal(status string) bool {
	switch status {
	case enum.OrderStatusCompleted, enum.OrderStatusRejected, enum.OrderStatusCancelled:
		return true
	}
	return false
}

func releasesSession(status string) bool {
	return status == enum.OrderStatusRejected || status == enum.OrderStatusCancelled
}

// ValidateTransition checks that from -> to is a legal edge.
func ValidateTransition(from, to string) error {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return transitionError(from, to)
}

// Transition moves an order along one legal edge and publishes
// order_status_updated.
func (s *OrderService) Transition(ctx context.Context, orderID uuid.UUID, target string) (*OrderView, error) {
	if !IsValidOrderStatus(target) {
		return nil, ErrInvalidStatus
	}
	return s.transition(ctx, orderID, target, nil)
}

// MarkServed is the waiter's READY -> SERVED edge.
func (s *OrderService) MarkServed(ctx context.Context, orderID uuid.UUID) (*OrderView, error) {
	return s.transition(ctx, orderID, enum.OrderStatusServed, func(current string) error {
		if current != enum.OrderStatusReady {
			return transitionError(current, enum.OrderStatusServed)
		}
		return nil
	})
}

func (s *OrderService) transition(ctx context.Context, orderID uuid.UUID, target string, precheck func(current string) error) (*OrderView, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	current, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if precheck != nil {
		if err := precheck(current.Status); err != nil {
			return nil, err
		}
	}
	if err := ValidateTransition(current.Status, target); err != nil {
		return nil, err
	}

	// Compare-and-set on the status we validated against.
	updated, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:         orderID,
		Status:     target,
		FromStatus: current.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transitionError(current.Status, target)
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}

	// A rejected or cancelled order has nothing left to pay, so the table is
	// released with it. The next scan opens a fresh session.
	if releasesSession(target) {
		if _, err := closeSession(ctx, store, updated.SessionID); err != nil && !errors.Is(err, ErrSessionClosed) {
			return nil, err
		}
	}

	view, err := hydrateOrder(ctx, store, updated)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	publishOrder(ctx, s.notifier, enum.EventOrderStatusUpdated, view)
	return view, nil
}

// RequestBill flags the order for the waiter without touching its status.
func (s *OrderService) RequestBill(ctx context.Context, orderID uuid.UUID) (*OrderView, error) {
	return s.requestBill(ctx, func(store OrderStore) (database.Order, error) {
		order, err := store.GetOrderForUpdate(ctx, orderID)
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return order, err
	})
}

// RequestBillForSession is RequestBill addressed by the guest's session.
func (s *OrderService) RequestBillForSession(ctx context.Context, sessionID uuid.UUID) (*OrderView, error) {
	return s.requestBill(ctx, func(store OrderStore) (database.Order, error) {
		order, err := store.GetOrderBySessionForUpdate(ctx, sessionID)
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return order, err
	})
}

func (s *OrderService) requestBill(ctx context.Context, load func(OrderStore) (database.Order, error)) (*OrderView, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := load(store)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if isTerminal(order.Status) {
		return nil, ErrOrderTerminal
	}

	order, err = store.SetBillRequested(ctx, order.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderTerminal
		}
		return nil, fmt.Errorf("set bill requested: %w", err)
	}

	view, err := hydrateOrder(ctx, store, order)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	publishOrder(ctx, s.notifier, enum.EventBillRequested, view)
	return view, nil
}
