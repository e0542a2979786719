package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tableside/api/internal/database"
	"github.com/tableside/api/internal/enum"
)

const (
	maxOrderCreateRetries = 3
	defaultListLimit      = 50
	maxListLimit          = 200
)

// OrderStore defines the DB methods needed by the order aggregator and the
// status machine. Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	hydrationStore
	GetSessionForShare(ctx context.Context, id uuid.UUID) (database.TableSession, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderBySession(ctx context.Context, sessionID uuid.UUID) (database.Order, error)
	GetOrderBySessionForUpdate(ctx context.Context, sessionID uuid.UUID) (database.Order, error)
	CreateOrder(ctx context.Context, sessionID uuid.UUID) (database.Order, error)
	IncrementOrderTotal(ctx context.Context, arg database.IncrementOrderTotalParams) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	SetBillRequested(ctx context.Context, id uuid.UUID) (database.Order, error)
	CloseSession(ctx context.Context, id uuid.UUID) (database.TableSession, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	CreateOrderItemModifier(ctx context.Context, arg database.CreateOrderItemModifierParams) (database.OrderItemModifier, error)
	CatalogStore
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
type NewOrderStore func(db database.DBTX) OrderStore

// OrderService aggregates cart submissions into the session's single order
// and drives the order status machine.
type OrderService struct {
	pool     TxBeginner
	newStore NewOrderStore
	notifier Notifier
	guard    *PriceGuard
}

// OrderOption configures an OrderService.
type OrderOption func(*OrderService)

// WithPriceGuard makes SubmitCart reject snapshots that diverge from the
// live catalog.
func WithPriceGuard() OrderOption {
	return func(s *OrderService) { s.guard = &PriceGuard{} }
}

// NewOrderService creates a new OrderService.
func NewOrderService(pool TxBeginner, newStore NewOrderStore, notifier Notifier, opts ...OrderOption) *OrderService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	s := &OrderService{pool: pool, newStore: newStore, notifier: notifier}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitCart merges cart lines into the session's order, creating the order
// on first submission. Items, modifiers and the total increment commit
// together; new_order is published after commit.
func (s *OrderService) SubmitCart(ctx context.Context, sessionID uuid.UUID, lines []CartLine) (*OrderView, error) {
	if err := validateCart(lines); err != nil {
		return nil, err
	}

	// Retry loop: two first submissions for one session race on CreateOrder.
	var lastErr error
	for attempt := 0; attempt < maxOrderCreateRetries; attempt++ {
		view, err := s.submitCartTx(ctx, sessionID, lines)
		if err == nil {
			publishOrder(ctx, s.notifier, enum.EventNewOrder, view)
			return view, nil
		}
		if isUniqueViolation(err, constraintOrderSession) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func (s *OrderService) submitCartTx(ctx context.Context, sessionID uuid.UUID, lines []CartLine) (*OrderView, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// --- Session must be OPEN ---
	session, err := store.GetSessionForShare(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.Status != enum.SessionStatusOpen {
		return nil, ErrSessionClosed
	}

	// --- Find or create the session's order ---
	order, err := store.GetOrderBySessionForUpdate(ctx, sessionID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		order, err = store.CreateOrder(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("create order: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("get order: %w", err)
	}
	if isTerminal(order.Status) {
		return nil, ErrOrderTerminal
	}

	if s.guard != nil {
		if err := s.guard.Check(ctx, store, lines); err != nil {
			return nil, err
		}
	}

	// --- Persist items and modifiers with the caller's snapshots ---
	for i, line := range lines {
		item, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:    order.ID,
			MenuItemID: line.MenuItemID,
			Quantity:   line.Quantity,
			UnitPrice:  decimalToNumeric(line.UnitPrice),
			Notes:      pgtype.Text{String: line.Note, Valid: line.Note != ""},
		})
		if err != nil {
			return nil, fmt.Errorf("create order item %d: %w", i, err)
		}
		for _, groupID := range sortedGroupIDs(line.SelectedModifiers) {
			for _, m := range line.SelectedModifiers[groupID] {
				_, err := store.CreateOrderItemModifier(ctx, database.CreateOrderItemModifierParams{
					OrderItemID:      item.ID,
					ModifierGroupID:  groupID,
					ModifierOptionID: m.ModifierOptionID,
					PriceDelta:       decimalToNumeric(m.PriceDelta),
				})
				if err != nil {
					return nil, fmt.Errorf("create order item %d modifier: %w", i, err)
				}
			}
		}
	}

	// --- Increment the running total and pull the order back to RECEIVED ---
	order, err = store.IncrementOrderTotal(ctx, database.IncrementOrderTotalParams{
		ID:    order.ID,
		Delta: decimalToNumeric(CartTotal(lines)),
	})
	if err != nil {
		return nil, fmt.Errorf("increment order total: %w", err)
	}

	view, err := hydrateOrder(ctx, store, order)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return view, nil
}

// GetOrder returns the hydrated order.
func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*OrderView, error) {
	var view *OrderView
	err := readTx(ctx, s.pool, s.newStore, func(store OrderStore) error {
		order, err := store.GetOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("get order: %w", err)
		}
		view, err = hydrateOrder(ctx, store, order)
		return err
	})
	return view, err
}

// GetSessionOrder returns the hydrated order of a session for polling
// clients. ErrOrderNotFound until the first cart submission.
func (s *OrderService) GetSessionOrder(ctx context.Context, sessionID uuid.UUID) (*OrderView, error) {
	var view *OrderView
	err := readTx(ctx, s.pool, s.newStore, func(store OrderStore) error {
		if _, err := store.GetSession(ctx, sessionID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("get session: %w", err)
		}
		order, err := store.GetOrderBySession(ctx, sessionID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("get order: %w", err)
		}
		view, err = hydrateOrder(ctx, store, order)
		return err
	})
	return view, err
}

// ListActiveOrders returns hydrated orders for the staff queue. An empty
// status lists every non-terminal order, oldest first.
func (s *OrderService) ListActiveOrders(ctx context.Context, status string, limit, offset int32) ([]*OrderView, error) {
	filter := pgtype.Text{}
	if status != "" {
		if !IsValidOrderStatus(status) {
			return nil, ErrInvalidStatus
		}
		filter = pgtype.Text{String: status, Valid: true}
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	var views []*OrderView
	err := readTx(ctx, s.pool, s.newStore, func(store OrderStore) error {
		orders, err := store.ListOrders(ctx, database.ListOrdersParams{Status: filter, Limit: limit, Offset: offset})
		if err != nil {
			return fmt.Errorf("list orders: %w", err)
		}
		views = make([]*OrderView, 0, len(orders))
		for _, o := range orders {
			view, err := hydrateOrder(ctx, store, o)
			if err != nil {
				return err
			}
			views = append(views, view)
		}
		return nil
	})
	return views, err
}
