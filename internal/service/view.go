package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/tableside/api/internal/database"
)

// OrderView is a fully hydrated order: items, modifiers, session and table.
// It is both the API response body and the notification payload.
type OrderView struct {
	ID            uuid.UUID       `json:"id"`
	SessionID     uuid.UUID       `json:"session_id"`
	Status        string          `json:"status"`
	TotalAmount   string          `json:"total_amount"`
	BillRequested bool            `json:"bill_requested"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	CompletedAt   *time.Time      `json:"completed_at"`
	Session       SessionView     `json:"session"`
	Table         TableView       `json:"table"`
	Items         []OrderItemView `json:"items"`
}

type OrderItemView struct {
	ID         uuid.UUID               `json:"id"`
	MenuItemID uuid.UUID               `json:"menu_item_id"`
	Quantity   int32                   `json:"quantity"`
	UnitPrice  string                  `json:"unit_price"`
	LineTotal  string                  `json:"line_total"`
	Notes      *string                 `json:"notes"`
	Modifiers  []OrderItemModifierView `json:"modifiers"`
}

type OrderItemModifierView struct {
	ID               uuid.UUID `json:"id"`
	ModifierGroupID  uuid.UUID `json:"modifier_group_id"`
	ModifierOptionID uuid.UUID `json:"modifier_option_id"`
	PriceDelta       string    `json:"price_delta"`
}

type SessionView struct {
	ID       uuid.UUID  `json:"id"`
	TableID  uuid.UUID  `json:"table_id"`
	Status   string     `json:"status"`
	OpenedAt time.Time  `json:"opened_at"`
	EndedAt  *time.Time `json:"ended_at"`
}

type TableView struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	Capacity        int32      `json:"capacity"`
	AssignedStaffID *uuid.UUID `json:"assigned_staff_id"`
}

type PaymentView struct {
	ID             uuid.UUID  `json:"id"`
	OrderID        uuid.UUID  `json:"order_id"`
	Amount         string     `json:"amount"`
	Method         string     `json:"method"`
	Status         string     `json:"status"`
	ExternalRef    *string    `json:"external_ref"`
	AmountReceived *string    `json:"amount_received"`
	ChangeAmount   *string    `json:"change_amount"`
	DiscountAmount *string    `json:"discount_amount"`
	TipAmount      *string    `json:"tip_amount"`
	PaidAt         *time.Time `json:"paid_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// hydrationStore is the read side needed to build an OrderView.
type hydrationStore interface {
	GetSession(ctx context.Context, id uuid.UUID) (database.TableSession, error)
	GetTable(ctx context.Context, id uuid.UUID) (database.DiningTable, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	ListOrderItemModifiersByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItemModifier, error)
}

func hydrateOrder(ctx context.Context, store hydrationStore, o database.Order) (*OrderView, error) {
	session, err := store.GetSession(ctx, o.SessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	table, err := store.GetTable(ctx, session.TableID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTableNotFound
		}
		return nil, fmt.Errorf("get table: %w", err)
	}
	items, err := store.ListOrderItemsByOrder(ctx, o.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	mods, err := store.ListOrderItemModifiersByOrder(ctx, o.ID)
	if err != nil {
		return nil, fmt.Errorf("list order item modifiers: %w", err)
	}

	byItem := make(map[uuid.UUID][]database.OrderItemModifier, len(items))
	for _, m := range mods {
		byItem[m.OrderItemID] = append(byItem[m.OrderItemID], m)
	}

	view := &OrderView{
		ID:            o.ID,
		SessionID:     o.SessionID,
		Status:        o.Status,
		TotalAmount:   numericToDecimal(o.TotalAmount).StringFixed(2),
		BillRequested: o.BillRequested,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		CompletedAt:   timestamptzPtr(o.CompletedAt),
		Session:       NewSessionView(session),
		Table:         newTableView(table),
		Items:         make([]OrderItemView, len(items)),
	}
	for i, item := range items {
		view.Items[i] = newOrderItemView(item, byItem[item.ID])
	}
	return view, nil
}

func newOrderItemView(item database.OrderItem, mods []database.OrderItemModifier) OrderItemView {
	unit := numericToDecimal(item.UnitPrice)
	resp := OrderItemView{
		ID:         item.ID,
		MenuItemID: item.MenuItemID,
		Quantity:   item.Quantity,
		UnitPrice:  unit.StringFixed(2),
		Modifiers:  make([]OrderItemModifierView, len(mods)),
	}
	if item.Notes.Valid {
		resp.Notes = &item.Notes.String
	}
	for j, m := range mods {
		delta := numericToDecimal(m.PriceDelta)
		unit = unit.Add(delta)
		resp.Modifiers[j] = OrderItemModifierView{
			ID:               m.ID,
			ModifierGroupID:  m.ModifierGroupID,
			ModifierOptionID: m.ModifierOptionID,
			PriceDelta:       delta.StringFixed(2),
		}
	}
	resp.LineTotal = unit.Mul(decimal.NewFromInt32(item.Quantity)).StringFixed(2)
	return resp
}

// NewSessionView converts a database.TableSession for API responses.
func NewSessionView(s database.TableSession) SessionView {
	return SessionView{
		ID:       s.ID,
		TableID:  s.TableID,
		Status:   s.Status,
		OpenedAt: s.OpenedAt,
		EndedAt:  timestamptzPtr(s.EndedAt),
	}
}

func newTableView(t database.DiningTable) TableView {
	resp := TableView{
		ID:       t.ID,
		Name:     t.Name,
		Capacity: t.Capacity,
	}
	if t.AssignedStaffID.Valid {
		id := uuid.UUID(t.AssignedStaffID.Bytes)
		resp.AssignedStaffID = &id
	}
	return resp
}

func newPaymentView(p database.Payment) PaymentView {
	resp := PaymentView{
		ID:             p.ID,
		OrderID:        p.OrderID,
		Amount:         numericToDecimal(p.Amount).StringFixed(2),
		Method:         p.Method,
		Status:         p.Status,
		AmountReceived: numericPtr(p.AmountReceived),
		ChangeAmount:   numericPtr(p.ChangeAmount),
		DiscountAmount: numericPtr(p.DiscountAmount),
		TipAmount:      numericPtr(p.TipAmount),
		PaidAt:         timestamptzPtr(p.PaidAt),
		CreatedAt:      p.CreatedAt,
	}
	if p.ExternalRef.Valid {
		resp.ExternalRef = &p.ExternalRef.String
	}
	return resp
}

func timestamptzPtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func numericPtr(n pgtype.Numeric) *string {
	if !n.Valid {
		return nil
	}
	s := numericToDecimal(n).StringFixed(2)
	return &s
}
