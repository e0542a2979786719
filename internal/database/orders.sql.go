package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, session_id, status, total_amount, bill_requested, created_at, updated_at, completed_at`

func scanOrder(row interface{ Scan(...any) error }) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.Status,
		&i.TotalAmount,
		&i.BillRequested,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.CompletedAt,
	)
	return i, err
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + ` FROM orders
WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const getOrderForUpdate = `-- name: GetOrderForUpdate :one
SELECT ` + orderColumns + ` FROM orders
WHERE id = $1
FOR UPDATE
`

func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, id))
}

const getOrderBySession = `-- name: GetOrderBySession :one
SELECT ` + orderColumns + ` FROM orders
WHERE session_id = $1
`

func (q *Queries) GetOrderBySession(ctx context.Context, sessionID uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderBySession, sessionID))
}

const getOrderBySessionForUpdate = `-- name: GetOrderBySessionForUpdate :one
SELECT ` + orderColumns + ` FROM orders
WHERE session_id = $1
FOR UPDATE
`

func (q *Queries) GetOrderBySessionForUpdate(ctx context.Context, sessionID uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderBySessionForUpdate, sessionID))
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (session_id, status, total_amount)
VALUES ($1, 'RECEIVED', 0)
RETURNING ` + orderColumns + `
`

// CreateOrder fails with 23505 on orders_session_id_key when the session
// already owns an order.
func (q *Queries) CreateOrder(ctx context.Context, sessionID uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, createOrder, sessionID))
}

const incrementOrderTotal = `-- name: IncrementOrderTotal :one
UPDATE orders
SET total_amount = total_amount + $2, status = 'RECEIVED', updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns + `
`

type IncrementOrderTotalParams struct {
	ID    uuid.UUID
	Delta pgtype.Numeric
}

func (q *Queries) IncrementOrderTotal(ctx context.Context, arg IncrementOrderTotalParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, incrementOrderTotal, arg.ID, arg.Delta))
}

const updateOrderStatus = `-- name: UpdateOrderStatus :one
UPDATE orders
SET status = $2::text,
    updated_at = now(),
    completed_at = CASE WHEN $2::text = 'COMPLETED' THEN now() ELSE completed_at END
WHERE id = $1 AND status = $3
RETURNING ` + orderColumns + `
`

type UpdateOrderStatusParams struct {
	ID         uuid.UUID
	Status     string
	FromStatus string
}

// UpdateOrderStatus is a compare-and-set: no row is returned when the
// order's status is no longer FromStatus.
func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.Status, arg.FromStatus))
}

const setBillRequested = `-- name: SetBillRequested :one
UPDATE orders
SET bill_requested = TRUE, updated_at = now()
WHERE id = $1 AND status NOT IN ('COMPLETED', 'REJECTED', 'CANCELLED')
RETURNING ` + orderColumns + `
`

func (q *Queries) SetBillRequested(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, setBillRequested, id))
}

const completeOrder = `-- name: CompleteOrder :one
UPDATE orders
SET status = 'COMPLETED', completed_at = now(), updated_at = now()
WHERE id = $1 AND status NOT IN ('COMPLETED', 'REJECTED', 'CANCELLED')
RETURNING ` + orderColumns + `
`

func (q *Queries) CompleteOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, completeOrder, id))
}

const listOrders = `-- name: ListOrders :many
SELECT ` + orderColumns + ` FROM orders
WHERE ($1::text IS NULL AND status IN ('RECEIVED', 'PREPARING', 'READY', 'SERVED'))
   OR status = $1::text
ORDER BY updated_at ASC, id
LIMIT $2 OFFSET $3
`

type ListOrdersParams struct {
	Status pgtype.Text
	Limit  int32
	Offset int32
}

// ListOrders returns the active queue when Status is null.
func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders, arg.Status, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Order
	for rows.Next() {
		i, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createOrderItem = `-- name: CreateOrderItem :one
INSERT INTO order_items (order_id, menu_item_id, quantity, unit_price, notes)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, order_id, menu_item_id, quantity, unit_price, notes, created_at
`

type CreateOrderItemParams struct {
	OrderID    uuid.UUID
	MenuItemID uuid.UUID
	Quantity   int32
	UnitPrice  pgtype.Numeric
	Notes      pgtype.Text
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID,
		arg.MenuItemID,
		arg.Quantity,
		arg.UnitPrice,
		arg.Notes,
	)
	var i OrderItem
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.MenuItemID,
		&i.Quantity,
		&i.UnitPrice,
		&i.Notes,
		&i.CreatedAt,
	)
	return i, err
}

const createOrderItemModifier = `-- name: CreateOrderItemModifier :one
INSERT INTO order_item_modifiers (order_item_id, modifier_group_id, modifier_option_id, price_delta)
VALUES ($1, $2, $3, $4)
RETURNING id, order_item_id, modifier_group_id, modifier_option_id, price_delta
`

type CreateOrderItemModifierParams struct {
	OrderItemID      uuid.UUID
	ModifierGroupID  uuid.UUID
	ModifierOptionID uuid.UUID
	PriceDelta       pgtype.Numeric
}

func (q *Queries) CreateOrderItemModifier(ctx context.Context, arg CreateOrderItemModifierParams) (OrderItemModifier, error) {
	row := q.db.QueryRow(ctx, createOrderItemModifier,
		arg.OrderItemID,
		arg.ModifierGroupID,
		arg.ModifierOptionID,
		arg.PriceDelta,
	)
	var i OrderItemModifier
	err := row.Scan(
		&i.ID,
		&i.OrderItemID,
		&i.ModifierGroupID,
		&i.ModifierOptionID,
		&i.PriceDelta,
	)
	return i, err
}

const listOrderItemsByOrder = `-- name: ListOrderItemsByOrder :many
SELECT id, order_id, menu_item_id, quantity, unit_price, notes, created_at
FROM order_items
WHERE order_id = $1
ORDER BY created_at, id
`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		var i OrderItem
		if err := rows.Scan(
			&i.ID,
			&i.OrderID,
			&i.MenuItemID,
			&i.Quantity,
			&i.UnitPrice,
			&i.Notes,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listOrderItemModifiersByOrder = `-- name: ListOrderItemModifiersByOrder :many
SELECT m.id, m.order_item_id, m.modifier_group_id, m.modifier_option_id, m.price_delta
FROM order_item_modifiers m
JOIN order_items oi ON oi.id = m.order_item_id
WHERE oi.order_id = $1
ORDER BY oi.created_at, oi.id, m.id
`

func (q *Queries) ListOrderItemModifiersByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItemModifier, error) {
	rows, err := q.db.Query(ctx, listOrderItemModifiersByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItemModifier
	for rows.Next() {
		var i OrderItemModifier
		if err := rows.Scan(
			&i.ID,
			&i.OrderItemID,
			&i.ModifierGroupID,
			&i.ModifierOptionID,
			&i.PriceDelta,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
