package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const paymentColumns = `id, order_id, amount, method, status, client_secret, external_ref,
    amount_received, change_amount, discount_amount, tip_amount, paid_at, created_at`

func scanPayment(row interface{ Scan(...any) error }) (Payment, error) {
	var i Payment
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.Amount,
		&i.Method,
		&i.Status,
		&i.ClientSecret,
		&i.ExternalRef,
		&i.AmountReceived,
		&i.ChangeAmount,
		&i.DiscountAmount,
		&i.TipAmount,
		&i.PaidAt,
		&i.CreatedAt,
	)
	return i, err
}

const getPaymentByOrder = `-- name: GetPaymentByOrder :one
SELECT ` + paymentColumns + ` FROM payments
WHERE order_id = $1
`

func (q *Queries) GetPaymentByOrder(ctx context.Context, orderID uuid.UUID) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, getPaymentByOrder, orderID))
}

const createPayment = `-- name: CreatePayment :one
INSERT INTO payments (
    order_id, amount, method, status, client_secret, external_ref,
    amount_received, change_amount, discount_amount, tip_amount, paid_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
    CASE WHEN $4 = 'PAID' THEN now() ELSE NULL END
)
RETURNING ` + paymentColumns + `
`

type CreatePaymentParams struct {
	OrderID        uuid.UUID
	Amount         pgtype.Numeric
	Method         string
	Status         string
	ClientSecret   pgtype.Text
	ExternalRef    pgtype.Text
	AmountReceived pgtype.Numeric
	ChangeAmount   pgtype.Numeric
	DiscountAmount pgtype.Numeric
	TipAmount      pgtype.Numeric
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, createPayment,
		arg.OrderID,
		arg.Amount,
		arg.Method,
		arg.Status,
		arg.ClientSecret,
		arg.ExternalRef,
		arg.AmountReceived,
		arg.ChangeAmount,
		arg.DiscountAmount,
		arg.TipAmount,
	))
}

const markPaymentPaid = `-- name: MarkPaymentPaid :one
UPDATE payments
SET status = 'PAID',
    paid_at = now(),
    method = $2,
    amount = $3,
    external_ref = COALESCE($4, external_ref),
    amount_received = $5,
    change_amount = $6,
    discount_amount = $7,
    tip_amount = $8
WHERE id = $1 AND status = 'PENDING'
RETURNING ` + paymentColumns + `
`

type MarkPaymentPaidParams struct {
	ID             uuid.UUID
	Method         string
	Amount         pgtype.Numeric
	ExternalRef    pgtype.Text
	AmountReceived pgtype.Numeric
	ChangeAmount   pgtype.Numeric
	DiscountAmount pgtype.Numeric
	TipAmount      pgtype.Numeric
}

// MarkPaymentPaid only moves a PENDING row; a PAID row yields no rows.
func (q *Queries) MarkPaymentPaid(ctx context.Context, arg MarkPaymentPaidParams) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, markPaymentPaid,
		arg.ID,
		arg.Method,
		arg.Amount,
		arg.ExternalRef,
		arg.AmountReceived,
		arg.ChangeAmount,
		arg.DiscountAmount,
		arg.TipAmount,
	))
}

const reissuePaymentIntent = `-- name: ReissuePaymentIntent :one
UPDATE payments
SET amount = $2,
    method = $3,
    client_secret = $4,
    external_ref = $5
WHERE id = $1 AND status = 'PENDING'
RETURNING ` + paymentColumns + `
`

type ReissuePaymentIntentParams struct {
	ID           uuid.UUID
	Amount       pgtype.Numeric
	Method       string
	ClientSecret pgtype.Text
	ExternalRef  pgtype.Text
}

// ReissuePaymentIntent points a PENDING row at a fresh gateway intent.
func (q *Queries) ReissuePaymentIntent(ctx context.Context, arg ReissuePaymentIntentParams) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, reissuePaymentIntent,
		arg.ID,
		arg.Amount,
		arg.Method,
		arg.ClientSecret,
		arg.ExternalRef,
	))
}
