package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/tableside/api/internal/database"
	"github.com/tableside/api/internal/enum"
	"github.com/tableside/api/internal/gateway"
)

// EventPaymentSucceeded is the only webhook event type that confirms a payment.
const EventPaymentSucceeded = "payment_intent.succeeded"

// PaymentStore defines the DB methods needed by the payment reconciler.
// Satisfied by *database.Queries (and its WithTx variant).
type PaymentStore interface {
	hydrationStore
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	CompleteOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	CloseSession(ctx context.Context, id uuid.UUID) (database.TableSession, error)
	GetPaymentByOrder(ctx context.Context, orderID uuid.UUID) (database.Payment, error)
	CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error)
	MarkPaymentPaid(ctx context.Context, arg database.MarkPaymentPaidParams) (database.Payment, error)
	ReissuePaymentIntent(ctx context.Context, arg database.ReissuePaymentIntentParams) (database.Payment, error)
}

// NewPaymentStore creates a PaymentStore from a DBTX (pool or tx).
type NewPaymentStore func(db database.DBTX) PaymentStore

// WebhookVerifier checks a provider's signature header over the raw body.
type WebhookVerifier interface {
	Verify(payload []byte, header string) error
}

// EventDeduper remembers processed webhook event ids.
type EventDeduper interface {
	Seen(ctx context.Context, eventID string) bool
	Mark(ctx context.Context, eventID string)
}

// PaymentService creates payment intents and reconciles confirmed payments
// into a completed order and a closed session.
type PaymentService struct {
	pool      TxBeginner
	newStore  NewPaymentStore
	gateway   gateway.Gateway
	notifier  Notifier
	verifiers map[string]WebhookVerifier
	dedup     EventDeduper
}

// PaymentOption configures a PaymentService.
type PaymentOption func(*PaymentService)

// WithWebhookVerifier registers the signature verifier for a provider.
func WithWebhookVerifier(provider string, v WebhookVerifier) PaymentOption {
	return func(s *PaymentService) { s.verifiers[provider] = v }
}

// WithDeduper skips webhook events whose id was already processed.
func WithDeduper(d EventDeduper) PaymentOption {
	return func(s *PaymentService) { s.dedup = d }
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(pool TxBeginner, newStore NewPaymentStore, gw gateway.Gateway, notifier Notifier, opts ...PaymentOption) *PaymentService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	s := &PaymentService{
		pool:      pool,
		newStore:  newStore,
		gateway:   gw,
		notifier:  notifier,
		verifiers: make(map[string]WebhookVerifier),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IntentResult is returned to the guest client to complete a gateway payment.
type IntentResult struct {
	PaymentID    uuid.UUID `json:"payment_id"`
	IntentID     string    `json:"intent_id"`
	ClientSecret string    `json:"client_secret"`
	Amount       string    `json:"amount"`
	Method       string    `json:"method"`
	Status       string    `json:"status"`
}

// CreateIntent returns the order's PENDING payment, creating it through the
// gateway on first call. A pending intent issued for a different total is
// re-issued at the current total under the same payment id.
func (s *PaymentService) CreateIntent(ctx context.Context, orderID uuid.UUID) (*IntentResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := lockPayableOrder(ctx, store, orderID)
	if err != nil {
		return nil, err
	}
	total := numericToDecimal(order.TotalAmount)
	if !total.IsPositive() {
		return nil, ErrNothingToPay
	}

	existing, err := store.GetPaymentByOrder(ctx, orderID)
	switch {
	case err == nil:
		if existing.Status == enum.PaymentStatusPaid {
			return nil, ErrAlreadyPaid
		}
		if numericToDecimal(existing.Amount).Equal(total) {
			if err := tx.Commit(ctx); err != nil {
				return nil, fmt.Errorf("commit tx: %w", err)
			}
			return newIntentResult(existing), nil
		}
		intent, err := s.issueIntent(ctx, orderID, total)
		if err != nil {
			return nil, err
		}
		payment, err := store.ReissuePaymentIntent(ctx, database.ReissuePaymentIntentParams{
			ID:           existing.ID,
			Amount:       decimalToNumeric(total),
			Method:       s.gateway.Method(),
			ClientSecret: pgtype.Text{String: intent.ClientSecret, Valid: true},
			ExternalRef:  pgtype.Text{String: intent.ID, Valid: true},
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrAlreadyPaid
			}
			return nil, fmt.Errorf("reissue payment intent: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit tx: %w", err)
		}
		return newIntentResult(payment), nil
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("get payment: %w", err)
	}

	intent, err := s.issueIntent(ctx, orderID, total)
	if err != nil {
		return nil, err
	}

	payment, err := store.CreatePayment(ctx, database.CreatePaymentParams{
		OrderID:      orderID,
		Amount:       decimalToNumeric(total),
		Method:       s.gateway.Method(),
		Status:       enum.PaymentStatusPending,
		ClientSecret: pgtype.Text{String: intent.ClientSecret, Valid: true},
		ExternalRef:  pgtype.Text{String: intent.ID, Valid: true},
	})
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return newIntentResult(payment), nil
}

func (s *PaymentService) issueIntent(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal) (gateway.Intent, error) {
	if s.gateway == nil {
		return gateway.Intent{}, fmt.Errorf("%w: no gateway configured", ErrGateway)
	}
	intent, err := s.gateway.CreateIntent(ctx, gateway.IntentParams{OrderID: orderID, Amount: amount})
	if err != nil {
		return gateway.Intent{}, fmt.Errorf("%w: %w", ErrGateway, err)
	}
	return intent, nil
}

func newIntentResult(p database.Payment) *IntentResult {
	return &IntentResult{
		PaymentID:    p.ID,
		IntentID:     p.ExternalRef.String,
		ClientSecret: p.ClientSecret.String,
		Amount:       numericToDecimal(p.Amount).StringFixed(2),
		Method:       p.Method,
		Status:       p.Status,
	}
}

// Adjustments apply to the payment amount only; the order total is never
// rewritten.
type Adjustments struct {
	Discount       decimal.Decimal
	Tip            decimal.Decimal
	AmountReceived decimal.NullDecimal // CASH only
}

// ConfirmRequest is the validated input for confirming a payment.
// IntentID is set for gateway callbacks: the order's pending payment must
// carry that intent and its amount must still equal the order total.
type ConfirmRequest struct {
	OrderID     uuid.UUID
	Method      string
	Adjustments Adjustments
	ExternalRef string
	IntentID    string
}

// ConfirmResult carries the paid payment and the completed order.
type ConfirmResult struct {
	Payment PaymentView `json:"payment"`
	Order   *OrderView  `json:"order"`
}

var validPaymentMethods = map[string]bool{
	enum.PaymentMethodCash:    true,
	enum.PaymentMethodStripe:  true,
	enum.PaymentMethodMomo:    true,
	enum.PaymentMethodVNPay:   true,
	enum.PaymentMethodZaloPay: true,
}

// ConfirmPayment marks the payment PAID, completes the order and closes its
// session in one transaction. An order already moved to COMPLETED by staff
// is still payable until a PAID payment exists.
func (s *PaymentService) ConfirmPayment(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error) {
	if !validPaymentMethods[req.Method] {
		return nil, ErrInvalidMethod
	}
	adj := req.Adjustments
	if adj.Discount.IsNegative() || adj.Tip.IsNegative() {
		return nil, ErrInvalidAdjustment
	}
	if adj.AmountReceived.Valid && adj.AmountReceived.Decimal.IsNegative() {
		return nil, ErrInvalidAdjustment
	}
	if !isCents(adj.Discount) || !isCents(adj.Tip) || (adj.AmountReceived.Valid && !isCents(adj.AmountReceived.Decimal)) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAdjustment, ErrPricePrecision)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// --- Lock the order ---
	order, err := lockPayableOrder(ctx, store, req.OrderID)
	if err != nil {
		return nil, err
	}
	total := numericToDecimal(order.TotalAmount)
	if adj.Discount.GreaterThan(total) {
		return nil, ErrInvalidAdjustment
	}
	amount := total.Sub(adj.Discount).Add(adj.Tip)

	// --- Cash handling ---
	var amountReceived, changeAmount pgtype.Numeric
	if req.Method == enum.PaymentMethodCash && adj.AmountReceived.Valid {
		received := adj.AmountReceived.Decimal
		if received.LessThan(amount) {
			return nil, ErrInsufficientCash
		}
		amountReceived = decimalToNumeric(received)
		changeAmount = decimalToNumeric(received.Sub(amount))
	}
	discount := optionalNumeric(adj.Discount)
	tip := optionalNumeric(adj.Tip)
	externalRef := pgtype.Text{String: req.ExternalRef, Valid: req.ExternalRef != ""}

	// --- Payment row: PENDING -> PAID, or insert PAID ---
	var payment database.Payment
	existing, err := store.GetPaymentByOrder(ctx, order.ID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		payment, err = store.CreatePayment(ctx, database.CreatePaymentParams{
			OrderID:        order.ID,
			Amount:         decimalToNumeric(amount),
			Method:         req.Method,
			Status:         enum.PaymentStatusPaid,
			ExternalRef:    externalRef,
			AmountReceived: amountReceived,
			ChangeAmount:   changeAmount,
			DiscountAmount: discount,
			TipAmount:      tip,
		})
		if err != nil {
			return nil, fmt.Errorf("create payment: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("get payment: %w", err)
	case existing.Status == enum.PaymentStatusPaid:
		return nil, ErrAlreadyPaid
	case req.IntentID != "" && !intentMatches(existing, req.IntentID, total):
		return nil, ErrStaleIntent
	default:
		payment, err = store.MarkPaymentPaid(ctx, database.MarkPaymentPaidParams{
			ID:             existing.ID,
			Method:         req.Method,
			Amount:         decimalToNumeric(amount),
			ExternalRef:    externalRef,
			AmountReceived: amountReceived,
			ChangeAmount:   changeAmount,
			DiscountAmount: discount,
			TipAmount:      tip,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrAlreadyPaid
			}
			return nil, fmt.Errorf("mark payment paid: %w", err)
		}
	}

	// --- Complete the order and close the session ---
	if order.Status != enum.OrderStatusCompleted {
		order, err = store.CompleteOrder(ctx, order.ID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrOrderTerminal
			}
			return nil, fmt.Errorf("complete order: %w", err)
		}
	}
	if _, err := closeSession(ctx, store, order.SessionID); err != nil {
		return nil, err
	}

	view, err := hydrateOrder(ctx, store, order)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	publishOrder(ctx, s.notifier, enum.EventOrderStatusUpdated, view)
	return &ConfirmResult{Payment: newPaymentView(payment), Order: view}, nil
}

// lockPayableOrder reads the order FOR UPDATE and rejects orders that were
// rejected or cancelled. Whether an order is paid is decided by its payment
// row, not by COMPLETED, which staff can also reach from SERVED.
func lockPayableOrder(ctx context.Context, store PaymentStore, orderID uuid.UUID) (database.Order, error) {
	order, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}
	switch order.Status {
	case enum.OrderStatusRejected, enum.OrderStatusCancelled:
		return database.Order{}, ErrOrderTerminal
	}
	return order, nil
}

// intentMatches reports whether a gateway callback settles the pending
// payment as it stands: same intent, issued for the current total.
func intentMatches(p database.Payment, intentID string, total decimal.Decimal) bool {
	return p.ExternalRef.Valid && p.ExternalRef.String == intentID && numericToDecimal(p.Amount).Equal(total)
}

func optionalNumeric(d decimal.Decimal) pgtype.Numeric {
	if d.IsZero() {
		return pgtype.Numeric{}
	}
	return decimalToNumeric(d)
}

// WebhookRequest is a raw provider callback.
type WebhookRequest struct {
	Provider  string
	Payload   []byte
	Signature string
}

type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string `json:"id"`
			Metadata struct {
				OrderID string `json:"order_id"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// HandleWebhook verifies and applies a provider callback. The signature is
// checked before anything else is read or written. Redelivered events are
// acknowledged without side effects.
func (s *PaymentService) HandleWebhook(ctx context.Context, req WebhookRequest) error {
	verifier, ok := s.verifiers[req.Provider]
	if !ok {
		return ErrUnknownProvider
	}
	method, ok := gateway.ProviderMethod(req.Provider)
	if !ok {
		return ErrUnknownProvider
	}
	if err := verifier.Verify(req.Payload, req.Signature); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	var event webhookEvent
	if err := json.Unmarshal(req.Payload, &event); err != nil {
		return ErrInvalidWebhookEvent
	}
	if event.ID == "" || event.Type == "" {
		return ErrInvalidWebhookEvent
	}
	dedupKey := req.Provider + ":" + event.ID
	if s.dedup != nil && s.dedup.Seen(ctx, dedupKey) {
		return nil
	}
	if event.Type != EventPaymentSucceeded {
		return nil
	}

	orderID, err := uuid.Parse(event.Data.Object.Metadata.OrderID)
	if err != nil {
		return ErrInvalidWebhookEvent
	}
	_, err = s.ConfirmPayment(ctx, ConfirmRequest{
		OrderID:     orderID,
		Method:      method,
		ExternalRef: event.Data.Object.ID,
		IntentID:    event.Data.Object.ID,
	})
	if err != nil && !errors.Is(err, ErrAlreadyPaid) {
		return err
	}
	if s.dedup != nil {
		s.dedup.Mark(ctx, dedupKey)
	}
	return nil
}
