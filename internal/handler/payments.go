package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tableside/api/internal/enum"
	"github.com/tableside/api/internal/gateway"
	"github.com/tableside/api/internal/middleware"
	"github.com/tableside/api/internal/service"
)

// PaymentServicer defines the service methods needed by payment handlers.
// Satisfied by *service.PaymentService.
type PaymentServicer interface {
	CreateIntent(ctx context.Context, orderID uuid.UUID) (*service.IntentResult, error)
	ConfirmPayment(ctx context.Context, req service.ConfirmRequest) (*service.ConfirmResult, error)
	HandleWebhook(ctx context.Context, req service.WebhookRequest) error
}

// PaymentHandler handles payment intent, confirmation and webhook endpoints.
type PaymentHandler struct {
	svc PaymentServicer
	log *zap.Logger
}

func NewPaymentHandler(svc PaymentServicer, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{svc: svc, log: log}
}

// RegisterGuestRoutes registers the unauthenticated payment endpoints.
func (h *PaymentHandler) RegisterGuestRoutes(r chi.Router) {
	r.Post("/orders/{id}/payments/intent", h.CreateIntent)
	r.Post("/webhooks/payments/{provider}", h.Webhook)
}

// RegisterStaffRoutes registers manual confirmation. Expected to be mounted
// behind middleware.Authenticate.
func (h *PaymentHandler) RegisterStaffRoutes(r chi.Router) {
	r.With(middleware.RequireRole(
		enum.UserRoleCashier, enum.UserRoleWaiter, enum.UserRoleManager, enum.UserRoleOwner,
	)).Post("/orders/{id}/payments/confirm", h.Confirm)
}

// --- Request types ---

type confirmPaymentRequest struct {
	Method         string `json:"method"`
	Discount       string `json:"discount"`
	Tip            string `json:"tip"`
	AmountReceived string `json:"amount_received"`
	Reference      string `json:"reference"`
}

func (req confirmPaymentRequest) adjustments() (service.Adjustments, error) {
	var adj service.Adjustments
	var err error
	if adj.Discount, err = parseMoney("discount", req.Discount, false); err != nil {
		return adj, err
	}
	if adj.Tip, err = parseMoney("tip", req.Tip, false); err != nil {
		return adj, err
	}
	if req.AmountReceived != "" {
		d, err := decimal.NewFromString(req.AmountReceived)
		if err != nil {
			return adj, errors.New("invalid amount_received")
		}
		adj.AmountReceived = decimal.NewNullDecimal(d)
	}
	return adj, nil
}

// --- Handlers ---

// CreateIntent handles POST /orders/{id}/payments/intent.
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	result, err := h.svc.CreateIntent(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, h.log, "create payment intent", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Confirm handles POST /orders/{id}/payments/confirm.
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	var req confirmPaymentRequest
	if err := decodeStrictJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, "method is required")
		return
	}
	adj, err := req.adjustments()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.svc.ConfirmPayment(r.Context(), service.ConfirmRequest{
		OrderID:     orderID,
		Method:      strings.ToUpper(req.Method),
		Adjustments: adj,
		ExternalRef: req.Reference,
	})
	if err != nil {
		writeServiceError(w, h.log, "confirm payment", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Webhook handles POST /webhooks/payments/{provider}. The body is passed
// through unparsed because the signature covers the raw bytes.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	provider := strings.ToLower(chi.URLParam(r, "provider"))

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err = h.svc.HandleWebhook(r.Context(), service.WebhookRequest{
		Provider:  provider,
		Payload:   payload,
		Signature: r.Header.Get(gateway.SignatureHeader),
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidSignature) {
			h.log.Warn("webhook signature rejected", zap.String("provider", provider), zap.Error(err))
		}
		writeServiceError(w, h.log, "payment webhook", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
