package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tableside/api/internal/enum"
	"github.com/tableside/api/internal/middleware"
	"github.com/tableside/api/internal/service"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	SubmitCart(ctx context.Context, sessionID uuid.UUID, lines []service.CartLine) (*service.OrderView, error)
	GetSessionOrder(ctx context.Context, sessionID uuid.UUID) (*service.OrderView, error)
	RequestBillForSession(ctx context.Context, sessionID uuid.UUID) (*service.OrderView, error)
	ListActiveOrders(ctx context.Context, status string, limit, offset int32) ([]*service.OrderView, error)
	Transition(ctx context.Context, orderID uuid.UUID, target string) (*service.OrderView, error)
	MarkServed(ctx context.Context, orderID uuid.UUID) (*service.OrderView, error)
}

// OrderHandler handles guest cart and staff order endpoints.
type OrderHandler struct {
	svc OrderServicer
	log *zap.Logger
}

func NewOrderHandler(svc OrderServicer, log *zap.Logger) *OrderHandler {
	return &OrderHandler{svc: svc, log: log}
}

// RegisterGuestRoutes registers the unauthenticated table-side endpoints.
func (h *OrderHandler) RegisterGuestRoutes(r chi.Router) {
	r.Post("/sessions/{sid}/cart", h.SubmitCart)
	r.Get("/sessions/{sid}/order", h.GetSessionOrder)
	r.Post("/sessions/{sid}/order/bill", h.RequestBill)
}

// RegisterStaffRoutes registers the kitchen and floor endpoints. Expected to
// be mounted behind middleware.Authenticate.
func (h *OrderHandler) RegisterStaffRoutes(r chi.Router) {
	r.With(middleware.RequireRole(
		enum.UserRoleKitchen, enum.UserRoleWaiter, enum.UserRoleCashier, enum.UserRoleManager, enum.UserRoleOwner,
	)).Get("/orders", h.List)
	r.With(middleware.RequireRole(
		enum.UserRoleKitchen, enum.UserRoleManager, enum.UserRoleOwner,
	)).Patch("/orders/{id}/status", h.UpdateStatus)
	r.With(middleware.RequireRole(
		enum.UserRoleWaiter, enum.UserRoleManager, enum.UserRoleOwner,
	)).Post("/orders/{id}/serve", h.Serve)
}

// --- Request types ---

type cartRequest struct {
	Items []cartItemRequest `json:"items"`
}

type cartItemRequest struct {
	MenuItemID        string                               `json:"menu_item_id"`
	Quantity          int32                                `json:"quantity"`
	UnitPrice         string                               `json:"unit_price"`
	Note              string                               `json:"note"`
	SelectedModifiers map[string][]selectedModifierRequest `json:"selected_modifiers"`
}

type selectedModifierRequest struct {
	ModifierOptionID string `json:"modifier_option_id"`
	PriceDelta       string `json:"price_delta"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// toCartLines parses ids and money. Range checks belong to the service.
func toCartLines(items []cartItemRequest) ([]service.CartLine, string) {
	lines := make([]service.CartLine, len(items))
	for i, item := range items {
		menuItemID, err := uuid.Parse(item.MenuItemID)
		if err != nil {
			return nil, formatItemError(i, "invalid menu_item_id")
		}
		price, err := parseMoney("unit_price", item.UnitPrice, true)
		if err != nil {
			return nil, formatItemError(i, err.Error())
		}
		line := service.CartLine{
			MenuItemID: menuItemID,
			Quantity:   item.Quantity,
			UnitPrice:  price,
			Note:       item.Note,
		}
		if len(item.SelectedModifiers) > 0 {
			line.SelectedModifiers = make(map[uuid.UUID][]service.SelectedModifier, len(item.SelectedModifiers))
		}
		for groupKey, mods := range item.SelectedModifiers {
			groupID, err := uuid.Parse(groupKey)
			if err != nil {
				return nil, formatItemError(i, "invalid modifier group id")
			}
			selected := make([]service.SelectedModifier, len(mods))
			for j, m := range mods {
				optionID, err := uuid.Parse(m.ModifierOptionID)
				if err != nil {
					return nil, formatItemError(i, "invalid modifier_option_id")
				}
				delta, err := parseMoney("price_delta", m.PriceDelta, false)
				if err != nil {
					return nil, formatItemError(i, err.Error())
				}
				selected[j] = service.SelectedModifier{ModifierOptionID: optionID, PriceDelta: delta}
			}
			line.SelectedModifiers[groupID] = selected
		}
		lines[i] = line
	}
	return lines, ""
}

// --- Guest handlers ---

// SubmitCart handles POST /sessions/{sid}/cart.
func (h *OrderHandler) SubmitCart(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuidParam(r, "sid")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session ID")
		return
	}

	var req cartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	lines, msg := toCartLines(req.Items)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	order, err := h.svc.SubmitCart(r.Context(), sessionID, lines)
	if err != nil {
		writeServiceError(w, h.log, "submit cart", err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// GetSessionOrder handles GET /sessions/{sid}/order.
func (h *OrderHandler) GetSessionOrder(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuidParam(r, "sid")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session ID")
		return
	}

	order, err := h.svc.GetSessionOrder(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, h.log, "get session order", err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// RequestBill handles POST /sessions/{sid}/order/bill.
func (h *OrderHandler) RequestBill(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuidParam(r, "sid")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session ID")
		return
	}

	order, err := h.svc.RequestBillForSession(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, h.log, "request bill", err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// --- Staff handlers ---

// List handles GET /orders?status=&limit=&offset=.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var limit, offset int32
	if s := q.Get("limit"); s != "" {
		if v, err := strconv.ParseInt(s, 10, 32); err == nil && v > 0 {
			limit = int32(v)
		}
	}
	if s := q.Get("offset"); s != "" {
		if v, err := strconv.ParseInt(s, 10, 32); err == nil && v >= 0 {
			offset = int32(v)
		}
	}

	orders, err := h.svc.ListActiveOrders(r.Context(), q.Get("status"), limit, offset)
	if err != nil {
		writeServiceError(w, h.log, "list orders", err)
		return
	}
	if orders == nil {
		orders = []*service.OrderView{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// UpdateStatus handles PATCH /orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	var req updateStatusRequest
	if err := decodeStrictJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	order, err := h.svc.Transition(r.Context(), orderID, req.Status)
	if err != nil {
		writeServiceError(w, h.log, "update order status", err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// Serve handles POST /orders/{id}/serve.
func (h *OrderHandler) Serve(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	order, err := h.svc.MarkServed(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, h.log, "mark served", err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}
