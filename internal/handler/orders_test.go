package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tableside/api/internal/auth"
	"github.com/tableside/api/internal/enum"
	"github.com/tableside/api/internal/handler"
	"github.com/tableside/api/internal/middleware"
	"github.com/tableside/api/internal/service"
)

// --- Mock OrderServicer ---

type mockOrderService struct {
	submitFn     func(ctx context.Context, sessionID uuid.UUID, lines []service.CartLine) (*service.OrderView, error)
	sessionFn    func(ctx context.Context, sessionID uuid.UUID) (*service.OrderView, error)
	billFn       func(ctx context.Context, sessionID uuid.UUID) (*service.OrderView, error)
	listFn       func(ctx context.Context, status string, limit, offset int32) ([]*service.OrderView, error)
	transitionFn func(ctx context.Context, orderID uuid.UUID, target string) (*service.OrderView, error)
	servedFn     func(ctx context.Context, orderID uuid.UUID) (*service.OrderView, error)
}

func (m *mockOrderService) SubmitCart(ctx context.Context, sessionID uuid.UUID, lines []service.CartLine) (*service.OrderView, error) {
	return m.submitFn(ctx, sessionID, lines)
}

func (m *mockOrderService) GetSessionOrder(ctx context.Context, sessionID uuid.UUID) (*service.OrderView, error) {
	return m.sessionFn(ctx, sessionID)
}

func (m *mockOrderService) RequestBillForSession(ctx context.Context, sessionID uuid.UUID) (*service.OrderView, error) {
	return m.billFn(ctx, sessionID)
}

func (m *mockOrderService) ListActiveOrders(ctx context.Context, status string, limit, offset int32) ([]*service.OrderView, error) {
	return m.listFn(ctx, status, limit, offset)
}

func (m *mockOrderService) Transition(ctx context.Context, orderID uuid.UUID, target string) (*service.OrderView, error) {
	return m.transitionFn(ctx, orderID, target)
}

func (m *mockOrderService) MarkServed(ctx context.Context, orderID uuid.UUID) (*service.OrderView, error) {
	return m.servedFn(ctx, orderID)
}

const testJWTSecret = "test-secret-for-orders"

func setupOrderRouter(svc *mockOrderService) *chi.Mux {
	h := handler.NewOrderHandler(svc, zap.NewNop())
	r := chi.NewRouter()
	h.RegisterGuestRoutes(r)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(testJWTSecret))
		h.RegisterStaffRoutes(r)
	})
	return r
}

func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return doAuthRequest(t, router, method, path, body, "")
}

// doAuthRequest signs a real JWT for role; an empty role sends no token.
func doAuthRequest(t *testing.T, router http.Handler, method, path string, body interface{}, role string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	switch b := body.(type) {
	case nil:
		req = httptest.NewRequest(method, path, nil)
	case string:
		req = httptest.NewRequest(method, path, bytes.NewBufferString(b))
	default:
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
	}
	req.Header.Set("Content-Type", "application/json")

	if role != "" {
		token, err := auth.GenerateToken(testJWTSecret, uuid.New(), role)
		if err != nil {
			t.Fatalf("generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func testOrderView(status string) *service.OrderView {
	return &service.OrderView{
		ID:          uuid.New(),
		SessionID:   uuid.New(),
		Status:      status,
		TotalAmount: "100000.00",
		Items:       []service.OrderItemView{},
	}
}

// --- Guest tests ---

func TestSubmitCart_ParsesLines(t *testing.T) {
	sessionID := uuid.New()
	menuItemID := uuid.New()
	groupID := uuid.New()
	optionID := uuid.New()

	var got []service.CartLine
	svc := &mockOrderService{
		submitFn: func(_ context.Context, sid uuid.UUID, lines []service.CartLine) (*service.OrderView, error) {
			if sid != sessionID {
				t.Errorf("session: got %v, want %v", sid, sessionID)
			}
			got = lines
			return testOrderView(enum.OrderStatusReceived), nil
		},
	}

	body := map[string]interface{}{
		"items": []map[string]interface{}{{
			"menu_item_id": menuItemID.String(),
			"quantity":     2,
			"unit_price":   "20000",
			"note":         "no salt",
			"selected_modifiers": map[string]interface{}{
				groupID.String(): []map[string]string{{"modifier_option_id": optionID.String(), "price_delta": "5000"}},
			},
		}},
	}
	rr := doRequest(t, setupOrderRouter(svc), "POST", "/sessions/"+sessionID.String()+"/cart", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201; body: %s", rr.Code, rr.Body.String())
	}
	if len(got) != 1 {
		t.Fatalf("lines: got %d, want 1", len(got))
	}
	line := got[0]
	if line.MenuItemID != menuItemID || line.Quantity != 2 || line.Note != "no salt" {
		t.Errorf("line: %+v", line)
	}
	if !line.UnitPrice.Equal(decimal.NewFromInt(20000)) {
		t.Errorf("unit price: got %s", line.UnitPrice)
	}
	mods := line.SelectedModifiers[groupID]
	if len(mods) != 1 || mods[0].ModifierOptionID != optionID || !mods[0].PriceDelta.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("modifiers: %+v", line.SelectedModifiers)
	}
}

func TestSubmitCart_BadInput(t *testing.T) {
	svc := &mockOrderService{
		submitFn: func(context.Context, uuid.UUID, []service.CartLine) (*service.OrderView, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}
	path := "/sessions/" + uuid.NewString() + "/cart"

	tests := []struct {
		name  string
		path  string
		body  interface{}
		wantE string
	}{
		{"bad session id", "/sessions/x/cart", map[string]interface{}{}, "invalid session ID"},
		{"malformed json", path, "{", "invalid request body"},
		{"bad menu item", path, map[string]interface{}{"items": []map[string]interface{}{{"menu_item_id": "x", "quantity": 1, "unit_price": "1"}}}, "items[0]: invalid menu_item_id"},
		{"missing price", path, map[string]interface{}{"items": []map[string]interface{}{{"menu_item_id": uuid.NewString(), "quantity": 1}}}, "items[0]: unit_price is required"},
		{"bad delta", path, map[string]interface{}{"items": []map[string]interface{}{{
			"menu_item_id": uuid.NewString(), "quantity": 1, "unit_price": "1",
			"selected_modifiers": map[string]interface{}{uuid.NewString(): []map[string]string{{"modifier_option_id": uuid.NewString(), "price_delta": "lots"}}},
		}}}, "items[0]: invalid price_delta"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := doRequest(t, setupOrderRouter(svc), "POST", tc.path, tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d, want 400", rr.Code)
			}
			if resp := decodeResponse(t, rr); resp["error"] != tc.wantE {
				t.Errorf("error: got %v, want %q", resp["error"], tc.wantE)
			}
		})
	}
}

func TestSubmitCart_ServiceErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"empty cart", service.ErrEmptyCart, http.StatusBadRequest},
		{"bad quantity", fmt.Errorf("item[0]: %w", service.ErrInvalidQuantity), http.StatusBadRequest},
		{"session closed", service.ErrSessionClosed, http.StatusConflict},
		{"order terminal", service.ErrOrderTerminal, http.StatusConflict},
		{"session missing", service.ErrSessionNotFound, http.StatusNotFound},
		{"price guard", service.ErrPriceMismatch, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockOrderService{
				submitFn: func(context.Context, uuid.UUID, []service.CartLine) (*service.OrderView, error) {
					return nil, tc.err
				},
			}
			rr := doRequest(t, setupOrderRouter(svc), "POST", "/sessions/"+uuid.NewString()+"/cart", map[string]interface{}{"items": []interface{}{}})
			if rr.Code != tc.want {
				t.Errorf("status: got %d, want %d", rr.Code, tc.want)
			}
		})
	}
}

func TestGetSessionOrder(t *testing.T) {
	view := testOrderView(enum.OrderStatusPreparing)
	svc := &mockOrderService{
		sessionFn: func(_ context.Context, sid uuid.UUID) (*service.OrderView, error) {
			if sid != view.SessionID {
				return nil, service.ErrOrderNotFound
			}
			return view, nil
		},
	}
	r := setupOrderRouter(svc)

	rr := doRequest(t, r, "GET", "/sessions/"+view.SessionID.String()+"/order", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if resp := decodeResponse(t, rr); resp["status"] != "PREPARING" || resp["total_amount"] != "100000.00" {
		t.Errorf("response: %v", resp)
	}

	rr = doRequest(t, r, "GET", "/sessions/"+uuid.NewString()+"/order", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown session: got %d, want 404", rr.Code)
	}
}

func TestRequestBill(t *testing.T) {
	svc := &mockOrderService{
		billFn: func(context.Context, uuid.UUID) (*service.OrderView, error) {
			v := testOrderView(enum.OrderStatusServed)
			v.BillRequested = true
			return v, nil
		},
	}
	rr := doRequest(t, setupOrderRouter(svc), "POST", "/sessions/"+uuid.NewString()+"/order/bill", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if resp := decodeResponse(t, rr); resp["bill_requested"] != true {
		t.Errorf("bill_requested: got %v", resp["bill_requested"])
	}
}

// --- Staff tests ---

func TestListOrders_PassesQuery(t *testing.T) {
	var gotStatus string
	var gotLimit, gotOffset int32
	svc := &mockOrderService{
		listFn: func(_ context.Context, status string, limit, offset int32) ([]*service.OrderView, error) {
			gotStatus, gotLimit, gotOffset = status, limit, offset
			return nil, nil
		},
	}

	rr := doAuthRequest(t, setupOrderRouter(svc), "GET", "/orders?status=READY&limit=10&offset=20", nil, enum.UserRoleKitchen)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if gotStatus != "READY" || gotLimit != 10 || gotOffset != 20 {
		t.Errorf("query: got %q %d %d", gotStatus, gotLimit, gotOffset)
	}
	if body := rr.Body.String(); body != "[]\n" {
		t.Errorf("empty list body: got %q, want []", body)
	}
}

func TestListOrders_IgnoresBadPaging(t *testing.T) {
	svc := &mockOrderService{
		listFn: func(_ context.Context, _ string, limit, offset int32) ([]*service.OrderView, error) {
			if limit != 0 || offset != 0 {
				t.Errorf("paging: got %d %d, want defaults", limit, offset)
			}
			return []*service.OrderView{testOrderView(enum.OrderStatusReceived)}, nil
		},
	}
	rr := doAuthRequest(t, setupOrderRouter(svc), "GET", "/orders?limit=-5&offset=abc", nil, enum.UserRoleWaiter)
	if rr.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rr.Code)
	}
}

func TestListOrders_RequiresAuth(t *testing.T) {
	svc := &mockOrderService{}
	rr := doRequest(t, setupOrderRouter(svc), "GET", "/orders", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rr.Code)
	}
}

func TestUpdateStatus(t *testing.T) {
	orderID := uuid.New()
	svc := &mockOrderService{
		transitionFn: func(_ context.Context, id uuid.UUID, target string) (*service.OrderView, error) {
			if id != orderID {
				t.Errorf("order: got %v, want %v", id, orderID)
			}
			if target == enum.OrderStatusReceived {
				return nil, fmt.Errorf("%w: READY -> RECEIVED", service.ErrInvalidTransition)
			}
			if target == "DONE" {
				return nil, service.ErrInvalidStatus
			}
			return testOrderView(target), nil
		},
	}
	r := setupOrderRouter(svc)
	path := "/orders/" + orderID.String() + "/status"

	tests := []struct {
		name string
		role string
		body interface{}
		want int
	}{
		{"kitchen advances", enum.UserRoleKitchen, map[string]string{"status": "PREPARING"}, http.StatusOK},
		{"illegal edge", enum.UserRoleKitchen, map[string]string{"status": "RECEIVED"}, http.StatusConflict},
		{"unknown status", enum.UserRoleManager, map[string]string{"status": "DONE"}, http.StatusBadRequest},
		{"missing status", enum.UserRoleOwner, map[string]string{}, http.StatusBadRequest},
		{"unknown field", enum.UserRoleKitchen, map[string]string{"status": "PREPARING", "total_amount": "0"}, http.StatusBadRequest},
		{"waiter forbidden", enum.UserRoleWaiter, map[string]string{"status": "PREPARING"}, http.StatusForbidden},
		{"cashier forbidden", enum.UserRoleCashier, map[string]string{"status": "PREPARING"}, http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := doAuthRequest(t, r, "PATCH", path, tc.body, tc.role)
			if rr.Code != tc.want {
				t.Errorf("status: got %d, want %d; body: %s", rr.Code, tc.want, rr.Body.String())
			}
		})
	}
}

func TestServe(t *testing.T) {
	svc := &mockOrderService{
		servedFn: func(context.Context, uuid.UUID) (*service.OrderView, error) {
			return testOrderView(enum.OrderStatusServed), nil
		},
	}
	r := setupOrderRouter(svc)
	path := "/orders/" + uuid.NewString() + "/serve"

	rr := doAuthRequest(t, r, "POST", path, nil, enum.UserRoleWaiter)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if resp := decodeResponse(t, rr); resp["status"] != "SERVED" {
		t.Errorf("status field: got %v", resp["status"])
	}

	rr = doAuthRequest(t, r, "POST", path, nil, enum.UserRoleKitchen)
	if rr.Code != http.StatusForbidden {
		t.Errorf("kitchen: got %d, want 403", rr.Code)
	}
}
