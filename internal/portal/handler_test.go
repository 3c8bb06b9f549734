package portal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/welfarecanteen/portal/internal/backend"
	"github.com/welfarecanteen/portal/internal/domain"
)

// fakeCanteenAPI stands in for the upstream canteen service.
type fakeCanteenAPI struct {
	mu          sync.Mutex
	listCalls   int
	cancelCalls int
	failList    bool
}

func (f *fakeCanteenAPI) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /order/getAllOrders", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.listCalls++
		fail := f.failList
		f.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{
			"data": {
				"orders": [
					{"id": 1, "orderNo": "WC-0001", "status": "Placed", "orderDate": 1714521600, "totalAmount": "120.00",
					 "orderUser": {"mobile": "9876543210"}, "orderCanteen": {"canteenName": "Main Block"}},
					{"id": 2, "orderNo": "WC-0002", "status": "Completed", "orderDate": 1714521600, "totalAmount": "60.00"}
				],
				"total": 2
			}
		}`))
	})

	mux.HandleFunc("GET /order/getOrderById/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "1" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message": "order not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{
			"data": {
				"id": 1, "orderNo": "WC-0001", "status": "Placed", "orderDate": 1714521600,
				"createdAt": 1714518000, "totalAmount": "120.00",
				"orderItems": [{"quantity": 2, "price": "60.00", "menuItemItem": {"name": "Veg Thali"}}]
			}
		}`))
	})

	mux.HandleFunc("GET /order/myOrders", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"data": [
				{"id": 10, "orderNo": "WC-0010", "status": "Placed", "orderDate": 1714608000,
				 "createdAt": 1714600000, "totalAmount": "90.00", "orderUser": {"mobile": "9876543210"}},
				{"id": 11, "orderNo": "WC-0011", "status": "Completed", "orderDate": 1714521600,
				 "createdAt": 1714500000, "totalAmount": "45.00", "orderUser": {"mobile": "9876543210"}}
			]
		}`))
	})

	mux.HandleFunc("POST /order/cancelOrder", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.cancelCalls++
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"success": true, "message": "cancelled"}`))
	})

	mux.HandleFunc("GET /user/getAllUsers", func(w http.ResponseWriter, r *http.Request) {
		users := make([]map[string]any, 0, 45)
		for i := 1; i <= 45; i++ {
			users = append(users, map[string]any{
				"id":        i,
				"firstName": fmt.Sprintf("User%d", i),
				"lastName":  "Test",
				"email":     fmt.Sprintf("user%d@example.com", i),
				"mobile":    "9876543210",
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": users})
	})

	return mux
}

func (f *fakeCanteenAPI) cancelCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelCalls
}

type portalFixture struct {
	api     *fakeCanteenAPI
	handler http.Handler
	server  *httptest.Server
}

func newPortalFixture(t *testing.T) *portalFixture {
	t.Helper()

	api := &fakeCanteenAPI{}
	apiServer := httptest.NewServer(api.handler())
	t.Cleanup(apiServer.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := backend.NewClient(apiServer.URL, &http.Client{Timeout: 5 * time.Second})
	sessions := NewSessionManager(client, nil, logger)
	handler := NewHandler(client, sessions, nil, apiServer.URL, logger)

	mux := http.NewServeMux()
	handler.Register(mux)

	return &portalFixture{api: api, handler: mux, server: apiServer}
}

func (f *portalFixture) request(t *testing.T, method, target, sessionID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("X-User-ID", "7")
	req.Header.Set("X-User-Role", "customer")
	if sessionID != "" {
		req.Header.Set("X-Session-ID", sessionID)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return out
}

func TestHandleListOrders(t *testing.T) {
	fixture := newPortalFixture(t)

	rec := fixture.request(t, http.MethodGet, "/admin/orders?mobile=9876&date=2024-05-01", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Session-ID") == "" {
		t.Error("expected a session id header on the response")
	}

	resp := decodeBody[orderListResponse](t, rec)
	if resp.Total != 2 {
		t.Errorf("expected total 2, got %d", resp.Total)
	}
	if len(resp.Orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(resp.Orders))
	}
	if resp.Orders[0].CustomerMobile != "9876543210" || resp.Orders[0].CanteenName != "Main Block" {
		t.Errorf("unexpected first order: %+v", resp.Orders[0])
	}
	if resp.Page != 1 || resp.PageSize != 10 {
		t.Errorf("expected page 1 size 10, got page %d size %d", resp.Page, resp.PageSize)
	}
	if resp.Loading {
		t.Error("response must reflect a settled snapshot")
	}
	if resp.Error != "" {
		t.Errorf("unexpected error: %q", resp.Error)
	}
}

func TestHandleListOrders_InvalidPage(t *testing.T) {
	fixture := newPortalFixture(t)

	rec := fixture.request(t, http.MethodGet, "/admin/orders?page=zero", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestHandleListOrders_UpstreamFailure(t *testing.T) {
	fixture := newPortalFixture(t)
	fixture.api.failList = true

	rec := fixture.request(t, http.MethodGet, "/admin/orders", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	resp := decodeBody[orderListResponse](t, rec)
	if resp.Error == "" {
		t.Error("expected an error message for the failed fetch")
	}
	if len(resp.Orders) != 0 || resp.Total != 0 {
		t.Errorf("expected an empty result set, got %+v", resp)
	}
}

func TestHandleGetOrder(t *testing.T) {
	fixture := newPortalFixture(t)

	rec := fixture.request(t, http.MethodGet, "/admin/orders/1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeBody[map[string]any](t, rec)
	want := domain.FormatOrderDate(1714521600)
	if resp["order_date_text"] != want {
		t.Errorf("expected order_date_text %s, got %v", want, resp["order_date_text"])
	}
	if resp["order_no"] != "WC-0001" {
		t.Errorf("expected order_no WC-0001, got %v", resp["order_no"])
	}
}

func TestHandleGetOrder_NotFound(t *testing.T) {
	fixture := newPortalFixture(t)

	rec := fixture.request(t, http.MethodGet, "/admin/orders/999", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}

	resp := decodeBody[map[string]string](t, rec)
	if resp["error"] != "failed to load order details" {
		t.Errorf("unexpected error message: %q", resp["error"])
	}
}

func TestHandleMyOrders(t *testing.T) {
	fixture := newPortalFixture(t)

	rec := fixture.request(t, http.MethodGet, "/my/orders", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Orders []myOrderResponse `json:"orders"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(resp.Orders))
	}

	// Newest first.
	if resp.Orders[0].ID != 10 || resp.Orders[1].ID != 11 {
		t.Errorf("expected newest-first ordering, got %d then %d", resp.Orders[0].ID, resp.Orders[1].ID)
	}

	placed := resp.Orders[0]
	if !placed.CanCancel {
		t.Error("placed order must be cancellable")
	}
	if placed.QRValue == "" {
		t.Error("placed order must carry a qr value")
	}

	completed := resp.Orders[1]
	if completed.CanCancel {
		t.Error("completed order must not be cancellable")
	}
	if completed.QRValue != "" {
		t.Error("completed order must not carry a qr value")
	}
}

func TestHandleCancelOrder_TwoStepFlow(t *testing.T) {
	fixture := newPortalFixture(t)

	// Load the order history first so the session knows the order.
	rec := fixture.request(t, http.MethodGet, "/my/orders", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	sessionID := rec.Header().Get("X-Session-ID")
	if sessionID == "" {
		t.Fatal("expected a session id header")
	}

	// Step one: open the gate. Nothing must reach the upstream API.
	rec = fixture.request(t, http.MethodPost, "/my/orders/10/cancel", sessionID, cancelRequest{Confirm: false})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[cancelResponse](t, rec)
	if resp.Outcome != "pending" {
		t.Errorf("expected pending outcome, got %q", resp.Outcome)
	}
	if resp.Message != "Are you sure you want to cancel this order?" {
		t.Errorf("unexpected message: %q", resp.Message)
	}
	if got := fixture.api.cancelCallCount(); got != 0 {
		t.Fatalf("expected no upstream cancel call before confirmation, got %d", got)
	}

	// Step two: confirm.
	rec = fixture.request(t, http.MethodPost, "/my/orders/10/cancel", sessionID, cancelRequest{Confirm: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp = decodeBody[cancelResponse](t, rec)
	if resp.Outcome != "cancelled" {
		t.Errorf("expected cancelled outcome, got %q", resp.Outcome)
	}
	if got := fixture.api.cancelCallCount(); got != 1 {
		t.Fatalf("expected exactly one upstream cancel call, got %d", got)
	}

	// Repeating the request is now a no-op against the updated snapshot.
	rec = fixture.request(t, http.MethodPost, "/my/orders/10/cancel", sessionID, cancelRequest{Confirm: true})
	resp = decodeBody[cancelResponse](t, rec)
	if resp.Outcome != "noop" {
		t.Errorf("expected noop outcome after cancellation, got %q", resp.Outcome)
	}
	if resp.Message != "This order has already been cancelled" {
		t.Errorf("unexpected message: %q", resp.Message)
	}
	if got := fixture.api.cancelCallCount(); got != 1 {
		t.Fatalf("expected no further upstream calls, got %d", got)
	}
}

func TestHandleCancelOrder_CompletedOrder(t *testing.T) {
	fixture := newPortalFixture(t)

	rec := fixture.request(t, http.MethodGet, "/my/orders", "", nil)
	sessionID := rec.Header().Get("X-Session-ID")

	rec = fixture.request(t, http.MethodPost, "/my/orders/11/cancel", sessionID, cancelRequest{Confirm: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	resp := decodeBody[cancelResponse](t, rec)
	if resp.Outcome != "noop" {
		t.Errorf("expected noop outcome, got %q", resp.Outcome)
	}
	if resp.Message != "Cannot cancel a completed order" {
		t.Errorf("unexpected message: %q", resp.Message)
	}
	if got := fixture.api.cancelCallCount(); got != 0 {
		t.Fatalf("expected no upstream cancel call, got %d", got)
	}
}

func TestHandleCancelOrder_UnknownOrder(t *testing.T) {
	fixture := newPortalFixture(t)

	rec := fixture.request(t, http.MethodPost, "/my/orders/999/cancel", "", cancelRequest{Confirm: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	resp := decodeBody[cancelResponse](t, rec)
	if resp.Outcome != "noop" || resp.Message != "Order not found" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHandleListUsers_Pagination(t *testing.T) {
	fixture := newPortalFixture(t)

	rec := fixture.request(t, http.MethodGet, "/admin/users?page=3", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	resp := decodeBody[userListResponse](t, rec)
	if resp.Total != 45 {
		t.Errorf("expected total 45, got %d", resp.Total)
	}
	if resp.Page != 3 || resp.PageSize != 20 {
		t.Errorf("expected page 3 size 20, got page %d size %d", resp.Page, resp.PageSize)
	}
	// Page 3 of 45 users at 20 per page holds the last 5.
	if len(resp.Users) != 5 {
		t.Fatalf("expected 5 users on the last page, got %d", len(resp.Users))
	}
	if resp.Users[0].FirstName != "User41" {
		t.Errorf("expected page to start at User41, got %q", resp.Users[0].FirstName)
	}
}

func TestHandleListUsers_PageBeyondEnd(t *testing.T) {
	fixture := newPortalFixture(t)

	rec := fixture.request(t, http.MethodGet, "/admin/users?page=99", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	resp := decodeBody[userListResponse](t, rec)
	if len(resp.Users) != 0 {
		t.Errorf("expected an empty page, got %d users", len(resp.Users))
	}
	if resp.Total != 45 {
		t.Errorf("expected total 45, got %d", resp.Total)
	}
}

func TestHandleOrderQR(t *testing.T) {
	fixture := newPortalFixture(t)

	rec := fixture.request(t, http.MethodGet, "/my/orders/10/qr", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("expected image/png, got %q", got)
	}
	if rec.Body.Len() == 0 {
		t.Error("expected png bytes in the response")
	}
}

func TestHandleCreateItem_Validation(t *testing.T) {
	fixture := newPortalFixture(t)

	body := map[string]any{"description": "no name", "quantity": 5, "quantity_unit": "pcs", "price": "10.00", "image_url": "http://img"}
	rec := fixture.request(t, http.MethodPost, "/admin/items", "", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}

	resp := decodeBody[map[string]string](t, rec)
	if resp["error"] != "item name is required" {
		t.Errorf("unexpected error: %q", resp["error"])
	}
}
