package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"SokoCheckout/internal/backend"
	"SokoCheckout/internal/checkout"
	"SokoCheckout/internal/gateway"
	"SokoCheckout/internal/models"
	"SokoCheckout/internal/orders"
	"SokoCheckout/internal/payments"

	"github.com/jackc/pgx/v5"
)

type memStore struct {
	mu       sync.Mutex
	sessions map[string]models.CheckoutSession
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]models.CheckoutSession)}
}

func (m *memStore) CreateSession(_ context.Context, s *models.CheckoutSession) error {
	m.mu.Lock()
	m.sessions[s.SessionID] = *s
	m.mu.Unlock()
	return nil
}

func (m *memStore) UpdateSession(_ context.Context, s *models.CheckoutSession) error {
	return m.CreateSession(context.Background(), s)
}

func (m *memStore) GetSession(_ context.Context, sessionID string) (*models.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &s, nil
}

type stubBackend struct{}

func (stubBackend) CreateOrder(_ context.Context, req backend.CreateOrderRequest) (*models.Order, error) {
	return &models.Order{OrderID: 42, UserID: req.UserID, Status: req.Status}, nil
}

func (stubBackend) UpdateOrderStatus(context.Context, int64, models.OrderStatus) error { return nil }

func (stubBackend) CreateOrderItem(context.Context, models.OrderItem) error { return nil }

func (stubBackend) CreatePayment(_ context.Context, req backend.CreatePaymentRequest) (*models.PaymentRecord, error) {
	return &models.PaymentRecord{PaymentID: 9, OrderID: req.OrderID, Method: req.Method}, nil
}

func (stubBackend) ConfirmPayment(context.Context, int64) error { return nil }

func (stubBackend) ListCartItems(context.Context, int64) ([]models.CartItem, error) {
	return []models.CartItem{{ProductID: 1, Quantity: 1, Price: 1500}}, nil
}

func (stubBackend) ClearCart(context.Context, int64) error { return nil }

type stubGateway struct{}

func (stubGateway) InitiateSTKPush(context.Context, string, int64, string) (*gateway.STKPushResult, error) {
	return &gateway.STKPushResult{Success: true, CheckoutRequestID: "ws_CO_1"}, nil
}

func (stubGateway) QueryStatus(context.Context, string) (*gateway.StatusResult, error) {
	return &gateway.StatusResult{Status: gateway.StatusCompleted}, nil
}

func newTestServer() (*Server, *memStore) {
	return newTestServerWithGateway(stubGateway{})
}

func newTestServerWithGateway(gw checkout.Gateway) (*Server, *memStore) {
	st := newMemStore()
	bk := stubBackend{}
	orch := &checkout.Orchestrator{
		Orders:          &orders.Service{Backend: bk},
		Payments:        &payments.Service{Backend: bk},
		Gateway:         gw,
		Cards:           checkout.StubCardGateway{},
		Backend:         bk,
		Store:           st,
		Events:          checkout.NewHub(),
		PollInterval:    time.Millisecond,
		PollMaxAttempts: 3,
	}
	h := NewHandler(st, orch, orch.Events)
	return NewServer(h), st
}

func postCheckout(t *testing.T, srv *Server, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/checkout", bytes.NewBufferString(body))
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, req)
	return rec
}

const validMpesaBody = `{"cartId":3,"addressId":11,"subtotal":1400,"deliveryCost":100,"finalTotal":1500,"deliveryCity":"Nairobi","method":"mpesa","mpesaPhone":"0712345678"}`

func TestStartCheckoutRequiresUser(t *testing.T) {
	srv, _ := newTestServer()

	rec := postCheckout(t, srv, "", validMpesaBody)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestStartCheckoutRejectsBadJSON(t *testing.T) {
	srv, _ := newTestServer()

	rec := postCheckout(t, srv, "7", `{"cartId":`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestStartCheckoutValidation(t *testing.T) {
	cases := map[string]struct {
		body  string
		field string
	}{
		"missing address": {
			body:  `{"cartId":3,"subtotal":1400,"deliveryCost":100,"finalTotal":1500,"method":"cash_on_delivery"}`,
			field: "AddressID",
		},
		"unknown method": {
			body:  `{"cartId":3,"addressId":11,"subtotal":1400,"deliveryCost":100,"finalTotal":1500,"method":"bitcoin"}`,
			field: "Method",
		},
		"bad mpesa phone": {
			body:  `{"cartId":3,"addressId":11,"subtotal":1400,"deliveryCost":100,"finalTotal":1500,"method":"mpesa","mpesaPhone":"12345"}`,
			field: "MpesaPhone",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv, st := newTestServer()

			rec := postCheckout(t, srv, "7", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
			}

			var resp struct {
				Error  string            `json:"error"`
				Fields map[string]string `json:"fields"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Error != "validation_failed" {
				t.Errorf("error = %q", resp.Error)
			}
			found := false
			for k := range resp.Fields {
				if strings.Contains(k, tc.field) {
					found = true
				}
			}
			if !found {
				t.Errorf("fields = %v, want one for %s", resp.Fields, tc.field)
			}

			if len(st.sessions) != 0 {
				t.Error("no session may be created on validation failure")
			}
		})
	}
}

func TestStartCheckoutAllowsDiscountedTotal(t *testing.T) {
	srv, st := newTestServer()

	// A discount makes the final total smaller than subtotal plus
	// delivery; the totals arrive precomputed and are not cross-checked.
	body := `{"cartId":3,"addressId":11,"subtotal":1400,"deliveryCost":100,"finalTotal":1300,"method":"cash_on_delivery"}`
	rec := postCheckout(t, srv, "7", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.FinalTotal != 1300 {
		t.Errorf("finalTotal = %v", resp.FinalTotal)
	}
	if _, err := st.GetSession(context.Background(), resp.SessionID); err != nil {
		t.Errorf("session not stored: %v", err)
	}
}

type blockingGateway struct {
	release chan struct{}
}

func (g blockingGateway) InitiateSTKPush(context.Context, string, int64, string) (*gateway.STKPushResult, error) {
	<-g.release
	return &gateway.STKPushResult{Success: true, CheckoutRequestID: "ws_CO_1"}, nil
}

func (g blockingGateway) QueryStatus(context.Context, string) (*gateway.StatusResult, error) {
	return &gateway.StatusResult{Status: gateway.StatusCompleted}, nil
}

func TestStartCheckoutRejectsDoubleSubmit(t *testing.T) {
	gw := blockingGateway{release: make(chan struct{})}
	srv, st := newTestServerWithGateway(gw)

	first := postCheckout(t, srv, "7", validMpesaBody)
	if first.Code != http.StatusAccepted {
		t.Fatalf("first submit: status = %d, body %s", first.Code, first.Body)
	}

	// Same cart again while the first checkout is still in flight.
	second := postCheckout(t, srv, "7", validMpesaBody)
	if second.Code != http.StatusConflict {
		t.Fatalf("second submit: status = %d, want 409", second.Code)
	}

	st.mu.Lock()
	n := len(st.sessions)
	st.mu.Unlock()
	if n != 1 {
		t.Errorf("sessions for one cart = %d, want 1", n)
	}

	var resp sessionResponse
	if err := json.Unmarshal(first.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}

	close(gw.release)
	deadline := time.After(2 * time.Second)
	for {
		sess, err := st.GetSession(context.Background(), resp.SessionID)
		if err != nil {
			t.Fatal(err)
		}
		if sess.State == models.StateCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("first checkout never completed, state = %s", sess.State)
		case <-time.After(5 * time.Millisecond):
		}
	}

	// The cart is submittable again once the run is over. The claim is
	// released just after the final state lands, so poll briefly.
	deadline = time.After(2 * time.Second)
	for {
		third := postCheckout(t, srv, "7", validMpesaBody)
		if third.Code == http.StatusAccepted {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("resubmit after completion: status = %d", third.Code)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStartCheckoutAcceptedAndRuns(t *testing.T) {
	srv, st := newTestServer()

	rec := postCheckout(t, srv, "7", validMpesaBody)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.SessionID == "" {
		t.Fatal("response carries no session id")
	}
	if resp.State != string(models.StateCreatingOrder) {
		t.Errorf("initial state = %q", resp.State)
	}

	// The orchestration runs detached; wait for it to land.
	deadline := time.After(2 * time.Second)
	for {
		sess, err := st.GetSession(context.Background(), resp.SessionID)
		if err != nil {
			t.Fatal(err)
		}
		if sess.State == models.StateCompleted {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("session never completed, state = %s", sess.State)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestGetSession(t *testing.T) {
	srv, st := newTestServer()

	msg := "order creation rejected"
	orderID := int64(42)
	_ = st.CreateSession(context.Background(), &models.CheckoutSession{
		SessionID:      "sess-1",
		State:          models.StateCreatingItems,
		Method:         models.MethodMpesa,
		FinalTotal:     1500,
		OrderID:        &orderID,
		FailureMessage: &msg,
	})

	req := httptest.NewRequest(http.MethodGet, "/checkout/sess-1", nil)
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.State != string(models.StateCreatingItems) || resp.FailureMessage != msg {
		t.Errorf("resp = %+v", resp)
	}
	if resp.OrderID == nil || *resp.OrderID != 42 {
		t.Errorf("orderId = %v", resp.OrderID)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	srv, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/checkout/absent", nil)
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestRetryConflicts(t *testing.T) {
	srv, st := newTestServer()

	_ = st.CreateSession(context.Background(), &models.CheckoutSession{
		SessionID: "done", State: models.StateCompleted,
	})
	_ = st.CreateSession(context.Background(), &models.CheckoutSession{
		SessionID: "waiting", State: models.StateProcessingPayment, ConfirmationPending: true,
	})

	for _, id := range []string{"done", "waiting"} {
		req := httptest.NewRequest(http.MethodPost, "/checkout/"+id+"/retry", nil)
		rec := httptest.NewRecorder()
		srv.Router.ServeHTTP(rec, req)
		if rec.Code != http.StatusConflict {
			t.Errorf("retry %s: status = %d", id, rec.Code)
		}
	}
}

func TestRetryResumesHaltedSession(t *testing.T) {
	srv, st := newTestServer()

	msg := "cart has no lines"
	orderID := int64(42)
	_ = st.CreateSession(context.Background(), &models.CheckoutSession{
		SessionID:      "halted",
		UserID:         7,
		CartID:         3,
		AddressID:      11,
		FinalTotal:     1500,
		Method:         models.MethodCashOnDelivery,
		State:          models.StateCreatingItems,
		OrderID:        &orderID,
		FailureMessage: &msg,
	})

	req := httptest.NewRequest(http.MethodPost, "/checkout/halted/retry", nil)
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	deadline := time.After(2 * time.Second)
	for {
		sess, err := st.GetSession(context.Background(), "halted")
		if err != nil {
			t.Fatal(err)
		}
		if sess.State == models.StateCompleted {
			if sess.FailureMessage != nil {
				t.Errorf("failure message must clear on success: %v", *sess.FailureMessage)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("session never completed, state = %s", sess.State)
		case <-time.After(5 * time.Millisecond):
		}
	}
}
