package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"SokoCheckout/internal/checkout"
	"SokoCheckout/internal/models"

	"github.com/gorilla/websocket"
)

func TestStreamEventsSnapshotThenTransitions(t *testing.T) {
	st := newMemStore()
	hub := checkout.NewHub()
	h := NewHandler(st, &checkout.Orchestrator{Events: hub}, hub)
	server := httptest.NewServer(NewServer(h).Router)
	defer server.Close()

	_ = st.CreateSession(context.Background(), &models.CheckoutSession{
		SessionID:  "sess-1",
		State:      models.StateProcessingPayment,
		Method:     models.MethodMpesa,
		FinalTotal: 1500,
	})

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/checkout/sess-1/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var snap sessionResponse
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.State != string(models.StateProcessingPayment) {
		t.Errorf("snapshot state = %q", snap.State)
	}

	// The snapshot arriving means the handler is subscribed.
	hub.Publish(checkout.Event{
		SessionID: "sess-1",
		State:     models.StateCompleted,
		Message:   "order confirmed",
		Terminal:  true,
	})

	var ev checkout.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("event: %v", err)
	}
	if !ev.Terminal || ev.State != models.StateCompleted {
		t.Errorf("event = %+v", ev)
	}

	// The stream ends after a terminal event.
	if err := conn.ReadJSON(&ev); err == nil {
		t.Error("expected the connection to close after the terminal event")
	}
}

func TestStreamEventsUnknownSession(t *testing.T) {
	st := newMemStore()
	hub := checkout.NewHub()
	h := NewHandler(st, &checkout.Orchestrator{Events: hub}, hub)
	server := httptest.NewServer(NewServer(h).Router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/checkout/absent/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		conn.Close()
		t.Fatal("expected the handshake to fail")
	}
	if resp == nil || resp.StatusCode != 404 {
		t.Errorf("handshake response = %+v", resp)
	}
}
