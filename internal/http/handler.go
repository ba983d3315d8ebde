package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"SokoCheckout/internal/checkout"
	"SokoCheckout/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SessionStore is the slice of the session store the HTTP layer needs.
type SessionStore interface {
	CreateSession(ctx context.Context, s *models.CheckoutSession) error
	GetSession(ctx context.Context, sessionID string) (*models.CheckoutSession, error)
}

type Handler struct {
	Store        SessionStore
	Orchestrator *checkout.Orchestrator
	Events       *checkout.Hub

	validate *validatorInstance
}

func NewHandler(st SessionStore, orch *checkout.Orchestrator, events *checkout.Hub) *Handler {
	return &Handler{
		Store:        st,
		Orchestrator: orch,
		Events:       events,
		validate:     newValidator(),
	}
}

type checkoutRequest struct {
	CartID       int64   `json:"cartId" validate:"required"`
	AddressID    int64   `json:"addressId" validate:"required"`
	Subtotal     float64 `json:"subtotal" validate:"gte=0"`
	DeliveryCost float64 `json:"deliveryCost" validate:"gte=0"`
	FinalTotal   float64 `json:"finalTotal" validate:"required,gt=0"`
	DeliveryCity string  `json:"deliveryCity"`
	Method       string  `json:"method" validate:"required,oneof=mpesa card cash_on_delivery"`
	MpesaPhone   string  `json:"mpesaPhone"`
}

type sessionResponse struct {
	SessionID           string  `json:"sessionId"`
	State               string  `json:"state"`
	Method              string  `json:"method"`
	FinalTotal          float64 `json:"finalTotal"`
	OrderID             *int64  `json:"orderId,omitempty"`
	PaymentID           *int64  `json:"paymentId,omitempty"`
	CheckoutRequestID   string  `json:"checkoutRequestID,omitempty"`
	FailureMessage      string  `json:"failureMessage,omitempty"`
	ConfirmationPending bool    `json:"confirmationPending"`
}

func sessionToResponse(s *models.CheckoutSession) sessionResponse {
	resp := sessionResponse{
		SessionID:           s.SessionID,
		State:               string(s.State),
		Method:              string(s.Method),
		FinalTotal:          s.FinalTotal,
		OrderID:             s.OrderID,
		PaymentID:           s.PaymentID,
		ConfirmationPending: s.ConfirmationPending,
	}
	if s.CheckoutRequestID != nil {
		resp.CheckoutRequestID = *s.CheckoutRequestID
	}
	if s.FailureMessage != nil {
		resp.FailureMessage = *s.FailureMessage
	}
	return resp
}

// StartCheckout validates the checkout payload locally, creates a
// session and launches the orchestration. Validation failures never
// reach the backend or the gateway.
func (h *Handler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.Header.Get("X-User-Id"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusUnauthorized, "missing user id")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if fields := h.validate.check(req); len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation_failed",
			"fields": fields,
		})
		return
	}

	sess := &models.CheckoutSession{
		SessionID:    uuid.NewString(),
		UserID:       userID,
		CartID:       req.CartID,
		AddressID:    req.AddressID,
		Subtotal:     req.Subtotal,
		DeliveryCost: req.DeliveryCost,
		FinalTotal:   req.FinalTotal,
		DeliveryCity: req.DeliveryCity,
		Method:       models.PaymentMethod(req.Method),
		MpesaPhone:   req.MpesaPhone,
		State:        models.StateCreatingOrder,
	}

	// Claim before the session row exists so a double-clicked submit
	// cannot run two checkouts for the same cart.
	if !h.Orchestrator.Claim(sess) {
		writeError(w, http.StatusConflict, "checkout already in progress for this cart")
		return
	}

	if err := h.Store.CreateSession(r.Context(), sess); err != nil {
		h.Orchestrator.Release(sess)
		writeError(w, http.StatusInternalServerError, "create checkout session failed")
		return
	}

	go h.runClaimed(sess)

	writeJSON(w, http.StatusAccepted, sessionToResponse(sess))
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	sess, err := h.Store.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "checkout session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get checkout session failed")
		return
	}
	writeJSON(w, http.StatusOK, sessionToResponse(sess))
}

// RetryCheckout re-triggers a halted session from its recorded state.
// The orchestrator never auto-retries; this is the user's explicit
// re-trigger.
func (h *Handler) RetryCheckout(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	sess, err := h.Store.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "checkout session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get checkout session failed")
		return
	}

	if sess.State == models.StateCompleted {
		writeError(w, http.StatusConflict, "checkout already completed")
		return
	}
	if sess.ConfirmationPending {
		writeError(w, http.StatusConflict, "payment confirmation pending")
		return
	}
	if h.Orchestrator.Running(sessionID) {
		writeError(w, http.StatusConflict, "checkout already in progress")
		return
	}

	go h.runDetached(sess)

	writeJSON(w, http.StatusAccepted, sessionToResponse(sess))
}

// runDetached drives a session outside the request lifetime; polling can
// take minutes.
func (h *Handler) runDetached(sess *models.CheckoutSession) {
	if err := h.Orchestrator.Run(context.Background(), sess); err != nil {
		if errors.Is(err, checkout.ErrAlreadyRunning) {
			return
		}
		log.Printf("checkout %s: %v", sess.SessionID, err)
	}
}

// runClaimed is runDetached for a session the request path already
// claimed.
func (h *Handler) runClaimed(sess *models.CheckoutSession) {
	if err := h.Orchestrator.RunClaimed(context.Background(), sess); err != nil {
		log.Printf("checkout %s: %v", sess.SessionID, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
