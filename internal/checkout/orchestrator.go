package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"sync"
	"time"

	"SokoCheckout/internal/backend"
	"SokoCheckout/internal/gateway"
	"SokoCheckout/internal/models"
	"SokoCheckout/internal/orders"
	"SokoCheckout/internal/payments"
)

var (
	// ErrAlreadyRunning guards against double submission: exactly one
	// orchestration per session may be in flight.
	ErrAlreadyRunning = errors.New("checkout already in progress")

	ErrPaymentFailed = errors.New("payment failed")
)

// Gateway is the mobile-money surface the orchestrator drives.
type Gateway interface {
	InitiateSTKPush(ctx context.Context, phone string, amount int64, orderReference string) (*gateway.STKPushResult, error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (*gateway.StatusResult, error)
}

// SessionStore persists session snapshots at each transition. The store
// is a fallback cache; a persistence failure is logged, never fatal.
type SessionStore interface {
	UpdateSession(ctx context.Context, s *models.CheckoutSession) error
}

// Orchestrator sequences one checkout attempt: order creation, item
// batch, payment processing, confirmation, cart clear. Each step only
// runs after the previous one succeeded; a failure halts the session in
// its current state with a user-visible message, and a retry resumes
// from that state.
type Orchestrator struct {
	Orders   *orders.Service
	Payments *payments.Service
	Gateway  Gateway
	Cards    CardGateway
	Backend  backend.API
	Store    SessionStore
	Events   *Hub

	PollInterval    time.Duration
	PollMaxAttempts int

	mu            sync.Mutex
	inflight      map[string]struct{}
	inflightCarts map[int64]struct{}
}

// Claim reserves the session and its cart for one orchestration. The
// HTTP layer claims before minting a session row, so a double-clicked
// submit cannot start a second checkout for the same cart. Run claims
// on its own when the caller has not.
func (o *Orchestrator) Claim(s *models.CheckoutSession) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight == nil {
		o.inflight = make(map[string]struct{})
		o.inflightCarts = make(map[int64]struct{})
	}
	if _, ok := o.inflight[s.SessionID]; ok {
		return false
	}
	if _, ok := o.inflightCarts[s.CartID]; ok {
		return false
	}
	o.inflight[s.SessionID] = struct{}{}
	o.inflightCarts[s.CartID] = struct{}{}
	return true
}

// Release undoes a Claim whose run is over or never started.
func (o *Orchestrator) Release(s *models.CheckoutSession) {
	o.mu.Lock()
	delete(o.inflight, s.SessionID)
	delete(o.inflightCarts, s.CartID)
	o.mu.Unlock()
}

// Running reports whether the session currently has an active
// orchestration.
func (o *Orchestrator) Running(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inflight[sessionID]
	return ok
}

// Run drives the session from its recorded state to completion or the
// first failure. Safe to call again after a halt; the session resumes
// from the state it failed in.
func (o *Orchestrator) Run(ctx context.Context, s *models.CheckoutSession) error {
	if !o.Claim(s) {
		return ErrAlreadyRunning
	}
	return o.RunClaimed(ctx, s)
}

// RunClaimed drives a session already reserved with Claim and releases
// the claim when the run ends.
func (o *Orchestrator) RunClaimed(ctx context.Context, s *models.CheckoutSession) error {
	defer o.Release(s)

	s.FailureMessage = nil

	for {
		switch s.State {
		case models.StateCreatingOrder:
			if err := o.createOrder(ctx, s); err != nil {
				return o.halt(ctx, s, err)
			}
			o.transition(ctx, s, models.StateCreatingItems)

		case models.StateCreatingItems:
			if err := o.createItems(ctx, s); err != nil {
				return o.halt(ctx, s, err)
			}
			o.transition(ctx, s, models.StateProcessingPayment)

		case models.StateProcessingPayment:
			if err := o.processPayment(ctx, s); err != nil {
				return o.halt(ctx, s, err)
			}
			if s.ConfirmationPending {
				// Soft stop: the reconciliation worker finishes this one.
				return nil
			}
			o.transition(ctx, s, models.StateCompleted)

		case models.StateCompleted:
			o.finish(ctx, s)
			return nil

		default:
			return o.halt(ctx, s, fmt.Errorf("unknown checkout state %q", s.State))
		}
	}
}

func (o *Orchestrator) createOrder(ctx context.Context, s *models.CheckoutSession) error {
	notes := ""
	if s.DeliveryCity != "" {
		notes = "delivery: " + s.DeliveryCity
	}
	order, err := o.Orders.CreateOrder(ctx, s.UserID, s.PaymentInfo(), notes)
	if err != nil {
		return err
	}
	s.OrderID = &order.OrderID
	o.persist(ctx, s)
	return nil
}

func (o *Orchestrator) createItems(ctx context.Context, s *models.CheckoutSession) error {
	lines, err := o.Orders.LoadCartLines(ctx, s.CartID)
	if err != nil {
		return err
	}
	// The order already exists at this point; if the batch fails it is
	// left orphaned for backend cleanup.
	return o.Orders.CreateOrderItems(ctx, *s.OrderID, lines)
}

func (o *Orchestrator) processPayment(ctx context.Context, s *models.CheckoutSession) error {
	switch s.Method {
	case models.MethodMpesa:
		return o.processMpesa(ctx, s)
	case models.MethodCard:
		return o.processCard(ctx, s)
	case models.MethodCashOnDelivery:
		return o.processCashOnDelivery(ctx, s)
	default:
		return fmt.Errorf("unsupported payment method %q", s.Method)
	}
}

func (o *Orchestrator) processMpesa(ctx context.Context, s *models.CheckoutSession) error {
	phone := gateway.FormatPhoneNumber(s.MpesaPhone)

	if s.PaymentID == nil {
		rec, err := o.Payments.Create(ctx, *s.OrderID, models.MethodMpesa, s.FinalTotal, phone)
		if err != nil {
			return err
		}
		s.PaymentID = &rec.PaymentID
		o.persist(ctx, s)
	}

	// The gateway deals in whole shillings.
	amount := int64(math.Round(s.FinalTotal))
	push, err := o.Gateway.InitiateSTKPush(ctx, phone, amount, strconv.FormatInt(*s.OrderID, 10))
	if err != nil {
		return err
	}
	s.CheckoutRequestID = &push.CheckoutRequestID
	o.persist(ctx, s)
	o.publish(s, push.CustomerMessage, "", false)

	poller := &Poller{Gateway: o.Gateway, Interval: o.PollInterval, MaxAttempts: o.PollMaxAttempts}
	res, err := poller.Wait(ctx, push.CheckoutRequestID)
	if err != nil {
		return err
	}

	switch res.Outcome {
	case OutcomeCompleted:
		o.settleConfirmed(ctx, s)
		return nil

	case OutcomeFailed:
		if err := o.Orders.UpdateStatus(ctx, *s.OrderID, models.OrderFailed); err != nil {
			log.Printf("session %s: mark order failed: %v", s.SessionID, err)
		}
		return fmt.Errorf("%w: %s", ErrPaymentFailed, res.Description)

	default: // OutcomeTimedOut
		s.ConfirmationPending = true
		o.persist(ctx, s)
		o.publish(s, fmt.Sprintf("payment confirmation pending for order %d; the order will be updated once the payment settles", *s.OrderID), "", false)
		return nil
	}
}

func (o *Orchestrator) processCard(ctx context.Context, s *models.CheckoutSession) error {
	if s.PaymentID == nil {
		rec, err := o.Payments.Create(ctx, *s.OrderID, models.MethodCard, s.FinalTotal, "")
		if err != nil {
			return err
		}
		s.PaymentID = &rec.PaymentID
		o.persist(ctx, s)
	}

	ref, err := o.Cards.Authorize(ctx, *s.OrderID, s.FinalTotal)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
	log.Printf("session %s: card authorized ref=%s", s.SessionID, ref)
	o.settleConfirmed(ctx, s)
	return nil
}

func (o *Orchestrator) processCashOnDelivery(ctx context.Context, s *models.CheckoutSession) error {
	if s.PaymentID != nil {
		return nil
	}
	rec, err := o.Payments.Create(ctx, *s.OrderID, models.MethodCashOnDelivery, s.FinalTotal, "")
	if err != nil {
		return err
	}
	s.PaymentID = &rec.PaymentID
	o.persist(ctx, s)
	return nil
}

// settleConfirmed runs the post-confirmation tail: confirm the payment
// record and move the order to processing. Both are best-effort; the
// money movement is already known-good.
func (o *Orchestrator) settleConfirmed(ctx context.Context, s *models.CheckoutSession) {
	if err := o.Payments.Confirm(ctx, *s.PaymentID); err != nil {
		log.Printf("session %s: %v", s.SessionID, err)
	}
	if err := o.Orders.UpdateStatus(ctx, *s.OrderID, models.OrderProcessing); err != nil {
		log.Printf("session %s: %v", s.SessionID, err)
	}
}

// FinalizeConfirmed completes a confirmation-pending session whose
// payment the reconciliation worker observed as completed.
func (o *Orchestrator) FinalizeConfirmed(ctx context.Context, s *models.CheckoutSession) {
	o.settleConfirmed(ctx, s)
	s.ConfirmationPending = false
	o.transition(ctx, s, models.StateCompleted)
	o.finish(ctx, s)
}

// FinalizeFailed records a terminal gateway failure for a
// confirmation-pending session.
func (o *Orchestrator) FinalizeFailed(ctx context.Context, s *models.CheckoutSession, description string) {
	if s.OrderID != nil {
		if err := o.Orders.UpdateStatus(ctx, *s.OrderID, models.OrderFailed); err != nil {
			log.Printf("session %s: mark order failed: %v", s.SessionID, err)
		}
	}
	s.ConfirmationPending = false
	msg := description
	if msg == "" {
		msg = "payment failed"
	}
	s.FailureMessage = &msg
	o.persist(ctx, s)
	o.publish(s, "", msg, true)
}

func (o *Orchestrator) finish(ctx context.Context, s *models.CheckoutSession) {
	if err := o.Backend.ClearCart(ctx, s.CartID); err != nil {
		log.Printf("session %s: clear cart %d: %v", s.SessionID, s.CartID, err)
	}
	o.publish(s, "order confirmed", "", true)
}

func (o *Orchestrator) transition(ctx context.Context, s *models.CheckoutSession, next models.CheckoutState) {
	s.State = next
	s.FailureMessage = nil
	o.persist(ctx, s)
	o.publish(s, "", "", false)
}

func (o *Orchestrator) halt(ctx context.Context, s *models.CheckoutSession, err error) error {
	msg := err.Error()
	s.FailureMessage = &msg
	o.persist(ctx, s)
	o.publish(s, "", msg, true)
	log.Printf("session %s halted in %s: %v", s.SessionID, s.State, err)
	return err
}

func (o *Orchestrator) persist(ctx context.Context, s *models.CheckoutSession) {
	if o.Store == nil {
		return
	}
	s.UpdatedAt = time.Now().UTC()
	if err := o.Store.UpdateSession(ctx, s); err != nil {
		log.Printf("session %s: persist: %v", s.SessionID, err)
	}
}

func (o *Orchestrator) publish(s *models.CheckoutSession, message, errMsg string, terminal bool) {
	if o.Events == nil {
		return
	}
	o.Events.Publish(Event{
		SessionID: s.SessionID,
		State:     s.State,
		OrderID:   s.OrderID,
		Message:   message,
		Error:     errMsg,
		Terminal:  terminal,
	})
}
