package worker

import (
	"context"
	"log"
	"time"

	"SokoCheckout/internal/checkout"
	"SokoCheckout/internal/gateway"
	"SokoCheckout/internal/models"
)

// SessionSource lists sessions waiting on an out-of-band payment
// confirmation.
type SessionSource interface {
	ListPendingConfirmation(ctx context.Context) ([]*models.CheckoutSession, error)
}

// Worker reconciles confirmation-pending sessions: checkouts whose
// in-request polling hit the attempt bound without observing a terminal
// gateway status. Money may still settle after the bound, so the worker
// keeps querying until the session resolves or ages out.
type Worker struct {
	Sessions      SessionSource
	Gateway       checkout.StatusQuerier
	Orchestrator  *checkout.Orchestrator
	Interval      time.Duration
	MaxSessionAge time.Duration
}

func (w *Worker) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := w.ReconcileOnce(ctx); err != nil {
			log.Printf("reconcile error: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) ReconcileOnce(ctx context.Context) error {
	sessions, err := w.Sessions.ListPendingConfirmation(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return nil
	}
	log.Printf("reconcile pending=%d", len(sessions))

	for _, sess := range sessions {
		if err := w.reconcileSession(ctx, sess); err != nil {
			log.Printf("reconcile session %s failed: %v", sess.SessionID, err)
		}
	}
	return nil
}

func (w *Worker) reconcileSession(ctx context.Context, sess *models.CheckoutSession) error {
	if sess.CheckoutRequestID == nil {
		w.Orchestrator.FinalizeFailed(ctx, sess, "payment confirmation pending but no checkoutRequestID recorded; contact support")
		return nil
	}

	res, err := w.Gateway.QueryStatus(ctx, *sess.CheckoutRequestID)
	if err != nil {
		// Transient here, unlike in-request polling: the next tick
		// retries.
		return err
	}

	switch res.Status {
	case gateway.StatusCompleted:
		log.Printf("session %s settled out-of-band request=%s", sess.SessionID, *sess.CheckoutRequestID)
		w.Orchestrator.FinalizeConfirmed(ctx, sess)
	case gateway.StatusFailed:
		w.Orchestrator.FinalizeFailed(ctx, sess, res.ResultDescription)
	default:
		if w.MaxSessionAge > 0 && time.Since(sess.CreatedAt) > w.MaxSessionAge {
			w.Orchestrator.FinalizeFailed(ctx, sess,
				"payment confirmation never arrived; contact support quoting your order reference")
		}
	}
	return nil
}
