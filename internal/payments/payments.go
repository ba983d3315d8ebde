package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"SokoCheckout/internal/backend"
	"SokoCheckout/internal/models"
)

var ErrPaymentCreation = errors.New("payment creation rejected")

// Service manages the payment record tied to an order: one record per
// order, confirmed once the money movement is known-good.
type Service struct {
	Backend backend.API
}

// Create records a payment attempt against an order before any gateway
// interaction happens.
func (s *Service) Create(ctx context.Context, orderID int64, method models.PaymentMethod, amount float64, phone string) (*models.PaymentRecord, error) {
	rec, err := s.Backend.CreatePayment(ctx, backend.CreatePaymentRequest{
		OrderID:    orderID,
		Method:     method,
		Amount:     amount,
		MpesaPhone: phone,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentCreation, err)
	}
	return rec, nil
}

// Confirm marks the payment confirmed. Confirming an already-confirmed
// payment is success from the caller's point of view; by the time this
// runs the money movement has been observed via the gateway.
func (s *Service) Confirm(ctx context.Context, paymentID int64) error {
	err := s.Backend.ConfirmPayment(ctx, paymentID)
	if err == nil {
		return nil
	}
	var se *backend.StatusError
	if errors.As(err, &se) && se.Code == http.StatusConflict {
		return nil
	}
	return fmt.Errorf("confirm payment %d: %w", paymentID, err)
}
