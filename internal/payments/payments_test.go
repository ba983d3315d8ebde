package payments

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"SokoCheckout/internal/backend"
	"SokoCheckout/internal/models"
)

type fakeBackend struct {
	backend.API

	createErr  error
	confirmErr error
	created    []backend.CreatePaymentRequest
	confirmed  []int64
}

func (f *fakeBackend) CreatePayment(_ context.Context, req backend.CreatePaymentRequest) (*models.PaymentRecord, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, req)
	return &models.PaymentRecord{
		PaymentID: 9,
		OrderID:   req.OrderID,
		Method:    req.Method,
		Amount:    req.Amount,
	}, nil
}

func (f *fakeBackend) ConfirmPayment(_ context.Context, paymentID int64) error {
	if f.confirmErr != nil {
		return f.confirmErr
	}
	f.confirmed = append(f.confirmed, paymentID)
	return nil
}

func TestCreate(t *testing.T) {
	fb := &fakeBackend{}
	s := &Service{Backend: fb}

	rec, err := s.Create(context.Background(), 42, models.MethodMpesa, 1500, "254712345678")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.OrderID != 42 || rec.Method != models.MethodMpesa {
		t.Errorf("record = %+v", rec)
	}
	if fb.created[0].MpesaPhone != "254712345678" {
		t.Errorf("phone not forwarded: %+v", fb.created[0])
	}
}

func TestCreateWrapsRejection(t *testing.T) {
	fb := &fakeBackend{createErr: errors.New("duplicate payment")}
	s := &Service{Backend: fb}

	_, err := s.Create(context.Background(), 42, models.MethodCard, 1500, "")
	if !errors.Is(err, ErrPaymentCreation) {
		t.Fatalf("expected ErrPaymentCreation, got %v", err)
	}
}

func TestConfirmIdempotent(t *testing.T) {
	// An already-confirmed answer from the backend is success for the
	// caller.
	fb := &fakeBackend{confirmErr: &backend.StatusError{Code: http.StatusConflict, Message: "already confirmed"}}
	s := &Service{Backend: fb}

	if err := s.Confirm(context.Background(), 9); err != nil {
		t.Fatalf("Confirm should swallow 409: %v", err)
	}
}

func TestConfirmOtherErrorsSurface(t *testing.T) {
	fb := &fakeBackend{confirmErr: &backend.StatusError{Code: http.StatusInternalServerError}}
	s := &Service{Backend: fb}

	if err := s.Confirm(context.Background(), 9); err == nil {
		t.Fatal("expected error on 500")
	}
}
