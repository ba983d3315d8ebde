package store

import (
	"context"
	"database/sql"

	"SokoCheckout/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists checkout sessions. The row is a fallback copy of
// orchestrator state, written at every transition; order and payment
// truth lives in the storefront backend.
type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

const sessionColumns = `
	session_id, user_id, cart_id, address_id,
	subtotal, delivery_cost, final_total, delivery_city,
	method, mpesa_phone, state, order_id, payment_id,
	checkout_request_id, failure_message, confirmation_pending,
	created_at, updated_at
`

func (s *Store) CreateSession(ctx context.Context, sess *models.CheckoutSession) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO checkout_sessions (
			session_id, user_id, cart_id, address_id,
			subtotal, delivery_cost, final_total, delivery_city,
			method, mpesa_phone, state, order_id, payment_id,
			checkout_request_id, failure_message, confirmation_pending
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`,
		sess.SessionID,
		sess.UserID,
		sess.CartID,
		sess.AddressID,
		sess.Subtotal,
		sess.DeliveryCost,
		sess.FinalTotal,
		sess.DeliveryCity,
		sess.Method,
		sess.MpesaPhone,
		sess.State,
		sess.OrderID,
		sess.PaymentID,
		sess.CheckoutRequestID,
		sess.FailureMessage,
		sess.ConfirmationPending,
	)
	return err
}

func (s *Store) UpdateSession(ctx context.Context, sess *models.CheckoutSession) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE checkout_sessions
		SET state=$2, order_id=$3, payment_id=$4, checkout_request_id=$5,
			failure_message=$6, confirmation_pending=$7, updated_at=now()
		WHERE session_id=$1
	`,
		sess.SessionID,
		sess.State,
		sess.OrderID,
		sess.PaymentID,
		sess.CheckoutRequestID,
		sess.FailureMessage,
		sess.ConfirmationPending,
	)
	return err
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*models.CheckoutSession, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM checkout_sessions WHERE session_id=$1
	`, sessionID)
	return scanSession(row)
}

// ListPendingConfirmation returns sessions whose polling timed out and
// are waiting on an out-of-band gateway outcome, oldest first.
func (s *Store) ListPendingConfirmation(ctx context.Context) ([]*models.CheckoutSession, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM checkout_sessions
		WHERE confirmation_pending AND state='processing_payment'
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.CheckoutSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.CheckoutSession, error) {
	var sess models.CheckoutSession
	var mpesaPhone sql.NullString
	var orderID sql.NullInt64
	var paymentID sql.NullInt64
	var checkoutRequestID sql.NullString
	var failureMessage sql.NullString

	err := row.Scan(
		&sess.SessionID,
		&sess.UserID,
		&sess.CartID,
		&sess.AddressID,
		&sess.Subtotal,
		&sess.DeliveryCost,
		&sess.FinalTotal,
		&sess.DeliveryCity,
		&sess.Method,
		&mpesaPhone,
		&sess.State,
		&orderID,
		&paymentID,
		&checkoutRequestID,
		&failureMessage,
		&sess.ConfirmationPending,
		&sess.CreatedAt,
		&sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if mpesaPhone.Valid {
		sess.MpesaPhone = mpesaPhone.String
	}
	if orderID.Valid {
		sess.OrderID = &orderID.Int64
	}
	if paymentID.Valid {
		sess.PaymentID = &paymentID.Int64
	}
	if checkoutRequestID.Valid {
		sess.CheckoutRequestID = &checkoutRequestID.String
	}
	if failureMessage.Valid {
		sess.FailureMessage = &failureMessage.String
	}
	return &sess, nil
}
