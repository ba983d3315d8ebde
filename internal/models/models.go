package models

import "time"

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
	OrderFailed     OrderStatus = "failed"
)

type PaymentMethod string

const (
	MethodMpesa          PaymentMethod = "mpesa"
	MethodCard           PaymentMethod = "card"
	MethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// CheckoutState is the orchestrator position within one checkout attempt.
// Transitions are strictly forward; a halted session keeps the state it
// failed in so a retry resumes from the same step.
type CheckoutState string

const (
	StateCreatingOrder     CheckoutState = "creating_order"
	StateCreatingItems     CheckoutState = "creating_items"
	StateProcessingPayment CheckoutState = "processing_payment"
	StateCompleted         CheckoutState = "completed"
)

// PaymentInfo is the immutable summary carried from the checkout-details
// step into the orchestrator.
type PaymentInfo struct {
	CartID       int64   `json:"cartId"`
	AddressID    int64   `json:"addressId"`
	Subtotal     float64 `json:"subtotal"`
	DeliveryCost float64 `json:"deliveryCost"`
	FinalTotal   float64 `json:"finalTotal"`
	DeliveryCity string  `json:"deliveryCity"`
}

type Order struct {
	OrderID     int64       `json:"orderId"`
	UserID      int64       `json:"userId"`
	CartID      int64       `json:"cartId"`
	AddressID   int64       `json:"addressId"`
	TotalAmount float64     `json:"totalAmount"`
	Status      OrderStatus `json:"status"`
	Notes       string      `json:"notes,omitempty"`
}

type OrderItem struct {
	OrderID   int64   `json:"orderId"`
	ProductID int64   `json:"productId"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	Discount  float64 `json:"discount"`
}

// CartItem is one line fetched from the backend cart before conversion
// into an OrderItem.
type CartItem struct {
	ProductID int64   `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
	Discount  float64 `json:"discount"`
}

type PaymentRecord struct {
	PaymentID            int64         `json:"paymentId"`
	OrderID              int64         `json:"orderId"`
	Method               PaymentMethod `json:"method"`
	Amount               float64       `json:"amount"`
	MpesaPhone           string        `json:"mpesaPhone,omitempty"`
	TransactionReference string        `json:"transactionReference,omitempty"`
	IsConfirmed          bool          `json:"isConfirmed"`
}

// CheckoutSession is the durable copy of one checkout attempt. It is
// written at every state transition; the backend stays the source of
// truth for orders and payments.
type CheckoutSession struct {
	SessionID           string
	UserID              int64
	CartID              int64
	AddressID           int64
	Subtotal            float64
	DeliveryCost        float64
	FinalTotal          float64
	DeliveryCity        string
	Method              PaymentMethod
	MpesaPhone          string
	State               CheckoutState
	OrderID             *int64
	PaymentID           *int64
	CheckoutRequestID   *string
	FailureMessage      *string
	ConfirmationPending bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// PaymentInfo rebuilds the immutable checkout summary held on the session.
func (s *CheckoutSession) PaymentInfo() PaymentInfo {
	return PaymentInfo{
		CartID:       s.CartID,
		AddressID:    s.AddressID,
		Subtotal:     s.Subtotal,
		DeliveryCost: s.DeliveryCost,
		FinalTotal:   s.FinalTotal,
		DeliveryCity: s.DeliveryCity,
	}
}
