package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"SokoCheckout/internal/models"
)

// API is the slice of the storefront backend this service consumes. The
// backend owns orders, order items, payments and carts; we only drive
// their lifecycle during checkout.
type API interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error
	CreateOrderItem(ctx context.Context, item models.OrderItem) error
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*models.PaymentRecord, error)
	ConfirmPayment(ctx context.Context, paymentID int64) error
	ListCartItems(ctx context.Context, cartID int64) ([]models.CartItem, error)
	ClearCart(ctx context.Context, cartID int64) error
}

type CreateOrderRequest struct {
	UserID      int64              `json:"userId"`
	CartID      int64              `json:"cartId"`
	AddressID   int64              `json:"addressId"`
	TotalAmount float64            `json:"totalAmount"`
	Status      models.OrderStatus `json:"status"`
	Notes       string             `json:"notes,omitempty"`
}

type CreatePaymentRequest struct {
	OrderID    int64                `json:"orderId"`
	Method     models.PaymentMethod `json:"method"`
	Amount     float64              `json:"amount"`
	MpesaPhone string               `json:"mpesaPhone,omitempty"`
}

// StatusError is a non-2xx backend response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend http status %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("backend http status %d", e.Code)
}

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	var order models.Order
	if err := c.doJSON(ctx, http.MethodPost, "/orders", req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	body := map[string]any{"status": status}
	return c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/orders/%d", orderID), body, nil)
}

func (c *Client) CreateOrderItem(ctx context.Context, item models.OrderItem) error {
	return c.doJSON(ctx, http.MethodPost, "/order-items", item, nil)
}

func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*models.PaymentRecord, error) {
	var rec models.PaymentRecord
	if err := c.doJSON(ctx, http.MethodPost, "/payments", req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) ConfirmPayment(ctx context.Context, paymentID int64) error {
	return c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/payments/%d/confirm", paymentID), nil, nil)
}

func (c *Client) ListCartItems(ctx context.Context, cartID int64) ([]models.CartItem, error) {
	var items []models.CartItem
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/cart-items/cart/%d", cartID), nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) ClearCart(ctx context.Context, cartID int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/carts/%d/clear", cartID), nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return &StatusError{Code: resp.StatusCode, Message: extractMessage(data)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// extractMessage pulls a {"message": "..."} or {"error": "..."} body if
// present, otherwise returns the trimmed raw body.
func extractMessage(data []byte) string {
	var env struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err == nil {
		if env.Message != "" {
			return env.Message
		}
		if env.Error != "" {
			return env.Error
		}
	}
	return strings.TrimSpace(string(data))
}
