package backend

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"SokoCheckout/internal/models"
)

// MultiClient rotates across several backend base URLs. A request is
// retried on the next endpoint after a transport failure; the preferred
// endpoint only changes once its consecutive failure count reaches the
// threshold.
type MultiClient struct {
	clients       []*Client
	index         int
	failCount     int
	failThreshold int
	mu            sync.Mutex
}

func NewMultiClient(baseURLs []string, timeout time.Duration, failThreshold int) (*MultiClient, error) {
	list := sanitizeURLs(baseURLs)
	if len(list) == 0 {
		return nil, errors.New("backend base urls is empty")
	}
	if failThreshold <= 0 {
		failThreshold = 3
	}
	clients := make([]*Client, 0, len(list))
	for _, u := range list {
		clients = append(clients, NewClient(u, timeout))
	}
	return &MultiClient{
		clients:       clients,
		failThreshold: failThreshold,
	}, nil
}

func (m *MultiClient) BaseURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clients[m.index].baseURL
}

func (m *MultiClient) do(fn func(*Client) error) error {
	start := m.currentIndex()

	var lastErr error
	for attempt := 0; attempt < len(m.clients); attempt++ {
		idx := (start + attempt) % len(m.clients)
		err := fn(m.clients[idx])
		if err == nil {
			m.resetFailures(idx)
			return nil
		}
		// A backend status response means the endpoint is healthy and
		// rejected the request; failing over would not change the answer.
		var se *StatusError
		if errors.As(err, &se) {
			m.resetFailures(idx)
			return err
		}
		lastErr = err
		m.noteFailure(idx)
		if m.shouldRotate() {
			m.rotate()
		}
	}
	return lastErr
}

func (m *MultiClient) shouldRotate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failCount >= m.failThreshold
}

func (m *MultiClient) currentIndex() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index
}

func (m *MultiClient) resetFailures(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == idx {
		m.failCount = 0
	}
}

func (m *MultiClient) noteFailure(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == idx {
		m.failCount++
	}
}

func (m *MultiClient) rotate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.clients) < 2 {
		m.failCount = 0
		return
	}
	m.index = (m.index + 1) % len(m.clients)
	m.failCount = 0
}

func (m *MultiClient) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	var order *models.Order
	err := m.do(func(c *Client) error {
		out, err := c.CreateOrder(ctx, req)
		if err != nil {
			return err
		}
		order = out
		return nil
	})
	return order, err
}

func (m *MultiClient) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	return m.do(func(c *Client) error {
		return c.UpdateOrderStatus(ctx, orderID, status)
	})
}

func (m *MultiClient) CreateOrderItem(ctx context.Context, item models.OrderItem) error {
	return m.do(func(c *Client) error {
		return c.CreateOrderItem(ctx, item)
	})
}

func (m *MultiClient) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*models.PaymentRecord, error) {
	var rec *models.PaymentRecord
	err := m.do(func(c *Client) error {
		out, err := c.CreatePayment(ctx, req)
		if err != nil {
			return err
		}
		rec = out
		return nil
	})
	return rec, err
}

func (m *MultiClient) ConfirmPayment(ctx context.Context, paymentID int64) error {
	return m.do(func(c *Client) error {
		return c.ConfirmPayment(ctx, paymentID)
	})
}

func (m *MultiClient) ListCartItems(ctx context.Context, cartID int64) ([]models.CartItem, error) {
	var items []models.CartItem
	err := m.do(func(c *Client) error {
		out, err := c.ListCartItems(ctx, cartID)
		if err != nil {
			return err
		}
		items = out
		return nil
	})
	return items, err
}

func (m *MultiClient) ClearCart(ctx context.Context, cartID int64) error {
	return m.do(func(c *Client) error {
		return c.ClearCart(ctx, cartID)
	})
}

func sanitizeURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		out = append(out, u)
	}
	return out
}
