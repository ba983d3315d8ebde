package orders

import (
	"context"
	"errors"
	"fmt"

	"SokoCheckout/internal/backend"
	"SokoCheckout/internal/models"

	"golang.org/x/sync/errgroup"
)

var (
	ErrMissingAddress = errors.New("missing delivery address")
	ErrEmptyCart      = errors.New("cart has no lines")

	// ErrOrderCreation and ErrItemCreation categorize backend rejections
	// so the orchestrator can halt at the owning step.
	ErrOrderCreation = errors.New("order creation rejected")
	ErrItemCreation  = errors.New("order item creation rejected")
)

// Service assembles an order from checkout details: the order record
// first, then one order-item record per cart line.
type Service struct {
	Backend backend.API
}

// CreateOrder creates the order record for one checkout attempt. The
// order starts pending; payment processing moves it forward.
func (s *Service) CreateOrder(ctx context.Context, userID int64, info models.PaymentInfo, notes string) (*models.Order, error) {
	if info.AddressID == 0 {
		return nil, ErrMissingAddress
	}

	order, err := s.Backend.CreateOrder(ctx, backend.CreateOrderRequest{
		UserID:      userID,
		CartID:      info.CartID,
		AddressID:   info.AddressID,
		TotalAmount: info.FinalTotal,
		Status:      models.OrderPending,
		Notes:       notes,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderCreation, err)
	}
	return order, nil
}

// LoadCartLines fetches the cart lines that will become order items. An
// order must have at least one line before payment processing begins.
func (s *Service) LoadCartLines(ctx context.Context, cartID int64) ([]models.CartItem, error) {
	lines, err := s.Backend.ListCartItems(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("load cart lines: %w", err)
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	return lines, nil
}

// CreateOrderItems issues one create call per cart line concurrently and
// joins them. All must succeed for the step to count; there is no
// compensating delete for lines that did land, the partially-created
// order is left for backend cleanup.
func (s *Service) CreateOrderItems(ctx context.Context, orderID int64, lines []models.CartItem) error {
	if len(lines) == 0 {
		return ErrEmptyCart
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, line := range lines {
		item := models.OrderItem{
			OrderID:   orderID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.Price,
			Discount:  line.Discount,
		}
		g.Go(func() error {
			if err := s.Backend.CreateOrderItem(ctx, item); err != nil {
				return fmt.Errorf("%w (product %d): %v", ErrItemCreation, item.ProductID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// UpdateStatus moves the order to a new lifecycle status. Callers in the
// post-payment path treat a failure here as non-fatal.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	if err := s.Backend.UpdateOrderStatus(ctx, orderID, status); err != nil {
		return fmt.Errorf("update order %d to %s: %w", orderID, status, err)
	}
	return nil
}
