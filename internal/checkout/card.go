package checkout

import (
	"context"
	"fmt"
)

// CardGateway authorizes a card payment for an order. No card-network
// integration exists today; the stub stands in so the orchestrator keeps
// an explicit seam instead of silently auto-confirming inline.
type CardGateway interface {
	Authorize(ctx context.Context, orderID int64, amount float64) (reference string, err error)
}

// StubCardGateway authorizes every charge immediately.
type StubCardGateway struct{}

func (StubCardGateway) Authorize(_ context.Context, orderID int64, _ float64) (string, error) {
	return fmt.Sprintf("CARD-STUB-%d", orderID), nil
}
