package checkout

import (
	"context"
	"fmt"
	"log"
	"time"

	"SokoCheckout/internal/gateway"
)

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
)

// PollResult is the terminal observation of one STK push.
type PollResult struct {
	Outcome     Outcome
	Description string
	Receipt     string
	Attempts    int
}

// StatusQuerier is the slice of the gateway the poller needs.
type StatusQuerier interface {
	QueryStatus(ctx context.Context, checkoutRequestID string) (*gateway.StatusResult, error)
}

// Poller repeatedly queries the gateway for a checkoutRequestID at a
// fixed interval, bounded by MaxAttempts. It stops on the first terminal
// status and never issues another query after one is observed.
type Poller struct {
	Gateway     StatusQuerier
	Interval    time.Duration
	MaxAttempts int
}

// Wait blocks until the push resolves, fails, or the attempt bound is
// exceeded. A query-level transport failure is reported as a failed
// outcome rather than retried: money may have moved without us being
// able to observe it, which support has to untangle using the order
// reference. The only error return is context cancellation.
func (p *Poller) Wait(ctx context.Context, checkoutRequestID string) (PollResult, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 24
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := p.Gateway.QueryStatus(ctx, checkoutRequestID)
		if err != nil {
			if ctx.Err() != nil {
				return PollResult{}, ctx.Err()
			}
			log.Printf("poll query failed request=%s attempt=%d: %v", checkoutRequestID, attempt, err)
			return PollResult{
				Outcome:     OutcomeFailed,
				Description: "payment status could not be verified; contact support quoting your order reference",
				Attempts:    attempt,
			}, nil
		}

		switch res.Status {
		case gateway.StatusCompleted:
			return PollResult{
				Outcome:     OutcomeCompleted,
				Description: res.ResultDescription,
				Receipt:     res.Receipt,
				Attempts:    attempt,
			}, nil
		case gateway.StatusFailed:
			desc := res.ResultDescription
			if desc == "" {
				desc = "payment failed"
			}
			return PollResult{Outcome: OutcomeFailed, Description: desc, Attempts: attempt}, nil
		}

		if attempt == maxAttempts {
			break
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return PollResult{}, ctx.Err()
		case <-timer.C:
		}
	}

	return PollResult{
		Outcome:     OutcomeTimedOut,
		Description: fmt.Sprintf("no confirmation after %d attempts", maxAttempts),
		Attempts:    maxAttempts,
	}, nil
}
