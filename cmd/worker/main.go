package main

import (
	"context"
	"log"
	"time"

	"SokoCheckout/internal/backend"
	"SokoCheckout/internal/checkout"
	"SokoCheckout/internal/config"
	"SokoCheckout/internal/db"
	"SokoCheckout/internal/gateway"
	"SokoCheckout/internal/orders"
	"SokoCheckout/internal/payments"
	"SokoCheckout/internal/store"
	"SokoCheckout/internal/worker"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	backendClient, err := backend.NewMultiClient(
		cfg.Backend.BaseURLs,
		time.Duration(cfg.Backend.TimeoutSeconds)*time.Second,
		cfg.Backend.FailoverThreshold,
	)
	if err != nil {
		log.Fatalf("backend client failed: %v", err)
	}

	mpesa := gateway.NewClient(
		cfg.Mpesa.BaseURL,
		cfg.Mpesa.ShortCode,
		cfg.Mpesa.Passkey,
		cfg.Mpesa.MinAmount,
		time.Duration(cfg.Mpesa.TimeoutSeconds)*time.Second,
	)

	st := store.New(pool)
	orch := &checkout.Orchestrator{
		Orders:   &orders.Service{Backend: backendClient},
		Payments: &payments.Service{Backend: backendClient},
		Gateway:  mpesa,
		Cards:    checkout.StubCardGateway{},
		Backend:  backendClient,
		Store:    st,
	}

	w := &worker.Worker{
		Sessions:      st,
		Gateway:       mpesa,
		Orchestrator:  orch,
		Interval:      time.Duration(cfg.Worker.IntervalSeconds) * time.Second,
		MaxSessionAge: time.Duration(cfg.Worker.MaxSessionAgeMinutes) * time.Minute,
	}

	log.Printf("worker started (gateway=%s)", cfg.Mpesa.BaseURL)
	w.Run(ctx)
}
