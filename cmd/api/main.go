package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SokoCheckout/internal/backend"
	"SokoCheckout/internal/checkout"
	"SokoCheckout/internal/config"
	"SokoCheckout/internal/db"
	"SokoCheckout/internal/gateway"
	internalhttp "SokoCheckout/internal/http"
	"SokoCheckout/internal/orders"
	"SokoCheckout/internal/payments"
	"SokoCheckout/internal/store"
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
	events := checkout.NewHub()
	orch := &checkout.Orchestrator{
		Orders:          &orders.Service{Backend: backendClient},
		Payments:        &payments.Service{Backend: backendClient},
		Gateway:         mpesa,
		Cards:           checkout.StubCardGateway{},
		Backend:         backendClient,
		Store:           st,
		Events:          events,
		PollInterval:    time.Duration(cfg.Checkout.PollIntervalSeconds) * time.Second,
		PollMaxAttempts: cfg.Checkout.PollMaxAttempts,
	}

	h := internalhttp.NewHandler(st, orch, events)
	srv := internalhttp.NewServer(h)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		log.Printf("api listening on %s (backend=%s)", cfg.Server.Addr, backendClient.BaseURL())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}
