package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tableside/floor/internal/auth"
	"github.com/tableside/floor/internal/config"
	"github.com/tableside/floor/internal/gateway"
	"github.com/tableside/floor/internal/mirror"
	"github.com/tableside/floor/internal/router"
	"github.com/tableside/floor/internal/service"
	"github.com/tableside/floor/internal/ws"
)

func main() {
	cfg := config.Load()
	if cfg.GatewayToken == "" {
		log.Println("WARN: GATEWAY_TOKEN is empty, background refreshes will be unauthenticated")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayTimeout)

	store := mirror.NewStore()
	refresher := mirror.NewRefresher(client, store, auth.ServiceSession(cfg.GatewayToken), cfg.RefreshInterval)

	hub := ws.NewHub()
	refresher.OnRefresh(func(mirror.Snapshot) {
		hub.Publish("floor.refreshed", store.Stats())
	})

	tables := service.NewTableCoordinator(client, store, refresher, cfg.ReconcileDelay, hub)
	bookings := service.NewBookingWorkflow(client, store, tables, refresher, cfg.ReconcileDelay, hub)
	checkout := service.NewCheckoutOrchestrator(client, store, tables, service.CheckoutConfig{
		Poller: service.PollerConfig{
			PollInterval:         cfg.PaymentPollInterval,
			TickInterval:         cfg.PaymentTickInterval,
			DefaultExpirySeconds: cfg.PaymentExpirySeconds,
			RequestTimeout:       cfg.GatewayTimeout,
		},
		RedirectReturnURL: cfg.RedirectReturnURL,
		RedirectCancelURL: cfg.RedirectCancelURL,
	}, hub)

	r, err := router.New(cfg, router.Deps{
		Store:     store,
		Refresher: refresher,
		Hub:       hub,
		Tables:    tables,
		Bookings:  bookings,
		Checkout:  checkout,
	})
	if err != nil {
		log.Fatalf("Failed to build router: %v", err)
	}

	go hub.Run(ctx)
	go refresher.Run(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s (gateway %s)", cfg.Port, cfg.GatewayBaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: graceful shutdown: %v", err)
	}
	checkout.Close()
	log.Println("Server stopped")
}
