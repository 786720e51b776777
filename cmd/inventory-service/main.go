// The inventory service is a stub participant: it consumes ReserveInventory
// and ReleaseInventory commands from the bus and reports reservation results
// as integration events.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jcmexdev/order-fulfillment/internal/messaging"
	"github.com/jcmexdev/order-fulfillment/internal/participants"
	"github.com/jcmexdev/order-fulfillment/internal/pkg/config"
	"github.com/jcmexdev/order-fulfillment/internal/pkg/telemetry"
)

func main() {
	cfg := config.Participant{ServiceName: "inventory-service"}
	if err := config.Parse(&cfg); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry.InitLogger(cfg.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupTracer(ctx, cfg.ServiceName)
	if err != nil {
		slog.Error("failed to initialise tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	bus := messaging.NewNATSBus(messaging.NATSConfig{URL: cfg.NATSURL})
	// nil stock: every product is unlimited in the simulator.
	if err := participants.NewInventory(bus, nil).Register(bus); err != nil {
		slog.Error("failed to register inventory participant", "error", err)
		os.Exit(1)
	}
	if err := bus.Start(ctx); err != nil {
		slog.Error("failed to start bus", "url", cfg.NATSURL, "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	slog.Info("inventory service running", "nats", cfg.NATSURL)
	<-ctx.Done()
	slog.Info("inventory service stopped")
}
