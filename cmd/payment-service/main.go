// The payment service is a stub participant: it consumes ProcessPayment and
// RefundPayment commands from the bus and reports charge results as
// integration events.
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
	cfg := config.Participant{ServiceName: "payment-service"}
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
	if err := participants.NewPayment(bus, 0).Register(bus); err != nil {
		slog.Error("failed to register payment participant", "error", err)
		os.Exit(1)
	}
	if err := bus.Start(ctx); err != nil {
		slog.Error("failed to start bus", "url", cfg.NATSURL, "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	slog.Info("payment service running", "nats", cfg.NATSURL)
	<-ctx.Done()
	slog.Info("payment service stopped")
}
