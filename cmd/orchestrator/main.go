// The orchestrator service runs the order fulfillment saga: it consumes
// participant events from NATS, applies the state machine, persists saga
// state to SQLite, relays order statuses into Redis, and serves the
// read-only saga status HTTP endpoint.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jcmexdev/order-fulfillment/internal/messaging"
	"github.com/jcmexdev/order-fulfillment/internal/order/redis"
	"github.com/jcmexdev/order-fulfillment/internal/pkg/config"
	"github.com/jcmexdev/order-fulfillment/internal/pkg/telemetry"
	"github.com/jcmexdev/order-fulfillment/internal/relay"
	"github.com/jcmexdev/order-fulfillment/internal/saga"
	"github.com/jcmexdev/order-fulfillment/internal/saga/httpx"
	"github.com/jcmexdev/order-fulfillment/internal/saga/sqlite"
)

func main() {
	var cfg config.Orchestrator
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

	store, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		slog.Error("failed to open saga store", "path", cfg.SQLitePath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	orders := redis.NewRepository(cfg.RedisAddr)
	defer orders.Close()

	bus := messaging.NewNATSBus(messaging.NATSConfig{URL: cfg.NATSURL})
	orchestrator := saga.NewOrchestrator(store, bus)
	if err := orchestrator.Register(bus); err != nil {
		slog.Error("failed to register orchestrator", "error", err)
		os.Exit(1)
	}
	if err := relay.NewStatusConsumer(orders).Register(bus); err != nil {
		slog.Error("failed to register status relay", "error", err)
		os.Exit(1)
	}
	if err := bus.Start(ctx); err != nil {
		slog.Error("failed to start bus", "url", cfg.NATSURL, "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpx.NewRouter(httpx.NewHandler(store)),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "addr", cfg.HTTPAddr, "error", err)
		}
	}()

	slog.Info("saga orchestrator running", "nats", cfg.NATSURL, "http", cfg.HTTPAddr, "db", cfg.SQLitePath)
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	slog.Info("saga orchestrator stopped")
}
