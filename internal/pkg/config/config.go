// Package config loads service configuration from environment variables.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Orchestrator configures the saga orchestrator service.
type Orchestrator struct {
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"saga-orchestrator"`
	NATSURL     string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	SQLitePath  string `env:"SAGA_DB_PATH" envDefault:"./data/sagas.db"`
	RedisAddr   string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
}

// Participant configures one of the stub participant services.
type Participant struct {
	ServiceName string `env:"OTEL_SERVICE_NAME"`
	NATSURL     string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
}

// Parse fills target from the process environment.
func Parse(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}
	return nil
}
