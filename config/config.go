// Package config loads worker and gateway configuration from environment
// variables, with optional .env overrides for local development.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Worker holds the dispatch worker's settings. Timeouts and backoffs are
// expressed in seconds to match the environment contract.
type Worker struct {
	DefaultProcessorURL  string  `env:"DEFAULT_PROCESSOR_URL,required"`
	FallbackProcessorURL string  `env:"FALLBACK_PROCESSOR_URL,required"`
	StoreURL             string  `env:"REDIS_URL" envDefault:"redis://redis:6379/0"`
	BatchSize            int     `env:"BATCH_SIZE" envDefault:"10"`
	MaxRetries           int     `env:"MAX_RETRIES" envDefault:"3"`
	BackoffBaseSec       float64 `env:"BACKOFF_BASE" envDefault:"0.5"`
	PollTimeoutSec       float64 `env:"POLL_TIMEOUT" envDefault:"5"`
	HTTPTimeoutSec       float64 `env:"HTTP_TIMEOUT" envDefault:"3"`
	ReconcileIntervalSec float64 `env:"RECONCILE_INTERVAL" envDefault:"30"`
	PubSubURL            string  `env:"PUBSUB_URL"`
	JournalURL           string  `env:"JOURNAL_URL"`
	LogLevel             string  `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat            string  `env:"LOG_FORMAT" envDefault:"json"`
}

func (c *Worker) BackoffBase() time.Duration       { return seconds(c.BackoffBaseSec) }
func (c *Worker) PollTimeout() time.Duration       { return seconds(c.PollTimeoutSec) }
func (c *Worker) HTTPTimeout() time.Duration       { return seconds(c.HTTPTimeoutSec) }
func (c *Worker) ReconcileInterval() time.Duration { return seconds(c.ReconcileIntervalSec) }

// LoadWorker reads the worker configuration. Missing processor URLs are a
// startup failure; the process must not come up half-configured.
func LoadWorker() (*Worker, error) {
	godotenv.Load(".env")
	cfg := &Worker{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("load worker config: %w", err)
	}
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("BATCH_SIZE must be at least 1, got %d", cfg.BatchSize)
	}
	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("MAX_RETRIES must be at least 1, got %d", cfg.MaxRetries)
	}
	return cfg, nil
}

// Gateway holds the submission gateway's settings.
type Gateway struct {
	StoreURL   string  `env:"REDIS_URL" envDefault:"redis://redis:6379/0"`
	Instance   string  `env:"INSTANCE" envDefault:"unknown"`
	Port       int     `env:"PORT" envDefault:"9999"`
	LockTTLSec float64 `env:"LOCK_TTL" envDefault:"300"`
	LogLevel   string  `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat  string  `env:"LOG_FORMAT" envDefault:"json"`
}

func (c *Gateway) LockTTL() time.Duration { return seconds(c.LockTTLSec) }

func LoadGateway() (*Gateway, error) {
	godotenv.Load(".env")
	cfg := &Gateway{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("load gateway config: %w", err)
	}
	return cfg, nil
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
