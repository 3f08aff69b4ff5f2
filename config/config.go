// Package config loads repricer configuration from environment variables,
// in the style of the teacher's config package: typed sub-structs per
// concern, getEnv*/default helpers, and a Validate pass that fails fast on
// missing required values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Environment string

	Store        StoreConfig
	Queue        QueueConfig
	Webhook      WebhookConfig
	Orchestrator OrchestratorConfig
	Metrics      MetricsConfig
	Audit        AuditConfig
	Admin        AdminConfig
}

// StoreConfig configures the Redis-backed gateway (C6).
type StoreConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	BreakerConsecutiveFailures uint32
	BreakerOpenTimeout         time.Duration
	BreakerHalfOpenRequests    uint32
}

// QueueConfig configures the long-poll queue adapter for marketplace-A
// offer-change notifications (C1).
type QueueConfig struct {
	Address           string
	QueueName         string
	PollBatchSize     int32
	PollWaitTime      time.Duration
	VisibilityTimeout time.Duration
	MaxReceiveCount   int32
	RateLimitPerSec   float64
}

// WebhookConfig configures the HTTP webhook adapter for marketplace-B
// push notifications (C1).
type WebhookConfig struct {
	ListenAddress  string
	Path           string
	SecretHeader   string
	SharedSecret   string
	InternalQueueCap int
}

// OrchestratorConfig configures the bounded worker pool (C3).
type OrchestratorConfig struct {
	MaxInFlight     int
	EventDeadline   time.Duration
	ShutdownDrain   time.Duration
}

// MetricsConfig configures the /metrics HTTP listener; /health and /stats
// are served on the webhook listener.
type MetricsConfig struct {
	ListenAddress string
}

// AuditConfig configures the durable audit trail (reprice writes/skips,
// circuit-breaker trips/resets, admin actions).
type AuditConfig struct {
	Dir string
}

// AdminConfig configures the supplemented management surface (§8's
// "MAY be exposed" management endpoints), gated by its own shared
// secret rather than the webhook's.
type AdminConfig struct {
	SecretHeader string
	SharedSecret string
}

// Load loads configuration from environment variables, optionally seeded
// by a local .env file (ignored if absent).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),

		Store: StoreConfig{
			Address:      getEnv("STORE_REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnv("STORE_REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("STORE_REDIS_DB", 0),
			PoolSize:     getEnvAsInt("STORE_REDIS_POOL_SIZE", 20),
			MinIdleConns: getEnvAsInt("STORE_REDIS_MIN_IDLE_CONNS", 5),
			DialTimeout:  getEnvAsDuration("STORE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvAsDuration("STORE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvAsDuration("STORE_REDIS_WRITE_TIMEOUT", 3*time.Second),

			BreakerConsecutiveFailures: uint32(getEnvAsInt("STORE_BREAKER_CONSECUTIVE_FAILURES", 5)),
			BreakerOpenTimeout:         getEnvAsDuration("STORE_BREAKER_OPEN_TIMEOUT", 30*time.Second),
			BreakerHalfOpenRequests:    uint32(getEnvAsInt("STORE_BREAKER_HALF_OPEN_REQUESTS", 3)),
		},

		Queue: QueueConfig{
			Address:           getEnv("QUEUE_ADDRESS", "localhost:6380"),
			QueueName:         getEnv("QUEUE_NAME", "offer-changes"),
			PollBatchSize:     int32(getEnvAsInt("QUEUE_POLL_BATCH_SIZE", 10)),
			PollWaitTime:      getEnvAsDuration("QUEUE_POLL_WAIT_TIME", 20*time.Second),
			VisibilityTimeout: getEnvAsDuration("QUEUE_VISIBILITY_TIMEOUT", 30*time.Second),
			MaxReceiveCount:   int32(getEnvAsInt("QUEUE_MAX_RECEIVE_COUNT", 3)),
			RateLimitPerSec:   getEnvAsFloat("QUEUE_RATE_LIMIT_PER_SEC", 50.0),
		},

		Webhook: WebhookConfig{
			ListenAddress:    getEnv("WEBHOOK_LISTEN_ADDRESS", ":8090"),
			Path:             getEnv("WEBHOOK_PATH", "/webhooks/offer-change"),
			SecretHeader:     getEnv("WEBHOOK_SECRET_HEADER", "X-Repricer-Signature"),
			SharedSecret:     getEnv("WEBHOOK_SHARED_SECRET", ""),
			InternalQueueCap: getEnvAsInt("WEBHOOK_INTERNAL_QUEUE_CAP", 1000),
		},

		Orchestrator: OrchestratorConfig{
			MaxInFlight:   getEnvAsInt("ORCHESTRATOR_MAX_IN_FLIGHT", 32),
			EventDeadline: getEnvAsDuration("ORCHESTRATOR_EVENT_DEADLINE", 5*time.Second),
			ShutdownDrain: getEnvAsDuration("ORCHESTRATOR_SHUTDOWN_DRAIN", 15*time.Second),
		},

		Metrics: MetricsConfig{
			ListenAddress: getEnv("METRICS_LISTEN_ADDRESS", ":9090"),
		},

		Audit: AuditConfig{
			Dir: getEnv("AUDIT_LOG_DIR", "./data/audit"),
		},

		Admin: AdminConfig{
			SecretHeader: getEnv("ADMIN_SECRET_HEADER", "X-Repricer-Admin-Secret"),
			SharedSecret: getEnv("ADMIN_SHARED_SECRET", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required configuration in production.
func (c *Config) Validate() error {
	if c.Environment == "production" {
		if c.Webhook.SharedSecret == "" {
			return fmt.Errorf("WEBHOOK_SHARED_SECRET is required in production")
		}
		if c.Admin.SharedSecret == "" {
			return fmt.Errorf("ADMIN_SHARED_SECRET is required in production")
		}
	}
	if c.Orchestrator.MaxInFlight <= 0 {
		return fmt.Errorf("ORCHESTRATOR_MAX_IN_FLIGHT must be > 0")
	}
	if c.Store.PoolSize <= 0 {
		return fmt.Errorf("STORE_REDIS_POOL_SIZE must be > 0")
	}
	return nil
}

func getEnv(key string, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultVal
}

