// Command repricer wires the marketplace repricing engine: config
// load, store gateway + circuit breaker, the two intake adapters, the
// orchestrator worker pool, and the HTTP surface (webhook, health,
// stats, metrics). Construction order and the raw net/http mux
// style follow the teacher's cmd/server/main.go and its
// examples/pipeline_integration_example.go shutdown sequence; the
// component health rollup at /health follows monitoring/health.go.
package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/epic1st/repricer/config"
	"github.com/epic1st/repricer/intake"
	"github.com/epic1st/repricer/intake/queuesrc"
	"github.com/epic1st/repricer/intake/webhook"
	"github.com/epic1st/repricer/logging"
	"github.com/epic1st/repricer/metrics"
	"github.com/epic1st/repricer/orchestrator"
	"github.com/epic1st/repricer/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewLogger(logLevelFor(cfg.Environment), os.Stdout)
	logger.Info("repricer starting", logging.String("environment", cfg.Environment))

	recorder := metrics.NewRecorder()

	auditLogger, err := logging.NewAuditLogger(cfg.Audit.Dir)
	if err != nil {
		log.Fatalf("Failed to open audit log: %v", err)
	}
	defer auditLogger.Close()

	gateway, err := store.NewGateway(store.Config{
		Address:      cfg.Store.Address,
		Password:     cfg.Store.Password,
		DB:           cfg.Store.DB,
		PoolSize:     cfg.Store.PoolSize,
		MinIdleConns: cfg.Store.MinIdleConns,
		DialTimeout:  cfg.Store.DialTimeout,
		ReadTimeout:  cfg.Store.ReadTimeout,
		WriteTimeout: cfg.Store.WriteTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to connect to store: %v", err)
	}
	defer gateway.Close()

	breaker := store.NewBreakerGateway(gateway, store.BreakerSettings{
		ConsecutiveFailureThreshold: cfg.Store.BreakerConsecutiveFailures,
		OpenTimeout:                 cfg.Store.BreakerOpenTimeout,
		HalfOpenMaxRequests:         cfg.Store.BreakerHalfOpenRequests,
	}, func(name string, consecutiveFailures uint32) {
		recorder.IncCircuitBreakerTrip(name, consecutiveFailures)
		auditLogger.LogCircuitTrip(context.Background(), name, consecutiveFailures)
	})

	internalStream := make(chan intake.RawEvent, cfg.Webhook.InternalQueueCap)

	pool := orchestrator.New(orchestrator.Config{
		MaxInFlight:   cfg.Orchestrator.MaxInFlight,
		EventDeadline: cfg.Orchestrator.EventDeadline,
	}, breaker, logger, recorder).WithAuditLogger(auditLogger)

	ctx, cancel := context.WithCancel(context.Background())

	queueClient, err := queuesrc.NewRedisQueueClient(queuesrc.RedisQueueClientConfig{
		Address:           cfg.Queue.Address,
		QueueName:         cfg.Queue.QueueName,
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		MaxReceiveCount:   cfg.Queue.MaxReceiveCount,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer queueClient.Close()

	queueAdapter := queuesrc.NewAdapter(queueClient, cfg.Queue.PollBatchSize, cfg.Queue.PollWaitTime, cfg.Queue.RateLimitPerSec, internalStream, logger)
	go queueAdapter.Run(ctx)

	webhookAdapter := webhook.NewAdapter(cfg.Webhook.Path, cfg.Webhook.SecretHeader, cfg.Webhook.SharedSecret, internalStream, logger)

	healthChecker := metrics.NewHealthChecker()
	healthChecker.RegisterCheck("store", metrics.BreakerComponentCheck(func() string { return breaker.State().String() }))
	healthChecker.RegisterCheck("worker_pool", metrics.WorkerPoolComponentCheck(pool.InFlight, cfg.Orchestrator.MaxInFlight))

	mux := http.NewServeMux()
	webhookAdapter.Register(mux)
	mux.HandleFunc("/health", healthChecker.Handler())
	mux.HandleFunc("/stats", statsHandler(breaker, recorder))
	mux.HandleFunc("/admin/circuit/reset", adminResetHandler(cfg.Admin, breaker, auditLogger))

	var handler http.Handler = mux
	handler = logging.CORSLoggingMiddleware(logger)(handler)
	handler = logging.HTTPLoggingMiddleware(logger)(handler)
	handler = logging.PanicRecoveryMiddleware(logger)(handler)

	httpServer := &http.Server{
		Addr:    cfg.Webhook.ListenAddress,
		Handler: handler,
	}

	poolDone := make(chan error, 1)
	go func() {
		poolDone <- pool.Run(ctx, internalStream)
	}()

	go func() {
		log.Printf("repricer HTTP surface listening on %s", cfg.Webhook.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	metricsServer := &http.Server{Addr: cfg.Metrics.ListenAddress, Handler: metricsMux()}
	go func() {
		log.Printf("repricer metrics listening on %s", cfg.Metrics.ListenAddress)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received, draining in-flight events")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", err)
	}
	shutdownCancel()

	cancel() // stop pulling new events from both adapters
	close(internalStream)

	select {
	case <-poolDone:
	case <-time.After(cfg.Orchestrator.ShutdownDrain):
		logger.Warn("worker pool drain deadline exceeded, exiting anyway")
	}

	logger.Info("repricer shutdown complete")
}

func logLevelFor(environment string) logging.LogLevel {
	if environment == "production" {
		return logging.INFO
	}
	return logging.DEBUG
}

// statsHandler reports the counters §8 promises: events processed,
// skipped by reason, written, retried, and the current in-flight
// count, alongside the store circuit breaker's state.
func statsHandler(breaker *store.BreakerGateway, recorder *metrics.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := recorder.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			metrics.Stats
			StoreCircuitBreaker string `json:"store_circuit_breaker"`
		}{Stats: snapshot, StoreCircuitBreaker: breaker.State().String()})
	}
}

// adminResetHandler implements the §8 supplemented management hook:
// POST /admin/circuit/reset manually closes the store circuit breaker,
// gated by its own shared secret (distinct from the webhook's).
func adminResetHandler(cfg config.AdminConfig, breaker *store.BreakerGateway, audit *logging.AuditLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		supplied := r.Header.Get(cfg.SecretHeader)
		if cfg.SharedSecret == "" || subtle.ConstantTimeCompare([]byte(supplied), []byte(cfg.SharedSecret)) != 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		breaker.ManualReset()
		audit.LogCircuitReset(r.Context(), r.Header.Get("X-Admin-ID"), "store_gateway")

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "reset"})
	}
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
