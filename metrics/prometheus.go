// Package metrics exposes the pipeline's Prometheus surface, adapted
// from the teacher's monitoring/prometheus.go: package-level
// promauto-registered vectors, plain recording functions, and a
// promhttp.Handler for /metrics.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	stageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repricer_pipeline_stage_latency_milliseconds",
			Help:    "Latency of each pipeline stage (extract, read, decide, calculate_persist, total) in milliseconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"stage"},
	)

	outcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repricer_event_outcomes_total",
			Help: "Total events processed, by intake source and terminal outcome (ok, skip, retry)",
		},
		[]string{"source", "outcome"},
	)

	skipReasonsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repricer_skip_reasons_total",
			Help: "Total skip-with-reason outcomes, by reason",
		},
		[]string{"reason"},
	)

	circuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "repricer_store_circuit_breaker_state",
			Help: "Store gateway circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	circuitBreakerTrips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "repricer_store_circuit_breaker_trips_total",
			Help: "Total number of times the store circuit breaker has tripped open",
		},
	)

	workerPoolInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "repricer_worker_pool_in_flight",
			Help: "Current number of events being processed by the worker pool",
		},
	)

	webhookRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repricer_webhook_requests_total",
			Help: "Total webhook requests by HTTP status class",
		},
		[]string{"status"},
	)
)

// Recorder implements orchestrator.Metrics (and the handful of
// adjacent hooks the rest of the service needs) against the
// package-level Prometheus vectors above. It also mirrors a handful of
// those vectors into plain atomic counters, since a CounterVec's
// values aren't cheaply readable back out for the /stats JSON surface.
type Recorder struct {
	processed int64
	skipped   int64
	written   int64
	retried   int64
	inFlight  int64

	skipReasonsMu sync.Mutex
	skipReasons   map[string]int64
}

// NewRecorder returns a Recorder. The underlying vectors are
// package-level singletons, matching the teacher's own
// register-once-at-import-time style.
func NewRecorder() *Recorder {
	return &Recorder{skipReasons: make(map[string]int64)}
}

// Stats is a point-in-time snapshot of the counters backing /stats.
type Stats struct {
	EventsProcessed int64            `json:"events_processed"`
	EventsSkipped   int64            `json:"events_skipped"`
	EventsWritten   int64            `json:"events_written"`
	EventsRetried   int64            `json:"events_retried"`
	InFlight        int64            `json:"in_flight"`
	SkippedByReason map[string]int64 `json:"skipped_by_reason"`
}

// Snapshot reports the current counters for the /stats endpoint (§8:
// "events processed, skipped by reason, written, retried, in-flight count").
func (r *Recorder) Snapshot() Stats {
	r.skipReasonsMu.Lock()
	reasons := make(map[string]int64, len(r.skipReasons))
	for k, v := range r.skipReasons {
		reasons[k] = v
	}
	r.skipReasonsMu.Unlock()

	return Stats{
		EventsProcessed: atomic.LoadInt64(&r.processed),
		EventsSkipped:   atomic.LoadInt64(&r.skipped),
		EventsWritten:   atomic.LoadInt64(&r.written),
		EventsRetried:   atomic.LoadInt64(&r.retried),
		InFlight:        atomic.LoadInt64(&r.inFlight),
		SkippedByReason: reasons,
	}
}

// ObserveStageLatency implements orchestrator.Metrics.
func (*Recorder) ObserveStageLatency(stage string, d time.Duration) {
	stageLatency.WithLabelValues(stage).Observe(float64(d.Microseconds()) / 1000.0)
}

// IncOutcome implements orchestrator.Metrics.
func (r *Recorder) IncOutcome(source, outcome string) {
	outcomesTotal.WithLabelValues(source, outcome).Inc()
	atomic.AddInt64(&r.processed, 1)
	switch outcome {
	case "ok":
		atomic.AddInt64(&r.written, 1)
	case "skip":
		atomic.AddInt64(&r.skipped, 1)
	case "retry":
		atomic.AddInt64(&r.retried, 1)
	}
}

// IncSkipReason records a named skip reason from the decision or
// pricing engines, independent of the coarser ok/skip/retry counter.
func (r *Recorder) IncSkipReason(reason string) {
	skipReasonsTotal.WithLabelValues(reason).Inc()
	r.skipReasonsMu.Lock()
	r.skipReasons[reason]++
	r.skipReasonsMu.Unlock()
}

// SetCircuitBreakerState reflects the gobreaker.State of the store
// gateway's breaker (0=closed, 1=half-open, 2=open — gobreaker's own
// ordering).
func (*Recorder) SetCircuitBreakerState(state int) {
	circuitBreakerState.Set(float64(state))
}

// IncCircuitBreakerTrip is wired as a store.TripListener.
func (*Recorder) IncCircuitBreakerTrip(name string, consecutiveFailures uint32) {
	circuitBreakerTrips.Inc()
}

// SetWorkerPoolInFlight reports current worker pool saturation.
func (r *Recorder) SetWorkerPoolInFlight(n int) {
	workerPoolInFlight.Set(float64(n))
	atomic.StoreInt64(&r.inFlight, int64(n))
}

// RecordWebhookRequest records one webhook request outcome, bucketed
// by HTTP status class ("2xx", "4xx", "5xx").
func (*Recorder) RecordWebhookRequest(statusClass string) {
	webhookRequestsTotal.WithLabelValues(statusClass).Inc()
}

// Handler returns the HTTP handler to serve at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
