package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

const (
	AuditRepriceWrite   AuditEventType = "reprice_write"
	AuditRepriceSkip    AuditEventType = "reprice_skip"
	AuditCircuitTrip    AuditEventType = "circuit_trip"
	AuditCircuitReset   AuditEventType = "circuit_reset"
	AuditAdminAction    AuditEventType = "admin_action"
	AuditConfigChange   AuditEventType = "config_change"
)

// AuditEvent represents a single audit trail entry.
type AuditEvent struct {
	EventID     string                 `json:"event_id"`
	Timestamp   time.Time              `json:"timestamp"`
	EventType   AuditEventType         `json:"event_type"`
	AdminID     string                 `json:"admin_id,omitempty"`
	Action      string                 `json:"action"`
	Resource    string                 `json:"resource,omitempty"`
	ResourceID  string                 `json:"resource_id,omitempty"`
	Before      map[string]interface{} `json:"before,omitempty"`
	After       map[string]interface{} `json:"after,omitempty"`
	Status      string                 `json:"status"` // success, failed, denied
	Reason      string                 `json:"reason,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Environment string                 `json:"environment"`
	RequestID   string                 `json:"request_id,omitempty"`
}

// AuditLogger handles audit trail logging of the reprice writes/skips and
// circuit-breaker events it is handed. Events are buffered in memory
// (flushed every 5 s, at 100 buffered events, and on Close) and written through a
// RotatingFileWriter so the audit trail shares the same size/age-based
// rotation and flock-guarded rollover as every other rotated log stream.
type AuditLogger struct {
	mu          sync.Mutex
	writer      *RotatingFileWriter
	encoder     *json.Encoder
	buffer      []*AuditEvent
	bufferSize  int
	flushTicker *time.Ticker
	stopChan    chan struct{}
	environment string
}

// NewAuditLogger creates a new audit logger writing to auditDir/audit.log.
func NewAuditLogger(auditDir string) (*AuditLogger, error) {
	writer, err := NewRotatingFileWriter(RotationConfig{
		Filename:           filepath.Join(auditDir, "audit.log"),
		MaxSizeMB:          100,
		MaxAge:             30 * 24 * time.Hour,
		MaxBackups:         20,
		CompressionEnabled: true,
	})
	if err != nil {
		return nil, err
	}

	al := &AuditLogger{
		writer:      writer,
		encoder:     json.NewEncoder(writer),
		buffer:      make([]*AuditEvent, 0, 100),
		bufferSize:  100,
		flushTicker: time.NewTicker(5 * time.Second),
		stopChan:    make(chan struct{}),
		environment: getEnvironment(),
	}

	go al.autoFlush()

	return al, nil
}

// LogRepriceWrite records a CalculatedPrice write (§8 category 2 is not
// an error, but a price change is still worth a durable audit trail
// distinct from the structured JSON log stream).
func (al *AuditLogger) LogRepriceWrite(ctx context.Context, sellerID, sku, asin, strategyUsed string, oldPrice, newPrice float64) {
	al.logEvent(ctx, &AuditEvent{
		EventID:    generateEventID(),
		EventType:  AuditRepriceWrite,
		Action:     "write_calculated_price",
		Resource:   "calculated_price",
		ResourceID: fmt.Sprintf("%s:%s", sellerID, sku),
		Status:     "success",
		Metadata: map[string]interface{}{
			"asin":          asin,
			"strategy_used": strategyUsed,
			"old_price":     oldPrice,
			"new_price":     newPrice,
		},
	})
}

// LogRepriceSkip records a business skip decision (§7 category 2).
func (al *AuditLogger) LogRepriceSkip(ctx context.Context, sellerID, sku, reason string) {
	al.logEvent(ctx, &AuditEvent{
		EventID:    generateEventID(),
		EventType:  AuditRepriceSkip,
		Action:     "skip",
		Resource:   "offer_change",
		ResourceID: fmt.Sprintf("%s:%s", sellerID, sku),
		Status:     "skipped",
		Reason:     reason,
	})
}

// LogCircuitTrip records the store circuit breaker opening.
func (al *AuditLogger) LogCircuitTrip(ctx context.Context, breakerName string, consecutiveFailures uint32) {
	al.logEvent(ctx, &AuditEvent{
		EventID:    generateEventID(),
		EventType:  AuditCircuitTrip,
		Action:     "circuit_open",
		Resource:   "circuit_breaker",
		ResourceID: breakerName,
		Status:     "tripped",
		Metadata: map[string]interface{}{
			"consecutive_failures": consecutiveFailures,
		},
	})
}

// LogCircuitReset records an operator manually closing the circuit
// breaker via the admin endpoint (§8 supplemented feature).
func (al *AuditLogger) LogCircuitReset(ctx context.Context, adminID, breakerName string) {
	al.logEvent(ctx, &AuditEvent{
		EventID:    generateEventID(),
		EventType:  AuditCircuitReset,
		AdminID:    adminID,
		Action:     "manual_reset",
		Resource:   "circuit_breaker",
		ResourceID: breakerName,
		Status:     "success",
	})
}

// LogAdminAction records any other administrative action against the
// running service.
func (al *AuditLogger) LogAdminAction(ctx context.Context, adminID, action, resource, resourceID string, before, after map[string]interface{}) {
	al.logEvent(ctx, &AuditEvent{
		EventID:    generateEventID(),
		EventType:  AuditAdminAction,
		AdminID:    adminID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Before:     before,
		After:      after,
		Status:     "success",
	})
}

// LogConfigChange records a configuration value changing at runtime.
func (al *AuditLogger) LogConfigChange(ctx context.Context, adminID, configKey string, before, after interface{}) {
	al.logEvent(ctx, &AuditEvent{
		EventID:   generateEventID(),
		EventType: AuditConfigChange,
		AdminID:   adminID,
		Action:    "config_change",
		Resource:  "config",
		Before:    map[string]interface{}{configKey: before},
		After:     map[string]interface{}{configKey: after},
		Status:    "success",
	})
}

func (al *AuditLogger) logEvent(ctx context.Context, event *AuditEvent) {
	event.Timestamp = time.Now().UTC()
	event.Environment = al.environment

	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		event.RequestID = requestID
	}

	// Admin-action events carry arbitrary before/after config values,
	// which can legitimately include secrets; mask them before they hit
	// a durable, long-retained file.
	if event.Before != nil {
		event.Before = MaskSensitiveMap(event.Before)
	}
	if event.After != nil {
		event.After = MaskSensitiveMap(event.After)
	}
	if event.Metadata != nil {
		event.Metadata = MaskSensitiveMap(event.Metadata)
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	al.buffer = append(al.buffer, event)
	if len(al.buffer) >= al.bufferSize {
		al.flush()
	}
}

func (al *AuditLogger) flush() {
	if len(al.buffer) == 0 {
		return
	}

	for _, event := range al.buffer {
		al.encoder.Encode(event)
	}

	al.buffer = al.buffer[:0]
}

func (al *AuditLogger) autoFlush() {
	for {
		select {
		case <-al.flushTicker.C:
			al.mu.Lock()
			al.flush()
			al.mu.Unlock()
		case <-al.stopChan:
			return
		}
	}
}

// Close flushes and closes the audit logger. Rotation itself is handled
// by the underlying RotatingFileWriter on every Write once MaxSizeMB or
// MaxAge is crossed; the audit logger no longer tracks size itself.
func (al *AuditLogger) Close() error {
	close(al.stopChan)
	al.flushTicker.Stop()

	al.mu.Lock()
	defer al.mu.Unlock()

	al.flush()
	return al.writer.Close()
}

func generateEventID() string {
	return fmt.Sprintf("audit-%d", time.Now().UnixNano())
}
