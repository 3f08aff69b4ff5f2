// Package intake holds the raw envelope shared by both adapters
// (queuesrc, webhook) and the internal channel they feed (C1, §4.1).
package intake

import "github.com/google/uuid"

// Source names which adapter produced a RawEvent.
type Source string

const (
	SourceQueue   Source = "A"
	SourceWebhook Source = "B"
)

// Acker is the ack handle an adapter retains for a RawEvent: the
// orchestrator calls exactly one of Ack/Retry once processing
// terminates. Both the "ok" and "skip" outcomes call Ack; only "retry"
// calls Retry (§4.1, §4.3 outcome reporting).
type Acker interface {
	// Ack confirms successful or business-skip processing; the queue
	// adapter deletes the underlying message, the webhook adapter is a
	// no-op (it already returned 2xx).
	Ack()
	// Retry signals a transient failure; the queue adapter lets the
	// message's visibility timeout lapse for redelivery, the webhook
	// adapter is a no-op (the event was already acked to the caller and
	// cannot be replayed).
	Retry()
}

// RawEvent is the uninterpreted unit both adapters push onto the shared
// internal stream — C2's job is to turn Payload into a
// pricing.OfferChange; adapters never parse business semantics (§4.1).
type RawEvent struct {
	ID      string
	Source  Source
	Payload []byte
	Ack     Acker
}

// NewRawEvent stamps a correlation ID, grounded on the teacher's use of
// google/uuid for request/order correlation — used here to tie a single
// event's log lines together across the 4-step pipeline.
func NewRawEvent(source Source, payload []byte, ack Acker) RawEvent {
	return RawEvent{ID: uuid.NewString(), Source: source, Payload: payload, Ack: ack}
}
