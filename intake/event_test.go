package intake

import "testing"

type fakeAck struct{ acked, retried bool }

func (a *fakeAck) Ack()   { a.acked = true }
func (a *fakeAck) Retry() { a.retried = true }

func TestNewRawEventStampsCorrelationID(t *testing.T) {
	ack := &fakeAck{}
	e1 := NewRawEvent(SourceQueue, []byte(`{}`), ack)
	e2 := NewRawEvent(SourceQueue, []byte(`{}`), ack)

	if e1.ID == "" {
		t.Fatal("expected a non-empty correlation ID")
	}
	if e1.ID == e2.ID {
		t.Fatal("expected two events to get distinct correlation IDs")
	}
	if e1.Source != SourceQueue {
		t.Errorf("source = %s, want %s", e1.Source, SourceQueue)
	}
	if string(e1.Payload) != `{}` {
		t.Errorf("payload = %s, want {}", e1.Payload)
	}
}
