package queuesrc

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/epic1st/repricer/intake"
	"github.com/epic1st/repricer/logging"
)

// fakeQueueClient is a minimal in-memory QueueClient, grounded in the
// store package's habit of testing against a real (if simpler)
// implementation of the interface rather than mocking it.
type fakeQueueClient struct {
	mu      sync.Mutex
	pending []Message
	deleted []string
}

func (f *fakeQueueClient) Receive(ctx context.Context, maxMessages int32, waitTime time.Duration) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return nil, nil
	}
	n := int(maxMessages)
	if n > len(f.pending) {
		n = len(f.pending)
	}
	out := f.pending[:n]
	f.pending = f.pending[n:]
	return out, nil
}

func (f *fakeQueueClient) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeQueueClient) Close() error { return nil }

func TestAdapterRunDispatchesReceivedMessages(t *testing.T) {
	client := &fakeQueueClient{pending: []Message{
		{ID: "m1", Body: []byte(`{"itemId":"X1"}`), ReceiveCount: 1},
	}}
	out := make(chan intake.RawEvent, 1)
	logger := logging.NewLogger(logging.DEBUG, io.Discard)
	adapter := NewAdapter(client, 10, 10*time.Millisecond, 1000, out, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go adapter.Run(ctx)

	select {
	case event := <-out:
		if event.Source != intake.SourceQueue {
			t.Errorf("source = %s, want %s", event.Source, intake.SourceQueue)
		}
		if string(event.Payload) != `{"itemId":"X1"}` {
			t.Errorf("payload = %s, want the message body", event.Payload)
		}
		event.Ack.Ack()
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for a dispatched event")
	}

	deadline := time.Now().Add(time.Second)
	for {
		client.mu.Lock()
		n := len(client.deleted)
		client.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected Ack to delete the message from the queue client")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestQueueAckRetryIsANoOp(t *testing.T) {
	client := &fakeQueueClient{}
	logger := logging.NewLogger(logging.DEBUG, io.Discard)
	ack := &queueAck{client: client, id: "m1", logger: logger}

	ack.Retry()

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.deleted) != 0 {
		t.Error("Retry should never delete the message: redelivery is the reaper's job")
	}
}
