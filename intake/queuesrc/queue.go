// Package queuesrc is the long-poll queue adapter for marketplace-A
// AnyOfferChanged notifications (C1, §4.1, §6). It is source-agnostic
// behind QueueClient; RedisQueueClient is the concrete implementation
// this module ships, grounded on the blocking-dequeue/visibility-timeout
// shape of aidenlippert-zerostate's RedisTaskQueue, adapted to the
// spec's batch-receive/redrive-to-DLQ semantics.
package queuesrc

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/epic1st/repricer/intake"
	"github.com/epic1st/repricer/logging"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Message is one delivered queue item, with enough bookkeeping for the
// adapter to track redrive (§4.1 "max-receive 3 -> DLQ").
type Message struct {
	ID           string
	Body         []byte
	ReceiveCount int
}

// QueueClient abstracts the underlying long-poll queue so the adapter
// works whether it's backed by RedisQueueClient or a real managed queue.
type QueueClient interface {
	// Receive long-polls for up to maxMessages, waiting up to waitTime
	// for at least one to arrive. An empty, nil-error result means the
	// wait elapsed with nothing available.
	Receive(ctx context.Context, maxMessages int32, waitTime time.Duration) ([]Message, error)
	// Delete removes a message after successful (or business-skip)
	// processing, analogous to deleting by receipt handle.
	Delete(ctx context.Context, id string) error
	Close() error
}

type envelope struct {
	ID           string          `json:"id"`
	Body         json.RawMessage `json:"body"`
	ReceiveCount int             `json:"receive_count"`
}

// RedisQueueClient implements QueueClient over a Redis list acting as
// the main queue, a sorted set tracking in-flight visibility deadlines,
// and a list acting as the dead-letter sink. Grounded on
// aidenlippert-zerostate/libs/queue/redis_queue.go's single-client,
// context-scoped-background-loop shape; the priority sorted set there
// becomes a deadline-scored sorted set here.
type RedisQueueClient struct {
	client *redis.Client
	logger *logging.Logger

	mainKey       string
	processingKey string
	dlqKey        string

	visibility  time.Duration
	maxReceives int32

	mu       sync.Mutex
	inFlight map[string][]byte // id -> re-encoded envelope, kept until Delete or a reap-requeue

	cancel context.CancelFunc
}

// RedisQueueClientConfig configures RedisQueueClient.
type RedisQueueClientConfig struct {
	Address           string
	Password          string
	DB                int
	QueueName         string
	VisibilityTimeout time.Duration
	MaxReceiveCount   int32
}

// NewRedisQueueClient builds a Redis client (connections are opened
// lazily on first use) and starts the visibility-timeout reaper loop.
func NewRedisQueueClient(cfg RedisQueueClientConfig, logger *logging.Logger) (*RedisQueueClient, error) {
	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithCancel(context.Background())
	q := &RedisQueueClient{
		client:        rc,
		logger:        logger,
		mainKey:       "queue:" + cfg.QueueName,
		processingKey: "queue:" + cfg.QueueName + ":processing",
		dlqKey:        "queue:" + cfg.QueueName + ":dlq",
		visibility:    cfg.VisibilityTimeout,
		maxReceives:   cfg.MaxReceiveCount,
		inFlight:      make(map[string][]byte),
		cancel:        cancel,
	}
	go q.reapLoop(ctx)
	return q, nil
}

func (q *RedisQueueClient) Receive(ctx context.Context, maxMessages int32, waitTime time.Duration) ([]Message, error) {
	var out []Message
	deadline := time.Now().Add(waitTime)

	for int32(len(out)) < maxMessages {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		result, err := q.client.BLPop(ctx, remaining, q.mainKey).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return out, err
		}

		var env envelope
		if err := json.Unmarshal([]byte(result[1]), &env); err != nil {
			q.logger.Warn("queuesrc: dropping malformed queue entry", logging.String("error", err.Error()))
			continue
		}
		env.ReceiveCount++

		if env.ReceiveCount > int(q.maxReceives) {
			if err := q.client.RPush(ctx, q.dlqKey, result[1]).Err(); err != nil {
				q.logger.Error("queuesrc: failed to move message to dead-letter sink", err)
			}
			continue
		}

		reencoded, err := json.Marshal(env)
		if err != nil {
			continue
		}

		q.mu.Lock()
		q.inFlight[env.ID] = reencoded
		q.mu.Unlock()

		score := float64(time.Now().Add(q.visibility).Unix())
		if err := q.client.ZAdd(ctx, q.processingKey, redis.Z{Score: score, Member: env.ID}).Err(); err != nil {
			q.logger.Error("queuesrc: failed to track visibility deadline", err)
		}

		out = append(out, Message{ID: env.ID, Body: []byte(env.Body), ReceiveCount: env.ReceiveCount})
	}
	return out, nil
}

func (q *RedisQueueClient) Delete(ctx context.Context, id string) error {
	q.mu.Lock()
	delete(q.inFlight, id)
	q.mu.Unlock()
	return q.client.ZRem(ctx, q.processingKey, id).Err()
}

// reapLoop requeues messages whose visibility deadline has elapsed
// without a Delete, so an at-least-once redelivery occurs (§4.1, §8 P8).
func (q *RedisQueueClient) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.reapOnce(ctx)
		}
	}
}

func (q *RedisQueueClient) reapOnce(ctx context.Context) {
	now := float64(time.Now().Unix())
	expired, err := q.client.ZRangeByScore(ctx, q.processingKey, &redis.ZRangeBy{Min: "-inf", Max: formatFloat(now)}).Result()
	if err != nil {
		q.logger.Error("queuesrc: reap scan failed", err)
		return
	}
	for _, id := range expired {
		q.mu.Lock()
		body, ok := q.inFlight[id]
		delete(q.inFlight, id)
		q.mu.Unlock()
		if !ok {
			q.client.ZRem(ctx, q.processingKey, id)
			continue
		}
		if err := q.client.RPush(ctx, q.mainKey, body).Err(); err != nil {
			q.logger.Error("queuesrc: failed to requeue expired message", err)
			continue
		}
		q.client.ZRem(ctx, q.processingKey, id)
	}
}

func (q *RedisQueueClient) Close() error {
	q.cancel()
	return q.client.Close()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 0, 64)
}

// Adapter polls a QueueClient in a loop and pushes each message onto the
// shared internal stream as an intake.RawEvent, paced by a rate.Limiter
// (§6 "long-poll, rate-limited consumer"). It is the source-A half of
// C1; webhook is the source-B half.
type Adapter struct {
	client  QueueClient
	limiter *rate.Limiter
	logger  *logging.Logger

	batchSize int32
	waitTime  time.Duration

	out chan<- intake.RawEvent
}

// NewAdapter wires a QueueClient to the shared output channel.
func NewAdapter(client QueueClient, batchSize int32, waitTime time.Duration, ratePerSec float64, out chan<- intake.RawEvent, logger *logging.Logger) *Adapter {
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	return &Adapter{
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(ratePerSec), burst),
		logger:    logger,
		batchSize: batchSize,
		waitTime:  waitTime,
		out:       out,
	}
}

// Run polls until ctx is cancelled. It never returns an error for a
// single failed poll attempt; it logs and retries on the next tick so a
// transient Redis hiccup doesn't kill the adapter goroutine.
func (a *Adapter) Run(ctx context.Context) {
	for {
		if err := ctx.Err(); err != nil {
			return
		}
		if err := a.limiter.Wait(ctx); err != nil {
			return
		}
		messages, err := a.client.Receive(ctx, a.batchSize, a.waitTime)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logger.Error("queuesrc: receive failed, backing off", err)
			continue
		}
		for _, m := range messages {
			ack := &queueAck{client: a.client, id: m.ID, logger: a.logger}
			event := intake.NewRawEvent(intake.SourceQueue, m.Body, ack)
			select {
			case a.out <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}

// queueAck implements intake.Acker for a queue-sourced message: Ack
// deletes it from the processing set, Retry is a no-op since letting
// the visibility timeout lapse already guarantees redelivery (§4.1).
type queueAck struct {
	client QueueClient
	id     string
	logger *logging.Logger
}

func (a *queueAck) Ack() {
	if err := a.client.Delete(context.Background(), a.id); err != nil {
		a.logger.Error("queuesrc: failed to delete acked message", err)
	}
}

func (a *queueAck) Retry() {
	// Intentionally a no-op: the message stays in the processing set and
	// is requeued by the visibility-timeout reaper.
}
