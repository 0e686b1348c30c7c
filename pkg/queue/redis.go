package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"FinCast/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// QueueMode selects which halves of the queue a process runs. A single
// deployment usually runs both; a publish-only mode exists for one-shot
// tools that enqueue work for a running server.
type QueueMode int

const (
	ModeProducerConsumer QueueMode = iota
	ModeProducerOnly
	ModeConsumerOnly
)

func (m QueueMode) String() string {
	switch m {
	case ModeProducerOnly:
		return "producer-only"
	case ModeConsumerOnly:
		return "consumer-only"
	default:
		return "producer-consumer"
	}
}

const (
	pingTimeout        = 5 * time.Second
	popTimeout         = time.Second
	retrySweepInterval = 5 * time.Second
)

// RedisQueue is a Redis-backed job queue: a list for ready messages, a
// sorted set holding retries keyed by their due time, and a list parking
// messages that exhausted their retries.
type RedisQueue struct {
	logger    *logger.Logger
	config    *QueueConfig
	client    *redis.Client
	jobs      map[string]Job
	wg        sync.WaitGroup
	mu        sync.RWMutex
	running   bool
	stopCh    chan struct{}
	mode      QueueMode
	ctx       context.Context
	cancel    context.CancelFunc
	keyPrefix string
	keys      queueKeys
}

type queueKeys struct {
	ready string
	retry string
	dead  string
}

func keysFor(prefix string) queueKeys {
	return queueKeys{
		ready: prefix + ":messages",
		retry: prefix + ":retry",
		dead:  prefix + ":dlq",
	}
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix namespaces the queue's Redis keys. Publisher and consumer
// must agree on it.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(q *RedisQueue) {
		q.keyPrefix = prefix
	}
}

// NewRedisQueue creates a queue. Call Start before publishing or expecting
// jobs to run.
func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client *redis.Client, mode QueueMode, opts ...RedisQueueOption) *RedisQueue {
	if config == nil {
		config = &QueueConfig{}
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	q := &RedisQueue{
		logger:    lgr,
		config:    config,
		client:    client,
		jobs:      make(map[string]Job),
		stopCh:    make(chan struct{}),
		mode:      mode,
		ctx:       ctx,
		cancel:    cancel,
		keyPrefix: "fincast:queue",
	}

	for _, opt := range opts {
		opt(q)
	}
	q.keys = keysFor(q.keyPrefix)

	return q
}

// NewRedisPublisher creates and starts a publish-only queue for tools that
// enqueue work without running workers.
func NewRedisPublisher(lgr *logger.Logger, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	q := NewRedisQueue(lgr, &QueueConfig{}, client, ModeProducerOnly, opts...)
	if err := q.Start(); err != nil {
		lgr.Error("redis publisher start failed", logger.Error(err))
	}
	return q
}

// RegisterJob registers a consumer for a message type. The first
// registration per type wins.
func (q *RedisQueue) RegisterJob(job Job) {
	if q.mode == ModeProducerOnly {
		q.logger.Warn("job registration ignored in producer-only mode",
			logger.String("job", job.Name()))
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.jobs[job.Type()]; exists {
		q.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}

	q.jobs[job.Type()] = job
	q.logger.Info("job registered",
		logger.String("job", job.Name()),
		logger.String("type", job.Type()))
}

// Start verifies the Redis connection and, outside producer-only mode,
// launches the workers and the retry sweeper.
func (q *RedisQueue) Start() error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return fmt.Errorf("queue already running")
	}
	q.running = true
	q.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := q.client.Ping(ctx).Err(); err != nil {
		q.mu.Lock()
		q.running = false
		q.mu.Unlock()
		return fmt.Errorf("redis ping: %w", err)
	}

	if q.mode == ModeProducerOnly {
		q.logger.Info("redis publisher started",
			logger.String("addr", q.client.Options().Addr))
		return nil
	}

	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.wg.Add(1)
	go q.retrySweeper()

	q.logger.Info("redis queue started",
		logger.Int("workers", q.config.Workers),
		logger.String("addr", q.client.Options().Addr),
		logger.String("mode", q.mode.String()))
	return nil
}

// Stop drains the workers, waiting up to the context deadline.
func (q *RedisQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.logger.Info("stopping redis queue")
	q.cancel()
	if q.mode != ModeProducerOnly {
		close(q.stopCh)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		q.logger.Warn("timeout waiting for queue workers", logger.Error(ctx.Err()))
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
		q.logger.Info("redis queue stopped")
		return nil
	}
}

// Enqueue pushes a message onto the ready list. In consuming modes the
// type must have a registered job, which catches typos at publish time.
func (q *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if !q.running {
		return fmt.Errorf("queue not running")
	}
	if q.mode != ModeProducerOnly {
		if _, exists := q.jobs[msgType]; !exists {
			return fmt.Errorf("no job registered for type: %s", msgType)
		}
	}

	msg := Message{
		ID:        strconv.FormatInt(time.Now().UnixNano(), 10),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	msgData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := q.client.LPush(ctx, q.keys.ready, msgData).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// PublishMessage implements QueueService.
func (q *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return q.Enqueue(ctx, msgType, payload)
}

func (q *RedisQueue) worker(id int) {
	defer q.wg.Done()
	q.logger.Info("queue worker started", logger.Int("worker_id", id))

	for {
		select {
		case <-q.stopCh:
			q.logger.Info("queue worker stopping", logger.Int("worker_id", id))
			return
		case <-q.ctx.Done():
			q.logger.Info("queue worker cancelled", logger.Int("worker_id", id))
			return
		default:
			q.popNext()
		}
	}
}

// popNext blocks briefly on the ready list and dispatches whatever arrives.
// The short pop timeout is what lets the worker loop notice Stop.
func (q *RedisQueue) popNext() {
	ctx, cancel := context.WithTimeout(q.ctx, popTimeout)
	defer cancel()

	result, err := q.client.BRPop(ctx, popTimeout, q.keys.ready).Result()
	if err != nil {
		switch {
		case errors.Is(err, redis.Nil),
			errors.Is(err, context.DeadlineExceeded),
			errors.Is(err, context.Canceled):
			return
		}
		q.logger.Error("brpop error", logger.Error(err))
		time.Sleep(time.Second)
		return
	}
	if len(result) < 2 {
		return
	}

	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		q.logger.Error("unmarshal queue message", logger.Error(err))
		return
	}
	q.dispatch(msg)
}

func (q *RedisQueue) dispatch(msg Message) {
	q.mu.RLock()
	job, exists := q.jobs[msg.Type]
	q.mu.RUnlock()
	if !exists {
		q.logger.Error("no job for message type",
			logger.String("type", msg.Type),
			logger.String("id", msg.ID))
		return
	}

	start := time.Now()
	err := job.Handle(q.ctx, rawPayload(msg.Payload))
	elapsed := time.Since(start)

	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		q.logger.Warn("message cancelled mid-handle",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int64("elapsed_ms", elapsed.Milliseconds()))
		return
	}
	q.retryOrPark(msg, job, err)
}

// rawPayload re-encodes generic JSON containers so jobs can decode them
// into their own types with ParsePayload.
func rawPayload(payload interface{}) interface{} {
	switch payload.(type) {
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(payload)
		if err != nil {
			return payload
		}
		return json.RawMessage(b)
	default:
		return payload
	}
}

// retryOrPark schedules another attempt, or moves the message to the dead
// letter list once the retry budget is spent.
func (q *RedisQueue) retryOrPark(msg Message, job Job, err error) {
	q.logger.Error("message processing error",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err))

	if msg.Attempts >= q.config.RetryLimit {
		q.logger.Error("max retries reached",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()))
		q.park(msg)
		return
	}

	msg.Attempts++
	due := time.Now().Add(q.config.RetryDelay)
	msgData, merr := json.Marshal(msg)
	if merr != nil {
		q.logger.Error("marshal retry", logger.Error(merr))
		return
	}
	zerr := q.client.ZAdd(context.Background(), q.keys.retry, redis.Z{
		Score:  float64(due.Unix()),
		Member: msgData,
	}).Err()
	if zerr != nil {
		q.logger.Error("schedule retry", logger.Error(zerr))
		return
	}
	q.logger.Info("retry scheduled",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts),
		logger.String("retry_at", due.Format(time.RFC3339)))
}

func (q *RedisQueue) park(msg Message) {
	msgData, err := json.Marshal(msg)
	if err != nil {
		q.logger.Error("marshal dead letter", logger.Error(err))
		return
	}
	if err := q.client.LPush(context.Background(), q.keys.dead, msgData).Err(); err != nil {
		q.logger.Error("push dead letter", logger.Error(err))
	}
}

// retrySweeper periodically moves due retries back onto the ready list.
func (q *RedisQueue) retrySweeper() {
	defer q.wg.Done()
	q.logger.Info("retry sweeper started")

	ticker := time.NewTicker(retrySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			q.logger.Info("retry sweeper stopping")
			return
		case <-q.ctx.Done():
			q.logger.Info("retry sweeper cancelled")
			return
		case <-ticker.C:
			q.sweepDueRetries()
		}
	}
}

func (q *RedisQueue) sweepDueRetries() {
	now := float64(time.Now().Unix())

	due, err := q.client.ZRangeByScoreWithScores(q.ctx, q.keys.retry, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatFloat(now, 'f', 0, 64),
	}).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		q.logger.Error("fetch due retries", logger.Error(err))
		return
	}

	for _, z := range due {
		select {
		case <-q.ctx.Done():
			return
		default:
		}

		msgData := z.Member.(string)

		// Remove and requeue atomically so a concurrent sweep cannot
		// duplicate the message.
		pipe := q.client.TxPipeline()
		pipe.ZRem(q.ctx, q.keys.retry, msgData)
		pipe.LPush(q.ctx, q.keys.ready, msgData)
		if _, err := pipe.Exec(q.ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			q.logger.Error("requeue retry", logger.Error(err))
		}
	}
}
