package kafka

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler consumes raw messages from one topic. Register handlers
// before Start; the consumer fans messages out to a worker pool while
// keeping at most one message in flight per partition, so per-key ordering
// set by the producer survives on the consuming side.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// ConsumerOption configures Consumer.
type ConsumerOption func(*ConsumerConfig)

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Brokers         []string
	GroupID         string
	AutoOffsetReset string // "earliest" or "latest"; applies when the group has no committed offset
	WorkerCount     int
	BufferSize      int
	RetryMax        int
	BackoffMin      time.Duration
	BackoffMax      time.Duration
	DLQTopic        string
	MinBytes        int
	MaxBytes        int
}

// WithConsumerBrokers sets the Kafka broker addresses.
func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Brokers = brokers
	}
}

// WithConsumerGroupID sets the consumer group ID.
func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.GroupID = groupID
	}
}

// WithConsumerAutoOffsetReset chooses where a fresh group starts reading:
// "earliest" replays the topic, "latest" picks up new messages only.
func WithConsumerAutoOffsetReset(autoOffsetReset string) ConsumerOption {
	return func(c *ConsumerConfig) {
		if autoOffsetReset != "" {
			c.AutoOffsetReset = autoOffsetReset
		}
	}
}

// WithConsumerWorkers sets the number of handler goroutines.
func WithConsumerWorkers(count int) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.WorkerCount = count
	}
}

// WithConsumerRetry configures handler retry attempts and the backoff range
// between them.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// WithConsumerDLQ sets the dead letter topic. Messages that exhaust their
// retries are parked there instead of blocking the partition.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.DLQTopic = topic
	}
}

// WithConsumerFetch sets fetch min/max bytes.
func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.MinBytes = minBytes
		c.MaxBytes = maxBytes
	}
}

// WithConsumerBufferSize sets the worker queue capacity.
func WithConsumerBufferSize(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.BufferSize = n
		}
	}
}

// Consumer reads registered topics and dispatches messages to handlers
// through a bounded worker queue.
type Consumer struct {
	cfg      *ConsumerConfig
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	queue    chan *envelope
	dlq      *kafka.Writer
	hook     ConsumerHook

	plMu      sync.Mutex
	partLocks map[string]map[int]*sync.Mutex

	stop     chan struct{}
	stopOnce sync.Once
	readerWg sync.WaitGroup
	workerWg sync.WaitGroup
}

// envelope carries one fetched message through the worker queue.
type envelope struct {
	topic string
	value []byte
	raw   kafka.Message
}

var errConsumerStopping = errors.New("consumer stopping")

// NewConsumer creates a Kafka consumer. Brokers are required; everything
// else has workable defaults for a single-instance deployment.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:         "default",
		AutoOffsetReset: "earliest",
		WorkerCount:     1,
		BufferSize:      10,
		RetryMax:        3,
		BackoffMin:      50 * time.Millisecond,
		BackoffMax:      2 * time.Second,
		MinBytes:        10e3,
		MaxBytes:        10e6,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	c := &Consumer{
		cfg:       cfg,
		readers:   make(map[string]*kafka.Reader),
		handlers:  make(map[string]MessageHandler),
		queue:     make(chan *envelope, cfg.BufferSize),
		partLocks: make(map[string]map[int]*sync.Mutex),
		stop:      make(chan struct{}),
		hook:      NoopHook{},
	}

	initConsumerMetrics()

	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}

	return c, nil
}

// RegisterHandler registers a handler for its topic. The first registration
// for a topic wins.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		log.Printf("kafka consumer: handler already registered for topic %s", topic)
		return
	}
	c.handlers[topic] = handler
}

// WithConsumerHook installs a lifecycle hook. Use NewHookChain to compose
// several.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start opens one reader per registered topic and launches the worker pool.
func (c *Consumer) Start() error {
	offset := c.startOffset()
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			Topic:       topic,
			GroupID:     c.cfg.GroupID,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
			StartOffset: offset,
		})
	}

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.workerWg.Add(1)
		go c.worker()
	}

	for topic, reader := range c.readers {
		c.readerWg.Add(1)
		go c.readLoop(topic, reader)
	}

	log.Printf("kafka consumer: started, topics=%d workers=%d group=%s", len(c.readers), c.cfg.WorkerCount, c.cfg.GroupID)
	return nil
}

func (c *Consumer) startOffset() int64 {
	if c.cfg.AutoOffsetReset == "latest" {
		return kafka.LastOffset
	}
	return kafka.FirstOffset
}

// Stop shuts the consumer down, waiting for in-flight messages up to the
// context deadline.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error

	c.stopOnce.Do(func() {
		log.Println("kafka consumer: stopping")

		// Readers must be gone before the queue closes; a send on a
		// closed channel would panic.
		close(c.stop)
		c.readerWg.Wait()
		close(c.queue)

		stopErr = c.waitForWorkers(ctx)

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				log.Printf("kafka consumer: closing reader for %s: %v", topic, err)
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				log.Printf("kafka consumer: closing dlq writer: %v", err)
			}
		}

		if stopErr == nil {
			log.Println("kafka consumer: stopped")
		}
	})

	return stopErr
}

func (c *Consumer) waitForWorkers(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.workerWg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
	case <-done:
		return nil
	}
}

// readLoop fetches messages from one topic and feeds the worker queue.
// Offsets are committed by the workers after handling, not here; a crash
// between fetch and commit therefore redelivers rather than drops.
func (c *Consumer) readLoop(topic string, reader *kafka.Reader) {
	defer c.readerWg.Done()

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		// The short deadline is what lets the loop notice Stop.
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		msg, err := reader.FetchMessage(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				log.Printf("kafka consumer: fetch from %s: %v", topic, err)
			}
			continue
		}

		if !c.enqueue(&envelope{topic: topic, value: msg.Value, raw: msg}) {
			return
		}
	}
}

// enqueue hands a message to the worker pool. When the queue runs hot it
// backs off instead of dropping; returns false if the consumer is stopping.
func (c *Consumer) enqueue(e *envelope) bool {
	for {
		select {
		case c.queue <- e:
			depth := float64(len(c.queue))
			consumerMetrics.queueDepth.WithLabelValues(e.topic).Set(depth)
			consumerMetrics.queueFullness.WithLabelValues(e.topic).Set(depth / float64(cap(c.queue)))
			return true
		case <-c.stop:
			return false
		default:
			full := float64(len(c.queue)) / float64(cap(c.queue))
			consumerMetrics.queueFullness.WithLabelValues(e.topic).Set(full)
			if full > 0.8 {
				time.Sleep(10 * time.Millisecond)
			} else {
				runtime.Gosched()
			}
		}
	}
}

func (c *Consumer) worker() {
	defer c.workerWg.Done()

	for e := range c.queue {
		handler, ok := c.handlers[e.topic]
		if !ok {
			continue
		}
		c.process(handler, e)
	}
}

// process runs one message through its handler with retries, then commits
// or parks it on the DLQ. A panicking handler is contained here so a poison
// message cannot take the worker down.
func (c *Consumer) process(handler MessageHandler, e *envelope) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("kafka consumer: panic handling message from %s: %v", e.topic, r)
		}
		consumerMetrics.handleSeconds.WithLabelValues(e.topic).Observe(time.Since(start).Seconds())
	}()

	// One in-flight message per partition preserves per-symbol tick order.
	pl := c.partitionLock(e.topic, e.raw.Partition)
	pl.Lock()
	defer pl.Unlock()

	err := c.handleWithRetry(handler, e)
	if errors.Is(err, errConsumerStopping) {
		return
	}
	if err != nil {
		c.hook.OnError(context.Background(), e.topic, e.raw, e.value, err)
		log.Printf("kafka consumer: giving up on message from %s: %v", e.topic, err)
		if !c.sendToDLQ(e) {
			// Nowhere safe to park it; leave the offset uncommitted so a
			// restart retries the message.
			return
		}
	}

	if reader := c.readers[e.topic]; reader != nil {
		_ = c.commitWithRetry(reader, e.raw, 3)
	}
}

// handleWithRetry invokes the handler until it succeeds or RetryMax is
// exhausted, backing off with jitter between attempts.
func (c *Consumer) handleWithRetry(handler MessageHandler, e *envelope) error {
	for attempt := 1; ; attempt++ {
		hctx, raw, value, err := c.hook.BeforeHandle(context.Background(), e.topic, e.raw, e.value)
		if err == nil {
			err = handler.Handle(hctx, value)
			c.hook.AfterHandle(hctx, e.topic, raw, value, err)
		}
		if err == nil || attempt > c.cfg.RetryMax {
			return err
		}

		c.hook.OnError(hctx, e.topic, raw, value, err)
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-c.stop:
			return errConsumerStopping
		}
	}
}

// sendToDLQ parks a failed message on the dead letter topic. Returns true
// once the message is safely out of the partition.
func (c *Consumer) sendToDLQ(e *envelope) bool {
	if c.dlq == nil {
		return false
	}

	msg := kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Value:   e.value,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "source_topic", Value: []byte(e.topic)}},
	}
	if err := c.dlq.WriteMessages(context.Background(), msg); err != nil {
		log.Printf("kafka consumer: dlq write for %s: %v", e.topic, err)
		return false
	}
	return true
}

// commitWithRetry commits a single offset with bounded retries.
func (c *Consumer) commitWithRetry(reader *kafka.Reader, km kafka.Message, max int) error {
	if max <= 0 {
		max = 1
	}
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	log.Printf("kafka consumer: commit failed after %d attempts: %v", max, err)
	return err
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	c.plMu.Lock()
	defer c.plMu.Unlock()

	m, ok := c.partLocks[topic]
	if !ok {
		m = make(map[int]*sync.Mutex)
		c.partLocks[topic] = m
	}
	l, ok := m[partition]
	if !ok {
		l = &sync.Mutex{}
		m[partition] = l
	}
	return l
}

// backoffWithJitter grows exponentially from min, caps at max, and shaves
// off up to half so synchronized retries spread out.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := min * time.Duration(1<<uint(attempt-1))
	if exp > max {
		exp = max
	}
	if half := int64(exp) / 2; half > 0 {
		exp -= time.Duration(rand.Int63n(half))
	}
	return exp
}

var (
	consumerMetricsOnce sync.Once
	consumerRegisterer  prometheus.Registerer
	consumerMetrics     struct {
		queueDepth    *prometheus.GaugeVec
		queueFullness *prometheus.GaugeVec
		handleSeconds *prometheus.HistogramVec
	}
)

// SetConsumerMetricsRegisterer overrides the registry consumer metrics land
// on. Call before the first NewConsumer; tests use it to assert on a clean
// registry.
func SetConsumerMetricsRegisterer(reg prometheus.Registerer) { consumerRegisterer = reg }

func initConsumerMetrics() {
	consumerMetricsOnce.Do(func() {
		depth := prometheus.GaugeOpts{Name: "fincast_kafka_consumer_queue_depth", Help: "Messages waiting in the consumer queue"}
		fullness := prometheus.GaugeOpts{Name: "fincast_kafka_consumer_queue_fullness", Help: "Consumer queue utilization (len/cap)"}
		handle := prometheus.HistogramOpts{Name: "fincast_kafka_consumer_handle_seconds", Help: "Handling time per message"}
		labels := []string{"topic"}

		if consumerRegisterer != nil {
			consumerMetrics.queueDepth = prometheus.NewGaugeVec(depth, labels)
			consumerMetrics.queueFullness = prometheus.NewGaugeVec(fullness, labels)
			consumerMetrics.handleSeconds = prometheus.NewHistogramVec(handle, labels)
			consumerRegisterer.MustRegister(
				consumerMetrics.queueDepth,
				consumerMetrics.queueFullness,
				consumerMetrics.handleSeconds,
			)
			return
		}

		consumerMetrics.queueDepth = promauto.NewGaugeVec(depth, labels)
		consumerMetrics.queueFullness = promauto.NewGaugeVec(fullness, labels)
		consumerMetrics.handleSeconds = promauto.NewHistogramVec(handle, labels)
	})
}
