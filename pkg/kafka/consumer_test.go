package kafka

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// Keep consumer metrics off the global registry so repeated test runs
	// cannot collide with other packages.
	SetConsumerMetricsRegisterer(prometheus.NewRegistry())
	os.Exit(m.Run())
}

type stubHandler struct {
	topic string
	fn    func(context.Context, []byte) error
}

func (s stubHandler) Topic() string { return s.topic }

func (s stubHandler) Handle(ctx context.Context, b []byte) error { return s.fn(ctx, b) }

func TestNewConsumerRequiresBrokers(t *testing.T) {
	_, err := NewConsumer()
	require.Error(t, err)
}

func TestNewConsumerDefaults(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}))
	require.NoError(t, err)

	assert.Equal(t, "default", c.cfg.GroupID)
	assert.Equal(t, 1, c.cfg.WorkerCount)
	assert.Equal(t, 3, c.cfg.RetryMax)
	assert.Equal(t, 10, cap(c.queue))
	assert.Equal(t, kafka.FirstOffset, c.startOffset())
}

func TestStartOffsetLatest(t *testing.T) {
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerAutoOffsetReset("latest"),
	)
	require.NoError(t, err)
	assert.Equal(t, kafka.LastOffset, c.startOffset())
}

func TestRegisterHandlerFirstWins(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}))
	require.NoError(t, err)

	first := stubHandler{topic: "ticks", fn: func(context.Context, []byte) error { return nil }}
	second := stubHandler{topic: "ticks", fn: func(context.Context, []byte) error { return errors.New("nope") }}

	c.RegisterHandler(first)
	c.RegisterHandler(second)

	require.Len(t, c.handlers, 1)
	assert.NoError(t, c.handlers["ticks"].Handle(context.Background(), nil))
}

func TestEnqueueReturnsFalseOnStop(t *testing.T) {
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerBufferSize(1),
	)
	require.NoError(t, err)

	require.True(t, c.enqueue(&envelope{topic: "ticks"}))

	// Queue is full now; the second enqueue must spin until Stop releases it.
	done := make(chan bool, 1)
	go func() { done <- c.enqueue(&envelope{topic: "ticks"}) }()

	close(c.stop)
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue did not observe stop")
	}
}

func TestPartitionLockIdentity(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}))
	require.NoError(t, err)

	a := c.partitionLock("ticks", 0)
	b := c.partitionLock("ticks", 0)
	other := c.partitionLock("ticks", 1)

	assert.Same(t, a, b)
	assert.NotSame(t, a, other)

	// Concurrent lookups of the same key must agree on one mutex.
	var wg sync.WaitGroup
	results := make([]*sync.Mutex, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.partitionLock("ticks", 7)
		}(i)
	}
	wg.Wait()
	for _, l := range results {
		assert.Same(t, results[0], l)
	}
}

func TestHandleWithRetrySucceedsAfterFailures(t *testing.T) {
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(5, time.Millisecond, 2*time.Millisecond),
	)
	require.NoError(t, err)

	var afterCalls, errorCalls int
	c.WithConsumerHook(NewHookChain(HookFuncs{
		After: func(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
			afterCalls++
		},
		Err: func(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
			errorCalls++
		},
	}))

	attempts := 0
	h := stubHandler{topic: "ticks", fn: func(context.Context, []byte) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}}

	err = c.handleWithRetry(h, &envelope{topic: "ticks"})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, afterCalls)
	assert.Equal(t, 2, errorCalls)
}

func TestHandleWithRetryExhaustsAttempts(t *testing.T) {
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(2, time.Millisecond, 2*time.Millisecond),
	)
	require.NoError(t, err)

	boom := errors.New("boom")
	attempts := 0
	h := stubHandler{topic: "ticks", fn: func(context.Context, []byte) error {
		attempts++
		return boom
	}}

	err = c.handleWithRetry(h, &envelope{topic: "ticks"})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, attempts) // initial try plus two retries
}

func TestHandleWithRetryObservesStop(t *testing.T) {
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(5, time.Second, 2*time.Second),
	)
	require.NoError(t, err)

	h := stubHandler{topic: "ticks", fn: func(context.Context, []byte) error {
		return errors.New("always failing")
	}}

	done := make(chan error, 1)
	go func() { done <- c.handleWithRetry(h, &envelope{topic: "ticks"}) }()

	time.Sleep(20 * time.Millisecond)
	close(c.stop)

	select {
	case err := <-done:
		require.ErrorIs(t, err, errConsumerStopping)
	case <-time.After(2 * time.Second):
		t.Fatal("handleWithRetry kept retrying past stop")
	}
}

func TestBackoffWithJitterStaysBounded(t *testing.T) {
	min, max := 50*time.Millisecond, 2*time.Second
	for attempt := 1; attempt <= 8; attempt++ {
		d := backoffWithJitter(min, max, attempt)
		assert.GreaterOrEqual(t, d, min/2, "attempt %d", attempt)
		assert.LessOrEqual(t, d, max, "attempt %d", attempt)
	}
}

func TestBackoffWithJitterDefaultsBadRange(t *testing.T) {
	d := backoffWithJitter(0, 0, 1)
	assert.Greater(t, d, time.Duration(0))
	assert.LessOrEqual(t, d, 50*time.Millisecond)
}

func TestStopWithoutStart(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Stop(ctx)) // idempotent
}
