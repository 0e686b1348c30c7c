package middleware

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
)

type fakeProc struct {
	mu       sync.Mutex
	failures int // calls failing before the proc recovers
	got      []*models.Tick
}

func (f *fakeProc) Process(ctx context.Context, t *models.Tick) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("downstream unavailable")
	}
	f.got = append(f.got, t)
	return nil
}

func (f *fakeProc) delivered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func (f *fakeProc) last() *models.Tick {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.got) == 0 {
		return nil
	}
	return f.got[len(f.got)-1]
}

type countingMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func (m *countingMetrics) RecordMessageSent(backend, symbol string) {}

func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errors == nil {
		m.errors = make(map[string]int)
	}
	m.errors[kind]++
}

func (m *countingMetrics) RecordLastPrice(symbol string, price float64) {}

func (m *countingMetrics) RecordLatency(op string, seconds float64) {}

func (m *countingMetrics) errCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func tickAt(symbol string, price float64) *models.Tick {
	return &models.Tick{Symbol: symbol, Price: price, Volume: 1, Timestamp: time.Now().Unix()}
}

func TestPipelineRejectsInvalidTicks(t *testing.T) {
	proc := &fakeProc{}
	m := &countingMetrics{}
	p := NewRealtimePipeline(proc, m)

	cases := []*models.Tick{
		nil,
		{Price: 1, Volume: 1, Timestamp: time.Now().Unix()},           // no symbol
		{Symbol: "AAPL", Price: 1, Volume: 1},                         // no timestamp
		{Symbol: "AAPL", Price: -1, Volume: 1, Timestamp: 1700000000}, // negative price
	}
	for _, c := range cases {
		assert.Error(t, p.Process(context.Background(), c))
	}
	assert.Equal(t, 0, proc.delivered())
	assert.Equal(t, len(cases), m.errCount("pipeline_validate"))
}

func TestPipelineThrottlesPerSymbol(t *testing.T) {
	proc := &fakeProc{}
	m := &countingMetrics{}
	p := NewRealtimePipeline(proc, m, WithMaxRPS(1))

	require.NoError(t, p.Process(context.Background(), tickAt("AAPL", 100)))
	// Within the 1s gap: dropped without error.
	require.NoError(t, p.Process(context.Background(), tickAt("AAPL", 101)))
	// A different symbol has its own budget.
	require.NoError(t, p.Process(context.Background(), tickAt("MSFT", 300)))

	assert.Equal(t, 2, proc.delivered())
	assert.Equal(t, 1, m.errCount("pipeline_throttle"))
}

func TestPipelineAppliesTransformBeforeForwarding(t *testing.T) {
	proc := &fakeProc{}
	m := &countingMetrics{}
	p := NewRealtimePipeline(proc, m, WithTransform(func(t *models.Tick) *models.Tick {
		t.Symbol = strings.ToUpper(t.Symbol)
		return t
	}))

	require.NoError(t, p.Process(context.Background(), tickAt("aapl", 100)))
	require.Equal(t, 1, proc.delivered())
	assert.Equal(t, "AAPL", proc.last().Symbol)
}

func TestPipelineBuffersWhenDownstreamFails(t *testing.T) {
	proc := &fakeProc{failures: 1}
	m := &countingMetrics{}
	p := NewRealtimePipeline(proc, m, WithBufferSize(4))

	err := p.Process(context.Background(), tickAt("AAPL", 100))
	require.Error(t, err)
	assert.Equal(t, 1, m.errCount("pipeline_process"))
	assert.Len(t, p.buffer, 1)
}

func TestFlushLoopReplaysBufferedTicks(t *testing.T) {
	proc := &fakeProc{failures: 1}
	m := &countingMetrics{}
	p := NewRealtimePipeline(proc, m, WithBufferSize(4))

	require.Error(t, p.Process(context.Background(), tickAt("AAPL", 100)))

	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool {
		return proc.delivered() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "AAPL", proc.last().Symbol)
}
