// Package middleware sits between the market data feed and the tick
// processor. The pipeline validates and throttles raw ticks, and rides out
// short downstream outages by buffering and replaying.
package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
)

// Proc is the downstream the pipeline forwards accepted ticks to.
type Proc interface {
	Process(ctx context.Context, t *models.Tick) error
}

// RealtimePipeline guards the tick path: malformed ticks are rejected,
// per-symbol bursts are thinned to at most maxRPS, and ticks the downstream
// refused wait in a bounded buffer for the flush loop to retry.
type RealtimePipeline struct {
	proc      Proc
	metrics   domrepo.Metrics
	transform func(*models.Tick) *models.Tick

	maxRPS int
	minGap time.Duration // spacing between accepted ticks of one symbol

	bufSize int
	buffer  chan *models.Tick

	// lastSeen is only touched from the feed's single reader goroutine, so
	// it carries no lock.
	lastSeen map[string]time.Time

	mu      sync.Mutex
	started bool
	stop    chan struct{}
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS caps accepted ticks per second for each symbol.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets how many ticks may wait for retry while the
// downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform installs a normalization hook applied before throttling.
// The result is validated again, so a transform cannot smuggle in a bad
// tick.
func WithTransform(fn func(*models.Tick) *models.Tick) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   20,
		bufSize:  1000,
		stop:     make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.buffer = make(chan *models.Tick, p.bufSize)
	if p.maxRPS > 0 {
		p.minGap = time.Second / time.Duration(p.maxRPS)
	}
	return p
}

// Start launches the flush loop that replays buffered ticks.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.flushLoop(ctx)
}

// Stop halts the flush loop. Buffered ticks still waiting are dropped.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stop)
}

// Process validates, throttles, and forwards one tick. When the downstream
// errors the tick is buffered for the flush loop and the error is returned
// so the caller can count it.
func (p *RealtimePipeline) Process(ctx context.Context, t *models.Tick) error {
	start := time.Now()

	if err := validateTick(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		t = p.transform(t)
		if err := validateTick(t); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.accept(t.Symbol, start) {
		// Over the per-symbol rate; dropping is deliberate, the next tick
		// carries a fresher price anyway.
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.buffer <- t:
			p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.buffer)))
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}

	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

// flushLoop replays buffered ticks, backing off while the downstream keeps
// failing and requeueing what it could not deliver.
func (p *RealtimePipeline) flushLoop(ctx context.Context) {
	const (
		backoffMin = 50 * time.Millisecond
		backoffMax = 2 * time.Second
	)
	backoff := backoffMin

	for {
		select {
		case <-p.stop:
			return
		case t := <-p.buffer:
			if t == nil {
				continue
			}
			if err := p.proc.Process(ctx, t); err != nil {
				if backoff < backoffMax {
					backoff *= 2
				}
				p.metrics.RecordError("pipeline_flush")
				time.Sleep(backoff)
				select {
				case p.buffer <- t:
				default:
					p.metrics.RecordError("pipeline_buffer_drop")
				}
				continue
			}
			backoff = backoffMin
		}
	}
}

func validateTick(t *models.Tick) error {
	if t == nil {
		return fmt.Errorf("tick nil")
	}
	if t.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if t.Timestamp <= 0 {
		return fmt.Errorf("timestamp invalid")
	}
	if t.Price < 0 || t.Volume < 0 {
		return fmt.Errorf("negative price/volume")
	}
	return nil
}

// accept enforces the per-symbol rate by requiring minGap between accepted
// ticks.
func (p *RealtimePipeline) accept(symbol string, now time.Time) bool {
	if p.minGap <= 0 {
		return true
	}
	last := p.lastSeen[symbol]
	if !last.IsZero() && now.Sub(last) < p.minGap {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
