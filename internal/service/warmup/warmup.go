// Package warmup keeps forecasts for hot symbols precomputed. A Warmer
// periodically enqueues one job per symbol; queue workers run the full
// pipeline and prime the response cache, so interactive requests find
// warm entries and the regime artifacts never age past their TTL.
package warmup

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	icache "FinCast/internal/service/cache"
	"FinCast/internal/usecase"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/queue"
)

// JobType tags warmup messages on the queue.
const JobType = "forecast.warm"

// QueuePrefix namespaces the warmup queue's Redis keys. Anything enqueueing
// warmup jobs from outside the server must use the same prefix.
const QueuePrefix = "fincast:warmup"

// Payload names the symbol and interval to warm.
type Payload struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}

// Forecaster is the slice of the forecast usecase the job needs.
type Forecaster interface {
	Forecast(ctx context.Context, p usecase.ForecastParams) (*models.EnsembleResult, error)
}

// Job runs one warmup forecast and primes the response cache under the
// key a default request would read. Implements queue.Job.
type Job struct {
	forecaster Forecaster
	cache      icache.BytesCache
	l          *applogger.Logger
}

func NewJob(forecaster Forecaster, cache icache.BytesCache) *Job {
	return &Job{forecaster: forecaster, cache: cache}
}

// SetLogger injects a structured logger.
func (j *Job) SetLogger(l *applogger.Logger) { j.l = l }

func (j *Job) Name() string { return "forecast-warmup" }
func (j *Job) Type() string { return JobType }

func (j *Job) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[Payload](payload)
	if err != nil {
		return fmt.Errorf("parse warmup payload: %w", err)
	}
	symbol := strings.ToUpper(p.Symbol)
	tf := domrepo.NormalizeTimeframe(p.Interval)

	res, err := j.forecaster.Forecast(ctx, usecase.ForecastParams{Symbol: symbol, Timeframe: tf})
	if err != nil {
		return fmt.Errorf("warm %s: %w", symbol, err)
	}

	if j.cache != nil {
		b, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("encode warmed forecast: %w", err)
		}
		key := icache.ForecastKey(symbol, string(tf), models.DefaultForecastMethod, models.DefaultForecastN)
		if err := j.cache.SetBytes(key, b, icache.ForecastTTL); err != nil && j.l != nil {
			j.l.Warn("warmup cache_set_error", applogger.Error(err))
		}
	}
	if j.l != nil {
		j.l.Debug("forecast warmed",
			applogger.String("symbol", symbol),
			applogger.String("interval", string(tf)))
	}
	return nil
}

var _ queue.Job = (*Job)(nil)

// Warmer enqueues one warmup job per symbol on a fixed schedule. The
// first round fires immediately on Start.
type Warmer struct {
	q        queue.QueueService
	symbols  []string
	interval string
	every    time.Duration
	l        *applogger.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewWarmer(q queue.QueueService, symbols []string, interval string, every time.Duration) *Warmer {
	if every <= 0 {
		every = 15 * time.Minute
	}
	upper := make([]string, len(symbols))
	for i, s := range symbols {
		upper[i] = strings.ToUpper(s)
	}
	return &Warmer{q: q, symbols: upper, interval: interval, every: every}
}

// SetLogger injects a structured logger.
func (w *Warmer) SetLogger(l *applogger.Logger) { w.l = l }

func (w *Warmer) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.loop(ctx)
}

func (w *Warmer) loop(ctx context.Context) {
	defer close(w.done)
	w.enqueueRound(ctx)
	t := time.NewTicker(w.every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.enqueueRound(ctx)
		}
	}
}

func (w *Warmer) enqueueRound(ctx context.Context) {
	for _, s := range w.symbols {
		err := w.q.PublishMessage(ctx, JobType, Payload{Symbol: s, Interval: w.interval})
		if err != nil && w.l != nil {
			w.l.Warn("warmup enqueue failed",
				applogger.String("symbol", s),
				applogger.Error(err))
		}
	}
	if w.l != nil {
		w.l.Debug("warmup round enqueued", applogger.Int("symbols", len(w.symbols)))
	}
}

// Stop halts the schedule and waits for the loop to exit.
func (w *Warmer) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}
