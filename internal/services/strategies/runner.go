package strategies

import (
	"context"
	"sync"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
	"FinCast/internal/service/metrics"
	applogger "FinCast/pkg/logger"
)

const defaultWorkers = 4

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithWorkers bounds how many strategies fit concurrently.
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithRunnerLogger injects a structured logger.
func WithRunnerLogger(l *applogger.Logger) RunnerOption {
	return func(r *Runner) { r.l = l }
}

// Runner executes every registered strategy against one series and keeps
// the forecasts that came back finite. A failing strategy is dropped from
// the round, never propagated: the ensemble is built to survive partial
// failure.
type Runner struct {
	registry *Registry
	workers  int
	l        *applogger.Logger
}

// NewRunner returns a Runner over the given registry.
func NewRunner(registry *Registry, opts ...RunnerOption) *Runner {
	r := &Runner{registry: registry, workers: defaultWorkers}
	for _, opt := range opts {
		opt(r)
	}
	metrics.Register()
	return r
}

// Run fans the strategies out over a bounded worker pool and collects
// successful predictions by strategy name. The returned set may be empty;
// deciding that empty is fatal belongs to the caller.
func (r *Runner) Run(ctx context.Context, series *models.PriceSeries) models.PredictionSet {
	strats := r.registry.All()

	type item struct {
		name string
		val  float64
		err  error
	}
	ch := make(chan item, len(strats))
	sem := make(chan struct{}, r.workers)
	var wg sync.WaitGroup

	for _, st := range strats {
		wg.Add(1)
		go func(st Strategy) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			v, err := st.Predict(ctx, series)
			ch <- item{st.Name(), v, err}
		}(st)
	}

	go func() { wg.Wait(); close(ch) }()

	out := models.PredictionSet{}
	for it := range ch {
		if it.err != nil {
			metrics.StrategyRuns.WithLabelValues(it.name, "error").Inc()
			if r.l != nil {
				r.l.Debug("strategy dropped",
					applogger.String("strategy", it.name),
					applogger.String("symbol", series.Symbol),
					applogger.Error(it.err))
			}
			continue
		}
		if !finite(it.val) {
			metrics.StrategyRuns.WithLabelValues(it.name, "non_finite").Inc()
			if r.l != nil {
				r.l.Debug("strategy returned non-finite value",
					applogger.String("strategy", it.name),
					applogger.String("symbol", series.Symbol))
			}
			continue
		}
		metrics.StrategyRuns.WithLabelValues(it.name, "ok").Inc()
		out[it.name] = it.val
	}
	return out
}

var _ domsvc.StrategyRunner = (*Runner)(nil)
