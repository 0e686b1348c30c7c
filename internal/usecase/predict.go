package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	domsvc "FinCast/internal/domain/service"
	"FinCast/internal/service/metrics"
	"FinCast/internal/services/ensemble"
	"FinCast/internal/services/regime"
	applogger "FinCast/pkg/logger"
)

var (
	// ErrUnknownSymbol means the store holds no bars at all for the symbol.
	ErrUnknownSymbol = errors.New("unknown symbol")
	// ErrInsufficientHistory means too few bars survived to run the pipeline.
	ErrInsufficientHistory = errors.New("insufficient history")
)

// ForecasterConfig tunes the ensemble pipeline.
type ForecasterConfig struct {
	Clusters  int                    // consensus cluster count
	Method    models.AggregateMethod // default aggregation method
	MinBars   int                    // fewest bars accepted for a forecast
	Lookback  int                    // bars loaded when the request does not say
	RegimeTTL time.Duration          // regime artifact staleness window
	Timeout   time.Duration          // per-request ceiling
}

func (c *ForecasterConfig) setDefaults() {
	if c.Clusters <= 0 {
		c.Clusters = ensemble.DefaultClusters
	}
	if c.Method == "" {
		c.Method = models.MethodTrimmed
	}
	if c.Lookback <= 0 {
		c.Lookback = models.DefaultForecastN
	}
	if c.MinBars <= 0 {
		c.MinBars = 60
	}
	if c.RegimeTTL <= 0 {
		c.RegimeTTL = 24 * time.Hour
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// Forecaster runs the whole ensemble pipeline for one symbol: load bars,
// enrich with indicators, fan the strategies out, cluster the survivors
// to a consensus, aggregate to one number, and attach the market regime.
type Forecaster struct {
	store     domrepo.BarStore
	enricher  domsvc.Enricher
	runner    domsvc.StrategyRunner
	consensus domsvc.ConsensusFilter
	agg       domsvc.Aggregator
	regime    domsvc.RegimeDetector
	artifacts domrepo.ArtifactStore
	l         *applogger.Logger
	cfg       ForecasterConfig
}

// NewForecaster wires the pipeline stages together.
func NewForecaster(
	store domrepo.BarStore,
	enricher domsvc.Enricher,
	runner domsvc.StrategyRunner,
	consensus domsvc.ConsensusFilter,
	agg domsvc.Aggregator,
	detector domsvc.RegimeDetector,
	artifacts domrepo.ArtifactStore,
	cfg ForecasterConfig,
) *Forecaster {
	cfg.setDefaults()
	metrics.Register()
	return &Forecaster{
		store:     store,
		enricher:  enricher,
		runner:    runner,
		consensus: consensus,
		agg:       agg,
		regime:    detector,
		artifacts: artifacts,
		cfg:       cfg,
	}
}

// SetLogger injects a structured logger.
func (f *Forecaster) SetLogger(l *applogger.Logger) { f.l = l }

type ForecastParams struct {
	Symbol    string
	Timeframe domrepo.Timeframe
	Method    models.AggregateMethod // empty uses the configured default
	N         int                    // bars of history to load
	Retrain   bool                   // force a regime model refit
}

// Forecast produces the ensemble result for one symbol and timeframe.
// An empty prediction set is terminal: the request fails rather than
// inventing a number. A failed regime detection is not: the forecast
// ships with no regime label.
func (f *Forecaster) Forecast(ctx context.Context, p ForecastParams) (*models.EnsembleResult, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if p.N <= 0 {
		p.N = f.cfg.Lookback
	}
	if p.Timeframe == "" {
		p.Timeframe = domrepo.DefaultTimeframe()
	}
	method := p.Method
	if method == "" {
		method = f.cfg.Method
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.ForecastLatency.WithLabelValues("pipeline").Observe(time.Since(start).Seconds())
	}()

	bars, err := f.store.GetLatestNBars(ctx, p.Symbol, p.N, p.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, p.Symbol)
	}
	if len(bars) < f.cfg.MinBars {
		return nil, fmt.Errorf("%w: %d bars, want at least %d", ErrInsufficientHistory, len(bars), f.cfg.MinBars)
	}

	series, err := f.enricher.Enrich(p.Symbol, string(p.Timeframe), bars)
	if err != nil {
		return nil, fmt.Errorf("enrich series: %w", err)
	}

	// The strategy fan-out and regime detection are independent reads of
	// the same immutable series; run them concurrently.
	type regimeOut struct {
		res *models.RegimeResult
		err error
	}
	regimeCh := make(chan regimeOut, 1)
	go func() {
		res, err := f.regime.Detect(ctx, series, p.Retrain || f.regimeStale())
		regimeCh <- regimeOut{res, err}
	}()

	preds := f.runner.Run(ctx, series)
	if len(preds) == 0 {
		metrics.ForecastErrors.WithLabelValues("pipeline").Inc()
		<-regimeCh
		return nil, ensemble.ErrNoPredictions
	}

	cons, err := f.consensus.Filter(preds, f.cfg.Clusters)
	if err != nil {
		<-regimeCh
		return nil, fmt.Errorf("consensus filter: %w", err)
	}
	if !cons.Clustered {
		metrics.ConsensusPassthrough.Inc()
	}

	forecast, err := f.agg.Aggregate(cons.Kept, method)
	if err != nil {
		<-regimeCh
		return nil, fmt.Errorf("aggregate predictions: %w", err)
	}

	var regimePtr *int
	ro := <-regimeCh
	switch {
	case ro.err != nil:
		// A broken regime model never blocks the forecast.
		if f.l != nil {
			f.l.Warn("regime detection failed",
				applogger.String("symbol", p.Symbol),
				applogger.Error(ro.err))
		}
	case ro.res != nil:
		if ro.res.Retrained {
			metrics.RegimeRetrains.Inc()
		}
		if ro.res.Last != models.NoRegime {
			last := ro.res.Last
			regimePtr = &last
		}
	}

	lastClose, _ := series.LastClose()
	direction := models.DirectionDown
	if forecast > lastClose {
		direction = models.DirectionUp
	}
	pct := 0.0
	if lastClose != 0 {
		pct = (forecast - lastClose) / lastClose * 100
	}

	return &models.EnsembleResult{
		Symbol:        p.Symbol,
		Interval:      string(p.Timeframe),
		Timestamp:     time.Now().UTC(),
		LastClose:     lastClose,
		Forecast:      forecast,
		Direction:     direction,
		PctChange:     pct,
		Method:        string(method),
		StrategyCount: len(preds),
		Strategies:    preds.Names(),
		Raw:           preds,
		WinnerSize:    len(cons.Kept),
		Clustered:     cons.Clustered,
		Regime:        regimePtr,
	}, nil
}

type RegimeParams struct {
	Symbol    string
	Timeframe domrepo.Timeframe
	N         int
	Retrain   bool
}

// DetectRegime runs regime detection alone, for the regime endpoint.
// Unlike Forecast, an abstaining detector is an error here: the caller
// asked for labels and there are none to give.
func (f *Forecaster) DetectRegime(ctx context.Context, p RegimeParams) (*models.RegimeResult, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if p.N <= 0 {
		p.N = f.cfg.Lookback
	}
	if p.Timeframe == "" {
		p.Timeframe = domrepo.DefaultTimeframe()
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	bars, err := f.store.GetLatestNBars(ctx, p.Symbol, p.N, p.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, p.Symbol)
	}

	series, err := f.enricher.Enrich(p.Symbol, string(p.Timeframe), bars)
	if err != nil {
		return nil, fmt.Errorf("enrich series: %w", err)
	}

	res, err := f.regime.Detect(ctx, series, p.Retrain || f.regimeStale())
	if err != nil {
		return nil, fmt.Errorf("detect regime: %w", err)
	}
	if res == nil {
		return nil, fmt.Errorf("%w: not enough complete rows to cluster regimes", ErrInsufficientHistory)
	}
	if res.Retrained {
		metrics.RegimeRetrains.Inc()
	}
	return res, nil
}

// regimeStale reports whether the persisted regime model is older than
// the configured TTL. Missing artifacts read as stale; the detector
// refits either way.
func (f *Forecaster) regimeStale() bool {
	if f.artifacts == nil {
		return false
	}
	mt, err := f.artifacts.ModTime(regime.ModelArtifact)
	if err != nil {
		return true
	}
	return time.Since(mt) > f.cfg.RegimeTTL
}
