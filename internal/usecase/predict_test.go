package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	domsvc "FinCast/internal/domain/service"
	"FinCast/internal/services/ensemble"
	"FinCast/internal/services/indicators"
)

type stubBarStore struct {
	bars []models.Bar
	err  error
}

func (s *stubBarStore) GetBars(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Bar, error) {
	return s.bars, s.err
}

func (s *stubBarStore) GetLatestNBars(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Bar, error) {
	return s.bars, s.err
}

type stubRunner struct {
	preds models.PredictionSet
}

func (r *stubRunner) Run(ctx context.Context, series *models.PriceSeries) models.PredictionSet {
	return r.preds.Clone()
}

type stubRegime struct {
	res         *models.RegimeResult
	err         error
	calls       int
	lastRetrain bool
}

func (s *stubRegime) Detect(ctx context.Context, series *models.PriceSeries, retrain bool) (*models.RegimeResult, error) {
	s.calls++
	s.lastRetrain = retrain
	return s.res, s.err
}

type spyAggregator struct {
	inner  domsvc.Aggregator
	called bool
}

func (a *spyAggregator) Aggregate(preds models.PredictionSet, method models.AggregateMethod) (float64, error) {
	a.called = true
	return a.inner.Aggregate(preds, method)
}

type stubArtifacts struct {
	mt  time.Time
	err error
}

func (s *stubArtifacts) Save(name string, v any) error          { return nil }
func (s *stubArtifacts) Load(name string, dest any) error       { return nil }
func (s *stubArtifacts) Exists(name string) bool                { return true }
func (s *stubArtifacts) ModTime(name string) (time.Time, error) { return s.mt, s.err }

func flatBars(n int) []models.Bar {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	for i := range bars {
		bars[i] = models.Bar{
			Start:  start.Add(time.Duration(i) * 24 * time.Hour),
			Symbol: "AAPL",
			Open:   100, High: 100, Low: 100, Close: 100,
			Volume: 1000,
		}
	}
	return bars
}

func newTestForecaster(t *testing.T, preds models.PredictionSet, reg *stubRegime) (*Forecaster, *spyAggregator) {
	t.Helper()
	agg := &spyAggregator{inner: ensemble.NewAggregator()}
	f := NewForecaster(
		&stubBarStore{bars: flatBars(80)},
		indicators.NewEnricher(),
		&stubRunner{preds: preds},
		ensemble.NewConsensusClusterer(),
		agg,
		reg,
		nil,
		ForecasterConfig{},
	)
	return f, agg
}

func TestForecastHappyPath(t *testing.T) {
	last := 2
	reg := &stubRegime{res: &models.RegimeResult{Last: last, K: 3, Rows: 60}}
	f, _ := newTestForecaster(t, models.PredictionSet{"up1": 105, "up2": 107}, reg)

	res, err := f.Forecast(context.Background(), ForecastParams{Symbol: "AAPL"})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "AAPL", res.Symbol)
	assert.Equal(t, "1d", res.Interval)
	assert.Equal(t, 100.0, res.LastClose)
	assert.InDelta(t, 106.0, res.Forecast, 1e-9)
	assert.Equal(t, models.DirectionUp, res.Direction)
	assert.InDelta(t, 6.0, res.PctChange, 1e-9)
	assert.Equal(t, string(models.MethodTrimmed), res.Method)
	assert.Equal(t, 2, res.StrategyCount)
	assert.Equal(t, []string{"up1", "up2"}, res.Strategies)
	assert.Len(t, res.Raw, 2)
	// Two predictions and k=3 means pass-through, both survive.
	assert.False(t, res.Clustered)
	assert.Equal(t, 2, res.WinnerSize)
	require.NotNil(t, res.Regime)
	assert.Equal(t, last, *res.Regime)
	assert.Equal(t, 1, reg.calls)
}

func TestForecastEmptyPredictionSetIsTerminal(t *testing.T) {
	f, agg := newTestForecaster(t, models.PredictionSet{}, &stubRegime{})

	_, err := f.Forecast(context.Background(), ForecastParams{Symbol: "AAPL"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ensemble.ErrNoPredictions)
	assert.False(t, agg.called, "aggregator must not run on an empty prediction set")
}

func TestForecastToleratesRegimeFailure(t *testing.T) {
	reg := &stubRegime{err: errors.New("artifact dir unwritable")}
	f, _ := newTestForecaster(t, models.PredictionSet{"a": 101}, reg)

	res, err := f.Forecast(context.Background(), ForecastParams{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.Nil(t, res.Regime)
	assert.InDelta(t, 101.0, res.Forecast, 1e-9)
}

func TestForecastToleratesRegimeAbstention(t *testing.T) {
	f, _ := newTestForecaster(t, models.PredictionSet{"a": 99}, &stubRegime{})

	res, err := f.Forecast(context.Background(), ForecastParams{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.Nil(t, res.Regime)
	assert.Equal(t, models.DirectionDown, res.Direction)
}

func TestForecastEqualForecastMapsDown(t *testing.T) {
	f, _ := newTestForecaster(t, models.PredictionSet{"a": 100, "b": 100}, &stubRegime{})

	res, err := f.Forecast(context.Background(), ForecastParams{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, models.DirectionDown, res.Direction)
	assert.InDelta(t, 0.0, res.PctChange, 1e-9)
}

func TestForecastExcludesOutlierCluster(t *testing.T) {
	preds := models.PredictionSet{"A": 100, "B": 101, "C": 99, "D": 500}
	f, _ := newTestForecaster(t, preds, &stubRegime{})

	res, err := f.Forecast(context.Background(), ForecastParams{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.True(t, res.Clustered)
	assert.GreaterOrEqual(t, res.WinnerSize, 2)
	assert.GreaterOrEqual(t, res.Forecast, 99.0)
	assert.LessOrEqual(t, res.Forecast, 101.0)
	// Raw still reports every strategy that produced a value.
	assert.Len(t, res.Raw, 4)
	assert.Equal(t, []string{"A", "B", "C", "D"}, res.Strategies)
}

func TestForecastUnknownSymbol(t *testing.T) {
	f := NewForecaster(
		&stubBarStore{},
		indicators.NewEnricher(),
		&stubRunner{},
		ensemble.NewConsensusClusterer(),
		ensemble.NewAggregator(),
		&stubRegime{},
		nil,
		ForecasterConfig{},
	)
	_, err := f.Forecast(context.Background(), ForecastParams{Symbol: "NOPE"})
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestForecastInsufficientHistory(t *testing.T) {
	f := NewForecaster(
		&stubBarStore{bars: flatBars(10)},
		indicators.NewEnricher(),
		&stubRunner{},
		ensemble.NewConsensusClusterer(),
		ensemble.NewAggregator(),
		&stubRegime{},
		nil,
		ForecasterConfig{},
	)
	_, err := f.Forecast(context.Background(), ForecastParams{Symbol: "AAPL"})
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestForecastStaleArtifactsForceRetrain(t *testing.T) {
	reg := &stubRegime{}
	f := NewForecaster(
		&stubBarStore{bars: flatBars(80)},
		indicators.NewEnricher(),
		&stubRunner{preds: models.PredictionSet{"a": 101}},
		ensemble.NewConsensusClusterer(),
		ensemble.NewAggregator(),
		reg,
		&stubArtifacts{mt: time.Now().Add(-48 * time.Hour)},
		ForecasterConfig{RegimeTTL: 24 * time.Hour},
	)
	_, err := f.Forecast(context.Background(), ForecastParams{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.True(t, reg.lastRetrain, "stale artifacts should force a retrain")
}

func TestForecastFreshArtifactsReuse(t *testing.T) {
	reg := &stubRegime{}
	f := NewForecaster(
		&stubBarStore{bars: flatBars(80)},
		indicators.NewEnricher(),
		&stubRunner{preds: models.PredictionSet{"a": 101}},
		ensemble.NewConsensusClusterer(),
		ensemble.NewAggregator(),
		reg,
		&stubArtifacts{mt: time.Now().Add(-time.Hour)},
		ForecasterConfig{RegimeTTL: 24 * time.Hour},
	)
	_, err := f.Forecast(context.Background(), ForecastParams{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.False(t, reg.lastRetrain)
}

func TestDetectRegimeReturnsResult(t *testing.T) {
	want := &models.RegimeResult{Symbol: "AAPL", Last: 1, K: 3, Rows: 70}
	f, _ := newTestForecaster(t, nil, &stubRegime{res: want})

	got, err := f.DetectRegime(context.Background(), RegimeParams{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDetectRegimeAbstentionIsError(t *testing.T) {
	f, _ := newTestForecaster(t, nil, &stubRegime{})

	_, err := f.DetectRegime(context.Background(), RegimeParams{Symbol: "AAPL"})
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}
