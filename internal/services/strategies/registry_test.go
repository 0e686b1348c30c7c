package strategies

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
)

func TestDefaultRegistryLineup(t *testing.T) {
	r, err := NewDefaultRegistry()
	require.NoError(t, err)

	want := []string{
		"arima", "bollinger", "ets", "forest", "gbrt", "kernel_ridge",
		"knn", "lasso", "linear", "ma_crossover", "ridge", "rsi_reversal",
	}
	assert.Equal(t, want, r.Names())
	assert.Equal(t, len(want), r.Count())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewLinear()))
	assert.Error(t, r.Register(NewLinear()))
}

func TestRegistryGetAndClear(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewKNN()))

	s, ok := r.Get("knn")
	require.True(t, ok)
	assert.Equal(t, "knn", s.Name())

	_, ok = r.Get("missing")
	assert.False(t, ok)

	r.Clear()
	assert.Zero(t, r.Count())
}

// stubStrategy drives runner behaviour from a canned result.
type stubStrategy struct {
	name string
	val  float64
	err  error
}

func (s stubStrategy) Name() string { return s.name }
func (s stubStrategy) Predict(context.Context, *models.PriceSeries) (float64, error) {
	return s.val, s.err
}

func TestRunnerIsolatesFailures(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterAll(
		stubStrategy{name: "good_a", val: 101.5},
		stubStrategy{name: "good_b", val: 99.25},
		stubStrategy{name: "broken", err: errors.New("fit exploded")},
		stubStrategy{name: "nan", val: math.NaN()},
		stubStrategy{name: "inf", val: math.Inf(1)},
	))

	series := models.NewPriceSeries("TEST", "1d", []models.Bar{{Close: 100}})
	got := NewRunner(r, WithWorkers(2)).Run(context.Background(), series)

	assert.Equal(t, models.PredictionSet{"good_a": 101.5, "good_b": 99.25}, got)
}

func TestRunnerEmptyWhenAllFail(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(stubStrategy{name: "broken", err: errors.New("no fit")}))

	series := models.NewPriceSeries("TEST", "1d", []models.Bar{{Close: 100}})
	got := NewRunner(r).Run(context.Background(), series)
	assert.Empty(t, got)
}
