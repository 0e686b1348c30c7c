// Package strategies holds the independent next-close forecasting models
// that feed the ensemble. Every strategy consumes the same enriched bar
// series and either returns a finite forecast or an error; callers treat
// an error as the strategy abstaining from this round.
package strategies

import (
	"context"
	"errors"
	"math"

	"FinCast/internal/domain/models"
)

// MinTrainRows is the smallest usable training set a supervised strategy
// accepts; below it the strategy abstains.
const MinTrainRows = 30

var (
	// ErrInsufficientData signals the series is too short or too sparse
	// for the strategy to fit.
	ErrInsufficientData = errors.New("strategies: insufficient history")
	// ErrIndicatorMissing signals a required indicator column never
	// became available on this series.
	ErrIndicatorMissing = errors.New("strategies: required indicator missing")
)

// Strategy forecasts the next close of an enriched series.
type Strategy interface {
	Name() string
	Predict(ctx context.Context, s *models.PriceSeries) (float64, error)
}

// lastCell returns the final value of a column when it is present and
// finite.
func lastCell(s *models.PriceSeries, name string) (float64, bool) {
	col, ok := s.Column(name)
	if !ok || len(col) == 0 {
		return 0, false
	}
	v := col[len(col)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// recentDrift is the mean bar-to-bar percent change over the trailing
// window, the deterministic stand-in for "which way has it been moving".
func recentDrift(s *models.PriceSeries, window int) (float64, bool) {
	if s.Len() < window+1 {
		return 0, false
	}
	bars := s.Bars
	sum := 0.0
	for i := s.Len() - window; i < s.Len(); i++ {
		prev := bars[i-1].Close
		if prev == 0 {
			return 0, false
		}
		sum += (bars[i].Close - prev) / prev
	}
	return sum / float64(window), true
}

// finite guards a strategy's output.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
