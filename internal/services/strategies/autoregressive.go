package strategies

import (
	"context"
	"fmt"

	"FinCast/internal/domain/models"
)

const arLags = 5

// AutoRegressive forecasts the next close by fitting a lag-5
// autoregression to first differences of the close, so the level change
// is modelled rather than the level itself.
type AutoRegressive struct {
	lags int
}

// NewAutoRegressive returns the differenced-AR strategy.
func NewAutoRegressive() *AutoRegressive { return &AutoRegressive{lags: arLags} }

func (a *AutoRegressive) Name() string { return "arima" }

func (a *AutoRegressive) Predict(ctx context.Context, s *models.PriceSeries) (float64, error) {
	closes := s.Closes()
	if len(closes) < a.lags+12 {
		return 0, fmt.Errorf("arima %s: %w", s.Symbol, ErrInsufficientData)
	}

	diffs := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		diffs[i-1] = closes[i] - closes[i-1]
	}

	rows := len(diffs) - a.lags
	X := make([][]float64, rows)
	y := make([]float64, rows)
	for t := a.lags; t < len(diffs); t++ {
		row := make([]float64, a.lags)
		for j := 0; j < a.lags; j++ {
			row[j] = diffs[t-1-j]
		}
		X[t-a.lags] = row
		y[t-a.lags] = diffs[t]
	}

	coefs, err := olsFit(X, y)
	if err != nil {
		return 0, fmt.Errorf("arima %s: %w", s.Symbol, err)
	}

	next := coefs[0]
	for j := 0; j < a.lags; j++ {
		next += coefs[j+1] * diffs[len(diffs)-1-j]
	}
	pred := closes[len(closes)-1] + next
	if !finite(pred) {
		return 0, fmt.Errorf("arima %s: non-finite forecast", s.Symbol)
	}
	return pred, nil
}

var _ Strategy = (*AutoRegressive)(nil)
