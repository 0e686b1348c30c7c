package strategies

import (
	"context"
	"fmt"
	"math"

	"FinCast/internal/domain/models"
)

// HoltSmoothing forecasts one step ahead with additive-trend exponential
// smoothing. Smoothing weights are chosen by a grid search over the
// in-sample one-step squared error.
type HoltSmoothing struct{}

// NewHoltSmoothing returns the Holt linear-trend strategy.
func NewHoltSmoothing() *HoltSmoothing { return &HoltSmoothing{} }

func (h *HoltSmoothing) Name() string { return "ets" }

func (h *HoltSmoothing) Predict(ctx context.Context, s *models.PriceSeries) (float64, error) {
	closes := s.Closes()
	if len(closes) < 10 {
		return 0, fmt.Errorf("ets %s: %w", s.Symbol, ErrInsufficientData)
	}

	best := math.Inf(1)
	forecast := 0.0
	for alpha := 0.1; alpha <= 0.91; alpha += 0.1 {
		for beta := 0.05; beta <= 0.51; beta += 0.05 {
			f, sse := holtRun(closes, alpha, beta)
			if !finite(f) || !finite(sse) || sse >= best {
				continue
			}
			best = sse
			forecast = f
		}
	}
	if math.IsInf(best, 1) {
		return 0, fmt.Errorf("ets %s: smoothing did not converge", s.Symbol)
	}
	return forecast, nil
}

// holtRun runs Holt's method over the series and returns the one-step
// forecast past the final observation together with the in-sample SSE.
func holtRun(series []float64, alpha, beta float64) (float64, float64) {
	level := series[0]
	trend := series[1] - series[0]
	sse := 0.0
	for t := 1; t < len(series); t++ {
		pred := level + trend
		err := series[t] - pred
		sse += err * err
		next := alpha*series[t] + (1-alpha)*(level+trend)
		trend = beta*(next-level) + (1-beta)*trend
		level = next
	}
	return level + trend, sse
}

var _ Strategy = (*HoltSmoothing)(nil)
