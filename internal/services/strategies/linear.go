package strategies

import (
	"context"
	"fmt"

	"FinCast/internal/domain/models"
)

const (
	ridgeLambda = 1.0
	lassoAlpha  = 0.01
)

// Linear regresses next close on the supervised features with ordinary
// least squares.
type Linear struct{}

// NewLinear returns the OLS strategy.
func NewLinear() *Linear { return &Linear{} }

func (l *Linear) Name() string { return "linear" }

func (l *Linear) Predict(ctx context.Context, s *models.PriceSeries) (float64, error) {
	ds, err := buildSupervised(s)
	if err != nil {
		return 0, err
	}
	coefs, err := olsFit(ds.X, ds.y)
	if err != nil {
		return 0, fmt.Errorf("linear %s: %w", s.Symbol, err)
	}
	pred := dot(coefs, ds.latest)
	if !finite(pred) {
		return 0, fmt.Errorf("linear %s: non-finite forecast", s.Symbol)
	}
	return pred, nil
}

// Ridge is the L2-regularised variant of Linear.
type Ridge struct {
	lambda float64
}

// NewRidge returns the ridge regression strategy.
func NewRidge() *Ridge { return &Ridge{lambda: ridgeLambda} }

func (r *Ridge) Name() string { return "ridge" }

func (r *Ridge) Predict(ctx context.Context, s *models.PriceSeries) (float64, error) {
	ds, err := buildSupervised(s)
	if err != nil {
		return 0, err
	}
	intercept, coefs, err := ridgeFit(ds.X, ds.y, r.lambda)
	if err != nil {
		return 0, fmt.Errorf("ridge %s: %w", s.Symbol, err)
	}
	pred := intercept
	for j, v := range ds.latest {
		pred += coefs[j] * v
	}
	if !finite(pred) {
		return 0, fmt.Errorf("ridge %s: non-finite forecast", s.Symbol)
	}
	return pred, nil
}

// Lasso is the L1-regularised variant of Linear; coordinate descent
// zeroes out weak features.
type Lasso struct {
	alpha float64
}

// NewLasso returns the lasso regression strategy.
func NewLasso() *Lasso { return &Lasso{alpha: lassoAlpha} }

func (l *Lasso) Name() string { return "lasso" }

func (l *Lasso) Predict(ctx context.Context, s *models.PriceSeries) (float64, error) {
	ds, err := buildSupervised(s)
	if err != nil {
		return 0, err
	}
	intercept, coefs, err := lassoFit(ds.X, ds.y, l.alpha)
	if err != nil {
		return 0, fmt.Errorf("lasso %s: %w", s.Symbol, err)
	}
	pred := intercept
	for j, v := range ds.latest {
		pred += coefs[j] * v
	}
	if !finite(pred) {
		return 0, fmt.Errorf("lasso %s: non-finite forecast", s.Symbol)
	}
	return pred, nil
}

var (
	_ Strategy = (*Linear)(nil)
	_ Strategy = (*Ridge)(nil)
	_ Strategy = (*Lasso)(nil)
)
