package strategies

import (
	"context"
	"fmt"

	"FinCast/internal/domain/models"
)

// GradientBoosting fits 50 shallow regression trees in sequence, each on
// the residuals of the ensemble so far, shrunk by the learning rate.
type GradientBoosting struct {
	rounds   int
	rate     float64
	maxDepth int
	maxRows  int
}

// NewGradientBoosting returns the boosted-trees strategy.
func NewGradientBoosting() *GradientBoosting {
	return &GradientBoosting{rounds: 50, rate: 0.1, maxDepth: 3, maxRows: 1500}
}

func (g *GradientBoosting) Name() string { return "gbrt" }

func (g *GradientBoosting) Predict(ctx context.Context, s *models.PriceSeries) (float64, error) {
	ds, err := buildSupervised(s)
	if err != nil {
		return 0, err
	}
	ds = ds.tail(g.maxRows)

	n := len(ds.X)
	base := meanOf(ds.y)
	resid := make([]float64, n)
	for i, v := range ds.y {
		resid[i] = v - base
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	params := treeParams{maxDepth: g.maxDepth, minLeaf: 1}
	pred := base
	for m := 0; m < g.rounds; m++ {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("gbrt %s: %w", s.Symbol, err)
		}
		tree := growTree(ds.X, resid, idx, 0, params)
		for i := range resid {
			resid[i] -= g.rate * tree.predict(ds.X[i])
		}
		pred += g.rate * tree.predict(ds.latest)
	}

	if !finite(pred) {
		return 0, fmt.Errorf("gbrt %s: non-finite forecast", s.Symbol)
	}
	return pred, nil
}

var _ Strategy = (*GradientBoosting)(nil)
