package strategies

import (
	"context"
	"fmt"
	"math/rand"

	"FinCast/internal/domain/models"
)

// RandomForest averages 50 depth-bounded regression trees, each grown on
// a seeded bootstrap resample of the training rows. The fixed seed keeps
// repeated fits on the same data identical.
type RandomForest struct {
	trees    int
	maxDepth int
	seed     int64
	maxRows  int
}

// NewRandomForest returns the bagged-trees strategy.
func NewRandomForest() *RandomForest {
	return &RandomForest{trees: 50, maxDepth: 5, seed: 42, maxRows: 1500}
}

func (f *RandomForest) Name() string { return "forest" }

func (f *RandomForest) Predict(ctx context.Context, s *models.PriceSeries) (float64, error) {
	ds, err := buildSupervised(s)
	if err != nil {
		return 0, err
	}
	ds = ds.tail(f.maxRows)

	rng := rand.New(rand.NewSource(f.seed))
	n := len(ds.X)
	params := treeParams{maxDepth: f.maxDepth, minLeaf: 1}
	sum := 0.0
	for t := 0; t < f.trees; t++ {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("forest %s: %w", s.Symbol, err)
		}
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.Intn(n)
		}
		tree := growTree(ds.X, ds.y, sample, 0, params)
		sum += tree.predict(ds.latest)
	}

	pred := sum / float64(f.trees)
	if !finite(pred) {
		return 0, fmt.Errorf("forest %s: non-finite forecast", s.Symbol)
	}
	return pred, nil
}

var _ Strategy = (*RandomForest)(nil)
