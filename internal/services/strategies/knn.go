package strategies

import (
	"context"
	"fmt"
	"sort"

	"FinCast/internal/domain/models"
)

// KNN forecasts with the mean target of the k training rows nearest to
// the latest feature vector, measured in standardised feature space.
type KNN struct {
	k int
}

// NewKNN returns the nearest-neighbour strategy.
func NewKNN() *KNN { return &KNN{k: 5} }

func (n *KNN) Name() string { return "knn" }

func (n *KNN) Predict(ctx context.Context, s *models.PriceSeries) (float64, error) {
	raw, err := buildSupervised(s)
	if err != nil {
		return 0, err
	}
	ds, err := raw.copyStandardized()
	if err != nil {
		return 0, fmt.Errorf("knn %s: %w", s.Symbol, err)
	}

	k := n.k
	if k > len(ds.X) {
		k = len(ds.X)
	}
	order := make([]int, len(ds.X))
	for i := range order {
		order[i] = i
	}
	dist := make([]float64, len(ds.X))
	for i, row := range ds.X {
		dist[i] = sqEuclid(row, ds.latest)
	}
	sort.Slice(order, func(a, b int) bool { return dist[order[a]] < dist[order[b]] })

	sum := 0.0
	for _, i := range order[:k] {
		sum += ds.y[i]
	}
	pred := sum / float64(k)
	if !finite(pred) {
		return 0, fmt.Errorf("knn %s: non-finite forecast", s.Symbol)
	}
	return pred, nil
}

var _ Strategy = (*KNN)(nil)
