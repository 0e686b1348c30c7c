// Package kmeans implements Lloyd's k-means with deterministic kmeans++
// seeding, plus a standard-score feature scaler. Fitted models marshal to
// JSON so they can be persisted and reloaded without refitting.
package kmeans

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// DefaultSeed is the seed used when no WithSeed option is given. A fixed
// seed keeps repeated fits on the same data identical.
const DefaultSeed int64 = 42

const (
	defaultMaxIter = 300
	defaultTol     = 1e-6
)

var (
	// ErrInvalidK is returned when k is not a positive integer.
	ErrInvalidK = errors.New("kmeans: k must be positive")
	// ErrTooFewPoints is returned when the dataset has fewer points than k.
	ErrTooFewPoints = errors.New("kmeans: fewer points than clusters")
)

// Option configures a fit.
type Option func(*fitConfig)

type fitConfig struct {
	maxIter int
	tol     float64
	seed    int64
}

// WithMaxIter sets the Lloyd iteration cap.
func WithMaxIter(n int) Option {
	return func(c *fitConfig) {
		if n > 0 {
			c.maxIter = n
		}
	}
}

// WithTolerance sets the centroid-shift threshold that ends iteration.
func WithTolerance(tol float64) Option {
	return func(c *fitConfig) {
		if tol > 0 {
			c.tol = tol
		}
	}
}

// WithSeed sets the seed for centroid initialisation.
func WithSeed(seed int64) Option {
	return func(c *fitConfig) {
		c.seed = seed
	}
}

// Model is a fitted k-means model. Centroids are row vectors in the same
// feature space as the training data.
type Model struct {
	K          int         `json:"k"`
	Centroids  [][]float64 `json:"centroids"`
	Inertia    float64     `json:"inertia"`
	Iterations int         `json:"iterations"`
}

// Fit clusters data into k groups and returns the fitted model together
// with the cluster label of every input row, in input order.
func Fit(data [][]float64, k int, opts ...Option) (*Model, []int, error) {
	if k <= 0 {
		return nil, nil, ErrInvalidK
	}
	if len(data) < k {
		return nil, nil, ErrTooFewPoints
	}
	dims := len(data[0])
	if dims == 0 {
		return nil, nil, errors.New("kmeans: empty feature vectors")
	}
	for i, row := range data {
		if len(row) != dims {
			return nil, nil, fmt.Errorf("kmeans: row %d has %d features, want %d", i, len(row), dims)
		}
	}

	cfg := fitConfig{maxIter: defaultMaxIter, tol: defaultTol, seed: DefaultSeed}
	for _, opt := range opts {
		opt(&cfg)
	}

	rng := rand.New(rand.NewSource(cfg.seed))
	centroids := seedPlusPlus(data, k, rng)
	labels := make([]int, len(data))

	iter := 0
	for ; iter < cfg.maxIter; iter++ {
		for i, row := range data {
			labels[i] = nearest(centroids, row)
		}

		next := make([][]float64, k)
		counts := make([]int, k)
		for c := 0; c < k; c++ {
			next[c] = make([]float64, dims)
		}
		for i, row := range data {
			c := labels[i]
			counts[c]++
			for d, v := range row {
				next[c][d] += v
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				// Reseed an emptied cluster with the point farthest
				// from its current centroid.
				copy(next[c], farthestPoint(data, centroids, labels))
				continue
			}
			for d := range next[c] {
				next[c][d] /= float64(counts[c])
			}
		}

		shift := 0.0
		for c := 0; c < k; c++ {
			shift += sqDist(centroids[c], next[c])
		}
		centroids = next
		if shift < cfg.tol {
			iter++
			break
		}
	}

	for i, row := range data {
		labels[i] = nearest(centroids, row)
	}

	m := &Model{K: k, Centroids: centroids, Iterations: iter}
	for i, row := range data {
		m.Inertia += sqDist(row, centroids[labels[i]])
	}
	return m, labels, nil
}

// Predict returns the index of the centroid nearest to point.
func (m *Model) Predict(point []float64) int {
	return nearest(m.Centroids, point)
}

// PredictAll labels every row of data.
func (m *Model) PredictAll(data [][]float64) []int {
	out := make([]int, len(data))
	for i, row := range data {
		out[i] = nearest(m.Centroids, row)
	}
	return out
}

// Dims reports the feature dimensionality the model was fitted on.
func (m *Model) Dims() int {
	if len(m.Centroids) == 0 {
		return 0
	}
	return len(m.Centroids[0])
}

// Valid reports whether the model carries usable fitted state, e.g. after
// being unmarshalled from a persisted artifact.
func (m *Model) Valid() bool {
	if m == nil || m.K <= 0 || len(m.Centroids) != m.K {
		return false
	}
	dims := len(m.Centroids[0])
	if dims == 0 {
		return false
	}
	for _, c := range m.Centroids {
		if len(c) != dims {
			return false
		}
		for _, v := range c {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// seedPlusPlus picks k initial centroids with the kmeans++ rule: the first
// uniformly, each next proportional to squared distance from the chosen set.
func seedPlusPlus(data [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	first := data[rng.Intn(len(data))]
	centroids = append(centroids, cloneRow(first))

	dist := make([]float64, len(data))
	for len(centroids) < k {
		total := 0.0
		for i, row := range data {
			d := sqDist(row, centroids[0])
			for _, c := range centroids[1:] {
				if dd := sqDist(row, c); dd < d {
					d = dd
				}
			}
			dist[i] = d
			total += d
		}
		if total == 0 {
			// All remaining points coincide with a centroid.
			centroids = append(centroids, cloneRow(data[rng.Intn(len(data))]))
			continue
		}
		target := rng.Float64() * total
		acc := 0.0
		pick := len(data) - 1
		for i, d := range dist {
			acc += d
			if acc >= target {
				pick = i
				break
			}
		}
		centroids = append(centroids, cloneRow(data[pick]))
	}
	return centroids
}

func nearest(centroids [][]float64, point []float64) int {
	best := 0
	bestDist := math.MaxFloat64
	for c, centroid := range centroids {
		if d := sqDist(point, centroid); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best
}

func farthestPoint(data, centroids [][]float64, labels []int) []float64 {
	best := data[0]
	bestDist := -1.0
	for i, row := range data {
		if d := sqDist(row, centroids[labels[i]]); d > bestDist {
			best = row
			bestDist = d
		}
	}
	return cloneRow(best)
}

func sqDist(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func cloneRow(row []float64) []float64 {
	out := make([]float64, len(row))
	copy(out, row)
	return out
}
