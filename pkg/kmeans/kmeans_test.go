package kmeans

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeBlobs() [][]float64 {
	// Three well separated 2D groups, 5 points each.
	var data [][]float64
	centers := [][]float64{{0, 0}, {10, 10}, {-10, 5}}
	offsets := []float64{-0.2, -0.1, 0, 0.1, 0.2}
	for _, c := range centers {
		for _, o := range offsets {
			data = append(data, []float64{c[0] + o, c[1] - o})
		}
	}
	return data
}

func TestFitSeparatesBlobs(t *testing.T) {
	data := threeBlobs()
	m, labels, err := Fit(data, 3)
	require.NoError(t, err)
	require.Len(t, labels, len(data))

	// Points from the same blob must share a label, and the three blobs
	// must not share labels with each other.
	for b := 0; b < 3; b++ {
		want := labels[b*5]
		for i := b * 5; i < (b+1)*5; i++ {
			assert.Equal(t, want, labels[i], "blob %d not pure", b)
		}
	}
	assert.NotEqual(t, labels[0], labels[5])
	assert.NotEqual(t, labels[5], labels[10])
	assert.NotEqual(t, labels[0], labels[10])
	assert.Less(t, m.Inertia, 5.0)
}

func TestFitDeterministicForSeed(t *testing.T) {
	data := threeBlobs()
	m1, l1, err := Fit(data, 3, WithSeed(7))
	require.NoError(t, err)
	m2, l2, err := Fit(data, 3, WithSeed(7))
	require.NoError(t, err)

	assert.Equal(t, l1, l2)
	assert.Equal(t, m1.Centroids, m2.Centroids)
}

func TestFitScalars(t *testing.T) {
	// One-dimensional clustering used for prediction consensus: the
	// outlier must land in a cluster of its own.
	data := [][]float64{{100}, {101}, {99}, {500}}
	_, labels, err := Fit(data, 3)
	require.NoError(t, err)

	outlier := labels[3]
	for i := 0; i < 3; i++ {
		assert.NotEqual(t, outlier, labels[i], "outlier shares label with point %d", i)
	}
}

func TestFitErrors(t *testing.T) {
	_, _, err := Fit([][]float64{{1}, {2}}, 0)
	assert.ErrorIs(t, err, ErrInvalidK)

	_, _, err = Fit([][]float64{{1}, {2}}, 3)
	assert.ErrorIs(t, err, ErrTooFewPoints)

	_, _, err = Fit([][]float64{{1, 2}, {1}, {3, 4}}, 2)
	assert.Error(t, err)
}

func TestModelJSONRoundTrip(t *testing.T) {
	data := threeBlobs()
	m, labels, err := Fit(data, 3)
	require.NoError(t, err)

	raw, err := json.Marshal(m)
	require.NoError(t, err)

	var restored Model
	require.NoError(t, json.Unmarshal(raw, &restored))
	require.True(t, restored.Valid())

	assert.Equal(t, labels, restored.PredictAll(data))
}

func TestScalerStandardises(t *testing.T) {
	data := [][]float64{{1, 10}, {2, 10}, {3, 10}, {4, 10}}
	s, err := FitScaler(data)
	require.NoError(t, err)
	require.True(t, s.Valid())

	// Constant column keeps std 1 so transforms stay finite.
	assert.Equal(t, 1.0, s.Std[1])

	scaled := s.Transform(data)
	mean := 0.0
	for _, row := range scaled {
		mean += row[0]
	}
	mean /= float64(len(scaled))
	assert.InDelta(t, 0, mean, 1e-12)

	variance := 0.0
	for _, row := range scaled {
		variance += row[0] * row[0]
	}
	variance /= float64(len(scaled))
	assert.InDelta(t, 1, math.Sqrt(variance), 1e-12)

	for _, row := range scaled {
		assert.Equal(t, 0.0, row[1])
	}
}

func TestScalerRoundTrip(t *testing.T) {
	data := [][]float64{{1, 5}, {2, 7}, {3, 9}}
	s, err := FitScaler(data)
	require.NoError(t, err)

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	var restored Scaler
	require.NoError(t, json.Unmarshal(raw, &restored))

	assert.Equal(t, s.TransformRow([]float64{2, 6}), restored.TransformRow([]float64{2, 6}))
}
