package ensemble

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
)

// trimSigma is the outlier fence for the trimmed method: values at least
// this many population standard deviations from the mean are dropped.
const trimSigma = 2.0

// ErrNoPredictions signals an empty prediction set, the terminal "no
// strategy produced a result" condition.
var ErrNoPredictions = errors.New("ensemble: no strategy produced a usable prediction")

// Aggregator collapses a prediction set into a single forecast.
type Aggregator struct{}

// NewAggregator returns an Aggregator.
func NewAggregator() *Aggregator { return &Aggregator{} }

// Aggregate applies the requested method over the prediction values. An
// unrecognised method behaves as mean. The result always lies within the
// [min, max] envelope of the inputs.
func (a *Aggregator) Aggregate(preds models.PredictionSet, method models.AggregateMethod) (float64, error) {
	vals := preds.Values()
	if len(vals) == 0 {
		return 0, ErrNoPredictions
	}
	switch method {
	case models.MethodMedian:
		return median(vals), nil
	case models.MethodTrimmed:
		return trimmedMean(vals), nil
	default:
		return stat.Mean(vals, nil), nil
	}
}

// trimmedMean averages the values inside the sigma fence. When every
// value sits outside the fence the unfiltered mean is the answer rather
// than no answer.
func trimmedMean(vals []float64) float64 {
	mean := stat.Mean(vals, nil)
	sigma := stat.PopStdDev(vals, nil)

	kept := make([]float64, 0, len(vals))
	for _, v := range vals {
		if math.Abs(v-mean) < trimSigma*sigma {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return mean
	}
	return stat.Mean(kept, nil)
}

func median(vals []float64) float64 {
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

var _ domsvc.Aggregator = (*Aggregator)(nil)
