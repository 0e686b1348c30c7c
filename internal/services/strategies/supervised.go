package strategies

import (
	"fmt"

	"FinCast/internal/domain/models"
	"FinCast/pkg/kmeans"
)

// featureColumns are the supervised model inputs, in fixed order. The
// first four come from the raw bars, the rest from enrichment.
var featureColumns = []string{
	"open", "high", "low", "volume",
	models.ColMA10, models.ColMA50, models.ColMA200,
	models.ColRSI, models.ColMACD, models.ColVolatility,
}

// dataset is the shared supervised view of a series: training rows with
// next-close targets, plus the latest feature row used for the live
// prediction.
type dataset struct {
	X      [][]float64
	y      []float64
	latest []float64
}

// buildSupervised assembles the training matrix. The target of row i is
// the close of bar i+1, so the final bar never trains and instead becomes
// the prediction input. Rows with any non-finite cell are dropped, and
// fewer than MinTrainRows survivors aborts the fit.
func buildSupervised(s *models.PriceSeries) (*dataset, error) {
	n := s.Len()
	if n < 2 {
		return nil, fmt.Errorf("supervised prep %s: %w", s.Symbol, ErrInsufficientData)
	}

	ds := &dataset{}
	for i := 0; i < n-1; i++ {
		row, ok := featureRow(s, i)
		if !ok {
			continue
		}
		target := s.Bars[i+1].Close
		if !finite(target) {
			continue
		}
		ds.X = append(ds.X, row)
		ds.y = append(ds.y, target)
	}
	if len(ds.X) < MinTrainRows {
		return nil, fmt.Errorf("supervised prep %s: %d usable rows: %w", s.Symbol, len(ds.X), ErrInsufficientData)
	}

	latest, ok := featureRow(s, n-1)
	if !ok {
		return nil, fmt.Errorf("supervised prep %s: latest row incomplete: %w", s.Symbol, ErrIndicatorMissing)
	}
	ds.latest = latest
	return ds, nil
}

// featureRow materialises one feature vector; ok is false when any cell
// is missing or non-finite.
func featureRow(s *models.PriceSeries, i int) ([]float64, bool) {
	bar := s.Bars[i]
	row := make([]float64, 0, len(featureColumns))
	row = append(row, bar.Open, bar.High, bar.Low, bar.Volume)
	for _, name := range featureColumns[4:] {
		col, ok := s.Column(name)
		if !ok || i >= len(col) {
			return nil, false
		}
		row = append(row, col[i])
	}
	for _, v := range row {
		if !finite(v) {
			return nil, false
		}
	}
	return row, true
}

// tail keeps only the most recent limit training rows. Expensive fitters
// use it to bound work on long histories.
func (d *dataset) tail(limit int) *dataset {
	if limit <= 0 || len(d.X) <= limit {
		return d
	}
	start := len(d.X) - limit
	return &dataset{X: d.X[start:], y: d.y[start:], latest: d.latest}
}

// copyStandardized returns the dataset with features standardised by the
// training distribution, for scale-sensitive fitters.
func (d *dataset) copyStandardized() (*dataset, error) {
	s, err := kmeans.FitScaler(d.X)
	if err != nil {
		return nil, err
	}
	return &dataset{X: s.Transform(d.X), y: d.y, latest: s.TransformRow(d.latest)}, nil
}

// meanOf is the arithmetic mean of a non-empty slice.
func meanOf(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// varianceOf is the population variance about the supplied mean.
func varianceOf(vals []float64, mean float64) float64 {
	sum := 0.0
	for _, v := range vals {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(vals))
}

func sqEuclid(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
