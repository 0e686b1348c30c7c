package kmeans

import (
	"errors"
	"math"
)

// Scaler standardises features to zero mean and unit variance, column by
// column. Like the model, it marshals to JSON for persistence.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// FitScaler computes per-column mean and population standard deviation.
// Columns with zero variance get std 1 so transforms stay finite.
func FitScaler(data [][]float64) (*Scaler, error) {
	if len(data) == 0 {
		return nil, errors.New("kmeans: no rows to fit scaler")
	}
	dims := len(data[0])
	if dims == 0 {
		return nil, errors.New("kmeans: empty feature vectors")
	}
	mean := make([]float64, dims)
	std := make([]float64, dims)
	for _, row := range data {
		if len(row) != dims {
			return nil, errors.New("kmeans: ragged rows")
		}
		for d, v := range row {
			mean[d] += v
		}
	}
	n := float64(len(data))
	for d := range mean {
		mean[d] /= n
	}
	for _, row := range data {
		for d, v := range row {
			diff := v - mean[d]
			std[d] += diff * diff
		}
	}
	for d := range std {
		std[d] = math.Sqrt(std[d] / n)
		if std[d] == 0 {
			std[d] = 1
		}
	}
	return &Scaler{Mean: mean, Std: std}, nil
}

// Transform returns standardised copies of the input rows.
func (s *Scaler) Transform(data [][]float64) [][]float64 {
	out := make([][]float64, len(data))
	for i, row := range data {
		out[i] = s.TransformRow(row)
	}
	return out
}

// TransformRow standardises a single row.
func (s *Scaler) TransformRow(row []float64) []float64 {
	out := make([]float64, len(row))
	for d, v := range row {
		out[d] = (v - s.Mean[d]) / s.Std[d]
	}
	return out
}

// Valid reports whether the scaler carries usable fitted state.
func (s *Scaler) Valid() bool {
	if s == nil || len(s.Mean) == 0 || len(s.Mean) != len(s.Std) {
		return false
	}
	for i := range s.Mean {
		if math.IsNaN(s.Mean[i]) || math.IsInf(s.Mean[i], 0) || s.Std[i] <= 0 {
			return false
		}
	}
	return true
}
