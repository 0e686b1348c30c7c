package strategies

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"FinCast/internal/domain/models"
)

// KernelRidge fits an RBF-kernel ridge regression on standardised
// features. It plays the role of a support-vector regressor with a far
// simpler closed-form fit.
type KernelRidge struct {
	lambda  float64
	maxRows int
}

// NewKernelRidge returns the RBF kernel regression strategy.
func NewKernelRidge() *KernelRidge {
	return &KernelRidge{lambda: 0.005, maxRows: 1000}
}

func (k *KernelRidge) Name() string { return "kernel_ridge" }

func (k *KernelRidge) Predict(ctx context.Context, s *models.PriceSeries) (float64, error) {
	raw, err := buildSupervised(s)
	if err != nil {
		return 0, err
	}
	ds, err := raw.tail(k.maxRows).copyStandardized()
	if err != nil {
		return 0, fmt.Errorf("kernel_ridge %s: %w", s.Symbol, err)
	}

	n := len(ds.X)
	d := len(ds.X[0])
	gamma := 1.0 / (float64(d) * matrixVariance(ds.X))

	gram := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		gram.SetSym(i, i, 1+k.lambda)
		for j := i + 1; j < n; j++ {
			gram.SetSym(i, j, math.Exp(-gamma*sqEuclid(ds.X[i], ds.X[j])))
		}
	}

	ym := meanOf(ds.y)
	rhs := mat.NewVecDense(n, nil)
	for i, v := range ds.y {
		rhs.SetVec(i, v-ym)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(gram); !ok {
		return 0, fmt.Errorf("kernel_ridge %s: kernel matrix not positive definite", s.Symbol)
	}
	var alpha mat.VecDense
	if err := chol.SolveVecTo(&alpha, rhs); err != nil {
		return 0, fmt.Errorf("kernel_ridge %s: solve: %w", s.Symbol, err)
	}

	pred := ym
	for i := 0; i < n; i++ {
		pred += alpha.AtVec(i) * math.Exp(-gamma*sqEuclid(ds.X[i], ds.latest))
	}
	if !finite(pred) {
		return 0, fmt.Errorf("kernel_ridge %s: non-finite forecast", s.Symbol)
	}
	return pred, nil
}

// matrixVariance is the mean per-column population variance, the scale
// term of the "scale" kernel width rule.
func matrixVariance(X [][]float64) float64 {
	d := len(X[0])
	means := columnMeans(X)
	total := 0.0
	for j := 0; j < d; j++ {
		col := 0.0
		for _, row := range X {
			diff := row[j] - means[j]
			col += diff * diff
		}
		total += col / float64(len(X))
	}
	v := total / float64(d)
	if v <= 0 {
		return 1
	}
	return v
}

var _ Strategy = (*KernelRidge)(nil)
