package strategies

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// olsFit solves unregularised least squares with an intercept. The
// returned slice holds the intercept first, then one coefficient per
// feature.
func olsFit(X [][]float64, y []float64) ([]float64, error) {
	rows := len(X)
	if rows == 0 {
		return nil, fmt.Errorf("ols: empty design matrix")
	}
	cols := len(X[0]) + 1
	if rows < cols {
		return nil, fmt.Errorf("ols: %d rows for %d coefficients", rows, cols)
	}
	a := mat.NewDense(rows, cols, nil)
	for i, row := range X {
		a.Set(i, 0, 1)
		for j, v := range row {
			a.Set(i, j+1, v)
		}
	}
	b := mat.NewVecDense(rows, y)

	var qr mat.QR
	qr.Factorize(a)
	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, b); err != nil {
		return nil, fmt.Errorf("ols solve: %w", err)
	}
	out := make([]float64, cols)
	for j := range out {
		out[j] = beta.AtVec(j)
	}
	return out, nil
}

// ridgeFit solves L2-regularised least squares on centered data, leaving
// the intercept unpenalised. Returns the intercept and per-feature
// coefficients.
func ridgeFit(X [][]float64, y []float64, lambda float64) (float64, []float64, error) {
	rows := len(X)
	if rows == 0 {
		return 0, nil, fmt.Errorf("ridge: empty design matrix")
	}
	d := len(X[0])
	xm, ym := columnMeans(X), meanOf(y)

	gram := mat.NewSymDense(d, nil)
	rhs := mat.NewVecDense(d, nil)
	for i, row := range X {
		yc := y[i] - ym
		for j := 0; j < d; j++ {
			xj := row[j] - xm[j]
			rhs.SetVec(j, rhs.AtVec(j)+xj*yc)
			for k := j; k < d; k++ {
				gram.SetSym(j, k, gram.At(j, k)+xj*(row[k]-xm[k]))
			}
		}
	}
	for j := 0; j < d; j++ {
		gram.SetSym(j, j, gram.At(j, j)+lambda)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(gram); !ok {
		return 0, nil, fmt.Errorf("ridge: gram matrix not positive definite")
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, rhs); err != nil {
		return 0, nil, fmt.Errorf("ridge solve: %w", err)
	}

	coefs := make([]float64, d)
	intercept := ym
	for j := 0; j < d; j++ {
		coefs[j] = beta.AtVec(j)
		intercept -= xm[j] * coefs[j]
	}
	return intercept, coefs, nil
}

// lassoFit runs cyclic coordinate descent on centered data, minimising
// (1/2n)·||y − Xβ||² + alpha·Σ|βj|. Returns the intercept and
// coefficients.
func lassoFit(X [][]float64, y []float64, alpha float64) (float64, []float64, error) {
	rows := len(X)
	if rows == 0 {
		return 0, nil, fmt.Errorf("lasso: empty design matrix")
	}
	d := len(X[0])
	xm, ym := columnMeans(X), meanOf(y)
	n := float64(rows)

	xc := make([][]float64, rows)
	resid := make([]float64, rows)
	for i, row := range X {
		xc[i] = make([]float64, d)
		for j := 0; j < d; j++ {
			xc[i][j] = row[j] - xm[j]
		}
		resid[i] = y[i] - ym
	}
	norm := make([]float64, d)
	for j := 0; j < d; j++ {
		for i := 0; i < rows; i++ {
			norm[j] += xc[i][j] * xc[i][j]
		}
		norm[j] /= n
	}

	const (
		maxSweeps = 1000
		tol       = 1e-7
	)
	beta := make([]float64, d)
	for sweep := 0; sweep < maxSweeps; sweep++ {
		maxDelta := 0.0
		for j := 0; j < d; j++ {
			if norm[j] == 0 {
				continue
			}
			rho := 0.0
			for i := 0; i < rows; i++ {
				rho += xc[i][j] * (resid[i] + xc[i][j]*beta[j])
			}
			rho /= n
			next := softThreshold(rho, alpha) / norm[j]
			if delta := next - beta[j]; delta != 0 {
				for i := 0; i < rows; i++ {
					resid[i] -= xc[i][j] * delta
				}
				if ad := math.Abs(delta); ad > maxDelta {
					maxDelta = ad
				}
				beta[j] = next
			}
		}
		if maxDelta < tol {
			break
		}
	}

	intercept := ym
	for j := 0; j < d; j++ {
		intercept -= xm[j] * beta[j]
	}
	return intercept, beta, nil
}

func softThreshold(v, threshold float64) float64 {
	switch {
	case v > threshold:
		return v - threshold
	case v < -threshold:
		return v + threshold
	default:
		return 0
	}
}

func columnMeans(X [][]float64) []float64 {
	d := len(X[0])
	out := make([]float64, d)
	for _, row := range X {
		for j, v := range row {
			out[j] += v
		}
	}
	for j := range out {
		out[j] /= float64(len(X))
	}
	return out
}

// dot applies intercept-first coefficients to a feature row.
func dot(coefs []float64, row []float64) float64 {
	out := coefs[0]
	for j, v := range row {
		out += coefs[j+1] * v
	}
	return out
}
