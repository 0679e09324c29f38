package estimator

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	apperrors "esgpanel/internal/errors"
)

const (
	quantileMaxIter = 200
	quantileTol     = 1e-8
	// residualFloor keeps the IRLS weights bounded near zero residuals
	residualFloor = 1e-6
)

// QuantileRegression fits the conditional quantile at tau by iteratively
// reweighted least squares on the check-function loss. Standard errors use
// the standard asymptotic formula tau(1-tau) / f(0)^2 (X'X)^-1 with the
// residual density at zero estimated by a Gaussian kernel.
func QuantileRegression(d *Design, tau float64) (*Result, error) {
	if tau <= 0 || tau >= 1 {
		return nil, fmt.Errorf("quantile tau must lie in (0,1), got %.3f", tau)
	}

	n, k := d.X.Dims()
	if n <= k {
		return nil, fmt.Errorf("%w: n=%d, k=%d", apperrors.ErrInsufficientData, n, k)
	}

	// Start from OLS
	fit, err := solveOLS(d)
	if err != nil {
		return nil, err
	}
	beta := mat.NewVecDense(k, append([]float64{}, fit.beta...))

	resid := make([]float64, n)
	weights := make([]float64, n)
	converged := false

	for iter := 0; iter < quantileMaxIter; iter++ {
		var fitted mat.VecDense
		fitted.MulVec(d.X, beta)
		for i := 0; i < n; i++ {
			resid[i] = d.Y[i] - fitted.AtVec(i)
			a := math.Abs(resid[i])
			if a < residualFloor {
				a = residualFloor
			}
			if resid[i] >= 0 {
				weights[i] = tau / a
			} else {
				weights[i] = (1 - tau) / a
			}
		}

		next, err := solveWLS(d, weights)
		if err != nil {
			return nil, err
		}

		var maxChange float64
		for i := 0; i < k; i++ {
			maxChange = math.Max(maxChange, math.Abs(next.AtVec(i)-beta.AtVec(i)))
		}
		beta = next
		if maxChange < quantileTol {
			converged = true
			break
		}
	}
	if !converged {
		return nil, fmt.Errorf("%w: quantile regression at tau=%.2f after %d iterations",
			apperrors.ErrNoConvergence, tau, quantileMaxIter)
	}

	// Final residuals for inference
	var fitted mat.VecDense
	fitted.MulVec(d.X, beta)
	for i := 0; i < n; i++ {
		resid[i] = d.Y[i] - fitted.AtVec(i)
	}

	f0 := densityAtZero(resid)
	if f0 <= 0 {
		return nil, fmt.Errorf("%w: degenerate residual density in quantile regression",
			apperrors.ErrNoConvergence)
	}

	var xtx mat.Dense
	xtx.Mul(d.X.T(), d.X)
	var xtxInv mat.Dense
	if err := xtxInv.Inverse(&xtx); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSingularMatrix, err)
	}

	scale := tau * (1 - tau) / (f0 * f0)
	betaOut := make([]float64, k)
	variance := make([]float64, k)
	for i := 0; i < k; i++ {
		betaOut[i] = beta.AtVec(i)
		variance[i] = scale * xtxInv.At(i, i)
	}

	res := &Result{
		Model:     fmt.Sprintf("qreg_%02.0f", tau*100),
		Method:    fmt.Sprintf("Quantile regression (tau=%.2f), IRLS", tau),
		Dependent: d.Dependent,
		N:         n,
		NGroups:   d.NFirms(),
		R2:        pseudoR1(d.Y, resid, tau),
	}
	res.Coefficients = makeCoefficients(d.Names, betaOut, variance, float64(n-k), false)
	res.SetDiagnostic("tau", tau)
	return res, nil
}

// solveWLS solves the weighted least squares normal equations.
func solveWLS(d *Design, weights []float64) (*mat.VecDense, error) {
	n, k := d.X.Dims()

	xtwx := mat.NewDense(k, k, nil)
	xtwy := make([]float64, k)
	row := make([]float64, k)
	for i := 0; i < n; i++ {
		mat.Row(row, i, d.X)
		w := weights[i]
		for a := 0; a < k; a++ {
			xtwy[a] += w * row[a] * d.Y[i]
			for b := 0; b < k; b++ {
				xtwx.Set(a, b, xtwx.At(a, b)+w*row[a]*row[b])
			}
		}
	}

	var inv mat.Dense
	if err := inv.Inverse(xtwx); err != nil {
		return nil, fmt.Errorf("%w: weighted normal equations: %v", apperrors.ErrSingularMatrix, err)
	}

	var beta mat.VecDense
	beta.MulVec(&inv, mat.NewVecDense(k, xtwy))
	return &beta, nil
}

// densityAtZero estimates the residual density at zero with a Gaussian
// kernel and Silverman's bandwidth.
func densityAtZero(resid []float64) float64 {
	n := len(resid)
	if n < 2 {
		return 0
	}
	sd := stat.StdDev(resid, nil)
	if sd == 0 {
		return 0
	}
	h := 1.06 * sd * math.Pow(float64(n), -0.2)

	var sum float64
	for _, e := range resid {
		u := e / h
		sum += math.Exp(-0.5*u*u) / math.Sqrt(2*math.Pi)
	}
	return sum / (float64(n) * h)
}

// pseudoR1 is Koenker-Machado's goodness of fit: one minus the ratio of the
// fitted check loss to the loss of the unconditional quantile.
func pseudoR1(y, resid []float64, tau float64) float64 {
	sorted := append([]float64{}, y...)
	sort.Float64s(sorted)
	q := stat.Quantile(tau, stat.Empirical, sorted, nil)

	var fitLoss, nullLoss float64
	for i := range y {
		fitLoss += checkLoss(resid[i], tau)
		nullLoss += checkLoss(y[i]-q, tau)
	}
	if nullLoss == 0 {
		return 0
	}
	return 1 - fitLoss/nullLoss
}

func checkLoss(e, tau float64) float64 {
	if e >= 0 {
		return tau * e
	}
	return (tau - 1) * e
}
