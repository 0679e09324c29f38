package estimator

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	apperrors "esgpanel/internal/errors"
)

const (
	logitMaxIter = 100
	logitTol     = 1e-9
)

// Logit fits a binary logit by Newton-Raphson and reports z statistics from
// the inverse Fisher information, plus McFadden's pseudo R2. The dependent
// values must be 0/1.
func Logit(d *Design) (*Result, error) {
	fit, err := fitLogit(d)
	if err != nil {
		return nil, err
	}

	n, k := d.X.Dims()
	variance := make([]float64, k)
	for i := 0; i < k; i++ {
		variance[i] = fit.cov.At(i, i)
	}

	res := &Result{
		Model:     "logit",
		Method:    "Logit MLE (Newton-Raphson)",
		Dependent: d.Dependent,
		N:         n,
		NGroups:   d.NFirms(),
		R2:        fit.pseudoR2,
	}
	res.Coefficients = makeCoefficients(d.Names, fit.beta, variance, 0, true)
	res.SetDiagnostic("log_likelihood", fit.logLik)
	res.SetDiagnostic("pseudo_r2", fit.pseudoR2)
	res.SetDiagnostic("iterations", float64(fit.iterations))
	return res, nil
}

// logitFit carries the MLE internals; matching reuses the fitted
// probabilities as propensity scores.
type logitFit struct {
	beta       []float64
	probs      []float64
	cov        *mat.Dense
	logLik     float64
	pseudoR2   float64
	iterations int
}

func fitLogit(d *Design) (*logitFit, error) {
	n, k := d.X.Dims()
	if n <= k {
		return nil, fmt.Errorf("%w: n=%d, k=%d", apperrors.ErrInsufficientData, n, k)
	}

	var ones float64
	for _, v := range d.Y {
		if v != 0 && v != 1 {
			return nil, fmt.Errorf("logit dependent must be 0/1, found %v", v)
		}
		ones += v
	}
	if ones == 0 || ones == float64(n) {
		return nil, fmt.Errorf("%w: logit outcome has no variation", apperrors.ErrInsufficientData)
	}

	beta := mat.NewVecDense(k, nil)
	probs := make([]float64, n)
	row := make([]float64, k)

	var info *mat.Dense
	converged := false
	iter := 0

	for ; iter < logitMaxIter; iter++ {
		// Score and information at current beta
		score := make([]float64, k)
		info = mat.NewDense(k, k, nil)

		var xb mat.VecDense
		xb.MulVec(d.X, beta)
		for i := 0; i < n; i++ {
			probs[i] = sigmoid(xb.AtVec(i))
			mat.Row(row, i, d.X)
			w := probs[i] * (1 - probs[i])
			diff := d.Y[i] - probs[i]
			for a := 0; a < k; a++ {
				score[a] += row[a] * diff
				for b := 0; b < k; b++ {
					info.Set(a, b, info.At(a, b)+w*row[a]*row[b])
				}
			}
		}

		var infoInv mat.Dense
		if err := infoInv.Inverse(info); err != nil {
			return nil, fmt.Errorf("%w: Fisher information: %v", apperrors.ErrSingularMatrix, err)
		}

		var step mat.VecDense
		step.MulVec(&infoInv, mat.NewVecDense(k, score))

		var maxStep float64
		for i := 0; i < k; i++ {
			beta.SetVec(i, beta.AtVec(i)+step.AtVec(i))
			maxStep = math.Max(maxStep, math.Abs(step.AtVec(i)))
		}
		if maxStep < logitTol {
			converged = true
			break
		}
	}
	if !converged {
		return nil, fmt.Errorf("%w: logit after %d iterations", apperrors.ErrNoConvergence, logitMaxIter)
	}

	// Final probabilities, covariance and likelihood
	var xb mat.VecDense
	xb.MulVec(d.X, beta)
	var logLik float64
	for i := 0; i < n; i++ {
		probs[i] = sigmoid(xb.AtVec(i))
		p := clampProb(probs[i])
		if d.Y[i] == 1 {
			logLik += math.Log(p)
		} else {
			logLik += math.Log(1 - p)
		}
	}

	var cov mat.Dense
	if err := cov.Inverse(info); err != nil {
		return nil, fmt.Errorf("%w: Fisher information: %v", apperrors.ErrSingularMatrix, err)
	}

	// Null model: intercept-only likelihood
	pBar := ones / float64(n)
	logLik0 := ones*math.Log(pBar) + (float64(n)-ones)*math.Log(1-pBar)
	pseudoR2 := 1 - logLik/logLik0

	betaOut := make([]float64, k)
	for i := 0; i < k; i++ {
		betaOut[i] = beta.AtVec(i)
	}

	return &logitFit{
		beta:       betaOut,
		probs:      probs,
		cov:        &cov,
		logLik:     logLik,
		pseudoR2:   pseudoR2,
		iterations: iter + 1,
	}, nil
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

func clampProb(p float64) float64 {
	const eps = 1e-12
	if p < eps {
		return eps
	}
	if p > 1-eps {
		return 1 - eps
	}
	return p
}
