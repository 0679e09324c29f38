package estimator

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	apperrors "esgpanel/internal/errors"
)

// OLS fits ordinary least squares on the design with the requested standard
// error type and returns the full coefficient table.
func OLS(d *Design, se SEType) (*Result, error) {
	fit, err := solveOLS(d)
	if err != nil {
		return nil, err
	}

	variance, df, err := fit.covariance(d, se)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Model:     "ols",
		Method:    fmt.Sprintf("OLS, %s SE", se),
		Dependent: d.Dependent,
		N:         d.N(),
		NGroups:   d.NFirms(),
		R2:        fit.r2,
		AdjR2:     fit.adjR2,
	}
	res.Coefficients = makeCoefficients(d.Names, fit.beta, variance, df, false)
	return res, nil
}

// olsFit holds the pieces of a least-squares solve shared by the covariance
// estimators and the panel/IV wrappers.
type olsFit struct {
	beta      []float64
	residuals []float64
	fitted    []float64
	xtxInv    *mat.Dense
	sigma2    float64 // SSR / (n - k)
	ssr       float64
	sst       float64
	r2        float64
	adjR2     float64
}

// solveOLS computes beta = (X'X)^-1 X'y and the residual statistics.
// A singular cross-product matrix is a fatal error, matching the abort
// semantics of the analysis run.
func solveOLS(d *Design) (*olsFit, error) {
	n, k := d.X.Dims()
	if n <= k {
		return nil, fmt.Errorf("%w: n=%d, k=%d", apperrors.ErrInsufficientData, n, k)
	}

	var xtx mat.Dense
	xtx.Mul(d.X.T(), d.X)

	var xtxInv mat.Dense
	if err := xtxInv.Inverse(&xtx); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSingularMatrix, err)
	}

	yVec := mat.NewVecDense(n, d.Y)
	var xty mat.VecDense
	xty.MulVec(d.X.T(), yVec)

	var betaVec mat.VecDense
	betaVec.MulVec(&xtxInv, &xty)

	beta := make([]float64, k)
	for i := 0; i < k; i++ {
		beta[i] = betaVec.AtVec(i)
	}

	fitted := make([]float64, n)
	residuals := make([]float64, n)
	var fittedVec mat.VecDense
	fittedVec.MulVec(d.X, &betaVec)

	var ssr, sst, ybar float64
	for i := 0; i < n; i++ {
		ybar += d.Y[i]
	}
	ybar /= float64(n)

	for i := 0; i < n; i++ {
		fitted[i] = fittedVec.AtVec(i)
		residuals[i] = d.Y[i] - fitted[i]
		ssr += residuals[i] * residuals[i]
		dev := d.Y[i] - ybar
		sst += dev * dev
	}

	r2 := 0.0
	if sst > 0 {
		r2 = 1 - ssr/sst
	}
	adjR2 := 1 - (1-r2)*float64(n-1)/float64(n-k)

	return &olsFit{
		beta:      beta,
		residuals: residuals,
		fitted:    fitted,
		xtxInv:    &xtxInv,
		sigma2:    ssr / float64(n-k),
		ssr:       ssr,
		sst:       sst,
		r2:        r2,
		adjR2:     adjR2,
	}, nil
}

// covariance computes the coefficient variance diagonal for the requested
// estimator, and the degrees of freedom for t statistics.
func (f *olsFit) covariance(d *Design, se SEType) ([]float64, float64, error) {
	n, k := d.X.Dims()

	switch se {
	case SEClassical:
		variance := make([]float64, k)
		for i := 0; i < k; i++ {
			variance[i] = f.sigma2 * f.xtxInv.At(i, i)
		}
		return variance, float64(n - k), nil

	case SERobust:
		// HC1: (X'X)^-1 X' diag(e^2) X (X'X)^-1 scaled by n/(n-k)
		meat := mat.NewDense(k, k, nil)
		row := make([]float64, k)
		for i := 0; i < n; i++ {
			mat.Row(row, i, d.X)
			e2 := f.residuals[i] * f.residuals[i]
			for a := 0; a < k; a++ {
				for b := 0; b < k; b++ {
					meat.Set(a, b, meat.At(a, b)+e2*row[a]*row[b])
				}
			}
		}
		cov := sandwich(f.xtxInv, meat)
		scale := float64(n) / float64(n-k)
		variance := make([]float64, k)
		for i := 0; i < k; i++ {
			variance[i] = scale * cov.At(i, i)
		}
		return variance, float64(n - k), nil

	case SECluster:
		// Cluster-robust by firm: meat is the sum of outer products of the
		// per-cluster score vectors X_g' e_g
		scores := make(map[string][]float64)
		row := make([]float64, k)
		for i := 0; i < n; i++ {
			mat.Row(row, i, d.X)
			s := scores[d.Firms[i]]
			if s == nil {
				s = make([]float64, k)
				scores[d.Firms[i]] = s
			}
			for a := 0; a < k; a++ {
				s[a] += row[a] * f.residuals[i]
			}
		}
		g := len(scores)
		if g < 2 {
			return nil, 0, fmt.Errorf("%w: need at least 2 clusters, got %d",
				apperrors.ErrInsufficientData, g)
		}
		meat := mat.NewDense(k, k, nil)
		for _, s := range scores {
			for a := 0; a < k; a++ {
				for b := 0; b < k; b++ {
					meat.Set(a, b, meat.At(a, b)+s[a]*s[b])
				}
			}
		}
		cov := sandwich(f.xtxInv, meat)
		scale := float64(g) / float64(g-1) * float64(n-1) / float64(n-k)
		variance := make([]float64, k)
		for i := 0; i < k; i++ {
			variance[i] = scale * cov.At(i, i)
		}
		return variance, float64(g - 1), nil

	default:
		return nil, 0, fmt.Errorf("unknown standard error type: %d", se)
	}
}

// sandwich computes bread * meat * bread for symmetric bread.
func sandwich(bread, meat *mat.Dense) *mat.Dense {
	var tmp, cov mat.Dense
	tmp.Mul(bread, meat)
	cov.Mul(&tmp, bread)
	return &cov
}

// WaldF computes the joint F statistic that the coefficients at the given
// indexes are all zero, using the classical covariance. Used for the
// first-stage instrument strength check.
func WaldF(d *Design, f *olsFit, idx []int) (float64, float64) {
	n, k := d.X.Dims()
	q := len(idx)
	if q == 0 {
		return 0, 1
	}

	// Restricted subvector and corresponding covariance block
	sub := make([]float64, q)
	cov := mat.NewDense(q, q, nil)
	for a, ia := range idx {
		sub[a] = f.beta[ia]
		for b, ib := range idx {
			cov.Set(a, b, f.sigma2*f.xtxInv.At(ia, ib))
		}
	}

	var covInv mat.Dense
	if err := covInv.Inverse(cov); err != nil {
		return 0, 1
	}

	subVec := mat.NewVecDense(q, sub)
	var tmp mat.VecDense
	tmp.MulVec(&covInv, subVec)
	wald := mat.Dot(subVec, &tmp)

	stat := wald / float64(q)
	return stat, pValueF(stat, float64(q), float64(n-k))
}
