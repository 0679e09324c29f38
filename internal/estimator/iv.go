package estimator

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"esgpanel/internal/dataset"
	apperrors "esgpanel/internal/errors"
)

// TwoSLS fits two-stage least squares of dep on one endogenous regressor
// plus exogenous controls, with the given excluded instruments. Exogenous
// regressors instrument themselves.
//
// The reported standard errors and fit statistics use the structural
// residuals y - X b with the actual (not fitted) endogenous values, which
// is what makes 2SLS inference valid. The first-stage F over the excluded instruments is
// attached as a diagnostic; by the usual rule of thumb values below 10
// signal a weak instrument.
func TwoSLS(p *dataset.Panel, dep, endog string, exog, instruments []string, opts DesignOptions) (*Result, error) {
	if len(instruments) == 0 {
		return nil, fmt.Errorf("2SLS requires at least one excluded instrument")
	}

	// One combined design forces listwise completeness across the dependent,
	// the endogenous regressor, controls, and instruments alike.
	all := make([]string, 0, 1+len(exog)+len(instruments))
	all = append(all, endog)
	all = append(all, exog...)
	all = append(all, instruments...)
	opts.Intercept = true

	full, err := NewDesign(p, dep, all, opts)
	if err != nil {
		return nil, err
	}
	n := full.N()

	endogVals := designColumn(full, endog)

	// First stage: endog ~ const + instruments + exog
	zNames := append([]string{}, instruments...)
	zNames = append(zNames, exog...)
	z := subDesign(full, endog, endogVals, zNames)

	firstFit, err := solveOLS(z)
	if err != nil {
		return nil, fmt.Errorf("first stage: %w", err)
	}

	instIdx := make([]int, len(instruments))
	for i := range instruments {
		// Layout of z is [const, instruments..., exog...]
		instIdx[i] = 1 + i
	}
	fStat, fP := WaldF(z, firstFit, instIdx)

	// Second stage: y ~ const + fitted(endog) + exog
	structNames := append([]string{endog}, exog...)
	second := subDesign(full, dep, full.Y, structNames)
	endogCol := 1 // after const
	for i := 0; i < n; i++ {
		second.X.Set(i, endogCol, firstFit.fitted[i])
	}

	secondFit, err := solveOLS(second)
	if err != nil {
		return nil, fmt.Errorf("second stage: %w", err)
	}

	// Correct residuals: actual endogenous values, 2SLS beta
	k := second.K()
	beta := mat.NewVecDense(k, secondFit.beta)
	xActual := mat.DenseCopyOf(second.X)
	for i := 0; i < n; i++ {
		xActual.Set(i, endogCol, endogVals[i])
	}
	var fittedActual mat.VecDense
	fittedActual.MulVec(xActual, beta)

	var ssr float64
	for i := 0; i < n; i++ {
		e := full.Y[i] - fittedActual.AtVec(i)
		ssr += e * e
	}
	if n <= k {
		return nil, fmt.Errorf("%w: n=%d, k=%d", apperrors.ErrInsufficientData, n, k)
	}
	sigma2 := ssr / float64(n-k)

	variance := make([]float64, k)
	for i := 0; i < k; i++ {
		variance[i] = sigma2 * secondFit.xtxInv.At(i, i)
	}

	// Fit statistics from the structural residuals, not the second-stage
	// regression on fitted values. A negative 2SLS R2 is possible and
	// reported as-is.
	var yMean float64
	for i := 0; i < n; i++ {
		yMean += full.Y[i]
	}
	yMean /= float64(n)
	var tss float64
	for i := 0; i < n; i++ {
		d := full.Y[i] - yMean
		tss += d * d
	}
	r2 := 1 - ssr/tss
	adjR2 := 1 - (1-r2)*float64(n-1)/float64(n-k)

	res := &Result{
		Model:     "iv_2sls",
		Method:    "2SLS, leave-one-out industry-mean instrument",
		Dependent: dep,
		N:         n,
		NGroups:   full.NFirms(),
		R2:        r2,
		AdjR2:     adjR2,
	}
	res.Coefficients = makeCoefficients(second.Names, secondFit.beta, variance, float64(n-k), false)
	res.SetDiagnostic("first_stage_f", fStat)
	res.SetDiagnostic("first_stage_f_p", fP)
	return res, nil
}

// designColumn extracts the named regressor column from a design.
func designColumn(d *Design, name string) []float64 {
	for j, n := range d.Names {
		if n == name {
			out := make([]float64, d.N())
			for i := range out {
				out[i] = d.X.At(i, j)
			}
			return out
		}
	}
	return nil
}

// subDesign builds a derived design sharing rows with src: dependent values
// y, regressors const + the named columns of src.
func subDesign(src *Design, dep string, y []float64, names []string) *Design {
	n := src.N()
	k := 1 + len(names)
	x := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
	}
	for j, name := range names {
		col := designColumn(src, name)
		for i := 0; i < n; i++ {
			x.Set(i, j+1, col[i])
		}
	}
	yCopy := make([]float64, n)
	copy(yCopy, y)
	return &Design{
		Dependent: dep,
		Names:     append([]string{"const"}, names...),
		Y:         yCopy,
		X:         x,
		Firms:     src.Firms,
		Years:     src.Years,
		Intercept: true,
	}
}
