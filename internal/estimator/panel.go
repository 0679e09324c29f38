package estimator

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	apperrors "esgpanel/internal/errors"
)

// withinTolerance is the convergence threshold for two-way demeaning.
const withinTolerance = 1e-10

// absorbTolerance decides when a demeaned column counts as absorbed by the
// fixed effects. Firm-constant regressors demean to numerical zero.
const absorbTolerance = 1e-8

// Within returns the design transformed by demeaning over firm and/or year
// groups. The constant column, if present, is removed: group demeaning
// absorbs it. Two-way demeaning iterates firm and year sweeps until the
// columns stop moving, which handles unbalanced panels where a single sweep
// per dimension is not exact.
func Within(d *Design, byFirm, byYear bool) (*Design, error) {
	if !byFirm && !byYear {
		return nil, fmt.Errorf("within transform needs at least one dimension")
	}

	w := d.Clone()
	if w.Intercept {
		n, k := w.X.Dims()
		if k < 2 {
			return nil, fmt.Errorf("%w: no regressors besides constant", apperrors.ErrInsufficientData)
		}
		trimmed := mat.NewDense(n, k-1, nil)
		for i := 0; i < n; i++ {
			for j := 1; j < k; j++ {
				trimmed.Set(i, j-1, w.X.At(i, j))
			}
		}
		w.X = trimmed
		w.Names = w.Names[1:]
		w.Intercept = false
	}

	firmKeys := w.Firms
	yearKeys := make([]string, len(w.Years))
	for i, y := range w.Years {
		yearKeys[i] = fmt.Sprintf("%d", y)
	}

	maxIter := 1
	if byFirm && byYear {
		maxIter = 100
	}

	for iter := 0; iter < maxIter; iter++ {
		var delta float64
		if byFirm {
			delta = math.Max(delta, demeanSweep(w, firmKeys))
		}
		if byYear {
			delta = math.Max(delta, demeanSweep(w, yearKeys))
		}
		if delta < withinTolerance {
			break
		}
	}

	// Regressors with no within-group variation, such as firm-constant
	// dummies under firm FE, demean to zero columns. They are absorbed by
	// the effects; keeping them would make X'X singular.
	n, k := w.X.Dims()
	keep := make([]int, 0, k)
	for j := 0; j < k; j++ {
		var maxAbs float64
		for i := 0; i < n; i++ {
			maxAbs = math.Max(maxAbs, math.Abs(w.X.At(i, j)))
		}
		if maxAbs > absorbTolerance {
			keep = append(keep, j)
		}
	}
	if len(keep) == 0 {
		return nil, fmt.Errorf("%w: every regressor absorbed by the fixed effects",
			apperrors.ErrInsufficientData)
	}
	if len(keep) < k {
		trimmed := mat.NewDense(n, len(keep), nil)
		names := make([]string, len(keep))
		for jj, j := range keep {
			names[jj] = w.Names[j]
			for i := 0; i < n; i++ {
				trimmed.Set(i, jj, w.X.At(i, j))
			}
		}
		w.X = trimmed
		w.Names = names
	}

	return w, nil
}

// demeanSweep subtracts group means from y and every X column in place and
// returns the largest absolute mean removed.
func demeanSweep(d *Design, keys []string) float64 {
	n, k := d.X.Dims()

	counts := make(map[string]int)
	ySums := make(map[string]float64)
	xSums := make(map[string][]float64)
	for i := 0; i < n; i++ {
		key := keys[i]
		counts[key]++
		ySums[key] += d.Y[i]
		s := xSums[key]
		if s == nil {
			s = make([]float64, k)
			xSums[key] = s
		}
		for j := 0; j < k; j++ {
			s[j] += d.X.At(i, j)
		}
	}

	var maxMean float64
	for i := 0; i < n; i++ {
		key := keys[i]
		c := float64(counts[key])
		yMean := ySums[key] / c
		d.Y[i] -= yMean
		maxMean = math.Max(maxMean, math.Abs(yMean))
		for j := 0; j < k; j++ {
			xMean := xSums[key][j] / c
			d.X.Set(i, j, d.X.At(i, j)-xMean)
			maxMean = math.Max(maxMean, math.Abs(xMean))
		}
	}
	return maxMean
}

// FixedEffects fits the within estimator with firm fixed effects, optionally
// absorbing year effects too (the two-way high-dimensional FE model).
// Standard errors are clustered by firm; degrees of freedom account for the
// absorbed effects.
func FixedEffects(d *Design, twoWay bool) (*Result, error) {
	w, err := Within(d, true, twoWay)
	if err != nil {
		return nil, err
	}

	fit, err := solveOLS(w)
	if err != nil {
		return nil, err
	}

	n, k := w.X.Dims()
	g := w.NFirms()
	absorbed := g - 1
	if twoWay {
		absorbed += countDistinctYears(w.Years) - 1
	}
	dfResid := n - k - absorbed
	if dfResid <= 0 {
		return nil, fmt.Errorf("%w: no residual degrees of freedom after absorbing effects",
			apperrors.ErrInsufficientData)
	}
	// Residual variance must reflect the absorbed effects
	fit.sigma2 = fit.ssr / float64(dfResid)

	variance, df, err := fit.covariance(w, SECluster)
	if err != nil {
		return nil, err
	}

	model := "fe_firm"
	method := "Within estimator, firm FE, cluster(firm) SE"
	if twoWay {
		model = "fe_twoway"
		method = "Within estimator, firm+year FE, cluster(firm) SE"
	}

	res := &Result{
		Model:     model,
		Method:    method,
		Dependent: d.Dependent,
		N:         n,
		NGroups:   g,
		R2:        fit.r2, // within R2
		AdjR2:     1 - (1-fit.r2)*float64(n-1)/float64(dfResid),
	}
	res.Coefficients = makeCoefficients(w.Names, fit.beta, variance, df, false)
	res.SetDiagnostic("within_r2", fit.r2)
	res.SetDiagnostic("absorbed_effects", float64(absorbed))
	return res, nil
}

// RandomEffects fits the Swamy-Arora random effects estimator by
// quasi-demeaning with group-specific theta, then GLS via OLS on the
// transformed data.
func RandomEffects(d *Design) (*Result, error) {
	if !d.Intercept {
		return nil, fmt.Errorf("random effects requires an intercept in the design")
	}

	sigmaE2, sigmaU2, err := varianceComponents(d)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, f := range d.Firms {
		counts[f]++
	}
	ySums := make(map[string]float64)
	n, k := d.X.Dims()
	xSums := make(map[string][]float64)
	for i := 0; i < n; i++ {
		f := d.Firms[i]
		ySums[f] += d.Y[i]
		s := xSums[f]
		if s == nil {
			s = make([]float64, k)
			xSums[f] = s
		}
		for j := 0; j < k; j++ {
			s[j] += d.X.At(i, j)
		}
	}

	// Quasi-demean with theta_i = 1 - sqrt(sigma_e2 / (T_i sigma_u2 + sigma_e2))
	q := d.Clone()
	var thetaSum float64
	for i := 0; i < n; i++ {
		f := d.Firms[i]
		ti := float64(counts[f])
		theta := 1 - math.Sqrt(sigmaE2/(ti*sigmaU2+sigmaE2))
		thetaSum += theta
		q.Y[i] -= theta * ySums[f] / ti
		for j := 0; j < k; j++ {
			q.X.Set(i, j, d.X.At(i, j)-theta*xSums[f][j]/ti)
		}
	}

	fit, err := solveOLS(q)
	if err != nil {
		return nil, err
	}
	variance, df, err := fit.covariance(q, SEClassical)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Model:     "re",
		Method:    "Random effects (Swamy-Arora) GLS",
		Dependent: d.Dependent,
		N:         n,
		NGroups:   len(counts),
		R2:        fit.r2,
		AdjR2:     fit.adjR2,
	}
	res.Coefficients = makeCoefficients(q.Names, fit.beta, variance, df, false)
	res.SetDiagnostic("sigma_e2", sigmaE2)
	res.SetDiagnostic("sigma_u2", sigmaU2)
	res.SetDiagnostic("theta_mean", thetaSum/float64(n))
	return res, nil
}

// varianceComponents estimates the idiosyncratic and firm-effect variances
// from the within and between regressions.
func varianceComponents(d *Design) (sigmaE2, sigmaU2 float64, err error) {
	w, err := Within(d, true, false)
	if err != nil {
		return 0, 0, err
	}
	wFit, err := solveOLS(w)
	if err != nil {
		return 0, 0, err
	}
	n, k := w.X.Dims()
	g := w.NFirms()
	dfWithin := n - k - (g - 1)
	if dfWithin <= 0 {
		return 0, 0, fmt.Errorf("%w: within regression has no degrees of freedom",
			apperrors.ErrInsufficientData)
	}
	sigmaE2 = wFit.ssr / float64(dfWithin)

	// Between regression on group means
	b, tBar, err := betweenDesign(d)
	if err != nil {
		return 0, 0, err
	}
	bFit, err := solveOLS(b)
	if err != nil {
		return 0, 0, err
	}
	bn, bk := b.X.Dims()
	dfBetween := bn - bk
	if dfBetween <= 0 {
		return 0, 0, fmt.Errorf("%w: between regression has no degrees of freedom",
			apperrors.ErrInsufficientData)
	}
	sigmaB2 := bFit.ssr / float64(dfBetween)

	sigmaU2 = sigmaB2 - sigmaE2/tBar
	if sigmaU2 < 0 {
		// Negative variance estimate collapses to pooled OLS
		sigmaU2 = 0
	}
	return sigmaE2, sigmaU2, nil
}

// betweenDesign collapses the design to group means; tBar is the harmonic
// mean group size used in the Swamy-Arora correction.
func betweenDesign(d *Design) (*Design, float64, error) {
	n, k := d.X.Dims()

	counts := make(map[string]int)
	order := make([]string, 0)
	for _, f := range d.Firms {
		if counts[f] == 0 {
			order = append(order, f)
		}
		counts[f]++
	}
	g := len(order)
	if g <= k {
		return nil, 0, fmt.Errorf("%w: %d firms for %d parameters in between regression",
			apperrors.ErrInsufficientData, g, k)
	}

	ySums := make(map[string]float64)
	xSums := make(map[string][]float64)
	for i := 0; i < n; i++ {
		f := d.Firms[i]
		ySums[f] += d.Y[i]
		s := xSums[f]
		if s == nil {
			s = make([]float64, k)
			xSums[f] = s
		}
		for j := 0; j < k; j++ {
			s[j] += d.X.At(i, j)
		}
	}

	y := make([]float64, g)
	x := mat.NewDense(g, k, nil)
	firms := make([]string, g)
	years := make([]int, g)
	var invSum float64
	for gi, f := range order {
		c := float64(counts[f])
		invSum += 1 / c
		y[gi] = ySums[f] / c
		firms[gi] = f
		for j := 0; j < k; j++ {
			x.Set(gi, j, xSums[f][j]/c)
		}
	}
	tBar := float64(g) / invSum

	names := make([]string, len(d.Names))
	copy(names, d.Names)
	return &Design{
		Dependent: d.Dependent,
		Names:     names,
		Y:         y,
		X:         x,
		Firms:     firms,
		Years:     years,
		Intercept: d.Intercept,
	}, tBar, nil
}

// Hausman computes the FE-vs-RE specification statistic over the slope
// coefficients the two fits share. A large statistic (small p) rejects the
// random effects orthogonality assumption.
func Hausman(fe, re *Result) (stat, p float64, df int) {
	var diffs, vars []float64
	for _, fc := range fe.Coefficients {
		rc, ok := re.Coef(fc.Name)
		if !ok || fc.Name == "const" {
			continue
		}
		v := fc.StdErr*fc.StdErr - rc.StdErr*rc.StdErr
		if v <= 0 {
			continue
		}
		diff := fc.Estimate - rc.Estimate
		diffs = append(diffs, diff)
		vars = append(vars, v)
	}
	if len(diffs) == 0 {
		return math.NaN(), math.NaN(), 0
	}
	for i := range diffs {
		stat += diffs[i] * diffs[i] / vars[i]
	}
	df = len(diffs)
	return stat, pValueChi2(stat, float64(df)), df
}

func countDistinctYears(years []int) int {
	seen := make(map[int]bool, len(years))
	for _, y := range years {
		seen[y] = true
	}
	return len(seen)
}
