package estimator

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"esgpanel/internal/dataset"
	apperrors "esgpanel/internal/errors"
)

// abRow is one first-differenced observation in the Arellano-Bond system.
type abRow struct {
	firm string
	year int
	dy   float64   // Δy_t
	x    []float64 // Δy_{t-1} then Δx_t
	z    []float64 // instruments: collapsed y levels then Δx_t
}

// ArellanoBond fits one-step difference GMM for the dynamic specification
//
//	Δy_it = α Δy_i,t-1 + β'Δx_it + Δε_it
//
// with collapsed instrument columns y_{i,t-l} for l = 2..maxLag, and the
// differenced exogenous regressors instrumenting themselves. Reports robust
// (Windmeijer-uncorrected) standard errors, the Hansen J overidentification
// statistic, and the AR(2) serial correlation test on the differenced
// residuals.
func ArellanoBond(p *dataset.Panel, dep string, regressors []string, maxLag int) (*Result, error) {
	if maxLag < 2 {
		return nil, fmt.Errorf("gmm max lag must be at least 2, got %d", maxLag)
	}

	rows, err := buildABRows(p, dep, regressors, maxLag)
	if err != nil {
		return nil, err
	}

	k := 1 + len(regressors)
	m := (maxLag - 1) + len(regressors)
	n := len(rows)
	if n <= k || m < k {
		return nil, fmt.Errorf("%w: %d differenced observations, %d parameters, %d instruments",
			apperrors.ErrInsufficientData, n, k, m)
	}

	x := mat.NewDense(n, k, nil)
	z := mat.NewDense(n, m, nil)
	y := make([]float64, n)
	for i, r := range rows {
		y[i] = r.dy
		x.SetRow(i, r.x)
		z.SetRow(i, r.z)
	}

	// One-step weight: W = (Z' H Z)^-1 with H the per-firm tridiagonal
	// matrix induced by first differencing (2 on the diagonal, -1 between
	// adjacent years)
	zhz := weightedCross(rows, z, m)
	var w mat.Dense
	if err := w.Inverse(zhz); err != nil {
		return nil, fmt.Errorf("%w: one-step weight matrix: %v", apperrors.ErrSingularMatrix, err)
	}

	// beta = (X'Z W Z'X)^-1 X'Z W Z'y
	var xtz, ztx mat.Dense
	xtz.Mul(x.T(), z) // k×m
	ztx.Mul(z.T(), x) // m×k

	var xzw mat.Dense
	xzw.Mul(&xtz, &w) // k×m

	var lhs mat.Dense
	lhs.Mul(&xzw, &ztx) // k×k
	var lhsInv mat.Dense
	if err := lhsInv.Inverse(&lhs); err != nil {
		return nil, fmt.Errorf("%w: GMM normal equations: %v", apperrors.ErrSingularMatrix, err)
	}

	yVec := mat.NewVecDense(n, y)
	var zty mat.VecDense
	zty.MulVec(z.T(), yVec) // m
	var rhs mat.VecDense
	rhs.MulVec(&xzw, &zty) // k
	var betaVec mat.VecDense
	betaVec.MulVec(&lhsInv, &rhs)

	beta := make([]float64, k)
	for i := 0; i < k; i++ {
		beta[i] = betaVec.AtVec(i)
	}

	// Residuals of the differenced equation
	resid := make([]float64, n)
	var fitted mat.VecDense
	fitted.MulVec(x, &betaVec)
	for i := 0; i < n; i++ {
		resid[i] = y[i] - fitted.AtVec(i)
	}

	// Robust covariance: A (X'Z W S W Z'X) A with S = Σ_i Z_i'û_i û_i'Z_i
	s := scoreOuter(rows, z, resid, m)
	var tmp1, tmp2, meat, cov mat.Dense
	tmp1.Mul(&xzw, s)    // k×m
	tmp2.Mul(&tmp1, &w)  // k×m
	meat.Mul(&tmp2, &ztx) // k×k
	var tmp3 mat.Dense
	tmp3.Mul(&lhsInv, &meat)
	cov.Mul(&tmp3, &lhsInv)

	variance := make([]float64, k)
	for i := 0; i < k; i++ {
		variance[i] = cov.At(i, i)
	}

	names := append([]string{"l_" + dep}, regressors...)

	res := &Result{
		Model:     "gmm_diff",
		Method:    fmt.Sprintf("Arellano-Bond one-step difference GMM, collapsed lags 2..%d", maxLag),
		Dependent: dep,
		N:         n,
		NGroups:   countFirms(rows),
	}
	res.Coefficients = makeCoefficients(names, beta, variance, 0, true)

	// Hansen J with the efficient (residual-based) weight
	hansen, hansenP := hansenJ(z, resid, s, k, m)
	res.SetDiagnostic("hansen_j", hansen)
	res.SetDiagnostic("hansen_j_p", hansenP)
	res.SetDiagnostic("n_instruments", float64(m))

	ar2, ar2P := arTest(rows, resid, 2)
	res.SetDiagnostic("ar2_z", ar2)
	res.SetDiagnostic("ar2_p", ar2P)

	return res, nil
}

// buildABRows assembles the differenced observations with their instrument
// vectors. An observation enters only when y is observed in three
// consecutive years (so both Δy_t and the regressor Δy_{t-1} exist) and
// every regressor is observed in t and t-1.
func buildABRows(p *dataset.Panel, dep string, regressors []string, maxLag int) ([]abRow, error) {
	y, err := p.Float(dep)
	if err != nil {
		return nil, err
	}
	xCols := make([][]float64, len(regressors))
	for i, name := range regressors {
		vals, err := p.Float(name)
		if err != nil {
			return nil, err
		}
		xCols[i] = vals
	}
	years, err := p.Years()
	if err != nil {
		return nil, err
	}
	firms := p.Firms()

	// Index values by (firm, year)
	type obs struct {
		y float64
		x []float64
	}
	index := make(map[string]map[int]obs)
	for i := range y {
		f := firms[i]
		if index[f] == nil {
			index[f] = make(map[int]obs)
		}
		xs := make([]float64, len(regressors))
		for j := range regressors {
			xs[j] = xCols[j][i]
		}
		index[f][years[i]] = obs{y: y[i], x: xs}
	}

	firmOrder := make([]string, 0, len(index))
	for f := range index {
		firmOrder = append(firmOrder, f)
	}
	sort.Strings(firmOrder)

	var rows []abRow
	for _, f := range firmOrder {
		byYear := index[f]
		yearList := make([]int, 0, len(byYear))
		for yr := range byYear {
			yearList = append(yearList, yr)
		}
		sort.Ints(yearList)

		for _, t := range yearList {
			cur, ok1 := byYear[t]
			prev, ok2 := byYear[t-1]
			prev2, ok3 := byYear[t-2]
			if !ok1 || !ok2 || !ok3 {
				continue
			}
			if !isFinite(cur.y) || !isFinite(prev.y) || !isFinite(prev2.y) {
				continue
			}
			ok := true
			dx := make([]float64, len(regressors))
			for j := range regressors {
				if !isFinite(cur.x[j]) || !isFinite(prev.x[j]) {
					ok = false
					break
				}
				dx[j] = cur.x[j] - prev.x[j]
			}
			if !ok {
				continue
			}

			xRow := make([]float64, 1+len(regressors))
			xRow[0] = prev.y - prev2.y // Δy_{t-1}
			copy(xRow[1:], dx)

			// Collapsed instruments: one column per lag distance
			zRow := make([]float64, (maxLag-1)+len(regressors))
			for l := 2; l <= maxLag; l++ {
				if lagObs, ok := byYear[t-l]; ok && isFinite(lagObs.y) {
					zRow[l-2] = lagObs.y
				}
			}
			copy(zRow[maxLag-1:], dx)

			rows = append(rows, abRow{
				firm: f,
				year: t,
				dy:   cur.y - prev.y,
				x:    xRow,
				z:    zRow,
			})
		}
	}
	return rows, nil
}

// weightedCross computes Σ_i Z_i' H_i Z_i where H_i has 2 on the diagonal
// and -1 between rows of the same firm in adjacent years.
func weightedCross(rows []abRow, z *mat.Dense, m int) *mat.Dense {
	byFirm := make(map[string][]int)
	for i, r := range rows {
		byFirm[r.firm] = append(byFirm[r.firm], i)
	}

	out := mat.NewDense(m, m, nil)
	for _, idx := range byFirm {
		for _, i := range idx {
			for _, j := range idx {
				var h float64
				switch {
				case i == j:
					h = 2
				case abs(rows[i].year-rows[j].year) == 1:
					h = -1
				default:
					continue
				}
				for a := 0; a < m; a++ {
					za := z.At(i, a)
					if za == 0 {
						continue
					}
					for b := 0; b < m; b++ {
						out.Set(a, b, out.At(a, b)+h*za*z.At(j, b))
					}
				}
			}
		}
	}
	return out
}

// scoreOuter computes S = Σ_firms (Z_i'û_i)(Z_i'û_i)'.
func scoreOuter(rows []abRow, z *mat.Dense, resid []float64, m int) *mat.Dense {
	scores := make(map[string][]float64)
	for i, r := range rows {
		s := scores[r.firm]
		if s == nil {
			s = make([]float64, m)
			scores[r.firm] = s
		}
		for a := 0; a < m; a++ {
			s[a] += z.At(i, a) * resid[i]
		}
	}
	out := mat.NewDense(m, m, nil)
	for _, s := range scores {
		for a := 0; a < m; a++ {
			for b := 0; b < m; b++ {
				out.Set(a, b, out.At(a, b)+s[a]*s[b])
			}
		}
	}
	return out
}

// hansenJ computes the overidentification statistic with the efficient
// weight built from the residual scores.
func hansenJ(z *mat.Dense, resid []float64, s *mat.Dense, k, m int) (float64, float64) {
	df := m - k
	if df <= 0 {
		return math.NaN(), math.NaN()
	}

	var sInv mat.Dense
	if err := sInv.Inverse(s); err != nil {
		return math.NaN(), math.NaN()
	}

	n, _ := z.Dims()
	residVec := mat.NewVecDense(n, resid)
	var g mat.VecDense
	g.MulVec(z.T(), residVec)

	var tmp mat.VecDense
	tmp.MulVec(&sInv, &g)
	j := mat.Dot(&g, &tmp)
	return j, pValueChi2(j, float64(df))
}

// arTest computes the Arellano-Bond test for order-l serial correlation in
// the differenced residuals. Under the null the statistic is standard
// normal; AR(2) rejection invalidates the lag-2 instruments.
func arTest(rows []abRow, resid []float64, l int) (float64, float64) {
	byFirmYear := make(map[string]float64, len(rows))
	for i, r := range rows {
		byFirmYear[fmt.Sprintf("%s:%d", r.firm, r.year)] = resid[i]
	}

	var num, den float64
	count := 0
	for i, r := range rows {
		lagKey := fmt.Sprintf("%s:%d", r.firm, r.year-l)
		if lagResid, ok := byFirmYear[lagKey]; ok {
			num += resid[i] * lagResid
			den += resid[i] * resid[i] * lagResid * lagResid
			count++
		}
	}
	if count == 0 || den <= 0 {
		return math.NaN(), math.NaN()
	}
	stat := num / math.Sqrt(den)
	return stat, pValueZ(stat)
}

func countFirms(rows []abRow) int {
	seen := make(map[string]bool)
	for _, r := range rows {
		seen[r.firm] = true
	}
	return len(seen)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
