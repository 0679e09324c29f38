package estimator

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// pValueT returns the two-sided p-value of a t statistic with df degrees of
// freedom. Large df falls back to the normal distribution, which avoids
// distuv edge cases and matches standard practice.
func pValueT(stat, df float64) float64 {
	if math.IsNaN(stat) {
		return math.NaN()
	}
	if df <= 0 {
		return math.NaN()
	}
	abs := math.Abs(stat)
	if df > 1e6 {
		return pValueZ(stat)
	}
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * (1 - t.CDF(abs))
}

// pValueZ returns the two-sided p-value of a standard normal statistic.
func pValueZ(stat float64) float64 {
	if math.IsNaN(stat) {
		return math.NaN()
	}
	n := distuv.Normal{Mu: 0, Sigma: 1}
	return 2 * n.Survival(math.Abs(stat))
}

// pValueChi2 returns the upper-tail p-value of a chi-squared statistic.
func pValueChi2(stat, df float64) float64 {
	if math.IsNaN(stat) || stat < 0 || df <= 0 {
		return math.NaN()
	}
	c := distuv.ChiSquared{K: df}
	return c.Survival(stat)
}

// pValueF returns the upper-tail p-value of an F statistic.
func pValueF(stat, df1, df2 float64) float64 {
	if math.IsNaN(stat) || stat < 0 || df1 <= 0 || df2 <= 0 {
		return math.NaN()
	}
	f := distuv.F{D1: df1, D2: df2}
	return f.Survival(stat)
}

// makeCoefficients assembles the coefficient table from estimates and the
// diagonal of the covariance matrix, using Student's t with the given df
// (or the normal when useZ is set, as for MLE-based fits).
func makeCoefficients(names []string, beta, variance []float64, df float64, useZ bool) []Coefficient {
	coefs := make([]Coefficient, len(names))
	for i, name := range names {
		se := math.NaN()
		if variance[i] >= 0 {
			se = math.Sqrt(variance[i])
		}
		stat := beta[i] / se
		var p float64
		if useZ {
			p = pValueZ(stat)
		} else {
			p = pValueT(stat, df)
		}
		coefs[i] = Coefficient{
			Name:     name,
			Estimate: beta[i],
			StdErr:   se,
			Stat:     stat,
			PValue:   p,
		}
	}
	return coefs
}
