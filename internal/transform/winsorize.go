package transform

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Bounds holds winsorization percentile bounds as fractions.
type Bounds struct {
	Lower float64
	Upper float64
}

// IsValid checks that the bounds form a proper percentile interval.
func (b Bounds) IsValid() bool {
	return b.Lower >= 0 && b.Lower < b.Upper && b.Upper <= 1
}

// Winsorize caps values below the lower percentile and above the upper
// percentile of the observed distribution. NaN values pass through
// untouched so missingness survives to listwise deletion.
//
// Returns the winsorized slice along with the bounds that were applied.
func Winsorize(values []float64, bounds Bounds) ([]float64, float64, float64, error) {
	if !bounds.IsValid() {
		return nil, 0, 0, fmt.Errorf("invalid winsorization bounds: lower=%.3f, upper=%.3f",
			bounds.Lower, bounds.Upper)
	}

	observed := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			observed = append(observed, v)
		}
	}
	if len(observed) == 0 {
		return nil, 0, 0, fmt.Errorf("no observed values to winsorize")
	}
	sort.Float64s(observed)

	lowerBound := stat.Quantile(bounds.Lower, stat.Empirical, observed, nil)
	upperBound := stat.Quantile(bounds.Upper, stat.Empirical, observed, nil)

	out := make([]float64, len(values))
	for i, v := range values {
		switch {
		case math.IsNaN(v):
			out[i] = v
		case v < lowerBound:
			out[i] = lowerBound
		case v > upperBound:
			out[i] = upperBound
		default:
			out[i] = v
		}
	}
	return out, lowerBound, upperBound, nil
}
