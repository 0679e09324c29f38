package transform

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Standardize returns the z-score transform of values, skipping NaN cells.
// Degenerate columns (zero variance) are an error: a constant regressor
// would make every design matrix singular anyway.
func Standardize(values []float64) ([]float64, error) {
	observed := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			observed = append(observed, v)
		}
	}
	if len(observed) < 2 {
		return nil, fmt.Errorf("need at least 2 observed values to standardize, got %d", len(observed))
	}

	mean, sd := stat.MeanStdDev(observed, nil)
	if sd == 0 {
		return nil, fmt.Errorf("cannot standardize constant column (sd=0, mean=%.4f)", mean)
	}

	out := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			out[i] = v
			continue
		}
		out[i] = (v - mean) / sd
	}
	return out, nil
}

// Interaction returns the elementwise product of two columns. NaN in either
// input propagates.
func Interaction(a, b []float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("interaction length mismatch: %d vs %d", len(a), len(b))
	}
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] * b[i]
	}
	return out, nil
}

// QuartileBins assigns each value to its quartile (1..4) of the observed
// distribution. NaN values map to NaN.
func QuartileBins(values []float64) ([]float64, error) {
	observed := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			observed = append(observed, v)
		}
	}
	if len(observed) < 4 {
		return nil, fmt.Errorf("need at least 4 observed values for quartiles, got %d", len(observed))
	}
	sort.Float64s(observed)

	q1 := stat.Quantile(0.25, stat.Empirical, observed, nil)
	q2 := stat.Quantile(0.50, stat.Empirical, observed, nil)
	q3 := stat.Quantile(0.75, stat.Empirical, observed, nil)

	out := make([]float64, len(values))
	for i, v := range values {
		switch {
		case math.IsNaN(v):
			out[i] = v
		case v <= q1:
			out[i] = 1
		case v <= q2:
			out[i] = 2
		case v <= q3:
			out[i] = 3
		default:
			out[i] = 4
		}
	}
	return out, nil
}

// AboveMedian returns a 0/1 indicator for values strictly above the median
// of the observed distribution. Used to split firms into high/low ESG groups
// for the matching estimator.
func AboveMedian(values []float64) ([]float64, error) {
	observed := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			observed = append(observed, v)
		}
	}
	if len(observed) == 0 {
		return nil, fmt.Errorf("no observed values for median split")
	}
	sort.Float64s(observed)
	median := stat.Quantile(0.50, stat.Empirical, observed, nil)

	out := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			out[i] = v
		} else if v > median {
			out[i] = 1
		} else {
			out[i] = 0
		}
	}
	return out, nil
}

var dummySanitizer = regexp.MustCompile(`[^a-z0-9]+`)

// Dummies expands a categorical column into indicator columns, one per
// level, named prefix_level. Level names are sanitized to safe column
// names. The returned slice preserves a stable (sorted) level order; the
// caller decides which level to drop as the reference category.
func Dummies(labels []string, prefix string) (map[string][]float64, []string, error) {
	if len(labels) == 0 {
		return nil, nil, fmt.Errorf("no labels to expand")
	}

	levels := make([]string, 0)
	seen := make(map[string]bool)
	for _, l := range labels {
		if l == "" {
			continue
		}
		if !seen[l] {
			seen[l] = true
			levels = append(levels, l)
		}
	}
	if len(levels) < 2 {
		return nil, nil, fmt.Errorf("categorical column needs at least 2 levels, got %d", len(levels))
	}
	sort.Strings(levels)

	columns := make(map[string][]float64, len(levels))
	names := make([]string, 0, len(levels))
	for _, level := range levels {
		name := prefix + "_" + sanitizeLevel(level)
		names = append(names, name)
		col := make([]float64, len(labels))
		for i, l := range labels {
			if l == "" {
				col[i] = math.NaN()
			} else if l == level {
				col[i] = 1
			}
		}
		columns[name] = col
	}
	return columns, names, nil
}

// sanitizeLevel maps a raw level label to a safe column-name suffix.
func sanitizeLevel(level string) string {
	s := strings.ToLower(strings.TrimSpace(level))
	s = dummySanitizer.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}
