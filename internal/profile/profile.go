// Package profile audits the raw panel before any transformation: per-column
// missingness, moments, interquartile-range outlier counts, and duplicate
// firm-year keys. The profile is advisory; it never mutates the panel.
package profile

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"esgpanel/internal/dataset"
)

// ColumnProfile describes one numeric column of the raw panel.
type ColumnProfile struct {
	Column      string  `json:"column"`
	N           int     `json:"n"`
	Missing     int     `json:"missing"`
	MissingRate float64 `json:"missing_rate"`
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"std_dev"`
	Skewness    float64 `json:"skewness"`
	Kurtosis    float64 `json:"kurtosis"`
	IQROutliers int     `json:"iqr_outliers"`
}

// Report is the outcome of profiling a panel.
type Report struct {
	NRows         int             `json:"n_rows"`
	NFirms        int             `json:"n_firms"`
	YearMin       int             `json:"year_min"`
	YearMax       int             `json:"year_max"`
	DuplicateKeys []string        `json:"duplicate_keys,omitempty"`
	Columns       []ColumnProfile `json:"columns"`
}

// Profile audits the given numeric columns of the panel.
func Profile(p *dataset.Panel, cols []string) (*Report, error) {
	dups, err := p.DuplicateKeys()
	if err != nil {
		return nil, err
	}
	years, err := p.Years()
	if err != nil {
		return nil, err
	}

	r := &Report{
		NRows:         p.Nrow(),
		NFirms:        countDistinct(p.Firms()),
		DuplicateKeys: dups,
	}
	if len(years) > 0 {
		r.YearMin, r.YearMax = years[0], years[0]
		for _, y := range years {
			if y < r.YearMin {
				r.YearMin = y
			}
			if y > r.YearMax {
				r.YearMax = y
			}
		}
	}

	for _, col := range cols {
		values, err := p.Float(col)
		if err != nil {
			return nil, err
		}
		r.Columns = append(r.Columns, profileColumn(col, values))
	}
	return r, nil
}

func profileColumn(name string, values []float64) ColumnProfile {
	observed := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			observed = append(observed, v)
		}
	}

	cp := ColumnProfile{
		Column:  name,
		N:       len(observed),
		Missing: len(values) - len(observed),
	}
	if len(values) > 0 {
		cp.MissingRate = float64(cp.Missing) / float64(len(values))
	}
	if len(observed) < 2 {
		cp.Mean = math.NaN()
		cp.StdDev = math.NaN()
		cp.Skewness = math.NaN()
		cp.Kurtosis = math.NaN()
		return cp
	}

	cp.Mean, cp.StdDev = stat.MeanStdDev(observed, nil)
	cp.Skewness = stat.Skew(observed, nil)
	cp.Kurtosis = stat.ExKurtosis(observed, nil)

	sorted := append([]float64{}, observed...)
	sort.Float64s(sorted)
	q1 := stat.Quantile(0.25, stat.Empirical, sorted, nil)
	q3 := stat.Quantile(0.75, stat.Empirical, sorted, nil)
	iqr := q3 - q1
	lo, hi := q1-1.5*iqr, q3+1.5*iqr
	for _, v := range observed {
		if v < lo || v > hi {
			cp.IQROutliers++
		}
	}
	return cp
}

// Flags returns human-readable findings worth surfacing in the log: heavy
// missingness, duplicate keys, and columns dominated by outliers.
func (r *Report) Flags() []string {
	var flags []string
	if len(r.DuplicateKeys) > 0 {
		flags = append(flags, "duplicate firm-year keys present")
	}
	for _, cp := range r.Columns {
		if cp.MissingRate > 0.2 {
			flags = append(flags, cp.Column+": more than 20% missing")
		}
		if cp.N > 0 && float64(cp.IQROutliers)/float64(cp.N) > 0.1 {
			flags = append(flags, cp.Column+": more than 10% IQR outliers")
		}
	}
	return flags
}

// Records renders the report as CSV rows for the exporter.
func (r *Report) Records() ([]string, [][]string) {
	headers := []string{"column", "n", "missing", "missing_rate", "mean", "std_dev", "skewness", "kurtosis", "iqr_outliers"}
	records := make([][]string, 0, len(r.Columns))
	for _, cp := range r.Columns {
		records = append(records, []string{
			cp.Column,
			itoa(cp.N), itoa(cp.Missing),
			ftoa(cp.MissingRate), ftoa(cp.Mean), ftoa(cp.StdDev),
			ftoa(cp.Skewness), ftoa(cp.Kurtosis),
			itoa(cp.IQROutliers),
		})
	}
	return headers, records
}

func countDistinct(values []string) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}
