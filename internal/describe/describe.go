// Package describe computes the descriptive layer of the study: per-variable
// summary statistics, Pearson and Spearman correlation matrices, and the
// collapse-by-year trend view.
package describe

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"esgpanel/internal/dataset"
)

// Summary holds the descriptive statistics of one variable over its
// observed (non-missing) values.
type Summary struct {
	Variable string  `json:"variable"`
	N        int     `json:"n"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	Min      float64 `json:"min"`
	P25      float64 `json:"p25"`
	Median   float64 `json:"median"`
	P75      float64 `json:"p75"`
	Max      float64 `json:"max"`
}

// Summarize computes summary statistics for the given panel columns.
func Summarize(p *dataset.Panel, cols []string) ([]Summary, error) {
	out := make([]Summary, 0, len(cols))
	for _, col := range cols {
		values, err := p.Float(col)
		if err != nil {
			return nil, err
		}
		observed := dropMissing(values)
		if len(observed) == 0 {
			return nil, fmt.Errorf("column %s has no observed values", col)
		}
		sort.Float64s(observed)

		mean, sd := stat.MeanStdDev(observed, nil)
		out = append(out, Summary{
			Variable: col,
			N:        len(observed),
			Mean:     mean,
			StdDev:   sd,
			Min:      observed[0],
			P25:      stat.Quantile(0.25, stat.Empirical, observed, nil),
			Median:   stat.Quantile(0.50, stat.Empirical, observed, nil),
			P75:      stat.Quantile(0.75, stat.Empirical, observed, nil),
			Max:      observed[len(observed)-1],
		})
	}
	return out, nil
}

// CorrelationMatrix holds a symmetric correlation matrix with its labels.
type CorrelationMatrix struct {
	Variables []string    `json:"variables"`
	Values    [][]float64 `json:"values"`
	Method    string      `json:"method"`
}

// Pearson computes the pairwise Pearson correlation matrix over complete
// pairs (pairwise deletion, matching common statistical package behavior).
func Pearson(p *dataset.Panel, cols []string) (*CorrelationMatrix, error) {
	return correlations(p, cols, "pearson", pearsonPair)
}

// Spearman computes the rank correlation matrix: Pearson correlation of the
// ranks, with average ranks for ties.
func Spearman(p *dataset.Panel, cols []string) (*CorrelationMatrix, error) {
	return correlations(p, cols, "spearman", func(x, y []float64) float64 {
		return pearsonPair(ranks(x), ranks(y))
	})
}

func correlations(p *dataset.Panel, cols []string, method string, pair func(x, y []float64) float64) (*CorrelationMatrix, error) {
	data := make([][]float64, len(cols))
	for i, col := range cols {
		values, err := p.Float(col)
		if err != nil {
			return nil, err
		}
		data[i] = values
	}

	m := &CorrelationMatrix{
		Variables: append([]string{}, cols...),
		Values:    make([][]float64, len(cols)),
		Method:    method,
	}
	for i := range cols {
		m.Values[i] = make([]float64, len(cols))
		m.Values[i][i] = 1
	}

	for i := 0; i < len(cols); i++ {
		for j := i + 1; j < len(cols); j++ {
			x, y := completePairs(data[i], data[j])
			var r float64
			if len(x) < 3 {
				r = math.NaN()
			} else {
				r = pair(x, y)
			}
			m.Values[i][j] = r
			m.Values[j][i] = r
		}
	}
	return m, nil
}

// completePairs returns the subsequences where both columns are observed.
func completePairs(a, b []float64) ([]float64, []float64) {
	x := make([]float64, 0, len(a))
	y := make([]float64, 0, len(b))
	for i := range a {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		x = append(x, a[i])
		y = append(y, b[i])
	}
	return x, y
}

func pearsonPair(x, y []float64) float64 {
	return stat.Correlation(x, y, nil)
}

// ranks returns average ranks (1-based) with ties sharing their mean rank.
func ranks(values []float64) []float64 {
	n := len(values)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	out := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}

func dropMissing(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}
