package dataset

import (
	"fmt"
	"math"
)

// Lag returns the named column lagged k years within firm. A lagged value
// exists only when the same firm has an observation exactly k years earlier;
// gaps in an unbalanced panel produce NaN rather than the wrong year.
func (p *Panel) Lag(name string, k int) ([]float64, error) {
	if k <= 0 {
		return nil, fmt.Errorf("lag depth must be positive, got %d", k)
	}
	values, err := p.Float(name)
	if err != nil {
		return nil, err
	}
	years, err := p.Years()
	if err != nil {
		return nil, err
	}
	firms := p.Firms()

	index := make(map[string]float64, len(values))
	for i := range values {
		index[fmt.Sprintf("%s:%d", firms[i], years[i])] = values[i]
	}

	lagged := make([]float64, len(values))
	for i := range values {
		key := fmt.Sprintf("%s:%d", firms[i], years[i]-k)
		if v, ok := index[key]; ok {
			lagged[i] = v
		} else {
			lagged[i] = math.NaN()
		}
	}
	return lagged, nil
}

// Diff returns the within-firm first difference of the named column.
func (p *Panel) Diff(name string) ([]float64, error) {
	values, err := p.Float(name)
	if err != nil {
		return nil, err
	}
	lagged, err := p.Lag(name, 1)
	if err != nil {
		return nil, err
	}
	diff := make([]float64, len(values))
	for i := range values {
		diff[i] = values[i] - lagged[i]
	}
	return diff, nil
}

// LeaveOneOutMean computes, for each row, the mean of the named column over
// all other firms in the same (group, year) cell. This is the instrument
// construction for 2SLS: the industry-year mean ESG excluding the firm
// itself, which shifts the firm's score without loading on firm-specific
// shocks to investor demand.
func (p *Panel) LeaveOneOutMean(name, groupCol string) ([]float64, error) {
	values, err := p.Float(name)
	if err != nil {
		return nil, err
	}
	groups, err := p.Strings(groupCol)
	if err != nil {
		return nil, err
	}
	years, err := p.Years()
	if err != nil {
		return nil, err
	}

	type cell struct {
		sum   float64
		count int
	}
	cells := make(map[string]*cell)
	keys := make([]string, len(values))
	for i := range values {
		key := fmt.Sprintf("%s:%d", groups[i], years[i])
		keys[i] = key
		if math.IsNaN(values[i]) {
			continue
		}
		c := cells[key]
		if c == nil {
			c = &cell{}
			cells[key] = c
		}
		c.sum += values[i]
		c.count++
	}

	out := make([]float64, len(values))
	for i := range values {
		c := cells[keys[i]]
		if c == nil {
			out[i] = math.NaN()
			continue
		}
		sum, count := c.sum, c.count
		if !math.IsNaN(values[i]) {
			sum -= values[i]
			count--
		}
		if count == 0 {
			// Singleton cell: no peer information, instrument undefined
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(count)
	}
	return out, nil
}
