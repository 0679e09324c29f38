package estimator

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"esgpanel/internal/dataset"
	apperrors "esgpanel/internal/errors"
)

// Design is a listwise-complete matrix view of the panel: rows with any
// missing value in the dependent or a regressor are dropped. It keeps the
// firm and year of each surviving row for clustering and panel transforms.
type Design struct {
	Dependent string
	Names     []string // regressor names, "const" first when present
	Y         []float64
	X         *mat.Dense
	Firms     []string
	Years     []int
	Intercept bool
}

// DesignOptions controls design construction.
type DesignOptions struct {
	// Intercept prepends a constant column
	Intercept bool
	// Extra supplies computed columns (lags, interactions built on the fly)
	// that are not stored on the panel
	Extra map[string][]float64
}

// column resolves a named column from the extras or from the panel.
func column(p *dataset.Panel, opts DesignOptions, name string) ([]float64, error) {
	if opts.Extra != nil {
		if vals, ok := opts.Extra[name]; ok {
			if vals == nil {
				return nil, fmt.Errorf("%w: extra column %s is nil", apperrors.ErrColumnMissing, name)
			}
			return vals, nil
		}
	}
	return p.Float(name)
}

// NewDesign builds a design matrix for dep ~ regressors from the panel,
// applying listwise deletion.
func NewDesign(p *dataset.Panel, dep string, regressors []string, opts DesignOptions) (*Design, error) {
	y, err := column(p, opts, dep)
	if err != nil {
		return nil, err
	}

	cols := make([][]float64, len(regressors))
	for i, name := range regressors {
		vals, err := column(p, opts, name)
		if err != nil {
			return nil, err
		}
		if len(vals) != len(y) {
			return nil, fmt.Errorf("column %s length %d does not match %s length %d",
				name, len(vals), dep, len(y))
		}
		cols[i] = vals
	}

	firms := p.Firms()
	years, err := p.Years()
	if err != nil {
		return nil, err
	}

	// Listwise deletion
	keep := make([]int, 0, len(y))
	for i := range y {
		if !isFinite(y[i]) {
			continue
		}
		ok := true
		for _, col := range cols {
			if !isFinite(col[i]) {
				ok = false
				break
			}
		}
		if ok {
			keep = append(keep, i)
		}
	}

	k := len(regressors)
	if opts.Intercept {
		k++
	}
	if len(keep) <= k {
		return nil, fmt.Errorf("%w: %d complete rows for %d parameters",
			apperrors.ErrInsufficientData, len(keep), k)
	}

	names := make([]string, 0, k)
	if opts.Intercept {
		names = append(names, "const")
	}
	names = append(names, regressors...)

	x := mat.NewDense(len(keep), k, nil)
	yOut := make([]float64, len(keep))
	firmsOut := make([]string, len(keep))
	yearsOut := make([]int, len(keep))
	for r, idx := range keep {
		yOut[r] = y[idx]
		firmsOut[r] = firms[idx]
		yearsOut[r] = years[idx]
		c := 0
		if opts.Intercept {
			x.Set(r, 0, 1)
			c = 1
		}
		for j, col := range cols {
			x.Set(r, c+j, col[idx])
		}
	}

	return &Design{
		Dependent: dep,
		Names:     names,
		Y:         yOut,
		X:         x,
		Firms:     firmsOut,
		Years:     yearsOut,
		Intercept: opts.Intercept,
	}, nil
}

// N returns the number of complete observations.
func (d *Design) N() int { return len(d.Y) }

// K returns the number of estimated parameters.
func (d *Design) K() int { _, k := d.X.Dims(); return k }

// NFirms returns the number of distinct firms in the design.
func (d *Design) NFirms() int {
	seen := make(map[string]bool, len(d.Firms))
	for _, f := range d.Firms {
		seen[f] = true
	}
	return len(seen)
}

// Clone returns a deep copy, used by the demeaning transforms so the caller
// keeps the untransformed design.
func (d *Design) Clone() *Design {
	x := mat.DenseCopyOf(d.X)
	y := make([]float64, len(d.Y))
	copy(y, d.Y)
	firms := make([]string, len(d.Firms))
	copy(firms, d.Firms)
	years := make([]int, len(d.Years))
	copy(years, d.Years)
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
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
