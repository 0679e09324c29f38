package dataset

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	apperrors "esgpanel/internal/errors"
)

// Panel is the firm-year panel dataset.
// All mutating operations go through the accessors here so the (firm, year)
// key columns stay typed and present.
type Panel struct {
	df      dataframe.DataFrame
	firmCol string
	yearCol string
}

// New wraps an existing dataframe as a panel, checking the key columns exist.
func New(df dataframe.DataFrame, firmCol, yearCol string) (*Panel, error) {
	if df.Error() != nil {
		return nil, fmt.Errorf("invalid dataframe: %w", df.Error())
	}
	p := &Panel{df: df, firmCol: firmCol, yearCol: yearCol}
	for _, col := range []string{firmCol, yearCol} {
		if !p.HasColumn(col) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrColumnMissing, col)
		}
	}
	if df.Nrow() == 0 {
		return nil, apperrors.ErrEmptyPanel
	}
	return p, nil
}

// FromRecords builds a panel from raw string records (header row first).
// Key and categorical columns keep string/int types; everything else is
// parsed as float.
func FromRecords(records [][]string, firmCol, yearCol string, stringCols []string) (*Panel, error) {
	if len(records) < 2 {
		return nil, apperrors.ErrEmptyPanel
	}

	types := map[string]series.Type{
		firmCol: series.String,
		yearCol: series.Int,
	}
	for _, col := range stringCols {
		types[col] = series.String
	}

	df := dataframe.LoadRecords(records,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.Float),
		dataframe.WithTypes(types),
	)
	if df.Error() != nil {
		return nil, fmt.Errorf("failed to load records: %w", df.Error())
	}

	return New(df, firmCol, yearCol)
}

// ReadCSV loads a panel previously persisted with WriteCSV.
func ReadCSV(r io.Reader, firmCol, yearCol string, stringCols []string) (*Panel, error) {
	types := map[string]series.Type{
		firmCol: series.String,
		yearCol: series.Int,
	}
	for _, col := range stringCols {
		types[col] = series.String
	}

	df := dataframe.ReadCSV(r,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.Float),
		dataframe.WithTypes(types),
	)
	if df.Error() != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", df.Error())
	}
	return New(df, firmCol, yearCol)
}

// WriteCSV persists the panel including the header row.
func (p *Panel) WriteCSV(w io.Writer) error {
	return p.df.WriteCSV(w)
}

// Nrow returns the number of firm-year rows.
func (p *Panel) Nrow() int {
	return p.df.Nrow()
}

// Names returns the column names in dataframe order.
func (p *Panel) Names() []string {
	return p.df.Names()
}

// FirmCol returns the firm identifier column name.
func (p *Panel) FirmCol() string { return p.firmCol }

// YearCol returns the year column name.
func (p *Panel) YearCol() string { return p.yearCol }

// HasColumn reports whether the panel contains the named column.
func (p *Panel) HasColumn(name string) bool {
	for _, n := range p.df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// Float returns the named column as floats. Non-numeric or missing cells
// come back as NaN, which downstream listwise deletion handles.
func (p *Panel) Float(name string) ([]float64, error) {
	if !p.HasColumn(name) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrColumnMissing, name)
	}
	return p.df.Col(name).Float(), nil
}

// Strings returns the named column as its string records.
func (p *Panel) Strings(name string) ([]string, error) {
	if !p.HasColumn(name) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrColumnMissing, name)
	}
	return p.df.Col(name).Records(), nil
}

// Years returns the year column as ints.
func (p *Panel) Years() ([]int, error) {
	vals, err := p.df.Col(p.yearCol).Int()
	if err != nil {
		return nil, fmt.Errorf("year column not integral: %w", err)
	}
	return vals, nil
}

// Firms returns the firm identifier column.
func (p *Panel) Firms() []string {
	return p.df.Col(p.firmCol).Records()
}

// SetFloat adds or replaces a float column in place.
func (p *Panel) SetFloat(name string, values []float64) error {
	if len(values) != p.df.Nrow() {
		return fmt.Errorf("column %s length %d does not match panel rows %d",
			name, len(values), p.df.Nrow())
	}
	df := p.df.Mutate(series.New(values, series.Float, name))
	if df.Error() != nil {
		return fmt.Errorf("failed to set column %s: %w", name, df.Error())
	}
	p.df = df
	return nil
}

// SetInt adds or replaces an integer column in place.
func (p *Panel) SetInt(name string, values []int) error {
	if len(values) != p.df.Nrow() {
		return fmt.Errorf("column %s length %d does not match panel rows %d",
			name, len(values), p.df.Nrow())
	}
	df := p.df.Mutate(series.New(values, series.Int, name))
	if df.Error() != nil {
		return fmt.Errorf("failed to set column %s: %w", name, df.Error())
	}
	p.df = df
	return nil
}

// Select returns a transient copy restricted to the given columns plus the
// panel keys.
func (p *Panel) Select(cols []string) (*Panel, error) {
	keep := []string{p.firmCol, p.yearCol}
	for _, c := range cols {
		if c == p.firmCol || c == p.yearCol {
			continue
		}
		if !p.HasColumn(c) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrColumnMissing, c)
		}
		keep = append(keep, c)
	}
	df := p.df.Select(keep)
	if df.Error() != nil {
		return nil, fmt.Errorf("failed to select columns: %w", df.Error())
	}
	return &Panel{df: df, firmCol: p.firmCol, yearCol: p.yearCol}, nil
}

// FilterEq returns the subpanel of rows where the named numeric column
// equals v. Used for subsample estimation on constructed indicators.
func (p *Panel) FilterEq(name string, v float64) (*Panel, error) {
	if !p.HasColumn(name) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrColumnMissing, name)
	}
	df := p.df.Filter(dataframe.F{Colname: name, Comparator: series.Eq, Comparando: v})
	if df.Error() != nil {
		return nil, fmt.Errorf("failed to filter on %s: %w", name, df.Error())
	}
	if df.Nrow() == 0 {
		return nil, fmt.Errorf("%w: no rows with %s = %g", apperrors.ErrEmptyPanel, name, v)
	}
	return &Panel{df: df, firmCol: p.firmCol, yearCol: p.yearCol}, nil
}

// SortByFirmYear orders rows by firm then year, which lag construction and
// the panel estimators rely on.
func (p *Panel) SortByFirmYear() {
	p.df = p.df.Arrange(dataframe.Sort(p.firmCol), dataframe.Sort(p.yearCol))
}

// DuplicateKeys returns every (firm, year) key that appears more than once.
func (p *Panel) DuplicateKeys() ([]string, error) {
	years, err := p.Years()
	if err != nil {
		return nil, err
	}
	firms := p.Firms()

	seen := make(map[string]int, len(firms))
	for i := range firms {
		key := fmt.Sprintf("%s:%d", firms[i], years[i])
		seen[key]++
	}

	var dups []string
	for key, count := range seen {
		if count > 1 {
			dups = append(dups, key)
		}
	}
	sort.Strings(dups)
	return dups, nil
}

// Validate checks the panel invariants: non-empty and unique keys.
func (p *Panel) Validate() error {
	if p.df.Nrow() == 0 {
		return apperrors.ErrEmptyPanel
	}
	dups, err := p.DuplicateKeys()
	if err != nil {
		return err
	}
	if len(dups) > 0 {
		return fmt.Errorf("%w: %d duplicates, first %s",
			apperrors.ErrDuplicateKey, len(dups), dups[0])
	}
	return nil
}

// CollapseByYear returns the yearly mean of the given columns: the transient
// fork used for trend tables and plots.
func (p *Panel) CollapseByYear(cols []string) (years []int, means map[string][]float64, err error) {
	rowYears, err := p.Years()
	if err != nil {
		return nil, nil, err
	}

	colValues := make(map[string][]float64, len(cols))
	for _, col := range cols {
		vals, err := p.Float(col)
		if err != nil {
			return nil, nil, err
		}
		colValues[col] = vals
	}

	sums := make(map[int]map[string]float64)
	counts := make(map[int]map[string]int)
	for i, year := range rowYears {
		if sums[year] == nil {
			sums[year] = make(map[string]float64, len(cols))
			counts[year] = make(map[string]int, len(cols))
		}
		for _, col := range cols {
			v := colValues[col][i]
			if math.IsNaN(v) {
				continue
			}
			sums[year][col] += v
			counts[year][col]++
		}
	}

	for year := range sums {
		years = append(years, year)
	}
	sort.Ints(years)

	means = make(map[string][]float64, len(cols))
	for _, col := range cols {
		out := make([]float64, len(years))
		for i, year := range years {
			if counts[year][col] == 0 {
				out[i] = math.NaN()
				continue
			}
			out[i] = sums[year][col] / float64(counts[year][col])
		}
		means[col] = out
	}
	return years, means, nil
}

// Records returns the raw string records including the header row.
func (p *Panel) Records() [][]string {
	return p.df.Records()
}
