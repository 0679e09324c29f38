// Package charts renders the study's diagnostic and result figures as PNG
// files: distribution histograms, box plots by year, the correlation
// heatmap, year-trend lines, and coefficient plots with confidence bands.
package charts

import (
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"esgpanel/internal/describe"
	"esgpanel/internal/estimator"
)

const (
	chartWidth  = 6 * vg.Inch
	chartHeight = 4 * vg.Inch
)

// Histogram renders the distribution of a variable.
func Histogram(values []float64, title, outPath string) error {
	observed := dropMissing(values)
	if len(observed) == 0 {
		return fmt.Errorf("histogram %s: no observed values", title)
	}

	pl := plot.New()
	pl.Title.Text = title
	pl.Y.Label.Text = "count"

	h, err := plotter.NewHist(plotter.Values(observed), 30)
	if err != nil {
		return fmt.Errorf("histogram %s: %w", title, err)
	}
	pl.Add(h)

	return pl.Save(chartWidth, chartHeight, outPath)
}

// BoxPlotByYear renders one box per year for a variable.
func BoxPlotByYear(years []int, byYear map[int][]float64, title, outPath string) error {
	if len(years) == 0 {
		return fmt.Errorf("boxplot %s: no years", title)
	}

	pl := plot.New()
	pl.Title.Text = title

	labels := make([]string, 0, len(years))
	w := vg.Points(18)
	for i, year := range years {
		observed := dropMissing(byYear[year])
		if len(observed) == 0 {
			continue
		}
		b, err := plotter.NewBoxPlot(w, float64(i), plotter.Values(observed))
		if err != nil {
			return fmt.Errorf("boxplot %s year %d: %w", title, year, err)
		}
		pl.Add(b)
		labels = append(labels, fmt.Sprintf("%d", year))
	}
	pl.NominalX(labels...)

	return pl.Save(chartWidth, chartHeight, outPath)
}

// TrendLines renders yearly means of several variables on one plot.
func TrendLines(years []int, series map[string][]float64, title, outPath string) error {
	pl := plot.New()
	pl.Title.Text = title
	pl.X.Label.Text = "year"

	args := make([]interface{}, 0, 2*len(series))
	for name, means := range series {
		pts := make(plotter.XYs, 0, len(years))
		for i, year := range years {
			if i < len(means) && !math.IsNaN(means[i]) {
				pts = append(pts, plotter.XY{X: float64(year), Y: means[i]})
			}
		}
		args = append(args, name, pts)
	}
	if err := plotutil.AddLinePoints(pl, args...); err != nil {
		return fmt.Errorf("trend %s: %w", title, err)
	}

	return pl.Save(chartWidth, chartHeight, outPath)
}

// CoefficientPlot renders point estimates with 95% confidence whiskers,
// typically for an event study.
func CoefficientPlot(coefs []estimator.Coefficient, title, outPath string) error {
	if len(coefs) == 0 {
		return fmt.Errorf("coefficient plot %s: no coefficients", title)
	}

	pl := plot.New()
	pl.Title.Text = title
	pl.Y.Label.Text = "estimate"

	data := make(coefPoints, len(coefs))
	labels := make([]string, len(coefs))
	for i, c := range coefs {
		data[i] = coefPoint{x: float64(i), y: c.Estimate, half: 1.96 * c.StdErr}
		labels[i] = c.Name
	}

	scatter, err := plotter.NewScatter(data)
	if err != nil {
		return fmt.Errorf("coefficient plot %s: %w", title, err)
	}
	bars, err := plotter.NewYErrorBars(data)
	if err != nil {
		return fmt.Errorf("coefficient plot %s: %w", title, err)
	}
	zero := plotter.NewFunction(func(x float64) float64 { return 0 })
	zero.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}

	pl.Add(scatter, bars, zero)
	pl.NominalX(labels...)

	return pl.Save(chartWidth, chartHeight, outPath)
}

// coefPoints adapts coefficient estimates to the plotter XYer and YErrorer
// interfaces required by NewYErrorBars.
type coefPoint struct {
	x, y, half float64
}

type coefPoints []coefPoint

func (p coefPoints) Len() int                    { return len(p) }
func (p coefPoints) XY(i int) (float64, float64) { return p[i].x, p[i].y }
func (p coefPoints) YError(i int) (float64, float64) {
	return p[i].half, p[i].half
}

// Heatmap renders a correlation matrix.
func Heatmap(m *describe.CorrelationMatrix, title, outPath string) error {
	if len(m.Variables) == 0 {
		return fmt.Errorf("heatmap %s: empty matrix", title)
	}

	pl := plot.New()
	pl.Title.Text = title

	grid := corrGrid{m: m}
	h := plotter.NewHeatMap(grid, divergingPalette(64))
	h.Min, h.Max = -1, 1
	pl.Add(h)

	labels := m.Variables
	pl.NominalX(labels...)
	pl.NominalY(labels...)

	return pl.Save(chartWidth, chartWidth, outPath)
}

// corrGrid adapts a correlation matrix to plotter.GridXYZ.
type corrGrid struct {
	m *describe.CorrelationMatrix
}

func (g corrGrid) Dims() (int, int) { n := len(g.m.Variables); return n, n }
func (g corrGrid) X(c int) float64  { return float64(c) }
func (g corrGrid) Y(r int) float64  { return float64(r) }
func (g corrGrid) Z(c, r int) float64 {
	v := g.m.Values[r][c]
	if math.IsNaN(v) {
		return 0
	}
	return v
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
