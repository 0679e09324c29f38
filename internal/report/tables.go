package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"esgpanel/internal/describe"
	"esgpanel/internal/estimator"
)

// stars returns the conventional significance markers at the 1%, 5%, and 10%
// levels.
func stars(p float64) string {
	switch {
	case math.IsNaN(p):
		return ""
	case p < 0.01:
		return "***"
	case p < 0.05:
		return "**"
	case p < 0.10:
		return "*"
	default:
		return ""
	}
}

func fnum(v float64) string {
	if math.IsNaN(v) {
		return "."
	}
	return fmt.Sprintf("%.4f", v)
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	return t
}

// writeTable renders the table and propagates the write error, which the
// go-pretty output mirror would swallow.
func writeTable(w io.Writer, t table.Writer) error {
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// RenderSummary writes the descriptive statistics table.
func RenderSummary(w io.Writer, summaries []describe.Summary) error {
	t := newTable()
	t.SetTitle("Descriptive statistics")
	t.AppendHeader(table.Row{"Variable", "N", "Mean", "SD", "Min", "P25", "Median", "P75", "Max"})
	for _, s := range summaries {
		t.AppendRow(table.Row{
			s.Variable, s.N,
			fnum(s.Mean), fnum(s.StdDev),
			fnum(s.Min), fnum(s.P25), fnum(s.Median), fnum(s.P75), fnum(s.Max),
		})
	}
	return writeTable(w, t)
}

// RenderCorrelation writes a correlation matrix with the lower triangle
// filled, the conventional presentation in the literature.
func RenderCorrelation(w io.Writer, m *describe.CorrelationMatrix) error {
	t := newTable()
	t.SetTitle(fmt.Sprintf("Correlation matrix (%s)", m.Method))

	header := table.Row{""}
	for i := range m.Variables {
		header = append(header, fmt.Sprintf("(%d)", i+1))
	}
	t.AppendHeader(header)

	for i, v := range m.Variables {
		row := table.Row{fmt.Sprintf("(%d) %s", i+1, v)}
		for j := range m.Variables {
			if j > i {
				row = append(row, "")
				continue
			}
			if j == i {
				row = append(row, "1.000")
				continue
			}
			row = append(row, fmt.Sprintf("%.3f", m.Values[i][j]))
		}
		t.AppendRow(row)
	}
	return writeTable(w, t)
}

// RenderGroupDiffs writes the group mean-comparison table.
func RenderGroupDiffs(w io.Writer, groupCol string, diffs []describe.GroupDiff) error {
	t := newTable()
	t.SetTitle(fmt.Sprintf("Mean comparison by %s", groupCol))
	t.AppendHeader(table.Row{"Variable", "Mean (group)", "Mean (rest)", "Diff", "t", ""})
	for _, d := range diffs {
		t.AppendRow(table.Row{
			d.Variable,
			fnum(d.MeanGroup), fnum(d.MeanRest), fnum(d.Diff),
			fmt.Sprintf("%.2f", d.TStat), stars(d.PValue),
		})
	}
	return writeTable(w, t)
}

// RenderRegression writes one or more model results side by side, one column
// per model, estimates over standard errors in parentheses.
func RenderRegression(w io.Writer, title string, models ...*estimator.Result) error {
	if len(models) == 0 {
		return nil
	}

	t := newTable()
	t.SetTitle(title)

	header := table.Row{""}
	for i, m := range models {
		header = append(header, fmt.Sprintf("(%d) %s", i+1, m.Model))
	}
	t.AppendHeader(header)

	for _, name := range coefOrder(models) {
		est := table.Row{name}
		se := table.Row{""}
		for _, m := range models {
			c, ok := m.Coef(name)
			if !ok {
				est = append(est, "")
				se = append(se, "")
				continue
			}
			est = append(est, fmt.Sprintf("%.4f%s", c.Estimate, stars(c.PValue)))
			se = append(se, fmt.Sprintf("(%.4f)", c.StdErr))
		}
		t.AppendRow(est)
		t.AppendRow(se)
	}

	t.AppendSeparator()
	nRow := table.Row{"N"}
	r2Row := table.Row{"R2"}
	for _, m := range models {
		nRow = append(nRow, m.N)
		if math.IsNaN(m.R2) {
			r2Row = append(r2Row, ".")
		} else {
			r2Row = append(r2Row, fmt.Sprintf("%.4f", m.R2))
		}
	}
	t.AppendRow(nRow)
	t.AppendRow(r2Row)

	for _, diag := range diagOrder(models) {
		row := table.Row{diag}
		for _, m := range models {
			if v, ok := m.Diagnostics[diag]; ok {
				row = append(row, fmt.Sprintf("%.4f", v))
			} else {
				row = append(row, "")
			}
		}
		t.AppendRow(row)
	}

	if err := writeTable(w, t); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, "Standard errors in parentheses. *** p<0.01, ** p<0.05, * p<0.10")
	return err
}

// RenderBalance writes the pre/post matching covariate balance table.
func RenderBalance(w io.Writer, m *estimator.MatchingResult) error {
	t := newTable()
	t.SetTitle("Covariate balance (standardized mean differences)")
	t.AppendHeader(table.Row{"Variable", "SMD before", "SMD after"})
	for _, b := range m.Balance {
		t.AppendRow(table.Row{b.Variable, fnum(b.SMDBefore), fnum(b.SMDAfter)})
	}
	if err := writeTable(w, t); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "ATT = %.4f (SE %.4f), %d treated matched\n", m.ATT, m.ATTStdErr, m.NMatched)
	return err
}

// coefOrder returns coefficient names in first-appearance order across the
// models, the intercept last.
func coefOrder(models []*estimator.Result) []string {
	seen := make(map[string]bool)
	var names []string
	hasConst := false
	for _, m := range models {
		for _, c := range m.Coefficients {
			if seen[c.Name] {
				continue
			}
			seen[c.Name] = true
			if c.Name == "const" {
				hasConst = true
				continue
			}
			names = append(names, c.Name)
		}
	}
	if hasConst {
		names = append(names, "const")
	}
	return names
}

func diagOrder(models []*estimator.Result) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range models {
		for k := range m.Diagnostics {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	sort.Strings(names)
	return names
}

// RenderAll writes the full text report for a results bundle.
func RenderAll(w io.Writer, r *Results, groupCol string) error {
	if _, err := fmt.Fprintf(w, "ESG panel study report\nrun %s, generated %s\n",
		r.RunID, r.GeneratedAt.Format("2006-01-02 15:04:05")); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "input %s: %d observations, %d firms, years %s\n\n",
		r.InputFile, r.NObs, r.NFirms, yearSpan(r.Years)); err != nil {
		return err
	}

	if len(r.Summaries) > 0 {
		if err := RenderSummary(w, r.Summaries); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}
	if r.Pearson != nil {
		if err := RenderCorrelation(w, r.Pearson); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}
	if r.Spearman != nil {
		if err := RenderCorrelation(w, r.Spearman); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}
	if len(r.GroupDiffs) > 0 {
		if err := RenderGroupDiffs(w, groupCol, r.GroupDiffs); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	for _, group := range modelGroups(r.Models) {
		if err := RenderRegression(w, group.title, group.models...); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	if r.Matching != nil {
		return RenderBalance(w, r.Matching)
	}
	return nil
}

type modelGroup struct {
	title  string
	models []*estimator.Result
}

// modelGroups clusters models by estimation family so related columns render
// side by side.
func modelGroups(models []*estimator.Result) []modelGroup {
	byMethod := make(map[string][]*estimator.Result)
	var order []string
	for _, m := range models {
		if _, ok := byMethod[m.Method]; !ok {
			order = append(order, m.Method)
		}
		byMethod[m.Method] = append(byMethod[m.Method], m)
	}

	out := make([]modelGroup, 0, len(order))
	for _, method := range order {
		out = append(out, modelGroup{
			title:  strings.ToUpper(method[:1]) + method[1:] + " estimates",
			models: byMethod[method],
		})
	}
	return out
}

func yearSpan(years []int) string {
	if len(years) == 0 {
		return "-"
	}
	return fmt.Sprintf("%d-%d", years[0], years[len(years)-1])
}
