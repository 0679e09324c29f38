package exporter

import (
	"fmt"
	"sort"
	"strconv"

	"esgpanel/internal/dataset"
	"esgpanel/internal/describe"
)

// WritePanel streams a panel snapshot to the given file, one record at a
// time, so wide panels do not need a second in-memory copy.
func (w *CSVWriter) WritePanel(p *dataset.Panel, filePath string) error {
	records := p.Records()
	if len(records) == 0 {
		return fmt.Errorf("write panel %s: empty panel", filePath)
	}

	sw, err := w.CreateStreamWriter(filePath, records[0])
	if err != nil {
		return err
	}
	for _, rec := range records[1:] {
		if err := sw.WriteRecord(rec); err != nil {
			sw.Close()
			return fmt.Errorf("write panel %s: %w", filePath, err)
		}
	}
	return sw.Close()
}

// WriteSummaries writes the descriptive statistics table as CSV.
func (w *CSVWriter) WriteSummaries(summaries []describe.Summary, filePath string) error {
	headers := []string{"variable", "n", "mean", "sd", "min", "p25", "median", "p75", "max"}
	records := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		records = append(records, []string{
			s.Variable,
			strconv.Itoa(s.N),
			formatFloat(s.Mean), formatFloat(s.StdDev),
			formatFloat(s.Min), formatFloat(s.P25), formatFloat(s.Median),
			formatFloat(s.P75), formatFloat(s.Max),
		})
	}
	return w.WriteSimpleCSV(filePath, headers, records)
}

// WriteYearTrends writes yearly means, one row per year, one column per
// variable, in stable alphabetical column order.
func (w *CSVWriter) WriteYearTrends(years []int, means map[string][]float64, filePath string) error {
	cols := make([]string, 0, len(means))
	for name := range means {
		cols = append(cols, name)
	}
	sort.Strings(cols)

	headers := append([]string{"year"}, cols...)
	records := make([][]string, 0, len(years))
	for i, year := range years {
		row := []string{strconv.Itoa(year)}
		for _, name := range cols {
			row = append(row, formatFloat(means[name][i]))
		}
		records = append(records, row)
	}
	return w.WriteSimpleCSV(filePath, headers, records)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}
