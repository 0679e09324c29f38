package dataset

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	apperrors "esgpanel/internal/errors"
)

// ReadXLSX reads the firm-year panel from an Excel workbook and returns it
// as a Panel. The sheet is located by the configured name first; if that
// fails, each sheet is scanned for a header row containing the firm and year
// columns, because exported research datasets rarely agree on sheet naming.
func ReadXLSX(filePath, sheetName, firmCol, yearCol string, stringCols []string) (*Panel, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	rows, sheet, err := findPanelSheet(f, sheetName, firmCol, yearCol)
	if err != nil {
		return nil, err
	}

	slog.Info("Found panel data in sheet",
		slog.String("sheet_name", sheet),
		slog.Int("total_rows", len(rows)))

	records := normalizeRecords(rows)
	if len(records) < 2 {
		return nil, apperrors.ErrEmptyPanel
	}

	panel, err := FromRecords(records, firmCol, yearCol, stringCols)
	if err != nil {
		return nil, fmt.Errorf("failed to build panel from %s: %w", filePath, err)
	}
	return panel, nil
}

// findPanelSheet returns the rows of the sheet holding the panel data.
func findPanelSheet(f *excelize.File, sheetName, firmCol, yearCol string) ([][]string, string, error) {
	if sheetName != "" {
		if rows, err := f.GetRows(sheetName); err == nil && len(rows) > 1 {
			return rows, sheetName, nil
		}
		slog.Warn("Configured sheet not found, scanning workbook",
			slog.String("sheet_name", sheetName))
	}

	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil || len(rows) < 2 {
			continue
		}
		header := strings.ToLower(strings.Join(rows[0], " "))
		if strings.Contains(header, strings.ToLower(firmCol)) &&
			strings.Contains(header, strings.ToLower(yearCol)) {
			return rows, name, nil
		}
	}

	return nil, "", fmt.Errorf("could not find panel data sheet (no sheet with %s and %s headers)",
		firmCol, yearCol)
}

// normalizeRecords trims cell whitespace, lowercases headers, pads short
// rows to header width, and drops fully empty rows. Excel exports routinely
// produce ragged trailing rows.
func normalizeRecords(rows [][]string) [][]string {
	if len(rows) == 0 {
		return nil
	}

	header := make([]string, len(rows[0]))
	for i, cell := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(cell))
	}

	records := [][]string{header}
	width := len(header)

	for _, row := range rows[1:] {
		record := make([]string, width)
		hasData := false
		for i := 0; i < width; i++ {
			if i < len(row) {
				record[i] = strings.TrimSpace(row[i])
			}
			if record[i] != "" {
				hasData = true
			}
		}
		if !hasData {
			continue
		}
		// Empty numeric cells must survive as empty strings so they parse
		// to NaN rather than zero downstream.
		records = append(records, record)
	}

	return records
}
