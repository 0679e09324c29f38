// Package exporter writes the pipeline's CSV artifacts: the raw and cleaned
// panel snapshots, the data profile, summary statistics, and year trends.
// All files carry a UTF-8 BOM so they open cleanly in Excel.
package exporter
