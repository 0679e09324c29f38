// Package dataset implements the firm-year panel: the one long-lived data
// structure of the pipeline. The panel wraps a gota dataframe keyed by
// (firm, year), is created by spreadsheet import, mutated in place through
// the cleaning and construction stages, and finally exported as CSV.
//
// Invariant: after import the (firm, year) key is unique; duplicate keys are
// a fatal error surfaced by Validate.
package dataset
