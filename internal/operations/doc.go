// Package operations orchestrates the study pipeline: ingest, profile,
// construct, describe, estimate, report, and export run strictly in order,
// each stage reading and writing the shared run state. A stage failure
// aborts the run; later stages are marked skipped.
package operations
