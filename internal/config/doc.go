// Package config provides application configuration for the ESG panel
// pipeline: logging and tracing settings, centralized filesystem paths, and
// the study specification (column roles, winsorization bounds, estimator
// tuning parameters).
//
// Configuration is loaded from environment variables with the ESG prefix,
// merged with an optional config.yaml, validated, and then treated as
// immutable for the duration of a run.
package config
