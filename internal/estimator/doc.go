// Package estimator implements the statistical models of the study: OLS with
// robust and clustered standard errors, panel fixed and random effects,
// two-way high-dimensional fixed effects, two-stage least squares,
// difference-in-differences with an event-study specification, Arellano-Bond
// difference GMM, quantile regression, logit, and propensity-score matching.
//
// Every estimator consumes a Design (a listwise-complete matrix view of the
// panel) and produces a Result. Results are transient: they exist to be
// serialized for the reporting stage and carry no reference back to the
// panel.
//
// Numerical failures (singular normal equations, non-convergence) are
// returned as errors wrapping the sentinels in internal/errors; the pipeline
// treats them as fatal.
package estimator
