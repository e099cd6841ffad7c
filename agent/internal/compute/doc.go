// Package compute derives control performance metrics from error signals.
//
// metrics.go holds the pure functions: Integral (IE), IntegralOfSquared
// (ISE) and IntegralOfAbsolute (IAE) use the trapezoidal rule over the
// (offset, error) curve and report ok=false for empty input; Statistics
// returns max, min, mean and population standard deviation and fails with
// ErrEmptyInput on an empty vector.
//
// engine.go bundles them per loop. Indices are rounded to four decimal
// digits; statistics keep full precision because downstream dashboards
// read them raw.
//
// NaN and Inf values are not filtered and propagate into the results.
package compute
