package compute

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// indexDigits is the number of decimal digits integral indices are rounded to.
const indexDigits = 4

// ErrEmptyInput is returned when statistics are requested on an empty vector.
var ErrEmptyInput = errors.New("statistics of empty error vector")

// Integral returns the trapezoidal integral of errs over times.
// ok is false when either input is empty or their lengths differ, which
// distinguishes "no data" from a zero integral.
func Integral(errs, times []float64) (v float64, ok bool) {
	return trapezoid(errs, times)
}

// IntegralOfSquared integrates errs² over times (ISE).
func IntegralOfSquared(errs, times []float64) (float64, bool) {
	sq := make([]float64, len(errs))
	for i, e := range errs {
		sq[i] = e * e
	}
	return trapezoid(sq, times)
}

// IntegralOfAbsolute integrates |errs| over times (IAE).
func IntegralOfAbsolute(errs, times []float64) (float64, bool) {
	abs := make([]float64, len(errs))
	for i, e := range errs {
		abs[i] = math.Abs(e)
	}
	return trapezoid(abs, times)
}

func trapezoid(f, x []float64) (float64, bool) {
	if len(f) == 0 || len(x) == 0 || len(f) != len(x) {
		return 0, false
	}
	// A single point encloses no area.
	if len(x) == 1 {
		return 0, true
	}
	return integrate.Trapezoidal(x, f), true
}

// Stats holds descriptive statistics of an error vector.
type Stats struct {
	Max  float64 `json:"max"`
	Min  float64 `json:"min"`
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"` // population standard deviation (divides by N)
}

// Statistics computes max, min, mean and population standard deviation.
// NaN and Inf in errs are not filtered.
func Statistics(errs []float64) (Stats, error) {
	if len(errs) == 0 {
		return Stats{}, ErrEmptyInput
	}
	mean, std := stat.PopMeanStdDev(errs, nil)
	return Stats{
		Max:  floats.Max(errs),
		Min:  floats.Min(errs),
		Mean: mean,
		Std:  std,
	}, nil
}

// round rounds v to the given number of decimal digits. NaN and Inf pass
// through unchanged.
func round(v float64, digits int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	p := math.Pow10(digits)
	return math.Round(v*p) / p
}
