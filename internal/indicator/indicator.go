// Package indicator provides technical indicator calculations over price
// and volume series.
//
// All functions are pure and stateless. A series value that cannot be
// computed yet (not enough trailing history, or a degenerate input such as
// a flat high-low range) is math.NaN(), never a fabricated number. Callers
// test definedness with Defined.
package indicator

import "math"

// Defined reports whether an indicator value is computable, i.e. not the
// NaN sentinel.
func Defined(v float64) bool {
	return !math.IsNaN(v)
}

// undefinedSeries returns a series of n NaN values.
func undefinedSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// Last returns the final value of a series, or NaN for an empty series.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}
