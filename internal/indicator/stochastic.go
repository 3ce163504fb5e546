package indicator

import "math"

// StochasticResult holds the %K and %D oscillator series.
type StochasticResult struct {
	K []float64
	D []float64
}

// Stochastic computes the stochastic oscillator:
//
//	%K = 100 * (close - min(low, kPeriod)) / (max(high, kPeriod) - min(low, kPeriod))
//	%D = moving average of %K over dPeriod
//
// %K is NaN while the window is incomplete and on a flat range (zero
// denominator); %D inherits NaN through its window.
func Stochastic(high, low, close []float64, kPeriod, dPeriod int) StochasticResult {
	n := len(close)
	k := undefinedSeries(n)
	if kPeriod <= 0 || len(high) != n || len(low) != n {
		return StochasticResult{K: k, D: undefinedSeries(n)}
	}

	for i := kPeriod - 1; i < n; i++ {
		hh := math.Inf(-1)
		ll := math.Inf(1)
		for j := i - kPeriod + 1; j <= i; j++ {
			if high[j] > hh {
				hh = high[j]
			}
			if low[j] < ll {
				ll = low[j]
			}
		}
		denom := hh - ll
		if denom == 0 {
			// Flat range: %K is undefined, not a divide-by-zero.
			continue
		}
		k[i] = 100 * (close[i] - ll) / denom
	}

	return StochasticResult{K: k, D: MovingAverage(k, dPeriod)}
}
