package indicator

import "math"

// BollingerResult holds the three Bollinger band series.
type BollingerResult struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// BollingerBands computes the middle band as a moving average and the
// upper/lower bands numStd sample standard deviations away from it.
func BollingerBands(series []float64, period int, numStd float64) BollingerResult {
	n := len(series)
	middle := MovingAverage(series, period)
	upper := undefinedSeries(n)
	lower := undefinedSeries(n)

	if period > 1 && n >= period {
		for i := period - 1; i < n; i++ {
			if math.IsNaN(middle[i]) {
				continue
			}
			var sq float64
			for j := i - period + 1; j <= i; j++ {
				d := series[j] - middle[i]
				sq += d * d
			}
			std := math.Sqrt(sq / float64(period-1))
			upper[i] = middle[i] + numStd*std
			lower[i] = middle[i] - numStd*std
		}
	}

	return BollingerResult{Upper: upper, Middle: middle, Lower: lower}
}
