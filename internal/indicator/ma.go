package indicator

import "math"

// MovingAverage computes the arithmetic mean over a trailing window of
// `period` points. The first period-1 values are NaN, as is any value
// whose window contains a NaN input (NaN propagates through windows).
func MovingAverage(series []float64, period int) []float64 {
	out := undefinedSeries(len(series))
	if period <= 0 || len(series) < period {
		return out
	}
	for i := period - 1; i < len(series); i++ {
		sum := 0.0
		defined := true
		for j := i - period + 1; j <= i; j++ {
			if math.IsNaN(series[j]) {
				defined = false
				break
			}
			sum += series[j]
		}
		if defined {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA computes the exponential moving average with smoothing factor
// 2/(period+1). The first output seeds from the first data point, so every
// index is defined for a NaN-free input.
func EMA(series []float64, period int) []float64 {
	out := undefinedSeries(len(series))
	if period <= 0 || len(series) == 0 {
		return out
	}
	mult := 2.0 / float64(period+1)
	out[0] = series[0]
	for i := 1; i < len(series); i++ {
		out[i] = series[i]*mult + out[i-1]*(1-mult)
	}
	return out
}
