package indicator

import "math"

// DetectGoldenCross returns a series that is true at index i iff the short
// MA crossed from at-or-below to above the long MA between i-1 and i.
// Both series must be defined at i-1 and i, otherwise false.
func DetectGoldenCross(shortMA, longMA []float64) []bool {
	return detectCross(shortMA, longMA, func(prevS, prevL, curS, curL float64) bool {
		return prevS <= prevL && curS > curL
	})
}

// DetectDeadCross returns a series that is true at index i iff the short
// MA crossed from at-or-above to below the long MA between i-1 and i.
func DetectDeadCross(shortMA, longMA []float64) []bool {
	return detectCross(shortMA, longMA, func(prevS, prevL, curS, curL float64) bool {
		return prevS >= prevL && curS < curL
	})
}

func detectCross(shortMA, longMA []float64, flipped func(prevS, prevL, curS, curL float64) bool) []bool {
	n := len(shortMA)
	out := make([]bool, n)
	if len(longMA) != n {
		return out
	}
	for i := 1; i < n; i++ {
		if math.IsNaN(shortMA[i-1]) || math.IsNaN(longMA[i-1]) ||
			math.IsNaN(shortMA[i]) || math.IsNaN(longMA[i]) {
			continue
		}
		out[i] = flipped(shortMA[i-1], longMA[i-1], shortMA[i], longMA[i])
	}
	return out
}
